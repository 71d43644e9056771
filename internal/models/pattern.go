package models

import "time"

// FailurePattern is a recurring root-cause signature mined from RCA history.
type FailurePattern struct {
	ID            string    `json:"id"`
	Service       string    `json:"service"`
	Category      string    `json:"category"`
	Occurrences   int       `json:"occurrences"`
	Prevalence    float64   `json:"prevalence"`
	AvgConfidence float64   `json:"avg_confidence"`
	Examples      []string  `json:"examples"`
	LastSeen      time.Time `json:"last_seen"`
}

// HistoryEntry is a persisted RCA record with its indexing metadata.
type HistoryEntry struct {
	AlertID   string    `json:"alert_id"`
	Service   string    `json:"service"`
	Category  string    `json:"category"`
	Degraded  bool      `json:"degraded"`
	Record    RCARecord `json:"record"`
	CreatedAt time.Time `json:"created_at"`
}
