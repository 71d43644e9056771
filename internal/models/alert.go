package models

import (
	"fmt"
	"strings"
	"time"
)

// Severity captures impact levels. Severities are totally ordered:
// low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRanks = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// ParseSeverity normalises a severity token. Matching is case-insensitive.
func ParseSeverity(value string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := severityRanks[sev]; !ok {
		return "", fmt.Errorf("unknown severity %q", value)
	}
	return sev, nil
}

// Rank returns the position of the severity in the total order, or -1 when unknown.
func (s Severity) Rank() int {
	rank, ok := severityRanks[s]
	if !ok {
		return -1
	}
	return rank
}

// Alert is the anomaly signal that seeds an investigation.
type Alert struct {
	AlertID   string    `json:"alert_id"`
	Service   string    `json:"service"`
	Severity  Severity  `json:"severity"`
	AlertType string    `json:"alert_type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate reports whether the alert carries enough identity to seed a session.
func (a Alert) Validate() error {
	switch {
	case strings.TrimSpace(a.AlertID) == "":
		return fmt.Errorf("alert_id is required")
	case strings.TrimSpace(a.Service) == "":
		return fmt.Errorf("alert %s: service is required", a.AlertID)
	case a.Timestamp.IsZero():
		return fmt.Errorf("alert %s: timestamp is required", a.AlertID)
	case a.Severity.Rank() < 0:
		return fmt.Errorf("alert %s: unknown severity %q", a.AlertID, a.Severity)
	}
	return nil
}
