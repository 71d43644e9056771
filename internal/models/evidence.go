package models

import "time"

// Relevance tags how an evidence item bears on the hypotheses under consideration.
type Relevance string

const (
	RelevanceSupports    Relevance = "supports"
	RelevanceContradicts Relevance = "contradicts"
	RelevanceNeutral     Relevance = "neutral"
)

// EvidenceItem is a discrete observation recorded during an investigation.
type EvidenceItem struct {
	Source    string    `json:"source"`
	Finding   string    `json:"finding"`
	Relevance Relevance `json:"relevance"`
	Timestamp time.Time `json:"timestamp"`
}

// Hypothesis is a candidate explanation produced by the reflecting role.
type Hypothesis struct {
	Statement  string  `json:"hypothesis"`
	Confidence float64 `json:"confidence"`
	Category   string  `json:"category"`
}
