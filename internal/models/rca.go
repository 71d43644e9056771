package models

import "encoding/json"

// CategoryUnknown marks a root cause that could not be determined.
const CategoryUnknown = "unknown"

// RCARecord is the terminal artifact of an investigation session.
type RCARecord struct {
	IncidentID          string              `json:"incident_id"`
	Timestamp           string              `json:"timestamp"`
	IncidentSummary     string              `json:"incident_summary"`
	TopHypotheses       []RankedHypothesis  `json:"top_hypotheses"`
	MostLikelyRootCause RootCause           `json:"most_likely_root_cause"`
	Evidence            []EvidenceRef       `json:"evidence"`
	Timeline            []TimelineEntry     `json:"timeline"`
	RecommendedActions  []RecommendedAction `json:"recommended_actions"`
	VerificationSteps   []string            `json:"verification_steps"`
	MissingData         []string            `json:"missing_data"`

	// Raw is the payload the record was parsed from, if any. When set it is
	// what the record encodes to.
	Raw json.RawMessage `json:"-"`
}

// RankedHypothesis is one entry of the ranked hypothesis list.
type RankedHypothesis struct {
	Rank                  int      `json:"rank"`
	Hypothesis            string   `json:"hypothesis"`
	Confidence            float64  `json:"confidence"`
	Category              string   `json:"category"`
	SupportingEvidence    []string `json:"supporting_evidence"`
	ContradictingEvidence []string `json:"contradicting_evidence"`
}

// RootCause is the single most likely explanation.
type RootCause struct {
	Hypothesis       string   `json:"hypothesis"`
	Category         string   `json:"category"`
	Confidence       float64  `json:"confidence"`
	AffectedServices []string `json:"affected_services"`
}

// EvidenceRef is an observation cited by the RCA.
type EvidenceRef struct {
	Source      string `json:"source"`
	Observation string `json:"observation"`
	Relevance   string `json:"relevance"`
}

// TimelineEntry is one step of the incident timeline.
type TimelineEntry struct {
	Time  string `json:"time"`
	Event string `json:"event"`
}

// RecommendedAction is a remediation step with an owner.
type RecommendedAction struct {
	Action   string `json:"action"`
	Priority string `json:"priority"`
	Owner    string `json:"owner"`
}

// Degraded reports whether the record carries no usable analysis.
func (r RCARecord) Degraded() bool {
	return r.MostLikelyRootCause.Confidence == 0 && r.MostLikelyRootCause.Category == CategoryUnknown
}

// Hypotheses converts the ranked list into session hypotheses.
func (r RCARecord) Hypotheses() []Hypothesis {
	out := make([]Hypothesis, 0, len(r.TopHypotheses))
	for _, h := range r.TopHypotheses {
		out = append(out, Hypothesis{Statement: h.Hypothesis, Confidence: h.Confidence, Category: h.Category})
	}
	return out
}
