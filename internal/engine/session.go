package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

// ErrInvalidAlert is returned when a session cannot be built from an alert.
var ErrInvalidAlert = errors.New("invalid alert")

// Default session bounds.
const (
	DefaultMaxIterations = 3
	DefaultWindowBefore  = 60 * time.Minute
	DefaultWindowAfter   = 30 * time.Minute
)

// SessionOptions bound a session. Zero fields take the package defaults.
type SessionOptions struct {
	MaxIterations int
	WindowBefore  time.Duration
	WindowAfter   time.Duration
}

// Session is the mutable state of one investigation. It is owned by a
// single orchestrator run and must not be shared across goroutines.
type Session struct {
	ID            string
	Alert         models.Alert
	Window        models.TimeRange
	Evidence      []models.EvidenceItem
	Hypotheses    []models.Hypothesis
	ToolsCalled   []string
	Iteration     int
	MaxIterations int
	now           func() time.Time
}

// NewSession validates the alert and derives the investigation window.
func NewSession(alert models.Alert, opts SessionOptions) (*Session, error) {
	if err := alert.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.WindowBefore <= 0 {
		opts.WindowBefore = DefaultWindowBefore
	}
	if opts.WindowAfter <= 0 {
		opts.WindowAfter = DefaultWindowAfter
	}
	return &Session{
		ID:    uuid.NewString(),
		Alert: alert,
		Window: models.TimeRange{
			Start: alert.Timestamp.Add(-opts.WindowBefore),
			End:   alert.Timestamp.Add(opts.WindowAfter),
		},
		MaxIterations: opts.MaxIterations,
		now:           time.Now,
	}, nil
}

// AddEvidence records an observation.
func (s *Session) AddEvidence(source, finding string, relevance models.Relevance) {
	if relevance == "" {
		relevance = models.RelevanceSupports
	}
	s.Evidence = append(s.Evidence, models.EvidenceItem{
		Source:    source,
		Finding:   finding,
		Relevance: relevance,
		Timestamp: s.now().UTC(),
	})
}

// AddHypothesis records a candidate explanation.
func (s *Session) AddHypothesis(statement string, confidence float64, category string) {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	s.Hypotheses = append(s.Hypotheses, models.Hypothesis{
		Statement:  statement,
		Confidence: confidence,
		Category:   category,
	})
}

// RecordTool notes that a tool was invoked.
func (s *Session) RecordTool(name string) {
	s.ToolsCalled = append(s.ToolsCalled, name)
}

// ShouldContinue reports whether another investigation round is allowed.
func (s *Session) ShouldContinue() bool {
	return s.Iteration < s.MaxIterations
}

// RequestRetry advances the iteration counter when another round is allowed.
func (s *Session) RequestRetry() bool {
	if !s.ShouldContinue() {
		return false
	}
	s.Iteration++
	return true
}

// EvidenceSnapshot returns a copy of the evidence recorded so far.
func (s *Session) EvidenceSnapshot() []models.EvidenceItem {
	return slices.Clone(s.Evidence)
}
