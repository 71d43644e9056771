package engine

import (
	"strings"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

// Markers recognised in role text.
const (
	MarkerComplete     = "INVESTIGATION_COMPLETE"
	MarkerNeedMoreData = "NEED_MORE_DATA"
	MarkerPlan         = "PLAN_COMPLETE"
	MarkerEvidence     = "EVIDENCE_COMPLETE"
)

// DefaultMaxMessages is the transcript ceiling.
const DefaultMaxMessages = 20

// Reason explains why a loop stopped.
type Reason string

const (
	ReasonComplete            Reason = "investigation_complete"
	ReasonNeedMoreData        Reason = "need_more_data"
	ReasonMaxMessages         Reason = "max_messages"
	ReasonCapabilityExhausted Reason = "capability_exhausted"
	ReasonDeadline            Reason = "deadline_exceeded"
)

// Condition decides whether the transcript warrants stopping.
type Condition interface {
	Check(transcript []models.Message) (Reason, bool)
}

// ConditionFunc adapts a function into a Condition.
type ConditionFunc func(transcript []models.Message) (Reason, bool)

// Check implements Condition.
func (f ConditionFunc) Check(transcript []models.Message) (Reason, bool) {
	return f(transcript)
}

// TextMention fires when the newest message is text containing Marker.
type TextMention struct {
	Marker string
	Reason Reason
}

// Check implements Condition.
func (c TextMention) Check(transcript []models.Message) (Reason, bool) {
	if len(transcript) == 0 || c.Marker == "" {
		return "", false
	}
	last := transcript[len(transcript)-1]
	if last.Kind != models.MessageText {
		return "", false
	}
	if strings.Contains(last.Content, c.Marker) {
		return c.Reason, true
	}
	return "", false
}

// MaxMessages fires once the transcript holds Limit messages.
type MaxMessages struct {
	Limit int
}

// Check implements Condition.
func (c MaxMessages) Check(transcript []models.Message) (Reason, bool) {
	if c.Limit > 0 && len(transcript) >= c.Limit {
		return ReasonMaxMessages, true
	}
	return "", false
}

// AnyOf fires with the reason of the first satisfied condition.
func AnyOf(conditions ...Condition) Condition {
	return ConditionFunc(func(transcript []models.Message) (Reason, bool) {
		for _, cond := range conditions {
			if reason, ok := cond.Check(transcript); ok {
				return reason, true
			}
		}
		return "", false
	})
}

// DefaultTermination stops on completion, on a request for more data, or at
// the message ceiling. Completion wins when both markers appear.
func DefaultTermination(maxMessages int) Condition {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return AnyOf(
		TextMention{Marker: MarkerComplete, Reason: ReasonComplete},
		TextMention{Marker: MarkerNeedMoreData, Reason: ReasonNeedMoreData},
		MaxMessages{Limit: maxMessages},
	)
}
