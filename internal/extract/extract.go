// Package extract turns a finished transcript into an RCA record.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Record keys that mark a JSON object as an RCA payload.
const (
	KeyTopHypotheses = "top_hypotheses"
	KeyRootCause     = "most_likely_root_cause"
)

// Extractor converts a transcript into an RCA record. Implementations never
// fail: when nothing usable is found they return a fallback record and false.
type Extractor interface {
	Extract(transcript []models.Message, alert models.Alert) (models.RCARecord, bool)
}

// JSONExtractor scans text messages newest first for an embedded JSON object
// carrying RCA keys.
type JSONExtractor struct {
	now func() time.Time
}

// NewJSONExtractor constructs a JSONExtractor using the wall clock for
// fallback timestamps.
func NewJSONExtractor() *JSONExtractor {
	return &JSONExtractor{now: time.Now}
}

// Extract returns the first RCA payload found scanning in reverse order.
func (e *JSONExtractor) Extract(transcript []models.Message, alert models.Alert) (models.RCARecord, bool) {
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Kind != models.MessageText && msg.Kind != "" {
			continue
		}
		if record, ok := FindRecord(msg.Content); ok {
			return record, true
		}
	}
	now := time.Now
	if e != nil && e.now != nil {
		now = e.now
	}
	return Fallback(alert, now()), false
}

// FindRecord looks for an RCA payload inside free-form text. Balanced brace
// regions are tried in order of appearance, then the span from the first
// '{' to the last '}'. The payload is returned verbatim; its typed fields are
// a best-effort view and never cause a parseable payload to be rejected.
func FindRecord(text string) (models.RCARecord, bool) {
	if !strings.Contains(text, "{") {
		return models.RCARecord{}, false
	}
	for _, region := range candidates(text) {
		if record, ok := decode(region); ok {
			return record, true
		}
	}
	return models.RCARecord{}, false
}

func candidates(text string) []string {
	var out []string
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		if end := matchBrace(text, start); end > start {
			out = append(out, text[start:end+1])
		}
	}
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first >= 0 && last > first {
		out = append(out, text[first:last+1])
	}
	return out
}

// matchBrace returns the index of the '}' closing the '{' at start, or -1.
// Braces inside JSON string literals are ignored.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decode(region string) (models.RCARecord, bool) {
	if !strings.Contains(region, KeyTopHypotheses) && !strings.Contains(region, KeyRootCause) {
		return models.RCARecord{}, false
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(region), &keys); err != nil {
		return models.RCARecord{}, false
	}
	_, hasHypotheses := keys[KeyTopHypotheses]
	_, hasRootCause := keys[KeyRootCause]
	if !hasHypotheses && !hasRootCause {
		return models.RCARecord{}, false
	}
	record, err := models.ParseRecord([]byte(region))
	if err != nil {
		return models.RCARecord{}, false
	}
	return record, true
}

// Fallback builds the deterministic record emitted when no analysis could be
// extracted.
func Fallback(alert models.Alert, now time.Time) models.RCARecord {
	return models.RCARecord{
		IncidentID:      "rca-" + alert.AlertID,
		Timestamp:       utils.FormatTimestamp(now),
		IncidentSummary: fmt.Sprintf("Investigation of %s %s incident", alert.Service, alert.AlertType),
		TopHypotheses:   []models.RankedHypothesis{},
		MostLikelyRootCause: models.RootCause{
			Hypothesis:       "Unable to determine - review investigation logs",
			Category:         models.CategoryUnknown,
			Confidence:       0,
			AffectedServices: []string{alert.Service},
		},
		Evidence: []models.EvidenceRef{},
		Timeline: []models.TimelineEntry{},
		RecommendedActions: []models.RecommendedAction{
			{Action: "Manual investigation required", Priority: "immediate", Owner: "sre-team"},
		},
		VerificationSteps: []string{"Review raw investigation output"},
		MissingData:       []string{"Structured analysis could not be extracted"},
	}
}
