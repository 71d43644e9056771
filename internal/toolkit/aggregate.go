package toolkit

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// GroupKeySeparator joins field values into a composite group key.
const GroupKeySeparator = " | "

// GroupCountResult maps composite keys to occurrence counts.
type GroupCountResult struct {
	Grouped map[string]int `json:"grouped"`
	Total   int            `json:"total"`
	Groups  int            `json:"groups"`
}

// GroupCountLogs counts logs by the composite of the requested fields. Each
// field resolves from the entry first, then its metadata, then "unknown".
func GroupCountLogs(logs []models.LogEntry, by []string) GroupCountResult {
	counts := make(map[string]int)
	parts := make([]string, len(by))
	for _, entry := range logs {
		for i, field := range by {
			value, ok := entry.Field(field)
			if !ok {
				value = "unknown"
			}
			parts[i] = value
		}
		counts[strings.Join(parts, GroupKeySeparator)]++
	}
	return GroupCountResult{Grouped: counts, Total: len(logs), Groups: len(counts)}
}

// Event is an arbitrary record carrying a "timestamp" field.
type Event map[string]any

// Timestamp parses the event's timestamp field.
func (e Event) Timestamp() (time.Time, error) {
	raw, ok := e["timestamp"]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: event has no timestamp", ErrInvalidArgument)
	}
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		ts, err := utils.ParseTimestamp(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("%w: timestamp has type %T", ErrInvalidArgument, raw)
}

// Correlation pairs two events whose timestamps lie within the lag bound.
type Correlation struct {
	EventA     Event   `json:"event_a"`
	EventB     Event   `json:"event_b"`
	LagSeconds float64 `json:"lag_seconds"`
	LagMinutes float64 `json:"lag_minutes"`
}

// CorrelationResult lists correlated pairs in (a, b) iteration order.
type CorrelationResult struct {
	Correlations []Correlation `json:"correlations"`
	Count        int           `json:"count"`
}

// CorrelateTimeline emits every pair (a, b) with |t(b)-t(a)| <= maxLagMinutes.
// It is quadratic in the input sizes; callers pre-filter large event sets.
func CorrelateTimeline(eventsA, eventsB []Event, maxLagMinutes float64) (CorrelationResult, error) {
	if maxLagMinutes < 0 || math.IsNaN(maxLagMinutes) {
		return CorrelationResult{}, fmt.Errorf("%w: max_lag_minutes must be a non-negative number", ErrInvalidArgument)
	}
	maxLagSeconds := maxLagMinutes * 60

	timesB := make([]time.Time, len(eventsB))
	for i, b := range eventsB {
		ts, err := b.Timestamp()
		if err != nil {
			return CorrelationResult{}, fmt.Errorf("events_b[%d]: %w", i, err)
		}
		timesB[i] = ts
	}

	out := CorrelationResult{Correlations: []Correlation{}}
	for i, a := range eventsA {
		tsA, err := a.Timestamp()
		if err != nil {
			return CorrelationResult{}, fmt.Errorf("events_a[%d]: %w", i, err)
		}
		for j, b := range eventsB {
			lag := timesB[j].Sub(tsA)
			if lag < 0 {
				lag = -lag
			}
			if lag.Seconds() > maxLagSeconds {
				continue
			}
			out.Correlations = append(out.Correlations, Correlation{
				EventA:     a,
				EventB:     b,
				LagSeconds: lag.Seconds(),
				LagMinutes: utils.Round2(lag.Minutes()),
			})
		}
	}
	out.Count = len(out.Correlations)
	return out, nil
}

// EvidenceSummary reduces evidence to its sources and relevance counts.
type EvidenceSummary struct {
	TotalItems  int            `json:"total_items"`
	Sources     []string       `json:"sources"`
	ByRelevance map[string]int `json:"by_relevance"`
}

// SummarizeEvidence returns distinct sources in sorted order and counts per
// relevance. Missing sources count as "unknown", missing relevance as "neutral".
func SummarizeEvidence(items []models.EvidenceItem) EvidenceSummary {
	sources := make(map[string]struct{})
	byRelevance := make(map[string]int)
	for _, item := range items {
		source := item.Source
		if source == "" {
			source = "unknown"
		}
		sources[source] = struct{}{}
		relevance := string(item.Relevance)
		if relevance == "" {
			relevance = string(models.RelevanceNeutral)
		}
		byRelevance[relevance]++
	}

	out := EvidenceSummary{TotalItems: len(items), Sources: make([]string, 0, len(sources)), ByRelevance: byRelevance}
	for source := range sources {
		out.Sources = append(out.Sources, source)
	}
	sort.Strings(out.Sources)
	return out
}
