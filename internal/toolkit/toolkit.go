// Package toolkit implements deterministic evidence queries over a telemetry
// snapshot. Every operation is a pure function of the snapshot and its
// arguments, so results may be cached and calls repeated freely.
package toolkit

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/extractors"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/store"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

var (
	// ErrInvalidEnum is returned for unknown severity, level or direction tokens.
	ErrInvalidEnum = errors.New("invalid enum value")
	// ErrInvalidArgument is returned for malformed arguments such as a bad timestamp.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Aggregations accepted by QueryMetrics.
const (
	AggLatest = "latest"
	AggAvg    = "avg"
	AggMin    = "min"
	AggMax    = "max"
)

// Topology expansion directions.
const (
	Upstream   = "upstream"
	Downstream = "downstream"
)

// DefaultLogLimit applies when SearchLogs receives a non-positive limit.
const DefaultLogLimit = 50

// Toolkit answers evidence queries against one snapshot.
type Toolkit struct {
	store   *store.Snapshot
	metrics *extractors.MetricExtractor
	logs    *extractors.LogsExtractor
}

// New binds a toolkit to a snapshot.
func New(snapshot *store.Snapshot) *Toolkit {
	return &Toolkit{
		store:   snapshot,
		metrics: extractors.NewMetricExtractor(),
		logs:    extractors.NewLogsExtractor(),
	}
}

// AlertsResult lists alerts matching a severity floor.
type AlertsResult struct {
	Count  int            `json:"count"`
	Alerts []models.Alert `json:"alerts"`
}

// ActiveAlerts returns alerts with severity at or above minSeverity. Zero
// start or end leaves that side of the window open; set bounds are inclusive.
func (t *Toolkit) ActiveAlerts(minSeverity string, start, end time.Time) (AlertsResult, error) {
	floor, err := models.ParseSeverity(minSeverity)
	if err != nil {
		return AlertsResult{}, fmt.Errorf("%w: %v", ErrInvalidEnum, err)
	}

	out := AlertsResult{Alerts: []models.Alert{}}
	for _, alert := range t.store.Alerts() {
		if alert.Severity.Rank() < floor.Rank() {
			continue
		}
		if !start.IsZero() && alert.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && alert.Timestamp.After(end) {
			continue
		}
		out.Alerts = append(out.Alerts, alert)
	}
	out.Count = len(out.Alerts)
	return out, nil
}

// ChangesResult lists change events for a service.
type ChangesResult struct {
	Count   int                  `json:"count"`
	Changes []models.ChangeEvent `json:"changes"`
}

// RecentChanges returns change events for service inside [start, end], in dataset order.
func (t *Toolkit) RecentChanges(service string, start, end time.Time) ChangesResult {
	window := models.TimeRange{Start: start, End: end}
	out := ChangesResult{Changes: []models.ChangeEvent{}}
	for _, change := range t.store.Changes() {
		if change.Service == service && window.Contains(change.Timestamp) {
			out.Changes = append(out.Changes, change)
		}
	}
	out.Count = len(out.Changes)
	return out
}

// MetricSummary is the aggregate of one metric over the window.
type MetricSummary struct {
	Value       float64 `json:"value"`
	Unit        string  `json:"unit"`
	Aggregation string  `json:"aggregation"`
	DataPoints  int     `json:"data_points"`
}

// MetricsResult maps metric name to its aggregate. Metrics without samples are absent.
type MetricsResult struct {
	Service string                   `json:"service"`
	Metrics map[string]MetricSummary `json:"metrics"`
}

// QueryMetrics aggregates each named metric of service over [start, end].
// Aggregation tokens match exactly; anything else falls back to latest while
// the summary still reports the requested token.
func (t *Toolkit) QueryMetrics(service string, names []string, start, end time.Time, agg string) MetricsResult {
	if agg == "" {
		agg = AggLatest
	}
	applied := normaliseAgg(agg)
	window := models.TimeRange{Start: start, End: end}
	out := MetricsResult{Service: service, Metrics: map[string]MetricSummary{}}

	points := t.store.Metrics()
	for _, name := range names {
		var (
			values []float64
			unit   string
		)
		for _, point := range points {
			if point.Service != service || point.MetricName != name || !window.Contains(point.Timestamp) {
				continue
			}
			values = append(values, point.Value)
			if unit == "" {
				unit = point.Unit
			}
		}
		if len(values) == 0 {
			continue
		}
		out.Metrics[name] = MetricSummary{
			Value:       utils.Round2(aggregate(values, applied)),
			Unit:        unit,
			Aggregation: agg,
			DataPoints:  len(values),
		}
	}
	return out
}

func normaliseAgg(agg string) string {
	switch agg {
	case AggAvg, AggMin, AggMax:
		return agg
	}
	return AggLatest
}

func aggregate(values []float64, agg string) float64 {
	switch agg {
	case AggAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case AggMin:
		return slices.Min(values)
	case AggMax:
		return slices.Max(values)
	}
	return values[len(values)-1]
}

// LogsResult lists matching log entries.
type LogsResult struct {
	Count int               `json:"count"`
	Logs  []models.LogEntry `json:"logs"`
}

// SearchLogs returns entries for service at or above minLevel inside
// [start, end], optionally filtered by a case-insensitive substring, truncated
// at limit in dataset order.
func (t *Toolkit) SearchLogs(service string, start, end time.Time, minLevel, contains string, limit int) (LogsResult, error) {
	floor, err := models.ParseLogLevel(minLevel)
	if err != nil {
		return LogsResult{}, fmt.Errorf("%w: %v", ErrInvalidEnum, err)
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	needle := strings.ToLower(contains)
	window := models.TimeRange{Start: start, End: end}

	out := LogsResult{Logs: []models.LogEntry{}}
	for _, entry := range t.store.Logs() {
		if entry.Service != service || entry.Level.Rank() < floor.Rank() || !window.Contains(entry.Timestamp) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(entry.Message), needle) {
			continue
		}
		out.Logs = append(out.Logs, entry)
		if len(out.Logs) >= limit {
			break
		}
	}
	out.Count = len(out.Logs)
	return out, nil
}
