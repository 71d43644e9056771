package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Evidence tool names.
const (
	ToolActiveAlerts      = "get_active_alerts"
	ToolRecentChanges     = "recent_changes"
	ToolQueryMetrics      = "query_metrics"
	ToolSearchLogs        = "search_logs"
	ToolGroupCountLogs    = "group_count_logs"
	ToolExpandTopology    = "expand_topology"
	ToolCorrelateTimeline = "correlate_timeline"
	ToolSummarizeEvidence = "summarize_evidence"
	ToolMetricAnomalies   = "detect_metric_anomalies"
	ToolLogBursts         = "detect_log_bursts"
)

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func timestamp(desc string) map[string]any {
	return map[string]any{"type": "string", "minLength": 1, "description": desc + " (ISO-8601)"}
}

func object(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func objectList(desc string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "object"}, "description": desc}
}

// EvidenceTools returns the toolkit operations as registry tools.
func EvidenceTools(tk *toolkit.Toolkit) []Tool {
	return []Tool{
		Func{
			ToolName:        ToolActiveAlerts,
			ToolDescription: "Get alerts at or above a minimum severity (low < medium < high < critical), optionally bounded by an inclusive time window.",
			Schema: object(nil, map[string]any{
				"severity_min": str("Minimum severity: low, medium, high or critical. Defaults to low."),
				"start_ts":     str("Optional inclusive window start (ISO-8601)."),
				"end_ts":       str("Optional inclusive window end (ISO-8601)."),
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				start, err := args.OptionalTime("start_ts")
				if err != nil {
					return nil, err
				}
				end, err := args.OptionalTime("end_ts")
				if err != nil {
					return nil, err
				}
				return tk.ActiveAlerts(args.String("severity_min", "low"), start, end)
			},
		},
		Func{
			ToolName:        ToolRecentChanges,
			ToolDescription: "Get deployments, config changes and rollbacks for a service within an inclusive time window.",
			Schema: object([]string{"service", "start_ts", "end_ts"}, map[string]any{
				"service":  str("Exact service name."),
				"start_ts": timestamp("Inclusive window start"),
				"end_ts":   timestamp("Inclusive window end"),
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				start, end, err := args.Window()
				if err != nil {
					return nil, err
				}
				return tk.RecentChanges(args.String("service", ""), start, end), nil
			},
		},
		Func{
			ToolName:        ToolQueryMetrics,
			ToolDescription: "Aggregate metrics for a service over a time window. agg is latest, avg, min or max; anything else falls back to latest. Metrics without samples are omitted.",
			Schema: object([]string{"service", "metric_names", "start_ts", "end_ts"}, map[string]any{
				"service":      str("Exact service name."),
				"metric_names": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
				"start_ts":     timestamp("Inclusive window start"),
				"end_ts":       timestamp("Inclusive window end"),
				"agg":          str("Aggregation: latest, avg, min or max. Defaults to latest."),
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				start, end, err := args.Window()
				if err != nil {
					return nil, err
				}
				return tk.QueryMetrics(args.String("service", ""), args.Strings("metric_names"), start, end, args.String("agg", toolkit.AggLatest)), nil
			},
		},
		Func{
			ToolName:        ToolSearchLogs,
			ToolDescription: "Search logs for a service by minimum level (DEBUG < INFO < WARN < ERROR), time window and case-insensitive keyword, in dataset order up to limit.",
			Schema: object([]string{"service", "start_ts", "end_ts"}, map[string]any{
				"service":   str("Exact service name."),
				"start_ts":  timestamp("Inclusive window start"),
				"end_ts":    timestamp("Inclusive window end"),
				"level_min": str("Minimum level: DEBUG, INFO, WARN or ERROR. Defaults to INFO."),
				"contains":  str("Optional case-insensitive substring of the message."),
				"limit":     map[string]any{"type": "integer", "minimum": 1, "description": "Maximum entries returned. Defaults to 50."},
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				start, end, err := args.Window()
				if err != nil {
					return nil, err
				}
				return tk.SearchLogs(args.String("service", ""), start, end, args.String("level_min", "INFO"), args.String("contains", ""), args.Int("limit", toolkit.DefaultLogLimit))
			},
		},
		Func{
			ToolName:        ToolGroupCountLogs,
			ToolDescription: "Count log entries grouped by fields; each field is read from the entry, then its metadata, defaulting to \"unknown\". Keys join values with \" | \".",
			Schema: object([]string{"logs", "by"}, map[string]any{
				"logs": objectList("Log entries, typically from search_logs."),
				"by":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "minItems": 1},
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				logs, err := decodeLogs(args)
				if err != nil {
					return nil, err
				}
				return toolkit.GroupCountLogs(logs, args.Strings("by")), nil
			},
		},
		Func{
			ToolName:        ToolExpandTopology,
			ToolDescription: "List services reachable from a service: upstream follows dependencies, downstream follows dependents, up to depth hops.",
			Schema: object([]string{"service"}, map[string]any{
				"service":   str("Service to expand from."),
				"direction": map[string]any{"type": "string", "enum": []any{toolkit.Upstream, toolkit.Downstream}},
				"depth":     map[string]any{"type": "integer", "minimum": 1, "description": "Maximum hops. Defaults to 1."},
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				return tk.ExpandTopology(args.String("service", ""), args.String("direction", toolkit.Upstream), args.Int("depth", 1))
			},
		},
		Func{
			ToolName:        ToolCorrelateTimeline,
			ToolDescription: "Pair events from two lists whose timestamps are within max_lag_minutes of each other. Pre-filter large lists.",
			Schema: object([]string{"events_a", "events_b"}, map[string]any{
				"events_a":        objectList("Events with a timestamp field."),
				"events_b":        objectList("Events with a timestamp field."),
				"max_lag_minutes": map[string]any{"type": "number", "minimum": 0, "description": "Defaults to 15."},
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				var a, b []toolkit.Event
				if err := args.Decode("events_a", &a); err != nil {
					return nil, err
				}
				if err := args.Decode("events_b", &b); err != nil {
					return nil, err
				}
				return toolkit.CorrelateTimeline(a, b, args.Float("max_lag_minutes", 15))
			},
		},
		Func{
			ToolName:        ToolSummarizeEvidence,
			ToolDescription: "Summarise evidence items into sorted distinct sources and counts by relevance.",
			Schema: object([]string{"evidence_items"}, map[string]any{
				"evidence_items": objectList("Items with source, finding and relevance."),
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				var items []models.EvidenceItem
				if err := args.Decode("evidence_items", &items); err != nil {
					return nil, err
				}
				return toolkit.SummarizeEvidence(items), nil
			},
		},
		Func{
			ToolName:        ToolMetricAnomalies,
			ToolDescription: "Flag samples of one service metric whose z-score over the window meets threshold.",
			Schema: object([]string{"service", "metric_name", "start_ts", "end_ts"}, map[string]any{
				"service":     str("Exact service name."),
				"metric_name": str("Metric to score."),
				"start_ts":    timestamp("Inclusive window start"),
				"end_ts":      timestamp("Inclusive window end"),
				"threshold":   map[string]any{"type": "number", "description": "z-score threshold. Defaults to 2.5."},
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				start, end, err := args.Window()
				if err != nil {
					return nil, err
				}
				return tk.DetectMetricAnomalies(args.String("service", ""), args.String("metric_name", ""), start, end, args.Float("threshold", 0)), nil
			},
		},
		Func{
			ToolName:        ToolLogBursts,
			ToolDescription: "Bucket a service's logs at or above a level into fixed intervals and flag bursts against the median volume.",
			Schema: object([]string{"service", "start_ts", "end_ts"}, map[string]any{
				"service":        str("Exact service name."),
				"start_ts":       timestamp("Inclusive window start"),
				"end_ts":         timestamp("Inclusive window end"),
				"level_min":      str("Minimum level. Defaults to ERROR."),
				"bucket_minutes": map[string]any{"type": "number", "minimum": 1, "maximum": 1440, "description": "Interval size in minutes. Defaults to 5."},
			}),
			Fn: func(_ context.Context, args Args) (any, error) {
				start, end, err := args.Window()
				if err != nil {
					return nil, err
				}
				interval := time.Duration(args.Float("bucket_minutes", 5) * float64(time.Minute))
				return tk.DetectLogBursts(args.String("service", ""), start, end, args.String("level_min", "ERROR"), interval)
			},
		},
	}
}

// RegisterEvidenceTools registers every toolkit operation on reg.
func RegisterEvidenceTools(reg *Registry, tk *toolkit.Toolkit) error {
	for _, tool := range EvidenceTools(tk) {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// decodeLogs accepts search_logs output. Timestamps are optional for grouping
// but must parse when present.
func decodeLogs(args Args) ([]models.LogEntry, error) {
	var raw []map[string]any
	if err := args.Decode("logs", &raw); err != nil {
		return nil, err
	}
	out := make([]models.LogEntry, 0, len(raw))
	for i, item := range raw {
		entry := models.LogEntry{}
		if v, ok := item["service"].(string); ok {
			entry.Service = v
		}
		if v, ok := item["level"].(string); ok {
			entry.Level = models.LogLevel(v)
		}
		if v, ok := item["message"].(string); ok {
			entry.Message = v
		}
		if v, ok := item["metadata"]; ok && v != nil {
			meta, ok := v.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: logs[%d].metadata must be an object", toolkit.ErrInvalidArgument, i)
			}
			entry.Metadata = meta
		}
		if v, ok := item["timestamp"].(string); ok && v != "" {
			ts, err := utils.ParseTimestamp(v)
			if err != nil {
				return nil, fmt.Errorf("%w: logs[%d].timestamp: %v", toolkit.ErrInvalidArgument, i, err)
			}
			entry.Timestamp = ts
		}
		out = append(out, entry)
	}
	return out, nil
}
