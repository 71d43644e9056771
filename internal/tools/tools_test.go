package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/cache"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/store"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
)

func fixtureRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	snap, err := store.LoadDir("../store/testdata/incident")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	reg := NewRegistry(opts...)
	if err := RegisterEvidenceTools(reg, toolkit.New(snap)); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestDefinitionsSortedAndComplete(t *testing.T) {
	reg := fixtureRegistry(t)
	defs := reg.Definitions()
	if len(defs) != 10 {
		t.Fatalf("expected 10 tools, got %d", len(defs))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Name >= defs[i].Name {
			t.Fatalf("definitions not sorted: %s before %s", defs[i-1].Name, defs[i].Name)
		}
	}
	for _, def := range defs {
		if def.Description == "" || def.Parameters["type"] != "object" {
			t.Fatalf("incomplete definition %+v", def)
		}
	}
}

func TestInvokeQueryMetrics(t *testing.T) {
	reg := fixtureRegistry(t)
	payload, err := reg.Invoke(context.Background(), ToolQueryMetrics, map[string]any{
		"service":      "payment-api",
		"metric_names": []any{"latency_p99", "error_rate"},
		"start_ts":     "2024-01-01T09:00:00Z",
		"end_ts":       "2024-01-01T10:30:00Z",
		"agg":          "max",
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	var result toolkit.MetricsResult
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Metrics["latency_p99"].Value != 720 || result.Metrics["error_rate"].Value != 7.5 {
		t.Fatalf("unexpected metrics %+v", result.Metrics)
	}
}

func TestInvokeValidatesArguments(t *testing.T) {
	reg := fixtureRegistry(t)
	_, err := reg.Invoke(context.Background(), ToolRecentChanges, map[string]any{"service": "payment-api"})
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments, got %v", err)
	}
	_, err = reg.Invoke(context.Background(), ToolExpandTopology, map[string]any{"service": "payment-api", "direction": "sideways"})
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected schema to reject unknown direction, got %v", err)
	}
	_, err = reg.Invoke(context.Background(), ToolActiveAlerts, map[string]any{"severity_min": "urgent"})
	if !errors.Is(err, toolkit.ErrInvalidEnum) {
		t.Fatalf("expected ErrInvalidEnum, got %v", err)
	}
	_, err = reg.Invoke(context.Background(), "drop_tables", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
}

func TestInvokeTopologyNotFoundIsResult(t *testing.T) {
	reg := fixtureRegistry(t)
	payload, err := reg.Invoke(context.Background(), ToolExpandTopology, map[string]any{"service": "ghost"})
	if err != nil {
		t.Fatalf("unknown service must not fail the call: %v", err)
	}
	if string(payload) != `{"error":"Service ghost not found"}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestGroupCountLogsFromSearchOutput(t *testing.T) {
	reg := fixtureRegistry(t)
	ctx := context.Background()
	logs, err := reg.Invoke(ctx, ToolSearchLogs, map[string]any{
		"service":   "payment-api",
		"start_ts":  "2024-01-01T09:00:00Z",
		"end_ts":    "2024-01-01T10:30:00Z",
		"level_min": "ERROR",
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var found toolkit.LogsResult
	if err := json.Unmarshal(logs, &found); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	var raw map[string]any
	_ = json.Unmarshal(logs, &raw)

	payload, err := reg.Invoke(ctx, ToolGroupCountLogs, map[string]any{"logs": raw["logs"], "by": []any{"error_code"}})
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	var grouped toolkit.GroupCountResult
	if err := json.Unmarshal(payload, &grouped); err != nil {
		t.Fatalf("decode group: %v", err)
	}
	if grouped.Total != found.Count || grouped.Grouped["DB_POOL_TIMEOUT"] != 3 {
		t.Fatalf("unexpected grouping %+v", grouped)
	}
}

func TestInvokeTimeout(t *testing.T) {
	reg := NewRegistry(WithTimeout(10 * time.Millisecond))
	err := reg.Register(Func{
		ToolName:        "slow",
		ToolDescription: "sleeps",
		Schema:          map[string]any{"type": "object"},
		Fn: func(ctx context.Context, _ Args) (any, error) {
			time.Sleep(200 * time.Millisecond)
			return "late", nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Invoke(context.Background(), "slow", nil); !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("expected ErrToolTimeout, got %v", err)
	}
}

func TestInvokeCachesResults(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry(WithCache(cache.NewMemoryProvider(), time.Minute))
	_ = reg.Register(Func{
		ToolName:        "count",
		ToolDescription: "counts executions",
		Schema:          map[string]any{"type": "object", "properties": map[string]any{"n": map[string]any{"type": "integer"}}},
		Fn: func(context.Context, Args) (any, error) {
			return map[string]int32{"calls": calls.Add(1)}, nil
		},
	})

	ctx := context.Background()
	first, err := reg.Invoke(ctx, "count", map[string]any{"n": 1})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, _ := reg.Invoke(ctx, "count", map[string]any{"n": 1})
	if string(first) != string(second) || calls.Load() != 1 {
		t.Fatalf("expected cached result, got %s then %s after %d calls", first, second, calls.Load())
	}
	_, _ = reg.Invoke(ctx, "count", map[string]any{"n": 2})
	if calls.Load() != 2 {
		t.Fatalf("expected distinct arguments to miss cache, got %d calls", calls.Load())
	}
}

func TestExecuteFoldsErrors(t *testing.T) {
	reg := fixtureRegistry(t)
	result := reg.Execute(context.Background(), models.ToolCall{ID: "call-1", Name: "missing"})
	if !result.IsError || result.CallID != "call-1" {
		t.Fatalf("expected error result, got %+v", result)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(result.Content), &body); err != nil || body["error"] == "" {
		t.Fatalf("expected JSON error body, got %s", result.Content)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	for _, timeout := range []time.Duration{0, time.Second} {
		reg := NewRegistry(WithTimeout(timeout))
		_ = reg.Register(Func{
			ToolName:        "broken",
			ToolDescription: "panics",
			Schema:          map[string]any{"type": "object"},
			Fn: func(context.Context, Args) (any, error) {
				panic("index out of range")
			},
		})
		if _, err := reg.Invoke(context.Background(), "broken", nil); !errors.Is(err, ErrToolPanic) {
			t.Fatalf("timeout %s: expected ErrToolPanic, got %v", timeout, err)
		}
	}
}

func TestLogBurstsBoundsBucketCount(t *testing.T) {
	reg := fixtureRegistry(t)
	ctx := context.Background()
	args := map[string]any{
		"service":        "payment-api",
		"start_ts":       "1900-01-01T00:00:00Z",
		"end_ts":         "2200-01-01T00:00:00Z",
		"bucket_minutes": 1e-9,
	}
	if _, err := reg.Invoke(ctx, ToolLogBursts, args); !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected schema rejection, got %v", err)
	}

	args["bucket_minutes"] = 1
	if _, err := reg.Invoke(ctx, ToolLogBursts, args); !errors.Is(err, toolkit.ErrInvalidArgument) {
		t.Fatalf("expected oversized window rejection, got %v", err)
	}

	result := reg.Execute(ctx, models.ToolCall{ID: "b", Name: ToolLogBursts, Args: args})
	if !result.IsError {
		t.Fatalf("expected error result, got %s", result.Content)
	}
}

func TestExecuteReportsUndecodableArguments(t *testing.T) {
	reg := fixtureRegistry(t)
	call := models.ToolCall{ID: "c9", Name: ToolSearchLogs, ArgsError: "decode arguments for search_logs: invalid character 'p'"}
	result := reg.Execute(context.Background(), call)
	if !result.IsError {
		t.Fatalf("expected error result, got %s", result.Content)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(result.Content), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "invalid tool arguments: decode arguments for search_logs: invalid character 'p'" {
		t.Fatalf("unexpected error %q", body["error"])
	}
}

func TestDecodeLogsTimestamps(t *testing.T) {
	logs, err := decodeLogs(Args{"logs": []any{
		map[string]any{"service": "payment-api", "message": "a", "timestamp": "2024-01-01T09:45:00"},
		map[string]any{"service": "payment-api", "message": "b"},
	}})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := time.Date(2024, 1, 1, 9, 45, 0, 0, time.UTC)
	if !logs[0].Timestamp.Equal(want) || !logs[1].Timestamp.IsZero() {
		t.Fatalf("unexpected timestamps %v, %v", logs[0].Timestamp, logs[1].Timestamp)
	}

	_, err = decodeLogs(Args{"logs": []any{map[string]any{"timestamp": "yesterday"}}})
	if !errors.Is(err, toolkit.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
