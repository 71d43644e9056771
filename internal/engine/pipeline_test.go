package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/tools"
)

type stubHistory struct {
	entries []models.HistoryEntry
	calls   int
}

func (s *stubHistory) Similar(_ context.Context, service, category string, limit int) ([]models.HistoryEntry, error) {
	s.calls++
	return s.entries, nil
}

func fixtureTranscript(t *testing.T) []models.Message {
	t.Helper()
	reg := fixtureRegistry(t)
	calls := []models.ToolCall{
		{ID: "1", Name: tools.ToolRecentChanges, Args: withWindow(fixtureAlert, map[string]any{"service": "payment-api"})},
		{ID: "2", Name: tools.ToolRecentChanges, Args: withWindow(fixtureAlert, map[string]any{"service": "payment-db"})},
		{ID: "3", Name: tools.ToolExpandTopology, Args: map[string]any{"service": "payment-api", "direction": "upstream", "depth": 1}},
		{ID: "4", Name: tools.ToolSearchLogs, Args: withWindow(fixtureAlert, map[string]any{"service": "payment-api", "level_min": "WARN"})},
		{ID: "5", Name: tools.ToolMetricAnomalies, Args: withWindow(fixtureAlert, map[string]any{"service": "payment-api", "metric_name": "latency_p99", "threshold": 1.0})},
		{ID: "6", Name: tools.ToolQueryMetrics, Args: withWindow(fixtureAlert, map[string]any{"service": "payment-api", "metric_names": []string{"latency_p99"}, "agg": "max"})},
	}
	results := make([]models.ToolResult, 0, len(calls))
	for _, call := range calls {
		res := reg.Execute(context.Background(), call)
		if res.IsError {
			t.Fatalf("%s failed: %s", call.Name, res.Content)
		}
		results = append(results, res)
	}
	return []models.Message{
		models.TextMessage(SeedSource, "investigate"),
		models.ToolCallMessage("investigator", calls...),
		{Source: "investigator", Kind: models.MessageToolResults, ToolResults: results},
	}
}

func TestCollectObservations(t *testing.T) {
	obs := CollectObservations(fixtureTranscript(t))
	if len(obs.Changes) != 2 {
		t.Fatalf("changes = %d, want 2", len(obs.Changes))
	}
	if got := obs.Upstream["payment-api"]; len(got) != 2 {
		t.Fatalf("upstream = %v", got)
	}
	if len(obs.MetricAnomalies) != 1 || obs.MetricAnomalies[0].Count == 0 {
		t.Fatalf("expected latency anomalies, got %+v", obs.MetricAnomalies)
	}
	if obs.Called[tools.ToolRecentChanges] != 2 {
		t.Fatalf("called = %v", obs.Called)
	}

	signals := obs.Signals()
	for i := 1; i < len(signals); i++ {
		if signals[i].Time.Before(signals[i-1].Time) {
			t.Fatalf("signals not ordered at %d", i)
		}
	}
}

func TestCollectObservationsSkipsErrors(t *testing.T) {
	transcript := []models.Message{{
		Kind: models.MessageToolResults,
		ToolResults: []models.ToolResult{
			{Name: tools.ToolRecentChanges, Content: `{"error":"boom"}`, IsError: true},
			{Name: tools.ToolExpandTopology, Content: `{"error":"service not found: ghost"}`},
			{Name: tools.ToolSearchLogs, Content: `not json`},
		},
	}}
	obs := CollectObservations(transcript)
	if len(obs.Changes) != 0 || len(obs.Called) != 0 || len(obs.Unknown) != 1 {
		t.Fatalf("unexpected observations: %+v", obs)
	}
}

func TestPipelineAnalyzeRanksUpstreamConfigChange(t *testing.T) {
	rules, err := NewRuleEngine(writeRules(t, `rules:
  - id: pool
    match:
      evidence_contains: ["pool"]
    actions:
      - action: "Raise payment-api pool timeout alerting"
        priority: long-term
`), nil)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	history := &stubHistory{entries: []models.HistoryEntry{{
		AlertID: "old",
		Record: models.RCARecord{RecommendedActions: []models.RecommendedAction{
			{Action: "Add connection limit change review", Priority: "long-term", Owner: "dba-team"},
		}},
	}}}
	p := NewPipeline(nil, rules, nil, history)

	session, _ := NewSession(fixtureAlert, SessionOptions{})
	analysis := p.Analyze(context.Background(), fixtureAlert, session.Window, CollectObservations(fixtureTranscript(t)))

	if !analysis.Sufficient {
		t.Fatalf("expected sufficient analysis")
	}
	record := analysis.Record
	if record.IncidentID != "rca-20240101-a1" {
		t.Fatalf("incident id = %q", record.IncidentID)
	}
	if len(record.TopHypotheses) != 2 {
		t.Fatalf("hypotheses = %+v", record.TopHypotheses)
	}
	top := record.MostLikelyRootCause
	if top.Category != CategoryConfiguration || !strings.Contains(top.Hypothesis, "payment-db") {
		t.Fatalf("unexpected root cause: %+v", top)
	}
	if top.Confidence != 0.8 {
		t.Fatalf("confidence = %v, want 0.8", top.Confidence)
	}
	if record.TopHypotheses[1].Category != CategoryDeployment || record.TopHypotheses[1].Confidence != 0.65 {
		t.Fatalf("second hypothesis = %+v", record.TopHypotheses[1])
	}
	if record.TopHypotheses[0].Rank != 1 || record.TopHypotheses[1].Rank != 2 {
		t.Fatalf("ranks not assigned")
	}
	if analysis.Causality.SuggestedService != "payment-db" {
		t.Fatalf("causality = %+v", analysis.Causality)
	}

	actions := record.RecommendedActions
	if len(actions) != 3 {
		t.Fatalf("actions = %+v", actions)
	}
	if actions[0].Owner != "dba-team" || !strings.HasPrefix(actions[0].Action, "Revert max_connections") {
		t.Fatalf("primary action = %+v", actions[0])
	}
	if history.calls != 1 {
		t.Fatalf("history consulted %d times", history.calls)
	}
	if len(record.Timeline) == 0 || record.Timeline[0].Time != "09:30" {
		t.Fatalf("timeline = %+v", record.Timeline)
	}
	if len(record.MissingData) != 0 {
		t.Fatalf("missing = %v", record.MissingData)
	}
}

func TestPipelineAnalyzeWithoutObservations(t *testing.T) {
	p := NewPipeline(nil, nil, nil, nil)
	session, _ := NewSession(fixtureAlert, SessionOptions{})
	analysis := p.Analyze(context.Background(), fixtureAlert, session.Window, CollectObservations(nil))
	if analysis.Sufficient {
		t.Fatalf("expected insufficient analysis")
	}
	if analysis.Record.MostLikelyRootCause.Category != models.CategoryUnknown {
		t.Fatalf("category = %q", analysis.Record.MostLikelyRootCause.Category)
	}
	if len(analysis.Missing) != 4 {
		t.Fatalf("missing = %v", analysis.Missing)
	}
}
