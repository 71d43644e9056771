package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

func writeRules(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return path
}

func TestRuleEngineRecommend(t *testing.T) {
	path := writeRules(t, `rules:
  - id: pool
    match:
      category: configuration
      evidence_contains: ["connection pool"]
    actions:
      - action: "Restore database connection limits"
        priority: immediate
        owner: dba-team
    verification: ["Confirm connections_active stays below the limit"]
  - id: latency
    match:
      alert_type: latency
      severity: medium
    actions:
      - action: "Review {service} timeouts"
  - id: critical-only
    match:
      severity: critical
    actions:
      - action: "Page the incident commander"
`)

	engine, err := NewRuleEngine(path, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}
	if engine.Len() != 3 {
		t.Fatalf("rules = %d", engine.Len())
	}

	rec := engine.Recommend(RuleInput{
		Alert:    fixtureAlert,
		Category: "configuration",
		Evidence: []string{"Timeout waiting for Connection Pool"},
	})
	want := []models.RecommendedAction{
		{Action: "Restore database connection limits", Priority: "immediate", Owner: "dba-team"},
		{Action: "Review payment-api timeouts", Priority: DefaultPriority, Owner: DefaultOwner},
	}
	if diff := cmp.Diff(want, rec.Actions); diff != "" {
		t.Fatalf("actions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"pool", "latency"}, rec.RuleIDs); diff != "" {
		t.Fatalf("rule ids mismatch (-want +got):\n%s", diff)
	}
	if len(rec.Verification) != 1 {
		t.Fatalf("verification = %v", rec.Verification)
	}
}

func TestRuleEngineRejectsBadSeverity(t *testing.T) {
	path := writeRules(t, "rules:\n  - id: bad\n    match:\n      severity: urgent\n")
	if _, err := NewRuleEngine(path, nil); err == nil {
		t.Fatalf("expected error for unknown severity")
	}
}

func TestRuleEngineNoFile(t *testing.T) {
	engine, err := NewRuleEngine("non-existent", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if engine != nil {
		t.Fatalf("expected nil engine when file missing")
	}
	if rec := engine.Recommend(RuleInput{Alert: fixtureAlert}); len(rec.Actions) != 0 {
		t.Fatalf("nil engine should recommend nothing")
	}
}
