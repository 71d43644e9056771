package agents

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/miradorstack/mirador-investigator/internal/config"
	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
)

const savedResult = `{
  "session_id": "s1",
  "transcript": [
    {"source": "user", "kind": "text", "content": "investigate"},
    {"source": "planner", "kind": "text", "content": "plan PLAN_COMPLETE"},
    {"source": "investigator", "kind": "tool_calls", "tool_calls": [{"id": "c1", "name": "recent_changes", "args": {"service": "payment-api"}}]},
    {"source": "investigator", "kind": "tool_results", "tool_results": [{"call_id": "c1", "name": "recent_changes", "content": "{}"}]},
    {"source": "investigator", "kind": "text", "content": "EVIDENCE_SUMMARY:\n- [recent_changes] nothing\n\nEVIDENCE_COMPLETE"},
    {"source": "reflector", "kind": "text", "content": "{\"top_hypotheses\": [], \"most_likely_root_cause\": {\"hypothesis\": \"bad deploy\", \"category\": \"deployment\", \"confidence\": 0.7}}\nINVESTIGATION_COMPLETE"}
  ]
}`

func writeReplay(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write replay: %v", err)
	}
	return path
}

func TestReplayRolesDriveOrchestrator(t *testing.T) {
	roles, err := LoadReplay(writeReplay(t, savedResult))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	orch, err := engine.NewOrchestrator(roles, fixtureRegistry(t), nil, engine.Options{}, nil)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	res, err := orch.Run(context.Background(), testAlert)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Reason != engine.ReasonComplete || !res.Extracted {
		t.Fatalf("reason=%s extracted=%v", res.Reason, res.Extracted)
	}
	if res.Record.MostLikelyRootCause.Hypothesis != "bad deploy" {
		t.Fatalf("unexpected record %+v", res.Record.MostLikelyRootCause)
	}
	if len(res.ToolsCalled) != 1 {
		t.Fatalf("recorded call should be executed again, got %v", res.ToolsCalled)
	}
	if inv := roles.Investigator.(*ReplayRole); inv.Remaining() != 0 {
		t.Fatalf("investigator has %d unreplayed messages", inv.Remaining())
	}
}

func TestReplayRoleExhausted(t *testing.T) {
	role := NewReplayRole(PlannerName, models.TextMessage("someone", "only"))
	msg, err := role.Act(context.Background(), engine.Turn{})
	if err != nil || msg.Source != PlannerName {
		t.Fatalf("first act: %+v %v", msg, err)
	}
	if _, err := role.Act(context.Background(), engine.Turn{}); !errors.Is(err, ErrReplayExhausted) {
		t.Fatalf("expected ErrReplayExhausted, got %v", err)
	}
}

func TestLoadReplayRequiresEveryRole(t *testing.T) {
	path := writeReplay(t, `[{"source": "planner", "kind": "text", "content": "plan"}]`)
	if _, err := LoadReplay(path); err == nil {
		t.Fatalf("expected error for missing roles")
	}
}

func TestBuildBackends(t *testing.T) {
	cfg := &config.Config{Roles: config.RolesConfig{Backend: BackendHeuristic}}
	roles, err := Build(cfg, engine.NewPipeline(nil, nil, nil, nil), nil)
	if err != nil || roles.Reflector.Name() != ReflectorName {
		t.Fatalf("heuristic build: %v", err)
	}

	cfg.Roles = config.RolesConfig{Backend: BackendReplay, ReplayPath: writeReplay(t, savedResult)}
	if _, err := Build(cfg, nil, nil); err != nil {
		t.Fatalf("replay build: %v", err)
	}

	cfg.Roles = config.RolesConfig{Backend: BackendOpenAI}
	if _, err := Build(cfg, nil, nil); err == nil {
		t.Fatalf("expected error without provider endpoint")
	}

	cfg.Roles = config.RolesConfig{Backend: "carrier-pigeon"}
	if _, err := Build(cfg, nil, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
