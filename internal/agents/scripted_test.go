package agents

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-investigator/internal/engine"
)

func TestScriptedRoleRepeatsLastMessage(t *testing.T) {
	role := NewScriptedTextRole("reflector", "first", "second")
	var got []string
	for i := 0; i < 4; i++ {
		msg, err := role.Act(context.Background(), engine.Turn{Phase: engine.StateReflecting})
		if err != nil {
			t.Fatalf("act: %v", err)
		}
		if msg.Source != "reflector" {
			t.Fatalf("source = %q", msg.Source)
		}
		got = append(got, msg.Content)
	}
	if diff := cmp.Diff([]string{"first", "second", "second", "second"}, got); diff != "" {
		t.Fatalf("replies mismatch (-want +got):\n%s", diff)
	}
	if len(role.Phases()) != 4 {
		t.Fatalf("phases = %v", role.Phases())
	}
}

func TestScriptedRolesExhaustRetries(t *testing.T) {
	roles := engine.Roles{
		Planner:      NewScriptedTextRole(PlannerName, "check recent changes\nPLAN_COMPLETE"),
		Investigator: NewScriptedTextRole(InvestigatorName, "EVIDENCE_SUMMARY:\n- Finding 1: [logs] nothing yet\nEVIDENCE_COMPLETE"),
		Reflector:    NewScriptedTextRole(ReflectorName, "NEED_MORE_DATA: deploy history"),
	}
	orch, err := engine.NewOrchestrator(roles, nil, nil, engine.Options{Session: engine.SessionOptions{MaxIterations: 2}}, nil)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	result, err := orch.Run(context.Background(), testAlert)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Reason != engine.ReasonNeedMoreData {
		t.Fatalf("reason = %s", result.Reason)
	}
	if result.Iterations != 2 {
		t.Fatalf("iterations = %d, want 2", result.Iterations)
	}
	if len(result.Transcript) != 1+3*3 {
		t.Fatalf("transcript length = %d", len(result.Transcript))
	}
	reflector := roles.Reflector.(*ScriptedRole)
	if len(reflector.Phases()) != 3 {
		t.Fatalf("reflector turns = %d", len(reflector.Phases()))
	}
	if result.Extracted {
		t.Fatalf("expected fallback record")
	}
	missing := result.Record.MissingData
	if len(missing) == 0 || missing[len(missing)-1] != "More data requested: deploy history" {
		t.Fatalf("missing data = %v", missing)
	}
}
