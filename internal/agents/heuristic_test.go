package agents

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/tools"
)

func TestHeuristicRolesInvestigateFixture(t *testing.T) {
	roles := NewHeuristicRoles(engine.NewPipeline(nil, nil, nil, nil), nil)
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
	if len(res.Transcript) != 8 {
		t.Fatalf("expected 8 messages, got %d", len(res.Transcript))
	}

	root := res.Record.MostLikelyRootCause
	if root.Category != engine.CategoryConfiguration || !strings.Contains(root.Hypothesis, "payment-db") {
		t.Fatalf("unexpected root cause %+v", root)
	}
	if res.Record.IncidentID != "rca-20240101-a1" {
		t.Fatalf("incident id = %q", res.Record.IncidentID)
	}
	if len(res.Hypotheses) == 0 {
		t.Fatalf("extracted hypotheses not recorded on the session")
	}

	called := map[string]bool{}
	for _, name := range res.ToolsCalled {
		called[name] = true
	}
	for _, name := range []string{tools.ToolRecentChanges, tools.ToolExpandTopology, tools.ToolMetricAnomalies, tools.ToolCorrelateTimeline, tools.ToolGroupCountLogs} {
		if !called[name] {
			t.Fatalf("%s not called; got %v", name, res.ToolsCalled)
		}
	}

	var supports int
	for _, item := range res.Evidence {
		if item.Relevance == models.RelevanceSupports {
			supports++
		}
	}
	if supports == 0 {
		t.Fatalf("evidence summary was not absorbed")
	}
}

func TestHeuristicInvestigatorFollowUpUsesTopology(t *testing.T) {
	session, _ := engine.NewSession(testAlert, engine.SessionOptions{})
	reg := fixtureRegistry(t)
	inv := HeuristicInvestigator{}

	first, err := inv.Act(context.Background(), engine.Turn{Session: session})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if first.Kind != models.MessageToolCalls {
		t.Fatalf("round 0 should call tools, got %+v", first)
	}
	results := make([]models.ToolResult, 0, len(first.ToolCalls))
	for i, call := range first.ToolCalls {
		call.ID = string(rune('a' + i))
		res := reg.Execute(context.Background(), call)
		if res.IsError {
			t.Fatalf("%s failed: %s", call.Name, res.Content)
		}
		results = append(results, res)
	}
	transcript := []models.Message{first, {Source: InvestigatorName, Kind: models.MessageToolResults, ToolResults: results}}

	second, err := inv.Act(context.Background(), engine.Turn{Session: session, Transcript: transcript, Round: 1})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	services := map[string]bool{}
	for _, call := range second.ToolCalls {
		if call.Name == tools.ToolRecentChanges {
			services[call.Args["service"].(string)] = true
		}
		res := reg.Execute(context.Background(), call)
		if res.IsError {
			t.Fatalf("follow-up %s failed: %s", call.Name, res.Content)
		}
	}
	if !services["payment-db"] || !services["auth-service"] {
		t.Fatalf("upstream services not investigated: %v", services)
	}

	done, _ := inv.Act(context.Background(), engine.Turn{Session: session, Transcript: transcript, Round: 2})
	if done.Kind != models.MessageText || !strings.Contains(done.Content, engine.MarkerEvidence) {
		t.Fatalf("round 2 should summarise, got %+v", done)
	}
	if len(engine.ParseEvidenceSummary(done.Content)) == 0 {
		t.Fatalf("summary has no findings: %q", done.Content)
	}
}

func TestHeuristicReflectorRequestsMoreData(t *testing.T) {
	session, _ := engine.NewSession(testAlert, engine.SessionOptions{MaxIterations: 2})
	reflector := NewHeuristicRoles(engine.NewPipeline(nil, nil, nil, nil), nil).Reflector

	msg, err := reflector.Act(context.Background(), engine.Turn{Session: session})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if !strings.Contains(msg.Content, engine.MarkerNeedMoreData+": Change history for payment-api") {
		t.Fatalf("expected a data request, got %q", msg.Content)
	}

	session.Iteration = session.MaxIterations
	msg, err = reflector.Act(context.Background(), engine.Turn{Session: session})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	if !strings.Contains(msg.Content, engine.MarkerComplete) {
		t.Fatalf("exhausted session should publish, got %q", msg.Content)
	}
}

func TestHeuristicPlannerCarriesRequestOnRetry(t *testing.T) {
	session, _ := engine.NewSession(testAlert, engine.SessionOptions{})
	session.Iteration = 1
	transcript := []models.Message{models.TextMessage(ReflectorName, "weak\nNEED_MORE_DATA: upstream logs")}

	msg, err := HeuristicPlanner{}.Act(context.Background(), engine.Turn{Session: session, Transcript: transcript})
	if err != nil {
		t.Fatalf("act: %v", err)
	}
	body := strings.TrimSuffix(strings.TrimSpace(msg.Content), engine.MarkerPlan)
	var p plan
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("plan is not JSON: %v", err)
	}
	if p.PlanID != "plan-002" || p.Focus != "upstream logs" {
		t.Fatalf("unexpected plan %+v", p)
	}
	if p.InvestigationSteps[len(p.InvestigationSteps)-1].Step != len(p.InvestigationSteps) {
		t.Fatalf("steps not numbered")
	}
}
