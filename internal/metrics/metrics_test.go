package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register should skip duplicates: %v", err)
	}
}

func TestObserveHelpersExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}

	ObserveSession(time.Second, "bogus")
	ObserveTurn("planner", errors.New("boom"))
	ObserveToolCall("query_metrics", ToolCached, 0)
	ObserveTermination("max_messages")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := map[string]bool{}
	for _, family := range families {
		seen[family.GetName()] = true
	}
	for _, name := range []string{
		"mirador_investigator_sessions_total",
		"mirador_investigator_role_turns_total",
		"mirador_investigator_tool_calls_total",
		"mirador_investigator_terminations_total",
	} {
		if !seen[name] {
			t.Fatalf("expected %s to be exported", name)
		}
	}

	for _, family := range families {
		if family.GetName() != "mirador_investigator_sessions_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == "bogus" {
					t.Fatalf("unknown outcome must be folded into error")
				}
			}
		}
	}
}
