package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/agents"
	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/repo"
	"github.com/miradorstack/mirador-investigator/internal/store"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/tools"
)

type runnerStub struct {
	mu    sync.Mutex
	seen  []string
	fail  string
	delay time.Duration
}

func (r *runnerStub) Run(ctx context.Context, alert models.Alert) (*engine.Result, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.seen = append(r.seen, alert.AlertID)
	r.mu.Unlock()
	if alert.AlertID == r.fail {
		return nil, errors.New("boom")
	}
	return &engine.Result{
		Alert:     alert,
		Extracted: true,
		Reason:    engine.ReasonComplete,
		Record: models.RCARecord{
			IncidentID:          "rca-" + alert.AlertID,
			MostLikelyRootCause: models.RootCause{Category: "configuration", Confidence: 0.8},
		},
	}, nil
}

func loadFixture(t *testing.T) (*store.Snapshot, *tools.Registry) {
	t.Helper()
	snap, err := store.LoadDir("../store/testdata/incident")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	reg := tools.NewRegistry()
	if err := tools.RegisterEvidenceTools(reg, toolkit.New(snap)); err != nil {
		t.Fatalf("register: %v", err)
	}
	return snap, reg
}

func TestInvestigateByIDPersists(t *testing.T) {
	snap, reg := loadFixture(t)
	history, err := repo.NewSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	defer history.Close()

	pipeline := engine.NewPipeline(nil, nil, nil, history)
	orch, err := engine.NewOrchestrator(agents.NewHeuristicRoles(pipeline, nil), reg, nil, engine.Options{}, nil)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	out := t.TempDir()
	svc, err := NewInvestigator(Deps{Runner: orch, Snapshot: snap, Tools: reg, History: history, Patterns: history, OutputDir: out})
	if err != nil {
		t.Fatalf("investigator: %v", err)
	}

	outcome, err := svc.InvestigateByID(context.Background(), "a1")
	if err != nil {
		t.Fatalf("investigate: %v", err)
	}
	if !outcome.Extracted || outcome.ArtifactPath != repo.ArtifactPath(out, "a1") {
		t.Fatalf("unexpected outcome extracted=%v path=%s", outcome.Extracted, outcome.ArtifactPath)
	}
	if _, err := os.Stat(outcome.ArtifactPath); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}

	entries, err := svc.History(context.Background(), "payment-api", 5)
	if err != nil || len(entries) != 1 {
		t.Fatalf("history = %+v, %v", entries, err)
	}
	if entries[0].Category != engine.CategoryConfiguration || entries[0].Degraded {
		t.Fatalf("unexpected entry %+v", entries[0])
	}

	if _, err := svc.InvestigateByID(context.Background(), "missing"); !errors.Is(err, ErrAlertNotFound) {
		t.Fatalf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestInvestigateAllKeepsDatasetOrder(t *testing.T) {
	snap, _ := loadFixture(t)
	runner := &runnerStub{delay: time.Millisecond}
	svc, err := NewInvestigator(Deps{Runner: runner, Snapshot: snap, Parallelism: 3})
	if err != nil {
		t.Fatalf("investigator: %v", err)
	}

	outcomes, err := svc.InvestigateAll(context.Background())
	if err != nil {
		t.Fatalf("investigate all: %v", err)
	}
	alerts := snap.Alerts()
	if len(outcomes) != len(alerts) {
		t.Fatalf("expected %d outcomes, got %d", len(alerts), len(outcomes))
	}
	for i, alert := range alerts {
		if outcomes[i].Alert.AlertID != alert.AlertID {
			t.Fatalf("outcome %d is %s, want %s", i, outcomes[i].Alert.AlertID, alert.AlertID)
		}
	}
}

func TestInvestigateAllPropagatesFailure(t *testing.T) {
	snap, _ := loadFixture(t)
	svc, _ := NewInvestigator(Deps{Runner: &runnerStub{fail: "a2"}, Snapshot: snap})
	if _, err := svc.InvestigateAll(context.Background()); err == nil {
		t.Fatalf("expected failure from a2")
	}
}

func TestOptionalDependencies(t *testing.T) {
	svc, err := NewInvestigator(Deps{Runner: &runnerStub{}})
	if err != nil {
		t.Fatalf("investigator: %v", err)
	}
	ctx := context.Background()
	if _, err := svc.Patterns(ctx, ""); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("patterns: %v", err)
	}
	if _, err := svc.InvokeTool(ctx, tools.ToolActiveAlerts, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("invoke: %v", err)
	}
	if _, err := svc.InvestigateAll(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("investigate all: %v", err)
	}
	if len(svc.ListTools()) != 0 {
		t.Fatalf("expected no tools")
	}
	if _, err := NewInvestigator(Deps{}); err == nil {
		t.Fatalf("expected error without runner")
	}
}
