package agents

import (
	"testing"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/store"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/tools"
)

var testAlert = models.Alert{
	AlertID:   "a1",
	Service:   "payment-api",
	Severity:  models.SeverityHigh,
	AlertType: "latency",
	Message:   "p99 latency above 500ms",
	Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
}

func fixtureRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	snap, err := store.LoadDir("../store/testdata/incident")
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	reg := tools.NewRegistry()
	if err := tools.RegisterEvidenceTools(reg, toolkit.New(snap)); err != nil {
		t.Fatalf("register tools: %v", err)
	}
	return reg
}
