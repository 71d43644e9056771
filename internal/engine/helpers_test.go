package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/store"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/tools"
)

const fixtureDir = "../store/testdata/incident"

var fixtureAlert = models.Alert{
	AlertID:   "a1",
	Service:   "payment-api",
	Severity:  models.SeverityHigh,
	AlertType: "latency",
	Message:   "p99 latency above 500ms",
	Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
}

func fixtureRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	snap, err := store.LoadDir(fixtureDir)
	if err != nil {
		t.Fatalf("load fixture: %v", err)
	}
	reg := tools.NewRegistry()
	if err := tools.RegisterEvidenceTools(reg, toolkit.New(snap)); err != nil {
		t.Fatalf("register tools: %v", err)
	}
	return reg
}

func window(alert models.Alert) map[string]any {
	return map[string]any{
		"start_ts": alert.Timestamp.Add(-DefaultWindowBefore).Format(time.RFC3339),
		"end_ts":   alert.Timestamp.Add(DefaultWindowAfter).Format(time.RFC3339),
	}
}

func withWindow(alert models.Alert, args map[string]any) map[string]any {
	for k, v := range window(alert) {
		args[k] = v
	}
	return args
}

// scriptedRole replays queued messages, repeating the last one when exhausted.
type scriptedRole struct {
	mu       sync.Mutex
	name     string
	messages []models.Message
	errs     []error
	calls    int
	turns    []Turn
}

func newScripted(name string, messages ...models.Message) *scriptedRole {
	return &scriptedRole{name: name, messages: messages}
}

func (r *scriptedRole) Name() string { return r.name }

func (r *scriptedRole) Act(_ context.Context, turn Turn) (models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.calls
	r.calls++
	r.turns = append(r.turns, turn)
	if idx < len(r.errs) && r.errs[idx] != nil {
		return models.Message{}, r.errs[idx]
	}
	if len(r.messages) == 0 {
		return models.TextMessage(r.name, "nothing to add"), nil
	}
	if idx >= len(r.messages) {
		idx = len(r.messages) - 1
	}
	return r.messages[idx], nil
}

func (r *scriptedRole) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// blockingRole ignores its context and never answers.
type blockingRole struct {
	name    string
	release chan struct{}
}

func (r *blockingRole) Name() string { return r.name }

func (r *blockingRole) Act(context.Context, Turn) (models.Message, error) {
	<-r.release
	return models.TextMessage(r.name, "late"), nil
}
