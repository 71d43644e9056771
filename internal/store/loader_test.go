package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

const fixtureDir = "testdata/incident"

func TestLoadDirFixture(t *testing.T) {
	snap, err := LoadDir(fixtureDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	stats := snap.Stats()
	want := map[string]int{"alerts": 4, "metrics": 45, "logs": 10, "changes": 3, "services": 5}
	for key, count := range want {
		if stats[key] != count {
			t.Fatalf("expected %d %s, got %d", count, key, stats[key])
		}
	}

	alert, ok := snap.Alert("a1")
	if !ok {
		t.Fatalf("expected alert a1")
	}
	if alert.Severity != models.SeverityHigh || alert.Service != "payment-api" {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if !alert.Timestamp.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected alert timestamp %v", alert.Timestamp)
	}

	changes := snap.Changes()
	if changes[2].Kind != models.ChangeDeploy {
		t.Fatalf("expected change_type alias to populate kind, got %q", changes[2].Kind)
	}
	if changes[0].Description == "" || changes[0].Author != "dba-team" {
		t.Fatalf("expected descriptive fields, got %+v", changes[0])
	}

	node, ok := snap.Service("payment-api")
	if !ok || len(node.Dependencies) != 2 {
		t.Fatalf("unexpected topology node %+v", node)
	}
}

func TestSnapshotAccessorsReturnCopies(t *testing.T) {
	snap := NewSnapshot(Dataset{
		Alerts: []models.Alert{{AlertID: "x", Service: "svc", Severity: models.SeverityLow}},
		Topology: models.Topology{
			"svc": {Dependencies: []string{"db"}},
		},
	})
	alerts := snap.Alerts()
	alerts[0].Service = "mutated"
	if got, _ := snap.Alert("x"); got.Service != "svc" {
		t.Fatalf("snapshot mutated through accessor: %+v", got)
	}
	node, _ := snap.Service("svc")
	node.Dependencies[0] = "mutated"
	if again, _ := snap.Service("svc"); again.Dependencies[0] != "db" {
		t.Fatalf("topology mutated through accessor: %+v", again)
	}
}

func TestLoadDirMissingFile(t *testing.T) {
	dir := t.TempDir()
	copyFixture(t, dir, AlertsFile, MetricsFile, ChangesFile, ServiceMapFile)
	if _, err := LoadDir(dir); err == nil {
		t.Fatalf("expected error when %s is missing", LogsFile)
	}
}

func TestLoadDirRejectsUnknownSeverity(t *testing.T) {
	dir := t.TempDir()
	copyFixture(t, dir, MetricsFile, ChangesFile, ServiceMapFile, LogsFile)
	body := `[{"alert_id":"z","service":"svc","severity":"urgent","alert_type":"x","message":"","timestamp":"2024-01-01T00:00:00Z"}]`
	if err := os.WriteFile(filepath.Join(dir, AlertsFile), []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatalf("expected error for unknown severity")
	}
}

func copyFixture(t *testing.T, dst string, names ...string) {
	t.Helper()
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(fixtureDir, name))
		if err != nil {
			t.Fatalf("read fixture %s: %v", name, err)
		}
		if err := os.WriteFile(filepath.Join(dst, name), data, 0o600); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}
}
