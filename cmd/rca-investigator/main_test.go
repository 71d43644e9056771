package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

const fixtureDir = "../../internal/store/testdata/incident"

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	t.Setenv("MIRADOR_INVESTIGATOR_OUTPUT_DIR", t.TempDir())
	t.Setenv("MIRADOR_INVESTIGATOR_RULES_PATH", "../../configs/rules/default.yaml")
	t.Setenv("MIRADOR_INVESTIGATOR_LOG_LEVEL", "error")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--data", fixtureDir))
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestInvestigateCommandPrintsRecord(t *testing.T) {
	out := runCLI(t, "investigate", "a1")
	var record models.RCARecord
	if err := json.Unmarshal([]byte(out), &record); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if record.IncidentID != "rca-20240101-a1" {
		t.Fatalf("incident id = %q", record.IncidentID)
	}
	if record.MostLikelyRootCause.Category != "configuration" {
		t.Fatalf("category = %q", record.MostLikelyRootCause.Category)
	}
}

func TestInvestigateAllPrintsSummaries(t *testing.T) {
	out := runCLI(t, "investigate", "--all")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 summaries, got %d:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "a1\t") {
		t.Fatalf("first summary = %q", lines[0])
	}
}

func TestInvestigateRequiresAlertID(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"investigate", "--data", fixtureDir})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected argument error")
	}
}

func TestToolsCommands(t *testing.T) {
	list := runCLI(t, "tools", "list")
	if !strings.Contains(list, "expand_topology\t") {
		t.Fatalf("tools list missing expand_topology:\n%s", list)
	}

	out := runCLI(t, "tools", "call", "expand_topology", "--args", `{"service":"payment-api","direction":"upstream","depth":1}`)
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
}

func TestInvestigatePersistsHistory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MIRADOR_INVESTIGATOR_HISTORY_SQLITE_PATH", filepath.Join(dir, "history.db"))
	runCLI(t, "investigate", "a1")
	if _, err := os.Stat(filepath.Join(dir, "history.db")); err != nil {
		t.Fatalf("history database not created: %v", err)
	}
}
