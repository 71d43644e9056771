package extract

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

var testAlert = models.Alert{
	AlertID:   "a1",
	Service:   "payment-api",
	Severity:  models.SeverityHigh,
	AlertType: "latency",
	Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
}

func fixedExtractor() *JSONExtractor {
	return &JSONExtractor{now: func() time.Time { return time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC) }}
}

func TestExtractFindsFencedRecord(t *testing.T) {
	text := "Analysis below.\n```json\n" +
		`{"incident_id":"rca-1","top_hypotheses":[{"rank":1,"hypothesis":"pool exhausted {db}","confidence":0.8,"category":"configuration"}],` +
		`"most_likely_root_cause":{"hypothesis":"pool exhausted","category":"configuration","confidence":0.8,"affected_services":["payment-api"]}}` +
		"\n```\nINVESTIGATION_COMPLETE"
	transcript := []models.Message{
		models.TextMessage("user", "Investigate"),
		models.TextMessage("reflector", text),
	}

	record, ok := fixedExtractor().Extract(transcript, testAlert)
	if !ok {
		t.Fatalf("expected record to be extracted")
	}
	if record.IncidentID != "rca-1" {
		t.Fatalf("incident id = %q", record.IncidentID)
	}
	if len(record.TopHypotheses) != 1 || record.TopHypotheses[0].Hypothesis != "pool exhausted {db}" {
		t.Fatalf("unexpected hypotheses: %+v", record.TopHypotheses)
	}
	if record.MostLikelyRootCause.Confidence != 0.8 {
		t.Fatalf("confidence = %v", record.MostLikelyRootCause.Confidence)
	}
}

func TestExtractSkipsProseBraces(t *testing.T) {
	text := `The plan {step one} was followed. {"most_likely_root_cause":{"hypothesis":"bad deploy","category":"deployment","confidence":0.6}}`
	record, ok := FindRecord(text)
	if !ok {
		t.Fatalf("expected record")
	}
	if record.MostLikelyRootCause.Category != "deployment" {
		t.Fatalf("category = %q", record.MostLikelyRootCause.Category)
	}
}

func TestExtractPrefersNewestMessage(t *testing.T) {
	older := `{"top_hypotheses":[],"most_likely_root_cause":{"hypothesis":"old","category":"capacity","confidence":0.3}}`
	newer := `{"top_hypotheses":[],"most_likely_root_cause":{"hypothesis":"new","category":"dependency","confidence":0.7}}`
	transcript := []models.Message{
		models.TextMessage("reflector", older),
		models.TextMessage("planner", "NEED_MORE_DATA: logs"),
		models.TextMessage("reflector", newer),
	}
	record, ok := fixedExtractor().Extract(transcript, testAlert)
	if !ok || record.MostLikelyRootCause.Hypothesis != "new" {
		t.Fatalf("expected newest record, got %+v (ok=%v)", record.MostLikelyRootCause, ok)
	}
}

func TestExtractIgnoresUnrelatedJSON(t *testing.T) {
	transcript := []models.Message{
		models.TextMessage("planner", `{"plan_id":"plan-001","investigation_steps":[]} PLAN_COMPLETE`),
		{Source: "investigator", Kind: models.MessageToolResults, ToolResults: []models.ToolResult{{Name: "x", Content: `{"top_hypotheses":[]}`}}},
	}
	if _, ok := fixedExtractor().Extract(transcript, testAlert); ok {
		t.Fatalf("expected no record from plan or tool results")
	}
}

func TestExtractFallback(t *testing.T) {
	transcript := []models.Message{
		models.TextMessage("reflector", `{"top_hypotheses": [ truncated`),
	}
	record, ok := fixedExtractor().Extract(transcript, testAlert)
	if ok {
		t.Fatalf("expected fallback")
	}
	want := models.RCARecord{
		IncidentID:      "rca-a1",
		Timestamp:       "2024-01-01T11:00:00Z",
		IncidentSummary: "Investigation of payment-api latency incident",
		TopHypotheses:   []models.RankedHypothesis{},
		MostLikelyRootCause: models.RootCause{
			Hypothesis:       "Unable to determine - review investigation logs",
			Category:         "unknown",
			AffectedServices: []string{"payment-api"},
		},
		Evidence: []models.EvidenceRef{},
		Timeline: []models.TimelineEntry{},
		RecommendedActions: []models.RecommendedAction{
			{Action: "Manual investigation required", Priority: "immediate", Owner: "sre-team"},
		},
		VerificationSteps: []string{"Review raw investigation output"},
		MissingData:       []string{"Structured analysis could not be extracted"},
	}
	if diff := cmp.Diff(want, record); diff != "" {
		t.Fatalf("fallback mismatch (-want +got):\n%s", diff)
	}
	if !record.Degraded() {
		t.Fatalf("fallback should be degraded")
	}
}

func TestMatchBraceIgnoresStrings(t *testing.T) {
	text := `{"a":"}","b":{"c":1}} tail`
	if end := matchBrace(text, 0); end != len(`{"a":"}","b":{"c":1}}`)-1 {
		t.Fatalf("end = %d", end)
	}
	if end := matchBrace("{ open", 0); end != -1 {
		t.Fatalf("expected -1 for unbalanced input, got %d", end)
	}
}

func TestExtractKeepsNonConformingPayload(t *testing.T) {
	payload := `{"most_likely_root_cause":{"hypothesis":"pool exhausted","category":"configuration","confidence":"0.8"},` +
		`"top_hypotheses":[{"rank":1,"hypothesis":"pool exhausted","confidence":0.8,"supporting_evidence":"logs show DB_POOL_TIMEOUT"}],` +
		`"analyst_notes":"checked replica lag"}`
	transcript := []models.Message{models.TextMessage("reflector", "Final RCA:\n"+payload+"\nINVESTIGATION_COMPLETE")}

	record, ok := fixedExtractor().Extract(transcript, testAlert)
	if !ok {
		t.Fatalf("expected record to be extracted")
	}
	if record.MostLikelyRootCause.Confidence != 0.8 || record.MostLikelyRootCause.Category != "configuration" {
		t.Fatalf("unexpected root cause: %+v", record.MostLikelyRootCause)
	}
	if diff := cmp.Diff([]string{"logs show DB_POOL_TIMEOUT"}, record.TopHypotheses[0].SupportingEvidence); diff != "" {
		t.Fatalf("supporting evidence mismatch (-want +got):\n%s", diff)
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != payload {
		t.Fatalf("expected verbatim payload, got %s", encoded)
	}
}

func TestAddMissingDataUpdatesPayload(t *testing.T) {
	record, ok := FindRecord(`{"most_likely_root_cause":{"confidence":"high"},"extra":1}`)
	if !ok {
		t.Fatalf("expected record")
	}
	record.AddMissingData("More data requested: deploy history")

	var decoded map[string]any
	raw, _ := json.Marshal(record)
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["extra"] != float64(1) {
		t.Fatalf("extra field lost: %s", raw)
	}
	missing, _ := decoded["missing_data"].([]any)
	if len(missing) != 1 || missing[0] != "More data requested: deploy history" {
		t.Fatalf("missing_data = %v", decoded["missing_data"])
	}
	if diff := cmp.Diff([]string{"More data requested: deploy history"}, record.MissingData); diff != "" {
		t.Fatalf("typed missing data mismatch (-want +got):\n%s", diff)
	}
}
