package engine

import (
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func TestParseEvidenceSummary(t *testing.T) {
	text := `Gathered everything.

EVIDENCE_SUMMARY:
- Finding 1: [recent_changes] payment-db max_connections reduced at 09:30
- Finding 2: [search_logs] DB_POOL_TIMEOUT errors from 09:50
* untagged observation

EVIDENCE_COMPLETE`

	want := []Finding{
		{Source: "recent_changes", Text: "payment-db max_connections reduced at 09:30"},
		{Source: "search_logs", Text: "DB_POOL_TIMEOUT errors from 09:50"},
		{Source: "", Text: "untagged observation"},
	}
	if diff := cmp.Diff(want, ParseEvidenceSummary(text)); diff != "" {
		t.Fatalf("findings mismatch (-want +got):\n%s", diff)
	}
	if got := ParseEvidenceSummary("no summary here"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestRequestedData(t *testing.T) {
	if got := RequestedData("Review done.\nNEED_MORE_DATA: upstream logs\nthanks"); got != "upstream logs" {
		t.Fatalf("RequestedData = %q", got)
	}
	if got := RequestedData("NEED_MORE_DATA"); got != "" {
		t.Fatalf("RequestedData = %q, want empty", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	got := truncate("latency ↑ spike", 9)
	if !utf8.ValidString(got) || got != "latency ..." {
		t.Fatalf("truncate = %q", got)
	}
}
