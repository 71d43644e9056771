package utils

import (
	"testing"
	"time"
)

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	for _, input := range []string{"2024-01-01T10:00:00Z", "2024-01-01T10:00:00", "2024-01-01 10:00:00", "2024-01-01T11:00:00+01:00"} {
		got, err := ParseTimestamp(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: expected %v, got %v", input, want, got)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for unparsable timestamp")
	}
}

func TestRound2(t *testing.T) {
	if got := Round2(2.3456); got != 2.35 {
		t.Fatalf("expected 2.35, got %v", got)
	}
	if got := Round2(-0.004); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}
