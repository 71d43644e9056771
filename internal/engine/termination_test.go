package engine

import (
	"testing"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

func TestDefaultTermination(t *testing.T) {
	cond := DefaultTermination(5)
	cases := []struct {
		name       string
		transcript []models.Message
		want       Reason
		stop       bool
	}{
		{"empty", nil, "", false},
		{"plain text", []models.Message{models.TextMessage("planner", "PLAN_COMPLETE")}, "", false},
		{"complete", []models.Message{models.TextMessage("reflector", "{} INVESTIGATION_COMPLETE")}, ReasonComplete, true},
		{"need more", []models.Message{models.TextMessage("reflector", "NEED_MORE_DATA: logs")}, ReasonNeedMoreData, true},
		{"both markers", []models.Message{models.TextMessage("reflector", "NEED_MORE_DATA then INVESTIGATION_COMPLETE")}, ReasonComplete, true},
		{"marker in tool result", []models.Message{{Kind: models.MessageToolResults, Content: "INVESTIGATION_COMPLETE"}}, "", false},
		{"marker in older message", []models.Message{
			models.TextMessage("reflector", "NEED_MORE_DATA"),
			models.TextMessage("planner", "plan"),
		}, "", false},
		{"ceiling", []models.Message{
			models.TextMessage("a", "1"), models.TextMessage("b", "2"), models.TextMessage("c", "3"),
			models.TextMessage("a", "4"), models.TextMessage("b", "5"),
		}, ReasonMaxMessages, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, stop := cond.Check(tc.transcript)
			if stop != tc.stop || reason != tc.want {
				t.Fatalf("Check = (%q, %v), want (%q, %v)", reason, stop, tc.want, tc.stop)
			}
		})
	}
}

func TestAnyOfOrder(t *testing.T) {
	first := ConditionFunc(func([]models.Message) (Reason, bool) { return "first", true })
	second := ConditionFunc(func([]models.Message) (Reason, bool) { return "second", true })
	if reason, _ := AnyOf(first, second).Check(nil); reason != "first" {
		t.Fatalf("reason = %q, want first", reason)
	}
	if _, stop := AnyOf().Check(nil); stop {
		t.Fatalf("empty AnyOf should never fire")
	}
}
