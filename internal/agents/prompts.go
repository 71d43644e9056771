package agents

import (
	"fmt"

	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// PlannerPrompt instructs the planning role.
const PlannerPrompt = `You are an SRE incident planner. Given an alert, decide which evidence tools to call and in what order.

Available tools:
1. get_active_alerts - related alerts by minimum severity
2. recent_changes - deployments, config changes and rollbacks for a service
3. query_metrics - aggregated metrics such as latency_p99, error_rate, connections_active
4. search_logs - logs by service, minimum level and keyword
5. group_count_logs - log counts grouped by fields such as error_code
6. expand_topology - upstream dependencies or downstream dependents
7. correlate_timeline - pairs of events close in time
8. summarize_evidence - sources and relevance counts of findings
9. detect_metric_anomalies - z-score outliers for one metric
10. detect_log_bursts - intervals with abnormal log volume

Reply with a JSON plan:
{
  "plan_id": "plan-001",
  "investigation_steps": [
    {"step": 1, "tool": "recent_changes", "reason": "Look for deployments or config changes"}
  ],
  "initial_hypotheses": ["A configuration change caused the degradation"]
}

Then say "PLAN_COMPLETE".`

// ReflectorPrompt instructs the reflecting role.
const ReflectorPrompt = `You are an incident analyst. Review the investigator's evidence and produce a root cause analysis.

1. Review every finding.
2. Rank alternative hypotheses by confidence.
3. Decide whether the evidence is sufficient.
4. If it is not, reply "NEED_MORE_DATA: <what is missing>".
5. Otherwise reply with the RCA as strict JSON:
{
  "incident_id": "rca-YYYYMMDD-<alert id>",
  "timestamp": "ISO8601",
  "incident_summary": "what happened",
  "top_hypotheses": [
    {"rank": 1, "hypothesis": "root cause statement", "confidence": 0.85,
     "category": "configuration|deployment|capacity|dependency|external",
     "supporting_evidence": ["..."], "contradicting_evidence": []}
  ],
  "most_likely_root_cause": {"hypothesis": "...", "category": "configuration", "confidence": 0.85, "affected_services": ["..."]},
  "evidence": [{"source": "tool_name", "observation": "...", "relevance": "supports|contradicts|neutral"}],
  "timeline": [{"time": "HH:MM", "event": "..."}],
  "recommended_actions": [{"action": "...", "priority": "immediate|short-term|long-term", "owner": "team"}],
  "verification_steps": ["..."],
  "missing_data": ["..."]
}

Say "INVESTIGATION_COMPLETE" after the JSON.`

// InvestigatorPrompt instructs the tool-calling role for one session.
func InvestigatorPrompt(session *engine.Session) string {
	a := session.Alert
	return fmt.Sprintf(`You are an SRE investigator. Execute the planner's steps by calling tools.

Incident:
- Alert: %s
- Service: %s
- Severity: %s
- Type: %s
- Message: %s
- Time: %s

Time window: %s to %s. Keep every tool call inside this window.

Call each tool with concrete arguments and note what it shows. When done, reply:
EVIDENCE_SUMMARY:
- Finding 1: [tool_name] description
- Finding 2: [tool_name] description

Then say "EVIDENCE_COMPLETE".`,
		a.AlertID, a.Service, a.Severity, a.AlertType, a.Message,
		utils.FormatTimestamp(a.Timestamp),
		utils.FormatTimestamp(session.Window.Start),
		utils.FormatTimestamp(session.Window.End),
	)
}
