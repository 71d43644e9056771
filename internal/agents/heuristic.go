package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/tools"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Metrics the heuristic investigator queries for every alert.
var investigatedMetrics = []string{"latency_p99", "error_rate", "cpu_percent", "connections_active"}

const (
	anomalyThreshold  = 1.0
	correlationLagMin = 30
	burstBucketMin    = 10
)

// NewHeuristicRoles returns deterministic roles that need no model endpoint.
func NewHeuristicRoles(pipeline *engine.Pipeline, logger *slog.Logger) engine.Roles {
	return engine.Roles{
		Planner:      HeuristicPlanner{},
		Investigator: HeuristicInvestigator{},
		Reflector:    &HeuristicReflector{pipeline: pipeline, logger: utils.OrDefault(logger)},
	}
}

// HeuristicPlanner emits a fixed evidence plan for the alert.
type HeuristicPlanner struct{}

type planStep struct {
	Step   int    `json:"step"`
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

type plan struct {
	PlanID             string     `json:"plan_id"`
	Focus              string     `json:"focus,omitempty"`
	InvestigationSteps []planStep `json:"investigation_steps"`
	InitialHypotheses  []string   `json:"initial_hypotheses"`
}

func (HeuristicPlanner) Name() string { return PlannerName }

func (HeuristicPlanner) Act(_ context.Context, turn engine.Turn) (models.Message, error) {
	alert := turn.Session.Alert
	p := plan{
		PlanID: fmt.Sprintf("plan-%03d", turn.Session.Iteration+1),
		InvestigationSteps: []planStep{
			{Tool: tools.ToolActiveAlerts, Reason: "Find related alerts in the window"},
			{Tool: tools.ToolRecentChanges, Reason: "Look for deployments or config changes on " + alert.Service},
			{Tool: tools.ToolExpandTopology, Reason: "Identify upstream dependencies and downstream dependents"},
			{Tool: tools.ToolQueryMetrics, Reason: "Check latency, error rate and saturation metrics"},
			{Tool: tools.ToolSearchLogs, Reason: "Read warnings and errors around the alert"},
			{Tool: tools.ToolLogBursts, Reason: "Locate when error volume spiked"},
			{Tool: tools.ToolMetricAnomalies, Reason: "Score metric outliers against the window baseline"},
			{Tool: tools.ToolCorrelateTimeline, Reason: "Pair changes with the first errors"},
		},
		InitialHypotheses: []string{
			fmt.Sprintf("A recent change on %s or an upstream dependency caused the %s alert", alert.Service, alert.AlertType),
			fmt.Sprintf("An upstream dependency of %s is degraded", alert.Service),
			fmt.Sprintf("%s is saturated by load", alert.Service),
		},
	}
	if turn.Session.Iteration > 0 {
		p.Focus = lastRequest(turn.Transcript)
		p.InvestigationSteps = append(p.InvestigationSteps, planStep{
			Tool:   tools.ToolRecentChanges,
			Reason: "Widen the change search to every dependency within two hops",
		})
	}
	for i := range p.InvestigationSteps {
		p.InvestigationSteps[i].Step = i + 1
	}
	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return models.Message{}, err
	}
	return models.TextMessage(PlannerName, string(body)+"\n\n"+engine.MarkerPlan), nil
}

// lastRequest returns what the most recent NEED_MORE_DATA message asked for.
func lastRequest(transcript []models.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Kind == models.MessageText && strings.Contains(msg.Content, engine.MarkerNeedMoreData) {
			return engine.RequestedData(msg.Content)
		}
	}
	return ""
}

// HeuristicInvestigator calls evidence tools in two rounds, then summarises
// what the results show. The second round is derived from the first.
type HeuristicInvestigator struct{}

func (HeuristicInvestigator) Name() string { return InvestigatorName }

func (h HeuristicInvestigator) Act(_ context.Context, turn engine.Turn) (models.Message, error) {
	var calls []models.ToolCall
	switch turn.Round {
	case 0:
		calls = h.survey(turn.Session)
	case 1:
		calls = h.followUp(turn.Session, engine.CollectObservations(turn.Transcript))
	}
	if len(calls) > 0 {
		return models.ToolCallMessage(InvestigatorName, calls...), nil
	}
	return models.TextMessage(InvestigatorName, evidenceSummary(turn.Session, engine.CollectObservations(turn.Transcript))), nil
}

func windowArgs(session *engine.Session, extra map[string]any) map[string]any {
	args := map[string]any{
		"start_ts": utils.FormatTimestamp(session.Window.Start),
		"end_ts":   utils.FormatTimestamp(session.Window.End),
	}
	for k, v := range extra {
		args[k] = v
	}
	return args
}

func (HeuristicInvestigator) survey(session *engine.Session) []models.ToolCall {
	svc := session.Alert.Service
	depth := 1 + session.Iteration
	return []models.ToolCall{
		{Name: tools.ToolActiveAlerts, Args: windowArgs(session, map[string]any{"severity_min": string(models.SeverityMedium)})},
		{Name: tools.ToolRecentChanges, Args: windowArgs(session, map[string]any{"service": svc})},
		{Name: tools.ToolExpandTopology, Args: map[string]any{"service": svc, "direction": toolkit.Upstream, "depth": depth}},
		{Name: tools.ToolExpandTopology, Args: map[string]any{"service": svc, "direction": toolkit.Downstream, "depth": 1}},
		{Name: tools.ToolQueryMetrics, Args: windowArgs(session, map[string]any{"service": svc, "metric_names": investigatedMetrics, "agg": toolkit.AggMax})},
		{Name: tools.ToolSearchLogs, Args: windowArgs(session, map[string]any{"service": svc, "level_min": string(models.LevelWarn), "limit": toolkit.DefaultLogLimit})},
		{Name: tools.ToolLogBursts, Args: windowArgs(session, map[string]any{"service": svc, "level_min": string(models.LevelError), "bucket_minutes": burstBucketMin})},
	}
}

func (HeuristicInvestigator) followUp(session *engine.Session, obs engine.Observations) []models.ToolCall {
	svc := session.Alert.Service
	var calls []models.ToolCall
	for _, up := range obs.Upstream[svc] {
		calls = append(calls,
			models.ToolCall{Name: tools.ToolRecentChanges, Args: windowArgs(session, map[string]any{"service": up})},
			models.ToolCall{Name: tools.ToolSearchLogs, Args: windowArgs(session, map[string]any{"service": up, "level_min": string(models.LevelWarn), "limit": 20})},
		)
	}

	var present []string
	for _, m := range obs.Metrics {
		if m.Service != svc {
			continue
		}
		for name := range m.Metrics {
			present = append(present, name)
		}
	}
	sort.Strings(present)
	for _, name := range present {
		calls = append(calls, models.ToolCall{
			Name: tools.ToolMetricAnomalies,
			Args: windowArgs(session, map[string]any{"service": svc, "metric_name": name, "threshold": anomalyThreshold}),
		})
	}

	var own, errs []models.LogEntry
	for _, l := range obs.Logs {
		if l.Service == svc {
			own = append(own, l)
		}
		if l.Level == models.LevelError {
			errs = append(errs, l)
		}
	}
	if len(own) > 0 {
		calls = append(calls, models.ToolCall{
			Name: tools.ToolGroupCountLogs,
			Args: map[string]any{"logs": own, "by": []string{"error_code"}},
		})
	}
	if len(obs.Changes) > 0 && len(errs) > 0 {
		a, errA := toolkit.ToEvents(obs.Changes)
		b, errB := toolkit.ToEvents(errs)
		if errA == nil && errB == nil {
			calls = append(calls, models.ToolCall{
				Name: tools.ToolCorrelateTimeline,
				Args: map[string]any{"events_a": a, "events_b": b, "max_lag_minutes": correlationLagMin},
			})
		}
	}
	if items := session.EvidenceSnapshot(); len(items) > 0 {
		calls = append(calls, models.ToolCall{
			Name: tools.ToolSummarizeEvidence,
			Args: map[string]any{"evidence_items": items},
		})
	}
	return calls
}

func evidenceSummary(session *engine.Session, obs engine.Observations) string {
	var findings []string
	add := func(tool, format string, args ...any) {
		findings = append(findings, fmt.Sprintf("[%s] %s", tool, fmt.Sprintf(format, args...)))
	}

	for _, a := range obs.Alerts {
		if a.AlertID == session.Alert.AlertID {
			continue
		}
		add(tools.ToolActiveAlerts, "%s alert %s on %s at %s: %s", a.Severity, a.AlertID, a.Service, hhmm(a.Timestamp), a.Message)
	}
	for _, c := range obs.Changes {
		desc := c.Description
		if desc == "" {
			desc = c.Version
		}
		add(tools.ToolRecentChanges, "%s %s change at %s by %s: %s", c.Service, c.Kind, hhmm(c.Timestamp), orUnknown(c.Author), desc)
	}
	if up := obs.Upstream[session.Alert.Service]; len(up) > 0 {
		add(tools.ToolExpandTopology, "%s depends on %s", session.Alert.Service, strings.Join(up, ", "))
	}
	for _, r := range obs.MetricAnomalies {
		if r.Count == 0 {
			continue
		}
		first := r.Anomalies[0]
		add(tools.ToolMetricAnomalies, "%s %s reached %.2f at %s against a baseline of %.2f (%d anomalous samples)",
			r.Service, r.Metric, first.Value, hhmm(first.Timestamp), r.Baseline.Mean, r.Count)
	}
	for _, r := range obs.LogBursts {
		for _, b := range r.Bursts {
			add(tools.ToolLogBursts, "%d %s+ entries on %s in the interval starting %s", b.Count, r.MinLevel, r.Service, hhmm(b.Timestamp))
		}
	}
	for _, g := range obs.LogGroups {
		key, count := dominant(g.Grouped)
		if count > 0 {
			add(tools.ToolGroupCountLogs, "%s accounts for %d of %d log entries", key, count, g.Total)
		}
	}
	if n := len(obs.Correlations); n > 0 {
		add(tools.ToolCorrelateTimeline, "%d change and error pairs within %d minutes", n, correlationLagMin)
	}
	if len(findings) == 0 {
		findings = append(findings, fmt.Sprintf("[%s] No evidence found for %s in the window", InvestigatorName, session.Alert.Service))
	}

	var b strings.Builder
	b.WriteString(engine.EvidenceSummaryHeader + "\n")
	for i, f := range findings {
		fmt.Fprintf(&b, "- Finding %d: %s\n", i+1, f)
	}
	b.WriteString("\n" + engine.MarkerEvidence)
	return b.String()
}

func dominant(groups map[string]int) (string, int) {
	var key string
	var count int
	for k, v := range groups {
		if v > count || (v == count && k < key) {
			key, count = k, v
		}
	}
	return key, count
}

func hhmm(t time.Time) string { return t.UTC().Format("15:04") }

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// HeuristicReflector runs the analysis pipeline over collected observations
// and either requests more data or publishes the record.
type HeuristicReflector struct {
	pipeline *engine.Pipeline
	logger   *slog.Logger
}

func (*HeuristicReflector) Name() string { return ReflectorName }

func (h *HeuristicReflector) Act(ctx context.Context, turn engine.Turn) (models.Message, error) {
	session := turn.Session
	analysis := h.pipeline.Analyze(ctx, session.Alert, session.Window, engine.CollectObservations(turn.Transcript))
	if !analysis.Sufficient && session.ShouldContinue() {
		missing := analysis.Missing
		if len(missing) == 0 {
			missing = []string{"signals that explain the " + session.Alert.AlertType + " alert"}
		}
		h.logger.Debug("evidence insufficient", slog.String("alert_id", session.Alert.AlertID), slog.Any("missing", missing))
		return models.TextMessage(ReflectorName, fmt.Sprintf("No hypothesis is supported by the evidence so far.\n%s: %s",
			engine.MarkerNeedMoreData, strings.Join(missing, "; "))), nil
	}

	body, err := json.MarshalIndent(analysis.Record, "", "  ")
	if err != nil {
		return models.Message{}, fmt.Errorf("encode record: %w", err)
	}
	return models.TextMessage(ReflectorName, "```json\n"+string(body)+"\n```\n\n"+engine.MarkerComplete), nil
}
