package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/tools"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Hypothesis categories.
const (
	CategoryConfiguration = "configuration"
	CategoryDeployment    = "deployment"
	CategoryCapacity      = "capacity"
	CategoryDependency    = "dependency"
	CategoryExternal      = "external"
)

const (
	maxHypotheses      = 3
	maxTimelineEntries = 12
	changeLeadWindow   = 30 * time.Minute
)

// SimilarIncidents recalls earlier RCAs for the same service and category.
type SimilarIncidents interface {
	Similar(ctx context.Context, service, category string, limit int) ([]models.HistoryEntry, error)
}

// Pipeline turns observations gathered during a session into an RCA record:
// signals are ordered, upstream causality is scored, change candidates are
// ranked and recommendations come from the rule pack and incident history.
type Pipeline struct {
	logger    *slog.Logger
	rules     *RuleEngine
	causality *CausalityEngine
	history   SimilarIncidents
	now       func() time.Time
}

// NewPipeline constructs an analysis pipeline. rules and history may be nil.
func NewPipeline(logger *slog.Logger, rules *RuleEngine, causality *CausalityEngine, history SimilarIncidents) *Pipeline {
	logger = utils.OrDefault(logger)
	if causality == nil {
		causality = NewCausalityEngine(logger)
	}
	return &Pipeline{
		logger:    logger,
		rules:     rules,
		causality: causality,
		history:   history,
		now:       time.Now,
	}
}

// Analysis is the pipeline verdict for one session.
type Analysis struct {
	Record    models.RCARecord
	Causality CausalityResult
	// Sufficient is false when no hypothesis could be formed.
	Sufficient bool
	Missing    []string
}

type candidate struct {
	service string
	ranked  models.RankedHypothesis
	change  *models.ChangeEvent
}

// Analyze builds the RCA record for alert from obs.
func (p *Pipeline) Analyze(ctx context.Context, alert models.Alert, window models.TimeRange, obs Observations) Analysis {
	signals := obs.Signals()
	onset := firstSignal(alert.Service, signals, true)
	if onset.IsZero() || onset.After(alert.Timestamp) {
		onset = alert.Timestamp
	}
	upstream := obs.Upstream[alert.Service]
	causality := p.causality.Evaluate(alert.Service, signals, upstream)

	candidates := p.changeCandidates(alert, window, onset, upstream, causality, obs)
	candidates = append(candidates, p.signalCandidates(alert, candidates, causality, obs)...)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ranked.Confidence > candidates[j].ranked.Confidence
	})
	if len(candidates) > maxHypotheses {
		candidates = candidates[:maxHypotheses]
	}

	ranked := make([]models.RankedHypothesis, 0, len(candidates))
	for i := range candidates {
		candidates[i].ranked.Rank = i + 1
		ranked = append(ranked, candidates[i].ranked)
	}

	missing := missingData(alert, obs)
	record := models.RCARecord{
		IncidentID:         fmt.Sprintf("rca-%s-%s", alert.Timestamp.UTC().Format("20060102"), alert.AlertID),
		Timestamp:          utils.FormatTimestamp(p.now()),
		TopHypotheses:      ranked,
		Evidence:           evidenceRefs(obs, causality),
		Timeline:           timeline(signals),
		VerificationSteps:  []string{},
		RecommendedActions: []models.RecommendedAction{},
		MissingData:        missing,
	}

	if len(candidates) == 0 {
		record.IncidentSummary = fmt.Sprintf("%s %s alert on %s with no conclusive cause in the observed window", alert.Severity, alert.AlertType, alert.Service)
		record.MostLikelyRootCause = models.RootCause{
			Hypothesis:       fmt.Sprintf("No conclusive root cause for %s", alert.Service),
			Category:         models.CategoryUnknown,
			AffectedServices: []string{alert.Service},
		}
		return Analysis{Record: record, Causality: causality, Missing: missing}
	}

	top := candidates[0]
	affected := appendUnique([]string{alert.Service}, top.service)
	record.IncidentSummary = fmt.Sprintf("%s %s alert on %s: %s", alert.Severity, alert.AlertType, alert.Service, top.ranked.Hypothesis)
	record.MostLikelyRootCause = models.RootCause{
		Hypothesis:       top.ranked.Hypothesis,
		Category:         top.ranked.Category,
		Confidence:       top.ranked.Confidence,
		AffectedServices: affected,
	}
	record.RecommendedActions, record.VerificationSteps = p.recommend(ctx, alert, top, affected, obs)

	p.logger.Debug("analysis complete",
		slog.String("alert_id", alert.AlertID),
		slog.String("category", top.ranked.Category),
		slog.Float64("confidence", top.ranked.Confidence),
		slog.Float64("causality", causality.Score),
	)
	return Analysis{Record: record, Causality: causality, Sufficient: true, Missing: missing}
}

// changeCandidates scores every change on the alerting service or its
// upstream dependencies that landed before symptom onset.
func (p *Pipeline) changeCandidates(alert models.Alert, window models.TimeRange, onset time.Time, upstream []string, causality CausalityResult, obs Observations) []candidate {
	relevant := appendUnique([]string{alert.Service}, upstream...)
	var out []candidate
	for i := range obs.Changes {
		change := obs.Changes[i]
		if !containsFold(relevant, change.Service) || !window.Contains(change.Timestamp) || change.Timestamp.After(onset) {
			continue
		}
		lead := onset.Sub(change.Timestamp)
		confidence := 0.45
		switch {
		case lead <= changeLeadWindow:
			confidence += 0.2
		case lead <= 2*changeLeadWindow:
			confidence += 0.1
		}
		supporting := []string{
			fmt.Sprintf("%s at %s", changeDetail(change), clock(change.Timestamp)),
			fmt.Sprintf("%s symptoms began at %s, %.0f minutes later", alert.Service, clock(onset), lead.Minutes()),
		}
		var contradicting []string
		if strings.EqualFold(change.Service, causality.SuggestedService) {
			confidence += 0.15
			supporting = append(supporting, change.Service+" activity precedes "+alert.Service)
		} else if causality.SuggestedService != "" {
			contradicting = append(contradicting, causality.SuggestedService+" activity precedes "+alert.Service)
		}
		for _, c := range obs.Correlations {
			if mentions(c.EventA, change) || mentions(c.EventB, change) {
				supporting = append(supporting, fmt.Sprintf("correlated event within %.0f minutes", c.LagMinutes))
				break
			}
		}

		category := CategoryDeployment
		verb := "Deployment"
		if change.Kind == models.ChangeConfig {
			category, verb = CategoryConfiguration, "Configuration change"
		} else if change.Kind == models.ChangeRollback {
			verb = "Rollback"
		}
		statement := fmt.Sprintf("%s on %s at %s", verb, change.Service, clock(change.Timestamp))
		if change.Description != "" {
			statement += " (" + change.Description + ")"
		}
		statement += fmt.Sprintf(" caused %s %s degradation", alert.Service, alert.AlertType)

		out = append(out, candidate{
			service: change.Service,
			change:  &obs.Changes[i],
			ranked: models.RankedHypothesis{
				Hypothesis:            statement,
				Confidence:            utils.Round2(clamp(confidence, 0, 0.95)),
				Category:              category,
				SupportingEvidence:    supporting,
				ContradictingEvidence: nonNil(contradicting),
			},
		})
	}
	return out
}

// signalCandidates adds dependency and capacity explanations not already
// covered by a change.
func (p *Pipeline) signalCandidates(alert models.Alert, changes []candidate, causality CausalityResult, obs Observations) []candidate {
	var out []candidate
	suggested := causality.SuggestedService
	if suggested != "" && !candidateFor(changes, suggested) {
		out = append(out, candidate{
			service: suggested,
			ranked: models.RankedHypothesis{
				Hypothesis:            fmt.Sprintf("Upstream dependency %s degraded before %s", suggested, alert.Service),
				Confidence:            utils.Round2(0.3 + 0.4*causality.Score),
				Category:              CategoryDependency,
				SupportingEvidence:    nonNil(causality.Notes),
				ContradictingEvidence: []string{},
			},
		})
	}

	for _, r := range obs.MetricAnomalies {
		if !strings.EqualFold(r.Service, alert.Service) || len(r.Anomalies) == 0 || len(changes) > 0 {
			continue
		}
		peak := r.Anomalies[0]
		for _, a := range r.Anomalies {
			if a.Value > peak.Value {
				peak = a
			}
		}
		out = append(out, candidate{
			service: alert.Service,
			ranked: models.RankedHypothesis{
				Hypothesis: fmt.Sprintf("Capacity saturation on %s: %s peaked at %.2f against a %.2f baseline", alert.Service, r.Metric, peak.Value, r.Baseline.Mean),
				Confidence: 0.35,
				Category:   CategoryCapacity,
				SupportingEvidence: []string{
					fmt.Sprintf("%d anomalous %s samples", r.Count, r.Metric),
				},
				ContradictingEvidence: []string{"no change events precede the degradation"},
			},
		})
		break
	}
	return out
}

func (p *Pipeline) recommend(ctx context.Context, alert models.Alert, top candidate, affected []string, obs Observations) ([]models.RecommendedAction, []string) {
	actions := []models.RecommendedAction{primaryAction(top)}
	var verification []string

	evidence := []string{top.ranked.Hypothesis}
	evidence = append(evidence, top.ranked.SupportingEvidence...)
	for _, l := range obs.Logs {
		evidence = append(evidence, l.Message)
	}
	for _, g := range obs.LogGroups {
		for key := range g.Grouped {
			evidence = append(evidence, key)
		}
	}
	rec := p.rules.Recommend(RuleInput{
		Alert:    alert,
		Category: top.ranked.Category,
		Services: affected,
		Evidence: evidence,
	})
	actions = appendActions(actions, rec.Actions...)
	verification = appendUnique(verification, rec.Verification...)

	if p.history != nil {
		entries, err := p.history.Similar(ctx, top.service, top.ranked.Category, 3)
		if err != nil {
			p.logger.Warn("history recall failed", slog.Any("error", err))
		}
		for _, entry := range entries {
			if entry.Degraded || entry.AlertID == alert.AlertID {
				continue
			}
			actions = appendActions(actions, entry.Record.RecommendedActions...)
		}
	}

	for _, r := range obs.MetricAnomalies {
		if r.Count > 0 {
			verification = appendUnique(verification,
				fmt.Sprintf("Confirm %s on %s returns to its %.2f baseline", r.Metric, r.Service, r.Baseline.Mean))
		}
	}
	verification = appendUnique(verification, fmt.Sprintf("Confirm the %s alert on %s resolves", alert.AlertType, alert.Service))
	return actions, verification
}

func primaryAction(top candidate) models.RecommendedAction {
	owner := DefaultOwner
	if top.change != nil && top.change.Author != "" {
		owner = top.change.Author
	}
	switch top.ranked.Category {
	case CategoryConfiguration:
		desc := "the configuration change"
		if top.change != nil && top.change.Description != "" {
			desc = top.change.Description
		}
		return models.RecommendedAction{Action: fmt.Sprintf("Revert %s on %s", desc, top.service), Priority: "immediate", Owner: owner}
	case CategoryDeployment:
		version := "the latest release"
		if top.change != nil && top.change.Version != "" {
			version = top.change.Version
		}
		return models.RecommendedAction{Action: fmt.Sprintf("Roll back %s from %s", top.service, version), Priority: "immediate", Owner: owner}
	case CategoryDependency:
		return models.RecommendedAction{Action: fmt.Sprintf("Investigate %s health and fail over if degraded", top.service), Priority: "immediate", Owner: owner}
	default:
		return models.RecommendedAction{Action: fmt.Sprintf("Scale %s and review resource limits", top.service), Priority: DefaultPriority, Owner: owner}
	}
}

func missingData(alert models.Alert, obs Observations) []string {
	missing := []string{}
	if obs.Called[tools.ToolRecentChanges] == 0 {
		missing = append(missing, "Change history for "+alert.Service)
	}
	if obs.Called[tools.ToolQueryMetrics] == 0 && obs.Called[tools.ToolMetricAnomalies] == 0 {
		missing = append(missing, "Metrics for "+alert.Service)
	}
	if obs.Called[tools.ToolSearchLogs] == 0 && obs.Called[tools.ToolLogBursts] == 0 {
		missing = append(missing, "Logs for "+alert.Service)
	}
	if _, ok := obs.Upstream[alert.Service]; !ok {
		missing = append(missing, "Dependency topology for "+alert.Service)
	}
	return missing
}

func evidenceRefs(obs Observations, causality CausalityResult) []models.EvidenceRef {
	refs := []models.EvidenceRef{}
	for _, c := range obs.Changes {
		relevance := models.RelevanceNeutral
		if containsFold(causality.Preceding, c.Service) {
			relevance = models.RelevanceSupports
		}
		refs = append(refs, models.EvidenceRef{Source: tools.ToolRecentChanges, Observation: changeDetail(c) + " at " + clock(c.Timestamp), Relevance: string(relevance)})
	}
	for _, r := range obs.MetricAnomalies {
		if r.Count == 0 {
			continue
		}
		refs = append(refs, models.EvidenceRef{
			Source:      tools.ToolMetricAnomalies,
			Observation: fmt.Sprintf("%s %s: %d anomalous samples from %s", r.Service, r.Metric, r.Count, clock(r.Anomalies[0].Timestamp)),
			Relevance:   string(models.RelevanceSupports),
		})
	}
	for _, g := range obs.LogGroups {
		if key, count := dominantGroup(g.Grouped); key != "" {
			refs = append(refs, models.EvidenceRef{
				Source:      tools.ToolGroupCountLogs,
				Observation: fmt.Sprintf("%s accounts for %d of %d entries", key, count, g.Total),
				Relevance:   string(models.RelevanceSupports),
			})
		}
	}
	for _, r := range obs.LogBursts {
		if r.Count > 0 {
			refs = append(refs, models.EvidenceRef{
				Source:      tools.ToolLogBursts,
				Observation: fmt.Sprintf("%s: %d %s+ bursts starting %s", r.Service, r.Count, r.MinLevel, clock(r.Bursts[0].Timestamp)),
				Relevance:   string(models.RelevanceSupports),
			})
		}
	}
	for _, note := range causality.Notes {
		relevance := models.RelevanceNeutral
		if strings.Contains(note, " precedes ") {
			relevance = models.RelevanceSupports
		}
		refs = append(refs, models.EvidenceRef{Source: tools.ToolExpandTopology, Observation: note, Relevance: string(relevance)})
	}
	return refs
}

func timeline(signals []Signal) []models.TimelineEntry {
	entries := []models.TimelineEntry{}
	for _, s := range signals {
		if len(entries) == maxTimelineEntries {
			break
		}
		entries = append(entries, models.TimelineEntry{Time: clock(s.Time), Event: s.Detail})
	}
	return entries
}

func dominantGroup(groups map[string]int) (string, int) {
	var best string
	count := 0
	for key, n := range groups {
		if n > count || (n == count && key < best) {
			best, count = key, n
		}
	}
	return best, count
}

func appendActions(existing []models.RecommendedAction, additions ...models.RecommendedAction) []models.RecommendedAction {
	for _, a := range additions {
		dup := false
		for _, e := range existing {
			if strings.EqualFold(e.Action, a.Action) {
				dup = true
				break
			}
		}
		if !dup && a.Action != "" {
			existing = append(existing, a)
		}
	}
	return existing
}

func candidateFor(candidates []candidate, service string) bool {
	for _, c := range candidates {
		if strings.EqualFold(c.service, service) {
			return true
		}
	}
	return false
}

func mentions(event map[string]any, change models.ChangeEvent) bool {
	if id, ok := event["change_id"].(string); ok && id != "" {
		return id == change.ChangeID
	}
	service, _ := event["service"].(string)
	ts, _ := event["timestamp"].(string)
	return service == change.Service && ts == utils.FormatTimestamp(change.Timestamp)
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func clock(t time.Time) string {
	return t.UTC().Format("15:04")
}
