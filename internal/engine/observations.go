package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/toolkit"
	"github.com/miradorstack/mirador-investigator/internal/tools"
)

// Observations is the structured view of every successful tool result in a
// transcript.
type Observations struct {
	Called          map[string]int
	Alerts          []models.Alert
	Changes         []models.ChangeEvent
	Metrics         []toolkit.MetricsResult
	MetricAnomalies []toolkit.MetricAnomalyResult
	Logs            []models.LogEntry
	LogGroups       []toolkit.GroupCountResult
	LogBursts       []toolkit.LogBurstResult
	Correlations    []toolkit.Correlation
	// Upstream and Downstream are keyed by the expanded service.
	Upstream   map[string][]string
	Downstream map[string][]string
	Unknown    []string
}

type topologyPayload struct {
	Service      string   `json:"service"`
	Direction    string   `json:"direction"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
	Error        string   `json:"error"`
}

// CollectObservations decodes tool results in transcript order. Results that
// fail to decode are skipped; duplicates across calls are merged.
func CollectObservations(transcript []models.Message) Observations {
	obs := Observations{
		Called:     map[string]int{},
		Upstream:   map[string][]string{},
		Downstream: map[string][]string{},
	}
	seenAlerts := map[string]struct{}{}
	seenChanges := map[string]struct{}{}
	seenLogs := map[string]struct{}{}

	for _, msg := range transcript {
		if msg.Kind != models.MessageToolResults {
			continue
		}
		for _, res := range msg.ToolResults {
			if res.IsError {
				continue
			}
			data := []byte(res.Content)
			switch res.Name {
			case tools.ToolActiveAlerts:
				var out toolkit.AlertsResult
				if json.Unmarshal(data, &out) != nil {
					continue
				}
				for _, a := range out.Alerts {
					if _, ok := seenAlerts[a.AlertID]; ok {
						continue
					}
					seenAlerts[a.AlertID] = struct{}{}
					obs.Alerts = append(obs.Alerts, a)
				}
			case tools.ToolRecentChanges:
				var out toolkit.ChangesResult
				if json.Unmarshal(data, &out) != nil {
					continue
				}
				for _, c := range out.Changes {
					key := fmt.Sprintf("%s|%s|%s", c.ChangeID, c.Service, c.Timestamp.Format(time.RFC3339Nano))
					if _, ok := seenChanges[key]; ok {
						continue
					}
					seenChanges[key] = struct{}{}
					obs.Changes = append(obs.Changes, c)
				}
			case tools.ToolQueryMetrics:
				var out toolkit.MetricsResult
				if json.Unmarshal(data, &out) != nil {
					continue
				}
				obs.Metrics = append(obs.Metrics, out)
			case tools.ToolMetricAnomalies:
				var out toolkit.MetricAnomalyResult
				if json.Unmarshal(data, &out) != nil {
					continue
				}
				obs.MetricAnomalies = append(obs.MetricAnomalies, out)
			case tools.ToolSearchLogs:
				var out toolkit.LogsResult
				if json.Unmarshal(data, &out) != nil {
					continue
				}
				for _, l := range out.Logs {
					key := fmt.Sprintf("%s|%s|%s", l.Service, l.Timestamp.Format(time.RFC3339Nano), l.Message)
					if _, ok := seenLogs[key]; ok {
						continue
					}
					seenLogs[key] = struct{}{}
					obs.Logs = append(obs.Logs, l)
				}
			case tools.ToolGroupCountLogs:
				var out toolkit.GroupCountResult
				if json.Unmarshal(data, &out) != nil {
					continue
				}
				obs.LogGroups = append(obs.LogGroups, out)
			case tools.ToolLogBursts:
				var out toolkit.LogBurstResult
				if json.Unmarshal(data, &out) != nil {
					continue
				}
				obs.LogBursts = append(obs.LogBursts, out)
			case tools.ToolCorrelateTimeline:
				var out toolkit.CorrelationResult
				if json.Unmarshal(data, &out) != nil {
					continue
				}
				obs.Correlations = append(obs.Correlations, out.Correlations...)
			case tools.ToolExpandTopology:
				var out topologyPayload
				if json.Unmarshal(data, &out) != nil {
					continue
				}
				if out.Error != "" {
					obs.Unknown = append(obs.Unknown, out.Error)
					continue
				}
				if out.Direction == toolkit.Downstream {
					obs.Downstream[out.Service] = appendUnique(obs.Downstream[out.Service], out.Dependents...)
				} else {
					obs.Upstream[out.Service] = appendUnique(obs.Upstream[out.Service], out.Dependencies...)
				}
			default:
				continue
			}
			obs.Called[res.Name]++
		}
	}
	return obs
}

// Signals flattens observations into time-ordered signals. Only ERROR logs
// and anomalous samples count as symptoms.
func (o Observations) Signals() []Signal {
	var signals []Signal
	for _, c := range o.Changes {
		signals = append(signals, Signal{
			Service: c.Service,
			Kind:    SignalChange,
			Time:    c.Timestamp,
			Detail:  changeDetail(c),
		})
	}
	for _, a := range o.Alerts {
		signals = append(signals, Signal{
			Service: a.Service,
			Kind:    SignalAlert,
			Time:    a.Timestamp,
			Detail:  fmt.Sprintf("%s alert %s on %s: %s", a.Severity, a.AlertID, a.Service, a.Message),
		})
	}
	for _, r := range o.MetricAnomalies {
		if len(r.Anomalies) == 0 {
			continue
		}
		first := r.Anomalies[0]
		signals = append(signals, Signal{
			Service: r.Service,
			Kind:    SignalAnomaly,
			Time:    first.Timestamp,
			Detail:  fmt.Sprintf("%s %s anomalous at %.2f (z=%.2f, baseline %.2f)", r.Service, r.Metric, first.Value, first.Score, r.Baseline.Mean),
		})
	}
	for _, r := range o.LogBursts {
		for _, b := range r.Bursts {
			signals = append(signals, Signal{
				Service: r.Service,
				Kind:    SignalAnomaly,
				Time:    b.Timestamp,
				Detail:  fmt.Sprintf("%s %s+ log burst: %d entries", r.Service, r.MinLevel, b.Count),
			})
		}
	}
	firstError := map[string]bool{}
	for _, l := range o.Logs {
		if l.Level != models.LevelError || firstError[l.Service] {
			continue
		}
		firstError[l.Service] = true
		signals = append(signals, Signal{
			Service: l.Service,
			Kind:    SignalLog,
			Time:    l.Timestamp,
			Detail:  fmt.Sprintf("first ERROR on %s: %s", l.Service, l.Message),
		})
	}
	SortSignals(signals)
	return signals
}

func changeDetail(c models.ChangeEvent) string {
	detail := fmt.Sprintf("%s %s change", c.Service, c.Kind)
	if c.Version != "" {
		detail += " " + c.Version
	}
	if c.Description != "" {
		detail += ": " + c.Description
	}
	return detail
}
