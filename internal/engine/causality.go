package engine

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// SignalKind distinguishes symptoms from candidate causes.
type SignalKind string

const (
	SignalChange  SignalKind = "change"
	SignalAlert   SignalKind = "alert"
	SignalAnomaly SignalKind = "anomaly"
	SignalLog     SignalKind = "log"
)

// Signal is one time-stamped observation attributed to a service.
type Signal struct {
	Service string
	Kind    SignalKind
	Time    time.Time
	Detail  string
}

// Symptom reports whether the signal describes degradation rather than a change.
func (s Signal) Symptom() bool { return s.Kind != SignalChange }

// CausalityEngine applies lightweight causality heuristics to validate root causes.
type CausalityEngine struct {
	logger *slog.Logger
}

// CausalityResult captures the outcome of a causality evaluation.
type CausalityResult struct {
	Score            float64
	Notes            []string
	SuggestedService string
	Preceding        []string
}

// NewCausalityEngine constructs a CausalityEngine.
func NewCausalityEngine(logger *slog.Logger) *CausalityEngine {
	return &CausalityEngine{logger: utils.OrDefault(logger)}
}

// Evaluate checks which upstream services showed activity before the root
// service degraded and derives a causality score in [0,1]. The suggested
// service is the one whose first signal came earliest.
func (e *CausalityEngine) Evaluate(rootService string, signals []Signal, upstream []string) CausalityResult {
	result := CausalityResult{}
	if rootService == "" || len(upstream) == 0 || len(signals) == 0 {
		return result
	}

	rootTime := firstSignal(rootService, signals, true)
	if rootTime.IsZero() {
		rootTime = earliest(signals)
	}

	totalUpstream := 0
	supporting := 0
	var suggestedAt time.Time
	for _, service := range upstream {
		if strings.EqualFold(service, rootService) {
			continue
		}
		totalUpstream++
		srcTime := firstSignal(service, signals, false)
		switch {
		case srcTime.IsZero():
			result.Notes = append(result.Notes, service+" shows no signals in window")
		case srcTime.Before(rootTime):
			supporting++
			result.Preceding = append(result.Preceding, service)
			result.Notes = append(result.Notes, service+" precedes "+rootService)
			if suggestedAt.IsZero() || srcTime.Before(suggestedAt) {
				suggestedAt = srcTime
				result.SuggestedService = service
			}
		default:
			result.Notes = append(result.Notes, service+" occurs after "+rootService)
		}
	}

	if totalUpstream == 0 {
		return result
	}
	score := float64(supporting) / float64(totalUpstream)
	if supporting == 0 {
		result.Score = 0
	} else {
		result.Score = clamp(0.4+0.6*score, 0, 1)
	}
	e.logger.Debug("causality evaluated",
		slog.String("service", rootService),
		slog.Float64("score", result.Score),
		slog.String("suggested", result.SuggestedService),
	)
	return result
}

// firstSignal returns the earliest signal time for service, optionally
// restricted to symptoms.
func firstSignal(service string, signals []Signal, symptomsOnly bool) time.Time {
	var first time.Time
	for _, s := range signals {
		if !strings.EqualFold(s.Service, service) || (symptomsOnly && !s.Symptom()) {
			continue
		}
		if first.IsZero() || s.Time.Before(first) {
			first = s.Time
		}
	}
	return first
}

func earliest(signals []Signal) time.Time {
	var first time.Time
	for _, s := range signals {
		if first.IsZero() || s.Time.Before(first) {
			first = s.Time
		}
	}
	return first
}

// SortSignals orders signals by time, then service, then kind.
func SortSignals(signals []Signal) {
	sort.SliceStable(signals, func(i, j int) bool {
		if !signals[i].Time.Equal(signals[j].Time) {
			return signals[i].Time.Before(signals[j].Time)
		}
		if signals[i].Service != signals[j].Service {
			return signals[i].Service < signals[j].Service
		}
		return signals[i].Kind < signals[j].Kind
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
