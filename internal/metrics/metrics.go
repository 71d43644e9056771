package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeExtracted labels sessions whose RCA was parsed from role output.
	OutcomeExtracted = "extracted"
	// OutcomeFallback labels sessions that produced the fallback record.
	OutcomeFallback = "fallback"
	// OutcomeError labels sessions that could not be constructed.
	OutcomeError = "error"

	// ToolSuccess labels tool invocations that returned a result.
	ToolSuccess = "success"
	// ToolError labels tool invocations that failed.
	ToolError = "error"
	// ToolCached labels tool invocations served from cache.
	ToolCached = "cached"
)

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_investigator",
			Name:      "sessions_total",
			Help:      "Total number of investigation sessions, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	sessionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_investigator",
			Name:      "session_seconds",
			Help:      "Investigation session latency in seconds.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120, 300},
		},
	)

	roleTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_investigator",
			Name:      "role_turns_total",
			Help:      "Role turns executed, partitioned by role and outcome.",
		},
		[]string{"role", "outcome"},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_investigator",
			Name:      "tool_calls_total",
			Help:      "Evidence tool invocations, partitioned by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	toolCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_investigator",
			Name:      "tool_call_seconds",
			Help:      "Evidence tool latency in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"tool"},
	)

	terminationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_investigator",
			Name:      "terminations_total",
			Help:      "Orchestration loop terminations, partitioned by reason.",
		},
		[]string{"reason"},
	)
)

// Register attaches investigator collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		sessionsTotal,
		sessionDurationSeconds,
		roleTurnsTotal,
		toolCallsTotal,
		toolCallSeconds,
		terminationsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveSession records a session duration and outcome label.
func ObserveSession(duration time.Duration, outcome string) {
	switch outcome {
	case OutcomeExtracted, OutcomeFallback:
	default:
		outcome = OutcomeError
	}
	sessionsTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	sessionDurationSeconds.Observe(duration.Seconds())
}

// ObserveTurn counts one role turn.
func ObserveTurn(role string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	roleTurnsTotal.WithLabelValues(role, outcome).Inc()
}

// ObserveToolCall records a tool invocation.
func ObserveToolCall(tool, outcome string, duration time.Duration) {
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	if outcome != ToolCached {
		toolCallSeconds.WithLabelValues(tool).Observe(duration.Seconds())
	}
}

// ObserveTermination counts a loop termination by reason.
func ObserveTermination(reason string) {
	terminationsTotal.WithLabelValues(reason).Inc()
}
