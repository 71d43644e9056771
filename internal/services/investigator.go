// Package services binds the orchestrator to the loaded dataset, the tool
// registry and persistence. The CLI, gRPC and MCP surfaces all call through it.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-investigator/internal/engine"
	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/repo"
	"github.com/miradorstack/mirador-investigator/internal/store"
	"github.com/miradorstack/mirador-investigator/internal/tools"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

var (
	// ErrAlertNotFound is returned when an alert id is not in the dataset.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrNotConfigured is returned when an optional dependency is absent.
	ErrNotConfigured = errors.New("not configured")
)

// PatternReader reads mined failure patterns.
type PatternReader interface {
	FetchPatterns(ctx context.Context, service string) ([]models.FailurePattern, error)
}

// Runner executes one investigation.
type Runner interface {
	Run(ctx context.Context, alert models.Alert) (*engine.Result, error)
}

// Deps wires an Investigator.
type Deps struct {
	Runner   Runner
	Snapshot *store.Snapshot
	Tools    *tools.Registry
	// History and Patterns are optional.
	History     repo.History
	Patterns    PatternReader
	OutputDir   string
	Parallelism int
	Logger      *slog.Logger
}

// Investigator is the service facade over investigations, tools and history.
type Investigator struct {
	logger      *slog.Logger
	runner      Runner
	snapshot    *store.Snapshot
	tools       *tools.Registry
	history     repo.History
	patterns    PatternReader
	outputDir   string
	parallelism int
	latencies   *utils.LatencyTracker
	now         func() time.Time
}

// NewInvestigator constructs the facade.
func NewInvestigator(deps Deps) (*Investigator, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("investigator requires a runner")
	}
	if deps.Parallelism <= 0 {
		deps.Parallelism = 1
	}
	return &Investigator{
		logger:      utils.OrDefault(deps.Logger),
		runner:      deps.Runner,
		snapshot:    deps.Snapshot,
		tools:       deps.Tools,
		history:     deps.History,
		patterns:    deps.Patterns,
		outputDir:   deps.OutputDir,
		parallelism: deps.Parallelism,
		latencies:   utils.NewLatencyTracker(1024),
		now:         time.Now,
	}, nil
}

// Outcome is a finished investigation and where its artifact was written.
type Outcome struct {
	*engine.Result
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// Investigate runs one session and persists its record. Persistence failures
// are logged; only an unusable alert is an error.
func (s *Investigator) Investigate(ctx context.Context, alert models.Alert) (*Outcome, error) {
	start := time.Now()
	result, err := s.runner.Run(ctx, alert)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)
	s.latencies.Observe(duration)
	if total := s.latencies.Total(); total%20 == 0 {
		summary := s.latencies.Summary()
		s.logger.Info("investigation latency",
			slog.Duration("p50", summary.P50),
			slog.Duration("p95", summary.P95),
			slog.Duration("max", summary.Max),
			slog.Int("samples", summary.Samples),
		)
	}

	out := &Outcome{Result: result}
	if s.outputDir != "" {
		path, err := repo.WriteArtifact(s.outputDir, alert.AlertID, result.Record)
		if err != nil {
			s.logger.Warn("write rca artifact failed", slog.String("alert_id", alert.AlertID), slog.Any("error", err))
		} else {
			out.ArtifactPath = path
		}
	}
	if s.history != nil {
		entry := repo.NewEntry(alert, result.Record, result.Extracted, s.now())
		if err := s.history.Save(ctx, entry); err != nil {
			s.logger.Warn("store rca history failed", slog.String("alert_id", alert.AlertID), slog.Any("error", err))
		}
	}
	return out, nil
}

// InvestigateByID looks the alert up in the dataset and investigates it.
func (s *Investigator) InvestigateByID(ctx context.Context, alertID string) (*Outcome, error) {
	alert, err := s.Alert(alertID)
	if err != nil {
		return nil, err
	}
	return s.Investigate(ctx, alert)
}

// Alert returns a dataset alert by id.
func (s *Investigator) Alert(alertID string) (models.Alert, error) {
	if s.snapshot == nil {
		return models.Alert{}, fmt.Errorf("dataset %w", ErrNotConfigured)
	}
	alert, ok := s.snapshot.Alert(alertID)
	if !ok {
		return models.Alert{}, fmt.Errorf("%w: %s", ErrAlertNotFound, alertID)
	}
	return alert, nil
}

// InvestigateAll investigates every dataset alert with bounded parallelism.
// Outcomes keep dataset order; the first failure cancels the rest.
func (s *Investigator) InvestigateAll(ctx context.Context) ([]*Outcome, error) {
	if s.snapshot == nil {
		return nil, fmt.Errorf("dataset %w", ErrNotConfigured)
	}
	alerts := s.snapshot.Alerts()
	outcomes := make([]*Outcome, len(alerts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, alert := range alerts {
		g.Go(func() error {
			out, err := s.Investigate(ctx, alert)
			if err != nil {
				return fmt.Errorf("investigate %s: %w", alert.AlertID, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// ListTools returns the registered tool definitions.
func (s *Investigator) ListTools() []models.ToolDefinition {
	if s.tools == nil {
		return nil
	}
	return s.tools.Definitions()
}

// InvokeTool runs one tool directly.
func (s *Investigator) InvokeTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if s.tools == nil {
		return nil, fmt.Errorf("tool registry %w", ErrNotConfigured)
	}
	return s.tools.Invoke(ctx, name, args)
}

// Patterns returns mined failure patterns, optionally for one service.
func (s *Investigator) Patterns(ctx context.Context, service string) ([]models.FailurePattern, error) {
	if s.patterns == nil {
		return nil, fmt.Errorf("pattern store %w", ErrNotConfigured)
	}
	return s.patterns.FetchPatterns(ctx, service)
}

// History lists stored records for a service.
func (s *Investigator) History(ctx context.Context, service string, limit int) ([]models.HistoryEntry, error) {
	if s.history == nil {
		return nil, fmt.Errorf("history %w", ErrNotConfigured)
	}
	return s.history.ListByService(ctx, service, limit)
}
