package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

// Source supplies the history a mining run reads.
type Source interface {
	Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

// Scheduler runs the miner on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	miner    *Miner
	source   Source
	lookback int
	timeout  time.Duration
	logger   *slog.Logger
}

// NewScheduler registers a mining job. schedule accepts standard cron
// expressions and descriptors such as "@every 15m".
func NewScheduler(miner *Miner, source Source, schedule string, lookback int, logger *slog.Logger) (*Scheduler, error) {
	logger = utils.OrDefault(logger)
	s := &Scheduler{
		cron:     cron.New(),
		miner:    miner,
		source:   source,
		lookback: lookback,
		timeout:  time.Minute,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Warn("pattern mining failed", slog.Any("error", err))
		}
	}); err != nil {
		return nil, fmt.Errorf("parse pattern schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce mines the most recent history immediately.
func (s *Scheduler) RunOnce(ctx context.Context) ([]models.FailurePattern, error) {
	entries, err := s.source.Recent(ctx, s.lookback)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	patterns, err := s.miner.Mine(ctx, entries)
	if err != nil {
		return nil, err
	}
	s.logger.Info("pattern mining complete", slog.Int("entries", len(entries)), slog.Int("patterns", len(patterns)))
	return patterns, nil
}

// Start begins scheduling in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
