// Package patterns mines recurring root-cause signatures from RCA history.
package patterns

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
	"github.com/miradorstack/mirador-investigator/internal/utils"
)

const maxExamples = 3

// Store abstracts persistence for mined patterns.
type Store interface {
	StorePatterns(ctx context.Context, patterns []models.FailurePattern) error
}

// Miner mines frequency-based failure patterns from RCA history.
type Miner struct {
	store    Store
	minCount int
	logger   *slog.Logger
}

// NewMiner constructs a Miner; store may be nil for dry runs. Pairs seen
// fewer than minCount times are dropped.
func NewMiner(logger *slog.Logger, store Store, minCount int) *Miner {
	if minCount < 1 {
		minCount = 1
	}
	return &Miner{store: store, minCount: minCount, logger: utils.OrDefault(logger)}
}

// Mine groups non-degraded entries by (service, root-cause category) and
// returns patterns ordered by prevalence.
func (m *Miner) Mine(ctx context.Context, entries []models.HistoryEntry) ([]models.FailurePattern, error) {
	stats := make(map[string]*aggregate)
	var considered int
	for _, entry := range entries {
		if entry.Degraded || entry.Category == "" || entry.Category == models.CategoryUnknown {
			continue
		}
		considered++
		key := entry.Service + "/" + entry.Category
		agg, ok := stats[key]
		if !ok {
			agg = &aggregate{service: entry.Service, category: entry.Category}
			stats[key] = agg
		}
		agg.count++
		agg.confidence += entry.Record.MostLikelyRootCause.Confidence
		if entry.CreatedAt.After(agg.lastSeen) {
			agg.lastSeen = entry.CreatedAt
		}
		if len(agg.examples) < maxExamples {
			agg.examples = append(agg.examples, entry.AlertID)
		}
	}
	if considered == 0 {
		return nil, nil
	}

	patterns := make([]models.FailurePattern, 0, len(stats))
	for key, agg := range stats {
		if agg.count < m.minCount {
			continue
		}
		patterns = append(patterns, models.FailurePattern{
			ID:            key,
			Service:       agg.service,
			Category:      agg.category,
			Occurrences:   agg.count,
			Prevalence:    utils.Round2(float64(agg.count) / float64(considered)),
			AvgConfidence: utils.Round2(agg.confidence / float64(agg.count)),
			Examples:      agg.examples,
			LastSeen:      agg.lastSeen,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Prevalence != patterns[j].Prevalence {
			return patterns[i].Prevalence > patterns[j].Prevalence
		}
		return patterns[i].ID < patterns[j].ID
	})

	if m.store != nil && len(patterns) > 0 {
		if err := m.store.StorePatterns(ctx, patterns); err != nil {
			m.logger.Warn("pattern store failed", slog.Any("error", err))
		}
	}
	m.logger.Debug("patterns mined", slog.Int("entries", considered), slog.Int("patterns", len(patterns)))
	return patterns, nil
}

type aggregate struct {
	service    string
	category   string
	count      int
	confidence float64
	lastSeen   time.Time
	examples   []string
}
