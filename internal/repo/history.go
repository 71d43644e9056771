// Package repo persists RCA records and mined failure patterns: an embedded
// SQLite history, an optional Weaviate index and JSON artifacts on disk.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

// History stores RCA records and recalls them by service.
type History interface {
	Save(ctx context.Context, entry models.HistoryEntry) error
	ListByService(ctx context.Context, service string, limit int) ([]models.HistoryEntry, error)
	Similar(ctx context.Context, service, category string, limit int) ([]models.HistoryEntry, error)
	Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

// DefaultListLimit applies when a listing receives a non-positive limit.
const DefaultListLimit = 20

// NewEntry indexes a record for persistence. Fallback records are marked
// degraded so they are never recalled as precedent.
func NewEntry(alert models.Alert, record models.RCARecord, extracted bool, now time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		AlertID:   alert.AlertID,
		Service:   alert.Service,
		Category:  record.MostLikelyRootCause.Category,
		Degraded:  !extracted,
		Record:    record,
		CreatedAt: now.UTC(),
	}
}

// Tee writes to every history and reads from the first.
type Tee []History

// Save writes entry to every backend and joins their errors.
func (t Tee) Save(ctx context.Context, entry models.HistoryEntry) error {
	var errs []error
	for _, h := range t {
		if err := h.Save(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) ListByService(ctx context.Context, service string, limit int) ([]models.HistoryEntry, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return t[0].ListByService(ctx, service, limit)
}

func (t Tee) Similar(ctx context.Context, service, category string, limit int) ([]models.HistoryEntry, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return t[0].Similar(ctx, service, category, limit)
}

func (t Tee) Recent(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return t[0].Recent(ctx, limit)
}

func normaliseLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}
