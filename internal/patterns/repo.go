package patterns

import (
	"context"

	"github.com/miradorstack/mirador-investigator/internal/models"
)

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, patterns []models.FailurePattern) error

// StorePatterns implements Store.
func (f StoreFunc) StorePatterns(ctx context.Context, patterns []models.FailurePattern) error {
	return f(ctx, patterns)
}

// Stores fans patterns out to several stores, stopping at the first error.
type Stores []Store

// StorePatterns implements Store.
func (s Stores) StorePatterns(ctx context.Context, patterns []models.FailurePattern) error {
	for _, store := range s {
		if err := store.StorePatterns(ctx, patterns); err != nil {
			return err
		}
	}
	return nil
}
