package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains the DB interactions for working hours.
type Repository interface {
	// GetEntry returns the entity's own entry for one weekday, or ErrEntryNotFound.
	GetEntry(ctx context.Context, entityType EntityType, entityID uuid.UUID, weekday time.Weekday) (*WorkingHoursEntry, error)

	// ListEntries returns all entries for an entity, at most one per weekday.
	ListEntries(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]WorkingHoursEntry, error)

	// ReplaceEntries swaps an entity's whole weekly schedule in one transaction.
	ReplaceEntries(ctx context.Context, entityType EntityType, entityID uuid.UUID, entries []WorkingHoursEntry) error
}
