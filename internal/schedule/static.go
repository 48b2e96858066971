package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StaticRepository serves a fixed set of entries from memory. It backs a
// Resolver over a schedule that is not (or not yet) stored, such as a proposed
// weekly schedule under evaluation.
type StaticRepository struct {
	entries []WorkingHoursEntry
}

func NewStaticRepository(entries []WorkingHoursEntry) *StaticRepository {
	return &StaticRepository{entries: entries}
}

func (r *StaticRepository) GetEntry(_ context.Context, entityType EntityType, entityID uuid.UUID, weekday time.Weekday) (*WorkingHoursEntry, error) {
	for i := range r.entries {
		e := r.entries[i]
		if e.EntityType == entityType && e.EntityID == entityID && e.Weekday == weekday {
			return &e, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *StaticRepository) ListEntries(_ context.Context, entityType EntityType, entityID uuid.UUID) ([]WorkingHoursEntry, error) {
	var out []WorkingHoursEntry
	for _, e := range r.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *StaticRepository) ReplaceEntries(_ context.Context, entityType EntityType, entityID uuid.UUID, entries []WorkingHoursEntry) error {
	kept := r.entries[:0]
	for _, e := range r.entries {
		if e.EntityType != entityType || e.EntityID != entityID {
			kept = append(kept, e)
		}
	}
	r.entries = append(kept, entries...)
	return nil
}
