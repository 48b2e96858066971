package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/interval"
)

// Resolver computes the effective working windows of an entity for a weekday.
// Absence of a record means closed; there is no implicit parent fallback and no
// default schedule.
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the bookable spans for the entity on that weekday. A missing
// entry or a non-working day resolves to an empty slice with a nil error.
func (r *Resolver) Resolve(ctx context.Context, entityType EntityType, entityID uuid.UUID, weekday time.Weekday) ([]interval.Span, error) {
	entry, err := r.repo.GetEntry(ctx, entityType, entityID, weekday)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load working hours: %w", err)
	}

	return entry.Windows(), nil
}

// ResolveDate is Resolve keyed by a calendar date.
func (r *Resolver) ResolveDate(ctx context.Context, entityType EntityType, entityID uuid.UUID, date time.Time) ([]interval.Span, error) {
	return r.Resolve(ctx, entityType, entityID, date.Weekday())
}

// WindowsFromEntries resolves against an in-memory schedule instead of the
// stored one. The cascade orchestrator uses this to evaluate appointments
// against a proposed schedule before it is committed.
func WindowsFromEntries(entries []WorkingHoursEntry, weekday time.Weekday) []interval.Span {
	for _, e := range entries {
		if e.Weekday == weekday {
			return e.Windows()
		}
	}
	return nil
}
