package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/interval"
)

type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityComplex      EntityType = "complex"
	EntityClinic       EntityType = "clinic"
)

var (
	ErrEntryNotFound = errors.New("working hours entry not found")
	ErrInvalidEntry  = errors.New("invalid working hours entry")
)

// WorkingHoursEntry is one weekday row of an entity's weekly schedule.
// Times are minutes since midnight in the facility's local time. A day with no
// entry, or IsWorkingDay=false, is closed; schedules are never inherited from a
// parent entity.
type WorkingHoursEntry struct {
	ID           uuid.UUID
	EntityType   EntityType
	EntityID     uuid.UUID
	Weekday      time.Weekday
	IsWorkingDay bool
	OpenMinutes  int
	CloseMinutes int
	BreakStart   *int
	BreakEnd     *int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate enforces the field invariants: closed days carry no times, open days
// have opening < closing, and a break (both ends or neither) sits inside the
// open window.
func (e WorkingHoursEntry) Validate() error {
	switch e.EntityType {
	case EntityOrganization, EntityComplex, EntityClinic:
	default:
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidEntry, e.EntityType)
	}

	if !e.IsWorkingDay {
		if e.OpenMinutes != 0 || e.CloseMinutes != 0 || e.BreakStart != nil || e.BreakEnd != nil {
			return fmt.Errorf("%w: non-working day must not carry times", ErrInvalidEntry)
		}
		return nil
	}

	if e.OpenMinutes < 0 || e.CloseMinutes > interval.MinutesPerDay || e.OpenMinutes >= e.CloseMinutes {
		return fmt.Errorf("%w: opening %s must be before closing %s",
			ErrInvalidEntry, interval.FromMinutes(e.OpenMinutes), interval.FromMinutes(e.CloseMinutes))
	}

	if (e.BreakStart == nil) != (e.BreakEnd == nil) {
		return fmt.Errorf("%w: break start and end must be set together", ErrInvalidEntry)
	}
	if e.BreakStart != nil {
		bs, be := *e.BreakStart, *e.BreakEnd
		if bs >= be || bs < e.OpenMinutes || be > e.CloseMinutes {
			return fmt.Errorf("%w: break %s-%s must sit within %s-%s",
				ErrInvalidEntry,
				interval.FromMinutes(bs), interval.FromMinutes(be),
				interval.FromMinutes(e.OpenMinutes), interval.FromMinutes(e.CloseMinutes))
		}
	}

	return nil
}

// Windows returns the bookable sub-spans of this day: opening hours minus the
// break, so zero, one or two spans.
func (e WorkingHoursEntry) Windows() []interval.Span {
	if !e.IsWorkingDay {
		return nil
	}
	open := interval.Span{Start: e.OpenMinutes, End: e.CloseMinutes}
	if e.BreakStart == nil {
		return []interval.Span{open}
	}
	return interval.Subtract(open, []interval.Span{{Start: *e.BreakStart, End: *e.BreakEnd}})
}
