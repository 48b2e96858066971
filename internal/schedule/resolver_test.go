package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinic-scheduling/internal/interval"
)

type memScheduleRepo struct {
	entries []WorkingHoursEntry
}

func (m *memScheduleRepo) GetEntry(_ context.Context, entityType EntityType, entityID uuid.UUID, weekday time.Weekday) (*WorkingHoursEntry, error) {
	for i := range m.entries {
		e := m.entries[i]
		if e.EntityType == entityType && e.EntityID == entityID && e.Weekday == weekday {
			return &e, nil
		}
	}
	return nil, ErrEntryNotFound
}

func (m *memScheduleRepo) ListEntries(_ context.Context, entityType EntityType, entityID uuid.UUID) ([]WorkingHoursEntry, error) {
	var out []WorkingHoursEntry
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memScheduleRepo) ReplaceEntries(_ context.Context, entityType EntityType, entityID uuid.UUID, entries []WorkingHoursEntry) error {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.EntityType != entityType || e.EntityID != entityID {
			kept = append(kept, e)
		}
	}
	m.entries = append(kept, entries...)
	return nil
}

func intPtr(v int) *int { return &v }

func TestResolveWorkingDayWithBreak(t *testing.T) {
	clinicID := uuid.New()
	repo := &memScheduleRepo{entries: []WorkingHoursEntry{{
		EntityType:   EntityClinic,
		EntityID:     clinicID,
		Weekday:      time.Monday,
		IsWorkingDay: true,
		OpenMinutes:  540,  // 09:00
		CloseMinutes: 1020, // 17:00
		BreakStart:   intPtr(720),
		BreakEnd:     intPtr(780),
	}}}

	spans, err := NewResolver(repo).Resolve(context.Background(), EntityClinic, clinicID, time.Monday)
	require.NoError(t, err)
	assert.Equal(t, []interval.Span{{Start: 540, End: 720}, {Start: 780, End: 1020}}, spans)
}

func TestResolveFailClosed(t *testing.T) {
	repo := &memScheduleRepo{}
	r := NewResolver(repo)

	// No record at all: closed, not an error, and never a fabricated default.
	spans, err := r.Resolve(context.Background(), EntityClinic, uuid.New(), time.Tuesday)
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestResolveNonWorkingDay(t *testing.T) {
	clinicID := uuid.New()
	repo := &memScheduleRepo{entries: []WorkingHoursEntry{{
		EntityType: EntityClinic,
		EntityID:   clinicID,
		Weekday:    time.Sunday,
	}}}

	spans, err := NewResolver(repo).Resolve(context.Background(), EntityClinic, clinicID, time.Sunday)
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestEntryValidate(t *testing.T) {
	base := WorkingHoursEntry{
		EntityType:   EntityClinic,
		EntityID:     uuid.New(),
		Weekday:      time.Monday,
		IsWorkingDay: true,
		OpenMinutes:  480,
		CloseMinutes: 960,
	}

	assert.NoError(t, base.Validate())

	closedWithTimes := base
	closedWithTimes.IsWorkingDay = false
	assert.ErrorIs(t, closedWithTimes.Validate(), ErrInvalidEntry)

	inverted := base
	inverted.OpenMinutes, inverted.CloseMinutes = 960, 480
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidEntry)

	halfBreak := base
	halfBreak.BreakStart = intPtr(600)
	assert.ErrorIs(t, halfBreak.Validate(), ErrInvalidEntry)

	breakOutside := base
	breakOutside.BreakStart = intPtr(60)
	breakOutside.BreakEnd = intPtr(120)
	assert.ErrorIs(t, breakOutside.Validate(), ErrInvalidEntry)

	goodBreak := base
	goodBreak.BreakStart = intPtr(720)
	goodBreak.BreakEnd = intPtr(780)
	assert.NoError(t, goodBreak.Validate())
}

func TestWindowsFromEntries(t *testing.T) {
	entries := []WorkingHoursEntry{
		{Weekday: time.Monday, IsWorkingDay: true, OpenMinutes: 480, CloseMinutes: 960},
		{Weekday: time.Tuesday},
	}

	assert.Equal(t, []interval.Span{{Start: 480, End: 960}}, WindowsFromEntries(entries, time.Monday))
	assert.Empty(t, WindowsFromEntries(entries, time.Tuesday))
	assert.Empty(t, WindowsFromEntries(entries, time.Friday))
}
