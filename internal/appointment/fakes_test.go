package appointment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-scheduling/internal/org"
	"github.com/clinicdesk/clinic-scheduling/internal/schedule"
)

// memRepo is an in-memory Repository used across the package tests.
type memRepo struct {
	mu     sync.Mutex
	appts  map[uuid.UUID]*Appointment
	events []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{appts: map[uuid.UUID]*Appointment{}}
}

func (m *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) Create(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.appts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memRepo) listActive(match func(*Appointment) bool) []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appts {
		if a.Active() && match(a) {
			out = append(out, *a)
		}
	}
	return out
}

func (m *memRepo) ListActiveByDoctorOnDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	return m.listActive(func(a *Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(date)
	}), nil
}

func (m *memRepo) ListActiveByPatientOnDate(_ context.Context, patientID uuid.UUID, date time.Time) ([]Appointment, error) {
	return m.listActive(func(a *Appointment) bool {
		return a.PatientID == patientID && a.Date.Equal(date)
	}), nil
}

func (m *memRepo) ListActiveByClinicOnDate(_ context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	return m.listActive(func(a *Appointment) bool {
		return a.ClinicID == clinicID && a.Date.Equal(date)
	}), nil
}

func (m *memRepo) ListFutureActiveByClinic(_ context.Context, clinicID uuid.UUID, from time.Time) ([]Appointment, error) {
	return m.listActive(func(a *Appointment) bool {
		return a.ClinicID == clinicID && !a.Date.Before(from)
	}), nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, reason string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}
	a.Status = to
	if to == StatusCancelled {
		a.CancelReason = reason
		now := time.Now()
		a.DeletedAt = &now
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) UpdateSchedule(_ context.Context, id uuid.UUID, from Status, date time.Time, startMinutes int, reason string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}
	a.Date = date
	a.StartMinutes = startMinutes
	a.ReschedulingReason = reason
	a.MarkedForReschedulingAt = nil
	a.MarkedBy = nil
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) UpdateDoctor(_ context.Context, id uuid.UUID, from Status, newDoctorID, transferredBy uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}
	prev := a.DoctorID
	a.PreviousDoctorID = &prev
	a.DoctorID = newDoctorID
	now := time.Now()
	a.TransferredAt = &now
	a.TransferredBy = &transferredBy
	a.UpdatedAt = now
	cp := *a
	return &cp, nil
}

func (m *memRepo) CompleteWithNotes(_ context.Context, id uuid.UUID, from Status, doctorNotes string, followUp bool) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}
	a.Status = StatusCompleted
	a.DoctorNotes = doctorNotes
	a.FollowUpRequested = followUp
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memRepo) MarkForRescheduling(_ context.Context, id, markedBy uuid.UUID, reason string) (*Appointment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if a.MarkedForReschedulingAt != nil {
		cp := *a
		return &cp, true, nil
	}
	if IsTerminal(a.Status) {
		return nil, false, ErrStaleStatus
	}
	now := time.Now()
	a.MarkedForReschedulingAt = &now
	a.MarkedBy = &markedBy
	a.ReschedulingReason = reason
	a.UpdatedAt = now
	cp := *a
	return &cp, false, nil
}

func (m *memRepo) ListMarkedForRescheduling(_ context.Context, from time.Time, limit int) ([]Appointment, error) {
	out := m.listActive(func(a *Appointment) bool {
		return a.MarkedForReschedulingAt != nil && !a.Date.Before(from)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// passLocker runs the critical section under a plain process-wide mutex.
type passLocker struct {
	mu sync.Mutex
}

func (l *passLocker) WithCalendarLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

// memNotifier records enqueued notifications.
type memNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *memNotifier) Enqueue(_ context.Context, _ uuid.UUID, template string, _ map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, template)
	return nil
}

func (n *memNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// memClinics is a minimal ClinicSource.
type memClinics struct {
	clinics map[uuid.UUID]*org.Clinic
}

func (m *memClinics) GetClinicByID(_ context.Context, id uuid.UUID) (*org.Clinic, error) {
	if c, ok := m.clinics[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, org.ErrClinicNotFound
}

// memSchedules backs a schedule.Resolver in tests.
type memSchedules struct {
	entries []schedule.WorkingHoursEntry
}

func (m *memSchedules) GetEntry(_ context.Context, entityType schedule.EntityType, entityID uuid.UUID, weekday time.Weekday) (*schedule.WorkingHoursEntry, error) {
	for i := range m.entries {
		e := m.entries[i]
		if e.EntityType == entityType && e.EntityID == entityID && e.Weekday == weekday {
			return &e, nil
		}
	}
	return nil, schedule.ErrEntryNotFound
}

func (m *memSchedules) ListEntries(_ context.Context, entityType schedule.EntityType, entityID uuid.UUID) ([]schedule.WorkingHoursEntry, error) {
	var out []schedule.WorkingHoursEntry
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memSchedules) ReplaceEntries(_ context.Context, entityType schedule.EntityType, entityID uuid.UUID, entries []schedule.WorkingHoursEntry) error {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.EntityType != entityType || e.EntityID != entityID {
			kept = append(kept, e)
		}
	}
	m.entries = append(kept, entries...)
	return nil
}

// dailyClinicHours registers the same open window every day of the week.
func dailyClinicHours(clinicID uuid.UUID, openMinutes, closeMinutes int, breakStart, breakEnd *int) []schedule.WorkingHoursEntry {
	var entries []schedule.WorkingHoursEntry
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		entries = append(entries, schedule.WorkingHoursEntry{
			EntityType:   schedule.EntityClinic,
			EntityID:     clinicID,
			Weekday:      wd,
			IsWorkingDay: true,
			OpenMinutes:  openMinutes,
			CloseMinutes: closeMinutes,
			BreakStart:   breakStart,
			BreakEnd:     breakEnd,
		})
	}
	return entries
}

type testEnv struct {
	repo     *memRepo
	notifier *memNotifier
	svc      *Service
	avail    *AvailabilityService
	clinicID uuid.UUID
}

// newTestEnv wires a service around one clinic with the given schedule.
func newTestEnv(entries []schedule.WorkingHoursEntry, clinicID uuid.UUID, sessionMinutes int) *testEnv {
	repo := newMemRepo()
	notifier := &memNotifier{}
	clinics := &memClinics{clinics: map[uuid.UUID]*org.Clinic{
		clinicID: {ID: clinicID, Status: org.StatusActive, SessionDurationMinutes: sessionMinutes},
	}}
	resolver := schedule.NewResolver(&memSchedules{entries: entries})
	avail := NewAvailabilityService(resolver, repo, clinics, 30, 30)
	svc := NewService(repo, NewDetector(repo), avail, &passLocker{}, notifier, zerolog.Nop(), 3)

	return &testEnv{
		repo:     repo,
		notifier: notifier,
		svc:      svc,
		avail:    avail,
		clinicID: clinicID,
	}
}
