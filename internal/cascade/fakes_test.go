package cascade

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-scheduling/internal/appointment"
	"github.com/clinicdesk/clinic-scheduling/internal/org"
	"github.com/clinicdesk/clinic-scheduling/internal/schedule"
)

var errStorageDown = errors.New("storage down")

// memApptRepo is an in-memory appointment.Repository with switchable write
// failures for abort-path tests.
type memApptRepo struct {
	mu         sync.Mutex
	appts      map[uuid.UUID]*appointment.Appointment
	events     []appointment.EventLog
	failWrites bool

	// updateStatusHook, when set, runs before each UpdateStatus write. Tests
	// use it to inject deadline failures partway through a batch.
	updateStatusHook func(ctx context.Context) error
}

func newMemApptRepo() *memApptRepo {
	return &memApptRepo{appts: map[uuid.UUID]*appointment.Appointment{}}
}

func (m *memApptRepo) add(a appointment.Appointment) *appointment.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = appointment.StatusScheduled
	}
	m.appts[a.ID] = &a
	return &a
}

func (m *memApptRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memApptRepo) Create(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	cp := m.add(*a)
	return cp, nil
}

func (m *memApptRepo) listActive(match func(*appointment.Appointment) bool) []appointment.Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []appointment.Appointment
	for _, a := range m.appts {
		if a.Active() && match(a) {
			out = append(out, *a)
		}
	}
	return out
}

func (m *memApptRepo) ListActiveByDoctorOnDate(_ context.Context, doctorID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	return m.listActive(func(a *appointment.Appointment) bool {
		return a.DoctorID == doctorID && a.Date.Equal(date)
	}), nil
}

func (m *memApptRepo) ListActiveByPatientOnDate(_ context.Context, patientID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	return m.listActive(func(a *appointment.Appointment) bool {
		return a.PatientID == patientID && a.Date.Equal(date)
	}), nil
}

func (m *memApptRepo) ListActiveByClinicOnDate(_ context.Context, clinicID uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	return m.listActive(func(a *appointment.Appointment) bool {
		return a.ClinicID == clinicID && a.Date.Equal(date)
	}), nil
}

func (m *memApptRepo) ListFutureActiveByClinic(_ context.Context, clinicID uuid.UUID, from time.Time) ([]appointment.Appointment, error) {
	return m.listActive(func(a *appointment.Appointment) bool {
		return a.ClinicID == clinicID && !a.Date.Before(from)
	}), nil
}

func (m *memApptRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to appointment.Status, reason string) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateStatusHook != nil {
		if err := m.updateStatusHook(ctx); err != nil {
			return nil, err
		}
	}
	if m.failWrites {
		return nil, errStorageDown
	}
	a, ok := m.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrStaleStatus
	}
	a.Status = to
	if to == appointment.StatusCancelled {
		a.CancelReason = reason
	}
	cp := *a
	return &cp, nil
}

func (m *memApptRepo) UpdateSchedule(_ context.Context, id uuid.UUID, from appointment.Status, date time.Time, startMinutes int, reason string) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return nil, errStorageDown
	}
	a, ok := m.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrStaleStatus
	}
	a.Date = date
	a.StartMinutes = startMinutes
	a.ReschedulingReason = reason
	a.MarkedForReschedulingAt = nil
	cp := *a
	return &cp, nil
}

func (m *memApptRepo) UpdateDoctor(_ context.Context, id uuid.UUID, from appointment.Status, newDoctorID, transferredBy uuid.UUID) (*appointment.Appointment, error) {
	return nil, errors.New("not used in cascade tests")
}

func (m *memApptRepo) CompleteWithNotes(_ context.Context, id uuid.UUID, from appointment.Status, doctorNotes string, followUp bool) (*appointment.Appointment, error) {
	return nil, errors.New("not used in cascade tests")
}

func (m *memApptRepo) MarkForRescheduling(_ context.Context, id, markedBy uuid.UUID, reason string) (*appointment.Appointment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites {
		return nil, false, errStorageDown
	}
	a, ok := m.appts[id]
	if !ok {
		return nil, false, appointment.ErrNotFound
	}
	if a.MarkedForReschedulingAt != nil {
		cp := *a
		return &cp, true, nil
	}
	now := time.Now()
	a.MarkedForReschedulingAt = &now
	a.MarkedBy = &markedBy
	a.ReschedulingReason = reason
	cp := *a
	return &cp, false, nil
}

func (m *memApptRepo) ListMarkedForRescheduling(_ context.Context, from time.Time, limit int) ([]appointment.Appointment, error) {
	out := m.listActive(func(a *appointment.Appointment) bool {
		return a.MarkedForReschedulingAt != nil && !a.Date.Before(from)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memApptRepo) InsertEvent(_ context.Context, ev appointment.EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// memOrgRepo backs the org hierarchy.
type memOrgRepo struct {
	mu        sync.Mutex
	complexes map[uuid.UUID]*org.Complex
	depts     map[uuid.UUID]*org.Department
	clinics   map[uuid.UUID]*org.Clinic
}

func newMemOrgRepo() *memOrgRepo {
	return &memOrgRepo{
		complexes: map[uuid.UUID]*org.Complex{},
		depts:     map[uuid.UUID]*org.Department{},
		clinics:   map[uuid.UUID]*org.Clinic{},
	}
}

func (m *memOrgRepo) GetComplexByID(_ context.Context, id uuid.UUID) (*org.Complex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.complexes[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, org.ErrComplexNotFound
}

func (m *memOrgRepo) GetDepartmentByID(_ context.Context, id uuid.UUID) (*org.Department, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.depts[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, org.ErrDepartmentNotFound
}

func (m *memOrgRepo) GetClinicByID(_ context.Context, id uuid.UUID) (*org.Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clinics[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, org.ErrClinicNotFound
}

func (m *memOrgRepo) ListClinicsByComplex(_ context.Context, complexID uuid.UUID) ([]org.Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []org.Clinic
	for _, c := range m.clinics {
		if c.ComplexID != nil && *c.ComplexID == complexID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memOrgRepo) ListClinicsByDepartment(_ context.Context, departmentID uuid.UUID) ([]org.Clinic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []org.Clinic
	for _, c := range m.clinics {
		if c.DepartmentID != nil && *c.DepartmentID == departmentID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memOrgRepo) CountClinicsByComplex(ctx context.Context, complexID uuid.UUID) (int, error) {
	list, _ := m.ListClinicsByComplex(ctx, complexID)
	return len(list), nil
}

func (m *memOrgRepo) UpdateComplexStatus(_ context.Context, id uuid.UUID, status org.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complexes[id]
	if !ok {
		return org.ErrComplexNotFound
	}
	c.Status = status
	return nil
}

func (m *memOrgRepo) UpdateDepartmentStatus(_ context.Context, id uuid.UUID, status org.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.depts[id]
	if !ok {
		return org.ErrDepartmentNotFound
	}
	d.Status = status
	return nil
}

func (m *memOrgRepo) UpdateClinicStatus(_ context.Context, id uuid.UUID, status org.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clinics[id]
	if !ok {
		return org.ErrClinicNotFound
	}
	c.Status = status
	return nil
}

func (m *memOrgRepo) MoveClinic(_ context.Context, clinicID, toComplexID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clinics[clinicID]
	if !ok {
		return org.ErrClinicNotFound
	}
	to := toComplexID
	c.ComplexID = &to
	return nil
}

// memSchedules backs schedule.Repository.
type memSchedules struct {
	mu      sync.Mutex
	entries []schedule.WorkingHoursEntry
}

func (m *memSchedules) GetEntry(_ context.Context, entityType schedule.EntityType, entityID uuid.UUID, weekday time.Weekday) (*schedule.WorkingHoursEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		e := m.entries[i]
		if e.EntityType == entityType && e.EntityID == entityID && e.Weekday == weekday {
			return &e, nil
		}
	}
	return nil, schedule.ErrEntryNotFound
}

func (m *memSchedules) ListEntries(_ context.Context, entityType schedule.EntityType, entityID uuid.UUID) ([]schedule.WorkingHoursEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []schedule.WorkingHoursEntry
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memSchedules) ReplaceEntries(_ context.Context, entityType schedule.EntityType, entityID uuid.UUID, entries []schedule.WorkingHoursEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.EntityType != entityType || e.EntityID != entityID {
			kept = append(kept, e)
		}
	}
	m.entries = append(kept, entries...)
	return nil
}

type passLocker struct {
	mu sync.Mutex
}

func (l *passLocker) WithCalendarLock(ctx context.Context, _ uuid.UUID, _ time.Time, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

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

type staticPlans struct {
	limits org.PlanLimits
}

func (s staticPlans) GetLimits(context.Context, uuid.UUID) (org.PlanLimits, error) {
	return s.limits, nil
}

// cascadeEnv wires an orchestrator over one complex with one clinic open
// 09:00-17:00 every day.
type cascadeEnv struct {
	appts     *memApptRepo
	orgs      *memOrgRepo
	schedules *memSchedules
	notifier  *memNotifier
	orch      *Orchestrator

	complexID    uuid.UUID
	departmentID uuid.UUID
	clinicID     uuid.UUID
}

func newCascadeEnv(maxClinics int) *cascadeEnv {
	appts := newMemApptRepo()
	orgs := newMemOrgRepo()
	notifier := &memNotifier{}
	schedules := &memSchedules{}

	complexID := uuid.New()
	departmentID := uuid.New()
	clinicID := uuid.New()

	orgs.complexes[complexID] = &org.Complex{ID: complexID, SubscriptionID: uuid.New(), Status: org.StatusActive}
	orgs.depts[departmentID] = &org.Department{ID: departmentID, ComplexID: complexID, Status: org.StatusActive}
	cpx, dept := complexID, departmentID
	orgs.clinics[clinicID] = &org.Clinic{
		ID:                     clinicID,
		ComplexID:              &cpx,
		DepartmentID:           &dept,
		Status:                 org.StatusActive,
		SessionDurationMinutes: 30,
		StaffCount:             6,
	}

	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		schedules.entries = append(schedules.entries, schedule.WorkingHoursEntry{
			EntityType:   schedule.EntityClinic,
			EntityID:     clinicID,
			Weekday:      wd,
			IsWorkingDay: true,
			OpenMinutes:  540,
			CloseMinutes: 1020,
		})
	}

	resolver := schedule.NewResolver(schedules)
	avail := appointment.NewAvailabilityService(resolver, appts, orgs, 30, 30)
	plans := org.NewPlanValidator(orgs, staticPlans{limits: org.PlanLimits{MaxClinics: maxClinics}})

	orch := NewOrchestrator(appts, avail, &passLocker{}, notifier, orgs, schedules, plans, zerolog.Nop(), 4)

	return &cascadeEnv{
		appts:        appts,
		orgs:         orgs,
		schedules:    schedules,
		notifier:     notifier,
		orch:         orch,
		complexID:    complexID,
		departmentID: departmentID,
		clinicID:     clinicID,
	}
}

// seedAppointments books n back-to-back half-hour appointments for distinct
// doctors a week from now.
func (e *cascadeEnv) seedAppointments(n int) []*appointment.Appointment {
	date := appointment.DateOf(time.Now().AddDate(0, 0, 7))
	var out []*appointment.Appointment
	for i := 0; i < n; i++ {
		out = append(out, e.appts.add(appointment.Appointment{
			PatientID:       uuid.New(),
			DoctorID:        uuid.New(),
			ClinicID:        e.clinicID,
			ServiceID:       uuid.New(),
			Date:            date,
			StartMinutes:    600 + i*30,
			DurationMinutes: 30,
			Status:          appointment.StatusScheduled,
		}))
	}
	return out
}
