package cascade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdesk/clinic-scheduling/internal/appointment"
	"github.com/clinicdesk/clinic-scheduling/internal/interval"
	"github.com/clinicdesk/clinic-scheduling/internal/notify"
	"github.com/clinicdesk/clinic-scheduling/internal/org"
	redisclient "github.com/clinicdesk/clinic-scheduling/internal/redis"
	"github.com/clinicdesk/clinic-scheduling/internal/schedule"
)

// Orchestrator propagates organizational lifecycle events (deactivation,
// transfer, working-hours change) through every affected appointment. Each
// appointment gets an individual policy decision; the triggering entity's own
// state is committed only after all appointment work succeeded, so a failed
// run never leaves a half-cascaded hierarchy. Re-running the same event is
// safe: enumeration skips terminal appointments and marking is idempotent.
type Orchestrator struct {
	appts     appointment.Repository
	avail     *appointment.AvailabilityService
	locker    redisclient.Locker
	notifier  notify.Notifier
	orgs      org.Repository
	schedules schedule.Repository
	plans     *org.PlanValidator
	log       zerolog.Logger

	workers int
	now     func() time.Time
}

func NewOrchestrator(
	appts appointment.Repository,
	avail *appointment.AvailabilityService,
	locker redisclient.Locker,
	notifier notify.Notifier,
	orgs org.Repository,
	schedules schedule.Repository,
	plans *org.PlanValidator,
	log zerolog.Logger,
	workers int,
) *Orchestrator {
	if workers <= 0 {
		workers = 1
	}
	return &Orchestrator{
		appts:     appts,
		avail:     avail,
		locker:    locker,
		notifier:  notifier,
		orgs:      orgs,
		schedules: schedules,
		plans:     plans,
		log:       log.With().Str("component", "cascade-orchestrator").Logger(),
		workers:   workers,
		now:       time.Now,
	}
}

// CascadeDeactivation applies the request's policy to every future
// appointment in the entity's scope, then commits the entity status change.
func (o *Orchestrator) CascadeDeactivation(ctx context.Context, req Request) (*Result, error) {
	if !req.Policy.Valid() {
		return nil, ErrInvalidPolicy
	}

	clinics, err := o.scopeClinics(ctx, req.EntityType, req.EntityID)
	if err != nil {
		return nil, err
	}

	affected, err := o.futureAppointments(ctx, clinics)
	if err != nil {
		return nil, err
	}

	result := &Result{EntityType: req.EntityType, EntityID: req.EntityID}
	if err := o.processAll(ctx, affected, req, o.avail, result); err != nil {
		return nil, err
	}

	if err := o.commitStatus(ctx, req.EntityType, req.EntityID); err != nil {
		return nil, fmt.Errorf("commit entity status: %w", err)
	}

	o.log.Info().
		Str("entity_type", string(req.EntityType)).
		Str("entity_id", req.EntityID.String()).
		Int("rescheduled", result.AppointmentsRescheduled).
		Int("marked", result.AppointmentsMarkedForRescheduling).
		Int("cancelled", result.AppointmentsCancelled).
		Msg("cascade complete")
	return result, nil
}

// ApplyWorkingHoursChange replaces a clinic's weekly schedule, first applying
// the policy to just the future appointments that the proposed schedule would
// strand outside its working windows. The new entries are committed only after
// that succeeds.
func (o *Orchestrator) ApplyWorkingHoursChange(ctx context.Context, clinicID uuid.UUID, entries []schedule.WorkingHoursEntry, req Request) (*Result, error) {
	if !req.Policy.Valid() {
		return nil, ErrInvalidPolicy
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	clinic, err := o.orgs.GetClinicByID(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	future, err := o.appts.ListFutureActiveByClinic(ctx, clinic.ID, appointment.DateOf(o.now()))
	if err != nil {
		return nil, fmt.Errorf("list future appointments: %w", err)
	}

	var stranded []appointment.Appointment
	for _, a := range future {
		if !o.fitsSchedule(a, entries) {
			stranded = append(stranded, a)
		}
	}

	// Rebooking slots must come out of the proposed schedule, not the stored
	// one the new entries are about to replace.
	proposed := o.avail.WithResolver(schedule.NewResolver(schedule.NewStaticRepository(entries)))

	result := &Result{EntityType: EntityClinic, EntityID: clinicID}
	if err := o.processAll(ctx, stranded, req, proposed, result); err != nil {
		return nil, err
	}

	if err := o.schedules.ReplaceEntries(ctx, schedule.EntityClinic, clinicID, entries); err != nil {
		return nil, fmt.Errorf("commit working hours: %w", err)
	}

	return result, nil
}

// TransferClinics moves clinics between complexes. Capacity is validated
// up-front and the whole transfer aborts before any write when the target's
// plan would be exceeded. Appointments keep their date/time; any that sit
// outside their clinic's own working windows are flagged and marked.
func (o *Orchestrator) TransferClinics(ctx context.Context, sourceComplexID, targetComplexID uuid.UUID, clinicIDs []uuid.UUID, notifyPatients bool, initiatedBy uuid.UUID) (*TransferResult, error) {
	if _, err := o.orgs.GetComplexByID(ctx, sourceComplexID); err != nil {
		return nil, err
	}
	target, err := o.orgs.GetComplexByID(ctx, targetComplexID)
	if err != nil {
		return nil, err
	}
	if target.Status != org.StatusActive {
		return nil, ErrTargetComplexClosed
	}

	// Validate membership before the capacity gate so nothing is written on
	// any failure path.
	clinics := make([]org.Clinic, 0, len(clinicIDs))
	for _, id := range clinicIDs {
		clinic, err := o.orgs.GetClinicByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if clinic.ComplexID == nil || *clinic.ComplexID != sourceComplexID {
			return nil, fmt.Errorf("%w: clinic %s", ErrClinicNotInSource, id)
		}
		clinics = append(clinics, *clinic)
	}

	if err := o.plans.ValidateTransfer(ctx, targetComplexID, len(clinics)); err != nil {
		return nil, err
	}

	resolver := schedule.NewResolver(o.schedules)
	today := appointment.DateOf(o.now())
	result := &TransferResult{
		SourceComplexID: sourceComplexID,
		TargetComplexID: targetComplexID,
	}

	var moved []uuid.UUID
	for _, clinic := range clinics {
		if err := o.orgs.MoveClinic(ctx, clinic.ID, targetComplexID); err != nil {
			return nil, &AbortedError{Processed: moved, Pending: remainingIDs(clinics, len(moved)), Cause: err}
		}
		moved = append(moved, clinic.ID)

		record := TransferRecord{
			ClinicID:      clinic.ID,
			FromComplexID: sourceComplexID,
			ToComplexID:   targetComplexID,
			StaffUpdated:  clinic.StaffCount,
			Conflicts:     []ConflictDetail{},
		}

		future, err := o.appts.ListFutureActiveByClinic(ctx, clinic.ID, today)
		if err != nil {
			return nil, &AbortedError{Processed: moved, Pending: remainingIDs(clinics, len(moved)), Cause: err}
		}
		record.AppointmentsAffected = len(future)

		for i := range future {
			appt := &future[i]
			windows, err := resolver.ResolveDate(ctx, schedule.EntityClinic, clinic.ID, appt.Date)
			if err != nil {
				return nil, &AbortedError{Processed: moved, Pending: remainingIDs(clinics, len(moved)), Cause: err}
			}
			if spanFits(appt.Span(), windows) {
				continue
			}
			if _, already, err := o.appts.MarkForRescheduling(ctx, appt.ID, initiatedBy, "clinic transferred"); err != nil {
				return nil, &AbortedError{Processed: moved, Pending: remainingIDs(clinics, len(moved)), Cause: err}
			} else if !already && notifyPatients {
				o.enqueue(ctx, appt.PatientID, notify.TemplateRescheduleRequired, nil)
			}
			record.Conflicts = append(record.Conflicts, ConflictDetail{
				AppointmentID: appt.ID,
				Reason:        "outside_working_hours",
			})
		}

		result.Records = append(result.Records, record)
	}

	result.ClinicsTransferred = len(moved)
	return result, nil
}

// processAll fans the per-appointment policy decisions out over a bounded
// worker pool. Any irrecoverable failure (storage, deadline) aborts the run
// and reports processed versus pending appointments.
func (o *Orchestrator) processAll(ctx context.Context, affected []appointment.Appointment, req Request, avail *appointment.AvailabilityService, result *Result) error {
	if len(affected) == 0 {
		result.Details = []Outcome{}
		return nil
	}

	var mu sync.Mutex
	processed := make(map[uuid.UUID]bool, len(affected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i := range affected {
		appt := affected[i]
		g.Go(func() error {
			outcome, notified, err := o.processOne(gctx, &appt, req, avail)
			if err != nil {
				return fmt.Errorf("appointment %s: %w", appt.ID, err)
			}

			mu.Lock()
			defer mu.Unlock()
			processed[appt.ID] = true
			result.Details = append(result.Details, *outcome)
			switch outcome.Status {
			case OutcomeRescheduled:
				result.AppointmentsRescheduled++
			case OutcomeMarked:
				result.AppointmentsMarkedForRescheduling++
			case OutcomeCancelled:
				result.AppointmentsCancelled++
			case OutcomeSkipped:
				result.AppointmentsSkipped++
			}
			if notified {
				result.NotificationsSent++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		aborted := &AbortedError{Cause: err}
		mu.Lock()
		for _, a := range affected {
			if processed[a.ID] {
				aborted.Processed = append(aborted.Processed, a.ID)
			} else {
				aborted.Pending = append(aborted.Pending, a.ID)
			}
		}
		mu.Unlock()
		return aborted
	}

	return nil
}

// processOne applies the policy to a single appointment. "No slot found" under
// the reschedule policy is a soft miss that degrades to marking, never an
// error; only storage-level failures propagate.
func (o *Orchestrator) processOne(ctx context.Context, appt *appointment.Appointment, req Request, avail *appointment.AvailabilityService) (*Outcome, bool, error) {
	outcome := &Outcome{
		AppointmentID: appt.ID,
		OldDate:       appt.Date,
		OldTime:       appt.TimeString(),
	}

	reason := req.Reason
	if reason == "" {
		reason = fmt.Sprintf("%s deactivated", req.EntityType)
	}

	switch req.Policy {
	case PolicyCancel:
		return o.cancelOne(ctx, appt, outcome, req, reason)

	case PolicyNotify:
		return o.markOne(ctx, appt, outcome, req, reason)

	case PolicyReschedule:
		if !appointment.CanRebook(appt.Status) {
			// In-progress appointments cannot move; leave them flagged.
			return o.markOne(ctx, appt, outcome, req, reason)
		}

		next, err := avail.NextAvailable(ctx, appt.DoctorID, appt.ClinicID, o.now(), appt.DurationMinutes)
		if err != nil {
			return nil, false, err
		}
		if next == nil {
			// Bounded look-ahead exhausted: fall back to marking.
			return o.markOne(ctx, appt, outcome, req, reason)
		}

		startMinutes, err := interval.ToMinutes(next.Time)
		if err != nil {
			return nil, false, err
		}

		var updated *appointment.Appointment
		err = o.locker.WithCalendarLock(ctx, appt.DoctorID, next.Date, func(lockCtx context.Context) error {
			busy, err := o.appts.ListActiveByDoctorOnDate(lockCtx, appt.DoctorID, next.Date)
			if err != nil {
				return err
			}
			span := interval.Span{Start: startMinutes, End: startMinutes + appt.DurationMinutes}
			for i := range busy {
				if busy[i].ID != appt.ID && interval.Overlaps(span, busy[i].Span()) {
					return appointment.ErrStaleStatus
				}
			}
			updated, err = o.appts.UpdateSchedule(lockCtx, appt.ID, appt.Status, next.Date, startMinutes, reason)
			return err
		})
		if err != nil {
			if errors.Is(err, appointment.ErrStaleStatus) || errors.Is(err, redisclient.ErrLockNotAcquired) {
				// Lost the race for the slot; mark instead of failing the batch.
				return o.markOne(ctx, appt, outcome, req, reason)
			}
			return nil, false, err
		}

		o.logEvent(ctx, appt.ID, appointment.EventRescheduled, map[string]any{
			"old_date": outcome.OldDate.Format("2006-01-02"),
			"old_time": outcome.OldTime,
			"new_date": updated.Date.Format("2006-01-02"),
			"new_time": updated.TimeString(),
			"reason":   reason,
		})

		newDate := updated.Date
		newTime := updated.TimeString()
		outcome.Status = OutcomeRescheduled
		outcome.NewDate = &newDate
		outcome.NewTime = &newTime
		if req.NotifyPatients {
			o.enqueue(ctx, appt.PatientID, notify.TemplateAppointmentRescheduled, map[string]string{
				"new_date": newDate.Format("2006-01-02"),
				"new_time": newTime,
			})
			return outcome, true, nil
		}
		return outcome, false, nil
	}

	return nil, false, ErrInvalidPolicy
}

// cancelOne cancels with a compare-and-swap, re-reading on staleness so a row
// a concurrent actor already finished is classified by what actually happened
// to it rather than counted as cancelled.
func (o *Orchestrator) cancelOne(ctx context.Context, appt *appointment.Appointment, outcome *Outcome, req Request, reason string) (*Outcome, bool, error) {
	from := appt.Status
	for {
		_, err := o.appts.UpdateStatus(ctx, appt.ID, from, appointment.StatusCancelled, reason)
		if err == nil {
			break
		}
		if !errors.Is(err, appointment.ErrStaleStatus) {
			return nil, false, err
		}

		current, err := o.appts.GetByID(ctx, appt.ID)
		if err != nil {
			return nil, false, err
		}
		if appointment.IsTerminal(current.Status) {
			if current.Status == appointment.StatusCancelled {
				outcome.Status = OutcomeCancelled
			} else {
				outcome.Status = OutcomeSkipped
			}
			return outcome, false, nil
		}
		// Still active, just moved (say scheduled to confirmed); retry from
		// the status we now see.
		from = current.Status
	}

	o.logEvent(ctx, appt.ID, appointment.EventCancelled, map[string]any{"reason": reason})
	outcome.Status = OutcomeCancelled
	if req.NotifyPatients {
		o.enqueue(ctx, appt.PatientID, notify.TemplateAppointmentCancelled, map[string]string{"reason": reason})
		return outcome, true, nil
	}
	return outcome, false, nil
}

func (o *Orchestrator) markOne(ctx context.Context, appt *appointment.Appointment, outcome *Outcome, req Request, reason string) (*Outcome, bool, error) {
	_, already, err := o.appts.MarkForRescheduling(ctx, appt.ID, req.InitiatedBy, reason)
	if err != nil {
		return nil, false, err
	}
	outcome.Status = OutcomeMarked
	if already {
		return outcome, false, nil
	}

	o.logEvent(ctx, appt.ID, appointment.EventMarkedForRescheduling, map[string]any{"reason": reason})
	if !req.NotifyPatients {
		return outcome, false, nil
	}
	o.enqueue(ctx, appt.PatientID, notify.TemplateRescheduleRequired, map[string]string{"reason": reason})
	return outcome, true, nil
}

func (o *Orchestrator) scopeClinics(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]org.Clinic, error) {
	switch entityType {
	case EntityDepartment:
		if _, err := o.orgs.GetDepartmentByID(ctx, entityID); err != nil {
			return nil, err
		}
		return o.orgs.ListClinicsByDepartment(ctx, entityID)
	case EntityComplex:
		if _, err := o.orgs.GetComplexByID(ctx, entityID); err != nil {
			return nil, err
		}
		return o.orgs.ListClinicsByComplex(ctx, entityID)
	case EntityClinic:
		clinic, err := o.orgs.GetClinicByID(ctx, entityID)
		if err != nil {
			return nil, err
		}
		return []org.Clinic{*clinic}, nil
	}
	return nil, ErrInvalidEntityType
}

func (o *Orchestrator) futureAppointments(ctx context.Context, clinics []org.Clinic) ([]appointment.Appointment, error) {
	today := appointment.DateOf(o.now())
	var all []appointment.Appointment
	for _, clinic := range clinics {
		appts, err := o.appts.ListFutureActiveByClinic(ctx, clinic.ID, today)
		if err != nil {
			return nil, fmt.Errorf("list appointments for clinic %s: %w", clinic.ID, err)
		}
		all = append(all, appts...)
	}
	return all, nil
}

func (o *Orchestrator) commitStatus(ctx context.Context, entityType EntityType, entityID uuid.UUID) error {
	switch entityType {
	case EntityDepartment:
		return o.orgs.UpdateDepartmentStatus(ctx, entityID, org.StatusInactive)
	case EntityComplex:
		return o.orgs.UpdateComplexStatus(ctx, entityID, org.StatusInactive)
	case EntityClinic:
		return o.orgs.UpdateClinicStatus(ctx, entityID, org.StatusInactive)
	}
	return ErrInvalidEntityType
}

func (o *Orchestrator) fitsSchedule(a appointment.Appointment, entries []schedule.WorkingHoursEntry) bool {
	return spanFits(a.Span(), schedule.WindowsFromEntries(entries, a.Date.Weekday()))
}

func spanFits(span interval.Span, windows []interval.Span) bool {
	for _, w := range windows {
		if interval.Contains(w, span) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) enqueue(ctx context.Context, recipientID uuid.UUID, template string, vars map[string]string) {
	if err := o.notifier.Enqueue(ctx, recipientID, template, vars); err != nil {
		o.log.Warn().Err(err).Str("template", template).Msg("notification enqueue failed")
	}
}

func (o *Orchestrator) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		o.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}
	apptID := appointmentID
	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}
	if err := o.appts.InsertEvent(ctx, ev); err != nil {
		o.log.Error().Err(err).Str("event", eventType).Msg("insert event log")
	}
}

func remainingIDs(clinics []org.Clinic, from int) []uuid.UUID {
	var out []uuid.UUID
	for i := from; i < len(clinics); i++ {
		out = append(out, clinics[i].ID)
	}
	return out
}
