package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-scheduling/internal/interval"
	"github.com/clinicdesk/clinic-scheduling/internal/notify"
	redisclient "github.com/clinicdesk/clinic-scheduling/internal/redis"
)

const MinDoctorNotesLen = 10

var (
	ErrInvalidWindow = errors.New("appointment window must fit within a single day")
	ErrNotesTooShort = errors.New("doctor notes are required to complete an appointment")
	ErrCalendarBusy  = errors.New("doctor calendar is being modified, please retry")
	ErrSameDoctor    = errors.New("appointment already belongs to that doctor")
)

// Service drives the appointment state machine. Every operation that changes
// date, time, or doctor runs its conflict check and write inside the doctor's
// calendar lock, so concurrent bookings for the same doctor and day cannot
// both pass a stale conflict read.
type Service struct {
	repo     Repository
	detector *Detector
	avail    *AvailabilityService
	locker   redisclient.Locker
	notifier notify.Notifier
	log      zerolog.Logger

	suggestedSlots int
}

func NewService(repo Repository, detector *Detector, avail *AvailabilityService, locker redisclient.Locker, notifier notify.Notifier, log zerolog.Logger, suggestedSlots int) *Service {
	return &Service{
		repo:           repo,
		detector:       detector,
		avail:          avail,
		locker:         locker,
		notifier:       notifier,
		log:            log.With().Str("component", "appointment-service").Logger(),
		suggestedSlots: suggestedSlots,
	}
}

type CreateRequest struct {
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	ClinicID        uuid.UUID
	ServiceID       uuid.UUID
	DepartmentID    *uuid.UUID
	Date            time.Time
	StartMinutes    int
	DurationMinutes int
	Urgency         Urgency
}

// Create books a new appointment. The window must be conflict-free for doctor,
// patient, and clinic simultaneously; on conflict the error names the first
// conflicting party (doctor, then patient, then clinic) and carries nearby
// alternatives.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	duration, err := s.avail.SlotDuration(ctx, req.ClinicID, req.DurationMinutes)
	if err != nil {
		return nil, err
	}
	if err := validateWindow(req.StartMinutes, duration); err != nil {
		return nil, err
	}

	date := DateOf(req.Date)
	cand := Candidate{
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		ClinicID:        req.ClinicID,
		Date:            date,
		StartMinutes:    req.StartMinutes,
		DurationMinutes: duration,
	}

	var created *Appointment

	err = s.locker.WithCalendarLock(ctx, req.DoctorID, date, func(lockCtx context.Context) error {
		conflict, err := s.detector.FindConflict(lockCtx, cand, uuid.Nil)
		if err != nil {
			return err
		}
		if conflict != nil {
			return s.conflictError(lockCtx, conflict, cand)
		}

		urgency := req.Urgency
		if urgency == "" {
			urgency = UrgencyRoutine
		}

		appt, err := s.repo.Create(lockCtx, &Appointment{
			ID:              uuid.New(),
			PatientID:       req.PatientID,
			DoctorID:        req.DoctorID,
			ClinicID:        req.ClinicID,
			ServiceID:       req.ServiceID,
			DepartmentID:    req.DepartmentID,
			Date:            date,
			StartMinutes:    req.StartMinutes,
			DurationMinutes: duration,
			Status:          StatusScheduled,
			Urgency:         urgency,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		s.logEvent(lockCtx, appt.ID, EventCreated, map[string]any{
			"doctor_id": req.DoctorID.String(),
			"date":      date.Format("2006-01-02"),
			"time":      interval.FromMinutes(req.StartMinutes),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrCalendarBusy
		}
		return nil, err
	}

	s.notifyPatient(ctx, created, notify.TemplateAppointmentCreated, nil)
	return created, nil
}

// Reschedule moves an appointment to a new date/time, keeping its status.
// Rescheduling to the current date and time is a successful no-op.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newStartMinutes int, reason string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanRebook(appt.Status) {
		return nil, &TransitionError{From: appt.Status, To: appt.Status}
	}
	if err := validateWindow(newStartMinutes, appt.DurationMinutes); err != nil {
		return nil, err
	}

	date := DateOf(newDate)
	if date.Equal(appt.Date) && newStartMinutes == appt.StartMinutes {
		return appt, nil
	}

	cand := Candidate{
		DoctorID:        appt.DoctorID,
		PatientID:       appt.PatientID,
		ClinicID:        appt.ClinicID,
		Date:            date,
		StartMinutes:    newStartMinutes,
		DurationMinutes: appt.DurationMinutes,
	}

	var updated *Appointment

	err = s.locker.WithCalendarLock(ctx, appt.DoctorID, date, func(lockCtx context.Context) error {
		conflict, err := s.detector.FindConflict(lockCtx, cand, appt.ID)
		if err != nil {
			return err
		}
		if conflict != nil {
			return s.conflictError(lockCtx, conflict, cand)
		}

		updated, err = s.repo.UpdateSchedule(lockCtx, appt.ID, appt.Status, date, newStartMinutes, reason)
		if err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}

		s.logEvent(lockCtx, appt.ID, EventRescheduled, map[string]any{
			"old_date": appt.Date.Format("2006-01-02"),
			"old_time": appt.TimeString(),
			"new_date": date.Format("2006-01-02"),
			"new_time": interval.FromMinutes(newStartMinutes),
			"reason":   reason,
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrCalendarBusy
		}
		return nil, err
	}

	s.notifyPatient(ctx, updated, notify.TemplateAppointmentRescheduled, map[string]string{
		"new_date": updated.Date.Format("2006-01-02"),
		"new_time": updated.TimeString(),
	})
	return updated, nil
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, EventConfirmed, notify.TemplateAppointmentConfirmed)
}

// Start moves a confirmed appointment to in_progress.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusInProgress, EventStarted, "")
}

// NoShow terminates an appointment whose patient did not arrive.
func (s *Service) NoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, EventNoShow, notify.TemplateAppointmentNoShow)
}

// Cancel terminates an appointment with a reason. allowReschedule only signals
// that the patient may book again through the normal path; cancellation never
// creates a replacement appointment by itself.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string, allowReschedule bool) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transition(appt.Status, StatusCancelled); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, StatusCancelled, reason)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, id, EventCancelled, map[string]any{
		"reason":           reason,
		"allow_reschedule": allowReschedule,
	})
	s.notifyPatient(ctx, updated, notify.TemplateAppointmentCancelled, map[string]string{
		"reason": reason,
	})
	return updated, nil
}

// Complete closes out an in-progress appointment. Clinical notes are
// mandatory; a follow-up request is recorded as a marker, not a new booking.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, doctorNotes string, followUp bool) (*Appointment, error) {
	if len(strings.TrimSpace(doctorNotes)) < MinDoctorNotesLen {
		return nil, ErrNotesTooShort
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transition(appt.Status, StatusCompleted); err != nil {
		return nil, err
	}

	updated, err := s.repo.CompleteWithNotes(ctx, id, appt.Status, doctorNotes, followUp)
	if err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	s.logEvent(ctx, id, EventCompleted, map[string]any{
		"follow_up": followUp,
	})
	s.notifyPatient(ctx, updated, notify.TemplateAppointmentCompleted, nil)
	return updated, nil
}

// TransferDoctor re-assigns the appointment to another doctor at the same
// date/time, validating against the new doctor's calendar.
func (s *Service) TransferDoctor(ctx context.Context, id, newDoctorID, transferredBy uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanRebook(appt.Status) {
		return nil, &TransitionError{From: appt.Status, To: appt.Status}
	}
	if appt.DoctorID == newDoctorID {
		return nil, ErrSameDoctor
	}

	var updated *Appointment

	err = s.locker.WithCalendarLock(ctx, newDoctorID, appt.Date, func(lockCtx context.Context) error {
		busy, err := s.repo.ListActiveByDoctorOnDate(lockCtx, newDoctorID, appt.Date)
		if err != nil {
			return fmt.Errorf("list doctor appointments: %w", err)
		}
		for i := range busy {
			if interval.Overlaps(appt.Span(), busy[i].Span()) {
				return &ConflictError{Party: PartyDoctor, ConflictingID: busy[i].ID}
			}
		}

		updated, err = s.repo.UpdateDoctor(lockCtx, appt.ID, appt.Status, newDoctorID, transferredBy)
		if err != nil {
			return fmt.Errorf("transfer appointment: %w", err)
		}

		s.logEvent(lockCtx, appt.ID, EventDoctorTransferred, map[string]any{
			"previous_doctor_id": appt.DoctorID.String(),
			"new_doctor_id":      newDoctorID.String(),
			"transferred_by":     transferredBy.String(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrCalendarBusy
		}
		return nil, err
	}

	s.notifyPatient(ctx, updated, notify.TemplateDoctorTransferred, nil)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, event, template string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Transition(appt.Status, to); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, appt.Status, to, "")
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, id, event, map[string]any{})
	if template != "" {
		s.notifyPatient(ctx, updated, template, nil)
	}
	return updated, nil
}

// conflictError attaches up to suggestedSlots alternatives to a detected
// conflict. A failed suggestion lookup degrades to a bare conflict error.
func (s *Service) conflictError(ctx context.Context, conflict *Conflict, cand Candidate) error {
	suggestions, err := s.avail.SuggestTimes(ctx, cand.DoctorID, cand.ClinicID, cand.Date, cand.StartMinutes, cand.DurationMinutes, s.suggestedSlots)
	if err != nil {
		s.log.Warn().Err(err).Msg("suggestion lookup failed")
		suggestions = nil
	}
	return &ConflictError{
		Party:          conflict.Party,
		ConflictingID:  conflict.AppointmentID,
		SuggestedTimes: suggestions,
	}
}

func (s *Service) notifyPatient(ctx context.Context, appt *Appointment, template string, vars map[string]string) {
	if appt == nil {
		return
	}
	if err := s.notifier.Enqueue(ctx, appt.PatientID, template, vars); err != nil {
		s.log.Warn().Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("template", template).
			Msg("notification enqueue failed")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}

func validateWindow(startMinutes, durationMinutes int) error {
	if durationMinutes <= 0 ||
		startMinutes < 0 ||
		startMinutes+durationMinutes > interval.MinutesPerDay {
		return ErrInvalidWindow
	}
	return nil
}
