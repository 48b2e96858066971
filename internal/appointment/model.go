package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/interval"
)

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

type Urgency string

const (
	UrgencyRoutine Urgency = "routine"
	UrgencyUrgent  Urgency = "urgent"
)

// Appointment occupies the half-open window
// [StartMinutes, StartMinutes+DurationMinutes) on Date, facility-local time.
// Records are never physically deleted; cancellation soft-deletes.
type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	ClinicID        uuid.UUID
	ServiceID       uuid.UUID
	DepartmentID    *uuid.UUID
	Date            time.Time // civil date, UTC midnight
	StartMinutes    int
	DurationMinutes int
	Status          Status
	Urgency         Urgency

	PreviousDoctorID *uuid.UUID
	TransferredAt    *time.Time
	TransferredBy    *uuid.UUID

	ReschedulingReason      string
	MarkedForReschedulingAt *time.Time
	MarkedBy                *uuid.UUID

	DoctorNotes       string
	FollowUpRequested bool
	CancelReason      string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (a *Appointment) Span() interval.Span {
	return interval.Span{Start: a.StartMinutes, End: a.StartMinutes + a.DurationMinutes}
}

func (a *Appointment) TimeString() string {
	return interval.FromMinutes(a.StartMinutes)
}

// Active reports whether the appointment still occupies its calendar window,
// i.e. its status is non-terminal.
func (a *Appointment) Active() bool {
	return !IsTerminal(a.Status)
}

// Slot is a computed candidate time. Slots are regenerated per query and never
// persisted; busy slots are returned too so a caller can render a full day view
// without a second query.
type Slot struct {
	Time                     string     `json:"time"`
	StartMinutes             int        `json:"-"`
	IsAvailable              bool       `json:"is_available"`
	Reason                   string     `json:"reason,omitempty"`
	ConflictingAppointmentID *uuid.UUID `json:"conflicting_appointment_id,omitempty"`
}

// EventLog rows form the audit trail for every lifecycle transition, including
// the ones cascades make in bulk.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

const (
	EventCreated               = "APPOINTMENT_CREATED"
	EventConfirmed             = "APPOINTMENT_CONFIRMED"
	EventStarted               = "APPOINTMENT_STARTED"
	EventCompleted             = "APPOINTMENT_COMPLETED"
	EventCancelled             = "APPOINTMENT_CANCELLED"
	EventNoShow                = "APPOINTMENT_NO_SHOW"
	EventRescheduled           = "APPOINTMENT_RESCHEDULED"
	EventDoctorTransferred     = "APPOINTMENT_DOCTOR_TRANSFERRED"
	EventMarkedForRescheduling = "APPOINTMENT_MARKED_FOR_RESCHEDULING"
)

// DateOf truncates t to its civil date at UTC midnight, the canonical form for
// Appointment.Date comparisons.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
