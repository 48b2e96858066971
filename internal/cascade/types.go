package cascade

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Policy decides what happens to each future appointment caught in a cascade.
type Policy string

const (
	PolicyReschedule Policy = "reschedule"
	PolicyNotify     Policy = "notify"
	PolicyCancel     Policy = "cancel"
)

func (p Policy) Valid() bool {
	switch p {
	case PolicyReschedule, PolicyNotify, PolicyCancel:
		return true
	}
	return false
}

type EntityType string

const (
	EntityDepartment EntityType = "department"
	EntityComplex    EntityType = "complex"
	EntityClinic     EntityType = "clinic"
)

var (
	ErrInvalidPolicy       = errors.New("conflict-handling policy must be reschedule, notify or cancel")
	ErrInvalidEntityType   = errors.New("entity type must be department, complex or clinic")
	ErrClinicNotInSource   = errors.New("clinic does not belong to the source complex")
	ErrTargetComplexClosed = errors.New("target complex is not active")
)

// Request describes one lifecycle event to cascade.
type Request struct {
	EntityType     EntityType
	EntityID       uuid.UUID
	Policy         Policy
	NotifyPatients bool
	Reason         string
	InitiatedBy    uuid.UUID
}

// Outcome is the per-appointment record of what the cascade decided.
type Outcome struct {
	AppointmentID uuid.UUID  `json:"appointment_id"`
	OldDate       time.Time  `json:"old_date"`
	OldTime       string     `json:"old_time"`
	NewDate       *time.Time `json:"new_date,omitempty"`
	NewTime       *string    `json:"new_time,omitempty"`
	Status        string     `json:"status"`
}

const (
	OutcomeRescheduled = "rescheduled"
	OutcomeMarked      = "marked_for_rescheduling"
	OutcomeCancelled   = "cancelled"

	// OutcomeSkipped records an appointment a concurrent actor had already
	// driven to a terminal state before the cascade reached it.
	OutcomeSkipped = "already_terminal"
)

// Result aggregates a cascade run. Rescheduled + Marked + Cancelled + Skipped
// always equals the number of affected appointments; Skipped is nonzero only
// when another writer races the run.
type Result struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   uuid.UUID  `json:"entity_id"`

	AppointmentsRescheduled           int `json:"appointments_rescheduled"`
	AppointmentsMarkedForRescheduling int `json:"appointments_marked_for_rescheduling"`
	AppointmentsCancelled             int `json:"appointments_cancelled"`
	AppointmentsSkipped               int `json:"appointments_skipped"`
	NotificationsSent                 int `json:"notifications_sent"`

	Details []Outcome `json:"details"`
}

// ConflictDetail flags an appointment a transfer could not place cleanly.
type ConflictDetail struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Reason        string    `json:"reason"`
}

// TransferRecord is the per-clinic audit entry of a transfer.
type TransferRecord struct {
	ClinicID             uuid.UUID        `json:"clinic_id"`
	FromComplexID        uuid.UUID        `json:"from_complex_id"`
	ToComplexID          uuid.UUID        `json:"to_complex_id"`
	StaffUpdated         int              `json:"staff_updated"`
	AppointmentsAffected int              `json:"appointments_affected"`
	Conflicts            []ConflictDetail `json:"conflicts"`
}

type TransferResult struct {
	SourceComplexID    uuid.UUID        `json:"source_complex_id"`
	TargetComplexID    uuid.UUID        `json:"target_complex_id"`
	ClinicsTransferred int              `json:"clinics_transferred"`
	Records            []TransferRecord `json:"records"`
}

// AbortedError reports an irrecoverably failed cascade: which appointments had
// already been committed (for reconciliation) and which were still pending
// when the run stopped.
type AbortedError struct {
	Processed []uuid.UUID
	Pending   []uuid.UUID
	Cause     error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("cascade aborted after %d of %d appointments: %v",
		len(e.Processed), len(e.Processed)+len(e.Pending), e.Cause)
}

func (e *AbortedError) Unwrap() error {
	return e.Cause
}
