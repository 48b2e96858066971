package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("appointment not found")

	// ErrStaleStatus is returned when a compare-and-swap update finds the row
	// in a different state than the caller observed.
	ErrStaleStatus = errors.New("appointment status changed concurrently")
)

// Repository contains all DB interactions the scheduling engine needs.
// Mutations that depend on the observed status are compare-and-swap: they match
// on the expected status and fail with ErrStaleStatus when it moved.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Create(ctx context.Context, a *Appointment) (*Appointment, error)

	// Calendar reads for the conflict detector and availability calculator.
	// All three return only non-terminal appointments for the given civil date.
	ListActiveByDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error)
	ListActiveByPatientOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) ([]Appointment, error)
	ListActiveByClinicOnDate(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error)

	// Cascade scope enumeration: non-terminal appointments with date >= from.
	ListFutureActiveByClinic(ctx context.Context, clinicID uuid.UUID, from time.Time) ([]Appointment, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, reason string) (*Appointment, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, from Status, date time.Time, startMinutes int, reason string) (*Appointment, error)
	UpdateDoctor(ctx context.Context, id uuid.UUID, from Status, newDoctorID, transferredBy uuid.UUID) (*Appointment, error)
	CompleteWithNotes(ctx context.Context, id uuid.UUID, from Status, doctorNotes string, followUp bool) (*Appointment, error)

	// MarkForRescheduling is idempotent: an already-marked appointment is
	// returned unchanged with alreadyMarked=true so cascades can re-run safely.
	MarkForRescheduling(ctx context.Context, id, markedBy uuid.UUID, reason string) (appt *Appointment, alreadyMarked bool, err error)

	// Reminder worker feed.
	ListMarkedForRescheduling(ctx context.Context, from time.Time, limit int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
