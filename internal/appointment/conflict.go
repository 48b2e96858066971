package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/interval"
)

// Party identifies whose calendar a double-booking was found on.
type Party string

const (
	PartyDoctor  Party = "doctor"
	PartyPatient Party = "patient"
	PartyClinic  Party = "clinic"
)

// Candidate is a proposed booking window to test for double-booking.
type Candidate struct {
	DoctorID        uuid.UUID
	PatientID       uuid.UUID
	ClinicID        uuid.UUID
	Date            time.Time
	StartMinutes    int
	DurationMinutes int
}

func (c Candidate) Span() interval.Span {
	return interval.Span{Start: c.StartMinutes, End: c.StartMinutes + c.DurationMinutes}
}

// Conflict names the existing appointment a candidate collides with and the
// party whose calendar it was found on.
type Conflict struct {
	Party         Party
	AppointmentID uuid.UUID
}

// SuggestedTime is an alternative offered alongside a conflict error.
type SuggestedTime struct {
	Date time.Time `json:"date"`
	Time string    `json:"time"`
}

// ConflictError is the double-booking failure surfaced to callers. It always
// carries the conflicting appointment and party; booking and reschedule paths
// attach nearby alternatives when any exist.
type ConflictError struct {
	Party          Party
	ConflictingID  uuid.UUID
	SuggestedTimes []SuggestedTime
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting appointment %s on %s calendar", e.ConflictingID, e.Party)
}

// Detector finds overlaps between a candidate window and existing non-terminal
// appointments.
type Detector struct {
	repo Repository
}

func NewDetector(repo Repository) *Detector {
	return &Detector{repo: repo}
}

// FindConflict checks the doctor's, then the patient's, then the clinic's
// calendar, in that order so error messages are deterministic; the first
// overlap wins. excludeID skips the appointment's own record during a
// reschedule. A nil Conflict with nil error means the window is free.
func (d *Detector) FindConflict(ctx context.Context, c Candidate, excludeID uuid.UUID) (*Conflict, error) {
	span := c.Span()
	date := DateOf(c.Date)

	checks := []struct {
		party Party
		list  func() ([]Appointment, error)
	}{
		{PartyDoctor, func() ([]Appointment, error) {
			return d.repo.ListActiveByDoctorOnDate(ctx, c.DoctorID, date)
		}},
		{PartyPatient, func() ([]Appointment, error) {
			return d.repo.ListActiveByPatientOnDate(ctx, c.PatientID, date)
		}},
		{PartyClinic, func() ([]Appointment, error) {
			return d.repo.ListActiveByClinicOnDate(ctx, c.ClinicID, date)
		}},
	}

	for _, check := range checks {
		existing, err := check.list()
		if err != nil {
			return nil, fmt.Errorf("list %s appointments: %w", check.party, err)
		}
		for i := range existing {
			appt := &existing[i]
			if appt.ID == excludeID {
				continue
			}
			if interval.Overlaps(span, appt.Span()) {
				return &Conflict{Party: check.party, AppointmentID: appt.ID}, nil
			}
		}
	}

	return nil, nil
}
