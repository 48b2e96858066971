package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	DoctorID        string `json:"doctor_id"`
	ClinicID        string `json:"clinic_id"`
	ServiceID       string `json:"service_id"`
	DepartmentID    string `json:"department_id,omitempty"`
	Date            string `json:"date"` // YYYY-MM-DD
	Time            string `json:"time"` // HH:mm
	DurationMinutes int    `json:"duration_minutes"`
	Urgency         string `json:"urgency,omitempty"`
}

type RescheduleRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CompleteRequest struct {
	DoctorNotes       string `json:"doctor_notes"`
	FollowUpRequested bool   `json:"follow_up_requested"`
}

type TransferDoctorRequest struct {
	NewDoctorID   string `json:"new_doctor_id"`
	TransferredBy string `json:"transferred_by"`
}

type CascadeDeactivationRequest struct {
	EntityType     string `json:"entity_type"` // department, complex, clinic
	EntityID       string `json:"entity_id"`
	Policy         string `json:"policy"` // reschedule, notify, cancel
	NotifyPatients bool   `json:"notify_patients"`
	Reason         string `json:"reason,omitempty"`
	InitiatedBy    string `json:"initiated_by"`
}

type TransferClinicsRequest struct {
	SourceComplexID string   `json:"source_complex_id"`
	TargetComplexID string   `json:"target_complex_id"`
	ClinicIDs       []string `json:"clinic_ids"`
	NotifyPatients  bool     `json:"notify_patients"`
	InitiatedBy     string   `json:"initiated_by"`
}

type WorkingHoursEntryPayload struct {
	Weekday      int    `json:"weekday"` // 0=Sunday .. 6=Saturday
	IsWorkingDay bool   `json:"is_working_day"`
	OpeningTime  string `json:"opening_time,omitempty"` // HH:mm
	ClosingTime  string `json:"closing_time,omitempty"`
	BreakStart   string `json:"break_start,omitempty"`
	BreakEnd     string `json:"break_end,omitempty"`
}

type WorkingHoursChangeRequest struct {
	Entries        []WorkingHoursEntryPayload `json:"entries"`
	Policy         string                     `json:"policy"`
	NotifyPatients bool                       `json:"notify_patients"`
	Reason         string                     `json:"reason,omitempty"`
	InitiatedBy    string                     `json:"initiated_by"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	ClinicID        uuid.UUID  `json:"clinic_id"`
	ServiceID       uuid.UUID  `json:"service_id"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Urgency         string     `json:"urgency,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`
	PreviousDoctor  *uuid.UUID `json:"previous_doctor_id,omitempty"`
	MarkedAt        *time.Time `json:"marked_for_rescheduling_at,omitempty"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID          `json:"doctor_id"`
	ClinicID uuid.UUID          `json:"clinic_id"`
	Date     string             `json:"date"`
	Slots    []appointment.Slot `json:"slots"`
}

type SuggestedTimePayload struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	// Conflict payload.
	Party          string                 `json:"party,omitempty"`
	ConflictingID  *uuid.UUID             `json:"conflicting_appointment_id,omitempty"`
	SuggestedTimes []SuggestedTimePayload `json:"suggested_times,omitempty"`

	// Plan-limit payload.
	Resource  string `json:"resource,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Current   int    `json:"current,omitempty"`
	Requested int    `json:"requested,omitempty"`

	// Aborted-cascade payload.
	ProcessedIDs []uuid.UUID `json:"processed_appointment_ids,omitempty"`
	PendingIDs   []uuid.UUID `json:"pending_appointment_ids,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		ClinicID:        a.ClinicID,
		ServiceID:       a.ServiceID,
		Date:            a.Date.Format("2006-01-02"),
		Time:            a.TimeString(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Urgency:         string(a.Urgency),
		CancelReason:    a.CancelReason,
		PreviousDoctor:  a.PreviousDoctorID,
		MarkedAt:        a.MarkedForReschedulingAt,
	}
}
