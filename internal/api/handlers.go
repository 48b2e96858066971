package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/appointment"
	"github.com/clinicdesk/clinic-scheduling/internal/cascade"
	"github.com/clinicdesk/clinic-scheduling/internal/interval"
	"github.com/clinicdesk/clinic-scheduling/internal/org"
	redisclient "github.com/clinicdesk/clinic-scheduling/internal/redis"
	"github.com/clinicdesk/clinic-scheduling/internal/schedule"
)

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		clinicID, err := uuid.Parse(req.ClinicID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		var departmentID *uuid.UUID
		if req.DepartmentID != "" {
			id, err := uuid.Parse(req.DepartmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_department_id", "department_id must be a valid UUID")
				return
			}
			departmentID = &id
		}

		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		startMinutes, err := interval.ToMinutes(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:mm")
			return
		}

		urgency := appointment.UrgencyRoutine
		if req.Urgency != "" {
			urgency = appointment.Urgency(req.Urgency)
		}

		appt, err := svc.Create(r.Context(), appointment.CreateRequest{
			PatientID:       patientID,
			DoctorID:        doctorID,
			ClinicID:        clinicID,
			ServiceID:       serviceID,
			DepartmentID:    departmentID,
			Date:            date,
			StartMinutes:    startMinutes,
			DurationMinutes: req.DurationMinutes,
			Urgency:         urgency,
		})
		if err != nil {
			handleAppointmentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// transitionHandler covers the bodyless lifecycle actions: confirm, start,
// no-show.
func transitionHandler(do func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		appt, err := do(r, id)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req CancelRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}
		appt, err := svc.Cancel(r.Context(), id, req.Reason, false)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req CompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		appt, err := svc.Complete(r.Context(), id, req.DoctorNotes, req.FollowUpRequested)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		startMinutes, err := interval.ToMinutes(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", "time must be HH:mm")
			return
		}
		appt, err := svc.Reschedule(r.Context(), id, date, startMinutes, req.Reason)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func transferDoctorHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req TransferDoctorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		newDoctorID, err := uuid.Parse(req.NewDoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "new_doctor_id must be a valid UUID")
			return
		}
		transferredBy, err := uuid.Parse(req.TransferredBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_transferred_by", "transferred_by must be a valid UUID")
			return
		}
		appt, err := svc.TransferDoctor(r.Context(), id, newDoctorID, transferredBy)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func availabilityHandler(avail *appointment.AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		doctorID, err := uuid.Parse(q.Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		clinicID, err := uuid.Parse(q.Get("clinic_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "clinic_id must be a valid UUID")
			return
		}
		date, err := parseDate(q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		duration := 0
		if v := q.Get("duration_minutes"); v != "" {
			duration, err = strconv.Atoi(v)
			if err != nil || duration < 0 {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration_minutes must be a positive integer")
				return
			}
		}

		slots, err := avail.ComputeSlots(r.Context(), doctorID, clinicID, date, duration)
		if err != nil {
			handleAppointmentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID: doctorID,
			ClinicID: clinicID,
			Date:     date.Format("2006-01-02"),
			Slots:    slots,
		})
	}
}

func cascadeDeactivationHandler(orch *cascade.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CascadeDeactivationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		entityID, err := uuid.Parse(req.EntityID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entity_id", "entity_id must be a valid UUID")
			return
		}
		initiatedBy, err := uuid.Parse(req.InitiatedBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_initiated_by", "initiated_by must be a valid UUID")
			return
		}

		result, err := orch.CascadeDeactivation(r.Context(), cascade.Request{
			EntityType:     cascade.EntityType(req.EntityType),
			EntityID:       entityID,
			Policy:         cascade.Policy(req.Policy),
			NotifyPatients: req.NotifyPatients,
			Reason:         req.Reason,
			InitiatedBy:    initiatedBy,
		})
		if err != nil {
			handleCascadeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func transferClinicsHandler(orch *cascade.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TransferClinicsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		sourceID, err := uuid.Parse(req.SourceComplexID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_source_complex_id", "source_complex_id must be a valid UUID")
			return
		}
		targetID, err := uuid.Parse(req.TargetComplexID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_target_complex_id", "target_complex_id must be a valid UUID")
			return
		}
		initiatedBy, err := uuid.Parse(req.InitiatedBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_initiated_by", "initiated_by must be a valid UUID")
			return
		}
		if len(req.ClinicIDs) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_clinic_ids", "clinic_ids must not be empty")
			return
		}
		clinicIDs := make([]uuid.UUID, 0, len(req.ClinicIDs))
		for _, raw := range req.ClinicIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_clinic_ids", "clinic_ids must be valid UUIDs")
				return
			}
			clinicIDs = append(clinicIDs, id)
		}

		result, err := orch.TransferClinics(r.Context(), sourceID, targetID, clinicIDs, req.NotifyPatients, initiatedBy)
		if err != nil {
			handleCascadeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func workingHoursChangeHandler(orch *cascade.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinic_id", "id must be a valid UUID")
			return
		}
		var req WorkingHoursChangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		initiatedBy, err := uuid.Parse(req.InitiatedBy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_initiated_by", "initiated_by must be a valid UUID")
			return
		}

		entries := make([]schedule.WorkingHoursEntry, 0, len(req.Entries))
		for _, p := range req.Entries {
			entry, err := entryFromPayload(clinicID, p)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_working_hours", err.Error())
				return
			}
			entries = append(entries, entry)
		}

		result, err := orch.ApplyWorkingHoursChange(r.Context(), clinicID, entries, cascade.Request{
			EntityType:     cascade.EntityClinic,
			EntityID:       clinicID,
			Policy:         cascade.Policy(req.Policy),
			NotifyPatients: req.NotifyPatients,
			Reason:         req.Reason,
			InitiatedBy:    initiatedBy,
		})
		if err != nil {
			handleCascadeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func entryFromPayload(clinicID uuid.UUID, p WorkingHoursEntryPayload) (schedule.WorkingHoursEntry, error) {
	entry := schedule.WorkingHoursEntry{
		EntityType:   schedule.EntityClinic,
		EntityID:     clinicID,
		Weekday:      time.Weekday(p.Weekday),
		IsWorkingDay: p.IsWorkingDay,
	}
	if !p.IsWorkingDay {
		return entry, entry.Validate()
	}

	var err error
	if entry.OpenMinutes, err = interval.ToMinutes(p.OpeningTime); err != nil {
		return entry, err
	}
	if entry.CloseMinutes, err = interval.ToMinutes(p.ClosingTime); err != nil {
		return entry, err
	}
	if p.BreakStart != "" || p.BreakEnd != "" {
		bs, err := interval.ToMinutes(p.BreakStart)
		if err != nil {
			return entry, err
		}
		be, err := interval.ToMinutes(p.BreakEnd)
		if err != nil {
			return entry, err
		}
		entry.BreakStart, entry.BreakEnd = &bs, &be
	}
	return entry, entry.Validate()
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}

func handleAppointmentError(w http.ResponseWriter, err error) {
	var conflict *appointment.ConflictError
	var transition *appointment.TransitionError

	switch {
	case errors.As(err, &conflict):
		resp := ErrorResponse{
			Error:         "conflicting_appointment",
			Details:       conflict.Error(),
			Party:         string(conflict.Party),
			ConflictingID: &conflict.ConflictingID,
		}
		for _, st := range conflict.SuggestedTimes {
			resp.SuggestedTimes = append(resp.SuggestedTimes, SuggestedTimePayload{
				Date: st.Date.Format("2006-01-02"),
				Time: st.Time,
			})
		}
		writeJSON(w, http.StatusConflict, resp)
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, org.ErrClinicNotFound):
		writeError(w, http.StatusNotFound, "clinic_not_found", err.Error())
	case errors.Is(err, appointment.ErrCalendarBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "calendar_busy", "doctor calendar is being modified, please retry shortly")
	case errors.Is(err, appointment.ErrStaleStatus):
		writeError(w, http.StatusConflict, "stale_status", err.Error())
	case errors.Is(err, appointment.ErrSameDoctor):
		writeError(w, http.StatusConflict, "same_doctor", err.Error())
	case errors.Is(err, appointment.ErrInvalidWindow),
		errors.Is(err, appointment.ErrNotesTooShort),
		errors.Is(err, interval.ErrBadClock):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleCascadeError(w http.ResponseWriter, err error) {
	var aborted *cascade.AbortedError
	var planLimit *org.PlanLimitError

	switch {
	case errors.As(err, &planLimit):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:     "plan_limit_exceeded",
			Details:   planLimit.Error(),
			Resource:  planLimit.Resource,
			Limit:     planLimit.Limit,
			Current:   planLimit.Current,
			Requested: planLimit.Requested,
		})
	case errors.As(err, &aborted):
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:        "cascade_aborted",
			Details:      aborted.Error(),
			ProcessedIDs: aborted.Processed,
			PendingIDs:   aborted.Pending,
		})
	case errors.Is(err, cascade.ErrInvalidPolicy),
		errors.Is(err, cascade.ErrInvalidEntityType),
		errors.Is(err, cascade.ErrClinicNotInSource),
		errors.Is(err, schedule.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, cascade.ErrTargetComplexClosed):
		writeError(w, http.StatusConflict, "target_complex_closed", err.Error())
	case errors.Is(err, org.ErrComplexNotFound),
		errors.Is(err, org.ErrDepartmentNotFound),
		errors.Is(err, org.ErrClinicNotFound):
		writeError(w, http.StatusNotFound, "entity_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
