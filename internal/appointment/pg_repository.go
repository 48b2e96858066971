package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const apptColumns = `
	id, patient_id, doctor_id, clinic_id, service_id, department_id,
	date, start_minutes, duration_minutes, status, urgency,
	previous_doctor_id, transferred_at, transferred_by,
	rescheduling_reason, marked_for_rescheduling_at, marked_by,
	doctor_notes, follow_up_requested, cancel_reason,
	created_at, updated_at, deleted_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reschedulingReason, doctorNotes, cancelReason *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ClinicID,
		&a.ServiceID,
		&a.DepartmentID,
		&a.Date,
		&a.StartMinutes,
		&a.DurationMinutes,
		&a.Status,
		&a.Urgency,
		&a.PreviousDoctorID,
		&a.TransferredAt,
		&a.TransferredBy,
		&reschedulingReason,
		&a.MarkedForReschedulingAt,
		&a.MarkedBy,
		&doctorNotes,
		&a.FollowUpRequested,
		&cancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if reschedulingReason != nil {
		a.ReschedulingReason = *reschedulingReason
	}
	if doctorNotes != nil {
		a.DoctorNotes = *doctorNotes
	}
	if cancelReason != nil {
		a.CancelReason = *cancelReason
	}
	return &a, nil
}

func (r *PgRepository) collect(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, patient_id, doctor_id, clinic_id, service_id, department_id,
			 date, start_minutes, duration_minutes, status, urgency,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+apptColumns+`
	`, id, a.PatientID, a.DoctorID, a.ClinicID, a.ServiceID, a.DepartmentID,
		a.Date, a.StartMinutes, a.DurationMinutes, a.Status, a.Urgency)

	return scanAppointment(row)
}

func (r *PgRepository) ListActiveByDoctorOnDate(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Appointment, error) {
	return r.collect(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND status NOT IN ('completed', 'cancelled', 'no_show')
		ORDER BY start_minutes
	`, doctorID, date)
}

func (r *PgRepository) ListActiveByPatientOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) ([]Appointment, error) {
	return r.collect(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND date = $2
		  AND status NOT IN ('completed', 'cancelled', 'no_show')
		ORDER BY start_minutes
	`, patientID, date)
}

func (r *PgRepository) ListActiveByClinicOnDate(ctx context.Context, clinicID uuid.UUID, date time.Time) ([]Appointment, error) {
	return r.collect(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE clinic_id = $1
		  AND date = $2
		  AND status NOT IN ('completed', 'cancelled', 'no_show')
		ORDER BY start_minutes
	`, clinicID, date)
}

func (r *PgRepository) ListFutureActiveByClinic(ctx context.Context, clinicID uuid.UUID, from time.Time) ([]Appointment, error) {
	return r.collect(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE clinic_id = $1
		  AND date >= $2
		  AND status NOT IN ('completed', 'cancelled', 'no_show')
		ORDER BY date, start_minutes
	`, clinicID, from)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, reason string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_reason = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancel_reason END,
		    deleted_at = CASE WHEN $2 = 'cancelled' THEN now() ELSE deleted_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+apptColumns+`
	`, id, to, from, reason)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, r.staleOrMissing(ctx, id)
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, from Status, date time.Time, startMinutes int, reason string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    start_minutes = $3,
		    rescheduling_reason = $4,
		    marked_for_rescheduling_at = NULL,
		    marked_by = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = $5
		RETURNING `+apptColumns+`
	`, id, date, startMinutes, reason, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, r.staleOrMissing(ctx, id)
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) UpdateDoctor(ctx context.Context, id uuid.UUID, from Status, newDoctorID, transferredBy uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET previous_doctor_id = doctor_id,
		    doctor_id = $2,
		    transferred_at = now(),
		    transferred_by = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+apptColumns+`
	`, id, newDoctorID, transferredBy, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, r.staleOrMissing(ctx, id)
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) CompleteWithNotes(ctx context.Context, id uuid.UUID, from Status, doctorNotes string, followUp bool) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    doctor_notes = $2,
		    follow_up_requested = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+apptColumns+`
	`, id, doctorNotes, followUp, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, r.staleOrMissing(ctx, id)
		}
		return nil, err
	}
	return appt, nil
}

func (r *PgRepository) MarkForRescheduling(ctx context.Context, id, markedBy uuid.UUID, reason string) (*Appointment, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET marked_for_rescheduling_at = now(),
		    marked_by = $2,
		    rescheduling_reason = $3,
		    updated_at = now()
		WHERE id = $1
		  AND marked_for_rescheduling_at IS NULL
		  AND status NOT IN ('completed', 'cancelled', 'no_show')
		RETURNING `+apptColumns+`
	`, id, markedBy, reason)

	appt, err := scanAppointment(row)
	if err == nil {
		return appt, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	// Either missing or already marked; re-read to tell the two apart.
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if existing.MarkedForReschedulingAt != nil {
		return existing, true, nil
	}
	return nil, false, ErrStaleStatus
}

func (r *PgRepository) ListMarkedForRescheduling(ctx context.Context, from time.Time, limit int) ([]Appointment, error) {
	return r.collect(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE marked_for_rescheduling_at IS NOT NULL
		  AND date >= $1
		  AND status NOT IN ('completed', 'cancelled', 'no_show')
		ORDER BY marked_for_rescheduling_at
		LIMIT $2
	`, from, limit)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

// staleOrMissing distinguishes a vanished row from a compare-and-swap miss.
func (r *PgRepository) staleOrMissing(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrStaleStatus
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
