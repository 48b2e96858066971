package org

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanComplex(row pgx.Row) (*Complex, error) {
	var c Complex
	err := row.Scan(
		&c.ID,
		&c.OrganizationID,
		&c.SubscriptionID,
		&c.Name,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrComplexNotFound
		}
		return nil, err
	}
	return &c, nil
}

func scanDepartment(row pgx.Row) (*Department, error) {
	var d Department
	err := row.Scan(
		&d.ID,
		&d.ComplexID,
		&d.Name,
		&d.Status,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func scanClinic(row pgx.Row) (*Clinic, error) {
	var c Clinic
	err := row.Scan(
		&c.ID,
		&c.ComplexID,
		&c.DepartmentID,
		&c.Name,
		&c.Status,
		&c.SessionDurationMinutes,
		&c.StaffCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) GetComplexByID(ctx context.Context, id uuid.UUID) (*Complex, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, subscription_id, name, status, created_at, updated_at
		FROM complexes
		WHERE id = $1
	`, id)
	return scanComplex(row)
}

func (r *PgRepository) GetDepartmentByID(ctx context.Context, id uuid.UUID) (*Department, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, complex_id, name, status, created_at, updated_at
		FROM departments
		WHERE id = $1
	`, id)
	return scanDepartment(row)
}

func (r *PgRepository) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, complex_id, department_id, name, status,
		       session_duration_minutes, staff_count, created_at, updated_at
		FROM clinics
		WHERE id = $1
	`, id)
	return scanClinic(row)
}

func (r *PgRepository) listClinics(ctx context.Context, query string, arg any) ([]Clinic, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Clinic
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListClinicsByComplex(ctx context.Context, complexID uuid.UUID) ([]Clinic, error) {
	return r.listClinics(ctx, `
		SELECT id, complex_id, department_id, name, status,
		       session_duration_minutes, staff_count, created_at, updated_at
		FROM clinics
		WHERE complex_id = $1
	`, complexID)
}

func (r *PgRepository) ListClinicsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]Clinic, error) {
	return r.listClinics(ctx, `
		SELECT id, complex_id, department_id, name, status,
		       session_duration_minutes, staff_count, created_at, updated_at
		FROM clinics
		WHERE department_id = $1
	`, departmentID)
}

func (r *PgRepository) CountClinicsByComplex(ctx context.Context, complexID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM clinics
		WHERE complex_id = $1
	`, complexID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count clinics: %w", err)
	}
	return n, nil
}

func (r *PgRepository) UpdateComplexStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE complexes SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update complex status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrComplexNotFound
	}
	return nil
}

func (r *PgRepository) UpdateDepartmentStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE departments SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update department status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDepartmentNotFound
	}
	return nil
}

func (r *PgRepository) UpdateClinicStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clinics SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update clinic status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClinicNotFound
	}
	return nil
}

func (r *PgRepository) MoveClinic(ctx context.Context, clinicID, toComplexID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clinics SET complex_id = $2, updated_at = now() WHERE id = $1
	`, clinicID, toComplexID)
	if err != nil {
		return fmt.Errorf("move clinic: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClinicNotFound
	}
	return nil
}
