package org

import (
	"context"

	"github.com/google/uuid"
)

// Repository contains the DB interactions for the organizational hierarchy.
type Repository interface {
	GetComplexByID(ctx context.Context, id uuid.UUID) (*Complex, error)
	GetDepartmentByID(ctx context.Context, id uuid.UUID) (*Department, error)
	GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error)

	// Scope enumeration for cascades.
	ListClinicsByComplex(ctx context.Context, complexID uuid.UUID) ([]Clinic, error)
	ListClinicsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]Clinic, error)
	CountClinicsByComplex(ctx context.Context, complexID uuid.UUID) (int, error)

	// Status commits happen only after a cascade's appointment work succeeds.
	UpdateComplexStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateDepartmentStatus(ctx context.Context, id uuid.UUID, status Status) error
	UpdateClinicStatus(ctx context.Context, id uuid.UUID, status Status) error

	// MoveClinic re-parents a clinic under a new complex.
	MoveClinic(ctx context.Context, clinicID, toComplexID uuid.UUID) error
}
