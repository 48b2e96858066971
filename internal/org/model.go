package org

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

var (
	ErrComplexNotFound    = errors.New("complex not found")
	ErrDepartmentNotFound = errors.New("department not found")
	ErrClinicNotFound     = errors.New("clinic not found")
)

// Entities are stored flat and keyed by id; relationships are id references
// resolved through the repository, never embedded object graphs.

type Complex struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	SubscriptionID uuid.UUID
	Name           string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Department struct {
	ID        uuid.UUID
	ComplexID uuid.UUID
	Name      string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Clinic struct {
	ID                     uuid.UUID
	ComplexID              *uuid.UUID
	DepartmentID           *uuid.UUID
	Name                   string
	Status                 Status
	SessionDurationMinutes int
	StaffCount             int
	CreatedAt              time.Time
	UpdatedAt              time.Time
}
