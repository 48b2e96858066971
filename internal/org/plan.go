package org

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PlanLimits are the subscription-tier ceilings for one organization.
type PlanLimits struct {
	MaxComplexes int
	MaxClinics   int
	MaxStaff     int
}

// PlanLookup is the external subscription service collaborator.
type PlanLookup interface {
	GetLimits(ctx context.Context, subscriptionID uuid.UUID) (PlanLimits, error)
}

// PlanLimitError reports a capacity check failure with enough detail for the
// caller to render it.
type PlanLimitError struct {
	Resource  string
	Limit     int
	Current   int
	Requested int
}

func (e *PlanLimitError) Error() string {
	return fmt.Sprintf("plan limit exceeded: %s limit %d, have %d, requested %d more",
		e.Resource, e.Limit, e.Current, e.Requested)
}

// PlanValidator enforces subscription limits. It is a pure precondition check:
// it reads counts and limits, writes nothing.
type PlanValidator struct {
	repo  Repository
	plans PlanLookup
}

func NewPlanValidator(repo Repository, plans PlanLookup) *PlanValidator {
	return &PlanValidator{repo: repo, plans: plans}
}

// ValidateTransfer checks whether the target complex can absorb additionalClinics
// more clinics under its subscription tier.
func (v *PlanValidator) ValidateTransfer(ctx context.Context, targetComplexID uuid.UUID, additionalClinics int) error {
	cpx, err := v.repo.GetComplexByID(ctx, targetComplexID)
	if err != nil {
		return fmt.Errorf("load target complex: %w", err)
	}

	limits, err := v.plans.GetLimits(ctx, cpx.SubscriptionID)
	if err != nil {
		return fmt.Errorf("load plan limits: %w", err)
	}

	current, err := v.repo.CountClinicsByComplex(ctx, targetComplexID)
	if err != nil {
		return err
	}

	if current+additionalClinics > limits.MaxClinics {
		return &PlanLimitError{
			Resource:  "clinics",
			Limit:     limits.MaxClinics,
			Current:   current,
			Requested: additionalClinics,
		}
	}

	return nil
}
