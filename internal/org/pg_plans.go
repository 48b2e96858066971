package org

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

// PgPlanLookup reads plan limits from the subscription_plans table.
type PgPlanLookup struct {
	pool *pgxpool.Pool
}

func NewPgPlanLookup(pool *pgxpool.Pool) *PgPlanLookup {
	return &PgPlanLookup{pool: pool}
}

func (l *PgPlanLookup) GetLimits(ctx context.Context, subscriptionID uuid.UUID) (PlanLimits, error) {
	const q = `
		SELECT p.max_complexes, p.max_clinics, p.max_staff
		FROM subscriptions s
		JOIN subscription_plans p ON p.id = s.plan_id
		WHERE s.id = $1`

	var limits PlanLimits
	err := l.pool.QueryRow(ctx, q, subscriptionID).Scan(
		&limits.MaxComplexes,
		&limits.MaxClinics,
		&limits.MaxStaff,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PlanLimits{}, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
		}
		return PlanLimits{}, fmt.Errorf("get plan limits: %w", err)
	}
	return limits, nil
}
