package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

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

func scanEntry(row pgx.Row) (*WorkingHoursEntry, error) {
	var e WorkingHoursEntry
	var weekday int

	err := row.Scan(
		&e.ID,
		&e.EntityType,
		&e.EntityID,
		&weekday,
		&e.IsWorkingDay,
		&e.OpenMinutes,
		&e.CloseMinutes,
		&e.BreakStart,
		&e.BreakEnd,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	e.Weekday = time.Weekday(weekday)
	return &e, nil
}

func (r *PgRepository) GetEntry(ctx context.Context, entityType EntityType, entityID uuid.UUID, weekday time.Weekday) (*WorkingHoursEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, entity_type, entity_id, weekday, is_working_day,
		       open_minutes, close_minutes, break_start, break_end,
		       created_at, updated_at
		FROM working_hours
		WHERE entity_type = $1 AND entity_id = $2 AND weekday = $3
	`, entityType, entityID, int(weekday))
	return scanEntry(row)
}

func (r *PgRepository) ListEntries(ctx context.Context, entityType EntityType, entityID uuid.UUID) ([]WorkingHoursEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, weekday, is_working_day,
		       open_minutes, close_minutes, break_start, break_end,
		       created_at, updated_at
		FROM working_hours
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY weekday
	`, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorkingHoursEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ReplaceEntries(ctx context.Context, entityType EntityType, entityID uuid.UUID, entries []WorkingHoursEntry) error {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace working hours: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM working_hours
		WHERE entity_type = $1 AND entity_id = $2
	`, entityType, entityID)
	if err != nil {
		return fmt.Errorf("clear working hours: %w", err)
	}

	for _, e := range entries {
		id := e.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO working_hours
				(id, entity_type, entity_id, weekday, is_working_day,
				 open_minutes, close_minutes, break_start, break_end,
				 created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		`, id, entityType, entityID, int(e.Weekday), e.IsWorkingDay,
			e.OpenMinutes, e.CloseMinutes, e.BreakStart, e.BreakEnd)
		if err != nil {
			return fmt.Errorf("insert working hours entry: %w", err)
		}
	}

	return tx.Commit(ctx)
}
