package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-scheduling/internal/db"
	"github.com/clinicdesk/clinic-scheduling/internal/schedule"
)

const (
	complexCount       = 3
	departmentsPerCplx = 2
	clinicsPerDept     = 3
	doctorsPerClinic   = 4
	patientCount       = 2000
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clinicIDs, err := seedHierarchy(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed hierarchy: %v", err)
	}
	if err := seedWorkingHours(context.Background(), pool, clinicIDs); err != nil {
		log.Fatalf("seed working hours: %v", err)
	}
	if err := seedPatients(context.Background(), pool, patientCount); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

// seedHierarchy creates one organization with a small plan, a few complexes,
// departments, clinics and doctors. Returns the clinic ids for the working
// hours pass.
func seedHierarchy(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	planID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO subscription_plans (id, name, max_complexes, max_clinics, max_staff)
		VALUES ($1, $2, $3, $4, $5)
	`, planID, "standard", 5, 10, 200)
	if err != nil {
		return nil, err
	}

	subscriptionID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (id, plan_id, created_at)
		VALUES ($1, $2, now())
	`, subscriptionID, planID)
	if err != nil {
		return nil, err
	}

	orgID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO organizations (id, name, created_at, updated_at)
		VALUES ($1, $2, now(), now())
	`, orgID, gofakeit.Company())
	if err != nil {
		return nil, err
	}

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Pediatrics",
		"Ophthalmology",
	}

	var clinicIDs []uuid.UUID
	for c := 0; c < complexCount; c++ {
		complexID := uuid.New()
		_, err = tx.Exec(ctx, `
			INSERT INTO complexes (id, organization_id, subscription_id, name, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'active', now(), now())
		`, complexID, orgID, subscriptionID, gofakeit.City()+" Medical Complex")
		if err != nil {
			return nil, err
		}

		for d := 0; d < departmentsPerCplx; d++ {
			departmentID := uuid.New()
			spec := specialties[gofakeit.Number(0, len(specialties)-1)]
			_, err = tx.Exec(ctx, `
				INSERT INTO departments (id, complex_id, name, status, created_at, updated_at)
				VALUES ($1, $2, $3, 'active', now(), now())
			`, departmentID, complexID, spec)
			if err != nil {
				return nil, err
			}

			for k := 0; k < clinicsPerDept; k++ {
				clinicID := uuid.New()
				_, err = tx.Exec(ctx, `
					INSERT INTO clinics
						(id, complex_id, department_id, name, status,
						 session_duration_minutes, staff_count, created_at, updated_at)
					VALUES ($1, $2, $3, $4, 'active', $5, $6, now(), now())
				`, clinicID, complexID, departmentID,
					gofakeit.LastName()+" Clinic",
					[]int{15, 20, 30}[gofakeit.Number(0, 2)],
					doctorsPerClinic+gofakeit.Number(1, 4))
				if err != nil {
					return nil, err
				}
				clinicIDs = append(clinicIDs, clinicID)

				for m := 0; m < doctorsPerClinic; m++ {
					_, err = tx.Exec(ctx, `
						INSERT INTO doctors (id, clinic_id, name, specialty, created_at, updated_at)
						VALUES ($1, $2, $3, $4, now(), now())
					`, uuid.New(), clinicID, "Dr. "+gofakeit.Name(), spec)
					if err != nil {
						return nil, err
					}
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Printf("hierarchy seeded: %d clinics", len(clinicIDs))
	return clinicIDs, nil
}

// seedWorkingHours gives every clinic a Sunday-Thursday 09:00-17:00 week with
// a lunch break, closed Friday and Saturday.
func seedWorkingHours(ctx context.Context, pool *pgxpool.Pool, clinicIDs []uuid.UUID) error {
	repo := schedule.NewPgRepository(pool)

	breakStart, breakEnd := 720, 780
	for _, clinicID := range clinicIDs {
		var entries []schedule.WorkingHoursEntry
		for wd := time.Sunday; wd <= time.Saturday; wd++ {
			entry := schedule.WorkingHoursEntry{
				EntityType: schedule.EntityClinic,
				EntityID:   clinicID,
				Weekday:    wd,
			}
			if wd != time.Friday && wd != time.Saturday {
				entry.IsWorkingDay = true
				entry.OpenMinutes = 540
				entry.CloseMinutes = 1020
				entry.BreakStart = &breakStart
				entry.BreakEnd = &breakEnd
			}
			entries = append(entries, entry)
		}
		if err := repo.ReplaceEntries(ctx, schedule.EntityClinic, clinicID, entries); err != nil {
			return err
		}
	}

	log.Printf("working hours seeded for %d clinics", len(clinicIDs))
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}

	log.Println("patients seeded")
	return nil
}
