package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-scheduling/internal/config"
	"github.com/clinicdesk/clinic-scheduling/internal/db"
)

// The simulator hammers one doctor's calendar with deliberately overlapping
// booking requests. With the per-doctor calendar lock in place, exactly one
// request per window should succeed and the rest should come back 409.

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	PatientLimit int
	PostgresDSN  string
}

type DataPool struct {
	DoctorID  uuid.UUID
	ClinicID  uuid.UUID
	ServiceID uuid.UUID
	Patients  []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status == http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p95
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	date    string
	metrics OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required (set in .env or environment)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: doctor=%s clinic=%s patients=%d",
		dataPool.DoctorID, dataPool.ClinicID, len(dataPool.Patients))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		date:   nextWorkingDate(),
	}

	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool, dataPool.DoctorID)
	if err != nil {
		log.Fatalf("count overlaps: %v", err)
	}
	if overlaps > 0 {
		log.Fatalf("FAIL: %d overlapping appointment pairs on the doctor's calendar", overlaps)
	}
	log.Println("PASS: no overlapping appointments on the doctor's calendar")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 15*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
		PostgresDSN:  baseCfg.PostgresDSN,
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{ServiceID: uuid.New()}

	err := pool.QueryRow(ctx, `
		SELECT id, clinic_id FROM doctors LIMIT 1
	`).Scan(&dataPool.DoctorID, &dataPool.ClinicID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	rows, err := pool.Query(ctx, `
		SELECT id FROM patients LIMIT $1
	`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("booking against one doctor for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			s.doBooking(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	// A small window set so workers collide constantly.
	startMinutes := 540 + 30*rng.Intn(16)
	body, _ := json.Marshal(map[string]any{
		"patient_id":       patient.String(),
		"doctor_id":        s.pool.DoctorID.String(),
		"clinic_id":        s.pool.ClinicID.String(),
		"service_id":       s.pool.ServiceID.String(),
		"date":             s.date,
		"time":             fmt.Sprintf("%02d:%02d", startMinutes/60, startMinutes%60),
		"duration_minutes": 30,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Record(latency, 0)
		}
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	s.metrics.Record(latency, resp.StatusCode)
}

func (s *Simulator) PrintReport() {
	avg, min, max, p95 := s.metrics.Stats()
	log.Printf("bookings: total=%d success=%d conflict=%d error=%d",
		s.metrics.Total, s.metrics.Success, s.metrics.Conflict, s.metrics.Error)
	log.Printf("latency: avg=%s min=%s max=%s p95=%s", avg, min, max, p95)
}

// countOverlaps reports pairs of non-terminal appointments on the doctor's
// calendar whose windows intersect. Zero means the lock held.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool, doctorID uuid.UUID) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.date = b.date
		 AND a.id < b.id
		 AND a.start_minutes < b.start_minutes + b.duration_minutes
		 AND b.start_minutes < a.start_minutes + a.duration_minutes
		WHERE a.doctor_id = $1
		  AND a.status NOT IN ('completed', 'cancelled', 'no_show')
		  AND b.status NOT IN ('completed', 'cancelled', 'no_show')
	`, doctorID).Scan(&n)
	return n, err
}

func nextWorkingDate() string {
	d := time.Now().AddDate(0, 0, 1)
	for d.Weekday() == time.Friday || d.Weekday() == time.Saturday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
