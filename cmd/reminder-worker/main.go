package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-scheduling/internal/appointment"
	"github.com/clinicdesk/clinic-scheduling/internal/config"
	"github.com/clinicdesk/clinic-scheduling/internal/db"
	"github.com/clinicdesk/clinic-scheduling/internal/notify"
	redisclient "github.com/clinicdesk/clinic-scheduling/internal/redis"
)

const batchSize = 200

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "reminder-worker").Logger()
	log.Info().Msg("starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing redis")
		}
	}()

	repo := appointment.NewPgRepository(pgPool)
	notifier := notify.NewRedisNotifier(rdb, cfg.NotifyQueue)

	// Run once at startup
	runOnce(rootCtx, repo, notifier, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, repo, notifier, log)
		}
	}
}

// runOnce reminds patients whose appointments still sit in the
// marked-for-rescheduling state that they need to pick a new time.
func runOnce(ctx context.Context, repo appointment.Repository, notifier notify.Notifier, log zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := repo.ListMarkedForRescheduling(runCtx, appointment.DateOf(time.Now()), batchSize)
	if err != nil {
		log.Error().Err(err).Msg("list marked appointments")
		return
	}

	sent := 0
	for i := range marked {
		appt := &marked[i]
		err := notifier.Enqueue(runCtx, appt.PatientID, notify.TemplateRescheduleReminder, map[string]string{
			"appointment_id": appt.ID.String(),
			"date":           appt.Date.Format("2006-01-02"),
			"time":           appt.TimeString(),
		})
		if err != nil {
			log.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("enqueue reminder")
			continue
		}
		sent++
	}

	log.Info().Int("marked", len(marked)).Int("reminders_sent", sent).
		Dur("took", time.Since(start)).Msg("reminder run complete")
}
