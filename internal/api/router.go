package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinic-scheduling/internal/appointment"
	"github.com/clinicdesk/clinic-scheduling/internal/cascade"
)

type RouterConfig struct {
	Service      *appointment.Service
	Availability *appointment.AvailabilityService
	Orchestrator *cascade.Orchestrator
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Log          zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version, cfg.Log)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service
	r.Post("/appointments", createAppointmentHandler(svc))
	r.Get("/appointments/{id}", getAppointmentHandler(svc))
	r.Post("/appointments/{id}/confirm", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Confirm(req.Context(), id)
	}))
	r.Post("/appointments/{id}/start", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Start(req.Context(), id)
	}))
	r.Post("/appointments/{id}/no-show", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.NoShow(req.Context(), id)
	}))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(svc))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(svc))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(svc))
	r.Post("/appointments/{id}/transfer-doctor", transferDoctorHandler(svc))

	r.Get("/availability", availabilityHandler(cfg.Availability))

	r.Post("/cascades/deactivation", cascadeDeactivationHandler(cfg.Orchestrator))
	r.Post("/transfers/clinics", transferClinicsHandler(cfg.Orchestrator))
	r.Put("/clinics/{id}/working-hours", workingHoursChangeHandler(cfg.Orchestrator))

	return r
}
