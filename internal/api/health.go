package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const probeTimeout = time.Second

// probe checks one backing dependency. Critical probes gate readiness; a
// non-critical failure only degrades it.
type probe struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness. Liveness never touches a
// dependency. Readiness pings each backing store: Postgres down means not
// ready, Redis down degrades because booking still works without the
// calendar locks, just with weaker race protection.
type HealthHandler struct {
	probes  []probe
	env     string
	version string
	log     zerolog.Logger
}

func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		probes: []probe{
			{name: "postgres", critical: true, check: pgPool.Ping},
			{name: "redis", check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
		},
		env:     env,
		version: version,
		log:     log.With().Str("component", "health").Logger(),
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*probeTimeout)
	defer cancel()

	deps := make(map[string]string, len(h.probes))
	status := "ok"
	for _, p := range h.probes {
		pctx, pcancel := context.WithTimeout(ctx, probeTimeout)
		err := p.check(pctx)
		pcancel()
		if err == nil {
			deps[p.name] = "ok"
			continue
		}
		deps[p.name] = "down"
		h.log.Warn().Err(err).Str("dependency", p.name).Msg("readiness probe failed")
		if p.critical || status != "ok" {
			status = "error"
		} else {
			status = "degraded"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}
