package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHealth(pgErr, redisErr error) *HealthHandler {
	return &HealthHandler{
		probes: []probe{
			{name: "postgres", critical: true, check: func(context.Context) error { return pgErr }},
			{name: "redis", check: func(context.Context) error { return redisErr }},
		},
		env:     "test",
		version: "dev",
		log:     zerolog.Nop(),
	}
}

func readiness(t *testing.T, h *HealthHandler) (int, ReadinessResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestLivenessNeverTouchesDependencies(t *testing.T) {
	h := newTestHealth(errors.New("pg down"), errors.New("redis down"))
	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body LivenessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "dev", body.Version)
}

func TestReadinessAllUp(t *testing.T) {
	code, body := readiness(t, newTestHealth(nil, nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "ok"}, body.Dependencies)
}

func TestReadinessDegradesWithoutRedis(t *testing.T) {
	code, body := readiness(t, newTestHealth(nil, errors.New("connection refused")))
	assert.Equal(t, http.StatusOK, code, "degraded is still ready")
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Dependencies["redis"])
}

func TestReadinessFailsWithoutPostgres(t *testing.T) {
	code, body := readiness(t, newTestHealth(errors.New("connection refused"), nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "down", body.Dependencies["postgres"])

	code, body = readiness(t, newTestHealth(errors.New("pg down"), errors.New("redis down")))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body.Status)
}
