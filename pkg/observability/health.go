package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// CheckStatus is the outcome of a single dependency check
type CheckStatus string

const (
	StatusHealthy   CheckStatus = "healthy"
	StatusUnhealthy CheckStatus = "unhealthy"
	StatusSkipped   CheckStatus = "skipped"
)

// HealthCheck reports liveness and readiness of the service dependencies
type HealthCheck struct {
	db      *sql.DB
	redis   *redis.Client
	timeout time.Duration
}

// NewHealthCheck creates a health checker. The redis client may be nil when
// distributed rate limiting is disabled.
func NewHealthCheck(db *sql.DB, redisClient *redis.Client) *HealthCheck {
	return &HealthCheck{
		db:      db,
		redis:   redisClient,
		timeout: 2 * time.Second,
	}
}

// healthResponse is the JSON body returned by the readiness endpoint
type healthResponse struct {
	Status CheckStatus            `json:"status"`
	Checks map[string]CheckStatus `json:"checks"`
}

// LivenessHandler responds 200 as long as the process is serving requests
func (h *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// ReadinessHandler checks Postgres and Redis connectivity
func (h *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{
		Status: StatusHealthy,
		Checks: map[string]CheckStatus{},
	}

	if err := h.db.PingContext(ctx); err != nil {
		resp.Checks["postgres"] = StatusUnhealthy
		resp.Status = StatusUnhealthy
	} else {
		resp.Checks["postgres"] = StatusHealthy
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			resp.Checks["redis"] = StatusUnhealthy
			resp.Status = StatusUnhealthy
		} else {
			resp.Checks["redis"] = StatusHealthy
		}
	} else {
		resp.Checks["redis"] = StatusSkipped
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != StatusHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}
