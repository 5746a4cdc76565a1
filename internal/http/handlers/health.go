package handlers

import (
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// HealthHandler reports database and geo-index connectivity.
type HealthHandler struct {
	db  *sql.DB
	rdb *redis.Client // may be nil
}

// NewHealthHandler creates a health handler. rdb may be nil.
func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

// ServeHTTP handles GET /health. Degraded dependencies are reported in the
// body but the endpoint itself stays 200 for load-balancer probes.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "db": "ok"}

	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			status["status"] = "degraded"
			status["db"] = "error"
		}
	}
	if h.rdb != nil {
		status["redis"] = "ok"
		if err := h.rdb.Ping(r.Context()).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = "error"
		}
	}

	respondData(w, http.StatusOK, status)
}
