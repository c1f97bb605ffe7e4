package handlers

import (
	"context"
	"net/http"

	"github.com/arcresearch/factorlab/pkg/database"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// DatabaseChecker is the health surface of the connection pool.
type DatabaseChecker interface {
	HealthCheck(ctx context.Context) (*database.HealthStatus, error)
}

// HealthHandler reports service and database health.
type HealthHandler struct {
	db     DatabaseChecker
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. A nil checker skips the
// database section, for deployments serving from files only.
func NewHealthHandler(db DatabaseChecker, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		logger: log,
	}
}

// Health returns service health including database status
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := map[string]interface{}{
		"status":  "ok",
		"service": "factorlab-api",
	}

	if h.db == nil {
		respondJSON(w, http.StatusOK, resp)
		return
	}

	status, err := h.db.HealthCheck(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Database health check failed")
		resp["status"] = "degraded"
		resp["database"] = map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		}
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp["database"] = status
	if !status.Healthy {
		resp["status"] = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
