package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/governance"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// VersionReader loads stored configuration versions.
type VersionReader interface {
	Load(ctx context.Context, versionID string) (*contracts.ConfigVersion, error)
	List(ctx context.Context) ([]contracts.ConfigVersion, error)
}

// RunReader lists recorded scoring runs.
type RunReader interface {
	Recent(ctx context.Context, limit int) ([]contracts.AuditRecord, error)
}

// GovernanceHandler serves version and run history endpoints.
type GovernanceHandler struct {
	versions VersionReader
	runs     RunReader
	logger   *logger.Logger
}

// NewGovernanceHandler creates a new governance handler
func NewGovernanceHandler(versions VersionReader, runs RunReader, log *logger.Logger) *GovernanceHandler {
	return &GovernanceHandler{
		versions: versions,
		runs:     runs,
		logger:   log,
	}
}

// VersionSummary is the list form of a stored version, without the
// configuration snapshot.
type VersionSummary struct {
	VersionID  string            `json:"version_id"`
	ConfigHash string            `json:"config_hash"`
	CreatedAt  time.Time         `json:"created_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ListVersions returns all stored configuration versions, newest first
// GET /api/versions
func (h *GovernanceHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	versions, err := h.versions.List(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list versions")
		respondError(w, http.StatusInternalServerError, "Failed to list versions")
		return
	}

	summaries := make([]VersionSummary, 0, len(versions))
	for _, v := range versions {
		summaries = append(summaries, VersionSummary{
			VersionID:  v.VersionID,
			ConfigHash: v.ConfigHash,
			CreatedAt:  v.CreatedAt,
			Metadata:   v.Metadata,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(summaries),
		"versions": summaries,
	})
}

// GetVersion returns one version including its configuration snapshot
// GET /api/versions/{id}
func (h *GovernanceHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	versionID := mux.Vars(r)["id"]

	version, err := h.versions.Load(ctx, versionID)
	if err != nil {
		if errors.Is(err, governance.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Version not found")
			return
		}
		h.logger.WithError(err).Error("Failed to load version")
		respondError(w, http.StatusInternalServerError, "Failed to load version")
		return
	}

	respondJSON(w, http.StatusOK, version)
}

// ListRuns returns recent scoring run records, newest first
// GET /api/runs?limit=20
func (h *GovernanceHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "Invalid 'limit' (expected a positive integer)")
			return
		}
		limit = n
	}

	runs, err := h.runs.Recent(ctx, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"runs":  runs,
	})
}
