// Package handlers implements the read-only reporting endpoints. Handlers
// depend on narrow read interfaces rather than concrete stores so they can
// be exercised with httptest and fakes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/scorestore"
	"github.com/arcresearch/factorlab/pkg/logger"
	"github.com/arcresearch/factorlab/pkg/redis"
)

// ScoreReader is the read side of the score repository.
type ScoreReader interface {
	GetByDate(ctx context.Context, date time.Time, block string) ([]contracts.BlockScore, error)
	LatestDate(ctx context.Context) (time.Time, error)
}

// ScoresHandler serves stored block scores and quintile distributions.
type ScoresHandler struct {
	scores ScoreReader
	cache  *redis.Cache
	logger *logger.Logger
}

// NewScoresHandler creates a new scores handler. The cache is required;
// pass one backed by a disabled client to serve without caching.
func NewScoresHandler(scores ScoreReader, cache *redis.Cache, log *logger.Logger) *ScoresHandler {
	return &ScoresHandler{
		scores: scores,
		cache:  cache,
		logger: log,
	}
}

// ScoresResponse is the payload for score queries.
type ScoresResponse struct {
	Date   string                 `json:"date"`
	Block  string                 `json:"block,omitempty"`
	Count  int                    `json:"count"`
	Scores []contracts.BlockScore `json:"scores"`
}

// GetScores returns stored scores for one date
// GET /api/scores?date=YYYY-MM-DD&block=quality
func (h *ScoresHandler) GetScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		respondError(w, http.StatusBadRequest, "Missing 'date' query parameter (expected YYYY-MM-DD)")
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'date' format (expected YYYY-MM-DD)")
		return
	}
	block := r.URL.Query().Get("block")

	var resp ScoresResponse
	err = h.cache.GetOrSet(ctx, redis.ScoresKey(dateStr, block), &resp, redis.TTLMedium, func() (interface{}, error) {
		scores, err := h.scores.GetByDate(ctx, date, block)
		if err != nil {
			return nil, err
		}
		return ScoresResponse{
			Date:   dateStr,
			Block:  block,
			Count:  len(scores),
			Scores: scores,
		}, nil
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to get scores")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve scores")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// GetLatest returns scores for the most recent stored date
// GET /api/scores/latest?block=momentum
func (h *ScoresHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	block := r.URL.Query().Get("block")

	var resp ScoresResponse
	err := h.cache.GetOrSet(ctx, redis.LatestScoresKey(block), &resp, redis.TTLShort, func() (interface{}, error) {
		date, err := h.scores.LatestDate(ctx)
		if err != nil {
			return nil, err
		}
		scores, err := h.scores.GetByDate(ctx, date, block)
		if err != nil {
			return nil, err
		}
		return ScoresResponse{
			Date:   date.Format("2006-01-02"),
			Block:  block,
			Count:  len(scores),
			Scores: scores,
		}, nil
	})
	if err != nil {
		if errors.Is(err, scorestore.ErrNoScores) {
			respondError(w, http.StatusNotFound, "No scores stored yet")
			return
		}
		h.logger.WithError(err).Error("Failed to get latest scores")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve scores")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// QuintileDistribution summarizes ranked counts for one block. Buckets holds
// the entity count per quintile, worst (1) first.
type QuintileDistribution struct {
	Block    string `json:"block"`
	Buckets  [5]int `json:"buckets"`
	Ranked   int    `json:"ranked"`
	Unranked int    `json:"unranked"`
}

// QuintilesResponse is the payload for quintile distribution queries.
type QuintilesResponse struct {
	Date   string                 `json:"date"`
	Blocks []QuintileDistribution `json:"blocks"`
}

// GetQuintiles returns the quintile distribution for one date
// GET /api/quintiles?date=YYYY-MM-DD&block=quality
func (h *ScoresHandler) GetQuintiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dateStr := r.URL.Query().Get("date")
	if dateStr == "" {
		respondError(w, http.StatusBadRequest, "Missing 'date' query parameter (expected YYYY-MM-DD)")
		return
	}
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'date' format (expected YYYY-MM-DD)")
		return
	}
	block := r.URL.Query().Get("block")

	var resp QuintilesResponse
	err = h.cache.GetOrSet(ctx, redis.QuintilesKey(dateStr, block), &resp, redis.TTLMedium, func() (interface{}, error) {
		scores, err := h.scores.GetByDate(ctx, date, block)
		if err != nil {
			return nil, err
		}
		return buildQuintilesResponse(dateStr, scores), nil
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to get quintile distribution")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve quintile distribution")
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func buildQuintilesResponse(date string, scores []contracts.BlockScore) QuintilesResponse {
	byBlock := make(map[string]*QuintileDistribution)
	for _, s := range scores {
		dist := byBlock[s.Block]
		if dist == nil {
			dist = &QuintileDistribution{Block: s.Block}
			byBlock[s.Block] = dist
		}
		if s.Quintile != nil && *s.Quintile >= 1 && *s.Quintile <= 5 {
			dist.Buckets[*s.Quintile-1]++
			dist.Ranked++
		} else {
			dist.Unranked++
		}
	}

	blocks := make([]QuintileDistribution, 0, len(byBlock))
	for _, dist := range byBlock {
		blocks = append(blocks, *dist)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Block < blocks[j].Block })

	return QuintilesResponse{Date: date, Blocks: blocks}
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
