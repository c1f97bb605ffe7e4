package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arcresearch/factorlab/internal/api/handlers"
	"github.com/arcresearch/factorlab/pkg/config"
	"github.com/arcresearch/factorlab/pkg/logger"
	"github.com/arcresearch/factorlab/pkg/redis"
)

// testRouter wires handlers with empty fakes and the local rate limiter
// fallback (no Redis).
func testRouter(t *testing.T, apiCfg config.APIConfig) http.Handler {
	t.Helper()

	client, err := redis.New(&config.Config{})
	if err != nil {
		t.Fatalf("redis.New() error = %v", err)
	}
	cache := redis.NewCache(client, "test")
	limiter := redis.NewRateLimiter(client, "test")

	log := logger.Nop()
	health := handlers.NewHealthHandler(nil, log)
	scores := handlers.NewScoresHandler(nil, cache, log)
	gov := handlers.NewGovernanceHandler(nil, nil, log)

	return NewRouter(health, scores, gov, limiter, apiCfg, log)
}

func TestRouterHealthRoute(t *testing.T) {
	router := testRouter(t, config.APIConfig{RateLimit: 100, RateWindow: time.Minute, RateBurst: 100})

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	router := testRouter(t, config.APIConfig{RateLimit: 100, RateWindow: time.Minute, RateBurst: 100})

	req := httptest.NewRequest("POST", "/api/scores", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/scores = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestRouterRateLimitFallback(t *testing.T) {
	// Without Redis the per-process token bucket takes over. Burst 2 admits
	// exactly two immediate requests per client.
	router := testRouter(t, config.APIConfig{RateLimit: 2, RateWindow: time.Minute, RateBurst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/scores", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	// The first two reach the handler (400, no date given), the third is cut off
	want := []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("request %d: status = %d, want %d", i+1, codes[i], want[i])
		}
	}

	// A different client gets its own bucket
	req := httptest.NewRequest("GET", "/api/scores", nil)
	req.RemoteAddr = "10.9.8.7:5555"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("fresh client: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRouterHealthNotRateLimited(t *testing.T) {
	router := testRouter(t, config.APIConfig{RateLimit: 1, RateWindow: time.Minute, RateBurst: 1})

	// Exhaust the API budget
	req := httptest.NewRequest("GET", "/api/scores", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	req = httptest.NewRequest("GET", "/api/scores", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected API budget exhausted, got %d", rec.Code)
	}

	// Health keeps answering
	req = httptest.NewRequest("GET", "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want %d", rec.Code, http.StatusOK)
	}
}
