package api

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/arcresearch/factorlab/internal/api/handlers"
	"github.com/arcresearch/factorlab/pkg/config"
	"github.com/arcresearch/factorlab/pkg/logger"
	"github.com/arcresearch/factorlab/pkg/redis"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	health *handlers.HealthHandler,
	scores *handlers.ScoresHandler,
	gov *handlers.GovernanceHandler,
	limiter *redis.RateLimiter,
	apiCfg config.APIConfig,
	log *logger.Logger,
) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", health.Health).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Score endpoints
	api.HandleFunc("/scores", scores.GetScores).Methods("GET")
	api.HandleFunc("/scores/latest", scores.GetLatest).Methods("GET")
	api.HandleFunc("/quintiles", scores.GetQuintiles).Methods("GET")

	// Governance endpoints
	api.HandleFunc("/versions", gov.ListVersions).Methods("GET")
	api.HandleFunc("/versions/{id}", gov.GetVersion).Methods("GET")
	api.HandleFunc("/runs", gov.ListRuns).Methods("GET")

	// Apply middleware; health stays unthrottled
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))
	api.Use(rateLimitMiddleware(limiter, apiCfg, log))

	return r
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware throttles clients by IP. With Redis enabled the
// sliding window is shared across instances; otherwise each process falls
// back to a local token bucket.
func rateLimitMiddleware(limiter *redis.RateLimiter, cfg config.APIConfig, log *logger.Logger) mux.MiddlewareFunc {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = redis.DefaultAPIRateLimit.Limit
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = redis.DefaultAPIRateLimit.Window
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = limit
	}

	// Local fallback, one bucket per client IP
	var (
		mu      sync.Mutex
		buckets = make(map[string]*rate.Limiter)
	)
	localAllow := func(ip string) bool {
		mu.Lock()
		defer mu.Unlock()
		b, ok := buckets[ip]
		if !ok {
			b = rate.NewLimiter(rate.Limit(float64(limit)/window.Seconds()), burst)
			buckets[ip] = b
		}
		return b.Allow()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			var allowed bool
			if limiter != nil && limiter.Enabled() {
				var err error
				allowed, _, err = limiter.Allow(r.Context(), redis.RateLimitConfig{
					Key:    "api:" + ip,
					Limit:  limit,
					Window: window,
				})
				if err != nil {
					// Redis trouble must not take the API down
					log.WithError(err).Warn("Rate limit check failed, allowing request")
					allowed = true
				}
			} else {
				allowed = localAllow(ip)
			}

			if !allowed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "Rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
