package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcresearch/factorlab/internal/api"
	"github.com/arcresearch/factorlab/internal/api/handlers"
	"github.com/arcresearch/factorlab/internal/scorestore"
	"github.com/arcresearch/factorlab/pkg/config"
	"github.com/arcresearch/factorlab/pkg/database"
	"github.com/arcresearch/factorlab/pkg/logger"
	"github.com/arcresearch/factorlab/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the reporting API server",
	Long: `Starts the read-only reporting server.

Nothing here mutates scoring state; runs happen through the score
command and the scheduler.

Endpoints:
  GET  /health               - Health check
  GET  /api/scores           - Scores for one date
  GET  /api/scores/latest    - Scores for the latest stored date
  GET  /api/quintiles        - Quintile distribution for one date
  GET  /api/versions         - Stored configuration versions
  GET  /api/versions/{id}    - One version with its snapshot
  GET  /api/runs             - Recent run history

Example:
  go run ./cmd/factorlab api
  go run ./cmd/factorlab api --port 8089`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "listen port (default PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== FactorLab API Server ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info("Connected to database")

	// 4. Connect to Redis; a disabled client turns caching and rate
	// limiting into no-ops
	rdb, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer rdb.Close()

	cache := redis.NewCache(rdb, "api")
	limiter := redis.NewRateLimiter(rdb, "ratelimit")

	// 5. Create repositories and governance managers
	scores := scorestore.NewRepository(db.Pool)
	versions, audit, _ := initGovernance(cfg, db, log)

	// 6. Create handlers
	healthHandler := handlers.NewHealthHandler(db, log)
	scoresHandler := handlers.NewScoresHandler(scores, cache, log)
	govHandler := handlers.NewGovernanceHandler(versions, audit, log)

	// 7. Create router and server
	router := api.NewRouter(healthHandler, scoresHandler, govHandler, limiter, cfg.API, log)
	server := api.New(cfg, log, router)

	// 8. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  GET  /api/scores?date=YYYY-MM-DD")
	fmt.Println("  GET  /api/scores/latest")
	fmt.Println("  GET  /api/quintiles?date=YYYY-MM-DD")
	fmt.Println("  GET  /api/versions")
	fmt.Println("  GET  /api/versions/{id}")
	fmt.Println("  GET  /api/runs")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
