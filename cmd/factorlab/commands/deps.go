package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/governance"
	"github.com/arcresearch/factorlab/internal/pipeline"
	"github.com/arcresearch/factorlab/internal/qualitative"
	"github.com/arcresearch/factorlab/internal/scoringconfig"
	"github.com/arcresearch/factorlab/internal/scorestore"
	"github.com/arcresearch/factorlab/internal/signalstore"
	"github.com/arcresearch/factorlab/pkg/config"
	"github.com/arcresearch/factorlab/pkg/database"
	"github.com/arcresearch/factorlab/pkg/httputil"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// initDeps loads configuration, builds the logger and connects to the
// database. Callers own the returned DB and must Close it.
func initDeps() (*config.Config, *logger.Logger, *database.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return cfg, log, db, nil
}

// initGovernance builds the version, audit and regression managers.
// GOVERNANCE_DIR selects the backend: a file root when set, the database
// when empty.
func initGovernance(cfg *config.Config, db *database.DB, log *logger.Logger) (*governance.VersionManager, *governance.AuditLogger, *governance.RegressionTester) {
	if dir := cfg.Scoring.GovernanceDir; dir != "" {
		return governance.NewVersionManager(governance.NewFileVersionStore(dir), log),
			governance.NewAuditLogger(governance.NewFileAuditStore(dir), log),
			governance.NewRegressionTester(governance.NewFileBaselineStore(dir), log)
	}
	return governance.NewVersionManager(governance.NewVersionRepository(db.Pool), log),
		governance.NewAuditLogger(governance.NewAuditRepository(db.Pool), log),
		governance.NewRegressionTester(governance.NewBaselineRepository(db.Pool), log)
}

// loadScoring reads and validates the scoring configuration. A non-empty
// override wins over SCORING_CONFIG_PATH.
func loadScoring(cfg *config.Config, override string) (*scoringconfig.Config, error) {
	path := cfg.Scoring.ConfigPath
	if override != "" {
		path = override
	}
	scoring, _, err := scoringconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load scoring config: %w", err)
	}
	return scoring, nil
}

// buildSource assembles the engine input: the database signal store, plus
// one qualitative producer over the configured assessment sources. With
// both a directory and an export URL set, the export wins per signal.
func buildSource(cfg *config.Config, db *database.DB, log *logger.Logger) contracts.SignalSource {
	store := signalstore.NewRepository(db.Pool)

	var docs qualitative.MultiSource
	if dir := cfg.Scoring.AssessmentsDir; dir != "" {
		docs = append(docs, qualitative.DirSource{Dir: dir})
	}
	if url := cfg.Scoring.AssessmentsURL; url != "" {
		docs = append(docs, qualitative.HTTPSource{
			Client: httputil.New(cfg, log),
			URL:    url,
		})
	}
	if len(docs) == 0 {
		return store
	}

	producer := qualitative.NewProducer(docs, qualitative.DefaultTextScorer(), log)
	return pipeline.MultiSource{store, producer}
}

// parseDay parses one YYYY-MM-DD date as a UTC day.
func parseDay(s string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
	}
	return day, nil
}

// parseWindow parses an inclusive date window. A missing bound copies the
// other; both missing selects today.
func parseWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" && toStr == "" {
		now := time.Now().UTC()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return today, today, nil
	}
	if fromStr == "" {
		fromStr = toStr
	}
	if toStr == "" {
		toStr = fromStr
	}

	from, err := parseDay(fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDay(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to %s is before --from %s", toStr, fromStr)
	}
	return from, to, nil
}

// resolveDate parses an explicit date or falls back to the latest stored
// scoring date.
func resolveDate(ctx context.Context, repo *scorestore.Repository, s string) (time.Time, error) {
	if s != "" {
		return parseDay(s)
	}
	date, err := repo.LatestDate(ctx)
	if errors.Is(err, scorestore.ErrNoScores) {
		return time.Time{}, fmt.Errorf("no scores stored yet; run a scoring pass first")
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve latest scoring date: %w", err)
	}
	return date, nil
}
