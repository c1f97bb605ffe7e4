// Package pipeline composes the scoring engine: version the active
// configuration, fetch raw inputs once, score date groups concurrently,
// rank, validate, persist, and leave an audit record.
//
// Date groups share nothing but the read-only configuration, so they are
// scored in parallel. Worker count never changes the output: every stage
// emits sorted rows and the per-date results are merged in date order. A
// cancelled or failed run persists nothing and is recorded as failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arcresearch/factorlab/internal/aggregate"
	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/governance"
	"github.com/arcresearch/factorlab/internal/normalize"
	"github.com/arcresearch/factorlab/internal/quintile"
	"github.com/arcresearch/factorlab/internal/scoringconfig"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// Engine runs the normalize -> aggregate -> quintile -> validate pipeline
// for one configuration.
type Engine struct {
	cfg        *scoringconfig.Config
	source     contracts.SignalSource
	versions   *governance.VersionManager
	audit      *governance.AuditLogger
	normalizer *normalize.Normalizer
	aggregator *aggregate.Aggregator
	assigner   *quintile.Assigner
	validator  *governance.ScoreValidator
	scores     contracts.ScoreRepository
	log        *logger.Logger
	workers    int
	now        func() time.Time
}

// Options tunes the engine beyond its required collaborators.
type Options struct {
	// Workers caps concurrent date groups. Zero or negative means 1.
	Workers int
	// Scores, when set, receives the final rows of a successful run.
	Scores contracts.ScoreRepository
}

func New(
	cfg *scoringconfig.Config,
	source contracts.SignalSource,
	versions *governance.VersionManager,
	audit *governance.AuditLogger,
	log *logger.Logger,
	opts Options,
) *Engine {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Engine{
		cfg:        cfg,
		source:     source,
		versions:   versions,
		audit:      audit,
		normalizer: normalize.New(cfg, log),
		aggregator: aggregate.New(cfg, log),
		assigner:   quintile.New(cfg, log),
		validator:  governance.NewScoreValidator(log),
		scores:     opts.Scores,
		log:        log.WithField("module", "pipeline"),
		workers:    workers,
		now:        time.Now,
	}
}

// RunInput selects the universe and evaluation window of one run.
type RunInput struct {
	EntityIDs  []string
	From       time.Time
	To         time.Time
	ConfigName string
	Metadata   map[string]string
}

// RunResult is everything a successful run produced.
type RunResult struct {
	RunID      string
	VersionID  string
	Scores     []contracts.BlockScore
	Validation *governance.ScoreValidationReport
	Quintiles  *governance.QuintileDistributionReport
	Coverage   *governance.CoverageReport
	Metrics    contracts.RunMetrics
}

// Run executes one scoring run. The configuration is versioned first so
// the run id always references a stored snapshot; raw inputs are fetched
// once up front and the core loop does no I/O.
func (e *Engine) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	started := e.now()
	runID := governance.NewRunID()

	version, err := e.saveVersion(ctx, input)
	if err != nil {
		return nil, err
	}

	log := e.log.WithFields(map[string]interface{}{
		"run_id":     runID,
		"version_id": version.VersionID,
	})
	log.WithFields(map[string]interface{}{
		"entities": len(input.EntityIDs),
		"from":     input.From.Format(time.DateOnly),
		"to":       input.To.Format(time.DateOnly),
		"workers":  e.workers,
	}).Info("Starting scoring run")

	signals, err := e.source.FetchSignals(ctx, input.EntityIDs, input.From, input.To)
	if err != nil {
		err = fmt.Errorf("failed to fetch signals: %w", err)
		e.recordFailure(ctx, runID, version.VersionID, input, started, err)
		return nil, err
	}
	risk, err := e.source.FetchRiskMetrics(ctx, input.EntityIDs, input.From, input.To)
	if err != nil {
		err = fmt.Errorf("failed to fetch risk metrics: %w", err)
		e.recordFailure(ctx, runID, version.VersionID, input, started, err)
		return nil, err
	}

	scored, err := e.scoreDates(ctx, signals, risk)
	if err != nil {
		e.recordFailure(ctx, runID, version.VersionID, input, started, err)
		return nil, err
	}

	scored = e.assigner.Assign(scored)

	result := &RunResult{
		RunID:      runID,
		VersionID:  version.VersionID,
		Scores:     scored,
		Validation: e.validator.ValidateScores(scored, 0, 100),
		Quintiles: e.validator.ValidateQuintileDistribution(
			scored, e.cfg.Quintiles.ReferenceBlock, governance.DefaultQuintileTolerance),
		Coverage: e.validator.ValidateSignalCoverage(
			signals, e.cfg.SignalNames(), governance.DefaultMinCoverage),
		Metrics: runMetrics(scored, started, e.now()),
	}

	if e.scores != nil {
		if err := e.scores.SaveScores(ctx, scored); err != nil {
			err = fmt.Errorf("failed to persist scores: %w", err)
			e.recordFailure(ctx, runID, version.VersionID, input, started, err)
			return nil, err
		}
	}

	record := &contracts.AuditRecord{
		RunID:     runID,
		VersionID: version.VersionID,
		Entities:  input.EntityIDs,
		From:      input.From,
		To:        input.To,
		Status:    contracts.RunStatusCompleted,
		Metrics:   result.Metrics,
	}
	if err := e.audit.LogRun(ctx, record); err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"scores":    result.Metrics.ScoresComputed,
		"undefined": result.Metrics.ScoresUndefined,
		"dates":     result.Metrics.Dates,
		"valid":     result.Validation.Valid,
	}).Info("Scoring run completed")

	return result, nil
}

// saveVersion snapshots the active configuration. Two runs in the same
// second with identical content produce the same version id; the second
// reuses the stored snapshot instead of failing.
func (e *Engine) saveVersion(ctx context.Context, input RunInput) (*contracts.ConfigVersion, error) {
	metadata := map[string]string{}
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	sample := input.EntityIDs
	if len(sample) > 10 {
		sample = sample[:10]
	}
	metadata["entities"] = strings.Join(sample, ",")
	metadata["date_range"] = input.From.Format(time.DateOnly) + ".." + input.To.Format(time.DateOnly)

	version, err := e.versions.Save(ctx, e.cfg, input.ConfigName, metadata)
	if errors.Is(err, governance.ErrAlreadyExists) {
		// Same name, content and second: reuse the stored snapshot.
		hash, hashErr := scoringconfig.ShortHash(e.cfg)
		if hashErr != nil {
			return nil, hashErr
		}
		stored, listErr := e.versions.List(ctx)
		if listErr != nil {
			return nil, err
		}
		for i := range stored {
			if stored[i].ConfigHash == hash {
				return &stored[i], nil
			}
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return version, nil
}

// scoreDates normalizes and aggregates each date group concurrently.
// Results are indexed by date so worker scheduling cannot reorder them.
func (e *Engine) scoreDates(ctx context.Context, signals []contracts.RawSignal, risk []contracts.RiskMetric) ([]contracts.BlockScore, error) {
	signalsByDate := map[string][]contracts.RawSignal{}
	for _, s := range signals {
		key := contracts.DateKey(s.Date)
		signalsByDate[key] = append(signalsByDate[key], s)
	}
	riskByDate := map[string][]contracts.RiskMetric{}
	for _, r := range risk {
		key := contracts.DateKey(r.Date)
		riskByDate[key] = append(riskByDate[key], r)
	}

	dates := make([]string, 0, len(signalsByDate))
	for date := range signalsByDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	results := make([][]contracts.BlockScore, len(dates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, date := range dates {
		i, date := i, date
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			normalized := e.normalizer.Normalize(signalsByDate[date])
			results[i] = e.aggregator.Aggregate(normalized, riskByDate[date])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scoring aborted: %w", err)
	}

	var merged []contracts.BlockScore
	for _, rows := range results {
		merged = append(merged, rows...)
	}
	return merged, nil
}

// recordFailure appends a failed audit record. It runs detached from the
// caller's cancellation so an aborted run still leaves a trace.
func (e *Engine) recordFailure(ctx context.Context, runID, versionID string, input RunInput, started time.Time, runErr error) {
	record := &contracts.AuditRecord{
		RunID:     runID,
		VersionID: versionID,
		Entities:  input.EntityIDs,
		From:      input.From,
		To:        input.To,
		Status:    contracts.RunStatusFailed,
		Error:     runErr.Error(),
		Metrics:   contracts.RunMetrics{DurationMS: e.now().Sub(started).Milliseconds()},
	}
	if err := e.audit.LogRun(context.WithoutCancel(ctx), record); err != nil {
		e.log.WithError(err).Warn("Failed to record failed run")
	}
}

func runMetrics(scores []contracts.BlockScore, started, finished time.Time) contracts.RunMetrics {
	dates := map[string]struct{}{}
	entities := map[string]struct{}{}
	computed, undefined := 0, 0
	for _, s := range scores {
		dates[contracts.DateKey(s.Date)] = struct{}{}
		entities[s.EntityID] = struct{}{}
		if s.Defined() {
			computed++
		} else {
			undefined++
		}
	}

	metrics := contracts.RunMetrics{
		Dates:           len(dates),
		Entities:        len(entities),
		ScoresComputed:  computed,
		ScoresUndefined: undefined,
		DurationMS:      finished.Sub(started).Milliseconds(),
	}
	if len(scores) > 0 {
		metrics.NullRate = float64(undefined) / float64(len(scores))
	}
	return metrics
}
