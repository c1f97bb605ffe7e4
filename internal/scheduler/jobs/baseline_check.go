package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/governance"
	"github.com/arcresearch/factorlab/internal/scorestore"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// Saturday mornings, after the week's runs are in.
const defaultBaselineSchedule = "0 0 7 * * 6"

// ScoreReader is the read side of the score repository.
type ScoreReader interface {
	GetByDate(ctx context.Context, date time.Time, block string) ([]contracts.BlockScore, error)
	LatestDate(ctx context.Context) (time.Time, error)
}

// BaselineCheckJob compares the latest stored scores against the baseline
// of the newest configuration version and leaves the outcome in the audit
// trail. A check that finds regressions is recorded as failed; the job
// itself still succeeds, since rerunning cannot change stored scores.
type BaselineCheckJob struct {
	scores    ScoreReader
	versions  *governance.VersionManager
	tester    *governance.RegressionTester
	audit     *governance.AuditLogger
	tolerance float64
	schedule  string
	logger    *logger.Logger
	now       func() time.Time
}

// NewBaselineCheckJob creates a new baseline check job. Zero tolerance
// uses the regression tester's default; an empty schedule uses the weekly
// default.
func NewBaselineCheckJob(
	scores ScoreReader,
	versions *governance.VersionManager,
	tester *governance.RegressionTester,
	audit *governance.AuditLogger,
	tolerance float64,
	schedule string,
	log *logger.Logger,
) *BaselineCheckJob {
	if schedule == "" {
		schedule = defaultBaselineSchedule
	}
	return &BaselineCheckJob{
		scores:    scores,
		versions:  versions,
		tester:    tester,
		audit:     audit,
		tolerance: tolerance,
		schedule:  schedule,
		logger:    log,
		now:       time.Now,
	}
}

// Name returns the job name
func (j *BaselineCheckJob) Name() string {
	return "baseline_check"
}

// Schedule returns the cron schedule
func (j *BaselineCheckJob) Schedule() string {
	return j.schedule
}

// Run compares current scores to the stored baseline. Missing
// prerequisites (no versions, no scores, no baseline yet) skip the check
// with a warning instead of failing: they are normal in a fresh
// deployment.
func (j *BaselineCheckJob) Run(ctx context.Context) error {
	started := j.now()

	versions, err := j.versions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list versions: %w", err)
	}
	if len(versions) == 0 {
		j.logger.Warn("No configuration versions stored, skipping baseline check")
		return nil
	}
	versionID := versions[0].VersionID

	date, err := j.scores.LatestDate(ctx)
	if err != nil {
		if errors.Is(err, scorestore.ErrNoScores) {
			j.logger.Warn("No scores stored, skipping baseline check")
			return nil
		}
		return fmt.Errorf("failed to resolve latest score date: %w", err)
	}

	current, err := j.scores.GetByDate(ctx, date, "")
	if err != nil {
		return fmt.Errorf("failed to load scores for %s: %w", date.Format(time.DateOnly), err)
	}

	report, err := j.tester.CompareToBaseline(ctx, current, versionID, j.tolerance)
	if err != nil {
		if errors.Is(err, governance.ErrNotFound) {
			j.logger.WithField("version_id", versionID).Warn("No baseline saved for latest version, skipping check")
			return nil
		}
		return fmt.Errorf("baseline comparison failed: %w", err)
	}

	record := &contracts.AuditRecord{
		RunID:     governance.NewRunID(),
		VersionID: versionID,
		From:      date,
		To:        date,
		Status:    contracts.RunStatusCompleted,
		Metrics: contracts.RunMetrics{
			Dates:           1,
			Entities:        countEntities(current),
			ScoresComputed:  report.Matched,
			ScoresUndefined: report.Skipped,
			DurationMS:      time.Since(started).Milliseconds(),
		},
	}
	if n := len(report.Regressions); n > 0 {
		record.Status = contracts.RunStatusFailed
		record.Error = fmt.Sprintf("%d scores regressed beyond tolerance %.1f", n, report.Tolerance)
	}

	if err := j.audit.LogRun(ctx, record); err != nil {
		return fmt.Errorf("failed to record baseline check: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"version_id":   versionID,
		"date":         date.Format(time.DateOnly),
		"matched":      report.Matched,
		"regressions":  len(report.Regressions),
		"improvements": len(report.Improvements),
		"max_abs_diff": report.MaxAbsDiff,
	}).Info("Baseline check completed")

	return nil
}

func countEntities(scores []contracts.BlockScore) int {
	seen := make(map[string]struct{}, len(scores))
	for _, s := range scores {
		seen[s.EntityID] = struct{}{}
	}
	return len(seen)
}
