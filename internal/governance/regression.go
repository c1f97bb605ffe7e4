package governance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/stats"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// DefaultTolerance is the adjusted-score delta beyond which a comparison
// flags a regression or improvement.
const DefaultTolerance = 5.0

// RegressionTester certifies that a configuration change does not silently
// degrade scores: it freezes a scored snapshot per version and diffs later
// score sets against it. Deltas outside tolerance are reported, not
// failed on; the comparison is a decision-support signal for humans.
type RegressionTester struct {
	store contracts.BaselineStore
	log   *logger.Logger
	now   func() time.Time
}

func NewRegressionTester(store contracts.BaselineStore, log *logger.Logger) *RegressionTester {
	return &RegressionTester{store: store, log: log, now: time.Now}
}

// SaveBaseline freezes scores as the comparison snapshot for versionID.
// Re-saving a version replaces its baseline.
func (t *RegressionTester) SaveBaseline(ctx context.Context, scores []contracts.BlockScore, versionID string) error {
	if versionID == "" {
		return errors.New("baseline requires a version id")
	}

	baseline := &contracts.Baseline{
		VersionID: versionID,
		SavedAt:   t.now().UTC(),
		Scores:    scores,
	}
	if err := t.store.Save(ctx, baseline); err != nil {
		return fmt.Errorf("failed to save baseline %s: %w", versionID, err)
	}

	t.log.WithFields(map[string]interface{}{
		"version_id": versionID,
		"scores":     len(scores),
	}).Info("Baseline saved")
	return nil
}

// ScoreDiff is one joined row whose adjusted score moved beyond tolerance.
type ScoreDiff struct {
	Date     time.Time `json:"date"`
	EntityID string    `json:"entity_id"`
	Block    string    `json:"block"`
	Baseline float64   `json:"baseline"`
	Current  float64   `json:"current"`
	Diff     float64   `json:"diff"`
}

// RegressionReport summarizes a baseline comparison. Matched counts rows
// with a defined adjusted score on both sides; Skipped counts joined rows
// undefined on either side.
type RegressionReport struct {
	BaselineVersion   string      `json:"baseline_version"`
	Tolerance         float64     `json:"tolerance"`
	Matched           int         `json:"matched"`
	Skipped           int         `json:"skipped"`
	MissingInBaseline int         `json:"missing_in_baseline"`
	MissingInCurrent  int         `json:"missing_in_current"`
	Regressions       []ScoreDiff `json:"regressions,omitempty"`
	Improvements      []ScoreDiff `json:"improvements,omitempty"`
	MeanDiff          float64     `json:"mean_diff"`
	StdDiff           float64     `json:"std_diff"`
	MaxAbsDiff        float64     `json:"max_abs_diff"`
}

// CompareToBaseline joins scores against the stored baseline on
// (date, entity, block) and flags every delta beyond tolerance: negative
// deltas are regressions, positive ones improvements. A missing baseline
// is a hard error.
func (t *RegressionTester) CompareToBaseline(ctx context.Context, scores []contracts.BlockScore, baselineVersion string, tolerance float64) (*RegressionReport, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	baseline, err := t.store.Get(ctx, baselineVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load baseline %s: %w", baselineVersion, err)
	}

	type rowKey struct {
		date   string
		entity string
		block  string
	}
	base := make(map[rowKey]*float64, len(baseline.Scores))
	for _, s := range baseline.Scores {
		base[rowKey{contracts.DateKey(s.Date), s.EntityID, s.Block}] = s.ScoreAdjusted
	}

	current := make([]contracts.BlockScore, len(scores))
	copy(current, scores)
	contracts.SortBlockScores(current)

	report := &RegressionReport{BaselineVersion: baselineVersion, Tolerance: tolerance}
	var diffs []float64
	consumed := map[rowKey]struct{}{}
	for _, s := range current {
		key := rowKey{contracts.DateKey(s.Date), s.EntityID, s.Block}
		baseScore, ok := base[key]
		if !ok {
			report.MissingInBaseline++
			continue
		}
		consumed[key] = struct{}{}

		if baseScore == nil || s.ScoreAdjusted == nil {
			report.Skipped++
			continue
		}

		diff := *s.ScoreAdjusted - *baseScore
		report.Matched++
		diffs = append(diffs, diff)
		if math.Abs(diff) > report.MaxAbsDiff {
			report.MaxAbsDiff = math.Abs(diff)
		}

		entry := ScoreDiff{
			Date:     s.Date,
			EntityID: s.EntityID,
			Block:    s.Block,
			Baseline: *baseScore,
			Current:  *s.ScoreAdjusted,
			Diff:     diff,
		}
		switch {
		case diff < -tolerance:
			report.Regressions = append(report.Regressions, entry)
		case diff > tolerance:
			report.Improvements = append(report.Improvements, entry)
		}
	}
	report.MissingInCurrent = len(base) - len(consumed)

	if len(diffs) > 0 {
		report.MeanDiff = stats.Mean(diffs)
		report.StdDiff = stats.StdDev(diffs)
	}

	fields := map[string]interface{}{
		"baseline_version": baselineVersion,
		"matched":          report.Matched,
		"regressions":      len(report.Regressions),
		"improvements":     len(report.Improvements),
	}
	if len(report.Regressions) > 0 {
		t.log.WithFields(fields).Warn("Baseline comparison found regressions")
	} else {
		t.log.WithFields(fields).Info("Baseline comparison completed")
	}

	return report, nil
}
