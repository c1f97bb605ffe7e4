package governance

import (
	"fmt"
	"math"
	"sort"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/stats"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// Validation defaults. Deviations within these bounds are normal operating
// conditions; beyond them they become warnings, and only out-of-range
// scores invalidate a report.
const (
	ExpectedQuintileShare    = 0.20
	DefaultQuintileTolerance = 0.10
	DefaultMinCoverage       = 0.7
)

// ScoreValidator inspects scored output for range, null-rate, quintile
// balance and signal coverage problems. Findings are reported, never
// raised: the caller decides whether a report blocks a release.
type ScoreValidator struct {
	log *logger.Logger
}

func NewScoreValidator(log *logger.Logger) *ScoreValidator {
	return &ScoreValidator{log: log}
}

// BlockStats describes the adjusted scores of one block. Mean/Std/Min/Max
// cover defined scores only and are zero when Count is zero.
type BlockStats struct {
	Block      string  `json:"block"`
	Rows       int     `json:"rows"`
	Count      int     `json:"count"`
	NullCount  int     `json:"null_count"`
	NullRate   float64 `json:"null_rate"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	OutOfRange int     `json:"out_of_range"`
}

// ScoreValidationReport is the result of a range/null sweep. Valid turns
// false only for out-of-range scores; nulls are legitimate (missing data
// propagates as undefined) and appear in the per-block stats.
type ScoreValidationReport struct {
	Valid  bool         `json:"valid"`
	Blocks []BlockStats `json:"blocks"`
	Issues []string     `json:"issues,omitempty"`
}

// ValidateScores checks every adjusted score against [lo, hi] and reports
// per-block descriptive statistics.
func (v *ScoreValidator) ValidateScores(scores []contracts.BlockScore, lo, hi float64) *ScoreValidationReport {
	report := &ScoreValidationReport{Valid: true}

	byBlock := map[string][]contracts.BlockScore{}
	for _, s := range scores {
		byBlock[s.Block] = append(byBlock[s.Block], s)
	}

	for _, block := range sortedKeys(byBlock) {
		rows := byBlock[block]
		bs := BlockStats{Block: block, Rows: len(rows)}

		var values []float64
		for _, s := range rows {
			if !s.Defined() {
				bs.NullCount++
				continue
			}
			values = append(values, *s.ScoreAdjusted)
			if *s.ScoreAdjusted < lo || *s.ScoreAdjusted > hi {
				bs.OutOfRange++
			}
		}
		bs.Count = len(values)
		bs.NullRate = float64(bs.NullCount) / float64(len(rows))
		if len(values) > 0 {
			bs.Mean = stats.Mean(values)
			bs.Std = stats.StdDev(values)
			bs.Min = stats.Min(values)
			bs.Max = stats.Max(values)
		}

		if bs.OutOfRange > 0 {
			report.Valid = false
			report.Issues = append(report.Issues, fmt.Sprintf(
				"block %s: %d scores outside [%g, %g] (min %.2f, max %.2f)",
				block, bs.OutOfRange, lo, hi, bs.Min, bs.Max))
		}

		report.Blocks = append(report.Blocks, bs)
	}

	if !report.Valid {
		v.log.WithFields(map[string]interface{}{
			"issues": len(report.Issues),
		}).Warn("Score validation failed")
	}
	return report
}

// QuintileDistributionReport describes how ranked entities spread across
// the five buckets. Shares are computed over ranked rows only; unbalanced
// buckets warn (the z-cutoff method produces them legitimately) and the
// report is invalid only when there is nothing ranked to check.
type QuintileDistributionReport struct {
	Valid    bool            `json:"valid"`
	Block    string          `json:"block"`
	Ranked   int             `json:"ranked"`
	Unranked int             `json:"unranked"`
	Shares   map[int]float64 `json:"shares"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ValidateQuintileDistribution checks the quintile shares of one block
// against the expected 20% per bucket, within tolerance.
func (v *ScoreValidator) ValidateQuintileDistribution(scores []contracts.BlockScore, block string, tolerance float64) *QuintileDistributionReport {
	if tolerance <= 0 {
		tolerance = DefaultQuintileTolerance
	}
	report := &QuintileDistributionReport{Valid: true, Block: block, Shares: map[int]float64{}}

	counts := map[int]int{}
	for _, s := range scores {
		if s.Block != block {
			continue
		}
		if s.Quintile == nil {
			report.Unranked++
			continue
		}
		report.Ranked++
		counts[*s.Quintile]++
	}

	if report.Ranked == 0 {
		report.Valid = false
		report.Warnings = append(report.Warnings, fmt.Sprintf("block %s has no quintile data", block))
		return report
	}

	for q := 1; q <= 5; q++ {
		share := float64(counts[q]) / float64(report.Ranked)
		report.Shares[q] = share
		if math.Abs(share-ExpectedQuintileShare) > tolerance {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"Q%d holds %.1f%% of entities (expected ~%.0f%%)",
				q, share*100, ExpectedQuintileShare*100))
		}
	}

	if len(report.Warnings) > 0 {
		v.log.WithFields(map[string]interface{}{
			"block":    block,
			"warnings": len(report.Warnings),
		}).Warn("Quintile distribution unbalanced")
	}
	return report
}

// CoverageReport describes how completely the raw input covers the
// required signal set. Coverage is the per-entity share of required
// signals with at least one observation row.
type CoverageReport struct {
	Valid          bool               `json:"valid"`
	Coverage       map[string]float64 `json:"coverage"`
	MissingSignals []string           `json:"missing_signals,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// ValidateSignalCoverage flags required signals absent from the whole
// input and entities whose coverage falls below minCoverage.
func (v *ScoreValidator) ValidateSignalCoverage(signals []contracts.RawSignal, required []string, minCoverage float64) *CoverageReport {
	if minCoverage <= 0 {
		minCoverage = DefaultMinCoverage
	}
	report := &CoverageReport{Valid: true, Coverage: map[string]float64{}}

	requiredSet := map[string]struct{}{}
	for _, name := range required {
		requiredSet[name] = struct{}{}
	}

	available := map[string]struct{}{}
	byEntity := map[string]map[string]struct{}{}
	for _, s := range signals {
		available[s.SignalName] = struct{}{}
		if _, ok := byEntity[s.EntityID]; !ok {
			byEntity[s.EntityID] = map[string]struct{}{}
		}
		byEntity[s.EntityID][s.SignalName] = struct{}{}
	}

	for _, name := range required {
		if _, ok := available[name]; !ok {
			report.MissingSignals = append(report.MissingSignals, name)
		}
	}
	sort.Strings(report.MissingSignals)
	if len(report.MissingSignals) > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("missing signals: %v", report.MissingSignals))
	}

	for _, entity := range sortedKeys(byEntity) {
		covered := 0
		for name := range requiredSet {
			if _, ok := byEntity[entity][name]; ok {
				covered++
			}
		}
		coverage := 0.0
		if len(requiredSet) > 0 {
			coverage = float64(covered) / float64(len(requiredSet))
		}
		report.Coverage[entity] = coverage
		if coverage < minCoverage {
			report.Warnings = append(report.Warnings, fmt.Sprintf("low coverage for %s: %.0f%%", entity, coverage*100))
		}
	}

	for _, coverage := range report.Coverage {
		if coverage < minCoverage {
			report.Valid = false
			break
		}
	}
	if len(report.MissingSignals) > 0 {
		report.Valid = false
	}

	if !report.Valid {
		v.log.WithFields(map[string]interface{}{
			"missing_signals": len(report.MissingSignals),
			"entities":        len(report.Coverage),
		}).Warn("Signal coverage below minimum")
	}
	return report
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
