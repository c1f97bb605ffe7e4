package governance

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/pkg/logger"
)

var validateDate = time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

func scored(entity, block string, adjusted float64) contracts.BlockScore {
	return contracts.BlockScore{
		Date:          validateDate,
		EntityID:      entity,
		Block:         block,
		ScoreRaw:      contracts.Float64(adjusted),
		ScoreAdjusted: contracts.Float64(adjusted),
	}
}

func ranked(entity, block string, adjusted float64, quintile int) contracts.BlockScore {
	s := scored(entity, block, adjusted)
	s.Quintile = &quintile
	return s
}

func TestValidateScoresCleanData(t *testing.T) {
	v := NewScoreValidator(logger.Nop())

	report := v.ValidateScores([]contracts.BlockScore{
		scored("E1", "alpha", 40),
		scored("E2", "alpha", 60),
		scored("E1", "beta", 80),
	}, 0, 100)

	if !report.Valid {
		t.Fatalf("expected valid report, got issues %v", report.Issues)
	}
	if len(report.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(report.Blocks))
	}

	alpha := report.Blocks[0]
	if alpha.Block != "alpha" {
		t.Fatalf("expected blocks sorted, got %s first", alpha.Block)
	}
	if alpha.Count != 2 || alpha.Mean != 50 || alpha.Min != 40 || alpha.Max != 60 {
		t.Errorf("unexpected alpha stats: %+v", alpha)
	}
	if math.Abs(alpha.Std-math.Sqrt(200)) > 1e-9 {
		t.Errorf("expected sample std sqrt(200), got %v", alpha.Std)
	}
}

func TestValidateScoresFlagsOutOfRange(t *testing.T) {
	v := NewScoreValidator(logger.Nop())

	report := v.ValidateScores([]contracts.BlockScore{
		scored("E1", "alpha", 50),
		scored("E2", "alpha", 120),
	}, 0, 100)

	if report.Valid {
		t.Fatal("expected invalid report for an out-of-range score")
	}
	if len(report.Issues) != 1 {
		t.Fatalf("expected 1 issue, got %v", report.Issues)
	}
	if report.Blocks[0].OutOfRange != 1 {
		t.Errorf("expected 1 out-of-range score, got %d", report.Blocks[0].OutOfRange)
	}
}

func TestValidateScoresNullsStayValid(t *testing.T) {
	v := NewScoreValidator(logger.Nop())

	report := v.ValidateScores([]contracts.BlockScore{
		scored("E1", "alpha", 50),
		{Date: validateDate, EntityID: "E2", Block: "alpha"},
		{Date: validateDate, EntityID: "E3", Block: "alpha"},
	}, 0, 100)

	// Undefined scores are missing data, not a validation failure.
	if !report.Valid {
		t.Fatalf("nulls must not invalidate: %v", report.Issues)
	}
	alpha := report.Blocks[0]
	if alpha.NullCount != 2 || alpha.Count != 1 {
		t.Errorf("unexpected null accounting: %+v", alpha)
	}
	if math.Abs(alpha.NullRate-2.0/3.0) > 1e-9 {
		t.Errorf("expected null rate 2/3, got %v", alpha.NullRate)
	}
}

func TestValidateQuintileDistributionBalanced(t *testing.T) {
	v := NewScoreValidator(logger.Nop())

	var scores []contracts.BlockScore
	for q := 1; q <= 5; q++ {
		for i := 0; i < 20; i++ {
			scores = append(scores, ranked(fmt.Sprintf("E%d_%02d", q, i), "alpha", 50, q))
		}
	}

	report := v.ValidateQuintileDistribution(scores, "alpha", DefaultQuintileTolerance)
	if !report.Valid || len(report.Warnings) != 0 {
		t.Fatalf("expected clean report, got %+v", report)
	}
	if report.Ranked != 100 {
		t.Errorf("expected 100 ranked rows, got %d", report.Ranked)
	}
	for q := 1; q <= 5; q++ {
		if math.Abs(report.Shares[q]-0.20) > 1e-9 {
			t.Errorf("Q%d: expected share 0.20, got %v", q, report.Shares[q])
		}
	}
}

func TestValidateQuintileDistributionSkewWarns(t *testing.T) {
	v := NewScoreValidator(logger.Nop())

	// 40 entities in Q3, 5 in each other bucket: heavily unbalanced, as
	// the z-cutoff method produces on fat-middled distributions.
	var scores []contracts.BlockScore
	n := 0
	add := func(q, count int) {
		for i := 0; i < count; i++ {
			scores = append(scores, ranked(fmt.Sprintf("E%03d", n), "alpha", 50, q))
			n++
		}
	}
	add(1, 5)
	add(2, 5)
	add(3, 40)
	add(4, 5)
	add(5, 5)

	report := v.ValidateQuintileDistribution(scores, "alpha", DefaultQuintileTolerance)

	// Unbalanced buckets warn but do not invalidate.
	if !report.Valid {
		t.Fatal("skew must not invalidate the report")
	}
	if len(report.Warnings) == 0 {
		t.Fatal("expected warnings for the unbalanced buckets")
	}
}

func TestValidateQuintileDistributionEmpty(t *testing.T) {
	v := NewScoreValidator(logger.Nop())

	report := v.ValidateQuintileDistribution([]contracts.BlockScore{
		scored("E1", "alpha", 50), // no quintile assigned
	}, "alpha", 0)

	if report.Valid {
		t.Fatal("expected invalid report when nothing is ranked")
	}
	if report.Unranked != 1 {
		t.Errorf("expected 1 unranked row, got %d", report.Unranked)
	}
}

func TestValidateSignalCoverage(t *testing.T) {
	v := NewScoreValidator(logger.Nop())

	raw := func(entity, signal string) contracts.RawSignal {
		return contracts.RawSignal{
			Date:       validateDate,
			EntityID:   entity,
			SignalName: signal,
			Value:      contracts.Float64(1),
		}
	}

	required := []string{"sig_a", "sig_b", "sig_c", "sig_d"}
	signals := []contracts.RawSignal{
		raw("E1", "sig_a"), raw("E1", "sig_b"), raw("E1", "sig_c"), raw("E1", "sig_d"),
		raw("E2", "sig_a"), raw("E2", "sig_b"),
	}

	report := v.ValidateSignalCoverage(signals, required, 0.7)

	if report.Valid {
		t.Fatal("expected invalid report: E2 covers only half the signals")
	}
	if report.Coverage["E1"] != 1.0 {
		t.Errorf("E1: expected full coverage, got %v", report.Coverage["E1"])
	}
	if report.Coverage["E2"] != 0.5 {
		t.Errorf("E2: expected coverage 0.5, got %v", report.Coverage["E2"])
	}
	if len(report.MissingSignals) != 0 {
		t.Errorf("no signal is missing everywhere, got %v", report.MissingSignals)
	}
}

func TestValidateSignalCoverageMissingSignal(t *testing.T) {
	v := NewScoreValidator(logger.Nop())

	signals := []contracts.RawSignal{
		{Date: validateDate, EntityID: "E1", SignalName: "sig_a", Value: contracts.Float64(1)},
	}

	report := v.ValidateSignalCoverage(signals, []string{"sig_a", "sig_zz"}, 0.4)

	if report.Valid {
		t.Fatal("expected invalid report for a signal absent everywhere")
	}
	if len(report.MissingSignals) != 1 || report.MissingSignals[0] != "sig_zz" {
		t.Errorf("expected sig_zz missing, got %v", report.MissingSignals)
	}
}
