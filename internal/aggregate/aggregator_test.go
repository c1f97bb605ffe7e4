package aggregate

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/scoringconfig"
	"github.com/arcresearch/factorlab/pkg/logger"
)

func testConfig(t *testing.T) *scoringconfig.Config {
	t.Helper()
	cfg := &scoringconfig.Config{
		Meta: scoringconfig.Meta{ConfigID: "aggregate_test", Version: "1.0"},
		Normalization: scoringconfig.Normalization{
			Method:    scoringconfig.MethodCDF,
			Winsorize: scoringconfig.Winsorize{PLow: 0.05, PHigh: 0.95},
			ZScore:    scoringconfig.ZScore{UseRobust: true},
			MinGroup:  3,
		},
		Blocks: map[string]scoringconfig.Block{
			"alpha": {
				Signals: map[string]scoringconfig.Signal{
					"sig_a": {Weight: 0.6, Direction: 1},
					"sig_b": {Weight: 0.4, Direction: 1},
				},
			},
			"beta": {
				Subblocks: map[string]scoringconfig.Subblock{
					"x": {
						Weight:  0.5,
						Signals: map[string]scoringconfig.Signal{"s1": {Weight: 1.0, Direction: 1}},
					},
					"y": {
						Weight: 0.5,
						Signals: map[string]scoringconfig.Signal{
							"s2": {Weight: 0.6, Direction: 1},
							"s3": {Weight: 0.4, Direction: 1},
						},
					},
				},
			},
		},
		RiskPenalties: scoringconfig.RiskPenalties{
			SoftPenalties: map[string]scoringconfig.SoftPenalty{
				"vol_20d": {
					AffectedScores:      []string{"alpha"},
					ThresholdPercentile: 90,
					MaxPenalty:          10,
				},
			},
		},
		Quintiles: scoringconfig.Quintiles{
			Method:         scoringconfig.QuintileZScore,
			ReferenceBlock: "alpha",
		},
	}
	if err := scoringconfig.Validate(cfg); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return cfg
}

var testDate = time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

func norm(entity, signal string, value float64) contracts.NormalizedSignal {
	return contracts.NormalizedSignal{
		Date:       testDate,
		EntityID:   entity,
		SignalName: signal,
		Normalized: value,
	}
}

func riskRow(entity, metric string, value float64) contracts.RiskMetric {
	return contracts.RiskMetric{
		Date:     testDate,
		EntityID: entity,
		Metric:   metric,
		Value:    contracts.Float64(value),
	}
}

func scoreFor(t *testing.T, scores []contracts.BlockScore, entity, block string) contracts.BlockScore {
	t.Helper()
	for _, s := range scores {
		if s.EntityID == entity && s.Block == block {
			return s
		}
	}
	t.Fatalf("no score for %s/%s", entity, block)
	return contracts.BlockScore{}
}

func TestAggregateRenormalizesWeights(t *testing.T) {
	a := New(testConfig(t), logger.Nop())

	// Only sig_a (weight 0.6) present with value 80: the weighted average
	// over available signals is 80, not 48.
	scores := a.Aggregate([]contracts.NormalizedSignal{norm("E1", "sig_a", 80)}, nil)

	got := scoreFor(t, scores, "E1", "alpha")
	if got.ScoreRaw == nil || *got.ScoreRaw != 80 {
		t.Fatalf("expected raw 80, got %v", got.ScoreRaw)
	}
	if got.ScoreAdjusted == nil || *got.ScoreAdjusted != 80 {
		t.Fatalf("expected adjusted 80, got %v", got.ScoreAdjusted)
	}
}

func TestAggregateWeightedAverage(t *testing.T) {
	a := New(testConfig(t), logger.Nop())

	scores := a.Aggregate([]contracts.NormalizedSignal{
		norm("E1", "sig_a", 80),
		norm("E1", "sig_b", 60),
	}, nil)

	got := scoreFor(t, scores, "E1", "alpha")
	want := 80*0.6 + 60*0.4
	if got.ScoreRaw == nil || math.Abs(*got.ScoreRaw-want) > 1e-9 {
		t.Errorf("expected raw %v, got %v", want, got.ScoreRaw)
	}
}

func TestAggregateUndefinedWhenNoSignals(t *testing.T) {
	a := New(testConfig(t), logger.Nop())

	// E1 only has beta signals: alpha must be nil, not 0 and not 50.
	scores := a.Aggregate([]contracts.NormalizedSignal{norm("E1", "s1", 70)}, nil)

	if len(scores) != 2 {
		t.Fatalf("expected one row per block, got %d", len(scores))
	}

	alpha := scoreFor(t, scores, "E1", "alpha")
	if alpha.ScoreRaw != nil || alpha.ScoreAdjusted != nil {
		t.Errorf("expected undefined alpha, got raw=%v adjusted=%v", alpha.ScoreRaw, alpha.ScoreAdjusted)
	}

	beta := scoreFor(t, scores, "E1", "beta")
	if beta.ScoreRaw == nil || *beta.ScoreRaw != 70 {
		t.Errorf("expected beta 70 via subblock x, got %v", beta.ScoreRaw)
	}
}

func TestAggregateHierarchical(t *testing.T) {
	a := New(testConfig(t), logger.Nop())

	t.Run("all subblocks present", func(t *testing.T) {
		scores := a.Aggregate([]contracts.NormalizedSignal{
			norm("E1", "s1", 40),
			norm("E1", "s2", 70),
			norm("E1", "s3", 50),
		}, nil)

		// x = 40; y = 70*0.6 + 50*0.4 = 62; beta = 0.5*40 + 0.5*62 = 51.
		got := scoreFor(t, scores, "E1", "beta")
		if got.ScoreRaw == nil || math.Abs(*got.ScoreRaw-51) > 1e-9 {
			t.Errorf("expected 51, got %v", got.ScoreRaw)
		}
	})

	t.Run("empty subblock drops out", func(t *testing.T) {
		scores := a.Aggregate([]contracts.NormalizedSignal{
			norm("E1", "s2", 70),
			norm("E1", "s3", 50),
		}, nil)

		// x has no signals: beta renormalizes to y alone = 62.
		got := scoreFor(t, scores, "E1", "beta")
		if got.ScoreRaw == nil || math.Abs(*got.ScoreRaw-62) > 1e-9 {
			t.Errorf("expected 62, got %v", got.ScoreRaw)
		}
	})
}

func TestAggregatePenaltyBoundaries(t *testing.T) {
	a := New(testConfig(t), logger.Nop())

	// Twenty-one entities, vol_20d 0..100 step 5: the p90 threshold lands
	// exactly on 90 and the cross-sectional max is 100.
	var signals []contracts.NormalizedSignal
	var risk []contracts.RiskMetric
	for i := 0; i <= 20; i++ {
		e := entityID(i)
		signals = append(signals, norm(e, "sig_a", 80))
		risk = append(risk, riskRow(e, "vol_20d", float64(i*5)))
	}

	scores := a.Aggregate(signals, risk)

	tests := []struct {
		entity string
		want   float64
	}{
		{entityID(18), 80}, // vol 90, at the threshold: penalty 0
		{entityID(19), 75}, // vol 95, halfway to the max: half the penalty
		{entityID(20), 70}, // vol 100, at the maximum: full penalty 10
		{entityID(10), 80}, // vol 50, well below threshold
	}
	for _, tc := range tests {
		got := scoreFor(t, scores, tc.entity, "alpha")
		if got.ScoreAdjusted == nil || math.Abs(*got.ScoreAdjusted-tc.want) > 1e-9 {
			t.Errorf("%s: expected adjusted %v, got %v", tc.entity, tc.want, got.ScoreAdjusted)
		}
		if got.ScoreRaw == nil || *got.ScoreRaw != 80 {
			t.Errorf("%s: raw score must stay 80, got %v", tc.entity, got.ScoreRaw)
		}
	}
}

func TestAggregatePenaltyFloorsAtZero(t *testing.T) {
	a := New(testConfig(t), logger.Nop())

	var signals []contracts.NormalizedSignal
	var risk []contracts.RiskMetric
	for i := 0; i <= 10; i++ {
		e := entityID(i)
		signals = append(signals, norm(e, "sig_a", 3))
		risk = append(risk, riskRow(e, "vol_20d", float64(i*10)))
	}

	scores := a.Aggregate(signals, risk)

	// Raw 3 minus penalty 10 floors at 0, never negative.
	got := scoreFor(t, scores, entityID(10), "alpha")
	if got.ScoreAdjusted == nil || *got.ScoreAdjusted != 0 {
		t.Errorf("expected floor at 0, got %v", got.ScoreAdjusted)
	}
}

func TestAggregatePenaltiesAccumulate(t *testing.T) {
	cfg := testConfig(t)
	cfg.RiskPenalties.SoftPenalties["max_drawdown_1y"] = scoringconfig.SoftPenalty{
		AffectedScores:      []string{"alpha"},
		ThresholdPercentile: 90,
		MaxPenalty:          5,
	}
	a := New(cfg, logger.Nop())

	var signals []contracts.NormalizedSignal
	var risk []contracts.RiskMetric
	for i := 0; i <= 10; i++ {
		e := entityID(i)
		signals = append(signals, norm(e, "sig_a", 80))
		risk = append(risk, riskRow(e, "vol_20d", float64(i*10)))
		risk = append(risk, riskRow(e, "max_drawdown_1y", float64(i)))
	}

	scores := a.Aggregate(signals, risk)

	// Worst entity maxes both rules: 10 + 5 off the top.
	got := scoreFor(t, scores, entityID(10), "alpha")
	if got.ScoreAdjusted == nil || math.Abs(*got.ScoreAdjusted-65) > 1e-9 {
		t.Errorf("expected 80-15=65, got %v", got.ScoreAdjusted)
	}
}

func TestAggregatePenaltyAllWildcard(t *testing.T) {
	cfg := testConfig(t)
	cfg.RiskPenalties.SoftPenalties["vol_20d"] = scoringconfig.SoftPenalty{
		AffectedScores:      []string{scoringconfig.PenaltyAll},
		ThresholdPercentile: 90,
		MaxPenalty:          10,
	}
	a := New(cfg, logger.Nop())

	var signals []contracts.NormalizedSignal
	var risk []contracts.RiskMetric
	for i := 0; i <= 10; i++ {
		e := entityID(i)
		signals = append(signals, norm(e, "sig_a", 80), norm(e, "s1", 60))
		risk = append(risk, riskRow(e, "vol_20d", float64(i*10)))
	}

	scores := a.Aggregate(signals, risk)

	worst := entityID(10)
	if got := scoreFor(t, scores, worst, "alpha"); *got.ScoreAdjusted != 70 {
		t.Errorf("alpha: expected 70, got %v", *got.ScoreAdjusted)
	}
	if got := scoreFor(t, scores, worst, "beta"); *got.ScoreAdjusted != 50 {
		t.Errorf("beta: expected 60-10=50, got %v", *got.ScoreAdjusted)
	}
}

func TestAggregateMissingRiskSkipsPenalty(t *testing.T) {
	a := New(testConfig(t), logger.Nop())

	var signals []contracts.NormalizedSignal
	var risk []contracts.RiskMetric
	for i := 0; i <= 10; i++ {
		e := entityID(i)
		signals = append(signals, norm(e, "sig_a", 80))
		if i < 10 {
			risk = append(risk, riskRow(e, "vol_20d", float64(i*10)))
		}
	}
	// The worst entity has an explicitly undefined metric: excluded from
	// the cross-section and never penalized.
	risk = append(risk, contracts.RiskMetric{
		Date: testDate, EntityID: entityID(10), Metric: "vol_20d", Value: nil,
	})

	scores := a.Aggregate(signals, risk)

	got := scoreFor(t, scores, entityID(10), "alpha")
	if got.ScoreAdjusted == nil || *got.ScoreAdjusted != 80 {
		t.Errorf("expected no penalty without a defined metric, got %v", got.ScoreAdjusted)
	}
}

func TestAggregateUndefinedScoreSkipsPenalties(t *testing.T) {
	a := New(testConfig(t), logger.Nop())

	// E1 has only beta signals but a terrible risk profile: alpha remains
	// undefined rather than penalized into existence.
	signals := []contracts.NormalizedSignal{norm("E1", "s1", 70)}
	risk := []contracts.RiskMetric{riskRow("E1", "vol_20d", 999)}

	scores := a.Aggregate(signals, risk)
	got := scoreFor(t, scores, "E1", "alpha")
	if got.ScoreRaw != nil || got.ScoreAdjusted != nil {
		t.Errorf("expected undefined to pass through, got %+v", got)
	}
}

func TestAggregateDeterministicAndSorted(t *testing.T) {
	a := New(testConfig(t), logger.Nop())

	later := testDate.AddDate(0, 0, 3)
	signals := []contracts.NormalizedSignal{
		norm("E2", "sig_a", 30),
		norm("E1", "sig_a", 80),
		{Date: later, EntityID: "E1", SignalName: "sig_a", Normalized: 55},
	}

	first := a.Aggregate(signals, nil)

	// Same rows, different input order.
	reversed := []contracts.NormalizedSignal{signals[2], signals[1], signals[0]}
	second := a.Aggregate(reversed, nil)

	if !reflect.DeepEqual(first, second) {
		t.Error("input order changed the output")
	}

	for i := 1; i < len(first); i++ {
		a, b := first[i-1], first[i]
		if a.Date.After(b.Date) {
			t.Fatalf("rows not sorted by date at %d", i)
		}
		if a.Date.Equal(b.Date) && a.EntityID > b.EntityID {
			t.Fatalf("rows not sorted by entity at %d", i)
		}
		if a.Date.Equal(b.Date) && a.EntityID == b.EntityID && a.Block >= b.Block {
			t.Fatalf("rows not sorted by block at %d", i)
		}
	}
}

func entityID(i int) string {
	return string(rune('A'+i/10)) + string(rune('0'+i%10))
}
