// Package aggregate combines normalized signals into block scores.
//
// A block score is a weighted average over whatever configured signals
// are present for that (date, entity): missing signals drop out of both
// numerator and denominator, so the effective weights renormalize over
// the available components. Absence never counts as zero and never
// counts as neutral. A block with no present signals scores nil.
package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/scoringconfig"
	"github.com/arcresearch/factorlab/internal/stats"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// Aggregator computes block scores for one config snapshot. Pure and
// deterministic: identical inputs yield identical output in identical
// order.
type Aggregator struct {
	cfg *scoringconfig.Config
	log *logger.Logger
}

// New creates an Aggregator.
func New(cfg *scoringconfig.Config, log *logger.Logger) *Aggregator {
	return &Aggregator{cfg: cfg, log: log}
}

type entityKey struct {
	date   string
	entity string
}

// Aggregate computes one BlockScore per (date, entity, block) for every
// (date, entity) that has at least one normalized signal. Soft risk
// penalties are applied where risk metrics are supplied; entities or
// dates without risk rows keep their raw score. Output is sorted by
// (date, entity, block) and carries no quintiles yet.
func (a *Aggregator) Aggregate(signals []contracts.NormalizedSignal, risk []contracts.RiskMetric) []contracts.BlockScore {
	values := map[entityKey]map[string]float64{}
	dates := map[string]time.Time{}
	for _, s := range signals {
		key := entityKey{date: contracts.DateKey(s.Date), entity: s.EntityID}
		if values[key] == nil {
			values[key] = map[string]float64{}
		}
		values[key][s.SignalName] = s.Normalized
		if _, ok := dates[key.date]; !ok {
			dates[key.date] = s.Date
		}
	}

	risks := indexRisk(risk)
	blockNames := a.cfg.BlockNames()

	keys := make([]entityKey, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].entity < keys[j].entity
	})

	scores := make([]contracts.BlockScore, 0, len(keys)*len(blockNames))
	undefined := 0
	penalized := 0

	for _, key := range keys {
		for _, blockName := range blockNames {
			block := a.cfg.Blocks[blockName]

			var raw *float64
			if len(block.Subblocks) > 0 {
				raw = hierarchicalScore(values[key], block)
			} else {
				raw = weightedScore(values[key], block.Signals)
			}

			adjusted, penalty := a.applyPenalties(key, blockName, raw, risks)
			if adjusted == nil {
				undefined++
			}
			if penalty > 0 {
				penalized++
			}

			scores = append(scores, contracts.BlockScore{
				Date:          dates[key.date],
				EntityID:      key.entity,
				Block:         blockName,
				ScoreRaw:      raw,
				ScoreAdjusted: adjusted,
			})
		}
	}

	a.log.WithFields(map[string]interface{}{
		"entities":  len(keys),
		"blocks":    len(blockNames),
		"scores":    len(scores),
		"undefined": undefined,
		"penalized": penalized,
	}).Info("Aggregation completed")

	return scores
}

// weightedScore renormalizes weights over present signals. Nil when no
// configured signal is present.
func weightedScore(values map[string]float64, signals map[string]scoringconfig.Signal) *float64 {
	var weightedSum, totalWeight float64

	// Sorted iteration keeps float accumulation order fixed across runs.
	for _, name := range sortedKeys(signals) {
		v, ok := values[name]
		if !ok {
			continue
		}
		sig := signals[name]
		weightedSum += v * sig.Weight
		totalWeight += sig.Weight
	}

	if totalWeight == 0 {
		return nil
	}
	score := weightedSum / totalWeight
	return &score
}

// hierarchicalScore applies the weighted-aggregation rule twice: leaf
// signals into subblock scores, subblock scores into the block score.
// A subblock with no present signals drops out exactly like a missing
// leaf signal.
func hierarchicalScore(values map[string]float64, block scoringconfig.Block) *float64 {
	var weightedSum, totalWeight float64

	for _, subName := range sortedKeys(block.Subblocks) {
		sub := block.Subblocks[subName]
		subScore := weightedScore(values, sub.Signals)
		if subScore == nil {
			continue
		}
		weightedSum += *subScore * sub.Weight
		totalWeight += sub.Weight
	}

	if totalWeight == 0 {
		return nil
	}
	score := weightedSum / totalWeight
	return &score
}

// applyPenalties subtracts accumulated soft penalties from a raw score.
// Each applicable rule compares the entity's risk metric against the
// cross-sectional threshold percentile on that date; the penalty grows
// linearly from 0 at the threshold to the full max_penalty at the
// cross-sectional maximum. The result is floored at 0 and not re-capped
// at 100. Undefined scores pass through untouched: there is nothing to
// penalize.
func (a *Aggregator) applyPenalties(key entityKey, block string, raw *float64, risks *riskIndex) (*float64, float64) {
	if raw == nil {
		return nil, 0
	}

	total := 0.0
	for _, metric := range a.cfg.PenaltyMetrics() {
		rule := a.cfg.RiskPenalties.SoftPenalties[metric]
		if !affects(rule.AffectedScores, block) {
			continue
		}

		value, ok := risks.value(key.date, key.entity, metric)
		if !ok {
			continue
		}

		cross := risks.crossSection(key.date, metric)
		threshold := stats.Percentile(cross, rule.ThresholdPercentile/100)
		if value <= threshold {
			continue
		}

		max := stats.Max(cross)
		if max <= threshold {
			continue
		}

		excess := (value - threshold) / (max - threshold)
		total += math.Min(excess*rule.MaxPenalty, rule.MaxPenalty)
	}

	adjusted := math.Max(0, *raw-total)
	return &adjusted, total
}

func affects(affected []string, block string) bool {
	for _, name := range affected {
		if name == block || name == scoringconfig.PenaltyAll {
			return true
		}
	}
	return false
}

type riskIndex struct {
	values map[entityKey]map[string]float64
	cross  map[string]map[string][]float64 // date -> metric -> defined values
}

func indexRisk(risk []contracts.RiskMetric) *riskIndex {
	idx := &riskIndex{
		values: map[entityKey]map[string]float64{},
		cross:  map[string]map[string][]float64{},
	}
	for _, r := range risk {
		if !r.Defined() {
			continue
		}
		key := entityKey{date: contracts.DateKey(r.Date), entity: r.EntityID}
		if idx.values[key] == nil {
			idx.values[key] = map[string]float64{}
		}
		idx.values[key][r.Metric] = *r.Value

		if idx.cross[key.date] == nil {
			idx.cross[key.date] = map[string][]float64{}
		}
		idx.cross[key.date][r.Metric] = append(idx.cross[key.date][r.Metric], *r.Value)
	}
	return idx
}

func (r *riskIndex) value(date, entity, metric string) (float64, bool) {
	v, ok := r.values[entityKey{date: date, entity: entity}][metric]
	return v, ok
}

func (r *riskIndex) crossSection(date, metric string) []float64 {
	return r.cross[date][metric]
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
