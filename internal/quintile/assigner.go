// Package quintile buckets adjusted block scores into cross-sectional
// ranks 1-5 per date.
//
// Ranking is computed once per date from the reference block's adjusted
// scores and stamped onto every block row of that (date, entity): the
// quintile labels the entity, not the individual block. Two strategies
// are supported. The zscore method buckets by fixed normal cutoffs
// {-0.84, -0.25, 0.25, 0.84} and can produce uneven buckets on skewed
// input; the percentile method buckets by empirical rank and is equal
// sized by construction. They disagree whenever the score distribution
// is not normal, which CompareMethods makes visible.
package quintile

import (
	"sort"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/scoringconfig"
	"github.com/arcresearch/factorlab/internal/stats"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// Fixed z cutoffs approximating equal-population quintiles of a normal
// distribution.
var zCutoffs = [4]float64{-0.84, -0.25, 0.25, 0.84}

type Assigner struct {
	cfg *scoringconfig.Config
	log *logger.Logger
}

func New(cfg *scoringconfig.Config, log *logger.Logger) *Assigner {
	return &Assigner{cfg: cfg, log: log}
}

// Assign returns a copy of scores with Quintile filled from the
// reference block's adjusted scores, per date. Rows whose (date, entity)
// has no defined reference score keep a nil quintile. The input is not
// mutated.
func (a *Assigner) Assign(scores []contracts.BlockScore) []contracts.BlockScore {
	ranks := a.rank(scores, a.cfg.Quintiles.Method)

	out := make([]contracts.BlockScore, len(scores))
	copy(out, scores)
	ranked := 0
	for i := range out {
		key := entityKey{contracts.DateKey(out[i].Date), out[i].EntityID}
		if q, ok := ranks[key]; ok {
			quintile := q
			out[i].Quintile = &quintile
			ranked++
		} else {
			out[i].Quintile = nil
		}
	}
	contracts.SortBlockScores(out)

	a.log.WithFields(map[string]interface{}{
		"method":          a.cfg.Quintiles.Method,
		"reference_block": a.cfg.Quintiles.ReferenceBlock,
		"rows":            len(out),
		"ranked_rows":     ranked,
	}).Info("Quintile assignment completed")

	return out
}

// Divergence is one (date, entity) where the two strategies disagree.
type Divergence struct {
	Date       time.Time `json:"date"`
	EntityID   string    `json:"entity_id"`
	ZScore     int       `json:"zscore"`
	Percentile int       `json:"percentile"`
}

// DivergenceReport compares the zscore and percentile strategies over
// the same scores. Divergence is expected on non-normal distributions;
// it is surfaced here instead of being silently absorbed by whichever
// method a caller happens to use.
type DivergenceReport struct {
	Total     int          `json:"total"`
	Diverged  []Divergence `json:"diverged"`
	Reference string       `json:"reference_block"`
}

// Rate returns the share of ranked entities on which the methods disagree.
func (r *DivergenceReport) Rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Diverged)) / float64(r.Total)
}

// CompareMethods ranks the reference block with both strategies and
// reports every (date, entity) they bucket differently.
func (a *Assigner) CompareMethods(scores []contracts.BlockScore) *DivergenceReport {
	byZ := a.rank(scores, scoringconfig.QuintileZScore)
	byPct := a.rank(scores, scoringconfig.QuintilePercentile)

	dates := map[string]time.Time{}
	for _, s := range scores {
		key := contracts.DateKey(s.Date)
		if _, ok := dates[key]; !ok {
			dates[key] = s.Date
		}
	}

	report := &DivergenceReport{Reference: a.cfg.Quintiles.ReferenceBlock}
	keys := make([]entityKey, 0, len(byPct))
	for key := range byPct {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].entity < keys[j].entity
	})

	for _, key := range keys {
		z, ok := byZ[key]
		if !ok {
			// Degenerate cross-section: zscore declined to rank.
			continue
		}
		report.Total++
		if z != byPct[key] {
			report.Diverged = append(report.Diverged, Divergence{
				Date:       dates[key.date],
				EntityID:   key.entity,
				ZScore:     z,
				Percentile: byPct[key],
			})
		}
	}

	if len(report.Diverged) > 0 {
		a.log.WithFields(map[string]interface{}{
			"total":    report.Total,
			"diverged": len(report.Diverged),
		}).Warn("Quintile strategies disagree on this cross-section")
	}
	return report
}

type entityKey struct {
	date   string
	entity string
}

// rank computes quintiles per date over entities with a defined adjusted
// score on the reference block.
func (a *Assigner) rank(scores []contracts.BlockScore, method string) map[entityKey]int {
	type group struct {
		entities []string
		values   []float64
	}
	groups := map[string]*group{}
	for _, s := range scores {
		if s.Block != a.cfg.Quintiles.ReferenceBlock || !s.Defined() {
			continue
		}
		key := contracts.DateKey(s.Date)
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.entities = append(g.entities, s.EntityID)
		g.values = append(g.values, *s.ScoreAdjusted)
	}

	ranks := map[entityKey]int{}
	for date, g := range groups {
		switch method {
		case scoringconfig.QuintilePercentile:
			for i, entity := range g.entities {
				ranks[entityKey{date, entity}] = percentileBucket(g.values[i], g.values)
			}
		default:
			mean := stats.Mean(g.values)
			std := stats.StdDev(g.values)
			if std == 0 {
				// No dispersion to rank against: leave the whole
				// cross-section unranked.
				continue
			}
			for i, entity := range g.entities {
				ranks[entityKey{date, entity}] = zBucket((g.values[i] - mean) / std)
			}
		}
	}
	return ranks
}

func zBucket(z float64) int {
	for i, cut := range zCutoffs {
		if z < cut {
			return i + 1
		}
	}
	return 5
}

// percentileBucket maps a midpoint percentile rank onto five equal-width
// bands [0,20) .. [80,100]. Ties share a rank and therefore a bucket;
// n distinct values spread evenly across the bands.
func percentileBucket(v float64, values []float64) int {
	below, equal := 0, 0
	for _, u := range values {
		switch {
		case u < v:
			below++
		case u == v:
			equal++
		}
	}
	pct := 100 * (float64(below) + 0.5*float64(equal)) / float64(len(values))
	switch {
	case pct < 20:
		return 1
	case pct < 40:
		return 2
	case pct < 60:
		return 3
	case pct < 80:
		return 4
	default:
		return 5
	}
}
