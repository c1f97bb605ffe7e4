// Package normalize converts raw signal observations into comparable
// 0-100 values, one cross-section at a time.
//
// Pipeline per (signal, date) group: winsorize -> center/scale (robust
// median/MAD or classical mean/std) -> direction -> rescale to 0-100.
// Groups that are too small or have no dispersion normalize to the
// neutral midpoint instead of producing NaN or runaway z-scores.
// Signals on a declared bounded scale skip the cross-section entirely
// and map linearly onto 0-100.
package normalize

import (
	"math"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/scoringconfig"
	"github.com/arcresearch/factorlab/internal/stats"
	"github.com/arcresearch/factorlab/pkg/logger"
)

const (
	// neutral is the midpoint score for groups that cannot be ranked.
	neutral = 50.0

	// madToStd rescales MAD to approximate a standard deviation under
	// normality.
	madToStd = 1.4826

	// scaleFloor guards division when the dispersion estimate is tiny
	// but not exactly zero.
	scaleFloor = 1e-6
)

// Normalizer maps raw signals onto the common 0-100 scale. It is a pure
// transformation: identical inputs and config produce identical output,
// in deterministic order.
type Normalizer struct {
	cfg    *scoringconfig.Config
	dirs   map[string]int
	scales map[string]scoringconfig.Scale
	log    *logger.Logger
}

// New creates a Normalizer for one config snapshot.
func New(cfg *scoringconfig.Config, log *logger.Logger) *Normalizer {
	return &Normalizer{
		cfg:    cfg,
		dirs:   cfg.Directions(),
		scales: cfg.Scales(),
		log:    log,
	}
}

type groupKey struct {
	signal string
	date   string
}

// Normalize converts raw observations into normalized signals. Undefined
// raw values (nil, NaN, Inf) are excluded, never imputed: a missing
// observation yields no output row. Output is sorted by (date, signal,
// entity).
func (n *Normalizer) Normalize(raw []contracts.RawSignal) []contracts.NormalizedSignal {
	groups := map[groupKey][]contracts.RawSignal{}
	for _, r := range raw {
		if !r.Defined() {
			continue
		}
		key := groupKey{signal: r.SignalName, date: contracts.DateKey(r.Date)}
		groups[key] = append(groups[key], r)
	}

	out := make([]contracts.NormalizedSignal, 0, len(raw))
	neutralGroups := 0

	for key, group := range groups {
		if scale, ok := n.scales[key.signal]; ok {
			out = append(out, n.normalizeBounded(group, scale)...)
			continue
		}

		rows, degenerate := n.normalizeCrossSection(key, group)
		if degenerate {
			neutralGroups++
		}
		out = append(out, rows...)
	}

	contracts.SortNormalizedSignals(out)

	n.log.WithFields(map[string]interface{}{
		"raw_observations": len(raw),
		"normalized":       len(out),
		"groups":           len(groups),
		"neutral_groups":   neutralGroups,
	}).Info("Normalization completed")

	return out
}

// normalizeBounded maps values on a declared fixed range linearly onto
// 0-100. No cross-sectional statistics are involved, so even a single
// observation normalizes; the z-score column stays zero.
func (n *Normalizer) normalizeBounded(group []contracts.RawSignal, scale scoringconfig.Scale) []contracts.NormalizedSignal {
	rows := make([]contracts.NormalizedSignal, 0, len(group))
	span := scale.Upper - scale.Lower

	for _, r := range group {
		clamped := math.Max(scale.Lower, math.Min(scale.Upper, *r.Value))
		rows = append(rows, contracts.NormalizedSignal{
			Date:       r.Date,
			EntityID:   r.EntityID,
			SignalName: r.SignalName,
			Winsorized: clamped,
			ZScore:     0,
			Normalized: (clamped - scale.Lower) / span * 100,
		})
	}
	return rows
}

// normalizeCrossSection runs the winsorize/z-score/rescale pipeline for
// one (signal, date) group. The second return reports whether the group
// fell back to the neutral midpoint.
func (n *Normalizer) normalizeCrossSection(key groupKey, group []contracts.RawSignal) ([]contracts.NormalizedSignal, bool) {
	values := make([]float64, len(group))
	for i, r := range group {
		values[i] = *r.Value
	}

	// Too few observations: relative standing is meaningless.
	if len(values) < n.cfg.Normalization.MinGroup {
		return n.neutralRows(group, values), true
	}

	lower := stats.Percentile(values, n.cfg.Normalization.Winsorize.PLow)
	upper := stats.Percentile(values, n.cfg.Normalization.Winsorize.PHigh)
	winsorized := make([]float64, len(values))
	for i, v := range values {
		winsorized[i] = math.Max(lower, math.Min(upper, v))
	}

	var center, scale float64
	if n.cfg.Normalization.ZScore.UseRobust {
		center = stats.Median(winsorized)
		scale = stats.MAD(winsorized) * madToStd
	} else {
		center = stats.Mean(winsorized)
		scale = stats.StdDev(winsorized)
	}

	// Zero dispersion: every entity is at the center, nobody ranks above
	// anybody. Neutral for the whole group.
	if scale == 0 {
		return n.neutralRows(group, winsorized), true
	}
	if scale < scaleFloor {
		scale = scaleFloor
	}

	direction := float64(n.direction(key.signal))

	rows := make([]contracts.NormalizedSignal, 0, len(group))
	for i, r := range group {
		z := (winsorized[i] - center) / scale * direction
		rows = append(rows, contracts.NormalizedSignal{
			Date:       r.Date,
			EntityID:   r.EntityID,
			SignalName: r.SignalName,
			Winsorized: winsorized[i],
			ZScore:     z,
			Normalized: n.rescale(z),
		})
	}
	return rows, false
}

func (n *Normalizer) neutralRows(group []contracts.RawSignal, winsorized []float64) []contracts.NormalizedSignal {
	rows := make([]contracts.NormalizedSignal, 0, len(group))
	for i, r := range group {
		rows = append(rows, contracts.NormalizedSignal{
			Date:       r.Date,
			EntityID:   r.EntityID,
			SignalName: r.SignalName,
			Winsorized: winsorized[i],
			ZScore:     0,
			Normalized: neutral,
		})
	}
	return rows
}

// rescale maps a signed z-score onto 0-100.
func (n *Normalizer) rescale(z float64) float64 {
	if n.cfg.Normalization.Method == scoringconfig.MethodLinear {
		if clip := n.cfg.Normalization.ZClip; clip > 0 {
			z = math.Max(-clip, math.Min(clip, z))
		}
		v := neutral + n.cfg.Normalization.LinearSlope*z
		return math.Max(0, math.Min(100, v))
	}
	// CDF mapping saturates toward 0/100 without hard clipping.
	return stats.NormCDF(z) * 100
}

// direction returns the configured polarity, +1 for signals no block
// references.
func (n *Normalizer) direction(signal string) int {
	if d, ok := n.dirs[signal]; ok {
		return d
	}
	return 1
}
