package scoringconfig

import "sort"

// Normalization rescale methods.
const (
	MethodCDF    = "cdf"    // Phi(z) * 100, saturating tails
	MethodLinear = "linear" // 50 + slope*z, clipped to [0,100]
)

// Quintile assignment methods.
const (
	QuintileZScore     = "zscore"
	QuintilePercentile = "percentile"
)

// PenaltyAll in affected_scores applies a penalty to every block.
const PenaltyAll = "all"

// Config is the full scoring configuration. It is the single source of
// truth for a run: every normalized value, block score and quintile must
// be recomputable from raw signals plus one Config snapshot.
type Config struct {
	Meta          Meta             `yaml:"meta" json:"meta"`
	Normalization Normalization    `yaml:"normalization" json:"normalization"`
	Blocks        map[string]Block `yaml:"blocks" json:"blocks"`
	RiskPenalties RiskPenalties    `yaml:"risk_penalties" json:"risk_penalties"`
	Quintiles     Quintiles        `yaml:"quintiles" json:"quintiles"`
}

// Meta identifies a configuration lineage.
type Meta struct {
	ConfigID    string `yaml:"config_id" json:"config_id"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Normalization controls the raw -> 0-100 pipeline.
type Normalization struct {
	Method      string    `yaml:"method" json:"method"` // cdf | linear
	Winsorize   Winsorize `yaml:"winsorize" json:"winsorize"`
	ZScore      ZScore    `yaml:"z_score" json:"z_score"`
	LinearSlope float64   `yaml:"linear_slope,omitempty" json:"linear_slope,omitempty"`
	ZClip       float64   `yaml:"z_clip,omitempty" json:"z_clip,omitempty"`
	MinGroup    int       `yaml:"min_group" json:"min_group"`
}

type Winsorize struct {
	PLow  float64 `yaml:"p_low" json:"p_low"`
	PHigh float64 `yaml:"p_high" json:"p_high"`
}

type ZScore struct {
	UseRobust bool `yaml:"use_robust" json:"use_robust"` // median/MAD instead of mean/std
}

// Block is one composite score: either a flat weighted set of signals or
// a two-level subblock tree. Exactly one of Signals/Subblocks is set.
// Blocks are scored independently of one another; Weight is carried for
// downstream composite roll-ups and not used by the engine itself.
type Block struct {
	Weight    float64             `yaml:"weight,omitempty" json:"weight,omitempty"`
	Signals   map[string]Signal   `yaml:"signals,omitempty" json:"signals,omitempty"`
	Subblocks map[string]Subblock `yaml:"subblocks,omitempty" json:"subblocks,omitempty"`
}

type Subblock struct {
	Weight  float64           `yaml:"weight" json:"weight"`
	Signals map[string]Signal `yaml:"signals" json:"signals"`
}

// Signal binds a weight and polarity to a signal name. Weights need not
// sum to 1 within a block: aggregation renormalizes over the signals
// actually present per (date, entity).
type Signal struct {
	Weight    float64 `yaml:"weight" json:"weight"`
	Direction int     `yaml:"direction" json:"direction"` // +1 higher is better, -1 lower is better
	Scale     *Scale  `yaml:"scale,omitempty" json:"scale,omitempty"`
}

// Scale marks a signal whose raw values live on a known bounded range
// (e.g. a 0-9 criteria count). Such signals map linearly onto 0-100 and
// skip cross-sectional z-scoring entirely.
type Scale struct {
	Lower float64 `yaml:"lower" json:"lower"`
	Upper float64 `yaml:"upper" json:"upper"`
}

// RiskPenalties holds soft penalties keyed by the risk metric they read.
type RiskPenalties struct {
	SoftPenalties map[string]SoftPenalty `yaml:"soft_penalties,omitempty" json:"soft_penalties,omitempty"`
}

// SoftPenalty subtracts up to MaxPenalty from affected block scores when
// the entity's metric exceeds the cross-sectional threshold percentile.
type SoftPenalty struct {
	AffectedScores      []string `yaml:"affected_scores" json:"affected_scores"`
	ThresholdPercentile float64  `yaml:"threshold_percentile" json:"threshold_percentile"`
	MaxPenalty          float64  `yaml:"max_penalty" json:"max_penalty"`
}

// Quintiles selects the ranking strategy and the block it ranks on.
type Quintiles struct {
	Method         string `yaml:"method" json:"method"` // zscore | percentile
	ReferenceBlock string `yaml:"reference_block" json:"reference_block"`
}

// BlockNames returns the configured block names, sorted.
func (c *Config) BlockNames() []string {
	names := make([]string, 0, len(c.Blocks))
	for name := range c.Blocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SignalNames returns every signal name referenced by any block, sorted.
func (c *Config) SignalNames() []string {
	seen := map[string]struct{}{}
	for _, block := range c.Blocks {
		for name := range block.Signals {
			seen[name] = struct{}{}
		}
		for _, sub := range block.Subblocks {
			for name := range sub.Signals {
				seen[name] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Directions returns the configured polarity per signal name. Validate
// guarantees a signal never carries conflicting directions across blocks.
func (c *Config) Directions() map[string]int {
	dirs := map[string]int{}
	c.eachSignal(func(name string, sig Signal) {
		dirs[name] = sig.Direction
	})
	return dirs
}

// Scales returns the bounded scale per signal name, where configured.
func (c *Config) Scales() map[string]Scale {
	scales := map[string]Scale{}
	c.eachSignal(func(name string, sig Signal) {
		if sig.Scale != nil {
			scales[name] = *sig.Scale
		}
	})
	return scales
}

// PenaltyMetrics returns the risk metric names read by soft penalties, sorted.
func (c *Config) PenaltyMetrics() []string {
	names := make([]string, 0, len(c.RiskPenalties.SoftPenalties))
	for name := range c.RiskPenalties.SoftPenalties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) eachSignal(fn func(name string, sig Signal)) {
	for _, block := range c.Blocks {
		for name, sig := range block.Signals {
			fn(name, sig)
		}
		for _, sub := range block.Subblocks {
			for name, sig := range sub.Signals {
				fn(name, sig)
			}
		}
	}
}

// WeightSum returns the sum of flat signal weights.
func (b Block) WeightSum() float64 {
	total := 0.0
	for _, sig := range b.Signals {
		total += sig.Weight
	}
	return total
}

// SubblockWeightSum returns the sum of subblock weights.
func (b Block) SubblockWeightSum() float64 {
	total := 0.0
	for _, sub := range b.Subblocks {
		total += sub.Weight
	}
	return total
}
