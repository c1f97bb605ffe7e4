package scoringconfig

import (
	"fmt"
	"math"
	"sort"
)

// ValidationError is a hard configuration failure. A config that fails
// Validate must never reach the scoring engine.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning is a recommended-practice violation. Advisory only.
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints.
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.ConfigID == "" {
		return ValidationError{"meta.config_id", "required"}
	}

	// === Normalization ===
	n := cfg.Normalization
	if n.Method != MethodCDF && n.Method != MethodLinear {
		return ValidationError{"normalization.method", fmt.Sprintf("must be %q or %q", MethodCDF, MethodLinear)}
	}
	if n.Winsorize.PLow < 0 || n.Winsorize.PHigh > 1 || n.Winsorize.PLow >= n.Winsorize.PHigh {
		return ValidationError{"normalization.winsorize", "must satisfy 0 <= p_low < p_high <= 1"}
	}
	if n.Method == MethodLinear && n.LinearSlope <= 0 {
		return ValidationError{"normalization.linear_slope", "must be > 0 for linear method"}
	}
	if n.ZClip < 0 {
		return ValidationError{"normalization.z_clip", "must be >= 0"}
	}
	if n.MinGroup < 2 {
		return ValidationError{"normalization.min_group", "must be >= 2"}
	}

	// === Blocks ===
	if len(cfg.Blocks) == 0 {
		return ValidationError{"blocks", "at least one block required"}
	}

	// Map iteration order is random; walk sorted so the first error
	// reported is deterministic.
	for _, blockName := range cfg.BlockNames() {
		block := cfg.Blocks[blockName]
		field := "blocks." + blockName

		if block.Weight < 0 {
			return ValidationError{field + ".weight", "must be >= 0"}
		}

		hasSignals := len(block.Signals) > 0
		hasSubblocks := len(block.Subblocks) > 0
		if hasSignals == hasSubblocks {
			return ValidationError{field, "must have exactly one of signals or subblocks"}
		}

		if err := validateSignals(block.Signals, field+".signals"); err != nil {
			return err
		}

		for _, subName := range sortedKeys(block.Subblocks) {
			sub := block.Subblocks[subName]
			subField := fmt.Sprintf("%s.subblocks.%s", field, subName)
			if sub.Weight <= 0 {
				return ValidationError{subField + ".weight", "must be > 0"}
			}
			if len(sub.Signals) == 0 {
				return ValidationError{subField + ".signals", "required"}
			}
			if err := validateSignals(sub.Signals, subField+".signals"); err != nil {
				return err
			}
		}
	}

	// A signal reused across blocks must keep one polarity and one scale;
	// conflicting entries are a configuration mistake, not a data issue.
	if err := validateSignalConsistency(cfg); err != nil {
		return err
	}

	// === RiskPenalties ===
	blockSet := map[string]bool{}
	for name := range cfg.Blocks {
		blockSet[name] = true
	}

	for _, metric := range cfg.PenaltyMetrics() {
		p := cfg.RiskPenalties.SoftPenalties[metric]
		field := "risk_penalties.soft_penalties." + metric

		if len(p.AffectedScores) == 0 {
			return ValidationError{field + ".affected_scores", "required"}
		}
		for _, affected := range p.AffectedScores {
			if affected != PenaltyAll && !blockSet[affected] {
				return ValidationError{field + ".affected_scores", fmt.Sprintf("unknown block %q", affected)}
			}
		}
		if p.ThresholdPercentile <= 0 || p.ThresholdPercentile >= 100 {
			return ValidationError{field + ".threshold_percentile", "must be in (0, 100)"}
		}
		if p.MaxPenalty <= 0 {
			return ValidationError{field + ".max_penalty", "must be > 0"}
		}
	}

	// === Quintiles ===
	if cfg.Quintiles.Method != QuintileZScore && cfg.Quintiles.Method != QuintilePercentile {
		return ValidationError{"quintiles.method", fmt.Sprintf("must be %q or %q", QuintileZScore, QuintilePercentile)}
	}
	if !blockSet[cfg.Quintiles.ReferenceBlock] {
		return ValidationError{"quintiles.reference_block", fmt.Sprintf("unknown block %q", cfg.Quintiles.ReferenceBlock)}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal).
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if !cfg.Normalization.ZScore.UseRobust {
		warnings = append(warnings, Warning{
			Code:    "CLASSICAL_ZSCORE",
			Message: "mean/std scaling is outlier-sensitive; robust median/MAD is the default policy",
		})
	}

	if cfg.Normalization.Method == MethodLinear {
		warnings = append(warnings, Warning{
			Code:    "LINEAR_RESCALE",
			Message: "linear 50+k*z mapping clips hard at 0/100; cdf is canonical for new configs",
		})
	}

	if cfg.Normalization.Winsorize.PLow > 0.10 {
		warnings = append(warnings, Warning{
			Code:    "AGGRESSIVE_WINSORIZE",
			Message: fmt.Sprintf("p_low=%.2f trims more than 10%% per tail", cfg.Normalization.Winsorize.PLow),
		})
	}

	// Weights are renormalized over present signals, so an off-1.0 sum is
	// legal but usually means someone edited one weight and forgot the rest.
	for _, blockName := range cfg.BlockNames() {
		block := cfg.Blocks[blockName]
		if len(block.Signals) > 0 && math.Abs(block.WeightSum()-1.0) > 0.01 {
			warnings = append(warnings, Warning{
				Code:    "UNNORMALIZED_WEIGHTS",
				Message: fmt.Sprintf("blocks.%s signal weights sum to %.4f, not 1.0", blockName, block.WeightSum()),
			})
		}
		if len(block.Subblocks) > 0 && math.Abs(block.SubblockWeightSum()-1.0) > 0.01 {
			warnings = append(warnings, Warning{
				Code:    "UNNORMALIZED_WEIGHTS",
				Message: fmt.Sprintf("blocks.%s subblock weights sum to %.4f, not 1.0", blockName, block.SubblockWeightSum()),
			})
		}
		for _, subName := range sortedKeys(block.Subblocks) {
			sum := 0.0
			for _, sig := range block.Subblocks[subName].Signals {
				sum += sig.Weight
			}
			if math.Abs(sum-1.0) > 0.01 {
				warnings = append(warnings, Warning{
					Code:    "UNNORMALIZED_WEIGHTS",
					Message: fmt.Sprintf("blocks.%s.subblocks.%s signal weights sum to %.4f, not 1.0", blockName, subName, sum),
				})
			}
		}
	}

	for _, metric := range cfg.PenaltyMetrics() {
		p := cfg.RiskPenalties.SoftPenalties[metric]
		if p.MaxPenalty > 25 {
			warnings = append(warnings, Warning{
				Code:    "LARGE_PENALTY",
				Message: fmt.Sprintf("soft penalty %s max_penalty=%.1f can dominate a block score", metric, p.MaxPenalty),
			})
		}
	}

	return warnings
}

// === Helper Functions ===

func validateSignals(signals map[string]Signal, field string) error {
	for _, name := range sortedKeys(signals) {
		sig := signals[name]
		sigField := fmt.Sprintf("%s.%s", field, name)

		if sig.Weight <= 0 {
			return ValidationError{sigField + ".weight", "must be > 0"}
		}
		if sig.Direction != 1 && sig.Direction != -1 {
			return ValidationError{sigField + ".direction", "must be +1 or -1"}
		}
		if sig.Scale != nil && sig.Scale.Upper <= sig.Scale.Lower {
			return ValidationError{sigField + ".scale", "upper must be > lower"}
		}
	}
	return nil
}

func validateSignalConsistency(cfg *Config) error {
	type seenSignal struct {
		direction int
		scale     *Scale
		where     string
	}
	seen := map[string]seenSignal{}

	check := func(owner, name string, sig Signal) error {
		prev, ok := seen[name]
		if !ok {
			seen[name] = seenSignal{sig.Direction, sig.Scale, owner}
			return nil
		}
		if prev.direction != sig.Direction {
			return ValidationError{
				Field:   owner,
				Message: fmt.Sprintf("signal %q direction conflicts with %s", name, prev.where),
			}
		}
		if (prev.scale == nil) != (sig.Scale == nil) ||
			(prev.scale != nil && *prev.scale != *sig.Scale) {
			return ValidationError{
				Field:   owner,
				Message: fmt.Sprintf("signal %q scale conflicts with %s", name, prev.where),
			}
		}
		return nil
	}

	for _, blockName := range cfg.BlockNames() {
		block := cfg.Blocks[blockName]
		for _, name := range sortedKeys(block.Signals) {
			if err := check("blocks."+blockName, name, block.Signals[name]); err != nil {
				return err
			}
		}
		for _, subName := range sortedKeys(block.Subblocks) {
			sub := block.Subblocks[subName]
			for _, name := range sortedKeys(sub.Signals) {
				owner := fmt.Sprintf("blocks.%s.subblocks.%s", blockName, subName)
				if err := check(owner, name, sub.Signals[name]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
