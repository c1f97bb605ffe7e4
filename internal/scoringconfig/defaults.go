package scoringconfig

// Default returns the built-in scoring configuration. It mirrors
// config/scoring/default.yaml and scores four blocks: three price/
// fundamental composites plus the bounded 0-9 Piotroski criteria count.
func Default() *Config {
	return &Config{
		Meta: Meta{
			ConfigID:    "arc_default",
			Version:     "1.0.0",
			Description: "ARC composite factor scoring defaults",
		},
		Normalization: Normalization{
			Method:      MethodCDF,
			Winsorize:   Winsorize{PLow: 0.05, PHigh: 0.95},
			ZScore:      ZScore{UseRobust: true},
			LinearSlope: 10.0,
			ZClip:       3.0,
			MinGroup:    3,
		},
		Blocks: map[string]Block{
			"contrarian": {
				Weight: 1.0,
				Signals: map[string]Signal{
					"rsi14_invert":       {Weight: 0.30, Direction: 1},
					"mom12m_invert":      {Weight: 0.40, Direction: 1},
					"dist_52wlow_invert": {Weight: 0.30, Direction: 1},
				},
			},
			"turnaround": {
				Weight: 1.0,
				Signals: map[string]Signal{
					"seq_roe_improve":        {Weight: 0.30, Direction: 1},
					"seq_margin_improve":     {Weight: 0.30, Direction: 1},
					"earnings_surprise_norm": {Weight: 0.20, Direction: 1},
					"mom1m":                  {Weight: 0.20, Direction: 1},
				},
			},
			"piotroski": {
				Weight: 1.0,
				Signals: map[string]Signal{
					"piotroski_raw": {
						Weight:    1.0,
						Direction: 1,
						Scale:     &Scale{Lower: 0, Upper: 9},
					},
				},
			},
			"quality": {
				Weight: 1.0,
				Subblocks: map[string]Subblock{
					"structural": {
						Weight: 0.30,
						Signals: map[string]Signal{
							"moat":                     {Weight: 0.30, Direction: 1},
							"opportunity":              {Weight: 0.20, Direction: 1},
							"value_creation_mechanism": {Weight: 0.20, Direction: 1},
							"sustainability":           {Weight: 0.15, Direction: 1},
							"structural_vs_cyclical":   {Weight: 0.10, Direction: 1},
							"why_now":                  {Weight: 0.05, Direction: 1},
						},
					},
					"management": {
						Weight: 0.20,
						Signals: map[string]Signal{
							"management_quality": {Weight: 0.50, Direction: 1},
							"variant_perception": {Weight: 0.30, Direction: 1},
							"risks_qualitative":  {Weight: 0.20, Direction: -1},
						},
					},
					"financial": {
						Weight: 0.35,
						Signals: map[string]Signal{
							"roic_level":          {Weight: 0.20, Direction: 1},
							"roic_stability":      {Weight: 0.15, Direction: 1},
							"fcf_margin":          {Weight: 0.15, Direction: 1},
							"fcf_conversion":      {Weight: 0.15, Direction: 1},
							"net_leverage":        {Weight: 0.15, Direction: -1},
							"interest_coverage":   {Weight: 0.10, Direction: 1},
							"earnings_volatility": {Weight: 0.10, Direction: -1},
						},
					},
					"valuation": {
						Weight: 0.15,
						Signals: map[string]Signal{
							"ev_ebitda_zscore": {Weight: 0.50, Direction: -1},
							"fcf_yield":        {Weight: 0.50, Direction: 1},
						},
					},
				},
			},
		},
		RiskPenalties: RiskPenalties{
			SoftPenalties: map[string]SoftPenalty{
				"vol_20d": {
					AffectedScores:      []string{"contrarian", "turnaround"},
					ThresholdPercentile: 90,
					MaxPenalty:          10,
				},
				"max_drawdown_1y": {
					AffectedScores:      []string{"turnaround"},
					ThresholdPercentile: 90,
					MaxPenalty:          5,
				},
			},
		},
		Quintiles: Quintiles{
			Method:         QuintileZScore,
			ReferenceBlock: "contrarian",
		},
	}
}
