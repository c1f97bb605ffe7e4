package contracts

import (
	"math"
	"time"
)

// RawSignal is one per-(date, entity, signal) observation supplied by a
// signal source. A nil Value is the explicit missing marker: absent or
// mathematically undefined observations are never coerced to zero.
type RawSignal struct {
	Date       time.Time `json:"date"`
	EntityID   string    `json:"entity_id"`
	SignalName string    `json:"signal_name"`
	Value      *float64  `json:"value_raw"`
}

// Defined reports whether the observation carries a usable value.
// NaN and Inf count as undefined, same as a missing value.
func (s RawSignal) Defined() bool {
	return s.Value != nil && !math.IsNaN(*s.Value) && !math.IsInf(*s.Value, 0)
}

// RiskMetric is a per-(date, entity) risk measurement (vol_20d,
// max_drawdown_1y, adv_20d, ...) consumed by soft penalty rules.
// Same missing-value convention as RawSignal.
type RiskMetric struct {
	Date     time.Time `json:"date"`
	EntityID string    `json:"entity_id"`
	Metric   string    `json:"metric"`
	Value    *float64  `json:"value"`
}

// Defined reports whether the metric carries a usable value.
func (m RiskMetric) Defined() bool {
	return m.Value != nil && !math.IsNaN(*m.Value) && !math.IsInf(*m.Value, 0)
}

// NormalizedSignal is derived 1:1 from a RawSignal with a defined value on
// its date. Normalized is always within [0,100]. Produced exclusively by the
// normalizer and never mutated afterward.
type NormalizedSignal struct {
	Date       time.Time `json:"date"`
	EntityID   string    `json:"entity_id"`
	SignalName string    `json:"signal_name"`
	Winsorized float64   `json:"value_winsorized"`
	ZScore     float64   `json:"value_zscore"`
	Normalized float64   `json:"value_normalized"`
}

// Float64 returns a pointer to v. Convenience for building observations.
func Float64(v float64) *float64 {
	return &v
}

// DateKey canonicalizes an evaluation date to its UTC calendar day.
// All cross-sectional grouping keys on this, so two timestamps within
// the same day land in the same cross-section.
func DateKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
