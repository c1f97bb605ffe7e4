package contracts

import (
	"sort"
	"time"
)

// BlockScore is the composite score of one block for one (date, entity).
// ScoreRaw is the weighted aggregate before risk penalties, ScoreAdjusted
// after. A nil score means the block is undefined for that (date, entity):
// zero configured signals were present. Quintile is nil until assigned and
// stays nil for entities without a defined adjusted score.
//
// Rows are always recomputed wholesale from RawSignal + ConfigVersion,
// never partially patched.
type BlockScore struct {
	Date          time.Time `json:"date"`
	EntityID      string    `json:"entity_id"`
	Block         string    `json:"block"`
	ScoreRaw      *float64  `json:"score_raw"`
	ScoreAdjusted *float64  `json:"score_adjusted"`
	Quintile      *int      `json:"quintile,omitempty"`
}

// Defined reports whether the adjusted score exists.
func (b BlockScore) Defined() bool {
	return b.ScoreAdjusted != nil
}

// SortBlockScores orders scores by (date, entity, block). Every stage of the
// engine emits sorted output so that reruns are byte-identical regardless of
// map iteration or worker scheduling.
func SortBlockScores(scores []BlockScore) {
	sort.Slice(scores, func(i, j int) bool {
		if !scores[i].Date.Equal(scores[j].Date) {
			return scores[i].Date.Before(scores[j].Date)
		}
		if scores[i].EntityID != scores[j].EntityID {
			return scores[i].EntityID < scores[j].EntityID
		}
		return scores[i].Block < scores[j].Block
	})
}

// SortRawSignals orders raw observations by (date, entity, signal), the
// order signal sources hand them to the engine.
func SortRawSignals(signals []RawSignal) {
	sort.Slice(signals, func(i, j int) bool {
		if !signals[i].Date.Equal(signals[j].Date) {
			return signals[i].Date.Before(signals[j].Date)
		}
		if signals[i].EntityID != signals[j].EntityID {
			return signals[i].EntityID < signals[j].EntityID
		}
		return signals[i].SignalName < signals[j].SignalName
	})
}

// SortNormalizedSignals orders normalized signals by (date, signal, entity),
// the grouping order the aggregator consumes them in.
func SortNormalizedSignals(signals []NormalizedSignal) {
	sort.Slice(signals, func(i, j int) bool {
		if !signals[i].Date.Equal(signals[j].Date) {
			return signals[i].Date.Before(signals[j].Date)
		}
		if signals[i].SignalName != signals[j].SignalName {
			return signals[i].SignalName < signals[j].SignalName
		}
		return signals[i].EntityID < signals[j].EntityID
	})
}
