package pipeline

import (
	"context"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
)

// MultiSource fans one fetch out to several signal sources and
// concatenates the results in source order. Sources are expected to emit
// disjoint signal names; nothing here deduplicates overlapping rows.
type MultiSource []contracts.SignalSource

func (m MultiSource) FetchSignals(ctx context.Context, entityIDs []string, from, to time.Time) ([]contracts.RawSignal, error) {
	var out []contracts.RawSignal
	for _, source := range m {
		rows, err := source.FetchSignals(ctx, entityIDs, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (m MultiSource) FetchRiskMetrics(ctx context.Context, entityIDs []string, from, to time.Time) ([]contracts.RiskMetric, error) {
	var out []contracts.RiskMetric
	for _, source := range m {
		rows, err := source.FetchRiskMetrics(ctx, entityIDs, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}
