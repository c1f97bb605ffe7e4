package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arcresearch/factorlab/internal/contracts"
)

type stubSource struct {
	signals []contracts.RawSignal
	risk    []contracts.RiskMetric
	err     error
}

func (s *stubSource) FetchSignals(ctx context.Context, entityIDs []string, from, to time.Time) ([]contracts.RawSignal, error) {
	return s.signals, s.err
}

func (s *stubSource) FetchRiskMetrics(ctx context.Context, entityIDs []string, from, to time.Time) ([]contracts.RiskMetric, error) {
	return s.risk, s.err
}

func TestMultiSourceConcatenatesInOrder(t *testing.T) {
	first := &stubSource{
		signals: []contracts.RawSignal{
			{Date: runDay, EntityID: "E1", SignalName: "sig_a", Value: contracts.Float64(1)},
		},
		risk: []contracts.RiskMetric{
			{Date: runDay, EntityID: "E1", Metric: "volatility", Value: contracts.Float64(0.2)},
		},
	}
	second := &stubSource{
		signals: []contracts.RawSignal{
			{Date: runDay, EntityID: "E1", SignalName: "text_tone", Value: contracts.Float64(62)},
		},
	}
	source := MultiSource{first, second}

	signals, err := source.FetchSignals(context.Background(), nil, runDay, runDay)
	if err != nil {
		t.Fatalf("FetchSignals: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("got %d signals, want 2", len(signals))
	}
	if signals[0].SignalName != "sig_a" || signals[1].SignalName != "text_tone" {
		t.Errorf("signals out of source order: %q, %q", signals[0].SignalName, signals[1].SignalName)
	}

	risk, err := source.FetchRiskMetrics(context.Background(), nil, runDay, runDay)
	if err != nil {
		t.Fatalf("FetchRiskMetrics: %v", err)
	}
	if len(risk) != 1 {
		t.Fatalf("got %d risk metrics, want 1", len(risk))
	}
}

func TestMultiSourcePropagatesError(t *testing.T) {
	broken := &stubSource{err: errors.New("connection refused")}
	source := MultiSource{&stubSource{}, broken}

	if _, err := source.FetchSignals(context.Background(), nil, runDay, runDay); err == nil {
		t.Fatal("expected error from failing source")
	}
	if _, err := source.FetchRiskMetrics(context.Background(), nil, runDay, runDay); err == nil {
		t.Fatal("expected error from failing source")
	}
}
