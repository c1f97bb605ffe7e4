// Package signalstore reads raw observations and risk metrics from
// PostgreSQL. It is the production signal source for scoring runs; tests
// and qualitative-only runs inject other contracts.SignalSource
// implementations instead.
package signalstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcresearch/factorlab/internal/contracts"
)

// Repository implements contracts.SignalSource over the signals schema.
// NULL values scan into nil pointers, so a missing observation stays
// missing end to end.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new signal repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FetchSignals returns raw observations for the window ordered by
// (date, entity, signal). An empty entityIDs filter selects every entity.
func (r *Repository) FetchSignals(ctx context.Context, entityIDs []string, from, to time.Time) ([]contracts.RawSignal, error) {
	query := `
		SELECT date, entity_id, signal_name, value_raw
		FROM signals.raw_observations
		WHERE date BETWEEN $1 AND $2
	`
	args := []interface{}{from, to}
	if len(entityIDs) > 0 {
		query += " AND entity_id = ANY($3)"
		args = append(args, entityIDs)
	}
	query += " ORDER BY date ASC, entity_id ASC, signal_name ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw observations: %w", err)
	}
	defer rows.Close()

	signals := make([]contracts.RawSignal, 0)
	for rows.Next() {
		var signal contracts.RawSignal
		if err := rows.Scan(
			&signal.Date, &signal.EntityID, &signal.SignalName, &signal.Value,
		); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		signals = append(signals, signal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return signals, nil
}

// FetchRiskMetrics returns risk measurements for the window ordered by
// (date, entity, metric). An empty entityIDs filter selects every entity.
func (r *Repository) FetchRiskMetrics(ctx context.Context, entityIDs []string, from, to time.Time) ([]contracts.RiskMetric, error) {
	query := `
		SELECT date, entity_id, metric, value
		FROM signals.risk_metrics
		WHERE date BETWEEN $1 AND $2
	`
	args := []interface{}{from, to}
	if len(entityIDs) > 0 {
		query += " AND entity_id = ANY($3)"
		args = append(args, entityIDs)
	}
	query += " ORDER BY date ASC, entity_id ASC, metric ASC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]contracts.RiskMetric, 0)
	for rows.Next() {
		var metric contracts.RiskMetric
		if err := rows.Scan(
			&metric.Date, &metric.EntityID, &metric.Metric, &metric.Value,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk metric: %w", err)
		}
		metrics = append(metrics, metric)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return metrics, nil
}
