package contracts

import (
	"context"
	"time"
)

// SignalSource supplies raw observations and risk metrics for scoring runs.
// Implementations must be stateless: the engine receives one by injection
// and runs share nothing through it.
type SignalSource interface {
	FetchSignals(ctx context.Context, entityIDs []string, from, to time.Time) ([]RawSignal, error)
	FetchRiskMetrics(ctx context.Context, entityIDs []string, from, to time.Time) ([]RiskMetric, error)
}

// ScoreRepository persists and reads computed block scores.
type ScoreRepository interface {
	SaveScores(ctx context.Context, scores []BlockScore) error
	GetByDate(ctx context.Context, date time.Time, block string) ([]BlockScore, error)
	GetByDateRange(ctx context.Context, from, to time.Time, block string) ([]BlockScore, error)
	LatestDate(ctx context.Context) (time.Time, error)
}

// VersionStore persists immutable configuration versions.
// Save must refuse to overwrite an existing version id; Get must return an
// error for an unknown version id (a missing snapshot is a configuration
// mistake, not a data-quality condition).
type VersionStore interface {
	Save(ctx context.Context, version *ConfigVersion) error
	Get(ctx context.Context, versionID string) (*ConfigVersion, error)
	List(ctx context.Context) ([]ConfigVersion, error)
}

// AuditStore appends run records. Append-only: no update or delete.
type AuditStore interface {
	Append(ctx context.Context, record *AuditRecord) error
	List(ctx context.Context, limit int) ([]AuditRecord, error)
}

// BaselineStore persists scored snapshots for regression comparison.
type BaselineStore interface {
	Save(ctx context.Context, baseline *Baseline) error
	Get(ctx context.Context, versionID string) (*Baseline, error)
}
