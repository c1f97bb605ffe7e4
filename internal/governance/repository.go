package governance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcresearch/factorlab/internal/contracts"
)

// PostgreSQL-backed stores over the governance schema. Version and run
// rows are write-once: inserts use ON CONFLICT DO NOTHING and a conflict
// surfaces as ErrAlreadyExists instead of an overwrite.

// VersionRepository persists config versions in governance.config_versions.
type VersionRepository struct {
	pool *pgxpool.Pool
}

func NewVersionRepository(pool *pgxpool.Pool) *VersionRepository {
	return &VersionRepository{pool: pool}
}

func (r *VersionRepository) Save(ctx context.Context, version *contracts.ConfigVersion) error {
	metadataJSON, err := json.Marshal(version.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO governance.config_versions (
			version_id, config_hash, created_at, config_snapshot, metadata
		) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (version_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		version.VersionID, version.ConfigHash, version.CreatedAt,
		[]byte(version.Snapshot), metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("version %s: %w", version.VersionID, ErrAlreadyExists)
	}

	return nil
}

func (r *VersionRepository) Get(ctx context.Context, versionID string) (*contracts.ConfigVersion, error) {
	query := `
		SELECT version_id, config_hash, created_at, config_snapshot, metadata
		FROM governance.config_versions
		WHERE version_id = $1
	`

	version, err := scanVersion(r.pool.QueryRow(ctx, query, versionID))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("version %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	return version, nil
}

func (r *VersionRepository) List(ctx context.Context) ([]contracts.ConfigVersion, error) {
	query := `
		SELECT version_id, config_hash, created_at, config_snapshot, metadata
		FROM governance.config_versions
		ORDER BY created_at DESC, version_id DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	versions := make([]contracts.ConfigVersion, 0)
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, *version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return versions, nil
}

func scanVersion(row pgx.Row) (*contracts.ConfigVersion, error) {
	var version contracts.ConfigVersion
	var snapshot, metadataJSON []byte

	if err := row.Scan(
		&version.VersionID, &version.ConfigHash, &version.CreatedAt,
		&snapshot, &metadataJSON,
	); err != nil {
		return nil, err
	}

	version.Snapshot = json.RawMessage(snapshot)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &version.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &version, nil
}

// AuditRepository appends run records to governance.audit_runs.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) Append(ctx context.Context, record *contracts.AuditRecord) error {
	metricsJSON, err := json.Marshal(record.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
		INSERT INTO governance.audit_runs (
			run_id, version_id, entities, date_from, date_to,
			status, error, metrics, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		record.RunID, record.VersionID, record.Entities, record.From, record.To,
		string(record.Status), record.Error, metricsJSON, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", record.RunID, ErrAlreadyExists)
	}

	return nil
}

func (r *AuditRepository) List(ctx context.Context, limit int) ([]contracts.AuditRecord, error) {
	query := `
		SELECT run_id, version_id, entities, date_from, date_to,
		       status, error, metrics, created_at
		FROM governance.audit_runs
		ORDER BY created_at DESC, run_id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	records := make([]contracts.AuditRecord, 0)
	for rows.Next() {
		var record contracts.AuditRecord
		var status string
		var metricsJSON []byte

		if err := rows.Scan(
			&record.RunID, &record.VersionID, &record.Entities, &record.From,
			&record.To, &status, &record.Error, &metricsJSON, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		record.Status = contracts.RunStatus(status)
		if err := json.Unmarshal(metricsJSON, &record.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// BaselineRepository stores one replaceable baseline per version id in
// governance.baselines.
type BaselineRepository struct {
	pool *pgxpool.Pool
}

func NewBaselineRepository(pool *pgxpool.Pool) *BaselineRepository {
	return &BaselineRepository{pool: pool}
}

func (r *BaselineRepository) Save(ctx context.Context, baseline *contracts.Baseline) error {
	scoresJSON, err := json.Marshal(baseline.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline scores: %w", err)
	}

	query := `
		INSERT INTO governance.baselines (version_id, saved_at, scores)
		VALUES ($1, $2, $3)
		ON CONFLICT (version_id) DO UPDATE SET
			saved_at = EXCLUDED.saved_at,
			scores = EXCLUDED.scores
	`

	_, err = r.pool.Exec(ctx, query, baseline.VersionID, baseline.SavedAt, scoresJSON)
	if err != nil {
		return fmt.Errorf("failed to save baseline: %w", err)
	}

	return nil
}

func (r *BaselineRepository) Get(ctx context.Context, versionID string) (*contracts.Baseline, error) {
	query := `
		SELECT version_id, saved_at, scores
		FROM governance.baselines
		WHERE version_id = $1
	`

	var baseline contracts.Baseline
	var scoresJSON []byte

	err := r.pool.QueryRow(ctx, query, versionID).Scan(
		&baseline.VersionID, &baseline.SavedAt, &scoresJSON,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("baseline %s: %w", versionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	if err := json.Unmarshal(scoresJSON, &baseline.Scores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal baseline scores: %w", err)
	}

	return &baseline, nil
}
