// Package scorestore persists computed block scores in PostgreSQL.
package scorestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arcresearch/factorlab/internal/contracts"
)

// ErrNoScores is returned by LatestDate when nothing has been scored yet.
var ErrNoScores = errors.New("no scores stored")

// Repository implements contracts.ScoreRepository over scoring.block_scores.
// Scoring runs recompute rows wholesale, so writes upsert on the
// (date, entity_id, block) key instead of erroring on rerun.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new score repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveScores upserts one run's rows in a single batch.
func (r *Repository) SaveScores(ctx context.Context, scores []contracts.BlockScore) error {
	if len(scores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO scoring.block_scores (
			date, entity_id, block, score_raw, score_adjusted, quintile
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (date, entity_id, block) DO UPDATE SET
			score_raw = EXCLUDED.score_raw,
			score_adjusted = EXCLUDED.score_adjusted,
			quintile = EXCLUDED.quintile
	`
	for _, score := range scores {
		batch.Queue(query, score.Date, score.EntityID, score.Block,
			score.ScoreRaw, score.ScoreAdjusted, score.Quintile)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range scores {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save block score: %w", err)
		}
	}

	return nil
}

// GetByDate returns one cross-section ordered by (entity, block). An empty
// block selects every block.
func (r *Repository) GetByDate(ctx context.Context, date time.Time, block string) ([]contracts.BlockScore, error) {
	query := `
		SELECT date, entity_id, block, score_raw, score_adjusted, quintile
		FROM scoring.block_scores
		WHERE date = $1
	`
	args := []interface{}{date}
	if block != "" {
		query += " AND block = $2"
		args = append(args, block)
	}
	query += " ORDER BY entity_id ASC, block ASC"

	return r.queryScores(ctx, query, args...)
}

// GetByDateRange returns scores for the window ordered by
// (date, entity, block). An empty block selects every block.
func (r *Repository) GetByDateRange(ctx context.Context, from, to time.Time, block string) ([]contracts.BlockScore, error) {
	query := `
		SELECT date, entity_id, block, score_raw, score_adjusted, quintile
		FROM scoring.block_scores
		WHERE date BETWEEN $1 AND $2
	`
	args := []interface{}{from, to}
	if block != "" {
		query += " AND block = $3"
		args = append(args, block)
	}
	query += " ORDER BY date ASC, entity_id ASC, block ASC"

	return r.queryScores(ctx, query, args...)
}

// LatestDate returns the most recent scored date.
func (r *Repository) LatestDate(ctx context.Context) (time.Time, error) {
	query := `SELECT MAX(date) FROM scoring.block_scores`

	var latest *time.Time
	if err := r.pool.QueryRow(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest score date: %w", err)
	}
	if latest == nil {
		return time.Time{}, ErrNoScores
	}

	return *latest, nil
}

func (r *Repository) queryScores(ctx context.Context, query string, args ...interface{}) ([]contracts.BlockScore, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query block scores: %w", err)
	}
	defer rows.Close()

	scores := make([]contracts.BlockScore, 0)
	for rows.Next() {
		var score contracts.BlockScore
		if err := rows.Scan(
			&score.Date, &score.EntityID, &score.Block,
			&score.ScoreRaw, &score.ScoreAdjusted, &score.Quintile,
		); err != nil {
			return nil, fmt.Errorf("failed to scan block score: %w", err)
		}
		scores = append(scores, score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return scores, nil
}
