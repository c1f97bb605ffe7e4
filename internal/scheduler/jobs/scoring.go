// Package jobs defines the scheduled jobs: the daily scoring run and the
// weekly baseline drift check.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/arcresearch/factorlab/internal/pipeline"
	"github.com/arcresearch/factorlab/pkg/logger"
)

// Weekdays at 6 PM, after signal ingestion settles.
const defaultScoringSchedule = "0 0 18 * * 1-5"

// ScoreRunner executes one scoring run.
type ScoreRunner interface {
	Run(ctx context.Context, input pipeline.RunInput) (*pipeline.RunResult, error)
}

// ScoringJob scores the configured universe for the current day
type ScoringJob struct {
	runner   ScoreRunner
	universe []string
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewScoringJob creates a new scoring job. An empty universe scores every
// entity in the signal store; an empty schedule uses the weekday default.
func NewScoringJob(runner ScoreRunner, universe []string, schedule string, log *logger.Logger) *ScoringJob {
	if schedule == "" {
		schedule = defaultScoringSchedule
	}
	return &ScoringJob{
		runner:   runner,
		universe: universe,
		schedule: schedule,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *ScoringJob) Name() string {
	return "daily_scoring"
}

// Schedule returns the cron schedule
func (j *ScoringJob) Schedule() string {
	return j.schedule
}

// Run executes a scoring run for today
func (j *ScoringJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	j.logger.WithFields(map[string]interface{}{
		"date":     day.Format(time.DateOnly),
		"entities": len(j.universe),
	}).Info("Starting scheduled scoring run")

	result, err := j.runner.Run(ctx, pipeline.RunInput{
		EntityIDs: j.universe,
		From:      day,
		To:        day,
		Metadata:  map[string]string{"trigger": "scheduler"},
	})
	if err != nil {
		return fmt.Errorf("scoring run failed: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":     result.RunID,
		"version_id": result.VersionID,
		"scores":     result.Metrics.ScoresComputed,
		"null_rate":  result.Metrics.NullRate,
	}).Info("Scheduled scoring run completed")

	return nil
}
