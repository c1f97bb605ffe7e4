package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arcresearch/factorlab/internal/pipeline"
	"github.com/arcresearch/factorlab/internal/scorestore"
)

// scoreCmd represents the score command
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run a scoring pass",
	Long: `Runs the full scoring pipeline: fetch raw signals, normalize them
cross-sectionally, aggregate into weighted block scores, apply risk
penalties, assign quintile ranks, validate and persist.

The active scoring configuration is versioned before anything is
computed, and every run leaves an audit record.

Example:
  go run ./cmd/factorlab score
  go run ./cmd/factorlab score --from 2026-01-05 --to 2026-01-09
  go run ./cmd/factorlab score --entities KR7005930003,KR7000660001 --dry-run`,
	RunE: runScore,
}

var (
	scoreFrom     string
	scoreTo       string
	scoreEntities []string
	scoreConfig   string
	scoreDryRun   bool
)

func init() {
	rootCmd.AddCommand(scoreCmd)

	// Flags
	scoreCmd.Flags().StringVar(&scoreFrom, "from", "", "start date (YYYY-MM-DD, default today)")
	scoreCmd.Flags().StringVar(&scoreTo, "to", "", "end date (YYYY-MM-DD, default --from)")
	scoreCmd.Flags().StringSliceVar(&scoreEntities, "entities", nil, "entity ids to score (default SCORING_UNIVERSE; empty scores every entity)")
	scoreCmd.Flags().StringVar(&scoreConfig, "config", "", "scoring config path (default SCORING_CONFIG_PATH)")
	scoreCmd.Flags().BoolVar(&scoreDryRun, "dry-run", false, "compute and report without persisting scores")
}

func runScore(cmd *cobra.Command, args []string) error {
	fmt.Println("=== FactorLab Scoring Run ===")

	// 1. Load config, logger, database
	cfg, log, db, err := initDeps()
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. Load the scoring configuration
	scoring, err := loadScoring(cfg, scoreConfig)
	if err != nil {
		return err
	}

	// 3. Resolve window and universe
	from, to, err := parseWindow(scoreFrom, scoreTo)
	if err != nil {
		return err
	}
	entities := scoreEntities
	if len(entities) == 0 {
		entities = cfg.Scoring.Universe
	}

	// 4. Wire governance and the signal source
	versions, audit, _ := initGovernance(cfg, db, log)
	source := buildSource(cfg, db, log)

	// 5. Build the engine; a dry run skips score persistence
	opts := pipeline.Options{Workers: cfg.Scoring.Workers}
	if !scoreDryRun {
		opts.Scores = scorestore.NewRepository(db.Pool)
	}
	engine := pipeline.New(scoring, source, versions, audit, log, opts)

	// 6. Run
	result, err := engine.Run(cmd.Context(), pipeline.RunInput{
		EntityIDs: entities,
		From:      from,
		To:        to,
		Metadata:  map[string]string{"trigger": "cli"},
	})
	if err != nil {
		return fmt.Errorf("scoring run: %w", err)
	}

	printRunResult(result, scoreDryRun)
	return nil
}

func printRunResult(result *pipeline.RunResult, dryRun bool) {
	fmt.Println()
	PrintSuccess(fmt.Sprintf("Run %s completed in %dms", result.RunID, result.Metrics.DurationMS))
	fmt.Println()
	PrintKeyValue("Version", result.VersionID, 8)
	PrintKeyValue("Dates", fmt.Sprintf("%d", result.Metrics.Dates), 8)
	PrintKeyValue("Entities", fmt.Sprintf("%d", result.Metrics.Entities), 8)
	PrintKeyValue("Scores", fmt.Sprintf("%d computed, %d undefined (null rate %.1f%%)",
		result.Metrics.ScoresComputed, result.Metrics.ScoresUndefined, result.Metrics.NullRate*100), 8)

	fmt.Println("\nValidation:")
	for _, bs := range result.Validation.Blocks {
		fmt.Printf("  %-14s mean %6.2f  std %6.2f  range [%6.2f, %6.2f]  nulls %d/%d\n",
			bs.Block, bs.Mean, bs.Std, bs.Min, bs.Max, bs.NullCount, bs.Rows)
	}
	for _, issue := range result.Validation.Issues {
		PrintWarning(issue)
	}
	for _, warning := range result.Quintiles.Warnings {
		PrintWarning(warning)
	}
	for _, warning := range result.Coverage.Warnings {
		PrintWarning(warning)
	}

	if dryRun {
		fmt.Println("\nDry run: scores were not persisted")
	}
}
