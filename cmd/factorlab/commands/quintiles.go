package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcresearch/factorlab/internal/quintile"
	"github.com/arcresearch/factorlab/internal/scoringconfig"
	"github.com/arcresearch/factorlab/internal/scorestore"
)

// quintilesCmd represents the quintiles command
var quintilesCmd = &cobra.Command{
	Use:   "quintiles",
	Short: "Compare quintile assignment methods",
	Long: `Ranks one stored scoring date with both quintile strategies (z-score
cutoffs and exact percentiles) and reports every entity they bucket
differently.

Divergence is expected on skewed score distributions; this command makes
it visible before a method change ships.

Example:
  go run ./cmd/factorlab quintiles --date 2026-01-09
  go run ./cmd/factorlab quintiles --date 2026-01-09 --block quality --method percentile`,
	RunE: runQuintiles,
}

var (
	quintilesDate   string
	quintilesBlock  string
	quintilesMethod string
	quintilesOutput string
)

func init() {
	rootCmd.AddCommand(quintilesCmd)

	// Flags
	quintilesCmd.Flags().StringVar(&quintilesDate, "date", "", "scoring date (YYYY-MM-DD, default latest stored)")
	quintilesCmd.Flags().StringVar(&quintilesBlock, "block", "", "reference block (default from the scoring config)")
	quintilesCmd.Flags().StringVar(&quintilesMethod, "method", "", "active method to report (zscore|percentile)")
	quintilesCmd.Flags().StringVarP(&quintilesOutput, "output", "o", "text", "output format (text|json)")
}

func runQuintiles(cmd *cobra.Command, args []string) error {
	// 1. Load config, logger, database
	cfg, log, db, err := initDeps()
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. Load the scoring configuration and apply overrides
	scoring, err := loadScoring(cfg, "")
	if err != nil {
		return err
	}
	if quintilesMethod != "" {
		if quintilesMethod != scoringconfig.QuintileZScore && quintilesMethod != scoringconfig.QuintilePercentile {
			return fmt.Errorf("unknown method %q (expected zscore or percentile)", quintilesMethod)
		}
		scoring.Quintiles.Method = quintilesMethod
	}
	if quintilesBlock != "" {
		scoring.Quintiles.ReferenceBlock = quintilesBlock
	}

	// 3. Load scores for the date
	ctx := cmd.Context()
	repo := scorestore.NewRepository(db.Pool)
	date, err := resolveDate(ctx, repo, quintilesDate)
	if err != nil {
		return err
	}
	scores, err := repo.GetByDate(ctx, date, "")
	if err != nil {
		return fmt.Errorf("load scores: %w", err)
	}
	if len(scores) == 0 {
		PrintWarning(fmt.Sprintf("No scores stored for %s", date.Format(time.DateOnly)))
		return nil
	}

	// 4. Rank with both strategies and report the differences
	report := quintile.New(scoring, log).CompareMethods(scores)

	if quintilesOutput == "json" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printDivergence(date, scoring.Quintiles.Method, report)
	return nil
}

func printDivergence(date time.Time, method string, report *quintile.DivergenceReport) {
	fmt.Println("=== FactorLab Quintile Divergence ===")
	fmt.Println()
	PrintKeyValue("Date", date.Format(time.DateOnly), 8)
	PrintKeyValue("Block", report.Reference, 8)
	PrintKeyValue("Method", method, 8)
	PrintKeyValue("Ranked", fmt.Sprintf("%d", report.Total), 8)
	PrintKeyValue("Diverged", fmt.Sprintf("%d (%.1f%%)", len(report.Diverged), report.Rate()*100), 8)

	if len(report.Diverged) == 0 {
		fmt.Println()
		PrintSuccess("Both methods agree on every ranked entity")
		return
	}

	fmt.Println()
	widths := []int{12, 16, 8, 10}
	PrintTableHeader([]string{"DATE", "ENTITY", "ZSCORE", "PERCENTILE"}, widths)
	shown := report.Diverged
	const maxRows = 20
	if len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	for _, d := range shown {
		PrintTableRow([]string{
			d.Date.Format(time.DateOnly),
			d.EntityID,
			fmt.Sprintf("Q%d", d.ZScore),
			fmt.Sprintf("Q%d", d.Percentile),
		}, widths)
	}
	if len(report.Diverged) > maxRows {
		fmt.Printf("  ... and %d more\n", len(report.Diverged)-maxRows)
	}
}
