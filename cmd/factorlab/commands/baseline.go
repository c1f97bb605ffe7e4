package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcresearch/factorlab/internal/governance"
	"github.com/arcresearch/factorlab/internal/scorestore"
)

// baselineCmd represents the baseline command
var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage score baselines for regression checks",
	Long: `Freezes a scored snapshot as the baseline of a configuration version
and compares later scores against it.

A baseline pins what a version produced before a config change; compare
joins current scores against it on (date, entity, block) and flags every
move beyond tolerance.

Example:
  go run ./cmd/factorlab baseline save --version baseline_20260109_180000_ab12cd34ef56
  go run ./cmd/factorlab baseline compare --baseline baseline_20260109_180000_ab12cd34ef56 --tolerance 3`,
}

var (
	baselineSaveCmd = &cobra.Command{
		Use:   "save",
		Short: "Freeze stored scores as a version's baseline",
		RunE:  saveBaseline,
	}

	baselineCompareCmd = &cobra.Command{
		Use:   "compare",
		Short: "Compare stored scores against a baseline",
		RunE:  compareBaseline,
	}
)

var (
	baselineVersion   string
	baselineID        string
	baselineDate      string
	baselineTolerance float64
)

func init() {
	rootCmd.AddCommand(baselineCmd)
	baselineCmd.AddCommand(baselineSaveCmd)
	baselineCmd.AddCommand(baselineCompareCmd)

	// Flags
	baselineSaveCmd.Flags().StringVar(&baselineVersion, "version", "", "version id the baseline belongs to (required)")
	baselineSaveCmd.Flags().StringVar(&baselineDate, "date", "", "scoring date to freeze (YYYY-MM-DD, default latest stored)")

	baselineCompareCmd.Flags().StringVar(&baselineID, "baseline", "", "baseline version id to compare against (required)")
	baselineCompareCmd.Flags().StringVar(&baselineDate, "date", "", "scoring date to compare (YYYY-MM-DD, default latest stored)")
	baselineCompareCmd.Flags().Float64Var(&baselineTolerance, "tolerance", governance.DefaultTolerance, "score points a pair may move before it is flagged")
}

func saveBaseline(cmd *cobra.Command, args []string) error {
	if baselineVersion == "" {
		return fmt.Errorf("--version is required")
	}

	cfg, log, db, err := initDeps()
	if err != nil {
		return err
	}
	defer db.Close()

	versions, _, tester := initGovernance(cfg, db, log)
	ctx := cmd.Context()

	// The baseline must reference a stored version
	if _, err := versions.Load(ctx, baselineVersion); err != nil {
		if errors.Is(err, governance.ErrNotFound) {
			return fmt.Errorf("version %s not found", baselineVersion)
		}
		return fmt.Errorf("load version: %w", err)
	}

	repo := scorestore.NewRepository(db.Pool)
	date, err := resolveDate(ctx, repo, baselineDate)
	if err != nil {
		return err
	}
	scores, err := repo.GetByDate(ctx, date, "")
	if err != nil {
		return fmt.Errorf("load scores: %w", err)
	}
	if len(scores) == 0 {
		return fmt.Errorf("no scores stored for %s", date.Format(time.DateOnly))
	}

	if err := tester.SaveBaseline(ctx, scores, baselineVersion); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Baseline saved for %s (%d scores from %s)",
		baselineVersion, len(scores), date.Format(time.DateOnly)))
	return nil
}

func compareBaseline(cmd *cobra.Command, args []string) error {
	if baselineID == "" {
		return fmt.Errorf("--baseline is required")
	}

	cfg, log, db, err := initDeps()
	if err != nil {
		return err
	}
	defer db.Close()

	_, _, tester := initGovernance(cfg, db, log)
	ctx := cmd.Context()

	repo := scorestore.NewRepository(db.Pool)
	date, err := resolveDate(ctx, repo, baselineDate)
	if err != nil {
		return err
	}
	scores, err := repo.GetByDate(ctx, date, "")
	if err != nil {
		return fmt.Errorf("load scores: %w", err)
	}
	if len(scores) == 0 {
		return fmt.Errorf("no scores stored for %s", date.Format(time.DateOnly))
	}

	report, err := tester.CompareToBaseline(ctx, scores, baselineID, baselineTolerance)
	if err != nil {
		if errors.Is(err, governance.ErrNotFound) {
			return fmt.Errorf("no baseline saved for version %s", baselineID)
		}
		return fmt.Errorf("compare to baseline: %w", err)
	}

	printRegressionReport(date, report)
	return nil
}

func printRegressionReport(date time.Time, report *governance.RegressionReport) {
	fmt.Println("=== FactorLab Baseline Comparison ===")
	fmt.Println()
	PrintKeyValue("Baseline", report.BaselineVersion, 13)
	PrintKeyValue("Date", date.Format(time.DateOnly), 13)
	PrintKeyValue("Tolerance", fmt.Sprintf("%.1f", report.Tolerance), 13)
	PrintKeyValue("Matched", fmt.Sprintf("%d (skipped %d)", report.Matched, report.Skipped), 13)
	PrintKeyValue("Only current", fmt.Sprintf("%d", report.MissingInBaseline), 13)
	PrintKeyValue("Only baseline", fmt.Sprintf("%d", report.MissingInCurrent), 13)
	PrintKeyValue("Drift", fmt.Sprintf("mean %+.2f, std %.2f, max abs %.2f",
		report.MeanDiff, report.StdDiff, report.MaxAbsDiff), 13)

	if len(report.Regressions) == 0 && len(report.Improvements) == 0 {
		fmt.Println()
		PrintSuccess("No score moved beyond tolerance")
		return
	}

	if len(report.Regressions) > 0 {
		fmt.Printf("\nRegressions (%d):\n", len(report.Regressions))
		printDiffTable(report.Regressions)
	}
	if len(report.Improvements) > 0 {
		fmt.Printf("\nImprovements (%d):\n", len(report.Improvements))
		printDiffTable(report.Improvements)
	}
}

func printDiffTable(diffs []governance.ScoreDiff) {
	widths := []int{12, 16, 12, 9, 9, 8}
	PrintTableHeader([]string{"DATE", "ENTITY", "BLOCK", "BASELINE", "CURRENT", "DIFF"}, widths)
	shown := diffs
	const maxRows = 20
	if len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	for _, d := range shown {
		PrintTableRow([]string{
			d.Date.Format(time.DateOnly),
			d.EntityID,
			d.Block,
			fmt.Sprintf("%.2f", d.Baseline),
			fmt.Sprintf("%.2f", d.Current),
			fmt.Sprintf("%+.2f", d.Diff),
		}, widths)
	}
	if len(diffs) > maxRows {
		fmt.Printf("  ... and %d more\n", len(diffs)-maxRows)
	}
}
