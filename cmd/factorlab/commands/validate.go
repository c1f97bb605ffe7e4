package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcresearch/factorlab/internal/contracts"
	"github.com/arcresearch/factorlab/internal/governance"
	"github.com/arcresearch/factorlab/internal/scorestore"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate stored scores",
	Long: `Checks stored scores for range violations, null rates and quintile
balance without recomputing anything.

Findings are reported, not raised: the exit code stays zero unless the
command itself fails.

Example:
  go run ./cmd/factorlab validate --date 2026-01-09
  go run ./cmd/factorlab validate --from 2026-01-05 --to 2026-01-09 --block quality
  go run ./cmd/factorlab validate --output json`,
	RunE: runValidate,
}

var (
	validateDate   string
	validateFrom   string
	validateTo     string
	validateBlock  string
	validateOutput string
)

func init() {
	rootCmd.AddCommand(validateCmd)

	// Flags
	validateCmd.Flags().StringVar(&validateDate, "date", "", "single scoring date (YYYY-MM-DD, default latest stored)")
	validateCmd.Flags().StringVar(&validateFrom, "from", "", "start date (YYYY-MM-DD)")
	validateCmd.Flags().StringVar(&validateTo, "to", "", "end date (YYYY-MM-DD)")
	validateCmd.Flags().StringVar(&validateBlock, "block", "", "restrict to one block")
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "text", "output format (text|json)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	if validateDate != "" && (validateFrom != "" || validateTo != "") {
		return fmt.Errorf("--date conflicts with --from/--to")
	}

	// 1. Load config, logger, database
	_, log, db, err := initDeps()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	repo := scorestore.NewRepository(db.Pool)

	// 2. Resolve the window; no flags means the latest stored date
	var from, to time.Time
	if validateFrom == "" && validateTo == "" {
		day, err := resolveDate(ctx, repo, validateDate)
		if err != nil {
			return err
		}
		from, to = day, day
	} else {
		from, to, err = parseWindow(validateFrom, validateTo)
		if err != nil {
			return err
		}
	}

	// 3. Load and validate
	scores, err := repo.GetByDateRange(ctx, from, to, validateBlock)
	if err != nil {
		return fmt.Errorf("load scores: %w", err)
	}
	if len(scores) == 0 {
		PrintWarning(fmt.Sprintf("No scores stored for %s..%s",
			from.Format(time.DateOnly), to.Format(time.DateOnly)))
		return nil
	}

	validator := governance.NewScoreValidator(log)
	report := validator.ValidateScores(scores, 0, 100)

	var quintiles []*governance.QuintileDistributionReport
	for _, block := range blockNames(scores) {
		quintiles = append(quintiles,
			validator.ValidateQuintileDistribution(scores, block, governance.DefaultQuintileTolerance))
	}

	// 4. Report
	if validateOutput == "json" {
		out := struct {
			Scores    *governance.ScoreValidationReport        `json:"scores"`
			Quintiles []*governance.QuintileDistributionReport `json:"quintiles"`
		}{report, quintiles}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	printValidation(from, to, report, quintiles)
	return nil
}

func printValidation(from, to time.Time, report *governance.ScoreValidationReport, quintiles []*governance.QuintileDistributionReport) {
	fmt.Println("=== FactorLab Score Validation ===")
	fmt.Println()

	window := from.Format(time.DateOnly)
	if !to.Equal(from) {
		window += " .. " + to.Format(time.DateOnly)
	}
	PrintKeyValue("Window", window, 6)
	valid := "yes"
	if !report.Valid {
		valid = "no"
	}
	PrintKeyValue("Valid", valid, 6)
	fmt.Println()

	widths := []int{14, 6, 6, 8, 8, 8, 8, 9}
	PrintTableHeader([]string{"BLOCK", "ROWS", "NULLS", "MEAN", "STD", "MIN", "MAX", "OUT-RANGE"}, widths)
	for _, bs := range report.Blocks {
		PrintTableRow([]string{
			bs.Block,
			fmt.Sprintf("%d", bs.Rows),
			fmt.Sprintf("%d", bs.NullCount),
			fmt.Sprintf("%.2f", bs.Mean),
			fmt.Sprintf("%.2f", bs.Std),
			fmt.Sprintf("%.2f", bs.Min),
			fmt.Sprintf("%.2f", bs.Max),
			fmt.Sprintf("%d", bs.OutOfRange),
		}, widths)
	}
	for _, issue := range report.Issues {
		PrintWarning(issue)
	}

	fmt.Println("\nQuintile balance:")
	for _, q := range quintiles {
		fmt.Printf("  %-14s ranked %4d  unranked %4d  Q1-Q5 %s\n",
			q.Block, q.Ranked, q.Unranked, formatShares(q.Shares))
	}
	for _, q := range quintiles {
		for _, warning := range q.Warnings {
			PrintWarning(warning)
		}
	}
}

func formatShares(shares map[int]float64) string {
	parts := make([]string, 0, 5)
	for q := 1; q <= 5; q++ {
		parts = append(parts, fmt.Sprintf("%.0f%%", shares[q]*100))
	}
	return strings.Join(parts, "/")
}

func blockNames(scores []contracts.BlockScore) []string {
	seen := map[string]struct{}{}
	names := make([]string, 0, 4)
	for _, s := range scores {
		if _, ok := seen[s.Block]; ok {
			continue
		}
		seen[s.Block] = struct{}{}
		names = append(names, s.Block)
	}
	sort.Strings(names)
	return names
}
