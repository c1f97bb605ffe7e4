package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/arcresearch/factorlab/internal/governance"
)

// versionsCmd represents the versions command
var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Inspect stored configuration versions",
	Long: `Lists and shows immutable scoring configuration snapshots.

Every scoring run references one version id; show prints the full stored
snapshot so any historical score can be traced to the exact configuration
that produced it.

Example:
  go run ./cmd/factorlab versions list
  go run ./cmd/factorlab versions show baseline_20260109_180000_ab12cd34ef56`,
}

var (
	versionsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored versions",
		RunE:  listVersions,
	}

	versionsShowCmd = &cobra.Command{
		Use:   "show [version_id]",
		Short: "Show one version with its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  showVersion,
	}
)

func init() {
	rootCmd.AddCommand(versionsCmd)
	versionsCmd.AddCommand(versionsListCmd)
	versionsCmd.AddCommand(versionsShowCmd)
}

func listVersions(cmd *cobra.Command, args []string) error {
	cfg, log, db, err := initDeps()
	if err != nil {
		return err
	}
	defer db.Close()

	versions, _, _ := initGovernance(cfg, db, log)

	stored, err := versions.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	if len(stored) == 0 {
		fmt.Println("No versions stored")
		return nil
	}

	widths := []int{42, 14, 20}
	PrintTableHeader([]string{"VERSION ID", "HASH", "CREATED"}, widths)
	for _, v := range stored {
		PrintTableRow([]string{
			v.VersionID,
			v.ConfigHash,
			v.CreatedAt.Format("2006-01-02 15:04:05"),
		}, widths)
	}
	fmt.Printf("\n%d versions\n", len(stored))
	return nil
}

func showVersion(cmd *cobra.Command, args []string) error {
	cfg, log, db, err := initDeps()
	if err != nil {
		return err
	}
	defer db.Close()

	versions, _, _ := initGovernance(cfg, db, log)

	version, err := versions.Load(cmd.Context(), args[0])
	if errors.Is(err, governance.ErrNotFound) {
		return fmt.Errorf("version %s not found", args[0])
	}
	if err != nil {
		return fmt.Errorf("load version: %w", err)
	}

	PrintKeyValue("Version", version.VersionID, 10)
	PrintKeyValue("Hash", version.ConfigHash, 10)
	PrintKeyValue("Created", version.CreatedAt.Format("2006-01-02 15:04:05"), 10)
	for _, key := range sortedMetaKeys(version.Metadata) {
		PrintKeyValue(key, version.Metadata[key], 10)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, version.Snapshot, "", "  "); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	fmt.Println("\nSnapshot:")
	fmt.Println(pretty.String())
	return nil
}

func sortedMetaKeys(metadata map[string]string) []string {
	keys := make([]string, 0, len(metadata))
	for key := range metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
