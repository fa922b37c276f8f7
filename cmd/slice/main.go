package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/slice/cmd/slice/commands"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/logger"
)

var rootCmd = &cobra.Command{
	Use:   "slice",
	Short: "slice - Release slicer for the pathway knowledge graph",
	Long: `slice - Cut a release out of the curated pathway knowledge graph.

slice extracts the closure of the release's root events from the curated
source store, compares it with the previous release, and writes it into a
fresh slice store in dependency order.

Available commands:
  run     - Extract, diff and commit a release slice
  diff    - Report what changed since the previous release without writing
  schema  - Install or print a store schema
  db      - Manage store bookkeeping tables
  am      - Show and validate configuration
  version - Show build information

Examples:
  slice run --release 88 --date 2026-12-01 --roots roots.txt
  slice diff --roots roots.txt
  slice schema apply --dsn slice88.db
  slice am where`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return errors.Wrap(err, "failed to initialize logger")
		}
		logger.Debugw("Logger initialized", "level", logger.LevelName(verbosity), "json", jsonLogs)
		return nil
	},
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON on stderr")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigFile, "config", "", "Load this config file instead of searching /etc/slice, ~/.slice and the project")

	// Add commands
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.DiffCmd)
	rootCmd.AddCommand(commands.SchemaCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
	}
	os.Exit(errors.ExitCode(err))
}
