package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/release"
	"github.com/teranos/slice/report"
)

// DiffCmd reports revisions without committing anything
var DiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Report what changed since the previous release",
	Long: `Extract the slice from the source store and compare it with the previous
release's store. Nothing is written; the target store is not opened.

Examples:
  slice diff --roots roots.txt
  slice diff --format json -o changes.json`,
	RunE: runDiff,
}

var diffFlags releaseFlags

func init() {
	diffFlags.register(DiffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	diffFlags.apply(cmd, cfg)

	res, err := release.New(release.Options{Config: cfg}, logger.Logger).Diff(cmd.Context())
	if err != nil {
		return err
	}
	return report.WriteFile(cfg.Report.Path, cfg.GetReportFormat(), res.Records)
}
