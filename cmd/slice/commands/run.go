package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/release"
	"github.com/teranos/slice/report"
)

// RunCmd cuts and commits one release
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract, diff and commit a release slice",
	Long: `Extract the closure of the release's root events from the source store and
commit it into the target store in dependency order.

With revision tracking on, the slice is first compared with the previous
release and the change records are stored with the slice and printed.

A failed commit is rolled back; the target is left as it was.

Exit codes: 0 success, 1 failure, 2 configuration error, 3 commit failure.

Examples:
  slice run --release 88 --date 2026-12-01 --roots roots.txt
  slice run --track-revisions --format yaml -o changes88.yaml`,
	RunE: runRelease,
}

var runFlags releaseFlags

func init() {
	runFlags.register(RunCmd)
	RunCmd.Flags().BoolVar(&runFlags.trackRevisions, "track-revisions", false, "Compare with the previous release (overrides release.track_revisions)")
}

func runRelease(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runFlags.apply(cmd, cfg)

	p := release.New(release.Options{Config: cfg}, logger.Logger)
	res, err := p.Run(cmd.Context())
	if err != nil {
		return err
	}

	printStats(&res.Stats)
	if cfg.Release.TrackRevisions {
		return report.WriteFile(cfg.Report.Path, cfg.GetReportFormat(), res.Records)
	}
	return nil
}

func printStats(stats *release.Stats) {
	var data pterm.TableData
	for _, row := range stats.Rows() {
		data = append(data, []string{row[0], row[1]})
	}
	pterm.DefaultSection.Printf("Release %d", stats.Release)
	pterm.DefaultTable.WithData(data).Render()
}
