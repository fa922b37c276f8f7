package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/slice/am"
	"github.com/teranos/slice/logger"
)

// ConfigFile is set by the root --config flag.
var ConfigFile string

// loadConfig reads the explicit --config file, or the layered search otherwise.
func loadConfig() (*am.Config, error) {
	if ConfigFile != "" {
		return am.LoadFromFile(ConfigFile)
	}
	return am.Load()
}

// releaseFlags are the per-run overrides shared by run and diff.
type releaseFlags struct {
	number         int
	date           string
	roots          string
	trackRevisions bool
	reportFormat   string
	reportPath     string
}

func (f *releaseFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.number, "release", 0, "Release number (overrides release.number)")
	cmd.Flags().StringVar(&f.date, "date", "", "Release date YYYY-MM-DD (overrides release.date)")
	cmd.Flags().StringVar(&f.roots, "roots", "", "Root list file (overrides release.root_file)")
	cmd.Flags().StringVar(&f.reportFormat, "format", "", "Change report format: table, yaml, json (overrides report.format)")
	cmd.Flags().StringVarP(&f.reportPath, "output", "o", "", "Write the change report to this file (overrides report.path)")
}

// apply copies the flags the user actually set over the loaded config.
func (f *releaseFlags) apply(cmd *cobra.Command, cfg *am.Config) {
	if cmd.Flags().Changed("release") {
		cfg.Release.Number = f.number
	}
	if cmd.Flags().Changed("date") {
		cfg.Release.Date = f.date
	}
	if cmd.Flags().Changed("roots") {
		cfg.Release.RootFile = f.roots
	}
	if cmd.Flags().Changed("track-revisions") {
		cfg.Release.TrackRevisions = f.trackRevisions
	}
	if cmd.Flags().Changed("format") {
		cfg.Report.Format = f.reportFormat
	}
	if cmd.Flags().Changed("output") {
		cfg.Report.Path = f.reportPath
	}
	logger.Debugw("Effective release configuration", "config", cfg.String())
}
