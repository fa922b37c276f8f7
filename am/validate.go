package am

import (
	"os"
	"time"

	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
)

// Validate checks that the configuration describes a runnable release.
// Every failure is a configuration error and is raised before any store is touched.
func (c *Config) Validate() error {
	if c.Source.DSN == "" {
		return errors.WithHint(errors.Configurationf("source.dsn is not set"),
			"set source.dsn in am.toml or SLICE_SOURCE_DSN")
	}
	if c.Target.DSN == "" {
		return errors.WithHint(errors.Configurationf("target.dsn is not set"),
			"set target.dsn in am.toml or SLICE_TARGET_DSN")
	}
	if db.SameStore(c.Source.DSN, c.Target.DSN) {
		return errors.Configurationf("source and target are the same store (%s)", c.Source.DSN)
	}

	if err := c.validateRelease(); err != nil {
		return err
	}
	if err := c.ValidateRevisionTracking(); err != nil {
		return err
	}

	// Batch size: 0 = store default, negative = invalid
	if c.Slice.BatchSize < 0 {
		return errors.Configurationf("slice.batch_size must be >= 0, got %d", c.Slice.BatchSize)
	}
	// Query rate: 0 = unlimited, negative = invalid
	if c.Slice.MaxQueriesPerSecond < 0 {
		return errors.Configurationf("slice.max_queries_per_second must be >= 0, got %f", c.Slice.MaxQueriesPerSecond)
	}
	for i, rule := range c.Slice.Satellites {
		if rule.Class == "" || rule.Attribute == "" {
			return errors.Configurationf("slice.satellites[%d] needs both class and attribute", i)
		}
	}

	switch c.GetReportFormat() {
	case FormatTable, FormatYAML, FormatJSON:
	default:
		return errors.Configurationf("report.format must be one of table, yaml, json, got %q", c.Report.Format)
	}

	return nil
}

func (c *Config) validateRelease() error {
	if c.Release.Number <= 0 {
		return errors.Configurationf("release.number must be > 0, got %d", c.Release.Number)
	}
	if _, err := time.Parse(DateLayout, c.Release.Date); err != nil {
		return errors.WithHint(
			errors.Configurationf("release.date %q is not a date", c.Release.Date),
			"use the YYYY-MM-DD format")
	}
	if c.Release.RootFile == "" {
		return errors.Configurationf("release.root_file is not set")
	}
	f, err := os.Open(c.Release.RootFile)
	if err != nil {
		return errors.MarkConfiguration(err, "release.root_file is not readable")
	}
	f.Close()
	return nil
}

// ValidateRevisionTracking checks the previous-release store when revision
// tracking is on. It is also what the diff command checks on its own.
func (c *Config) ValidateRevisionTracking() error {
	if !c.Release.TrackRevisions {
		return nil
	}
	if c.Previous.DSN == "" {
		return errors.WithHint(errors.Configurationf("release.track_revisions needs previous.dsn"),
			"point previous.dsn at the last release's slice store")
	}
	if c.Target.DSN != "" && db.SameStore(c.Previous.DSN, c.Target.DSN) {
		return errors.Configurationf("previous and target are the same store (%s)", c.Previous.DSN)
	}
	return nil
}
