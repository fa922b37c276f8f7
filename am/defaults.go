package am

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/slice/closure"
	"github.com/teranos/slice/store/sqlstore"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Extraction defaults
	v.SetDefault("slice.event_class", closure.DefaultEventClass)
	v.SetDefault("slice.release_flag", closure.DefaultReleaseFlag)
	v.SetDefault("slice.satellites", defaultSatellites())
	v.SetDefault("slice.batch_size", sqlstore.DefaultBatchSize)
	v.SetDefault("slice.max_queries_per_second", 0.0) // unlimited

	// Release defaults
	v.SetDefault("release.track_revisions", false)

	// Report defaults
	v.SetDefault("report.format", FormatTable)
}

// defaultSatellites renders the built-in rules in the shape a TOML array of
// tables decodes to, so an explicit list in a file replaces them wholesale.
func defaultSatellites() []map[string]interface{} {
	rules := closure.DefaultSatellites()
	out := make([]map[string]interface{}, len(rules))
	for i, r := range rules {
		out[i] = map[string]interface{}{"class": r.Class, "attribute": r.Attribute}
	}
	return out
}

// envKeys are the settings that can be overridden from SLICE_* environment
// variables. Viper only unmarshals env values for keys it knows about, so
// each one is bound explicitly.
var envKeys = []string{
	"source.dsn", "source.driver",
	"target.dsn", "target.driver",
	"previous.dsn", "previous.driver",
	"release.number", "release.date", "release.root_file", "release.track_revisions",
	"slice.event_class", "slice.release_flag", "slice.batch_size", "slice.max_queries_per_second",
	"report.format", "report.path",
	"metrics.textfile",
}

// BindEnvVars binds every overridable setting to its SLICE_* variable
func BindEnvVars(v *viper.Viper) {
	for _, key := range envKeys {
		v.BindEnv(key)
	}
}

// envName returns the environment variable that overrides key
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// GetBatchSize returns the configured batch size, falling back to the store default
func (c *Config) GetBatchSize() int {
	if c.Slice.BatchSize <= 0 {
		return sqlstore.DefaultBatchSize
	}
	return c.Slice.BatchSize
}

// GetReportFormat returns the report format (default: table)
func (c *Config) GetReportFormat() string {
	if c.Report.Format == "" {
		return FormatTable
	}
	return c.Report.Format
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Release: %d (%s), Roots: %s, TrackRevisions: %t}",
		c.Release.Number, c.Release.Date, c.Release.RootFile, c.Release.TrackRevisions)
}
