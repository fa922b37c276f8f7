package am

import "github.com/teranos/slice/closure"

// Config represents the slice run configuration
type Config struct {
	Source   StoreConfig   `mapstructure:"source"`
	Target   StoreConfig   `mapstructure:"target"`
	Previous StoreConfig   `mapstructure:"previous"`
	Release  ReleaseConfig `mapstructure:"release"`
	Slice    SliceConfig   `mapstructure:"slice"`
	Report   ReportConfig  `mapstructure:"report"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

// StoreConfig locates one store. Driver is optional; when empty it is
// derived from the shape of the DSN (postgres:// or a SQLite path).
type StoreConfig struct {
	DSN    string `mapstructure:"dsn"`
	Driver string `mapstructure:"driver"` // sqlite3, pgx
}

// ReleaseConfig identifies the release being produced
type ReleaseConfig struct {
	Number         int    `mapstructure:"number"`
	Date           string `mapstructure:"date"`      // YYYY-MM-DD
	RootFile       string `mapstructure:"root_file"` // one root key per line, optional tab-separated label
	TrackRevisions bool   `mapstructure:"track_revisions"`
}

// SliceConfig tunes the closure extraction
type SliceConfig struct {
	EventClass          string         `mapstructure:"event_class"`
	ReleaseFlag         string         `mapstructure:"release_flag"`
	Satellites          []closure.Rule `mapstructure:"satellites"`
	BatchSize           int            `mapstructure:"batch_size"`
	MaxQueriesPerSecond float64        `mapstructure:"max_queries_per_second"` // 0 = unlimited
}

// ReportConfig configures the change report
type ReportConfig struct {
	Format string `mapstructure:"format"` // table, yaml, json
	Path   string `mapstructure:"path"`   // empty = stdout
}

// MetricsConfig configures batch metrics output
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // node-exporter textfile collector path (empty = disabled)
}

// Report formats
const (
	FormatTable = "table"
	FormatYAML  = "yaml"
	FormatJSON  = "json"
)

// DateLayout is the accepted release date format
const DateLayout = "2006-01-02"

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
