package db

import (
	"path/filepath"
	"strings"

	"github.com/teranos/slice/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// This handles both:
// - Wrapped ErrDatabaseClosed errors from this package
// - Raw sql driver errors that contain "database is closed" in their message
//
// The string matching fallback is necessary because the underlying sql driver
// returns its own error types that we cannot wrap at the source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	return strings.Contains(err.Error(), "database is closed")
}

// SameStore reports whether two DSNs name the same store.
// SQLite files are compared by absolute path with symlinks resolved, so
// "a.db", "./a.db" and "file:/abs/a.db?cache=shared" all name one store.
func SameStore(a, b string) bool {
	return normalizeDSN(a) == normalizeDSN(b)
}

func normalizeDSN(dsn string) string {
	if path, ok := sqlitePath(dsn); ok {
		return canonicalPath(path)
	}
	return strings.TrimRight(strings.TrimSpace(dsn), "/")
}

// canonicalPath resolves a file path that may not exist yet: the file
// itself when present, otherwise its directory.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs))
	}
	return abs
}
