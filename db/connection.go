package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/slice/errors"
)

// DB is an open store connection together with its SQL dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
	DSN     string
}

// Conn is satisfied by both *sql.DB and *sql.Tx.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLiteBusyTimeoutMS is how long SQLite waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

// Open opens a store, picking the driver from the DSN shape.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(dsn string, logger *zap.SugaredLogger) (*DB, error) {
	return OpenDialect(DetectDialect(dsn), dsn, logger)
}

// OpenDialect opens a store with an explicit dialect.
func OpenDialect(dialect Dialect, dsn string, logger *zap.SugaredLogger) (*DB, error) {
	if dsn == "" {
		return nil, errors.Configurationf("empty %s DSN", dialect.Name)
	}
	return open(dialect, dsn, dsn, false, logger)
}

// OpenReadOnly opens an existing store for reading only. SQLite files are
// opened with mode=ro and query_only and keep their journal mode; Postgres
// sessions default to read-only transactions. A missing SQLite file is a
// configuration error, never a new empty database.
func OpenReadOnly(dialect Dialect, dsn string, logger *zap.SugaredLogger) (*DB, error) {
	if dsn == "" {
		return nil, errors.Configurationf("empty %s DSN", dialect.Name)
	}
	connDSN := dsn
	switch dialect.Name {
	case SQLite.Name:
		if path, ok := sqlitePath(dsn); ok {
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					return nil, errors.WithHint(errors.Configurationf("store %s does not exist", path),
						"check the DSN; stores opened for reading are never created")
				}
				return nil, errors.MarkConfiguration(err, "stat store "+path)
			}
			connDSN = readOnlySQLiteDSN(dsn)
		}
	case Postgres.Name:
		connDSN = withPostgresParam(dsn, "default_transaction_read_only", "on")
	}
	return open(dialect, dsn, connDSN, true, logger)
}

func open(dialect Dialect, dsn, connDSN string, readOnly bool, logger *zap.SugaredLogger) (*DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "dsn", redact(dsn), "driver", dialect.Driver, "read_only", readOnly)
	}

	conn, err := sql.Open(dialect.Driver, connDSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if dialect.Name == SQLite.Name {
		if isMemoryDSN(dsn) {
			// every connection to :memory: is a separate database
			conn.SetMaxOpenConns(1)
		}
		if err := applySQLitePragmas(conn, readOnly); err != nil {
			conn.Close()
			return nil, err
		}
	} else if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"dsn", redact(dsn),
			"driver", dialect.Driver,
			"read_only", readOnly,
		)
	}

	return &DB{DB: conn, Dialect: dialect, DSN: dsn}, nil
}

// OpenWithMigrations opens a store and applies the bookkeeping migrations.
func OpenWithMigrations(dsn string, logger *zap.SugaredLogger) (*DB, error) {
	database, err := Open(dsn, logger)
	if err != nil {
		return nil, err
	}
	if err := Migrate(database, logger); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return database, nil
}

func applySQLitePragmas(conn *sql.DB, readOnly bool) error {
	// Enable WAL mode for concurrent reads during writes. The journal mode
	// is persistent, so stores opened for reading keep theirs.
	if !readOnly {
		if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
			return errors.Wrap(err, "failed to enable WAL mode")
		}
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return errors.Wrap(err, "failed to enable foreign keys")
	}

	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return errors.Wrap(err, "failed to set busy timeout")
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// sqlitePath returns the file behind a SQLite DSN. ok is false for
// in-memory and non-SQLite DSNs.
func sqlitePath(dsn string) (path string, ok bool) {
	if DetectDialect(dsn).Name != SQLite.Name || isMemoryDSN(dsn) {
		return "", false
	}
	path = strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path, path != ""
}

func readOnlySQLiteDSN(dsn string) string {
	path := strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
	params := []string{"mode=ro", "_query_only=true"}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		if q := path[i+1:]; q != "" {
			params = append([]string{q}, params...)
		}
		path = path[:i]
	}
	return "file:" + path + "?" + strings.Join(params, "&")
}

func withPostgresParam(dsn, key, value string) string {
	if !strings.Contains(dsn, "://") {
		return dsn + " " + key + "=" + value
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + value
}

// Exists reports whether the store behind dsn is already present. Only
// SQLite files can be absent; other stores are assumed to exist.
func Exists(dsn string) bool {
	path, ok := sqlitePath(dsn)
	if !ok {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

// RemoveFiles deletes a SQLite store file together with its WAL and
// shared-memory side files. Other stores are left alone.
func RemoveFiles(dsn string) error {
	path, ok := sqlitePath(dsn)
	if !ok {
		return nil
	}
	for _, f := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", filepath.Base(f))
		}
	}
	return nil
}

// redact strips credentials from URL-style DSNs before logging.
func redact(dsn string) string {
	at := -1
	for i := len(dsn) - 1; i >= 0; i-- {
		if dsn[i] == '@' {
			at = i
			break
		}
	}
	scheme := -1
	for i := 0; i+2 < len(dsn); i++ {
		if dsn[i] == ':' && dsn[i+1] == '/' && dsn[i+2] == '/' {
			scheme = i + 3
			break
		}
	}
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme] + "***" + dsn[at:]
}
