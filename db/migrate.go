package db

import (
	"context"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/slice/errors"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs all pending bookkeeping migrations (schema metadata and
// release tracking tables) in one transaction. Instance tables are generated
// from the schema by the store adaptor, not by migrations.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(database *DB, logger *zap.SugaredLogger) error {
	ctx := context.Background()
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin migrations")
	}
	if err := MigrateConn(ctx, tx, database.Dialect, logger); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit migrations")
}

// MigrateConn runs the pending migrations through c without opening a
// transaction of its own, so a caller's transaction can carry them.
func MigrateConn(ctx context.Context, c Conn, dialect Dialect, logger *zap.SugaredLogger) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	// Sort migrations (000_create_schema_migrations.sql runs first)
	var migrationFiles []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			migrationFiles = append(migrationFiles, entry.Name())
		}
	}
	sort.Strings(migrationFiles)

	// a failed query aborts a Postgres transaction, so check for the table first
	// instead of querying it blindly
	tracked, err := HasTable(ctx, c, dialect, "schema_migrations")
	if err != nil {
		return err
	}

	applied := 0
	for _, filename := range migrationFiles {
		version := strings.Split(filename, "_")[0]

		if tracked {
			var exists bool
			err := c.QueryRowContext(ctx,
				dialect.Rebind("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)"),
				version,
			).Scan(&exists)
			if err != nil {
				return errors.Wrapf(err, "check %s", filename)
			}
			if exists {
				if logger != nil {
					logger.Debugw("Skipping migration (already applied)",
						"migration", filename,
						"version", version,
					)
				}
				continue
			}
		} else if version != "000" {
			return errors.Newf("schema_migrations table missing, but migration is not 000: %s", filename)
		}

		sqlBytes, err := migrations.ReadFile(path.Join("migrations", filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}

		if logger != nil {
			logger.Infow("Applying migration",
				"migration", filename,
				"version", version,
			)
		}

		if _, err := c.ExecContext(ctx, string(sqlBytes)); err != nil {
			return errors.Wrapf(err, "execute %s", filename)
		}
		tracked = true

		// Record migration (000 creates the table, then records itself)
		if _, err := c.ExecContext(ctx, dialect.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), version); err != nil {
			return errors.Wrapf(err, "record %s", filename)
		}
		applied++
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"total_migrations", len(migrationFiles),
			"applied", applied,
		)
	}

	return nil
}

// HasTable reports whether a table exists in the store c is connected to.
func HasTable(ctx context.Context, c Conn, dialect Dialect, name string) (bool, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	if dialect.Name == Postgres.Name {
		query = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`
	}
	var n int
	if err := c.QueryRowContext(ctx, dialect.Rebind(query), name).Scan(&n); err != nil {
		return false, errors.Wrapf(err, "look up table %s", name)
	}
	return n > 0, nil
}
