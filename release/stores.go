package release

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/slice/am"
	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/store/sqlstore"
)

// dialectFor picks the configured driver, or guesses it from the DSN.
func dialectFor(sc am.StoreConfig) db.Dialect {
	if sc.Driver != "" {
		return db.DialectForDriver(sc.Driver)
	}
	return db.DetectDialect(sc.DSN)
}

// openReadStore opens a store that must already carry a schema. The
// connection is read-only and a missing SQLite file is reported rather
// than created.
func openReadStore(ctx context.Context, role string, sc am.StoreConfig, opts sqlstore.Options, log *zap.SugaredLogger) (*sqlstore.Store, error) {
	database, err := db.OpenReadOnly(dialectFor(sc), sc.DSN, log)
	if err != nil {
		return nil, errors.MarkConfiguration(err, "open "+role+" store")
	}
	s, err := sqlstore.Open(ctx, database, log.With(logger.FieldStore, role), opts)
	if err != nil {
		database.Close()
		if errors.IsNotFoundError(err) {
			return nil, errors.WithHint(errors.MarkConfiguration(err, role+" store has no schema"),
				"install one with 'slice schema apply --dsn <"+role+" dsn> --file schema.toml'")
		}
		return nil, errors.Wrapf(err, "open %s store", role)
	}
	return s, nil
}

// openTarget opens the target store and reads its schema without changing
// anything. Migrations, schema installation and instance tables are left to
// the slice transaction. A target with no schema yet receives the source
// schema; one whose schema differs only gets a schema-drift warning and the
// writer skips what it cannot hold.
func openTarget(ctx context.Context, sc am.StoreConfig, source *schema.Schema, opts sqlstore.Options, log *zap.SugaredLogger) (*sqlstore.Store, error) {
	database, err := db.OpenDialect(dialectFor(sc), sc.DSN, log)
	if err != nil {
		return nil, errors.MarkConfiguration(err, "open target store")
	}

	log = log.With(logger.FieldStore, "target")
	sch, err := schema.Load(ctx, database)
	switch {
	case errors.IsNotFoundError(err):
		log.Infow("Target has no schema; the source schema is installed with the slice",
			"schema_version", source.Version())
		return sqlstore.NewTarget(database, source, true, log, opts), nil
	case err != nil:
		database.Close()
		return nil, errors.Wrap(err, "load target schema")
	}

	if !schema.Compatible(source, sch) {
		log.Warnw("Source and target schema versions differ; attributes missing from the target are skipped",
			"source_version", source.Version(),
			"target_version", sch.Version(),
			logger.FieldError, errors.ErrSchemaDrift.Error(),
		)
	}
	return sqlstore.NewTarget(database, sch, false, log, opts), nil
}
