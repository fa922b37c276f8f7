// Package sqlstore implements store.Adaptor over a relational database whose
// tables mirror the class hierarchy: one table per class keyed by DB_ID, a
// _class discriminator on the root table, and one junction table per
// multi-valued attribute.
package sqlstore

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/store"
)

// DefaultBatchSize bounds the number of keys in one IN (...) list.
const DefaultBatchSize = 500

// Options tune round-trip behaviour.
type Options struct {
	// BatchSize is the maximum number of keys per batched query.
	BatchSize int
	// MaxQueriesPerSecond throttles round trips; zero means unlimited.
	MaxQueriesPerSecond float64
}

// Store is a class-hierarchy mapped relational store.
type Store struct {
	db      *db.DB
	schema  *schema.Schema
	logger  *zap.SugaredLogger
	batch   int
	limiter *rate.Limiter
	tx      *sql.Tx

	// provision is set for targets prepared inside the slice transaction;
	// install additionally writes the schema into a store that has none.
	provision bool
	install   bool

	roundTrips int
}

var (
	_ store.Adaptor     = (*Store)(nil)
	_ store.Provisioner = (*Store)(nil)
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// New wraps an open database whose schema is already known.
func New(database *db.DB, sch *schema.Schema, log *zap.SugaredLogger, opts Options) *Store {
	s := &Store{
		db:     database,
		schema: sch,
		logger: logger.OrNop(log),
		batch:  opts.BatchSize,
	}
	if s.batch <= 0 {
		s.batch = DefaultBatchSize
	}
	if opts.MaxQueriesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.MaxQueriesPerSecond), 1)
	}
	return s
}

// NewTarget wraps a store that a slice is about to be committed into.
// Provision, called inside the commit transaction, applies pending
// migrations, installs sch when install is set and creates missing
// instance tables.
func NewTarget(database *db.DB, sch *schema.Schema, install bool, log *zap.SugaredLogger, opts Options) *Store {
	s := New(database, sch, log, opts)
	s.provision = true
	s.install = install
	return s
}

// Provision prepares a store created by NewTarget. It is a no-op for other
// stores.
func (s *Store) Provision(ctx context.Context) error {
	if !s.provision {
		return nil
	}
	if err := db.MigrateConn(ctx, s.conn(), s.db.Dialect, s.logger); err != nil {
		return errors.Wrap(err, "migrate store")
	}
	if s.install {
		if err := schema.Write(ctx, s.conn(), s.db.Dialect, s.schema); err != nil {
			return errors.Wrap(err, "install schema")
		}
		s.logger.Infow("Schema installed", "schema_version", s.schema.Version())
	}
	return s.EnsureTables(ctx)
}

// Open wraps an open database and loads the schema persisted in it.
func Open(ctx context.Context, database *db.DB, log *zap.SugaredLogger, opts Options) (*Store, error) {
	sch, err := schema.Load(ctx, database)
	if err != nil {
		return nil, errors.Wrapf(err, "load schema from %s store", database.Dialect.Name)
	}
	return New(database, sch, log, opts), nil
}

// Schema returns the store's class metadata.
func (s *Store) Schema() *schema.Schema { return s.schema }

// DB returns the underlying connection.
func (s *Store) DB() *db.DB { return s.db }

// RoundTrips returns the number of queries issued so far.
func (s *Store) RoundTrips() int { return s.roundTrips }

// conn returns the open transaction if there is one.
func (s *Store) conn() queryer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// wait accounts for one round trip and applies the rate limit.
func (s *Store) wait(ctx context.Context) error {
	s.roundTrips++
	if s.limiter == nil {
		return nil
	}
	return errors.Wrap(s.limiter.Wait(ctx), "rate limit wait")
}

// StartTransaction opens the transaction all following calls run in.
func (s *Store) StartTransaction(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("transaction already open")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	s.tx = tx
	s.logger.Debugw("Transaction started", logger.FieldStore, s.db.Dialect.Name)
	return nil
}

// Commit commits the open transaction.
func (s *Store) Commit() error {
	if s.tx == nil {
		return errors.New("no open transaction")
	}
	tx := s.tx
	s.tx = nil
	return errors.Wrap(tx.Commit(), "commit transaction")
}

// Rollback aborts the open transaction. It is a no-op without one.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	err := tx.Rollback()
	if db.IsDatabaseClosed(err) {
		// nothing left to roll back
		s.logger.Debugw("Rollback on closed store", logger.FieldError, err)
		return nil
	}
	return errors.Wrap(err, "rollback transaction")
}

// SupportsTransactions reports whether commits can be rolled back.
func (s *Store) SupportsTransactions() bool {
	return s.db.Dialect.SupportsTransactions()
}
