// Package release runs a slicing batch end to end: validate the
// configuration, extract the closure of the listed roots from the source
// store, optionally detect revisions against the previous release, and
// commit the slice into the target store.
package release

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/slice/am"
	"github.com/teranos/slice/closure"
	"github.com/teranos/slice/db"
	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/revision"
	"github.com/teranos/slice/rootset"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/snapshot"
	"github.com/teranos/slice/store/sqlstore"
	"github.com/teranos/slice/writer"
)

// Options configure one run.
type Options struct {
	Config *am.Config
	// RunID identifies the run in logs and bookkeeping; generated when empty.
	RunID string
}

// Result is what a run produced.
type Result struct {
	Stats   Stats
	Records []revision.Record
	// Assigned maps pending placeholder keys onto the keys the target chose.
	Assigned map[instance.Key]instance.Key
}

// Pipeline runs release batches.
type Pipeline struct {
	cfg    *am.Config
	runID  string
	logger *zap.SugaredLogger
}

// New returns a pipeline for one run.
func New(opts Options, log *zap.SugaredLogger) *Pipeline {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Pipeline{
		cfg:    opts.Config,
		runID:  runID,
		logger: logger.OrNop(log).With(logger.FieldComponent, "release"),
	}
}

// log returns the pipeline logger carrying the run fields of ctx.
func (p *Pipeline) log(ctx context.Context) *zap.SugaredLogger {
	return logger.LoggerFromContext(ctx, p.logger)
}

// commit writes the slice into the target. A target file this run created
// is removed again when the commit fails.
func (p *Pipeline) commit(ctx context.Context, source *schema.Schema, sl *instance.Slice, records []revision.Record) (_ *writer.Result, retErr error) {
	log := p.log(ctx)
	fresh := !db.Exists(p.cfg.Target.DSN)
	defer func() {
		if retErr == nil || !fresh {
			return
		}
		if err := db.RemoveFiles(p.cfg.Target.DSN); err != nil {
			log.Warnw("Could not remove target store after failed commit",
				logger.FieldStore, "target",
				logger.FieldError, err,
			)
		}
	}()

	target, err := openTarget(ctx, p.cfg.Target, source, p.storeOptions(), log)
	if err != nil {
		return nil, err
	}
	defer target.DB().Close()

	return writer.New(target, log).Commit(ctx, sl, writer.Options{
		Release: writer.Release{
			Number: p.cfg.Release.Number,
			Date:   p.cfg.Release.Date,
			RunID:  p.runID,
		},
		Revisions: records,
	})
}

// RunID returns the identifier of this run.
func (p *Pipeline) RunID() string { return p.runID }

func (p *Pipeline) storeOptions() sqlstore.Options {
	return sqlstore.Options{
		BatchSize:           p.cfg.GetBatchSize(),
		MaxQueriesPerSecond: p.cfg.Slice.MaxQueriesPerSecond,
	}
}

func (p *Pipeline) closureOptions() closure.Options {
	return closure.Options{
		EventClass:  p.cfg.Slice.EventClass,
		ReleaseFlag: p.cfg.Slice.ReleaseFlag,
		Satellites:  p.cfg.Slice.Satellites,
	}
}

// Run executes the full batch. Configuration problems are reported before
// any store is opened; a failed commit leaves the target untouched.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.cfg == nil {
		return nil, errors.Configurationf("no configuration")
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx = logger.WithRunID(ctx, p.runID)

	roots, err := rootset.Load(p.cfg.Release.RootFile)
	if err != nil {
		return nil, err
	}

	src, err := openReadStore(ctx, "source", p.cfg.Source, p.storeOptions(), p.log(ctx))
	if err != nil {
		return nil, err
	}
	defer src.DB().Close()

	res := &Result{Stats: Stats{RunID: p.runID, Release: p.cfg.Release.Number}}
	sl, err := p.extract(ctx, src, roots, &res.Stats)
	if err != nil {
		return nil, err
	}

	if p.cfg.Release.TrackRevisions {
		res.Records, err = p.detect(ctx, src, sl, roots)
		if err != nil {
			return nil, err
		}
		res.Stats.ChangeRecords = len(res.Records)
	}

	// the target is opened only once the slice is in hand
	committed, err := p.commit(ctx, src.Schema(), sl, res.Records)
	if err != nil {
		return nil, err
	}
	res.Stats.addCommit(committed)
	res.Assigned = committed.Assigned
	res.Stats.Duration = time.Since(start)

	p.finish(ctx, &res.Stats)
	return res, nil
}

// Diff extracts the slice and reports revisions against the previous
// release without writing anything.
func (p *Pipeline) Diff(ctx context.Context) (*Result, error) {
	if p.cfg == nil {
		return nil, errors.Configurationf("no configuration")
	}
	if err := p.validateDiff(); err != nil {
		return nil, err
	}
	start := time.Now()
	ctx = logger.WithRunID(ctx, p.runID)

	roots, err := rootset.Load(p.cfg.Release.RootFile)
	if err != nil {
		return nil, err
	}
	src, err := openReadStore(ctx, "source", p.cfg.Source, p.storeOptions(), p.log(ctx))
	if err != nil {
		return nil, err
	}
	defer src.DB().Close()

	res := &Result{Stats: Stats{RunID: p.runID, Release: p.cfg.Release.Number}}
	sl, err := p.extract(ctx, src, roots, &res.Stats)
	if err != nil {
		return nil, err
	}
	res.Records, err = p.detect(ctx, src, sl, roots)
	if err != nil {
		return nil, err
	}
	res.Stats.ChangeRecords = len(res.Records)
	res.Stats.Duration = time.Since(start)

	p.log(ctx).Infow("Diff complete",
		logger.FieldCount, len(res.Records),
		logger.FieldDurationMS, res.Stats.Duration.Milliseconds(),
	)
	return res, nil
}

// validateDiff checks what a diff needs: a source, a previous release and
// a root list. The target is never opened.
func (p *Pipeline) validateDiff() error {
	if p.cfg.Source.DSN == "" {
		return errors.Configurationf("source.dsn is not set")
	}
	if p.cfg.Previous.DSN == "" {
		return errors.WithHint(errors.Configurationf("diff needs previous.dsn"),
			"point previous.dsn at the last release's slice store")
	}
	if p.cfg.Release.RootFile == "" {
		return errors.Configurationf("release.root_file is not set")
	}
	return nil
}

func (p *Pipeline) extract(ctx context.Context, src *sqlstore.Store, roots *rootset.Set, stats *Stats) (*instance.Slice, error) {
	log := p.log(ctx)
	e := closure.New(src, p.closureOptions(), log)
	sl, err := e.Extract(ctx, roots.Keys())
	if err != nil {
		return nil, errors.Wrap(err, "extract slice")
	}
	stats.addClosure(e.Stats(), sl.CountByClass())
	stats.SourceRoundTrips = src.RoundTrips()
	logMemory(log, "extraction", sl.Len())
	return sl, nil
}

// detect compares the extracted slice with the previous release's store.
func (p *Pipeline) detect(ctx context.Context, src *sqlstore.Store, sl *instance.Slice, roots *rootset.Set) ([]revision.Record, error) {
	log := p.log(ctx)
	prevStore, err := openReadStore(ctx, "previous", p.cfg.Previous, p.storeOptions(), log)
	if err != nil {
		return nil, err
	}
	defer prevStore.DB().Close()

	previous, err := snapshot.Load(ctx, "previous", prevStore, p.cfg.GetBatchSize(), log)
	if err != nil {
		return nil, errors.Wrap(err, "load previous release")
	}
	logMemory(log, "previous snapshot", previous.Slice.Len())

	current := snapshot.New("current", sl, src.Schema())
	records := revision.New(previous, current, log).Detect(roots.Keys())
	for i := range records {
		if records[i].Name == "" {
			records[i].Name = roots.Label(records[i].Key)
		}
	}
	return records, nil
}

func (p *Pipeline) finish(ctx context.Context, stats *Stats) {
	log := p.log(ctx)
	log.Infow("Release batch complete",
		logger.FieldRelease, stats.Release,
		logger.FieldCount, stats.Written,
		"change_records", stats.ChangeRecords,
		"pruned", stats.PrunedReferences,
		"schema_drift", stats.SchemaDrift,
		logger.FieldDurationMS, stats.Duration.Milliseconds(),
	)
	if path := p.cfg.Metrics.Textfile; path != "" {
		if err := stats.WriteTextfile(path); err != nil {
			log.Warnw("Failed to write metrics textfile", "path", path, logger.FieldError, err)
		}
	}
}
