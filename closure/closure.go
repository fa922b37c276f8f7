// Package closure computes the release slice: every instance reachable from
// a root set through instance-typed attributes, with events admitted only
// when they are release-eligible, plus satellite instances that point into
// the slice.
package closure

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/store"
)

// Defaults for the event gate.
const (
	DefaultEventClass  = "Event"
	DefaultReleaseFlag = "_doRelease"
)

// Options configure one extraction.
type Options struct {
	// EventClass is the class whose instances (and subclasses) are gated.
	EventClass string
	// ReleaseFlag is the boolean attribute marking an event release-eligible.
	ReleaseFlag string
	// Satellites are re-run until none of them adds an instance.
	Satellites []Rule
}

// Stats summarises one extraction.
type Stats struct {
	Roots              int
	Instances          int
	EligibleEvents     int
	GatedEvents        int
	DanglingReferences int
	PrunedReferences   int
	UnknownClasses     int
	SatelliteAdditions int
	SatellitePasses    int
	Levels             int
	Duration           time.Duration
}

// Extractor builds slices from a read-only store.
type Extractor struct {
	src    store.Reader
	opts   Options
	logger *zap.SugaredLogger

	slice    *instance.Slice
	visited  map[instance.Key]bool
	eligible map[instance.Key]bool
	gated    map[instance.Key]bool
	dangling map[instance.Key]bool
	stats    Stats
}

// New returns an extractor over src.
func New(src store.Reader, opts Options, log *zap.SugaredLogger) *Extractor {
	if opts.EventClass == "" {
		opts.EventClass = DefaultEventClass
	}
	if opts.ReleaseFlag == "" {
		opts.ReleaseFlag = DefaultReleaseFlag
	}
	return &Extractor{
		src:    src,
		opts:   opts,
		logger: logger.OrNop(log).With(logger.FieldComponent, "closure"),
	}
}

// Stats returns the statistics of the last extraction.
func (e *Extractor) Stats() Stats { return e.stats }

// Extract computes the slice reachable from roots. Root events pass the same
// release gate as any other event. A root missing from the source store is a
// configuration error; an instance without a class is a data-integrity
// error. Dangling references are logged and pruned.
func (e *Extractor) Extract(ctx context.Context, roots []instance.Key) (*instance.Slice, error) {
	start := time.Now()
	e.slice = instance.NewSlice()
	e.visited = make(map[instance.Key]bool)
	e.gated = make(map[instance.Key]bool)
	e.dangling = make(map[instance.Key]bool)
	e.stats = Stats{Roots: len(roots)}

	if err := e.loadEligibility(ctx); err != nil {
		return nil, err
	}

	found, err := e.src.FetchShells(ctx, roots)
	if err != nil {
		return nil, errors.Wrap(err, "resolve root set")
	}
	seeds := make([]store.Shell, 0, len(roots))
	for _, k := range roots {
		sh, ok := found[k]
		if !ok {
			return nil, errors.Configurationf("root instance %d is not in the source store", k)
		}
		if sh.Class == "" {
			return nil, errors.DataIntegrityf("root instance %d has no class", k)
		}
		if e.isEvent(sh.Class) && !e.eligible[k] {
			e.logger.Warnw("Root event is not flagged for release; skipping it",
				logger.FieldKey, int64(k),
				logger.FieldClass, sh.Class,
			)
			e.visited[k] = true
			e.gated[k] = true
			continue
		}
		seeds = append(seeds, sh)
	}

	if err := e.expand(ctx, seeds); err != nil {
		return nil, err
	}
	if err := e.runSatellites(ctx); err != nil {
		return nil, err
	}
	e.prune()

	e.stats.Instances = e.slice.Len()
	e.stats.GatedEvents = len(e.gated)
	e.stats.DanglingReferences = len(e.dangling)
	e.stats.Duration = time.Since(start)
	e.logger.Infow("Closure complete",
		logger.FieldCount, e.stats.Instances,
		"roots", e.stats.Roots,
		"gated_events", e.stats.GatedEvents,
		"dangling", e.stats.DanglingReferences,
		"satellites", e.stats.SatelliteAdditions,
		logger.FieldDurationMS, e.stats.Duration.Milliseconds(),
	)
	return e.slice, nil
}

// loadEligibility precomputes the set of release-flagged events.
func (e *Extractor) loadEligibility(ctx context.Context) error {
	sch := e.src.Schema()
	if !sch.Has(e.opts.EventClass) {
		return errors.Configurationf("event class %s is not defined in the source schema", e.opts.EventClass)
	}
	if !sch.Valid(e.opts.EventClass, e.opts.ReleaseFlag) {
		return errors.Configurationf("release flag %s is not an attribute of %s", e.opts.ReleaseFlag, e.opts.EventClass)
	}
	shells, err := e.src.FetchInstanceByAttribute(ctx, e.opts.EventClass, e.opts.ReleaseFlag, true)
	if err != nil {
		return errors.Wrap(err, "load release-eligible events")
	}
	e.eligible = make(map[instance.Key]bool, len(shells))
	for _, sh := range shells {
		e.eligible[sh.Key] = true
	}
	e.stats.EligibleEvents = len(e.eligible)
	e.logger.Debugw("Loaded release eligibility", logger.FieldCount, len(e.eligible))
	return nil
}

func (e *Extractor) isEvent(class string) bool {
	return e.src.Schema().IsA(class, e.opts.EventClass)
}

// expand admits seeds unconditionally, then walks their references one
// breadth-first level at a time, hydrating each level in a single batch.
func (e *Extractor) expand(ctx context.Context, seeds []store.Shell) error {
	level := make([]store.Shell, 0, len(seeds))
	queued := make(map[instance.Key]bool, len(seeds))
	for _, sh := range seeds {
		if e.slice.Has(sh.Key) || queued[sh.Key] {
			continue
		}
		queued[sh.Key] = true
		e.visited[sh.Key] = true
		delete(e.gated, sh.Key)
		level = append(level, sh)
	}

	for len(level) > 0 {
		e.stats.Levels++
		insts, err := store.Hydrate(ctx, e.src, level)
		if err != nil {
			return errors.Wrap(err, "hydrate closure level")
		}

		next := make(map[instance.Key]struct{})
		for _, inst := range insts {
			e.slice.Add(inst)
			for _, ref := range inst.References() {
				if !e.visited[ref] {
					next[ref] = struct{}{}
				}
			}
		}
		if len(next) == 0 {
			break
		}

		keys := instance.SortKeys(next)
		shells, err := e.src.FetchShells(ctx, keys)
		if err != nil {
			return errors.Wrap(err, "resolve closure frontier")
		}

		level = level[:0:0]
		for _, k := range keys {
			e.visited[k] = true
			sh, ok := shells[k]
			if !ok {
				e.dangling[k] = true
				e.logger.Warnw("Dangling reference",
					logger.FieldTarget, int64(k),
					logger.FieldError, errors.ErrDataIntegrity.Error(),
				)
				continue
			}
			if sh.Class == "" {
				return errors.DataIntegrityf("instance %d has no class", k)
			}
			if !e.src.Schema().Has(sh.Class) {
				e.stats.UnknownClasses++
				e.dangling[k] = true
				e.logger.Warnw("Instance class is not in the source schema",
					logger.FieldKey, int64(k),
					logger.FieldClass, sh.Class,
					logger.FieldError, errors.ErrDataIntegrity.Error(),
				)
				continue
			}
			if e.isEvent(sh.Class) && !e.eligible[k] {
				e.gated[k] = true
				e.logger.Debugw("Event not release-eligible",
					logger.FieldKey, int64(k),
					logger.FieldClass, sh.Class,
				)
				continue
			}
			level = append(level, sh)
		}
		e.logger.Debugw("Closure level expanded",
			logger.FieldPass, e.stats.Levels,
			logger.FieldCount, len(level),
			logger.FieldTotalCount, e.slice.Len(),
		)
	}
	return nil
}

// prune drops every reference that points outside the slice: dangling keys
// and events that failed the release gate.
func (e *Extractor) prune() {
	for _, k := range e.slice.Keys() {
		inst, _ := e.slice.Get(k)
		var pruned int
		for _, ref := range inst.References() {
			if !e.slice.Has(ref) {
				pruned++
			}
		}
		if pruned == 0 {
			continue
		}
		kept := instance.From(inst).Filter(func(attr string, v instance.Value) bool {
			if !v.IsRef() || e.slice.Has(v.Key()) {
				return true
			}
			reason := "gated"
			if e.dangling[v.Key()] {
				reason = "dangling"
			}
			e.logger.Debugw("Pruned reference",
				logger.FieldReferrer, int64(k),
				logger.FieldClass, inst.Class(),
				logger.FieldAttribute, attr,
				logger.FieldTarget, int64(v.Key()),
				"reason", reason,
			)
			e.stats.PrunedReferences++
			return false
		}).Build()
		e.slice.Replace(kept)
	}
}
