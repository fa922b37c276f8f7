// Package writer commits a slice into a target store whose tables mirror the
// class hierarchy. Instances are written in two phases inside one
// transaction: own rows first, then the references that could not be
// written yet because they are root-level or point at instances still to
// come.
package writer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/revision"
	"github.com/teranos/slice/store"
)

// Release identifies the release being committed.
type Release struct {
	Number int
	Date   string
	RunID  string
}

// Options configure one commit.
type Options struct {
	Release Release
	// Revisions are recorded when the target implements store.Recorder.
	Revisions []revision.Record
}

// Result summarises a commit.
type Result struct {
	Written          int
	Deferred         int
	PrunedReferences int
	SchemaDrift      int
	Revisions        int
	// Assigned maps pending placeholder keys onto the keys the store chose.
	Assigned map[instance.Key]instance.Key
	Duration time.Duration
}

// Writer writes slices into one target store.
type Writer struct {
	target store.Adaptor
	logger *zap.SugaredLogger
}

// New returns a writer for target.
func New(target store.Adaptor, log *zap.SugaredLogger) *Writer {
	return &Writer{target: target, logger: logger.OrNop(log).With(logger.FieldComponent, "writer")}
}

// deferred is one attribute applied in the second phase.
type deferred struct {
	key    instance.Key
	class  string
	attr   string
	values []instance.Value
}

// Validate checks that every class of the slice exists in the target
// schema. It touches nothing.
func (w *Writer) Validate(sl *instance.Slice) error {
	sch := w.target.Schema()
	for class := range sl.CountByClass() {
		if !sch.Has(class) {
			return errors.WithHint(
				errors.Configurationf("class %s is not defined in the target schema", class),
				"apply the source schema to the target with 'slice schema apply'")
		}
	}
	return nil
}

// Commit writes every instance of the slice. Any failure rolls the whole
// commit back and is returned marked as a commit error.
func (w *Writer) Commit(ctx context.Context, sl *instance.Slice, opts Options) (*Result, error) {
	if err := w.Validate(sl); err != nil {
		return nil, err
	}
	start := time.Now()

	transactional := w.target.SupportsTransactions()
	if transactional {
		if err := w.target.StartTransaction(ctx); err != nil {
			return nil, errors.MarkCommit(err, "start slice transaction")
		}
	} else {
		w.logger.Warnw("Target store does not support transactions; a failed commit cannot be rolled back")
	}

	res, err := w.commit(ctx, sl, opts)
	if err != nil {
		if transactional {
			if rbErr := w.target.Rollback(); rbErr != nil {
				err = errors.CombineErrors(err, rbErr)
			}
		}
		w.logger.Errorw("Slice commit failed, rolled back",
			logger.FieldRelease, opts.Release.Number,
			logger.FieldError, err,
		)
		return nil, errors.MarkCommit(err, "commit slice")
	}
	if transactional {
		if err := w.target.Commit(); err != nil {
			return nil, errors.MarkCommit(err, "commit slice transaction")
		}
	}

	res.Duration = time.Since(start)
	w.logger.Infow("Slice committed",
		logger.FieldRelease, opts.Release.Number,
		logger.FieldCount, res.Written,
		"deferred", res.Deferred,
		"pruned", res.PrunedReferences,
		"schema_drift", res.SchemaDrift,
		logger.FieldDurationMS, res.Duration.Milliseconds(),
	)
	return res, nil
}

func (w *Writer) commit(ctx context.Context, sl *instance.Slice, opts Options) (*Result, error) {
	if p, ok := w.target.(store.Provisioner); ok {
		if err := p.Provision(ctx); err != nil {
			return nil, errors.Wrap(err, "provision target")
		}
	}
	sch := w.target.Schema()
	res := &Result{Assigned: make(map[instance.Key]instance.Key)}

	existing, err := w.outsideReferences(ctx, sl)
	if err != nil {
		return nil, err
	}

	keys := writeOrder(sl)
	written := make(map[instance.Key]instance.Key, len(keys))
	resolve := func(k instance.Key) (instance.Key, bool) {
		if got, ok := written[k]; ok {
			return got, true
		}
		return k, existing[k]
	}

	var later []deferred
	for _, k := range keys {
		inst, _ := sl.Get(k)
		values := make(map[string][]instance.Value)

		for _, name := range inst.Attributes() {
			a, ok := sch.Attribute(inst.Class(), name)
			if !ok {
				res.SchemaDrift++
				w.logger.Debugw("Attribute not in target schema, skipped",
					logger.FieldKey, int64(k),
					logger.FieldClass, inst.Class(),
					logger.FieldAttribute, name,
					logger.FieldError, errors.ErrSchemaDrift.Error(),
				)
				continue
			}
			vs := inst.Values(name)
			if !a.IsInstance() {
				values[name] = vs
				continue
			}

			vs = w.dropUnresolvable(inst, name, vs, sl, existing, res)
			if len(vs) == 0 {
				continue
			}
			if sch.IsRootAttribute(a) || !allResolved(vs, resolve) {
				later = append(later, deferred{key: k, class: inst.Class(), attr: name, values: vs})
				continue
			}
			values[name] = resolveAll(vs, resolve)
		}

		got, err := w.target.StoreInstance(ctx, k, inst.Class(), values)
		if err != nil {
			return nil, errors.Wrapf(err, "store %s", inst)
		}
		written[k] = got
		if k.Pending() {
			res.Assigned[k] = got
		}
		res.Written++
	}

	for _, d := range later {
		if !allResolved(d.values, resolve) {
			return nil, errors.DataIntegrityf("deferred %s[%d].%s still has unresolved references", d.class, d.key, d.attr)
		}
		key, _ := resolve(d.key)
		if err := w.target.UpdateInstanceAttribute(ctx, key, d.class, d.attr, resolveAll(d.values, resolve)); err != nil {
			return nil, errors.Wrapf(err, "apply deferred %s[%d].%s", d.class, key, d.attr)
		}
		res.Deferred++
	}

	if rec, ok := w.target.(store.Recorder); ok && opts.Release.Number > 0 {
		if err := rec.RecordRelease(ctx, store.ReleaseRecord{
			Number:        opts.Release.Number,
			Date:          opts.Release.Date,
			RunID:         opts.Release.RunID,
			InstanceCount: res.Written,
		}); err != nil {
			return nil, err
		}
		rows := revisionRows(opts.Revisions, resolve)
		if len(rows) > 0 {
			if err := rec.RecordRevisions(ctx, opts.Release.Number, rows); err != nil {
				return nil, err
			}
		}
		res.Revisions = len(rows)
	}
	return res, nil
}

// outsideReferences checks which referenced keys outside the slice already
// exist in the target.
func (w *Writer) outsideReferences(ctx context.Context, sl *instance.Slice) (map[instance.Key]bool, error) {
	outside := make(map[instance.Key]struct{})
	for _, inst := range sl.Instances() {
		for _, ref := range inst.References() {
			if !sl.Has(ref) {
				outside[ref] = struct{}{}
			}
		}
	}
	if len(outside) == 0 {
		return map[instance.Key]bool{}, nil
	}
	existing, err := w.target.Exists(ctx, instance.SortKeys(outside))
	return existing, errors.Wrap(err, "check references outside the slice")
}

// dropUnresolvable removes references that are neither in the slice nor in
// the target.
func (w *Writer) dropUnresolvable(inst *instance.Instance, attr string, vs []instance.Value, sl *instance.Slice, existing map[instance.Key]bool, res *Result) []instance.Value {
	kept := vs[:0:0]
	for _, v := range vs {
		if sl.Has(v.Key()) || existing[v.Key()] {
			kept = append(kept, v)
			continue
		}
		res.PrunedReferences++
		w.logger.Warnw("Reference outside slice and target, pruned",
			logger.FieldReferrer, int64(inst.Key()),
			logger.FieldClass, inst.Class(),
			logger.FieldAttribute, attr,
			logger.FieldTarget, int64(v.Key()),
			logger.FieldError, errors.ErrDataIntegrity.Error(),
		)
	}
	return kept
}

// writeOrder puts store-assigned keys first in ascending order, then
// pending placeholders from -1 downwards.
func writeOrder(sl *instance.Slice) []instance.Key {
	var assigned, pending []instance.Key
	for _, k := range sl.Keys() {
		if k.Pending() {
			pending = append(pending, k)
		} else {
			assigned = append(assigned, k)
		}
	}
	for i, j := 0, len(pending)-1; i < j; i, j = i+1, j-1 {
		pending[i], pending[j] = pending[j], pending[i]
	}
	return append(assigned, pending...)
}

func allResolved(vs []instance.Value, resolve func(instance.Key) (instance.Key, bool)) bool {
	for _, v := range vs {
		if _, ok := resolve(v.Key()); !ok {
			return false
		}
	}
	return true
}

func resolveAll(vs []instance.Value, resolve func(instance.Key) (instance.Key, bool)) []instance.Value {
	out := make([]instance.Value, len(vs))
	for n, v := range vs {
		k, _ := resolve(v.Key())
		out[n] = instance.Ref(k)
	}
	return out
}

func revisionRows(records []revision.Record, resolve func(instance.Key) (instance.Key, bool)) []store.RevisionRow {
	var rows []store.RevisionRow
	for _, rec := range records {
		key, ok := resolve(rec.Key)
		if !ok {
			continue
		}
		for _, a := range rec.Actions {
			rows = append(rows, store.RevisionRow{
				Key:          key,
				Class:        rec.Class,
				ActionType:   a.Type.String(),
				ActionObject: a.Object,
			})
		}
	}
	return rows
}
