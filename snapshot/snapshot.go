// Package snapshot pairs a slice map with the schema it was read under.
// Two snapshots (current and previous release) are compared by key; each
// answers attribute-validity questions against its own schema.
package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/schema"
	"github.com/teranos/slice/store"
)

// Snapshot is an immutable view of one release's instances.
type Snapshot struct {
	Label  string
	Slice  *instance.Slice
	Schema *schema.Schema
}

// New wraps a slice.
func New(label string, sl *instance.Slice, sch *schema.Schema) *Snapshot {
	return &Snapshot{Label: label, Slice: sl, Schema: sch}
}

// Get looks up an instance by key.
func (s *Snapshot) Get(k instance.Key) (*instance.Instance, bool) {
	if s == nil || s.Slice == nil {
		return nil, false
	}
	return s.Slice.Get(k)
}

// Attribute returns the attribute if valid for the instance's class in this
// snapshot's schema.
func (s *Snapshot) Attribute(inst *instance.Instance, name string) (*schema.Attribute, bool) {
	if inst == nil {
		return nil, false
	}
	return s.Schema.Attribute(inst.Class(), name)
}

// IsA reports whether the instance's class is ancestor or a subclass of it.
func (s *Snapshot) IsA(inst *instance.Instance, ancestor string) bool {
	return inst != nil && s.Schema.IsA(inst.Class(), ancestor)
}

// Load reads every instance of a store into a snapshot. It is used for the
// previous release, whose store holds exactly one slice.
func Load(ctx context.Context, label string, r store.Reader, batch int, log *zap.SugaredLogger) (*Snapshot, error) {
	log = logger.OrNop(log)
	start := time.Now()
	sch := r.Schema()

	shells, err := r.FetchInstancesByClass(ctx, sch.Root())
	if err != nil {
		return nil, errors.Wrapf(err, "list %s instances", label)
	}
	if batch <= 0 {
		batch = len(shells)
	}

	sl := instance.NewSlice()
	for startAt := 0; startAt < len(shells); startAt += batch {
		end := startAt + batch
		if end > len(shells) {
			end = len(shells)
		}
		insts, err := store.Hydrate(ctx, r, shells[startAt:end])
		if err != nil {
			return nil, errors.Wrapf(err, "hydrate %s snapshot", label)
		}
		for _, inst := range insts {
			sl.Add(inst)
		}
	}

	log.Infow("Snapshot loaded",
		"snapshot", label,
		logger.FieldCount, sl.Len(),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return New(label, sl, sch), nil
}
