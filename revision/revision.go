// Package revision walks the event hierarchy of the current release and
// reports, per instance, what changed since the previous release. Changes
// of contained events are folded into their parent pathways as propagation
// marks instead of being repeated at every level.
package revision

import (
	"sort"

	"go.uber.org/zap"

	"github.com/teranos/slice/compare"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/snapshot"
)

// Record is the change set of one instance.
type Record struct {
	Key     instance.Key     `json:"key" yaml:"key"`
	Class   string           `json:"class" yaml:"class"`
	Name    string           `json:"name,omitempty" yaml:"name,omitempty"`
	Actions []compare.Action `json:"actions" yaml:"actions"`
}

// Detector runs one detection pass between two snapshots.
type Detector struct {
	cmp    *compare.Framework
	logger *zap.SugaredLogger

	sets     map[instance.Key]compare.ActionSet
	visiting map[instance.Key]bool
}

// New returns a detector comparing previous against current.
func New(previous, current *snapshot.Snapshot, log *zap.SugaredLogger) *Detector {
	log = logger.OrNop(log).With(logger.FieldComponent, "revision")
	return &Detector{
		cmp:      compare.New(previous, current, log),
		logger:   log,
		sets:     make(map[instance.Key]compare.ActionSet),
		visiting: make(map[instance.Key]bool),
	}
}

// Detect walks each root and returns one record per visited event with a
// non-empty change set, sorted by key.
func (d *Detector) Detect(roots []instance.Key) []Record {
	for _, k := range roots {
		d.changes(k)
	}

	current := d.cmp.Later()
	var out []Record
	for k, set := range d.sets {
		if len(set) == 0 {
			continue
		}
		inst, _ := current.Get(k)
		rec := Record{Key: k, Class: inst.Class(), Actions: set.Sorted()}
		if v, ok := inst.First("name"); ok {
			rec.Name = v.Text()
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	d.logger.Infow("Revision detection complete",
		logger.FieldCount, len(out),
		logger.FieldTotalCount, len(d.sets),
	)
	return out
}

// Changes returns the folded change set of one event, detecting it first if
// needed. An event missing from either snapshot has no change set.
func (d *Detector) Changes(k instance.Key) compare.ActionSet {
	return d.changes(k)
}

func (d *Detector) changes(k instance.Key) compare.ActionSet {
	if set, ok := d.sets[k]; ok {
		return set
	}
	pair := d.cmp.PairFor(k)
	if pair.Earlier == nil || pair.Later == nil {
		return nil
	}
	if d.visiting[k] {
		return nil
	}
	d.visiting[k] = true
	defer delete(d.visiting, k)

	var set compare.ActionSet
	if compare.KindOf(d.cmp.Later(), pair.Later) == compare.KindPathway &&
		compare.KindOf(d.cmp.Earlier(), pair.Earlier) == compare.KindPathway {
		set = d.pathway(pair)
	} else {
		set = d.cmp.Changes(pair)
	}
	d.sets[k] = set
	return set
}

// pathway folds child-event changes into propagation marks and adds the
// pathway's own attribute changes. Children without a previous counterpart
// are not diffed; their arrival shows up as hasEvent ADD.
func (d *Detector) pathway(pair compare.Pair) compare.ActionSet {
	out := compare.ActionSet{}
	later := d.cmp.Later()
	seen := make(map[instance.Key]bool)

	for _, child := range pair.Later.RefKeys("hasEvent") {
		if seen[child] {
			continue
		}
		seen[child] = true

		childSet := d.changes(child)
		if len(childSet) == 0 {
			continue
		}
		inst, _ := later.Get(child)
		switch compare.KindOf(later, inst) {
		case compare.KindReactionlikeEvent:
			out.Add(compare.Action{Type: compare.Update, Object: compare.ContainedRLE})
		case compare.KindPathway:
			rle := []compare.Action{
				{Type: compare.Update, Object: compare.ContainedRLE},
				{Type: compare.Update, Object: compare.IndirectRLE},
			}
			if childSet.Has(rle[0]) || childSet.Has(rle[1]) {
				out.Add(compare.Action{Type: compare.Update, Object: compare.IndirectRLE})
			}
			if len(childSet.Without(rle...)) > 0 {
				out.Add(compare.Action{Type: compare.Update, Object: compare.ContainedPathway})
			}
		default:
			out.Add(compare.Action{Type: compare.Update, Object: compare.ContainedPathway})
		}
	}

	out.Merge(d.cmp.Changes(pair))
	return out
}
