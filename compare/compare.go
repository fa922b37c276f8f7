// Package compare classifies what changed between two snapshots of the same
// instance. A factory picks one comparison strategy per entity kind from the
// schema class of both sides; each strategy is built from the shared
// attribute-diff primitive.
package compare

import (
	"go.uber.org/zap"

	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/snapshot"
)

// Pair is the same instance as seen in the earlier and the later snapshot.
type Pair struct {
	Earlier *instance.Instance
	Later   *instance.Instance
}

// Kind is the closed set of comparison strategies.
type Kind int

const (
	KindDefault Kind = iota
	KindReactionlikeEvent
	KindPathway
	KindPhysicalEntity
	KindComplex
	KindEntitySet
	KindPolymer
	KindSimpleEntity
	KindOtherEntity
	KindGenomeEncodedEntity
	KindSequence
	KindDrug
)

var kindNames = map[Kind]string{
	KindDefault:             "default",
	KindReactionlikeEvent:   "reactionlike-event",
	KindPathway:             "pathway",
	KindPhysicalEntity:      "physical-entity",
	KindComplex:             "complex",
	KindEntitySet:           "entity-set",
	KindPolymer:             "polymer",
	KindSimpleEntity:        "simple-entity",
	KindOtherEntity:         "other-entity",
	KindGenomeEncodedEntity: "genome-encoded-entity",
	KindSequence:            "sequence",
	KindDrug:                "drug",
}

func (k Kind) String() string { return kindNames[k] }

// Class names that select a strategy. Order matters: the most specific
// class is tried first.
var kindClasses = []struct {
	class string
	kind  Kind
}{
	{"ReactionlikeEvent", KindReactionlikeEvent},
	{"Pathway", KindPathway},
	{"Complex", KindComplex},
	{"EntitySet", KindEntitySet},
	{"Polymer", KindPolymer},
	{"SimpleEntity", KindSimpleEntity},
	{"OtherEntity", KindOtherEntity},
	{"EntityWithAccessionedSequence", KindSequence},
	{"GenomeEncodedEntity", KindGenomeEncodedEntity},
	{"Drug", KindDrug},
	{"PhysicalEntity", KindPhysicalEntity},
}

// KindOf returns the strategy for an instance in its snapshot.
func KindOf(s *snapshot.Snapshot, inst *instance.Instance) Kind {
	for _, kc := range kindClasses {
		if s.IsA(inst, kc.class) {
			return kc.kind
		}
	}
	return KindDefault
}

// Framework compares instances between two snapshots. Results are memoized
// per key, except those computed while a containment cycle was cut short; a
// Framework is bound to one pair of snapshots.
type Framework struct {
	earlier *snapshot.Snapshot
	later   *snapshot.Snapshot
	logger  *zap.SugaredLogger

	memo     map[instance.Key]ActionSet
	visiting map[instance.Key]bool
	// cuts counts cycle-guard hits; a result computed across a hit depends
	// on where the cycle was entered.
	cuts int
}

// New returns a framework comparing earlier against later.
func New(earlier, later *snapshot.Snapshot, log *zap.SugaredLogger) *Framework {
	return &Framework{
		earlier:  earlier,
		later:    later,
		logger:   logger.OrNop(log).With(logger.FieldComponent, "compare"),
		memo:     make(map[instance.Key]ActionSet),
		visiting: make(map[instance.Key]bool),
	}
}

// Earlier returns the earlier snapshot.
func (f *Framework) Earlier() *snapshot.Snapshot { return f.earlier }

// Later returns the later snapshot.
func (f *Framework) Later() *snapshot.Snapshot { return f.later }

// PairFor looks a key up in both snapshots.
func (f *Framework) PairFor(k instance.Key) Pair {
	e, _ := f.earlier.Get(k)
	l, _ := f.later.Get(k)
	return Pair{Earlier: e, Later: l}
}

// Select is the strategy factory: both sides must agree on the kind,
// otherwise the default strategy is used.
func (f *Framework) Select(p Pair) Kind {
	ek := KindOf(f.earlier, p.Earlier)
	lk := KindOf(f.later, p.Later)
	if ek != lk {
		f.logger.Warnw("Comparer kind mismatch, using default comparer",
			logger.FieldKey, int64(p.Later.Key()),
			"earlier_class", p.Earlier.Class(),
			"later_class", p.Later.Class(),
			"earlier_kind", ek.String(),
			"later_kind", lk.String(),
		)
		return KindDefault
	}
	return ek
}

// Changes returns the actions distinguishing the two sides of the pair.
// A pair missing either side yields an empty set.
func (f *Framework) Changes(p Pair) ActionSet {
	if p.Earlier == nil || p.Later == nil {
		return ActionSet{}
	}
	k := p.Later.Key()
	if cached, ok := f.memo[k]; ok {
		return cached
	}
	if f.visiting[k] {
		// containment cycle; the outer call reports this instance
		f.cuts++
		return ActionSet{}
	}
	f.visiting[k] = true
	defer delete(f.visiting, k)
	cuts := f.cuts

	var out ActionSet
	switch kind := f.Select(p); kind {
	case KindReactionlikeEvent:
		out = f.reactionlikeEvent(p)
	case KindPathway:
		out = f.pathway(p)
	case KindComplex:
		out = f.complex(p)
	case KindEntitySet:
		out = f.entitySet(p)
	case KindPolymer:
		out = f.polymer(p)
	case KindSimpleEntity, KindOtherEntity:
		out = f.simpleEntity(p)
	case KindGenomeEncodedEntity:
		out = f.genomeEncodedEntity(p)
	case KindSequence:
		out = f.sequence(p)
	case KindDrug:
		out = f.drug(p)
	case KindPhysicalEntity:
		out = f.physicalEntity(p)
	default:
		out = f.fallback(p)
	}
	if f.cuts == cuts {
		f.memo[k] = out
	}
	return out
}
