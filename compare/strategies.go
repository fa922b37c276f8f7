package compare

import (
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/snapshot"
)

// diffAll collects attributeDiff over several attributes.
func (f *Framework) diffAll(p Pair, out ActionSet, attrs ...string) ActionSet {
	for _, attr := range attrs {
		if a, ok := f.attributeDiff(p, attr); ok {
			out.Add(a)
		}
	}
	return out
}

func (f *Framework) fallback(p Pair) ActionSet {
	return f.diffAll(p, ActionSet{}, "name")
}

func (f *Framework) reactionlikeEvent(p Pair) ActionSet {
	out := f.diffAll(p, ActionSet{}, "input", "output", "catalystActivity", "literatureReference")
	f.summationDiff(p, out)
	f.regulationDiff(p, out)
	return out
}

// pathway compares the pathway's own attributes. Folding in child-event
// changes is the revision detector's job.
func (f *Framework) pathway(p Pair) ActionSet {
	out := f.diffAll(p, ActionSet{}, "hasEvent", "literatureReference")
	f.summationDiff(p, out)
	return out
}

func (f *Framework) physicalEntity(p Pair) ActionSet {
	out := f.diffAll(p, ActionSet{}, "name", "disease", "literatureReference")
	f.summationDiff(p, out)
	return out
}

func (f *Framework) complex(p Pair) ActionSet {
	out := f.physicalEntity(p)
	f.diffAll(p, out, "hasComponent")
	f.indirectDiff(p, out, ContainedComponent, "hasComponent")
	return out
}

func (f *Framework) entitySet(p Pair) ActionSet {
	out := f.physicalEntity(p)
	f.diffAll(p, out, "hasMember", "hasCandidate", "compartment", "species")
	f.indirectDiff(p, out, ContainedMemberOrCandidate, "hasMember", "hasCandidate")
	return out
}

func (f *Framework) polymer(p Pair) ActionSet {
	out := f.physicalEntity(p)
	f.diffAll(p, out, "repeatedUnit")
	f.indirectDiff(p, out, ContainedRepeatedUnit, "repeatedUnit")
	return out
}

// simpleEntity also covers other entities; species is compared only where
// the schema declares it.
func (f *Framework) simpleEntity(p Pair) ActionSet {
	return f.diffAll(p, f.physicalEntity(p), "compartment", "species")
}

func (f *Framework) genomeEncodedEntity(p Pair) ActionSet {
	return f.diffAll(p, f.physicalEntity(p), "compartment", "species")
}

func (f *Framework) sequence(p Pair) ActionSet {
	out := f.genomeEncodedEntity(p)
	return f.diffAll(p, out, "referenceEntity", "startCoordinate", "endCoordinate", "hasModifiedResidue")
}

// drug compares species only when valid for both classes; chemical drugs
// carry none.
func (f *Framework) drug(p Pair) ActionSet {
	return f.diffAll(p, f.physicalEntity(p), "referenceEntity", "species")
}

// indirectDiff recurses one level into instances contained on both sides
// through attrs and emits a single UPDATE(tag) if any of them changed.
func (f *Framework) indirectDiff(p Pair, out ActionSet, tag string, attrs ...string) {
	for _, attr := range attrs {
		if _, ok := f.earlier.Attribute(p.Earlier, attr); !ok {
			continue
		}
		if _, ok := f.later.Attribute(p.Later, attr); !ok {
			continue
		}
		for _, k := range matchedKeys(p.Earlier.RefKeys(attr), p.Later.RefKeys(attr)) {
			if len(f.Changes(f.PairFor(k))) > 0 {
				out.Add(Action{Type: Update, Object: tag})
				return
			}
		}
	}
}

// regulationDiff compares regulation membership by regulator rather than
// by regulation instance.
func (f *Framework) regulationDiff(p Pair, out ActionSet) {
	const attr = "regulatedBy"
	if _, ok := f.earlier.Attribute(p.Earlier, attr); !ok {
		return
	}
	if _, ok := f.later.Attribute(p.Later, attr); !ok {
		return
	}
	added, removed := keyDiff(
		regulators(f.earlier, p.Earlier.RefKeys(attr)),
		regulators(f.later, p.Later.RefKeys(attr)),
	)
	if a, ok := classify(attr, true, added, removed); ok {
		out.Add(a)
	}
}

func regulators(s *snapshot.Snapshot, regulations []instance.Key) []instance.Key {
	var out []instance.Key
	for _, k := range regulations {
		reg, ok := s.Get(k)
		if !ok {
			continue
		}
		out = append(out, reg.RefKeys("regulator")...)
	}
	return out
}

// summationDiff diffs summation membership and, for summations present on
// both sides, their text.
func (f *Framework) summationDiff(p Pair, out ActionSet) {
	const attr = "summation"
	a, ok := f.attributeDiff(p, attr)
	if ok {
		out.Add(a)
	}
	if _, valid := f.later.Attribute(p.Later, attr); !valid {
		return
	}
	if _, valid := f.earlier.Attribute(p.Earlier, attr); !valid {
		return
	}
	for _, k := range matchedKeys(p.Earlier.RefKeys(attr), p.Later.RefKeys(attr)) {
		es, eok := f.earlier.Get(k)
		ls, lok := f.later.Get(k)
		if !eok || !lok {
			continue
		}
		added, removed := diffValues(es.Values("text"), ls.Values("text"))
		if added > 0 || removed > 0 {
			out.Add(Action{Type: Modify, Object: attr})
			return
		}
	}
}
