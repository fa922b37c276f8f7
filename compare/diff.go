package compare

import "github.com/teranos/slice/instance"

// attributeDiff compares one attribute across the pair. It yields nothing
// when either side is missing, when the attribute is not valid for either
// side's class in that side's schema, or when the two schemas disagree on
// whether it holds references.
func (f *Framework) attributeDiff(p Pair, attr string) (Action, bool) {
	if p.Earlier == nil || p.Later == nil {
		return Action{}, false
	}
	ea, ok := f.earlier.Attribute(p.Earlier, attr)
	if !ok {
		return Action{}, false
	}
	la, ok := f.later.Attribute(p.Later, attr)
	if !ok || ea.IsInstance() != la.IsInstance() {
		return Action{}, false
	}
	added, removed := diffValues(p.Earlier.Values(attr), p.Later.Values(attr))
	return classify(attr, la.IsInstance(), added, removed)
}

// classify maps added/removed counts onto an action.
func classify(object string, references bool, added, removed int) (Action, bool) {
	switch {
	case added > 0 && removed > 0:
		if references {
			return Action{Type: AddRemove, Object: object}, true
		}
		return Action{Type: Modify, Object: object}, true
	case added > 0:
		return Action{Type: Add, Object: object}, true
	case removed > 0:
		return Action{Type: Remove, Object: object}, true
	}
	return Action{}, false
}

// diffValues counts unmatched values on each side. References match by key
// and scalars by text; repeated values are matched one for one.
func diffValues(earlier, later []instance.Value) (added, removed int) {
	counts := make(map[string]int, len(earlier))
	for _, v := range earlier {
		counts[matchKey(v)]++
	}
	for _, v := range later {
		k := matchKey(v)
		if counts[k] > 0 {
			counts[k]--
			continue
		}
		added++
	}
	for _, n := range counts {
		removed += n
	}
	return added, removed
}

func matchKey(v instance.Value) string {
	if v.IsRef() {
		return "#" + v.Key().String()
	}
	return "=" + v.Text()
}

// keyDiff is diffValues over plain key lists.
func keyDiff(earlier, later []instance.Key) (added, removed int) {
	return diffValues(refs(earlier), refs(later))
}

func refs(keys []instance.Key) []instance.Value {
	out := make([]instance.Value, len(keys))
	for n, k := range keys {
		out[n] = instance.Ref(k)
	}
	return out
}

// matchedKeys returns the keys present on both sides, in later order.
func matchedKeys(earlier, later []instance.Key) []instance.Key {
	in := make(map[instance.Key]bool, len(earlier))
	for _, k := range earlier {
		in[k] = true
	}
	var out []instance.Key
	seen := make(map[instance.Key]bool)
	for _, k := range later {
		if in[k] && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}
