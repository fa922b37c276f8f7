package instance

import "sort"

// Slice is the slice map: key -> instance, append-only during one pass.
type Slice struct {
	byKey map[Key]*Instance
	order []Key
}

// NewSlice returns an empty slice map.
func NewSlice() *Slice {
	return &Slice{byKey: make(map[Key]*Instance)}
}

// Add inserts an instance. It returns false, leaving the slice unchanged, if
// the key is already present.
func (s *Slice) Add(inst *Instance) bool {
	if _, ok := s.byKey[inst.key]; ok {
		return false
	}
	s.byKey[inst.key] = inst
	s.order = append(s.order, inst.key)
	return true
}

// Replace swaps the instance stored under an existing key. It is used when a
// pass prunes references after the instance was first added.
func (s *Slice) Replace(inst *Instance) bool {
	if _, ok := s.byKey[inst.key]; !ok {
		return false
	}
	s.byKey[inst.key] = inst
	return true
}

// Get looks up an instance by key.
func (s *Slice) Get(k Key) (*Instance, bool) {
	inst, ok := s.byKey[k]
	return inst, ok
}

// Has reports whether the key is in the slice.
func (s *Slice) Has(k Key) bool {
	_, ok := s.byKey[k]
	return ok
}

// Len is the number of instances.
func (s *Slice) Len() int { return len(s.order) }

// Keys returns all keys in ascending order.
func (s *Slice) Keys() []Key {
	keys := make([]Key, len(s.order))
	copy(keys, s.order)
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	return keys
}

// Instances returns all instances ordered by key.
func (s *Slice) Instances() []*Instance {
	keys := s.Keys()
	out := make([]*Instance, len(keys))
	for n, k := range keys {
		out[n] = s.byKey[k]
	}
	return out
}

// CountByClass tallies instances per class.
func (s *Slice) CountByClass() map[string]int {
	counts := make(map[string]int)
	for _, inst := range s.byKey {
		counts[inst.class]++
	}
	return counts
}
