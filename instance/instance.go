// Package instance is the in-memory model of the knowledge graph: typed
// instances identified by a stable integer key, and the slice map that a
// closure pass builds from them.
//
// Instances are immutable once built. Each snapshot (current source, previous
// release) is loaded independently, so two *Instance values with the same Key
// are the same entity in different snapshots; compare keys, never pointers.
package instance

import (
	"fmt"
	"sort"
	"strconv"
)

// Key is the stable identity of an instance. Zero means unassigned; negative
// keys are local placeholders for instances that the target store has not
// assigned an identifier to yet.
type Key int64

// Pending reports whether the key still needs a store-assigned identifier.
func (k Key) Pending() bool { return k <= 0 }

func (k Key) String() string { return strconv.FormatInt(int64(k), 10) }

// Value is one element of an attribute's value list: either a reference to
// another instance or a scalar (string, int64, float64 or bool; dates are
// carried as text).
type Value struct {
	ref    Key
	scalar interface{}
}

// Ref builds an instance-typed value.
func Ref(k Key) Value { return Value{ref: k} }

// Scalar builds a scalar value. Integer kinds are normalised to int64.
func Scalar(v interface{}) Value {
	switch n := v.(type) {
	case int:
		return Value{scalar: int64(n)}
	case int32:
		return Value{scalar: int64(n)}
	case []byte:
		return Value{scalar: string(n)}
	}
	return Value{scalar: v}
}

// IsRef reports whether the value references an instance.
func (v Value) IsRef() bool { return v.ref != 0 }

// Key returns the referenced key, or 0 for scalars.
func (v Value) Key() Key { return v.ref }

// Scalar returns the scalar payload, or nil for references.
func (v Value) Scalar() interface{} { return v.scalar }

// Text renders a scalar value as a comparable string.
func (v Value) Text() string {
	if v.IsRef() {
		return "#" + v.ref.String()
	}
	switch s := v.scalar.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

// Equal compares two values by key (references) or rendered text (scalars).
func (v Value) Equal(o Value) bool {
	if v.IsRef() || o.IsRef() {
		return v.ref == o.ref
	}
	return v.Text() == o.Text()
}

func (v Value) String() string { return v.Text() }

// Instance is a fully hydrated, immutable graph node.
type Instance struct {
	key   Key
	class string
	names []string
	attrs map[string][]Value
}

// Key returns the instance's stable key.
func (i *Instance) Key() Key { return i.key }

// Class returns the instance's schema class name.
func (i *Instance) Class() string { return i.class }

// Has reports whether the attribute was hydrated for this instance.
func (i *Instance) Has(name string) bool {
	_, ok := i.attrs[name]
	return ok
}

// Values returns a copy of an attribute's values in stored order.
func (i *Instance) Values(name string) []Value {
	vs := i.attrs[name]
	if len(vs) == 0 {
		return nil
	}
	out := make([]Value, len(vs))
	copy(out, vs)
	return out
}

// First returns the first value of an attribute.
func (i *Instance) First(name string) (Value, bool) {
	vs := i.attrs[name]
	if len(vs) == 0 {
		return Value{}, false
	}
	return vs[0], true
}

// RefKeys returns the keys referenced by an attribute, in order.
func (i *Instance) RefKeys(name string) []Key {
	var keys []Key
	for _, v := range i.attrs[name] {
		if v.IsRef() {
			keys = append(keys, v.ref)
		}
	}
	return keys
}

// Attributes returns the hydrated attribute names in insertion order.
func (i *Instance) Attributes() []string {
	out := make([]string, len(i.names))
	copy(out, i.names)
	return out
}

// References returns every distinct key this instance points to, sorted.
func (i *Instance) References() []Key {
	seen := make(map[Key]struct{})
	for _, vs := range i.attrs {
		for _, v := range vs {
			if v.IsRef() {
				seen[v.ref] = struct{}{}
			}
		}
	}
	return SortKeys(seen)
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s[%d]", i.class, i.key)
}

// Builder assembles an Instance. A Builder must not be used after Build.
type Builder struct {
	inst *Instance
}

// NewBuilder starts an instance with the given key and class.
func NewBuilder(key Key, class string) *Builder {
	return &Builder{inst: &Instance{key: key, class: class, attrs: make(map[string][]Value)}}
}

// From starts a builder holding a copy of an existing instance.
func From(src *Instance) *Builder {
	b := NewBuilder(src.key, src.class)
	for _, name := range src.names {
		b.Set(name, src.attrs[name]...)
	}
	return b
}

// Set replaces an attribute's values. Setting with no values records the
// attribute as hydrated but empty.
func (b *Builder) Set(name string, values ...Value) *Builder {
	if _, ok := b.inst.attrs[name]; !ok {
		b.inst.names = append(b.inst.names, name)
	}
	vs := make([]Value, len(values))
	copy(vs, values)
	b.inst.attrs[name] = vs
	return b
}

// Refs sets an attribute to a list of references.
func (b *Builder) Refs(name string, keys ...Key) *Builder {
	vs := make([]Value, len(keys))
	for n, k := range keys {
		vs[n] = Ref(k)
	}
	return b.Set(name, vs...)
}

// Scalars sets an attribute to a list of scalars.
func (b *Builder) Scalars(name string, values ...interface{}) *Builder {
	vs := make([]Value, len(values))
	for n, v := range values {
		vs[n] = Scalar(v)
	}
	return b.Set(name, vs...)
}

// Filter drops values of every attribute for which keep returns false.
func (b *Builder) Filter(keep func(attr string, v Value) bool) *Builder {
	for _, name := range b.inst.names {
		vs := b.inst.attrs[name]
		kept := vs[:0:0]
		for _, v := range vs {
			if keep(name, v) {
				kept = append(kept, v)
			}
		}
		b.inst.attrs[name] = kept
	}
	return b
}

// Build returns the finished instance.
func (b *Builder) Build() *Instance {
	inst := b.inst
	b.inst = nil
	return inst
}

// SortKeys returns the keys of a set in ascending order.
func SortKeys(set map[Key]struct{}) []Key {
	keys := make([]Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	return keys
}
