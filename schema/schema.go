// Package schema holds the static class metadata of a store: a single-rooted
// class hierarchy, the attributes each class owns, and the helpers that
// answer "is this attribute valid for that class" for the closure extractor,
// the comparers and the writer.
//
// Source and target stores carry their own schema and the two may diverge
// across releases, so every consumer asks the schema of the snapshot it is
// looking at.
package schema

import (
	"sort"

	"github.com/teranos/slice/errors"
)

// ValueType is the kind of value an attribute holds.
type ValueType string

const (
	TypeString   ValueType = "string"
	TypeInteger  ValueType = "integer"
	TypeFloat    ValueType = "float"
	TypeBoolean  ValueType = "boolean"
	TypeDate     ValueType = "date"
	TypeInstance ValueType = "instance"
)

// Valid reports whether t is a known value type.
func (t ValueType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDate, TypeInstance:
		return true
	}
	return false
}

// Attribute describes one attribute as declared by its owning class.
type Attribute struct {
	Name     string
	Owner    string
	Type     ValueType
	Multiple bool
	// Defining marks attributes used for display-name generation.
	Defining bool
	// Allowed lists the classes an instance-typed attribute may point to.
	Allowed []string
}

// IsInstance reports whether the attribute holds references.
func (a *Attribute) IsInstance() bool { return a.Type == TypeInstance }

// Class is one node of the hierarchy.
type Class struct {
	Name     string
	Parent   string
	Abstract bool
	Own      []*Attribute
}

// Schema is an immutable, validated class hierarchy.
type Schema struct {
	version  string
	root     string
	order    []string
	classes  map[string]*Class
	children map[string][]string
	// resolved per-class attribute tables, root-first
	attrs map[string][]*Attribute
	index map[string]map[string]*Attribute
}

// New validates the classes and builds a schema. Classes may be given in any
// order; exactly one must have no parent.
func New(version string, classes ...*Class) (*Schema, error) {
	s := &Schema{
		version:  version,
		classes:  make(map[string]*Class, len(classes)),
		children: make(map[string][]string),
		attrs:    make(map[string][]*Attribute, len(classes)),
		index:    make(map[string]map[string]*Attribute, len(classes)),
	}
	for _, c := range classes {
		if c.Name == "" {
			return nil, errors.New("class with empty name")
		}
		if _, dup := s.classes[c.Name]; dup {
			return nil, errors.Newf("class %s defined twice", c.Name)
		}
		s.classes[c.Name] = c
		s.order = append(s.order, c.Name)
		for _, a := range c.Own {
			a.Owner = c.Name
			if !a.Type.Valid() {
				return nil, errors.Newf("attribute %s.%s has unknown type %q", c.Name, a.Name, a.Type)
			}
		}
	}
	for _, name := range s.order {
		c := s.classes[name]
		if c.Parent == "" {
			if s.root != "" {
				return nil, errors.Newf("schema has two root classes: %s and %s", s.root, c.Name)
			}
			s.root = c.Name
			continue
		}
		if _, ok := s.classes[c.Parent]; !ok {
			return nil, errors.Newf("class %s has unknown parent %s", c.Name, c.Parent)
		}
		s.children[c.Parent] = append(s.children[c.Parent], c.Name)
	}
	if s.root == "" {
		return nil, errors.New("schema has no root class")
	}
	for _, name := range s.order {
		chain, err := s.chain(name)
		if err != nil {
			return nil, err
		}
		idx := make(map[string]*Attribute)
		var all []*Attribute
		for _, ancestor := range chain {
			for _, a := range s.classes[ancestor].Own {
				if prev, dup := idx[a.Name]; dup {
					return nil, errors.Newf("attribute %s on %s shadows the one declared on %s", a.Name, ancestor, prev.Owner)
				}
				idx[a.Name] = a
				all = append(all, a)
			}
		}
		s.attrs[name] = all
		s.index[name] = idx
	}
	return s, nil
}

// chain walks up to the root and returns the ancestors root-first, self last.
func (s *Schema) chain(name string) ([]string, error) {
	var rev []string
	seen := make(map[string]bool)
	for cur := name; cur != ""; cur = s.classes[cur].Parent {
		if seen[cur] {
			return nil, errors.Newf("class hierarchy cycle through %s", cur)
		}
		seen[cur] = true
		rev = append(rev, cur)
	}
	out := make([]string, len(rev))
	for n, c := range rev {
		out[len(rev)-1-n] = c
	}
	return out, nil
}

// Version returns the schema's declared version.
func (s *Schema) Version() string { return s.version }

// Root returns the name of the root class.
func (s *Schema) Root() string { return s.root }

// Class looks up a class.
func (s *Schema) Class(name string) (*Class, bool) {
	c, ok := s.classes[name]
	return c, ok
}

// Has reports whether a class exists.
func (s *Schema) Has(name string) bool {
	_, ok := s.classes[name]
	return ok
}

// Classes returns the classes in definition order.
func (s *Schema) Classes() []*Class {
	out := make([]*Class, len(s.order))
	for n, name := range s.order {
		out[n] = s.classes[name]
	}
	return out
}

// Ancestors returns the class chain root-first, ending with the class itself.
// Unknown classes yield nil.
func (s *Schema) Ancestors(name string) []string {
	if !s.Has(name) {
		return nil
	}
	chain, _ := s.chain(name)
	return chain
}

// IsA reports whether name is ancestor or one of its descendants.
func (s *Schema) IsA(name, ancestor string) bool {
	if !s.Has(name) {
		return false
	}
	for cur := name; cur != ""; cur = s.classes[cur].Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

// Subclasses returns name and all of its descendants, sorted.
func (s *Schema) Subclasses(name string) []string {
	if !s.Has(name) {
		return nil
	}
	var out []string
	stack := []string{name}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		stack = append(stack, s.children[cur]...)
	}
	sort.Strings(out)
	return out
}

// Attribute returns the attribute if it is valid for the class, whether
// declared on the class or inherited.
func (s *Schema) Attribute(class, name string) (*Attribute, bool) {
	a, ok := s.index[class][name]
	return a, ok
}

// Valid reports whether the attribute is valid for the class.
func (s *Schema) Valid(class, name string) bool {
	_, ok := s.Attribute(class, name)
	return ok
}

// Attributes returns every attribute valid for the class, root class first.
func (s *Schema) Attributes(class string) []*Attribute {
	return s.attrs[class]
}

// OwnAttributes returns the attributes declared by the class itself.
func (s *Schema) OwnAttributes(class string) []*Attribute {
	c, ok := s.classes[class]
	if !ok {
		return nil
	}
	return c.Own
}

// IsRootAttribute reports whether the attribute is declared on the root class.
func (s *Schema) IsRootAttribute(a *Attribute) bool {
	return a.Owner == s.root
}
