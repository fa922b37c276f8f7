package compare

import (
	"sort"
)

// ActionType classifies one detected difference.
type ActionType int

const (
	Add ActionType = iota
	Remove
	AddRemove
	Modify
	Update
)

var actionTypeNames = [...]string{"ADD", "REMOVE", "ADD_REMOVE", "MODIFY", "UPDATE"}

func (t ActionType) String() string {
	if t < 0 || int(t) >= len(actionTypeNames) {
		return "UNKNOWN"
	}
	return actionTypeNames[t]
}

// MarshalText renders the type by name in reports.
func (t ActionType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Propagation tags used as action objects for changes folded up from
// contained instances.
const (
	ContainedRLE               = "containedRLE"
	IndirectRLE                = "indirectRLE"
	ContainedPathway           = "containedPathway"
	ContainedComponent         = "containedComponent"
	ContainedMemberOrCandidate = "containedMemberOrCandidate"
	ContainedRepeatedUnit      = "containedRepeatedUnit"
)

// Action is one (type, object) change. Object is an attribute name or a
// propagation tag.
type Action struct {
	Type   ActionType `json:"type" yaml:"type"`
	Object string     `json:"object" yaml:"object"`
}

func (a Action) String() string { return a.Type.String() + "(" + a.Object + ")" }

// Less orders actions by type, then object.
func (a Action) Less(b Action) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.Object < b.Object
}

// ActionSet is an unordered set of actions.
type ActionSet map[Action]struct{}

// NewActionSet builds a set from actions.
func NewActionSet(actions ...Action) ActionSet {
	s := make(ActionSet, len(actions))
	s.Add(actions...)
	return s
}

// Add inserts actions.
func (s ActionSet) Add(actions ...Action) {
	for _, a := range actions {
		s[a] = struct{}{}
	}
}

// Merge adds every action of o.
func (s ActionSet) Merge(o ActionSet) {
	for a := range o {
		s[a] = struct{}{}
	}
}

// Has reports membership.
func (s ActionSet) Has(a Action) bool {
	_, ok := s[a]
	return ok
}

// Remove deletes an action.
func (s ActionSet) Remove(a Action) { delete(s, a) }

// Without returns a copy lacking the given actions.
func (s ActionSet) Without(actions ...Action) ActionSet {
	out := make(ActionSet, len(s))
	out.Merge(s)
	for _, a := range actions {
		delete(out, a)
	}
	return out
}

// Sorted returns the actions in deterministic order.
func (s ActionSet) Sorted() []Action {
	out := make([]Action, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
