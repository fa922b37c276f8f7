package closure

import (
	"context"

	"github.com/teranos/slice/errors"
	"github.com/teranos/slice/instance"
	"github.com/teranos/slice/logger"
	"github.com/teranos/slice/store"
)

// Rule admits instances of Class whose Attribute references any instance
// already in the slice.
type Rule struct {
	Class     string `mapstructure:"class"`
	Attribute string `mapstructure:"attribute"`
}

// DefaultSatellites are the reverse-inclusion rules for the pathway schema.
func DefaultSatellites() []Rule {
	return []Rule{
		{Class: "Regulation", Attribute: "regulatedEntity"},
		{Class: "ReactionCoordinates", Attribute: "locatedEvent"},
		{Class: "ConcurrentEventSet", Attribute: "concurrentEvents"},
		{Class: "PathwayDiagram", Attribute: "representedPathway"},
	}
}

// runSatellites applies every rule, closes over what they admitted, and
// repeats until a full pass admits nothing.
func (e *Extractor) runSatellites(ctx context.Context) error {
	rules := e.usableRules()
	if len(rules) == 0 {
		return nil
	}
	for {
		e.stats.SatellitePasses++
		var admitted []store.Shell
		for _, rule := range rules {
			shells, err := e.matchRule(ctx, rule)
			if err != nil {
				return errors.Wrapf(err, "satellite rule %s.%s", rule.Class, rule.Attribute)
			}
			admitted = append(admitted, shells...)
		}
		if len(admitted) == 0 {
			return nil
		}
		before := e.slice.Len()
		if err := e.expand(ctx, admitted); err != nil {
			return err
		}
		e.stats.SatelliteAdditions += e.slice.Len() - before
		e.logger.Debugw("Satellite pass",
			logger.FieldPass, e.stats.SatellitePasses,
			logger.FieldCount, len(admitted),
			logger.FieldTotalCount, e.slice.Len(),
		)
	}
}

// usableRules drops rules the source schema cannot evaluate.
func (e *Extractor) usableRules() []Rule {
	sch := e.src.Schema()
	var out []Rule
	for _, r := range e.opts.Satellites {
		a, ok := sch.Attribute(r.Class, r.Attribute)
		if !ok || !a.IsInstance() {
			e.logger.Warnw("Skipping satellite rule not valid in the source schema",
				logger.FieldRule, r.Class+"."+r.Attribute,
				logger.FieldError, errors.ErrSchemaDrift.Error(),
			)
			continue
		}
		out = append(out, r)
	}
	return out
}

// matchRule returns instances of the rule's class, not yet in the slice,
// with at least one rule-attribute value inside the slice.
func (e *Extractor) matchRule(ctx context.Context, rule Rule) ([]store.Shell, error) {
	candidates, err := e.src.FetchInstancesByClass(ctx, rule.Class)
	if err != nil {
		return nil, err
	}
	pending := candidates[:0:0]
	for _, sh := range candidates {
		if !e.slice.Has(sh.Key) {
			pending = append(pending, sh)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	values, err := e.src.LoadAttributeValues(ctx, pending, rule.Attribute)
	if err != nil {
		return nil, err
	}

	var out []store.Shell
	for _, sh := range pending {
		if pointsInto(values[sh.Key], e.slice) {
			out = append(out, sh)
		}
	}
	return out, nil
}

func pointsInto(values []instance.Value, s *instance.Slice) bool {
	for _, v := range values {
		if v.IsRef() && s.Has(v.Key()) {
			return true
		}
	}
	return false
}
