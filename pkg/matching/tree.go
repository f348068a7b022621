package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
)

// treeComparison walks expected and actual trees in step, selecting for every node the
// most specific rule group registered at or above it.
type treeComparison struct {
	rules  *matchingrules.Category
	config Config
	kind   Kind
}

// CompareTree compares two tree values under the body rules and reports KindBody
// mismatches.
func CompareTree(expected, actual body.Value, rules *matchingrules.Category, config Config) []Mismatch {
	c := &treeComparison{rules: rules, config: config, kind: KindBody}
	return c.compare(matchingrules.Root(), expected, actual)
}

func (c *treeComparison) mismatch(location []matchingrules.Segment, expected, actual body.Value, description string) Mismatch {
	return Mismatch{
		Kind:        c.kind,
		Path:        matchingrules.FormatLocation(location),
		Expected:    expected.String(),
		Actual:      actual.String(),
		Description: description,
	}
}

// ruleAt returns the best group for the location and whether it is registered at the
// location itself.
func (c *treeComparison) ruleAt(location []matchingrules.Segment) (matchingrules.RuleGroup, bool, bool) {
	match, ok := c.rules.Best(location)
	if !ok {
		return matchingrules.RuleGroup{}, false, false
	}
	tokens, err := matchingrules.ParsePath(match.Path)
	return match.Group, true, err == nil && len(tokens) == len(location)
}

func (c *treeComparison) compare(location []matchingrules.Segment, expected, actual body.Value) []Mismatch {
	group, ruled, atNode := c.ruleAt(location)
	// An equality rule compares the whole container, keys and lengths included.
	if ruled && atNode && isContainer(expected) && hasRule(group, matchingrules.KindEquality) {
		return c.applyGroup(location, group, expected, actual, atNode)
	}
	switch {
	case expected.Kind() == body.KindObject && actual.Kind() == body.KindObject:
		return c.compareObjects(location, expected, actual, group, ruled, atNode)
	case expected.Kind() == body.KindArray && actual.Kind() == body.KindArray:
		return c.compareArrays(location, expected, actual, group, ruled, atNode)
	case ruled:
		return c.applyGroup(location, group, expected, actual, atNode)
	}
	return c.equality(location, expected, actual)
}

func hasRule(g matchingrules.RuleGroup, kind matchingrules.Kind) bool {
	for _, r := range g.Rules {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

func (c *treeComparison) applyGroup(location []matchingrules.Segment, g matchingrules.RuleGroup, expected, actual body.Value, atNode bool) []Mismatch {
	var out []Mismatch
	for _, d := range checkGroup(g, expected, actual, atNode) {
		out = append(out, c.mismatch(location, expected, actual, d))
	}
	return out
}

func (c *treeComparison) equality(location []matchingrules.Segment, expected, actual body.Value) []Mismatch {
	if expected.Equal(actual) {
		return nil
	}
	var description string
	if expected.Kind() != actual.Kind() {
		description = fmt.Sprintf("Type mismatch: Expected %s %s but received %s %s", typeOf(expected), valueOf(expected), typeOf(actual), valueOf(actual))
	} else {
		description = fmt.Sprintf("Expected %s (%s) but received %s (%s)", valueOf(expected), typeOf(expected), valueOf(actual), typeOf(actual))
	}
	return []Mismatch{c.mismatch(location, expected, actual, description)}
}

func (c *treeComparison) compareObjects(location []matchingrules.Segment, expected, actual body.Value, g matchingrules.RuleGroup, ruled, atNode bool) []Mismatch {
	var out []Mismatch
	if ruled {
		out = append(out, c.applyGroup(location, g, expected, actual, atNode)...)
	}

	if c.wildcardKeys(location) {
		return append(out, c.compareAnyKeys(location, expected, actual)...)
	}

	var missing []string
	for _, k := range expected.Keys() {
		if _, ok := actual.Get(k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		out = append(out, c.mismatch(location, expected, actual,
			"Actual map is missing the following keys: "+strings.Join(missing, ", ")))
	}
	if c.config.StrictObjects {
		var extra []string
		for _, k := range actual.Keys() {
			if _, ok := expected.Get(k); !ok {
				extra = append(extra, k)
			}
		}
		if len(extra) > 0 {
			out = append(out, c.mismatch(location, expected, actual, fmt.Sprintf(
				"Expected a map with keys [%s] but received one with keys [%s]",
				strings.Join(sortedCopy(expected.Keys()), ", "), strings.Join(sortedCopy(actual.Keys()), ", "))))
		}
	}

	for _, f := range expected.Fields() {
		if value, ok := actual.Get(f.Key); ok {
			out = append(out, c.compare(matchingrules.WithField(location, f.Key), f.Value, value)...)
		}
	}
	return out
}

// wildcardKeys reports whether a V2 "parent.*" rule lets the object carry any keys.
func (c *treeComparison) wildcardKeys(location []matchingrules.Segment) bool {
	if !c.config.WildcardKeys || c.config.version() != matchingrules.V2 {
		return false
	}
	_, ok := c.rules.Group(matchingrules.AnyKeyPath(matchingrules.FormatLocation(location)))
	return ok
}

// compareAnyKeys compares every actual entry with the expected entry of the same key, or
// with the first expected entry when the key is not declared.
func (c *treeComparison) compareAnyKeys(location []matchingrules.Segment, expected, actual body.Value) []Mismatch {
	fields := expected.Fields()
	if len(fields) == 0 {
		return nil
	}
	var out []Mismatch
	for _, f := range actual.Fields() {
		want, ok := expected.Get(f.Key)
		if !ok {
			want = fields[0].Value
		}
		out = append(out, c.compare(matchingrules.WithField(location, f.Key), want, f.Value)...)
	}
	return out
}

func (c *treeComparison) compareArrays(location []matchingrules.Segment, expected, actual body.Value, g matchingrules.RuleGroup, ruled, atNode bool) []Mismatch {
	if !ruled {
		return c.compareByPosition(location, expected, actual)
	}
	if atNode {
		for _, r := range g.Rules {
			if r.Kind == matchingrules.KindArrayContains {
				return c.arrayContains(location, r, expected, actual)
			}
		}
	}

	out := c.applyGroup(location, g, expected, actual, atNode)
	if expected.Len() == 0 {
		return out
	}
	// Element rules apply to every actual element, not only to the declared examples.
	for i, item := range actual.Items() {
		want := expected.Index(0)
		if i < expected.Len() {
			want = expected.Index(i)
		}
		out = append(out, c.compare(matchingrules.WithIndex(location, i), want, item)...)
	}
	return out
}

func (c *treeComparison) compareByPosition(location []matchingrules.Segment, expected, actual body.Value) []Mismatch {
	var out []Mismatch
	n := expected.Len()
	if actual.Len() < n {
		n = actual.Len()
	}
	for i := 0; i < n; i++ {
		out = append(out, c.compare(matchingrules.WithIndex(location, i), expected.Index(i), actual.Index(i))...)
	}
	if expected.Len() != actual.Len() {
		out = append(out, c.mismatch(location, expected, actual, fmt.Sprintf(
			"Expected a list with %d elements but received %d elements", expected.Len(), actual.Len())))
	}
	return out
}

// arrayContains looks for each variant in the actual list. An actual element is taken by
// the first variant it satisfies and is not considered for later ones.
func (c *treeComparison) arrayContains(location []matchingrules.Segment, rule matchingrules.Rule, expected, actual body.Value) []Mismatch {
	var out []Mismatch
	used := make([]bool, actual.Len())
	for _, variant := range rule.Variants {
		if variant.Index < 0 || variant.Index >= expected.Len() {
			out = append(out, c.mismatch(location, expected, actual,
				fmt.Sprintf("Variant index %d is outside the expected list of %d elements", variant.Index, expected.Len())))
			continue
		}
		want := expected.Index(variant.Index)
		sub := &treeComparison{rules: variant.Rules, config: c.config, kind: c.kind}
		found := false
		for i, item := range actual.Items() {
			if used[i] {
				continue
			}
			if len(sub.compare(matchingrules.Root(), want, item)) == 0 {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			out = append(out, c.mismatch(matchingrules.WithIndex(location, variant.Index), want, actual,
				fmt.Sprintf("Variant at index %d (%s) was not found in the actual list", variant.Index, want)))
		}
	}
	return out
}

func sortedCopy(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}
