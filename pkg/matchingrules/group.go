package matchingrules

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

type Combine string

const (
	CombineAnd Combine = "AND"
	CombineOr  Combine = "OR"
)

// Category names used in a RuleSet.
const (
	CategoryBody     = "body"
	CategoryHeader   = "header"
	CategoryQuery    = "query"
	CategoryPath     = "path"
	CategoryStatus   = "status"
	CategoryMetadata = "metadata"
)

// RuleGroup is the ordered list of rules registered for one path.
type RuleGroup struct {
	Rules   []Rule
	Combine Combine
}

func (g RuleGroup) IsOr() bool {
	return g.Combine == CombineOr
}

// Category maps paths (body) or names (header, query, metadata) to rule groups. Paths are
// kept sorted so that two categories holding the same rules compare equal.
type Category struct {
	name   string
	paths  []string
	groups map[string]RuleGroup
}

func NewCategory(name string) *Category {
	return &Category{name: name, groups: map[string]RuleGroup{}}
}

func (c *Category) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// usesPaths reports whether the category is keyed by rule paths rather than plain names.
func (c *Category) usesPaths() bool {
	return c.name == CategoryBody
}

// Add appends rules to the group at key. Body keys must be valid rule paths.
func (c *Category) Add(key string, rules ...Rule) error {
	if c.usesPaths() {
		if err := ValidatePath(key); err != nil {
			return err
		}
	}
	group, exists := c.groups[key]
	if !exists {
		c.paths = append(c.paths, key)
		sort.Strings(c.paths)
		group.Combine = CombineAnd
	}
	group.Rules = append(group.Rules, rules...)
	c.groups[key] = group
	return nil
}

// SetCombine changes how the rules at key are combined. The key must already exist.
func (c *Category) SetCombine(key string, combine Combine) error {
	group, exists := c.groups[key]
	if !exists {
		return errors.Errorf("no rules registered at %q in category %s", key, c.name)
	}
	if combine == "" {
		combine = CombineAnd
	}
	group.Combine = combine
	c.groups[key] = group
	return nil
}

func (c *Category) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.paths...)
}

func (c *Category) Group(key string) (RuleGroup, bool) {
	if c == nil {
		return RuleGroup{}, false
	}
	g, ok := c.groups[key]
	return g, ok
}

func (c *Category) IsEmpty() bool {
	return c == nil || len(c.paths) == 0
}

func (c *Category) Len() int {
	if c == nil {
		return 0
	}
	return len(c.paths)
}

// Rules returns every rule in the category in key order.
func (c *Category) Rules() []Rule {
	if c == nil {
		return nil
	}
	var rules []Rule
	for _, p := range c.paths {
		rules = append(rules, c.groups[p].Rules...)
	}
	return rules
}

// Filter returns a copy holding only the keys accepted by keep.
func (c *Category) Filter(keep func(key string) bool) *Category {
	out := NewCategory(c.Name())
	if c == nil {
		return out
	}
	for _, p := range c.paths {
		if keep(p) {
			out.paths = append(out.paths, p)
			out.groups[p] = c.groups[p]
		}
	}
	return out
}

// Merge appends the rules of other into c.
func (c *Category) Merge(other *Category) error {
	if other == nil {
		return nil
	}
	for _, p := range other.paths {
		g := other.groups[p]
		if err := c.Add(p, g.Rules...); err != nil {
			return err
		}
		if err := c.SetCombine(p, g.Combine); err != nil {
			return err
		}
	}
	return nil
}

// Rebase moves every path starting with from so that it starts with to instead.
// Paths outside from are dropped.
func (c *Category) Rebase(from, to string) *Category {
	out := NewCategory(c.Name())
	if c == nil {
		return out
	}
	for _, p := range c.paths {
		if p != from && !strings.HasPrefix(p, from+".") && !strings.HasPrefix(p, from+"[") {
			continue
		}
		np := to + strings.TrimPrefix(p, from)
		if _, exists := out.groups[np]; !exists {
			out.paths = append(out.paths, np)
		}
		out.groups[np] = c.groups[p]
	}
	sort.Strings(out.paths)
	return out
}

// Equal compares keys, rules and combine modes.
func (c *Category) Equal(o *Category) bool {
	if c.Len() != o.Len() {
		return false
	}
	for _, p := range c.Keys() {
		a, _ := c.Group(p)
		b, ok := o.Group(p)
		if !ok || a.Combine != b.Combine || len(a.Rules) != len(b.Rules) {
			return false
		}
		for i := range a.Rules {
			if !a.Rules[i].Equal(b.Rules[i]) {
				return false
			}
		}
	}
	return true
}

// Match is a rule group selected for a location, with the key it was registered under.
type Match struct {
	Path  string
	Group RuleGroup
}

// Best selects the body rule group describing the location most precisely: highest weight,
// then the longest path, then fewer wildcard keys, then lexical order.
func (c *Category) Best(location []Segment) (Match, bool) {
	if c == nil {
		return Match{}, false
	}
	var (
		best       Match
		bestTokens []Token
		bestWeight int
	)
	for _, p := range c.paths {
		tokens, err := ParsePath(p)
		if err != nil {
			continue
		}
		w := PathWeight(tokens, location)
		if w == 0 {
			continue
		}
		if bestWeight == 0 || better(w, tokens, bestWeight, bestTokens) {
			best = Match{Path: p, Group: c.groups[p]}
			bestTokens = tokens
			bestWeight = w
		}
	}
	return best, bestWeight > 0
}

func better(w int, tokens []Token, bestWeight int, bestTokens []Token) bool {
	if w != bestWeight {
		return w > bestWeight
	}
	if len(tokens) != len(bestTokens) {
		return len(tokens) > len(bestTokens)
	}
	return countStars(tokens) < countStars(bestTokens)
}

// ForName returns the group registered for a header, query parameter or metadata key.
func (c *Category) ForName(name string, ignoreCase bool) (RuleGroup, bool) {
	if c == nil {
		return RuleGroup{}, false
	}
	if g, ok := c.groups[name]; ok {
		return g, true
	}
	if ignoreCase {
		for _, p := range c.paths {
			if strings.EqualFold(p, name) {
				return c.groups[p], true
			}
		}
	}
	return RuleGroup{}, false
}

// RuleSet holds the rule categories of one request, response or message.
type RuleSet struct {
	categories map[string]*Category
}

func NewRuleSet() *RuleSet {
	return &RuleSet{categories: map[string]*Category{}}
}

// Category returns the named category, creating it when missing.
func (rs *RuleSet) Category(name string) *Category {
	if c, ok := rs.categories[name]; ok {
		return c
	}
	c := NewCategory(name)
	rs.categories[name] = c
	return c
}

// RulesFor returns the named category or nil. It is safe on a nil RuleSet.
func (rs *RuleSet) RulesFor(name string) *Category {
	if rs == nil {
		return nil
	}
	return rs.categories[name]
}

func (rs *RuleSet) AddCategory(c *Category) error {
	if c == nil {
		return nil
	}
	return rs.Category(c.Name()).Merge(c)
}

// Names returns the non-empty categories in sorted order.
func (rs *RuleSet) Names() []string {
	if rs == nil {
		return nil
	}
	var names []string
	for name, c := range rs.categories {
		if !c.IsEmpty() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (rs *RuleSet) IsEmpty() bool {
	return len(rs.Names()) == 0
}

func (rs *RuleSet) Equal(o *RuleSet) bool {
	a, b := rs.Names(), o.Names()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] || !rs.RulesFor(a[i]).Equal(o.RulesFor(b[i])) {
			return false
		}
	}
	return true
}

// Groups visits every group of every category.
func (rs *RuleSet) Groups(visit func(category, key string, g RuleGroup) error) error {
	for _, name := range rs.Names() {
		c := rs.RulesFor(name)
		for _, k := range c.Keys() {
			g, _ := c.Group(k)
			if err := visit(name, k, g); err != nil {
				return err
			}
		}
	}
	return nil
}
