package matchingrules

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// V2 documents keep every rule in one flat map keyed by a path that names the part of the
// message: "$.body...", "$.headers.<name>", "$.query.<name>", "$.path".
const (
	v2Body     = "$.body"
	v2Headers  = "$.headers."
	v2Header   = "$.header."
	v2Query    = "$.query."
	v2Path     = "$.path"
	v2Status   = "$.status"
	v2Metadata = "$.metadata."
)

// ToJSON renders the rule set in the matchingRules layout of the given version. It returns
// nil when there are no rules.
func (rs *RuleSet) ToJSON(v SpecVersion) map[string]interface{} {
	if rs.IsEmpty() {
		return nil
	}
	if v < V3 {
		return rs.toV2()
	}

	out := map[string]interface{}{}
	for _, name := range rs.Names() {
		c := rs.RulesFor(name)
		if name == CategoryPath || name == CategoryStatus {
			g, _ := c.Group("")
			out[name] = groupToJSON(g)
			continue
		}
		out[name] = c.toJSON()
	}
	return out
}

func (c *Category) toJSON() map[string]interface{} {
	rules := map[string]interface{}{}
	for _, k := range c.Keys() {
		g, _ := c.Group(k)
		rules[k] = groupToJSON(g)
	}
	return rules
}

func groupToJSON(g RuleGroup) map[string]interface{} {
	matchers := make([]interface{}, 0, len(g.Rules))
	for _, r := range g.Rules {
		matchers = append(matchers, ruleToJSON(r))
	}
	combine := g.Combine
	if combine == "" {
		combine = CombineAnd
	}
	return map[string]interface{}{"matchers": matchers, "combine": string(combine)}
}

func ruleToJSON(r Rule) map[string]interface{} {
	m := map[string]interface{}{"match": string(r.Kind)}
	switch r.Kind {
	case KindRegex:
		m["regex"] = r.Regex
		if r.Example != "" {
			m["example"] = r.Example
		}
	case KindMinType:
		m["match"] = string(KindType)
		m["min"] = r.Min
	case KindMaxType:
		m["match"] = string(KindType)
		m["max"] = r.Max
	case KindMinMaxType:
		m["match"] = string(KindType)
		m["min"] = r.Min
		m["max"] = r.Max
	case KindNumber:
		m["match"] = string(r.NumberType)
	case KindDate, KindTime, KindTimestamp:
		m["format"] = r.Format
	case KindInclude:
		m["value"] = r.Value
	case KindArrayContains:
		variants := make([]interface{}, 0, len(r.Variants))
		for _, v := range r.Variants {
			variants = append(variants, map[string]interface{}{
				"index": v.Index,
				"rules": v.Rules.toJSON(),
			})
		}
		m["variants"] = variants
	}
	return m
}

func (rs *RuleSet) toV2() map[string]interface{} {
	out := map[string]interface{}{}
	for _, name := range rs.Names() {
		c := rs.RulesFor(name)
		for _, k := range c.Keys() {
			g, _ := c.Group(k)
			out[v2Key(name, k)] = groupToV2(g)
		}
	}
	return out
}

func v2Key(category, key string) string {
	switch category {
	case CategoryBody:
		return v2Body + strings.TrimPrefix(key, "$")
	case CategoryHeader:
		return v2Headers + key
	case CategoryQuery:
		return v2Query + key
	case CategoryPath:
		return v2Path
	case CategoryStatus:
		return v2Status
	}
	return "$." + category + "." + key
}

// groupToV2 folds a group into the single V2 rule object, e.g. {"match":"type","min":1}.
func groupToV2(g RuleGroup) map[string]interface{} {
	m := map[string]interface{}{}
	for _, r := range g.Rules {
		for k, v := range ruleToJSON(r) {
			if k == "match" {
				if _, set := m["match"]; set && v == string(KindRegex) {
					continue
				}
			}
			m[k] = v
		}
	}
	return m
}

// FromJSON reads a matchingRules object. The V2 flat layout is recognised by its "$."
// keys; anything else is read as the V3 per-category layout.
func FromJSON(raw map[string]interface{}) (*RuleSet, error) {
	rs := NewRuleSet()
	if len(raw) == 0 {
		return rs, nil
	}
	for k := range raw {
		if strings.HasPrefix(k, "$") {
			return fromV2(raw)
		}
	}

	for name, value := range raw {
		entries, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid matchingRules: category %q is not an object", name)
		}
		c := rs.Category(name)
		if name == CategoryPath || name == CategoryStatus {
			if err := addGroupJSON(c, "", entries); err != nil {
				return nil, err
			}
			continue
		}
		if err := c.fromJSON(entries); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func (c *Category) fromJSON(entries map[string]interface{}) error {
	for key, value := range entries {
		group, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("invalid matchingRules: rules for %q in %s are not an object", key, c.Name())
		}
		if err := addGroupJSON(c, key, group); err != nil {
			return err
		}
	}
	return nil
}

func addGroupJSON(c *Category, key string, group map[string]interface{}) error {
	list, ok := group["matchers"].([]interface{})
	if !ok {
		return fmt.Errorf("invalid matchingRules: %q in %s has no matchers", key, c.Name())
	}
	rules := make([]Rule, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return fmt.Errorf("invalid matchingRules: matcher for %q in %s is not an object", key, c.Name())
		}
		rule, err := ruleFromJSON(m)
		if err != nil {
			return errors.Wrapf(err, "invalid matcher for %q in %s", key, c.Name())
		}
		rules = append(rules, rule)
	}
	if err := c.Add(key, rules...); err != nil {
		return err
	}
	if combine, ok := group["combine"].(string); ok {
		combine = strings.ToUpper(combine)
		if combine != string(CombineAnd) && combine != string(CombineOr) {
			return fmt.Errorf("invalid matchingRules: unknown combine %q for %q", combine, key)
		}
		return c.SetCombine(key, Combine(combine))
	}
	return nil
}

func ruleFromJSON(m map[string]interface{}) (Rule, error) {
	match, _ := m["match"].(string)
	min, hasMin := intField(m, "min")
	max, hasMax := intField(m, "max")

	switch match {
	case "", string(KindType), "min", "max":
		if regex, ok := m["regex"].(string); ok && match == "" {
			example, _ := m["example"].(string)
			return Regex(regex, example), nil
		}
		switch {
		case hasMin && hasMax:
			return MinMaxType(min, max), nil
		case hasMin:
			return MinType(min), nil
		case hasMax:
			return MaxType(max), nil
		case match == "":
			return Rule{}, errors.New("matcher has no type")
		}
		return Type(), nil
	case string(KindRegex):
		regex, ok := m["regex"].(string)
		if !ok {
			return Rule{}, errors.New("regex matcher has no regex")
		}
		example, _ := m["example"].(string)
		return Regex(regex, example), nil
	case string(KindEquality):
		return Equality(), nil
	case string(KindNull):
		return NullValue(), nil
	case string(NumberAny), string(NumberInteger), string(NumberDecimal):
		return Number(NumberType(match)), nil
	case string(KindDate), string(KindTime), string(KindTimestamp):
		format, _ := m["format"].(string)
		if format == "" {
			format, _ = m[match].(string)
		}
		switch Kind(match) {
		case KindDate:
			return Date(format), nil
		case KindTime:
			return Time(format), nil
		}
		return Timestamp(format), nil
	case string(KindInclude):
		value, ok := m["value"].(string)
		if !ok {
			return Rule{}, errors.New("include matcher has no value")
		}
		return Include(value), nil
	case string(KindArrayContains):
		return arrayContainsFromJSON(m)
	}
	return Rule{}, fmt.Errorf("unknown matcher %q", match)
}

func arrayContainsFromJSON(m map[string]interface{}) (Rule, error) {
	list, ok := m["variants"].([]interface{})
	if !ok {
		return Rule{}, errors.New("arrayContains matcher has no variants")
	}
	variants := make([]Variant, 0, len(list))
	for _, item := range list {
		v, ok := item.(map[string]interface{})
		if !ok {
			return Rule{}, errors.New("arrayContains variant is not an object")
		}
		index, _ := intField(v, "index")
		rules := NewCategory(CategoryBody)
		if raw, ok := v["rules"].(map[string]interface{}); ok {
			if err := rules.fromJSON(raw); err != nil {
				return Rule{}, err
			}
		}
		variants = append(variants, Variant{Index: index, Rules: rules})
	}
	return ArrayContains(variants...), nil
}

func fromV2(raw map[string]interface{}) (*RuleSet, error) {
	rs := NewRuleSet()
	for key, value := range raw {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid matchingRules: rule for %q is not an object", key)
		}
		category, name, err := splitV2Key(key)
		if err != nil {
			return nil, err
		}
		rules, err := rulesFromV2(m)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid matcher for %q", key)
		}
		if err := rs.Category(category).Add(name, rules...); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func splitV2Key(key string) (string, string, error) {
	switch {
	case key == v2Body || strings.HasPrefix(key, v2Body+".") || strings.HasPrefix(key, v2Body+"["):
		return CategoryBody, "$" + strings.TrimPrefix(key, v2Body), nil
	case strings.HasPrefix(key, v2Headers):
		return CategoryHeader, strings.TrimPrefix(key, v2Headers), nil
	case strings.HasPrefix(key, v2Header):
		return CategoryHeader, strings.TrimPrefix(key, v2Header), nil
	case strings.HasPrefix(key, v2Query):
		return CategoryQuery, strings.TrimPrefix(key, v2Query), nil
	case key == v2Path:
		return CategoryPath, "", nil
	case key == v2Status:
		return CategoryStatus, "", nil
	case strings.HasPrefix(key, v2Metadata):
		return CategoryMetadata, strings.TrimPrefix(key, v2Metadata), nil
	}
	return "", "", errors.Wrapf(ErrInvalidPath, "unrecognised V2 matching rule key %q", key)
}

// rulesFromV2 splits a V2 rule object, which may combine a regex with array bounds.
func rulesFromV2(m map[string]interface{}) ([]Rule, error) {
	var rules []Rule
	if regex, ok := m["regex"].(string); ok {
		example, _ := m["example"].(string)
		rules = append(rules, Regex(regex, example))
	}
	match, _ := m["match"].(string)
	_, hasMin := m["min"]
	_, hasMax := m["max"]
	if match == string(KindType) || hasMin || hasMax {
		rest := map[string]interface{}{}
		for k, v := range m {
			if k != "regex" && k != "example" {
				rest[k] = v
			}
		}
		if match == string(KindRegex) {
			delete(rest, "match")
		}
		r, err := ruleFromJSON(rest)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	if len(rules) == 0 {
		r, err := ruleFromJSON(m)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func intField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// ValidateForVersion reports the first rule that cannot be written for the given version.
func (rs *RuleSet) ValidateForVersion(v SpecVersion) error {
	return rs.Groups(func(category, key string, g RuleGroup) error {
		return validateGroup(v, category, key, g)
	})
}

func validateGroup(v SpecVersion, category, key string, g RuleGroup) error {
	if v >= V3 {
		return nil
	}
	if g.IsOr() {
		return fmt.Errorf("%s rules at %q combine with OR, which needs pact specification %s", category, key, V3)
	}
	for _, r := range g.Rules {
		if !r.ValidFor(v) {
			return fmt.Errorf("%s rule %s at %q needs pact specification %s", category, r, key, V3)
		}
	}
	return nil
}
