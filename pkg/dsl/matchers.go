package dsl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
)

const (
	uuidPattern      = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`
	hexPattern       = `[0-9a-fA-F]+`
	ipAddressPattern = `(\d{1,3}\.)+\d{1,3}`

	defaultURLBase = "http://localhost:8080"
)

// Matcher is an example value together with the rules that replace equality for it. It is
// used for body leaves, root values, paths, query parameters, headers and message metadata.
type Matcher struct {
	example body.Value
	rules   []matchingrules.Rule
	combine matchingrules.Combine
	err     error
}

func (m Matcher) Example() body.Value {
	return m.example
}

func (m Matcher) Rules() []matchingrules.Rule {
	return m.rules
}

func (m Matcher) Combine() matchingrules.Combine {
	if m.combine == "" {
		return matchingrules.CombineAnd
	}
	return m.combine
}

func (m Matcher) Err() error {
	return m.err
}

func (m Matcher) addTo(c *matchingrules.Category, key string) error {
	if m.err != nil {
		return m.err
	}
	if len(m.rules) == 0 {
		return nil
	}
	if err := c.Add(key, m.rules...); err != nil {
		return err
	}
	return c.SetCombine(key, m.Combine())
}

func fromExample(example interface{}, rules ...matchingrules.Rule) Matcher {
	v, err := body.FromInterface(example)
	return Matcher{example: v, rules: rules, err: err}
}

// Literal matches by equality, without any rule.
func Literal(example interface{}) Matcher {
	return fromExample(example)
}

func String(s string) Matcher {
	return Matcher{example: body.String(s)}
}

// Like matches any value of the same type as the example.
func Like(example interface{}) Matcher {
	return fromExample(example, matchingrules.Type())
}

// Regex matches strings fully matching pattern. The example must match the pattern too.
func Regex(example, pattern string) Matcher {
	m := Matcher{example: body.String(example), rules: []matchingrules.Rule{matchingrules.Regex(pattern, example)}}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	switch {
	case err != nil:
		m.err = invalidMatcherf("invalid regex %q: %s", pattern, err)
	case !re.MatchString(example):
		m.err = invalidMatcherf("example %q does not match regex %q", example, pattern)
	}
	return m
}

func Integer(example int64) Matcher {
	return Matcher{example: body.Int(example), rules: []matchingrules.Rule{matchingrules.Integer()}}
}

func Decimal(example float64) Matcher {
	return Matcher{example: body.Float(example), rules: []matchingrules.Rule{matchingrules.Decimal()}}
}

func Number(example float64) Matcher {
	return Matcher{
		example: body.Number(strconv.FormatFloat(example, 'g', -1, 64)),
		rules:   []matchingrules.Rule{matchingrules.Number(matchingrules.NumberAny)},
	}
}

func Boolean(example bool) Matcher {
	return Matcher{example: body.Bool(example), rules: []matchingrules.Rule{matchingrules.Type()}}
}

// Equality keeps equality matching even below a type rule of an ancestor.
func Equality(example interface{}) Matcher {
	return fromExample(example, matchingrules.Equality())
}

func Includes(value string) Matcher {
	return Matcher{example: body.String(value), rules: []matchingrules.Rule{matchingrules.Include(value)}}
}

func Null() Matcher {
	return Matcher{example: body.Null(), rules: []matchingrules.Rule{matchingrules.NullValue()}}
}

// Date matches strings in the Java-style date format, e.g. "yyyy-MM-dd".
func Date(format, example string) Matcher {
	return Matcher{example: body.String(example), rules: []matchingrules.Rule{matchingrules.Date(format)}}
}

func Time(format, example string) Matcher {
	return Matcher{example: body.String(example), rules: []matchingrules.Rule{matchingrules.Time(format)}}
}

func Timestamp(format, example string) Matcher {
	return Matcher{example: body.String(example), rules: []matchingrules.Rule{matchingrules.Timestamp(format)}}
}

// ID matches any numeric identifier.
func ID(example int64) Matcher {
	return Matcher{example: body.Int(example), rules: []matchingrules.Rule{matchingrules.Type()}}
}

func UUID(example string) Matcher {
	return Regex(example, uuidPattern)
}

func HexValue(example string) Matcher {
	return Regex(example, hexPattern)
}

func IPAddress(example string) Matcher {
	return Regex(example, ipAddressPattern)
}

// Or passes when any of the matchers passes. The example comes from the first one.
func Or(matchers ...Matcher) Matcher {
	if len(matchers) == 0 {
		return Matcher{err: invalidMatcherf("or needs at least one matcher")}
	}
	m := Matcher{example: matchers[0].example, combine: matchingrules.CombineOr}
	for _, other := range matchers {
		if other.err != nil {
			return Matcher{err: other.err}
		}
		m.rules = append(m.rules, other.rules...)
	}
	return m
}

// MatchURL matches URLs ending in the given path fragments. Fragments are plain strings,
// which must appear literally, or regex matchers.
func MatchURL(base string, fragments ...interface{}) Matcher {
	if base == "" {
		base = defaultURLBase
	}
	examples := make([]string, 0, len(fragments))
	patterns := make([]string, 0, len(fragments))
	for _, f := range fragments {
		switch v := f.(type) {
		case Matcher:
			if len(v.rules) != 1 || v.rules[0].Kind != matchingrules.KindRegex {
				return Matcher{err: invalidMatcherf("url fragment %s must be a regex matcher", v.example)}
			}
			examples = append(examples, v.example.Text())
			patterns = append(patterns, v.rules[0].Regex)
		default:
			s := fmt.Sprint(v)
			examples = append(examples, s)
			patterns = append(patterns, regexp.QuoteMeta(s))
		}
	}
	example := strings.TrimSuffix(base, "/") + "/" + strings.Join(examples, "/")
	return Regex(example, `.*\/(`+strings.Join(patterns, `\/`)+`)$`)
}
