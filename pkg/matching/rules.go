package matching

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
)

const regexCacheSize = 256

var (
	patterns = &regexCache{cache: lru.New(regexCacheSize)}

	integerText = regexp.MustCompile(`^-?\d+$`)
	decimalText = regexp.MustCompile(`^-?\d*\.\d+([eE][-+]?\d+)?$`)
)

// regexCache holds compiled, fully anchored rule patterns. lru.Cache is not safe for
// concurrent use and the mock server matches requests from many goroutines.
type regexCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

func (c *regexCache) get(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.cache.Get(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid regex %q", pattern)
	}
	c.cache.Add(pattern, re)
	return re, nil
}

func valueOf(v body.Value) string {
	if v.Kind() == body.KindString {
		return "'" + v.Text() + "'"
	}
	return v.String()
}

func typeOf(v body.Value) string {
	switch v.Kind() {
	case body.KindNull:
		return "Null"
	case body.KindBool:
		return "Boolean"
	case body.KindNumber:
		if v.IsInteger() {
			return "Integer"
		}
		return "Decimal"
	case body.KindString:
		return "String"
	case body.KindArray:
		return "Array"
	}
	return "Object"
}

// scalarText is the text regex, include and date rules are applied to.
func scalarText(v body.Value) (string, bool) {
	switch v.Kind() {
	case body.KindString, body.KindNumber:
		return v.Text(), true
	case body.KindBool:
		return v.String(), true
	}
	return "", false
}

func isContainer(v body.Value) bool {
	return v.Kind() == body.KindArray || v.Kind() == body.KindObject
}

// checkRule returns an empty string when actual satisfies the rule, otherwise a description
// of the failure. atNode is false when the rule is inherited from an ancestor path, in which
// case array bounds do not apply.
func checkRule(rule matchingrules.Rule, expected, actual body.Value, atNode bool) string {
	switch rule.Kind {
	case matchingrules.KindEquality:
		if !expected.Equal(actual) {
			return fmt.Sprintf("Expected %s (%s) to be equal to %s (%s)", valueOf(actual), typeOf(actual), valueOf(expected), typeOf(expected))
		}
	case matchingrules.KindRegex:
		return checkRegex(rule.Regex, actual)
	case matchingrules.KindType:
		if expected.Kind() != actual.Kind() {
			return typeMismatch(expected, actual)
		}
	case matchingrules.KindMinType, matchingrules.KindMaxType, matchingrules.KindMinMaxType:
		if expected.Kind() != actual.Kind() {
			return typeMismatch(expected, actual)
		}
		if !atNode || actual.Kind() != body.KindArray {
			return ""
		}
		if rule.HasMin() && actual.Len() < rule.Min {
			return fmt.Sprintf("Expected %s (size %d) to have minimum size of %d", actual, actual.Len(), rule.Min)
		}
		if rule.HasMax() && actual.Len() > rule.Max {
			return fmt.Sprintf("Expected %s (size %d) to have maximum size of %d", actual, actual.Len(), rule.Max)
		}
	case matchingrules.KindNumber:
		return checkNumber(rule.NumberType, actual)
	case matchingrules.KindDate, matchingrules.KindTime, matchingrules.KindTimestamp:
		return checkDate(rule, actual)
	case matchingrules.KindInclude:
		text, ok := scalarText(actual)
		if !ok || !strings.Contains(text, rule.Value) {
			return fmt.Sprintf("Expected %s to include '%s'", valueOf(actual), rule.Value)
		}
	case matchingrules.KindNull:
		if !actual.IsNull() {
			return fmt.Sprintf("Expected %s (%s) to be null", valueOf(actual), typeOf(actual))
		}
	case matchingrules.KindArrayContains:
		if actual.Kind() != body.KindArray {
			return fmt.Sprintf("Expected %s (%s) to be an array", valueOf(actual), typeOf(actual))
		}
	default:
		return fmt.Sprintf("Unknown matching rule %q", rule.Kind)
	}
	return ""
}

func typeMismatch(expected, actual body.Value) string {
	return fmt.Sprintf("Expected %s (%s) to be the same type as %s (%s)", valueOf(actual), typeOf(actual), valueOf(expected), typeOf(expected))
}

func checkRegex(pattern string, actual body.Value) string {
	re, err := patterns.get(pattern)
	if err != nil {
		return err.Error()
	}
	text, ok := scalarText(actual)
	if !ok || !re.MatchString(text) {
		return fmt.Sprintf("Expected %s to match '%s'", valueOf(actual), pattern)
	}
	return ""
}

func checkNumber(kind matchingrules.NumberType, actual body.Value) string {
	var ok bool
	switch actual.Kind() {
	case body.KindNumber:
		switch kind {
		case matchingrules.NumberInteger:
			ok = actual.IsInteger()
		case matchingrules.NumberDecimal:
			ok = !actual.IsInteger()
		default:
			ok = true
		}
	case body.KindString:
		switch kind {
		case matchingrules.NumberInteger:
			ok = integerText.MatchString(actual.Text())
		case matchingrules.NumberDecimal:
			ok = decimalText.MatchString(actual.Text())
		default:
			_, err := strconv.ParseFloat(actual.Text(), 64)
			ok = err == nil
		}
	}
	if ok {
		return ""
	}
	switch kind {
	case matchingrules.NumberInteger:
		return fmt.Sprintf("Expected %s (%s) to be an integer", valueOf(actual), typeOf(actual))
	case matchingrules.NumberDecimal:
		return fmt.Sprintf("Expected %s (%s) to be a decimal number", valueOf(actual), typeOf(actual))
	}
	return fmt.Sprintf("Expected %s (%s) to be a number", valueOf(actual), typeOf(actual))
}

func checkDate(rule matchingrules.Rule, actual body.Value) string {
	layout, err := javaLayout(rule.Format)
	if err != nil {
		return err.Error()
	}
	if actual.Kind() != body.KindString {
		return fmt.Sprintf("Expected %s (%s) to be a %s string", valueOf(actual), typeOf(actual), rule.Kind)
	}
	if _, err := time.Parse(layout, actual.Text()); err != nil {
		return fmt.Sprintf("Expected %s to match a %s pattern of '%s': %s", valueOf(actual), rule.Kind, rule.Format, err)
	}
	return ""
}

// checkGroup applies every rule of the group. An OR group passes as soon as one rule passes.
func checkGroup(g matchingrules.RuleGroup, expected, actual body.Value, atNode bool) []string {
	var failures []string
	passed := false
	for _, r := range g.Rules {
		if d := checkRule(r, expected, actual, atNode); d != "" {
			failures = append(failures, d)
			continue
		}
		passed = true
	}
	if g.IsOr() && passed {
		return nil
	}
	return failures
}

// javaLayout converts a java.time style pattern such as "yyyy-MM-dd'T'HH:mm:ss" into a Go
// reference layout.
func javaLayout(format string) (string, error) {
	var sb strings.Builder
	runes := []rune(format)
	for i := 0; i < len(runes); {
		c := runes[i]
		if c == '\'' {
			end := i + 1
			for end < len(runes) && runes[end] != '\'' {
				end++
			}
			if end == i+1 {
				sb.WriteRune('\'')
			} else {
				sb.WriteString(string(runes[i+1 : end]))
			}
			i = end + 1
			continue
		}
		if !isLetter(c) {
			sb.WriteRune(c)
			i++
			continue
		}
		n := 1
		for i+n < len(runes) && runes[i+n] == c {
			n++
		}
		token, err := layoutToken(c, n)
		if err != nil {
			return "", errors.Wrapf(err, "date format %q", format)
		}
		sb.WriteString(token)
		i += n
	}
	return sb.String(), nil
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func layoutToken(c rune, n int) (string, error) {
	pick := func(options ...string) string {
		if n > len(options) {
			return options[len(options)-1]
		}
		return options[n-1]
	}
	switch c {
	case 'y', 'u':
		if n == 2 {
			return "06", nil
		}
		return "2006", nil
	case 'M', 'L':
		return pick("1", "01", "Jan", "January"), nil
	case 'd':
		return pick("2", "02"), nil
	case 'D':
		return pick("__2", "__2", "002"), nil
	case 'H':
		return "15", nil
	case 'h':
		return pick("3", "03"), nil
	case 'm':
		return pick("4", "04"), nil
	case 's':
		return pick("5", "05"), nil
	case 'S':
		return strings.Repeat("0", n), nil
	case 'a':
		return "PM", nil
	case 'E':
		return pick("Mon", "Mon", "Mon", "Monday"), nil
	case 'X':
		return pick("Z07", "Z0700", "Z07:00"), nil
	case 'x':
		return pick("-07", "-0700", "-07:00"), nil
	case 'Z':
		return pick("-0700", "-0700", "-0700", "-07:00"), nil
	case 'z':
		return "MST", nil
	}
	return "", errors.Errorf("unsupported pattern letter %q", c)
}
