package matching

import (
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
)

var (
	commaSpace  = regexp.MustCompile(`,\s+`)
	absoluteURL = regexp.MustCompile(`^https?://[^/]+`)
)

// CompareMethod compares HTTP methods case-insensitively.
func CompareMethod(expected, actual string) []Mismatch {
	if strings.EqualFold(expected, actual) {
		return nil
	}
	return []Mismatch{{
		Kind:        KindMethod,
		Expected:    strings.ToUpper(expected),
		Actual:      strings.ToUpper(actual),
		Description: fmt.Sprintf("Expected method '%s' but received '%s'", strings.ToUpper(expected), strings.ToUpper(actual)),
	}}
}

// ComparePath compares request paths. An absolute actual URL is reduced to its path.
func ComparePath(expected, actual string, rules *matchingrules.Category) []Mismatch {
	actual = absoluteURL.ReplaceAllString(actual, "")
	if actual == "" {
		actual = "/"
	}
	if g, ok := rules.Group(""); ok {
		var out []Mismatch
		for _, d := range checkGroup(g, body.String(expected), body.String(actual), true) {
			out = append(out, Mismatch{Kind: KindPath, Path: actual, Expected: expected, Actual: actual, Description: d})
		}
		return out
	}
	if expected == actual {
		return nil
	}
	return []Mismatch{{
		Kind:        KindPath,
		Path:        actual,
		Expected:    expected,
		Actual:      actual,
		Description: fmt.Sprintf("Expected path '%s' but received path '%s'", expected, actual),
	}}
}

// CompareStatus compares status codes, applying a status rule when one is registered.
func CompareStatus(expected, actual int, rules *matchingrules.Category) []Mismatch {
	if g, ok := rules.Group(""); ok {
		var out []Mismatch
		for _, d := range checkGroup(g, body.Int(int64(expected)), body.Int(int64(actual)), true) {
			out = append(out, Mismatch{Kind: KindStatus, Expected: strconv.Itoa(expected), Actual: strconv.Itoa(actual), Description: d})
		}
		return out
	}
	if expected == actual {
		return nil
	}
	return []Mismatch{{
		Kind:        KindStatus,
		Expected:    strconv.Itoa(expected),
		Actual:      strconv.Itoa(actual),
		Description: fmt.Sprintf("expected status of %d but was %d", expected, actual),
	}}
}

// CompareQuery compares query parameters. Names are case-sensitive and values are
// compared by position.
func CompareQuery(expected, actual url.Values, rules *matchingrules.Category) []Mismatch {
	var out []Mismatch
	for _, name := range sortedNames(expected) {
		want := expected[name]
		got, ok := actual[name]
		if !ok {
			out = append(out, Mismatch{
				Kind:        KindQuery,
				Path:        name,
				Expected:    strings.Join(want, ","),
				Description: fmt.Sprintf("Expected query parameter '%s' but was missing", name),
			})
			continue
		}
		if g, ruled := rules.ForName(name, false); ruled {
			out = append(out, compareValuesWithRules(KindQuery, name, g, want, got)...)
			continue
		}
		out = append(out, compareQueryValues(name, want, got)...)
	}
	for _, name := range sortedNames(actual) {
		if _, ok := expected[name]; !ok {
			out = append(out, Mismatch{
				Kind:        KindQuery,
				Path:        name,
				Actual:      strings.Join(actual[name], ","),
				Description: fmt.Sprintf("Unexpected query parameter '%s' received", name),
			})
		}
	}
	return out
}

func compareQueryValues(name string, want, got []string) []Mismatch {
	var out []Mismatch
	for i := 0; i < len(want) && i < len(got); i++ {
		if want[i] != got[i] {
			out = append(out, Mismatch{
				Kind:        KindQuery,
				Path:        name,
				Expected:    want[i],
				Actual:      got[i],
				Description: fmt.Sprintf("Expected '%s' but received '%s' for query parameter '%s'", want[i], got[i], name),
			})
		}
	}
	if len(want) != len(got) {
		out = append(out, Mismatch{
			Kind:     KindQuery,
			Path:     name,
			Expected: strings.Join(want, ","),
			Actual:   strings.Join(got, ","),
			Description: fmt.Sprintf("Expected query parameter '%s' with %d value(s) but received %d value(s)",
				name, len(want), len(got)),
		})
	}
	return out
}

// compareValuesWithRules applies a rule group to every actual value, against the expected
// value at the same position or the first one.
func compareValuesWithRules(kind Kind, name string, g matchingrules.RuleGroup, want, got []string) []Mismatch {
	var out []Mismatch
	for i, value := range got {
		expected := ""
		if len(want) > 0 {
			expected = want[0]
		}
		if i < len(want) {
			expected = want[i]
		}
		for _, d := range checkGroup(g, body.String(expected), body.String(value), true) {
			out = append(out, Mismatch{Kind: kind, Path: name, Expected: expected, Actual: value, Description: d})
		}
	}
	return out
}

// CompareHeaders checks every expected header. Names are case-insensitive and headers the
// expectation does not mention are ignored.
func CompareHeaders(expected, actual map[string][]string, rules *matchingrules.Category) []Mismatch {
	var out []Mismatch
	for _, name := range sortedNames(expected) {
		want := expected[name]
		got, ok := lookupHeader(actual, name)
		if !ok {
			out = append(out, Mismatch{
				Kind:        KindHeader,
				Path:        name,
				Expected:    strings.Join(want, ", "),
				Description: fmt.Sprintf("Expected a header '%s' but was missing", name),
			})
			continue
		}
		if g, ruled := rules.ForName(name, true); ruled {
			out = append(out, compareValuesWithRules(KindHeader, name, g, want, got)...)
			continue
		}
		if m := compareHeaderValue(name, strings.Join(want, ", "), strings.Join(got, ", ")); m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func lookupHeader(headers map[string][]string, name string) ([]string, bool) {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func compareHeaderValue(name, expected, actual string) *Mismatch {
	var equal bool
	if strings.EqualFold(name, "Content-Type") {
		equal = contentTypesMatch(expected, actual)
	} else {
		equal = commaSpace.ReplaceAllString(expected, ",") == commaSpace.ReplaceAllString(actual, ",")
	}
	if equal {
		return nil
	}
	return &Mismatch{
		Kind:        KindHeader,
		Path:        name,
		Expected:    expected,
		Actual:      actual,
		Description: fmt.Sprintf("Expected header '%s' to have value '%s' but was '%s'", name, expected, actual),
	}
}

// contentTypesMatch compares media types case-insensitively; every expected parameter must
// be present in the actual value, extra actual parameters are allowed.
func contentTypesMatch(expected, actual string) bool {
	eType, eParams, errE := mime.ParseMediaType(expected)
	aType, aParams, errA := mime.ParseMediaType(actual)
	if errE != nil || errA != nil {
		return strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actual))
	}
	if !strings.EqualFold(eType, aType) {
		return false
	}
	for k, v := range eParams {
		if got, ok := aParams[k]; !ok || !strings.EqualFold(got, v) {
			return false
		}
	}
	return true
}

func sortedNames(m map[string][]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
