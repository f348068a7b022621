package matching

import (
	"testing"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRule(t *testing.T) {
	list := func(n int) body.Value {
		items := make([]body.Value, n)
		for i := range items {
			items[i] = body.Int(int64(i))
		}
		return body.Array(items...)
	}

	for _, tt := range []struct {
		name     string
		rule     matchingrules.Rule
		expected body.Value
		actual   body.Value
		atNode   bool
		pass     bool
	}{
		{name: "regex match", rule: matchingrules.Regex(`\d+`, "1"), actual: body.String("123"), pass: true},
		{name: "regex is anchored", rule: matchingrules.Regex(`\d+`, "1"), actual: body.String("12a")},
		{name: "regex on number", rule: matchingrules.Regex(`\d+`, "1"), actual: body.Int(123), pass: true},
		{name: "regex on object", rule: matchingrules.Regex(`.*`, ""), actual: body.Object()},
		{name: "type same", rule: matchingrules.Type(), expected: body.String("a"), actual: body.String("b"), pass: true},
		{name: "type differs", rule: matchingrules.Type(), expected: body.String("a"), actual: body.Int(1)},
		{name: "min below", rule: matchingrules.MinType(2), expected: list(1), actual: list(1), atNode: true},
		{name: "min inherited", rule: matchingrules.MinType(2), expected: list(1), actual: list(1), pass: true},
		{name: "min met", rule: matchingrules.MinType(2), expected: list(1), actual: list(3), atNode: true, pass: true},
		{name: "max above", rule: matchingrules.MaxType(1), expected: list(1), actual: list(2), atNode: true},
		{name: "min max within", rule: matchingrules.MinMaxType(1, 3), expected: list(1), actual: list(3), atNode: true, pass: true},
		{name: "integer", rule: matchingrules.Integer(), actual: body.Number("7"), pass: true},
		{name: "integer rejects decimal", rule: matchingrules.Integer(), actual: body.Number("7.5")},
		{name: "integer text", rule: matchingrules.Integer(), actual: body.String("12"), pass: true},
		{name: "integer rejects text", rule: matchingrules.Integer(), actual: body.String("not a number")},
		{name: "decimal", rule: matchingrules.Decimal(), actual: body.Number("7.5"), pass: true},
		{name: "decimal rejects integer", rule: matchingrules.Decimal(), actual: body.Number("7")},
		{name: "number rejects text", rule: matchingrules.Number(matchingrules.NumberAny), actual: body.String("abc")},
		{name: "date", rule: matchingrules.Date("yyyy-MM-dd"), actual: body.String("2024-02-29"), pass: true},
		{name: "date out of range", rule: matchingrules.Date("yyyy-MM-dd"), actual: body.String("2024-13-01")},
		{name: "default timestamp", rule: matchingrules.Timestamp(""), actual: body.String("2024-02-01T10:11:12"), pass: true},
		{name: "time", rule: matchingrules.Time("HH:mm"), actual: body.String("25:00")},
		{name: "include", rule: matchingrules.Include("ell"), actual: body.String("hello"), pass: true},
		{name: "include missing", rule: matchingrules.Include("xyz"), actual: body.String("hello")},
		{name: "null", rule: matchingrules.NullValue(), actual: body.Null(), pass: true},
		{name: "null rejects value", rule: matchingrules.NullValue(), actual: body.String("x")},
		{name: "equality", rule: matchingrules.Equality(), expected: body.String("a"), actual: body.String("a"), pass: true},
		{name: "equality differs", rule: matchingrules.Equality(), expected: body.String("a"), actual: body.String("b")},
		{name: "equality on equal lists", rule: matchingrules.Equality(), expected: list(2), actual: list(2), atNode: true, pass: true},
		{name: "equality on shorter list", rule: matchingrules.Equality(), expected: list(2), actual: list(1), atNode: true},
		{name: "equality on longer list", rule: matchingrules.Equality(), expected: list(2), actual: list(3), atNode: true},
		{
			name:     "equality on object with extra key",
			rule:     matchingrules.Equality(),
			expected: body.Object(body.Field{Key: "x", Value: body.Int(1)}),
			actual:   body.Object(body.Field{Key: "x", Value: body.Int(1)}, body.Field{Key: "y", Value: body.Int(2)}),
			atNode:   true,
		},
	} {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			description := checkRule(tt.rule, tt.expected, tt.actual, tt.atNode)
			if tt.pass {
				assert.Empty(t, description)
			} else {
				assert.NotEmpty(t, description)
			}
		})
	}
}

func TestCheckGroupCombine(t *testing.T) {
	and := matchingrules.RuleGroup{Rules: []matchingrules.Rule{matchingrules.Integer(), matchingrules.NullValue()}, Combine: matchingrules.CombineAnd}
	or := matchingrules.RuleGroup{Rules: and.Rules, Combine: matchingrules.CombineOr}

	assert.Len(t, checkGroup(and, body.Null(), body.Null(), true), 1)
	assert.Empty(t, checkGroup(or, body.Null(), body.Null(), true))
	assert.Empty(t, checkGroup(or, body.Null(), body.Int(4), true))
	assert.Len(t, checkGroup(or, body.Null(), body.String("x"), true), 2)
}

func TestJavaLayout(t *testing.T) {
	for _, tt := range []struct {
		format string
		layout string
	}{
		{format: "yyyy-MM-dd", layout: "2006-01-02"},
		{format: "yyyy-MM-dd'T'HH:mm:ss", layout: "2006-01-02T15:04:05"},
		{format: "HH:mm:ss.SSS", layout: "15:04:05.000"},
		{format: "dd/MM/yy", layout: "02/01/06"},
		{format: "EEE, d MMM yyyy HH:mm:ss Z", layout: "Mon, 2 Jan 2006 15:04:05 -0700"},
		{format: "yyyy-MM-dd'T'HH:mm:ssXXX", layout: "2006-01-02T15:04:05Z07:00"},
		{format: "h:mm a", layout: "3:04 PM"},
		{format: "''yy''", layout: "'06'"},
	} {
		tt := tt
		t.Run(tt.format, func(t *testing.T) {
			layout, err := javaLayout(tt.format)
			require.NoError(t, err)
			assert.Equal(t, tt.layout, layout)
		})
	}

	_, err := javaLayout("yyyy-ww")
	assert.Error(t, err)
}

func TestRegexCacheReusesCompiledPatterns(t *testing.T) {
	first, err := patterns.get(`[a-z]+`)
	require.NoError(t, err)
	second, err := patterns.get(`[a-z]+`)
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = patterns.get(`(`)
	assert.Error(t, err)
}
