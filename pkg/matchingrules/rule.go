// Package matchingrules models pact matching rules: the rule variants, how they are grouped
// per path and per category, the path syntax, and their V2/V3 JSON representations.
package matchingrules

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindEquality      Kind = "equality"
	KindRegex         Kind = "regex"
	KindType          Kind = "type"
	KindMinType       Kind = "min-type"
	KindMaxType       Kind = "max-type"
	KindMinMaxType    Kind = "min-max-type"
	KindArrayContains Kind = "arrayContains"
	KindNull          Kind = "null"
	KindNumber        Kind = "number"
	KindDate          Kind = "date"
	KindTime          Kind = "time"
	KindTimestamp     Kind = "timestamp"
	KindInclude       Kind = "include"
)

type NumberType string

const (
	NumberAny     NumberType = "number"
	NumberInteger NumberType = "integer"
	NumberDecimal NumberType = "decimal"
)

const (
	DefaultDateFormat      = "yyyy-MM-dd"
	DefaultTimeFormat      = "HH:mm:ss"
	DefaultTimestampFormat = "yyyy-MM-dd'T'HH:mm:ss"
)

// Rule is a single matching rule. Only the fields relevant to Kind are set.
type Rule struct {
	Kind       Kind
	Regex      string
	Example    string
	Min        int
	Max        int
	NumberType NumberType
	Format     string
	Value      string
	Variants   []Variant
}

// Variant is one expected element of an ArrayContains rule: the index of the example
// element in the expected array and the rules that apply to it, relative to "$".
type Variant struct {
	Index int
	Rules *Category
}

func Equality() Rule {
	return Rule{Kind: KindEquality}
}

// Regex matches string values against pattern; example is the value used when generating
// bodies.
func Regex(pattern, example string) Rule {
	return Rule{Kind: KindRegex, Regex: pattern, Example: example}
}

func Type() Rule {
	return Rule{Kind: KindType}
}

func MinType(min int) Rule {
	return Rule{Kind: KindMinType, Min: min}
}

func MaxType(max int) Rule {
	return Rule{Kind: KindMaxType, Max: max}
}

func MinMaxType(min, max int) Rule {
	return Rule{Kind: KindMinMaxType, Min: min, Max: max}
}

func ArrayContains(variants ...Variant) Rule {
	return Rule{Kind: KindArrayContains, Variants: variants}
}

func NullValue() Rule {
	return Rule{Kind: KindNull}
}

func Number(numberType NumberType) Rule {
	return Rule{Kind: KindNumber, NumberType: numberType}
}

func Integer() Rule {
	return Number(NumberInteger)
}

func Decimal() Rule {
	return Number(NumberDecimal)
}

func Date(format string) Rule {
	if format == "" {
		format = DefaultDateFormat
	}
	return Rule{Kind: KindDate, Format: format}
}

func Time(format string) Rule {
	if format == "" {
		format = DefaultTimeFormat
	}
	return Rule{Kind: KindTime, Format: format}
}

func Timestamp(format string) Rule {
	if format == "" {
		format = DefaultTimestampFormat
	}
	return Rule{Kind: KindTimestamp, Format: format}
}

func Include(value string) Rule {
	return Rule{Kind: KindInclude, Value: value}
}

// HasMin reports whether the rule carries a lower array bound.
func (r Rule) HasMin() bool {
	return r.Kind == KindMinType || r.Kind == KindMinMaxType
}

// HasMax reports whether the rule carries an upper array bound.
func (r Rule) HasMax() bool {
	return r.Kind == KindMaxType || r.Kind == KindMinMaxType
}

// IsTypeLike reports whether the rule compares by type rather than by value.
func (r Rule) IsTypeLike() bool {
	switch r.Kind {
	case KindType, KindMinType, KindMaxType, KindMinMaxType:
		return true
	}
	return false
}

// ValidFor reports whether the rule can be expressed in the given pact specification version.
func (r Rule) ValidFor(v SpecVersion) bool {
	if v >= V3 {
		return true
	}
	switch r.Kind {
	case KindRegex, KindType, KindMinType, KindMaxType, KindMinMaxType:
		return true
	}
	return false
}

func (r Rule) String() string {
	switch r.Kind {
	case KindRegex:
		return fmt.Sprintf("regex(%q)", r.Regex)
	case KindMinType:
		return fmt.Sprintf("type(min=%d)", r.Min)
	case KindMaxType:
		return fmt.Sprintf("type(max=%d)", r.Max)
	case KindMinMaxType:
		return fmt.Sprintf("type(min=%d, max=%d)", r.Min, r.Max)
	case KindNumber:
		return string(r.NumberType)
	case KindDate, KindTime, KindTimestamp:
		return fmt.Sprintf("%s(%q)", r.Kind, r.Format)
	case KindInclude:
		return fmt.Sprintf("include(%q)", r.Value)
	case KindArrayContains:
		indexes := make([]string, 0, len(r.Variants))
		for _, v := range r.Variants {
			indexes = append(indexes, fmt.Sprint(v.Index))
		}
		return fmt.Sprintf("arrayContains(%s)", strings.Join(indexes, ","))
	}
	return string(r.Kind)
}

func (r Rule) Equal(o Rule) bool {
	if r.Kind != o.Kind || r.Regex != o.Regex || r.Example != o.Example || r.Min != o.Min ||
		r.Max != o.Max || r.NumberType != o.NumberType || r.Format != o.Format || r.Value != o.Value ||
		len(r.Variants) != len(o.Variants) {
		return false
	}
	for i := range r.Variants {
		if r.Variants[i].Index != o.Variants[i].Index || !r.Variants[i].Rules.Equal(o.Variants[i].Rules) {
			return false
		}
	}
	return true
}
