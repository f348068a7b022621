// Package dsl builds pacts: bodies whose matching rules are registered at the right paths
// while the body is written, and interactions and messages assembled into a pact.
package dsl

import (
	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidStructure is returned for unbalanced containers and misplaced values.
	ErrInvalidStructure = errors.New("invalid body structure")
	// ErrInvalidMatcher is returned for matchers that can never match their own example.
	ErrInvalidMatcher = errors.New("invalid matcher")
)

func invalidf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidStructure, format, args...)
}

func invalidMatcherf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidMatcher, format, args...)
}

type frameKind int

const (
	frameObject frameKind = iota
	frameArray
	frameEachLike
	frameContains
)

type frame struct {
	kind     frameKind
	name     string
	path     string
	fields   []body.Field
	items    []body.Value
	examples int
}

func (f *frame) isArray() bool {
	return f.kind != frameObject
}

func (f *frame) value() body.Value {
	if !f.isArray() {
		return body.Object(f.fields...)
	}
	if f.kind == frameEachLike && len(f.items) > 0 {
		items := make([]body.Value, 0, f.examples)
		for i := 0; i < f.examples; i++ {
			items = append(items, f.items[0])
		}
		return body.Array(items...)
	}
	return body.Array(f.items...)
}

// childPath is the rule path of the next value appended to the frame.
func (f *frame) childPath(name string) string {
	switch f.kind {
	case frameObject:
		return matchingrules.FieldPath(f.path, name)
	case frameEachLike:
		return matchingrules.StarIndexPath(f.path)
	}
	return matchingrules.IndexPath(f.path, len(f.items))
}

// Builder writes a body value and its matching rules. Operations keep a stack of open
// objects and arrays; names are required inside objects and must be empty inside arrays.
// The first usage error stops the builder and is returned by Build.
type Builder struct {
	frames  []*frame
	rules   *matchingrules.Category
	root    body.Value
	rootSet bool
	err     error
}

func newBuilder() *Builder {
	return &Builder{rules: matchingrules.NewCategory(matchingrules.CategoryBody)}
}

// NewObject starts a body whose root is an object.
func NewObject() *Builder {
	b := newBuilder()
	b.frames = append(b.frames, &frame{kind: frameObject, path: "$"})
	return b
}

// NewArray starts a body whose root is an array.
func NewArray() *Builder {
	b := newBuilder()
	b.frames = append(b.frames, &frame{kind: frameArray, path: "$"})
	return b
}

// NewRoot starts a body that is a single value, set with Value.
func NewRoot() *Builder {
	return newBuilder()
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) top() *frame {
	if len(b.frames) == 0 {
		return nil
	}
	return b.frames[len(b.frames)-1]
}

// slot checks the name against the open container and returns the child's rule path.
func (b *Builder) slot(name string) (string, bool) {
	f := b.top()
	switch {
	case b.err != nil:
		return "", false
	case f == nil:
		b.fail(invalidf("no open object or array for %q", name))
		return "", false
	case f.isArray() && name != "":
		b.fail(invalidf("array elements cannot be named, got %q", name))
		return "", false
	case !f.isArray() && name == "":
		b.fail(invalidf("object fields need a name at %s", f.path))
		return "", false
	}
	return f.childPath(name), true
}

func (b *Builder) put(name string, v body.Value) {
	f := b.top()
	if f.isArray() {
		f.items = append(f.items, v)
		return
	}
	f.fields = append(f.fields, body.Field{Key: name, Value: v})
}

// Add appends the matcher's example and registers its rules at the value's path.
func (b *Builder) Add(name string, m Matcher) *Builder {
	path, ok := b.slot(name)
	if !ok {
		return b
	}
	if err := m.addTo(b.rules, path); err != nil {
		return b.fail(err)
	}
	b.put(name, m.example)
	return b
}

// Value sets the root value of a NewRoot body.
func (b *Builder) Value(m Matcher) *Builder {
	switch {
	case b.err != nil:
		return b
	case len(b.frames) > 0:
		return b.fail(invalidf("a root value cannot be set inside an open container"))
	case b.rootSet:
		return b.fail(invalidf("the root value is already set"))
	}
	if err := m.addTo(b.rules, "$"); err != nil {
		return b.fail(err)
	}
	b.root, b.rootSet = m.example, true
	return b
}

func (b *Builder) StringValue(name, value string) *Builder {
	return b.Add(name, String(value))
}

func (b *Builder) NumberValue(name string, value float64) *Builder {
	return b.Add(name, Literal(value))
}

func (b *Builder) BooleanValue(name string, value bool) *Builder {
	return b.Add(name, Literal(value))
}

func (b *Builder) StringType(name, example string) *Builder {
	return b.Add(name, Like(example))
}

func (b *Builder) IntegerType(name string, example int64) *Builder {
	return b.Add(name, Integer(example))
}

func (b *Builder) DecimalType(name string, example float64) *Builder {
	return b.Add(name, Decimal(example))
}

func (b *Builder) NumberType(name string, example float64) *Builder {
	return b.Add(name, Number(example))
}

func (b *Builder) BooleanType(name string, example bool) *Builder {
	return b.Add(name, Boolean(example))
}

func (b *Builder) StringMatcher(name, pattern, example string) *Builder {
	return b.Add(name, Regex(example, pattern))
}

func (b *Builder) Date(name, format, example string) *Builder {
	return b.Add(name, Date(format, example))
}

func (b *Builder) Time(name, format, example string) *Builder {
	return b.Add(name, Time(format, example))
}

func (b *Builder) Timestamp(name, format, example string) *Builder {
	return b.Add(name, Timestamp(format, example))
}

func (b *Builder) NullValue(name string) *Builder {
	return b.Add(name, Null())
}

func (b *Builder) IncludesStr(name, value string) *Builder {
	return b.Add(name, Includes(value))
}

func (b *Builder) EqualTo(name string, value interface{}) *Builder {
	return b.Add(name, Equality(value))
}

func (b *Builder) ID(name string, example int64) *Builder {
	return b.Add(name, ID(example))
}

func (b *Builder) UUID(name, example string) *Builder {
	return b.Add(name, UUID(example))
}

func (b *Builder) HexValue(name, example string) *Builder {
	return b.Add(name, HexValue(example))
}

func (b *Builder) IPAddress(name, example string) *Builder {
	return b.Add(name, IPAddress(example))
}

func (b *Builder) MatchURL(name, base string, fragments ...interface{}) *Builder {
	return b.Add(name, MatchURL(base, fragments...))
}

func (b *Builder) open(name string, kind frameKind, examples int) (*frame, bool) {
	path, ok := b.slot(name)
	if !ok {
		return nil, false
	}
	f := &frame{kind: kind, name: name, path: path, examples: examples}
	b.frames = append(b.frames, f)
	return f, true
}

// Object opens a nested object.
func (b *Builder) Object(name string) *Builder {
	b.open(name, frameObject, 0)
	return b
}

// Array opens a nested array whose elements are compared by position.
func (b *Builder) Array(name string) *Builder {
	b.open(name, frameArray, 0)
	return b
}

func (b *Builder) close(array bool) *Builder {
	if b.err != nil {
		return b
	}
	f := b.top()
	switch {
	case f == nil:
		return b.fail(invalidf("nothing left to close"))
	case f.isArray() != array && array:
		return b.fail(invalidf("CloseArray called while the object at %s is open", f.path))
	case f.isArray() != array:
		return b.fail(invalidf("CloseObject called while the array at %s is open", f.path))
	}
	if f.kind == frameContains {
		if err := b.collectVariants(f); err != nil {
			return b.fail(err)
		}
	}

	b.frames = b.frames[:len(b.frames)-1]
	if len(b.frames) == 0 {
		b.root, b.rootSet = f.value(), true
		return b
	}
	b.put(f.name, f.value())
	return b
}

func (b *Builder) CloseObject() *Builder {
	return b.close(false)
}

func (b *Builder) CloseArray() *Builder {
	return b.close(true)
}

func (b *Builder) arrayLike(name string, rule matchingrules.Rule, examples int) *Builder {
	if examples < 1 {
		examples = 1
	}
	f, ok := b.open(name, frameEachLike, examples)
	if !ok {
		return b
	}
	if err := b.rules.Add(f.path, rule); err != nil {
		return b.fail(err)
	}
	b.open("", frameObject, 0)
	return b
}

// EachLike opens an array of at least one element shaped like the example object that
// follows. Close the element with CloseObject and the array with CloseArray. The example
// object is repeated examples times, and its rules apply to every actual element.
func (b *Builder) EachLike(name string, examples int) *Builder {
	return b.arrayLike(name, matchingrules.MinType(1), examples)
}

func (b *Builder) MinArrayLike(name string, min, examples int) *Builder {
	if examples < min {
		examples = min
	}
	return b.arrayLike(name, matchingrules.MinType(min), examples)
}

func (b *Builder) MaxArrayLike(name string, max, examples int) *Builder {
	if max > 0 && examples > max {
		return b.fail(invalidf("%d examples exceed the maximum of %d for %q", examples, max, name))
	}
	return b.arrayLike(name, matchingrules.MaxType(max), examples)
}

func (b *Builder) MinMaxArrayLike(name string, min, max, examples int) *Builder {
	if min > max {
		return b.fail(invalidf("minimum %d is above maximum %d for %q", min, max, name))
	}
	if examples < min {
		examples = min
	}
	if examples > max {
		return b.fail(invalidf("%d examples exceed the maximum of %d for %q", examples, max, name))
	}
	return b.arrayLike(name, matchingrules.MinMaxType(min, max), examples)
}

// EachLikeOf adds an array of scalar elements like m, at least one of them.
func (b *Builder) EachLikeOf(name string, m Matcher, examples int) *Builder {
	if examples < 1 {
		examples = 1
	}
	f, ok := b.open(name, frameEachLike, examples)
	if !ok {
		return b
	}
	if err := b.rules.Add(f.path, matchingrules.MinType(1)); err != nil {
		return b.fail(err)
	}
	b.Add("", m)
	return b.CloseArray()
}

// ArrayContaining opens an array whose elements must each be found somewhere in the actual
// array, in any order.
func (b *Builder) ArrayContaining(name string) *Builder {
	b.open(name, frameContains, 0)
	return b
}

// collectVariants turns the rules registered under each element of an ArrayContaining
// array into the variants of one arrayContains rule at the array itself.
func (b *Builder) collectVariants(f *frame) error {
	variants := make([]matchingrules.Variant, 0, len(f.items))
	for i := range f.items {
		elementPath := matchingrules.IndexPath(f.path, i)
		variants = append(variants, matchingrules.Variant{Index: i, Rules: b.rules.Rebase(elementPath, "$")})
		b.rules = b.rules.Filter(func(key string) bool {
			return key != elementPath && !hasPathPrefix(key, elementPath)
		})
	}
	return b.rules.Add(f.path, matchingrules.ArrayContains(variants...))
}

// Template appends count copies of the template's value to the open array, with the
// template's rules moved under each copy's index.
func (b *Builder) Template(tmpl *Builder, count int) *Builder {
	if b.err != nil {
		return b
	}
	if f := b.top(); f == nil || !f.isArray() {
		return b.fail(invalidf("templates can only be added to arrays"))
	}
	value, rules, err := tmpl.Build()
	if err != nil {
		return b.fail(err)
	}
	for i := 0; i < count; i++ {
		path, _ := b.slot("")
		if err := b.rules.Merge(rules.Rebase("$", path)); err != nil {
			return b.fail(err)
		}
		b.put("", value)
	}
	return b
}

// Embed adds the value of another builder under name, with its rules moved below it.
func (b *Builder) Embed(name string, other *Builder) *Builder {
	path, ok := b.slot(name)
	if !ok {
		return b
	}
	value, rules, err := other.Build()
	if err != nil {
		return b.fail(err)
	}
	if err := b.rules.Merge(rules.Rebase("$", path)); err != nil {
		return b.fail(err)
	}
	b.put(name, value)
	return b
}

// Build closes any container still open and returns the value and its body rules.
func (b *Builder) Build() (body.Value, *matchingrules.Category, error) {
	for b.err == nil && len(b.frames) > 0 {
		b.close(b.top().isArray())
	}
	if b.err != nil {
		return body.Null(), nil, b.err
	}
	return b.root, b.rules, nil
}

func hasPathPrefix(path, prefix string) bool {
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return false
	}
	next := path[len(prefix)]
	return next == '.' || next == '['
}
