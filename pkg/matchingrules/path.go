package matchingrules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidPath is returned for rule paths that do not follow the pact path syntax.
var ErrInvalidPath = errors.New("invalid matching rule path")

type TokenKind int

const (
	TokenRoot TokenKind = iota
	TokenField
	TokenIndex
	TokenStar
	TokenStarIndex
)

type Token struct {
	Kind  TokenKind
	Name  string
	Index int
}

// Segment is one step of a concrete location in a document being compared.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
	IsRoot  bool
}

var identifier = regexp.MustCompile(`^\w+$`)

// ParsePath parses "$", ".name", "['name']", "[n]", "[*]" and ".*" steps.
func ParsePath(path string) ([]Token, error) {
	if !strings.HasPrefix(path, "$") {
		return nil, errors.Wrapf(ErrInvalidPath, "%q must start with '$'", path)
	}

	tokens := []Token{{Kind: TokenRoot}}
	rest := path[1:]
	for len(rest) > 0 {
		switch rest[0] {
		case '.':
			rest = rest[1:]
			if strings.HasPrefix(rest, "*") {
				tokens = append(tokens, Token{Kind: TokenStar})
				rest = rest[1:]
				continue
			}
			end := strings.IndexAny(rest, ".[")
			if end < 0 {
				end = len(rest)
			}
			if end == 0 {
				return nil, errors.Wrapf(ErrInvalidPath, "%q has an empty field name", path)
			}
			tokens = append(tokens, Token{Kind: TokenField, Name: rest[:end]})
			rest = rest[end:]
		case '[':
			closing := strings.Index(rest, "]")
			if closing < 0 {
				return nil, errors.Wrapf(ErrInvalidPath, "%q has an unclosed '['", path)
			}
			inner := rest[1:closing]
			if strings.HasPrefix(inner, "'") {
				closing = strings.Index(rest, "']")
				if closing < 2 {
					return nil, errors.Wrapf(ErrInvalidPath, "%q has an unterminated quoted field", path)
				}
				tokens = append(tokens, Token{Kind: TokenField, Name: rest[2:closing]})
				rest = rest[closing+2:]
				continue
			}
			switch {
			case inner == "*":
				tokens = append(tokens, Token{Kind: TokenStarIndex})
			default:
				index, err := strconv.Atoi(inner)
				if err != nil || index < 0 {
					return nil, errors.Wrapf(ErrInvalidPath, "%q has an invalid index %q", path, inner)
				}
				tokens = append(tokens, Token{Kind: TokenIndex, Index: index})
			}
			rest = rest[closing+1:]
		default:
			return nil, errors.Wrapf(ErrInvalidPath, "%q has an unexpected character %q", path, rest[0])
		}
	}
	return tokens, nil
}

// ValidatePath checks a rule path without keeping the tokens.
func ValidatePath(path string) error {
	_, err := ParsePath(path)
	return err
}

func tokenWeight(t Token, s Segment) int {
	switch t.Kind {
	case TokenRoot:
		if s.IsRoot {
			return 2
		}
	case TokenField:
		if !s.IsIndex && !s.IsRoot && s.Name == t.Name {
			return 2
		}
	case TokenIndex:
		if s.IsIndex && s.Index == t.Index {
			return 2
		}
	case TokenStar:
		if !s.IsRoot {
			return 1
		}
	case TokenStarIndex:
		if s.IsIndex {
			return 1
		}
	}
	return 0
}

// PathWeight scores how well rule tokens describe a concrete location. Zero means the rule
// does not apply. A rule registered on an ancestor applies to its descendants; exact steps
// weigh more than wildcard steps.
func PathWeight(tokens []Token, location []Segment) int {
	if len(tokens) > len(location) {
		return 0
	}
	weight := 1
	for i, t := range tokens {
		w := tokenWeight(t, location[i])
		if w == 0 {
			return 0
		}
		weight *= w
	}
	return weight
}

func Root() []Segment {
	return []Segment{{IsRoot: true}}
}

func WithField(location []Segment, name string) []Segment {
	out := make([]Segment, len(location), len(location)+1)
	copy(out, location)
	return append(out, Segment{Name: name})
}

func WithIndex(location []Segment, index int) []Segment {
	out := make([]Segment, len(location), len(location)+1)
	copy(out, location)
	return append(out, Segment{Index: index, IsIndex: true})
}

// FormatLocation renders a location in the same syntax the rule paths use.
func FormatLocation(location []Segment) string {
	var sb strings.Builder
	for _, s := range location {
		switch {
		case s.IsRoot:
			sb.WriteString("$")
		case s.IsIndex:
			sb.WriteString("[" + strconv.Itoa(s.Index) + "]")
		default:
			sb.WriteString(fieldStep(s.Name))
		}
	}
	return sb.String()
}

func fieldStep(name string) string {
	if identifier.MatchString(name) {
		return "." + name
	}
	return "['" + name + "']"
}

func FieldPath(parent, name string) string {
	return parent + fieldStep(name)
}

func IndexPath(parent string, index int) string {
	return parent + "[" + strconv.Itoa(index) + "]"
}

func StarIndexPath(parent string) string {
	return parent + "[*]"
}

func AnyKeyPath(parent string) string {
	return parent + ".*"
}

func countStars(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		if t.Kind == TokenStar {
			n++
		}
	}
	return n
}
