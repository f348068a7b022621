package matching

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const maxQuotedBody = 256

// BodyTypeMismatch reports a body whose media type differs from the expected one. Bodies
// that are not expected to carry content are never type checked.
func BodyTypeMismatch(expected pact.Body, expectedType string, actual pact.Body, actualType string) *Mismatch {
	if !expected.IsPresent() || !actual.IsPresent() {
		return nil
	}
	e, a := pact.BaseType(expectedType), pact.BaseType(actualType)
	if e == "" || a == "" || e == a || (pact.IsJSON(e) && pact.IsJSON(a)) || (pact.IsXML(e) && pact.IsXML(a)) {
		return nil
	}
	return &Mismatch{
		Kind:        KindBodyType,
		Expected:    e,
		Actual:      a,
		Description: fmt.Sprintf("Expected a body of type '%s' but the actual type was '%s'", e, a),
	}
}

// CompareBody compares bodies by content type: JSON and XML structurally, anything else
// with a root rule or by bytes.
func CompareBody(expected pact.Body, expectedType string, actual pact.Body, actualType string, rules *matchingrules.Category, config Config) []Mismatch {
	if m := BodyTypeMismatch(expected, expectedType, actual, actualType); m != nil {
		return []Mismatch{*m}
	}

	switch {
	case expected.IsMissing():
		return nil
	case expected.IsNull() || expected.IsEmpty():
		if actual.IsPresent() {
			return []Mismatch{{
				Kind:        KindBody,
				Path:        "$",
				Actual:      actual.String(),
				Description: fmt.Sprintf("Expected an empty body but received '%s'", quote(actual.Content)),
			}}
		}
		return nil
	case !actual.IsPresent():
		return []Mismatch{{
			Kind:        KindBody,
			Path:        "$",
			Expected:    expected.String(),
			Description: fmt.Sprintf("Expected body '%s' but was missing", quote(expected.Content)),
		}}
	}

	contentType := expectedType
	if contentType == "" {
		contentType = pact.DetectContentType(expected.Content)
	}
	log.Debugf("comparing %s body with %d rules", pact.BaseType(contentType), rules.Len())

	switch {
	case pact.IsJSON(contentType):
		return compareParsed(expected, actual, rules, config, body.Parse)
	case pact.IsXML(contentType):
		return compareParsed(expected, actual, rules, config, ParseXML)
	}
	return compareText(expected, actual, rules)
}

func compareParsed(expected, actual pact.Body, rules *matchingrules.Category, config Config, parse func([]byte) (body.Value, error)) []Mismatch {
	want, err := parse(expected.Content)
	if err != nil {
		return []Mismatch{{Kind: KindBody, Path: "$", Description: fmt.Sprintf("Expected body is invalid: %s", err)}}
	}
	got, err := parse(actual.Content)
	if err != nil {
		return []Mismatch{{
			Kind:        KindBody,
			Path:        "$",
			Expected:    expected.String(),
			Actual:      actual.String(),
			Description: fmt.Sprintf("Actual body '%s' could not be parsed: %s", quote(actual.Content), err),
		}}
	}
	return CompareTree(want, got, rules, config)
}

func compareText(expected, actual pact.Body, rules *matchingrules.Category) []Mismatch {
	if match, ok := rules.Best(matchingrules.Root()); ok {
		want, got := body.String(string(expected.Content)), body.String(string(actual.Content))
		var out []Mismatch
		for _, d := range checkGroup(match.Group, want, got, true) {
			out = append(out, Mismatch{Kind: KindBody, Path: "$", Expected: expected.String(), Actual: actual.String(), Description: d})
		}
		return out
	}
	if bytes.Equal(expected.Content, actual.Content) {
		return nil
	}
	return []Mismatch{{
		Kind:     KindBody,
		Path:     "$",
		Expected: expected.String(),
		Actual:   actual.String(),
		Description: fmt.Sprintf("Actual body '%s' is not equal to the expected body '%s'",
			quote(actual.Content), quote(expected.Content)),
	}}
}

func quote(content []byte) string {
	if len(content) > maxQuotedBody {
		return string(content[:maxQuotedBody]) + "..."
	}
	return string(content)
}

// ParseXML converts an XML document into a tree so that the JSON engine and its rule paths
// apply to it. The root element becomes {"name": element}; an element is an object holding
// its attributes as "@attr", its child elements as arrays under their name and its
// non-blank text as "#text".
func ParseXML(data []byte) (body.Value, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return body.Null(), errors.Wrap(err, "invalid XML document")
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return body.Object(body.Field{Key: n.Data, Value: xmlElement(n)}), nil
		}
	}
	return body.Null(), errors.New("XML document has no root element")
}

func xmlElement(n *xmlquery.Node) body.Value {
	var fields []body.Field
	for _, a := range n.Attr {
		fields = append(fields, body.Field{Key: "@" + a.Name.Local, Value: body.String(a.Value)})
	}

	var (
		order    []string
		children = map[string][]body.Value{}
		text     strings.Builder
	)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case xmlquery.ElementNode:
			if _, seen := children[child.Data]; !seen {
				order = append(order, child.Data)
			}
			children[child.Data] = append(children[child.Data], xmlElement(child))
		case xmlquery.TextNode, xmlquery.CharDataNode:
			text.WriteString(child.Data)
		}
	}
	for _, name := range order {
		fields = append(fields, body.Field{Key: name, Value: body.Array(children[name]...)})
	}
	if t := strings.TrimSpace(text.String()); t != "" {
		fields = append(fields, body.Field{Key: "#text", Value: body.String(t)})
	}
	return body.Object(fields...)
}
