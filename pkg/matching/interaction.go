package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-consumer/pkg/body"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	log "github.com/sirupsen/logrus"
)

// CompareRequest compares an actual request with the expected one: method, path, query,
// headers and body, in that order.
func CompareRequest(expected, actual *pact.Request, config Config) Mismatches {
	rules := expected.MatchingRules
	var out Mismatches
	out = append(out, CompareMethod(expected.Method, actual.Method)...)
	out = append(out, ComparePath(expected.Path, actual.Path, rules.RulesFor(matchingrules.CategoryPath))...)
	out = append(out, CompareQuery(expected.Query, actual.Query, rules.RulesFor(matchingrules.CategoryQuery))...)
	out = append(out, CompareHeaders(expected.Headers, actual.Headers, rules.RulesFor(matchingrules.CategoryHeader))...)
	out = append(out, CompareBody(expected.Body, expected.ContentType(), actual.Body, actual.ContentType(),
		rules.RulesFor(matchingrules.CategoryBody), config)...)
	log.Debugf("compared %s with expected %s: %d mismatches", actual, expected, len(out))
	return out
}

// CompareResponse compares an actual response with the expected one. A body of the wrong
// media type is reported first and replaces the body comparison.
func CompareResponse(expected, actual *pact.Response, config Config) Mismatches {
	rules := expected.MatchingRules
	var out Mismatches
	typeMismatch := BodyTypeMismatch(expected.Body, expected.ContentType(), actual.Body, actual.ContentType())
	if typeMismatch != nil {
		out = append(out, *typeMismatch)
	}
	out = append(out, CompareStatus(expected.Status, actual.Status, rules.RulesFor(matchingrules.CategoryStatus))...)
	out = append(out, CompareHeaders(expected.Headers, actual.Headers, rules.RulesFor(matchingrules.CategoryHeader))...)
	if typeMismatch == nil {
		out = append(out, CompareBody(expected.Body, expected.ContentType(), actual.Body, actual.ContentType(),
			rules.RulesFor(matchingrules.CategoryBody), config)...)
	}
	return out
}

// CompareMessage compares message contents, then metadata.
func CompareMessage(expected, actual *pact.Message, config Config) Mismatches {
	rules := expected.MatchingRules
	var out Mismatches
	out = append(out, CompareBody(expected.Contents, expected.ContentType(), actual.Contents, actual.ContentType(),
		rules.RulesFor(matchingrules.CategoryBody), config)...)
	out = append(out, CompareMetadata(expected.Metadata, actual.Metadata, rules.RulesFor(matchingrules.CategoryMetadata))...)
	return out
}

func isContentTypeKey(key string) bool {
	lower := strings.ToLower(key)
	return lower == "contenttype" || lower == "content-type"
}

// CompareMetadata checks every expected metadata entry. A missing content type entry is not
// a mismatch because the content type can also come from the contents.
func CompareMetadata(expected, actual map[string]body.Value, rules *matchingrules.Category) []Mismatch {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Mismatch
	for _, key := range keys {
		want := expected[key]
		got, ok := actual[key]
		switch {
		case !ok && isContentTypeKey(key):
			continue
		case !ok:
			out = append(out, Mismatch{
				Kind:        KindMetadata,
				Path:        key,
				Expected:    want.String(),
				Description: fmt.Sprintf("Expected metadata key '%s' to have value %s but was missing", key, valueOf(want)),
			})
			continue
		}
		if g, ruled := rules.ForName(key, false); ruled {
			for _, d := range checkGroup(g, want, got, true) {
				out = append(out, Mismatch{Kind: KindMetadata, Path: key, Expected: want.String(), Actual: got.String(), Description: d})
			}
			continue
		}
		if isContentTypeKey(key) && contentTypesMatch(want.String(), got.String()) {
			continue
		}
		if !want.Equal(got) {
			out = append(out, Mismatch{
				Kind:     KindMetadata,
				Path:     key,
				Expected: want.String(),
				Actual:   got.String(),
				Description: fmt.Sprintf("Expected metadata key '%s' to have value %s (%s) but was %s (%s)",
					key, valueOf(want), typeOf(want), valueOf(got), typeOf(got)),
			})
		}
	}
	return out
}

type MatchKind int

const (
	NoMatch MatchKind = iota
	// PartialMatch is a request with the method and path of an interaction but other
	// differences.
	PartialMatch
	FullMatch
)

func (k MatchKind) String() string {
	switch k {
	case FullMatch:
		return "full"
	case PartialMatch:
		return "partial"
	}
	return "none"
}

// RequestMatch is the outcome of looking up the interaction an actual request belongs to.
type RequestMatch struct {
	Kind        MatchKind
	Interaction *pact.Interaction
	Mismatches  Mismatches
}

// MatchRequest returns the first interaction fully matching the request, otherwise the
// first partial match with its mismatches, otherwise NoMatch.
func MatchRequest(interactions []*pact.Interaction, actual *pact.Request, config Config) RequestMatch {
	var partial *RequestMatch
	for _, i := range interactions {
		if i.IsMessage() {
			continue
		}
		mismatches := CompareRequest(i.Request, actual, config)
		if len(mismatches) == 0 {
			return RequestMatch{Kind: FullMatch, Interaction: i}
		}
		if partial == nil && len(mismatches.OfKind(KindMethod, KindPath)) == 0 {
			partial = &RequestMatch{Kind: PartialMatch, Interaction: i, Mismatches: mismatches}
		}
	}
	if partial != nil {
		return *partial
	}
	return RequestMatch{Kind: NoMatch}
}
