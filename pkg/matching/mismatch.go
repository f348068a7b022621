// Package matching compares actual requests, responses and messages with the expected ones
// of a pact. Matching rules replace equality where they are registered; everything else is
// compared structurally. Differences are returned as Mismatch values, never as errors.
package matching

import (
	"fmt"
	"strings"

	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
)

type Kind string

const (
	KindStatus            Kind = "status"
	KindBodyType          Kind = "body-content-type"
	KindPath              Kind = "path"
	KindMethod            Kind = "method"
	KindQuery             Kind = "query"
	KindHeader            Kind = "header"
	KindBody              Kind = "body"
	KindMetadata          Kind = "metadata"
	KindMissingRequest    Kind = "missing-request"
	KindUnexpectedRequest Kind = "unexpected-request"
)

// Mismatch is one difference between expected and actual data. Path is the body path, the
// header, query parameter or metadata name, or the request path for request level kinds.
type Mismatch struct {
	Kind        Kind   `json:"kind"`
	Path        string `json:"path,omitempty"`
	Expected    string `json:"expected,omitempty"`
	Actual      string `json:"actual,omitempty"`
	Description string `json:"description"`
	Interaction string `json:"interaction,omitempty"`
}

func (m Mismatch) String() string {
	if m.Path == "" {
		return fmt.Sprintf("%s: %s", m.Kind, m.Description)
	}
	return fmt.Sprintf("%s - %s: %s", m.Kind, m.Path, m.Description)
}

type Mismatches []Mismatch

// Description renders one mismatch per line, grouped under the interaction they belong to.
func (ms Mismatches) Description() string {
	var sb strings.Builder
	current := ""
	for i, m := range ms {
		if m.Interaction != "" && (i == 0 || m.Interaction != current) {
			current = m.Interaction
			fmt.Fprintf(&sb, "%s:\n", current)
		}
		if m.Interaction != "" {
			sb.WriteString("  ")
		}
		sb.WriteString(m.String())
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// ForInteraction stamps the interaction description on each mismatch.
func (ms Mismatches) ForInteraction(description string) Mismatches {
	out := make(Mismatches, len(ms))
	for i, m := range ms {
		m.Interaction = description
		out[i] = m
	}
	return out
}

// OfKind returns the mismatches of the given kinds, in order.
func (ms Mismatches) OfKind(kinds ...Kind) Mismatches {
	var out Mismatches
	for _, m := range ms {
		for _, k := range kinds {
			if m.Kind == k {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Config tunes comparison. The zero value compares with V3 semantics and lenient objects.
type Config struct {
	// StrictObjects reports actual object keys that the expected object does not declare.
	StrictObjects bool
	// WildcardKeys lets a V2 rule registered at "parent.*" match objects with any keys.
	WildcardKeys bool
	SpecVersion  matchingrules.SpecVersion
}

func (c Config) version() matchingrules.SpecVersion {
	if c.SpecVersion == 0 {
		return matchingrules.V3
	}
	return c.SpecVersion
}
