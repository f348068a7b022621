package mockserver

import (
	"fmt"

	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
)

// Verify compares the recorded requests with the declared interactions. Mismatches are
// ordered by interaction, then missing requests, with unexpected requests last. It returns
// ErrNotStopped while the server runs or if it never ran.
func (s *Server) Verify() (matching.Mismatches, error) {
	s.mu.Lock()
	if !s.ran || s.state != Stopped {
		s.mu.Unlock()
		return nil, ErrNotStopped
	}
	captures := append([]Capture(nil), s.captures...)
	s.mu.Unlock()

	return verify(s.interactions, captures, s.config.Matching), nil
}

func verify(interactions []*pact.Interaction, captures []Capture, config matching.Config) matching.Mismatches {
	// interactions that received a request, with the mismatches of partial matches
	attempted := map[*pact.Interaction]matching.Mismatches{}
	var unexpected matching.Mismatches
	for _, c := range captures {
		m := matching.MatchRequest(interactions, c.Request, config)
		if m.Kind == matching.NoMatch {
			unexpected = append(unexpected, matching.Mismatch{
				Kind:        matching.KindUnexpectedRequest,
				Path:        c.Request.Path,
				Actual:      c.Request.String(),
				Description: fmt.Sprintf("Unexpected request received: %s", c.Request),
			})
			continue
		}
		attempted[m.Interaction] = append(attempted[m.Interaction], m.Mismatches...)
	}

	var mismatches matching.Mismatches
	for _, i := range interactions {
		if i.IsMessage() {
			continue
		}
		partial, ok := attempted[i]
		if !ok {
			mismatches = append(mismatches, matching.Mismatch{
				Kind:        matching.KindMissingRequest,
				Path:        i.Request.Path,
				Expected:    i.Request.String(),
				Description: fmt.Sprintf("Expected request %s was not received", i.Request),
				Interaction: i.Description,
			})
			continue
		}
		mismatches = append(mismatches, partial.ForInteraction(i.Description)...)
	}
	return append(mismatches, unexpected...)
}

// Preview verifies the requests received so far without stopping the server. Requests
// still being handled may be left out, so only Verify gives the final result.
func (s *Server) Preview() matching.Mismatches {
	return verify(s.interactions, s.Captures(), s.config.Matching)
}
