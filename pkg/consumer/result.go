package consumer

import (
	"fmt"
	"strings"

	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/pkg/errors"
)

// VerificationResult is the outcome of one consumer test. It passed when the test function
// returned no error and the mock provider recorded no mismatch. A test error is kept
// alongside any mismatches.
type VerificationResult struct {
	// Err is the error returned by the test function, or the setup error that stopped the
	// run before the test function was called.
	Err        error
	Mismatches matching.Mismatches
	// PactFile is the pact written by a passing run, when a pact directory is configured.
	PactFile string
}

func (r VerificationResult) Ok() bool {
	return r.Err == nil && len(r.Mismatches) == 0
}

// Description renders the test error followed by one line per mismatch.
func (r VerificationResult) Description() string {
	if r.Ok() {
		return "OK"
	}
	var sb strings.Builder
	if r.Err != nil {
		fmt.Fprintf(&sb, "test failed: %s", r.Err)
	}
	if len(r.Mismatches) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%d mismatch(es):\n%s", len(r.Mismatches), r.Mismatches.Description())
	}
	return sb.String()
}

// AsError is nil for a passing run. A test error is wrapped with the mismatch description.
func (r VerificationResult) AsError() error {
	switch {
	case r.Ok():
		return nil
	case r.Err != nil && len(r.Mismatches) == 0:
		return r.Err
	case r.Err != nil:
		return errors.Wrap(r.Err, r.Mismatches.Description())
	}
	return errors.Errorf("pact verification failed:\n%s", r.Mismatches.Description())
}
