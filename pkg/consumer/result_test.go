package consumer_test

import (
	"testing"

	"github.com/form3tech-oss/pact-consumer/pkg/consumer"
	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestVerificationResult(t *testing.T) {
	mismatches := matching.Mismatches{
		{Kind: matching.KindBody, Path: "$.id", Description: "Expected 'x' (String) to be an integer", Interaction: "get user"},
		{Kind: matching.KindUnexpectedRequest, Path: "/other", Description: "Unexpected request received: GET /other"},
	}
	testErr := errors.New("client failed")

	tests := []struct {
		name        string
		result      consumer.VerificationResult
		ok          bool
		description string
		err         string
	}{
		{
			name:        "ok",
			result:      consumer.VerificationResult{},
			ok:          true,
			description: "OK",
		},
		{
			name:        "test error",
			result:      consumer.VerificationResult{Err: testErr},
			description: "test failed: client failed",
			err:         "client failed",
		},
		{
			name:   "mismatches",
			result: consumer.VerificationResult{Mismatches: mismatches},
			description: "2 mismatch(es):\n" +
				"get user:\n" +
				"  body - $.id: Expected 'x' (String) to be an integer\n" +
				"unexpected-request - /other: Unexpected request received: GET /other",
			err: "pact verification failed:\n" +
				"get user:\n" +
				"  body - $.id: Expected 'x' (String) to be an integer\n" +
				"unexpected-request - /other: Unexpected request received: GET /other",
		},
		{
			name:   "test error and mismatches",
			result: consumer.VerificationResult{Err: testErr, Mismatches: mismatches[1:]},
			description: "test failed: client failed\n" +
				"1 mismatch(es):\n" +
				"unexpected-request - /other: Unexpected request received: GET /other",
			err: "unexpected-request - /other: Unexpected request received: GET /other: client failed",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.result.Ok())
			assert.Equal(t, tt.description, tt.result.Description())
			if tt.err == "" {
				assert.NoError(t, tt.result.AsError())
				return
			}
			assert.EqualError(t, tt.result.AsError(), tt.err)
		})
	}

	wrapped := consumer.VerificationResult{Err: testErr, Mismatches: mismatches}.AsError()
	assert.Equal(t, testErr, errors.Cause(wrapped))
}
