// Package consumer runs consumer tests against a mock provider built from a pact, and
// writes the pact once the test passes.
package consumer

import (
	"time"

	"github.com/form3tech-oss/pact-consumer/internal/app/mockserver"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MockServer gives the test function access to the running mock provider.
type MockServer struct {
	server *mockserver.Server
}

// URL is the base URL the consumer under test should call.
func (m *MockServer) URL() string {
	return m.server.URL()
}

func (m *MockServer) Port() int {
	return m.server.Port()
}

func (m *MockServer) RequestCount() int {
	return m.server.RequestCount()
}

// Query evaluates a jsonpath expression over the requests received so far. Each request
// is an object with sequence, method, path, query, headers and body fields.
func (m *MockServer) Query(expr string) (interface{}, error) {
	return m.server.Query(expr)
}

// WaitForRequests is for consumers that call the provider asynchronously.
func (m *MockServer) WaitForRequests(count int, timeout time.Duration) bool {
	return m.server.WaitForRequests(count, timeout)
}

func (m *MockServer) WaitForInteractions(timeout time.Duration) bool {
	return m.server.WaitForInteractions(timeout)
}

// TestFunc exercises the consumer against the mock provider at baseURL.
type TestFunc func(baseURL string, mock *MockServer) error

// RunConsumerTest serves the HTTP interactions of p, runs test and verifies the received
// requests. The mock provider is stopped before verification even when test fails or
// panics. Setup failures, such as an invalid pact or a port in use, are reported in Err
// without calling test.
func RunConsumerTest(p *pact.Pact, config Config, test TestFunc) VerificationResult {
	version := config.version(p.SpecVersion)
	if err := validate(p, version); err != nil {
		return VerificationResult{Err: err}
	}

	server := mockserver.New(p.HTTPInteractions(), config.mockServer(version))
	if err := server.Start(); err != nil {
		return VerificationResult{Err: errors.Wrap(err, "unable to start the mock provider")}
	}
	log.WithFields(log.Fields{
		"consumer": p.Consumer,
		"provider": p.Provider,
		"url":      server.URL(),
	}).Info("running consumer test")
	log.Debugf("declared interactions:\n%s", p.Describe())

	testErr := runTest(server, test)

	if err := server.Stop(); err != nil {
		log.WithError(err).Warn("mock provider did not stop cleanly")
	}
	mismatches, err := server.Verify()
	if err != nil {
		return VerificationResult{Err: errors.Wrap(err, "unable to verify the mock provider")}
	}

	result := VerificationResult{Err: testErr, Mismatches: mismatches}
	return finish(p, version, config, result)
}

func runTest(server *mockserver.Server, test TestFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("consumer test panicked: %v", r)
		}
	}()
	return test(server.URL(), &MockServer{server: server})
}

func validate(p *pact.Pact, version matchingrules.SpecVersion) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return errors.Wrapf(p.ValidateForVersion(version), "pact cannot be written as %s", version)
}

// finish logs the outcome and writes the pact of a passing run.
func finish(p *pact.Pact, version matchingrules.SpecVersion, config Config, result VerificationResult) VerificationResult {
	if !result.Ok() {
		log.WithField("mismatches", len(result.Mismatches)).Warnf("consumer test of %s-%s failed", p.Consumer, p.Provider)
		return result
	}
	if config.PactDir == "" {
		return result
	}
	written := *p
	written.SpecVersion = version
	path, err := written.Write(config.PactDir)
	if err != nil {
		result.Err = errors.Wrap(err, "unable to write the pact")
		return result
	}
	result.PactFile = path
	return result
}
