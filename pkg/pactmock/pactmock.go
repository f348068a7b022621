// Package pactmock is a client of the pact-mock admin API, for tests that run their
// consumer against a stub server started outside of the test process.
package pactmock

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/form3tech-oss/pact-consumer/internal/app/httpresponse"
	"github.com/pkg/errors"
)

var (
	ErrTimeout    = errors.New("timeout waiting for mock server")
	ErrNotFound   = errors.New("no such mock server")
	ErrMismatches = errors.New("mock server has mismatches")
)

type MockServer struct {
	conf *MockConfiguration
	name string
}

func (s *MockServer) path(endpoint string) string {
	return "/servers/" + url.PathEscape(s.name) + endpoint
}

func (s *MockServer) Captures() ([]Capture, error) {
	var captures []Capture
	if err := s.conf.getJSON(s.path("/captures"), &captures); err != nil {
		return nil, err
	}
	return captures, nil
}

// Select evaluates a jsonpath expression over the captured requests and decodes the result
// into out.
func (s *MockServer) Select(expr string, out interface{}) error {
	return s.conf.getJSON(s.path("/captures?select="+url.QueryEscape(expr)), out)
}

// Verify checks the requests received so far. A failed verification returns the
// mismatches along with an error wrapping ErrMismatches.
func (s *MockServer) Verify() (*Verification, error) {
	res, err := s.conf.client.Get(s.conf.url + s.path("/verification"))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to verify %s", s.name)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK, http.StatusInternalServerError:
	default:
		return nil, apiError(res)
	}
	var verification Verification
	if err := json.NewDecoder(res.Body).Decode(&verification); err != nil {
		return nil, errors.Wrap(err, "unable to decode verification")
	}
	if !verification.OK {
		return &verification, errors.Wrapf(ErrMismatches, "%s:\n%s", s.name, verification.Description)
	}
	return &verification, nil
}

func (s *MockServer) WaitForRequests(count int, timeout time.Duration) error {
	q := url.Values{}
	q.Add("count", strconv.Itoa(count))
	q.Add("timeout", timeout.String())
	return s.wait(q)
}

// WaitForAll waits until every interaction of the server was served.
func (s *MockServer) WaitForAll(timeout time.Duration) error {
	q := url.Values{}
	q.Add("timeout", timeout.String())
	return s.wait(q)
}

func (s *MockServer) wait(q url.Values) error {
	res, err := s.conf.client.Get(s.conf.url + s.path("/wait?"+q.Encode()))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusRequestTimeout {
		return errors.Wrap(ErrTimeout, s.name)
	}
	if res.StatusCode != http.StatusOK {
		return apiError(res)
	}
	return nil
}

// Reload restarts the server with the current content of its pact file.
func (s *MockServer) Reload() error {
	res, err := s.conf.client.Post(s.conf.url+s.path("/reload"), "application/json", nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return apiError(res)
	}
	return nil
}

func (conf *MockConfiguration) getJSON(path string, out interface{}) error {
	res, err := conf.client.Get(conf.url + path)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return apiError(res)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "unable to decode %s", path)
	}
	return nil
}

func apiError(res *http.Response) error {
	content, _ := io.ReadAll(res.Body)
	var apiErr httpresponse.APIError
	message := string(content)
	if json.Unmarshal(content, &apiErr) == nil && apiErr.ErrorMessage != "" {
		message = apiErr.ErrorMessage
	}
	if res.StatusCode == http.StatusNotFound {
		return errors.Wrap(ErrNotFound, message)
	}
	return errors.Errorf("%d: %s", res.StatusCode, message)
}
