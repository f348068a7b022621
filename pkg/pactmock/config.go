package pactmock

import (
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
)

// MockConfiguration talks to the admin API of a pact-mock stub server.
type MockConfiguration struct {
	client http.Client
	url    string
}

func Configuration(url string) *MockConfiguration {
	return &MockConfiguration{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: strings.TrimSuffix(url, "/"),
	}
}

// WaitUntilReady polls the admin API until it answers or timeout elapses.
func (conf *MockConfiguration) WaitUntilReady(timeout time.Duration) error {
	start := time.Now()
	return retry.Do(func() error {
		res, err := conf.client.Get(conf.url + "/ready")
		if err != nil {
			return err
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			return errors.Errorf("admin API is not ready: %d", res.StatusCode)
		}
		return nil
	},
		retry.Attempts(0),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool { return time.Since(start) < timeout }),
	)
}

func (conf *MockConfiguration) Servers() ([]ServerStatus, error) {
	var servers []ServerStatus
	if err := conf.getJSON("/servers", &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// Reset stops every mock server of the stub server.
func (conf *MockConfiguration) Reset() error {
	req, err := http.NewRequest(http.MethodDelete, conf.url+"/servers", nil)
	if err != nil {
		return err
	}
	res, err := conf.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "unable to reset mock servers")
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return apiError(res)
	}
	return nil
}

func (conf *MockConfiguration) Server(name string) *MockServer {
	return &MockServer{conf: conf, name: name}
}
