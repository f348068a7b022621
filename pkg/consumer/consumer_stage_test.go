package consumer_test

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/form3tech-oss/pact-consumer/pkg/consumer"
	"github.com/form3tech-oss/pact-consumer/pkg/dsl"
	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ConsumerStage struct {
	t          *testing.T
	assert     *assert.Assertions
	require    *require.Assertions
	builder    *dsl.PactBuilder
	config     consumer.Config
	result     consumer.VerificationResult
	testCalled bool
	user       map[string]interface{}
}

func NewConsumerStage(t *testing.T) (*ConsumerStage, *ConsumerStage, *ConsumerStage) {
	s := &ConsumerStage{
		t:       t,
		assert:  assert.New(t),
		require: require.New(t),
		builder: dsl.NewPact("web", "users"),
		config:  consumer.Config{PactDir: t.TempDir()},
	}
	return s, s, s
}

func (s *ConsumerStage) and() *ConsumerStage {
	return s
}

func (s *ConsumerStage) a_pact_with_a_user_interaction() *ConsumerStage {
	s.builder.AddInteraction().
		Given("user 1 exists").
		UponReceiving("a request for user 1").
		WithRequest(dsl.Request{
			Method:  "GET",
			Path:    dsl.Regex("/users/1", `/users/\d+`),
			Headers: map[string]dsl.Matcher{"Accept": dsl.String("application/json")},
		}).
		WillRespondWith(dsl.Response{
			Status: 200,
			Body: dsl.NewObject().
				IntegerType("id", 1).
				StringType("name", "Mary").
				EachLike("roles", 1).StringType("name", "admin").CloseObject().CloseArray(),
		})
	return s
}

func (s *ConsumerStage) the_pact_is_written_as_v2() *ConsumerStage {
	s.config.SpecVersion = matchingrules.V2
	return s
}

func (s *ConsumerStage) no_pact_directory() *ConsumerStage {
	s.config.PactDir = ""
	return s
}

func (s *ConsumerStage) run(test consumer.TestFunc) {
	p, err := s.builder.Build()
	s.require.NoError(err)
	s.result = consumer.RunConsumerTest(p, s.config, func(baseURL string, mock *consumer.MockServer) error {
		s.testCalled = true
		return test(baseURL, mock)
	})
}

func (s *ConsumerStage) fetchUser(baseURL, path string) error {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(&s.user)
}

func (s *ConsumerStage) the_consumer_fetches_the_user() *ConsumerStage {
	s.run(func(baseURL string, mock *consumer.MockServer) error {
		return s.fetchUser(baseURL, "/users/1")
	})
	return s
}

func (s *ConsumerStage) the_consumer_fetches_another_user() *ConsumerStage {
	s.run(func(baseURL string, mock *consumer.MockServer) error {
		return s.fetchUser(baseURL, "/users/42")
	})
	return s
}

func (s *ConsumerStage) the_consumer_does_nothing() *ConsumerStage {
	s.run(func(string, *consumer.MockServer) error { return nil })
	return s
}

func (s *ConsumerStage) the_consumer_calls_an_unknown_endpoint() *ConsumerStage {
	s.run(func(baseURL string, mock *consumer.MockServer) error {
		if err := s.fetchUser(baseURL, "/users/1"); err != nil {
			return err
		}
		return s.fetchUser(baseURL, "/accounts/1")
	})
	return s
}

func (s *ConsumerStage) the_consumer_panics() *ConsumerStage {
	s.run(func(baseURL string, mock *consumer.MockServer) error {
		if err := s.fetchUser(baseURL, "/users/1"); err != nil {
			return err
		}
		panic("boom")
	})
	return s
}

func (s *ConsumerStage) the_result_is_ok() *ConsumerStage {
	s.assert.True(s.result.Ok(), s.result.Description())
	s.assert.NoError(s.result.AsError())
	return s
}

func (s *ConsumerStage) the_consumer_received_the_example_user() *ConsumerStage {
	s.assert.Equal(float64(1), s.user["id"])
	s.assert.Equal("Mary", s.user["name"])
	return s
}

func (s *ConsumerStage) the_pact_file_is_written() *ConsumerStage {
	s.require.Equal(filepath.Join(s.config.PactDir, "web-users.json"), s.result.PactFile)
	written, err := pact.Load(s.result.PactFile)
	s.require.NoError(err)
	s.require.Len(written.Interactions, 1)
	s.assert.Equal("a request for user 1", written.Interactions[0].Description)
	return s
}

func (s *ConsumerStage) no_pact_file_is_written() *ConsumerStage {
	s.assert.Empty(s.result.PactFile)
	if s.config.PactDir != "" {
		_, err := os.Stat(filepath.Join(s.config.PactDir, "web-users.json"))
		s.assert.True(os.IsNotExist(err))
	}
	return s
}

func (s *ConsumerStage) the_result_has_mismatches_of_kind(kinds ...matching.Kind) *ConsumerStage {
	s.assert.False(s.result.Ok())
	got := make([]matching.Kind, 0, len(s.result.Mismatches))
	for _, m := range s.result.Mismatches {
		got = append(got, m.Kind)
	}
	s.assert.Equal(kinds, got, s.result.Description())
	return s
}

func (s *ConsumerStage) the_test_error_contains(text string) *ConsumerStage {
	s.require.Error(s.result.Err)
	s.assert.Contains(s.result.Err.Error(), text)
	return s
}

func (s *ConsumerStage) the_test_was_not_called() *ConsumerStage {
	s.assert.False(s.testCalled)
	return s
}
