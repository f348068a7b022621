package provider_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/form3tech-oss/pact-consumer/pkg/dsl"
	"github.com/form3tech-oss/pact-consumer/pkg/matching"
	"github.com/form3tech-oss/pact-consumer/pkg/pact"
	"github.com/form3tech-oss/pact-consumer/pkg/provider"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userPact(t *testing.T) *pact.Pact {
	pb := dsl.NewPact("web", "users")
	pb.AddInteraction().
		UponReceiving("a user is renamed").
		WithRequest(dsl.Request{
			Method:  "PUT",
			Path:    dsl.Regex("/users/1", `/users/\d+`),
			Headers: map[string]dsl.Matcher{"Content-Type": dsl.String("application/json")},
			Body:    dsl.NewObject().StringType("name", "Mary"),
		}).
		WillRespondWith(dsl.Response{
			Status: 200,
			Body:   dsl.NewObject().IntegerType("id", 1).StringType("name", "Mary"),
		})
	pb.AddMessage().
		ExpectsToReceive("a user renamed event").
		WithMetadata(map[string]dsl.Matcher{"topic": dsl.String("users")}).
		WithContent(dsl.NewObject().IntegerType("id", 1))
	p, err := pb.Build()
	require.NoError(t, err)
	return p
}

func providerReturning(status int, content string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprint(w, content)
	}))
}

func TestVerifyExchange(t *testing.T) {
	tests := []struct {
		name        string
		requestBody string
		status      int
		response    string
		expected    []string
	}{
		{
			name:        "matching exchange",
			requestBody: `{"name":"John"}`,
			status:      200,
			response:    `{"id":42,"name":"John"}`,
		},
		{
			name:        "wrong request body type",
			requestBody: `{"name":7}`,
			status:      200,
			response:    `{"id":42,"name":"John"}`,
			expected:    []string{"body - $.name"},
		},
		{
			name:        "wrong status and response body",
			requestBody: `{"name":"John"}`,
			status:      404,
			response:    `{"id":"forty-two"}`,
			expected:    []string{"status", "body - $:", "body - $.id"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			i := userPact(t).HTTPInteractions()[0]
			server := providerReturning(tt.status, tt.response)
			defer server.Close()

			req, err := http.NewRequest(http.MethodPut, server.URL+"/users/7", strings.NewReader(tt.requestBody))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")
			res, err := http.DefaultClient.Do(req)
			require.NoError(t, err)

			mismatches, err := provider.VerifyExchange(i, req, res, matching.Config{})
			require.NoError(t, err)

			require.Len(t, mismatches, len(tt.expected), mismatches.Description())
			for n, prefix := range tt.expected {
				assert.True(t, strings.HasPrefix(mismatches[n].String(), prefix), mismatches[n].String())
				assert.Equal(t, "a user is renamed", mismatches[n].Interaction)
			}
		})
	}
}

func TestVerifyExchangeRestoresTheRequestBody(t *testing.T) {
	i := userPact(t).HTTPInteractions()[0]
	req, err := http.NewRequest(http.MethodPut, "http://provider/users/1", strings.NewReader(`{"name":"Mary"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	mismatches, err := provider.VerifyExchange(i, req, nil, matching.Config{})
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	content, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Mary"}`, string(content))
}

func TestVerifyResponse(t *testing.T) {
	i := userPact(t).HTTPInteractions()[0]
	actual := pact.NewResponse()
	actual.Headers["Content-Type"] = []string{"application/json"}
	actual.Body = pact.BodyFrom([]byte(`{"id":3,"name":"Ann"}`), pact.MediaTypeJSON)

	mismatches, err := provider.VerifyResponse(i, actual, matching.Config{})
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestVerifyMessage(t *testing.T) {
	message := userPact(t).Messages()[0]

	mismatches, err := provider.VerifyMessage(message, []byte(`{"id":12}`), map[string]interface{}{
		"topic":       "users",
		"contentType": "application/json",
	}, matching.Config{})
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	mismatches, err = provider.VerifyMessage(message, []byte(`{"id":"twelve"}`), map[string]interface{}{"topic": "accounts"}, matching.Config{})
	require.NoError(t, err)
	require.Len(t, mismatches, 2, mismatches.Description())
	assert.Equal(t, matching.KindBody, mismatches[0].Kind)
	assert.Equal(t, "$.id", mismatches[0].Path)
	assert.Equal(t, matching.KindMetadata, mismatches[1].Kind)
	assert.Equal(t, "topic", mismatches[1].Path)
}

func TestInteractionKindMustFit(t *testing.T) {
	p := userPact(t)

	_, err := provider.VerifyExchange(p.Messages()[0], nil, nil, matching.Config{})
	assert.True(t, errors.Is(err, provider.ErrWrongInteraction))

	_, err = provider.VerifyResponse(p.Messages()[0], pact.NewResponse(), matching.Config{})
	assert.True(t, errors.Is(err, provider.ErrWrongInteraction))

	_, err = provider.VerifyMessage(p.HTTPInteractions()[0], nil, nil, matching.Config{})
	assert.True(t, errors.Is(err, provider.ErrWrongInteraction))
}
