package pactmock_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-consumer/internal/app/configuration"
	"github.com/form3tech-oss/pact-consumer/pkg/dsl"
	"github.com/form3tech-oss/pact-consumer/pkg/pactmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startStubServer(t *testing.T) (*pactmock.MockConfiguration, string) {
	pb := dsl.NewPact("web", "accounts")
	pb.AddInteraction().
		UponReceiving("an account is opened").
		WithRequest(dsl.Request{
			Method: "POST",
			Path:   dsl.String("/accounts"),
			Body:   dsl.NewObject().StringType("owner", "Mary"),
		}).
		WillRespondWith(dsl.Response{Status: 201})
	p, err := pb.Build()
	require.NoError(t, err)
	file, err := p.Write(t.TempDir())
	require.NoError(t, err)

	server, err := configuration.StartServer(configuration.Config{}, configuration.ServerConfig{Name: "accounts", Pact: file})
	require.NoError(t, err)

	admin := httptest.NewServer(configuration.NewAdminAPI(configuration.Config{}))
	t.Cleanup(func() {
		admin.Close()
		configuration.ShutdownAllServers()
	})

	conf := pactmock.Configuration(admin.URL + "/")
	require.NoError(t, conf.WaitUntilReady(time.Second))
	return conf, server.URL()
}

func openAccount(t *testing.T, baseURL, content string) {
	res, err := http.Post(baseURL+"/accounts", "application/json", strings.NewReader(content))
	require.NoError(t, err)
	res.Body.Close()
}

func TestServers(t *testing.T) {
	conf, baseURL := startStubServer(t)

	servers, err := conf.Servers()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "accounts", servers[0].Name)
	assert.Equal(t, baseURL, servers[0].URL)
	assert.Equal(t, "web", servers[0].Consumer)
	assert.Equal(t, 1, servers[0].Interactions)

	require.NoError(t, conf.Reset())
	servers, err = conf.Servers()
	require.NoError(t, err)
	assert.Empty(t, servers)
}

func TestCapturesAndVerification(t *testing.T) {
	conf, baseURL := startStubServer(t)
	server := conf.Server("accounts")

	verification, err := server.Verify()
	assert.True(t, errors.Is(err, pactmock.ErrMismatches))
	require.NotNil(t, verification)
	assert.False(t, verification.OK)

	assert.True(t, errors.Is(server.WaitForAll(50*time.Millisecond), pactmock.ErrTimeout))

	openAccount(t, baseURL, `{"owner":"John"}`)
	require.NoError(t, server.WaitForRequests(1, time.Second))
	require.NoError(t, server.WaitForAll(time.Second))

	captures, err := server.Captures()
	require.NoError(t, err)
	require.Len(t, captures, 1)
	assert.Equal(t, "POST", captures[0].Method)
	assert.Equal(t, "/accounts", captures[0].Path)
	assert.JSONEq(t, `{"owner":"John"}`, string(captures[0].Body))

	var owners []string
	require.NoError(t, server.Select("$[*].body.owner", &owners))
	assert.Equal(t, []string{"John"}, owners)
	assert.Error(t, server.Select("$[", &owners))

	verification, err = server.Verify()
	require.NoError(t, err)
	assert.True(t, verification.OK)

	require.NoError(t, server.Reload())
	captures, err = server.Captures()
	require.NoError(t, err)
	assert.Empty(t, captures)
}

func TestUnknownServer(t *testing.T) {
	conf, _ := startStubServer(t)
	server := conf.Server("payments")

	_, err := server.Captures()
	assert.True(t, errors.Is(err, pactmock.ErrNotFound))
	_, err = server.Verify()
	assert.True(t, errors.Is(err, pactmock.ErrNotFound))
	assert.True(t, errors.Is(server.WaitForAll(time.Second), pactmock.ErrNotFound))
	assert.True(t, errors.Is(server.Reload(), pactmock.ErrNotFound))
}
