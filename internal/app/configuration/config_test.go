package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/form3tech-oss/pact-consumer/pkg/matchingrules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv(t *testing.T) {
	t.Setenv("ADMIN_PORT", "9090")
	t.Setenv("PACT_FILES", "pacts/web-users.json;pacts/web-orders.json")
	t.Setenv("PACT_WATCH", "true")
	t.Setenv("WAIT_DURATION", "3s")

	config, err := NewFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9090, config.AdminPort)
	assert.Equal(t, "127.0.0.1", config.Host)
	assert.Equal(t, []string{"pacts/web-users.json", "pacts/web-orders.json"}, config.PactFiles)
	assert.True(t, config.Watch)
	assert.Equal(t, defaultDelay, config.WaitDelay)
	assert.Equal(t, 3*time.Second, config.WaitDuration)
	assert.Equal(t, "info", config.LogLevel)
}

func TestServers(t *testing.T) {
	dir := t.TempDir()
	serversFile := filepath.Join(dir, "servers.yaml")
	require.NoError(t, os.WriteFile(serversFile, []byte(`
servers:
  - name: users
    pact: pacts/web-users.json
    port: 9001
    tls: true
    strictObjects: true
    specificationVersion: "2.0.0"
  - name: billing
    pact: /srv/pacts/web-billing.json
`), 0o644))

	tests := []struct {
		name     string
		config   Config
		expected []ServerConfig
		err      string
	}{
		{
			name:   "pact files",
			config: Config{PactFiles: []string{"pacts/web-orders.json", " "}},
			expected: []ServerConfig{
				{Name: "web-orders", Pact: "pacts/web-orders.json"},
			},
		},
		{
			name:   "servers file then pact files",
			config: Config{ServersFile: serversFile, PactFiles: []string{"web-orders.json"}},
			expected: []ServerConfig{
				{
					Name:          "users",
					Pact:          filepath.Join(dir, "pacts/web-users.json"),
					Port:          9001,
					TLS:           true,
					StrictObjects: true,
					Version:       "2.0.0",
					SpecVersion:   matchingrules.V2,
				},
				{Name: "billing", Pact: "/srv/pacts/web-billing.json"},
				{Name: "web-orders", Pact: "web-orders.json"},
			},
		},
		{
			name:   "duplicated name",
			config: Config{PactFiles: []string{"a/users.json", "b/users.json"}},
			err:    `server "users" is configured twice`,
		},
		{
			name:   "missing servers file",
			config: Config{ServersFile: filepath.Join(dir, "nope.yaml")},
			err:    "unable to read servers file",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			servers, err := tt.config.Servers()
			if tt.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, servers)
		})
	}
}

func TestLoadServersFileRejectsIncompleteServers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers:\n  - name: users\n"), 0o644))

	_, err := LoadServersFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a name and a pact")
}
