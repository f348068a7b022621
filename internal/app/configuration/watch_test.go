package configuration

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "watched.json")
	other := filepath.Join(dir, "other.json")
	require.NoError(t, os.WriteFile(watched, []byte("{}"), 0o644))

	reloads := make(chan string, 10)
	w, err := NewWatcher([]string{watched}, 100*time.Millisecond, func(path string) { reloads <- path })
	require.NoError(t, err)
	defer w.Close()

	for n := 0; n < 3; n++ {
		require.NoError(t, os.WriteFile(watched, []byte("{ }"), 0o644))
	}
	require.NoError(t, os.WriteFile(other, []byte("{}"), 0o644))

	select {
	case path := <-reloads:
		expected, err := filepath.Abs(watched)
		require.NoError(t, err)
		assert.Equal(t, expected, path)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after the pact file changed")
	}

	select {
	case path := <-reloads:
		t.Fatalf("unexpected second reload of %s", path)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchPactFilesReloadsServers(t *testing.T) {
	defer ShutdownAllServers()

	dir := t.TempDir()
	file := writePact(t, dir, "/users")
	server, err := StartServer(Config{}, ServerConfig{Name: "users", Pact: file})
	require.NoError(t, err)

	w, err := WatchPactFiles(PactFiles())
	require.NoError(t, err)
	defer w.Close()

	writePact(t, dir, "/accounts")

	reloaded := retryFor(func() bool {
		res, err := http.Get(server.URL() + "/accounts")
		if err != nil {
			return false
		}
		res.Body.Close()
		return res.StatusCode == http.StatusOK
	}, 50*time.Millisecond, 5*time.Second)
	assert.True(t, reloaded, "server was not reloaded")
}

func retryFor(do func() bool, delay, duration time.Duration) bool {
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if do() {
			return true
		}
		time.Sleep(delay)
	}
	return false
}
