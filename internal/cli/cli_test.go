package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soyeahso/consultant/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseBackend answers every chat request with the given deltas.
func sseBackend(t *testing.T, deltas ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			payload, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"delta": map[string]any{"content": d}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testHome points the CLI at a temporary home with the given config.
func testHome(t *testing.T, yaml string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("CONSULTANT_HOME", home)
	path := filepath.Join(home, "config.yaml")
	if yaml != "" {
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	testHome(t, "")
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "consultant "))
}

func TestConfigCommands(t *testing.T) {
	cfgPath := testHome(t, "")

	out, err := run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, cfgPath+"\n", out)

	out, err = run(t, "config", "set", "gateway.port", "19000")
	require.NoError(t, err)
	assert.Equal(t, "Set gateway.port = 19000\n", out)

	_, err = run(t, "config", "set", "engine.surface", "page")
	require.NoError(t, err)

	out, err = run(t, "config", "get", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "19000\n", out)

	out, err = run(t, "config", "get", "engine")
	require.NoError(t, err)
	assert.Equal(t, "surface: page\n", out)

	out, err = run(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, ": ok")

	_, err = run(t, "config", "unset", "gateway.port")
	require.NoError(t, err)
	_, err = run(t, "config", "get", "gateway.port")
	assert.ErrorContains(t, err, "not found")

	out, err = run(t, "config", "set", "backend.apiKey", "sk-live-123")
	require.NoError(t, err)
	assert.Equal(t, "Set backend.apiKey = ********\n", out)
	out, err = run(t, "config", "get", "backend")
	require.NoError(t, err)
	assert.Equal(t, "apiKey: '********'\n", out)
	out, err = run(t, "config", "get", "backend.apiKey", "--reveal")
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123\n", out)

	_, err = run(t, "config", "set", "store.driver", "mongo")
	require.NoError(t, err)
	out, err = run(t, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "store.driver")
}

func TestChatAndSessionsCommands(t *testing.T) {
	backend := sseBackend(t, "Here are two ideas:\n", "- Bundles\n- Loyalty points")
	home := t.TempDir()
	cfgPath := testHome(t, fmt.Sprintf(`
backend:
  chatUrl: %s
engine:
  timezone: UTC
store:
  driver: sqlite
  path: %s
`, backend.URL, filepath.Join(home, "chat.db")))
	require.FileExists(t, cfgPath)

	out, err := run(t, "chat", "--user", "alice", "How", "do", "I", "grow?")
	require.NoError(t, err)
	assert.Equal(t, "Here are two ideas:\n\n  • Bundles\n  • Loyalty points\n", out)

	out, err = run(t, "chat", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "you> How do I grow?")
	assert.Contains(t, out, "consultant>\nHere are two ideas:")

	out, err = run(t, "sessions", "list", "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "How do I grow?")

	out, err = run(t, "sessions", "list", "--user", "bob")
	require.NoError(t, err)
	assert.Equal(t, "(no sessions)\n", out)

	out, err = run(t, "sessions", "search", "--user", "alice", "bundles")
	require.NoError(t, err)
	assert.Contains(t, out, "[assistant]")

	out, err = run(t, "sessions", "prune", "--days", "30")
	require.NoError(t, err)
	assert.Equal(t, "Pruned 0 session(s) idle for more than 30 day(s)\n", out)

	_, err = run(t, "sessions", "prune")
	assert.ErrorContains(t, err, "no retention window")
}

func TestChatStreamAndNewSession(t *testing.T) {
	backend := sseBackend(t, "Hello", ", there")
	testHome(t, fmt.Sprintf("backend:\n  chatUrl: %s\nstore:\n  driver: memory\n", backend.URL))

	out, err := run(t, "chat", "--stream", "--new", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello, there\n", out)

	_, err = run(t, "chat", "--surface", "sidebar", "hi")
	assert.ErrorContains(t, err, "unknown surface")
}

func TestChatAccessDenied(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(backend.Close)
	testHome(t, fmt.Sprintf("backend:\n  chatUrl: %s\nstore:\n  driver: memory\n", backend.URL))

	_, err := run(t, "chat", "hi")
	assert.ErrorContains(t, err, "active membership")
}

func TestGatewayTokenCommand(t *testing.T) {
	testHome(t, "gateway:\n  auth:\n    mode: jwt\n    jwtSecret: signing-key\n")

	out, err := run(t, "gateway", "token", "--user", "shop-7", "--access=false")
	require.NoError(t, err)

	claims, err := gateway.ParseAccessToken("signing-key", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "shop-7", claims.Subject)
	assert.False(t, claims.Access)
}

func TestGatewayTokenRequiresSecret(t *testing.T) {
	testHome(t, "")
	_, err := run(t, "gateway", "token")
	assert.ErrorContains(t, err, "jwtSecret")
}
