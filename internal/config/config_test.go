package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, DefaultGatewayPort, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "token", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "widget", cfg.Engine.Surface)
	assert.Equal(t, 50, cfg.Engine.ArchiveLimit)
	assert.True(t, cfg.Engine.Persist())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, DefaultPruneSchedule, cfg.Store.PruneSchedule)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	// Should return defaults
	assert.Equal(t, DefaultGatewayPort, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
backend:
  chatUrl: https://project.example.co/functions/v1/chat
  apiKey: anon-key
  timeoutSeconds: 90
engine:
  surface: page
  proactiveStarter: true
  archiveLimit: 20
  timezone: Asia/Dubai
  persistTurns: false
store:
  driver: postgres
  dsn: postgres://app@db/consultant
  retentionDays: 90
gateway:
  port: 9999
  bind: lan
  auth:
    mode: jwt
    jwtSecret: s3cret
  allowedOrigins:
    - https://shop.example.com
logging:
  level: debug
  consoleStyle: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://project.example.co/functions/v1/chat", cfg.Backend.ChatURL)
	assert.Equal(t, "anon-key", cfg.Backend.APIKey)
	assert.Equal(t, 90, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, "page", cfg.Engine.Surface)
	assert.True(t, cfg.Engine.ProactiveStarter)
	assert.Equal(t, 20, cfg.Engine.ArchiveLimit)
	assert.Equal(t, "Asia/Dubai", cfg.Engine.Timezone)
	assert.False(t, cfg.Engine.Persist())
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://app@db/consultant", cfg.Store.DSN)
	assert.Equal(t, 90, cfg.Store.RetentionDays)
	assert.Equal(t, DefaultPruneSchedule, cfg.Store.PruneSchedule)
	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, "jwt", cfg.Gateway.Auth.Mode)
	assert.Equal(t, "s3cret", cfg.Gateway.Auth.JWTSecret)
	assert.Equal(t, []string{"https://shop.example.com"}, cfg.Gateway.AllowedOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)

	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONSULTANT_GATEWAY_PORT", "12345")
	t.Setenv("CONSULTANT_LOG_LEVEL", "TRACE")
	t.Setenv("CONSULTANT_BACKEND_URL", "http://localhost:54321/functions/v1/chat")
	t.Setenv("CONSULTANT_STORE_DRIVER", "Memory")
	t.Setenv("CONSULTANT_JWT_SECRET", "from-env")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "http://localhost:54321/functions/v1/chat", cfg.Backend.ChatURL)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "from-env", cfg.Gateway.Auth.JWTSecret)
}

func TestLoadExpandsCredentialReferences(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("TEST_CONSULTANT_KEY", "expanded-key")

	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  apiKey: ${TEST_CONSULTANT_KEY}
  accessToken: ${TEST_CONSULTANT_UNSET}
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.Backend.APIKey)
	assert.Equal(t, "${TEST_CONSULTANT_UNSET}", cfg.Backend.AccessToken)
}

func TestLoadDotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("CONSULTANT_API_KEY=from-dotenv\nCONSULTANT_LOG_LEVEL=debug\n"), 0o600))

	// Existing environment wins over .env.
	t.Setenv("CONSULTANT_LOG_LEVEL", "warn")
	// Register cleanup for the variable godotenv will set.
	t.Setenv("CONSULTANT_API_KEY", "")
	require.NoError(t, os.Unsetenv("CONSULTANT_API_KEY"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Backend.APIKey)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestPersistDefaultsToTrue(t *testing.T) {
	var e EngineConfig
	assert.True(t, e.Persist())
	off := false
	e.PersistTurns = &off
	assert.False(t, e.Persist())
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"gateway.port", []string{"gateway", "port"}, false},
		{"gateway.auth.mode", []string{"gateway", "auth", "mode"}, false},
		{"", nil, true},
		{"a..b", nil, true},
		{"__proto__.x", nil, true},
		{"x.constructor", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGetSetValueAtPath(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{
			"port": 18790,
		},
	}

	// Get existing
	val, ok := GetValueAtPath(root, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 18790, val)

	// Get missing
	_, ok = GetValueAtPath(root, []string{"gateway", "missing"})
	assert.False(t, ok)

	// Set existing
	SetValueAtPath(root, []string{"gateway", "port"}, 9999)
	val, ok = GetValueAtPath(root, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)

	// Set new nested
	SetValueAtPath(root, []string{"backend", "chatUrl"}, "https://x.example.co/chat")
	val, ok = GetValueAtPath(root, []string{"backend", "chatUrl"})
	assert.True(t, ok)
	assert.Equal(t, "https://x.example.co/chat", val)
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	raw := map[string]any{
		"gateway": map[string]any{
			"port": 9999,
		},
	}

	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)

	val, ok := GetValueAtPath(loaded, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)

	empty, err := LoadRaw(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}
