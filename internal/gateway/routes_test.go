package gateway

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- isAllowedConfigPath tests ---

func TestIsAllowedConfigPath(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		// Allowed paths
		{"engine", true},
		{"engine.surface", true},
		{"engine.proactiveStarter", true},
		{"logging", true},
		{"logging.level", true},
		{"gateway.port", true},
		{"gateway.bind", true},
		{"gateway.allowedOrigins", true},
		{"store.driver", true},
		{"store.retentionDays", true},
		{"store.pruneSchedule", true},
		// Blocked paths (not in allowlist)
		{"gateway", false},
		{"gateway.auth", false},
		{"gateway.auth.token", false},
		{"gateway.auth.jwtSecret", false},
		{"gateway.portal", false},
		{"backend", false},
		{"backend.apiKey", false},
		{"backend.accessToken", false},
		{"store", false},
		{"store.dsn", false},
		{"store.path", false},
		{"engines", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isAllowedConfigPath(tt.path))
		})
	}
}

func TestServerMethods(t *testing.T) {
	env := newTestEnv(t, nil)

	methods := env.srv.Methods()
	assert.True(t, sort.StringsAreSorted(methods))
	assert.Equal(t, []string{
		"chat.expand",
		"chat.history",
		"chat.mount",
		"chat.new",
		"chat.select",
		"chat.send",
		"chat.starter",
		"config.get",
		"config.set",
		"health",
		"sessions.archive",
		"sessions.search",
	}, methods)
}

// --- config RPC tests ---

func TestConfigGet(t *testing.T) {
	env := newTestEnv(t, nil)
	c := connect(t, env)

	var out struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	c.ok("config.get", configGetParams{Key: "engine.surface"}, &out)
	assert.Equal(t, "engine.surface", out.Key)
	assert.Equal(t, "widget", out.Value)
}

func TestConfigSetThenGet(t *testing.T) {
	env := newTestEnv(t, nil)
	c := connect(t, env)

	c.ok("config.set", configSetParams{Key: "logging.level", Value: "debug"}, nil)

	var out struct {
		Value any `json:"value"`
	}
	c.ok("config.get", configGetParams{Key: "logging.level"}, &out)
	assert.Equal(t, "debug", out.Value)
}

func TestConfigSensitivePaths(t *testing.T) {
	env := newTestEnv(t, nil)
	c := connect(t, env)

	assert.Equal(t, "forbidden", c.fail("config.get", configGetParams{Key: "gateway.auth.token"}))
	assert.Equal(t, "forbidden", c.fail("config.set", configSetParams{Key: "gateway.auth.token", Value: "hacked"}))
	assert.Equal(t, "forbidden", c.fail("config.get", configGetParams{Key: "backend.apiKey"}))
	assert.Equal(t, "forbidden", c.fail("config.get", configGetParams{Key: "store.dsn"}))

	var out struct {
		Value any `json:"value"`
	}
	c.ok("config.get", configGetParams{Key: "gateway.port"}, &out)
	assert.EqualValues(t, 18790, out.Value)
}

func TestConfigInvalidKeys(t *testing.T) {
	env := newTestEnv(t, nil)
	c := connect(t, env)

	assert.Equal(t, "invalid_params", c.fail("config.get", configGetParams{Key: ""}))
	assert.Equal(t, "invalid_params", c.fail("config.set", configSetParams{Key: "", Value: "x"}))
	assert.Equal(t, "invalid_params", c.fail("config.get", configGetParams{Key: "engine..surface"}))
	assert.Equal(t, "not_found", c.fail("config.get", configGetParams{Key: "logging.nonexistent"}))
}
