package config

import (
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Backend validation
	if cfg.Backend.ChatURL != "" {
		u, err := url.Parse(cfg.Backend.ChatURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("backend.chatUrl", "must be an http(s) URL, got %q", cfg.Backend.ChatURL)
		}
	}
	if cfg.Backend.TimeoutSeconds < 0 {
		add("backend.timeoutSeconds", "must not be negative, got %d", cfg.Backend.TimeoutSeconds)
	}

	// Engine validation
	validSurfaces := []string{"widget", "page"}
	if cfg.Engine.Surface != "" && !slices.Contains(validSurfaces, cfg.Engine.Surface) {
		add("engine.surface", "must be one of %v, got %q", validSurfaces, cfg.Engine.Surface)
	}
	if cfg.Engine.ArchiveLimit < 0 {
		add("engine.archiveLimit", "must not be negative, got %d", cfg.Engine.ArchiveLimit)
	}
	if cfg.Engine.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Engine.Timezone); err != nil {
			add("engine.timezone", "unknown time zone %q", cfg.Engine.Timezone)
		}
	}

	// Store validation
	validDrivers := []string{"sqlite", "postgres", "memory"}
	if cfg.Store.Driver != "" && !slices.Contains(validDrivers, cfg.Store.Driver) {
		add("store.driver", "must be one of %v, got %q", validDrivers, cfg.Store.Driver)
	}
	if cfg.Store.Driver == "postgres" && cfg.Store.DSN == "" {
		add("store.dsn", "required when store.driver is postgres")
	}
	if cfg.Store.RetentionDays < 0 {
		add("store.retentionDays", "must not be negative, got %d", cfg.Store.RetentionDays)
	}
	if cfg.Store.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Store.PruneSchedule); err != nil {
			add("store.pruneSchedule", "invalid cron expression: %v", err)
		}
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when gateway.bind is custom")
	}

	validAuthModes := []string{"token", "password", "jwt"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	}
	if cfg.Gateway.Auth.Mode == "jwt" && cfg.Gateway.Auth.JWTSecret == "" {
		add("gateway.auth.jwtSecret", "required when gateway.auth.mode is jwt")
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}

	validConsoleStyles := []string{"pretty", "compact", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	return issues
}
