package cli

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/soyeahso/consultant/internal/config"
	"github.com/soyeahso/consultant/internal/hooks"
	"github.com/soyeahso/consultant/internal/store"
	"github.com/soyeahso/consultant/internal/stream"
)

// runtime holds what the chat, sessions and gateway commands share.
type runtime struct {
	cfg      config.Config
	backend  *store.Backend
	hooks    *hooks.Manager
	consumer *stream.Consumer
	location *time.Location
}

// loadConfig loads and validates the config file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

func openRuntime(cfg config.Config) (*runtime, error) {
	dbPath := cfg.Store.Path
	if dbPath == "" {
		if err := paths.EnsureDirs(); err != nil {
			return nil, err
		}
		dbPath = paths.Database
	}

	backend, err := store.OpenBackend(cfg.Store.Driver, dbPath, cfg.Store.DSN, log)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}

	loc := time.Local
	if cfg.Engine.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Engine.Timezone); err != nil {
			backend.Close()
			return nil, err
		}
	}

	client := &http.Client{Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second}
	return &runtime{
		cfg:      cfg,
		backend:  backend,
		hooks:    hooks.NewManager(log),
		consumer: stream.NewConsumer(client, log),
		location: loc,
	}, nil
}

func (rt *runtime) endpoint() stream.Endpoint {
	return stream.Endpoint{
		URL:         rt.cfg.Backend.ChatURL,
		APIKey:      rt.cfg.Backend.APIKey,
		AccessToken: rt.cfg.Backend.AccessToken,
	}
}

func (rt *runtime) Close() error {
	return rt.backend.Close()
}

// defaultUser is the session owner for local commands.
func defaultUser() string {
	if u := os.Getenv("CONSULTANT_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
