// Package plugin hosts in-process extensions that react to chat and gateway
// lifecycle hooks.
package plugin

import (
	"context"

	"github.com/soyeahso/consultant/internal/hooks"
	"github.com/soyeahso/consultant/internal/logging"
)

// Plugin is an extension started with the gateway.
type Plugin interface {
	// ID returns a unique identifier such as "activity".
	ID() string

	// Init subscribes to hooks and sets up resources.
	Init(ctx context.Context, api API) error

	// Close releases resources.
	Close() error
}

// API is what a plugin receives at Init.
type API struct {
	Hooks *hooks.Manager
	Log   *logging.Logger
}
