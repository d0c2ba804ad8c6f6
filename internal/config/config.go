package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultGatewayPort   = 18790
	DefaultArchiveLimit  = 50
	DefaultPruneSchedule = "30 3 * * *"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Surface:      "widget",
			ArchiveLimit: DefaultArchiveLimit,
		},
		Store: StoreConfig{
			Driver:        "sqlite",
			PruneSchedule: DefaultPruneSchedule,
		},
		Gateway: GatewayConfig{
			Port: DefaultGatewayPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}
