package config

// Config is the root configuration for the consultant.
type Config struct {
	Backend BackendConfig `yaml:"backend,omitempty"`
	Engine  EngineConfig  `yaml:"engine,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// BackendConfig points at the streaming chat function.
type BackendConfig struct {
	ChatURL        string `yaml:"chatUrl,omitempty"`
	APIKey         string `yaml:"apiKey,omitempty"`
	AccessToken    string `yaml:"accessToken,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty"` // 0 = no client timeout
}

// EngineConfig controls chat surface behavior.
type EngineConfig struct {
	Surface          string `yaml:"surface,omitempty"` // "widget" | "page"
	ProactiveStarter bool   `yaml:"proactiveStarter,omitempty"`
	ArchiveLimit     int    `yaml:"archiveLimit,omitempty"`
	Timezone         string `yaml:"timezone,omitempty"` // IANA name used for archive day grouping
	PersistTurns     *bool  `yaml:"persistTurns,omitempty"`
}

// Persist reports whether completed turns are written to the store.
// Defaults to true.
func (e EngineConfig) Persist() bool {
	return e.PersistTurns == nil || *e.PersistTurns
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver        string `yaml:"driver,omitempty"` // "sqlite" | "postgres" | "memory"
	Path          string `yaml:"path,omitempty"`   // sqlite file; defaults under the data dir
	DSN           string `yaml:"dsn,omitempty"`    // postgres connection string
	RetentionDays int    `yaml:"retentionDays,omitempty"`
	PruneSchedule string `yaml:"pruneSchedule,omitempty"` // cron expression
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode      string `yaml:"mode,omitempty"` // "token" | "password" | "jwt"
	Token     string `yaml:"token,omitempty"`
	Password  string `yaml:"password,omitempty"`
	JWTSecret string `yaml:"jwtSecret,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
}
