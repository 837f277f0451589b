// Package config provides unified configuration for the sandbox service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. .env file (never overrides variables already set)
//  4. Environment variable overrides (NEURO_ prefix and conventional names)
//  5. File reference resolution (_file suffix fields)
//  6. Validation
package config

import "time"

// Config holds all configuration for the sandbox service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Storage       StorageConfig       `yaml:"storage"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Agent         AgentConfig         `yaml:"agent"`
	Exercise      ExerciseConfig      `yaml:"exercise"`
	Vercel        VercelConfig        `yaml:"vercel"`
	E2B           E2BConfig           `yaml:"e2b"`
	Blob          BlobConfig          `yaml:"blob"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// LoggingConfig holds log level and debug category settings.
// NEURO_LOG_LEVEL and NEURO_DEBUG override these at startup.
type LoggingConfig struct {
	Level string `yaml:"level"` // ERROR, WARN, INFO, DEBUG or TRACE; default: INFO
	Debug string `yaml:"debug"` // comma-separated categories, e.g. "providers,snapshot"
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 50m, at least snapshot.provision_timeout; 0 disables
}

// AuthConfig holds the API keys of services allowed to call the API.
// With no keys configured the API is open.
type AuthConfig struct {
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig names one calling service and its bearer key.
type APIKeyConfig struct {
	Name    string `yaml:"name"`
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"` // _file variant for key
}

// StorageConfig holds record store settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory", "postgres" or "sqlite", default: "memory"
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: "neuro-sandbox.db"
}

// SnapshotConfig describes how snapshot sandboxes are built and how long
// snapshots are trusted.
type SnapshotConfig struct {
	RepoURL          string        `yaml:"repo_url"`          // required for provisioning
	Branch           string        `yaml:"branch"`            // default: "main"
	Runtime          string        `yaml:"runtime"`           // default: "node22"
	Port             int           `yaml:"port"`              // default: 3000
	InstallCommand   []string      `yaml:"install_command"`   // default: ["pnpm", "install"]
	Workdir          string        `yaml:"workdir"`           // default: "/vercel/sandbox"
	ProvisionTimeout time.Duration `yaml:"provision_timeout"` // default: 45m
	TTL              time.Duration `yaml:"ttl"`               // default: 168h
	RefreshBefore    time.Duration `yaml:"refresh_before"`    // default: 48h
}

// AgentConfig holds agent sandbox settings.
type AgentConfig struct {
	Port    int           `yaml:"port"`    // default: 3000
	Timeout time.Duration `yaml:"timeout"` // default: 15m
}

// ExerciseConfig holds exercise sandbox settings.
type ExerciseConfig struct {
	Template               string          `yaml:"template"`                 // default: "neuro-exercises"
	HomeDir                string          `yaml:"home_dir"`                 // default: "/home/user"
	Port                   int             `yaml:"port"`                     // default: 3000
	Timeout                time.Duration   `yaml:"timeout"`                  // default: 30m
	VerifyPersistedSandbox bool            `yaml:"verify_persisted_sandbox"` // default: false
	SerializePerExercise   bool            `yaml:"serialize_per_exercise"`   // default: false
	Secrets                ExerciseSecrets `yaml:"secrets"`
}

// ExerciseSecrets are injected into exercise sandboxes.
type ExerciseSecrets struct {
	DatabaseURL     string `yaml:"database_url"`
	DatabaseURLFile string `yaml:"database_url_file"` // _file variant for database_url
	AuthSecret      string `yaml:"auth_secret"`
	AuthSecretFile  string `yaml:"auth_secret_file"` // _file variant for auth_secret
	AssetsBaseURL   string `yaml:"assets_base_url"`
}

// VercelConfig holds Vercel Sandbox API settings.
type VercelConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"` // _file variant for token
	TeamID    string `yaml:"team_id"`    // derived from an OIDC token when empty
	ProjectID string `yaml:"project_id"` // derived from an OIDC token when empty
	BaseURL   string `yaml:"base_url"`   // default: https://vercel.com/api
}

// E2BConfig holds E2B API settings.
type E2BConfig struct {
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"` // _file variant for api_key
	BaseURL    string `yaml:"base_url"`     // default: https://api.e2b.dev
	Domain     string `yaml:"domain"`       // default: e2b.app
}

// BlobConfig holds the code archive store settings.
type BlobConfig struct {
	BaseURL string        `yaml:"base_url"` // public base URL of the blob store
	Timeout time.Duration `yaml:"timeout"`  // default: 60s
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 50 * time.Minute,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
			SQLite: SQLiteConfig{
				Path: "neuro-sandbox.db",
			},
		},
		Snapshot: SnapshotConfig{
			Branch:           "main",
			Runtime:          "node22",
			Port:             3000,
			InstallCommand:   []string{"pnpm", "install"},
			Workdir:          "/vercel/sandbox",
			ProvisionTimeout: 45 * time.Minute,
			TTL:              7 * 24 * time.Hour,
			RefreshBefore:    2 * 24 * time.Hour,
		},
		Agent: AgentConfig{
			Port:    3000,
			Timeout: 15 * time.Minute,
		},
		Exercise: ExerciseConfig{
			Template: "neuro-exercises",
			HomeDir:  "/home/user",
			Port:     3000,
			Timeout:  30 * time.Minute,
		},
		Vercel: VercelConfig{
			BaseURL: "https://vercel.com/api",
		},
		E2B: E2BConfig{
			BaseURL: "https://api.e2b.dev",
			Domain:  "e2b.app",
		},
		Blob: BlobConfig{
			Timeout: 60 * time.Second,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}
