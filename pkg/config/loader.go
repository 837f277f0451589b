package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, NEURO_SANDBOX_CONFIG env, ./config.yaml, /etc/neuro-sandbox/config.yaml)
//  3. .env file (NEURO_ENV_FILE or ./.env), without overriding set variables
//  4. Environment variable overrides
//  5. File reference resolution (_file suffix)
//  6. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. NEURO_SANDBOX_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/neuro-sandbox/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("NEURO_SANDBOX_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/neuro-sandbox/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// loadDotEnv loads NEURO_ENV_FILE, or ./.env when present. An explicitly
// named file must exist.
func loadDotEnv() error {
	if path := os.Getenv("NEURO_ENV_FILE"); path != "" {
		return godotenv.Load(path)
	}
	err := godotenv.Load(".env")
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// applyEnvOverrides maps environment variables to config fields. NEURO_*
// variables address this service's settings; conventional provider and
// application names (DATABASE_URL, VERCEL_TOKEN, E2B_API_KEY, ...) are
// honored so a shared .env works unchanged.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Storage.Type, "NEURO_STORAGE")
	setString(&cfg.Storage.Postgres.DSN, "NEURO_POSTGRES_DSN")
	setString(&cfg.Storage.SQLite.Path, "NEURO_SQLITE_PATH")
	setInt(&cfg.Server.Port, "NEURO_PORT")
	if key := os.Getenv("NEURO_API_KEY"); key != "" {
		cfg.Auth.APIKeys = append(cfg.Auth.APIKeys, APIKeyConfig{Name: "default", Key: key})
	}

	setString(&cfg.Snapshot.RepoURL, "NEURO_SNAPSHOT_REPO_URL")
	setString(&cfg.Snapshot.Branch, "NEURO_SNAPSHOT_BRANCH")
	setDuration(&cfg.Snapshot.TTL, "NEURO_SNAPSHOT_TTL")
	setDuration(&cfg.Snapshot.RefreshBefore, "NEURO_SNAPSHOT_REFRESH_BEFORE")

	setString(&cfg.Exercise.Template, "NEURO_EXERCISE_TEMPLATE")
	setBool(&cfg.Exercise.VerifyPersistedSandbox, "NEURO_EXERCISE_VERIFY_PERSISTED_SANDBOX")
	setBool(&cfg.Exercise.SerializePerExercise, "NEURO_EXERCISE_SERIALIZE")

	// Conventional names shared with the web application.
	setString(&cfg.Exercise.Secrets.DatabaseURL, "DATABASE_URL")
	setString(&cfg.Exercise.Secrets.AuthSecret, "BETTER_AUTH_SECRET")
	setString(&cfg.Exercise.Secrets.AssetsBaseURL, "NEXT_PUBLIC_BLOB_URL")
	setString(&cfg.Blob.BaseURL, "NEXT_PUBLIC_BLOB_URL")

	// Provider credentials. A personal token wins over an OIDC token.
	setString(&cfg.Vercel.Token, "VERCEL_OIDC_TOKEN")
	setString(&cfg.Vercel.Token, "VERCEL_TOKEN")
	setString(&cfg.Vercel.TeamID, "VERCEL_TEAM_ID")
	setString(&cfg.Vercel.ProjectID, "VERCEL_PROJECT_ID")
	setString(&cfg.E2B.APIKey, "E2B_API_KEY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"exercise.secrets.database_url_file", cfg.Exercise.Secrets.DatabaseURLFile, &cfg.Exercise.Secrets.DatabaseURL},
		{"exercise.secrets.auth_secret_file", cfg.Exercise.Secrets.AuthSecretFile, &cfg.Exercise.Secrets.AuthSecret},
		{"vercel.token_file", cfg.Vercel.TokenFile, &cfg.Vercel.Token},
		{"e2b.api_key_file", cfg.E2B.APIKeyFile, &cfg.E2B.APIKey},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, struct {
			name  string
			file  string
			value *string
		}{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
