package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	for i, k := range c.Auth.APIKeys {
		if k.Name == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d].name is required", i))
		}
		if k.Key == "" {
			errs = append(errs, fmt.Errorf("auth.api_keys[%d].key or key_file is required", i))
		}
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "sqlite":
		// valid
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"postgres\" or \"sqlite\", got %q", c.Storage.Type))
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
	}

	if c.Snapshot.Port <= 0 {
		errs = append(errs, fmt.Errorf("snapshot.port must be > 0, got %d", c.Snapshot.Port))
	}
	if c.Snapshot.TTL <= 0 {
		errs = append(errs, fmt.Errorf("snapshot.ttl must be > 0, got %v", c.Snapshot.TTL))
	}
	if c.Snapshot.RefreshBefore < 0 || c.Snapshot.RefreshBefore >= c.Snapshot.TTL {
		errs = append(errs, fmt.Errorf("snapshot.refresh_before must be in [0, snapshot.ttl), got %v", c.Snapshot.RefreshBefore))
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < c.Snapshot.ProvisionTimeout {
		errs = append(errs, fmt.Errorf("server.write_timeout (%v) must be 0 or at least snapshot.provision_timeout (%v)", c.Server.WriteTimeout, c.Snapshot.ProvisionTimeout))
	}
	if c.Agent.Port <= 0 {
		errs = append(errs, fmt.Errorf("agent.port must be > 0, got %d", c.Agent.Port))
	}
	if c.Exercise.Port <= 0 {
		errs = append(errs, fmt.Errorf("exercise.port must be > 0, got %d", c.Exercise.Port))
	}
	if c.Exercise.Template == "" {
		errs = append(errs, fmt.Errorf("exercise.template is required"))
	}

	return errors.Join(errs...)
}
