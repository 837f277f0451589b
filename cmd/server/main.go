// Command server runs the neuro-exercises sandbox lifecycle service.
//
// Configuration is loaded from a YAML file, a .env file and environment
// variables (see pkg/config). Common variables:
//
//	NEURO_SANDBOX_CONFIG - Path to the YAML config file
//	NEURO_PORT           - Listen port (default: 8080)
//	NEURO_STORAGE        - Storage type: "memory", "postgres" or "sqlite" (default: "memory")
//	VERCEL_TOKEN         - Vercel token for snapshots and agent sandboxes
//	E2B_API_KEY          - E2B key for exercise sandboxes
//	NEURO_API_KEY        - Bearer key callers must present (API is open when unset)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelhodar/neuro-exercises/pkg/app"
	"github.com/angelhodar/neuro-exercises/pkg/auth"
	"github.com/angelhodar/neuro-exercises/pkg/auth/apikey"
	"github.com/angelhodar/neuro-exercises/pkg/config"
	"github.com/angelhodar/neuro-exercises/pkg/debug"
	transporthttp "github.com/angelhodar/neuro-exercises/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level)

	a, err := app.Build(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithHandler("GET "+cfg.Observability.Metrics.Path, promhttp.Handler()))
		slog.Info("metrics enabled", "path", cfg.Observability.Metrics.Path)
	}

	if len(cfg.Auth.APIKeys) > 0 {
		opts = append(opts, transporthttp.WithMiddleware(authMiddleware(cfg)))
		slog.Info("authentication enabled", "api_keys", len(cfg.Auth.APIKeys))
	} else {
		slog.Warn("no api keys configured, the API is open")
	}

	srv := transporthttp.NewServer(a.Services(), opts...)
	return srv.ListenAndServe()
}

func authMiddleware(cfg *config.Config) func(http.Handler) http.Handler {
	entries := make([]apikey.RawKeyEntry, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		entries = append(entries, apikey.RawKeyEntry{Name: k.Name, Key: k.Key})
	}
	chain := &auth.AuthChain{
		Authenticators:  []auth.Authenticator{apikey.New(entries)},
		DefaultDecision: auth.No,
	}
	bypass := []string{"/healthz", cfg.Observability.Metrics.Path}
	return auth.Middleware(chain, bypass)
}
