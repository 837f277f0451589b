// Package app assembles the sandbox lifecycle components from a loaded
// configuration. It is shared by the HTTP server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/agent"
	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/blob"
	"github.com/angelhodar/neuro-exercises/pkg/config"
	"github.com/angelhodar/neuro-exercises/pkg/exercise"
	"github.com/angelhodar/neuro-exercises/pkg/provider"
	"github.com/angelhodar/neuro-exercises/pkg/provider/e2b"
	"github.com/angelhodar/neuro-exercises/pkg/provider/vercel"
	"github.com/angelhodar/neuro-exercises/pkg/snapshot"
	"github.com/angelhodar/neuro-exercises/pkg/storage/memory"
	"github.com/angelhodar/neuro-exercises/pkg/storage/postgres"
	"github.com/angelhodar/neuro-exercises/pkg/storage/sqlite"
	transporthttp "github.com/angelhodar/neuro-exercises/pkg/transport/http"
)

// Store is the persistence surface every storage backend provides.
type Store interface {
	snapshot.Store
	exercise.GenerationStore
	SaveGeneration(ctx context.Context, gen *api.Generation) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// ErrNotConfigured is returned by the accessors of components whose
// provider credentials are missing.
var ErrNotConfigured = errors.New("component not configured")

// App holds the wired lifecycle components. Components whose provider is
// not configured are nil.
type App struct {
	Store     Store
	Pipeline  *snapshot.Pipeline
	Snapshots *snapshot.Cache
	Agents    *agent.Provisioner
	Exercises *exercise.Manager
}

// Build opens storage and creates every component cfg has credentials for.
// Snapshots and agent sandboxes run on Vercel; exercise sandboxes on E2B.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a := &App{Store: store}

	if cfg.Vercel.Token != "" {
		vp, err := vercel.New(vercel.Config{
			Token:     cfg.Vercel.Token,
			TeamID:    cfg.Vercel.TeamID,
			ProjectID: cfg.Vercel.ProjectID,
			BaseURL:   cfg.Vercel.BaseURL,
			Workdir:   cfg.Snapshot.Workdir,

			CommandTimeout: cfg.Snapshot.ProvisionTimeout,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("creating vercel provider: %w", err)
		}
		a.wireSnapshots(vp, cfg)
	} else {
		slog.Warn("vercel token not set, snapshot and agent sandboxes disabled")
	}

	if cfg.E2B.APIKey != "" {
		ep, err := e2b.New(e2b.Config{
			APIKey:  cfg.E2B.APIKey,
			BaseURL: cfg.E2B.BaseURL,
			Domain:  cfg.E2B.Domain,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("creating e2b provider: %w", err)
		}
		a.wireExercises(ep, cfg)
	} else {
		slog.Warn("e2b api key not set, exercise sandboxes disabled")
	}

	return a, nil
}

func (a *App) wireSnapshots(p provider.Provider, cfg *config.Config) {
	sc := cfg.Snapshot
	a.Pipeline = snapshot.NewPipeline(p, a.Store, snapshot.PipelineConfig{
		RepoURL:          sc.RepoURL,
		Branch:           sc.Branch,
		Runtime:          sc.Runtime,
		Port:             sc.Port,
		InstallCommand:   sc.InstallCommand,
		Workdir:          sc.Workdir,
		ProvisionTimeout: sc.ProvisionTimeout,
		TTL:              sc.TTL,
	})
	a.Snapshots = snapshot.NewCache(a.Store, a.Pipeline, sc.RefreshBefore, time.Now)
	a.Agents = agent.NewProvisioner(p, a.Snapshots, agent.Config{
		Port:    cfg.Agent.Port,
		Timeout: cfg.Agent.Timeout,
	})
}

func (a *App) wireExercises(p provider.Provider, cfg *config.Config) {
	ec := cfg.Exercise
	blobs := blob.NewHTTPFetcher(cfg.Blob.BaseURL, cfg.Blob.Timeout)
	a.Exercises = exercise.NewManager(p, a.Store, blobs, exercise.Config{
		Template: ec.Template,
		HomeDir:  ec.HomeDir,
		Port:     ec.Port,
		Timeout:  ec.Timeout,
		Secrets: exercise.Secrets{
			DatabaseURL:   ec.Secrets.DatabaseURL,
			AuthSecret:    ec.Secrets.AuthSecret,
			AssetsBaseURL: ec.Secrets.AssetsBaseURL,
		},
		VerifyPersistedSandbox: ec.VerifyPersistedSandbox,
		SerializePerExercise:   ec.SerializePerExercise,
	})
}

// OpenStore opens the configured storage backend.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "memory", "":
		slog.Info("storage enabled", "type", "memory")
		return memory.New(), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return s, nil
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		slog.Info("storage enabled", "type", "sqlite", "path", cfg.SQLite.Path)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Services returns the HTTP service set. Nil components stay nil so their
// routes answer 501.
func (a *App) Services() transporthttp.Services {
	svc := transporthttp.Services{Health: a.Store}
	if a.Snapshots != nil {
		svc.Snapshots = a.Snapshots
		svc.Pipeline = a.Pipeline
		svc.Agents = a.Agents
	}
	if a.Exercises != nil {
		svc.Exercises = a.Exercises
	}
	return svc
}

// RequireSnapshots returns the snapshot components or ErrNotConfigured.
func (a *App) RequireSnapshots() (*snapshot.Cache, *snapshot.Pipeline, error) {
	if a.Snapshots == nil {
		return nil, nil, fmt.Errorf("snapshots: %w (set VERCEL_TOKEN)", ErrNotConfigured)
	}
	return a.Snapshots, a.Pipeline, nil
}

// RequireAgents returns the agent provisioner or ErrNotConfigured.
func (a *App) RequireAgents() (*agent.Provisioner, error) {
	if a.Agents == nil {
		return nil, fmt.Errorf("agent sandboxes: %w (set VERCEL_TOKEN)", ErrNotConfigured)
	}
	return a.Agents, nil
}

// RequireExercises returns the exercise manager or ErrNotConfigured.
func (a *App) RequireExercises() (*exercise.Manager, error) {
	if a.Exercises == nil {
		return nil, fmt.Errorf("exercise sandboxes: %w (set E2B_API_KEY)", ErrNotConfigured)
	}
	return a.Exercises, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
