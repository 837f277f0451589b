package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelhodar/neuro-exercises/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	return &cfg
}

func TestBuildWithoutCredentials(t *testing.T) {
	a, err := Build(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Snapshots)
	assert.Nil(t, a.Agents)
	assert.Nil(t, a.Exercises)

	svc := a.Services()
	assert.Nil(t, svc.Snapshots)
	assert.Nil(t, svc.Pipeline)
	assert.Nil(t, svc.Agents)
	assert.Nil(t, svc.Exercises)
	assert.NotNil(t, svc.Health)

	_, _, err = a.RequireSnapshots()
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = a.RequireAgents()
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = a.RequireExercises()
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestBuildWiresProviders(t *testing.T) {
	cfg := testConfig()
	cfg.Vercel.Token = "vercel-personal-token"
	cfg.Vercel.TeamID = "team_1"
	cfg.Vercel.ProjectID = "prj_1"
	cfg.E2B.APIKey = "e2b_key"
	cfg.Blob.BaseURL = "https://blob.example.com"

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	cache, pipeline, err := a.RequireSnapshots()
	require.NoError(t, err)
	assert.NotNil(t, cache)
	assert.NotNil(t, pipeline)

	agents, err := a.RequireAgents()
	require.NoError(t, err)
	assert.Equal(t, cfg.Agent.Port, agents.Port())

	_, err = a.RequireExercises()
	require.NoError(t, err)

	svc := a.Services()
	assert.NotNil(t, svc.Snapshots)
	assert.NotNil(t, svc.Exercises)
}

func TestBuildRejectsIncompleteVercelScope(t *testing.T) {
	cfg := testConfig()
	cfg.Vercel.Token = "vercel-personal-token"

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VERCEL_TEAM_ID")
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := OpenStore(ctx, config.StorageConfig{Type: "memory"})
		require.NoError(t, err)
		require.NoError(t, s.HealthCheck(ctx))
		require.NoError(t, s.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "db", "sandbox.db")
		s, err := OpenStore(ctx, config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: path}})
		require.NoError(t, err)
		require.NoError(t, s.HealthCheck(ctx))
		require.NoError(t, s.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := OpenStore(ctx, config.StorageConfig{Type: "redis"})
		assert.ErrorContains(t, err, `unknown storage type "redis"`)
	})
}
