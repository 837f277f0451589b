// Package postgres provides a PostgreSQL implementation of the snapshot and
// generation stores. It uses pgx/v5 for connection pooling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/storage"
)

// Store is a PostgreSQL-backed snapshot and generation store.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// LatestSnapshot returns the newest snapshot that has not expired at now.
func (s *Store) LatestSnapshot(ctx context.Context, now time.Time) (*api.Snapshot, error) {
	var snap api.Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT id, snapshot_id, git_revision, created_at, expires_at
		FROM sandbox_snapshots
		WHERE expires_at > $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, now).Scan(&snap.ID, &snap.SnapshotID, &snap.GitRevision, &snap.CreatedAt, &snap.ExpiresAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshot inserts a snapshot record.
func (s *Store) SaveSnapshot(ctx context.Context, snap *api.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sandbox_snapshots (id, snapshot_id, git_revision, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, snap.ID, snap.SnapshotID, snap.GitRevision, snap.CreatedAt, snap.ExpiresAt)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// SaveGeneration inserts a generation. A zero ID is assigned by the
// database and written back into gen.
func (s *Store) SaveGeneration(ctx context.Context, gen *api.Generation) error {
	var err error
	if gen.ID == 0 {
		err = s.pool.QueryRow(ctx, `
			INSERT INTO exercise_generations (exercise_id, status, code_blob_key, sandbox_id, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, gen.ExerciseID, string(gen.Status), gen.CodeBlobKey, gen.SandboxID, gen.CreatedAt).Scan(&gen.ID)
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO exercise_generations (id, exercise_id, status, code_blob_key, sandbox_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, gen.ID, gen.ExerciseID, string(gen.Status), gen.CodeBlobKey, gen.SandboxID, gen.CreatedAt)
	}

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting generation: %w", err)
	}
	return nil
}

// LatestGeneration returns the newest generation of exerciseID with status.
func (s *Store) LatestGeneration(ctx context.Context, exerciseID int64, status api.GenerationStatus) (*api.Generation, error) {
	var gen api.Generation
	var st string
	err := s.pool.QueryRow(ctx, `
		SELECT id, exercise_id, status, code_blob_key, sandbox_id, created_at
		FROM exercise_generations
		WHERE exercise_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, exerciseID, string(status)).Scan(&gen.ID, &gen.ExerciseID, &st, &gen.CodeBlobKey, &gen.SandboxID, &gen.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying generation: %w", err)
	}
	gen.Status = api.GenerationStatus(st)
	return &gen, nil
}

// SetGenerationSandbox sets or clears (nil) the sandbox bound to a generation.
func (s *Store) SetGenerationSandbox(ctx context.Context, generationID int64, sandboxID *string) error {
	result, err := s.pool.Exec(ctx,
		"UPDATE exercise_generations SET sandbox_id = $1 WHERE id = $2",
		sandboxID, generationID,
	)
	if err != nil {
		return fmt.Errorf("updating generation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
