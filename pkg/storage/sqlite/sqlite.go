// Package sqlite provides a single-node SQLite implementation of the
// snapshot and generation stores, backed by the pure-Go modernc driver.
// Timestamps are stored as Unix microseconds so ordering is numeric.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/storage"
)

// Store is a SQLite-backed snapshot and generation store.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection, so ":memory:" databases are shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func toMicros(t time.Time) int64 { return t.UnixMicro() }

func fromMicros(v int64) time.Time { return time.UnixMicro(v).UTC() }

// LatestSnapshot returns the newest snapshot that has not expired at now.
func (s *Store) LatestSnapshot(ctx context.Context, now time.Time) (*api.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, snapshot_id, git_revision, created_at, expires_at
		FROM sandbox_snapshots
		WHERE expires_at > ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, toMicros(now))

	var snap api.Snapshot
	var rev sql.NullString
	var created, expires int64
	if err := row.Scan(&snap.ID, &snap.SnapshotID, &rev, &created, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	if rev.Valid {
		snap.GitRevision = api.StringPtr(rev.String)
	}
	snap.CreatedAt = fromMicros(created)
	snap.ExpiresAt = fromMicros(expires)
	return &snap, nil
}

// SaveSnapshot inserts a snapshot record.
func (s *Store) SaveSnapshot(ctx context.Context, snap *api.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sandbox_snapshots (id, snapshot_id, git_revision, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		snap.ID, snap.SnapshotID, nullString(snap.GitRevision), toMicros(snap.CreatedAt), toMicros(snap.ExpiresAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// SaveGeneration inserts a generation, assigning an ID when gen.ID is zero.
func (s *Store) SaveGeneration(ctx context.Context, gen *api.Generation) error {
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = time.Now().UTC()
	}
	var id any
	if gen.ID != 0 {
		id = gen.ID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO exercise_generations (id, exercise_id, status, code_blob_key, sandbox_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, gen.ExerciseID, string(gen.Status), nullString(gen.CodeBlobKey), nullString(gen.SandboxID), toMicros(gen.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting generation: %w", err)
	}
	if gen.ID == 0 {
		newID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading generation id: %w", err)
		}
		gen.ID = newID
	}
	return nil
}

// LatestGeneration returns the newest generation of exerciseID with status.
func (s *Store) LatestGeneration(ctx context.Context, exerciseID int64, status api.GenerationStatus) (*api.Generation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exercise_id, status, code_blob_key, sandbox_id, created_at
		FROM exercise_generations
		WHERE exercise_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, exerciseID, string(status))

	var gen api.Generation
	var st string
	var blobKey, sandboxID sql.NullString
	var created int64
	if err := row.Scan(&gen.ID, &gen.ExerciseID, &st, &blobKey, &sandboxID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("querying generation: %w", err)
	}
	gen.Status = api.GenerationStatus(st)
	if blobKey.Valid {
		gen.CodeBlobKey = api.StringPtr(blobKey.String)
	}
	if sandboxID.Valid {
		gen.SandboxID = api.StringPtr(sandboxID.String)
	}
	gen.CreatedAt = fromMicros(created)
	return &gen, nil
}

// SetGenerationSandbox sets or clears (nil) the sandbox bound to a generation.
func (s *Store) SetGenerationSandbox(ctx context.Context, generationID int64, sandboxID *string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE exercise_generations SET sandbox_id = ? WHERE id = ?",
		nullString(sandboxID), generationID,
	)
	if err != nil {
		return fmt.Errorf("updating generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating generation: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// isConstraintViolation matches SQLite UNIQUE and PRIMARY KEY failures.
func isConstraintViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: PRIMARY KEY")
}
