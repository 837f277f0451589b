package sqlite

import "database/sql"

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sandbox_snapshots (
	id           TEXT PRIMARY KEY,
	snapshot_id  TEXT NOT NULL,
	git_revision TEXT,
	created_at   INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sandbox_snapshots_current
	ON sandbox_snapshots (created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS exercise_generations (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	exercise_id   INTEGER NOT NULL,
	status        TEXT NOT NULL CHECK (status IN ('PENDING', 'GENERATING', 'COMPLETED', 'FAILED')),
	code_blob_key TEXT,
	sandbox_id    TEXT,
	created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exercise_generations_latest
	ON exercise_generations (exercise_id, status, created_at DESC, id DESC);
`

func runMigrations(db *sql.DB) error {
	var current int
	row := db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&current); err != nil {
		// Table doesn't exist or is empty.
		current = 0
	}

	if current >= schemaVersion {
		return nil
	}

	if current < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return err
		}
	}

	_, err := db.Exec(`
		DELETE FROM schema_version;
		INSERT INTO schema_version (version) VALUES (?);
	`, schemaVersion)
	return err
}
