package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations holds the ordered schema steps. Each step runs at most once;
// applied versions are tracked in schema_migrations.
var migrations = []string{
	// 1: event definitions and per-date exceptions.
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		creator_id TEXT NOT NULL,
		title TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		radius_meters REAL NOT NULL DEFAULT 0,
		frequency TEXT NOT NULL DEFAULT 'none',
		weekdays TEXT NOT NULL DEFAULT '',
		until_date TEXT,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		visibility TEXT NOT NULL DEFAULT 'team',
		locked INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS occurrence_exceptions (
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (event_id, date)
	);
	CREATE TABLE IF NOT EXISTS event_groups (
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		group_id TEXT NOT NULL,
		PRIMARY KEY (event_id, group_id)
	);`,

	// 2: roster, groups and group membership as proper relations.
	`CREATE TABLE IF NOT EXISTS team_members (
		team_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		scope_group_id TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (team_id, user_id)
	);
	CREATE TABLE IF NOT EXISTS attendance_groups (
		id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (team_id, name)
	);
	CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL REFERENCES attendance_groups(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (group_id, user_id)
	);`,

	// 3: precomputed expected-attendee rows per occurrence.
	`CREATE TABLE IF NOT EXISTS expected_attendees (
		event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		date TEXT NOT NULL,
		user_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (event_id, date, user_id)
	);`,

	// 4: attendance records with the per-(occurrence, user) uniqueness
	// constraint that serializes racing check-ins, plus the insert-only
	// audit log and consumed token nonces.
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		date TEXT NOT NULL,
		user_id TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		checked_in_at TEXT NOT NULL,
		checked_out_at TEXT,
		latitude REAL,
		longitude REAL,
		distance_meters REAL,
		device_fingerprint TEXT,
		flagged INTEGER NOT NULL DEFAULT 0,
		flag_reason TEXT,
		notes TEXT,
		deleted_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (event_id, date, user_id)
	);
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		date TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		field TEXT NOT NULL DEFAULT '',
		old_value TEXT NOT NULL DEFAULT '',
		new_value TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_occurrence ON audit_log (event_id, date, created_at);
	CREATE TABLE IF NOT EXISTS consumed_nonces (
		nonce TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		date TEXT NOT NULL,
		user_id TEXT NOT NULL,
		consumed_at TEXT NOT NULL
	);`,

	// 5: accounts and sessions for actor authentication.
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		disabled INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token TEXT NOT NULL UNIQUE,
		fingerprint TEXT NOT NULL DEFAULT '',
		expires_at TEXT NOT NULL,
		revoked_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
}

// Migrate applies all pending schema steps in order, each inside its own
// transaction.
func Migrate(ctx context.Context, pool *ConnectionPool) error {
	if _, err := pool.DB().ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to prepare schema_migrations: %w", err)
	}

	var current int
	if err := pool.DB().QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		statement := migrations[i]
		err := pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.Exec(statement); err != nil {
				return err
			}
			_, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))`, version)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
	}

	return nil
}
