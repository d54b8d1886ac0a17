package store

import "context"

// Schema bootstrap. The service owns its tables; statements are idempotent
// so repeated startups are safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		enrollment_id TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS students (
		enrollment_id TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		room          TEXT,
		phone         TEXT,
		course        TEXT,
		guardian_name TEXT,
		address       TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS pass_requests (
		enrollment_id TEXT PRIMARY KEY,
		pass_type     TEXT NOT NULL,
		destination   TEXT NOT NULL,
		travel_date   DATE NOT NULL,
		return_date   DATE,
		reason        TEXT NOT NULL,
		guardian_name TEXT,
		address       TEXT,
		status        TEXT NOT NULL DEFAULT 'Pending',
		submitted_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		decided_at    TIMESTAMPTZ,
		decided_by    TEXT,
		remark        TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS movement_state (
		enrollment_id TEXT PRIMARY KEY,
		status        TEXT NOT NULL,
		out_at        TIMESTAMPTZ,
		in_at         TIMESTAMPTZ,
		recorded_by   TEXT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS movement_audit (
		id            TEXT PRIMARY KEY,
		enrollment_id TEXT NOT NULL,
		transition    TEXT NOT NULL,
		recorded_by   TEXT NOT NULL,
		correction    BOOLEAN NOT NULL DEFAULT FALSE,
		occurred_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_movement_audit_enrollment
		ON movement_audit (enrollment_id, occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_pass_requests_submitted
		ON pass_requests (submitted_at DESC)`,
}

// Migrate applies the schema.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
