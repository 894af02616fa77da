// Package db opens the PostgreSQL database behind the remote store and
// runs its background maintenance.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
DO $$ BEGIN
    CREATE TYPE sync_status AS ENUM ('synced', 'pending', 'error');
EXCEPTION WHEN duplicate_object THEN NULL;
END $$;

CREATE TABLE IF NOT EXISTS users (
    login         TEXT PRIMARY KEY,
    password_hash BYTEA NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS folders (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    archived    BOOLEAN NOT NULL DEFAULT FALSE,
    user_id     TEXT REFERENCES users(login) ON DELETE CASCADE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at  TIMESTAMPTZ,
    sync_status sync_status NOT NULL DEFAULT 'synced'
);

CREATE TABLE IF NOT EXISTS projects (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    folder_id   TEXT REFERENCES folders(id) ON DELETE SET NULL,
    archived    BOOLEAN NOT NULL DEFAULT FALSE,
    user_id     TEXT REFERENCES users(login) ON DELETE CASCADE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at  TIMESTAMPTZ,
    sync_status sync_status NOT NULL DEFAULT 'synced'
);

CREATE TABLE IF NOT EXISTS messages (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    user_id     TEXT REFERENCES users(login) ON DELETE SET NULL,
    type        TEXT NOT NULL DEFAULT 'text',
    content     JSONB,
    timestamp   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at  TIMESTAMPTZ,
    sync_status sync_status NOT NULL DEFAULT 'synced'
);

CREATE TABLE IF NOT EXISTS directories (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    parent_id   TEXT REFERENCES directories(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    user_id     TEXT REFERENCES users(login) ON DELETE SET NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at  TIMESTAMPTZ,
    sync_status sync_status NOT NULL DEFAULT 'synced'
);

CREATE TABLE IF NOT EXISTS files (
    id           TEXT PRIMARY KEY,
    project_id   TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    directory_id TEXT REFERENCES directories(id) ON DELETE SET NULL,
    name         TEXT NOT NULL,
    object_key   TEXT NOT NULL,
    mime_type    TEXT,
    size         BIGINT NOT NULL DEFAULT 0,
    user_id      TEXT REFERENCES users(login) ON DELETE SET NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at   TIMESTAMPTZ,
    sync_status  sync_status NOT NULL DEFAULT 'synced'
);

CREATE TABLE IF NOT EXISTS project_details (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    key         TEXT NOT NULL,
    value       TEXT,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sync_status sync_status NOT NULL DEFAULT 'synced'
);

CREATE TABLE IF NOT EXISTS notes (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    body        TEXT NOT NULL,
    user_id     TEXT REFERENCES users(login) ON DELETE SET NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at  TIMESTAMPTZ,
    sync_status sync_status NOT NULL DEFAULT 'synced'
);

CREATE TABLE IF NOT EXISTS contacts (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    company     TEXT,
    email       TEXT,
    phone       TEXT,
    user_id     TEXT REFERENCES users(login) ON DELETE CASCADE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at  TIMESTAMPTZ,
    sync_status sync_status NOT NULL DEFAULT 'synced'
);

CREATE TABLE IF NOT EXISTS project_members (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    user_id     TEXT NOT NULL REFERENCES users(login) ON DELETE CASCADE,
    role        TEXT NOT NULL DEFAULT 'member',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sync_status sync_status NOT NULL DEFAULT 'synced'
);

CREATE INDEX IF NOT EXISTS idx_projects_folder_id ON projects(folder_id);
CREATE INDEX IF NOT EXISTS idx_messages_project_id ON messages(project_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_files_project_id ON files(project_id);
`

// InitPostgres opens the database at dsn, verifies the connection and
// creates the schema if it does not exist yet.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(20)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the sync_status type, the users table and every synced
// table with its indexes. It is safe to run against an existing schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
