package storage

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS identities (
		visitor_id TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		category   TEXT NOT NULL DEFAULT 'visitor',
		embedding  vector(512) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cameras (
		camera_id   TEXT PRIMARY KEY,
		source_kind TEXT NOT NULL,
		source      TEXT NOT NULL,
		location    TEXT NOT NULL DEFAULT '',
		zone_type   TEXT NOT NULL DEFAULT 'general',
		target_fps  DOUBLE PRECISION NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id         UUID PRIMARY KEY,
		event_type TEXT NOT NULL,
		visitor_id TEXT NOT NULL,
		name       TEXT NOT NULL DEFAULT '',
		camera_id  TEXT NOT NULL,
		location   TEXT NOT NULL DEFAULT '',
		zone_type  TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL,
		timestamp  TIMESTAMPTZ NOT NULL,
		details    JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events (timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_events_visitor ON events (visitor_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_events_camera ON events (camera_id, timestamp DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS geofence_boundaries (
		camera_id  TEXT PRIMARY KEY,
		points     JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates every table and index. Safe to run on each start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
