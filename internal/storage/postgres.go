// Package storage holds the Postgres and MinIO backed stores.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/vms/internal/config"
	"github.com/your-org/vms/internal/geofence"
	"github.com/your-org/vms/internal/models"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Identities ---

// LoadIdentities returns every enrolled identity with its embedding, in enrollment order.
func (s *PostgresStore) LoadIdentities(ctx context.Context) ([]models.EnrolledIdentity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT visitor_id, name, category, embedding, created_at FROM identities ORDER BY created_at, visitor_id`)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	defer rows.Close()

	var out []models.EnrolledIdentity
	for rows.Next() {
		var id models.EnrolledIdentity
		var vec pgvector.Vector
		if err := rows.Scan(&id.VisitorID, &id.Name, &id.Category, &vec, &id.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		id.Embedding = vec.Slice()
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListIdentities returns identities without their embeddings.
func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.EnrolledIdentity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT visitor_id, name, category, created_at FROM identities ORDER BY name, visitor_id`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []models.EnrolledIdentity
	for rows.Next() {
		var id models.EnrolledIdentity
		if err := rows.Scan(&id.VisitorID, &id.Name, &id.Category, &id.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteIdentity(ctx context.Context, visitorID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE visitor_id = $1`, visitorID)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity %s: %w", visitorID, ErrNotFound)
	}
	return nil
}

// --- Cameras ---

func (s *PostgresStore) UpsertCamera(ctx context.Context, c models.CameraConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cameras (camera_id, source_kind, source, location, zone_type, target_fps, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (camera_id) DO UPDATE SET
		   source_kind = EXCLUDED.source_kind,
		   source = EXCLUDED.source,
		   location = EXCLUDED.location,
		   zone_type = EXCLUDED.zone_type,
		   target_fps = EXCLUDED.target_fps,
		   updated_at = EXCLUDED.updated_at`,
		c.CameraID, string(c.SourceKind), c.Source, c.Location, string(c.ZoneType), c.TargetFPS, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert camera: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCameras(ctx context.Context) ([]models.CameraConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT camera_id, source_kind, source, location, zone_type, target_fps, created_at, updated_at
		 FROM cameras ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var out []models.CameraConfig
	for rows.Next() {
		var c models.CameraConfig
		var kind, zone string
		if err := rows.Scan(&c.CameraID, &kind, &c.Source, &c.Location, &zone, &c.TargetFPS, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		c.SourceKind = models.SourceKind(kind)
		c.ZoneType = models.ZoneType(zone)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteCamera(ctx context.Context, cameraID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cameras WHERE camera_id = $1`, cameraID); err != nil {
		return fmt.Errorf("delete camera: %w", err)
	}
	return nil
}

// --- Events ---

const eventColumns = `id, event_type, visitor_id, name, camera_id, location, zone_type, confidence, timestamp, details`

func (s *PostgresStore) SaveTracking(ctx context.Context, ev models.TrackingEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)`,
		ev.ID, string(models.EventIdentityTracking), ev.VisitorID, ev.Name, ev.CameraID, ev.Location,
		string(ev.ZoneType), ev.Confidence, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("save tracking event: %w", err)
	}
	return nil
}

// SaveAlert stores the alert row with its full variant document in details.
func (s *PostgresStore) SaveAlert(ctx context.Context, alert models.Alert) error {
	h := alert.Header()
	details, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, '', $7, $8, $9)`,
		h.ID, string(h.EventType), h.VisitorID, h.Name, h.CameraID, h.Location, h.Confidence, h.Timestamp, details)
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

// RecentAlerts returns the newest alerts of the given types.
func (s *PostgresStore) RecentAlerts(ctx context.Context, types []models.EventType, limit int) ([]models.Alert, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT event_type, details FROM events
		 WHERE event_type = ANY($1) AND details IS NOT NULL
		 ORDER BY timestamp DESC LIMIT $2`, names, limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var t string
		var details []byte
		if err := rows.Scan(&t, &details); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a, err := models.DecodeAlert(models.EventType(t), details)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetAlertSnapshot(ctx context.Context, alertID uuid.UUID, key string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE events SET details = jsonb_set(details, '{snapshot_key}', to_jsonb($2::text)) WHERE id = $1`,
		alertID, key)
	if err != nil {
		return fmt.Errorf("set alert snapshot: %w", err)
	}
	return nil
}

// CountAlertsSince counts alerts of any type at or after since.
func (s *PostgresStore) CountAlertsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM events WHERE event_type <> $1 AND timestamp >= $2`,
		string(models.EventIdentityTracking), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

// eventQuery builds the filtered, newest-first event select.
func eventQuery(f models.EventFilter) (string, []any) {
	var where []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.VisitorID != "" {
		add("visitor_id", f.VisitorID)
	}
	if f.CameraID != "" {
		add("camera_id", f.CameraID)
	}
	if f.EventType != "" {
		add("event_type", string(f.EventType))
	}

	q := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	q += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", len(args))
	return q, args
}

func (s *PostgresStore) QueryEvents(ctx context.Context, f models.EventFilter) ([]models.EventRecord, error) {
	q, args := eventQuery(f)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []models.EventRecord
	for rows.Next() {
		var r models.EventRecord
		var t string
		if err := rows.Scan(&r.ID, &t, &r.VisitorID, &r.Name, &r.CameraID, &r.Location,
			&r.ZoneType, &r.Confidence, &r.Timestamp, &r.Details); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.EventType = models.EventType(t)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Geofence boundaries ---

func (s *PostgresStore) SaveBoundary(ctx context.Context, cameraID string, points geofence.Polygon) error {
	data, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("marshal boundary: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO geofence_boundaries (camera_id, points, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (camera_id) DO UPDATE SET points = EXCLUDED.points, updated_at = now()`,
		cameraID, data)
	if err != nil {
		return fmt.Errorf("save boundary: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadBoundaries(ctx context.Context) (map[string]geofence.Polygon, error) {
	rows, err := s.pool.Query(ctx, `SELECT camera_id, points FROM geofence_boundaries`)
	if err != nil {
		return nil, fmt.Errorf("load boundaries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]geofence.Polygon)
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan boundary: %w", err)
		}
		var p geofence.Polygon
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode boundary %s: %w", id, err)
		}
		out[id] = p
	}
	return out, rows.Err()
}
