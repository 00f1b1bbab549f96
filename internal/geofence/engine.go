package geofence

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/your-org/vms/internal/behavior"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
)

// AlertStore persists geofence alerts and serves them back newest first.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert models.Alert) error
	RecentAlerts(ctx context.Context, types []models.EventType, limit int) ([]models.Alert, error)
}

// BoundaryStore is the durable home of per-camera boundaries.
type BoundaryStore interface {
	LoadBoundaries(ctx context.Context) (map[string]Polygon, error)
}

type Config struct {
	ViolationThreshold  time.Duration
	SuppressionWindow   time.Duration
	RetentionMultiplier int
}

func DefaultConfig() Config {
	return Config{
		ViolationThreshold:  60 * time.Second,
		SuppressionWindow:   30 * time.Second,
		RetentionMultiplier: 10,
	}
}

func (c Config) retention() time.Duration {
	return time.Duration(max(1, c.RetentionMultiplier)) * max(c.ViolationThreshold, c.SuppressionWindow)
}

// Observation is one visitor position on one camera.
type Observation struct {
	VisitorID  string
	Name       string
	CameraID   string
	Location   string
	Position   image.Point
	Confidence float64
	Timestamp  time.Time
}

// Violation tracks a visitor continuously seen outside a camera's boundary.
type Violation struct {
	VisitorID  string      `json:"visitor_id"`
	Name       string      `json:"name"`
	CameraID   string      `json:"camera_id"`
	StartedAt  time.Time   `json:"started_at"`
	LastSeenAt time.Time   `json:"last_seen_at"`
	Position   image.Point `json:"position"`
}

// Engine checks visitor positions against per-camera boundaries.
type Engine struct {
	cfg   Config
	store AlertStore
	dedup *behavior.Suppressor

	mu         sync.RWMutex
	boundaries map[string]Polygon

	vmu        sync.Mutex
	violations map[models.PresenceKey]*Violation
}

func NewEngine(cfg Config, store AlertStore) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      store,
		dedup:      behavior.NewSuppressor(cfg.SuppressionWindow),
		boundaries: make(map[string]Polygon),
		violations: make(map[models.PresenceKey]*Violation),
	}
}

// SetBoundary installs or replaces the boundary for a camera.
func (e *Engine) SetBoundary(cameraID string, points Polygon) {
	cp := make(Polygon, len(points))
	copy(cp, points)

	e.mu.Lock()
	e.boundaries[cameraID] = cp
	e.mu.Unlock()

	slog.Info("boundary set", "camera_id", cameraID, "points", len(cp))
}

// RemoveBoundary disables monitoring for a camera and forgets its violations.
func (e *Engine) RemoveBoundary(cameraID string) {
	e.mu.Lock()
	delete(e.boundaries, cameraID)
	e.mu.Unlock()

	e.vmu.Lock()
	for k := range e.violations {
		if k.CameraID == cameraID {
			delete(e.violations, k)
		}
	}
	e.vmu.Unlock()
}

func (e *Engine) Boundary(cameraID string) (Polygon, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.boundaries[cameraID]
	return p, ok
}

// LoadStore installs every boundary held by store.
func (e *Engine) LoadStore(ctx context.Context, store BoundaryStore) (int, error) {
	all, err := store.LoadBoundaries(ctx)
	if err != nil {
		return 0, fmt.Errorf("load boundaries: %w", err)
	}
	for cam, p := range all {
		e.SetBoundary(cam, p)
	}
	return len(all), nil
}

// CheckPosition updates the violation state for the observation and returns an
// alert once the visitor has stayed outside for the violation threshold. Cameras
// without a boundary and unresolved visitors are ignored.
func (e *Engine) CheckPosition(ctx context.Context, o Observation) *models.GeofenceAlert {
	if o.VisitorID == models.UnknownVisitorID {
		return nil
	}
	boundary, ok := e.Boundary(o.CameraID)
	if !ok {
		return nil
	}

	key := models.PresenceKey{VisitorID: o.VisitorID, CameraID: o.CameraID}

	e.vmu.Lock()
	if boundary.Contains(o.Position) {
		if _, ok := e.violations[key]; ok {
			slog.Debug("visitor back inside boundary", "visitor_id", o.VisitorID, "camera_id", o.CameraID)
			delete(e.violations, key)
		}
		e.vmu.Unlock()
		return nil
	}

	v, ok := e.violations[key]
	if !ok {
		v = &Violation{VisitorID: o.VisitorID, Name: o.Name, CameraID: o.CameraID, StartedAt: o.Timestamp}
		e.violations[key] = v
		slog.Debug("geofence violation started", "visitor_id", o.VisitorID, "camera_id", o.CameraID)
	}
	v.LastSeenAt = o.Timestamp
	v.Position = o.Position
	duration := o.Timestamp.Sub(v.StartedAt)
	e.vmu.Unlock()

	if duration < e.cfg.ViolationThreshold {
		return nil
	}
	alertKey := models.AlertKey{VisitorID: o.VisitorID, CameraID: o.CameraID, EventType: models.EventGeofenceViolation}
	if !e.dedup.Allow(alertKey, o.Timestamp) {
		observability.AlertsSuppressed.WithLabelValues(string(models.EventGeofenceViolation)).Inc()
		return nil
	}

	alert := &models.GeofenceAlert{
		AlertHeader: models.NewAlertHeader(models.EventGeofenceViolation,
			o.VisitorID, o.Name, o.CameraID, o.Location, o.Confidence, o.Timestamp),
		DurationSeconds: int(duration / time.Second),
		PositionX:       o.Position.X,
		PositionY:       o.Position.Y,
	}

	observability.AlertsRaised.WithLabelValues(string(models.EventGeofenceViolation)).Inc()
	slog.Warn("geofence violation",
		"visitor_id", o.VisitorID,
		"camera_id", o.CameraID,
		"duration_seconds", alert.DurationSeconds,
	)
	if e.store != nil {
		if err := e.store.SaveAlert(ctx, alert); err != nil {
			slog.Error("persist geofence alert", "error", err, "alert_id", alert.ID)
		}
	}
	return alert
}

// ActiveViolations lists the visitors currently outside the boundary of cameraID,
// longest first. An empty cameraID lists every camera.
func (e *Engine) ActiveViolations(cameraID string) []Violation {
	e.vmu.Lock()
	out := make([]Violation, 0, len(e.violations))
	for k, v := range e.violations {
		if cameraID == "" || k.CameraID == cameraID {
			out = append(out, *v)
		}
	}
	e.vmu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// RecentViolations returns the latest persisted geofence alerts, newest first.
func (e *Engine) RecentViolations(ctx context.Context, limit int) ([]models.Alert, error) {
	if e.store == nil {
		return nil, nil
	}
	alerts, err := e.store.RecentAlerts(ctx, []models.EventType{models.EventGeofenceViolation}, limit)
	if err != nil {
		return nil, fmt.Errorf("recent violations: %w", err)
	}
	return alerts, nil
}

// Sweep drops violations and dedup entries idle past the retention window.
func (e *Engine) Sweep(now time.Time) int {
	cutoff := now.Add(-e.cfg.retention())
	n := e.dedup.Sweep(cutoff)

	e.vmu.Lock()
	for k, v := range e.violations {
		if v.LastSeenAt.Before(cutoff) {
			delete(e.violations, k)
			n++
		}
	}
	e.vmu.Unlock()
	return n
}
