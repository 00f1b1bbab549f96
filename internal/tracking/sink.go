// Package tracking records identity sightings and serves the event history.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/vms/internal/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// EventStore appends tracking events and queries every stored event type.
type EventStore interface {
	SaveTracking(ctx context.Context, ev models.TrackingEvent) error
	QueryEvents(ctx context.Context, f models.EventFilter) ([]models.EventRecord, error)
}

// Sink is the append-only sighting log.
type Sink struct {
	store EventStore
}

func NewSink(store EventStore) *Sink {
	return &Sink{store: store}
}

// Record stores one sighting. A storage failure is logged and the event is
// still returned.
func (s *Sink) Record(ctx context.Context, m models.FaceMatch, cam models.CameraConfig, ts time.Time) models.TrackingEvent {
	ev := models.TrackingEvent{
		ID:         uuid.New(),
		VisitorID:  m.VisitorID,
		Name:       m.Name,
		CameraID:   cam.CameraID,
		Location:   cam.Location,
		ZoneType:   cam.ZoneType,
		Confidence: models.RoundConfidence(m.Confidence),
		Timestamp:  ts.UTC(),
	}
	if err := s.store.SaveTracking(ctx, ev); err != nil {
		slog.Warn("persist tracking event", "error", err, "visitor_id", ev.VisitorID, "camera_id", ev.CameraID)
	}
	return ev
}

// VisitorHistory returns a visitor's events across cameras, newest first.
func (s *Sink) VisitorHistory(ctx context.Context, visitorID string, limit int) ([]models.EventRecord, error) {
	return s.query(ctx, models.EventFilter{VisitorID: visitorID, Limit: limit})
}

// RecentEvents returns the latest events, optionally of one type, newest first.
func (s *Sink) RecentEvents(ctx context.Context, limit int, eventType models.EventType) ([]models.EventRecord, error) {
	return s.query(ctx, models.EventFilter{EventType: eventType, Limit: limit})
}

// CameraActivity returns the latest events seen by one camera, newest first.
func (s *Sink) CameraActivity(ctx context.Context, cameraID string, limit int) ([]models.EventRecord, error) {
	return s.query(ctx, models.EventFilter{CameraID: cameraID, Limit: limit})
}

func (s *Sink) query(ctx context.Context, f models.EventFilter) ([]models.EventRecord, error) {
	f.Limit = ClampLimit(f.Limit)
	recs, err := s.store.QueryEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return recs, nil
}

// ClampLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	return min(n, MaxLimit)
}
