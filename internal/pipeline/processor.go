package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/vms/internal/behavior"
	"github.com/your-org/vms/internal/capture"
	"github.com/your-org/vms/internal/geofence"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
	"github.com/your-org/vms/internal/tracking"
	"github.com/your-org/vms/internal/vision"
)

// Identifier resolves faces in a frame.
type Identifier interface {
	Identify(ctx context.Context, img image.Image) []models.FaceMatch
}

// SnapshotStore keeps face crops attached to alerts.
type SnapshotStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// SnapshotIndex records which snapshot belongs to a persisted alert.
type SnapshotIndex interface {
	SetAlertSnapshot(ctx context.Context, alertID uuid.UUID, key string) error
}

const (
	snapshotPadding = 0.1
	snapshotQuality = 85
)

// Processor runs match, track, analyze and geofence for one frame.
type Processor struct {
	identifier Identifier
	sink       *tracking.Sink
	analyzer   *behavior.Analyzer
	geofence   *geofence.Engine
	snapshots  SnapshotStore
	index      SnapshotIndex
}

type ProcessorOption func(*Processor)

// WithSnapshots uploads a face crop for every alert and records its key.
func WithSnapshots(store SnapshotStore, index SnapshotIndex) ProcessorOption {
	return func(p *Processor) {
		p.snapshots = store
		p.index = index
	}
}

func NewProcessor(identifier Identifier, sink *tracking.Sink, analyzer *behavior.Analyzer, fence *geofence.Engine, opts ...ProcessorOption) *Processor {
	p := &Processor{identifier: identifier, sink: sink, analyzer: analyzer, geofence: fence}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process handles one frame. Faces are handled in detection order so per-camera
// state sees them in capture order.
func (p *Processor) Process(ctx context.Context, cam models.CameraConfig, frame capture.Frame) (Result, error) {
	if frame.Image == nil {
		return Result{}, errors.New("frame has no image")
	}
	res := Result{CameraID: cam.CameraID, FrameSeq: frame.Seq, Timestamp: frame.Timestamp}

	start := time.Now()
	res.Matches = p.identifier.Identify(ctx, frame.Image)
	observability.InferenceDuration.WithLabelValues("identify").Observe(time.Since(start).Seconds())
	if len(res.Matches) == 0 {
		return res, nil
	}
	observability.FacesDetected.WithLabelValues(cam.CameraID).Add(float64(len(res.Matches)))

	for _, m := range res.Matches {
		outcome := "unknown"
		if m.Known() {
			outcome = "known"
			res.Sightings = append(res.Sightings, p.sink.Record(ctx, m, cam, frame.Timestamp))
		}
		observability.FacesMatched.WithLabelValues(cam.CameraID, outcome).Inc()

		alerts := p.analyzer.Analyze(ctx, behavior.Sighting{
			VisitorID:  m.VisitorID,
			Name:       m.Name,
			CameraID:   cam.CameraID,
			Location:   cam.Location,
			ZoneType:   cam.ZoneType,
			Category:   m.Category,
			Confidence: m.Confidence,
			Timestamp:  frame.Timestamp,
		})

		if p.geofence != nil && m.Known() {
			if v := p.geofence.CheckPosition(ctx, geofence.Observation{
				VisitorID:  m.VisitorID,
				Name:       m.Name,
				CameraID:   cam.CameraID,
				Location:   cam.Location,
				Position:   m.Box.Center(),
				Confidence: m.Confidence,
				Timestamp:  frame.Timestamp,
			}); v != nil {
				alerts = append(alerts, v)
			}
		}

		if len(alerts) > 0 {
			p.attachSnapshot(ctx, cam.CameraID, frame.Image, m.Box, alerts)
			res.Alerts = append(res.Alerts, alerts...)
		}
	}
	return res, nil
}

// attachSnapshot uploads one crop of the face and links it to each alert. Failures
// leave the alerts without a snapshot.
func (p *Processor) attachSnapshot(ctx context.Context, cameraID string, img image.Image, box models.BoundingBox, alerts []models.Alert) {
	if p.snapshots == nil {
		return
	}
	crop := vision.CropPadded(img, box, snapshotPadding)
	if crop == nil {
		return
	}
	data, err := vision.EncodeJPEG(crop, snapshotQuality)
	if err != nil {
		slog.Warn("encode snapshot", "error", err)
		return
	}

	first := alerts[0].Header()
	key := fmt.Sprintf("snapshots/%s/%s_%s.jpg", cameraID, first.Timestamp.Format("20060102_150405"), first.ID)
	if err := p.snapshots.PutObject(ctx, key, data, "image/jpeg"); err != nil {
		slog.Warn("upload snapshot", "error", err, "camera_id", cameraID)
		return
	}

	for _, a := range alerts {
		h := a.Header()
		h.SnapshotKey = key
		if p.index == nil {
			continue
		}
		if err := p.index.SetAlertSnapshot(ctx, h.ID, key); err != nil {
			slog.Warn("link snapshot", "error", err, "alert_id", h.ID)
		}
	}
}
