// Package queue carries alerts and sightings over NATS JetStream and receives
// camera control commands.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/vms/internal/models"
)

const (
	AlertsStreamName     = "ALERTS"
	AlertsSubjectBase    = "alerts"
	SightingsStreamName  = "SIGHTINGS"
	SightingsSubjectBase = "sightings"
	ControlSubject       = "camera.control"
)

func dial(url, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := dial(natsURL, "vms-producer")
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        AlertsStreamName,
			Subjects:    []string{AlertsSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      7 * 24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Duplicates:  2 * time.Minute,
			Description: "Behavior and geofence alerts",
		},
		{
			Name:        SightingsStreamName,
			Subjects:    []string{SightingsSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     5000000,
			MaxBytes:    1 * 1024 * 1024 * 1024, // 1GB
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Description: "Identity sightings",
		},
	}
}

// EnsureStreams creates the JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to ride out NATS startup.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streamConfigs() {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil
}

// PublishAlert publishes one alert. The alert id doubles as the JetStream
// message id so a retried publish is deduplicated.
func (p *Producer) PublishAlert(ctx context.Context, alert models.Alert) error {
	h := alert.Header()
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if _, err := p.js.Publish(ctx, AlertSubject(h.EventType, h.CameraID), payload,
		jetstream.WithMsgID(h.ID.String())); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

func (p *Producer) PublishSighting(ctx context.Context, ev models.TrackingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal sighting: %w", err)
	}

	if _, err := p.js.Publish(ctx, SightingSubject(ev.CameraID), payload); err != nil {
		return fmt.Errorf("publish sighting: %w", err)
	}
	return nil
}

// PublishControl sends a control command on the core NATS subject that every
// engine instance listens on.
func (p *Producer) PublishControl(cmd ControlCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal control command: %w", err)
	}
	return p.nc.Publish(ControlSubject, payload)
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}

func AlertSubject(t models.EventType, cameraID string) string {
	return fmt.Sprintf("%s.%s.%s", AlertsSubjectBase, t, SubjectToken(cameraID))
}

func SightingSubject(cameraID string) string {
	return fmt.Sprintf("%s.%s", SightingsSubjectBase, SubjectToken(cameraID))
}

// SubjectToken makes a camera id safe to use as a single subject token.
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
