package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/vms/internal/models"
)

// AlertHandler receives one alert as published: its header for routing and the
// full variant document.
type AlertHandler func(ctx context.Context, header models.AlertHeader, payload []byte) error

type Consumer struct {
	nc   *nats.Conn
	js   jetstream.JetStream
	wg   sync.WaitGroup
	subs []*nats.Subscription
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := dial(natsURL, "vms-consumer")
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeAlerts feeds new alerts from the ALERTS stream to handler until ctx ends.
// Each engine instance should use its own consumer name so every instance sees
// every alert.
func (c *Consumer) ConsumeAlerts(ctx context.Context, consumerName string, handler AlertHandler) error {
	stream, err := c.js.Stream(ctx, AlertsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AlertsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              consumerName,
		Durable:           consumerName,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        3,
		FilterSubject:     AlertsSubjectBase + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch alerts error", "error", err)
				sleepCtx(ctx, time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := handleAlert(ctx, msg.Data(), handler); err != nil {
					slog.Error("process alert message", "error", err, "subject", msg.Subject())
					_ = msg.Nak()
				} else {
					_ = msg.Ack()
				}
			}
		}
	}()

	slog.Info("alert consumer started", "consumer", consumerName)
	return nil
}

func handleAlert(ctx context.Context, data []byte, handler AlertHandler) error {
	var h models.AlertHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("decode alert header: %w", err)
	}
	if !h.EventType.IsAlert() {
		return fmt.Errorf("unexpected event type %q", h.EventType)
	}
	return handler(ctx, h, data)
}

// Controller is what control commands act on.
type Controller interface {
	Start(cameraID string) error
	Stop(cameraID string) error
	ReloadIdentities(ctx context.Context) error
}

type ControlAction string

const (
	ActionStart  ControlAction = "start"
	ActionStop   ControlAction = "stop"
	ActionReload ControlAction = "reload"
)

type ControlCommand struct {
	Action   ControlAction `json:"action"`
	CameraID string        `json:"camera_id,omitempty"`
}

// SubscribeControl applies commands published on ControlSubject to ctl.
func (c *Consumer) SubscribeControl(ctx context.Context, ctl Controller) error {
	sub, err := c.nc.Subscribe(ControlSubject, func(msg *nats.Msg) {
		if err := applyControl(ctx, msg.Data, ctl); err != nil {
			slog.Warn("control command failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ControlSubject, err)
	}
	c.subs = append(c.subs, sub)
	slog.Info("control subscription started", "subject", ControlSubject)
	return nil
}

func applyControl(ctx context.Context, data []byte, ctl Controller) error {
	var cmd ControlCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("decode control command: %w", err)
	}

	slog.Info("control command", "action", cmd.Action, "camera_id", cmd.CameraID)
	switch cmd.Action {
	case ActionStart, ActionStop:
		if cmd.CameraID == "" {
			return fmt.Errorf("%s requires camera_id", cmd.Action)
		}
		if cmd.Action == ActionStart {
			return ctl.Start(cmd.CameraID)
		}
		return ctl.Stop(cmd.CameraID)
	case ActionReload:
		return ctl.ReloadIdentities(ctx)
	default:
		return fmt.Errorf("unknown control action %q", cmd.Action)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Close drops subscriptions, waits for the alert loop and closes the connection.
// Cancel the ConsumeAlerts context first.
func (c *Consumer) Close() {
	for _, s := range c.subs {
		_ = s.Unsubscribe()
	}
	c.wg.Wait()
	c.nc.Close()
}
