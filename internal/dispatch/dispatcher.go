// Package dispatch delivers alerts to the downstream webhook.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
)

type Config struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Dispatcher POSTs one JSON alert per request with a bounded number of retries.
// Delivery failure is reported as a false return, never as an error.
type Dispatcher struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Dispatcher{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Enabled reports whether a downstream URL is configured.
func (d *Dispatcher) Enabled() bool {
	return d.cfg.URL != ""
}

// Dispatch delivers alert, trying at most 1+MaxRetries times. It returns true
// once the sink answers with a 2xx status.
func (d *Dispatcher) Dispatch(ctx context.Context, alert models.Alert) bool {
	h := alert.Header()
	if !d.Enabled() {
		slog.Debug("no dispatch url configured", "event_type", h.EventType, "alert_id", h.ID)
		observability.DispatchAttempts.WithLabelValues("disabled").Inc()
		return false
	}

	body, err := json.Marshal(alert)
	if err != nil {
		slog.Error("marshal alert", "error", err, "alert_id", h.ID)
		return false
	}

	attempts := d.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err := d.post(ctx, body)
		if err == nil {
			observability.DispatchAttempts.WithLabelValues("delivered").Inc()
			return true
		}
		observability.DispatchAttempts.WithLabelValues("failed").Inc()
		slog.Warn("dispatch attempt failed", "attempt", attempt, "event_type", h.EventType, "error", err)

		if attempt < attempts && !pause(ctx, d.cfg.RetryDelay) {
			break
		}
	}

	slog.Error("alert not delivered", "event_type", h.EventType, "alert_id", h.ID, "attempts", attempts)
	return false
}

func (d *Dispatcher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Close releases idle keep-alive connections.
func (d *Dispatcher) Close() {
	d.client.CloseIdleConnections()
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
