package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/your-org/vms/internal/capture"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
)

// worker is the runtime state of one camera's ingestion loop.
type worker struct {
	cfg    models.CameraConfig
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	stopping bool // guarded by Orchestrator.mu
}

func newWorker(parent context.Context, cfg models.CameraConfig) *worker {
	ctx, cancel := context.WithCancel(parent)
	return &worker{cfg: cfg, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// run is the ingestion loop: open, then read, process and pace frames until
// cancelled. The source is closed on every exit path.
func (o *Orchestrator) run(w *worker) {
	cfg := w.cfg
	log := slog.With("camera_id", cfg.CameraID)

	observability.ActiveCameras.Inc()
	defer close(w.done)
	defer observability.ActiveCameras.Dec()
	defer o.release(w)
	defer w.cancel()

	src, err := o.opener.Open(w.ctx, cfg)
	if err != nil {
		log.Error("open camera source", "source_kind", cfg.SourceKind, "error", err)
		return
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn("close camera source", "error", err)
		}
	}()

	interval := cfg.FrameInterval()
	for w.ctx.Err() == nil {
		started := time.Now()

		frame, err := src.Read(w.ctx)
		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			o.recoverRead(w.ctx, log, cfg, src, err)
			continue
		}
		if frame.Timestamp.IsZero() {
			frame.Timestamp = time.Now()
		}

		o.handle(w.ctx, log, cfg, frame)

		sleep(w.ctx, interval-time.Since(started))
	}
}

// recoverRead skips undecodable frames, loops finite sources back to the start at
// EOF and pauses before retrying anything else.
func (o *Orchestrator) recoverRead(ctx context.Context, log *slog.Logger, cfg models.CameraConfig, src capture.FrameSource, err error) {
	switch {
	case errors.Is(err, capture.ErrBadFrame):
		observability.FramesDropped.WithLabelValues(cfg.CameraID).Inc()
		log.Debug("skip frame", "error", err)
	case cfg.SourceKind.Finite() && errors.Is(err, io.EOF):
		if err := src.Rewind(ctx); err != nil {
			log.Warn("rewind source", "error", err)
		}
		sleep(ctx, o.opts.RewindPause)
	default:
		log.Warn("read frame", "error", err)
		sleep(ctx, o.opts.RetryPause)
	}
}

// handle processes one frame. Errors and panics are contained to the frame.
func (o *Orchestrator) handle(ctx context.Context, log *slog.Logger, cfg models.CameraConfig, frame capture.Frame) {
	defer func() {
		if r := recover(); r != nil {
			observability.FrameErrors.WithLabelValues(cfg.CameraID).Inc()
			log.Error("frame pipeline panic", "seq", frame.Seq, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	result, err := o.processor.Process(ctx, cfg, frame)
	observability.FramesProcessed.WithLabelValues(cfg.CameraID).Inc()
	if err != nil {
		observability.FrameErrors.WithLabelValues(cfg.CameraID).Inc()
		log.Warn("process frame", "seq", frame.Seq, "error", err)
		return
	}
	if o.publisher != nil {
		o.publisher.Publish(ctx, result)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
