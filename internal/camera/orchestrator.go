// Package camera owns the lifecycle of per-camera ingestion workers.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/your-org/vms/internal/capture"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/pipeline"
)

var (
	ErrUnknownCamera = errors.New("camera not registered")
	ErrNotRunning    = errors.New("camera not running")
	ErrInvalidConfig = errors.New("invalid camera config")
)

// ConfigStore durably stores camera configurations.
type ConfigStore interface {
	UpsertCamera(ctx context.Context, cfg models.CameraConfig) error
	ListCameras(ctx context.Context) ([]models.CameraConfig, error)
	DeleteCamera(ctx context.Context, cameraID string) error
}

// Processor runs the frame pipeline for one frame.
type Processor interface {
	Process(ctx context.Context, cam models.CameraConfig, frame capture.Frame) (pipeline.Result, error)
}

// Publisher receives every frame result. It must not block for long.
type Publisher interface {
	Publish(ctx context.Context, r pipeline.Result)
}

type Options struct {
	DefaultFPS float64
	// Pauses after a failed read.
	RewindPause time.Duration
	RetryPause  time.Duration
}

func (o *Options) setDefaults() {
	if o.DefaultFPS <= 0 {
		o.DefaultFPS = 5
	}
	if o.RewindPause <= 0 {
		o.RewindPause = 100 * time.Millisecond
	}
	if o.RetryPause <= 0 {
		o.RetryPause = 500 * time.Millisecond
	}
}

// Orchestrator registers cameras and runs at most one worker per camera.
// All methods are safe for concurrent use.
type Orchestrator struct {
	store     ConfigStore
	opener    capture.Opener
	processor Processor
	publisher Publisher
	opts      Options

	base context.Context

	mu      sync.Mutex
	configs map[string]models.CameraConfig
	workers map[string]*worker
}

func NewOrchestrator(store ConfigStore, opener capture.Opener, processor Processor, publisher Publisher, opts Options) *Orchestrator {
	opts.setDefaults()
	return &Orchestrator{
		store:     store,
		opener:    opener,
		processor: processor,
		publisher: publisher,
		opts:      opts,
		base:      context.Background(),
		configs:   make(map[string]models.CameraConfig),
		workers:   make(map[string]*worker),
	}
}

// Register validates and persists cfg, replacing any config with the same id.
// It never starts ingestion; a running worker keeps the config it started with.
func (o *Orchestrator) Register(ctx context.Context, cfg models.CameraConfig) (models.CameraConfig, error) {
	if err := cfg.Validate(o.opts.DefaultFPS); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	now := time.Now().UTC()
	cfg.UpdatedAt = now

	o.mu.Lock()
	if prev, ok := o.configs[cfg.CameraID]; ok && !prev.CreatedAt.IsZero() {
		cfg.CreatedAt = prev.CreatedAt
	}
	o.mu.Unlock()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}

	if o.store != nil {
		if err := o.store.UpsertCamera(ctx, cfg); err != nil {
			return cfg, fmt.Errorf("persist camera: %w", err)
		}
	}

	o.mu.Lock()
	o.configs[cfg.CameraID] = cfg
	o.mu.Unlock()

	slog.Info("camera registered", "camera_id", cfg.CameraID, "source_kind", cfg.SourceKind, "location", cfg.Location)
	return cfg, nil
}

// LoadFromStore repopulates the registry from the config store.
func (o *Orchestrator) LoadFromStore(ctx context.Context) (int, error) {
	if o.store == nil {
		return 0, nil
	}
	cfgs, err := o.store.ListCameras(ctx)
	if err != nil {
		return 0, fmt.Errorf("list cameras: %w", err)
	}

	o.mu.Lock()
	for _, c := range cfgs {
		o.configs[c.CameraID] = c
	}
	o.mu.Unlock()
	return len(cfgs), nil
}

// Start launches the worker for cameraID. Starting a running camera is a no-op.
func (o *Orchestrator) Start(cameraID string) error {
	for {
		o.mu.Lock()
		if w, ok := o.workers[cameraID]; ok {
			if !w.stopping {
				o.mu.Unlock()
				return nil
			}
			// A stop is in flight; wait for the capture to be released first.
			o.mu.Unlock()
			<-w.done
			continue
		}

		cfg, ok := o.configs[cameraID]
		if !ok {
			o.mu.Unlock()
			slog.Warn("start of unregistered camera", "camera_id", cameraID)
			return fmt.Errorf("%w: %s", ErrUnknownCamera, cameraID)
		}

		w := newWorker(o.base, cfg)
		o.workers[cameraID] = w
		o.mu.Unlock()

		go o.run(w)
		slog.Info("camera started", "camera_id", cameraID, "source_kind", cfg.SourceKind, "target_fps", cfg.TargetFPS)
		return nil
	}
}

// Stop cancels the worker for cameraID and waits until its capture is released.
func (o *Orchestrator) Stop(cameraID string) error {
	o.mu.Lock()
	w, ok := o.workers[cameraID]
	if !ok || w.stopping {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRunning, cameraID)
	}
	w.stopping = true
	o.mu.Unlock()

	w.cancel()
	<-w.done
	slog.Info("camera stopped", "camera_id", cameraID)
	return nil
}

// StopAll stops every running worker concurrently. Workers that exit on their own
// while this runs are ignored.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	ids := make([]string, 0, len(o.workers))
	for id := range o.workers {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if err := o.Stop(id); err != nil && !errors.Is(err, ErrNotRunning) {
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Remove stops the camera if running and deletes its configuration.
func (o *Orchestrator) Remove(ctx context.Context, cameraID string) error {
	o.mu.Lock()
	_, known := o.configs[cameraID]
	o.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownCamera, cameraID)
	}

	if err := o.Stop(cameraID); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}

	if o.store != nil {
		if err := o.store.DeleteCamera(ctx, cameraID); err != nil {
			return fmt.Errorf("delete camera: %w", err)
		}
	}

	o.mu.Lock()
	delete(o.configs, cameraID)
	o.mu.Unlock()

	slog.Info("camera removed", "camera_id", cameraID)
	return nil
}

// List returns every registered camera with its liveness, ordered by id.
func (o *Orchestrator) List() []models.CameraStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]models.CameraStatus, 0, len(o.configs))
	for id, cfg := range o.configs {
		w, ok := o.workers[id]
		out = append(out, models.CameraStatus{CameraConfig: cfg, Active: ok && !w.stopping})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// Get returns the registered config for cameraID.
func (o *Orchestrator) Get(cameraID string) (models.CameraStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	cfg, ok := o.configs[cameraID]
	if !ok {
		return models.CameraStatus{}, false
	}
	w, running := o.workers[cameraID]
	return models.CameraStatus{CameraConfig: cfg, Active: running && !w.stopping}, true
}

// Running reports whether a live worker exists for cameraID.
func (o *Orchestrator) Running(cameraID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	w, ok := o.workers[cameraID]
	return ok && !w.stopping
}

// ActiveCount returns the number of live workers.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, w := range o.workers {
		if !w.stopping {
			n++
		}
	}
	return n
}

func (o *Orchestrator) release(w *worker) {
	o.mu.Lock()
	if o.workers[w.cfg.CameraID] == w {
		delete(o.workers, w.cfg.CameraID)
	}
	o.mu.Unlock()
}
