package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/vms/internal/api"
	"github.com/your-org/vms/internal/api/handlers"
	"github.com/your-org/vms/internal/api/ws"
	"github.com/your-org/vms/internal/behavior"
	"github.com/your-org/vms/internal/camera"
	"github.com/your-org/vms/internal/capture"
	"github.com/your-org/vms/internal/config"
	"github.com/your-org/vms/internal/dispatch"
	"github.com/your-org/vms/internal/geofence"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
	"github.com/your-org/vms/internal/pipeline"
	"github.com/your-org/vms/internal/queue"
	"github.com/your-org/vms/internal/storage"
	"github.com/your-org/vms/internal/tracking"
	"github.com/your-org/vms/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting visitor monitoring engine",
		"port", cfg.Server.Port,
		"extractors", cfg.Vision.ExtractorPool,
		"cpu_cores", runtime.NumCPU(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	defer ort.DestroyEnvironment()

	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	var snapshots *storage.MinIOStore
	if cfg.MinIO.Endpoint != "" {
		if snapshots, err = storage.NewMinIOStore(cfg.MinIO); err != nil {
			return err
		}
	}

	var producer *queue.Producer
	if cfg.NATS.URL != "" {
		if producer, err = queue.NewProducer(cfg.NATS.URL); err != nil {
			return err
		}
		defer producer.Close()
	}

	// Schema, bucket and streams are independent; prepare them concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return db.Migrate(gctx) })
	if snapshots != nil {
		g.Go(func() error {
			if err := snapshots.EnsureBucket(gctx); err != nil {
				slog.Warn("ensure minio bucket", "error", err)
			}
			return nil
		})
	}
	if producer != nil {
		g.Go(func() error {
			if err := producer.EnsureStreams(gctx); err != nil {
				slog.Warn("ensure nats streams", "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	extractors, err := vision.LoadONNXPool(cfg.Vision)
	if err != nil {
		return err
	}
	defer extractors.Close()

	matcher := vision.NewMatcher(db, extractors, vision.MatcherConfig{
		DistanceThreshold: cfg.Vision.DistanceThreshold,
		MinFaceConfidence: cfg.Vision.MinFaceConfidence,
	})
	n, err := matcher.LoadEmbeddings(ctx)
	if err != nil {
		return err
	}
	slog.Info("identity gallery loaded", "enrolled", n)

	analyzer := behavior.NewAnalyzer(behavior.Config{
		LoiteringThreshold:   cfg.Behavior.LoiteringThreshold(),
		SuppressionWindow:    cfg.Behavior.SuppressionWindow(),
		UnknownAlertInterval: cfg.Behavior.UnknownAlertInterval(),
		RetentionMultiplier:  cfg.Behavior.RetentionMultiplier,
		InsideRetention:      cfg.Behavior.InsideRetention,
	}, db)

	fence := geofence.NewEngine(geofence.Config{
		ViolationThreshold:  cfg.Geofence.ViolationThreshold(),
		SuppressionWindow:   cfg.Geofence.SuppressionWindow(),
		RetentionMultiplier: cfg.Behavior.RetentionMultiplier,
	}, db)
	if n, err := fence.LoadDir(cfg.Geofence.BoundariesDir); err != nil {
		slog.Warn("load boundary files", "dir", cfg.Geofence.BoundariesDir, "error", err)
	} else if n > 0 {
		slog.Info("boundary files loaded", "count", n)
	}
	// Stored boundaries were set through the API and win over files.
	if _, err := fence.LoadStore(ctx, db); err != nil {
		slog.Warn("load stored boundaries", "error", err)
	}

	sink := tracking.NewSink(db)

	var procOpts []pipeline.ProcessorOption
	if snapshots != nil {
		procOpts = append(procOpts, pipeline.WithSnapshots(snapshots, db))
	}
	processor := pipeline.NewProcessor(matcher, sink, analyzer, fence, procOpts...)

	hub := ws.NewHub()
	go hub.Run(ctx)

	dispatcher := dispatch.New(dispatch.Config{
		URL:        cfg.Dispatcher.URL,
		Timeout:    cfg.Dispatcher.Timeout,
		MaxRetries: cfg.Dispatcher.MaxRetries,
		RetryDelay: cfg.Dispatcher.RetryDelay,
	})
	defer dispatcher.Close()
	if !dispatcher.Enabled() {
		slog.Warn("no dispatch url configured, alerts are only logged and stored")
	}

	outletCfg := pipeline.OutletConfig{QueueSize: cfg.Dispatcher.QueueSize, Workers: cfg.Dispatcher.Workers}
	var outlet *pipeline.Outlet
	if producer != nil {
		// With a bus the hub is fed from the ALERTS stream so every instance sees
		// every alert.
		outlet = pipeline.NewOutlet(outletCfg, dispatcher, pipeline.WithBus(producer))
	} else {
		outlet = pipeline.NewOutlet(outletCfg, dispatcher, pipeline.WithLiveFeed(hub))
	}

	orch := camera.NewOrchestrator(db, capture.FFmpegOpener{Width: cfg.Vision.FrameWidth}, processor, outlet, camera.Options{
		DefaultFPS: cfg.Vision.DefaultFPS,
	})
	loaded, err := orch.LoadFromStore(ctx)
	if err != nil {
		return err
	}
	slog.Info("cameras loaded", "count", loaded)
	for _, st := range orch.List() {
		if err := orch.Start(st.CameraID); err != nil {
			slog.Warn("start camera", "camera_id", st.CameraID, "error", err)
		}
	}

	var consumer *queue.Consumer
	if producer != nil {
		if consumer, err = startConsumer(ctx, cfg.NATS.URL, hub, engineControl{orch: orch, matcher: matcher}); err != nil {
			slog.Warn("start nats consumer", "error", err)
		}
	}

	go sweepLoop(ctx, cfg.Behavior.SweepInterval, analyzer, fence)

	checks := map[string]handlers.Check{"postgres": db.Ping}
	if snapshots != nil {
		checks["minio"] = snapshots.Ping
	}
	if producer != nil {
		checks["nats"] = func(context.Context) error { return producer.Ping() }
	}

	routerCfg := api.RouterConfig{
		Cameras:    orch,
		Boundaries: db,
		Geofence:   fence,
		Sink:       sink,
		Alerts:     analyzer,
		Identities: db,
		Matcher:    matcher,
		Presence:   analyzer.Presence(),
		Stats: handlers.StatsSource{
			Enrolled:    matcher.Count,
			Registered:  func() int { return len(orch.List()) },
			Active:      orch.ActiveCount,
			WSClients:   hub.ClientCount,
			AlertsSince: db.CountAlertsSince,
		},
		Checks:     checks,
		Hub:        hub,
		Identifier: matcher,
		Processor:  processor,
		Publisher:  outlet,
	}
	if snapshots != nil {
		routerCfg.Snapshots = snapshots
	}
	if producer != nil {
		routerCfg.Peers = producer
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-srvErr:
		slog.Error("server error", "error", err)
	}

	slog.Info("shutting down engine...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}
	orch.StopAll()
	outlet.Close(shutdownCtx)
	cancel()
	if consumer != nil {
		consumer.Close()
	}

	slog.Info("engine stopped")
	return nil
}

func startConsumer(ctx context.Context, url string, hub *ws.Hub, ctl queue.Controller) (*queue.Consumer, error) {
	consumer, err := queue.NewConsumer(url)
	if err != nil {
		return nil, err
	}

	host, _ := os.Hostname()
	name := "ws-" + queue.SubjectToken(host)
	err = consumer.ConsumeAlerts(ctx, name, func(_ context.Context, h models.AlertHeader, payload []byte) error {
		hub.Broadcast(h.CameraID, "alert", payload)
		return nil
	})
	if err != nil {
		consumer.Close()
		return nil, err
	}

	if err := consumer.SubscribeControl(ctx, ctl); err != nil {
		consumer.Close()
		return nil, err
	}
	return consumer, nil
}

// engineControl applies bus control commands to this instance.
type engineControl struct {
	orch    *camera.Orchestrator
	matcher *vision.Matcher
}

func (c engineControl) Start(cameraID string) error { return c.orch.Start(cameraID) }

func (c engineControl) Stop(cameraID string) error {
	if err := c.orch.Stop(cameraID); err != nil && !errors.Is(err, camera.ErrNotRunning) {
		return err
	}
	return nil
}

func (c engineControl) ReloadIdentities(ctx context.Context) error {
	n, err := c.matcher.LoadEmbeddings(ctx)
	if err != nil {
		return err
	}
	slog.Info("identity gallery reloaded", "enrolled", n)
	return nil
}

// sweepLoop evicts idle behavior and geofence state.
func sweepLoop(ctx context.Context, every time.Duration, analyzer *behavior.Analyzer, fence *geofence.Engine) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a := analyzer.Sweep(now)
			f := fence.Sweep(now)
			if a+f > 0 {
				slog.Debug("state swept", "behavior", a, "geofence", f)
			}
		}
	}
}

// getONNXLibPath returns the ONNX Runtime shared library path
// based on the operating system.
func getONNXLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
