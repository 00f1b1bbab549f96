package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
)

// Deliverer hands an alert to the downstream sink.
type Deliverer interface {
	Dispatch(ctx context.Context, alert models.Alert) bool
}

// Bus republishes results to other processes.
type Bus interface {
	PublishAlert(ctx context.Context, alert models.Alert) error
	PublishSighting(ctx context.Context, ev models.TrackingEvent) error
}

// LiveFeed pushes alerts to connected dashboards.
type LiveFeed interface {
	BroadcastAlert(alert models.Alert)
}

type OutletConfig struct {
	QueueSize int
	Workers   int
}

// Outlet takes frame results off the camera workers and delivers them in the
// background. Queues are bounded and drop when full so a slow downstream never
// stalls ingestion.
type Outlet struct {
	deliverer Deliverer
	bus       Bus
	live      LiveFeed

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	alerts    chan models.Alert
	sightings chan models.TrackingEvent
}

type OutletOption func(*Outlet)

func WithBus(b Bus) OutletOption { return func(o *Outlet) { o.bus = b } }

func WithLiveFeed(f LiveFeed) OutletOption { return func(o *Outlet) { o.live = f } }

func NewOutlet(cfg OutletConfig, deliverer Deliverer, opts ...OutletOption) *Outlet {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Outlet{
		deliverer: deliverer,
		ctx:       ctx,
		cancel:    cancel,
		alerts:    make(chan models.Alert, max(1, cfg.QueueSize)),
		sightings: make(chan models.TrackingEvent, max(1, cfg.QueueSize)),
	}
	for _, opt := range opts {
		opt(o)
	}

	for range max(1, cfg.Workers) {
		o.wg.Add(1)
		go o.alertLoop()
	}
	o.wg.Add(1)
	go o.sightingLoop()
	return o
}

// Publish enqueues the result's alerts and sightings without blocking.
func (o *Outlet) Publish(_ context.Context, r Result) {
	if r.Empty() {
		return
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return
	}

	for _, a := range r.Alerts {
		select {
		case o.alerts <- a:
			observability.DispatchQueueDepth.Inc()
		default:
			observability.DispatchDropped.Inc()
			slog.Warn("alert queue full, dropping", "event_type", a.Header().EventType, "camera_id", r.CameraID)
		}
	}
	if o.bus == nil {
		return
	}
	for _, s := range r.Sightings {
		select {
		case o.sightings <- s:
		default:
			slog.Debug("sighting queue full, dropping", "camera_id", r.CameraID)
		}
	}
}

func (o *Outlet) alertLoop() {
	defer o.wg.Done()
	for a := range o.alerts {
		observability.DispatchQueueDepth.Dec()
		o.deliver(a)
	}
}

func (o *Outlet) deliver(a models.Alert) {
	if o.live != nil {
		o.live.BroadcastAlert(a)
	}
	if o.bus != nil {
		if err := o.bus.PublishAlert(o.ctx, a); err != nil {
			slog.Warn("publish alert to bus", "error", err, "alert_id", a.Header().ID)
		}
	}
	if o.deliverer != nil {
		o.deliverer.Dispatch(o.ctx, a)
	}
}

func (o *Outlet) sightingLoop() {
	defer o.wg.Done()
	for s := range o.sightings {
		if err := o.bus.PublishSighting(o.ctx, s); err != nil {
			slog.Debug("publish sighting to bus", "error", err)
		}
	}
}

// Close stops accepting results and drains the queues. If ctx ends first,
// in-flight deliveries are cancelled.
func (o *Outlet) Close(ctx context.Context) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	close(o.alerts)
	close(o.sightings)
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("outlet drain interrupted", "error", ctx.Err())
		o.cancel()
		<-done
	}
	o.cancel()
}
