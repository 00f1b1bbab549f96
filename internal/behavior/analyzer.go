package behavior

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
)

// Sighting is one identified face on one camera, as fed to the analyzer.
type Sighting struct {
	VisitorID  string
	Name       string
	CameraID   string
	Location   string
	ZoneType   models.ZoneType
	Category   models.Category
	Confidence float64
	Timestamp  time.Time
}

func (s Sighting) known() bool {
	return s.VisitorID != models.UnknownVisitorID
}

// AlertStore persists alerts and serves them back newest first.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert models.Alert) error
	RecentAlerts(ctx context.Context, types []models.EventType, limit int) ([]models.Alert, error)
}

type Config struct {
	LoiteringThreshold   time.Duration
	SuppressionWindow    time.Duration
	UnknownAlertInterval time.Duration
	// RetentionMultiplier times the longest window is how long idle state survives Sweep.
	RetentionMultiplier int
	// InsideRetention is how long a visitor stays in the inside set without any
	// sighting. Zero keeps them until an exit sighting.
	InsideRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		LoiteringThreshold:   60 * time.Second,
		SuppressionWindow:    30 * time.Second,
		UnknownAlertInterval: 45 * time.Second,
		RetentionMultiplier:  10,
		InsideRetention:      24 * time.Hour,
	}
}

// Retention is how long state may sit untouched before Sweep evicts it.
func (c Config) Retention() time.Duration {
	longest := max(c.LoiteringThreshold, c.SuppressionWindow, c.UnknownAlertInterval)
	return time.Duration(max(1, c.RetentionMultiplier)) * longest
}

// Analyzer turns sightings into behavior alerts. One instance is shared by every
// camera worker.
type Analyzer struct {
	cfg        Config
	store      AlertStore
	classifier LocationClassifier
	presence   *PresenceTracker
	dedup      *Suppressor

	mu          sync.Mutex
	lastUnknown map[string]time.Time
}

type Option func(*Analyzer)

// WithClassifier replaces the default substring entry/exit classifier.
func WithClassifier(c LocationClassifier) Option {
	return func(a *Analyzer) { a.classifier = c }
}

func NewAnalyzer(cfg Config, store AlertStore, opts ...Option) *Analyzer {
	a := &Analyzer{
		cfg:         cfg,
		store:       store,
		classifier:  SubstringClassifier{},
		presence:    NewPresenceTracker(),
		dedup:       NewSuppressor(cfg.SuppressionWindow),
		lastUnknown: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Presence exposes the analyzer's dwell tracker for read-only queries.
func (a *Analyzer) Presence() *PresenceTracker {
	return a.presence
}

// Analyze applies, in order, the loitering, restricted zone, unknown person and
// re-entry rules to s. Returned alerts have already been handed to the store;
// a failed save is logged and the alert is still returned.
func (a *Analyzer) Analyze(ctx context.Context, s Sighting) []models.Alert {
	alerts := a.evaluate(s)

	for _, alert := range alerts {
		h := alert.Header()
		observability.AlertsRaised.WithLabelValues(string(h.EventType)).Inc()
		slog.Info("alert emitted",
			"event_type", h.EventType,
			"visitor_id", h.VisitorID,
			"camera_id", h.CameraID,
			"location", h.Location,
		)
		if a.store == nil {
			continue
		}
		if err := a.store.SaveAlert(ctx, alert); err != nil {
			slog.Error("persist alert", "error", err, "event_type", h.EventType, "alert_id", h.ID)
		}
	}
	return alerts
}

func (a *Analyzer) evaluate(s Sighting) []models.Alert {
	var alerts []models.Alert
	header := func(t models.EventType) models.AlertHeader {
		return models.NewAlertHeader(t, s.VisitorID, s.Name, s.CameraID, s.Location, s.Confidence, s.Timestamp)
	}

	state := a.presence.Observe(models.PresenceKey{VisitorID: s.VisitorID, CameraID: s.CameraID}, s.Location, s.Timestamp)
	if state.Dwell() >= a.cfg.LoiteringThreshold && a.allow(s, models.EventLoitering) {
		alerts = append(alerts, &models.LoiteringAlert{
			AlertHeader:  header(models.EventLoitering),
			DwellSeconds: int(state.Dwell() / time.Second),
		})
	}

	if s.ZoneType.Restricted() && a.allow(s, models.EventRestrictedZoneEntry) {
		alerts = append(alerts, &models.RestrictedZoneAlert{AlertHeader: header(models.EventRestrictedZoneEntry)})
	}

	if !s.known() {
		if a.unknownDue(s) {
			alerts = append(alerts, &models.UnknownPersonAlert{AlertHeader: header(models.EventUnknownPerson)})
		}
		return alerts
	}

	role := a.classifier.Classify(s.Location)
	if role.IsEntry() {
		if a.presence.Enter(s.VisitorID, s.Timestamp) && a.allow(s, models.EventReEntryWithoutExit) {
			alerts = append(alerts, &models.ReEntryAlert{AlertHeader: header(models.EventReEntryWithoutExit)})
		}
	}
	if role.IsExit() {
		a.presence.Exit(s.VisitorID)
	}

	return alerts
}

// unknownDue applies the per-camera unknown interval and then the duplicate
// window. The camera's interval clock restarts only when an alert fires.
func (a *Analyzer) unknownDue(s Sighting) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if last, ok := a.lastUnknown[s.CameraID]; ok && s.Timestamp.Sub(last) < a.cfg.UnknownAlertInterval {
		return false
	}
	if !a.allow(s, models.EventUnknownPerson) {
		return false
	}
	a.lastUnknown[s.CameraID] = s.Timestamp
	return true
}

func (a *Analyzer) allow(s Sighting, t models.EventType) bool {
	ok := a.dedup.Allow(models.AlertKey{VisitorID: s.VisitorID, CameraID: s.CameraID, EventType: t}, s.Timestamp)
	if !ok {
		observability.AlertsSuppressed.WithLabelValues(string(t)).Inc()
	}
	return ok
}

// RecentAlerts returns the latest persisted behavior alerts, newest first.
func (a *Analyzer) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if a.store == nil {
		return nil, nil
	}
	alerts, err := a.store.RecentAlerts(ctx, models.BehaviorAlertTypes, limit)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	return alerts, nil
}

// Sweep evicts presence, dedup and unknown-interval state idle for longer than the
// configured retention. Inside marks follow InsideRetention instead.
func (a *Analyzer) Sweep(now time.Time) int {
	cutoff := now.Add(-a.cfg.Retention())
	n := a.presence.Sweep(cutoff) + a.dedup.Sweep(cutoff)
	if a.cfg.InsideRetention > 0 {
		n += a.presence.SweepInside(now.Add(-a.cfg.InsideRetention))
	}

	a.mu.Lock()
	for cam, at := range a.lastUnknown {
		if at.Before(cutoff) {
			delete(a.lastUnknown, cam)
			n++
		}
	}
	a.mu.Unlock()

	if n > 0 {
		slog.Debug("behavior state swept", "evicted", n)
	}
	return n
}
