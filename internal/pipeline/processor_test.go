package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vms/internal/behavior"
	"github.com/your-org/vms/internal/capture"
	"github.com/your-org/vms/internal/geofence"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/tracking"
)

type fakeIdentifier struct {
	matches []models.FaceMatch
}

func (f *fakeIdentifier) Identify(context.Context, image.Image) []models.FaceMatch {
	return f.matches
}

type memStore struct {
	mu     sync.Mutex
	events []models.TrackingEvent
	alerts []models.Alert
}

func (m *memStore) SaveTracking(_ context.Context, ev models.TrackingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memStore) QueryEvents(context.Context, models.EventFilter) ([]models.EventRecord, error) {
	return nil, nil
}

func (m *memStore) SaveAlert(_ context.Context, a models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, a)
	return nil
}

func (m *memStore) RecentAlerts(context.Context, []models.EventType, int) ([]models.Alert, error) {
	return nil, nil
}

type fakeSnapshots struct {
	mu     sync.Mutex
	keys   []string
	links  map[uuid.UUID]string
	putErr error
}

func (f *fakeSnapshots) PutObject(_ context.Context, key string, data []byte, contentType string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeSnapshots) SetAlertSnapshot(_ context.Context, id uuid.UUID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.links == nil {
		f.links = map[uuid.UUID]string{}
	}
	f.links[id] = key
	return nil
}

var t0 = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

func frameAt(sec int) capture.Frame {
	return capture.Frame{
		Seq:       uint64(sec),
		Timestamp: t0.Add(time.Duration(sec) * time.Second),
		Image:     image.NewRGBA(image.Rect(0, 0, 100, 100)),
	}
}

func knownMatch() models.FaceMatch {
	return models.FaceMatch{
		VisitorID:  "v1",
		Name:       "Ann",
		Category:   models.CategoryVisitor,
		Confidence: 0.8,
		Box:        models.BoundingBox{X: 10, Y: 10, W: 20, H: 20},
	}
}

func unknownMatch() models.FaceMatch {
	return models.FaceMatch{
		VisitorID:  models.UnknownVisitorID,
		Name:       "Unknown",
		Category:   models.CategoryUnknown,
		Confidence: 0.3,
		Box:        models.BoundingBox{X: 50, Y: 50, W: 20, H: 20},
	}
}

func newTestProcessor(id *fakeIdentifier, store *memStore, opts ...ProcessorOption) (*Processor, *geofence.Engine) {
	fence := geofence.NewEngine(geofence.DefaultConfig(), store)
	p := NewProcessor(id, tracking.NewSink(store),
		behavior.NewAnalyzer(behavior.DefaultConfig(), store), fence, opts...)
	return p, fence
}

func TestProcess_KnownVisitorInRestrictedZone(t *testing.T) {
	store := &memStore{}
	snaps := &fakeSnapshots{}
	p, _ := newTestProcessor(&fakeIdentifier{matches: []models.FaceMatch{knownMatch()}}, store, WithSnapshots(snaps, snaps))

	cam := models.CameraConfig{CameraID: "cam1", Location: "Vault", ZoneType: models.ZoneRestricted}
	res, err := p.Process(context.Background(), cam, frameAt(0))
	require.NoError(t, err)

	assert.Equal(t, "cam1", res.CameraID)
	require.Len(t, res.Sightings, 1)
	assert.Equal(t, "v1", res.Sightings[0].VisitorID)
	require.Len(t, res.Alerts, 1)

	h := res.Alerts[0].Header()
	assert.Equal(t, models.EventRestrictedZoneEntry, h.EventType)
	require.Len(t, snaps.keys, 1)
	assert.Contains(t, snaps.keys[0], "snapshots/cam1/")
	assert.Equal(t, snaps.keys[0], h.SnapshotKey)
	assert.Equal(t, snaps.keys[0], snaps.links[h.ID])

	assert.Len(t, store.events, 1)
	assert.Len(t, store.alerts, 1)
}

func TestProcess_UnknownVisitorIsNotTracked(t *testing.T) {
	store := &memStore{}
	p, _ := newTestProcessor(&fakeIdentifier{matches: []models.FaceMatch{unknownMatch()}}, store)

	cam := models.CameraConfig{CameraID: "cam1", Location: "Lobby", ZoneType: models.ZoneGeneral}
	res, err := p.Process(context.Background(), cam, frameAt(0))
	require.NoError(t, err)

	assert.Empty(t, res.Sightings)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, models.EventUnknownPerson, res.Alerts[0].Header().EventType)
	assert.Empty(t, store.events)
}

func TestProcess_GeofenceUsesFaceCenter(t *testing.T) {
	store := &memStore{}
	p, fence := newTestProcessor(&fakeIdentifier{matches: []models.FaceMatch{knownMatch()}}, store)
	fence.SetBoundary("cam1", geofence.Polygon{{0, 0}, {5, 0}, {5, 5}, {0, 5}})

	cam := models.CameraConfig{CameraID: "cam1", Location: "Yard", ZoneType: models.ZoneGeneral}
	res, err := p.Process(context.Background(), cam, frameAt(0))
	require.NoError(t, err)
	assert.Empty(t, res.Alerts)

	res, err = p.Process(context.Background(), cam, frameAt(61))
	require.NoError(t, err)

	var geo *models.GeofenceAlert
	for _, a := range res.Alerts {
		if g, ok := a.(*models.GeofenceAlert); ok {
			geo = g
		}
	}
	require.NotNil(t, geo)
	assert.Equal(t, 20, geo.PositionX)
	assert.Equal(t, 20, geo.PositionY)
	assert.Equal(t, 61, geo.DurationSeconds)
}

func TestProcess_NoFaces(t *testing.T) {
	p, _ := newTestProcessor(&fakeIdentifier{}, &memStore{})

	res, err := p.Process(context.Background(), models.CameraConfig{CameraID: "cam1"}, frameAt(3))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, uint64(3), res.FrameSeq)
}

func TestProcess_MissingImage(t *testing.T) {
	p, _ := newTestProcessor(&fakeIdentifier{}, &memStore{})

	_, err := p.Process(context.Background(), models.CameraConfig{CameraID: "cam1"}, capture.Frame{})
	assert.Error(t, err)
}

func TestProcess_SnapshotFailureKeepsAlert(t *testing.T) {
	store := &memStore{}
	snaps := &fakeSnapshots{putErr: errors.New("bucket gone")}
	p, _ := newTestProcessor(&fakeIdentifier{matches: []models.FaceMatch{knownMatch()}}, store, WithSnapshots(snaps, snaps))

	cam := models.CameraConfig{CameraID: "cam1", Location: "Vault", ZoneType: models.ZoneRestricted}
	res, err := p.Process(context.Background(), cam, frameAt(0))
	require.NoError(t, err)

	require.Len(t, res.Alerts, 1)
	assert.Empty(t, res.Alerts[0].Header().SnapshotKey)
	assert.Empty(t, snaps.links)
}
