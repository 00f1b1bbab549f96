package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vms/internal/models"
)

type fakeStore struct {
	saved   []models.TrackingEvent
	filters []models.EventFilter
	saveErr error
	recs    []models.EventRecord
}

func (f *fakeStore) SaveTracking(_ context.Context, ev models.TrackingEvent) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, ev)
	return nil
}

func (f *fakeStore) QueryEvents(_ context.Context, filter models.EventFilter) ([]models.EventRecord, error) {
	f.filters = append(f.filters, filter)
	return f.recs, nil
}

var cam = models.CameraConfig{CameraID: "cam1", Location: "Lobby", ZoneType: models.ZoneGeneral}

func TestRecordBuildsEvent(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	ev := sink.Record(context.Background(), models.FaceMatch{VisitorID: "v1", Name: "Ann", Confidence: 0.123456}, cam, ts)

	require.Len(t, store.saved, 1)
	assert.Equal(t, ev, store.saved[0])
	assert.Equal(t, "v1", ev.VisitorID)
	assert.Equal(t, "cam1", ev.CameraID)
	assert.Equal(t, "Lobby", ev.Location)
	assert.Equal(t, 0.1235, ev.Confidence)
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
	assert.True(t, ev.Timestamp.Equal(ts))
}

func TestRecordStoreFailureIsNotFatal(t *testing.T) {
	sink := NewSink(&fakeStore{saveErr: errors.New("db down")})
	ev := sink.Record(context.Background(), models.FaceMatch{VisitorID: "v1"}, cam, time.Now())
	assert.Equal(t, "v1", ev.VisitorID)
}

func TestQueriesBuildFilters(t *testing.T) {
	store := &fakeStore{}
	sink := NewSink(store)
	ctx := context.Background()

	_, err := sink.VisitorHistory(ctx, "v1", 10)
	require.NoError(t, err)
	_, err = sink.RecentEvents(ctx, 0, models.EventLoitering)
	require.NoError(t, err)
	_, err = sink.CameraActivity(ctx, "cam1", 5000)
	require.NoError(t, err)

	assert.Equal(t, []models.EventFilter{
		{VisitorID: "v1", Limit: 10},
		{EventType: models.EventLoitering, Limit: DefaultLimit},
		{CameraID: "cam1", Limit: MaxLimit},
	}, store.filters)
}
