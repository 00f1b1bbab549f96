package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/your-org/vms/internal/capture"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves frames from next until it returns an error.
type fakeSource struct {
	next    func(n int) error
	reads   atomic.Int32
	rewinds atomic.Int32
	closed  atomic.Bool
}

func (s *fakeSource) Read(ctx context.Context) (capture.Frame, error) {
	n := int(s.reads.Add(1))
	if s.next != nil {
		if err := s.next(n); err != nil {
			return capture.Frame{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, err
	}
	return capture.Frame{Seq: uint64(n)}, nil
}

func (s *fakeSource) Rewind(context.Context) error {
	s.rewinds.Add(1)
	return nil
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	opened  []*fakeSource
	err     error
	newNext func(n int) error
}

func (o *fakeOpener) Open(_ context.Context, _ models.CameraConfig) (capture.FrameSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	s := &fakeSource{next: o.newNext}
	o.opened = append(o.opened, s)
	return s, nil
}

func (o *fakeOpener) sources() []*fakeSource {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*fakeSource(nil), o.opened...)
}

type fakeProcessor struct {
	calls atomic.Int32
	fn    func(frame capture.Frame) (pipeline.Result, error)
}

func (p *fakeProcessor) Process(_ context.Context, cam models.CameraConfig, frame capture.Frame) (pipeline.Result, error) {
	p.calls.Add(1)
	if p.fn != nil {
		return p.fn(frame)
	}
	return pipeline.Result{CameraID: cam.CameraID, FrameSeq: frame.Seq, Timestamp: frame.Timestamp}, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	results []pipeline.Result
}

func (p *fakePublisher) Publish(_ context.Context, r pipeline.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, r)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}

type memConfigStore struct {
	mu   sync.Mutex
	cams map[string]models.CameraConfig
	err  error
}

func newMemConfigStore() *memConfigStore {
	return &memConfigStore{cams: make(map[string]models.CameraConfig)}
}

func (s *memConfigStore) UpsertCamera(_ context.Context, c models.CameraConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cams[c.CameraID] = c
	return nil
}

func (s *memConfigStore) ListCameras(context.Context) ([]models.CameraConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CameraConfig
	for _, c := range s.cams {
		out = append(out, c)
	}
	return out, s.err
}

func (s *memConfigStore) DeleteCamera(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cams, id)
	return s.err
}

type harness struct {
	orch   *Orchestrator
	store  *memConfigStore
	opener *fakeOpener
	proc   *fakeProcessor
	pub    *fakePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  newMemConfigStore(),
		opener: &fakeOpener{},
		proc:   &fakeProcessor{},
		pub:    &fakePublisher{},
	}
	h.orch = NewOrchestrator(h.store, h.opener, h.proc, h.pub, Options{
		RewindPause: time.Millisecond,
		RetryPause:  time.Millisecond,
	})
	t.Cleanup(h.orch.StopAll)
	return h
}

func (h *harness) register(t *testing.T, id string, kind models.SourceKind) {
	t.Helper()
	src := "clip.mp4"
	if kind == models.SourceWebcam {
		src = "0"
	}
	_, err := h.orch.Register(context.Background(), models.CameraConfig{
		CameraID:   id,
		SourceKind: kind,
		Source:     src,
		Location:   "Main Entrance",
		TargetFPS:  500,
	})
	require.NoError(t, err)
}

func TestRegisterPersistsAndValidates(t *testing.T) {
	h := newHarness(t)
	h.register(t, "cam1", models.SourceFile)

	assert.Contains(t, h.store.cams, "cam1")
	assert.Equal(t, models.ZoneGeneral, h.store.cams["cam1"].ZoneType)

	_, err := h.orch.Register(context.Background(), models.CameraConfig{CameraID: "bad", SourceKind: models.SourceWebcam, Source: "front"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	h.store.err = errors.New("db down")
	_, err = h.orch.Register(context.Background(), models.CameraConfig{CameraID: "cam2", SourceKind: models.SourceFile, Source: "x.mp4"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidConfig)
	_, ok := h.orch.Get("cam2")
	assert.False(t, ok)
}

func TestRegisterReplacesConfig(t *testing.T) {
	h := newHarness(t)
	h.register(t, "cam1", models.SourceFile)
	_, err := h.orch.Register(context.Background(), models.CameraConfig{
		CameraID: "cam1", SourceKind: models.SourceNetwork, Source: "rtsp://x/1", Location: "Vault", ZoneType: "restricted",
	})
	require.NoError(t, err)

	list := h.orch.List()
	require.Len(t, list, 1)
	assert.Equal(t, "Vault", list[0].Location)
	assert.Equal(t, models.ZoneRestricted, list[0].ZoneType)
	assert.Equal(t, 5.0, list[0].TargetFPS)
}

func TestStartUnknownCamera(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.orch.Start("nope"), ErrUnknownCamera)
}

func TestStopNotRunning(t *testing.T) {
	h := newHarness(t)
	h.register(t, "cam1", models.SourceWebcam)
	assert.ErrorIs(t, h.orch.Stop("cam1"), ErrNotRunning)
}

func TestStartIsIdempotentAndStopReleasesCapture(t *testing.T) {
	h := newHarness(t)
	h.register(t, "cam1", models.SourceWebcam)

	require.NoError(t, h.orch.Start("cam1"))
	require.NoError(t, h.orch.Start("cam1"))
	require.Eventually(t, func() bool { return h.pub.count() > 3 }, time.Second, time.Millisecond)

	assert.Len(t, h.opener.sources(), 1)
	assert.True(t, h.orch.Running("cam1"))
	assert.True(t, h.orch.List()[0].Active)

	require.NoError(t, h.orch.Stop("cam1"))
	assert.True(t, h.opener.sources()[0].closed.Load())
	assert.False(t, h.orch.Running("cam1"))
	assert.False(t, h.orch.List()[0].Active)
}

func TestRepeatedStartStopNeverLeaksSources(t *testing.T) {
	h := newHarness(t)
	h.register(t, "cam1", models.SourceWebcam)

	for range 20 {
		require.NoError(t, h.orch.Start("cam1"))
		require.NoError(t, h.orch.Stop("cam1"))
	}
	sources := h.opener.sources()
	assert.Len(t, sources, 20)
	for _, s := range sources {
		assert.True(t, s.closed.Load())
	}
}

func TestOpenFailureTerminatesWorker(t *testing.T) {
	h := newHarness(t)
	h.opener.err = errors.New("no such device")
	h.register(t, "cam1", models.SourceWebcam)

	require.NoError(t, h.orch.Start("cam1"))
	require.Eventually(t, func() bool { return !h.orch.Running("cam1") }, time.Second, time.Millisecond)
	assert.ErrorIs(t, h.orch.Stop("cam1"), ErrNotRunning)
	assert.Zero(t, h.proc.calls.Load())
}

func TestFileSourceRewindsAtEOF(t *testing.T) {
	h := newHarness(t)
	h.opener.newNext = func(n int) error {
		if n%3 == 0 {
			return io.EOF
		}
		return nil
	}
	h.register(t, "cam1", models.SourceFile)

	require.NoError(t, h.orch.Start("cam1"))
	require.Eventually(t, func() bool { return h.opener.sources()[0].rewinds.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, h.orch.Stop("cam1"))
	assert.Positive(t, h.pub.count())
}

func TestFileSourceSkipsBadFramesWithoutRewinding(t *testing.T) {
	h := newHarness(t)
	h.opener.newNext = func(n int) error {
		if n%2 == 0 {
			return fmt.Errorf("%w: invalid JPEG format", capture.ErrBadFrame)
		}
		return nil
	}
	h.register(t, "cam1", models.SourceFile)

	require.NoError(t, h.orch.Start("cam1"))
	require.Eventually(t, func() bool { return h.pub.count() >= 5 }, time.Second, time.Millisecond)
	require.NoError(t, h.orch.Stop("cam1"))
	assert.Zero(t, h.opener.sources()[0].rewinds.Load())
}

func TestLiveSourceRetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	h.opener.newNext = func(n int) error {
		if n <= 5 {
			return capture.ErrReconnecting
		}
		return nil
	}
	h.register(t, "cam1", models.SourceWebcam)

	require.NoError(t, h.orch.Start("cam1"))
	require.Eventually(t, func() bool { return h.pub.count() > 0 }, time.Second, time.Millisecond)
	src := h.opener.sources()[0]
	assert.Zero(t, src.rewinds.Load())
	assert.True(t, h.orch.Running("cam1"))
}

func TestPipelineFailuresDoNotStopWorker(t *testing.T) {
	h := newHarness(t)
	h.proc.fn = func(frame capture.Frame) (pipeline.Result, error) {
		switch frame.Seq % 3 {
		case 0:
			panic("boom")
		case 1:
			return pipeline.Result{}, fmt.Errorf("extractor failed")
		}
		return pipeline.Result{FrameSeq: frame.Seq}, nil
	}
	h.register(t, "cam1", models.SourceWebcam)

	require.NoError(t, h.orch.Start("cam1"))
	require.Eventually(t, func() bool { return h.pub.count() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, h.orch.Running("cam1"))

	h.pub.mu.Lock()
	for _, r := range h.pub.results {
		assert.Equal(t, uint64(2), r.FrameSeq%3)
	}
	h.pub.mu.Unlock()
}

func TestFramesAreTimestampedAtCapture(t *testing.T) {
	h := newHarness(t)
	h.register(t, "cam1", models.SourceWebcam)

	before := time.Now()
	require.NoError(t, h.orch.Start("cam1"))
	require.Eventually(t, func() bool { return h.pub.count() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, h.orch.Stop("cam1"))

	h.pub.mu.Lock()
	defer h.pub.mu.Unlock()
	assert.False(t, h.pub.results[0].Timestamp.Before(before))
}

func TestFrameRateIsHeld(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Register(context.Background(), models.CameraConfig{
		CameraID: "slow", SourceKind: models.SourceWebcam, Source: "0", TargetFPS: 20,
	})
	require.NoError(t, err)

	require.NoError(t, h.orch.Start("slow"))
	time.Sleep(260 * time.Millisecond)
	require.NoError(t, h.orch.Stop("slow"))

	// 20 fps over ~260ms is about 6 frames; allow generous scheduling slack.
	assert.InDelta(t, 6, h.pub.count(), 3)
}

func TestStopAllToleratesSelfStoppedWorkers(t *testing.T) {
	h := newHarness(t)
	h.register(t, "cam1", models.SourceWebcam)
	h.register(t, "cam2", models.SourceWebcam)
	h.register(t, "cam3", models.SourceWebcam)

	for _, id := range []string{"cam1", "cam2", "cam3"} {
		require.NoError(t, h.orch.Start(id))
	}
	require.NoError(t, h.orch.Stop("cam2"))

	h.orch.StopAll()
	assert.Zero(t, h.orch.ActiveCount())
	for _, s := range h.opener.sources() {
		assert.True(t, s.closed.Load())
	}
}

func TestConcurrentStartStop(t *testing.T) {
	h := newHarness(t)
	h.register(t, "cam1", models.SourceWebcam)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_ = h.orch.Start("cam1")
			} else {
				_ = h.orch.Stop("cam1")
			}
		}()
	}
	wg.Wait()
	h.orch.StopAll()

	for _, s := range h.opener.sources() {
		assert.True(t, s.closed.Load())
	}
}

func TestRemoveStopsAndDeletes(t *testing.T) {
	h := newHarness(t)
	h.register(t, "cam1", models.SourceWebcam)
	require.NoError(t, h.orch.Start("cam1"))

	require.NoError(t, h.orch.Remove(context.Background(), "cam1"))
	assert.Empty(t, h.orch.List())
	assert.NotContains(t, h.store.cams, "cam1")
	assert.True(t, h.opener.sources()[0].closed.Load())
	assert.ErrorIs(t, h.orch.Remove(context.Background(), "cam1"), ErrUnknownCamera)
}

func TestLoadFromStore(t *testing.T) {
	h := newHarness(t)
	h.store.cams["a"] = models.CameraConfig{CameraID: "a", SourceKind: models.SourceWebcam, Source: "0", TargetFPS: 5}
	h.store.cams["b"] = models.CameraConfig{CameraID: "b", SourceKind: models.SourceFile, Source: "x.mp4", TargetFPS: 5}

	n, err := h.orch.LoadFromStore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list := h.orch.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].CameraID)
	assert.False(t, list[0].Active)
}
