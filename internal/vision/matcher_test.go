package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vms/internal/models"
)

type fakeStore struct {
	mu   sync.Mutex
	rows []models.EnrolledIdentity
	err  error
}

func (s *fakeStore) set(rows []models.EnrolledIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = rows
}

func (s *fakeStore) LoadIdentities(context.Context) ([]models.EnrolledIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.err
}

type fakeExtractor struct {
	faces []FaceDetection
	err   error
}

func (f *fakeExtractor) ExtractFaces(context.Context, image.Image) ([]FaceDetection, error) {
	return f.faces, f.err
}

func (f *fakeExtractor) EmbedFace(context.Context, image.Image) ([]float32, error) {
	if len(f.faces) == 0 {
		return nil, errors.New("no face")
	}
	return f.faces[0].Embedding, nil
}

var (
	frame = image.NewRGBA(image.Rect(0, 0, 64, 64))
	box   = models.BoundingBox{X: 10, Y: 10, W: 20, H: 20}
)

func identity(id string, vec ...float32) models.EnrolledIdentity {
	return models.EnrolledIdentity{VisitorID: id, Name: "name-" + id, Category: models.CategoryVisitor, Embedding: vec}
}

func face(conf float64, vec ...float32) FaceDetection {
	return FaceDetection{Embedding: vec, Box: box, Confidence: conf}
}

func newTestMatcher(t *testing.T, rows []models.EnrolledIdentity, faces ...FaceDetection) *Matcher {
	t.Helper()
	m := NewMatcher(&fakeStore{rows: rows}, &fakeExtractor{faces: faces},
		MatcherConfig{DistanceThreshold: 0.4, MinFaceConfidence: 0.7})
	if rows != nil {
		_, err := m.LoadEmbeddings(context.Background())
		require.NoError(t, err)
	}
	return m
}

func TestLoadEmbeddingsNormalizesAndSkipsInvalid(t *testing.T) {
	m := newTestMatcher(t, nil)
	store := m.store.(*fakeStore)
	store.set([]models.EnrolledIdentity{
		identity("a", 3, 4),
		identity("zero", 0, 0),
		identity("empty"),
		identity("wrong-dim", 1, 0, 0),
	})

	n, err := m.LoadEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, m.Count())

	vec := m.current.Load().identities[0].Embedding
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestLoadEmbeddingsStoreErrorKeepsGallery(t *testing.T) {
	m := newTestMatcher(t, []models.EnrolledIdentity{identity("a", 1, 0)})
	m.store.(*fakeStore).err = errors.New("db down")

	_, err := m.LoadEmbeddings(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, m.Count())
}

func TestIdentifyKnownIdentity(t *testing.T) {
	m := newTestMatcher(t,
		[]models.EnrolledIdentity{identity("v1", 1, 0), identity("v2", 0, 1)},
		face(0.9, 1, 0))

	got := m.Identify(context.Background(), frame)
	require.Len(t, got, 1)
	assert.Equal(t, "v1", got[0].VisitorID)
	assert.Equal(t, "name-v1", got[0].Name)
	assert.Equal(t, models.CategoryVisitor, got[0].Category)
	assert.InDelta(t, 1.0, got[0].Confidence, 1e-9)
	assert.Equal(t, box, got[0].Box)
}

func TestIdentifyConfidenceScalesWithDistance(t *testing.T) {
	// Probe at distance 0.2 from v1: confidence = 1 - 0.2/0.4.
	m := newTestMatcher(t, []models.EnrolledIdentity{identity("v1", 1, 0)})
	match := m.Match([]float32{0.98, 0.19899749})
	assert.Equal(t, "v1", match.VisitorID)
	assert.InDelta(t, 0.5, match.Confidence, 1e-3)
}

func TestIdentifyUnknownBeyondThreshold(t *testing.T) {
	m := newTestMatcher(t, []models.EnrolledIdentity{identity("v1", 1, 0)}, face(0.95, 0, 1))

	got := m.Identify(context.Background(), frame)
	require.Len(t, got, 1)
	assert.Equal(t, models.UnknownVisitorID, got[0].VisitorID)
	assert.Equal(t, "Unknown", got[0].Name)
	assert.Equal(t, models.CategoryUnknown, got[0].Category)
	// Orthogonal unit vectors are sqrt(2) apart, so the floor applies.
	assert.Zero(t, got[0].Confidence)
}

func TestIdentifyEmptyGalleryReturnsUnknown(t *testing.T) {
	m := newTestMatcher(t, nil, face(0.9, 1, 0), face(0.8, 0, 1))

	got := m.Identify(context.Background(), frame)
	require.Len(t, got, 2)
	for _, g := range got {
		assert.Equal(t, models.UnknownVisitorID, g.VisitorID)
		assert.Zero(t, g.Confidence)
	}
}

func TestIdentifyDropsLowConfidenceAndEmptyBoxes(t *testing.T) {
	flat := face(0.99, 1, 0)
	flat.Box.H = 0
	m := newTestMatcher(t, []models.EnrolledIdentity{identity("v1", 1, 0)},
		face(0.69, 1, 0), flat, face(0.70, 1, 0))

	got := m.Identify(context.Background(), frame)
	require.Len(t, got, 1)
	assert.Equal(t, "v1", got[0].VisitorID)
}

func TestIdentifyPreservesDetectionOrder(t *testing.T) {
	m := newTestMatcher(t,
		[]models.EnrolledIdentity{identity("v1", 1, 0), identity("v2", 0, 1)},
		face(0.9, 0, 1), face(0.9, 1, 0))

	got := m.Identify(context.Background(), frame)
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].VisitorID)
	assert.Equal(t, "v1", got[1].VisitorID)
}

func TestIdentifyTieResolvesToFirstEnrolled(t *testing.T) {
	m := newTestMatcher(t,
		[]models.EnrolledIdentity{identity("first", 1, 0), identity("second", 1, 0)},
		face(0.9, 1, 0))

	got := m.Identify(context.Background(), frame)
	require.Len(t, got, 1)
	assert.Equal(t, "first", got[0].VisitorID)
}

func TestIdentifyExtractionErrorYieldsNothing(t *testing.T) {
	m := newTestMatcher(t, []models.EnrolledIdentity{identity("v1", 1, 0)})
	m.extractor = &fakeExtractor{err: errors.New("model crashed")}

	assert.Empty(t, m.Identify(context.Background(), frame))
}

func TestReloadIsAtomicForConcurrentIdentify(t *testing.T) {
	generation := func(g int) []models.EnrolledIdentity {
		return []models.EnrolledIdentity{
			{VisitorID: "a", Name: fmt.Sprintf("gen-%d", g), Embedding: []float32{1, 0}},
			{VisitorID: "b", Name: fmt.Sprintf("gen-%d", g), Embedding: []float32{0, 1}},
		}
	}
	m := newTestMatcher(t, generation(0), face(0.9, 1, 0), face(0.9, 0, 1))
	store := m.store.(*fakeStore)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for g := 1; ctx.Err() == nil; g++ {
			store.set(generation(g))
			_, _ = m.LoadEmbeddings(ctx)
		}
	}()

	for range 2000 {
		got := m.Identify(ctx, frame)
		require.Len(t, got, 2)
		assert.Equal(t, got[0].Name, got[1].Name, "matches within one call came from different galleries")
	}
	cancel()
	wg.Wait()
}
