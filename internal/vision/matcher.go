package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
)

// EmbeddingStore is the durable source of enrolled identities.
type EmbeddingStore interface {
	LoadIdentities(ctx context.Context) ([]models.EnrolledIdentity, error)
}

// MatcherConfig holds the matching thresholds.
type MatcherConfig struct {
	// DistanceThreshold is the largest L2 distance between unit embeddings still
	// accepted as the same person.
	DistanceThreshold float64
	// MinFaceConfidence discards detector hits below this score.
	MinFaceConfidence float64
}

// gallery is an immutable set of enrolled identities with unit-length embeddings.
type gallery struct {
	identities []models.EnrolledIdentity
	loadedAt   time.Time
}

// Matcher resolves detected faces to enrolled identities. The gallery is swapped
// atomically on reload so Identify never sees a partially built set.
type Matcher struct {
	store     EmbeddingStore
	extractor FaceExtractor
	cfg       MatcherConfig

	current  atomic.Pointer[gallery]
	reloadMu sync.Mutex
}

func NewMatcher(store EmbeddingStore, extractor FaceExtractor, cfg MatcherConfig) *Matcher {
	m := &Matcher{store: store, extractor: extractor, cfg: cfg}
	m.current.Store(&gallery{})
	return m
}

// LoadEmbeddings replaces the gallery with the store's current contents and
// returns the number of usable identities.
func (m *Matcher) LoadEmbeddings(ctx context.Context) (int, error) {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	rows, err := m.store.LoadIdentities(ctx)
	if err != nil {
		return 0, fmt.Errorf("load identities: %w", err)
	}

	g := &gallery{identities: make([]models.EnrolledIdentity, 0, len(rows)), loadedAt: time.Now()}
	dim := 0
	for _, id := range rows {
		if len(id.Embedding) == 0 {
			slog.Warn("identity has no embedding, skipping", "visitor_id", id.VisitorID)
			continue
		}
		if dim == 0 {
			dim = len(id.Embedding)
		}
		if len(id.Embedding) != dim {
			slog.Warn("identity embedding dimension mismatch, skipping",
				"visitor_id", id.VisitorID, "dim", len(id.Embedding), "expected", dim)
			continue
		}
		vec := make([]float32, dim)
		copy(vec, id.Embedding)
		if !Normalize(vec) {
			slog.Warn("identity embedding has zero norm, skipping", "visitor_id", id.VisitorID)
			continue
		}
		id.Embedding = vec
		g.identities = append(g.identities, id)
	}

	m.current.Store(g)
	observability.EnrolledIdentities.Set(float64(len(g.identities)))
	slog.Info("embeddings loaded", "count", len(g.identities), "skipped", len(rows)-len(g.identities))
	return len(g.identities), nil
}

// Count returns the number of identities in the active gallery.
func (m *Matcher) Count() int {
	return len(m.current.Load().identities)
}

// Identify extracts faces from img and resolves each against the gallery, in
// detection order. Extraction failures yield no matches.
func (m *Matcher) Identify(ctx context.Context, img image.Image) []models.FaceMatch {
	faces, err := m.extractor.ExtractFaces(ctx, img)
	if err != nil {
		slog.Warn("face extraction failed", "error", err)
		return nil
	}

	g := m.current.Load()
	matches := make([]models.FaceMatch, 0, len(faces))
	for _, f := range faces {
		if f.Confidence < m.cfg.MinFaceConfidence || f.Box.W <= 0 || f.Box.H <= 0 {
			continue
		}
		match := m.resolve(g, f.Embedding)
		match.Box = f.Box
		match.Embedding = f.Embedding
		matches = append(matches, match)
	}
	return matches
}

// Match resolves a single probe embedding against the active gallery.
func (m *Matcher) Match(embedding []float32) models.FaceMatch {
	return m.resolve(m.current.Load(), embedding)
}

func (m *Matcher) resolve(g *gallery, embedding []float32) models.FaceMatch {
	unknown := models.FaceMatch{
		VisitorID: models.UnknownVisitorID,
		Name:      "Unknown",
		Category:  models.CategoryUnknown,
	}
	if len(g.identities) == 0 || len(embedding) == 0 {
		return unknown
	}

	probe := make([]float32, len(embedding))
	copy(probe, embedding)
	if !Normalize(probe) {
		return unknown
	}

	best := -1
	bestDist := math.Inf(1)
	for i := range g.identities {
		ref := g.identities[i].Embedding
		if len(ref) != len(probe) {
			continue
		}
		// Strict comparison keeps the earliest identity on exact ties.
		if d := Distance(probe, ref); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return unknown
	}

	if bestDist > m.cfg.DistanceThreshold {
		unknown.Confidence = max(0, 1-bestDist)
		return unknown
	}

	id := g.identities[best]
	confidence := 1.0
	if m.cfg.DistanceThreshold > 0 {
		confidence = max(0, 1-bestDist/m.cfg.DistanceThreshold)
	}
	return models.FaceMatch{
		VisitorID:  id.VisitorID,
		Name:       id.Name,
		Category:   id.Category,
		Confidence: confidence,
	}
}
