package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/your-org/vms/internal/config"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/observability"
)

// FaceDetection is one face found in a frame by a FaceExtractor.
type FaceDetection struct {
	Embedding  []float32
	Box        models.BoundingBox
	Confidence float64
}

// FaceExtractor turns raster frames into face embeddings. Finding no face is an
// empty result, not an error.
type FaceExtractor interface {
	ExtractFaces(ctx context.Context, img image.Image) ([]FaceDetection, error)
	EmbedFace(ctx context.Context, face image.Image) ([]float32, error)
}

// ONNXExtractor pairs one Detector with one Embedder. Not safe for concurrent use;
// share through an ExtractorPool.
type ONNXExtractor struct {
	detector *Detector
	embedder *Embedder
}

func NewONNXExtractor(cfg config.VisionConfig) (*ONNXExtractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXExtractor{detector: det, embedder: emb}, nil
}

func (e *ONNXExtractor) ExtractFaces(ctx context.Context, img image.Image) ([]FaceDetection, error) {
	b := img.Bounds()
	inW, inH := e.detector.InputSize()

	start := time.Now()
	dets, err := e.detector.Detect(toCHW(img, inW, inH, retinaMean, retinaStd), b.Dx(), b.Dy())
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	faces := make([]FaceDetection, 0, len(dets))
	for _, d := range dets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		box := models.BoundingBox{
			X: b.Min.X + int(d.BBox[0]),
			Y: b.Min.Y + int(d.BBox[1]),
			W: int(d.Width()),
			H: int(d.Height()),
		}
		crop := embedRegion(img, box)
		if crop == nil {
			continue
		}
		vec, err := e.EmbedFace(ctx, crop)
		if err != nil {
			slog.Warn("embed face", "error", err)
			continue
		}
		faces = append(faces, FaceDetection{Embedding: vec, Box: box, Confidence: float64(d.Confidence)})
	}
	return faces, nil
}

// embedRegion is the exact detected box, unpadded.
func embedRegion(img image.Image, box models.BoundingBox) image.Image {
	return CropPadded(img, box, 0)
}

func (e *ONNXExtractor) EmbedFace(_ context.Context, face image.Image) ([]float32, error) {
	w, h := e.embedder.InputSize()
	start := time.Now()
	vec, err := e.embedder.Embed(toCHW(face, w, h, arcfaceMean, arcfaceStd))
	if err != nil {
		return nil, err
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	return vec, nil
}

func (e *ONNXExtractor) Close() error {
	e.detector.Close()
	e.embedder.Close()
	return nil
}

// ExtractorPool lends extractors to concurrent callers, blocking until one is idle.
type ExtractorPool struct {
	idle chan FaceExtractor
	all  []FaceExtractor
}

func NewExtractorPool(extractors ...FaceExtractor) *ExtractorPool {
	p := &ExtractorPool{idle: make(chan FaceExtractor, len(extractors)), all: extractors}
	for _, e := range extractors {
		p.idle <- e
	}
	return p
}

// LoadONNXPool builds cfg.ExtractorPool ONNX extractors. The ONNX runtime
// environment must already be initialised.
func LoadONNXPool(cfg config.VisionConfig) (*ExtractorPool, error) {
	var extractors []FaceExtractor
	for range max(1, cfg.ExtractorPool) {
		e, err := NewONNXExtractor(cfg)
		if err != nil {
			_ = NewExtractorPool(extractors...).Close()
			return nil, err
		}
		extractors = append(extractors, e)
	}
	slog.Info("face extractors ready", "count", len(extractors))
	return NewExtractorPool(extractors...), nil
}

func (p *ExtractorPool) with(ctx context.Context, fn func(FaceExtractor) error) error {
	select {
	case e := <-p.idle:
		defer func() { p.idle <- e }()
		return fn(e)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ExtractorPool) ExtractFaces(ctx context.Context, img image.Image) (faces []FaceDetection, err error) {
	err = p.with(ctx, func(e FaceExtractor) error {
		faces, err = e.ExtractFaces(ctx, img)
		return err
	})
	return faces, err
}

func (p *ExtractorPool) EmbedFace(ctx context.Context, face image.Image) (vec []float32, err error) {
	err = p.with(ctx, func(e FaceExtractor) error {
		vec, err = e.EmbedFace(ctx, face)
		return err
	})
	return vec, err
}

// Close releases every pooled extractor that holds native resources.
func (p *ExtractorPool) Close() error {
	var errs []error
	for _, e := range p.all {
		if c, ok := e.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
