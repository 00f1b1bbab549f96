package handlers

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vms/internal/camera"
	"github.com/your-org/vms/internal/capture"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/pipeline"
)

const maxUploadBytes = 10 << 20

type Identifier interface {
	Identify(ctx context.Context, img image.Image) []models.FaceMatch
}

type FrameProcessor interface {
	Process(ctx context.Context, cam models.CameraConfig, frame capture.Frame) (pipeline.Result, error)
}

type ResultPublisher interface {
	Publish(ctx context.Context, r pipeline.Result)
}

type RecognizeHandler struct {
	identifier Identifier
	cams       CameraService
	processor  FrameProcessor
	publisher  ResultPublisher
}

func NewRecognizeHandler(identifier Identifier, cams CameraService, processor FrameProcessor, publisher ResultPublisher) *RecognizeHandler {
	return &RecognizeHandler{identifier: identifier, cams: cams, processor: processor, publisher: publisher}
}

type recognizeResponse struct {
	FacesDetected int                `json:"faces_detected"`
	Matches       []models.FaceMatch `json:"matches"`
	Alerts        []models.Alert     `json:"alerts,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Recognize identifies the faces in an uploaded image (multipart field "file").
// With ?camera_id= the image runs through the full pipeline as a frame from that
// camera, so it is tracked and may raise alerts.
func (h *RecognizeHandler) Recognize(c *gin.Context) {
	img, err := readImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	cameraID := c.Query("camera_id")
	if cameraID == "" {
		matches := h.identifier.Identify(c.Request.Context(), img)
		if matches == nil {
			matches = []models.FaceMatch{}
		}
		c.JSON(http.StatusOK, recognizeResponse{FacesDetected: len(matches), Matches: matches, Timestamp: now})
		return
	}

	st, ok := h.cams.Get(cameraID)
	if !ok {
		respondError(c, fmt.Errorf("%w: %s", camera.ErrUnknownCamera, cameraID))
		return
	}
	res, err := h.processor.Process(c.Request.Context(), st.CameraConfig, capture.Frame{Timestamp: now, Image: img})
	if err != nil {
		respondError(c, err)
		return
	}
	if h.publisher != nil {
		h.publisher.Publish(c.Request.Context(), res)
	}

	matches := res.Matches
	if matches == nil {
		matches = []models.FaceMatch{}
	}
	c.JSON(http.StatusOK, recognizeResponse{
		FacesDetected: len(matches),
		Matches:       matches,
		Alerts:        res.Alerts,
		Timestamp:     now,
	})
}

func readImage(c *gin.Context) (image.Image, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing image file: %w", err)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
