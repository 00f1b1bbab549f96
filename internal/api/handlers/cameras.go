package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vms/internal/camera"
	"github.com/your-org/vms/internal/geofence"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/tracking"
	"github.com/your-org/vms/pkg/dto"
)

// CameraService is the orchestrator surface the API drives.
type CameraService interface {
	Register(ctx context.Context, cfg models.CameraConfig) (models.CameraConfig, error)
	Start(cameraID string) error
	Stop(cameraID string) error
	Remove(ctx context.Context, cameraID string) error
	List() []models.CameraStatus
	Get(cameraID string) (models.CameraStatus, bool)
}

// BoundarySaver persists a camera boundary so it survives restarts.
type BoundarySaver interface {
	SaveBoundary(ctx context.Context, cameraID string, points geofence.Polygon) error
}

type CameraHandler struct {
	cams       CameraService
	fence      *geofence.Engine
	boundaries BoundarySaver
	sink       *tracking.Sink
}

func NewCameraHandler(cams CameraService, fence *geofence.Engine, boundaries BoundarySaver, sink *tracking.Sink) *CameraHandler {
	return &CameraHandler{cams: cams, fence: fence, boundaries: boundaries, sink: sink}
}

func (h *CameraHandler) Create(c *gin.Context) {
	var req dto.CreateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.cams.Register(c.Request.Context(), req.Config())
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Start {
		if err := h.cams.Start(cfg.CameraID); err != nil {
			respondError(c, err)
			return
		}
	}

	st, _ := h.cams.Get(cfg.CameraID)
	c.JSON(http.StatusCreated, st)
}

func (h *CameraHandler) List(c *gin.Context) {
	cams := h.cams.List()
	c.JSON(http.StatusOK, dto.CameraListResponse{Cameras: cams, Total: len(cams)})
}

func (h *CameraHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.cams.Remove(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.fence.RemoveBoundary(id)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *CameraHandler) Start(c *gin.Context) {
	id := c.Param("id")
	if err := h.cams.Start(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "running", "camera_id": id})
}

func (h *CameraHandler) Stop(c *gin.Context) {
	id := c.Param("id")
	if err := h.cams.Stop(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "camera_id": id})
}

func (h *CameraHandler) PutBoundary(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.cams.Get(id); !ok {
		respondError(c, fmt.Errorf("%w: %s", camera.ErrUnknownCamera, id))
		return
	}

	var req dto.BoundaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	points := geofence.Polygon(req.Points)
	if h.boundaries != nil {
		if err := h.boundaries.SaveBoundary(c.Request.Context(), id, points); err != nil {
			respondError(c, err)
			return
		}
	}
	h.fence.SetBoundary(id, points)

	c.JSON(http.StatusOK, dto.BoundaryResponse{CameraID: id, Points: points, Enabled: points.Enabled()})
}

func (h *CameraHandler) GetBoundary(c *gin.Context) {
	id := c.Param("id")
	points, ok := h.fence.Boundary(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no boundary for camera " + id})
		return
	}
	c.JSON(http.StatusOK, dto.BoundaryResponse{CameraID: id, Points: points, Enabled: points.Enabled()})
}

func (h *CameraHandler) Activity(c *gin.Context) {
	events, err := h.sink.CameraActivity(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.EventListResponse{Events: events, Total: len(events)})
}
