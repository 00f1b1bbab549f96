// Package dto holds the JSON request and response shapes of the HTTP API.
package dto

import "github.com/your-org/vms/internal/models"

type CreateCameraRequest struct {
	CameraID   string  `json:"camera_id" binding:"required"`
	SourceKind string  `json:"source_kind" binding:"required,oneof=webcam file network"`
	Source     string  `json:"source"`
	Location   string  `json:"location"`
	ZoneType   string  `json:"zone_type"`
	TargetFPS  float64 `json:"target_fps"`
	// Start launches ingestion right after registration.
	Start bool `json:"start"`
}

func (r CreateCameraRequest) Config() models.CameraConfig {
	return models.CameraConfig{
		CameraID:   r.CameraID,
		SourceKind: models.SourceKind(r.SourceKind),
		Source:     r.Source,
		Location:   r.Location,
		ZoneType:   models.ZoneType(r.ZoneType),
		TargetFPS:  r.TargetFPS,
	}
}

type CameraListResponse struct {
	Cameras []models.CameraStatus `json:"cameras"`
	Total   int                   `json:"total"`
}

type BoundaryRequest struct {
	Points [][2]int `json:"points" binding:"required"`
}

type BoundaryResponse struct {
	CameraID string   `json:"camera_id"`
	Points   [][2]int `json:"points"`
	Enabled  bool     `json:"enabled"`
}
