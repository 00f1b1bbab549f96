package dto

import (
	"encoding/json"

	"github.com/your-org/vms/internal/geofence"
	"github.com/your-org/vms/internal/models"
)

type EventListResponse struct {
	Events []models.EventRecord `json:"events"`
	Total  int                  `json:"total"`
}

type AlertListResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Total  int            `json:"total"`
}

// GeofenceResponse lists persisted violation alerts plus the violations still open.
type GeofenceResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Active any            `json:"active"`
}

type VisitorResponse struct {
	VisitorID string          `json:"visitor_id"`
	Name      string          `json:"name"`
	Category  models.Category `json:"category"`
	Inside    bool            `json:"inside"`
	CreatedAt string          `json:"created_at"`
}

type VisitorListResponse struct {
	Visitors []VisitorResponse `json:"visitors"`
	Total    int               `json:"total"`
}

type StatsResponse struct {
	EnrolledIdentities int `json:"enrolled_identities"`
	RegisteredCameras  int `json:"registered_cameras"`
	ActiveCameras      int `json:"active_cameras"`
	AlertsLast24h      int `json:"alerts_last_24h"`
	WSClients          int `json:"ws_clients"`
}

// WSMessage is one message pushed to websocket clients.
type WSMessage struct {
	Type     string          `json:"type"` // alert
	CameraID string          `json:"camera_id"`
	Data     json.RawMessage `json:"data"`
}
