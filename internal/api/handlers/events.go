package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vms/internal/geofence"
	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/tracking"
	"github.com/your-org/vms/pkg/dto"
)

// AlertSource serves recent behavior alerts.
type AlertSource interface {
	RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error)
}

type EventHandler struct {
	sink   *tracking.Sink
	alerts AlertSource
	fence  *geofence.Engine
}

func NewEventHandler(sink *tracking.Sink, alerts AlertSource, fence *geofence.Engine) *EventHandler {
	return &EventHandler{sink: sink, alerts: alerts, fence: fence}
}

// List returns recent events of any type, optionally ?event_type= filtered.
func (h *EventHandler) List(c *gin.Context) {
	events, err := h.sink.RecentEvents(c.Request.Context(), limitParam(c), models.EventType(c.Query("event_type")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.EventListResponse{Events: events, Total: len(events)})
}

func (h *EventHandler) History(c *gin.Context) {
	events, err := h.sink.VisitorHistory(c.Request.Context(), c.Param("id"), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.EventListResponse{Events: events, Total: len(events)})
}

// Alerts returns recent behavior alerts, newest first. ?type= keeps one alert type.
func (h *EventHandler) Alerts(c *gin.Context) {
	alerts, err := h.alerts.RecentAlerts(c.Request.Context(), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if t := models.EventType(c.Query("type")); t != "" {
		kept := alerts[:0]
		for _, a := range alerts {
			if a.Header().EventType == t {
				kept = append(kept, a)
			}
		}
		alerts = kept
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, dto.AlertListResponse{Alerts: alerts, Total: len(alerts)})
}

// Geofence returns persisted violation alerts and the violations still open.
// ?camera_id= narrows the open ones.
func (h *EventHandler) Geofence(c *gin.Context) {
	alerts, err := h.fence.RecentViolations(c.Request.Context(), limitParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, dto.GeofenceResponse{
		Alerts: alerts,
		Active: h.fence.ActiveViolations(c.Query("camera_id")),
	})
}
