// Package api wires the HTTP control and query surface.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/vms/internal/api/handlers"
	"github.com/your-org/vms/internal/api/ws"
	"github.com/your-org/vms/internal/geofence"
	"github.com/your-org/vms/internal/tracking"
)

type RouterConfig struct {
	Cameras    handlers.CameraService
	Boundaries handlers.BoundarySaver
	Geofence   *geofence.Engine
	Sink       *tracking.Sink
	Alerts     handlers.AlertSource
	Identities handlers.IdentityStore
	Matcher    handlers.IdentityReloader
	Presence   handlers.PresenceView
	Peers      handlers.ControlPublisher
	Snapshots  handlers.SnapshotReader
	Stats      handlers.StatsSource
	Checks     map[string]handlers.Check
	Hub        *ws.Hub

	Identifier handlers.Identifier
	Processor  handlers.FrameProcessor
	Publisher  handlers.ResultPublisher
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	camH := handlers.NewCameraHandler(cfg.Cameras, cfg.Geofence, cfg.Boundaries, cfg.Sink)
	v1.POST("/cameras", camH.Create)
	v1.GET("/cameras", camH.List)
	v1.DELETE("/cameras/:id", camH.Delete)
	v1.POST("/cameras/:id/start", camH.Start)
	v1.POST("/cameras/:id/stop", camH.Stop)
	v1.PUT("/cameras/:id/boundary", camH.PutBoundary)
	v1.GET("/cameras/:id/boundary", camH.GetBoundary)
	v1.GET("/cameras/:id/activity", camH.Activity)

	eventH := handlers.NewEventHandler(cfg.Sink, cfg.Alerts, cfg.Geofence)
	v1.GET("/alerts", eventH.Alerts)
	v1.GET("/alerts/geofence", eventH.Geofence)
	v1.GET("/events", eventH.List)
	v1.GET("/visitors/:id/history", eventH.History)

	visitorH := handlers.NewVisitorHandler(cfg.Identities, cfg.Matcher, cfg.Presence, cfg.Peers)
	v1.GET("/visitors", visitorH.List)
	v1.DELETE("/visitors/:id", visitorH.Delete)
	v1.POST("/identities/reload", visitorH.Reload)

	if cfg.Identifier != nil {
		recH := handlers.NewRecognizeHandler(cfg.Identifier, cfg.Cameras, cfg.Processor, cfg.Publisher)
		v1.POST("/recognize", recH.Recognize)
	}

	if cfg.Snapshots != nil {
		v1.GET("/snapshots/*key", handlers.NewSnapshotHandler(cfg.Snapshots).Get)
	}

	v1.GET("/stats", handlers.NewStatsHandler(cfg.Stats).Get)

	return r
}
