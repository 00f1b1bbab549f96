package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vms/pkg/dto"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

type SystemHandler struct {
	checks map[string]Check
}

// NewSystemHandler takes the readiness probes keyed by dependency name.
func NewSystemHandler(checks map[string]Check) *SystemHandler {
	return &SystemHandler{checks: checks}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	results := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": results,
	})
}

type StatsSource struct {
	Enrolled    func() int
	Registered  func() int
	Active      func() int
	WSClients   func() int
	AlertsSince func(ctx context.Context, since time.Time) (int, error)
}

type StatsHandler struct {
	src StatsSource
	now func() time.Time
}

func NewStatsHandler(src StatsSource) *StatsHandler {
	return &StatsHandler{src: src, now: time.Now}
}

func (h *StatsHandler) Get(c *gin.Context) {
	resp := dto.StatsResponse{
		EnrolledIdentities: callInt(h.src.Enrolled),
		RegisteredCameras:  callInt(h.src.Registered),
		ActiveCameras:      callInt(h.src.Active),
		WSClients:          callInt(h.src.WSClients),
	}
	if h.src.AlertsSince != nil {
		n, err := h.src.AlertsSince(c.Request.Context(), h.now().Add(-24*time.Hour))
		if err != nil {
			respondError(c, err)
			return
		}
		resp.AlertsLast24h = n
	}
	c.JSON(http.StatusOK, resp)
}

func callInt(f func() int) int {
	if f == nil {
		return 0
	}
	return f()
}
