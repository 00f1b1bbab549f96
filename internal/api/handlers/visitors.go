package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vms/internal/models"
	"github.com/your-org/vms/internal/queue"
	"github.com/your-org/vms/pkg/dto"
)

type IdentityStore interface {
	ListIdentities(ctx context.Context) ([]models.EnrolledIdentity, error)
	DeleteIdentity(ctx context.Context, visitorID string) error
}

// IdentityReloader swaps in a fresh gallery snapshot.
type IdentityReloader interface {
	LoadEmbeddings(ctx context.Context) (int, error)
}

// PresenceView reports whether a visitor is currently inside the premises.
type PresenceView interface {
	Inside(visitorID string) bool
}

// ControlPublisher fans control commands out to other engine instances.
type ControlPublisher interface {
	PublishControl(cmd queue.ControlCommand) error
}

type VisitorHandler struct {
	store    IdentityStore
	matcher  IdentityReloader
	presence PresenceView
	peers    ControlPublisher
}

// NewVisitorHandler builds the handler. peers may be nil when running without a bus.
func NewVisitorHandler(store IdentityStore, matcher IdentityReloader, presence PresenceView, peers ControlPublisher) *VisitorHandler {
	return &VisitorHandler{store: store, matcher: matcher, presence: presence, peers: peers}
}

func (h *VisitorHandler) List(c *gin.Context) {
	ids, err := h.store.ListIdentities(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]dto.VisitorResponse, 0, len(ids))
	for _, id := range ids {
		resp = append(resp, dto.VisitorResponse{
			VisitorID: id.VisitorID,
			Name:      id.Name,
			Category:  id.Category,
			Inside:    h.presence != nil && h.presence.Inside(id.VisitorID),
			CreatedAt: id.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, dto.VisitorListResponse{Visitors: resp, Total: len(resp)})
}

// Delete removes the identity and reloads the gallery so it stops matching.
func (h *VisitorHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.DeleteIdentity(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	n, err := h.reload(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "visitor_id": id, "enrolled": n})
}

func (h *VisitorHandler) Reload(c *gin.Context) {
	n, err := h.reload(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "enrolled": n})
}

func (h *VisitorHandler) reload(ctx context.Context) (int, error) {
	n, err := h.matcher.LoadEmbeddings(ctx)
	if err != nil {
		return 0, err
	}
	if h.peers != nil {
		if err := h.peers.PublishControl(queue.ControlCommand{Action: queue.ActionReload}); err != nil {
			slog.Warn("announce identity reload", "error", err)
		}
	}
	return n, nil
}
