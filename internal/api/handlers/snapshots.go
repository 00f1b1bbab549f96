package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type SnapshotReader interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type SnapshotHandler struct {
	store SnapshotReader
}

func NewSnapshotHandler(store SnapshotReader) *SnapshotHandler {
	return &SnapshotHandler{store: store}
}

// Get streams a face snapshot. It is mounted at /v1/snapshots/*key, so the URL
// path mirrors the alert's snapshot_key.
func (h *SnapshotHandler) Get(c *gin.Context) {
	rest := c.Param("key")
	if len(rest) < 2 || strings.Contains(rest, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot key"})
		return
	}

	data, err := h.store.GetObject(c.Request.Context(), "snapshots"+rest)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
