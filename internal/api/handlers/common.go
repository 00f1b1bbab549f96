// Package handlers implements the HTTP control and query endpoints.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vms/internal/camera"
	"github.com/your-org/vms/internal/storage"
	"github.com/your-org/vms/internal/tracking"
)

// limitParam reads ?limit= clamped to the tracking bounds.
func limitParam(c *gin.Context) int {
	n, _ := strconv.Atoi(c.Query("limit"))
	return tracking.ClampLimit(n)
}

// respondError maps domain errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, camera.ErrInvalidConfig):
		status = http.StatusBadRequest
	case errors.Is(err, camera.ErrUnknownCamera), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, camera.ErrNotRunning):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
