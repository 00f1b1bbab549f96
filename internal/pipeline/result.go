// Package pipeline runs the per-frame match, track, analyze and geofence stages and
// fans their output out to delivery.
package pipeline

import (
	"time"

	"github.com/your-org/vms/internal/models"
)

// Result is everything one frame produced. Workers publish it to an Outlet.
type Result struct {
	CameraID  string
	FrameSeq  uint64
	Timestamp time.Time
	Matches   []models.FaceMatch
	Sightings []models.TrackingEvent
	Alerts    []models.Alert
}

// Empty reports whether the frame produced nothing worth publishing.
func (r Result) Empty() bool {
	return len(r.Sightings) == 0 && len(r.Alerts) == 0
}
