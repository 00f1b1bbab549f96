package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type SourceKind string

const (
	SourceWebcam  SourceKind = "webcam"
	SourceFile    SourceKind = "file"
	SourceNetwork SourceKind = "network"
)

// Finite reports whether the source ends (and is looped) rather than being a live feed.
func (k SourceKind) Finite() bool {
	return k == SourceFile
}

type ZoneType string

const (
	ZoneGeneral    ZoneType = "general"
	ZoneRestricted ZoneType = "restricted"
)

// Restricted compares case-insensitively so legacy "Restricted" labels still match.
func (z ZoneType) Restricted() bool {
	return strings.EqualFold(string(z), string(ZoneRestricted))
}

// CameraConfig describes one video source. It is immutable while a worker runs;
// re-registration replaces it.
type CameraConfig struct {
	CameraID   string     `json:"camera_id" db:"camera_id"`
	SourceKind SourceKind `json:"source_kind" db:"source_kind"`
	Source     string     `json:"source" db:"source"` // webcam index, file path or stream URL
	Location   string     `json:"location" db:"location"`
	ZoneType   ZoneType   `json:"zone_type" db:"zone_type"`
	TargetFPS  float64    `json:"target_fps" db:"target_fps"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Validate checks required fields and fills zone and fps defaults.
func (c *CameraConfig) Validate(defaultFPS float64) error {
	if c.CameraID == "" {
		return fmt.Errorf("camera_id is required")
	}
	switch c.SourceKind {
	case SourceWebcam:
		if _, err := strconv.Atoi(c.Source); err != nil {
			return fmt.Errorf("webcam source must be a device index, got %q", c.Source)
		}
	case SourceFile, SourceNetwork:
		if c.Source == "" {
			return fmt.Errorf("source is required for %s cameras", c.SourceKind)
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.SourceKind)
	}
	c.ZoneType = ZoneType(strings.ToLower(string(c.ZoneType)))
	if c.ZoneType == "" {
		c.ZoneType = ZoneGeneral
	}
	if c.ZoneType != ZoneGeneral && c.ZoneType != ZoneRestricted {
		return fmt.Errorf("unknown zone type %q", c.ZoneType)
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = defaultFPS
	}
	return nil
}

// FrameInterval is the target time between two frames.
func (c CameraConfig) FrameInterval() time.Duration {
	fps := c.TargetFPS
	if fps < 1 {
		fps = 1
	}
	return time.Duration(float64(time.Second) / fps)
}

// CameraStatus is a registered camera plus its derived liveness.
type CameraStatus struct {
	CameraConfig
	Active bool `json:"active"`
}
