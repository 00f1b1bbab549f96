package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TrackingEvent is one raw identity sighting. Append-only.
type TrackingEvent struct {
	ID         uuid.UUID `json:"id"`
	VisitorID  string    `json:"visitor_id"`
	Name       string    `json:"name"`
	CameraID   string    `json:"camera_id"`
	Location   string    `json:"location"`
	ZoneType   ZoneType  `json:"zone_type"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventRecord is a stored event row of any type, as returned by read queries.
type EventRecord struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	EventType  EventType       `json:"event_type" db:"event_type"`
	VisitorID  string          `json:"visitor_id" db:"visitor_id"`
	Name       string          `json:"name" db:"name"`
	CameraID   string          `json:"camera_id" db:"camera_id"`
	Location   string          `json:"location" db:"location"`
	ZoneType   string          `json:"zone_type,omitempty" db:"zone_type"`
	Confidence float64         `json:"confidence" db:"confidence"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
	Details    json.RawMessage `json:"details,omitempty" db:"details"`
}

// PresenceKey scopes dwell state to one visitor on one camera.
type PresenceKey struct {
	VisitorID string
	CameraID  string
}

// AlertKey scopes duplicate suppression to one alert type for one visitor on one camera.
type AlertKey struct {
	VisitorID string
	CameraID  string
	EventType EventType
}

// EventFilter selects stored events. Zero fields match everything.
type EventFilter struct {
	VisitorID string
	CameraID  string
	EventType EventType
	Limit     int
}
