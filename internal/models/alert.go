package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventIdentityTracking    EventType = "identity_tracking"
	EventLoitering           EventType = "loitering"
	EventRestrictedZoneEntry EventType = "restricted_zone_entry"
	EventUnknownPerson       EventType = "unknown_person"
	EventReEntryWithoutExit  EventType = "re_entry_without_exit"
	EventGeofenceViolation   EventType = "geofence_violation"
)

// BehaviorAlertTypes are the event types produced by the behavior analyzer.
var BehaviorAlertTypes = []EventType{
	EventLoitering,
	EventRestrictedZoneEntry,
	EventUnknownPerson,
	EventReEntryWithoutExit,
}

// IsAlert reports whether the event type is an alert rather than a raw sighting.
func (t EventType) IsAlert() bool {
	switch t {
	case EventLoitering, EventRestrictedZoneEntry, EventUnknownPerson,
		EventReEntryWithoutExit, EventGeofenceViolation:
		return true
	}
	return false
}

// Alert is one emitted alert. Every variant embeds AlertHeader.
type Alert interface {
	Header() *AlertHeader
}

// AlertHeader holds the fields shared by all alert variants.
type AlertHeader struct {
	ID          uuid.UUID `json:"id"`
	EventType   EventType `json:"event_type"`
	VisitorID   string    `json:"visitor_id"`
	Name        string    `json:"name"`
	CameraID    string    `json:"camera_id"`
	Location    string    `json:"location"`
	Confidence  float64   `json:"confidence"`
	Timestamp   time.Time `json:"timestamp"`
	SnapshotKey string    `json:"snapshot_key,omitempty"`
}

func (h *AlertHeader) Header() *AlertHeader { return h }

// NewAlertHeader builds a header with a fresh id, UTC timestamp and confidence rounded to 4 places.
func NewAlertHeader(t EventType, visitorID, name, cameraID, location string, confidence float64, ts time.Time) AlertHeader {
	return AlertHeader{
		ID:         uuid.New(),
		EventType:  t,
		VisitorID:  visitorID,
		Name:       name,
		CameraID:   cameraID,
		Location:   location,
		Confidence: RoundConfidence(confidence),
		Timestamp:  ts.UTC(),
	}
}

type LoiteringAlert struct {
	AlertHeader
	DwellSeconds int `json:"dwell_seconds"`
}

type RestrictedZoneAlert struct {
	AlertHeader
}

type UnknownPersonAlert struct {
	AlertHeader
}

type ReEntryAlert struct {
	AlertHeader
}

type GeofenceAlert struct {
	AlertHeader
	DurationSeconds int `json:"duration_seconds"`
	PositionX       int `json:"position_x"`
	PositionY       int `json:"position_y"`
}

// DecodeAlert rebuilds the concrete alert variant from its stored JSON document.
func DecodeAlert(t EventType, data []byte) (Alert, error) {
	var a Alert
	switch t {
	case EventLoitering:
		a = &LoiteringAlert{}
	case EventRestrictedZoneEntry:
		a = &RestrictedZoneAlert{}
	case EventUnknownPerson:
		a = &UnknownPersonAlert{}
	case EventReEntryWithoutExit:
		a = &ReEntryAlert{}
	case EventGeofenceViolation:
		a = &GeofenceAlert{}
	default:
		return nil, fmt.Errorf("unknown alert type %q", t)
	}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("decode %s alert: %w", t, err)
	}
	a.Header().EventType = t
	return a, nil
}

// RoundConfidence rounds to 4 decimal places.
func RoundConfidence(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
