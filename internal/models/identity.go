package models

import (
	"image"
	"time"
)

// UnknownVisitorID is the sentinel visitor id for faces that match no enrolled identity.
const UnknownVisitorID = "unknown"

type Category string

const (
	CategoryVisitor Category = "visitor"
	CategoryStaff   Category = "staff"
	CategoryVIP     Category = "vip"
	CategoryUnknown Category = "unknown"
)

// EnrolledIdentity is one known person as stored in the embedding store.
type EnrolledIdentity struct {
	VisitorID string    `json:"visitor_id" db:"visitor_id"`
	Name      string    `json:"name" db:"name"`
	Category  Category  `json:"category" db:"category"`
	Embedding []float32 `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BoundingBox is a face region in frame pixel coordinates.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Center returns the box midpoint, used as the visitor position for geofencing.
func (b BoundingBox) Center() image.Point {
	return image.Pt(b.X+b.W/2, b.Y+b.H/2)
}

func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// FaceMatch is the identification result for one detected face in one frame.
type FaceMatch struct {
	VisitorID  string      `json:"visitor_id"`
	Name       string      `json:"name"`
	Category   Category    `json:"category"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"bounding_box"`
	Embedding  []float32   `json:"-"`
}

// Known reports whether the match resolved to an enrolled identity.
func (m FaceMatch) Known() bool {
	return m.VisitorID != UnknownVisitorID
}
