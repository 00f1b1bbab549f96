package geofence

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolygonContains(t *testing.T) {
	square := Polygon{{0, 0}, {100, 0}, {100, 100}, {0, 100}}
	concave := Polygon{{0, 0}, {100, 0}, {100, 100}, {50, 50}, {0, 100}}

	tests := []struct {
		name string
		poly Polygon
		pt   image.Point
		want bool
	}{
		{"interior", square, image.Pt(50, 50), true},
		{"outside right", square, image.Pt(150, 50), false},
		{"outside above", square, image.Pt(50, -1), false},
		{"on edge", square, image.Pt(100, 40), true},
		{"on vertex", square, image.Pt(0, 0), true},
		{"concave notch", concave, image.Pt(50, 90), false},
		{"concave body", concave, image.Pt(20, 40), true},
		{"concave inner edge", concave, image.Pt(75, 75), true},
		{"two points is no boundary", Polygon{{0, 0}, {1, 1}}, image.Pt(500, 500), true},
		{"empty is no boundary", nil, image.Pt(-5, -5), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.poly.Contains(tt.pt))
		})
	}
}
