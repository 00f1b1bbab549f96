package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/vms/internal/models"
)

func TestCropPaddedClipsToImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	crop := CropPadded(img, models.BoundingBox{X: 0, Y: 0, W: 50, H: 50}, 0.1)
	require.NotNil(t, crop)
	assert.Equal(t, 55, crop.Bounds().Dx())
	assert.Equal(t, 55, crop.Bounds().Dy())

	assert.Nil(t, CropPadded(img, models.BoundingBox{X: 200, Y: 200, W: 10, H: 10}, 0.1))
}

func TestEmbedRegionIsExactBox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	crop := embedRegion(img, models.BoundingBox{X: 20, Y: 30, W: 40, H: 24})
	require.NotNil(t, crop)
	assert.Equal(t, 40, crop.Bounds().Dx())
	assert.Equal(t, 24, crop.Bounds().Dy())
}

func TestToCHWNormalizesPlanes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := range 2 {
		for x := range 2 {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}

	out := toCHW(img, 2, 2, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})
	require.Len(t, out, 12)
	assert.Equal(t, float32(255), out[0])
	assert.Equal(t, float32(0), out[4])
	assert.Equal(t, float32(128), out[8])
}

func TestSuppressOverlapsKeepsHighestScore(t *testing.T) {
	dets := []Detection{
		{BBox: [4]float32{0, 0, 10, 10}, Confidence: 0.8},
		{BBox: [4]float32{1, 1, 11, 11}, Confidence: 0.9},
		{BBox: [4]float32{50, 50, 60, 60}, Confidence: 0.7},
	}

	kept := suppressOverlaps(dets, 0.4)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Confidence)
	assert.Equal(t, float32(0.7), kept[1].Confidence)
}

func TestNormalizeAndDistance(t *testing.T) {
	v := []float32{3, 4}
	require.True(t, Normalize(v))
	assert.InDelta(t, 0, Distance(v, []float32{0.6, 0.8}), 1e-6)
	assert.InDelta(t, 1.4142, Distance([]float32{1, 0}, []float32{0, 1}), 1e-4)
	assert.False(t, Normalize([]float32{0, 0}))
}
