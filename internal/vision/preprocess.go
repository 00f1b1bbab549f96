package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/your-org/vms/internal/models"
)

// Channel normalisation constants: (pixel - mean) / std.
var (
	retinaMean, retinaStd   = [3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128}
	arcfaceMean, arcfaceStd = [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5}
)

// toCHW resizes img (nearest neighbour) and lays it out as normalised planar RGB.
func toCHW(img image.Image, w, h int, mean, std [3]float32) []float32 {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	plane := w * h
	out := make([]float32, 3*plane)

	for y := range h {
		sy := b.Min.Y + y*srcH/h
		for x := range w {
			r, g, bl, _ := img.At(b.Min.X+x*srcW/w, sy).RGBA()
			i := y*w + x
			out[i] = (float32(r>>8) - mean[0]) / std[0]
			out[plane+i] = (float32(g>>8) - mean[1]) / std[1]
			out[2*plane+i] = (float32(bl>>8) - mean[2]) / std[2]
		}
	}
	return out
}

// CropPadded copies box from img, grown by pad (fraction of each side) and clipped to
// the image. It returns nil when the clipped region is empty.
func CropPadded(img image.Image, box models.BoundingBox, pad float64) image.Image {
	padW := int(float64(box.W) * pad)
	padH := int(float64(box.H) * pad)
	r := image.Rect(box.X-padW, box.Y-padH, box.X+box.W+padW, box.Y+box.H+padH).
		Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
