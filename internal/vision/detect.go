package vision

import (
	"fmt"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one RetinaFace hit in original image coordinates.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
}

// Width and Height of the detection box in pixels.
func (d Detection) Width() float32  { return d.BBox[2] - d.BBox[0] }
func (d Detection) Height() float32 { return d.BBox[3] - d.BBox[1] }

// Detector runs RetinaFace (det_10g) face detection using ONNX Runtime.
// A Detector owns its tensors and is not safe for concurrent use.
type Detector struct {
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	scores   []*ort.Tensor[float32]
	boxes    []*ort.Tensor[float32]
	extras   []*ort.Tensor[float32]
	minScore float32
	inputW   int
	inputH   int
}

const (
	detInputSize     = 640
	anchorsPerCell   = 2
	nmsIoUThreshold  = 0.4
	landmarkChannels = 10
)

// det_10g output heads per stride: score, bbox, landmark tensor names.
var detHeads = []struct {
	stride                 int
	score, bbox, landmarks string
}{
	{8, "448", "451", "454"},
	{16, "471", "474", "477"},
	{32, "494", "497", "500"},
}

// NewDetector loads the RetinaFace ONNX model. opts may be nil.
func NewDetector(modelPath string, minScore float32, opts *ort.SessionOptions) (*Detector, error) {
	d := &Detector{minScore: minScore, inputW: detInputSize, inputH: detInputSize}

	var err error
	d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, detInputSize, detInputSize))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	var names []string
	var values []ort.Value
	alloc := func(name string, rows, cols int) (*ort.Tensor[float32], error) {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(rows), int64(cols)))
		if err != nil {
			return nil, fmt.Errorf("create output tensor %s: %w", name, err)
		}
		names = append(names, name)
		values = append(values, t)
		return t, nil
	}

	for _, h := range detHeads {
		cells := (detInputSize / h.stride) * (detInputSize / h.stride) * anchorsPerCell
		s, err := alloc(h.score, cells, 1)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.scores = append(d.scores, s)
	}
	for _, h := range detHeads {
		cells := (detInputSize / h.stride) * (detInputSize / h.stride) * anchorsPerCell
		b, err := alloc(h.bbox, cells, 4)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.boxes = append(d.boxes, b)
	}
	// Landmark heads are bound because the graph requires every output, but are never read.
	for _, h := range detHeads {
		cells := (detInputSize / h.stride) * (detInputSize / h.stride) * anchorsPerCell
		l, err := alloc(h.landmarks, cells, landmarkChannels)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.extras = append(d.extras, l)
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{d.input}, values,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect runs detection on CHW input of InputSize dimensions.
// origW/origH scale the boxes back to the source frame.
func (d *Detector) Detect(chw []float32, origW, origH int) ([]Detection, error) {
	copy(d.input.GetData(), chw)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	var found []Detection
	for i, h := range detHeads {
		found = d.decodeHead(found, h.stride, d.scores[i].GetData(), d.boxes[i].GetData(), scaleW, scaleH, origW, origH)
	}
	return suppressOverlaps(found, nmsIoUThreshold), nil
}

// decodeHead turns anchor distances at one stride into pixel boxes.
func (d *Detector) decodeHead(out []Detection, stride int, scores, boxes []float32, scaleW, scaleH float32, origW, origH int) []Detection {
	cols := d.inputW / stride
	st := float32(stride)

	for idx, score := range scores {
		if score < d.minScore {
			continue
		}
		cell := idx / anchorsPerCell
		ax := float32(cell%cols) * st
		ay := float32(cell/cols) * st

		out = append(out, Detection{
			BBox: [4]float32{
				clampF((ax-boxes[idx*4]*st)*scaleW, 0, float32(origW)),
				clampF((ay-boxes[idx*4+1]*st)*scaleH, 0, float32(origH)),
				clampF((ax+boxes[idx*4+2]*st)*scaleW, 0, float32(origW)),
				clampF((ay+boxes[idx*4+3]*st)*scaleH, 0, float32(origH)),
			},
			Confidence: score,
		})
	}
	return out
}

// InputSize returns the model's expected input dimensions.
func (d *Detector) InputSize() (int, int) {
	return d.inputW, d.inputH
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.input != nil {
		d.input.Destroy()
	}
	for _, group := range [][]*ort.Tensor[float32]{d.scores, d.boxes, d.extras} {
		for _, t := range group {
			t.Destroy()
		}
	}
}

// suppressOverlaps is greedy non-maximum suppression, highest score first.
func suppressOverlaps(dets []Detection, maxIoU float32) []Detection {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	kept := dets[:0:0]
	for _, cand := range dets {
		overlaps := false
		for _, k := range kept {
			if iou(k.BBox, cand.BBox) > maxIoU {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	iw := max(0, min(a[2], b[2])-max(a[0], b[0]))
	ih := max(0, min(a[3], b[3])-max(a[1], b[1]))
	inter := iw * ih

	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
