// Package mock builds synthetic model outputs so decoders can be tested
// without ONNX Runtime or model files.
package mock

import (
	"math"
)

// ImageMap is a single-channel map with NCHW shape [1,1,H,W], as produced by
// saliency models.
type ImageMap struct {
	Data   []float32
	Width  int
	Height int
}

// Shape returns the NCHW shape of the map.
func (m ImageMap) Shape() []int64 {
	return []int64{1, 1, int64(m.Height), int64(m.Width)}
}

// NewUniformMap creates a uniform map of size WxH with the given value in [0,1].
func NewUniformMap(w, h int, value float32) ImageMap {
	if w <= 0 || h <= 0 {
		return ImageMap{}
	}
	data := make([]float32, w*h)
	for i := range data {
		data[i] = clamp01(value)
	}
	return ImageMap{Data: data, Width: w, Height: h}
}

// NewCenteredBlobMap creates a Gaussian-like blob centered in the map.
// sigma controls spread; higher values = wider blob.
func NewCenteredBlobMap(w, h int, peak float32, sigma float64) ImageMap {
	if w <= 0 || h <= 0 {
		return ImageMap{}
	}
	data := make([]float32, w*h)
	cx := float64(w-1) / 2.0
	cy := float64(h-1) / 2.0
	inv2s2 := 1.0 / (2.0 * sigma * sigma)
	for y := range h {
		for x := range w {
			dx := float64(x) - cx
			dy := float64(y) - cy
			data[y*w+x] = clamp01(float32(math.Exp(-(dx*dx+dy*dy)*inv2s2)) * peak)
		}
	}
	return ImageMap{Data: data, Width: w, Height: h}
}

// Strides are the SCRFD feature map strides in output order.
var Strides = []int{8, 16, 32}

// AnchorsPerCell is the number of SCRFD anchors per feature map cell.
const AnchorsPerCell = 2

// AnchorHit places one detection on a SCRFD anchor. Distances are in stride
// units, as the model emits them.
type AnchorHit struct {
	Stride int
	Col    int
	Row    int
	Anchor int
	Score  float32
	// Dist is left, top, right, bottom distance from the anchor center.
	Dist [4]float32
	// Kps are five (dx, dy) keypoint offsets from the anchor center.
	Kps [10]float32
}

// NewSCRFDOutputs returns the nine SCRFD output arrays for a square input in
// model order: scores for strides 8/16/32, then boxes, then keypoints.
func NewSCRFDOutputs(inputSize int, hits []AnchorHit) [][]float32 {
	out := make([][]float32, 9)
	for i, s := range Strides {
		cells := (inputSize / s) * (inputSize / s) * AnchorsPerCell
		out[i] = make([]float32, cells)
		out[i+3] = make([]float32, cells*4)
		out[i+6] = make([]float32, cells*10)
	}
	for _, h := range hits {
		level := -1
		for i, s := range Strides {
			if s == h.Stride {
				level = i
			}
		}
		if level < 0 {
			continue
		}
		cols := inputSize / h.Stride
		idx := (h.Row*cols+h.Col)*AnchorsPerCell + h.Anchor
		if idx < 0 || idx >= len(out[level]) {
			continue
		}
		out[level][idx] = h.Score
		copy(out[level+3][idx*4:], h.Dist[:])
		copy(out[level+6][idx*10:], h.Kps[:])
	}
	return out
}

// NewLandmarkOutput encodes points given in model-input pixel coordinates as
// the normalized [-1, 1] output of a 2D landmark regressor.
func NewLandmarkOutput(points [][2]float32, inputSize int) []float32 {
	half := float32(inputSize) / 2
	out := make([]float32, 0, len(points)*2)
	for _, p := range points {
		out = append(out, p[0]/half-1, p[1]/half-1)
	}
	return out
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
