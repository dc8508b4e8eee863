package onnx

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/photocheck/internal/mempool"
)

// Tensor represents a float32 tensor prepared for ONNX input.
// Data layout is row-major, NCHW for images.
type Tensor struct {
	Data  []float32
	Shape []int64 // e.g., [N, C, H, W]
}

// NewImageTensor builds a single-image tensor with shape [1, C, H, W].
// data must be length C*H*W in NCHW order.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	expected := c * h * w
	if len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// Release returns pooled tensor data. The tensor must not be used afterwards.
func (t *Tensor) Release() {
	mempool.PutFloat32(t.Data)
	t.Data = nil
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// VerifyImageTensor checks data length matches the provided NCHW shape.
func VerifyImageTensor(t Tensor) error {
	if err := ValidateNCHW(t.Shape); err != nil {
		return err
	}
	n, c, h, w := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	expected := int(n * c * h * w)
	if len(t.Data) != expected {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), expected, t.Shape)
	}
	return nil
}

// TensorStats returns min, max and mean of data for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}

// Normalization maps 8-bit channel values to model input: (v*Scale - Mean) / Std.
type Normalization struct {
	Scale float32
	Mean  [3]float32
	Std   [3]float32
	// BGR emits channels in blue, green, red order.
	BGR bool
}

var (
	// InsightFace is the (v - 127.5) / 128 scheme used by SCRFD and 2d106det.
	InsightFace = Normalization{Scale: 1, Mean: [3]float32{127.5, 127.5, 127.5}, Std: [3]float32{128, 128, 128}}
	// ImageNet is the scheme used by U2-Net style saliency models.
	ImageNet = Normalization{
		Scale: 1.0 / 255,
		Mean:  [3]float32{0.485, 0.456, 0.406},
		Std:   [3]float32{0.229, 0.224, 0.225},
	}
)

// ImageToTensor converts img to a [1, 3, H, W] tensor. Pixels are read at the
// image's own size; callers resize beforehand. The data comes from a buffer
// pool: call Release once the tensor has been run.
func ImageToTensor(img *image.NRGBA, norm Normalization) (Tensor, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return Tensor{}, errors.New("empty image")
	}
	plane := w * h
	data := mempool.GetFloat32(3 * plane)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				src := c
				if norm.BGR {
					src = 2 - c
				}
				v := float32(row[x*4+src])*norm.Scale - norm.Mean[src]
				data[c*plane+y*w+x] = v / norm.Std[src]
			}
		}
	}
	return NewImageTensor(data, 3, h, w)
}
