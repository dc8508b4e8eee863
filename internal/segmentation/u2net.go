package segmentation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/onnx"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/disintegration/imaging"
)

// ErrLowCoverage is returned when the predicted subject is too small to be a
// portrait.
var ErrLowCoverage = errors.New("subject mask coverage too low")

// runner is the part of an ONNX session the segmenter needs.
type runner interface {
	Run(t onnx.Tensor) ([]onnx.Output, error)
	Close() error
}

// U2Net predicts a saliency map with a U2-Net model and thresholds it into a
// subject mask.
type U2Net struct {
	cfg  Config
	mu   sync.RWMutex
	sess runner
}

// NewU2Net loads the configured model.
func NewU2Net(cfg Config) (*U2Net, error) {
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("invalid segmentation input size %d", cfg.InputSize)
	}
	sess, err := onnx.NewSession(cfg.ModelPath, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to load segmentation model: %w", err)
	}
	slog.Debug("Segmentation model loaded", "model", cfg.ModelPath, "input_size", cfg.InputSize)
	return newU2NetWithRunner(cfg, sess), nil
}

func newU2NetWithRunner(cfg Config, r runner) *U2Net {
	return &U2Net{cfg: cfg, sess: r}
}

// Close releases the model session.
func (u *U2Net) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.sess == nil {
		return nil
	}
	err := u.sess.Close()
	u.sess = nil
	return err
}

// Segment returns a mask aligned with img, true on subject pixels.
func (u *U2Net) Segment(ctx context.Context, img image.Image) (*utils.Mask, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.sess == nil {
		return nil, onnx.ErrSessionClosed
	}

	start := time.Now()
	b := img.Bounds()
	size := u.cfg.InputSize
	resized := imaging.Resize(img, size, size, imaging.Lanczos)
	tensor, err := onnx.ImageToTensor(resized, onnx.ImageNet)
	if err != nil {
		return nil, err
	}
	outs, err := u.sess.Run(tensor)
	tensor.Release()
	if err != nil {
		return nil, fmt.Errorf("segmentation inference failed: %w", err)
	}
	if len(outs) == 0 {
		return nil, errors.New("segmentation model returned no outputs")
	}

	mw, mh, err := mapSize(outs[0], size)
	if err != nil {
		return nil, err
	}
	saliency := normalizeMinMax(outs[0].Data[:mw*mh])
	mask := thresholdMap(saliency, mw, mh, float32(u.cfg.MaskThreshold)).ResizeNearest(b.Dx(), b.Dy())

	if u.cfg.DebugDir != "" {
		if err := dumpMask(u.cfg.DebugDir, "u2net", mask); err != nil {
			slog.Warn("Failed to write debug mask", "error", err)
		}
	}

	coverage := float64(mask.Count()) / float64(max(1, b.Dx()*b.Dy()))
	slog.Debug("Segmentation finished",
		"coverage", coverage,
		"duration_ms", time.Since(start).Milliseconds())
	if coverage < u.cfg.MinMaskCoverage {
		return nil, fmt.Errorf("%w: %.1f%%", ErrLowCoverage, coverage*100)
	}
	return mask, nil
}

// mapSize reads the spatial size of a [1,1,H,W] output, falling back to a
// square map of the input size when the shape is not reported.
func mapSize(o onnx.Output, inputSize int) (int, int, error) {
	w, h := inputSize, inputSize
	if n := len(o.Shape); n >= 2 {
		h, w = int(o.Shape[n-2]), int(o.Shape[n-1])
	}
	if w <= 0 || h <= 0 || len(o.Data) < w*h {
		return 0, 0, fmt.Errorf("unexpected segmentation output: %d values for %dx%d", len(o.Data), w, h)
	}
	return w, h, nil
}

// normalizeMinMax rescales values to [0,1]. A constant map becomes all zeros.
func normalizeMinMax(data []float32) []float32 {
	out := make([]float32, len(data))
	if len(data) == 0 {
		return out
	}
	lo, hi := data[0], data[0]
	for _, v := range data {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span <= 0 {
		return out
	}
	for i, v := range data {
		out[i] = (v - lo) / span
	}
	return out
}

func thresholdMap(data []float32, w, h int, threshold float32) *utils.Mask {
	m := utils.NewMask(w, h)
	for i, v := range data[:w*h] {
		m.Bits[i] = v >= threshold
	}
	return m
}
