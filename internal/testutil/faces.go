package testutil

import (
	"context"
	"image"
	"sync/atomic"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// LandmarkCount is the size of the synthetic landmark array.
const LandmarkCount = 106

// FaceSpec describes a synthetic frontal face in image pixels.
type FaceSpec struct {
	CenterX   float64
	EyeY      float64
	ChinY     float64
	HalfWidth float64
	// EyeOffset is the horizontal distance from CenterX to each eye center.
	EyeOffset float64
	EyeWidth  float64
	// EyeOpen is the vertical lid opening; EAR equals EyeOpen / EyeWidth.
	EyeOpen float64
	Pose    *face.Pose
}

// DefaultFaceSpec returns a face centred at cx with its eye line at eyeY.
func DefaultFaceSpec(cx, eyeY, chinY float64) FaceSpec {
	d := chinY - eyeY
	return FaceSpec{
		CenterX:   cx,
		EyeY:      eyeY,
		ChinY:     chinY,
		HalfWidth: d * 0.9,
		EyeOffset: d * 0.35,
		EyeWidth:  d * 0.25,
		EyeOpen:   d * 0.1,
		Pose:      &face.Pose{},
	}
}

// TopY is the top of the synthetic face box: one eye-to-chin span above the eyes.
func (s FaceSpec) TopY() float64 { return s.EyeY - (s.ChinY - s.EyeY) }

// EyeRing returns the six EAR-ordered points of an eye centred at (ex, ey):
// left corner, upper pair, right corner, lower pair.
func (s FaceSpec) EyeRing(ex, ey float64) []utils.Point {
	w, o := s.EyeWidth, s.EyeOpen
	return []utils.Point{
		{X: ex - w/2, Y: ey},
		{X: ex - w/6, Y: ey - o/2},
		{X: ex + w/6, Y: ey - o/2},
		{X: ex + w/2, Y: ey},
		{X: ex + w/6, Y: ey + o/2},
		{X: ex - w/6, Y: ey + o/2},
	}
}

// NewFace builds a DetectedFace whose landmark array satisfies the indices in cfg.
func NewFace(cfg icao.Config, s FaceSpec) face.DetectedFace {
	idx := cfg.Landmarks
	filler := utils.Point{X: s.CenterX, Y: (s.EyeY + s.ChinY) / 2}
	pts := make([]utils.Point, max(LandmarkCount, idx.Max()+1))
	for i := range pts {
		pts[i] = filler
	}
	pts[idx.Chin] = utils.Point{X: s.CenterX, Y: s.ChinY}
	for i, p := range s.EyeRing(s.CenterX-s.EyeOffset, s.EyeY) {
		pts[idx.LeftEye[i]] = p
	}
	for i, p := range s.EyeRing(s.CenterX+s.EyeOffset, s.EyeY) {
		pts[idx.RightEye[i]] = p
	}

	f := face.DetectedFace{
		BBox:      utils.NewBox(s.CenterX-s.HalfWidth, s.TopY(), s.CenterX+s.HalfWidth, s.ChinY),
		Landmarks: pts,
		Score:     0.95,
	}
	if s.Pose != nil {
		p := *s.Pose
		f.Pose = &p
	}
	return f
}

// FakeDetector returns a fixed set of faces and counts calls.
type FakeDetector struct {
	Faces  []face.DetectedFace
	Err    error
	Panic  any
	calls  atomic.Int64
	closed atomic.Bool
}

// Detect implements face.Detector.
func (d *FakeDetector) Detect(_ context.Context, _ image.Image) ([]face.DetectedFace, error) {
	d.calls.Add(1)
	if d.Panic != nil {
		panic(d.Panic)
	}
	if d.Err != nil {
		return nil, d.Err
	}
	out := make([]face.DetectedFace, len(d.Faces))
	copy(out, d.Faces)
	return out, nil
}

// Close implements face.Detector.
func (d *FakeDetector) Close() error {
	d.closed.Store(true)
	return nil
}

// Calls returns how many times Detect ran.
func (d *FakeDetector) Calls() int64 { return d.calls.Load() }

// Closed reports whether Close was called.
func (d *FakeDetector) Closed() bool { return d.closed.Load() }

// FakeSegmenter returns a mask produced by MaskFn, or Err.
type FakeSegmenter struct {
	MaskFn func(img image.Image) *utils.Mask
	Err    error
	calls  atomic.Int64
}

// Segment implements background.Segmenter.
func (s *FakeSegmenter) Segment(_ context.Context, img image.Image) (*utils.Mask, error) {
	s.calls.Add(1)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.MaskFn(img), nil
}

// Calls returns how many times Segment ran.
func (s *FakeSegmenter) Calls() int64 { return s.calls.Load() }
