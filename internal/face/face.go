// Package face defines the detector-independent face record shared by the
// geometry, background and validation stages.
package face

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// ErrLandmarkIndex is returned when a configured landmark index is outside
// the detected landmark array.
var ErrLandmarkIndex = errors.New("landmark index out of range")

// Pose holds head rotation in degrees.
type Pose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// DetectedFace is one face reported by a detector backend.
type DetectedFace struct {
	BBox      utils.Box     `json:"bbox"`
	Landmarks []utils.Point `json:"landmarks,omitempty"`
	Pose      *Pose         `json:"pose,omitempty"`
	Score     float64       `json:"score"`
}

// Detector finds faces in an image. Implementations must be safe for
// concurrent use once constructed.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]DetectedFace, error)
	Close() error
}

// HasLandmarks reports whether every index named in idx is addressable.
func (f *DetectedFace) HasLandmarks(idx icao.LandmarkIndices) bool {
	return f != nil && len(f.Landmarks) > idx.Max()
}

// Landmark returns the landmark at index i.
func (f *DetectedFace) Landmark(i int) (utils.Point, error) {
	if i < 0 || i >= len(f.Landmarks) {
		return utils.Point{}, fmt.Errorf("%w: %d of %d", ErrLandmarkIndex, i, len(f.Landmarks))
	}
	return f.Landmarks[i], nil
}

func (f *DetectedFace) points(indices []int) ([]utils.Point, error) {
	pts := make([]utils.Point, 0, len(indices))
	for _, i := range indices {
		p, err := f.Landmark(i)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, nil
}

// Chin returns the chin landmark.
func (f *DetectedFace) Chin(idx icao.LandmarkIndices) (utils.Point, error) {
	return f.Landmark(idx.Chin)
}

// LeftEye returns the six-point left eye ring in configured order.
func (f *DetectedFace) LeftEye(idx icao.LandmarkIndices) ([]utils.Point, error) {
	return f.points(idx.LeftEye)
}

// RightEye returns the six-point right eye ring in configured order.
func (f *DetectedFace) RightEye(idx icao.LandmarkIndices) ([]utils.Point, error) {
	return f.points(idx.RightEye)
}

// EyePoints returns both eye rings, left first.
func (f *DetectedFace) EyePoints(idx icao.LandmarkIndices) ([]utils.Point, error) {
	left, err := f.LeftEye(idx)
	if err != nil {
		return nil, err
	}
	right, err := f.RightEye(idx)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

// Pupils returns the left and right pupil approximations.
func (f *DetectedFace) Pupils(idx icao.LandmarkIndices) ([2]utils.Point, error) {
	l, err := f.Landmark(idx.LeftPupil)
	if err != nil {
		return [2]utils.Point{}, err
	}
	r, err := f.Landmark(idx.RightPupil)
	if err != nil {
		return [2]utils.Point{}, err
	}
	return [2]utils.Point{l, r}, nil
}

// Rect returns the bounding box truncated to integer pixels.
func (f *DetectedFace) Rect() image.Rectangle {
	return f.BBox.IntRect()
}

// Filter drops faces scoring below minScore. Faces without a score (0) are kept.
func Filter(faces []DetectedFace, minScore float64) []DetectedFace {
	out := faces[:0:0]
	for _, f := range faces {
		if f.Score == 0 || f.Score >= minScore {
			out = append(out, f)
		}
	}
	return out
}
