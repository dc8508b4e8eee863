package detector

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

const (
	// NoseTip is the nose tip index in the 106-point layout.
	NoseTip = 86
	// NeutralPitchRatio is the eye-to-nose over nose-to-chin distance of a
	// level head.
	NeutralPitchRatio = 0.8
)

// EstimatePose derives an approximate head pose from 2D landmarks. Roll is
// the angle of the line between eye centres, yaw follows the horizontal nose
// offset relative to the eye span and pitch follows the vertical
// eye-nose-chin proportions. Angles are in degrees.
func EstimatePose(pts []utils.Point, idx icao.LandmarkIndices) (*face.Pose, error) {
	f := face.DetectedFace{Landmarks: pts}
	left, err := f.LeftEye(idx)
	if err != nil {
		return nil, err
	}
	right, err := f.RightEye(idx)
	if err != nil {
		return nil, err
	}
	chin, err := f.Chin(idx)
	if err != nil {
		return nil, err
	}
	nose, err := f.Landmark(NoseTip)
	if err != nil {
		return nil, err
	}

	a, b := utils.Centroid(left), utils.Centroid(right)
	if a.X > b.X {
		a, b = b, a
	}
	span := utils.Distance(a, b)
	if span == 0 {
		return nil, fmt.Errorf("degenerate eye positions")
	}
	mid := utils.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}

	roll := degrees(math.Atan2(b.Y-a.Y, b.X-a.X))
	yaw := degrees(math.Asin(clampF(2*(nose.X-mid.X)/span, -1, 1)))

	pitch := 0.0
	if lower := chin.Y - nose.Y; lower > 0 {
		ratio := (nose.Y - mid.Y) / lower
		pitch = clampF((ratio/NeutralPitchRatio-1)*45, -90, 90)
	}
	return &face.Pose{Yaw: yaw, Pitch: pitch, Roll: roll}, nil
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
