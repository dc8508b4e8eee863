package detector

import (
	"testing"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// poseLandmarks places both eyes, the nose tip and the chin; all other
// points sit at the origin.
func poseLandmarks(idx icao.LandmarkIndices, left, right, nose, chin utils.Point) []utils.Point {
	pts := make([]utils.Point, LandmarkCount)
	for _, i := range idx.LeftEye {
		pts[i] = left
	}
	for _, i := range idx.RightEye {
		pts[i] = right
	}
	pts[NoseTip] = nose
	pts[idx.Chin] = chin
	return pts
}

func TestEstimatePose(t *testing.T) {
	idx := icao.DefaultConfig().Landmarks

	tests := []struct {
		name              string
		left, right, nose utils.Point
		chin              utils.Point
		want              face.Pose
	}{
		{
			name: "frontal",
			left: utils.Point{X: 100, Y: 100}, right: utils.Point{X: 200, Y: 100},
			nose: utils.Point{X: 150, Y: 140}, chin: utils.Point{X: 150, Y: 190},
			want: face.Pose{},
		},
		{
			name: "eye order does not matter",
			left: utils.Point{X: 200, Y: 100}, right: utils.Point{X: 100, Y: 100},
			nose: utils.Point{X: 150, Y: 140}, chin: utils.Point{X: 150, Y: 190},
			want: face.Pose{},
		},
		{
			name: "rolled",
			left: utils.Point{X: 100, Y: 100}, right: utils.Point{X: 200, Y: 200},
			nose: utils.Point{X: 150, Y: 190}, chin: utils.Point{X: 150, Y: 240},
			want: face.Pose{Roll: 45, Yaw: 0},
		},
		{
			name: "turned",
			left: utils.Point{X: 100, Y: 100}, right: utils.Point{X: 200, Y: 100},
			nose: utils.Point{X: 175, Y: 140}, chin: utils.Point{X: 150, Y: 190},
			want: face.Pose{Yaw: 30},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pose, err := EstimatePose(poseLandmarks(idx, tt.left, tt.right, tt.nose, tt.chin), idx)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.Roll, pose.Roll, 1e-6)
			assert.InDelta(t, tt.want.Yaw, pose.Yaw, 1e-6)
			if tt.name != "rolled" {
				assert.InDelta(t, tt.want.Pitch, pose.Pitch, 1e-6)
			}
		})
	}
}

func TestEstimatePose_Pitch(t *testing.T) {
	idx := icao.DefaultConfig().Landmarks
	left, right := utils.Point{X: 100, Y: 100}, utils.Point{X: 200, Y: 100}

	down, err := EstimatePose(poseLandmarks(idx, left, right, utils.Point{X: 150, Y: 160}, utils.Point{X: 150, Y: 190}), idx)
	require.NoError(t, err)
	up, err := EstimatePose(poseLandmarks(idx, left, right, utils.Point{X: 150, Y: 120}, utils.Point{X: 150, Y: 190}), idx)
	require.NoError(t, err)
	assert.Positive(t, down.Pitch)
	assert.Negative(t, up.Pitch)
	assert.LessOrEqual(t, down.Pitch, 90.0)
}

func TestEstimatePose_Errors(t *testing.T) {
	idx := icao.DefaultConfig().Landmarks
	_, err := EstimatePose(make([]utils.Point, 10), idx)
	assert.ErrorIs(t, err, face.ErrLandmarkIndex)

	_, err = EstimatePose(make([]utils.Point, LandmarkCount), idx)
	assert.Error(t, err, "coincident eyes")
}
