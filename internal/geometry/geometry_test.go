package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/testutil"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Landmarks(t *testing.T) {
	cfg := icao.DefaultConfig()
	f := testutil.NewFace(cfg, testutil.DefaultFaceSpec(600, 700, 900))

	g, err := Extract([]face.DetectedFace{f}, cfg)
	require.NoError(t, err)
	assert.Equal(t, SourceLandmarks, g.Source)
	assert.InDelta(t, 900, g.ChinY, 1e-9)
	assert.InDelta(t, 300, g.CrownY, 1e-9)
	assert.InDelta(t, 600, g.HeadHeight(), 1e-9)
}

func TestExtract_Fallbacks(t *testing.T) {
	cfg := icao.DefaultConfig()

	t.Run("no landmarks uses bbox", func(t *testing.T) {
		f := face.DetectedFace{BBox: utils.NewBox(10, 20, 110, 170)}
		g, err := Extract([]face.DetectedFace{f}, cfg)
		require.NoError(t, err)
		assert.Equal(t, SourceBBox, g.Source)
		assert.Equal(t, 20.0, g.CrownY)
		assert.Equal(t, 170.0, g.ChinY)
	})

	t.Run("chin above eyes uses bbox", func(t *testing.T) {
		spec := testutil.DefaultFaceSpec(600, 700, 900)
		f := testutil.NewFace(cfg, spec)
		f.Landmarks[cfg.Landmarks.Chin] = utils.Point{X: 600, Y: 650}
		g, err := Extract([]face.DetectedFace{f}, cfg)
		require.NoError(t, err)
		assert.Equal(t, SourceBBox, g.Source)
		assert.Equal(t, f.BBox.MinY, g.CrownY)
	})

	t.Run("inverted bbox is invalid", func(t *testing.T) {
		f := face.DetectedFace{BBox: utils.Box{MinX: 0, MinY: 200, MaxX: 100, MaxY: 100}}
		_, err := Extract([]face.DetectedFace{f}, cfg)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidGeometry))
	})

	t.Run("empty face is missing geometry", func(t *testing.T) {
		_, err := Extract([]face.DetectedFace{{}}, cfg)
		assert.True(t, errors.Is(err, ErrMissingGeometry))
	})
}

func TestExtract_FaceCount(t *testing.T) {
	cfg := icao.DefaultConfig()

	_, err := Extract(nil, cfg)
	assert.True(t, errors.Is(err, ErrNoFace))

	f := testutil.NewFace(cfg, testutil.DefaultFaceSpec(600, 700, 900))
	_, err = Extract([]face.DetectedFace{f, f}, cfg)
	assert.True(t, errors.Is(err, ErrMultipleFaces))

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "extract", gerr.Op)
}

func TestCalculateCrop(t *testing.T) {
	cfg := icao.DefaultConfig()
	f := testutil.NewFace(cfg, testutil.DefaultFaceSpec(600, 700, 900))
	g, err := Extract([]face.DetectedFace{f}, cfg)
	require.NoError(t, err)

	crop, err := CalculateCrop(1200, 1600, f, g, cfg)
	require.NoError(t, err)

	cropH := 600 / 0.66
	cropW := cropH * 35 / 45
	assert.Equal(t, int(600-cropW/2), crop.X1)
	assert.Equal(t, int(300-cropH*0.12), crop.Y1)
	assert.Equal(t, int(600-cropW/2+cropW), crop.X2)
	assert.Equal(t, int(300-cropH*0.12+cropH), crop.Y2)
	assert.False(t, crop.Clipped())
}

func TestCalculateCrop_ClipsAndDegenerates(t *testing.T) {
	cfg := icao.DefaultConfig()
	f := testutil.NewFace(cfg, testutil.DefaultFaceSpec(100, 150, 250))
	g, err := Extract([]face.DetectedFace{f}, cfg)
	require.NoError(t, err)

	crop, err := CalculateCrop(400, 400, f, g, cfg)
	require.NoError(t, err)
	assert.True(t, crop.Clipped())
	assert.Equal(t, 0, crop.X1)
	assert.Equal(t, 0, crop.Y1)

	far := face.DetectedFace{BBox: utils.NewBox(5000, 5000, 5100, 5100)}
	_, err = CalculateCrop(400, 400, far, FaceGeometry{CrownY: 5000, ChinY: 5100}, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateCrop))

	_, err = CalculateCrop(0, 400, f, g, cfg)
	assert.True(t, errors.Is(err, ErrDegenerateCrop))
}

func TestCalculateCrop_FallsBackToBBoxHeight(t *testing.T) {
	cfg := icao.DefaultConfig()
	f := face.DetectedFace{BBox: utils.NewBox(400, 400, 600, 664)}
	crop, err := CalculateCrop(2000, 2000, f, FaceGeometry{CrownY: 500, ChinY: 500}, cfg)
	require.NoError(t, err)
	assert.InDelta(t, 400, crop.Height(), 1)
}

func TestTransform(t *testing.T) {
	crop := CropBox{X1: 100, Y1: 50, X2: 300, Y2: 350}
	tr, err := NewTransform(crop, 400, 600)
	require.NoError(t, err)
	assert.Equal(t, utils.Point{X: 0, Y: 0}, tr.Apply(utils.Point{X: 100, Y: 50}))
	assert.Equal(t, utils.Point{X: 400, Y: 600}, tr.Apply(utils.Point{X: 300, Y: 350}))

	_, err = NewTransform(CropBox{X1: 5, X2: 5, Y1: 0, Y2: 10}, 10, 10)
	assert.True(t, errors.Is(err, ErrDegenerateTransform))
	_, err = NewTransform(crop, 0, 10)
	assert.True(t, errors.Is(err, ErrDegenerateTransform))
}

func TestTransformFace(t *testing.T) {
	cfg := icao.DefaultConfig()
	f := testutil.NewFace(cfg, testutil.DefaultFaceSpec(600, 700, 900))
	crop := CropBox{X1: 200, Y1: 100, X2: 1000, Y2: 1100}

	out, tr, err := TransformFace(f, crop, 400, 500)
	require.NoError(t, err)
	require.Len(t, out.Landmarks, len(f.Landmarks))
	assert.Equal(t, utils.BoundingBox(out.Landmarks), out.BBox)
	assert.Equal(t, tr.Apply(f.Landmarks[16]), out.Landmarks[16])
	require.NotNil(t, out.Pose)
	assert.NotSame(t, f.Pose, out.Pose)

	noLm := face.DetectedFace{BBox: utils.NewBox(200, 100, 400, 300)}
	out, _, err = TransformFace(noLm, crop, 400, 500)
	require.NoError(t, err)
	assert.Equal(t, utils.NewBox(0, 0, 100, 100), out.BBox)
}

func TestGeometryProperties(t *testing.T) {
	cfg := icao.DefaultConfig()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("unclipped crop keeps the target aspect ratio", prop.ForAll(
		func(cx, eyeY, span float64) bool {
			f := testutil.NewFace(cfg, testutil.DefaultFaceSpec(cx, eyeY, eyeY+span))
			g, err := Extract([]face.DetectedFace{f}, cfg)
			if err != nil {
				return false
			}
			crop, err := CalculateCrop(100000, 100000, f, g, cfg)
			if err != nil {
				return true
			}
			u := crop.Unclipped
			ratio := float64(u.Dx()) / float64(u.Dy())
			return math.Abs(ratio-cfg.AspectRatio()) <= cfg.AspectRatioTolerance
		},
		gen.Float64Range(500, 5000), gen.Float64Range(2000, 5000), gen.Float64Range(20, 400),
	))

	properties.Property("returned geometry has chin below crown", prop.ForAll(
		func(y1, h, eyeY, chinY float64) bool {
			spec := testutil.DefaultFaceSpec(500, eyeY, chinY)
			f := testutil.NewFace(cfg, spec)
			f.BBox = utils.Box{MinX: 400, MinY: y1, MaxX: 600, MaxY: y1 + h}
			g, err := Extract([]face.DetectedFace{f}, cfg)
			if err != nil {
				return errors.Is(err, ErrInvalidGeometry) || errors.Is(err, ErrMissingGeometry)
			}
			return g.ChinY > g.CrownY
		},
		gen.Float64Range(0, 1000), gen.Float64Range(-200, 400),
		gen.Float64Range(0, 1000), gen.Float64Range(0, 1000),
	))

	properties.Property("transform round trip", prop.ForAll(
		func(x1, y1, w, h, fw, fh int, px, py float64) bool {
			tr, err := NewTransform(CropBox{X1: x1, Y1: y1, X2: x1 + w, Y2: y1 + h}, fw, fh)
			if err != nil {
				return false
			}
			p := utils.Point{X: px, Y: py}
			back := tr.Invert(tr.Apply(p))
			return math.Abs(back.X-p.X) < 1e-6 && math.Abs(back.Y-p.Y) < 1e-6
		},
		gen.IntRange(0, 2000), gen.IntRange(0, 2000), gen.IntRange(1, 3000), gen.IntRange(1, 3000),
		gen.IntRange(1, 2000), gen.IntRange(1, 2000),
		gen.Float64Range(-5000, 5000), gen.Float64Range(-5000, 5000),
	))

	properties.TestingRun(t)
}
