package segmentation

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/photocheck/internal/onnx"
	"github.com/MeKo-Tech/photocheck/internal/onnx/mock"
	"github.com/MeKo-Tech/photocheck/internal/testutil"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	out    mock.ImageMap
	err    error
	shapes [][]int64
	closed bool
}

func (r *fakeRunner) Run(t onnx.Tensor) ([]onnx.Output, error) {
	r.shapes = append(r.shapes, t.Shape)
	if r.err != nil {
		return nil, r.err
	}
	return []onnx.Output{{Name: "d0", Shape: r.out.Shape(), Data: r.out.Data}}, nil
}

func (r *fakeRunner) Close() error {
	r.closed = true
	return nil
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, MethodU2Net, cfg.Method)
	assert.Equal(t, 320, cfg.InputSize)
	assert.Equal(t, 24, cfg.EdgeThreshold)
	assert.InDelta(t, 0.3, cfg.FacePadding, 1e-9)
	assert.Contains(t, cfg.ModelPath, "u2net.onnx")

	cfg.Method = MethodU2NetPortable
	cfg.UpdateModelPath("/opt/models")
	assert.Equal(t, filepath.Join("/opt/models", "u2netp.onnx"), cfg.ModelPath)
}

func TestNormalizeMinMax(t *testing.T) {
	assert.Equal(t, []float32{0, 0.5, 1}, normalizeMinMax([]float32{2, 4, 6}))
	assert.Equal(t, []float32{0, 0}, normalizeMinMax([]float32{3, 3}))
	assert.Empty(t, normalizeMinMax(nil))
}

func TestMapSize(t *testing.T) {
	w, h, err := mapSize(onnx.Output{Shape: []int64{1, 1, 4, 8}, Data: make([]float32, 32)}, 320)
	require.NoError(t, err)
	assert.Equal(t, 8, w)
	assert.Equal(t, 4, h)

	w, h, err = mapSize(onnx.Output{Data: make([]float32, 9)}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, w)
	assert.Equal(t, 3, h)

	_, _, err = mapSize(onnx.Output{Shape: []int64{1, 1, 4, 8}, Data: make([]float32, 10)}, 320)
	assert.Error(t, err)
}

func TestU2Net_Segment(t *testing.T) {
	r := &fakeRunner{out: mock.NewCenteredBlobMap(320, 320, 1, 60)}
	u := newU2NetWithRunner(DefaultConfig(), r)

	img := testutil.Solid(640, 480, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	mask, err := u.Segment(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, 640, mask.W)
	assert.Equal(t, 480, mask.H)
	assert.True(t, mask.At(320, 240), "center is subject")
	assert.False(t, mask.At(0, 0), "corner is background")
	assert.False(t, mask.At(639, 479))
	require.Len(t, r.shapes, 1)
	assert.Equal(t, []int64{1, 3, 320, 320}, r.shapes[0])

	require.NoError(t, u.Close())
	assert.True(t, r.closed)
	_, err = u.Segment(context.Background(), img)
	assert.ErrorIs(t, err, onnx.ErrSessionClosed)
	assert.NoError(t, u.Close())
}

func TestU2Net_Errors(t *testing.T) {
	img := testutil.Solid(64, 64, color.NRGBA{A: 255})

	u := newU2NetWithRunner(DefaultConfig(), &fakeRunner{out: mock.NewCenteredBlobMap(320, 320, 1, 5)})
	_, err := u.Segment(context.Background(), img)
	assert.ErrorIs(t, err, ErrLowCoverage)

	u = newU2NetWithRunner(DefaultConfig(), &fakeRunner{err: errors.New("ort failure")})
	_, err = u.Segment(context.Background(), img)
	assert.ErrorContains(t, err, "ort failure")

	_, err = u.Segment(context.Background(), nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = u.Segment(ctx, img)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestU2Net_DebugDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebugDir = t.TempDir()
	u := newU2NetWithRunner(cfg, &fakeRunner{out: mock.NewCenteredBlobMap(320, 320, 1, 60)})

	_, err := u.Segment(context.Background(), testutil.Solid(100, 100, color.NRGBA{A: 255}))
	require.NoError(t, err)
	files, err := filepath.Glob(filepath.Join(cfg.DebugDir, "u2net_mask_*.png"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFloodFill_Segment(t *testing.T) {
	img := testutil.Solid(200, 200, testutil.White)
	testutil.PaintDisk(img, utils.Point{X: 100, Y: 100}, 40, testutil.DarkGray)

	cfg := DefaultConfig()
	cfg.BlurSigma = 0
	mask, err := NewFloodFill(cfg).Segment(context.Background(), img)
	require.NoError(t, err)
	assert.True(t, mask.At(100, 100))
	assert.True(t, mask.At(100, 70))
	assert.False(t, mask.At(0, 0))
	assert.False(t, mask.At(199, 10))
	assert.InDelta(t, 3.14159*40*40, float64(mask.Count()), 800)
}

func TestFloodFill_GradientBackground(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	for y := range 100 {
		for x := range 200 {
			v := uint8(150 + x/2)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	testutil.PaintDisk(img, utils.Point{X: 100, Y: 50}, 20, color.NRGBA{R: 20, G: 20, B: 20, A: 255})

	cfg := DefaultConfig()
	cfg.BlurSigma = 0
	mask, err := NewFloodFill(cfg).Segment(context.Background(), img)
	require.NoError(t, err)
	assert.True(t, mask.At(100, 50))
	assert.False(t, mask.At(100, 5), "a slowly varying backdrop is still background")
	assert.False(t, mask.At(10, 90))
}

func TestFloodFloating(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 4, 1))
	copy(g.Pix, []uint8{0, 20, 40, 100})
	m := floodFloating(g, []image.Point{{0, 0}}, 30, nil)
	assert.Equal(t, []bool{true, true, true, false}, m.Bits)

	m = floodFloating(g, []image.Point{{0, 0}, {9, 9}}, 10, nil)
	assert.Equal(t, []bool{true, false, false, false}, m.Bits)

	blocked := utils.NewMask(4, 1)
	blocked.Bits[2] = true
	m = floodFloating(g, []image.Point{{0, 0}}, 30, blocked)
	assert.Equal(t, []bool{true, true, false, false}, m.Bits)
}

func TestEdgeMask(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 10, 10))
	for y := range 10 {
		for x := range 10 {
			g.Pix[y*g.Stride+x] = 100
			if x >= 5 {
				g.Pix[y*g.Stride+x] = 200
			}
		}
	}
	m := edgeMask(g, 24)
	assert.True(t, m.At(4, 5))
	assert.True(t, m.At(5, 5))
	assert.False(t, m.At(3, 5))
	assert.False(t, m.At(0, 0))
	assert.False(t, m.At(9, 9))
}

var lightBackdrop = color.NRGBA{R: 205, G: 205, B: 205, A: 255}

func TestFloodFill_LightSkinOnLightBackdrop(t *testing.T) {
	img := testutil.Solid(240, 320, lightBackdrop)
	testutil.PaintDisk(img, utils.Point{X: 120, Y: 160}, 70, color.NRGBA{R: 200, G: 170, B: 150, A: 255})

	mask, err := NewFloodFill(DefaultConfig()).Segment(context.Background(), img)
	require.NoError(t, err)
	assert.True(t, mask.At(120, 160), "face centre is subject")
	assert.True(t, mask.At(120, 100))
	assert.False(t, mask.At(0, 0))
	assert.False(t, mask.At(235, 315))
	assert.InDelta(t, 3.14159*70*70, float64(mask.Count()), 2500)

	// The gray step is within the tolerance, so only the edge barrier keeps
	// the fill out of the face.
	cfg := DefaultConfig()
	cfg.EdgeThreshold = 0
	_, err = NewFloodFill(cfg).Segment(context.Background(), img)
	assert.ErrorIs(t, err, ErrLowCoverage)
}

func TestFloodFill_ProtectsFaceRect(t *testing.T) {
	img := testutil.Solid(200, 200, lightBackdrop)
	f := NewFloodFill(DefaultConfig())

	_, err := f.Segment(context.Background(), img)
	assert.ErrorIs(t, err, ErrLowCoverage, "a featureless image has no subject")

	mask, err := f.SegmentFace(context.Background(), img, image.Rect(80, 80, 120, 120))
	require.NoError(t, err)
	assert.True(t, mask.At(100, 100))
	assert.True(t, mask.At(68, 68), "padded by 30% on each side")
	assert.True(t, mask.At(131, 131))
	assert.False(t, mask.At(60, 100))
	assert.False(t, mask.At(0, 0))
	assert.Equal(t, 64*64, mask.Count())
}

func TestPadRect(t *testing.T) {
	assert.Equal(t, image.Rect(68, 68, 132, 132), padRect(image.Rect(80, 80, 120, 120), 0.3))
	assert.Equal(t, image.Rect(1, 2, 3, 4), padRect(image.Rect(1, 2, 3, 4), 0))
	assert.True(t, padRect(image.Rectangle{}, 0.3).Empty())
}

func TestFloodFill_Errors(t *testing.T) {
	f := NewFloodFill(DefaultConfig())
	_, err := f.Segment(context.Background(), nil)
	assert.Error(t, err)
	_, err = f.Segment(context.Background(), image.NewNRGBA(image.Rectangle{}))
	assert.Error(t, err)
	assert.NoError(t, f.Close())
}

func TestNew(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	s, err := New(cfg)
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg.Enabled = true
	cfg.Method = MethodFloodFill
	s, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &FloodFill{}, s)

	cfg.Method = "grabcut"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg.Method = MethodU2Net
	cfg.ModelPath = "/nonexistent/u2net.onnx"
	s, err = New(cfg)
	assert.Error(t, err)
	assert.Nil(t, s)
}
