package background

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/testutil"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checker(w, h int, a, b uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := a
			if (x+y)%2 == 1 {
				v = b
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

var faceRect = image.Rect(80, 80, 121, 121)

func TestFaceRect(t *testing.T) {
	assert.Equal(t, image.Rect(10, 20, 31, 41), FaceRect(utils.NewBox(10, 20, 30, 40)))
}

func TestSurroundMask(t *testing.T) {
	m := SurroundMask(100, 100, image.Rect(40, 40, 60, 60))
	assert.False(t, m.At(50, 50))
	assert.False(t, m.At(36, 50), "inside the dilated margin")
	assert.True(t, m.At(30, 50))
	assert.True(t, m.At(0, 0))
}

func TestPreliminaryCheck(t *testing.T) {
	p := NewProcessor(icao.DefaultConfig(), nil)

	tests := []struct {
		name   string
		img    image.Image
		rect   image.Rectangle
		ok     bool
		reason string
	}{
		{"white", testutil.Solid(200, 200, testutil.White), faceRect, true, "BG appears OK."},
		{"dark", testutil.Solid(200, 200, testutil.DarkGray), faceRect, false, "BG check failed: not light enough."},
		{"noisy", checker(200, 200, 255, 150), faceRect, false, "BG check failed: not light enough, not uniform."},
		{"bright but noisy", checker(200, 200, 255, 200), faceRect, false, "BG check failed: not uniform."},
		{"face fills frame", testutil.Solid(50, 50, testutil.White), image.Rect(0, 0, 50, 50), false, "Not enough background pixels to check."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := p.PreliminaryCheck(tt.img, tt.rect)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func subjectMask(img image.Image) *utils.Mask {
	b := img.Bounds()
	return utils.MaskFromRect(b.Dx(), b.Dy(), faceRect)
}

func TestProcess_AlreadyCompliant(t *testing.T) {
	seg := &testutil.FakeSegmenter{MaskFn: subjectMask}
	p := NewProcessor(icao.DefaultConfig(), seg)
	img := testutil.Solid(200, 200, testutil.White)

	res := p.Process(context.Background(), img, faceRect)
	require.Len(t, res.Logs, 1)
	assert.Equal(t, "Preliminary BG check: BG appears OK.", res.Logs[0].Message)
	assert.Same(t, img, res.Image)
	assert.Nil(t, res.Mask)
	assert.Zero(t, seg.Calls())
}

func TestProcess_NoSegmenter(t *testing.T) {
	p := NewProcessor(icao.DefaultConfig(), nil)
	assert.False(t, p.HasSegmenter())

	res := p.Process(context.Background(), testutil.Solid(200, 200, testutil.DarkGray), faceRect)
	require.Len(t, res.Logs, 2)
	assert.Equal(t, report.StatusWarning, res.Logs[1].Status)
	assert.Equal(t, "Background may need removal, but segmentation is not available.", res.Logs[1].Message)
	assert.Nil(t, res.Mask)
}

func TestProcess_SegmentsAndComposites(t *testing.T) {
	seg := &testutil.FakeSegmenter{MaskFn: subjectMask}
	p := NewProcessor(icao.DefaultConfig(), seg)
	img := testutil.Solid(200, 200, testutil.DarkGray)

	res := p.Process(context.Background(), img, faceRect)
	require.Len(t, res.Logs, 3)
	assert.Equal(t, "Attempting background removal.", res.Logs[1].Message)
	assert.Equal(t, "Background removal applied.", res.Logs[2].Message)
	require.NotNil(t, res.Mask)
	assert.Equal(t, White, res.Image.NRGBAAt(5, 5))
	assert.Equal(t, testutil.DarkGray, res.Image.NRGBAAt(100, 100))
	assert.Equal(t, testutil.DarkGray, img.NRGBAAt(5, 5), "input is not modified")
	assert.EqualValues(t, 1, seg.Calls())
}

func TestProcess_ResizesMismatchedMask(t *testing.T) {
	seg := &testutil.FakeSegmenter{MaskFn: func(image.Image) *utils.Mask {
		return utils.MaskFromRect(100, 100, image.Rect(40, 40, 60, 60))
	}}
	p := NewProcessor(icao.DefaultConfig(), seg)

	res := p.Process(context.Background(), testutil.Solid(200, 200, testutil.DarkGray), faceRect)
	require.NotNil(t, res.Mask)
	assert.Equal(t, 200, res.Mask.W)
	assert.Equal(t, 200, res.Mask.H)
	assert.True(t, res.Mask.At(100, 100))
	assert.False(t, res.Mask.At(10, 10))
}

func TestProcess_SegmenterFailure(t *testing.T) {
	seg := &testutil.FakeSegmenter{Err: errors.New("boom")}
	p := NewProcessor(icao.DefaultConfig(), seg)
	img := testutil.Solid(200, 200, testutil.DarkGray)

	res := p.Process(context.Background(), img, faceRect)
	require.Len(t, res.Logs, 3)
	assert.Equal(t, report.StatusWarning, res.Logs[2].Status)
	assert.Equal(t, "Background removal failed: boom.", res.Logs[2].Message)
	assert.Same(t, img, res.Image)
	assert.Nil(t, res.Mask)
}

func TestProcess_SegmenterPanicIsContained(t *testing.T) {
	seg := &testutil.FakeSegmenter{MaskFn: func(image.Image) *utils.Mask { panic("bad tensor") }}
	p := NewProcessor(icao.DefaultConfig(), seg)

	res := p.Process(context.Background(), testutil.Solid(200, 200, testutil.DarkGray), faceRect)
	require.Len(t, res.Logs, 3)
	assert.Equal(t, report.StatusWarning, res.Logs[2].Status)
	assert.Contains(t, res.Logs[2].Message, "bad tensor")
}

func TestProcess_EmptyMaskKeepsOriginal(t *testing.T) {
	seg := &testutil.FakeSegmenter{MaskFn: func(in image.Image) *utils.Mask {
		b := in.Bounds()
		return utils.NewMask(b.Dx(), b.Dy())
	}}
	p := NewProcessor(icao.DefaultConfig(), seg)
	img := testutil.Solid(200, 200, testutil.DarkGray)

	res := p.Process(context.Background(), img, faceRect)
	require.Len(t, res.Logs, 3)
	assert.Equal(t, report.StatusWarning, res.Logs[2].Status)
	assert.Equal(t, "Background removal failed: segmentation found no subject.", res.Logs[2].Message)
	assert.Same(t, img, res.Image)
	assert.Nil(t, res.Mask)
}

type rectSegmenter struct {
	got   image.Rectangle
	plain bool
}

func (s *rectSegmenter) Segment(_ context.Context, img image.Image) (*utils.Mask, error) {
	s.plain = true
	b := img.Bounds()
	return utils.NewMask(b.Dx(), b.Dy()), nil
}

func (s *rectSegmenter) SegmentFace(_ context.Context, img image.Image, r image.Rectangle) (*utils.Mask, error) {
	s.got = r
	b := img.Bounds()
	return utils.MaskFromRect(b.Dx(), b.Dy(), r), nil
}

func TestProcess_PassesFaceRect(t *testing.T) {
	seg := &rectSegmenter{}
	p := NewProcessor(icao.DefaultConfig(), seg)

	res := p.Process(context.Background(), testutil.Solid(200, 200, testutil.DarkGray), faceRect)
	assert.Equal(t, faceRect, seg.got)
	assert.False(t, seg.plain)
	require.NotNil(t, res.Mask)
	assert.True(t, res.Mask.At(100, 100))
	assert.Equal(t, "Background removal applied.", res.Logs[len(res.Logs)-1].Message)
}
