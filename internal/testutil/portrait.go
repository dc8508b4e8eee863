package testutil

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

var (
	// White is a compliant studio background.
	White = color.NRGBA{R: 250, G: 250, B: 250, A: 255}
	// DarkGray is a background that fails the light thresholds.
	DarkGray = color.NRGBA{R: 90, G: 90, B: 90, A: 255}
	// Skin is the base face tone.
	Skin = color.NRGBA{R: 150, G: 110, B: 90, A: 255}
	// RedPupil is a typical flash red-eye color.
	RedPupil = color.NRGBA{R: 220, G: 30, B: 30, A: 255}

	eyeColor = color.NRGBA{R: 40, G: 30, B: 30, A: 255}
)

// PortraitSpec describes a synthetic head-and-shoulders image.
type PortraitSpec struct {
	Width, Height int
	Background    color.NRGBA
	Face          FaceSpec
	// RedEyeRadius paints red disks of this radius on both pupils when > 0.
	RedEyeRadius int
	// SkinTone replaces Skin when set.
	SkinTone color.NRGBA
}

// DefaultPortrait returns a well-lit frontal portrait layout on a white background.
func DefaultPortrait() PortraitSpec {
	return PortraitSpec{
		Width:      1200,
		Height:     1600,
		Background: White,
		Face:       DefaultFaceSpec(600, 700, 900),
	}
}

// Portrait renders spec and returns the image with the matching face record.
// The face is a textured ellipse so sharpness heuristics see detail.
func Portrait(cfg icao.Config, spec PortraitSpec) (*image.NRGBA, face.DetectedFace) {
	img := imaging.New(spec.Width, spec.Height, spec.Background)
	fs := spec.Face
	skin := Skin
	if spec.SkinTone.A != 0 {
		skin = spec.SkinTone
	}

	top := fs.TopY()
	cy := (top + fs.ChinY) / 2
	ry := (fs.ChinY - top) / 2
	fillEllipse(img, fs.CenterX, cy, fs.HalfWidth, ry, func(x, y int) color.NRGBA {
		c := skin
		if (x/2+y/2)%2 == 0 {
			c.R, c.G, c.B = c.R+30, c.G+30, c.B+30
		}
		return c
	})

	for _, ex := range []float64{fs.CenterX - fs.EyeOffset, fs.CenterX + fs.EyeOffset} {
		fillEllipse(img, ex, fs.EyeY, fs.EyeWidth/2, math.Max(fs.EyeOpen/2, 1), func(int, int) color.NRGBA {
			return eyeColor
		})
	}

	f := NewFace(cfg, fs)
	if spec.RedEyeRadius > 0 {
		pupils, err := f.Pupils(cfg.Landmarks)
		if err == nil {
			for _, p := range pupils {
				PaintDisk(img, p, spec.RedEyeRadius, RedPupil)
			}
		}
	}
	return img, f
}

// PaintDisk fills a disk centred at p.
func PaintDisk(img *image.NRGBA, p utils.Point, radius int, c color.NRGBA) {
	fillEllipse(img, p.X, p.Y, float64(radius), float64(radius), func(int, int) color.NRGBA { return c })
}

func fillEllipse(img *image.NRGBA, cx, cy, rx, ry float64, shade func(x, y int) color.NRGBA) {
	if rx <= 0 || ry <= 0 {
		return
	}
	b := img.Bounds()
	y0 := max(int(math.Floor(cy-ry)), b.Min.Y)
	y1 := min(int(math.Ceil(cy+ry)), b.Max.Y-1)
	x0 := max(int(math.Floor(cx-rx)), b.Min.X)
	x1 := min(int(math.Ceil(cx+rx)), b.Max.X-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			dx := (float64(x) - cx) / rx
			dy := (float64(y) - cy) / ry
			if dx*dx+dy*dy <= 1 {
				img.SetNRGBA(x, y, shade(x, y))
			}
		}
	}
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

// EncodePortrait renders the default portrait and returns it as JPEG bytes.
func EncodePortrait(t *testing.T, cfg icao.Config, spec PortraitSpec) []byte {
	t.Helper()
	img, _ := Portrait(cfg, spec)
	data, err := utils.EncodeJPEG(img, utils.DefaultJPEGQuality)
	require.NoError(t, err)
	return data
}
