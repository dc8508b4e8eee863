package geometry

import (
	"image"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// CropBox is the crop rectangle in original image pixels.
type CropBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
	// Unclipped is the integer rectangle before clipping to the image.
	Unclipped image.Rectangle `json:"-"`
}

// Width returns X2 - X1.
func (c CropBox) Width() int { return c.X2 - c.X1 }

// Height returns Y2 - Y1.
func (c CropBox) Height() int { return c.Y2 - c.Y1 }

// Rect returns the clipped crop as an image.Rectangle.
func (c CropBox) Rect() image.Rectangle { return image.Rect(c.X1, c.Y1, c.X2, c.Y2) }

// Clipped reports whether clipping changed the rectangle.
func (c CropBox) Clipped() bool { return c.Rect() != c.Unclipped.Canon() }

// CalculateCrop computes the crop that places the head at the target height
// ratio with the configured headroom above the crown, centred on the face.
func CalculateCrop(width, height int, f face.DetectedFace, g FaceGeometry, cfg icao.Config) (CropBox, error) {
	if width <= 0 || height <= 0 {
		return CropBox{}, opErr("crop", ErrDegenerateCrop, "image size %dx%d", width, height)
	}
	if cfg.TargetHeadHeightRatio <= 0 {
		return CropBox{}, opErr("crop", ErrDegenerateCrop, "target head height ratio %.2f", cfg.TargetHeadHeightRatio)
	}

	headH := g.HeadHeight()
	if headH <= 0 {
		headH = f.BBox.Height()
	}
	cropH := headH / cfg.TargetHeadHeightRatio
	cropW := cropH * cfg.AspectRatio()

	x1 := f.BBox.CenterX() - cropW/2
	y1 := g.CrownY - cropH*cfg.HeadPosRatioVertical

	unclipped := image.Rect(int(x1), int(y1), int(x1+cropW), int(y1+cropH))
	box := CropBox{
		X1:        utils.ClampInt(int(x1), 0, width),
		Y1:        utils.ClampInt(int(y1), 0, height),
		X2:        utils.ClampInt(int(x1+cropW), 0, width),
		Y2:        utils.ClampInt(int(y1+cropH), 0, height),
		Unclipped: unclipped,
	}
	if box.Width() <= 0 || box.Height() <= 0 {
		return CropBox{}, opErr("crop", ErrDegenerateCrop, "clipped to %v inside %dx%d", box.Rect(), width, height)
	}
	return box, nil
}
