package pipeline

import (
	"image"
	"image/color"

	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// Overlay colors.
var (
	OverlayBoxColor      = color.NRGBA{R: 0, G: 200, B: 0, A: 255}
	OverlayLandmarkColor = color.NRGBA{R: 230, G: 0, B: 0, A: 255}
	OverlayGuideColor    = color.NRGBA{R: 0, G: 90, B: 230, A: 255}
)

// RenderOverlay draws the final face box, its landmarks and the eye-level
// target band over the processed image of res. It returns nil when res has
// no processed image.
func RenderOverlay(res *Result, cfg icao.Config) *image.NRGBA {
	if res == nil || res.Image == nil {
		return nil
	}
	dst := utils.CloneNRGBA(res.Image)
	if res.Face == nil {
		return dst
	}
	w, h := dst.Rect.Dx(), dst.Rect.Dy()

	if cfg.EyeLevelMaxMM > 0 {
		for _, px := range []int{cfg.EyeLevelMinPx(), cfg.EyeLevelMaxPx()} {
			y := h - px
			utils.DrawLine(dst, image.Pt(0, y), image.Pt(w-1, y), OverlayGuideColor, 1)
		}
	}
	utils.DrawRect(dst, res.Face.Rect(), OverlayBoxColor, 2)
	utils.DrawPoints(dst, res.Face.Landmarks, OverlayLandmarkColor, 3)
	return dst
}

// RenderCrop draws the computed crop rectangle over the original image.
func RenderCrop(original image.Image, res *Result) *image.NRGBA {
	if original == nil {
		return nil
	}
	dst := utils.CloneNRGBA(original)
	if res != nil && res.Crop != nil {
		utils.DrawRect(dst, res.Crop.Rect(), OverlayGuideColor, 3)
	}
	return dst
}
