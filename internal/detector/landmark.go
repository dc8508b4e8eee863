package detector

import (
	"image"
	"math"

	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/disintegration/imaging"
)

// LandmarkCount is the number of points emitted by the 2D landmark model.
const LandmarkCount = 106

// alignment maps between an axis-aligned square crop around a face and the
// landmark model input.
type alignment struct {
	// origin is the top-left of the crop in image coordinates.
	origin image.Point
	// side is the crop edge length in image pixels.
	side int
	// size is the model input edge length.
	size int
}

// newAlignment centres a square of max(w, h) * expand on the face box.
func newAlignment(box utils.Box, size int, expand float64) alignment {
	side := max(int(math.Round(max(box.Width(), box.Height())*expand)), 1)
	cx := (box.MinX + box.MaxX) / 2
	cy := (box.MinY + box.MaxY) / 2
	return alignment{
		origin: image.Pt(int(math.Round(cx-float64(side)/2)), int(math.Round(cy-float64(side)/2))),
		side:   side,
		size:   size,
	}
}

// crop extracts the aligned face, padding outside the image with black, and
// resizes it to the model input size.
func (a alignment) crop(img image.Image) *image.NRGBA {
	canvas := imaging.New(a.side, a.side, black)
	canvas = imaging.Paste(canvas, img, img.Bounds().Min.Sub(a.origin))
	return imaging.Resize(canvas, a.size, a.size, imaging.Linear)
}

// decode converts normalized [-1, 1] model output pairs to image coordinates.
func (a alignment) decode(out []float32) []utils.Point {
	half := float64(a.size) / 2
	ratio := float64(a.side) / float64(a.size)
	pts := make([]utils.Point, 0, len(out)/2)
	for i := 0; i+1 < len(out); i += 2 {
		x := (float64(out[i]) + 1) * half
		y := (float64(out[i+1]) + 1) * half
		pts = append(pts, utils.Point{
			X: x*ratio + float64(a.origin.X),
			Y: y*ratio + float64(a.origin.Y),
		})
	}
	return pts
}
