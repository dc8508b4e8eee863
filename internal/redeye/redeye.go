// Package redeye detects and repairs flash red-eye around pupil landmarks.
//
// A pixel counts as red-eye when its red channel is bright and exceeds the
// (saturated) sum of its green and blue channels. Correction and the residual
// measurement share that predicate.
package redeye

import (
	"image"
	"log/slog"

	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

const (
	// RedThreshold is the minimum red value of a flagged pixel.
	RedThreshold = 150
	// MinRadius is the smallest pupil ROI half-size in pixels.
	MinRadius = 5
	// RadiusRatio sizes the ROI relative to the image height.
	RadiusRatio = 0.01

	dilateIterations = 3
)

// IsRed reports whether an 8-bit RGB pixel is flagged as red-eye.
func IsRed(r, g, b uint8) bool {
	bg := min(int(g)+int(b), 255)
	return r > RedThreshold && int(r) > bg
}

// Radius returns the pupil ROI half-size for an image of the given height.
func Radius(imageHeight int) int {
	return max(MinRadius, int(float64(imageHeight)*RadiusRatio))
}

// ROI returns the square region [y-r, y+r) x [x-r, x+r) around center,
// clipped to bounds. Coordinates are truncated toward zero.
func ROI(center utils.Point, radius int, bounds image.Rectangle) image.Rectangle {
	x, y := int(center.X), int(center.Y)
	return image.Rect(x-radius, y-radius, x+radius, y+radius).Intersect(bounds)
}

// Measurement is the red-eye share of one pupil ROI.
type Measurement struct {
	ROI      image.Rectangle
	Flagged  int
	Total    int
	Fraction float64
}

// Measure counts flagged pixels inside roi.
func Measure(img *image.NRGBA, roi image.Rectangle) Measurement {
	roi = roi.Intersect(img.Rect)
	m := Measurement{ROI: roi, Total: roi.Dx() * roi.Dy()}
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			i := img.PixOffset(x, y)
			if IsRed(img.Pix[i], img.Pix[i+1], img.Pix[i+2]) {
				m.Flagged++
			}
		}
	}
	if m.Total > 0 {
		m.Fraction = float64(m.Flagged) / float64(m.Total)
	}
	return m
}

// Corrector repairs red-eye in place.
type Corrector struct {
	// Radius overrides the ROI half-size when > 0.
	Radius int
}

// NewCorrector returns a corrector using the image-height based ROI size.
func NewCorrector() *Corrector { return &Corrector{} }

// Correct repairs both pupils of img in place and returns one log entry per
// corrected eye. Eyes without flagged pixels produce no entry.
func (c *Corrector) Correct(img *image.NRGBA, pupils [2]utils.Point) []report.Entry {
	radius := c.Radius
	if radius <= 0 {
		radius = Radius(img.Rect.Dy())
	}

	var logs []report.Entry
	for i, p := range pupils {
		roi := ROI(p, radius, img.Rect)
		if roi.Empty() {
			continue
		}
		fixed := correctROI(img, roi)
		if fixed == 0 {
			continue
		}
		side := "left"
		if i == 1 {
			side = "right"
		}
		slog.Debug("Red-eye corrected", "eye", side, "pixels", fixed, "roi", roi.String())
		logs = append(logs, report.NewEntry(report.StatusInfo, report.StagePreprocessing,
			"Red-eye corrected in %s eye (%d px).", side, fixed))
	}
	return logs
}

// correctROI builds the flagged mask for roi, closes it by hole filling and
// dilation, then neutralises masked pixels. It returns the number of
// pixels rewritten.
func correctROI(img *image.NRGBA, roi image.Rectangle) int {
	w, h := roi.Dx(), roi.Dy()
	mask := utils.NewMask(w, h)
	found := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(roi.Min.X+x, roi.Min.Y+y)
			if IsRed(img.Pix[i], img.Pix[i+1], img.Pix[i+2]) {
				mask.Bits[y*w+x] = true
				found = true
			}
		}
	}
	if !found {
		return 0
	}

	mask = mask.FillHoles().Dilate(3, 3, dilateIterations)

	fixed := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask.Bits[y*w+x] {
				continue
			}
			i := img.PixOffset(roi.Min.X+x, roi.Min.Y+y)
			mean := uint8((int(img.Pix[i+1]) + int(img.Pix[i+2])) / 2)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2] = mean, mean, mean
			fixed++
		}
	}
	return fixed
}
