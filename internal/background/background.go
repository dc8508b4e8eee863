// Package background decides whether a photo's background needs correction,
// composites a white background from a subject mask and runs the final
// background compliance measurement.
package background

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

const (
	// FaceDilation is the square kernel used to grow the face rectangle
	// before sampling the pixels around it.
	FaceDilation = 10

	minPrelimValues = 1000
	minFinalValues  = 100
	maxWindow       = 50
)

// White is the composite background color.
var White = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Segmenter separates the subject from the background. The returned mask is
// true on subject pixels.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (*utils.Mask, error)
}

// FaceAwareSegmenter is implemented by segmenters that can keep a known face
// region in the subject. Process prefers it over Segment.
type FaceAwareSegmenter interface {
	SegmentFace(ctx context.Context, img image.Image, faceRect image.Rectangle) (*utils.Mask, error)
}

// ErrEmptyMask is returned when segmentation finds no subject pixels.
var ErrEmptyMask = errors.New("segmentation found no subject")

// Processor runs the two-tier background strategy.
type Processor struct {
	cfg       icao.Config
	segmenter Segmenter
}

// NewProcessor creates a Processor. seg may be nil.
func NewProcessor(cfg icao.Config, seg Segmenter) *Processor {
	return &Processor{cfg: cfg, segmenter: seg}
}

// HasSegmenter reports whether a segmentation capability is configured.
func (p *Processor) HasSegmenter() bool { return p.segmenter != nil }

// FaceRect converts a face box to the filled rectangle used for sampling.
// Both corners are inclusive.
func FaceRect(b utils.Box) image.Rectangle {
	r := b.IntRect()
	return image.Rect(r.Min.X, r.Min.Y, r.Max.X+1, r.Max.Y+1)
}

// SurroundMask returns true for pixels outside the face rectangle dilated by
// FaceDilation.
func SurroundMask(w, h int, faceRect image.Rectangle) *utils.Mask {
	return utils.MaskFromRect(w, h, faceRect).Dilate(FaceDilation, FaceDilation, 1).Invert()
}

// PreliminaryCheck samples the pixels around the face and reports whether the
// background is already light and uniform, with a human-readable reason.
func (p *Processor) PreliminaryCheck(img image.Image, faceRect image.Rectangle) (bool, string) {
	b := img.Bounds()
	bg := SurroundMask(b.Dx(), b.Dy(), faceRect.Sub(b.Min))
	stats := utils.SampleStats(img, bg.At)
	if stats.Values() < minPrelimValues {
		return false, "Not enough background pixels to check."
	}

	var reasons []string
	isLight := stats.MinMean() >= p.cfg.PrelimBackgroundMinLight
	isUniform := stats.MaxStd() <= p.cfg.PrelimBackgroundMaxStd
	if !isLight {
		reasons = append(reasons, "not light enough")
	}
	if !isUniform {
		reasons = append(reasons, "not uniform")
	}
	if len(reasons) > 0 {
		return false, fmt.Sprintf("BG check failed: %s.", strings.Join(reasons, ", "))
	}
	return true, "BG appears OK."
}

// Result is the outcome of Process.
type Result struct {
	Image *image.NRGBA
	// Mask is the subject mask when segmentation ran successfully.
	Mask *utils.Mask
	Logs []report.Entry
}

// Process runs the preliminary check and, when it fails, segments the image
// and composites the subject over white. Segmentation problems are reported
// as warnings and leave the image unchanged.
func (p *Processor) Process(ctx context.Context, img *image.NRGBA, faceRect image.Rectangle) Result {
	res := Result{Image: img}
	ok, reason := p.PreliminaryCheck(img, faceRect)
	res.Logs = append(res.Logs, report.NewEntry(report.StatusInfo, report.StagePreprocessing, "Preliminary BG check: "+reason))
	if ok {
		return res
	}

	if p.segmenter == nil {
		res.Logs = append(res.Logs, report.NewEntry(report.StatusWarning, report.StagePreprocessing,
			"Background may need removal, but segmentation is not available."))
		return res
	}

	res.Logs = append(res.Logs, report.NewEntry(report.StatusInfo, report.StagePreprocessing, "Attempting background removal."))
	mask, err := p.segment(ctx, img, faceRect)
	if err != nil {
		slog.Warn("Background removal failed", "error", err)
		res.Logs = append(res.Logs, report.NewEntry(report.StatusWarning, report.StagePreprocessing,
			"Background removal failed: %v.", err))
		return res
	}

	res.Image = Composite(img, mask)
	res.Mask = mask
	res.Logs = append(res.Logs, report.NewEntry(report.StatusInfo, report.StagePreprocessing, "Background removal applied."))
	return res
}

func (p *Processor) segment(ctx context.Context, img *image.NRGBA, faceRect image.Rectangle) (mask *utils.Mask, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("segmenter panic: %v", r)
		}
	}()

	if fs, ok := p.segmenter.(FaceAwareSegmenter); ok {
		mask, err = fs.SegmentFace(ctx, img, faceRect)
	} else {
		mask, err = p.segmenter.Segment(ctx, img)
	}
	if err != nil {
		return nil, err
	}
	if mask == nil {
		return nil, fmt.Errorf("segmenter returned no mask")
	}
	if !mask.Any() {
		return nil, ErrEmptyMask
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if mask.W != w || mask.H != h {
		mask = mask.ResizeNearest(w, h)
	}
	return mask, nil
}

// Composite keeps subject pixels and paints everything else white.
func Composite(img image.Image, mask *utils.Mask) *image.NRGBA {
	return mask.Apply(img, White)
}
