package pipeline

import (
	"context"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/photocheck/internal/background"
	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/geometry"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/redeye"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// Preprocessed is the outcome of Preprocessor.Process. When OK is false the
// last log entry is the FAIL that stopped processing and no image is set.
type Preprocessed struct {
	OK       bool
	Image    *image.NRGBA
	Face     face.DetectedFace
	Mask     *utils.Mask
	Geometry geometry.FaceGeometry
	Crop     geometry.CropBox
	Logs     []report.Entry
}

func (p *Preprocessed) log(status report.Status, format string, args ...any) {
	p.Logs = append(p.Logs, report.NewEntry(status, report.StagePreprocessing, format, args...))
}

func (p *Preprocessed) fail(format string, args ...any) *Preprocessed {
	p.log(report.StatusFail, format, args...)
	p.OK = false
	p.Image = nil
	return p
}

// Preprocessor turns an original photo with exactly one detected face into
// the final-size portrait the validator checks.
type Preprocessor struct {
	cfg       icao.Config
	bg        *background.Processor
	corrector *redeye.Corrector
}

// NewPreprocessor creates a Preprocessor. seg may be nil.
func NewPreprocessor(cfg icao.Config, seg background.Segmenter) *Preprocessor {
	return &Preprocessor{
		cfg:       cfg,
		bg:        background.NewProcessor(cfg, seg),
		corrector: redeye.NewCorrector(),
	}
}

// Process extracts head geometry, crops and resizes to the final print size,
// maps the face into the new coordinates, fixes the background and corrects
// red-eye.
func (p *Preprocessor) Process(ctx context.Context, img image.Image, faces []face.DetectedFace) *Preprocessed {
	out := &Preprocessed{}
	b := img.Bounds()

	g, err := geometry.Extract(faces, p.cfg)
	if err != nil {
		return out.fail("Face geometry extraction failed: %v", err)
	}
	out.Geometry = g
	out.log(report.StatusInfo, "Face details extracted from original image.")

	crop, err := geometry.CalculateCrop(b.Dx(), b.Dy(), faces[0], g, p.cfg)
	if err != nil {
		return out.fail("Crop calculation failed: %v", err)
	}
	out.Crop = crop
	slog.Debug("Crop calculated", "crop", crop.Rect().String(), "clipped", crop.Clipped(), "source", g.Source)

	cropped := utils.CropImageRect(img, crop.Rect().Add(b.Min))
	if cropped.Bounds().Empty() {
		return out.fail("Cropped image is empty.")
	}
	w, h := p.cfg.FinalWidth(), p.cfg.FinalHeight()
	resized, err := utils.ResizeExact(cropped, w, h)
	if err != nil {
		return out.fail("Resize failed: %v", err)
	}
	out.log(report.StatusInfo, "Cropped and resized to %dx%dpx.", w, h)

	final, _, err := geometry.TransformFace(faces[0], crop, w, h)
	if err != nil {
		return out.fail("Landmark transformation failed: %v", err)
	}
	out.Face = final

	bg := p.bg.Process(ctx, resized, background.FaceRect(final.BBox))
	out.Logs = append(out.Logs, bg.Logs...)
	out.Image = bg.Image
	out.Mask = bg.Mask

	if pupils, err := final.Pupils(p.cfg.Landmarks); err == nil {
		out.Logs = append(out.Logs, p.corrector.Correct(out.Image, pupils)...)
	} else {
		out.log(report.StatusInfo, "Red-eye correction skipped: pupils not available.")
	}

	out.OK = true
	out.log(report.StatusPass, "Image preprocessing complete.")
	return out
}
