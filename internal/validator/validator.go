// Package validator runs the ordered compliance battery over a processed
// passport photo and its face data in final-image coordinates.
package validator

import (
	"image"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/photocheck/internal/background"
	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/redeye"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// Check names, in the order they are reported.
const (
	CheckFaceData      = "Face Data"
	CheckPose          = "Head Pose"
	CheckYaw           = "Head Pose - Yaw"
	CheckPitch         = "Head Pose - Pitch"
	CheckRoll          = "Head Pose - Roll"
	CheckLandmarks     = "Landmarks"
	CheckChinCrown     = "Chin-to-Crown Ratio"
	CheckEyesOpen      = "Eyes Open"
	CheckLeftRedEye    = "Left Eye Red-Eye"
	CheckRightRedEye   = "Right Eye Red-Eye"
	CheckSharpness     = "Sharpness (Heuristic)"
	CheckBackground    = background.CheckName
	CheckContrast      = "Face-Background Contrast"
	CheckEyeLevel      = "Eye Level Positioning"
	methodSegmentation = " (Method: segmentation+landmarks)"
	methodCropBox      = " (Method: crop-box validation)"
)

// Validator checks a final image against an ICAO rule set.
type Validator struct {
	cfg icao.Config
}

// New creates a Validator for cfg.
func New(cfg icao.Config) *Validator {
	return &Validator{cfg: cfg}
}

// Config returns the rule set in use.
func (v *Validator) Config() icao.Config { return v.cfg }

// Validate runs every check and returns the results in a fixed order. A
// failing check never prevents the following ones from running. f must be in
// the coordinate space of img; mask may be nil.
func (v *Validator) Validate(img image.Image, f *face.DetectedFace, mask *utils.Mask) []report.Entry {
	var results []report.Entry
	if f == nil || img == nil {
		return append(results, report.NewEntry(report.StatusFail, CheckFaceData, "No valid face data for validation."))
	}

	src := utils.ToNRGBA(img)
	h := src.Rect.Dy()
	if mask != nil && (mask.W != src.Rect.Dx() || mask.H != h) {
		mask = mask.ResizeNearest(src.Rect.Dx(), h)
	}

	results = append(results, v.checkPose(f.Pose)...)

	idx := v.cfg.Landmarks
	if !f.HasLandmarks(idx) {
		return append(results, report.NewEntry(report.StatusFail, CheckLandmarks, "Could not perform landmark-based checks."))
	}
	lm := truncated(f)
	bbox := f.BBox.IntRect()

	results = append(results,
		v.checkChinCrown(lm, h, mask),
		v.checkEyesOpen(lm),
	)
	pupils, _ := lm.Pupils(idx)
	results = append(results,
		v.checkRedEye(src, pupils[0], CheckLeftRedEye),
		v.checkRedEye(src, pupils[1], CheckRightRedEye),
	)

	gray := utils.Grayscale(src)
	results = append(results,
		v.checkSharpness(gray, bbox),
		background.CheckFinal(v.cfg, src, mask),
		v.checkContrast(gray, f.BBox, mask),
	)
	if v.cfg.EyeLevelMaxMM > 0 {
		results = append(results, v.checkEyeLevel(lm, h))
	}

	slog.Debug("Validation finished",
		"checks", len(results),
		"fail", report.Count(results, report.StatusFail),
		"warning", report.Count(results, report.StatusWarning))
	return results
}

// truncated returns a copy of f whose landmarks are truncated to whole pixels.
func truncated(f *face.DetectedFace) *face.DetectedFace {
	out := *f
	out.Landmarks = make([]utils.Point, len(f.Landmarks))
	for i, p := range f.Landmarks {
		out.Landmarks[i] = utils.Point{X: float64(int32(p.X)), Y: float64(int32(p.Y))}
	}
	return &out
}

func (v *Validator) checkPose(pose *face.Pose) []report.Entry {
	if pose == nil {
		return []report.Entry{report.NewEntry(report.StatusUnknown, CheckPose, "Pose information not available.")}
	}
	angle := func(check string, value, limit float64) report.Entry {
		return report.NewEntry(passFail(math.Abs(value) <= limit), check, "%.1f°", value)
	}
	return []report.Entry{
		angle(CheckYaw, pose.Yaw, v.cfg.MaxYaw),
		angle(CheckPitch, pose.Pitch, v.cfg.MaxPitch),
		angle(CheckRoll, pose.Roll, v.cfg.MaxRoll),
	}
}

// checkChinCrown measures head height against the image height. The crown
// comes from the mask's topmost subject row when a mask is present,
// otherwise from the crop's designed headroom.
func (v *Validator) checkChinCrown(f *face.DetectedFace, h int, mask *utils.Mask) report.Entry {
	chin, _ := f.Chin(v.cfg.Landmarks)

	crown := float64(h) * v.cfg.HeadPosRatioVertical
	method := methodCropBox
	if mask != nil {
		if top, ok := mask.TopRow(); ok {
			crown = float64(top)
			method = methodSegmentation
		}
	}

	ratio := 0.0
	if head := chin.Y - crown; head > 0 && h > 0 {
		ratio = head / float64(h)
	}
	ok := ratio >= v.cfg.MinChinCrownRatio && ratio <= v.cfg.MaxChinCrownRatio
	return report.NewEntry(passFail(ok), CheckChinCrown, "%.2f (Target: %.2f-%.2f)%s",
		ratio, v.cfg.MinChinCrownRatio, v.cfg.MaxChinCrownRatio, method)
}

// EyeAspectRatio computes (|p1-p5| + |p2-p4|) / (2 |p0-p3|) over a six-point
// eye ring. A degenerate ring yields 0.
func EyeAspectRatio(eye []utils.Point) float64 {
	if len(eye) < 6 {
		return 0
	}
	c := utils.Distance(eye[0], eye[3])
	if c == 0 {
		return 0
	}
	return (utils.Distance(eye[1], eye[5]) + utils.Distance(eye[2], eye[4])) / (2 * c)
}

func (v *Validator) checkEyesOpen(f *face.DetectedFace) report.Entry {
	left, _ := f.LeftEye(v.cfg.Landmarks)
	right, _ := f.RightEye(v.cfg.Landmarks)
	ear := (EyeAspectRatio(left) + EyeAspectRatio(right)) / 2
	if ear >= v.cfg.EARThreshold {
		return report.NewEntry(report.StatusPass, CheckEyesOpen, "EAR: %.2f (appears open).", ear)
	}
	return report.NewEntry(report.StatusWarning, CheckEyesOpen,
		"EAR: %.2f (appears closed). This is OK for infants under 6 months.", ear)
}

// checkRedEye re-measures the pupil ROI after correction.
func (v *Validator) checkRedEye(img *image.NRGBA, pupil utils.Point, check string) report.Entry {
	roi := redeye.ROI(pupil, redeye.Radius(img.Rect.Dy()), img.Rect)
	if roi.Empty() {
		return report.NewEntry(report.StatusPass, check, "Could not create pupil ROI.")
	}
	m := redeye.Measure(img, roi)
	if m.Fraction > v.cfg.RedEyeMaxFraction {
		return report.NewEntry(report.StatusFail, check, "%.1f%% of pupil ROI is red after correction attempt.", m.Fraction*100)
	}
	return report.NewEntry(report.StatusPass, check, "%.1f%% of pupil ROI is red.", m.Fraction*100)
}

func (v *Validator) checkSharpness(gray *image.Gray, bbox image.Rectangle) report.Entry {
	variance := utils.LaplacianVariance(gray, bbox)
	status := report.StatusWarning
	if variance > v.cfg.SharpnessThreshold {
		status = report.StatusPass
	}
	return report.NewEntry(status, CheckSharpness, "Laplacian variance: %.2f", variance)
}

// checkContrast compares the mean gray level of the face box with the
// background: the mask's non-subject pixels, or everything outside the
// dilated face box.
func (v *Validator) checkContrast(gray *image.Gray, box utils.Box, mask *utils.Mask) report.Entry {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	faceRect := box.IntRect().Intersect(gray.Rect)
	faceMean, _ := utils.GrayMean(gray, func(x, y int) bool {
		return image.Pt(x, y).In(faceRect)
	})

	var bgMask *utils.Mask
	if mask != nil {
		bgMask = mask.Invert()
	} else {
		bgMask = background.SurroundMask(w, h, background.FaceRect(box))
	}
	bgMean, n := utils.GrayMean(gray, bgMask.At)
	if n == 0 {
		bgMean = 255
	}

	contrast := math.Abs(bgMean - faceMean)
	if contrast >= v.cfg.ContrastThreshold {
		return report.NewEntry(report.StatusPass, CheckContrast,
			"Good contrast: %.1f (face: %.1f, bg: %.1f)", contrast, faceMean, bgMean)
	}
	return report.NewEntry(report.StatusWarning, CheckContrast,
		"Low contrast: %.1f (face: %.1f, bg: %.1f)", contrast, faceMean, bgMean)
}

// checkEyeLevel measures the eye line's distance from the bottom edge.
func (v *Validator) checkEyeLevel(f *face.DetectedFace, h int) report.Entry {
	eyes, _ := f.EyePoints(v.cfg.Landmarks)
	dist := float64(h) - utils.MeanY(eyes)
	ok := dist >= float64(v.cfg.EyeLevelMinPx()) && dist <= float64(v.cfg.EyeLevelMaxPx())
	return report.NewEntry(passFail(ok), CheckEyeLevel, "Eye level: %.1fmm from bottom (Target: %g-%gmm)",
		v.cfg.PixelsToMM(dist), v.cfg.EyeLevelMinMM, v.cfg.EyeLevelMaxMM)
}

func passFail(ok bool) report.Status {
	if ok {
		return report.StatusPass
	}
	return report.StatusFail
}
