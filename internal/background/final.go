package background

import (
	"fmt"
	"image"
	"strings"

	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// CheckName is the validation entry name of the final background check.
const CheckName = "Final Background"

// Windows returns the five sampling windows used when no subject mask is
// available: top-left, top-right, middle-left, top-middle and middle-right.
// It returns nil when the image is too small to sample.
func Windows(w, h int) []image.Rectangle {
	s := min(maxWindow, h/4, w/4)
	if s <= 0 {
		return nil
	}
	midH, midW := h/2, w/2
	return []image.Rectangle{
		image.Rect(0, 0, s, s),
		image.Rect(w-s, 0, w, s),
		image.Rect(0, midH-s/2, s, midH+s/2),
		image.Rect(midW-s/2, 0, midW+s/2, s),
		image.Rect(w-s, midH-s/2, w, midH+s/2),
	}
}

// CheckFinal measures the background of the final image. With a non-empty
// subject mask every non-subject pixel is sampled; otherwise the fixed
// windows are.
func CheckFinal(cfg icao.Config, img image.Image, mask *utils.Mask) report.Entry {
	b := img.Bounds()
	var stats utils.ChannelStats
	if mask.Any() {
		stats = utils.SampleStats(img, func(x, y int) bool { return !mask.At(x, y) })
	} else {
		windows := Windows(b.Dx(), b.Dy())
		if windows == nil {
			return report.NewEntry(report.StatusWarning, CheckName, "Image is too small to sample background areas.")
		}
		for i := range windows {
			windows[i] = windows[i].Add(b.Min)
		}
		stats = utils.SampleRects(img, windows)
	}

	if stats.Values() < minFinalValues {
		return report.NewEntry(report.StatusWarning, CheckName, "Not enough background pixels for final validation.")
	}

	var issues []string
	tooDark, tooBright := false, false
	for i := range 3 {
		if stats.Mean[i] < cfg.BackgroundMinRGB[i] {
			tooDark = true
		}
		if stats.Mean[i] > cfg.BackgroundMaxRGB[i] {
			tooBright = true
		}
	}
	if tooDark {
		issues = append(issues, "too dark")
	}
	if tooBright {
		issues = append(issues, "too bright")
	}
	if stats.MaxStd() > cfg.BackgroundMaxStd {
		issues = append(issues, "not uniform")
	}
	if len(issues) > 0 {
		return report.NewEntry(report.StatusFail, CheckName, "Background issues: %s", strings.Join(issues, ", "))
	}
	return report.NewEntry(report.StatusPass, CheckName, "Background appears compliant (mean: %s, std: %s)",
		intTriple(stats.Mean), intTriple(stats.Std))
}

func intTriple(v [3]float64) string {
	return fmt.Sprintf("[%d %d %d]", int(v[0]), int(v[1]), int(v[2]))
}
