// Package quickcheck counts faces with a lightweight pigo cascade so clients
// get fast feedback before the full compliance analysis runs.
package quickcheck

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/photocheck/internal/models"
	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
)

// Verdict messages.
const (
	MessageNoFace   = "No face"
	MessageFace     = "Face detected"
	messageMultiple = "Multiple faces (%d)"
)

// Config holds the cascade location and detection parameters.
type Config struct {
	CascadePath string `mapstructure:"cascade_path" yaml:"cascade_path" json:"cascade_path"`
	// MaxDimension bounds the longer image side before detection.
	MaxDimension int     `mapstructure:"max_dimension" yaml:"max_dimension" json:"max_dimension" validate:"gt=0"`
	MinSize      int     `mapstructure:"min_size" yaml:"min_size" json:"min_size" validate:"gt=0"`
	ShiftFactor  float64 `mapstructure:"shift_factor" yaml:"shift_factor" json:"shift_factor" validate:"gt=0,lt=1"`
	ScaleFactor  float64 `mapstructure:"scale_factor" yaml:"scale_factor" json:"scale_factor" validate:"gt=1"`
	IoUThreshold float64 `mapstructure:"iou_threshold" yaml:"iou_threshold" json:"iou_threshold" validate:"gt=0,lte=1"`
	MinQuality   float64 `mapstructure:"min_quality" yaml:"min_quality" json:"min_quality" validate:"gte=0"`
}

// DefaultConfig returns parameters tuned for head-and-shoulders photos
// downscaled to 480 px.
func DefaultConfig() Config {
	return Config{
		CascadePath:  models.GetCascadePath(""),
		MaxDimension: 480,
		MinSize:      30,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5,
	}
}

// UpdateCascadePath points the config at the cascade under modelsDir.
func (c *Config) UpdateCascadePath(modelsDir string) {
	c.CascadePath = models.GetCascadePath(modelsDir)
}

// Result is the verdict of a quick check.
type Result struct {
	Success   bool   `json:"success"`
	FaceCount int    `json:"face_count"`
	Message   string `json:"message"`
}

// Verdict maps a face count to a quick-check result. Only exactly one face
// succeeds.
func Verdict(count int) Result {
	switch {
	case count == 0:
		return Result{FaceCount: 0, Message: MessageNoFace}
	case count > 1:
		return Result{FaceCount: count, Message: fmt.Sprintf(messageMultiple, count)}
	default:
		return Result{Success: true, FaceCount: 1, Message: MessageFace}
	}
}

// Checker counts faces. It is safe for concurrent use.
type Checker struct {
	cfg        Config
	classifier *pigo.Pigo
}

// New loads the cascade from cfg.CascadePath.
func New(cfg Config) (*Checker, error) {
	data, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}
	return NewFromCascade(data, cfg)
}

// NewFromCascade builds a Checker from cascade bytes.
func NewFromCascade(data []byte, cfg Config) (*Checker, error) {
	classifier, err := unpack(data)
	if err != nil {
		return nil, err
	}
	slog.Debug("Face cascade loaded", "bytes", len(data))
	return &Checker{cfg: cfg, classifier: classifier}, nil
}

// pigo indexes the packet without bounds checks, so truncated input panics.
func unpack(data []byte) (p *pigo.Pigo, err error) {
	if len(data) < 16 {
		return nil, errors.New("unpack face cascade: data too short")
	}
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("unpack face cascade: %v", r)
		}
	}()
	p, err = pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}
	return p, nil
}

// CountFaces returns the number of faces above the quality threshold.
func (c *Checker) CountFaces(img image.Image) int {
	if img == nil || img.Bounds().Empty() {
		return 0
	}
	small := Downscale(img, c.cfg.MaxDimension)
	cols, rows := small.Rect.Dx(), small.Rect.Dy()

	params := pigo.CascadeParams{
		MinSize:     c.cfg.MinSize,
		MaxSize:     min(cols, rows),
		ShiftFactor: c.cfg.ShiftFactor,
		ScaleFactor: c.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(small),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := c.classifier.RunCascade(params, 0)
	dets = c.classifier.ClusterDetections(dets, c.cfg.IoUThreshold)

	n := 0
	for _, d := range dets {
		if float64(d.Q) >= c.cfg.MinQuality {
			n++
		}
	}
	slog.Debug("Quick face count", "faces", n, "candidates", len(dets), "width", cols, "height", rows)
	return n
}

// Check counts faces and returns the verdict.
func (c *Checker) Check(img image.Image) Result {
	return Verdict(c.CountFaces(img))
}

// Downscale shrinks img so that its longer side is at most maxDim, keeping
// the aspect ratio. Smaller images are only copied to NRGBA at origin.
func Downscale(img image.Image, maxDim int) *image.NRGBA {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxDim <= 0 || longest <= maxDim {
		return imaging.Clone(img)
	}
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, maxDim, 0, imaging.Box)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Box)
}
