// Package printlayout arranges a validated passport photo four times on a
// 10x15 cm sheet with cutting guides, ready for a photo printer.
package printlayout

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/disintegration/imaging"
)

// Sheet colors.
var (
	GuideColor  = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	FooterColor = color.NRGBA{R: 64, G: 64, B: 64, A: 255}
)

const guideThickness = 2

// Config describes the sheet.
type Config struct {
	PaperWidthMM  float64 `mapstructure:"paper_width_mm" yaml:"paper_width_mm" json:"paper_width_mm" validate:"gt=0"`
	PaperHeightMM float64 `mapstructure:"paper_height_mm" yaml:"paper_height_mm" json:"paper_height_mm" validate:"gt=0"`
	Cols          int     `mapstructure:"cols" yaml:"cols" json:"cols" validate:"gt=0"`
	Rows          int     `mapstructure:"rows" yaml:"rows" json:"rows" validate:"gt=0"`
	SpacingMM     float64 `mapstructure:"spacing_mm" yaml:"spacing_mm" json:"spacing_mm" validate:"gte=0"`
	MinMarginMM   float64 `mapstructure:"min_margin_mm" yaml:"min_margin_mm" json:"min_margin_mm" validate:"gte=0"`
	TickMM        float64 `mapstructure:"tick_mm" yaml:"tick_mm" json:"tick_mm" validate:"gte=0"`
	// Footer prints the cutting instructions below the grid.
	Footer      bool `mapstructure:"footer" yaml:"footer" json:"footer"`
	JPEGQuality int  `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality" validate:"gte=1,lte=100"`
}

// DefaultConfig returns a 2x2 grid on 100x150 mm paper.
func DefaultConfig() Config {
	return Config{
		PaperWidthMM:  100,
		PaperHeightMM: 150,
		Cols:          2,
		Rows:          2,
		SpacingMM:     6,
		MinMarginMM:   5,
		TickMM:        6,
		Footer:        true,
		JPEGQuality:   95,
	}
}

// Margins are the left and top offsets of the grid in pixels.
type Margins struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// Info describes a rendered sheet.
type Info struct {
	PaperSizeMM string  `json:"paper_size_mm" yaml:"paper_size_mm"`
	PaperSizePx string  `json:"paper_size_px" yaml:"paper_size_px"`
	PhotoSizeMM string  `json:"photo_size_mm" yaml:"photo_size_mm"`
	PhotoSizePx string  `json:"photo_size_px" yaml:"photo_size_px"`
	PhotosCount int     `json:"photos_count" yaml:"photos_count"`
	DPI         int     `json:"dpi" yaml:"dpi"`
	Margins     Margins `json:"margins_px" yaml:"margins_px"`
}

// Layout holds the pixel geometry of a sheet at the photo DPI.
type Layout struct {
	cfg   Config
	photo icao.Config

	paperW, paperH int
	photoW, photoH int
	spacing        int
	margins        Margins
	tick           int
}

// New computes the sheet geometry. The grid is centred; margins never drop
// below MinMarginMM.
func New(cfg Config, photo icao.Config) (*Layout, error) {
	if cfg.Cols <= 0 || cfg.Rows <= 0 {
		return nil, errors.New("print layout: grid must have at least one row and column")
	}
	if photo.DPI <= 0 {
		return nil, errors.New("print layout: dpi must be positive")
	}
	l := &Layout{
		cfg:     cfg,
		photo:   photo,
		paperW:  photo.MMToPixels(cfg.PaperWidthMM),
		paperH:  photo.MMToPixels(cfg.PaperHeightMM),
		photoW:  photo.FinalWidth(),
		photoH:  photo.FinalHeight(),
		spacing: max(photo.MMToPixels(cfg.SpacingMM), 1),
		tick:    max(photo.MMToPixels(cfg.TickMM), 6),
	}
	gridW := l.photoW*cfg.Cols + l.spacing*(cfg.Cols-1)
	gridH := l.photoH*cfg.Rows + l.spacing*(cfg.Rows-1)
	minMargin := photo.MMToPixels(cfg.MinMarginMM)
	l.margins = Margins{
		X: max((l.paperW-gridW)/2, minMargin),
		Y: max((l.paperH-gridH)/2, minMargin),
	}
	if l.margins.X+gridW > l.paperW || l.margins.Y+gridH > l.paperH {
		return nil, fmt.Errorf("print layout: %dx%d grid of %dx%dpx photos does not fit on %dx%dpx paper",
			cfg.Cols, cfg.Rows, l.photoW, l.photoH, l.paperW, l.paperH)
	}
	return l, nil
}

// Size is the sheet size in pixels.
func (l *Layout) Size() (int, int) { return l.paperW, l.paperH }

// Slots returns the photo rectangles in row-major order.
func (l *Layout) Slots() []image.Rectangle {
	out := make([]image.Rectangle, 0, l.cfg.Cols*l.cfg.Rows)
	for row := range l.cfg.Rows {
		for col := range l.cfg.Cols {
			x := l.margins.X + col*(l.photoW+l.spacing)
			y := l.margins.Y + row*(l.photoH+l.spacing)
			out = append(out, image.Rect(x, y, x+l.photoW, y+l.photoH))
		}
	}
	return out
}

// Info returns the sheet description.
func (l *Layout) Info() Info {
	return Info{
		PaperSizeMM: fmt.Sprintf("%gx%g", l.cfg.PaperWidthMM, l.cfg.PaperHeightMM),
		PaperSizePx: fmt.Sprintf("%dx%d", l.paperW, l.paperH),
		PhotoSizeMM: fmt.Sprintf("%gx%g", l.photo.PhotoWidthMM, l.photo.PhotoHeightMM),
		PhotoSizePx: fmt.Sprintf("%dx%d", l.photoW, l.photoH),
		PhotosCount: l.cfg.Cols * l.cfg.Rows,
		DPI:         l.photo.DPI,
		Margins:     l.margins,
	}
}

// Render places copies of photo on a white sheet and draws the guides and
// footer. Photos of a different size are resized to the final photo size.
func (l *Layout) Render(photo image.Image) (*image.NRGBA, Info, error) {
	if photo == nil || photo.Bounds().Empty() {
		return nil, Info{}, errors.New("print layout: photo is empty")
	}
	if b := photo.Bounds(); b.Dx() != l.photoW || b.Dy() != l.photoH {
		photo = imaging.Resize(photo, l.photoW, l.photoH, imaging.Box)
	}

	canvas := utils.FillWhite(l.paperW, l.paperH)
	slots := l.Slots()
	for _, r := range slots {
		draw.Draw(canvas, r, photo, photo.Bounds().Min, draw.Src)
	}
	for _, r := range slots {
		l.drawTicks(canvas, r)
	}
	if l.cfg.Footer {
		l.drawFooter(canvas)
	}
	return canvas, l.Info(), nil
}

// drawTicks marks each photo corner with a horizontal and a vertical tick
// pointing away from the photo.
func (l *Layout) drawTicks(dst *image.NRGBA, r image.Rectangle) {
	x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
	t := l.tick
	line := func(ax, ay, bx, by int) {
		utils.DrawLine(dst, image.Pt(ax, ay), image.Pt(bx, by), GuideColor, guideThickness)
	}
	line(max(x0-t, 0), y0, x0, y0)
	line(x0, max(y0-t, 0), x0, y0)
	line(x1, y0, min(x1+t, l.paperW), y0)
	line(x1, max(y0-t, 0), x1, y0)
	line(max(x0-t, 0), y1, x0, y1)
	line(x0, y1, x0, min(y1+t, l.paperH))
	line(x1, y1, min(x1+t, l.paperW), y1)
	line(x1, y1, x1, min(y1+t, l.paperH))
}

// FooterLines returns the instruction text printed under the grid.
func (l *Layout) FooterLines() []string {
	return []string{
		fmt.Sprintf("%dx Passport Photos (%gx%gmm) - Cut along guides",
			l.cfg.Cols*l.cfg.Rows, l.photo.PhotoWidthMM, l.photo.PhotoHeightMM),
		fmt.Sprintf("Print at %d DPI", l.photo.DPI),
	}
}

func (l *Layout) drawFooter(dst *image.NRGBA) {
	lines := l.FooterLines()
	bottom := l.paperH - l.photo.MMToPixels(4)
	gap := l.photo.MMToPixels(2)
	scale := max(1, l.photo.DPI/150)

	for i := len(lines) - 1; i >= 0; i-- {
		text := renderText(lines[i], FooterColor, scale, l.paperW)
		b := text.Bounds()
		x := (l.paperW - b.Dx()) / 2
		top := bottom - b.Dy()
		draw.Draw(dst, image.Rect(x, top, x+b.Dx(), bottom), text, image.Point{}, draw.Over)
		bottom = top - gap
	}
}
