package printlayout

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrUnsupportedFormat is returned by Encode for unknown output formats.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Output formats.
const (
	FormatJPEG = "jpeg"
	FormatPDF  = "pdf"
)

// JPEG renders the sheet and encodes it at the configured quality.
func (l *Layout) JPEG(photo image.Image) ([]byte, Info, error) {
	sheet, info, err := l.Render(photo)
	if err != nil {
		return nil, Info{}, err
	}
	data, err := utils.EncodeJPEG(sheet, l.cfg.JPEGQuality)
	if err != nil {
		return nil, Info{}, fmt.Errorf("print layout: encode jpeg: %w", err)
	}
	return data, info, nil
}

// PDF renders the sheet as a single-page PDF whose page has the physical
// paper size, so printing at 100% reproduces the photo dimensions.
func (l *Layout) PDF(photo image.Image) ([]byte, Info, error) {
	jpg, info, err := l.JPEG(photo)
	if err != nil {
		return nil, Info{}, err
	}
	imp, err := api.Import(fmt.Sprintf("dimensions:%g %g, position:full", l.cfg.PaperWidthMM, l.cfg.PaperHeightMM), types.MILLIMETRES)
	if err != nil {
		return nil, Info{}, fmt.Errorf("print layout: pdf import config: %w", err)
	}
	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(jpg)}, imp, nil); err != nil {
		return nil, Info{}, fmt.Errorf("print layout: build pdf: %w", err)
	}
	return buf.Bytes(), info, nil
}

// Encode renders the sheet in format, returning the bytes and content type.
func (l *Layout) Encode(photo image.Image, format string) ([]byte, string, Info, error) {
	switch format {
	case "", FormatJPEG, "jpg":
		data, info, err := l.JPEG(photo)
		return data, "image/jpeg", info, err
	case FormatPDF:
		data, info, err := l.PDF(photo)
		return data, "application/pdf", info, err
	default:
		return nil, "", Info{}, fmt.Errorf("print layout: %w %q", ErrUnsupportedFormat, format)
	}
}
