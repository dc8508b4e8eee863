package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// ToNRGBA returns img as a zero-origin *image.NRGBA. The input is copied
// unless it already has that exact form.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Bounds().Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// CloneNRGBA returns a zero-origin copy of img that callers may mutate.
func CloneNRGBA(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// CropImageRect crops an image to the given rectangle.
func CropImageRect(img image.Image, rect image.Rectangle) image.Image {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return imaging.New(0, 0, color.Transparent)
	}
	return imaging.Crop(img, rect)
}

// ResizeExact resamples img to width x height with Lanczos filtering.
func ResizeExact(img image.Image, width, height int) (*image.NRGBA, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is nil")}
	}
	if width <= 0 || height <= 0 {
		return nil, &ImageProcessingError{Operation: "resize", Err: fmt.Errorf("invalid target size %dx%d", width, height)}
	}
	if img.Bounds().Empty() {
		return nil, &ImageProcessingError{Operation: "resize", Err: errors.New("input image is empty")}
	}
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

// DownscaleToMax shrinks img so its longer side is at most maxSide pixels and
// returns the applied scale factor (1 when no resize happened).
func DownscaleToMax(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxSide <= 0 || longest <= maxSide {
		return img, 1
	}
	scale := float64(maxSide) / float64(longest)
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))
	return imaging.Resize(img, w, h, imaging.Linear), scale
}

// GrayValue converts an 8-bit RGB triple to luma using BT.601 weights.
func GrayValue(r, g, b uint8) uint8 {
	v := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return uint8(math.Min(255, math.Round(v)))
}

// Grayscale converts img to a zero-origin *image.Gray with BT.601 weights.
func Grayscale(img image.Image) *image.Gray {
	src := ToNRGBA(img)
	b := src.Bounds()
	dst := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		for x := 0; x < b.Dx(); x++ {
			i := x * 4
			dst.Pix[y*dst.Stride+x] = GrayValue(row[i], row[i+1], row[i+2])
		}
	}
	return dst
}

// FillWhite returns an opaque white image of the given size.
func FillWhite(width, height int) *image.NRGBA {
	return imaging.New(width, height, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
}
