package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
)

func TestSampleStats(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 0, B: 50, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 200, G: 0, B: 50, A: 255})

	s := SampleStats(img, func(x, y int) bool { return true })
	assert.Equal(t, 2, s.Count)
	assert.Equal(t, 6, s.Values())
	assert.InDelta(t, 150, s.Mean[0], 1e-9)
	assert.InDelta(t, 50, s.Std[0], 1e-9)
	assert.InDelta(t, 0, s.Std[1], 1e-9)
	assert.InDelta(t, 0, s.MinMean(), 1e-9)
	assert.InDelta(t, 50, s.MaxStd(), 1e-9)

	none := SampleStats(img, func(x, y int) bool { return false })
	assert.Zero(t, none.Count)
}

func TestSampleRects(t *testing.T) {
	img := imaging.New(10, 10, color.NRGBA{R: 240, G: 240, B: 240, A: 255})
	s := SampleRects(img, []image.Rectangle{image.Rect(0, 0, 2, 2), image.Rect(8, 8, 20, 20)})
	assert.Equal(t, 8, s.Count)
	assert.InDelta(t, 240, s.Mean[2], 1e-9)
}

func TestGrayValueAndGrayscale(t *testing.T) {
	assert.Equal(t, uint8(255), GrayValue(255, 255, 255))
	assert.Equal(t, uint8(76), GrayValue(255, 0, 0))
	assert.Equal(t, uint8(0), GrayValue(0, 0, 0))

	g := Grayscale(imaging.New(3, 2, color.NRGBA{R: 0, G: 255, B: 0, A: 255}))
	assert.Equal(t, image.Rect(0, 0, 3, 2), g.Bounds())
	assert.Equal(t, uint8(150), g.GrayAt(2, 1).Y)

	mean, n := GrayMean(g, func(x, y int) bool { return x == 0 })
	assert.Equal(t, 2, n)
	assert.InDelta(t, 150, mean, 1e-9)
}

func TestLaplacianVariance(t *testing.T) {
	flat := image.NewGray(image.Rect(0, 0, 20, 20))
	for i := range flat.Pix {
		flat.Pix[i] = 128
	}
	assert.InDelta(t, 0, LaplacianVariance(flat, flat.Bounds()), 1e-9)

	checker := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if (x+y)%2 == 0 {
				checker.Pix[y*20+x] = 255
			}
		}
	}
	assert.Greater(t, LaplacianVariance(checker, checker.Bounds()), 1000.0)
	assert.Zero(t, LaplacianVariance(checker, image.Rect(30, 30, 40, 40)))
}

func TestReflect101(t *testing.T) {
	assert.Equal(t, 1, reflect101(-1, 5))
	assert.Equal(t, 3, reflect101(5, 5))
	assert.Equal(t, 0, reflect101(-3, 1))
	assert.Equal(t, 2, reflect101(2, 5))
}
