package utils

import (
	"image"
	"image/color"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskFromRect(t *testing.T) {
	m := MaskFromRect(10, 8, image.Rect(2, 3, 5, 20))
	assert.Equal(t, 3*5, m.Count())
	assert.True(t, m.At(2, 3))
	assert.False(t, m.At(5, 3))
	assert.False(t, m.At(-1, 0))

	top, ok := m.TopRow()
	require.True(t, ok)
	assert.Equal(t, 3, top)

	_, ok = NewMask(4, 4).TopRow()
	assert.False(t, ok)
}

func TestMask_DilateRectangularKernel(t *testing.T) {
	m := NewMask(30, 30)
	m.Set(15, 15, true)

	d := m.Dilate(10, 10, 1)
	assert.Equal(t, 100, d.Count())
	// Anchor at (5,5): a single pixel grows 4 to the left/top and 5 to the right/bottom.
	assert.True(t, d.At(11, 11))
	assert.False(t, d.At(10, 10))
	assert.True(t, d.At(20, 20))
	assert.False(t, d.At(21, 21))
}

func TestMask_DilateIterations(t *testing.T) {
	m := NewMask(20, 20)
	m.Set(10, 10, true)
	assert.Equal(t, 49, m.Dilate(3, 3, 3).Count())
}

func TestMask_CloseOpen(t *testing.T) {
	m := MaskFromRect(20, 20, image.Rect(5, 5, 15, 15))
	m.Set(10, 10, false)
	closed := m.Close(3, 3)
	assert.True(t, closed.At(10, 10))

	speck := MaskFromRect(20, 20, image.Rect(5, 5, 15, 15))
	speck.Set(1, 1, true)
	opened := speck.Open(3, 3)
	assert.False(t, opened.At(1, 1))
	assert.True(t, opened.At(10, 10))
}

func TestMask_FillHoles(t *testing.T) {
	m := NewMask(9, 9)
	for i := 2; i <= 6; i++ {
		m.Set(i, 2, true)
		m.Set(i, 6, true)
		m.Set(2, i, true)
		m.Set(6, i, true)
	}
	filled := m.FillHoles()
	assert.True(t, filled.At(4, 4))
	assert.Equal(t, 25, filled.Count())
	assert.False(t, filled.At(0, 0))

	corner := NewMask(3, 3)
	corner.Set(0, 0, true)
	assert.Equal(t, 1, corner.FillHoles().Count())
}

func TestMask_ResizeNearestAndApply(t *testing.T) {
	m := MaskFromRect(2, 2, image.Rect(0, 0, 1, 2))
	r := m.ResizeNearest(4, 4)
	assert.Equal(t, 8, r.Count())
	assert.True(t, r.At(1, 3))
	assert.False(t, r.At(2, 0))

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = 10
	}
	out := r.Apply(img, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	assert.Equal(t, uint8(10), out.NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(255), out.NRGBAAt(3, 3).R)
	assert.Equal(t, uint8(10), img.NRGBAAt(3, 3).R, "input must not be modified")
}

func TestMask_DilateNeverShrinks(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("dilation is a superset", prop.ForAll(
		func(x, y, k int) bool {
			m := NewMask(25, 25)
			m.Set(x, y, true)
			d := m.Dilate(k, k, 1)
			return d.At(x, y) && d.Count() >= m.Count()
		},
		gen.IntRange(0, 24), gen.IntRange(0, 24), gen.IntRange(1, 7),
	))

	properties.TestingRun(t)
}
