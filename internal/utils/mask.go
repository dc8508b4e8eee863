package utils

import (
	"image"
	"image/color"
)

// Mask is a boolean grid aligned with an image. True marks subject
// (foreground) pixels.
type Mask struct {
	W, H int
	Bits []bool
}

// NewMask returns an all-false mask.
func NewMask(w, h int) *Mask {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Mask{W: w, H: h, Bits: make([]bool, w*h)}
}

// MaskFromRect returns a w x h mask with rect (clipped) set to true.
func MaskFromRect(w, h int, rect image.Rectangle) *Mask {
	m := NewMask(w, h)
	rect = rect.Intersect(image.Rect(0, 0, w, h))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			m.Bits[y*w+x] = true
		}
	}
	return m
}

// MaskFromGray thresholds a grayscale image: values above threshold are true.
func MaskFromGray(g *image.Gray, threshold uint8) *Mask {
	b := g.Bounds()
	m := NewMask(b.Dx(), b.Dy())
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			m.Bits[y*m.W+x] = g.GrayAt(b.Min.X+x, b.Min.Y+y).Y > threshold
		}
	}
	return m
}

// At reports the value at (x, y); out-of-range coordinates are false.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.Bits[y*m.W+x]
}

// Set assigns the value at (x, y); out-of-range coordinates are ignored.
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return
	}
	m.Bits[y*m.W+x] = v
}

// Count returns the number of true pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Bits {
		if v {
			n++
		}
	}
	return n
}

// Any reports whether at least one pixel is true.
func (m *Mask) Any() bool {
	if m == nil {
		return false
	}
	for _, v := range m.Bits {
		if v {
			return true
		}
	}
	return false
}

// TopRow returns the smallest row index containing a true pixel.
func (m *Mask) TopRow() (int, bool) {
	for y := 0; y < m.H; y++ {
		row := m.Bits[y*m.W : (y+1)*m.W]
		for _, v := range row {
			if v {
				return y, true
			}
		}
	}
	return 0, false
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	out := &Mask{W: m.W, H: m.H, Bits: make([]bool, len(m.Bits))}
	copy(out.Bits, m.Bits)
	return out
}

// Invert returns a new mask with every value flipped.
func (m *Mask) Invert() *Mask {
	out := NewMask(m.W, m.H)
	for i, v := range m.Bits {
		out.Bits[i] = !v
	}
	return out
}

// Or sets every pixel that is true in other. Sizes must match.
func (m *Mask) Or(other *Mask) {
	if other == nil || other.W != m.W || other.H != m.H {
		return
	}
	for i, v := range other.Bits {
		if v {
			m.Bits[i] = true
		}
	}
}

// Dilate grows true regions with a kw x kh rectangular kernel anchored at its
// center, repeated iterations times.
func (m *Mask) Dilate(kw, kh, iterations int) *Mask {
	out := m
	for range max(iterations, 1) {
		out = out.morph(kw, kh, true)
	}
	return out
}

// Erode shrinks true regions with a kw x kh rectangular kernel.
func (m *Mask) Erode(kw, kh, iterations int) *Mask {
	out := m
	for range max(iterations, 1) {
		out = out.morph(kw, kh, false)
	}
	return out
}

// Close performs dilation followed by erosion.
func (m *Mask) Close(kw, kh int) *Mask { return m.Dilate(kw, kh, 1).Erode(kw, kh, 1) }

// Open performs erosion followed by dilation.
func (m *Mask) Open(kw, kh int) *Mask { return m.Erode(kw, kh, 1).Dilate(kw, kh, 1) }

// morph applies a separable rectangular max (dilate) or min (erode) filter.
// Pixels outside the grid do not participate.
func (m *Mask) morph(kw, kh int, dilate bool) *Mask {
	if kw < 1 {
		kw = 1
	}
	if kh < 1 {
		kh = 1
	}
	ax, ay := kw/2, kh/2
	tmp := NewMask(m.W, m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			tmp.Bits[y*m.W+x] = m.window(x-ax, x+kw-1-ax, y, y, dilate)
		}
	}
	out := NewMask(m.W, m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			out.Bits[y*m.W+x] = tmp.window(x, x, y-ay, y+kh-1-ay, dilate)
		}
	}
	return out
}

func (m *Mask) window(x0, x1, y0, y1 int, dilate bool) bool {
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, m.W-1), min(y1, m.H-1)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			v := m.Bits[y*m.W+x]
			if dilate && v {
				return true
			}
			if !dilate && !v {
				return false
			}
		}
	}
	return !dilate
}

// FillHoles sets every false pixel that is not 4-connected to the top-left
// corner's false region. A mask whose corner is true is returned unchanged.
func (m *Mask) FillHoles() *Mask {
	out := m.Clone()
	if m.W == 0 || m.H == 0 || m.Bits[0] {
		return out
	}
	outside := FloodRegion(m.W, m.H, []image.Point{{}}, func(x, y int) bool { return !m.Bits[y*m.W+x] })
	for i := range out.Bits {
		if !outside.Bits[i] {
			out.Bits[i] = true
		}
	}
	return out
}

// FloodRegion returns the 4-connected region reachable from seeds through
// pixels for which accept returns true.
func FloodRegion(w, h int, seeds []image.Point, accept func(x, y int) bool) *Mask {
	region := NewMask(w, h)
	stack := make([]image.Point, 0, len(seeds))
	for _, s := range seeds {
		if s.X >= 0 && s.Y >= 0 && s.X < w && s.Y < h && accept(s.X, s.Y) {
			region.Bits[s.Y*w+s.X] = true
			stack = append(stack, s)
		}
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || ny < 0 || nx >= w || ny >= h || region.Bits[ny*w+nx] {
				continue
			}
			if accept(nx, ny) {
				region.Bits[ny*w+nx] = true
				stack = append(stack, image.Pt(nx, ny))
			}
		}
	}
	return region
}

// ResizeNearest resamples the mask to w x h with nearest-neighbour lookup.
func (m *Mask) ResizeNearest(w, h int) *Mask {
	out := NewMask(w, h)
	if m.W == 0 || m.H == 0 {
		return out
	}
	for y := 0; y < h; y++ {
		sy := min(y*m.H/h, m.H-1)
		for x := 0; x < w; x++ {
			sx := min(x*m.W/w, m.W-1)
			out.Bits[y*w+x] = m.Bits[sy*m.W+sx]
		}
	}
	return out
}

// Image renders the mask as a black and white grayscale image.
func (m *Mask) Image() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, m.W, m.H))
	for i, v := range m.Bits {
		if v {
			g.Pix[i] = 255
		}
	}
	return g
}

// Apply composites fg over a solid fill color using the mask.
func (m *Mask) Apply(fg image.Image, fill color.NRGBA) *image.NRGBA {
	src := ToNRGBA(fg)
	out := CloneNRGBA(src)
	for y := 0; y < min(m.H, out.Rect.Dy()); y++ {
		for x := 0; x < min(m.W, out.Rect.Dx()); x++ {
			if m.Bits[y*m.W+x] {
				continue
			}
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = fill.R, fill.G, fill.B, fill.A
		}
	}
	return out
}
