package utils

import (
	"image"
	"math"
)

// ChannelStats holds per-channel mean and population standard deviation of a
// pixel sample, in R, G, B order.
type ChannelStats struct {
	Mean  [3]float64 `json:"mean"`
	Std   [3]float64 `json:"std"`
	Count int        `json:"count"`
}

// Values is the number of sampled channel values (pixels x 3).
func (s ChannelStats) Values() int { return s.Count * 3 }

// MinMean returns the smallest channel mean.
func (s ChannelStats) MinMean() float64 {
	return math.Min(s.Mean[0], math.Min(s.Mean[1], s.Mean[2]))
}

// MaxStd returns the largest channel standard deviation.
func (s ChannelStats) MaxStd() float64 {
	return math.Max(s.Std[0], math.Max(s.Std[1], s.Std[2]))
}

type channelAccumulator struct {
	sum, sq [3]float64
	n       int
}

func (a *channelAccumulator) add(r, g, b uint8) {
	for i, v := range [3]float64{float64(r), float64(g), float64(b)} {
		a.sum[i] += v
		a.sq[i] += v * v
	}
	a.n++
}

func (a *channelAccumulator) stats() ChannelStats {
	s := ChannelStats{Count: a.n}
	if a.n == 0 {
		return s
	}
	n := float64(a.n)
	for i := range 3 {
		mean := a.sum[i] / n
		variance := a.sq[i]/n - mean*mean
		s.Mean[i] = mean
		s.Std[i] = math.Sqrt(math.Max(variance, 0))
	}
	return s
}

// SampleStats computes channel statistics over every pixel of img for which
// include returns true. Coordinates passed to include are zero-based.
func SampleStats(img image.Image, include func(x, y int) bool) ChannelStats {
	src := ToNRGBA(img)
	var acc channelAccumulator
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !include(x, y) {
				continue
			}
			i := y*src.Stride + x*4
			acc.add(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
		}
	}
	return acc.stats()
}

// SampleRects computes channel statistics over the union of rects, counting
// overlapping pixels once per rectangle.
func SampleRects(img image.Image, rects []image.Rectangle) ChannelStats {
	src := ToNRGBA(img)
	var acc channelAccumulator
	for _, r := range rects {
		r = r.Intersect(src.Rect)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				i := y*src.Stride + x*4
				acc.add(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
			}
		}
	}
	return acc.stats()
}

// GrayMean returns the mean gray level of pixels selected by include and the
// number of pixels sampled.
func GrayMean(g *image.Gray, include func(x, y int) bool) (float64, int) {
	b := g.Bounds()
	var sum float64
	n := 0
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if include(x, y) {
				sum += float64(g.Pix[y*g.Stride+x])
				n++
			}
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// LaplacianVariance returns the variance of the 4-neighbour Laplacian of the
// gray image restricted to rect. Borders are reflected without repeating the
// edge pixel. An empty region yields 0.
func LaplacianVariance(g *image.Gray, rect image.Rectangle) float64 {
	rect = rect.Intersect(g.Bounds())
	w, h := rect.Dx(), rect.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	at := func(x, y int) float64 {
		x, y = reflect101(x, w), reflect101(y, h)
		return float64(g.Pix[(rect.Min.Y+y-g.Rect.Min.Y)*g.Stride+(rect.Min.X+x-g.Rect.Min.X)])
	}
	var sum, sq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += lap
			sq += lap * lap
		}
	}
	n := float64(w * h)
	mean := sum / n
	return math.Max(sq/n-mean*mean, 0)
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
