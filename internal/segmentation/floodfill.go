package segmentation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/photocheck/internal/background"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/disintegration/imaging"
)

var _ background.FaceAwareSegmenter = (*FloodFill)(nil)

// FloodFill separates a subject from a roughly uniform backdrop without a
// model: the background is grown from the four corners through neighbouring
// pixels whose gray levels differ by at most the configured tolerance. The
// fill never enters edge pixels or the padded face rectangle.
type FloodFill struct {
	cfg Config
}

// NewFloodFill creates the model-free segmenter.
func NewFloodFill(cfg Config) *FloodFill {
	return &FloodFill{cfg: cfg}
}

// Segment returns a mask aligned with img, true on subject pixels.
func (f *FloodFill) Segment(ctx context.Context, img image.Image) (*utils.Mask, error) {
	return f.SegmentFace(ctx, img, image.Rectangle{})
}

// SegmentFace is Segment with a face rectangle (in img coordinates) that is
// always kept as subject after padding by FacePadding on every side.
func (f *FloodFill) SegmentFace(ctx context.Context, img image.Image, faceRect image.Rectangle) (*utils.Mask, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}

	src := utils.ToNRGBA(img)
	gray := utils.Grayscale(src)

	edgeSrc := gray
	if f.cfg.BlurSigma > 0 {
		edgeSrc = utils.Grayscale(imaging.Blur(src, f.cfg.BlurSigma))
	}
	blocked := utils.NewMask(w, h)
	if f.cfg.EdgeThreshold > 0 {
		blocked = edgeMask(edgeSrc, f.cfg.EdgeThreshold)
	}
	protected := padRect(faceRect.Sub(b.Min), f.cfg.FacePadding).Intersect(image.Rect(0, 0, w, h))
	for y := protected.Min.Y; y < protected.Max.Y; y++ {
		for x := protected.Min.X; x < protected.Max.X; x++ {
			blocked.Bits[y*w+x] = true
		}
	}

	corners := []image.Point{{0, 0}, {0, h - 1}, {w - 1, 0}, {w - 1, h - 1}}
	seeds := make([]image.Point, 0, len(corners))
	for _, c := range corners {
		if !c.In(protected) {
			seeds = append(seeds, c)
		}
	}
	bg := floodFloating(gray, seeds, f.cfg.FloodTolerance, blocked)
	if k := f.cfg.MorphKernel; k > 1 {
		bg = bg.Close(k, k).Open(k, k)
	}
	subject := bg.Invert()
	for y := protected.Min.Y; y < protected.Max.Y; y++ {
		for x := protected.Min.X; x < protected.Max.X; x++ {
			subject.Bits[y*w+x] = true
		}
	}

	if f.cfg.DebugDir != "" {
		if err := dumpMask(f.cfg.DebugDir, "floodfill", subject); err != nil {
			slog.Warn("Failed to write debug mask", "error", err)
		}
	}

	coverage := float64(subject.Count()) / float64(w*h)
	slog.Debug("Flood fill segmentation finished",
		"subject_pixels", subject.Count(),
		"coverage", coverage,
		"protected", protected)
	if coverage < f.cfg.MinMaskCoverage {
		return nil, fmt.Errorf("%w: %.1f%%", ErrLowCoverage, coverage*100)
	}
	return subject, nil
}

// Close is a no-op.
func (f *FloodFill) Close() error { return nil }

// padRect grows r by frac of its width and height on each side.
func padRect(r image.Rectangle, frac float64) image.Rectangle {
	if r.Empty() || frac <= 0 {
		return r
	}
	dx := int(float64(r.Dx()) * frac)
	dy := int(float64(r.Dy()) * frac)
	return image.Rect(r.Min.X-dx, r.Min.Y-dy, r.Max.X+dx, r.Max.Y+dy)
}

// edgeMask marks pixels whose Sobel magnitude |gx|+|gy| exceeds threshold.
// Borders are clamped.
func edgeMask(g *image.Gray, threshold int) *utils.Mask {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	m := utils.NewMask(w, h)
	at := func(x, y int) int {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return int(g.Pix[y*g.Stride+x])
	}
	for y := range h {
		for x := range w {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			if abs(gx)+abs(gy) > threshold {
				m.Bits[y*w+x] = true
			}
		}
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// floodFloating is a 4-connected flood fill with a floating range: a
// neighbour joins the region when its value is within tol of the pixel it was
// reached from and it is not blocked. Seeds ignore blocked; blocked may be nil.
func floodFloating(g *image.Gray, seeds []image.Point, tol int, blocked *utils.Mask) *utils.Mask {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	region := utils.NewMask(w, h)
	at := func(x, y int) int { return int(g.Pix[y*g.Stride+x]) }

	stack := make([]image.Point, 0, 64)
	for _, s := range seeds {
		if s.X < 0 || s.Y < 0 || s.X >= w || s.Y >= h || region.Bits[s.Y*w+s.X] {
			continue
		}
		region.Bits[s.Y*w+s.X] = true
		stack = append(stack, s)
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		v := at(p.X, p.Y)
		for _, d := range [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || ny < 0 || nx >= w || ny >= h || region.Bits[ny*w+nx] {
				continue
			}
			if blocked != nil && blocked.Bits[ny*w+nx] {
				continue
			}
			if abs(at(nx, ny)-v) <= tol {
				region.Bits[ny*w+nx] = true
				stack = append(stack, image.Pt(nx, ny))
			}
		}
	}
	return region
}
