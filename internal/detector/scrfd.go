package detector

import (
	"fmt"
	"image"
	"image/color"

	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/disintegration/imaging"
)

var (
	featureStrides = []int{8, 16, 32}
	black          = color.NRGBA{A: 255}
)

const anchorsPerCell = 2

// Candidate is one decoded detection in original image coordinates.
type Candidate struct {
	Box   utils.Box
	Kps   []utils.Point
	Score float64
}

// letterbox scales img so that its longer side equals size and pastes it at
// the top-left of a black size x size canvas. It returns the canvas and the
// scale applied.
func letterbox(img image.Image, size int) (*image.NRGBA, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := float64(size) / float64(max(w, h))
	nw := max(int(float64(w)*scale), 1)
	nh := max(int(float64(h)*scale), 1)

	resized := imaging.Resize(img, nw, nh, imaging.Linear)
	canvas := imaging.New(size, size, black)
	return imaging.Paste(canvas, resized, image.Pt(0, 0)), float64(nh) / float64(h)
}

// decodeSCRFD turns the raw SCRFD outputs (scores, boxes and optionally
// keypoints per stride) into candidates above threshold. Boxes are clamped
// to the w x h image.
func decodeSCRFD(outputs [][]float32, inputSize int, scale, threshold float64, w, h int) ([]Candidate, error) {
	levels := len(featureStrides)
	if len(outputs) != 2*levels && len(outputs) != 3*levels {
		return nil, fmt.Errorf("unexpected SCRFD output count %d", len(outputs))
	}
	withKps := len(outputs) == 3*levels

	var out []Candidate
	for level, stride := range featureStrides {
		cols := inputSize / stride
		rows := inputSize / stride
		scores := outputs[level]
		boxes := outputs[level+levels]
		n := rows * cols * anchorsPerCell
		if len(scores) < n || len(boxes) < n*4 {
			return nil, fmt.Errorf("stride %d: output too small (%d scores, %d boxes)", stride, len(scores), len(boxes))
		}
		var kps []float32
		if withKps {
			kps = outputs[level+2*levels]
			if len(kps) < n*10 {
				withKps = false
			}
		}

		s := float64(stride)
		for idx := range n {
			score := float64(scores[idx])
			if score < threshold {
				continue
			}
			cell := idx / anchorsPerCell
			cx := float64(cell%cols) * s
			cy := float64(cell/cols) * s

			d := boxes[idx*4 : idx*4+4]
			box := utils.NewBox(
				clampF((cx-float64(d[0])*s)/scale, 0, float64(w)),
				clampF((cy-float64(d[1])*s)/scale, 0, float64(h)),
				clampF((cx+float64(d[2])*s)/scale, 0, float64(w)),
				clampF((cy+float64(d[3])*s)/scale, 0, float64(h)),
			)
			c := Candidate{Box: box, Score: score}
			if withKps {
				k := kps[idx*10 : idx*10+10]
				for i := 0; i < 10; i += 2 {
					c.Kps = append(c.Kps, utils.Point{
						X: (cx + float64(k[i])*s) / scale,
						Y: (cy + float64(k[i+1])*s) / scale,
					})
				}
			}
			out = append(out, c)
		}
	}
	return out, nil
}

func clampF(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
