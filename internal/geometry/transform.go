package geometry

import (
	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// Transform maps original image coordinates into the cropped and resized
// output: p' = (p - Offset) * Scale.
type Transform struct {
	Offset utils.Point `json:"offset"`
	ScaleX float64     `json:"scale_x"`
	ScaleY float64     `json:"scale_y"`
}

// NewTransform builds the transform for a crop resized to finalW x finalH.
func NewTransform(crop CropBox, finalW, finalH int) (Transform, error) {
	cw, ch := crop.Width(), crop.Height()
	if cw <= 0 || ch <= 0 {
		return Transform{}, opErr("transform", ErrDegenerateTransform, "crop size %dx%d", cw, ch)
	}
	if finalW <= 0 || finalH <= 0 {
		return Transform{}, opErr("transform", ErrDegenerateTransform, "output size %dx%d", finalW, finalH)
	}
	return Transform{
		Offset: utils.Point{X: float64(crop.X1), Y: float64(crop.Y1)},
		ScaleX: float64(finalW) / float64(cw),
		ScaleY: float64(finalH) / float64(ch),
	}, nil
}

// Apply maps p into output space.
func (t Transform) Apply(p utils.Point) utils.Point {
	return utils.ScalePoint(utils.OffsetPoint(p, -t.Offset.X, -t.Offset.Y), t.ScaleX, t.ScaleY)
}

// Invert maps an output-space point back to original image space.
func (t Transform) Invert(p utils.Point) utils.Point {
	return utils.OffsetPoint(utils.ScalePoint(p, 1/t.ScaleX, 1/t.ScaleY), t.Offset.X, t.Offset.Y)
}

// ApplyAll maps every point of pts.
func (t Transform) ApplyAll(pts []utils.Point) []utils.Point {
	out := make([]utils.Point, len(pts))
	for i, p := range pts {
		out[i] = t.Apply(p)
	}
	return out
}

// TransformFace re-expresses f in output space. The bounding box becomes the
// envelope of the transformed landmarks; without landmarks the original box
// corners are mapped instead. Pose is carried over.
func TransformFace(f face.DetectedFace, crop CropBox, finalW, finalH int) (face.DetectedFace, Transform, error) {
	t, err := NewTransform(crop, finalW, finalH)
	if err != nil {
		return face.DetectedFace{}, Transform{}, err
	}

	out := face.DetectedFace{Score: f.Score}
	if f.Pose != nil {
		pose := *f.Pose
		out.Pose = &pose
	}
	if len(f.Landmarks) > 0 {
		out.Landmarks = t.ApplyAll(f.Landmarks)
		out.BBox = utils.BoundingBox(out.Landmarks)
	} else {
		a := t.Apply(utils.Point{X: f.BBox.MinX, Y: f.BBox.MinY})
		b := t.Apply(utils.Point{X: f.BBox.MaxX, Y: f.BBox.MaxY})
		out.BBox = utils.NewBox(a.X, a.Y, b.X, b.Y)
	}
	return out, t, nil
}
