package geometry

import (
	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// Source tells where a FaceGeometry came from.
type Source string

const (
	SourceLandmarks Source = "landmarks"
	SourceBBox      Source = "bbox"
)

// FaceGeometry is the vertical head extent in original image pixels.
type FaceGeometry struct {
	CrownY float64 `json:"crown_y"`
	ChinY  float64 `json:"chin_y"`
	Source Source  `json:"source"`
}

// HeadHeight returns ChinY - CrownY.
func (g FaceGeometry) HeadHeight() float64 { return g.ChinY - g.CrownY }

// Extract resolves the crown and chin of the single face in faces.
//
// With a full landmark set the crown is projected upward from the eye line by
// the eye-to-chin distance times cfg.CrownMultiplier. The bbox edges are used
// when landmarks are missing or the projection does not land above the chin.
func Extract(faces []face.DetectedFace, cfg icao.Config) (FaceGeometry, error) {
	switch {
	case len(faces) == 0:
		return FaceGeometry{}, opErr("extract", ErrNoFace, "")
	case len(faces) > 1:
		return FaceGeometry{}, opErr("extract", ErrMultipleFaces, "%d faces", len(faces))
	}
	f := &faces[0]

	if g, ok := fromLandmarks(f, cfg); ok {
		return g, nil
	}

	if !f.BBox.Valid() {
		if f.BBox == (utils.Box{}) {
			return FaceGeometry{}, opErr("extract", ErrMissingGeometry, "no landmarks and empty bounding box")
		}
		return FaceGeometry{}, opErr("extract", ErrInvalidGeometry,
			"chin %.1f is not below crown %.1f", f.BBox.MaxY, f.BBox.MinY)
	}
	return FaceGeometry{CrownY: f.BBox.MinY, ChinY: f.BBox.MaxY, Source: SourceBBox}, nil
}

func fromLandmarks(f *face.DetectedFace, cfg icao.Config) (FaceGeometry, bool) {
	if !f.HasLandmarks(cfg.Landmarks) {
		return FaceGeometry{}, false
	}
	chin, err := f.Chin(cfg.Landmarks)
	if err != nil {
		return FaceGeometry{}, false
	}
	eyes, err := f.EyePoints(cfg.Landmarks)
	if err != nil {
		return FaceGeometry{}, false
	}
	eyeY := utils.MeanY(eyes)
	crown := eyeY - (chin.Y-eyeY)*cfg.CrownMultiplier
	if crown >= chin.Y {
		return FaceGeometry{}, false
	}
	return FaceGeometry{CrownY: crown, ChinY: chin.Y, Source: SourceLandmarks}, true
}
