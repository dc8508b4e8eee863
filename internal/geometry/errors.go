// Package geometry derives head geometry from a detected face, computes the
// ICAO crop rectangle and maps landmarks into the cropped output space.
package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFace is returned when no face was supplied.
	ErrNoFace = errors.New("no face detected")
	// ErrMultipleFaces is returned when more than one face was supplied.
	ErrMultipleFaces = errors.New("multiple faces detected")
	// ErrMissingGeometry is returned when a face has neither a usable box nor landmarks.
	ErrMissingGeometry = errors.New("missing face geometry")
	// ErrInvalidGeometry is returned when chin does not lie below crown after fallback.
	ErrInvalidGeometry = errors.New("invalid face geometry")
	// ErrDegenerateCrop is returned when the clipped crop has no area.
	ErrDegenerateCrop = errors.New("degenerate crop")
	// ErrDegenerateTransform is returned when a transform is built from a zero-sized crop.
	ErrDegenerateTransform = errors.New("degenerate coordinate transform")
)

// Error records which geometry operation failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("geometry %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func opErr(op string, err error, format string, args ...any) error {
	if format != "" {
		err = fmt.Errorf("%w: "+format, append([]any{err}, args...)...)
	}
	return &Error{Op: op, Err: err}
}
