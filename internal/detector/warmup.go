package detector

import (
	"context"
	"image"
)

// Warmup runs a number of forward passes on a blank image to reduce
// first-request latency.
func (d *Detector) Warmup(ctx context.Context, iterations int) error {
	if iterations <= 0 {
		return nil
	}
	img := image.NewNRGBA(image.Rect(0, 0, d.config.InputSize, d.config.InputSize))
	for range iterations {
		if _, err := d.Detect(ctx, img); err != nil {
			return err
		}
	}
	return nil
}
