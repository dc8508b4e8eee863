// Package detector finds faces with an SCRFD model and refines each face with
// a 106-point 2D landmark model, both run through ONNX Runtime.
package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/onnx"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// runner is the part of an ONNX session the detector needs.
type runner interface {
	Run(t onnx.Tensor) ([]onnx.Output, error)
	Close() error
}

// Detector implements face.Detector.
type Detector struct {
	config    Config
	det       runner
	landmarks runner
	mu        sync.RWMutex
}

var _ face.Detector = (*Detector)(nil)

// NewDetector loads the detection and, when configured, landmark models.
func NewDetector(config Config) (*Detector, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	slog.Debug("Initializing face detector",
		"detection_model", config.DetectionModel,
		"landmark_model", config.LandmarkModel,
		"input_size", config.InputSize,
		"gpu_enabled", config.Session.GPU.UseGPU)

	det, err := onnx.NewSession(config.DetectionModel, config.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection model: %w", err)
	}

	var lmk runner
	if config.LandmarkModel != "" {
		s, err := onnx.NewSession(config.LandmarkModel, config.Session)
		if err != nil {
			_ = det.Close()
			return nil, fmt.Errorf("failed to load landmark model: %w", err)
		}
		lmk = s
	}

	slog.Debug("Face detector initialized successfully")
	return newWithRunners(config, det, lmk), nil
}

func newWithRunners(config Config, det, lmk runner) *Detector {
	return &Detector{config: config, det: det, landmarks: lmk}
}

// Close releases the model sessions.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.det != nil {
		errs = append(errs, d.det.Close())
		d.det = nil
	}
	if d.landmarks != nil {
		errs = append(errs, d.landmarks.Close())
		d.landmarks = nil
	}
	return errors.Join(errs...)
}

// GetConfig returns a copy of the detector's configuration.
func (d *Detector) GetConfig() Config {
	return d.config
}

// Detect returns every face scoring above the configured threshold, highest
// score first.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]face.DetectedFace, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.det == nil {
		return nil, errors.New("detector is closed")
	}

	start := time.Now()
	src := utils.ToNRGBA(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("input image is empty")
	}

	boxed, scale := letterbox(src, d.config.InputSize)
	tensor, err := onnx.ImageToTensor(boxed, onnx.InsightFace)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	outs, err := d.det.Run(tensor)
	tensor.Release()
	if err != nil {
		return nil, fmt.Errorf("detection inference failed: %w", err)
	}
	raw := make([][]float32, len(outs))
	for i, o := range outs {
		raw[i] = o.Data
	}

	cands, err := decodeSCRFD(raw, d.config.InputSize, scale, d.config.ScoreThreshold, w, h)
	if err != nil {
		return nil, err
	}
	cands = NonMaxSuppression(cands, d.config.NMSThreshold)
	if d.config.MaxFaces > 0 && len(cands) > d.config.MaxFaces {
		cands = cands[:d.config.MaxFaces]
	}

	faces := make([]face.DetectedFace, 0, len(cands))
	for _, c := range cands {
		f := face.DetectedFace{BBox: c.Box, Score: c.Score}
		if d.landmarks != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pts, err := d.detectLandmarks(src, c.Box)
			if err != nil {
				return nil, err
			}
			f.Landmarks = pts
			if d.config.EstimatePose {
				if pose, err := EstimatePose(pts, d.config.Landmarks); err == nil {
					f.Pose = pose
				} else {
					slog.Debug("Pose estimate unavailable", "error", err)
				}
			}
		}
		faces = append(faces, f)
	}

	slog.Debug("Face detection finished",
		"faces", len(faces),
		"candidates", len(cands),
		"duration_ms", time.Since(start).Milliseconds())
	return faces, nil
}

func (d *Detector) detectLandmarks(img *image.NRGBA, box utils.Box) ([]utils.Point, error) {
	a := newAlignment(box, d.config.LandmarkInputSize, d.config.LandmarkExpand)
	tensor, err := onnx.ImageToTensor(a.crop(img), onnx.Normalization{
		Scale: 1,
		Std:   [3]float32{1, 1, 1},
	})
	if err != nil {
		return nil, fmt.Errorf("landmark preprocessing failed: %w", err)
	}
	outs, err := d.landmarks.Run(tensor)
	tensor.Release()
	if err != nil {
		return nil, fmt.Errorf("landmark inference failed: %w", err)
	}
	if len(outs) == 0 || len(outs[0].Data) < LandmarkCount*2 {
		return nil, fmt.Errorf("unexpected landmark output")
	}
	return a.decode(outs[0].Data[:LandmarkCount*2]), nil
}

// GetModelInfo returns information about the loaded models.
func (d *Detector) GetModelInfo() map[string]any {
	return map[string]any{
		"detection_model":     d.config.DetectionModel,
		"landmark_model":      d.config.LandmarkModel,
		"input_size":          d.config.InputSize,
		"score_threshold":     d.config.ScoreThreshold,
		"nms_threshold":       d.config.NMSThreshold,
		"landmark_input_size": d.config.LandmarkInputSize,
		"estimate_pose":       d.config.EstimatePose,
		"num_threads":         d.config.Session.NumThreads,
		"gpu": map[string]any{
			"enabled":   d.config.Session.GPU.UseGPU,
			"device_id": d.config.Session.GPU.DeviceID,
		},
	}
}
