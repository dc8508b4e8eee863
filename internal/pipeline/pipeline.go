// Package pipeline orchestrates a photo check: face detection, ICAO
// preprocessing (crop, background, red-eye) and the compliance battery.
package pipeline

import (
	"errors"
	"fmt"
	"os"

	"github.com/MeKo-Tech/photocheck/internal/background"
	"github.com/MeKo-Tech/photocheck/internal/detector"
	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/models"
	"github.com/MeKo-Tech/photocheck/internal/segmentation"
)

// Config holds configuration for the check pipeline and its components.
type Config struct {
	ModelsDir        string              `mapstructure:"-" yaml:"-" json:"models_dir"`
	ICAO             icao.Config         `mapstructure:"-" yaml:"-" json:"icao"`
	Detector         detector.Config     `mapstructure:"-" yaml:"-" json:"detector"`
	Segmentation     segmentation.Config `mapstructure:"-" yaml:"-" json:"segmentation"`
	WarmupIterations int                 `mapstructure:"warmup_iterations" yaml:"warmup_iterations" json:"warmup_iterations" validate:"gte=0"`
	// KeepImages retains the processed image and mask on the Result.
	KeepImages bool `mapstructure:"keep_images" yaml:"keep_images" json:"keep_images"`

	Parallel ParallelConfig `mapstructure:"parallel" yaml:"parallel" json:"parallel"`
}

// DefaultConfig returns a default pipeline config with component defaults.
func DefaultConfig() Config {
	return Config{
		ModelsDir:    models.GetModelsDir(""),
		ICAO:         icao.DefaultConfig(),
		Detector:     detector.DefaultConfig(),
		Segmentation: segmentation.DefaultConfig(),
		KeepImages:   true,
		Parallel:     DefaultParallelConfig(),
	}
}

// DetectorFactory constructs the heavyweight face detector on first use.
type DetectorFactory func() (face.Detector, error)

// Builder constructs a Checker with fluent configuration.
type Builder struct {
	cfg         Config
	factory     DetectorFactory
	segmenter   background.Segmenter
	noSegmenter bool
}

// NewBuilder creates a new pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// NewBuilderFromConfig starts from an existing configuration.
func NewBuilderFromConfig(cfg Config) *Builder { return &Builder{cfg: cfg} }

// WithModelsDir sets the models directory and updates component model paths.
func (b *Builder) WithModelsDir(dir string) *Builder {
	if dir != "" {
		b.cfg.ModelsDir = dir
	}
	b.cfg.Detector.UpdateModelPaths(b.cfg.ModelsDir)
	b.cfg.Segmentation.UpdateModelPath(b.cfg.ModelsDir)
	return b
}

// WithICAO replaces the compliance rule set.
func (b *Builder) WithICAO(cfg icao.Config) *Builder {
	b.cfg.ICAO = cfg
	b.cfg.Detector.Landmarks = cfg.Landmarks
	return b
}

// WithDetectorConfig replaces the detector configuration.
func (b *Builder) WithDetectorConfig(cfg detector.Config) *Builder {
	b.cfg.Detector = cfg
	return b
}

// WithDetectorThresholds sets the detection score and NMS IoU thresholds.
func (b *Builder) WithDetectorThresholds(score, nms float64) *Builder {
	if score > 0 {
		b.cfg.Detector.ScoreThreshold = score
	}
	if nms > 0 {
		b.cfg.Detector.NMSThreshold = nms
	}
	return b
}

// WithPoseEstimation toggles the landmark-based pose estimate.
func (b *Builder) WithPoseEstimation(enabled bool) *Builder {
	b.cfg.Detector.EstimatePose = enabled
	return b
}

// WithDetector injects a ready detector instead of loading the ONNX models.
func (b *Builder) WithDetector(d face.Detector) *Builder {
	b.factory = func() (face.Detector, error) { return d, nil }
	return b
}

// WithDetectorFactory overrides how the detector is constructed.
func (b *Builder) WithDetectorFactory(f DetectorFactory) *Builder {
	b.factory = f
	return b
}

// WithSegmentationConfig replaces the segmentation configuration.
func (b *Builder) WithSegmentationConfig(cfg segmentation.Config) *Builder {
	b.cfg.Segmentation = cfg
	return b
}

// WithSegmentationMethod selects the segmentation backend.
func (b *Builder) WithSegmentationMethod(method segmentation.Method) *Builder {
	if method != "" {
		b.cfg.Segmentation.Method = method
		b.cfg.Segmentation.UpdateModelPath(b.cfg.ModelsDir)
	}
	return b
}

// WithSegmenter injects a segmenter. Passing nil disables background removal.
func (b *Builder) WithSegmenter(s background.Segmenter) *Builder {
	b.segmenter = s
	b.noSegmenter = s == nil
	return b
}

// WithWarmupIterations sets model warmup runs to reduce cold-start latency.
func (b *Builder) WithWarmupIterations(n int) *Builder {
	if n >= 0 {
		b.cfg.WarmupIterations = n
	}
	return b
}

// WithKeepImages controls whether results carry the processed image.
func (b *Builder) WithKeepImages(keep bool) *Builder {
	b.cfg.KeepImages = keep
	return b
}

// WithParallelWorkers sets the number of workers for batch checks.
func (b *Builder) WithParallelWorkers(workers int) *Builder {
	if workers > 0 {
		b.cfg.Parallel.MaxWorkers = workers
	}
	return b
}

// WithProgressCallback sets the progress callback for batch checks.
func (b *Builder) WithProgressCallback(callback ProgressCallback) *Builder {
	b.cfg.Parallel.ProgressCallback = callback
	return b
}

// WithThreads sets intra-op thread counts for the ONNX sessions (if >0).
func (b *Builder) WithThreads(n int) *Builder {
	if n > 0 {
		b.cfg.Detector.Session.NumThreads = n
		b.cfg.Segmentation.Session.NumThreads = n
	}
	return b
}

// WithGPU enables CUDA for every model session.
func (b *Builder) WithGPU(enabled bool) *Builder {
	b.cfg.Detector.Session.GPU.UseGPU = enabled
	b.cfg.Segmentation.Session.GPU.UseGPU = enabled
	return b
}

// WithGPUDevice sets the CUDA device ID for every model session.
func (b *Builder) WithGPUDevice(deviceID int) *Builder {
	b.cfg.Detector.Session.GPU.DeviceID = deviceID
	b.cfg.Segmentation.Session.GPU.DeviceID = deviceID
	return b
}

// Config returns a copy of the current config.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the rule set and, unless a detector was injected, that the
// detector model files exist.
func (b *Builder) Validate() error {
	if err := b.cfg.ICAO.Validate(); err != nil {
		return fmt.Errorf("icao config: %w", err)
	}
	if b.factory != nil {
		return nil
	}
	if b.cfg.Detector.DetectionModel == "" {
		return errors.New("detection model path is empty")
	}
	if _, err := os.Stat(b.cfg.Detector.DetectionModel); err != nil {
		return fmt.Errorf("detection model not found: %s", b.cfg.Detector.DetectionModel)
	}
	if b.cfg.Detector.LandmarkModel != "" {
		if _, err := os.Stat(b.cfg.Detector.LandmarkModel); err != nil {
			return fmt.Errorf("landmark model not found: %s", b.cfg.Detector.LandmarkModel)
		}
	}
	return nil
}

// Build validates the configuration and assembles a Checker. The detector is
// not loaded until the first check. A segmenter that cannot be created is
// logged and left out; the checker then runs without background removal.
func (b *Builder) Build() (*Checker, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	factory := b.factory
	if factory == nil {
		detCfg := b.cfg.Detector
		detCfg.Landmarks = b.cfg.ICAO.Landmarks
		warmup := b.cfg.WarmupIterations
		factory = func() (face.Detector, error) {
			return newONNXDetector(detCfg, warmup)
		}
	}

	seg := b.segmenter
	var closer func() error
	if seg == nil && !b.noSegmenter {
		s, err := segmentation.New(b.cfg.Segmentation)
		switch {
		case err != nil:
			logSegmenterUnavailable(b.cfg.Segmentation, err)
		case s != nil:
			seg = s
			closer = s.Close
		}
	}

	return newChecker(b.cfg, factory, seg, closer), nil
}
