package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/photocheck/internal/background"
	"github.com/MeKo-Tech/photocheck/internal/common"
	"github.com/MeKo-Tech/photocheck/internal/detector"
	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/segmentation"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/MeKo-Tech/photocheck/internal/validator"
)

// ErrClosed is returned when a closed Checker is asked to load its detector.
var ErrClosed = errors.New("checker is closed")

// Stage names recorded in Result.TimingsMs.
const (
	TimingDecode     = "decode"
	TimingDetect     = "detect"
	TimingPreprocess = "preprocess"
	TimingValidate   = "validate"
)

type detectorHandle struct {
	det face.Detector
}

// Checker runs complete photo checks. It is safe for concurrent use; the
// detector is created on the first check and shared afterwards.
type Checker struct {
	cfg     Config
	factory DetectorFactory

	mu     sync.Mutex
	handle atomic.Pointer[detectorHandle]
	closed atomic.Bool

	preprocessor *Preprocessor
	validator    *validator.Validator
	hasSegmenter bool
	closeSeg     func() error
	profiler     *Profiler
}

func newChecker(cfg Config, factory DetectorFactory, seg background.Segmenter, closeSeg func() error) *Checker {
	return &Checker{
		cfg:          cfg,
		factory:      factory,
		preprocessor: NewPreprocessor(cfg.ICAO, seg),
		validator:    validator.New(cfg.ICAO),
		hasSegmenter: seg != nil,
		closeSeg:     closeSeg,
		profiler:     &Profiler{},
	}
}

func newONNXDetector(cfg detector.Config, warmup int) (face.Detector, error) {
	d, err := detector.NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	if warmup > 0 {
		if err := d.Warmup(context.Background(), warmup); err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("detector warmup failed: %w", err)
		}
	}
	return d, nil
}

func logSegmenterUnavailable(cfg segmentation.Config, err error) {
	slog.Warn("Segmentation unavailable, background removal disabled",
		"method", cfg.Method, "model", cfg.ModelPath, "error", err)
}

// Detector returns the shared detector, creating it on first use.
func (c *Checker) Detector() (face.Detector, error) {
	if h := c.handle.Load(); h != nil {
		return h.det, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h := c.handle.Load(); h != nil {
		return h.det, nil
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	slog.Info("First use: loading face detector")
	d, err := c.factory()
	if err != nil {
		return nil, fmt.Errorf("init detector: %w", err)
	}
	if d == nil {
		return nil, errors.New("init detector: factory returned nil")
	}
	c.handle.Store(&detectorHandle{det: d})
	slog.Info("Face detector loaded")
	return d, nil
}

// DetectorLoaded reports whether the detector has been created.
func (c *Checker) DetectorLoaded() bool { return c.handle.Load() != nil }

// Check runs detection, preprocessing and validation on img. It never
// panics; unexpected failures become a REJECTED: System error result.
func (c *Checker) Check(ctx context.Context, img image.Image) *Result {
	return c.check(ctx, img, common.StartStopwatch())
}

// CheckBytes decodes data and checks it. Undecodable input is rejected as
// invalid image data.
func (c *Checker) CheckBytes(ctx context.Context, data []byte) *Result {
	sw := common.StartStopwatch()
	img, _, err := utils.DecodeImage(data)
	sw.Lap(TimingDecode)
	if err != nil {
		slog.Debug("Image decoding failed", "error", err)
		res := &Result{Error: err.Error()}
		res.finish(report.RejectInvalidImage)
		res.TimingsMs = sw.Millis()
		res.TotalMs = msSince(sw)
		c.profiler.Record(res)
		return res
	}
	return c.check(ctx, img, sw)
}

// CheckFile loads the image at path and checks it.
func (c *Checker) CheckFile(ctx context.Context, path string) *Result {
	sw := common.StartStopwatch()
	img, _, err := utils.LoadImage(path)
	sw.Lap(TimingDecode)
	if err != nil {
		res := &Result{Source: path, Error: err.Error()}
		res.finish(report.RejectInvalidImage)
		res.TotalMs = msSince(sw)
		c.profiler.Record(res)
		return res
	}
	res := c.check(ctx, img, sw)
	res.Source = path
	return res
}

func (c *Checker) check(ctx context.Context, img image.Image, sw *common.Stopwatch) (res *Result) {
	res = &Result{}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Critical error during photo check", "panic", r, "stack", string(debug.Stack()))
			res.systemError(fmt.Errorf("%v", r))
		}
		res.TimingsMs = sw.Millis()
		res.TotalMs = msSince(sw)
		c.profiler.Record(res)
		slog.Debug("Photo check finished", "recommendation", res.Recommendation, "timings", sw.String())
	}()

	if img == nil || img.Bounds().Empty() {
		return res.finish(report.RejectInvalidImage)
	}
	b := img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()
	if err := ctx.Err(); err != nil {
		return res.systemError(err)
	}

	det, err := c.Detector()
	if err != nil {
		slog.Error("Face detector unavailable", "error", err)
		return res.systemError(err)
	}

	slog.Info("Performing full analysis", "width", res.Width, "height", res.Height)
	faces, err := det.Detect(ctx, img)
	sw.Lap(TimingDetect)
	if err != nil {
		slog.Error("Face detection failed", "error", err)
		return res.systemError(err)
	}
	faces = face.Filter(faces, c.cfg.ICAO.MinDetectionScore)
	res.FaceCount = len(faces)

	pre := &res.Logs.Preprocessing
	switch {
	case len(faces) == 0:
		*pre = append(*pre, report.NewEntry(report.StatusFail, report.StageFullAnalysis, "No face detected by the analysis model."))
		return res.finish(report.RejectNoFace)
	case len(faces) > 1:
		*pre = append(*pre, report.NewEntry(report.StatusFail, report.StageFullAnalysis, "Multiple faces (%d) detected.", len(faces)))
		return res.finish(report.RejectMultipleFaces)
	}
	*pre = append(*pre, report.NewEntry(report.StatusPass, report.StageFullAnalysis, "Single face detected."))

	pp := c.preprocessor.Process(ctx, img, faces)
	sw.Lap(TimingPreprocess)
	*pre = append(*pre, pp.Logs...)
	if !pp.OK || pp.Image == nil {
		slog.Warn("Preprocessing failed, aborting validation")
		return res.finish(report.RejectPreprocessing)
	}
	g, crop, final := pp.Geometry, pp.Crop, pp.Face
	res.Geometry, res.Crop, res.Face = &g, &crop, &final

	res.Logs.Validation = c.validator.Validate(pp.Image, &pp.Face, pp.Mask)
	sw.Lap(TimingValidate)
	if c.cfg.KeepImages {
		res.Image = pp.Image
		res.Mask = pp.Mask
	}
	return res.finish(report.Recommend(res.Logs.Validation))
}

// Close releases the detector and segmenter. Close is idempotent.
func (c *Checker) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if h := c.handle.Swap(nil); h != nil {
		if err := h.det.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close detector: %w", err))
		}
	}
	if c.closeSeg != nil {
		if err := c.closeSeg(); err != nil {
			errs = append(errs, fmt.Errorf("close segmenter: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Config returns the pipeline configuration.
func (c *Checker) Config() Config { return c.cfg }

// Profiler returns the cumulative counters of this checker.
func (c *Checker) Profiler() *Profiler { return c.profiler }

// Info returns a map with key pipeline properties and model info.
func (c *Checker) Info() map[string]any {
	icaoCfg := c.cfg.ICAO
	info := map[string]any{
		"models_dir":      c.cfg.ModelsDir,
		"detector_loaded": c.DetectorLoaded(),
		"photo": map[string]any{
			"width_mm":  icaoCfg.PhotoWidthMM,
			"height_mm": icaoCfg.PhotoHeightMM,
			"dpi":       icaoCfg.DPI,
			"width_px":  icaoCfg.FinalWidth(),
			"height_px": icaoCfg.FinalHeight(),
		},
		"segmentation": map[string]any{
			"enabled":    c.cfg.Segmentation.Enabled,
			"method":     c.cfg.Segmentation.Method,
			"model_path": c.cfg.Segmentation.ModelPath,
			"active":     c.hasSegmenter,
		},
		"parallel": map[string]any{
			"max_workers":           c.cfg.Parallel.MaxWorkers,
			"has_progress_callback": c.cfg.Parallel.ProgressCallback != nil,
		},
	}
	if h := c.handle.Load(); h != nil {
		if d, ok := h.det.(*detector.Detector); ok {
			info["detector"] = d.GetModelInfo()
		}
	}
	return info
}

func msSince(sw *common.Stopwatch) float64 {
	return float64(sw.Total().Microseconds()) / 1000
}
