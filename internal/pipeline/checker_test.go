package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/models"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/segmentation"
	"github.com/MeKo-Tech/photocheck/internal/testutil"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/MeKo-Tech/photocheck/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChecker(t *testing.T, det face.Detector) *Checker {
	t.Helper()
	c, err := NewBuilder().WithDetector(det).WithSegmenter(nil).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func portrait() (*image.NRGBA, face.DetectedFace) {
	return testutil.Portrait(icao.DefaultConfig(), testutil.DefaultPortrait())
}

func hasEntry(entries []report.Entry, status report.Status, message string) bool {
	for _, e := range entries {
		if e.Status == status && e.Message == message {
			return true
		}
	}
	return false
}

func TestCheck_AcceptsCompliantPortrait(t *testing.T) {
	img, f := portrait()
	det := &testutil.FakeDetector{Faces: []face.DetectedFace{f}}
	c := newTestChecker(t, det)

	res := c.Check(context.Background(), img)

	assert.True(t, res.Success)
	assert.Equal(t, "LOOKS PROMISING: All primary checks passed.", res.Recommendation)
	assert.Equal(t, report.Compliant, res.Status)
	assert.Equal(t, report.ReasonAllChecksPassed, res.ReasonCode)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, res.FaceCount)
	assert.Equal(t, 1200, res.Width)

	require.NotEmpty(t, res.Logs.Preprocessing)
	assert.Equal(t, report.NewEntry(report.StatusPass, report.StageFullAnalysis, "Single face detected."), res.Logs.Preprocessing[0])
	assert.True(t, hasEntry(res.Logs.Preprocessing, report.StatusInfo, "Face details extracted from original image."))
	assert.True(t, hasEntry(res.Logs.Preprocessing, report.StatusInfo, "Cropped and resized to 826x1062px."))
	assert.True(t, hasEntry(res.Logs.Preprocessing, report.StatusWarning, "Background may need removal, but segmentation is not available."))
	assert.Zero(t, report.Count(res.Logs.Preprocessing, report.StatusFail))

	require.Len(t, res.Logs.Validation, 11)
	for _, e := range res.Logs.Validation {
		assert.Equal(t, report.StatusPass, e.Status, e.String())
	}

	require.NotNil(t, res.Image)
	assert.Equal(t, image.Rect(0, 0, 826, 1062), res.Image.Rect)
	require.NotNil(t, res.Face)
	require.NotNil(t, res.Crop)
	assert.InDelta(t, 35.0/45.0, float64(res.Crop.Width())/float64(res.Crop.Height()), 0.01)
	assert.Nil(t, res.Mask)
	assert.Contains(t, res.TimingsMs, TimingDetect)
	assert.Contains(t, res.TimingsMs, TimingValidate)
	assert.EqualValues(t, 1, det.Calls())
}

func TestCheck_WithSegmenter(t *testing.T) {
	img, f := portrait()
	seg := &testutil.FakeSegmenter{MaskFn: func(in image.Image) *utils.Mask {
		b := in.Bounds()
		return utils.MaskFromRect(b.Dx(), b.Dy(), image.Rect(150, 200, 680, b.Dy()))
	}}
	c, err := NewBuilder().
		WithDetector(&testutil.FakeDetector{Faces: []face.DetectedFace{f}}).
		WithSegmenter(seg).
		Build()
	require.NoError(t, err)

	res := c.Check(context.Background(), img)

	assert.EqualValues(t, 1, seg.Calls())
	assert.True(t, hasEntry(res.Logs.Preprocessing, report.StatusInfo, "Attempting background removal."))
	assert.True(t, hasEntry(res.Logs.Preprocessing, report.StatusInfo, "Background removal applied."))
	require.NotNil(t, res.Mask)
	assert.True(t, res.Success, res.Recommendation)

	var ratio report.Entry
	for _, e := range res.Logs.Validation {
		if e.Check == validator.CheckChinCrown {
			ratio = e
		}
	}
	assert.Equal(t, report.StatusPass, ratio.Status)
	assert.Contains(t, ratio.Message, "(Method: segmentation+landmarks)")
	assert.True(t, c.Info()["segmentation"].(map[string]any)["active"].(bool))
}

func TestCheck_SegmenterFailureDegrades(t *testing.T) {
	img, f := portrait()
	seg := &testutil.FakeSegmenter{Err: errors.New("model crashed")}
	c, err := NewBuilder().
		WithDetector(&testutil.FakeDetector{Faces: []face.DetectedFace{f}}).
		WithSegmenter(seg).
		Build()
	require.NoError(t, err)

	res := c.Check(context.Background(), img)
	assert.True(t, hasEntry(res.Logs.Preprocessing, report.StatusWarning, "Background removal failed: model crashed."))
	assert.Nil(t, res.Mask)
	assert.True(t, res.Success)
	assert.Len(t, res.Logs.Validation, 11)
}

func TestCheck_MultipleFaces(t *testing.T) {
	img, f := portrait()
	c := newTestChecker(t, &testutil.FakeDetector{Faces: []face.DetectedFace{f, f}})

	res := c.Check(context.Background(), img)

	assert.False(t, res.Success)
	assert.Equal(t, report.RejectMultipleFaces, res.Recommendation)
	assert.Equal(t, report.ReasonMultipleFaces, res.ReasonCode)
	assert.Equal(t, report.Rejected, res.Status)
	assert.Equal(t, []report.Entry{
		report.NewEntry(report.StatusFail, report.StageFullAnalysis, "Multiple faces (2) detected."),
	}, res.Logs.Preprocessing)
	assert.Empty(t, res.Logs.Validation)
	assert.Nil(t, res.Image)
	assert.Equal(t, 2, res.FaceCount)
}

func TestCheck_NoFace(t *testing.T) {
	c := newTestChecker(t, &testutil.FakeDetector{})
	res := c.Check(context.Background(), testutil.Solid(200, 200, testutil.White))

	assert.Equal(t, report.RejectNoFace, res.Recommendation)
	assert.Equal(t, report.ReasonNoFace, res.ReasonCode)
	assert.Equal(t, []report.Entry{
		report.NewEntry(report.StatusFail, report.StageFullAnalysis, "No face detected by the analysis model."),
	}, res.Logs.Preprocessing)
	assert.Empty(t, res.Logs.Validation)
}

func TestCheck_LowScoreFacesIgnored(t *testing.T) {
	img, f := portrait()
	ghost := f
	ghost.Score = 0.2
	c := newTestChecker(t, &testutil.FakeDetector{Faces: []face.DetectedFace{f, ghost}})

	res := c.Check(context.Background(), img)
	assert.Equal(t, 1, res.FaceCount)
	assert.Equal(t, report.StatusPass, res.Logs.Preprocessing[0].Status)
}

func TestCheck_InvertedGeometry(t *testing.T) {
	img, _ := portrait()
	inverted := face.DetectedFace{BBox: utils.Box{MinX: 400, MinY: 900, MaxX: 800, MaxY: 500}}
	c := newTestChecker(t, &testutil.FakeDetector{Faces: []face.DetectedFace{inverted}})

	res := c.Check(context.Background(), img)

	assert.False(t, res.Success)
	assert.Equal(t, report.RejectPreprocessing, res.Recommendation)
	assert.Equal(t, report.ReasonPreprocessing, res.ReasonCode)
	assert.Equal(t, 1, report.Count(res.Logs.Preprocessing, report.StatusFail))
	last := res.Logs.Preprocessing[len(res.Logs.Preprocessing)-1]
	assert.Equal(t, report.StatusFail, last.Status)
	assert.Contains(t, last.Message, "invalid face geometry")
	assert.Empty(t, res.Logs.Validation)
	assert.Nil(t, res.Image)
	assert.Nil(t, res.Crop)
}

func TestCheck_PanicBecomesSystemError(t *testing.T) {
	c := newTestChecker(t, &testutil.FakeDetector{Panic: "boom"})
	res := c.Check(context.Background(), testutil.Solid(64, 64, testutil.White))

	assert.False(t, res.Success)
	assert.Equal(t, "Internal server error: boom", res.Error)
	assert.Equal(t, report.RejectSystemError, res.Recommendation)
	assert.Equal(t, report.ReasonInternalError, res.ReasonCode)
	assert.EqualValues(t, 1, c.Profiler().Errors.Load())
}

func TestCheck_DetectorError(t *testing.T) {
	c := newTestChecker(t, &testutil.FakeDetector{Err: errors.New("ort failure")})
	res := c.Check(context.Background(), testutil.Solid(64, 64, testutil.White))
	assert.Equal(t, "Internal server error: ort failure", res.Error)
	assert.Equal(t, report.RejectSystemError, res.Recommendation)
}

func TestCheck_InvalidImage(t *testing.T) {
	c := newTestChecker(t, &testutil.FakeDetector{})

	res := c.Check(context.Background(), nil)
	assert.Equal(t, report.RejectInvalidImage, res.Recommendation)
	assert.Equal(t, report.ReasonInvalidImageData, res.ReasonCode)

	res = c.CheckBytes(context.Background(), []byte("definitely not an image"))
	assert.Equal(t, report.RejectInvalidImage, res.Recommendation)
	assert.NotEmpty(t, res.Error)
	assert.False(t, c.DetectorLoaded(), "decoding failures never load the detector")
}

func TestCheckBytes_DecodesJPEG(t *testing.T) {
	cfg := icao.DefaultConfig()
	_, f := portrait()
	c := newTestChecker(t, &testutil.FakeDetector{Faces: []face.DetectedFace{f}})

	res := c.CheckBytes(context.Background(), testutil.EncodePortrait(t, cfg, testutil.DefaultPortrait()))
	assert.NotEqual(t, report.ReasonInvalidImageData, res.ReasonCode)
	assert.Equal(t, 1200, res.Width)
	assert.Equal(t, 1600, res.Height)
	assert.Equal(t, 1, res.FaceCount)
	assert.Contains(t, res.TimingsMs, TimingDecode)
}

func TestChecker_LazyDetectorCreatedOnce(t *testing.T) {
	var created atomic.Int64
	det := &testutil.FakeDetector{}
	c, err := NewBuilder().
		WithDetectorFactory(func() (face.Detector, error) {
			created.Add(1)
			return det, nil
		}).
		WithSegmenter(nil).
		Build()
	require.NoError(t, err)
	assert.False(t, c.DetectorLoaded())

	img := testutil.Solid(64, 64, testutil.White)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Check(context.Background(), img)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, 16, det.Calls())
	assert.True(t, c.DetectorLoaded())

	require.NoError(t, c.Close())
	assert.True(t, det.Closed())
	assert.NoError(t, c.Close())
	_, err = c.Detector()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestChecker_FactoryErrorRetried(t *testing.T) {
	var calls atomic.Int64
	c, err := NewBuilder().
		WithDetectorFactory(func() (face.Detector, error) {
			calls.Add(1)
			return nil, errors.New("no runtime")
		}).
		WithSegmenter(nil).
		Build()
	require.NoError(t, err)

	img := testutil.Solid(64, 64, testutil.White)
	res := c.Check(context.Background(), img)
	assert.Equal(t, report.RejectSystemError, res.Recommendation)
	assert.Contains(t, res.Error, "no runtime")
	c.Check(context.Background(), img)
	assert.EqualValues(t, 2, calls.Load())
	assert.False(t, c.DetectorLoaded())
}

func TestBuilder_Validate(t *testing.T) {
	b := NewBuilder().WithModelsDir(t.TempDir())
	assert.ErrorContains(t, b.Validate(), "detection model not found")

	bad := icao.DefaultConfig()
	bad.DPI = 0
	_, err := NewBuilder().WithDetector(&testutil.FakeDetector{}).WithICAO(bad).Build()
	assert.ErrorContains(t, err, "icao config")
}

func TestBuilder_Options(t *testing.T) {
	b := NewBuilder().
		WithModelsDir("/opt/models").
		WithThreads(4).
		WithGPU(true).
		WithGPUDevice(1).
		WithParallelWorkers(3).
		WithWarmupIterations(2).
		WithDetectorThresholds(0.7, 0.3).
		WithPoseEstimation(true).
		WithSegmentationMethod(segmentation.MethodU2NetPortable).
		WithKeepImages(false)
	cfg := b.Config()
	assert.Equal(t, "/opt/models", cfg.ModelsDir)
	assert.Equal(t, 4, cfg.Detector.Session.NumThreads)
	assert.Equal(t, 4, cfg.Segmentation.Session.NumThreads)
	assert.True(t, cfg.Detector.Session.GPU.UseGPU)
	assert.Equal(t, 1, cfg.Segmentation.Session.GPU.DeviceID)
	assert.Equal(t, 3, cfg.Parallel.MaxWorkers)
	assert.Equal(t, 2, cfg.WarmupIterations)
	assert.InDelta(t, 0.7, cfg.Detector.ScoreThreshold, 1e-9)
	assert.InDelta(t, 0.3, cfg.Detector.NMSThreshold, 1e-9)
	assert.True(t, cfg.Detector.EstimatePose)
	assert.False(t, cfg.KeepImages)
	assert.Contains(t, cfg.Detector.DetectionModel, "/opt/models")
	assert.Equal(t, segmentation.MethodU2NetPortable, cfg.Segmentation.Method)
	assert.Equal(t, models.GetSegmentationModelPath("/opt/models", models.SegmentationU2NetPortable), cfg.Segmentation.ModelPath)

	same := NewBuilder().WithSegmentationMethod("").Config()
	assert.Equal(t, segmentation.MethodU2Net, same.Segmentation.Method)
}

func TestCheck_KeepImagesDisabled(t *testing.T) {
	img, f := portrait()
	c, err := NewBuilder().
		WithDetector(&testutil.FakeDetector{Faces: []face.DetectedFace{f}}).
		WithSegmenter(nil).
		WithKeepImages(false).
		Build()
	require.NoError(t, err)

	res := c.Check(context.Background(), img)
	assert.True(t, res.Success)
	assert.Nil(t, res.Image)
	assert.NotNil(t, res.Face)
}

func TestCheck_FloodFillKeepsLightFace(t *testing.T) {
	spec := testutil.DefaultPortrait()
	spec.Background = color.NRGBA{R: 205, G: 205, B: 205, A: 255}
	spec.SkinTone = color.NRGBA{R: 200, G: 170, B: 150, A: 255}
	img, f := testutil.Portrait(icao.DefaultConfig(), spec)

	c, err := NewBuilder().
		WithDetector(&testutil.FakeDetector{Faces: []face.DetectedFace{f}}).
		WithSegmenter(segmentation.NewFloodFill(segmentation.DefaultConfig())).
		Build()
	require.NoError(t, err)

	res := c.Check(context.Background(), img)
	require.Empty(t, res.Error)
	assert.True(t, hasEntry(res.Logs.Preprocessing, report.StatusInfo, "Background removal applied."))
	require.NotNil(t, res.Mask)
	require.NotNil(t, res.Image)
	require.NotNil(t, res.Face)

	cx := int((res.Face.BBox.MinX + res.Face.BBox.MaxX) / 2)
	cy := int((res.Face.BBox.MinY + res.Face.BBox.MaxY) / 2)
	assert.True(t, res.Mask.At(cx, cy), "face centre stays subject")
	px := res.Image.NRGBAAt(cx, cy)
	assert.Less(t, int(px.B), 240, "face centre keeps its skin tone, got %v", px)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, res.Image.NRGBAAt(2, 2), "backdrop composited to white")
}
