package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/photocheck/internal/config"
	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/report"
	"github.com/MeKo-Tech/photocheck/internal/testutil"
	"github.com/MeKo-Tech/photocheck/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useFakeChecker swaps the ONNX detector for a fake that reports the face of
// the synthetic portrait.
func useFakeChecker(t *testing.T) {
	t.Helper()
	_, f := testutil.Portrait(icao.DefaultConfig(), testutil.DefaultPortrait())
	orig := newChecker
	newChecker = func(cfg *config.Config) (*pipeline.Checker, error) {
		return pipeline.NewBuilderFromConfig(cfg.ToPipelineConfig()).
			WithDetector(&testutil.FakeDetector{Faces: []face.DetectedFace{f}}).
			WithSegmenter(nil).
			Build()
	}
	t.Cleanup(func() { newChecker = orig })
}

func writePortrait(t *testing.T, path string) {
	t.Helper()
	img, _ := testutil.Portrait(icao.DefaultConfig(), testutil.DefaultPortrait())
	require.NoError(t, utils.SaveImage(img, path))
}

func TestCheckCommand(t *testing.T) {
	assert.Equal(t, "check", checkCmd.Name())
	for _, name := range []string{"format", "output", "overlay-dir", "save-dir", "workers", "recursive", "fail-on-reject"} {
		assert.NotNil(t, checkCmd.Flags().Lookup(name), name)
	}
}

func TestCheckCommand_RequiresArgs(t *testing.T) {
	_, _, err := executeCommand(t, "check")
	require.Error(t, err)
}

func TestCheckCommand_JSON(t *testing.T) {
	useFakeChecker(t)
	dir := t.TempDir()
	writePortrait(t, filepath.Join(dir, "a.png"))
	writePortrait(t, filepath.Join(dir, "b.png"))

	output, _, err := executeCommand(t, "check", dir, "--format", "json", "--workers", "2")
	require.NoError(t, err)

	var results []pipeline.Result
	require.NoError(t, json.Unmarshal([]byte(output), &results))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, report.Compliant, r.Status)
		assert.Equal(t, report.ReasonAllChecksPassed, r.ReasonCode)
	}
}

func TestCheckCommand_OutputFileAndImages(t *testing.T) {
	useFakeChecker(t)
	dir := t.TempDir()
	writePortrait(t, filepath.Join(dir, "me.png"))
	out := t.TempDir()
	reportPath := filepath.Join(out, "report.csv")

	output, _, err := executeCommand(t, "check", filepath.Join(dir, "me.png"),
		"--format", "csv", "--output", reportPath,
		"--save-dir", filepath.Join(out, "photos"),
		"--overlay-dir", filepath.Join(out, "overlays"),
		"--stats")
	require.NoError(t, err)
	assert.Contains(t, output, "Results written to")
	assert.Contains(t, output, "Batch Summary:")
	assert.FileExists(t, reportPath)
	assert.FileExists(t, filepath.Join(out, "photos", "me_passport.jpg"))
	assert.FileExists(t, filepath.Join(out, "overlays", "me_overlay.png"))
}

func TestCheckCommand_FailOnReject(t *testing.T) {
	useFakeChecker(t)
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(broken, []byte("not a jpeg"), 0o600))

	_, _, err := executeCommand(t, "check", broken, "--fail-on-reject")
	require.ErrorIs(t, err, ErrPhotosRejected)

	_, _, err = executeCommand(t, "check", broken)
	require.NoError(t, err)
}

func TestCheckCommand_NoImages(t *testing.T) {
	useFakeChecker(t)
	_, _, err := executeCommand(t, "check", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image files found")
}

func TestApplyCheckFlags_Background(t *testing.T) {
	cfg := config.DefaultConfig()
	resetFlags(checkCmd)
	t.Cleanup(func() { resetFlags(checkCmd) })

	require.NoError(t, checkCmd.Flags().Set("background", "none"))
	applyCheckFlags(&cfg, checkCmd)
	assert.False(t, cfg.Segmentation.Enabled)

	require.NoError(t, checkCmd.Flags().Set("background", "floodfill"))
	require.NoError(t, checkCmd.Flags().Set("save-dir", t.TempDir()))
	cfg.Pipeline.KeepImages = false
	applyCheckFlags(&cfg, checkCmd)
	assert.True(t, cfg.Segmentation.Enabled)
	assert.Equal(t, "floodfill", string(cfg.Segmentation.Method))
	assert.True(t, cfg.Pipeline.KeepImages)
}
