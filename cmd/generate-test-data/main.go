// Command generate-test-data writes synthetic portrait fixtures. Each image
// gets a JSON sidecar with the face record a detector would report for it, so
// the fixtures can drive the pipeline without models.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/testutil"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// fixture is one generated portrait variant.
type fixture struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	spec        testutil.PortraitSpec
}

// sidecar is written next to each image.
type sidecar struct {
	Image       string              `json:"image"`
	Description string              `json:"description"`
	Faces       []face.DetectedFace `json:"faces"`
}

func fixtures() []fixture {
	compliant := testutil.DefaultPortrait()

	redEye := testutil.DefaultPortrait()
	redEye.RedEyeRadius = 8

	dark := testutil.DefaultPortrait()
	dark.Background = testutil.DarkGray

	closed := testutil.DefaultPortrait()
	closed.Face.EyeOpen = 2

	offCenter := testutil.DefaultPortrait()
	offCenter.Face = testutil.DefaultFaceSpec(420, 700, 900)

	small := testutil.DefaultPortrait()
	small.Face = testutil.DefaultFaceSpec(600, 760, 860)

	return []fixture{
		{Name: "compliant", Description: "frontal portrait on a white background", spec: compliant},
		{Name: "red_eye", Description: "flash red-eye on both pupils", spec: redEye},
		{Name: "dark_background", Description: "background below the lightness thresholds", spec: dark},
		{Name: "closed_eyes", Description: "eyes nearly shut", spec: closed},
		{Name: "off_center", Description: "face shifted to the left", spec: offCenter},
		{Name: "small_head", Description: "face too small for the frame", spec: small},
	}
}

func main() {
	var (
		outDir  = flag.String("out", filepath.Join("testdata", "portraits"), "output directory")
		format  = flag.String("format", "png", "image format: png or jpg")
		verbose = flag.Bool("v", false, "verbose output")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generate synthetic portrait fixtures for photocheck.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := generate(*outDir, *format); err != nil {
		slog.Error("Failed to generate test data", "error", err)
		os.Exit(1)
	}
	slog.Info("Generated test data", "dir", *outDir)
}

func generate(dir, format string) error {
	if format != "png" && format != "jpg" {
		return fmt.Errorf("unsupported format %q", format)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	cfg := icao.DefaultConfig()
	for _, fx := range fixtures() {
		img, f := testutil.Portrait(cfg, fx.spec)
		name := fx.Name + "." + format
		if err := utils.SaveImage(img, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}

		data, err := json.MarshalIndent(sidecar{
			Image:       name,
			Description: fx.Description,
			Faces:       []face.DetectedFace{f},
		}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, fx.Name+".json"), data, 0o600); err != nil {
			return fmt.Errorf("write sidecar for %s: %w", name, err)
		}
		slog.Debug("Fixture written", "name", name)
	}
	return nil
}
