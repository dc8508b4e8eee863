package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/MeKo-Tech/photocheck/internal/batch"
	"github.com/MeKo-Tech/photocheck/internal/config"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/segmentation"
	"github.com/spf13/cobra"
)

// ErrPhotosRejected is returned by check --fail-on-reject.
var ErrPhotosRejected = errors.New("photos rejected")

// newChecker builds the photo checker from the resolved configuration.
var newChecker = func(cfg *config.Config) (*pipeline.Checker, error) {
	return pipeline.NewBuilderFromConfig(cfg.ToPipelineConfig()).Build()
}

// checkCmd validates photos against the passport photo rules.
var checkCmd = &cobra.Command{
	Use:   "check [files or directories...]",
	Short: "Validate portrait photos against the passport photo rules",
	Long: `Validate one or more portrait photos. Each photo is cropped and aligned to
the 35x45 mm frame, its background is replaced with white, and the result
is checked for head pose, eye visibility, exposure and background.

Directories are scanned for JPEG, PNG, BMP and WebP files.

Examples:
  photocheck check portrait.jpg
  photocheck check photos/ --recursive --workers 4 --progress
  photocheck check photos/ --format json --output results.json
  photocheck check portrait.jpg --save-dir out/ --overlay-dir out/overlays`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runCheckCommand,
}

// configToBatchConfig maps the resolved configuration and the command flags
// to a batch.Config. Flags win over file and environment values.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	bc := &batch.Config{
		Format:  cfg.Output.Format,
		SaveDir: cfg.Output.SaveDir,
		ICAO:    cfg.ICAO,
		Workers: cfg.Pipeline.MaxWorkers,
	}
	if cmd.Flags().Changed("format") {
		bc.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("save-dir") {
		bc.SaveDir, _ = cmd.Flags().GetString("save-dir")
	}
	if cmd.Flags().Changed("workers") {
		bc.Workers, _ = cmd.Flags().GetInt("workers")
	}

	bc.OutputFile, _ = cmd.Flags().GetString("output")
	bc.OverlayDir, _ = cmd.Flags().GetString("overlay-dir")

	bc.Recursive, _ = cmd.Flags().GetBool("recursive")
	bc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	bc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")

	bc.Quiet, _ = cmd.Flags().GetBool("quiet")
	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		bc.Progress = pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "Checking")
	} else if cfg.Verbose {
		bc.Progress = pipeline.NewLogProgressCallback(slog.Default(), slog.LevelDebug)
	}
	return bc
}

// applyCheckFlags copies pipeline overrides from flags into cfg.
func applyCheckFlags(cfg *config.Config, cmd *cobra.Command) {
	if cmd.Flags().Changed("score-threshold") {
		cfg.Detector.ScoreThreshold, _ = cmd.Flags().GetFloat64("score-threshold")
	}
	if cmd.Flags().Changed("estimate-pose") {
		cfg.Detector.EstimatePose, _ = cmd.Flags().GetBool("estimate-pose")
	}
	if cmd.Flags().Changed("background") {
		method, _ := cmd.Flags().GetString("background")
		if method == "none" {
			cfg.Segmentation.Enabled = false
		} else {
			cfg.Segmentation.Enabled = true
			cfg.Segmentation.Method = segmentation.Method(method)
			cfg.Segmentation.ModelPath = ""
		}
	}
	overlay, _ := cmd.Flags().GetString("overlay-dir")
	saveDir, _ := cmd.Flags().GetString("save-dir")
	if overlay != "" || saveDir != "" || cfg.Output.SaveDir != "" {
		cfg.Pipeline.KeepImages = true
	}
}

func runCheckCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	applyCheckFlags(cfg, cmd)
	bc := configToBatchConfig(cfg, cmd)

	checker, err := newChecker(cfg)
	if err != nil {
		return fmt.Errorf("failed to create checker: %w", err)
	}
	defer func() { _ = checker.Close() }()

	result, err := batch.Process(cmd.Context(), checker, args, bc)
	if err != nil {
		return err
	}

	if err := result.SaveResults(cmd.OutOrStdout(), bc.Format, bc.OutputFile, bc.Quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	if stats, _ := cmd.Flags().GetBool("stats"); stats && !bc.Quiet {
		result.PrintStats(cmd.OutOrStdout())
	}

	if failOnReject, _ := cmd.Flags().GetBool("fail-on-reject"); failOnReject && result.Summary.Rejected > 0 {
		return fmt.Errorf("%w: %d of %d", ErrPhotosRejected, result.Summary.Rejected, result.Summary.Total)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)

	// Output flags
	checkCmd.Flags().StringP("format", "f", "text", "output format: text, json, yaml, csv")
	checkCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	checkCmd.Flags().String("overlay-dir", "", "directory to save annotated overlay images")
	checkCmd.Flags().String("save-dir", "", "directory to save processed 35x45 photos of accepted inputs")

	// Pipeline flags
	checkCmd.Flags().Float64("score-threshold", 0.5, "minimum face detection score (0..1)")
	checkCmd.Flags().Bool("estimate-pose", false, "estimate head pose from landmarks")
	checkCmd.Flags().String("background", string(segmentation.MethodU2Net),
		"background segmentation: u2net, u2netp, floodfill or none")

	// Parallel processing and discovery flags
	checkCmd.Flags().IntP("workers", "w", 0, fmt.Sprintf("number of parallel workers (default: %d)", runtime.NumCPU()))
	checkCmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	checkCmd.Flags().StringSlice("include", nil, "file patterns to include (e.g. *.jpg)")
	checkCmd.Flags().StringSlice("exclude", nil, "file patterns to exclude")

	// Progress and exit status flags
	checkCmd.Flags().Bool("progress", false, "show progress bar")
	checkCmd.Flags().Bool("quiet", false, "suppress progress output")
	checkCmd.Flags().Bool("stats", false, "print batch summary")
	checkCmd.Flags().Bool("fail-on-reject", false, "exit non-zero when any photo is rejected")
}
