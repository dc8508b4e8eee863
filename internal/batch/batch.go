// Package batch checks many photos with a worker pool and writes reports,
// annotated overlays and processed photos.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/utils"
)

// Checker runs batch checks. *pipeline.Checker implements it.
type Checker interface {
	CheckBatch(ctx context.Context, items []pipeline.BatchItem, config pipeline.ParallelConfig) ([]*pipeline.Result, error)
}

// ErrNoImages is returned when the inputs contain no image files.
var ErrNoImages = errors.New("no image files found")

// Process discovers the photos named by args and checks them with checker.
func Process(ctx context.Context, checker Checker, args []string, config *Config) (*Result, error) {
	files, err := DiscoverImages(args, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}

	items := make([]pipeline.BatchItem, len(files))
	for i, f := range files {
		items[i] = pipeline.BatchItem{Path: f}
	}

	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(items))

	pc := pipeline.ParallelConfig{MaxWorkers: workers}
	if !config.Quiet {
		pc.ProgressCallback = config.Progress
	}

	start := time.Now()
	results, err := checker.CheckBatch(ctx, items, pc)
	if err != nil {
		return nil, fmt.Errorf("batch check failed: %w", err)
	}

	out := &Result{
		Results:     results,
		ImagePaths:  files,
		Summary:     pipeline.Summarize(results),
		Duration:    time.Since(start),
		WorkerCount: workers,
	}
	if err := out.saveImages(config); err != nil {
		return out, err
	}
	return out, nil
}

// saveImages writes overlays of every processed photo and the processed
// photos of accepted inputs.
func (r *Result) saveImages(config *Config) error {
	if config.OverlayDir == "" && config.SaveDir == "" {
		return nil
	}
	for _, dir := range []string{config.OverlayDir, config.SaveDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	for i, res := range r.Results {
		if res == nil || res.Image == nil {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(r.ImagePaths[i]), filepath.Ext(r.ImagePaths[i]))
		if config.OverlayDir != "" {
			path := filepath.Join(config.OverlayDir, base+"_overlay.png")
			if err := utils.SaveImage(pipeline.RenderOverlay(res, config.ICAO), path); err != nil {
				slog.Warn("Failed to save overlay", "path", path, "error", err)
			} else {
				r.Saved = append(r.Saved, path)
			}
		}
		if config.SaveDir != "" && res.Success {
			path := filepath.Join(config.SaveDir, base+"_passport.jpg")
			if err := utils.SaveImage(res.Image, path); err != nil {
				slog.Warn("Failed to save processed photo", "path", path, "error", err)
			} else {
				r.Saved = append(r.Saved, path)
			}
		}
	}
	return nil
}
