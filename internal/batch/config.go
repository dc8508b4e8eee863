package batch

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
)

// Config holds all configuration for a batch check.
type Config struct {
	Format     string
	OutputFile string
	// OverlayDir receives annotated copies of the processed photos.
	OverlayDir string
	// SaveDir receives the processed 35x45 photos of accepted inputs.
	SaveDir string
	ICAO    icao.Config

	Workers int

	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string

	Progress pipeline.ProgressCallback
	Quiet    bool
}

// Result holds the outcome of a batch check.
type Result struct {
	Results     []*pipeline.Result
	ImagePaths  []string
	Summary     pipeline.BatchSummary
	Duration    time.Duration
	WorkerCount int
	// Saved lists the files written to OverlayDir and SaveDir.
	Saved []string
}

// FormatResults renders the per-photo reports in format.
func (r *Result) FormatResults(format string) (string, error) {
	return pipeline.Format(format, r.Results...)
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(w io.Writer, format, outputFile string, quiet bool) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		if !quiet {
			_, _ = fmt.Fprintf(w, "Results written to %s\n", outputFile)
		}
		return nil
	}
	_, err = fmt.Fprintln(w, output)
	return err
}

// PrintStats prints verdict counts and throughput.
func (r *Result) PrintStats(w io.Writer) {
	s := r.Summary
	_, _ = fmt.Fprintf(w, "\nBatch Summary:\n")
	_, _ = fmt.Fprintf(w, "  Total photos: %d\n", s.Total)
	_, _ = fmt.Fprintf(w, "  Accepted: %d\n", s.Accepted)
	_, _ = fmt.Fprintf(w, "  Needs review: %d\n", s.NeedsReview)
	_, _ = fmt.Fprintf(w, "  Rejected: %d (errors: %d)\n", s.Rejected, s.Errors)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.WorkerCount)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", r.Duration.Round(time.Millisecond))
	if s.Total > 0 && r.Duration > 0 {
		_, _ = fmt.Fprintf(w, "  Throughput: %.1f photos/sec\n", float64(s.Total)/r.Duration.Seconds())
	}
}
