// Package benchmark measures photo check latency and allocation over repeated
// runs.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"runtime"
	"slices"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/common"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
)

// Result is the outcome of one benchmark.
type Result struct {
	Name       string        `json:"name"`
	Iterations int           `json:"iterations"`
	Total      time.Duration `json:"total_ns"`
	Min        time.Duration `json:"min_ns"`
	Mean       time.Duration `json:"mean_ns"`
	P95        time.Duration `json:"p95_ns"`
	Max        time.Duration `json:"max_ns"`
	// AllocBytes is the cumulative allocation per iteration.
	AllocBytes uint64 `json:"alloc_bytes_per_op"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: %d iterations, mean: %v, min: %v, p95: %v, max: %v, alloc: %d KB/op",
		r.Name, r.Iterations, r.Mean, r.Min, r.P95, r.Max, r.AllocBytes/1024)
}

type bench struct {
	name string
	fn   func(ctx context.Context) error
}

// Suite runs named benchmarks in registration order.
type Suite struct {
	benches []bench
	// Warmup runs are executed before measuring and not recorded.
	Warmup int
}

// NewSuite creates an empty suite with one warmup run.
func NewSuite() *Suite {
	return &Suite{Warmup: 1}
}

// Add registers fn under name.
func (s *Suite) Add(name string, fn func(ctx context.Context) error) {
	s.benches = append(s.benches, bench{name: name, fn: fn})
}

// Names lists the registered benchmarks.
func (s *Suite) Names() []string {
	out := make([]string, len(s.benches))
	for i, b := range s.benches {
		out[i] = b.name
	}
	return out
}

// RunAll runs every benchmark iterations times. A failing iteration stops
// that benchmark and is reported in its Result.
func (s *Suite) RunAll(ctx context.Context, iterations int) []Result {
	out := make([]Result, 0, len(s.benches))
	for _, b := range s.benches {
		out = append(out, s.run(ctx, b, iterations))
	}
	return out
}

func (s *Suite) run(ctx context.Context, b bench, iterations int) Result {
	res := Result{Name: b.name}
	if iterations <= 0 {
		res.Err = errors.New("iterations must be positive")
		res.Error = res.Err.Error()
		return res
	}
	for range s.Warmup {
		if err := b.fn(ctx); err != nil {
			res.Err = fmt.Errorf("warmup: %w", err)
			res.Error = res.Err.Error()
			return res
		}
	}

	runtime.GC()
	before := common.GetMemoryStats()
	durations := make([]time.Duration, 0, iterations)
	for range iterations {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		start := time.Now()
		if err := b.fn(ctx); err != nil {
			res.Err = err
			break
		}
		durations = append(durations, time.Since(start))
	}
	after := common.GetMemoryStats()

	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	if len(durations) == 0 {
		return res
	}
	res.Iterations = len(durations)
	res.AllocBytes = (after.TotalAllocBytes - before.TotalAllocBytes) / uint64(len(durations))
	summarize(&res, durations)
	return res
}

func summarize(res *Result, durations []time.Duration) {
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	for _, d := range sorted {
		res.Total += d
	}
	res.Min = sorted[0]
	res.Max = sorted[len(sorted)-1]
	res.Mean = res.Total / time.Duration(len(sorted))
	idx := (len(sorted)*95+99)/100 - 1
	res.P95 = sorted[max(idx, 0)]
}

// Checker is the part of *pipeline.Checker the photo benchmarks exercise.
type Checker interface {
	Check(ctx context.Context, img image.Image) *pipeline.Result
	CheckBytes(ctx context.Context, data []byte) *pipeline.Result
}

// AddPhotoChecks registers the decoded and the encoded check of one photo.
// Checks that end in a system error fail the benchmark.
func (s *Suite) AddPhotoChecks(checker Checker, img image.Image, data []byte) {
	if img != nil {
		s.Add("check_image", func(ctx context.Context) error {
			return resultError(checker.Check(ctx, img))
		})
	}
	if data != nil {
		s.Add("check_bytes", func(ctx context.Context) error {
			return resultError(checker.CheckBytes(ctx, data))
		})
	}
}

func resultError(res *pipeline.Result) error {
	if res == nil {
		return errors.New("checker returned no result")
	}
	if res.Error != "" {
		return errors.New(res.Error)
	}
	return nil
}

// Print writes one line per result.
func Print(w io.Writer, results []Result) {
	for _, r := range results {
		_, _ = fmt.Fprintln(w, r.String())
	}
}
