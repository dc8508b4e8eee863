package pipeline

import (
	"context"
	"errors"
	"image"
	"runtime"
	"sync"
)

// ParallelConfig holds configuration for batch checks.
type ParallelConfig struct {
	// MaxWorkers is the number of workers; 0 means runtime.NumCPU().
	MaxWorkers       int              `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers" validate:"gte=0"`
	ProgressCallback ProgressCallback `mapstructure:"-" yaml:"-" json:"-"`

	// ErrorHandler is called for results carrying an error.
	ErrorHandler func(index int, res *Result) `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultParallelConfig returns sensible defaults for batch checks.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{MaxWorkers: runtime.NumCPU()}
}

// BatchItem is one input of CheckBatch. Image takes precedence over Data,
// which takes precedence over Path.
type BatchItem struct {
	Name  string
	Path  string
	Data  []byte
	Image image.Image
}

type batchJob struct {
	index int
	item  BatchItem
}

type batchResult struct {
	index  int
	result *Result
}

// CheckBatch checks items with a worker pool and returns results in input
// order. Per-item failures are reported on the results; the error is only
// set for empty input or cancellation.
func (c *Checker) CheckBatch(ctx context.Context, items []BatchItem, config ParallelConfig) ([]*Result, error) {
	if len(items) == 0 {
		return nil, errors.New("no images provided")
	}
	if c == nil {
		return nil, errors.New("checker not initialized")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	config.MaxWorkers = min(config.MaxWorkers, len(items))

	if config.ProgressCallback != nil {
		config.ProgressCallback.OnStart(len(items))
		defer config.ProgressCallback.OnComplete()
	}

	jobs := make(chan batchJob, len(items))
	results := make(chan batchResult, len(items))

	var wg sync.WaitGroup
	for range config.MaxWorkers {
		wg.Add(1)
		go c.worker(ctx, jobs, results, &wg)
	}

	go func() {
		defer close(jobs)
		for i, it := range items {
			select {
			case jobs <- batchJob{index: i, item: it}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*Result, len(items))
	done := 0
	for r := range results {
		ordered[r.index] = r.result
		done++
		if r.result.Error != "" {
			if config.ProgressCallback != nil {
				config.ProgressCallback.OnError(r.index, errors.New(r.result.Error))
			}
			if config.ErrorHandler != nil {
				config.ErrorHandler(r.index, r.result)
			}
		}
		if config.ProgressCallback != nil {
			config.ProgressCallback.OnProgress(done, len(items))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ordered, nil
}

func (c *Checker) worker(ctx context.Context, jobs <-chan batchJob, results chan<- batchResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			res := c.checkItem(ctx, job.item)
			select {
			case results <- batchResult{index: job.index, result: res}:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Checker) checkItem(ctx context.Context, it BatchItem) *Result {
	var res *Result
	switch {
	case it.Image != nil:
		res = c.Check(ctx, it.Image)
	case it.Data != nil:
		res = c.CheckBytes(ctx, it.Data)
	default:
		res = c.CheckFile(ctx, it.Path)
	}
	if it.Name != "" {
		res.Source = it.Name
	} else if res.Source == "" {
		res.Source = it.Path
	}
	return res
}

// BatchSummary counts verdicts over a batch.
type BatchSummary struct {
	Total       int `json:"total"`
	Accepted    int `json:"accepted"`
	NeedsReview int `json:"needs_review"`
	Rejected    int `json:"rejected"`
	Errors      int `json:"errors"`
}

// Summarize counts the verdicts in results.
func Summarize(results []*Result) BatchSummary {
	var s BatchSummary
	for _, r := range results {
		if r == nil {
			continue
		}
		s.Total++
		switch {
		case r.Error != "":
			s.Errors++
			s.Rejected++
		case !r.Success:
			s.Rejected++
		case countWarnings(r) > 0:
			s.NeedsReview++
		default:
			s.Accepted++
		}
	}
	return s
}

func countWarnings(r *Result) int {
	_, w := r.Counts()
	return w
}
