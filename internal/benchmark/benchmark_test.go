package benchmark

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/face"
	"github.com/MeKo-Tech/photocheck/internal/icao"
	"github.com/MeKo-Tech/photocheck/internal/pipeline"
	"github.com/MeKo-Tech/photocheck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuite_RunAll(t *testing.T) {
	s := NewSuite()
	calls := 0
	s.Add("count", func(context.Context) error {
		calls++
		return nil
	})
	s.Add("sleep", func(context.Context) error {
		time.Sleep(time.Millisecond)
		return nil
	})
	assert.Equal(t, []string{"count", "sleep"}, s.Names())

	results := s.RunAll(context.Background(), 5)
	require.Len(t, results, 2)
	assert.Equal(t, 6, calls, "one warmup plus five measured runs")
	assert.Equal(t, 5, results[0].Iterations)
	assert.NoError(t, results[0].Err)

	sleep := results[1]
	assert.GreaterOrEqual(t, sleep.Min, time.Millisecond)
	assert.LessOrEqual(t, sleep.Min, sleep.Mean)
	assert.LessOrEqual(t, sleep.Mean, sleep.Max)
	assert.LessOrEqual(t, sleep.P95, sleep.Max)
	assert.Contains(t, sleep.String(), "sleep: 5 iterations")
}

func TestSuite_Errors(t *testing.T) {
	s := NewSuite()
	s.Warmup = 0
	n := 0
	s.Add("flaky", func(context.Context) error {
		n++
		if n == 3 {
			return errors.New("boom")
		}
		return nil
	})
	res := s.RunAll(context.Background(), 10)[0]
	assert.Equal(t, 2, res.Iterations)
	assert.EqualError(t, res.Err, "boom")
	assert.Equal(t, "boom", res.Error)
	assert.True(t, strings.HasPrefix(res.String(), "flaky: ERROR"))

	res = s.RunAll(context.Background(), 0)[0]
	assert.Error(t, res.Err)
}

func TestSummarize_Percentile(t *testing.T) {
	durations := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}
	var res Result
	summarize(&res, durations)
	assert.Equal(t, time.Millisecond, res.Min)
	assert.Equal(t, 100*time.Millisecond, res.Max)
	assert.Equal(t, 95*time.Millisecond, res.P95)
	assert.Equal(t, 50500*time.Microsecond, res.Mean)
}

func TestAddPhotoChecks(t *testing.T) {
	img, f := testutil.Portrait(icao.DefaultConfig(), testutil.DefaultPortrait())
	checker, err := pipeline.NewBuilder().
		WithDetector(&testutil.FakeDetector{Faces: []face.DetectedFace{f}}).
		WithSegmenter(nil).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = checker.Close() })

	s := NewSuite()
	s.AddPhotoChecks(checker, img, []byte("not an image"))
	results := s.RunAll(context.Background(), 2)
	require.Len(t, results, 2)

	assert.Equal(t, "check_image", results[0].Name)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 2, results[0].Iterations)

	assert.Equal(t, "check_bytes", results[1].Name)
	assert.Error(t, results[1].Err, "undecodable input is a system error")
}

func TestAddPhotoChecks_SkipsMissingInputs(t *testing.T) {
	s := NewSuite()
	s.AddPhotoChecks(nil, image.Image(nil), nil)
	assert.Empty(t, s.Names())
}
