package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopwatch(t *testing.T) {
	sw := StartStopwatch()
	time.Sleep(5 * time.Millisecond)
	d := sw.Lap("detect")
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	sw.Lap("validate")
	sw.Lap("detect")

	laps := sw.Laps()
	require.Len(t, laps, 3)
	assert.Equal(t, "detect", laps[0].Name)
	assert.Equal(t, "validate", laps[1].Name)
	assert.GreaterOrEqual(t, sw.Get("detect"), d)
	assert.GreaterOrEqual(t, sw.Total(), sw.Get("detect"))

	ms := sw.Millis()
	assert.Len(t, ms, 2)
	assert.GreaterOrEqual(t, ms["detect"], 5.0)
	assert.Contains(t, sw.String(), "detect=")

	laps[0].Name = "changed"
	assert.Equal(t, "detect", sw.Laps()[0].Name)
}

func TestGetMemoryStats(t *testing.T) {
	m := GetMemoryStats()
	assert.Positive(t, m.SysBytes)
	assert.Positive(t, m.Goroutines)
	assert.Contains(t, m.String(), "goroutines:")
}
