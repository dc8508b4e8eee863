// Package common provides timing and memory helpers shared by the pipeline,
// the CLI and the HTTP server.
package common

import (
	"fmt"
	"strings"
	"time"
)

// Lap is one named stage measured by a Stopwatch.
type Lap struct {
	Name     string        `json:"name" yaml:"name"`
	Duration time.Duration `json:"duration_ns" yaml:"duration_ns"`
}

// Stopwatch records consecutive stage durations. It is not safe for
// concurrent use; each request owns its own.
type Stopwatch struct {
	start time.Time
	last  time.Time
	laps  []Lap
}

// StartStopwatch returns a running stopwatch.
func StartStopwatch() *Stopwatch {
	now := time.Now()
	return &Stopwatch{start: now, last: now}
}

// Lap closes the current stage under name and returns its duration.
func (s *Stopwatch) Lap(name string) time.Duration {
	now := time.Now()
	d := now.Sub(s.last)
	s.last = now
	s.laps = append(s.laps, Lap{Name: name, Duration: d})
	return d
}

// Laps returns the recorded stages in order.
func (s *Stopwatch) Laps() []Lap {
	out := make([]Lap, len(s.laps))
	copy(out, s.laps)
	return out
}

// Get returns the summed duration of all laps called name.
func (s *Stopwatch) Get(name string) time.Duration {
	var d time.Duration
	for _, l := range s.laps {
		if l.Name == name {
			d += l.Duration
		}
	}
	return d
}

// Total is the time since the stopwatch started.
func (s *Stopwatch) Total() time.Duration { return time.Since(s.start) }

// Millis returns the laps keyed by name in milliseconds.
func (s *Stopwatch) Millis() map[string]float64 {
	out := make(map[string]float64, len(s.laps))
	for _, l := range s.laps {
		out[l.Name] += float64(l.Duration) / float64(time.Millisecond)
	}
	return out
}

func (s *Stopwatch) String() string {
	parts := make([]string, 0, len(s.laps))
	for _, l := range s.laps {
		parts = append(parts, fmt.Sprintf("%s=%v", l.Name, l.Duration.Round(time.Microsecond)))
	}
	return strings.Join(parts, " ")
}
