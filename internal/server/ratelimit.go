package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/config"
)

// RateLimiter enforces per-client request rates and daily quotas using fixed
// windows. A zero limit disables that check.
type RateLimiter struct {
	mu sync.Mutex

	perMinute   int
	perHour     int
	perDay      int
	bytesPerDay int64

	clients map[string]*clientUsage
	now     func() time.Time
}

type window struct {
	start time.Time
	count int
}

// roll resets the window when now has left it.
func (w *window) roll(now time.Time, length time.Duration) {
	if w.start.IsZero() || now.Sub(w.start) >= length {
		w.start = now
		w.count = 0
	}
}

func (w *window) retryAfter(now time.Time, length time.Duration) time.Duration {
	return w.start.Add(length).Sub(now)
}

type clientUsage struct {
	minute   window
	hour     window
	day      time.Time
	requests int
	bytes    int64
	lastSeen time.Time
}

// Usage is a snapshot of one client's counters.
type Usage struct {
	RequestsThisMinute int   `json:"requests_this_minute"`
	RequestsThisHour   int   `json:"requests_this_hour"`
	RequestsToday      int   `json:"requests_today"`
	BytesToday         int64 `json:"bytes_today"`
}

// NewRateLimiter creates a limiter from the server rate limit settings.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		perMinute:   cfg.RequestsPerMinute,
		perHour:     cfg.RequestsPerHour,
		perDay:      cfg.MaxRequestsPerDay,
		bytesPerDay: cfg.MaxDataPerDayMB << 20,
		clients:     make(map[string]*clientUsage),
		now:         time.Now,
	}
}

// Allow records a request of size bytes for client, or returns a
// *RateLimitError or *QuotaExceededError without recording it.
func (rl *RateLimiter) Allow(client string, size int64) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.clients[client]
	if u == nil {
		u = &clientUsage{}
		rl.clients[client] = u
	}
	u.minute.roll(now, time.Minute)
	u.hour.roll(now, time.Hour)
	if day := startOfDay(now); !u.day.Equal(day) {
		u.day, u.requests, u.bytes = day, 0, 0
	}
	u.lastSeen = now

	if rl.perMinute > 0 && u.minute.count >= rl.perMinute {
		return &RateLimitError{Type: "minute", Limit: rl.perMinute, RetryAfter: u.minute.retryAfter(now, time.Minute)}
	}
	if rl.perHour > 0 && u.hour.count >= rl.perHour {
		return &RateLimitError{Type: "hour", Limit: rl.perHour, RetryAfter: u.hour.retryAfter(now, time.Hour)}
	}
	resets := u.day.AddDate(0, 0, 1)
	if rl.perDay > 0 && u.requests >= rl.perDay {
		return &QuotaExceededError{Type: "requests", Limit: int64(rl.perDay), Used: int64(u.requests), Resets: resets}
	}
	if rl.bytesPerDay > 0 && u.bytes+size > rl.bytesPerDay {
		return &QuotaExceededError{Type: "data", Limit: rl.bytesPerDay, Used: u.bytes, Resets: resets}
	}

	u.minute.count++
	u.hour.count++
	u.requests++
	u.bytes += size
	return nil
}

// Usage returns the counters of client.
func (rl *RateLimiter) Usage(client string) Usage {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	u, ok := rl.clients[client]
	if !ok {
		return Usage{}
	}
	return Usage{
		RequestsThisMinute: u.minute.count,
		RequestsThisHour:   u.hour.count,
		RequestsToday:      u.requests,
		BytesToday:         u.bytes,
	}
}

// Prune drops clients idle for longer than idle and returns how many were removed.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	n := 0
	for id, u := range rl.clients {
		if now.Sub(u.lastSeen) > idle {
			delete(rl.clients, id)
			n++
		}
	}
	return n
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RateLimitError represents a rate limit violation.
type RateLimitError struct {
	Type       string // "minute" or "hour"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Type, e.Limit, e.RetryAfter.Round(time.Second))
}

// QuotaExceededError represents a daily quota violation.
type QuotaExceededError struct {
	Type   string // "requests" or "data"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (used: %d, limit: %d, resets: %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
