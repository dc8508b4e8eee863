package pipeline

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/photocheck/internal/common"
	"github.com/MeKo-Tech/photocheck/internal/report"
)

// Profiler aggregates counters and stage timers across checks.
type Profiler struct {
	DetectionTimeNs  atomic.Int64
	PreprocessTimeNs atomic.Int64
	ValidationTimeNs atomic.Int64
	PhotosChecked    atomic.Int64
	Accepted         atomic.Int64
	Rejected         atomic.Int64
	NeedsReview      atomic.Int64
	Errors           atomic.Int64
}

// Record adds one finished check.
func (p *Profiler) Record(res *Result) {
	if res == nil {
		return
	}
	p.PhotosChecked.Add(1)
	p.DetectionTimeNs.Add(msToNs(res.TimingsMs[TimingDetect]))
	p.PreprocessTimeNs.Add(msToNs(res.TimingsMs[TimingPreprocess]))
	p.ValidationTimeNs.Add(msToNs(res.TimingsMs[TimingValidate]))
	switch {
	case res.ReasonCode == report.ReasonInternalError:
		p.Errors.Add(1)
		p.Rejected.Add(1)
	case !res.Success:
		p.Rejected.Add(1)
	case strings.HasPrefix(res.Recommendation, report.PrefixNeedsReview):
		p.NeedsReview.Add(1)
	default:
		p.Accepted.Add(1)
	}
}

func msToNs(ms float64) int64 { return int64(ms * float64(time.Millisecond)) }

// Snapshot returns cumulative metrics in milliseconds for readability, plus
// the current memory counters.
func (p *Profiler) Snapshot() map[string]any {
	n := p.PhotosChecked.Load()
	det := p.DetectionTimeNs.Load()
	pre := p.PreprocessTimeNs.Load()
	val := p.ValidationTimeNs.Load()
	out := map[string]any{
		"photos":              n,
		"accepted":            p.Accepted.Load(),
		"needs_review":        p.NeedsReview.Load(),
		"rejected":            p.Rejected.Load(),
		"errors":              p.Errors.Load(),
		"det_ms_total":        det / 1_000_000,
		"preprocess_ms_total": pre / 1_000_000,
		"validate_ms_total":   val / 1_000_000,
		"memory":              common.GetMemoryStats(),
	}
	if n > 0 {
		out["det_ms_per_photo"] = float64(det) / 1_000_000.0 / float64(n)
		out["preprocess_ms_per_photo"] = float64(pre) / 1_000_000.0 / float64(n)
		out["validate_ms_per_photo"] = float64(val) / 1_000_000.0 / float64(n)
	}
	return out
}
