package monitor

import (
	"sync"

	"lexd/pkg/types"
)

// Ring keeps the last N health reports for trend display. Nothing is
// persisted; a supervisor restart starts empty.
type Ring struct {
	mu      sync.Mutex
	reports []types.HealthReport
	next    int
	full    bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 50
	}
	return &Ring{reports: make([]types.HealthReport, size)}
}

func (r *Ring) Add(rep types.HealthReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[r.next] = rep
	r.next = (r.next + 1) % len(r.reports)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns reports oldest-first.
func (r *Ring) Recent() []types.HealthReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]types.HealthReport, r.next)
		copy(out, r.reports[:r.next])
		return out
	}
	out := make([]types.HealthReport, 0, len(r.reports))
	out = append(out, r.reports[r.next:]...)
	out = append(out, r.reports[:r.next]...)
	return out
}

// Latest returns the newest report, if any.
func (r *Ring) Latest() (types.HealthReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next == 0 && !r.full {
		return types.HealthReport{}, false
	}
	idx := (r.next - 1 + len(r.reports)) % len(r.reports)
	return r.reports[idx], true
}
