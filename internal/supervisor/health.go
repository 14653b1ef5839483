package supervisor

import (
	"sync"
	"time"
)

const (
	StatusHealthy = "healthy"
	StatusFailed  = "failed"
)

// RunnerHealth is the recorded status of one runner.
type RunnerHealth struct {
	Status    string    `json:"status"`
	LastCheck time.Time `json:"last_check"`
}

// HealthTracker records runner outcomes. Safe for concurrent use.
type HealthTracker struct {
	mu      sync.RWMutex
	runners map[string]RunnerHealth
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{runners: make(map[string]RunnerHealth)}
}

func (h *HealthTracker) MarkHealthy(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runners[name] = RunnerHealth{Status: StatusHealthy, LastCheck: time.Now()}
}

func (h *HealthTracker) MarkFailed(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runners[name] = RunnerHealth{Status: StatusFailed, LastCheck: time.Now()}
}

// IsHealthy reports whether no runner has failed.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.runners {
		if r.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// Status returns a snapshot of every runner's recorded health.
func (h *HealthTracker) Status() map[string]RunnerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]RunnerHealth, len(h.runners))
	for name, r := range h.runners {
		out[name] = r
	}
	return out
}
