package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker reports process liveness and the freshness of the last
// completed cycle.
type HealthChecker struct {
	mu        sync.RWMutex
	lastCycle time.Time
	lastName  string
	equity    float64
	errors    []string
}

type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	LastCycle time.Time `json:"last_cycle,omitempty"`
	CycleName string    `json:"cycle_name,omitempty"`
	Equity    float64   `json:"equity"`
	Uptime    string    `json:"uptime"`
	Errors    []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// CycleCompleted records a successful cycle and clears prior errors.
func (h *HealthChecker) CycleCompleted(name string, equity float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycle = time.Now()
	h.lastName = name
	h.equity = equity
	h.errors = nil
}

// CycleFailed records a failed cycle.
func (h *HealthChecker) CycleFailed(name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, name+": "+err.Error())
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.lastCycle.IsZero() && time.Since(h.lastCycle) > 48*time.Hour {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status = "unhealthy"
		code = http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		LastCycle: h.lastCycle,
		CycleName: h.lastName,
		Equity:    h.equity,
		Uptime:    time.Since(startTime).String(),
		Errors:    h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}
