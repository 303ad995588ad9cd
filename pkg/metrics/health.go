package metrics

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// HealthStatus represents the health status of the node.
type HealthStatus struct {
	Healthy   bool             `json:"healthy"`
	Ready     bool             `json:"ready"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Uptime    time.Duration    `json:"uptime"`
}

// Check represents an individual health check result.
type Check struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}

// HealthCheckFunc is a function that performs a health check.
type HealthCheckFunc func(ctx context.Context) Check

// LedgerProbe is the part of the ledger the health checks look at.
type LedgerProbe interface {
	Slot() types.Slot
	Closed() bool
}

// HealthChecker runs registered checks and remembers the last result.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	status    atomic.Pointer[HealthStatus]
	ready     atomic.Bool
	startTime time.Time
	interval  time.Duration
	now       func() time.Time

	// slot progress
	maxSlotAge   time.Duration
	lastSlot     types.Slot
	lastProgress time.Time
}

// HealthCheckerOption is a function that configures a HealthChecker.
type HealthCheckerOption func(*HealthChecker)

// WithMaxSlotAge sets how long the slot may stand still before the node is
// reported unhealthy.
func WithMaxSlotAge(d time.Duration) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.maxSlotAge = d
	}
}

// WithHealthCheckInterval sets how often Start re-runs the checks.
func WithHealthCheckInterval(d time.Duration) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.interval = d
	}
}

// NewHealthChecker creates a health checker watching l. The node starts
// healthy and not ready; call SetReady once it serves requests.
func NewHealthChecker(l LedgerProbe, opts ...HealthCheckerOption) *HealthChecker {
	h := &HealthChecker{
		checks:     make(map[string]HealthCheckFunc),
		startTime:  time.Now(),
		interval:   10 * time.Second,
		maxSlotAge: time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.lastProgress = h.now()
	h.status.Store(&HealthStatus{Healthy: true, Timestamp: h.now()})

	if l != nil {
		h.RegisterCheck("ledger", func(context.Context) Check {
			if l.Closed() {
				return Check{Healthy: false, Message: "ledger is closed"}
			}
			return Check{Healthy: true}
		})
		h.RegisterCheck("slot_progress", func(context.Context) Check {
			return h.checkSlotProgress(l.Slot())
		})
	}
	return h
}

// RegisterCheck registers a health check.
func (h *HealthChecker) RegisterCheck(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// IsHealthy returns the result of the last Check.
func (h *HealthChecker) IsHealthy() bool {
	return h.status.Load().Healthy
}

// IsReady reports whether the node is ready and was healthy at the last Check.
func (h *HealthChecker) IsReady() bool {
	return h.status.Load().Ready
}

// GetStatus returns the current health status.
func (h *HealthChecker) GetStatus() *HealthStatus {
	return h.status.Load()
}

// SetReady sets the ready state.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
	next := *h.status.Load()
	next.Ready = ready && next.Healthy
	next.Timestamp = h.now()
	h.status.Store(&next)
}

// Check runs all health checks and updates the status.
func (h *HealthChecker) Check(ctx context.Context) *HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	checks := make(map[string]HealthCheckFunc, len(h.checks))
	for name, fn := range h.checks {
		names = append(names, name)
		checks[name] = fn
	}
	h.mu.RUnlock()
	sort.Strings(names)

	status := &HealthStatus{
		Healthy:   true,
		Timestamp: h.now(),
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    time.Since(h.startTime),
	}

	var messages []string
	for _, name := range names {
		start := time.Now()
		result := checks[name](ctx)
		result.Name = name
		if result.Latency == 0 {
			result.Latency = time.Since(start)
		}
		status.Checks[name] = result
		if !result.Healthy {
			status.Healthy = false
			if result.Message != "" {
				messages = append(messages, name+": "+result.Message)
			}
		}
	}
	status.Message = strings.Join(messages, "; ")
	status.Ready = status.Healthy && h.ready.Load()

	h.status.Store(status)
	return status
}

// checkSlotProgress fails when the slot has not moved for maxSlotAge.
func (h *HealthChecker) checkSlotProgress(slot types.Slot) Check {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if slot != h.lastSlot {
		h.lastSlot = slot
		h.lastProgress = now
	}
	age := now.Sub(h.lastProgress)
	if h.maxSlotAge > 0 && age > h.maxSlotAge {
		return Check{Healthy: false, Message: "slot has not advanced in " + age.Truncate(time.Second).String(), Latency: age}
	}
	return Check{Healthy: true, Latency: age}
}

// Start runs the checks every interval until ctx is cancelled.
func (h *HealthChecker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		h.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Check(ctx)
			}
		}
	}()
}
