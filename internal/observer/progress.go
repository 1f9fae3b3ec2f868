package observer

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock time so progress behavior is testable without
// real sleeps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default wall-clock implementation
var SystemClock Clock = systemClock{}

const (
	// progressCeiling bounds the synthetic estimate; 100 is reserved for
	// confirmed completion.
	progressCeiling = 95

	// progressTimeConstant shapes the asymptotic curve: the estimate is at
	// half the ceiling after one time constant.
	progressTimeConstant = 45 * time.Second
)

// ProgressEstimator produces a cosmetic, monotonically non-decreasing
// progress value from elapsed wall-clock time. It is an estimate, not a
// measurement: analysis duration is unknown, so the value approaches the
// ceiling asymptotically and never reaches it.
type ProgressEstimator struct {
	clock Clock

	mu      sync.Mutex
	start   time.Time
	started bool
	last    int
}

// NewProgressEstimator creates an estimator using the given clock
func NewProgressEstimator(clock Clock) *ProgressEstimator {
	if clock == nil {
		clock = SystemClock
	}
	return &ProgressEstimator{clock: clock}
}

// Start begins the estimate curve. Calling Start again is a no-op.
func (e *ProgressEstimator) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	e.start = e.clock.Now()
}

// Reset restarts the curve from zero, used when a job re-enters processing
// after a manual retry.
func (e *ProgressEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = true
	e.start = e.clock.Now()
	e.last = 0
}

// Value returns the current estimate in [0, progressCeiling). Successive
// calls never decrease between resets.
func (e *ProgressEstimator) Value() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return 0
	}

	elapsed := e.clock.Now().Sub(e.start)
	if elapsed < 0 {
		elapsed = 0
	}

	p := int(float64(progressCeiling) * float64(elapsed) / float64(elapsed+progressTimeConstant))
	if p < e.last {
		p = e.last
	}
	if p >= progressCeiling {
		p = progressCeiling - 1
	}
	e.last = p
	return p
}
