// Package audit periodically re-verifies a chain and tracks whether it is
// still intact.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status values reported by Auditor.Status.
const (
	StatusUnknown = "unknown"
	StatusIntact  = "intact"
	StatusCorrupt = "corrupt"
)

// Config holds audit configuration.
type Config struct {
	Interval      time.Duration
	FailThreshold int
}

// Verifier is satisfied by *chain.Chain.
type Verifier interface {
	Verify() error
	Len() int
}

// MetricsRecordFunc is an optional callback for recording audit results.
type MetricsRecordFunc func(success bool)

// Auditor runs periodic integrity checks.
type Auditor struct {
	chain     Verifier
	cfg       Config
	mu        sync.Mutex
	failCount int
	status    string
	lastErr   error
	lastRun   time.Time
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Auditor.
func New(v Verifier, cfg Config, logger *zap.Logger) *Auditor {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{chain: v, cfg: cfg, status: StatusUnknown, logger: logger}
}

// SetMetricsRecord configures the metrics recording callback.
func (a *Auditor) SetMetricsRecord(fn MetricsRecordFunc) {
	a.onMetrics = fn
}

// Start runs the audit loop until ctx is cancelled.
func (a *Auditor) Start(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Check()
		case <-ctx.Done():
			return
		}
	}
}

// Check verifies the chain once and returns whether it passed.
func (a *Auditor) Check() bool {
	err := a.chain.Verify()
	success := err == nil

	if a.onMetrics != nil {
		a.onMetrics(success)
	}

	a.mu.Lock()
	prevCount := a.failCount
	if success {
		a.failCount = 0
	} else {
		a.failCount++
	}
	count := a.failCount
	a.lastErr = err
	a.lastRun = time.Now().UTC()
	if success {
		a.status = StatusIntact
	} else if count >= a.cfg.FailThreshold {
		a.status = StatusCorrupt
	}
	a.mu.Unlock()

	switch {
	case success && prevCount >= a.cfg.FailThreshold:
		a.logger.Info("audit: chain intact again", zap.Int("records", a.chain.Len()))
	case !success && count == a.cfg.FailThreshold:
		a.logger.Warn("audit: chain corrupt",
			zap.Error(err),
			zap.Int("fail_count", count),
		)
	}
	return success
}

// Report is a point-in-time view of the auditor's state.
type Report struct {
	Status  string    `json:"status"`
	Error   string    `json:"error,omitempty"`
	LastRun time.Time `json:"last_run"`
}

// Status returns the latest audit state.
func (a *Auditor) Status() Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := Report{Status: a.status, LastRun: a.lastRun}
	if a.lastErr != nil {
		r.Error = a.lastErr.Error()
	}
	return r
}
