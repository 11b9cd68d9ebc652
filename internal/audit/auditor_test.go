package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmerrifield20/powchain/internal/chain"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubVerifier struct {
	err error
}

func (s *stubVerifier) Verify() error { return s.err }
func (s *stubVerifier) Len() int      { return 1 }

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheck_intactChain(t *testing.T) {
	c := chain.New(chain.Config{Difficulty: 1, AttemptCap: 20})
	a := New(c, Config{}, zap.NewNop())

	if got := a.Status().Status; got != StatusUnknown {
		t.Errorf("initial status: got %q, want unknown", got)
	}
	if !a.Check() {
		t.Fatal("expected intact chain to pass")
	}
	if got := a.Status(); got.Status != StatusIntact || got.Error != "" || got.LastRun.IsZero() {
		t.Errorf("unexpected report: %+v", got)
	}
}

func TestCheck_corruptAfterThreshold(t *testing.T) {
	v := &stubVerifier{err: errors.New("link broken")}
	a := New(v, Config{FailThreshold: 2}, zap.NewNop())

	var results []bool
	a.SetMetricsRecord(func(ok bool) { results = append(results, ok) })

	a.Check()
	if got := a.Status().Status; got != StatusUnknown {
		t.Errorf("after 1 failure: got %q, want unknown", got)
	}
	a.Check()
	if got := a.Status(); got.Status != StatusCorrupt || got.Error != "link broken" {
		t.Errorf("after 2 failures: got %+v", got)
	}

	v.err = nil
	a.Check()
	if got := a.Status().Status; got != StatusIntact {
		t.Errorf("after recovery: got %q, want intact", got)
	}
	if len(results) != 3 || results[0] || results[1] || !results[2] {
		t.Errorf("metrics callback results: %v", results)
	}
}

func TestStart_stopsOnCancel(t *testing.T) {
	a := New(&stubVerifier{}, Config{Interval: time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	if got := a.Status().Status; got != StatusIntact {
		t.Errorf("status after ticks: got %q, want intact", got)
	}
}
