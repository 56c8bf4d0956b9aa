package marketdata

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", 3, time.Minute)

	for i := 0; i < 2; i++ {
		if !cb.Allow(now) {
			t.Fatalf("breaker should be closed after %d failures", i)
		}
		cb.RecordFailure(now)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed below threshold", cb.State())
	}

	cb.RecordFailure(now)
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open at threshold", cb.State())
	}
	if cb.Allow(now) {
		t.Error("open breaker must short-circuit immediately")
	}
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", 1, time.Minute)
	cb.RecordFailure(now)

	if cb.Allow(now.Add(30 * time.Second)) {
		t.Fatal("breaker allowed a call before recovery timeout")
	}

	after := now.Add(61 * time.Second)
	if !cb.Allow(after) {
		t.Fatal("breaker should allow one trial call after recovery timeout")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("state = %v, want half_open", cb.State())
	}
	// Exactly one trial: a second caller is rejected while the trial is in flight.
	if cb.Allow(after) {
		t.Error("second call admitted during half-open trial")
	}
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", 1, time.Second)
	cb.RecordFailure(now)

	if !cb.Allow(now.Add(2 * time.Second)) {
		t.Fatal("trial call not admitted")
	}
	cb.RecordSuccess()

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after trial success", cb.State())
	}
	if cb.Failures() != 0 {
		t.Errorf("failures = %d, want 0 after success", cb.Failures())
	}
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", 2, time.Second)
	cb.RecordFailure(now)
	cb.RecordFailure(now)

	trialAt := now.Add(2 * time.Second)
	if !cb.Allow(trialAt) {
		t.Fatal("trial call not admitted")
	}
	cb.RecordFailure(trialAt)

	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open after failed trial", cb.State())
	}
	// Recovery timer restarted: still short-circuiting just before the new deadline.
	if cb.Allow(trialAt.Add(500 * time.Millisecond)) {
		t.Error("breaker reopened before restarted recovery timeout")
	}
	if !cb.Allow(trialAt.Add(2 * time.Second)) {
		t.Error("breaker should admit a trial after the restarted timeout")
	}
}

func TestBreakerReset(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("test", 1, time.Hour)
	cb.RecordFailure(now)

	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want closed after reset", cb.State())
	}
	if !cb.Allow(now) {
		t.Error("reset breaker must pass calls through")
	}
}
