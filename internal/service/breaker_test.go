package service

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clock := newFakeClock()
	cb := NewCircuitBreaker(FxServiceName, threshold, reset)
	cb.now = clock.Now
	return cb, clock
}

func failLogical(t *testing.T, cb *CircuitBreaker) {
	t.Helper()
	gen, ok := cb.Allow()
	if !ok {
		t.Fatalf("Expected call to be allowed in state %s", cb.State())
	}
	cb.Failure(gen)
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(5, 10*time.Second)

	for i := 0; i < 4; i++ {
		failLogical(t, cb)
		if cb.State() != StateClosed {
			t.Fatalf("Expected CLOSED after %d failures, got %s", i+1, cb.State())
		}
	}

	failLogical(t, cb)
	if cb.State() != StateOpen {
		t.Fatalf("Expected OPEN after 5 failures, got %s", cb.State())
	}
	if _, ok := cb.Allow(); ok {
		t.Error("Expected OPEN breaker to reject calls")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, 10*time.Second)

	failLogical(t, cb)
	failLogical(t, cb)
	gen, _ := cb.Allow()
	cb.Success(gen)
	failLogical(t, cb)
	failLogical(t, cb)

	if cb.State() != StateClosed {
		t.Fatalf("Expected CLOSED, non-consecutive failures must not trip, got %s", cb.State())
	}
	if got := cb.Snapshot().ConsecutiveFailures; got != 2 {
		t.Errorf("Expected 2 consecutive failures, got %d", got)
	}
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	cb, clock := newTestBreaker(1, 10*time.Second)
	failLogical(t, cb)

	clock.Advance(9999 * time.Millisecond)
	if cb.State() != StateOpen {
		t.Fatalf("Expected OPEN before reset timeout, got %s", cb.State())
	}

	clock.Advance(time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected HALF_OPEN after reset timeout, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	tests := []struct {
		name      string
		succeed   bool
		wantState BreakerState
	}{
		{name: "probe success closes", succeed: true, wantState: StateClosed},
		{name: "probe failure reopens", succeed: false, wantState: StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, clock := newTestBreaker(2, time.Second)
			failLogical(t, cb)
			failLogical(t, cb)
			clock.Advance(time.Second)

			gen, ok := cb.Allow()
			if !ok {
				t.Fatal("Expected probe to be allowed")
			}
			if _, ok := cb.Allow(); ok {
				t.Fatal("Expected second concurrent probe to be rejected")
			}

			if tt.succeed {
				cb.Success(gen)
			} else {
				cb.Failure(gen)
			}
			if cb.State() != tt.wantState {
				t.Errorf("Expected %s, got %s", tt.wantState, cb.State())
			}
		})
	}
}

func TestCircuitBreaker_ReleaseFreesProbe(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)
	failLogical(t, cb)
	clock.Advance(time.Second)

	gen, _ := cb.Allow()
	cb.Release(gen)

	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected HALF_OPEN after release, got %s", cb.State())
	}
	if _, ok := cb.Allow(); !ok {
		t.Error("Expected a new probe after release")
	}
}

func TestCircuitBreaker_IgnoresStaleOutcomes(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)

	staleGen, _ := cb.Allow()
	failLogical(t, cb)
	clock.Advance(time.Second)

	probeGen, ok := cb.Allow()
	if !ok {
		t.Fatal("Expected probe to be allowed")
	}

	// a call started while CLOSED reports back during the probe
	cb.Success(staleGen)
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected stale success to be ignored, got %s", cb.State())
	}

	cb.Failure(probeGen)
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN after probe failure, got %s", cb.State())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	cb, clock := newTestBreaker(1, time.Second)

	var transitions []string
	cb.OnStateChange(func(name string, from, to BreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	failLogical(t, cb)
	clock.Advance(time.Second)
	gen, _ := cb.Allow()
	cb.Success(gen)

	want := []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}
	if len(transitions) != len(want) {
		t.Fatalf("Expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}

func TestCircuitBreaker_ConcurrentFailures(t *testing.T) {
	cb, _ := newTestBreaker(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 999; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen, ok := cb.Allow()
			if ok {
				cb.Failure(gen)
			}
		}()
	}
	wg.Wait()

	snap := cb.Snapshot()
	if snap.State != StateClosed || snap.ConsecutiveFailures != 999 {
		t.Errorf("Expected CLOSED with 999 failures, got %s with %d", snap.State, snap.ConsecutiveFailures)
	}

	failLogical(t, cb)
	if cb.State() != StateOpen {
		t.Errorf("Expected OPEN at threshold, got %s", cb.State())
	}
}
