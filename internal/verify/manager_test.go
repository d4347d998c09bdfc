package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/e7canasta/wayfinder/internal/store"
	"github.com/e7canasta/wayfinder/internal/types"
)

// stubBackend returns a canned outcome, optionally after a delay that
// respects context cancellation.
type stubBackend struct {
	out   types.Outcome
	err   error
	delay time.Duration
	calls int
}

func (b *stubBackend) Verify(ctx context.Context, frame types.Frame, region types.Region, target types.TargetSpec) (types.Outcome, error) {
	b.calls++
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return types.Outcome{}, ctx.Err()
		}
	}
	return b.out, b.err
}

func testTarget() types.TargetSpec {
	return types.TargetSpec{Make: "Toyota", Model: "Camry", Color: "blue", Plate: "7ABC123"}
}

func testManager(fast, slow Backend) *Manager {
	policy := DefaultPolicy()
	gate := DefaultGate()
	return NewManager(time.Second,
		NewFastStrategy(fast, policy, gate, testTarget()),
		NewSlowStrategy(slow, policy, gate, testTarget()),
	)
}

func TestSelectPrefersPolicyBackend(t *testing.T) {
	m := testManager(&stubBackend{}, &stubBackend{})

	c := freshCandidate()
	strat, err := m.Select(c)
	if err != nil {
		t.Fatal(err)
	}
	if strat.Kind() != types.BackendFast {
		t.Fatalf("fresh candidate selected %v, want fast", strat.Kind())
	}

	c.Verification.ActiveBackend = types.BackendFast
	c.Verification.FastAttempts = 3
	strat, err = m.Select(c)
	if err != nil {
		t.Fatal(err)
	}
	if strat.Kind() != types.BackendSlow {
		t.Fatalf("exhausted candidate selected %v, want slow", strat.Kind())
	}
}

func TestSelectRejectsIneligibleRegion(t *testing.T) {
	m := testManager(&stubBackend{}, &stubBackend{})

	c := freshCandidate()
	c.LastBox = types.Region{X: 0.5, Y: 0.5, W: 0.01, H: 0.01} // below min area

	if _, err := m.Select(c); !errors.Is(err, ErrNoStrategy) {
		t.Fatalf("err = %v, want ErrNoStrategy", err)
	}

	c.LastBox = types.Region{} // drift repair left it ungrounded
	if _, err := m.Select(c); !errors.Is(err, ErrNoStrategy) {
		t.Fatalf("ungrounded region: err = %v, want ErrNoStrategy", err)
	}
}

func TestRegistrationOrderBreaksTies(t *testing.T) {
	// Two fast strategies at identical priority: the first registered
	// must win.
	policy := DefaultPolicy()
	gate := DefaultGate()
	first := &stubBackend{}
	second := &stubBackend{}
	m := NewManager(time.Second,
		NewFastStrategy(first, policy, gate, testTarget()),
		NewFastStrategy(second, policy, gate, testTarget()),
	)

	st := store.New(store.DefaultThresholds())
	c := freshCandidate()
	st.Upsert(&c)

	if _, _, err := m.Verify(context.Background(), types.Frame{}, c, st); err != nil {
		t.Fatal(err)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Fatalf("tie not broken by registration order: first=%d second=%d", first.calls, second.calls)
	}
}

func TestSwitchZeroesTargetBackendCounter(t *testing.T) {
	m := testManager(&stubBackend{}, &stubBackend{out: types.Outcome{RejectReason: types.RejectUnclearImage}})
	st := store.New(store.DefaultThresholds())

	// Fast loop exhausted, with stale slow failures from an earlier
	// excursion. Switching to slow must zero the slow counter only.
	c := freshCandidate()
	c.Verification.ActiveBackend = types.BackendFast
	c.Verification.FastAttempts = 3
	c.Verification.SlowAttempts = 2
	st.Upsert(&c)

	kind, _, err := m.Verify(context.Background(), types.Frame{}, c, st)
	if err != nil {
		t.Fatal(err)
	}
	if kind != types.BackendSlow {
		t.Fatalf("invoked %v, want slow", kind)
	}

	got := st.Snapshot()[0].Verification
	if got.SlowAttempts != 0 {
		t.Errorf("slow counter = %d, want 0 after switch", got.SlowAttempts)
	}
	if got.FastAttempts != 3 {
		t.Errorf("fast counter = %d, want untouched 3", got.FastAttempts)
	}
	if got.ActiveBackend != types.BackendSlow {
		t.Errorf("active backend = %v, want slow", got.ActiveBackend)
	}
}

func TestNoResetWithoutSwitch(t *testing.T) {
	m := testManager(&stubBackend{}, &stubBackend{})
	st := store.New(store.DefaultThresholds())

	c := freshCandidate()
	c.Verification.ActiveBackend = types.BackendFast
	c.Verification.FastAttempts = 2
	st.Upsert(&c)

	if _, _, err := m.Verify(context.Background(), types.Frame{}, c, st); err != nil {
		t.Fatal(err)
	}
	if got := st.Snapshot()[0].Verification.FastAttempts; got != 2 {
		t.Fatalf("staying on the same backend reset its counter: %d", got)
	}
}

func TestBackendErrorBecomesRetryableOutcome(t *testing.T) {
	m := testManager(&stubBackend{err: errors.New("connection refused")}, &stubBackend{})
	st := store.New(store.DefaultThresholds())

	c := freshCandidate()
	st.Upsert(&c)

	_, out, err := m.Verify(context.Background(), types.Frame{}, c, st)
	if err != nil {
		t.Fatal(err)
	}
	if out.IsMatch || out.RejectReason != types.RejectAPIError {
		t.Fatalf("transport failure not folded into api_error: %+v", out)
	}
	if !out.RejectReason.Retryable() {
		t.Fatal("api_error must be retryable")
	}
}

func TestBackendTimeoutBecomesRetryableOutcome(t *testing.T) {
	slowCall := &stubBackend{delay: time.Second, out: types.Outcome{IsMatch: true}}
	policy := DefaultPolicy()
	gate := DefaultGate()
	m := NewManager(20*time.Millisecond,
		NewFastStrategy(slowCall, policy, gate, testTarget()),
	)
	st := store.New(store.DefaultThresholds())

	c := freshCandidate()
	st.Upsert(&c)

	_, out, err := m.Verify(context.Background(), types.Frame{}, c, st)
	if err != nil {
		t.Fatal(err)
	}
	if out.IsMatch || out.RejectReason != types.RejectAPIError {
		t.Fatalf("timeout not folded into api_error: %+v", out)
	}
}
