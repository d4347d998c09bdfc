package verify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/wayfinder/internal/store"
	"github.com/e7canasta/wayfinder/internal/types"
)

func immediateConfig() ServiceConfig {
	// Zero intervals: every tick dispatches, every candidate eligible.
	return ServiceConfig{}
}

func seedUnknown(st *store.Store) uuid.UUID {
	c := freshCandidate()
	st.Upsert(&c)
	return c.ID
}

func boolPtr(b bool) *bool { return &b }

func TestOnlyUnknownCandidatesDispatched(t *testing.T) {
	backend := &stubBackend{out: types.Outcome{RejectReason: types.RejectUnclearImage}}
	svc := NewService(immediateConfig(), testManager(backend, &stubBackend{}), nil)
	st := store.New(store.DefaultThresholds())

	seedUnknown(st)
	for _, status := range []types.MatchStatus{
		types.StatusWaiting, types.StatusPartial, types.StatusFull,
		types.StatusRejected, types.StatusLost,
	} {
		c := freshCandidate()
		c.Status = status
		st.Upsert(&c)
	}

	dispatched := svc.Tick(context.Background(), types.Frame{}, st)
	svc.Wait()

	if dispatched != 1 {
		t.Fatalf("dispatched %d calls, want 1 (the unknown candidate)", dispatched)
	}
	if backend.calls != 1 {
		t.Fatalf("backend invoked %d times, want 1", backend.calls)
	}
}

func TestFullMatchWithPlate(t *testing.T) {
	backend := &stubBackend{out: types.Outcome{
		IsMatch:    true,
		PlateMatch: boolPtr(true),
		OCRText:    "7ABC123",
	}}
	svc := NewService(immediateConfig(), testManager(backend, &stubBackend{}), nil)
	st := store.New(store.DefaultThresholds())
	id := seedUnknown(st)

	svc.Tick(context.Background(), types.Frame{}, st)
	svc.Wait()

	snap := st.Snapshot()
	if len(snap) != 1 || snap[0].ID != id {
		t.Fatalf("unexpected store contents: %+v", snap)
	}
	if snap[0].Status != types.StatusFull {
		t.Fatalf("status = %v, want full", snap[0].Status)
	}
	if snap[0].OCRText != "7ABC123" {
		t.Fatalf("ocr text not recorded: %q", snap[0].OCRText)
	}
}

func TestMatchWithoutPlateIsPartial(t *testing.T) {
	backend := &stubBackend{out: types.Outcome{IsMatch: true}}
	svc := NewService(immediateConfig(), testManager(backend, &stubBackend{}), nil)
	st := store.New(store.DefaultThresholds())
	seedUnknown(st)

	svc.Tick(context.Background(), types.Frame{}, st)
	svc.Wait()

	if got := st.Snapshot()[0].Status; got != types.StatusPartial {
		t.Fatalf("status = %v, want partial", got)
	}
}

func TestTerminalRejectionSticks(t *testing.T) {
	backend := &stubBackend{out: types.Outcome{RejectReason: types.RejectWrongModelOrColor}}
	svc := NewService(immediateConfig(), testManager(backend, &stubBackend{}), nil)
	st := store.New(store.DefaultThresholds())
	seedUnknown(st)

	svc.Tick(context.Background(), types.Frame{}, st)
	svc.Wait()

	got := st.Snapshot()[0]
	if got.Status != types.StatusRejected {
		t.Fatalf("status = %v, want rejected", got.Status)
	}
	if got.RejectReason != types.RejectWrongModelOrColor {
		t.Fatalf("reason = %v, want wrong_model_or_color", got.RejectReason)
	}
}

func TestRetryableRejectionIncrementsCounter(t *testing.T) {
	backend := &stubBackend{out: types.Outcome{RejectReason: types.RejectPlateNotVisible}}
	svc := NewService(immediateConfig(), testManager(backend, &stubBackend{}), nil)
	st := store.New(store.DefaultThresholds())
	seedUnknown(st)

	svc.Tick(context.Background(), types.Frame{}, st)
	svc.Wait()

	got := st.Snapshot()[0]
	if got.Status != types.StatusUnknown {
		t.Fatalf("status = %v, want unknown (eligible for retry)", got.Status)
	}
	if got.Verification.FastAttempts != 1 {
		t.Fatalf("fast attempts = %d, want 1", got.Verification.FastAttempts)
	}
	if got.Verification.SlowAttempts != 0 {
		t.Fatalf("slow attempts = %d, want 0", got.Verification.SlowAttempts)
	}
}

func TestGlobalIntervalGatesBatches(t *testing.T) {
	backend := &stubBackend{out: types.Outcome{RejectReason: types.RejectUnclearImage}}
	cfg := ServiceConfig{GlobalInterval: 2 * time.Second}
	svc := NewService(cfg, testManager(backend, &stubBackend{}), nil)
	st := store.New(store.DefaultThresholds())
	seedUnknown(st)

	base := time.Now()
	svc.now = func() time.Time { return base }

	if got := svc.Tick(context.Background(), types.Frame{}, st); got != 1 {
		t.Fatalf("first tick dispatched %d, want 1", got)
	}
	svc.Wait()

	// Inside the window: no batch, even though the candidate is back
	// to unknown.
	svc.now = func() time.Time { return base.Add(time.Second) }
	if got := svc.Tick(context.Background(), types.Frame{}, st); got != 0 {
		t.Fatalf("tick inside the global interval dispatched %d", got)
	}

	svc.now = func() time.Time { return base.Add(3 * time.Second) }
	if got := svc.Tick(context.Background(), types.Frame{}, st); got != 1 {
		t.Fatalf("tick after the global interval dispatched %d, want 1", got)
	}
	svc.Wait()
}

func TestPerCandidateIntervalGatesCalls(t *testing.T) {
	backend := &stubBackend{out: types.Outcome{RejectReason: types.RejectUnclearImage}}
	cfg := ServiceConfig{PerCandidateInterval: 800 * time.Millisecond}
	svc := NewService(cfg, testManager(backend, &stubBackend{}), nil)
	st := store.New(store.DefaultThresholds())
	seedUnknown(st)

	base := time.Now()
	svc.now = func() time.Time { return base }
	svc.Tick(context.Background(), types.Frame{}, st)
	svc.Wait()

	// Global gate is open (zero interval) but this candidate was called
	// too recently.
	svc.now = func() time.Time { return base.Add(200 * time.Millisecond) }
	if got := svc.Tick(context.Background(), types.Frame{}, st); got != 0 {
		t.Fatalf("per-candidate interval not enforced: dispatched %d", got)
	}

	svc.now = func() time.Time { return base.Add(time.Second) }
	if got := svc.Tick(context.Background(), types.Frame{}, st); got != 1 {
		t.Fatalf("eligible candidate not dispatched: %d", got)
	}
	svc.Wait()
}

func TestNoStrategyReleasesCandidate(t *testing.T) {
	svc := NewService(immediateConfig(), testManager(&stubBackend{}, &stubBackend{}), nil)
	st := store.New(store.DefaultThresholds())

	c := freshCandidate()
	c.LastBox = types.Region{} // ungrounded: no strategy will take it
	st.Upsert(&c)

	svc.Tick(context.Background(), types.Frame{}, st)
	svc.Wait()

	if got := st.Snapshot()[0].Status; got != types.StatusUnknown {
		t.Fatalf("status = %v, want unknown (released for a later cycle)", got)
	}
}

func TestCompletionAfterResetIsNoOp(t *testing.T) {
	backend := &stubBackend{
		out:   types.Outcome{IsMatch: true, PlateMatch: boolPtr(true)},
		delay: 50 * time.Millisecond,
	}
	svc := NewService(immediateConfig(), testManager(backend, &stubBackend{}), nil)
	st := store.New(store.DefaultThresholds())
	seedUnknown(st)

	svc.Tick(context.Background(), types.Frame{}, st)

	// Session reset while the call is in flight.
	st.Clear()
	svc.Wait()

	if st.Len() != 0 {
		t.Fatalf("late completion resurrected a candidate: %+v", st.Snapshot())
	}
}

func TestOutcomeObserverInvoked(t *testing.T) {
	backend := &stubBackend{out: types.Outcome{IsMatch: true}}

	var mu sync.Mutex
	var gotID uuid.UUID
	var gotKind types.BackendKind
	observer := func(id uuid.UUID, kind types.BackendKind, out types.Outcome) {
		mu.Lock()
		gotID, gotKind = id, kind
		mu.Unlock()
	}

	svc := NewService(immediateConfig(), testManager(backend, &stubBackend{}), observer)
	st := store.New(store.DefaultThresholds())
	id := seedUnknown(st)

	svc.Tick(context.Background(), types.Frame{}, st)
	svc.Wait()

	mu.Lock()
	defer mu.Unlock()
	if gotID != id || gotKind != types.BackendFast {
		t.Fatalf("observer saw %v/%v, want %v/fast", gotID, gotKind, id)
	}
}
