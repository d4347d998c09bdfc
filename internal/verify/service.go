package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/wayfinder/internal/store"
	"github.com/e7canasta/wayfinder/internal/types"
)

// ServiceConfig holds the rate-limiting knobs. Rate limiting lives
// here, not in the policy/strategy layer.
type ServiceConfig struct {
	// GlobalInterval is the minimum time between verification batches.
	GlobalInterval time.Duration
	// PerCandidateInterval is the minimum time between calls for one
	// candidate.
	PerCandidateInterval time.Duration
}

// DefaultServiceConfig matches the tuned production values.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		GlobalInterval:       2 * time.Second,
		PerCandidateInterval: 800 * time.Millisecond,
	}
}

// OutcomeFunc observes applied verification outcomes (journal, MQTT
// event emission). Called from the completion goroutine.
type OutcomeFunc func(id uuid.UUID, kind types.BackendKind, out types.Outcome)

// Service dispatches verification calls for unknown candidates.
// Dispatch is fire-and-forget from the frame tick; completions write
// back through store.Update keyed by candidate id, which makes a
// completion racing a session reset a silent no-op.
type Service struct {
	cfg       ServiceConfig
	manager   *Manager
	onOutcome OutcomeFunc

	mu        sync.Mutex
	lastBatch time.Time
	lastCall  map[uuid.UUID]time.Time

	wg  sync.WaitGroup
	now func() time.Time
}

// NewService creates a verifier service. onOutcome may be nil.
func NewService(cfg ServiceConfig, manager *Manager, onOutcome OutcomeFunc) *Service {
	return &Service{
		cfg:       cfg,
		manager:   manager,
		onOutcome: onOutcome,
		lastCall:  make(map[uuid.UUID]time.Time),
		now:       time.Now,
	}
}

// Tick dispatches one verification batch if the global interval has
// elapsed. Only unknown candidates are considered; dispatched ones are
// parked in waiting until their outcome lands. Returns the number of
// calls dispatched.
func (s *Service) Tick(ctx context.Context, frame types.Frame, st *store.Store) int {
	now := s.now()

	s.mu.Lock()
	if !s.lastBatch.IsZero() && now.Sub(s.lastBatch) < s.cfg.GlobalInterval {
		s.mu.Unlock()
		return 0
	}
	s.lastBatch = now
	s.mu.Unlock()

	snap := st.Snapshot()
	dispatched := 0
	for _, c := range snap {
		if c.Status != types.StatusUnknown {
			continue
		}

		s.mu.Lock()
		if last, ok := s.lastCall[c.ID]; ok && now.Sub(last) < s.cfg.PerCandidateInterval {
			s.mu.Unlock()
			continue
		}
		s.lastCall[c.ID] = now
		s.mu.Unlock()

		st.Update(c.ID, func(c *types.Candidate) {
			c.Status = types.StatusWaiting
		})

		s.wg.Add(1)
		dispatched++
		go func(cand types.Candidate) {
			defer s.wg.Done()
			s.verifyOne(ctx, frame, cand, st)
		}(c)
	}

	s.pruneLastCall(snap)
	return dispatched
}

// Wait blocks until all in-flight verification calls have completed.
// Used for graceful shutdown and tests.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) verifyOne(ctx context.Context, frame types.Frame, cand types.Candidate, st *store.Store) {
	kind, out, err := s.manager.Verify(ctx, frame, cand, st)
	if err != nil {
		// No suitable strategy: release the candidate for a later cycle.
		st.Update(cand.ID, func(c *types.Candidate) {
			if c.Status == types.StatusWaiting {
				c.Status = types.StatusUnknown
			}
		})
		slog.Debug("verification skipped", "candidate_id", cand.ID, "reason", err)
		return
	}

	s.apply(st, cand.ID, kind, out)

	if s.onOutcome != nil {
		s.onOutcome(cand.ID, kind, out)
	}
}

// apply merges one outcome into present store state. The candidate
// may have been removed meanwhile; Update handles that as a no-op.
func (s *Service) apply(st *store.Store, id uuid.UUID, kind types.BackendKind, out types.Outcome) {
	st.Update(id, func(c *types.Candidate) {
		if out.View != nil {
			c.UpgradeView(out.View.View, out.View.Confidence)
		}
		if out.Description != "" {
			c.Description = out.Description
		}
		if out.OCRText != "" {
			c.OCRText = out.OCRText
			c.OCRAttempts++
		}

		switch {
		case out.IsMatch && out.PlateMatch != nil && *out.PlateMatch:
			c.Status = types.StatusFull
			c.RejectReason = types.RejectNone

		case out.IsMatch:
			// Positive but without plate corroboration.
			c.Status = types.StatusPartial
			c.RejectReason = types.RejectNone

		case out.RejectReason.Terminal():
			c.Status = types.StatusRejected
			c.RejectReason = out.RejectReason

		default:
			// Retryable: back to unknown, the escalation loop continues.
			c.Status = types.StatusUnknown
			c.RejectReason = out.RejectReason
			switch kind {
			case types.BackendFast:
				c.Verification.FastAttempts++
			case types.BackendSlow:
				c.Verification.SlowAttempts++
			}
		}
	})

	// An async full transition may race another winner.
	st.PruneToSingleMatched()
}

// pruneLastCall drops rate-limit entries for candidates that no
// longer exist, so the map does not grow across sessions.
func (s *Service) pruneLastCall(snap []types.Candidate) {
	alive := make(map[uuid.UUID]struct{}, len(snap))
	for _, c := range snap {
		alive[c.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.lastCall {
		if _, ok := alive[id]; !ok {
			delete(s.lastCall, id)
		}
	}
}
