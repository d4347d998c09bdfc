package verify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/e7canasta/wayfinder/internal/store"
	"github.com/e7canasta/wayfinder/internal/types"
)

// ErrNoStrategy means no registered strategy accepted the candidate
// this cycle. It is a recoverable condition, not a failure: the
// candidate is simply skipped until it becomes eligible.
var ErrNoStrategy = errors.New("verify: no suitable strategy")

// Manager selects a strategy per candidate, performs the switch-reset
// bookkeeping, and invokes the chosen backend under a bounded context.
type Manager struct {
	strategies []Strategy // registration order breaks priority ties
	timeout    time.Duration
}

// NewManager registers strategies in priority-tie order. timeout
// bounds every backend call; a non-positive value gets the 5s default.
func NewManager(timeout time.Duration, strategies ...Strategy) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{strategies: strategies, timeout: timeout}
}

// Select returns the highest-priority strategy reporting ShouldUse,
// ties broken by registration order.
func (m *Manager) Select(c types.Candidate) (Strategy, error) {
	var best Strategy
	bestPriority := 0
	for _, s := range m.strategies {
		if !s.ShouldUse(c) {
			continue
		}
		if best == nil || s.Priority(c) > bestPriority {
			best = s
			bestPriority = s.Priority(c)
		}
	}
	if best == nil {
		return nil, ErrNoStrategy
	}
	return best, nil
}

// Verify runs one verification attempt for the candidate. Before
// invoking, it applies the switch rule: moving to a different backend
// zeroes that backend's counter (keyed by candidate id through the
// store, so out-of-order completions stay idempotent). Returns the
// backend kind that was invoked alongside the outcome.
func (m *Manager) Verify(ctx context.Context, frame types.Frame, c types.Candidate, st *store.Store) (types.BackendKind, types.Outcome, error) {
	strat, err := m.Select(c)
	if err != nil {
		return types.BackendNone, types.Outcome{}, err
	}
	kind := strat.Kind()

	if c.Verification.ActiveBackend != kind {
		switched := c.Verification.ActiveBackend != types.BackendNone
		st.Update(c.ID, func(c *types.Candidate) {
			switch kind {
			case types.BackendFast:
				c.Verification.FastAttempts = 0
			case types.BackendSlow:
				c.Verification.SlowAttempts = 0
			}
			c.Verification.ActiveBackend = kind
		})
		if switched {
			slog.Debug("verification backend switch",
				"candidate_id", c.ID,
				"from", c.Verification.ActiveBackend,
				"to", kind,
			)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	return kind, strat.Verify(cctx, frame, c), nil
}
