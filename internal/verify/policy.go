// Package verify decides which verification backend evaluates a
// candidate next and manages the retry/escalation loop between the
// fast structured-recognition service and the slow semantic-reasoning
// service, indefinitely, until a terminal outcome.
package verify

import (
	"github.com/e7canasta/wayfinder/internal/types"
)

// Policy is the escalation rule between the two backends. It is a
// pure function of candidate state: querying it never mutates
// anything, so it is idempotent under repeated calls.
type Policy struct {
	// MaxPrimaryRetries is the fast-backend failure count that
	// triggers escalation to the slow backend.
	MaxPrimaryRetries int
	// MaxSlowRetries is the slow-backend failure count that triggers
	// falling back to the fast backend.
	MaxSlowRetries int
}

// DefaultPolicy matches the tuned production values.
func DefaultPolicy() Policy {
	return Policy{MaxPrimaryRetries: 3, MaxSlowRetries: 3}
}

// NextKind returns the backend that should evaluate the candidate
// next. The fast backend is the default; escalation and fallback are
// keyed on the backend the candidate is currently looping on, so the
// two counters stay independent:
//
//	fast (or fresh) + fast exhausted -> slow
//	slow + slow exhausted            -> fast
//
// The manager zeroes the counter of the backend being switched to, so
// the loop repeats indefinitely instead of deadlocking on accumulated
// failures.
func (p Policy) NextKind(c types.Candidate) types.BackendKind {
	v := c.Verification
	if v.ActiveBackend == types.BackendSlow {
		if v.SlowAttempts >= p.MaxSlowRetries {
			return types.BackendFast
		}
		return types.BackendSlow
	}
	if v.FastAttempts >= p.MaxPrimaryRetries {
		return types.BackendSlow
	}
	return types.BackendFast
}
