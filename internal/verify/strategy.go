package verify

import (
	"context"

	"github.com/e7canasta/wayfinder/internal/types"
)

// Backend is one external verification service. Failures surface as
// typed outcomes where possible; transport-level errors are returned
// and mapped to a retryable api_error outcome by the strategy.
type Backend interface {
	Verify(ctx context.Context, frame types.Frame, region types.Region, target types.TargetSpec) (types.Outcome, error)
}

// Strategy wraps a backend with the selection contract the manager
// dispatches on.
type Strategy interface {
	Kind() types.BackendKind
	ShouldUse(c types.Candidate) bool
	Priority(c types.Candidate) int
	Verify(ctx context.Context, frame types.Frame, c types.Candidate) types.Outcome
}

// Gate is the eligibility check shared by all strategies: it protects
// both backends from wasted calls on too-small or degenerate regions.
type Gate struct {
	// MinBoxArea is the minimum normalized box area (fraction of the
	// frame) a candidate must cover.
	MinBoxArea float64
	// MaxAspect is the maximum height/width ratio.
	MaxAspect float64
}

// DefaultGate matches the tuned production values.
func DefaultGate() Gate {
	return Gate{MinBoxArea: 0.01, MaxAspect: 3}
}

// Eligible reports whether the candidate's region is worth a
// verification call at all.
func (g Gate) Eligible(c types.Candidate) bool {
	if c.LastBox.IsEmpty() {
		return false
	}
	return c.LastBox.Area() >= g.MinBoxArea && c.LastBox.AspectRatio() <= g.MaxAspect
}

// Priority bands: the strategy the policy points at wins outright;
// base values keep fast ahead of slow when the policy is indifferent
// and registration order breaks exact ties.
const (
	priorityPreferred = 100
	priorityFastBase  = 10
	prioritySlowBase  = 5
)

// FastStrategy drives the structured-recognition backend: cheap,
// seconds-scale, precise make/model/plate attributes.
type FastStrategy struct {
	backend Backend
	policy  Policy
	gate    Gate
	target  types.TargetSpec
}

// NewFastStrategy builds the fast-backend strategy.
func NewFastStrategy(backend Backend, policy Policy, gate Gate, target types.TargetSpec) *FastStrategy {
	return &FastStrategy{backend: backend, policy: policy, gate: gate, target: target}
}

func (s *FastStrategy) Kind() types.BackendKind { return types.BackendFast }

func (s *FastStrategy) ShouldUse(c types.Candidate) bool { return s.gate.Eligible(c) }

func (s *FastStrategy) Priority(c types.Candidate) int {
	if s.policy.NextKind(c) == types.BackendFast {
		return priorityPreferred
	}
	return priorityFastBase
}

func (s *FastStrategy) Verify(ctx context.Context, frame types.Frame, c types.Candidate) types.Outcome {
	return callBackend(ctx, s.backend, frame, c.LastBox, s.target)
}

// SlowStrategy drives the semantic-reasoning backend: many-seconds
// scale, tolerant of ambiguity and partial views.
type SlowStrategy struct {
	backend Backend
	policy  Policy
	gate    Gate
	target  types.TargetSpec
}

// NewSlowStrategy builds the slow-backend strategy.
func NewSlowStrategy(backend Backend, policy Policy, gate Gate, target types.TargetSpec) *SlowStrategy {
	return &SlowStrategy{backend: backend, policy: policy, gate: gate, target: target}
}

func (s *SlowStrategy) Kind() types.BackendKind { return types.BackendSlow }

func (s *SlowStrategy) ShouldUse(c types.Candidate) bool { return s.gate.Eligible(c) }

func (s *SlowStrategy) Priority(c types.Candidate) int {
	if s.policy.NextKind(c) == types.BackendSlow {
		return priorityPreferred
	}
	return prioritySlowBase
}

func (s *SlowStrategy) Verify(ctx context.Context, frame types.Frame, c types.Candidate) types.Outcome {
	return callBackend(ctx, s.backend, frame, c.LastBox, s.target)
}

// callBackend invokes a backend and folds transport failures and
// timeouts into the retryable api_error outcome, so a call is never
// left pending and never panics the tick.
func callBackend(ctx context.Context, b Backend, frame types.Frame, region types.Region, target types.TargetSpec) types.Outcome {
	out, err := b.Verify(ctx, frame, region, target)
	if err != nil {
		// Timeouts and transport failures alike: retryable, never pending.
		return types.Outcome{RejectReason: types.RejectAPIError}
	}
	return out
}
