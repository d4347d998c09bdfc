package types

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the verification state of one candidate.
type MatchStatus string

const (
	StatusUnknown  MatchStatus = "unknown"
	StatusWaiting  MatchStatus = "waiting"
	StatusPartial  MatchStatus = "partial"
	StatusFull     MatchStatus = "full"
	StatusRejected MatchStatus = "rejected"
	StatusLost     MatchStatus = "lost"
)

// View classifies the best observed viewing angle of a candidate.
// Ranks are ordered unknown < side < front/rear; a candidate's view
// only ever moves up in rank.
type View string

const (
	ViewUnknown View = "unknown"
	ViewSide    View = "side"
	ViewFront   View = "front"
	ViewRear    View = "rear"
)

// Rank returns the ordering used for monotonic view upgrades.
func (v View) Rank() int {
	switch v {
	case ViewSide:
		return 1
	case ViewFront, ViewRear:
		return 2
	default:
		return 0
	}
}

// BackendKind identifies one of the two verification backends.
type BackendKind string

const (
	BackendNone BackendKind = ""
	// BackendFast is the structured-recognition service: seconds-scale,
	// precise make/model/plate attributes.
	BackendFast BackendKind = "fast"
	// BackendSlow is the semantic-reasoning service: many-seconds-scale,
	// tolerant of ambiguity and partial views.
	BackendSlow BackendKind = "slow"
)

// VerificationTracker carries the per-backend failure counters and
// the marker for which backend was last invoked. Counters are
// independent; switching backends zeroes the counter of the backend
// being switched to, so the escalation loop never deadlocks.
type VerificationTracker struct {
	FastAttempts  int         `json:"fast_attempts"`
	SlowAttempts  int         `json:"slow_attempts"`
	ActiveBackend BackendKind `json:"active_backend,omitempty"`
}

// TrackingHandle is the core's view of one external single-object
// tracker instance. The core only reads the region it reports and
// closes it when the candidate dies.
type TrackingHandle interface {
	// Region returns the tracker's current region for this object and
	// false once tracking has ended.
	Region() (Region, bool)
	// Close releases the tracker state. Idempotent.
	Close()
}

// Candidate is one physical-object hypothesis tracked across frames.
type Candidate struct {
	ID       uuid.UUID
	Tracking TrackingHandle

	LastBox   Region
	Status    MatchStatus
	MissCount int

	View      View
	ViewScore float64

	Verification VerificationTracker
	Embedding    Embedding

	Description  string
	RejectReason RejectReason
	OCRText      string
	OCRAttempts  int

	CreatedAt   time.Time
	LastUpdated time.Time
}

// NewCandidate creates a candidate from a fresh detection with status
// unknown and a zero miss count.
func NewCandidate(box Region, handle TrackingHandle, now time.Time) *Candidate {
	return &Candidate{
		ID:          uuid.New(),
		Tracking:    handle,
		LastBox:     box,
		Status:      StatusUnknown,
		View:        ViewUnknown,
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// UpgradeView applies the monotonic view upgrade rule: higher rank
// always wins, equal rank keeps the better score, lower rank is
// ignored.
func (c *Candidate) UpgradeView(v View, score float64) {
	switch {
	case v.Rank() > c.View.Rank():
		c.View = v
		c.ViewScore = score
	case v.Rank() == c.View.Rank() && score > c.ViewScore:
		c.ViewScore = score
	}
}

// Clone returns a value copy safe to hand outside the store. The
// tracking handle stays shared since the external tracker owns it; the
// embedding is copied so snapshot holders never observe a re-anchor in
// progress.
func (c *Candidate) Clone() Candidate {
	out := *c
	if c.Embedding != nil {
		out.Embedding = make(Embedding, len(c.Embedding))
		copy(out.Embedding, c.Embedding)
	}
	return out
}
