// Package phase derives the single global detection phase from a
// candidate snapshot. Compute is a pure function so it can be tested
// and reasoned about in isolation from the pipeline.
package phase

import (
	"github.com/google/uuid"

	"github.com/e7canasta/wayfinder/internal/types"
)

// Kind is the global pipeline phase.
type Kind string

const (
	Searching Kind = "searching"
	Verifying Kind = "verifying"
	Found     Kind = "found"
)

// Phase is the derived global state published every tick.
type Phase struct {
	Kind Kind `json:"kind"`
	// CandidateIDs lists the candidates under verification (Verifying)
	// or the single winner (Found). Empty while Searching.
	CandidateIDs []uuid.UUID `json:"candidate_ids,omitempty"`
}

// Compute reduces a snapshot to a phase:
//
//	empty snapshot        -> Searching
//	any full candidate    -> Found(first full in snapshot order)
//	otherwise             -> Verifying(all candidate ids)
//
// The first-full rule relies on the store pruning to a single winner
// upstream; snapshot order (not recency) breaks any transient tie.
func Compute(snapshot []types.Candidate) Phase {
	if len(snapshot) == 0 {
		return Phase{Kind: Searching}
	}

	for _, c := range snapshot {
		if c.Status == types.StatusFull {
			return Phase{Kind: Found, CandidateIDs: []uuid.UUID{c.ID}}
		}
	}

	ids := make([]uuid.UUID, len(snapshot))
	for i, c := range snapshot {
		ids[i] = c.ID
	}
	return Phase{Kind: Verifying, CandidateIDs: ids}
}

// Equal reports whether two phases are the same, including their
// candidate sets. Used to detect transitions worth journaling.
func (p Phase) Equal(o Phase) bool {
	if p.Kind != o.Kind || len(p.CandidateIDs) != len(o.CandidateIDs) {
		return false
	}
	for i := range p.CandidateIDs {
		if p.CandidateIDs[i] != o.CandidateIDs[i] {
			return false
		}
	}
	return true
}
