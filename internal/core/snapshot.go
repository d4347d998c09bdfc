package core

import (
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/wayfinder/internal/phase"
	"github.com/e7canasta/wayfinder/internal/types"
)

// CandidateView is the per-candidate presentation data: region plus a
// UI color keyed by status.
type CandidateView struct {
	ID     uuid.UUID         `json:"id" msgpack:"id"`
	Box    types.Region      `json:"box" msgpack:"box"`
	Status types.MatchStatus `json:"status" msgpack:"status"`
	View   types.View        `json:"view" msgpack:"view"`
	Color  string            `json:"color" msgpack:"color"`
}

// Snapshot is the immutable per-tick presentation value handed to
// sinks. It never aliases store state.
type Snapshot struct {
	Seq        uint64          `json:"seq" msgpack:"seq"`
	Timestamp  time.Time       `json:"timestamp" msgpack:"timestamp"`
	Phase      phase.Phase     `json:"phase" msgpack:"phase"`
	Candidates []CandidateView `json:"candidates,omitempty" msgpack:"candidates"`
}

// statusColors keys UI colors by match status.
var statusColors = map[types.MatchStatus]string{
	types.StatusUnknown:  "yellow",
	types.StatusWaiting:  "orange",
	types.StatusPartial:  "cyan",
	types.StatusFull:     "green",
	types.StatusRejected: "red",
	types.StatusLost:     "gray",
}

// buildSnapshot assembles the presentation value from a store
// snapshot and the derived phase.
func buildSnapshot(frame types.Frame, ph phase.Phase, candidates []types.Candidate) Snapshot {
	views := make([]CandidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, CandidateView{
			ID:     c.ID,
			Box:    c.LastBox,
			Status: c.Status,
			View:   c.View,
			Color:  statusColors[c.Status],
		})
	}
	return Snapshot{
		Seq:        frame.Seq,
		Timestamp:  frame.Timestamp,
		Phase:      ph,
		Candidates: views,
	}
}
