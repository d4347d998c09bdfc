package phase

import (
	"testing"
	"time"

	"github.com/e7canasta/wayfinder/internal/types"
)

func candidate(status types.MatchStatus) types.Candidate {
	c := types.NewCandidate(types.Region{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}, nil, time.Now())
	c.Status = status
	return *c
}

func TestEmptySnapshotIsSearching(t *testing.T) {
	p := Compute(nil)
	if p.Kind != Searching {
		t.Fatalf("phase = %v, want searching", p.Kind)
	}
	if len(p.CandidateIDs) != 0 {
		t.Fatalf("searching phase carries candidate ids: %v", p.CandidateIDs)
	}
}

func TestCandidatesWithoutFullIsVerifying(t *testing.T) {
	snap := []types.Candidate{
		candidate(types.StatusUnknown),
		candidate(types.StatusWaiting),
		candidate(types.StatusPartial),
	}

	p := Compute(snap)
	if p.Kind != Verifying {
		t.Fatalf("phase = %v, want verifying", p.Kind)
	}
	if len(p.CandidateIDs) != 3 {
		t.Fatalf("got %d ids, want 3", len(p.CandidateIDs))
	}
	for i, c := range snap {
		if p.CandidateIDs[i] != c.ID {
			t.Fatal("verifying ids not in snapshot order")
		}
	}
}

func TestFullCandidateIsFound(t *testing.T) {
	winner := candidate(types.StatusFull)
	snap := []types.Candidate{candidate(types.StatusUnknown), winner}

	p := Compute(snap)
	if p.Kind != Found {
		t.Fatalf("phase = %v, want found", p.Kind)
	}
	if len(p.CandidateIDs) != 1 || p.CandidateIDs[0] != winner.ID {
		t.Fatalf("found ids = %v, want [%v]", p.CandidateIDs, winner.ID)
	}
}

func TestFirstFullWinsInSnapshotOrder(t *testing.T) {
	first := candidate(types.StatusFull)
	second := candidate(types.StatusFull)
	// The second is more recent; ordering, not recency, must decide.
	second.LastUpdated = first.LastUpdated.Add(time.Second)

	p := Compute([]types.Candidate{first, second})
	if p.CandidateIDs[0] != first.ID {
		t.Fatal("found did not pick the first full candidate in snapshot order")
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	snap := []types.Candidate{
		candidate(types.StatusUnknown),
		candidate(types.StatusFull),
		candidate(types.StatusRejected),
	}

	first := Compute(snap)
	for i := 0; i < 10; i++ {
		if got := Compute(snap); !got.Equal(first) {
			t.Fatalf("Compute not deterministic: %v vs %v", got, first)
		}
	}
}

func TestPhaseEqual(t *testing.T) {
	a := Compute([]types.Candidate{candidate(types.StatusUnknown)})
	b := Compute(nil)

	if a.Equal(b) {
		t.Fatal("verifying and searching compare equal")
	}
	if !a.Equal(a) {
		t.Fatal("phase not equal to itself")
	}
}
