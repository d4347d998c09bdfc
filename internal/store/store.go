// Package store owns the candidate registry. It is the single
// serialization point of the pipeline: the frame tick and any number
// of in-flight verification completions all mutate candidates through
// this one mutex. No caller ever receives a live reference into the
// backing map.
package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/wayfinder/internal/types"
)

// Thresholds configures duplicate suppression.
type Thresholds struct {
	// DupIoU is the overlap above which a detection counts as a
	// duplicate of an existing candidate.
	DupIoU float64
	// DupCenterDist is the normalized center distance below which a
	// detection counts as a duplicate.
	DupCenterDist float64
}

// DefaultThresholds matches the tuned production values.
func DefaultThresholds() Thresholds {
	return Thresholds{DupIoU: 0.6, DupCenterDist: 0.15}
}

// Store is the thread-safe candidate registry for one search session.
type Store struct {
	mu         sync.Mutex
	candidates map[uuid.UUID]*types.Candidate
	order      []uuid.UUID // insertion order, drives snapshot ordering
	thresholds Thresholds

	now func() time.Time // test seam
}

// New creates an empty store.
func New(t Thresholds) *Store {
	return &Store{
		candidates: make(map[uuid.UUID]*types.Candidate),
		thresholds: t,
		now:        time.Now,
	}
}

// Upsert inserts or replaces a candidate by identity.
func (s *Store) Upsert(c *types.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.candidates[c.ID]; !exists {
		s.order = append(s.order, c.ID)
	}
	cp := c.Clone()
	s.candidates[c.ID] = &cp
}

// Remove deletes a candidate and closes its tracking handle. No-op if
// the id is absent.
func (s *Store) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Store) removeLocked(id uuid.UUID) {
	c, ok := s.candidates[id]
	if !ok {
		return
	}
	if c.Tracking != nil {
		c.Tracking.Close()
	}
	delete(s.candidates, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Update applies mutate to the candidate if present and stamps
// LastUpdated. A missing id is a silent no-op: verification
// completions racing a session reset are expected, not exceptional.
func (s *Store) Update(id uuid.UUID, mutate func(*types.Candidate)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.candidates[id]
	if !ok {
		return
	}
	mutate(c)
	c.LastUpdated = s.now()
}

// Snapshot returns value copies of all candidates in insertion order,
// decoupled from subsequent mutations.
func (s *Store) Snapshot() []types.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.Candidate, 0, len(s.order))
	for _, id := range s.order {
		if c, ok := s.candidates[id]; ok {
			out = append(out, c.Clone())
		}
	}
	return out
}

// Len returns the number of candidates.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.candidates)
}

// ContainsDuplicateOf reports whether box overlaps or is center-close
// to any candidate that is not lost. Lost candidates do not suppress
// new detections; drift repair may still reclaim them by appearance.
func (s *Store) ContainsDuplicateOf(box types.Region) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.candidates {
		if c.Status == types.StatusLost {
			continue
		}
		if box.IoU(c.LastBox) > s.thresholds.DupIoU {
			return true
		}
		if box.CenterDistance(c.LastBox) < s.thresholds.DupCenterDist {
			return true
		}
	}
	return false
}

// HasActiveMatch reports whether any candidate is fully matched.
// Partial matches do not count.
func (s *Store) HasActiveMatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.candidates {
		if c.Status == types.StatusFull {
			return true
		}
	}
	return false
}

// PruneToSingleMatched enforces the single-winner invariant: among
// all fully matched candidates only the most recently updated
// survives; the rest are removed.
func (s *Store) PruneToSingleMatched() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var winner *types.Candidate
	for _, id := range s.order {
		c := s.candidates[id]
		if c == nil || c.Status != types.StatusFull {
			continue
		}
		if winner == nil || c.LastUpdated.After(winner.LastUpdated) {
			winner = c
		}
	}
	if winner == nil {
		return
	}

	var losers []uuid.UUID
	for _, id := range s.order {
		c := s.candidates[id]
		if c != nil && c.Status == types.StatusFull && c.ID != winner.ID {
			losers = append(losers, id)
		}
	}
	for _, id := range losers {
		s.removeLocked(id)
	}
}

// Clear removes every candidate and closes their tracking handles.
// In-flight verification completions become no-ops afterwards.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.candidates {
		if c.Tracking != nil {
			c.Tracking.Close()
		}
	}
	s.candidates = make(map[uuid.UUID]*types.Candidate)
	s.order = nil
}
