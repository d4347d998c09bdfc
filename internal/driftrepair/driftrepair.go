// Package driftrepair periodically re-grounds candidate regions in
// fresh detections by appearance similarity. A fast-moving camera
// makes pure IoU association unreliable; cosine similarity against a
// stored embedding is what lets a drifted (or lost) candidate snap
// back onto the real object.
package driftrepair

import (
	"log/slog"

	"github.com/e7canasta/wayfinder/internal/store"
	"github.com/e7canasta/wayfinder/internal/types"
)

// Embedder computes appearance embeddings for frame regions.
type Embedder interface {
	ComputeEmbedding(frame types.Frame, region types.Region) (types.Embedding, error)
}

// Config holds the drift-repair knobs.
type Config struct {
	// Stride is the number of frames between active repair cycles.
	Stride int
	// SimThreshold is the cosine similarity a detection must STRICTLY
	// exceed to re-anchor a candidate.
	SimThreshold float64
}

// DefaultConfig matches the tuned production values (stride 15 is
// roughly every half second at 30fps).
func DefaultConfig() Config {
	return Config{Stride: 15, SimThreshold: 0.90}
}

// Service runs the stride-gated repair cycle.
type Service struct {
	cfg      Config
	embedder Embedder
	frames   uint64
}

// New creates a drift-repair service.
func New(cfg Config, embedder Embedder) *Service {
	if cfg.Stride <= 0 {
		cfg.Stride = DefaultConfig().Stride
	}
	return &Service{cfg: cfg, embedder: embedder}
}

// Tick is invoked every frame but only does work every Stride frames.
// Candidates without an embedding are seeded from their current region
// first, so they become repairable. Lost candidates participate:
// re-anchoring is their recovery path, though recovery lands them back
// in unknown, never straight in full.
func (s *Service) Tick(frame types.Frame, detections []types.Detection, st *store.Store) {
	s.frames++
	if s.frames%uint64(s.cfg.Stride) != 0 {
		return
	}
	if st.Len() == 0 || s.embedder == nil {
		return
	}

	snap := st.Snapshot()
	consumed := make([]bool, len(detections))

	// Detection embeddings are computed at most once per cycle.
	detEmb := make([]types.Embedding, len(detections))
	detDone := make([]bool, len(detections))
	embFor := func(i int) types.Embedding {
		if !detDone[i] {
			detDone[i] = true
			emb, err := s.embedder.ComputeEmbedding(frame, detections[i].Box)
			if err != nil {
				slog.Debug("embedding failed", "detection", i, "error", err)
				return nil
			}
			detEmb[i] = emb
		}
		return detEmb[i]
	}

	for _, c := range snap {
		// Rejected candidates are terminal until the cooldown removes
		// them; touching one here would restamp LastUpdated and stall
		// that cooldown.
		if c.Status == types.StatusRejected {
			continue
		}

		if len(c.Embedding) == 0 {
			c.Embedding = s.seedEmbedding(frame, st, c)
		}
		if len(c.Embedding) == 0 {
			// Still nothing to compare against: no grounding this cycle.
			s.markUngrounded(st, c)
			continue
		}

		best := -1
		bestSim := s.cfg.SimThreshold
		for i := range detections {
			if consumed[i] || detections[i].Box.IsEmpty() {
				continue
			}
			emb := embFor(i)
			if emb == nil {
				continue
			}
			// Strict inequality: similarity equal to the threshold is
			// not a match.
			if sim := c.Embedding.Similarity(emb); sim > bestSim {
				best, bestSim = i, sim
			}
		}

		if best < 0 {
			s.markUngrounded(st, c)
			continue
		}

		consumed[best] = true
		d := detections[best]
		emb := detEmb[best]
		wasLost := c.Status == types.StatusLost
		st.Update(c.ID, func(c *types.Candidate) {
			c.LastBox = d.Box
			c.Embedding = emb
			c.MissCount = 0
			if c.Status == types.StatusLost {
				// Re-acquiring visual contact is not proof of identity:
				// the candidate must re-verify.
				c.Status = types.StatusUnknown
			}
		})
		slog.Debug("candidate re-anchored",
			"candidate_id", c.ID,
			"similarity", bestSim,
			"recovered", wasLost,
		)
	}
}

// seedEmbedding computes a candidate's first appearance embedding
// from its current region. Until seeded, a candidate cannot be
// re-anchored or recovered; every candidate that still has a grounded
// box gets one here on its first active cycle.
func (s *Service) seedEmbedding(frame types.Frame, st *store.Store, c types.Candidate) types.Embedding {
	if c.LastBox.IsEmpty() {
		return nil
	}
	emb, err := s.embedder.ComputeEmbedding(frame, c.LastBox)
	if err != nil {
		slog.Debug("embedding failed", "candidate_id", c.ID, "error", err)
		return nil
	}
	if len(emb) == 0 {
		return nil
	}
	st.Update(c.ID, func(c *types.Candidate) {
		c.Embedding = emb
	})
	return emb
}

// markUngrounded stamps the empty-region sentinel so downstream
// consumers know the candidate has no grounding this cycle.
func (s *Service) markUngrounded(st *store.Store, c types.Candidate) {
	st.Update(c.ID, func(c *types.Candidate) {
		c.LastBox = types.Region{}
	})
}
