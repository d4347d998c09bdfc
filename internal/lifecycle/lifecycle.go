// Package lifecycle turns fresh detections plus tracker-updated
// regions into a consistent candidate set for the next frame:
// association, miss bookkeeping, ingestion and the removal policy.
package lifecycle

import (
	"log/slog"
	"time"

	"github.com/e7canasta/wayfinder/internal/store"
	"github.com/e7canasta/wayfinder/internal/types"
)

// Config holds the lifecycle knobs.
type Config struct {
	// AssocIoU is the overlap above which a detection refreshes an
	// existing candidate's miss count. Deliberately lower than the
	// duplicate IoU: a drifted tracker box still overlaps its own
	// detection loosely.
	AssocIoU float64
	// MissThreshold is the number of consecutive missed frames after
	// which a candidate is removed (or demoted to lost when full).
	MissThreshold int
	// RejectCooldown is how long a rejected candidate lingers before
	// removal frees the object for re-consideration.
	RejectCooldown time.Duration
}

// DefaultConfig matches the tuned production values.
func DefaultConfig() Config {
	return Config{AssocIoU: 0.3, MissThreshold: 10, RejectCooldown: time.Second}
}

// StartTrackFunc asks the external visual tracker to begin tracking a
// detection's region. May return nil when tracking is unavailable.
type StartTrackFunc func(types.Detection) types.TrackingHandle

// Service maintains the candidate set across ticks.
type Service struct {
	cfg        Config
	startTrack StartTrackFunc
	now        func() time.Time
}

// New creates a lifecycle service. startTrack may be nil.
func New(cfg Config, startTrack StartTrackFunc) *Service {
	return &Service{cfg: cfg, startTrack: startTrack, now: time.Now}
}

// Tick applies one frame's detections to the store. It returns true
// only on the tick where a fully matched candidate transitions to
// lost, so the caller can fire the "lost it" feedback exactly once.
func (s *Service) Tick(detections []types.Detection, st *store.Store) bool {
	snap := st.Snapshot()
	hasMatch := st.HasActiveMatch()

	consumed := make([]bool, len(detections))

	// Associate detections with existing candidates. Each detection
	// refreshes at most one candidate. Rejected candidates sit out
	// until the cooldown frees them (a miss increment would restamp
	// LastUpdated and stall the cooldown); lost ones are geometry-less
	// and only drift repair can reclaim them.
	for _, c := range snap {
		if c.Status == types.StatusRejected || c.Status == types.StatusLost {
			continue
		}
		best := -1
		bestIoU := s.cfg.AssocIoU
		for i, d := range detections {
			if consumed[i] {
				continue
			}
			if iou := d.Box.IoU(c.LastBox); iou > bestIoU {
				best, bestIoU = i, iou
			}
		}
		if best < 0 {
			st.Update(c.ID, func(c *types.Candidate) {
				c.MissCount++
			})
			continue
		}
		consumed[best] = true
		d := detections[best]
		st.Update(c.ID, func(c *types.Candidate) {
			c.MissCount = 0
			if v, score, ok := viewFromLabels(d.Labels); ok {
				c.UpgradeView(v, score)
			}
		})
	}

	// A matched session does not spawn competitors.
	if !hasMatch {
		for i, d := range detections {
			if consumed[i] || d.Box.IsEmpty() {
				continue
			}
			if st.ContainsDuplicateOf(d.Box) {
				continue
			}
			var handle types.TrackingHandle
			if s.startTrack != nil {
				handle = s.startTrack(d)
			}
			c := types.NewCandidate(d.Box, handle, s.now())
			st.Upsert(c)
			slog.Debug("candidate created",
				"candidate_id", c.ID,
				"area", d.Box.Area(),
				"confidence", d.Confidence,
			)
		}
	}

	lostThisFrame := false
	now := s.now()
	for _, c := range st.Snapshot() {
		switch {
		case c.MissCount >= s.cfg.MissThreshold && c.Status == types.StatusFull:
			// Tracking failed but the "we found it" fact is preserved
			// for user feedback; drift repair may still recover it.
			st.Update(c.ID, func(c *types.Candidate) {
				c.Status = types.StatusLost
				if c.Tracking != nil {
					c.Tracking.Close()
				}
			})
			lostThisFrame = true
			slog.Warn("matched candidate lost", "candidate_id", c.ID, "miss_count", c.MissCount)

		case c.MissCount >= s.cfg.MissThreshold && c.Status != types.StatusLost:
			st.Remove(c.ID)
			slog.Debug("candidate removed", "candidate_id", c.ID, "reason", "miss_threshold")

		case c.Status == types.StatusRejected && now.Sub(c.LastUpdated) > s.cfg.RejectCooldown:
			st.Remove(c.ID)
			slog.Debug("candidate removed", "candidate_id", c.ID, "reason", "reject_cooldown")
		}
	}

	st.PruneToSingleMatched()
	return lostThisFrame
}

// viewFromLabels extracts a viewing-angle hint from detector labels.
// Detectors that do not classify views simply never emit these names.
func viewFromLabels(labels []types.Label) (types.View, float64, bool) {
	bestRank := 0
	var best types.View
	var bestScore float64
	for _, l := range labels {
		var v types.View
		switch l.Name {
		case "front":
			v = types.ViewFront
		case "rear":
			v = types.ViewRear
		case "side":
			v = types.ViewSide
		default:
			continue
		}
		if v.Rank() > bestRank || (v.Rank() == bestRank && l.Confidence > bestScore) {
			best, bestRank, bestScore = v, v.Rank(), l.Confidence
		}
	}
	if bestRank == 0 {
		return types.ViewUnknown, 0, false
	}
	return best, bestScore, true
}
