// Package core wires the candidate services into the per-frame tick.
// The coordinator owns no business rules; it owns the ORDER: detect,
// lifecycle, tracker refresh, anchors, drift repair, verification,
// phase, publish. That order is load-bearing: reshuffling it makes
// the UI present a one-frame-stale state.
package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/e7canasta/wayfinder/internal/driftrepair"
	"github.com/e7canasta/wayfinder/internal/framefeed"
	"github.com/e7canasta/wayfinder/internal/lifecycle"
	"github.com/e7canasta/wayfinder/internal/phase"
	"github.com/e7canasta/wayfinder/internal/store"
	"github.com/e7canasta/wayfinder/internal/types"
	"github.com/e7canasta/wayfinder/internal/verify"
)

// Options collects the coordinator's services and collaborators.
// Detector, Lifecycle, Repair, Verifier and Store are required;
// everything else may be nil/empty.
type Options struct {
	Store     *store.Store
	Detector  Detector
	Tracker   TrackProvider
	Anchors   AnchorUpdater
	Navigator Navigator

	Lifecycle *lifecycle.Service
	Repair    *driftrepair.Service
	Verifier  *verify.Service

	Sinks          []PresentationSink
	PhaseListeners []PhaseListener

	// DetectorFilter restricts detection to the given class names
	// (e.g. "car", "truck"). Empty means no filtering.
	DetectorFilter []string
}

// Stats is a point-in-time view of pipeline throughput.
type Stats struct {
	Ticks      uint64
	Detections uint64
	Dispatched uint64
	LastSeq    uint64
}

// Coordinator drives one tick per incoming frame. Ticks are
// synchronous and non-reentrant: a new one cannot start before the
// previous returns. Verification completions are the only writes that
// arrive from outside the tick; the store serializes them.
type Coordinator struct {
	opts      Options
	lastPhase phase.Phase
	stats     Stats
}

// New creates a coordinator. The initial phase is searching.
func New(opts Options) *Coordinator {
	return &Coordinator{
		opts:      opts,
		lastPhase: phase.Phase{Kind: phase.Searching},
	}
}

// Run consumes frames from the feed until the context is cancelled or
// the feed closes, ticking once per frame and logging throughput
// periodically.
func (co *Coordinator) Run(ctx context.Context, feed *framefeed.Feed) error {
	slog.Info("pipeline started")

	lastLog := time.Now()
	const logInterval = 5 * time.Second

	for {
		frame, ok := feed.Next(ctx)
		if !ok {
			slog.Info("pipeline stopped", "ticks", co.stats.Ticks)
			return ctx.Err()
		}

		co.Tick(ctx, frame)

		if time.Since(lastLog) >= logInterval {
			fs := feed.Stats()
			slog.Debug("pipeline stats",
				"ticks", co.stats.Ticks,
				"detections", co.stats.Detections,
				"verifications_dispatched", co.stats.Dispatched,
				"frames_dropped", fs.Dropped,
				"candidates", co.opts.Store.Len(),
				"phase", co.lastPhase.Kind,
			)
			lastLog = time.Now()
		}
	}
}

// Tick executes one full frame pass in the fixed order.
func (co *Coordinator) Tick(ctx context.Context, frame types.Frame) {
	co.stats.Ticks++
	co.stats.LastSeq = frame.Seq

	// 1. Detect. Runs every tick: lifecycle miss bookkeeping and
	// lost-candidate recovery both need fresh detections regardless of
	// phase; candidate ingestion is gated downstream.
	detections := co.opts.Detector.Detect(frame, co.opts.DetectorFilter)
	co.stats.Detections += uint64(len(detections))

	// 2. Ingest / maintain the candidate set.
	lost := co.opts.Lifecycle.Tick(detections, co.opts.Store)
	if lost && co.opts.Navigator != nil {
		co.opts.Navigator.LostContact()
	}

	// 3. Refresh regions from the visual tracker.
	co.refreshTracks(frame)

	// 4. Spatial grounding, when enabled.
	if co.opts.Anchors != nil {
		co.opts.Anchors.Update(frame, co.opts.Store.Snapshot())
	}

	// 5. Appearance-based drift repair (stride-gated internally).
	co.opts.Repair.Tick(frame, detections, co.opts.Store)

	// 6. Verification dispatch (rate-limited internally, async).
	co.stats.Dispatched += uint64(co.opts.Verifier.Tick(ctx, frame, co.opts.Store))

	// 7. Recompute phase from a fresh snapshot and publish.
	snap := co.opts.Store.Snapshot()
	ph := phase.Compute(snap)

	if !ph.Equal(co.lastPhase) {
		slog.Info("phase transition", "from", co.lastPhase.Kind, "to", ph.Kind, "seq", frame.Seq)
		for _, l := range co.opts.PhaseListeners {
			l.PhaseChanged(co.lastPhase, ph, frame.Seq)
		}
	}
	co.lastPhase = ph

	out := buildSnapshot(frame, ph, snap)
	for _, sink := range co.opts.Sinks {
		sink.Publish(out)
	}

	// 8. Navigation feedback while found.
	if ph.Kind == phase.Found && co.opts.Navigator != nil {
		for _, c := range snap {
			if c.Status == types.StatusFull {
				co.opts.Navigator.Navigate(frame, c)
				break
			}
		}
	}
}

// refreshTracks advances the external tracker and copies each live
// handle's region into its candidate. A handle that reports the end
// of tracking contributes nothing; the miss-count path takes over.
func (co *Coordinator) refreshTracks(frame types.Frame) {
	if co.opts.Tracker == nil {
		return
	}
	co.opts.Tracker.Advance(frame)

	for _, c := range co.opts.Store.Snapshot() {
		if c.Tracking == nil {
			continue
		}
		// A rejected candidate must age past the reject cooldown;
		// restamping LastUpdated every tick would keep it immortal.
		if c.Status == types.StatusRejected {
			continue
		}
		region, alive := c.Tracking.Region()
		if !alive || region.IsEmpty() {
			continue
		}
		co.opts.Store.Update(c.ID, func(c *types.Candidate) {
			c.LastBox = region
		})
	}
}

// Phase returns the last computed phase.
func (co *Coordinator) Phase() phase.Phase {
	return co.lastPhase
}

// Stats returns a copy of the pipeline counters.
func (co *Coordinator) Stats() Stats {
	return co.stats
}

// Reset clears the session: all candidates are dropped and the phase
// returns to searching. In-flight verification completions become
// silent no-ops against the emptied store.
func (co *Coordinator) Reset() {
	co.opts.Store.Clear()
	co.lastPhase = phase.Phase{Kind: phase.Searching}
	slog.Info("session reset")
}
