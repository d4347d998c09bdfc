package core

import (
	"context"

	"github.com/e7canasta/wayfinder/internal/phase"
	"github.com/e7canasta/wayfinder/internal/types"
)

// Detector runs on-device object detection for one frame. It must be
// synchronous from the caller's point of view and surface failures as
// an empty result, never a panic.
type Detector interface {
	Detect(frame types.Frame, filter []string) []types.Detection
}

// TrackProvider is the external single-object visual tracker. The
// core owns deciding what happens when a handle reports that tracking
// ended; the provider owns everything else.
type TrackProvider interface {
	// StartTrack begins tracking a fresh detection's region.
	StartTrack(d types.Detection) types.TrackingHandle
	// Advance feeds the next frame to all live handles so their
	// regions are current before the core reads them.
	Advance(frame types.Frame)
}

// AnchorUpdater refreshes spatial-grounding anchors for the current
// candidates when spatial tracking is enabled. Optional collaborator.
type AnchorUpdater interface {
	Update(frame types.Frame, candidates []types.Candidate)
}

// Navigator consumes navigation/distance feedback once a winner
// exists. Optional collaborator; feedback rendering is out of scope.
type Navigator interface {
	// Navigate is called every tick while the phase is found.
	Navigate(frame types.Frame, winner types.Candidate)
	// LostContact fires exactly once on the tick a fully matched
	// candidate transitions to lost.
	LostContact()
}

// PresentationSink receives one immutable snapshot per tick. A sink
// must never retain live references into the store; snapshots are
// already value copies.
type PresentationSink interface {
	Publish(s Snapshot)
}

// PhaseListener observes global phase transitions (journal, event
// emission). Called from the tick goroutine; implementations must not
// block.
type PhaseListener interface {
	PhaseChanged(prev, next phase.Phase, seq uint64)
}

// FrameSource is the capture collaborator: it produces frames into a
// feed for the pipeline's single capture worker.
type FrameSource interface {
	Start(ctx context.Context) error
	Stop() error
}
