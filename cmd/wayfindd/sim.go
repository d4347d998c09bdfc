package main

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/e7canasta/wayfinder/internal/framefeed"
	"github.com/e7canasta/wayfinder/internal/types"
)

// scene is a deterministic synthetic world: one target vehicle
// drifting slowly across the frame. Everything is a pure function of
// the frame sequence so the simulated collaborators agree with each
// other without sharing mutable state.
type scene struct{}

func newScene() *scene { return &scene{} }

// vehicleBox returns the target vehicle's region at a given frame.
func (s *scene) vehicleBox(seq uint64) types.Region {
	t := float64(seq) / 30.0
	return types.Region{
		X: 0.35 + 0.10*math.Sin(t/3),
		Y: 0.40 + 0.05*math.Cos(t/5),
		W: 0.22,
		H: 0.16,
	}
}

// simSource publishes synthetic frames into the feed at a fixed rate.
type simSource struct {
	scene  *scene
	feed   *framefeed.Feed
	fps    int
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSimSource(sc *scene, feed *framefeed.Feed, fps int) *simSource {
	return &simSource{scene: sc, feed: feed, fps: fps}
}

func (s *simSource) Start(ctx context.Context) error {
	if s.fps <= 0 {
		return fmt.Errorf("sim source: fps must be > 0")
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Second / time.Duration(s.fps))
		defer ticker.Stop()

		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				seq++
				s.feed.Publish(types.Frame{
					Width:     1920,
					Height:    1080,
					Seq:       seq,
					Timestamp: time.Now(),
				})
			}
		}
	}()
	return nil
}

func (s *simSource) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return nil
}

// simDetector reports the scene vehicle every frame.
type simDetector struct{ scene *scene }

func newSimDetector(sc *scene) *simDetector { return &simDetector{scene: sc} }

func (d *simDetector) Detect(frame types.Frame, filter []string) []types.Detection {
	return []types.Detection{{
		Box: d.scene.vehicleBox(frame.Seq),
		Labels: []types.Label{
			{Name: "car", Confidence: 0.93},
			{Name: "front", Confidence: 0.71},
		},
		Confidence: 0.93,
	}}
}

// simHandle tracks the scene vehicle with a one-frame lag.
type simHandle struct {
	scene *scene
	mu    sync.Mutex
	seq   uint64
	done  bool
}

func (h *simHandle) Region() (types.Region, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return types.Region{}, false
	}
	return h.scene.vehicleBox(h.seq), true
}

func (h *simHandle) Close() {
	h.mu.Lock()
	h.done = true
	h.mu.Unlock()
}

// simTracker hands out scene-following handles.
type simTracker struct {
	scene   *scene
	mu      sync.Mutex
	handles []*simHandle
}

func newSimTracker(sc *scene) *simTracker { return &simTracker{scene: sc} }

func (t *simTracker) StartTrack(d types.Detection) types.TrackingHandle {
	h := &simHandle{scene: t.scene}
	t.mu.Lock()
	t.handles = append(t.handles, h)
	t.mu.Unlock()
	return h
}

func (t *simTracker) Advance(frame types.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range t.handles {
		h.mu.Lock()
		h.seq = frame.Seq
		h.mu.Unlock()
	}
}

// simEmbedder derives an embedding from region geometry, which makes
// two looks at the same simulated object nearly identical.
type simEmbedder struct{ scene *scene }

func newSimEmbedder(sc *scene) *simEmbedder { return &simEmbedder{scene: sc} }

func (e *simEmbedder) ComputeEmbedding(frame types.Frame, region types.Region) (types.Embedding, error) {
	cx, cy := region.Center()
	return types.Embedding{float32(cx), float32(cy), float32(region.W), float32(region.H), 1}, nil
}

// simBackend answers verification calls: retryable refusals for the
// first failuresBeforeMatch calls, then a match (partial when
// partialOnly, full with a plate read otherwise).
type simBackend struct {
	target              types.TargetSpec
	failuresBeforeMatch int
	partialOnly         bool
	latency             time.Duration

	mu    sync.Mutex
	calls int
}

func newSimBackend(target types.TargetSpec, failuresBeforeMatch int, partialOnly bool) *simBackend {
	latency := 300 * time.Millisecond
	if partialOnly {
		latency = 1200 * time.Millisecond
	}
	return &simBackend{
		target:              target,
		failuresBeforeMatch: failuresBeforeMatch,
		partialOnly:         partialOnly,
		latency:             latency,
	}
}

func (b *simBackend) Verify(ctx context.Context, frame types.Frame, region types.Region, target types.TargetSpec) (types.Outcome, error) {
	select {
	case <-ctx.Done():
		return types.Outcome{}, ctx.Err()
	case <-time.After(b.latency):
	}

	b.mu.Lock()
	b.calls++
	calls := b.calls
	b.mu.Unlock()

	if calls <= b.failuresBeforeMatch {
		return types.Outcome{RejectReason: types.RejectPlateNotVisible}, nil
	}

	if b.partialOnly {
		return types.Outcome{
			IsMatch:     true,
			Description: fmt.Sprintf("%s %s, %s", target.Make, target.Model, target.Color),
			View:        &types.ViewClassification{View: types.ViewSide, Confidence: 0.6},
		}, nil
	}

	plateMatch := true
	return types.Outcome{
		IsMatch:     true,
		Description: fmt.Sprintf("%s %s, %s", target.Make, target.Model, target.Color),
		PlateMatch:  &plateMatch,
		OCRText:     target.Plate,
		View:        &types.ViewClassification{View: types.ViewFront, Confidence: 0.8},
	}, nil
}
