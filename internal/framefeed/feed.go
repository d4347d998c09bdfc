// Package framefeed connects the capture collaborator to the frame
// tick with a single-slot mailbox: the capture side always publishes,
// the pipeline always consumes the latest frame. A tick that runs
// long simply causes older frames to be overwritten, never queued, so
// the pipeline can never fall behind real time.
package framefeed

import (
	"context"
	"sync"

	"github.com/e7canasta/wayfinder/internal/types"
)

// Stats reports mailbox throughput.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
}

// Feed is a single-producer single-consumer latest-frame mailbox.
type Feed struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *types.Frame // nil = consumed, non-nil = unconsumed
	stats  Stats
	closed bool
}

// New creates an empty feed.
func New() *Feed {
	f := &Feed{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Publish places a frame in the mailbox, overwriting any unconsumed
// one. Never blocks; publishing to a closed feed is a no-op.
func (f *Feed) Publish(frame types.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	if f.frame != nil {
		f.stats.Dropped++
	}
	f.frame = &frame
	f.stats.Published++
	f.cond.Signal()
}

// Next blocks until a frame is available or the feed closes or ctx is
// done. The second return is false when no more frames will arrive.
func (f *Feed) Next(ctx context.Context) (types.Frame, bool) {
	// Wake the waiter when the caller's context dies. stop guards the
	// goroutine against outliving this call.
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()

	for f.frame == nil && !f.closed && ctx.Err() == nil {
		f.cond.Wait()
	}
	if f.frame == nil {
		return types.Frame{}, false
	}

	frame := *f.frame
	f.frame = nil
	f.stats.Consumed++
	return frame, true
}

// Close wakes any blocked consumer and makes further publishes no-ops.
// Idempotent.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.cond.Broadcast()
}

// Stats returns a copy of the current counters.
func (f *Feed) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}
