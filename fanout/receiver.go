package fanout

import (
	"sync"
	"time"

	"github.com/e7canasta/framekit/framepool"
)

// Receiver is one subscriber's mailbox: a single-slot buffer with overwrite
// semantics. A newer frame displaces an unconsumed one, and the displaced
// frame's release obligation is settled by the mailbox itself, so a slow
// consumer can never strand pool slots.
//
// Thread-safety: deliver is called by the publishing goroutine, Receive and
// TryReceive by the consumer. All fields are guarded by mu. Receive MUST be
// called from a single consumer goroutine.
type Receiver struct {
	id string

	mu    sync.Mutex
	cond  *sync.Cond
	frame *framepool.Frame
	// closed implies frame == nil: close releases any parked frame, and
	// deliver refuses afterwards.
	closed bool

	delivered        uint64
	lastConsumedAt   time.Time
	lastConsumedID   uint64
	consecutiveDrops uint64
	totalDrops       uint64
}

func newReceiver(id string) *Receiver {
	r := &Receiver{id: id, lastConsumedAt: time.Now()}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// ID returns the subscriber identifier passed to Subscribe.
func (r *Receiver) ID() string { return r.id }

// deliver places a frame in the mailbox, displacing and releasing an
// unconsumed one. Reports false when the receiver is closed; the frame is
// then untouched and stays with the caller.
func (r *Receiver) deliver(frame *framepool.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if r.frame != nil {
		r.frame.Release()
		r.consecutiveDrops++
		r.totalDrops++
	}
	r.frame = frame
	r.delivered++
	r.cond.Signal()
	return true
}

// Receive blocks until a frame is available or the receiver is closed.
// Returns nil on close; the consumer exits its loop on nil. The consumer
// owns the returned frame and must call Release exactly once.
func (r *Receiver) Receive() *framepool.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.frame == nil && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		return nil
	}
	return r.consumeLocked()
}

// TryReceive returns the pending frame without blocking. The second result
// is false when the mailbox is empty or the receiver is closed.
func (r *Receiver) TryReceive() (*framepool.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.frame == nil {
		return nil, false
	}
	return r.consumeLocked(), true
}

func (r *Receiver) consumeLocked() *framepool.Frame {
	frame := r.frame
	r.frame = nil
	r.lastConsumedAt = time.Now()
	r.lastConsumedID = frame.Meta().FrameID
	r.consecutiveDrops = 0
	return frame
}

// close marks the receiver finished, releases any parked frame on the
// consumer's behalf, and wakes a blocked Receive. Idempotent.
func (r *Receiver) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.frame != nil {
		r.frame.Release()
		r.frame = nil
	}
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *Receiver) stats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return ReceiverStats{
		ID:               r.id,
		Delivered:        r.delivered,
		LastConsumedAt:   r.lastConsumedAt,
		LastConsumedID:   r.lastConsumedID,
		ConsecutiveDrops: r.consecutiveDrops,
		TotalDrops:       r.totalDrops,
		IsIdle:           time.Since(r.lastConsumedAt) > idleThreshold,
	}
}
