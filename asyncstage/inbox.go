package asyncstage

import "sync"

// submission pairs one input with the params it was submitted with.
type submission[I, P any] struct {
	input  I
	params P
}

// inbox is the single-slot mailbox between Submit and the control loop.
// A new submission overwrites an unconsumed one (latest-wins); nothing is
// ever queued. The overwritten count is reported to the caller of put so
// the stage can track coalescing.
type inbox[I, P any] struct {
	mu   sync.Mutex
	cond *sync.Cond
	sub  submission[I, P]
	full bool
}

func newInbox[I, P any]() *inbox[I, P] {
	x := &inbox[I, P]{}
	x.cond = sync.NewCond(&x.mu)
	return x
}

// put stores a submission, overwriting any unconsumed one, and wakes the
// control loop. Reports whether a pending submission was discarded.
//
// Non-blocking: lock, overwrite, signal. Safe for concurrent callers,
// though a stage typically has one submitter.
func (x *inbox[I, P]) put(sub submission[I, P]) (dropped bool) {
	x.mu.Lock()
	dropped = x.full
	x.sub = sub
	x.full = true
	x.cond.Signal()
	x.mu.Unlock()
	return dropped
}

// take blocks until a submission is available or cancelled reports true.
// The consumed slot is zeroed so the inbox never pins a stale input alive.
func (x *inbox[I, P]) take(cancelled func() bool) (submission[I, P], bool) {
	x.mu.Lock()
	for !x.full {
		if cancelled() {
			x.mu.Unlock()
			return submission[I, P]{}, false
		}
		x.cond.Wait()
		if cancelled() {
			x.mu.Unlock()
			return submission[I, P]{}, false
		}
	}
	sub := x.sub
	x.sub = submission[I, P]{}
	x.full = false
	x.mu.Unlock()
	return sub, true
}

// tryTake consumes the pending submission if one is present, without
// blocking.
func (x *inbox[I, P]) tryTake() (submission[I, P], bool) {
	x.mu.Lock()
	if !x.full {
		x.mu.Unlock()
		return submission[I, P]{}, false
	}
	sub := x.sub
	x.sub = submission[I, P]{}
	x.full = false
	x.mu.Unlock()
	return sub, true
}

// wake unblocks a goroutine parked in take so it can re-check cancellation.
// Taken under the mutex: a broadcast between the taker's cancellation check
// and its Wait would otherwise be lost.
func (x *inbox[I, P]) wake() {
	x.mu.Lock()
	x.cond.Broadcast()
	x.mu.Unlock()
}
