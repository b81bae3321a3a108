package fanout

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/e7canasta/framekit/framepool"
)

// Public API errors.
var (
	ErrClosed             = errors.New("fanout: fanout is closed")
	ErrEmptyID            = errors.New("fanout: empty subscriber id")
	ErrSubscriberExists   = errors.New("fanout: subscriber already exists")
	ErrSubscriberNotFound = errors.New("fanout: subscriber not found")
)

// Fanout distributes published frames to every subscriber through
// single-slot mailboxes, settling the frames' release obligations so that
// no combination of slow consumers, churn, or consumer-count drift leaks a
// pool slot.
//
// Delivery order is subscription order. For a pooled frame the same pointer
// goes to at most Consumers() subscribers (the frame's declared release
// budget); subscribers beyond the budget are skipped, and when subscribers
// have left since the producer acquired, the surplus references are
// released immediately. For an owned frame the first subscriber gets the
// original and every further one an independent copy.
//
// Thread-safety: all methods are safe for concurrent use. Publish is
// typically called from one producer goroutine.
type Fanout struct {
	mu        sync.RWMutex
	receivers []*Receiver // delivery order
	byID      map[string]*Receiver
	closed    bool

	published atomic.Uint64
	skipped   atomic.Uint64
	reclaimed atomic.Uint64

	logger zerolog.Logger
}

// New creates an empty fanout. Logger may be nil for silence.
func New(logger *zerolog.Logger) *Fanout {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "fanout").Logger()
	}
	return &Fanout{
		byID:   make(map[string]*Receiver),
		logger: l,
	}
}

// Subscribe registers a consumer and returns its receiver. The consumer
// loops on Receive until it returns nil, and MUST call Unsubscribe when
// done.
func (f *Fanout) Subscribe(id string) (*Receiver, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, ErrClosed
	}
	if _, dup := f.byID[id]; dup {
		return nil, ErrSubscriberExists
	}

	r := newReceiver(id)
	f.byID[id] = r
	f.receivers = append(f.receivers, r)

	f.logger.Debug().Str("subscriber", id).Msg("subscribed")
	return r, nil
}

// Unsubscribe removes a consumer. Its receiver is closed: a blocked Receive
// returns nil and any parked frame is released on the consumer's behalf.
func (f *Fanout) Unsubscribe(id string) error {
	f.mu.Lock()
	r, ok := f.byID[id]
	if !ok {
		f.mu.Unlock()
		return ErrSubscriberNotFound
	}
	delete(f.byID, id)
	for i, cand := range f.receivers {
		if cand == r {
			f.receivers = append(f.receivers[:i], f.receivers[i+1:]...)
			break
		}
	}
	f.mu.Unlock()

	r.close()
	f.logger.Debug().Str("subscriber", id).Msg("unsubscribed")
	return nil
}

// SubscriberCount returns the current number of subscribers. Producers use
// it as the consumer count for Acquire; Publish reconciles any drift
// between that count and the subscribers present at delivery time.
func (f *Fanout) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.receivers)
}

// Publish distributes one frame and settles its reference budget. The
// caller hands over the frame entirely: after Publish returns, releases are
// owed only by the subscribers that got it, and every other reference has
// already been returned.
//
// Non-blocking: mailbox overwrite means a slow consumer costs a drop, not a
// stall.
func (f *Fanout) Publish(frame *framepool.Frame) {
	if frame == nil {
		return
	}

	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		f.drainRefs(frame, frame.Consumers())
		return
	}
	receivers := append([]*Receiver(nil), f.receivers...)
	f.mu.RUnlock()

	f.published.Add(1)

	if frame.Pooled() {
		f.publishPooled(frame, receivers)
	} else {
		f.publishOwned(frame, receivers)
	}
}

// publishPooled hands the same pointer to at most budget subscribers and
// returns every reference nobody adopted.
func (f *Fanout) publishPooled(frame *framepool.Frame, receivers []*Receiver) {
	budget := frame.Consumers()
	delivered := 0
	for _, r := range receivers {
		if delivered >= budget {
			// The producer acquired fewer references than there are
			// subscribers now; the late ones sit this frame out.
			f.skipped.Add(1)
			continue
		}
		if r.deliver(frame) {
			delivered++
		}
	}
	f.drainRefs(frame, budget-delivered)
}

// publishOwned gives the first subscriber the original buffer and every
// further one an independent copy, which is what broadcast sharing means.
func (f *Fanout) publishOwned(frame *framepool.Frame, receivers []*Receiver) {
	original := frame
	for _, r := range receivers {
		out := original
		if out == nil {
			out = frame.Copy()
		}
		if r.deliver(out) && out == original {
			original = nil
		}
	}
}

// drainRefs returns n unadopted references of a pooled frame. Covers
// publish-after-close, subscriber drift, and closed receivers encountered
// mid-delivery.
func (f *Fanout) drainRefs(frame *framepool.Frame, n int) {
	if !frame.Pooled() {
		return
	}
	for i := 0; i < n; i++ {
		frame.Release()
		f.reclaimed.Add(1)
	}
}

// Close shuts the fanout down: every receiver is closed (blocked Receives
// return nil, parked frames released) and later Publishes release their
// frames untouched. Idempotent.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	receivers := f.receivers
	f.receivers = nil
	f.byID = make(map[string]*Receiver)
	f.mu.Unlock()

	for _, r := range receivers {
		r.close()
	}
	f.logger.Debug().Int("subscribers", len(receivers)).Msg("fanout closed")
}
