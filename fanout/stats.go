package fanout

import "time"

// idleThreshold is how long a receiver may go without consuming before
// Stats flags it. Sized for consumers that legitimately run well below
// source rate (a 0.1fps saver consumes every 10s).
const idleThreshold = 30 * time.Second

// ReceiverStats is one subscriber's snapshot.
type ReceiverStats struct {
	// ID is the subscriber identifier.
	ID string

	// Delivered counts frames placed into the mailbox.
	Delivered uint64

	// LastConsumedAt is the time of the last successful Receive.
	LastConsumedAt time.Time

	// LastConsumedID is the FrameID of the last consumed frame.
	LastConsumedID uint64

	// ConsecutiveDrops is the current streak of overwritten frames;
	// resets on consume.
	ConsecutiveDrops uint64

	// TotalDrops counts frames overwritten before the consumer got to
	// them. Expected to rise for consumers slower than the source.
	TotalDrops uint64

	// IsIdle is true when nothing was consumed for idleThreshold.
	IsIdle bool
}

// FanoutStats is a non-blocking snapshot of distribution state.
type FanoutStats struct {
	// Subscribers is the subscriber count at snapshot time.
	Subscribers int

	// Published counts frames accepted by Publish.
	Published uint64

	// Skipped counts pooled deliveries withheld because the frame's
	// declared consumer count was smaller than the subscriber count.
	Skipped uint64

	// Reclaimed counts pooled references released by the fanout itself:
	// surplus budget, closed receivers, publish after Close.
	Reclaimed uint64

	// Receivers maps subscriber ID to its snapshot.
	Receivers map[string]ReceiverStats
}

// Stats returns a snapshot of distribution counters. Safe for concurrent
// use; the snapshot may be slightly stale, which is acceptable for
// monitoring.
func (f *Fanout) Stats() FanoutStats {
	f.mu.RLock()
	receivers := append([]*Receiver(nil), f.receivers...)
	f.mu.RUnlock()

	st := FanoutStats{
		Subscribers: len(receivers),
		Published:   f.published.Load(),
		Skipped:     f.skipped.Load(),
		Reclaimed:   f.reclaimed.Load(),
		Receivers:   make(map[string]ReceiverStats, len(receivers)),
	}
	for _, r := range receivers {
		st.Receivers[r.id] = r.stats()
	}
	return st
}
