package internal

import "time"

// Metadata travels with every frame, pooled or owned. Copied by value;
// no ownership behavior.
type Metadata struct {
	// Timestamp is the source capture time, not processing time.
	Timestamp time.Time
	// FrameID is a per-producer monotonic counter.
	FrameID uint64
	// ProducerID identifies the stage or device that produced the frame.
	ProducerID string
}
