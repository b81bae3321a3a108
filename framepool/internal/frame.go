package internal

import "sync/atomic"

// Frame is the published result consumers hold. Pooled frames wrap a slot
// and free it after the declared number of Release calls; owned frames wrap
// an independent buffer and leave reclamation to the garbage collector.
// Consumers treat both identically: read Data, call Release exactly once.
//
// IMMUTABILITY CONTRACT: Data is shared by reference for pooled frames.
// Nobody modifies it after Share. Enforcement is documentation-based;
// runtime checks would put a copy on every frame.
type Frame struct {
	pool     *Pool
	slot     int32
	gen      uint32
	total    int32
	released atomic.Int32
	data     []byte
	meta     Metadata
}

// NewOwnedFrame wraps an independently-owned buffer in the uniform frame
// type. Producers use it when the pool refuses a slot (BroadcastMode or
// exhaustion).
func NewOwnedFrame(meta Metadata, data []byte) *Frame {
	return &Frame{data: data, meta: meta}
}

// Data returns the frame bytes. MUST NOT be modified for pooled frames
// (shared by reference).
func (f *Frame) Data() []byte { return f.data }

// Meta returns the metadata carried alongside the buffer.
func (f *Frame) Meta() Metadata { return f.meta }

// Pooled reports whether Release returns a slot reference.
func (f *Frame) Pooled() bool { return f != nil && f.pool != nil }

// Consumers returns the number of Release calls the frame expects, 0 for
// owned frames.
func (f *Frame) Consumers() int {
	if f == nil || f.pool == nil {
		return 0
	}
	return int(f.total)
}

// Release returns one consumer reference. The release that drives the
// slot's count to zero frees it. Releases beyond the declared consumer
// count are counted and ignored. No-op for owned frames: the garbage
// collector reclaims their buffers.
func (f *Frame) Release() {
	if f == nil || f.pool == nil {
		return
	}
	n := f.released.Add(1)
	if n > f.total {
		f.pool.overReleases.Add(1)
		f.pool.logger.Error().
			Int32("slot", f.slot).
			Int32("consumers", f.total).
			Msg("frame released more times than declared consumers")
		return
	}
	f.pool.release(f.slot, f.gen)
}

// Copy returns an independently-owned deep copy carrying the same metadata.
// Used by consumers that must retain pixels past Release, and by broadcast
// distribution handing each consumer its own buffer.
func (f *Frame) Copy() *Frame {
	data := make([]byte, len(f.data))
	copy(data, f.data)
	return NewOwnedFrame(f.meta, data)
}
