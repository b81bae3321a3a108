package internal

// Handle is the exclusive write token for one acquired slot. The zero value
// is empty. Handles move, never copy: Release and Share empty the receiver,
// and exactly one of the two must be called on every non-empty handle.
// Keeping two live copies of a handle is a bug; generation validation turns
// the second release into a logged no-op instead of a double free.
type Handle struct {
	pool      *Pool
	slot      int32
	gen       uint32
	consumers int32
	meta      Metadata
}

// Ok reports whether the handle owns a slot.
func (h Handle) Ok() bool { return h.pool != nil }

// Buffer returns the mutable slot buffer, or nil for an empty handle. The
// producer writes the frame here before Share; after Share the buffer is
// read-only for everyone holding the frame.
func (h Handle) Buffer() []byte {
	if h.pool == nil {
		return nil
	}
	return h.pool.slots[h.slot].buf
}

// Meta returns the metadata captured at acquire.
func (h Handle) Meta() Metadata { return h.meta }

// Release returns the slot without publishing. Every reference the
// acquisition declared is returned at once. Empties the handle; safe on an
// empty handle.
func (h *Handle) Release() {
	if h.pool == nil {
		return
	}
	h.pool.releaseAll(h.slot, h.gen, h.consumers)
	*h = Handle{}
}

// Share publishes the slot as a Frame and empties the handle. The returned
// frame expects one Release per declared consumer. Returns nil for an empty
// handle.
func (h *Handle) Share() *Frame {
	if h.pool == nil {
		return nil
	}
	f := &Frame{
		pool:  h.pool,
		slot:  h.slot,
		gen:   h.gen,
		total: h.consumers,
		data:  h.pool.slots[h.slot].buf,
		meta:  h.meta,
	}
	*h = Handle{}
	return f
}
