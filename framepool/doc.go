// Package framepool provides a fixed-size, reference-counted buffer pool for
// sharing video frames between pipeline stages without copying.
//
// # Philosophy
//
// Allocate once, recycle forever. Steady-state cost > startup cost.
//
// A vision pipeline touches every frame buffer many times per second. Letting
// each stage allocate its own copies hands the real-time path to the garbage
// collector. This package inverts that: all frame memory is carved from one
// arena at construction, and the pool recycles the same slots for the life of
// the process.
//
// # Design Principles
//
//  1. Fixed capacity: New allocates every slot up front. Acquire never
//     allocates; when all slots are busy it retries briefly, then refuses.
//  2. Refusal over stall: a pool that cannot serve a frame says so
//     immediately. Producers fall back to owned (copied) frames and the
//     pipeline keeps moving at degraded efficiency, never blocked.
//  3. Reference counts only go down: Acquire sets the count to the consumer
//     total; each consumer release decrements it. Nothing ever increments a
//     live count, so a count of zero is always final.
//  4. Uniform consumption: consumers receive *Frame and call Release exactly
//     once, whether the frame is pooled or owned. Producers decide the
//     sharing strategy; consumers cannot tell the difference.
//
// # Usage
//
//	pool, err := framepool.New(framepool.Config{
//		Geometry: framepool.Geometry{Width: 640, Height: 480, Format: framepool.FormatRGB24},
//		Slots:    8,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Producer: acquire for 3 downstream consumers.
//	handle := pool.Acquire(3, framepool.Metadata{Timestamp: time.Now(), FrameID: id})
//	if !handle.Ok() {
//		// Pool refused (exhausted or broadcast mode): copy instead.
//		frame := framepool.NewOwnedFrame(meta, append([]byte(nil), raw...))
//		deliver(frame)
//		return
//	}
//	copy(handle.Buffer(), raw)
//	frame := handle.Share() // handle is now empty; frame carries the 3 references
//	deliver(frame)
//
//	// Each consumer, exactly once:
//	frame.Release()
//
// # Sharing Modes
//
// The pool runs in one of two modes, switchable at runtime with SetMode:
//
//   - PoolMode: Acquire hands out pooled slots. Zero-copy sharing.
//   - BroadcastMode: Acquire refuses immediately. Producers copy per frame.
//
// BroadcastMode exists for consumers that hold frames unpredictably long
// (disk writers, network senders). Flipping the mode is atomic and takes
// effect on the next Acquire; frames already handed out are unaffected.
//
// # Degradation
//
// When the pool refuses (exhausted past the retry budget, or broadcast
// mode), the producer copies and continues. The pool logs one warning per
// degradation episode, rate-limited, rather than one per refused frame.
// Stats exposes the running refusal counters for dashboards.
//
// # Thread Safety
//
// All Pool methods are safe for concurrent use. A Handle belongs to one
// goroutine at a time; Frame.Release is safe to call concurrently from the
// consumers sharing the frame.
package framepool
