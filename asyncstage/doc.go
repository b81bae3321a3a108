// Package asyncstage implements single-worker async dispatch with
// latest-wins coalescing for per-frame computation.
//
// # Philosophy
//
// "Process the freshest input, or nothing. Never queue."
//
// In a real-time pipeline a result computed from a stale frame is worth
// less than no result: downstream acts on where things are, not where they
// were. A queue in front of a slow worker converts overload into unbounded
// latency. This package converts it into dropped inputs instead: while the
// worker is busy, exactly one pending submission survives, and it is always
// the newest one.
//
// # Design Principles
//
//  1. One worker per stage: at most one Process call in flight, so results
//     publish in strict dispatch order and no locking is needed around the
//     user's processing state.
//  2. Latest-wins pending slot: submissions during a dispatch overwrite a
//     single pending slot. Coalesced inputs never reach the worker.
//  3. Non-blocking Submit: producers run at source rate regardless of
//     worker speed.
//  4. Stage-owned pool: each stage carries a framepool sized to its output
//     geometry and recreates it when geometry or configuration changes.
//  5. Bounded shutdown: Stop returns within the configured timeout even if
//     the worker ignores cancellation; the stage abandons it rather than
//     hang.
//
// # Architecture
//
//	Submit ──▶ inbox (single slot, overwrite) ──▶ controlLoop
//	                                               │  dispatch (cap 1)
//	                                               ▼
//	                                           workerLoop ── Process()
//	                                               │  result (cap 1)
//	                                               ▼
//	OnResult ◀── publish ◀────────────────── controlLoop
//
// The control goroutine owns all scheduling state; the worker goroutine
// only runs Process. They communicate by message passing over capacity-1
// channels, which by construction never block either side.
//
// # Basic Usage
//
//	stage, err := asyncstage.New(asyncstage.Config[Input, *framepool.Frame, Params]{
//		ID:        "edge-detect",
//		Processor: &EdgeDetector{},
//		Describe: func(in Input) (framepool.Geometry, time.Time, bool) {
//			return in.Geometry, in.Captured, len(in.Pixels) > 0
//		},
//		OnResult: func(frame *framepool.Frame) {
//			fanout.Publish(frame)
//		},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := stage.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer stage.Stop()
//
//	for in := range source {
//		stage.Submit(in, params) // non-blocking, coalesces under load
//	}
//
// A Processor writes its output into a pool slot when the pool grants one,
// and falls back to an owned buffer when it refuses:
//
//	func (d *EdgeDetector) Process(ctx context.Context, in Input, p Params,
//		pool *framepool.Pool, meta framepool.Metadata) (*framepool.Frame, error) {
//
//		handle := pool.Acquire(consumers, meta)
//		if !handle.Ok() {
//			out := make([]byte, len(in.Pixels))
//			detectEdges(out, in.Pixels, p)
//			return framepool.NewOwnedFrame(meta, out), nil
//		}
//		detectEdges(handle.Buffer(), in.Pixels, p)
//		return handle.Share(), nil
//	}
//
// # Coalescing Semantics
//
// Coalesced submissions are EXPECTED and HEALTHY when the worker is slower
// than the source. A 30fps source feeding a 5fps worker coalesces ~25
// inputs per second; each dispatch still processes the newest frame
// available at that moment. Stats().Coalesced rising is load shedding
// working, not an error.
//
// # Shutdown
//
// Stop marks the stage shutting down, cancels the stage context, joins the
// control goroutine, then waits up to ShutdownTimeout for the worker.
// Results that complete during shutdown are discarded, never published. A
// worker still inside Process at the deadline is abandoned: Stop returns,
// the goroutine finishes on its own whenever Process returns, and the stage
// logs a warning because an uncooperative Processor is a bug worth fixing.
//
// # Thread Safety
//
// All Stage methods are safe for concurrent use. OnResult and the optional
// PendingHook run on the control goroutine; AttachHook runs on the Start
// caller's goroutine.
package asyncstage
