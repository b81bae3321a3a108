package asyncstage

import (
	"context"
	"time"

	"github.com/e7canasta/framekit/framepool"
)

// Processor is the user-supplied processing unit a stage dispatches to.
//
// Process runs on the stage's worker goroutine, at most one invocation in
// flight per stage. It receives the submitted input and params, the stage's
// current pool, and stage-assigned metadata for the output frame.
//
// Contract:
//   - MUST NOT retain references to input past the call.
//   - SHOULD attempt pool.Acquire(consumers, meta) for its output buffer and
//     fall back to framepool.NewOwnedFrame when the pool refuses. Either way
//     the caller receives the same uniform output type.
//   - SHOULD observe ctx: it is cancelled when the stage shuts down. A
//     Process that ignores cancellation past the stage's shutdown timeout is
//     abandoned, not interrupted.
//   - A panic inside Process is recovered by the stage and surfaces as a
//     failed dispatch, never as a crash of the controlling goroutine.
type Processor[I, O, P any] interface {
	Process(ctx context.Context, input I, params P, pool *framepool.Pool, meta framepool.Metadata) (O, error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc[I, O, P any] func(ctx context.Context, input I, params P, pool *framepool.Pool, meta framepool.Metadata) (O, error)

// Process implements Processor.
func (f ProcessorFunc[I, O, P]) Process(ctx context.Context, input I, params P, pool *framepool.Pool, meta framepool.Metadata) (O, error) {
	return f(ctx, input, params, pool, meta)
}

// StageInfo is passed to AttachHook when the stage starts.
type StageInfo struct {
	// StageID identifies the stage in logs and output metadata.
	StageID string
}

// AttachHook is an optional Processor extension. When the Processor also
// implements AttachHook, OnAttach is called once from Start, before any
// dispatch, on the caller's goroutine.
type AttachHook interface {
	OnAttach(info StageInfo)
}

// PendingHook is an optional Processor extension. When the Processor also
// implements PendingHook, OnPendingReady is called from the control
// goroutine each time a submission that waited out an in-flight dispatch is
// promoted to the worker.
type PendingHook interface {
	OnPendingReady()
}

// Describe extracts dispatch parameters from an input: the output geometry
// the pool must match and the capture timestamp carried into the output
// metadata. Returning false marks the input invalid; it is dropped without
// touching the pool or the worker.
type Describe[I any] func(input I) (geom framepool.Geometry, captured time.Time, ok bool)
