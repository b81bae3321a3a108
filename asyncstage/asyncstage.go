package asyncstage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/e7canasta/framekit/framepool"
)

// DefaultPoolSlots sizes a stage's pool when the config leaves it zero.
// Enough to cover one in-flight frame per downstream consumer in a small
// pipeline without reserving megabytes per stage.
const DefaultPoolSlots = 4

// DefaultShutdownTimeout bounds Stop's wait for the worker goroutine before
// it is abandoned.
const DefaultShutdownTimeout = 2 * time.Second

// Config carries the immutable parameters of one stage.
type Config[I, O, P any] struct {
	// ID tags log lines and output metadata. Defaults to a random UUID.
	ID string

	// Processor is the processing unit dispatched on the worker goroutine.
	// Required. May additionally implement AttachHook and PendingHook.
	Processor Processor[I, O, P]

	// OnResult receives every published output, invoked on the control
	// goroutine in strict dispatch order. Required. Must not block for long:
	// while it runs, finished results wait and submissions coalesce.
	OnResult func(output O)

	// Describe extracts output geometry and capture time from an input.
	// Required; inputs it rejects are dropped before dispatch.
	Describe Describe[I]

	// PoolSlots is the capacity of the stage-owned pool, in
	// [framepool.MinSlots, framepool.MaxSlots]. Zero means DefaultPoolSlots.
	PoolSlots int

	// PoolMode is the sharing mode new pools start in.
	PoolMode framepool.Mode

	// AcquireBudget is handed through to the stage's pools. Zero means the
	// pool default; negative means single-attempt acquire.
	AcquireBudget time.Duration

	// ShutdownTimeout bounds Stop's wait for the worker. Zero means
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// Logger receives stage lifecycle and failure diagnostics and is handed
	// through to the stage's pools. Nil means silent.
	Logger *zerolog.Logger
}

// workItem is one dispatch message into the worker goroutine.
type workItem[I, P any] struct {
	input  I
	params P
	meta   framepool.Metadata
	pool   *framepool.Pool
}

// outcome is one result message back out of the worker goroutine.
type outcome[O any] struct {
	output O
	err    error
}

// Stage runs at most one Processor invocation at a time, coalescing bursts
// of submissions into the single freshest pending item, and owns a frame
// pool matched to the current output geometry.
//
// Goroutine topology:
//   - 1 fixed: controlLoop (spawned by Start, joined by Stop). Owns all
//     busy/pending bookkeeping, pool recreation, and result publication.
//   - 1 fixed: workerLoop (spawned by Start, stopped by Stop with a bounded
//     wait). Runs Processor.Process; never touches stage state directly.
//
// The two communicate only by message passing: a dispatch message in, a
// result message out, both over capacity-1 channels that by construction
// never block the sender.
//
// Thread-safety: all public methods are safe for concurrent use.
type Stage[I, O, P any] struct {
	id       string
	proc     Processor[I, O, P]
	onResult func(O)
	describe Describe[I]

	budget          time.Duration
	shutdownTimeout time.Duration

	logger zerolog.Logger
	logSrc *zerolog.Logger // handed to pools

	inbox      *inbox[I, P]
	dispatchCh chan workItem[I, P]
	resultCh   chan outcome[O]
	workerDone chan struct{}

	// pool is readable from any goroutine (Stats, SetSharingMode); replaced
	// only by the control goroutine. poolGeom shadows the live pool's
	// geometry and is control-goroutine state.
	pool      atomic.Pointer[framepool.Pool]
	poolGeom  framepool.Geometry
	poolSlots atomic.Int32
	poolMode  atomic.Int32

	frameCounter uint64 // control-goroutine state

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shuttingDown atomic.Bool
	running      atomic.Bool

	startedMu sync.Mutex
	started   bool
	stopped   bool

	submitted        atomic.Uint64
	coalesced        atomic.Uint64
	dispatched       atomic.Uint64
	published        atomic.Uint64
	failures         atomic.Uint64
	invalidInputs    atomic.Uint64
	discardedResults atomic.Uint64
	panics           atomic.Uint64
	poolsCreated     atomic.Uint64
	workerAbandoned  atomic.Bool
}

// New validates the config and builds a stage. Fail-fast: a stage that
// constructs will start.
func New[I, O, P any](cfg Config[I, O, P]) (*Stage[I, O, P], error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("asyncstage: processor is required")
	}
	if cfg.OnResult == nil {
		return nil, fmt.Errorf("asyncstage: result callback is required")
	}
	if cfg.Describe == nil {
		return nil, fmt.Errorf("asyncstage: describe function is required")
	}
	slots := cfg.PoolSlots
	if slots == 0 {
		slots = DefaultPoolSlots
	}
	if slots < framepool.MinSlots || slots > framepool.MaxSlots {
		return nil, fmt.Errorf(
			"asyncstage: pool size %d out of range [%d, %d]",
			slots, framepool.MinSlots, framepool.MaxSlots,
		)
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().
			Str("component", "asyncstage").
			Str("stage_id", id).
			Logger()
	}

	s := &Stage[I, O, P]{
		id:              id,
		proc:            cfg.Processor,
		onResult:        cfg.OnResult,
		describe:        cfg.Describe,
		budget:          cfg.AcquireBudget,
		shutdownTimeout: timeout,
		logger:          logger,
		logSrc:          cfg.Logger,
		inbox:           newInbox[I, P](),
		dispatchCh:      make(chan workItem[I, P], 1),
		resultCh:        make(chan outcome[O], 1),
		workerDone:      make(chan struct{}),
	}
	s.poolSlots.Store(int32(slots))
	s.poolMode.Store(int32(cfg.PoolMode))
	return s, nil
}

// ID returns the stage identifier used in logs and output metadata.
func (s *Stage[I, O, P]) ID() string { return s.id }

// Start spawns the control and worker goroutines. If the Processor
// implements AttachHook, OnAttach runs first, on the caller's goroutine.
//
// Thread-safety: safe for concurrent calls; only the first succeeds.
func (s *Stage[I, O, P]) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return fmt.Errorf("asyncstage: stage %s already started", s.id)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	if hook, ok := s.proc.(AttachHook); ok {
		hook.OnAttach(StageInfo{StageID: s.id})
	}

	s.wg.Add(1)
	go s.controlLoop()
	go s.workerLoop()

	s.running.Store(true)
	s.logger.Info().Msg("stage started")
	return nil
}

// Submit hands an input to the stage. Non-blocking: when the worker is busy
// the input parks in the pending slot, overwriting (and discarding) any
// input already parked there. After Stop has begun, submissions are dropped.
func (s *Stage[I, O, P]) Submit(input I, params P) {
	if s.shuttingDown.Load() {
		return
	}
	s.submitted.Add(1)
	if s.inbox.put(submission[I, P]{input: input, params: params}) {
		s.coalesced.Add(1)
	}
}

// SetPoolSlots changes the pool capacity used from the next pool recreation
// on. The live pool is not resized in place; it is replaced on the next
// dispatch and drains through its outstanding frames.
func (s *Stage[I, O, P]) SetPoolSlots(n int) error {
	if n < framepool.MinSlots || n > framepool.MaxSlots {
		return fmt.Errorf(
			"asyncstage: pool size %d out of range [%d, %d]",
			n, framepool.MinSlots, framepool.MaxSlots,
		)
	}
	s.poolSlots.Store(int32(n))
	return nil
}

// SetSharingMode switches the sharing mode of the live pool immediately
// (a mid-retry Acquire observes it and exits) and of every pool created
// after.
func (s *Stage[I, O, P]) SetSharingMode(m framepool.Mode) {
	s.poolMode.Store(int32(m))
	if p := s.pool.Load(); p != nil {
		p.SetMode(m)
	}
}

// Stop shuts the stage down within a bounded time.
//
// Sequence:
//  1. Mark shutting down: in-flight results are discarded, submissions drop.
//  2. Cancel the stage context and join the control goroutine.
//  3. Close the dispatch channel and wait for the worker, at most
//     ShutdownTimeout. A worker still running Process past the deadline is
//     abandoned with a warning; it cleans itself up whenever Process
//     returns.
//
// Idempotent, and terminal: a stopped stage cannot be restarted.
func (s *Stage[I, O, P]) Stop() error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if !s.started || s.stopped {
		return nil
	}
	s.stopped = true
	s.running.Store(false)

	s.shuttingDown.Store(true)
	s.cancel()
	s.inbox.wake()
	s.wg.Wait()

	// The control goroutine has exited, so nothing sends on dispatchCh
	// anymore and closing it tells the worker to drain and finish.
	close(s.dispatchCh)

	select {
	case <-s.workerDone:
	case <-time.After(s.shutdownTimeout):
		s.workerAbandoned.Store(true)
		s.logger.Warn().
			Dur("timeout", s.shutdownTimeout).
			Msg("worker unresponsive to stop, abandoning")
	}

	// A result finished during teardown sits unconsumed in the buffer.
	select {
	case <-s.resultCh:
		s.discardedResults.Add(1)
	default:
	}

	s.logger.Info().Msg("stage stopped")
	return nil
}

func (s *Stage[I, O, P]) cancelled() bool { return s.ctx.Err() != nil }

// controlLoop owns the Idle/Dispatched state machine. One iteration of the
// outer loop is one idle period; the inner loop runs while consecutive
// dispatches chain through promoted pending submissions.
func (s *Stage[I, O, P]) controlLoop() {
	defer s.wg.Done()

	for {
		sub, ok := s.inbox.take(s.cancelled)
		if !ok {
			return
		}

		for {
			if !s.beginDispatch(sub) {
				break // input refused; back to idle
			}

			out, ok := s.awaitResult()
			if !ok {
				return
			}
			s.finishDispatch(out)

			next, pending := s.inbox.tryTake()
			if !pending {
				break
			}
			if hook, ok := s.proc.(PendingHook); ok {
				hook.OnPendingReady()
			}
			sub = next
		}
	}
}

// beginDispatch validates the input, matches the pool to its geometry, and
// hands a work item to the worker. Reports false when the input was dropped
// undispatched.
func (s *Stage[I, O, P]) beginDispatch(sub submission[I, P]) bool {
	geom, captured, ok := s.describe(sub.input)
	if !ok || geom.FrameBytes() <= 0 {
		s.invalidInputs.Add(1)
		return false
	}

	pool := s.ensurePool(geom)

	s.frameCounter++
	meta := framepool.Metadata{
		Timestamp:  captured,
		FrameID:    s.frameCounter,
		ProducerID: s.id,
	}

	s.dispatched.Add(1)
	s.dispatchCh <- workItem[I, P]{
		input:  sub.input,
		params: sub.params,
		meta:   meta,
		pool:   pool,
	}
	return true
}

// awaitResult blocks until the in-flight dispatch completes or the stage is
// cancelled.
func (s *Stage[I, O, P]) awaitResult() (outcome[O], bool) {
	select {
	case out := <-s.resultCh:
		return out, true
	case <-s.ctx.Done():
		return outcome[O]{}, false
	}
}

// finishDispatch publishes a completed result, unless the stage is shutting
// down or the processor failed.
func (s *Stage[I, O, P]) finishDispatch(out outcome[O]) {
	if s.shuttingDown.Load() {
		s.discardedResults.Add(1)
		return
	}
	if out.err != nil {
		s.failures.Add(1)
		s.logger.Error().Err(out.err).Msg("dispatch failed, output dropped")
		return
	}
	s.published.Add(1)
	s.onResult(out.output)
}

// ensurePool returns the live pool when it matches the wanted geometry and
// capacity, and replaces it otherwise. The old pool is simply dropped:
// outstanding frames keep it alive until the last release.
func (s *Stage[I, O, P]) ensurePool(geom framepool.Geometry) *framepool.Pool {
	cur := s.pool.Load()
	slots := int(s.poolSlots.Load())
	if cur != nil && s.poolGeom == geom && cur.Slots() == slots {
		return cur
	}

	p, err := framepool.New(framepool.Config{
		OwnerID:       s.id,
		Geometry:      geom,
		Slots:         slots,
		Mode:          framepool.Mode(s.poolMode.Load()),
		AcquireBudget: s.budget,
		Logger:        s.logSrc,
	})
	if err != nil {
		// Geometry passed Describe and slots passed SetPoolSlots, so this
		// does not happen with the public surface; keep serving the old
		// pool rather than tearing the stage down.
		s.logger.Error().Err(err).Stringer("geometry", geom).Msg("pool recreation failed")
		return cur
	}

	s.logger.Info().
		Stringer("geometry", geom).
		Int("slots", slots).
		Msg("pool created")

	s.poolGeom = geom
	s.pool.Store(p)
	s.poolsCreated.Add(1)
	return p
}

// workerLoop drains the dispatch channel until it closes. It never touches
// stage state: results travel back exclusively through resultCh, which has
// room for the one possible in-flight outcome and therefore never blocks.
func (s *Stage[I, O, P]) workerLoop() {
	defer close(s.workerDone)
	for item := range s.dispatchCh {
		s.resultCh <- s.invoke(item)
	}
}

// invoke runs one Processor call, converting a panic into a failed outcome.
func (s *Stage[I, O, P]) invoke(item workItem[I, P]) (out outcome[O]) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			out = outcome[O]{err: fmt.Errorf("asyncstage: processor panic: %v", r)}
		}
	}()

	output, err := s.proc.Process(s.ctx, item.input, item.params, item.pool, item.meta)
	return outcome[O]{output: output, err: err}
}
