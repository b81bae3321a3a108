// Package internal implements the frame pool: a fixed arena of reusable
// buffers handed out through reference-counted handles.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// package.
package internal

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Pool size bounds exposed through the configuration surface.
const (
	MinSlots = 1
	MaxSlots = 128
)

// DefaultAcquireBudget bounds the cooperative retry inside Acquire when the
// pool is exhausted. About a quarter of a 120fps frame period: a stalled
// pool degrades to owned-buffer fallback well before the next frame lands.
const DefaultAcquireBudget = 2 * time.Millisecond

// Exhaustion retry waits escalate from a bare yield to short sleeps,
// doubling up to a cap, so a near-miss costs almost nothing and a long wait
// does not burn a core.
const (
	retryBaseDelay = 50 * time.Microsecond
	retryMaxDelay  = 500 * time.Microsecond
)

// slot is one pre-allocated buffer plus its sharing state. Slots are created
// at pool construction and live until the pool is collected; the buffer is
// never resized.
type slot struct {
	buf []byte

	// ref counts outstanding releases for the active acquisition. Set to
	// the declared consumer count at acquire; only ever decreases afterwards.
	ref atomic.Int32

	// gen increments each time the slot returns to the free-list. Handles
	// and frames capture it at acquire, making stale releases detectable.
	gen atomic.Uint32
}

// Config carries the immutable parameters of one pool.
type Config struct {
	// OwnerID tags log lines and notices. Defaults to a random UUID.
	OwnerID string

	// Geometry fixes the size and pixel format of every slot buffer.
	Geometry Geometry

	// Slots is the fixed pool capacity, in [MinSlots, MaxSlots].
	Slots int

	// Mode is the starting sharing mode. Defaults to PoolMode.
	Mode Mode

	// AcquireBudget bounds the exhaustion retry inside Acquire. Zero means
	// DefaultAcquireBudget; negative means a single attempt, no retry.
	AcquireBudget time.Duration

	// Logger receives degradation notices and release diagnostics.
	// Nil means silent.
	Logger *zerolog.Logger
}

// Pool owns a fixed arena of slots and a free-list of slot indices. Every
// buffer is allocated once at construction; Acquire and release only move
// indices between the free-list and holders, so steady state allocates
// nothing.
//
// Thread-safety: all methods are safe for concurrent use. The free-list is
// guarded by one mutex; per-slot reference counts are atomic, and the
// decrement-to-zero transition is a single fetch-and-test so exactly one
// releaser returns a given slot.
type Pool struct {
	ownerID  string
	geometry Geometry
	budget   time.Duration

	arena []byte
	slots []slot

	mu   sync.Mutex
	free []int32

	mode atomic.Int32

	logger zerolog.Logger
	gate   *degradeGate

	acquired         atomic.Uint64
	released         atomic.Uint64
	broadcastRejects atomic.Uint64
	exhaustedRejects atomic.Uint64
	retries          atomic.Uint64
	staleReleases    atomic.Uint64
	overReleases     atomic.Uint64
}

// NewPool allocates every slot buffer up front and puts all slots on the
// free-list. Fail-fast: configuration problems surface here, never during
// Acquire.
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Geometry.Width <= 0 || cfg.Geometry.Height <= 0 {
		return nil, fmt.Errorf(
			"framepool: invalid geometry %dx%d",
			cfg.Geometry.Width, cfg.Geometry.Height,
		)
	}
	if cfg.Geometry.Format.BytesPerPixel() == 0 {
		return nil, fmt.Errorf("framepool: unknown pixel format %v", cfg.Geometry.Format)
	}
	if cfg.Slots < MinSlots || cfg.Slots > MaxSlots {
		return nil, fmt.Errorf(
			"framepool: pool size %d out of range [%d, %d]",
			cfg.Slots, MinSlots, MaxSlots,
		)
	}

	ownerID := cfg.OwnerID
	if ownerID == "" {
		ownerID = uuid.NewString()
	}
	budget := cfg.AcquireBudget
	if budget == 0 {
		budget = DefaultAcquireBudget
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().
			Str("component", "framepool").
			Str("owner_id", ownerID).
			Logger()
	}

	frameBytes := cfg.Geometry.FrameBytes()
	p := &Pool{
		ownerID:  ownerID,
		geometry: cfg.Geometry,
		budget:   budget,
		arena:    make([]byte, cfg.Slots*frameBytes),
		slots:    make([]slot, cfg.Slots),
		free:     make([]int32, 0, cfg.Slots),
		logger:   logger,
		gate:     newDegradeGate(),
	}
	p.mode.Store(int32(cfg.Mode))

	// Slice the arena into per-slot buffers. The capacity cap keeps a
	// producer writing past one frame from bleeding into the next slot.
	for i := range p.slots {
		lo := i * frameBytes
		hi := lo + frameBytes
		p.slots[i].buf = p.arena[lo:hi:hi]
	}

	// Push in reverse so the first Acquire pops slot 0.
	for i := len(p.slots) - 1; i >= 0; i-- {
		p.free = append(p.free, int32(i))
	}

	return p, nil
}

// Acquire pops a free slot and hands out exclusive write access to it.
//
// Semantics:
//   - consumers declares how many Release calls the published frame will
//     receive; the slot frees after exactly that many.
//   - BroadcastMode refuses immediately, independent of free-list state.
//   - PoolMode retries cooperatively on exhaustion, re-checking the mode
//     each iteration, until the acquire budget elapses.
//
// An empty Handle (Ok() == false) means the caller must fall back to an
// owned buffer. Refusals are logged at most once per degradation episode.
func (p *Pool) Acquire(consumers int, meta Metadata) Handle {
	if consumers < 1 {
		return Handle{}
	}

	start := time.Now()
	var delay time.Duration
	for {
		if Mode(p.mode.Load()) == BroadcastMode {
			p.broadcastRejects.Add(1)
			if p.gate.enter(p.ownerID) {
				p.logger.Warn().Msg("pool sharing disabled, falling back to owned buffers")
			}
			return Handle{}
		}

		if idx, ok := p.takeFree(); ok {
			s := &p.slots[idx]
			s.ref.Store(int32(consumers))
			p.acquired.Add(1)
			p.gate.leave()
			return Handle{
				pool:      p,
				slot:      idx,
				gen:       s.gen.Load(),
				consumers: int32(consumers),
				meta:      meta,
			}
		}

		if p.budget < 0 || time.Since(start) >= p.budget {
			p.exhaustedRejects.Add(1)
			if p.gate.enter(p.ownerID) {
				p.logger.Warn().
					Int("slots", len(p.slots)).
					Dur("budget", p.budget).
					Msg("pool exhausted, falling back to owned buffers")
			}
			return Handle{}
		}

		p.retries.Add(1)
		if delay == 0 {
			runtime.Gosched()
			delay = retryBaseDelay
		} else {
			time.Sleep(delay)
			if delay < retryMaxDelay {
				delay *= 2
			}
		}
	}
}

// SetMode switches the sharing mode. Safe to call concurrently with
// in-flight Acquire retries: a retry observes the new mode on its next
// iteration and exits empty.
func (p *Pool) SetMode(m Mode) {
	p.mode.Store(int32(m))
}

// Mode returns the current sharing mode.
func (p *Pool) Mode() Mode { return Mode(p.mode.Load()) }

// Geometry returns the fixed buffer geometry of this pool.
func (p *Pool) Geometry() Geometry { return p.geometry }

// Slots returns the fixed pool capacity.
func (p *Pool) Slots() int { return len(p.slots) }

// OwnerID returns the identifier used in notices and log lines.
func (p *Pool) OwnerID() string { return p.ownerID }

func (p *Pool) takeFree() (int32, bool) {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return 0, false
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	return idx, true
}

// release returns one reference for the acquisition identified by gen.
// The releaser whose decrement reaches zero pushes the slot back.
func (p *Pool) release(idx int32, gen uint32) {
	s := &p.slots[idx]
	if s.gen.Load() != gen {
		p.staleReleases.Add(1)
		p.logger.Error().Int32("slot", idx).Msg("stale slot release ignored")
		return
	}
	p.released.Add(1)
	if s.ref.Add(-1) == 0 {
		p.freeSlot(idx)
	}
}

// releaseAll returns every reference a never-shared handle still owns, so an
// aborted frame does not strand its slot waiting for consumers that will
// never come.
func (p *Pool) releaseAll(idx int32, gen uint32, n int32) {
	s := &p.slots[idx]
	if s.gen.Load() != gen {
		p.staleReleases.Add(1)
		p.logger.Error().Int32("slot", idx).Msg("stale slot release ignored")
		return
	}
	p.released.Add(1)
	if s.ref.Add(-n) <= 0 {
		p.freeSlot(idx)
	}
}

func (p *Pool) freeSlot(idx int32) {
	// Bump the generation before the slot becomes reacquirable so late
	// releases against the finished acquisition cannot pass validation.
	p.slots[idx].gen.Add(1)
	p.mu.Lock()
	p.free = append(p.free, idx)
	p.mu.Unlock()
}
