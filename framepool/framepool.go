package framepool

import (
	"github.com/e7canasta/framekit/framepool/internal"
)

// Geometry is re-exported from the internal package.
// See internal/geometry.go for full documentation.
type Geometry = internal.Geometry

// PixelFormat is re-exported from the internal package.
// See internal/geometry.go for full documentation.
type PixelFormat = internal.PixelFormat

// Supported pixel formats.
const (
	FormatGray8  = internal.FormatGray8
	FormatRGB24  = internal.FormatRGB24
	FormatBGRA32 = internal.FormatBGRA32
)

// Metadata is re-exported from the internal package.
// See internal/metadata.go for full documentation.
type Metadata = internal.Metadata

// Mode is re-exported from the internal package.
// See internal/mode.go for full documentation.
type Mode = internal.Mode

// Sharing modes.
const (
	PoolMode      = internal.PoolMode
	BroadcastMode = internal.BroadcastMode
)

// Config is re-exported from the internal package.
// See internal/pool.go for full documentation.
type Config = internal.Config

// Pool is re-exported from the internal package.
// See internal/pool.go for full documentation.
type Pool = internal.Pool

// Handle is re-exported from the internal package.
// See internal/handle.go for full documentation.
type Handle = internal.Handle

// Frame is re-exported from the internal package.
// See internal/frame.go for full documentation.
type Frame = internal.Frame

// Stats is re-exported from the internal package.
// See internal/stats.go for full documentation.
type Stats = internal.Stats

// Pool size bounds accepted by New.
const (
	MinSlots = internal.MinSlots
	MaxSlots = internal.MaxSlots
)

// DefaultAcquireBudget is the exhaustion retry budget applied when
// Config.AcquireBudget is zero.
const DefaultAcquireBudget = internal.DefaultAcquireBudget

// New creates a pool with every slot buffer allocated up front.
//
// Lifecycle:
//  1. pool := framepool.New(cfg)
//  2. handle := pool.Acquire(consumers, meta)  // producer side
//  3. frame := handle.Share()                  // publish to consumers
//  4. frame.Release()                          // once per consumer
//
// Pools are never resized or reconfigured in place. When geometry or
// capacity must change, the owner creates a replacement and drops this one;
// outstanding handles and frames keep it alive until they drain.
func New(cfg Config) (*Pool, error) {
	return internal.NewPool(cfg)
}

// NewOwnedFrame wraps an independently-owned buffer in the uniform frame
// type, so consumers handle pool refusal fallbacks without a separate path.
func NewOwnedFrame(meta Metadata, data []byte) *Frame {
	return internal.NewOwnedFrame(meta, data)
}

// ParseMode maps a configuration string ("pool", "broadcast") to a Mode.
func ParseMode(s string) (Mode, error) {
	return internal.ParseMode(s)
}

// ParseFormat maps a configuration string ("gray8", "rgb24", "bgra32") to a
// PixelFormat.
func ParseFormat(s string) (PixelFormat, error) {
	return internal.ParseFormat(s)
}
