package internal

import "fmt"

// Mode selects how a pool hands out buffers.
type Mode int32

const (
	// PoolMode shares pre-allocated slots zero-copy; each declared consumer
	// releases the slot once.
	PoolMode Mode = iota
	// BroadcastMode refuses slot handout entirely; producers fall back to
	// owned buffers and consumers receive independent copies.
	BroadcastMode
)

func (m Mode) String() string {
	switch m {
	case PoolMode:
		return "pool"
	case BroadcastMode:
		return "broadcast"
	default:
		return fmt.Sprintf("unknown(%d)", int32(m))
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "pool":
		return PoolMode, nil
	case "broadcast":
		return BroadcastMode, nil
	default:
		return 0, fmt.Errorf("framepool: unknown sharing mode %q", s)
	}
}
