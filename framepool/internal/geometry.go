package internal

import "fmt"

// PixelFormat identifies the byte layout of a slot buffer.
type PixelFormat int

const (
	// FormatGray8 is single-channel luminance, 1 byte per pixel.
	FormatGray8 PixelFormat = iota
	// FormatRGB24 is packed RGB, 3 bytes per pixel.
	FormatRGB24
	// FormatBGRA32 is packed BGRA, 4 bytes per pixel.
	FormatBGRA32
)

// BytesPerPixel returns the storage cost of one pixel, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatGray8:
		return 1
	case FormatRGB24:
		return 3
	case FormatBGRA32:
		return 4
	default:
		return 0
	}
}

// String returns a human-readable name for the format.
func (f PixelFormat) String() string {
	switch f {
	case FormatGray8:
		return "gray8"
	case FormatRGB24:
		return "rgb24"
	case FormatBGRA32:
		return "bgra32"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// ParseFormat maps a configuration string to a PixelFormat.
func ParseFormat(s string) (PixelFormat, error) {
	switch s {
	case "gray8":
		return FormatGray8, nil
	case "rgb24":
		return FormatRGB24, nil
	case "bgra32":
		return FormatBGRA32, nil
	default:
		return 0, fmt.Errorf("framepool: unknown pixel format %q", s)
	}
}

// Geometry fixes the dimensions and pixel format of every buffer in a pool.
// Pools never resize: a producer whose output geometry changes gets a new
// pool, and the old one drains through its outstanding frames.
type Geometry struct {
	Width  int
	Height int
	Format PixelFormat
}

// FrameBytes returns the byte size of one buffer of this geometry.
func (g Geometry) FrameBytes() int {
	return g.Width * g.Height * g.Format.BytesPerPixel()
}

// String returns "WxH/format", e.g. "1280x720/rgb24".
func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d/%s", g.Width, g.Height, g.Format)
}
