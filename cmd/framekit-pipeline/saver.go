package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/e7canasta/framekit/fanout"
	"github.com/e7canasta/framekit/framepool"
)

// FrameSaver persists processed frames to disk (optional feature).
//
// It runs as one more fan-out consumer, so a slow disk shows up as mailbox
// drops in the stats rather than as a pipeline stall.
type FrameSaver struct {
	outputDir   string
	format      string
	jpegQuality int
	width       int
	height      int

	framesSaved   atomic.Uint64
	framesDropped atomic.Uint64
}

// NewFrameSaver creates a frame saver with given output directory and format.
//
// Format: "png" or "jpeg"
// JPEGQuality: 1-100 (only used for JPEG)
func NewFrameSaver(outputDir, format string, jpegQuality, width, height int) (*FrameSaver, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if format != "png" && format != "jpeg" {
		return nil, fmt.Errorf("unsupported format: %s (must be png or jpeg)", format)
	}

	return &FrameSaver{
		outputDir:   outputDir,
		format:      format,
		jpegQuality: jpegQuality,
		width:       width,
		height:      height,
	}, nil
}

// run consumes frames until the fan-out closes the receiver.
func (fs *FrameSaver) run(rcv *fanout.Receiver, logger zerolog.Logger) error {
	for {
		frame := rcv.Receive()
		if frame == nil {
			logger.Info().Uint64("saved", fs.framesSaved.Load()).Msg("frame saver stopping")
			return nil
		}
		if err := fs.SaveFrame(frame); err != nil {
			logger.Error().Err(err).Msg("failed to save frame")
		}
		frame.Release()
	}
}

// SaveFrame saves a frame to disk as PNG or JPEG.
//
// Filename format: frame_{id:06d}_{timestamp}.{ext}
// Example: frame_000042_20260823_154517.123.png
func (fs *FrameSaver) SaveFrame(frame *framepool.Frame) error {
	expected := fs.width * fs.height * 3
	if len(frame.Data()) != expected {
		fs.framesDropped.Add(1)
		return fmt.Errorf("invalid RGB data size: got %d, expected %d", len(frame.Data()), expected)
	}

	img := rgbToNRGBA(frame.Data(), fs.width, fs.height)

	meta := frame.Meta()
	filename := fmt.Sprintf("frame_%06d_%s.%s",
		meta.FrameID,
		meta.Timestamp.Format("20060102_150405.000"),
		fs.format)
	path := filepath.Join(fs.outputDir, filename)

	if err := imaging.Save(img, path, imaging.JPEGQuality(fs.jpegQuality)); err != nil {
		fs.framesDropped.Add(1)
		return fmt.Errorf("failed to save %s: %w", filename, err)
	}

	fs.framesSaved.Add(1)
	return nil
}

// Stats returns current save statistics.
func (fs *FrameSaver) Stats() (saved, dropped uint64) {
	return fs.framesSaved.Load(), fs.framesDropped.Load()
}
