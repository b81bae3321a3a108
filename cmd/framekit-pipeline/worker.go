package main

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/e7canasta/framekit/asyncstage"
	"github.com/e7canasta/framekit/fanout"
	"github.com/e7canasta/framekit/framepool"
)

// imagingProcessor is the stage's processing unit: grayscale plus gaussian
// blur on the worker goroutine, output written into a pool slot when one is
// available, into an owned buffer otherwise.
type imagingProcessor struct {
	fan    *fanout.Fanout
	logger zerolog.Logger
}

func newImagingProcessor(fan *fanout.Fanout, logger zerolog.Logger) *imagingProcessor {
	return &imagingProcessor{
		fan:    fan,
		logger: logger.With().Str("component", "imaging-processor").Logger(),
	}
}

func (p *imagingProcessor) Process(ctx context.Context, in *rawFrame, params renderParams, pool *framepool.Pool, meta framepool.Metadata) (*framepool.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := rgbToNRGBA(in.pix, in.width, in.height)
	if params.Gray {
		img = imaging.Grayscale(img)
	}
	if params.Sigma > 0 {
		img = imaging.Blur(img, params.Sigma)
	}

	// Acquire for however many consumers are subscribed right now; the
	// fan-out reconciles any drift at publish time.
	if n := p.fan.SubscriberCount(); n > 0 {
		if h := pool.Acquire(n, meta); h.Ok() {
			nrgbaToRGB(img, h.Buffer())
			return h.Share(), nil
		}
	}

	buf := make([]byte, in.width*in.height*3)
	nrgbaToRGB(img, buf)
	return framepool.NewOwnedFrame(meta, buf), nil
}

// OnAttach implements asyncstage.AttachHook.
func (p *imagingProcessor) OnAttach(info asyncstage.StageInfo) {
	p.logger.Info().Str("stage_id", info.StageID).Msg("processor attached")
}

// rgbToNRGBA converts packed RGB bytes (3 bytes/pixel) to image.NRGBA
// (4 bytes/pixel) for the imaging operations.
func rgbToNRGBA(pix []byte, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.Pix[i*4+0] = pix[i*3+0] // R
		img.Pix[i*4+1] = pix[i*3+1] // G
		img.Pix[i*4+2] = pix[i*3+2] // B
		img.Pix[i*4+3] = 255        // A (opaque)
	}
	return img
}

// nrgbaToRGB packs an NRGBA image back into RGB bytes. dst must hold
// width*height*3 bytes.
func nrgbaToRGB(img *image.NRGBA, dst []byte) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	di := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			dst[di+0] = row[x*4+0]
			dst[di+1] = row[x*4+1]
			dst[di+2] = row[x*4+2]
			di += 3
		}
	}
}

// consumer drains one fan-out mailbox, simulating an inference worker with a
// fixed processing latency. The slow profiles exercise the drop path: their
// mailboxes keep only the latest frame and release what they never saw.
type consumer struct {
	id      string
	latency time.Duration
	width   int
	height  int
	logger  zerolog.Logger

	processed atomic.Uint64
	invalid   atomic.Uint64
}

func newConsumer(profile ConsumerProfile, width, height int, logger zerolog.Logger) *consumer {
	return &consumer{
		id:      profile.ID,
		latency: profile.Latency,
		width:   width,
		height:  height,
		logger:  logger.With().Str("consumer", profile.ID).Logger(),
	}
}

// run consumes frames until the fan-out closes the receiver.
func (c *consumer) run(rcv *fanout.Receiver) error {
	for {
		frame := rcv.Receive()
		if frame == nil {
			c.logger.Info().Uint64("processed", c.processed.Load()).Msg("consumer stopping")
			return nil
		}

		meta := frame.Meta()
		pooled := frame.Pooled()

		if err := c.inspect(frame); err != nil {
			c.invalid.Add(1)
			c.logger.Error().Err(err).Uint64("frame_id", meta.FrameID).Msg("frame failed validation")
			frame.Release()
			continue
		}

		time.Sleep(c.latency) // simulated inference

		frame.Release()
		c.processed.Add(1)

		c.logger.Debug().
			Uint64("frame_id", meta.FrameID).
			Bool("pooled", pooled).
			Msg("frame processed")
	}
}

// inspect validates RGB payload integrity like a real worker would before
// handing pixels to a model.
func (c *consumer) inspect(frame *framepool.Frame) error {
	expected := c.width * c.height * 3
	if len(frame.Data()) != expected {
		return fmt.Errorf("invalid RGB data size: got %d bytes, expected %d (%dx%dx3)",
			len(frame.Data()), expected, c.width, c.height)
	}
	return nil
}

func (c *consumer) stats() (processed, invalid uint64) {
	return c.processed.Load(), c.invalid.Load()
}
