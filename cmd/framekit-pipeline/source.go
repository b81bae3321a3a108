package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/e7canasta/framekit/framepool"
)

// rawFrame is one synthetic capture: tightly packed RGB, 3 bytes per pixel.
type rawFrame struct {
	pix      []byte
	width    int
	height   int
	seq      uint64
	captured time.Time
}

// renderParams travel with each submission into the processing stage.
type renderParams struct {
	Gray  bool
	Sigma float64
}

// describeRaw maps a submission to the stage's output geometry: the demo
// processor preserves input dimensions and emits packed RGB.
func describeRaw(in *rawFrame) (framepool.Geometry, time.Time, bool) {
	if in == nil || in.width <= 0 || in.height <= 0 || len(in.pix) != in.width*in.height*3 {
		return framepool.Geometry{}, time.Time{}, false
	}
	geom := framepool.Geometry{Width: in.width, Height: in.height, Format: framepool.FormatRGB24}
	return geom, in.captured, true
}

// source synthesizes a moving test pattern at the target frame rate and
// submits it to the stage. Submission never blocks: while the stage is busy,
// newer frames coalesce over the pending one.
type source struct {
	width  int
	height int
	fps    float64
	params renderParams
	stage  *pipelineStage
	logger zerolog.Logger

	produced atomic.Uint64
}

func newSource(opts Options, stage *pipelineStage, logger zerolog.Logger) *source {
	return &source{
		width:  opts.Width,
		height: opts.Height,
		fps:    opts.FPS,
		params: renderParams{Gray: opts.Grayscale, Sigma: opts.BlurSigma},
		stage:  stage,
		logger: logger.With().Str("component", "source").Logger(),
	}
}

// run produces frames until the context ends.
func (s *source) run(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / s.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Uint64("produced", s.produced.Load()).Msg("source stopped")
			return nil
		case <-ticker.C:
			seq++
			f := s.render(seq)
			s.stage.Submit(f, s.params)
			s.produced.Add(1)

			s.logger.Debug().
				Uint64("seq", f.seq).
				Int("size_kb", len(f.pix)/1024).
				Msg("frame submitted")
		}
	}
}

// render draws the test pattern: a diagonal gradient scrolling with the
// sequence number plus a white square bouncing across the frame.
func (s *source) render(seq uint64) *rawFrame {
	pix := make([]byte, s.width*s.height*3)
	shift := int(seq) * 3

	i := 0
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			v := byte(x + y + shift)
			pix[i+0] = v
			pix[i+1] = v / 2
			pix[i+2] = 255 - v
			i += 3
		}
	}

	side := s.width / 8
	if side < 4 {
		side = 4
	}
	posx := bounce(int(seq)*7, s.width-side)
	posy := bounce(int(seq)*5, s.height-side)
	for y := posy; y < posy+side && y < s.height; y++ {
		row := (y*s.width + posx) * 3
		for x := 0; x < side && posx+x < s.width; x++ {
			pix[row+x*3+0] = 255
			pix[row+x*3+1] = 255
			pix[row+x*3+2] = 255
		}
	}

	return &rawFrame{pix: pix, width: s.width, height: s.height, seq: seq, captured: time.Now()}
}

// bounce reflects pos into [0, span] like a ball between two walls.
func bounce(pos, span int) int {
	if span <= 0 {
		return 0
	}
	period := 2 * span
	p := pos % period
	if p > span {
		p = period - p
	}
	return p
}
