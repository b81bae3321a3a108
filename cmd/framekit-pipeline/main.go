package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/framekit/asyncstage"
	"github.com/e7canasta/framekit/config"
	"github.com/e7canasta/framekit/fanout"
	"github.com/e7canasta/framekit/framepool"
)

const version = "v0.1.0"

// pipelineStage is the stage instantiation this demo runs: synthetic RGB
// frames in, pooled processed frames out.
type pipelineStage = asyncstage.Stage[*rawFrame, *framepool.Frame, renderParams]

// Options collects the command line surface of the demo pipeline.
type Options struct {
	// Config file (optional; flags below are independent of it)
	ConfigPath string

	// Synthetic source
	Width  int
	Height int
	FPS    float64

	// Processing
	Grayscale bool
	BlurSigma float64

	// Frame saving (optional)
	OutputDir    string
	OutputFormat string
	JPEGQuality  int

	// Consumers
	ConsumerProfiles []ConsumerProfile

	// Statistics
	StatsInterval time.Duration

	// Run bound (0 = until signal)
	Duration time.Duration

	// Logging
	Debug bool
}

// ConsumerProfile defines characteristics of a demo consumer
type ConsumerProfile struct {
	ID      string
	Latency time.Duration
	SLA     string // "Critical", "Normal", "BestEffort"
}

func main() {
	opts := parseFlags()

	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Setup logging
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	if opts.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	printBanner(opts, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if opts.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	// Handle signals for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received, stopping gracefully")
		cancel()
	}()

	if err := runPipeline(ctx, opts, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("pipeline failed")
		os.Exit(1)
	}

	logger.Info().Msg("pipeline stopped gracefully")
}

func parseFlags() Options {
	var opts Options

	flag.StringVar(&opts.ConfigPath, "config", "", "YAML config file for pool/stage knobs (optional)")

	// Source flags
	flag.IntVar(&opts.Width, "width", 640, "Synthetic frame width")
	flag.IntVar(&opts.Height, "height", 480, "Synthetic frame height")
	flag.Float64Var(&opts.FPS, "fps", 10.0, "Target FPS")

	// Processing flags
	flag.BoolVar(&opts.Grayscale, "gray", true, "Convert frames to grayscale")
	flag.Float64Var(&opts.BlurSigma, "blur", 1.5, "Gaussian blur sigma (0 disables)")

	// Frame saving flags (optional)
	flag.StringVar(&opts.OutputDir, "output", "", "Output directory to save frames (optional)")
	flag.StringVar(&opts.OutputFormat, "format", "png", "Output format: png or jpeg")
	flag.IntVar(&opts.JPEGQuality, "jpeg-quality", 90, "JPEG quality (1-100, only for JPEG)")

	// Stats flags
	var statsIntervalSec int
	flag.IntVar(&statsIntervalSec, "stats-interval", 5, "Statistics reporting interval (seconds)")

	// Run bound
	var durationSec int
	flag.IntVar(&durationSec, "duration", 0, "Run duration in seconds (0 = until Ctrl+C)")

	// Debug flag
	flag.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")

	flag.Parse()

	// Validation
	if opts.Width < 8 || opts.Width > 4096 || opts.Height < 8 || opts.Height > 4096 {
		fmt.Fprintf(os.Stderr, "Error: invalid frame size %dx%d (must be 8..4096 per side)\n", opts.Width, opts.Height)
		os.Exit(1)
	}
	if opts.FPS <= 0 || opts.FPS > 120 {
		fmt.Fprintf(os.Stderr, "Error: invalid fps %.2f (must be in (0,120])\n", opts.FPS)
		os.Exit(1)
	}
	if opts.BlurSigma < 0 {
		fmt.Fprintf(os.Stderr, "Error: invalid blur sigma %.2f (must be >= 0)\n", opts.BlurSigma)
		os.Exit(1)
	}
	if opts.OutputDir != "" {
		if opts.OutputFormat != "png" && opts.OutputFormat != "jpeg" {
			fmt.Fprintf(os.Stderr, "Error: invalid format %s (must be png or jpeg)\n", opts.OutputFormat)
			os.Exit(1)
		}
		if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
			fmt.Fprintf(os.Stderr, "Error: invalid JPEG quality %d (must be 1-100)\n", opts.JPEGQuality)
			os.Exit(1)
		}
	}

	opts.StatsInterval = time.Duration(statsIntervalSec) * time.Second
	opts.Duration = time.Duration(durationSec) * time.Second

	// Three consumers with different latencies to show drop behavior
	opts.ConsumerProfiles = []ConsumerProfile{
		{ID: "consumer-fast", Latency: 5 * time.Millisecond, SLA: "Critical"},
		{ID: "consumer-medium", Latency: 40 * time.Millisecond, SLA: "Normal"},
		{ID: "consumer-slow", Latency: 150 * time.Millisecond, SLA: "BestEffort"},
	}

	return opts
}

func runPipeline(ctx context.Context, opts Options, cfg *config.Config, logger zerolog.Logger) error {
	// 1. Create the fan-out hub that consumers subscribe to.
	fan := fanout.New(&logger)

	// 2. Create the processing stage; every published result feeds the hub.
	proc := newImagingProcessor(fan, logger)
	stage, err := asyncstage.New(asyncstage.Config[*rawFrame, *framepool.Frame, renderParams]{
		ID:              "imaging-stage",
		Processor:       proc,
		OnResult:        func(f *framepool.Frame) { fan.Publish(f) },
		Describe:        describeRaw,
		PoolSlots:       cfg.PoolSlots,
		PoolMode:        cfg.Mode(),
		AcquireBudget:   cfg.AcquireBudget(),
		ShutdownTimeout: cfg.ShutdownTimeout(),
		Logger:          &logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create stage: %w", err)
	}
	if err := stage.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stage: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	// 3. Subscribe and start consumers.
	consumers := make([]*consumer, 0, len(opts.ConsumerProfiles))
	for _, profile := range opts.ConsumerProfiles {
		rcv, err := fan.Subscribe(profile.ID)
		if err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", profile.ID, err)
		}
		c := newConsumer(profile, opts.Width, opts.Height, logger)
		consumers = append(consumers, c)
		g.Go(func() error { return c.run(rcv) })
		logger.Info().
			Str("id", profile.ID).
			Dur("latency", profile.Latency).
			Str("sla", profile.SLA).
			Msg("consumer started")
	}

	// 4. Create the frame saver consumer (optional).
	var saver *FrameSaver
	if opts.OutputDir != "" {
		saver, err = NewFrameSaver(opts.OutputDir, opts.OutputFormat, opts.JPEGQuality, opts.Width, opts.Height)
		if err != nil {
			return fmt.Errorf("failed to create frame saver: %w", err)
		}
		rcv, err := fan.Subscribe("saver")
		if err != nil {
			return fmt.Errorf("failed to subscribe saver: %w", err)
		}
		g.Go(func() error { return saver.run(rcv, logger) })
		logger.Info().
			Str("output_dir", opts.OutputDir).
			Str("format", opts.OutputFormat).
			Int("jpeg_quality", opts.JPEGQuality).
			Msg("frame saving enabled")
	}

	// 5. Start the synthetic source feeding the stage.
	src := newSource(opts, stage, logger)
	g.Go(func() error { return src.run(gctx) })
	logger.Info().
		Int("width", opts.Width).
		Int("height", opts.Height).
		Float64("fps", opts.FPS).
		Msg("synthetic source started")

	// 6. Start the statistics reporter.
	reporter := newStatsReporter(opts.StatsInterval, src, stage, fan, consumers, saver)
	g.Go(func() error { reporter.run(gctx); return nil })

	// 7. Wait for shutdown: signal, -duration elapsed, or a component failure.
	<-gctx.Done()

	// 8. Stop the stage; the wait for an in-flight dispatch is bounded.
	if err := stage.Stop(); err != nil {
		logger.Error().Err(err).Msg("failed to stop stage gracefully")
	}

	// 9. Close the hub: consumers wake with nil and drain out. Snapshot the
	// distribution stats first; Close clears the receiver registry.
	finalFan := fan.Stats()
	fan.Close()

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error().Err(err).Msg("pipeline component failed")
	}

	reporter.printFinal(finalFan)

	return nil
}

func printBanner(opts Options, cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║     framekit pipeline demo - pool / stage / fan-out           ║")
	fmt.Printf("║                    Version %-30s ║\n", version)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Configuration:")

	fmt.Printf("  Source:          synthetic %dx%d RGB\n", opts.Width, opts.Height)
	fmt.Printf("  Target FPS:      %.2f fps\n", opts.FPS)
	fmt.Printf("  Processing:      grayscale=%v blur=%.1f\n", opts.Grayscale, opts.BlurSigma)
	fmt.Printf("  Pool:            %d slots, %s mode\n", cfg.PoolSlots, cfg.SharingMode)
	fmt.Printf("  Consumers:       %d\n", len(opts.ConsumerProfiles))

	for _, profile := range opts.ConsumerProfiles {
		fmt.Printf("    - %-15s: %6s latency (%s)\n",
			profile.ID, profile.Latency, profile.SLA)
	}

	if opts.OutputDir != "" {
		fmt.Printf("  Frame Saving:    %s (%s)\n", opts.OutputDir, opts.OutputFormat)
	}
	fmt.Printf("  Stats Interval:  %v\n", opts.StatsInterval)
	fmt.Println()
	fmt.Println("Pipeline:")
	fmt.Println("  source → stage (coalescing) → pool frames → fan-out → consumers")
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop gracefully")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}
