package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/e7canasta/framekit/fanout"
)

// statsReporter periodically prints statistics from all pipeline components.
type statsReporter struct {
	interval  time.Duration
	src       *source
	stage     *pipelineStage
	fan       *fanout.Fanout
	consumers []*consumer
	saver     *FrameSaver

	proc      *process.Process
	startTime time.Time
}

func newStatsReporter(interval time.Duration, src *source, stage *pipelineStage, fan *fanout.Fanout, consumers []*consumer, saver *FrameSaver) *statsReporter {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &statsReporter{
		interval:  interval,
		src:       src,
		stage:     stage,
		fan:       fan,
		consumers: consumers,
		saver:     saver,
		proc:      proc,
		startTime: time.Now(),
	}
}

// run prints live statistics until the context ends.
func (r *statsReporter) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.printLive()
		}
	}
}

// printLive prints current statistics from all components
func (r *statsReporter) printLive() {
	uptime := time.Since(r.startTime)
	stageStats := r.stage.Stats()
	fanStats := r.fan.Stats()
	produced := r.src.produced.Load()

	fmt.Println()
	fmt.Println("╭─────────────────────────────────────────────────────────────────╮")
	fmt.Printf("│ Pipeline Statistics (Uptime: %v)\n", uptime.Round(time.Second))
	fmt.Println("├─────────────────────────────────────────────────────────────────┤")

	realFPS := 0.0
	if secs := uptime.Seconds(); secs > 0 {
		realFPS = float64(produced) / secs
	}
	fmt.Println("│ Source:")
	fmt.Printf("│   Frames Produced:    %6d frames\n", produced)
	fmt.Printf("│   Real FPS:           %6.2f fps\n", realFPS)

	fmt.Println("│")
	fmt.Println("│ Stage:")
	fmt.Printf("│   Submitted:          %6d\n", stageStats.Submitted)
	fmt.Printf("│   Coalesced:          %6d (%.1f%%)\n",
		stageStats.Coalesced, pct(stageStats.Coalesced, stageStats.Submitted))
	fmt.Printf("│   Dispatched:         %6d\n", stageStats.Dispatched)
	fmt.Printf("│   Published:          %6d\n", stageStats.Published)
	fmt.Printf("│   Failures:           %6d\n", stageStats.Failures)
	fmt.Printf("│   Invalid Inputs:     %6d\n", stageStats.InvalidInputs)

	if p := stageStats.Pool; p != nil {
		fmt.Println("│")
		fmt.Println("│ Pool:")
		fmt.Printf("│   Slots:              %3d free / %3d total (%s mode)\n", p.FreeSlots, p.Slots, p.Mode)
		fmt.Printf("│   Acquired:           %6d\n", p.Acquired)
		fmt.Printf("│   Released:           %6d\n", p.Released)
		fmt.Printf("│   Exhausted Rejects:  %6d\n", p.ExhaustedRejects)
		fmt.Printf("│   Broadcast Rejects:  %6d\n", p.BroadcastRejects)
		fmt.Printf("│   Retries:            %6d\n", p.Retries)
		fmt.Printf("│   Episodes:           %6d\n", p.Episodes)
	}

	fmt.Println("│")
	fmt.Println("│ Fan-out:")
	fmt.Printf("│   Subscribers:        %6d\n", fanStats.Subscribers)
	fmt.Printf("│   Published:          %6d\n", fanStats.Published)
	fmt.Printf("│   Skipped:            %6d\n", fanStats.Skipped)
	fmt.Printf("│   Reclaimed:          %6d\n", fanStats.Reclaimed)

	idle := idleReceivers(fanStats)
	if len(idle) > 0 {
		fmt.Printf("│   Idle Receivers:     ")
		for i, id := range idle {
			if i > 0 {
				fmt.Print(", ")
			}
			idleFor := time.Since(fanStats.Receivers[id].LastConsumedAt)
			fmt.Printf("%s (%.1fs)", id, idleFor.Seconds())
		}
		fmt.Println()
	}

	fmt.Println("│")
	fmt.Println("│ Consumers:")
	for _, c := range r.consumers {
		processed, invalid := c.stats()
		var drops uint64
		if rs, ok := fanStats.Receivers[c.id]; ok {
			drops = rs.TotalDrops
		}
		fmt.Printf("│   %-15s: %4d processed, %3d drops (%.1f%%), %d invalid\n",
			c.id, processed, drops, dropRateFromCounts(processed, drops), invalid)
	}

	if r.saver != nil {
		saved, dropped := r.saver.Stats()
		fmt.Println("│")
		fmt.Println("│ Frame Saving:")
		fmt.Printf("│   Frames Saved:       %6d\n", saved)
		fmt.Printf("│   Save Drops:         %6d\n", dropped)
	}

	if r.proc != nil {
		cpuPct, cerr := r.proc.CPUPercent()
		memInfo, merr := r.proc.MemoryInfo()
		fmt.Println("│")
		fmt.Println("│ Process:")
		if cerr == nil {
			fmt.Printf("│   CPU:                %6.1f%%\n", cpuPct)
		}
		if merr == nil && memInfo != nil {
			fmt.Printf("│   RSS:                %6.1f MB\n", float64(memInfo.RSS)/1024.0/1024.0)
		}
	}

	fmt.Println("╰─────────────────────────────────────────────────────────────────╯")
	fmt.Println()
}

// printFinal prints final statistics at shutdown. fanStats is snapshotted
// by the caller before the fan-out closes, since Close clears the receiver
// registry.
func (r *statsReporter) printFinal(fanStats fanout.FanoutStats) {
	stageStats := r.stage.Stats()
	produced := r.src.produced.Load()

	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                     Final Statistics                         ")
	fmt.Println("═══════════════════════════════════════════════════════════════")

	fmt.Printf("  Frames Produced:       %d\n", produced)
	fmt.Printf("  Coalesced:             %d (%.1f%%)\n",
		stageStats.Coalesced, pct(stageStats.Coalesced, stageStats.Submitted))
	fmt.Printf("  Dispatched:            %d\n", stageStats.Dispatched)
	fmt.Printf("  Published:             %d\n", stageStats.Published)
	fmt.Printf("  Failures:              %d\n", stageStats.Failures)
	fmt.Printf("  Discarded at Stop:     %d\n", stageStats.DiscardedResults)
	if stageStats.WorkerAbandoned {
		fmt.Println("  Worker:                ABANDONED at shutdown")
	}

	if p := stageStats.Pool; p != nil {
		fmt.Println()
		fmt.Printf("  Pool Acquired:         %d\n", p.Acquired)
		fmt.Printf("  Pool Released:         %d\n", p.Released)
		fmt.Printf("  Exhausted Rejects:     %d\n", p.ExhaustedRejects)
		fmt.Printf("  Degradation Episodes:  %d\n", p.Episodes)
	}

	fmt.Println()
	fmt.Printf("  Fan-out Published:     %d\n", fanStats.Published)
	fmt.Printf("  Fan-out Skipped:       %d\n", fanStats.Skipped)
	fmt.Printf("  Fan-out Reclaimed:     %d\n", fanStats.Reclaimed)

	fmt.Println()
	fmt.Println("  Consumer Summary:")
	for _, c := range r.consumers {
		processed, invalid := c.stats()
		var drops uint64
		if rs, ok := fanStats.Receivers[c.id]; ok {
			drops = rs.TotalDrops
		}
		fmt.Printf("    %-15s: %d processed, %d drops (%.1f%%), %d invalid\n",
			c.id, processed, drops, dropRateFromCounts(processed, drops), invalid)
	}

	if r.saver != nil {
		saved, dropped := r.saver.Stats()
		fmt.Println()
		fmt.Printf("  Frames Saved:          %d\n", saved)
		if dropped > 0 {
			fmt.Printf("  Save Drops:            %d\n", dropped)
		}
	}

	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println()
}

// idleReceivers returns IDs of receivers that are flagged as idle
func idleReceivers(stats fanout.FanoutStats) []string {
	var idle []string
	for id, rs := range stats.Receivers {
		if rs.IsIdle {
			idle = append(idle, id)
		}
	}
	return idle
}

// pct computes part as a percentage of whole.
func pct(part, whole uint64) float64 {
	if whole == 0 {
		return 0.0
	}
	return float64(part) / float64(whole) * 100.0
}

// dropRateFromCounts calculates drop rate from processed + drops
func dropRateFromCounts(processed, drops uint64) float64 {
	total := processed + drops
	if total == 0 {
		return 0.0
	}
	return float64(drops) / float64(total) * 100.0
}
