package internal

// Stats is a non-blocking snapshot of pool operational state.
type Stats struct {
	// OwnerID identifies the pool in logs and notices.
	OwnerID string

	// Slots is the fixed capacity.
	Slots int

	// FreeSlots is the free-list depth at snapshot time.
	FreeSlots int

	// Mode is the sharing mode at snapshot time.
	Mode Mode

	// Acquired counts successful Acquire calls.
	Acquired uint64

	// Released counts validated release calls.
	Released uint64

	// BroadcastRejects counts acquires refused because of BroadcastMode.
	BroadcastRejects uint64

	// ExhaustedRejects counts acquires that ran out of retry budget.
	ExhaustedRejects uint64

	// Retries counts exhaustion retry iterations across all acquires.
	Retries uint64

	// StaleReleases counts releases ignored by generation validation.
	StaleReleases uint64

	// OverReleases counts frame releases beyond the declared consumer count.
	OverReleases uint64

	// Episodes counts degradation episodes (first refusal after a success).
	// Healthy pipelines hold this at 0; a rising value means the pool is
	// undersized or a consumer is leaking references.
	Episodes uint64
}

// Stats returns a snapshot of operational counters. Safe for concurrent use;
// the snapshot may be slightly stale, which is acceptable for monitoring.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	freeSlots := len(p.free)
	p.mu.Unlock()

	return Stats{
		OwnerID:          p.ownerID,
		Slots:            len(p.slots),
		FreeSlots:        freeSlots,
		Mode:             Mode(p.mode.Load()),
		Acquired:         p.acquired.Load(),
		Released:         p.released.Load(),
		BroadcastRejects: p.broadcastRejects.Load(),
		ExhaustedRejects: p.exhaustedRejects.Load(),
		Retries:          p.retries.Load(),
		StaleReleases:    p.staleReleases.Load(),
		OverReleases:     p.overReleases.Load(),
		Episodes:         p.gate.episodes.Load(),
	}
}
