package asyncstage

import "github.com/e7canasta/framekit/framepool"

// StageStats is a non-blocking snapshot of stage operational state.
type StageStats struct {
	// StageID identifies the stage.
	StageID string

	// Running is true between a successful Start and the first Stop.
	Running bool

	// Submitted counts inputs accepted by Submit.
	Submitted uint64

	// Coalesced counts pending submissions discarded by a newer one.
	// Submitted - Coalesced - InvalidInputs bounds the dispatch count.
	Coalesced uint64

	// Dispatched counts work items handed to the worker.
	Dispatched uint64

	// Published counts outputs delivered to the result callback.
	Published uint64

	// Failures counts dispatches whose Processor returned an error
	// (panics included).
	Failures uint64

	// InvalidInputs counts submissions rejected by Describe before
	// dispatch.
	InvalidInputs uint64

	// DiscardedResults counts outputs dropped because the stage was
	// shutting down when they completed.
	DiscardedResults uint64

	// Panics counts Processor panics recovered by the worker.
	Panics uint64

	// PoolsCreated counts pool (re)creations, the first one included.
	// Rises when output geometry or the configured capacity changes.
	PoolsCreated uint64

	// WorkerAbandoned is true when a Stop timed out waiting for the worker.
	WorkerAbandoned bool

	// Pool is the live pool's snapshot, nil before the first dispatch.
	Pool *framepool.Stats
}

// Stats returns a snapshot of operational counters. Safe for concurrent
// use; the snapshot may be slightly stale, which is acceptable for
// monitoring.
func (s *Stage[I, O, P]) Stats() StageStats {
	st := StageStats{
		StageID:          s.id,
		Running:          s.running.Load(),
		Submitted:        s.submitted.Load(),
		Coalesced:        s.coalesced.Load(),
		Dispatched:       s.dispatched.Load(),
		Published:        s.published.Load(),
		Failures:         s.failures.Load(),
		InvalidInputs:    s.invalidInputs.Load(),
		DiscardedResults: s.discardedResults.Load(),
		Panics:           s.panics.Load(),
		PoolsCreated:     s.poolsCreated.Load(),
		WorkerAbandoned:  s.workerAbandoned.Load(),
	}
	if p := s.pool.Load(); p != nil {
		ps := p.Stats()
		st.Pool = &ps
	}
	return st
}
