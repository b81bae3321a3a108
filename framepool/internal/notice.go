package internal

import (
	"sync/atomic"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// degradeGate latches degradation episodes so refusal notices are logged
// once per episode, never once per frame. An episode opens at the first
// refused acquire after a success and closes at the next successful acquire.
// The category limiter additionally caps notices when episodes flap faster
// than an operator could act on them.
type degradeGate struct {
	degraded atomic.Bool
	episodes atomic.Uint64
	limiter  *catrate.Limiter
}

func newDegradeGate() *degradeGate {
	return &degradeGate{
		limiter: catrate.NewLimiter(map[time.Duration]int{
			time.Minute: 3,
			time.Hour:   30,
		}),
	}
}

// enter records a refused acquire. Reports true when the refusal opens a new
// episode and the notice budget allows logging it.
func (g *degradeGate) enter(owner string) bool {
	if !g.degraded.CompareAndSwap(false, true) {
		return false
	}
	g.episodes.Add(1)
	_, ok := g.limiter.Allow(owner)
	return ok
}

// leave records a successful acquire, closing any open episode.
func (g *degradeGate) leave() {
	if g.degraded.Load() {
		g.degraded.Store(false)
	}
}
