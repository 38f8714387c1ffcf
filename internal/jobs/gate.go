package jobs

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate admits one run at a time. Runs share the config document, the
// upload path and the output file, so they must not overlap.
type Gate struct {
	sem     *semaphore.Weighted
	waiting atomic.Int64
}

func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the gate is free or ctx is done. The returned
// release func must be called exactly once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	g.waiting.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return nil, err
	}
	return func() { g.sem.Release(1) }, nil
}

// Waiting reports how many callers are queued behind the active run.
func (g *Gate) Waiting() int64 {
	return g.waiting.Load()
}
