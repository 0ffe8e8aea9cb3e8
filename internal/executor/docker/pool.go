package docker

import (
	"context"
	"time"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/metrics"
)

// Pool bounds how many sandbox containers run at the same time.
//
// Every run creates a fresh container, so the pool hands out slots rather
// than containers. A run that cannot get a slot within the acquire timeout
// fails with apperror.ErrUnavailable instead of queueing forever.
type Pool struct {
	slots          chan struct{}
	acquireTimeout time.Duration
}

// NewPool creates a pool with size slots.
func NewPool(size int, acquireTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		slots:          make(chan struct{}, size),
		acquireTimeout: acquireTimeout,
	}
}

// Acquire blocks until a slot is free, the context is done or the acquire
// timeout passes. Callers must Release a slot they acquired.
func (p *Pool) Acquire(ctx context.Context) error {
	// Fast path: a free slot needs no timer.
	select {
	case p.slots <- struct{}{}:
		metrics.SlotsInUse.Inc()
		return nil
	default:
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
		metrics.SlotsInUse.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return apperror.Unavailable("all sandbox slots are busy, try again shortly")
	}
}

// Release returns a slot to the pool.
func (p *Pool) Release() {
	select {
	case <-p.slots:
		metrics.SlotsInUse.Dec()
	default:
	}
}

// InUse reports how many slots are currently held.
func (p *Pool) InUse() int {
	return len(p.slots)
}

// Size reports the pool capacity.
func (p *Pool) Size() int {
	return cap(p.slots)
}
