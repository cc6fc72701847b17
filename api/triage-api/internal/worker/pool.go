// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_worker

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the CPU-heavy work (audio scoring, local inference warmup)
// shared by every live session, so a burst of streams degrades throughput
// instead of oversubscribing the host. Callers run their task on their own
// goroutine; the pool only gates admission.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool creates a pool with the given concurrency. A size of zero or less
// defaults to the number of CPUs.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the pool's concurrency bound.
func (p *Pool) Size() int {
	return p.size
}

// Do runs task once a slot is free, holding the slot for the task's
// duration. It returns the task's error, or the context error when the
// caller gives up before a slot opens.
func (p *Pool) Do(ctx context.Context, task func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return task()
}
