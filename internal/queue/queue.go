// Package queue serializes and deduplicates synchronization work. At
// most one job per repository is ever queued or running; duplicate
// submissions are dropped, not queued, so repeated requests cannot grow
// an unbounded backlog. Distinct repositories run in parallel on a
// bounded worker pool.
package queue

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"grs-go/internal/grs"
)

// jobBuffer bounds how many accepted jobs may wait for a worker.
const jobBuffer = 1024

// Handler processes one repository synchronization. The context is not
// tied to coordinator cancellation: cancellation stops new jobs from
// starting but lets in-flight ones complete. A returned error is
// logged; it never stops the pool.
type Handler func(ctx context.Context, url string) error

// Coordinator owns the in-flight set and the worker pool.
type Coordinator struct {
	handler Handler
	logger  grs.Logger

	jobs   chan string
	group  *errgroup.Group
	cancel context.CancelFunc
	gate   context.Context // checked before starting each job

	mu       sync.Mutex
	inflight map[string]struct{}
	queued   int
	running  int
	closed   bool
	// sends counts Submit calls that passed the closed check but have
	// not finished their channel send yet. Shutdown waits for it before
	// closing jobs, so a Submit parked on a full buffer cannot hit a
	// closed channel.
	sends sync.WaitGroup
}

// New creates a coordinator and starts its worker pool. workers <= 0
// selects the host's CPU count.
func New(workers int, handler Handler, logger grs.Logger) *Coordinator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	gate, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		handler:  handler,
		logger:   logger,
		jobs:     make(chan string, jobBuffer),
		cancel:   cancel,
		gate:     gate,
		inflight: make(map[string]struct{}),
	}

	c.group = &errgroup.Group{}
	for i := 0; i < workers; i++ {
		c.group.Go(c.work)
	}

	logger.Debug("worker pool started", "workers", workers)
	return c
}

// Submit accepts a repository for synchronization. It returns false
// when the same repository is already queued or running (the duplicate
// is dropped), or when the coordinator is shut down. The membership
// check and insert happen atomically under one lock.
func (c *Coordinator) Submit(url string) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if _, ok := c.inflight[url]; ok {
		c.mu.Unlock()
		c.logger.Debug("duplicate submission dropped", "url", url)
		return false
	}
	c.inflight[url] = struct{}{}
	c.queued++
	c.sends.Add(1)
	c.mu.Unlock()

	c.jobs <- url
	c.sends.Done()
	return true
}

// Depth returns how many accepted jobs are waiting for a worker.
func (c *Coordinator) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queued
}

// InFlight returns how many jobs are currently being processed.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Drain blocks until no jobs are queued or running, or until ctx
// expires. It does not stop intake; callers coordinate that themselves.
func (c *Coordinator) Drain(ctx context.Context) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		idle := c.queued == 0 && c.running == 0
		c.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cancel stops any not-yet-started jobs from running. In-flight jobs
// are allowed to complete; their results are kept.
func (c *Coordinator) Cancel() {
	c.cancel()
}

// Shutdown stops accepting work and blocks until queued and in-flight
// jobs have drained or ctx expires.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	first := !c.closed
	c.closed = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if first {
			// New submissions are already refused; wait out the ones
			// mid-send before closing the channel under them.
			c.sends.Wait()
			close(c.jobs)
		}
		c.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) work() error {
	for url := range c.jobs {
		c.mu.Lock()
		c.queued--
		c.running++
		c.mu.Unlock()

		if c.gate.Err() == nil {
			c.runOne(url)
		} else {
			c.logger.Debug("job skipped after cancellation", "url", url)
		}

		c.mu.Lock()
		c.running--
		delete(c.inflight, url)
		c.mu.Unlock()
	}
	return nil
}

/// runOne shields the pool from a misbehaving handler: one repository's
// panic must not stop the others from being processed.
func (c *Coordinator) runOne(url string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("synchronization panicked", "url", url, "panic", r)
		}
	}()
	if err := c.handler(context.Background(), url); err != nil {
		c.logger.Error("synchronization failed", "url", url, "error", err)
	}
}
