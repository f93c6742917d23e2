// Package worker runs the asynchronous check workers. Each worker loops
// reading check work items from the queue, runs them through the checker,
// and acknowledges the items it completed.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jonesrussell/linkscan/internal/logger"
	"github.com/jonesrussell/linkscan/internal/queue"
)

// defaultIdleDelay is how long a worker waits before polling again when the
// queue returned no work.
const defaultIdleDelay = time.Second

// CheckSource supplies check work items. Implemented by queue.Consumer.
type CheckSource interface {
	Read(ctx context.Context) ([]*queue.ConsumedCheck, error)
	Acknowledge(ctx context.Context, check *queue.ConsumedCheck) error
}

// LinkChecker executes a single link check by ID.
type LinkChecker interface {
	CheckLink(ctx context.Context, linkID string) error
}

// Config configures the worker pool.
type Config struct {
	WorkerCount int
	IdleDelay   time.Duration
}

// WithDefaults fills zero values with defaults.
func (c Config) WithDefaults() Config {
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = defaultIdleDelay
	}
	return c
}

// Pool manages a set of check workers reading from a shared source.
type Pool struct {
	source      CheckSource
	checker     LinkChecker
	log         logger.Interface
	workerCount int
	idleDelay   time.Duration
}

// NewPool creates a worker pool.
func NewPool(source CheckSource, checker LinkChecker, log logger.Interface, cfg Config) *Pool {
	cfg = cfg.WithDefaults()

	return &Pool{
		source:      source,
		checker:     checker,
		log:         log,
		workerCount: cfg.WorkerCount,
		idleDelay:   cfg.IdleDelay,
	}
}

// Start launches the workers. Blocks until ctx is cancelled and every
// worker has drained its in-flight work.
func (p *Pool) Start(ctx context.Context) error {
	p.log.Info("starting worker pool", "worker_count", p.workerCount)

	var wg sync.WaitGroup

	for i := range p.workerCount {
		wg.Add(1)

		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	p.log.Info("worker pool stopped")

	return nil
}

// worker is a single worker goroutine loop.
func (p *Pool) worker(ctx context.Context, workerID int) {
	p.log.Info("worker started", "worker_id", workerID)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("worker stopping", "worker_id", workerID)
			return
		default:
		}

		if shouldReturn := p.readAndProcess(ctx, workerID); shouldReturn {
			return
		}
	}
}

// readAndProcess reads one batch and runs each check.
// Returns true if the worker should exit (context cancelled).
func (p *Pool) readAndProcess(ctx context.Context, workerID int) bool {
	checks, err := p.source.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.log.Error("read from queue failed", "worker_id", workerID, "error", err.Error())
		return p.sleepOrCancel(ctx)
	}

	if len(checks) == 0 {
		return p.sleepOrCancel(ctx)
	}

	for _, check := range checks {
		if ctx.Err() != nil {
			return true
		}
		p.processCheck(ctx, workerID, check)
	}

	return false
}

// processCheck runs a single check and acknowledges it. A failed check is
// acknowledged anyway only when the checker returned nil; errors leave the
// message pending so another consumer reclaims it later.
func (p *Pool) processCheck(ctx context.Context, workerID int, check *queue.ConsumedCheck) {
	if err := p.checker.CheckLink(ctx, check.Check.LinkID); err != nil {
		p.log.Error("link check failed",
			"worker_id", workerID,
			"link_id", check.Check.LinkID,
			"scan_id", check.Check.ScanID,
			"error", err.Error(),
		)
		return
	}

	if ackErr := p.source.Acknowledge(ctx, check); ackErr != nil {
		p.log.Error("acknowledge failed",
			"worker_id", workerID,
			"message_id", check.MessageID,
			"error", ackErr.Error(),
		)
	}
}

// sleepOrCancel sleeps for the idle delay or returns true if the context
// is cancelled.
func (p *Pool) sleepOrCancel(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-time.After(p.idleDelay):
		return false
	}
}
