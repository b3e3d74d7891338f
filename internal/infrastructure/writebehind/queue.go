package writebehind

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize     = 1024
	defaultMaxAttempts   = 5
	defaultRetryDelay    = 200 * time.Millisecond
	defaultMaxRetryDelay = 10 * time.Second
	defaultDegradedAfter = 3
)

// Config tunes a Queue. Zero values select defaults.
type Config struct {
	QueueSize     int
	MaxAttempts   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	DegradedAfter int
}

// Logger defines the logging interface for the queue.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Func is one unit of store work. It receives a context that is cancelled
// when Close gives up waiting.
type Func func(ctx context.Context) error

type job struct {
	op string
	fn Func
}

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
	Retries   uint64 `json:"retries"`
	Pending   int    `json:"pending"`
	Degraded  bool   `json:"degraded"`
}

// Queue is an ordered, retrying, non-blocking write-behind queue.
//
// Thread Safety:
//   - Submit, Degraded, Stats and Close are safe for concurrent use.
type Queue struct {
	cfg  Config
	jobs chan job

	// mu guards closed so Submit never sends on a closed channel.
	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	logger  Logger
	onError func(op string, err error)

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
	retries   atomic.Uint64
	degraded  atomic.Bool

	// consecutive is owned by the worker goroutine.
	consecutive int
}

// New creates a Queue and starts its worker.
func New(cfg Config) *Queue {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = defaultMaxRetryDelay
	}
	if cfg.DegradedAfter <= 0 {
		cfg.DegradedAfter = defaultDegradedAfter
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:    cfg,
		jobs:   make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
	go q.run()
	return q
}

// SetLogger sets the logger. Call before submitting work.
func (q *Queue) SetLogger(logger Logger) {
	q.logger = logger
}

// SetOnError sets a callback for jobs dropped after their final attempt.
// Call before submitting work.
func (q *Queue) SetOnError(callback func(op string, err error)) {
	q.onError = callback
}

// Submit enqueues fn without blocking.
//
// Parameters:
//   - op: Short operation name used in logs (e.g. "reading.append")
//   - fn: The store write
//
// Returns:
//   - error: ErrStoreUnavailable if the queue is full or closed
func (q *Queue) Submit(op string, fn Func) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.rejected.Add(1)
		return fmt.Errorf("%w: queue closed", ErrStoreUnavailable)
	}

	select {
	case q.jobs <- job{op: op, fn: fn}:
		q.submitted.Add(1)
		return nil
	default:
		q.rejected.Add(1)
		return fmt.Errorf("%w: queue full (%d pending)", ErrStoreUnavailable, cap(q.jobs))
	}
}

// Degraded reports whether recent store writes have been failing.
func (q *Queue) Degraded() bool {
	return q.degraded.Load()
}

// Stats returns the current counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Submitted: q.submitted.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Rejected:  q.rejected.Load(),
		Retries:   q.retries.Load(),
		Pending:   len(q.jobs),
		Degraded:  q.degraded.Load(),
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
//
// If ctx expires first, in-flight retries are abandoned, the remaining
// jobs are discarded, and ctx.Err() is returned.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.done
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for j := range q.jobs {
		if q.ctx.Err() != nil {
			q.failed.Add(1)
			continue
		}
		q.execute(j)
	}
}

// execute runs one job to success or exhaustion.
func (q *Queue) execute(j job) {
	var err error
	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			q.retries.Add(1)
			if !q.wait(q.backoff(attempt - 1)) {
				break
			}
		}

		if err = j.fn(q.ctx); err == nil {
			q.recordSuccess()
			return
		}
		q.recordFailure(j.op, attempt, err)
	}

	q.failed.Add(1)
	final := fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, j.op, err)
	q.logger.Error("store write dropped", "op", j.op, "error", err)
	if q.onError != nil {
		q.onError(j.op, final)
	}
}

// backoff returns the delay before retry n (1-based): RetryDelay * 2^(n-1),
// capped at MaxRetryDelay.
func (q *Queue) backoff(n int) time.Duration {
	d := q.cfg.RetryDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= q.cfg.MaxRetryDelay {
			return q.cfg.MaxRetryDelay
		}
	}
	return d
}

// wait sleeps for d, returning false if the queue was cancelled.
func (q *Queue) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-q.ctx.Done():
		return false
	}
}

func (q *Queue) recordSuccess() {
	q.completed.Add(1)
	q.consecutive = 0
	if q.degraded.CompareAndSwap(true, false) {
		q.logger.Info("store recovered, leaving degraded mode")
	}
}

func (q *Queue) recordFailure(op string, attempt int, err error) {
	q.consecutive++
	q.logger.Debug("store write attempt failed", "op", op, "attempt", attempt, "error", err)
	if q.consecutive >= q.cfg.DegradedAfter && q.degraded.CompareAndSwap(false, true) {
		q.logger.Warn("store entering degraded mode",
			"consecutive_failures", q.consecutive,
			"error", err,
		)
	}
}
