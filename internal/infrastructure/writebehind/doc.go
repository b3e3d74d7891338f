// Package writebehind queues durable-store writes off the hot path.
//
// The bridge commits state in memory, broadcasts it, and only then asks the
// store to persist it. This package provides that queue:
//
//   - Submit never blocks. A full or closed queue returns ErrStoreUnavailable.
//   - One worker runs jobs in submission order, so two writes for the same
//     device key land in the order they were committed.
//   - A failing job is retried with exponential backoff up to MaxAttempts,
//     then dropped and reported through the error callback.
//   - After DegradedAfter consecutive failed attempts the queue reports
//     Degraded() until the next success.
//
// # Usage
//
//	q := writebehind.New(writebehind.Config{QueueSize: 1024, MaxAttempts: 5})
//	q.SetLogger(logger)
//	defer q.Close(ctx)
//
//	err := q.Submit("status.upsert", func(ctx context.Context) error {
//	    return repo.Upsert(ctx, st)
//	})
package writebehind
