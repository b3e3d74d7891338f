package bridge

import (
	"context"

	"github.com/nerrad567/coop-bridge/internal/reading"
	"github.com/nerrad567/coop-bridge/internal/status"
)

// persistStatus queues the upsert and history record for ch and mirrors
// it. Called under the key lock, so queue order per key is table order.
func (b *Bridge) persistStatus(ch status.Change) {
	st := ch.Status
	if b.statusRepo != nil {
		b.submit("upsert status", func(ctx context.Context) error {
			return b.statusRepo.Upsert(ctx, st)
		})
	}
	if b.historyRepo != nil {
		b.submit("record status history", func(ctx context.Context) error {
			return b.historyRepo.Record(ctx, ch)
		})
	}
	if b.mirror != nil {
		b.mirror.WriteStatus(st.Key, string(st.State), string(ch.Source), st.UpdatedAt)
	}
}

// persistReading queues the append for rd and mirrors it.
func (b *Bridge) persistReading(rd reading.Reading) {
	if b.readingRepo != nil {
		b.submit("append reading", func(ctx context.Context) error {
			return b.readingRepo.Append(ctx, rd)
		})
	}
	if b.mirror != nil {
		b.mirror.WriteReading(string(rd.Channel), rd.Value, rd.ObservedAt)
	}
}

// submit hands fn to the write-behind queue. A rejection is logged and
// otherwise ignored; in-memory state is already updated.
func (b *Bridge) submit(op string, fn func(ctx context.Context) error) {
	if b.store == nil {
		return
	}
	if err := b.store.Submit(op, fn); err != nil {
		b.logger.Error("store write rejected", "op", op, "error", err)
	}
}
