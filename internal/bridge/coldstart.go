package bridge

import (
	"context"
	"sort"

	"github.com/nerrad567/coop-bridge/internal/reading"
)

// coldStart loads persisted statuses, seeds configured defaults that are
// missing and backfills the reading cache. Store failures are logged and
// leave the bridge running with whatever it could load.
func (b *Bridge) coldStart(ctx context.Context) {
	if b.statusRepo != nil {
		rows, err := b.statusRepo.List(ctx)
		if err != nil {
			b.logger.Error("loading statuses failed", "error", err)
		} else {
			for _, err := range b.table.Load(rows) {
				b.logger.Warn("skipping stored status", "error", err)
			}
		}
	}

	keys := make([]string, 0, len(b.cfg.Defaults))
	for key := range b.cfg.Defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		_, created, err := b.table.Seed(key, b.cfg.Defaults[key], b.persistStatus)
		if err != nil {
			b.logger.Warn("seeding status failed", "device", key, "error", err)
			continue
		}
		if created {
			b.logger.Info("seeded default status", "device", key, "state", b.cfg.Defaults[key])
		}
	}

	if b.readingRepo != nil {
		hcfg := b.readings.Config()
		since := b.now().Add(-hcfg.Window)
		for _, ch := range reading.Channels() {
			rds, err := b.readingRepo.Recent(ctx, ch, since, hcfg.MaxSamples)
			if err != nil {
				b.logger.Error("backfilling readings failed", "channel", ch, "error", err)
				continue
			}
			if err := b.readings.Backfill(ch, rds); err != nil {
				b.logger.Warn("backfilling readings failed", "channel", ch, "error", err)
				continue
			}
			b.logger.Debug("backfilled readings", "channel", ch, "count", len(rds))
		}
	}

	b.pruneHistory()
}
