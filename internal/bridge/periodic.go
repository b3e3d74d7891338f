package bridge

import (
	"context"
	"strconv"
	"time"

	"github.com/nerrad567/coop-bridge/internal/infrastructure/mqtt"
)

// sunTimeout bounds one SunSource lookup.
const sunTimeout = 10 * time.Second

// SunSource supplies the sunrise and sunset hours republished on the bus.
type SunSource interface {
	SunTimes(ctx context.Context) (rise, set int, err error)
}

// StaticSun returns fixed hours.
type StaticSun struct {
	Rise int
	Set  int
}

// SunTimes returns the configured hours.
func (s StaticSun) SunTimes(context.Context) (rise, set int, err error) {
	return s.Rise, s.Set, nil
}

func (b *Bridge) startLoops() {
	b.wg.Add(1)
	go b.every(b.cfg.BeaconInterval, b.PublishBeacon)

	if b.sun != nil {
		b.wg.Add(1)
		go b.every(b.cfg.SunInterval, b.PublishSun)
	}

	if b.historyRepo != nil && b.cfg.HistoryRetention > 0 {
		b.wg.Add(1)
		go b.every(b.cfg.PruneInterval, b.pruneHistory)
	}
}

// every runs fn each interval until Stop.
func (b *Bridge) every(interval time.Duration, fn func()) {
	defer b.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			fn()
		}
	}
}

// PublishBeacon publishes the current time as unix seconds plus the local
// UTC offset.
func (b *Bridge) PublishBeacon() {
	payload := strconv.FormatInt(beaconValue(b.now(), b.cfg.Location), 10)
	if err := b.bus.Publish(mqtt.TopicTimeBeacon, []byte(payload), mqtt.QoSAtMostOnce, false); err != nil {
		b.logger.Warn("time beacon publish failed", "error", err)
	}
}

func beaconValue(now time.Time, loc *time.Location) int64 {
	_, offset := now.In(loc).Zone()
	return now.Unix() + int64(offset)
}

// PublishSun publishes the current sunrise and sunset hours at qos 2.
func (b *Bridge) PublishSun() {
	if b.sun == nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, sunTimeout)
	defer cancel()

	rise, set, err := b.sun.SunTimes(ctx)
	if err != nil {
		b.logger.Warn("sun lookup failed", "error", err)
		return
	}
	for _, p := range []struct {
		topic string
		hour  int
	}{{mqtt.TopicSunRise, rise}, {mqtt.TopicSunSet, set}} {
		if err := b.bus.Publish(p.topic, []byte(strconv.Itoa(p.hour)), mqtt.QoSExactlyOnce, false); err != nil {
			b.logger.Warn("sun publish failed", "topic", p.topic, "error", err)
		}
	}
}

// goPublishSun publishes sun times off the caller's goroutine.
func (b *Bridge) goPublishSun() {
	if b.sun == nil {
		return
	}
	b.loopMu.Lock()
	defer b.loopMu.Unlock()
	if b.stopped {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.PublishSun()
	}()
}

// pruneHistory queues deletion of status history past retention.
func (b *Bridge) pruneHistory() {
	if b.historyRepo == nil || b.cfg.HistoryRetention <= 0 {
		return
	}
	retention := b.cfg.HistoryRetention
	b.submit("prune status history", func(ctx context.Context) error {
		n, err := b.historyRepo.Prune(ctx, retention)
		if err != nil {
			return err
		}
		if n > 0 {
			b.logger.Info("pruned status history", "deleted", n, "retention", retention)
		}
		return nil
	})
}
