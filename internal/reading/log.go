package reading

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Default hydration bounds.
const (
	DefaultMaxSamples = 360
	DefaultWindow     = 24 * time.Hour
)

// Committer runs fn inside whatever critical section must cover both the
// cache append and its fan-out. The default just calls fn.
type Committer func(fn func())

// Config bounds the recent window kept per channel.
type Config struct {
	// MaxSamples caps the readings returned per channel.
	MaxSamples int

	// Window is the trailing period returned per channel.
	Window time.Duration
}

// channelLog is the per-channel state. appendMu orders appends and is held
// across the commit; ringMu guards the buffer and is only ever taken inside
// the commit or by readers, never while waiting on the committer.
type channelLog struct {
	appendMu sync.Mutex

	ringMu sync.Mutex
	ring   *ring
}

// Log is the in-memory recent-reading cache.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Appends on one channel are serialized; channels are independent.
type Log struct {
	cfg      Config
	channels map[Channel]*channelLog

	commit Committer
	now    func() time.Time
}

// NewLog creates an empty Log. Zero config fields take the defaults.
func NewLog(cfg Config) *Log {
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultMaxSamples
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}

	channels := make(map[Channel]*channelLog, len(Channels()))
	for _, c := range Channels() {
		channels[c] = &channelLog{ring: newRing(cfg.MaxSamples)}
	}
	return &Log{
		cfg:      cfg,
		channels: channels,
		commit:   func(fn func()) { fn() },
		now:      time.Now,
	}
}

// SetCommitter replaces the commit wrapper. Call before first use.
func (l *Log) SetCommitter(c Committer) {
	l.commit = c
}

// SetClock replaces the time source. Call before first use.
func (l *Log) SetClock(now func() time.Time) {
	l.now = now
}

// Config returns the effective bounds.
func (l *Log) Config() Config {
	return l.cfg
}

// Append stamps value with the bridge clock and adds it to channel.
// onCommit runs inside the committer while the channel is locked, so
// callbacks for one channel run in append order.
//
// Parameters:
//   - channel: Target channel
//   - value: Observed value; NaN and infinities are rejected
//   - onCommit: Optional callback for fan-out and persistence
//
// Returns:
//   - Reading: The appended reading
//   - error: ErrUnknownChannel or ErrInvalidValue
func (l *Log) Append(channel Channel, value float64, onCommit func(Reading)) (Reading, error) {
	cl, ok := l.channels[channel]
	if !ok {
		return Reading{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Reading{}, fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}

	cl.appendMu.Lock()
	defer cl.appendMu.Unlock()

	rd := Reading{Channel: channel, Value: value, ObservedAt: l.stamp(cl)}
	l.commit(func() {
		cl.ringMu.Lock()
		cl.ring.push(rd)
		cl.ringMu.Unlock()
		if onCommit != nil {
			onCommit(rd)
		}
	})
	return rd, nil
}

// Recent returns channel's readings inside the trailing window, at most
// MaxSamples, oldest first.
func (l *Log) Recent(channel Channel) []Reading {
	cl, ok := l.channels[channel]
	if !ok {
		return nil
	}

	cutoff := l.now().Add(-l.cfg.Window)
	out := make([]Reading, 0, l.cfg.MaxSamples)

	cl.ringMu.Lock()
	cl.ring.each(func(rd Reading) {
		if !rd.ObservedAt.Before(cutoff) {
			out = append(out, rd)
		}
	})
	cl.ringMu.Unlock()
	return out
}

// Backfill seeds channel with stored readings, typically at cold start
// before any append. Readings are sorted by ObservedAt first; only the
// newest MaxSamples survive.
func (l *Log) Backfill(channel Channel, readings []Reading) error {
	cl, ok := l.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	sorted := make([]Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ObservedAt.Before(sorted[j].ObservedAt)
	})

	cl.ringMu.Lock()
	defer cl.ringMu.Unlock()
	for _, rd := range sorted {
		rd.Channel = channel
		cl.ring.push(rd)
	}
	return nil
}

// Len returns the number of cached readings for channel.
func (l *Log) Len(channel Channel) int {
	cl, ok := l.channels[channel]
	if !ok {
		return 0
	}
	cl.ringMu.Lock()
	defer cl.ringMu.Unlock()
	return cl.ring.len()
}

// stamp returns now, clamped so ObservedAt never decreases within a
// channel. Caller holds cl.appendMu.
func (l *Log) stamp(cl *channelLog) time.Time {
	now := l.now()
	cl.ringMu.Lock()
	last, ok := cl.ring.last()
	cl.ringMu.Unlock()
	if ok && now.Before(last.ObservedAt) {
		return last.ObservedAt
	}
	return now
}
