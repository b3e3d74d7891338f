package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/coop-bridge/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Options are the mirror settings that do not come from the influxdb
// config block.
type Options struct {
	// Site tags every point. Empty falls back to the org name.
	Site string

	// OnError receives asynchronous batch failures wrapped in ErrWriteFailed.
	OnError func(err error)
}

// Stats counts mirror traffic since Connect.
type Stats struct {
	Queued uint64 // points handed to the batcher
	Failed uint64 // batch write failures reported by the server
}

// Client mirrors readings and status changes into InfluxDB.
//
// The mirror is optional and lossy; SQLite remains the store the bridge
// cold-starts from. Writes never block the ingest path: points go to the
// client's batcher and failures surface through Options.OnError.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	influx influxdb2.Client
	points api.WriteAPI
	site   string

	open    atomic.Bool
	queued  atomic.Uint64
	failed  atomic.Uint64
	onError func(err error)
}

// Connect pings the server and opens a batched write API on the
// configured bucket.
//
// Parameters:
//   - ctx: Context bounding the initial ping
//   - cfg: InfluxDB configuration from config.yaml
//   - opts: Site tag and async error callback
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrDisabled when the mirror is off, ErrConnectionFailed otherwise
func Connect(ctx context.Context, cfg config.InfluxDBConfig, opts Options) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize, flushInterval := batchSettings(cfg)
	// #nosec G115 -- batchSettings returns positive values
	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000)) // milliseconds

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	if err := ping(pingCtx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		influx:  influx,
		points:  influx.WriteAPI(cfg.Org, cfg.Bucket),
		site:    opts.Site,
		onError: opts.OnError,
	}
	if c.site == "" {
		c.site = cfg.Org
	}
	c.open.Store(true)

	go c.watchErrors(c.points.Errors())
	return c, nil
}

// batchSettings returns the configured batch size and flush interval
// (seconds), substituting defaults for non-positive values.
func batchSettings(cfg config.InfluxDBConfig) (batchSize, flushInterval int) {
	batchSize = cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval = cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return batchSize, flushInterval
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	healthy, err := influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

// watchErrors drains the batcher's error channel until Close.
func (c *Client) watchErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)
		if c.onError != nil {
			c.onError(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close flushes pending points and closes the client. Safe on nil.
func (c *Client) Close() error {
	if c == nil || c.influx == nil {
		return nil
	}
	if !c.open.Swap(false) {
		return nil
	}
	c.points.Flush()
	c.influx.Close()
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(checkCtx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c != nil && c.open.Load()
}

// Stats returns the mirror counters.
func (c *Client) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Queued: c.queued.Load(), Failed: c.failed.Load()}
}

// Flush forces buffered points out. Safe to call after Close.
func (c *Client) Flush() {
	if !c.IsConnected() || c.points == nil {
		return
	}
	c.points.Flush()
}
