// Coop Bridge - MQTT to WebSocket bridge for a chicken coop controller.
//
// The bridge subscribes to the coop controller's sensor and device topics,
// keeps the latest device statuses and recent readings, fans every change
// out to connected observers over WebSocket, and relays observer triggers
// back to the bus. It also publishes the time beacon and sunrise/sunset
// hours the controller schedules against.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/coop-bridge/internal/api"
	"github.com/nerrad567/coop-bridge/internal/bridge"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/config"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/database"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/writebehind"
	"github.com/nerrad567/coop-bridge/internal/reading"
	"github.com/nerrad567/coop-bridge/internal/status"
	"github.com/nerrad567/coop-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds the write-behind flush and observer drain on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the parsed command-line flags.
type options struct {
	configPath  string
	showVersion bool
}

// parseFlags parses args with pflag.
//
// Returns:
//   - options: Parsed flags; configPath falls back to COOPBRIDGE_CONFIG, then the default
//   - error: If args contain an unknown flag
func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("coopbridge", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses COOPBRIDGE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("COOPBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - out: Where --version and flag usage are written
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(out, "coopbridge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting coop bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	log = logging.New(cfg.Logging, logging.Build{Version: version, Site: cfg.Site.ID})
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	bridgeCfg, err := bridge.ConfigFrom(cfg)
	if err != nil {
		return fmt.Errorf("bridge config: %w", err)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Hooks{
		Logger: log.Component("mqtt"),
		OnConnect: func() {
			log.Info("MQTT session established")
		},
		OnConnectionLost: func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		},
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB is an optional mirror of readings and status changes.
	var mirror bridge.Mirror
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB, influxdb.Options{
			Site: cfg.Site.ID,
			OnError: func(err error) {
				log.Error("InfluxDB write error", "error", err)
			},
		})
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			st := influxClient.Stats()
			log.Info("closing InfluxDB connection", "points_queued", st.Queued, "batches_failed", st.Failed)
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		mirror = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	queue := writebehind.New(writebehind.Config{
		QueueSize:     cfg.Store.QueueSize,
		MaxAttempts:   cfg.Store.MaxAttempts,
		RetryDelay:    time.Duration(cfg.Store.RetryDelayMS) * time.Millisecond,
		DegradedAfter: cfg.Store.DegradedAfter,
	})
	queue.SetLogger(log.Component("store"))
	// Registered before the bridge so it runs after bridge.Stop and
	// flushes everything the bridge submitted.
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("flushing store", "pending", queue.Stats().Pending)
		if closeErr := queue.Close(flushCtx); closeErr != nil {
			log.Error("error flushing store", "error", closeErr)
		}
	}()

	b, err := bridge.New(bridge.Options{
		Config:   bridgeCfg,
		Bus:      mqttClient,
		Store:    queue,
		Statuses: status.NewSQLiteRepository(db.DB),
		History:  status.NewSQLiteHistoryRepository(db.DB),
		Readings: reading.NewSQLiteRepository(db.DB),
		Mirror:   mirror,
		Sun:      bridge.StaticSun{Rise: cfg.Sun.Rise, Set: cfg.Sun.Set},
		Logger:   log.Component("bridge"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()
	log.Info("bridge started",
		"devices", len(b.Statuses()),
		"client_id", bridgeCfg.ClientID,
	)

	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Bridge:  b,
		Store:   queue,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Stop accepting connections, then close observers so their pumps
	// exit before the store flushes. Deferred closes run afterwards in
	// reverse order: bridge, store, InfluxDB, MQTT, database.
	if closeErr := server.Close(); closeErr != nil {
		log.Error("error closing API server", "error", closeErr)
	}
	b.Stop()
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if waitErr := server.Wait(drainCtx); waitErr != nil {
		log.Warn("observer connections did not drain", "error", waitErr)
	}

	log.Info("coop bridge stopped")
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - server: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
