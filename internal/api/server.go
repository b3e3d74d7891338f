package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/coop-bridge/internal/bridge"
	"github.com/nerrad567/coop-bridge/internal/hub"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/config"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/coop-bridge/internal/infrastructure/writebehind"
	"github.com/nerrad567/coop-bridge/internal/status"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the part of the bridge the HTTP surface needs.
// *bridge.Bridge satisfies it.
type Bridge interface {
	Connect(obs *hub.Observer) error
	Disconnect(id string)
	HandleObserverMessage(id string, data []byte) error
	Health() bridge.Health
	Statuses() []status.Status
	Status(key string) (status.Status, bool)
	History(ctx context.Context, key string, limit int) ([]status.HistoryEntry, error)
}

// StoreStats reports write-behind queue counters. *writebehind.Queue
// satisfies it.
type StoreStats interface {
	Stats() writebehind.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Bridge  Bridge
	Store   StoreStats // optional
	Version string
}

// Server is the HTTP server for observers and the read-only REST views.
//
// It is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	policy  hub.Policy
	logger  *logging.Logger
	bridge  Bridge
	store   StoreStats
	version string

	mu     sync.Mutex
	server *http.Server
	addr   string
	pumps  sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, bridge)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing or the overflow policy is unknown
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	policy, err := hub.ParsePolicy(deps.WS.OverflowPolicy)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	if deps.WS.Path == "" {
		deps.WS.Path = "/ws"
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		policy:  policy,
		logger:  deps.Logger,
		bridge:  deps.Bridge,
		store:   deps.Store,
		version: deps.Version,
	}, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
// The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation of the bind
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", srv.Addr, err)
	}
	s.server = srv
	s.addr = ln.Addr().String()

	s.logger.Info("API server listening", "address", s.addr, "websocket_path", s.wsCfg.Path)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the API server. Safe to call more than once.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. Hijacked WebSocket
// connections are not tracked by http.Server; their pumps exit when the
// bridge closes the observers.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// Wait blocks until every WebSocket pump has exited or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
