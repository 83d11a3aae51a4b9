package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nordvolt/wallbox-core/internal/history"
	"github.com/nordvolt/wallbox-core/internal/infrastructure/config"
	"github.com/nordvolt/wallbox-core/internal/infrastructure/logging"
	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Charger is the supervisor surface the API depends on.
// Narrowed to an interface so handler tests run against a fake.
type Charger interface {
	Status() (map[string]any, bool)
	RequestRefresh()
	StartCharging(ctx context.Context) error
	StopCharging(ctx context.Context) error
	SetMaxCurrent(ctx context.Context, amperes int) error
	Restart(ctx context.Context) error
	ListTags(ctx context.Context) ([]wallbox.RFIDTag, error)
	ScanTag(ctx context.Context) ([]int, error)
	AddTag(ctx context.Context, tagID []int, name string) error
	DeleteTag(ctx context.Context, tagID []int) error
}

// TransactionStore provides read access to the completed-session history.
type TransactionStore interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Charger  Charger
	History  TransactionStore
	Hub      *Hub // If set, the server uses this hub instead of creating its own
	Version  string
}

// Server is the HTTP API server for the wallbox supervisor.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	charger Charger
	hist    TransactionStore
	version string

	server      *http.Server
	hub         *Hub
	externalHub bool
	tickets     *ticketStore
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, charger)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Charger == nil {
		return nil, fmt.Errorf("charger is required")
	}
	// History is optional; the transactions endpoint returns 404 without it.

	s := &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		charger: deps.Charger,
		hist:    deps.History,
		version: deps.Version,
		tickets: newTicketStore(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the WebSocket hub, creating it if needed. Callers use it
// to broadcast status updates to connected clients.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and ticket cleanup,
// and launches the HTTP listener in a background goroutine. The server
// is stopped with Close().
//
// Parameters:
//   - ctx: Context for background goroutine cancellation
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	// Expired WebSocket tickets are otherwise only removed on lookup.
	go s.tickets.cleanLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
