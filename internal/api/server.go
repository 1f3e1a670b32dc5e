package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/revend-core/internal/detection"
	"github.com/nerrad567/revend-core/internal/infrastructure/config"
	"github.com/nerrad567/revend-core/internal/infrastructure/logging"
	"github.com/nerrad567/revend-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/revend-core/internal/ledger"
	"github.com/nerrad567/revend-core/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Classifier is the vision service contract the classify endpoint needs.
// Satisfied by *vision.Client.
type Classifier interface {
	Classify(ctx context.Context, image []byte, callerID string) (detection.Result, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	Sessions *session.Manager

	// Broadcaster is optional at construction: it usually publishes
	// through the server's own hub, so it's wired via SetBroadcaster()
	// after New(). It must be set before the first classify request.
	Broadcaster *detection.Broadcaster

	History *detection.History
	Vision      Classifier
	Ledger      ledger.Repository
	MQTT        *mqtt.Client // optional: machine status cache disabled when nil
	ExternalHub *Hub         // if set, the server uses this hub instead of creating its own
	Version     string
}

// SetBroadcaster wires the detection broadcaster after construction.
// The broadcaster publishes through the server's hub, so the composition
// root creates the server first, builds the broadcaster around Hub(), and
// hands it back here before Start().
func (s *Server) SetBroadcaster(b *detection.Broadcaster) {
	s.broadcaster = b
}

// Server is the HTTP API server for Revend Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	sessions    *session.Manager
	broadcaster *detection.Broadcaster
	history     *detection.History
	vision      Classifier
	ledger      ledger.Repository
	mqtt        *mqtt.Client
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool
	tickets     *ticketStore
	machines    *machineStatusCache
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, sessions, pipeline)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if deps.Vision == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("transaction ledger is required")
	}
	// MQTT is optional: machine status reads 404 without it.

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		sessions:    deps.Sessions,
		broadcaster: deps.Broadcaster,
		history:     deps.History,
		vision:      deps.Vision,
		ledger:      deps.Ledger,
		mqtt:        deps.MQTT,
		version:     deps.Version,
		tickets:     newTicketStore(),
		machines:    newMachineStatusCache(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub so the composition root can wire
// it into the detection broadcaster. Valid after New(); the hub's run loop
// starts with the server.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to MQTT
// machine status topics for the fleet cache, and launches the HTTP
// listener in a background goroutine. The server can be stopped with
// Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	// Periodic ticket cleanup prevents the store growing unbounded.
	go s.tickets.cleanLoop(srvCtx)

	if err := s.subscribeMachineStatus(); err != nil {
		s.logger.Warn("failed to subscribe to machine status topics", "error", err)
	}

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
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
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

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
