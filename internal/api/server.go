// Package api provides the HTTP REST API and WebSocket server for upcast.
//
// It exposes discovery runs, the device cache, profile matching, and media
// control to local network consumers (home automation systems, dashboards,
// scripts).
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dabrowsk/upcast/internal/cache"
	"github.com/dabrowsk/upcast/internal/discovery"
	"github.com/dabrowsk/upcast/internal/infrastructure/config"
	"github.com/dabrowsk/upcast/internal/infrastructure/influxdb"
	"github.com/dabrowsk/upcast/internal/infrastructure/logging"
	"github.com/dabrowsk/upcast/internal/infrastructure/mqtt"
	"github.com/dabrowsk/upcast/internal/media"
	"github.com/dabrowsk/upcast/internal/profile"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Discovery config.DiscoveryConfig
	Profiles  config.ProfilesConfig
	Logger    *logging.Logger
	Engine    *discovery.Engine
	Cache     cache.Repository
	Store     *profile.Store
	Media     *media.Controller
	MQTT      *mqtt.Client      // optional: control results are announced when set
	Telemetry *influxdb.Client  // optional: control outcomes are recorded when set
	HTTP      *http.Client      // used for on-demand SCPD fetches; nil gets a default
	Version   string
}

// Server is the HTTP API server for upcast.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	discCfg    config.DiscoveryConfig
	profCfg    config.ProfilesConfig
	logger     *logging.Logger
	engine     *discovery.Engine
	cache      cache.Repository
	store      *profile.Store
	media      *media.Controller
	mqtt       *mqtt.Client
	telemetry  *influxdb.Client
	httpClient *http.Client
	version    string
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, engine, cache, store, media)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("discovery engine is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("device cache is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if deps.Media == nil {
		return nil, fmt.Errorf("media controller is required")
	}
	// MQTT and Telemetry are optional; control still works without them.

	httpClient := deps.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}

	return &Server{
		cfg:        deps.Config,
		hub:        NewHub(deps.WS, deps.Logger),
		wsCfg:      deps.WS,
		discCfg:    deps.Discovery,
		profCfg:    deps.Profiles,
		logger:     deps.Logger,
		engine:     deps.Engine,
		cache:      deps.Cache,
		store:      deps.Store,
		media:      deps.Media,
		mqtt:       deps.MQTT,
		telemetry:  deps.Telemetry,
		httpClient: httpClient,
		version:    deps.Version,
	}, nil
}

// Hub returns the WebSocket hub. It exists from New() onward so the
// notifier chain can be wired before the listener accepts requests; the
// hub implements discovery.Notifier, wire it with engine.SetNotifier.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

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
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
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
