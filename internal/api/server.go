// Package api provides the HTTP REST API and WebSocket server for mediafleet.
//
// It exposes the client fleet (registered backends, their connection state,
// capabilities) and the fan-out operations (channels, timers, recordings,
// providers) to user interfaces, plus a WebSocket feed of connection state
// changes and notifications.
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

	"github.com/ashgrove-media/mediafleet/internal/client"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/config"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/logging"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/mqtt"
	"github.com/ashgrove-media/mediafleet/internal/modulestore"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Fleet is the registry surface the API server consumes. Implemented by
// *client.Registry; narrowed to an interface so handlers can be tested
// against a stub.
type Fleet interface {
	ClientInfos(ctx context.Context) ([]client.ClientInfo, error)
	CreatedClientCount() int
	HasIgnoredClients() bool
	UpdateClients(ctx context.Context) error
	RequestRestart(moduleID string, instanceID modulestore.InstanceID) error

	GetChannels(ctx context.Context, radio bool) ([]client.Channel, client.Status, []int)
	GetChannelGroups(ctx context.Context, radio bool) ([]client.ChannelGroup, client.Status, []int)
	GetTimers(ctx context.Context) ([]client.Timer, client.Status, []int)
	GetRecordings(ctx context.Context, deleted bool) ([]client.Recording, client.Status, []int)
	DeleteAllRecordingsFromTrash(ctx context.Context) (client.Status, []int)
	GetProviders(ctx context.Context) ([]client.Provider, client.Status, []int)
	GetBackendProperties(ctx context.Context) ([]client.BackendProperties, client.Status, []int)
	SetEPGMaxPastDays(ctx context.Context, days int) (client.Status, []int)
	SetEPGMaxFutureDays(ctx context.Context, days int) (client.Status, []int)

	OnSystemSleep(ctx context.Context)
	OnSystemWake(ctx context.Context)
	OnPowerSavingActivated(ctx context.Context)
	OnPowerSavingDeactivated(ctx context.Context)
	StopAll(ctx context.Context)
	ContinueAll(ctx context.Context)

	AnyClientSupportingEPG() bool
	AnyClientSupportingRecordings() bool
	AnyClientSupportingRecordingsDelete() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Fleet    Fleet
	MQTT     *mqtt.Client // optional: enables WebSocket relay of fleet events
	Version  string
}

// Server is the HTTP API server for mediafleet.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	fleet   Fleet
	mqtt    *mqtt.Client
	version string
	server  *http.Server
	hub     *Hub
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Fleet == nil {
		return nil, fmt.Errorf("fleet registry is required")
	}
	// MQTT is optional — the WebSocket feed stays silent without it

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		fleet:   deps.Fleet,
		mqtt:    deps.MQTT,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to MQTT fleet
// topics for real-time WebSocket broadcast, and launches the HTTP listener
// in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	if err := s.subscribeFleetEvents(); err != nil {
		s.logger.Warn("failed to subscribe to fleet events for WebSocket", "error", err)
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
			s.logger.Info("API server starting", "address", s.server.Addr)
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

// HealthCheck verifies the API server is running and responsive.
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
