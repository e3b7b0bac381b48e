package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/open-automation/relay-core/internal/account"
	"github.com/open-automation/relay-core/internal/automation"
	"github.com/open-automation/relay-core/internal/device"
	"github.com/open-automation/relay-core/internal/infrastructure/config"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *slog.Logger
	Registry    *device.Registry
	Accounts    *account.Manager
	Automations *automation.Manager

	// ExternalHub, when set, is used instead of a server-owned hub. The
	// automation manager needs the hub as its notification sink before
	// the server can be constructed, so main creates it first.
	ExternalHub *Hub

	Version string
}

// Server is the HTTP and WebSocket front of the relay core. It exposes
// the account session endpoints, the device registry and the automation
// manager, and pushes updates to connected clients through the hub.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *slog.Logger
	registry    *device.Registry
	accounts    *account.Manager
	automations *automation.Manager
	version     string

	server  *http.Server
	hub     *Hub
	tickets *ticketStore
	cancel  context.CancelFunc
}

// New creates an API server. The server is not listening until Start is
// called, but its Hub is ready immediately so other components can be
// wired to it as a notification sink.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("api: logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("api: device registry is required")
	}
	if deps.Accounts == nil {
		return nil, fmt.Errorf("api: account manager is required")
	}
	if deps.Automations == nil {
		return nil, fmt.Errorf("api: automation manager is required")
	}

	hub := deps.ExternalHub
	if hub == nil {
		hub = NewHub(deps.WS, deps.Logger)
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger,
		registry:    deps.Registry,
		accounts:    deps.Accounts,
		automations: deps.Automations,
		version:     deps.Version,
		hub:         hub,
		tickets:     newTicketStore(),
	}, nil
}

// Hub returns the WebSocket hub. It satisfies automation.Notifier and is
// the sink for device update broadcasts.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start launches the WebSocket hub, the ticket janitor and the HTTP
// listener. Stop with Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("api server listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the listener and disconnects all
// WebSocket clients.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("api server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}
