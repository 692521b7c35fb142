package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-heatpump/internal/bridges/heatpump"
	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/entity"
	"github.com/nerrad567/gray-logic-heatpump/internal/history"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-heatpump/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-heatpump/internal/integration"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Entry is the configured heat pump. It is satisfied by *integration.Entry.
type Entry interface {
	Entities() []*entity.Adapter
	Entity(id string) (*entity.Adapter, error)
	OnEntityUpdate(fn func(*entity.Adapter)) func()
	DeviceInfo() entity.DeviceInfo
	Coordinator() *coordinator.Coordinator
}

// HistoryReader reads recorded register samples.
type HistoryReader interface {
	History(ctx context.Context, q history.Query) ([]history.Sample, error)
}

// CommandStore records and lists entity commands. It is satisfied by
// *history.CommandLog.
type CommandStore interface {
	Log(ctx context.Context, rec *history.CommandRecord) error
	List(ctx context.Context, f history.CommandFilter) ([]history.CommandRecord, error)
}

// ConnectionChecker reports broker connectivity.
type ConnectionChecker interface {
	IsConnected() bool
}

// BridgeMetricsProvider exposes MQTT bridge counters.
type BridgeMetricsProvider interface {
	GetMetrics() heatpump.BridgeMetrics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger
	Entry  Entry

	// Optional collaborators. Endpoints that need a missing one answer 503.
	DB       *database.DB
	History  HistoryReader
	Commands CommandStore
	MQTT     ConnectionChecker
	Bridge   BridgeMetricsProvider

	// Prometheus is served at MetricsPath when both are set.
	Prometheus  http.Handler
	MetricsPath string

	// Dialer opens devices for setup validation. Nil uses integration.DialDevice.
	Dialer integration.Dialer

	Version string
}

// Server is the HTTP API server for the heat pump bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	entry       Entry
	db          *database.DB
	history     HistoryReader
	commands    CommandStore
	mqtt        ConnectionChecker
	bridge      BridgeMetricsProvider
	prometheus  http.Handler
	metricsPath string
	dialer      integration.Dialer
	version     string
	startTime   time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc // cancels background goroutines on Close()

	removers  []func()
	available bool
	availMu   sync.Mutex
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, entry)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Entry == nil {
		return nil, fmt.Errorf("heat pump entry is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		entry:       deps.Entry,
		db:          deps.DB,
		history:     deps.History,
		commands:    deps.Commands,
		mqtt:        deps.MQTT,
		bridge:      deps.Bridge,
		prometheus:  deps.Prometheus,
		metricsPath: deps.MetricsPath,
		dialer:      deps.Dialer,
		version:     deps.Version,
		startTime:   time.Now(),
		hub:         NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, hooks entity and availability updates for
// broadcast, and launches the HTTP listener in a background goroutine.
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	s.watchUpdates()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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

// watchUpdates relays entity state and device availability to WebSocket
// clients.
func (s *Server) watchUpdates() {
	s.availMu.Lock()
	s.available = s.entry.Coordinator().LastUpdateSuccess()
	s.availMu.Unlock()

	s.removers = append(s.removers,
		s.entry.OnEntityUpdate(func(a *entity.Adapter) {
			if s.hub.ClientCount() == 0 {
				return
			}
			s.hub.Broadcast(EventEntityStateChanged, a.State())
		}),
		s.entry.Coordinator().AddListener(s.broadcastAvailability),
	)
}

func (s *Server) broadcastAvailability() {
	coord := s.entry.Coordinator()
	available := coord.LastUpdateSuccess()

	s.availMu.Lock()
	changed := available != s.available
	s.available = available
	s.availMu.Unlock()

	if !changed {
		return
	}
	payload := map[string]any{"available": available}
	if err := coord.LastError(); err != nil {
		payload["error"] = err.Error()
	}
	s.hub.Broadcast(EventAvailability, payload)
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

	for _, remove := range s.removers {
		remove()
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
