package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/cache"
	"github.com/LuckPerms/rest-api/internal/infrastructure/config"
	"github.com/LuckPerms/rest-api/internal/infrastructure/logging"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Observer receives request and stream telemetry. *metrics.Metrics implements it.
type Observer interface {
	ObserveRequest(method, route string, status int, d time.Duration)
	IncrementAuthRejections()
	IncrementRequestTimeouts()
	ClientConnected(kind string)
	ClientDisconnected(kind string)
	EventDelivered(kind string)
}

type noopObserver struct{}

func (noopObserver) ObserveRequest(string, string, int, time.Duration) {}
func (noopObserver) IncrementAuthRejections()                          {}
func (noopObserver) IncrementRequestTimeouts()                         {}
func (noopObserver) ClientConnected(string)                            {}
func (noopObserver) ClientDisconnected(string)                         {}
func (noopObserver) EventDelivered(string)                             {}

// Recorder is an optional time-series sink. *influxdb.Client implements it.
type Recorder interface {
	WriteRequest(method, route string, status int, d time.Duration)
	WriteEvent(kind string, clients int)
}

type noopRecorder struct{}

func (noopRecorder) WriteRequest(string, string, int, time.Duration) {}
func (noopRecorder) WriteEvent(string, int)                          {}

// HealthChecker is a dependency reported by GET /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   *config.Config
	Logger   *logging.Logger
	Engine   perms.Engine
	Cache    *cache.Cache
	Registry *wire.Registry

	// Observer and Recorder are optional telemetry sinks.
	Observer Observer
	Recorder Recorder
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// HealthChecks are reported by name in GET /health.
	HealthChecks map[string]HealthChecker
}

// responseTypes lists every value a handler or the event stream encodes.
var responseTypes = []reflect.Type{
	reflect.TypeFor[*perms.User](),
	reflect.TypeFor[*perms.Group](),
	reflect.TypeFor[*perms.Track](),
	reflect.TypeFor[[]perms.Node](),
	reflect.TypeFor[perms.MetaData](),
	reflect.TypeFor[perms.PermissionCheck](),
	reflect.TypeFor[perms.PromotionResult](),
	reflect.TypeFor[perms.DemotionResult](),
	reflect.TypeFor[perms.ActionPage](),
	reflect.TypeFor[[]uuid.UUID](),
	reflect.TypeFor[[]string](),
	reflect.TypeFor[[]wire.UserSearchResult](),
	reflect.TypeFor[[]wire.GroupSearchResult](),
	reflect.TypeFor[wire.Lookup](),
	reflect.TypeFor[wire.Health](),
	reflect.TypeFor[perms.PreSync](),
	reflect.TypeFor[perms.PostSync](),
	reflect.TypeFor[perms.PreNetworkSync](),
	reflect.TypeFor[perms.PostNetworkSync](),
	reflect.TypeFor[perms.LogBroadcast](),
	reflect.TypeFor[perms.CustomMessageReceive](),
}

// Server is the HTTP gateway in front of the permission engine.
//
// It manages the HTTP listener, routes, middleware and the event hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg            *config.Config
	logger         *logging.Logger
	engine         perms.Engine
	cache          *cache.Cache
	registry       *wire.Registry
	observer       Observer
	recorder       Recorder
	metricsHandler http.Handler
	healthChecks   map[string]HealthChecker
	awaitTimeout   time.Duration
	now            func() time.Time

	users  *userHandler
	groups *groupHandler
	tracks *trackHandler
	events *EventHub

	router http.Handler
	server *http.Server
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing or the registry lacks an encoder
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("wire registry is required")
	}
	if err := deps.Registry.Verify(responseTypes...); err != nil {
		return nil, err
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(deps.Engine, cache.Config{
			Users:  deps.Config.Cache.Users,
			Groups: deps.Config.Cache.Groups,
			Tracks: deps.Config.Cache.Tracks,
		}, nil)
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}

	s := &Server{
		cfg:            deps.Config,
		logger:         deps.Logger,
		engine:         deps.Engine,
		cache:          deps.Cache,
		registry:       deps.Registry,
		observer:       deps.Observer,
		recorder:       deps.Recorder,
		metricsHandler: deps.MetricsHandler,
		healthChecks:   deps.HealthChecks,
		awaitTimeout:   deps.Config.AwaitTimeout(),
		now:            time.Now,
	}
	s.users = &userHandler{s: s}
	s.users.nodeOps = nodeOps[*perms.User]{read: s.users.cached, write: s.users.fresh, save: s.users.persist, calc: s.engine.Calculator}
	s.groups = &groupHandler{s: s}
	s.groups.nodeOps = nodeOps[*perms.Group]{read: s.groups.cached, write: s.groups.fresh, save: s.groups.persist, calc: s.engine.Calculator}
	s.tracks = &trackHandler{s: s, nodeless: nodeless{kind: "Track"}}
	s.events = NewEventHub(s.engine.Events(), s.registry, s.logger.Component("events"), s.observer, s.recorder, deps.Config.HeartbeatInterval())
	s.router = s.buildRouter()

	for _, w := range deps.Config.Warnings() {
		s.logger.Warn(w)
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Events returns the event hub.
func (s *Server) Events() *EventHub {
	return s.events
}

// Start begins listening for HTTP connections.
//
// It starts the event hub and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.events.Run(srvCtx)

	s.server = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "auth", s.cfg.Auth.Enabled)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// Event streams are closed first so Shutdown does not wait on them, then
// in-flight requests get up to 10 seconds to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	s.events.Close()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// pushUpdate asks other instances to resync. Failures are logged; the
// request that caused the change has already succeeded.
func (s *Server) pushUpdate() {
	if m := s.engine.Messaging(); m != nil {
		s.logFailure("push update", m.PushUpdate())
	}
}

func (s *Server) pushUserUpdate(u *perms.User) {
	if m := s.engine.Messaging(); m != nil {
		s.logFailure("push user update", m.PushUserUpdate(u))
	}
}

func (s *Server) logFailure(op string, f *async.Future[struct{}]) {
	go func() {
		if _, err := f.Result(); err != nil {
			s.logger.Warn("messaging failed", "operation", op, "error", err)
		}
	}()
}
