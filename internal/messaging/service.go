package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// Logger defines the logging interface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer is notified of message traffic. Implemented by the metrics package.
type Observer interface {
	MessageSent(transport, msgType string)
	MessageReceived(transport, msgType string)
}

type noopObserver struct{}

func (noopObserver) MessageSent(string, string)     {}
func (noopObserver) MessageReceived(string, string) {}

// Syncer applies sync requests from peers. Satisfied by *engine.Engine.
type Syncer interface {
	NetworkSync(ctx context.Context, user *uuid.UUID) error
}

// Timing defaults.
const (
	DefaultPublishTimeout = 10 * time.Second
	DefaultSyncTimeout    = time.Minute

	// seenTTL bounds how long a received message id is remembered.
	seenTTL = 5 * time.Minute
)

// Options configure a Service.
type Options struct {
	Logger   Logger
	Observer Observer
	// Registry encodes action log entries.
	Registry       *wire.Registry
	PublishTimeout time.Duration
	SyncTimeout    time.Duration
	Now            func() time.Time
}

// Service is the perms.MessagingService backed by a Transport.
//
// Outbound it publishes update, user update and custom messages, and
// rebroadcasts every locally submitted action. Inbound it runs network syncs
// and republishes log and custom messages as events. Messages carrying this
// instance's origin id, and ids already seen, are ignored.
type Service struct {
	transport Transport
	syncer    Syncer
	events    perms.EventBus
	registry  *wire.Registry
	logger    Logger
	observer  Observer
	origin    uuid.UUID
	now       func() time.Time

	publishTimeout time.Duration
	syncTimeout    time.Duration

	seenMu sync.Mutex
	seen   map[uuid.UUID]time.Time

	logSub   perms.Subscription
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

var _ perms.MessagingService = (*Service)(nil)

// New creates a service. Call Start to begin receiving.
func New(t Transport, syncer Syncer, events perms.EventBus, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.SyncTimeout <= 0 {
		opts.SyncTimeout = DefaultSyncTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		transport:      t,
		syncer:         syncer,
		events:         events,
		registry:       opts.Registry,
		logger:         opts.Logger,
		observer:       opts.Observer,
		origin:         uuid.New(),
		now:            opts.Now,
		publishTimeout: opts.PublishTimeout,
		syncTimeout:    opts.SyncTimeout,
		seen:           make(map[uuid.UUID]time.Time),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Origin returns the id stamped on every message this instance sends.
func (s *Service) Origin() uuid.UUID {
	return s.origin
}

// Transport returns the transport name.
func (s *Service) Transport() string {
	return s.transport.Name()
}

// Start subscribes to the transport and to local log broadcasts.
func (s *Service) Start() error {
	if err := s.transport.Subscribe(s.handle); err != nil {
		return fmt.Errorf("messaging: subscribe on %s: %w", s.transport.Name(), err)
	}
	s.logSub = s.events.Subscribe(perms.EventLogBroadcast, s.onLogBroadcast)
	s.logger.Info("messaging service started", "transport", s.transport.Name(), "origin", s.origin)
	return nil
}

// Stop unsubscribes, closes the transport and waits for in-flight syncs.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		if s.logSub != nil {
			s.logSub.Close()
		}
		if err := s.transport.Close(); err != nil {
			s.logger.Warn("closing messaging transport", "transport", s.transport.Name(), "error", err)
		}
		s.cancel()
		s.wg.Wait()
		s.logger.Info("messaging service stopped", "transport", s.transport.Name())
	})
}

// HealthCheck reports the transport's health.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.transport.HealthCheck(ctx)
}

// PushUpdate asks every peer to run a full sync.
func (s *Service) PushUpdate() *async.Future[struct{}] {
	return s.send(envelope{Type: TypeUpdate})
}

// PushUserUpdate asks every peer to reload u.
func (s *Service) PushUserUpdate(u *perms.User) *async.Future[struct{}] {
	id := u.UniqueID()
	return s.send(envelope{Type: TypeUserUpdate, UserUniqueID: &id})
}

// SendCustomMessage publishes payload on channelID.
func (s *Service) SendCustomMessage(channelID, payload string) *async.Future[struct{}] {
	return s.send(envelope{Type: TypeCustom, ChannelID: channelID, Payload: &payload})
}

func (s *Service) send(env envelope) *async.Future[struct{}] {
	env.ID = uuid.New()
	env.Origin = s.origin
	return async.Go(func() (struct{}, error) {
		data, err := json.Marshal(env)
		if err != nil {
			return struct{}{}, fmt.Errorf("messaging: encode %s: %w", env.Type, err)
		}
		ctx, cancel := context.WithTimeout(s.ctx, s.publishTimeout)
		defer cancel()
		if err := s.transport.Publish(ctx, data); err != nil {
			return struct{}{}, fmt.Errorf("messaging: publish %s: %w", env.Type, err)
		}
		s.observer.MessageSent(s.transport.Name(), string(env.Type))
		s.logger.Debug("message sent", "transport", s.transport.Name(), "type", env.Type, "id", env.ID)
		return struct{}{}, nil
	})
}

// onLogBroadcast forwards locally submitted actions to peers. Bus handlers
// must not block, so the publish runs on its own goroutine.
func (s *Service) onLogBroadcast(e perms.Event) {
	lb, ok := e.(perms.LogBroadcast)
	if !ok || lb.Origin != perms.LogLocal || s.registry == nil {
		return
	}
	action, err := s.registry.Marshal(lb.Entry)
	if err != nil {
		s.logger.Error("encoding action for broadcast", "error", err)
		return
	}
	f := s.send(envelope{Type: TypeLog, Action: action})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := f.Await(s.ctx); err != nil {
			s.logger.Warn("broadcasting action failed", "error", err)
		}
	}()
}

// handle processes one inbound payload.
func (s *Service) handle(data []byte) error {
	env, err := decodeEnvelope(data)
	if err != nil {
		return err
	}
	if s.ctx.Err() != nil || env.Origin == s.origin || !s.markSeen(env.ID) {
		return nil
	}
	s.observer.MessageReceived(s.transport.Name(), string(env.Type))
	s.logger.Debug("message received", "transport", s.transport.Name(), "type", env.Type, "id", env.ID, "origin", env.Origin)

	switch env.Type {
	case TypeUpdate:
		s.sync(nil)
	case TypeUserUpdate:
		s.sync(env.UserUniqueID)
	case TypeLog:
		action, err := wire.DecodeAction(env.Action, s.now())
		if err != nil {
			return fmt.Errorf("messaging: log message %s: %w", env.ID, err)
		}
		s.events.Publish(perms.LogBroadcast{Entry: action, Origin: perms.LogRemote})
	case TypeCustom:
		s.events.Publish(perms.CustomMessageReceive{ChannelID: env.ChannelID, Payload: *env.Payload})
	}
	return nil
}

// sync runs a network sync off the transport's delivery goroutine.
func (s *Service) sync(user *uuid.UUID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.syncTimeout)
		defer cancel()
		// NetworkSync logs its own failures.
		_ = s.syncer.NetworkSync(ctx, user)
	}()
}

// markSeen records id and reports whether it was new.
func (s *Service) markSeen(id uuid.UUID) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()

	now := s.now()
	for k, at := range s.seen {
		if now.Sub(at) > seenTTL {
			delete(s.seen, k)
		}
	}
	if _, dup := s.seen[id]; dup {
		return false
	}
	s.seen[id] = now
	return true
}
