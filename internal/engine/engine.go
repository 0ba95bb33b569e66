package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
)

// Logger defines the logging interface used by the engine.
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

// DefaultMaxConcurrent bounds storage operations running at once.
const DefaultMaxConcurrent = 16

// Options configure an Engine.
type Options struct {
	Logger Logger
	// MaxConcurrent bounds concurrently running storage operations.
	MaxConcurrent int64
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine is the SQLite-backed reference implementation of perms.Engine.
//
// Loaded users, groups and tracks live in an in-memory registry; storage
// calls run on their own goroutines and complete an async.Future.
type Engine struct {
	repo   Repository
	logger Logger
	now    func() time.Time

	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	users  map[string]*perms.User
	groups map[string]*perms.Group
	tracks map[string]*perms.Track

	// saveLocks serialises saves per holder so stored rows match one snapshot.
	saveLocks sync.Map

	bus       *Bus
	calc      *calculator
	messaging perms.MessagingService

	userManager  *userManager
	groupManager *groupManager
	trackManager *trackManager
	actionLog    *actionLog
}

var _ perms.Engine = (*Engine)(nil)

// New creates an engine over repo. Call Start before serving requests.
func New(repo Repository, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		repo:   repo,
		logger: opts.Logger,
		now:    opts.Now,
		sem:    semaphore.NewWeighted(opts.MaxConcurrent),
		ctx:    ctx,
		cancel: cancel,
		users:  make(map[string]*perms.User),
		groups: make(map[string]*perms.Group),
		tracks: make(map[string]*perms.Track),
		bus:    NewBus(opts.Logger),
	}
	e.calc = &calculator{engine: e}
	e.userManager = &userManager{e: e}
	e.groupManager = &groupManager{e: e}
	e.trackManager = &trackManager{e: e}
	e.actionLog = &actionLog{e: e}
	return e
}

// Start ensures the default group exists and loads every group and track.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.repo.CreateGroup(ctx, perms.DefaultGroup); err != nil {
		return fmt.Errorf("engine: creating default group: %w", err)
	}
	if _, err := e.groupManager.LoadAllGroups().Await(ctx); err != nil {
		return fmt.Errorf("engine: loading groups: %w", err)
	}
	if _, err := e.trackManager.LoadAllTracks().Await(ctx); err != nil {
		return fmt.Errorf("engine: loading tracks: %w", err)
	}
	e.logger.Info("permission engine started",
		"groups", len(e.groupManager.LoadedGroups()),
		"tracks", len(e.trackManager.LoadedTracks()),
	)
	return nil
}

// Close stops accepting storage work and waits for running operations.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// SetMessaging attaches the service used to notify other instances.
func (e *Engine) SetMessaging(m perms.MessagingService) {
	e.mu.Lock()
	e.messaging = m
	e.mu.Unlock()
}

func (e *Engine) Users() perms.UserManager     { return e.userManager }
func (e *Engine) Groups() perms.GroupManager   { return e.groupManager }
func (e *Engine) Tracks() perms.TrackManager   { return e.trackManager }
func (e *Engine) Actions() perms.ActionLogger  { return e.actionLog }
func (e *Engine) Events() perms.EventBus       { return e.bus }
func (e *Engine) Calculator() perms.Calculator { return e.calc }

// Messaging returns nil when no messaging service is attached.
func (e *Engine) Messaging() perms.MessagingService {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.messaging
}

// run executes fn on its own goroutine once a storage slot is free.
func run[T any](e *Engine, op string, fn func(ctx context.Context) (T, error)) *async.Future[T] {
	e.wg.Add(1)
	return async.Go(func() (T, error) {
		defer e.wg.Done()
		var zero T
		if err := e.sem.Acquire(e.ctx, 1); err != nil {
			return zero, fmt.Errorf("engine: %s: %w", op, err)
		}
		defer e.sem.Release(1)

		v, err := fn(e.ctx)
		if err != nil {
			e.logger.Debug("storage operation failed", "op", op, "error", err)
			return zero, fmt.Errorf("engine: %s: %w", op, err)
		}
		return v, nil
	})
}

// saveLock returns the mutex serialising saves of one holder.
func (e *Engine) saveLock(key string) *sync.Mutex {
	m, _ := e.saveLocks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// liveNodes drops expired nodes from a holder before it is saved.
func (e *Engine) liveNodes(m *perms.NodeMap) []perms.Node {
	now := e.now()
	m.RemoveIf(func(n perms.Node) bool { return n.HasExpired(now) })
	return m.Nodes()
}
