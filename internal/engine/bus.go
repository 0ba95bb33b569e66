package engine

import (
	"sync"

	"github.com/LuckPerms/rest-api/internal/perms"
)

// Bus is an in-process perms.EventBus. Handlers run synchronously on the
// publishing goroutine and must not block.
type Bus struct {
	logger Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[perms.EventKind]map[uint64]func(perms.Event)
}

var _ perms.EventBus = (*Bus)(nil)

// NewBus creates an empty bus.
func NewBus(logger Logger) *Bus {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bus{
		logger: logger,
		subs:   make(map[perms.EventKind]map[uint64]func(perms.Event)),
	}
}

type subscription struct {
	bus  *Bus
	kind perms.EventKind
	id   uint64
	once sync.Once
}

func (s *subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.kind], s.id)
		s.bus.mu.Unlock()
	})
}

// Subscribe registers handler for events of kind.
func (b *Bus) Subscribe(kind perms.EventKind, handler func(perms.Event)) perms.Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[uint64]func(perms.Event))
	}
	b.subs[kind][b.nextID] = handler
	return &subscription{bus: b, kind: kind, id: b.nextID}
}

// Publish delivers e to every current subscriber of its kind.
// A panicking handler is logged and does not stop delivery to the others.
func (b *Bus) Publish(e perms.Event) {
	b.mu.RLock()
	handlers := make([]func(perms.Event), 0, len(b.subs[e.Kind()]))
	for _, h := range b.subs[e.Kind()] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

// Subscribers returns how many handlers are registered for kind.
func (b *Bus) Subscribers(kind perms.EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

func (b *Bus) deliver(h func(perms.Event), e perms.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "kind", e.Kind(), "panic", r)
		}
	}()
	h(e)
}
