package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/LuckPerms/rest-api/internal/infrastructure/logging"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// Event stream constants.
const (
	// eventSendBufferSize is the per-client outbound frame buffer size.
	eventSendBufferSize = 256

	// pingEvent names the heartbeat frames.
	pingEvent = "ping"
)

// EventHub fans engine events out to server-sent event streams.
//
// Each stream follows one event kind. The hub holds one bus subscription per
// kind with at least one open stream, and drops it when the last stream of
// that kind closes.
type EventHub struct {
	bus      perms.EventBus
	registry *wire.Registry
	logger   *logging.Logger
	observer Observer
	recorder Recorder
	interval time.Duration

	mu      sync.RWMutex
	clients map[perms.EventKind]map[*eventClient]struct{}
	subs    map[perms.EventKind]perms.Subscription
	closed  bool

	heartbeat atomic.Uint64
}

// eventClient is one open stream. send is never closed; done closes when the
// hub shuts down.
type eventClient struct {
	kind perms.EventKind
	send chan []byte
	done chan struct{}
}

// NewEventHub creates a hub over bus. Pings go out every interval.
func NewEventHub(bus perms.EventBus, registry *wire.Registry, logger *logging.Logger, observer Observer, recorder Recorder, interval time.Duration) *EventHub {
	return &EventHub{
		bus:      bus,
		registry: registry,
		logger:   logger,
		observer: observer,
		recorder: recorder,
		interval: interval,
		clients:  make(map[perms.EventKind]map[*eventClient]struct{}),
		subs:     make(map[perms.EventKind]perms.Subscription),
	}
}

// Run sends heartbeats until ctx is cancelled, then closes every stream.
func (h *EventHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-ticker.C:
			h.ping()
		}
	}
}

// Close ends every stream and drops the bus subscriptions. Streams opened
// afterwards are refused.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true

	for kind, sub := range h.subs {
		sub.Close()
		delete(h.subs, kind)
	}
	for kind, set := range h.clients {
		for c := range set {
			close(c.done)
		}
		delete(h.clients, kind)
	}
}

// ClientCount returns the number of open streams.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

func (h *EventHub) register(kind perms.EventKind) (*eventClient, bool) {
	c := &eventClient{
		kind: kind,
		send: make(chan []byte, eventSendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, false
	}
	set, ok := h.clients[kind]
	if !ok {
		set = make(map[*eventClient]struct{})
		h.clients[kind] = set
		h.subs[kind] = h.bus.Subscribe(kind, h.broadcast)
	}
	set[c] = struct{}{}
	h.mu.Unlock()

	h.observer.ClientConnected(string(kind))
	h.logger.Debug("event stream opened", "kind", kind, "clients", h.ClientCount())
	return c, true
}

func (h *EventHub) unregister(c *eventClient) {
	h.mu.Lock()
	set := h.clients[c.kind]
	_, existed := set[c]
	delete(set, c)
	if existed && len(set) == 0 {
		if sub, ok := h.subs[c.kind]; ok {
			sub.Close()
			delete(h.subs, c.kind)
		}
		delete(h.clients, c.kind)
	}
	h.mu.Unlock()

	h.observer.ClientDisconnected(string(c.kind))
	h.logger.Debug("event stream closed", "kind", c.kind, "clients", h.ClientCount())
}

// snapshot copies the streams of kind, or of every kind when kind is "".
func (h *EventHub) snapshot(kind perms.EventKind) []*eventClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*eventClient
	for k, set := range h.clients {
		if kind != "" && k != kind {
			continue
		}
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}

// broadcast is the bus handler. It must not block, so a stream whose buffer
// is full misses the event.
func (h *EventHub) broadcast(e perms.Event) {
	data, err := h.registry.Marshal(e)
	if err != nil {
		h.logger.Error("failed to encode event", "kind", e.Kind(), "error", err)
		return
	}
	frame := sseFrame(string(e.Kind()), data)

	delivered := 0
	for _, c := range h.snapshot(e.Kind()) {
		if trySend(c, frame) {
			delivered++
			h.observer.EventDelivered(string(e.Kind()))
		} else {
			h.logger.Warn("event stream buffer full, dropping event", "kind", e.Kind())
		}
	}
	h.recorder.WriteEvent(string(e.Kind()), delivered)
}

func (h *EventHub) ping() {
	id := h.heartbeat.Add(1)
	frame := sseFrame(pingEvent, []byte(strconv.FormatUint(id, 10)))
	for _, c := range h.snapshot("") {
		trySend(c, frame)
	}
}

func trySend(c *eventClient, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func sseFrame(event string, data []byte) []byte {
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event, data)
}

// ServeHTTP streams events of the {kind} path segment until the client
// disconnects or the hub closes.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	kind, err := perms.ParseEventKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeText(w, http.StatusNotFound, "Unknown event kind")
		return
	}

	c, ok := h.register(kind)
	if !ok {
		writeText(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	defer h.unregister(c)

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	//nolint:errcheck // Not every writer supports deadlines
	rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("event stream not supported by response writer", "error", err)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.done:
			return
		case frame := <-c.send:
			if _, err := w.Write(frame); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
