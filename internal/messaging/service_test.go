package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/engine"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// fakeTransport records published payloads and exposes the subscribed handler.
type fakeTransport struct {
	mu         sync.Mutex
	published  [][]byte
	handler    func([]byte) error
	publishErr error
	closed     bool
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Publish(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeTransport) Subscribe(handler func([]byte) error) error {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) HealthCheck(context.Context) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) deliver(t *testing.T, env envelope) error {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	return h(data)
}

func (f *fakeTransport) sent(t *testing.T) []envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]envelope, 0, len(f.published))
	for _, p := range f.published {
		var env envelope
		if err := json.Unmarshal(p, &env); err != nil {
			t.Fatalf("published invalid JSON: %v", err)
		}
		out = append(out, env)
	}
	return out
}

// fakeSyncer reports every NetworkSync call on a channel.
type fakeSyncer struct {
	calls chan *uuid.UUID
}

func (f *fakeSyncer) NetworkSync(_ context.Context, user *uuid.UUID) error {
	f.calls <- user
	return nil
}

type countingObserver struct {
	mu       sync.Mutex
	sent     map[string]int
	received map[string]int
}

func (o *countingObserver) MessageSent(_, t string) {
	o.mu.Lock()
	o.sent[t]++
	o.mu.Unlock()
}

func (o *countingObserver) MessageReceived(_, t string) {
	o.mu.Lock()
	o.received[t]++
	o.mu.Unlock()
}

type fixture struct {
	svc       *Service
	transport *fakeTransport
	syncer    *fakeSyncer
	bus       *engine.Bus
	observer  *countingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		transport: &fakeTransport{},
		syncer:    &fakeSyncer{calls: make(chan *uuid.UUID, 8)},
		bus:       engine.NewBus(nil),
		observer:  &countingObserver{sent: map[string]int{}, received: map[string]int{}},
	}
	f.svc = New(f.transport, f.syncer, f.bus, Options{
		Observer: f.observer,
		Registry: wire.NewDefaultRegistry(nil),
	})
	if err := f.svc.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(f.svc.Stop)
	return f
}

func await(t *testing.T, fut interface {
	Await(context.Context) (struct{}, error)
}) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := fut.Await(ctx)
	return err
}

func (f *fixture) expectSync(t *testing.T) *uuid.UUID {
	t.Helper()
	select {
	case user := <-f.syncer.calls:
		return user
	case <-time.After(5 * time.Second):
		t.Fatal("NetworkSync not called")
		return nil
	}
}

func (f *fixture) expectNoSync(t *testing.T) {
	t.Helper()
	select {
	case user := <-f.syncer.calls:
		t.Fatalf("unexpected NetworkSync(%v)", user)
	case <-time.After(50 * time.Millisecond):
	}
}

func peer(typ MessageType) envelope {
	return envelope{ID: uuid.New(), Origin: uuid.New(), Type: typ}
}

func TestPushUpdate(t *testing.T) {
	f := newFixture(t)

	if err := await(t, f.svc.PushUpdate()); err != nil {
		t.Fatalf("PushUpdate() error = %v", err)
	}
	sent := f.transport.sent(t)
	if len(sent) != 1 || sent[0].Type != TypeUpdate || sent[0].Origin != f.svc.Origin() || sent[0].ID == uuid.Nil {
		t.Fatalf("sent = %+v", sent)
	}
	if f.observer.sent[string(TypeUpdate)] != 1 {
		t.Errorf("observer sent = %v", f.observer.sent)
	}
}

func TestPushUserUpdate(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()

	if err := await(t, f.svc.PushUserUpdate(perms.NewUser(id, "Steve"))); err != nil {
		t.Fatalf("PushUserUpdate() error = %v", err)
	}
	sent := f.transport.sent(t)
	if len(sent) != 1 || sent[0].Type != TypeUserUpdate || sent[0].UserUniqueID == nil || *sent[0].UserUniqueID != id {
		t.Fatalf("sent = %+v", sent)
	}
}

func TestPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.transport.publishErr = errors.New("broker down")

	if err := await(t, f.svc.SendCustomMessage("shop", "x")); err == nil {
		t.Error("SendCustomMessage() succeeded with a failing transport")
	}
}

func TestOwnMessagesIgnored(t *testing.T) {
	f := newFixture(t)

	if err := f.transport.deliver(t, envelope{ID: uuid.New(), Origin: f.svc.Origin(), Type: TypeUpdate}); err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	f.expectNoSync(t)
}

func TestPeerUpdateTriggersSync(t *testing.T) {
	f := newFixture(t)

	if err := f.transport.deliver(t, peer(TypeUpdate)); err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if user := f.expectSync(t); user != nil {
		t.Errorf("NetworkSync(%v), want full sync", user)
	}

	id := uuid.New()
	msg := peer(TypeUserUpdate)
	msg.UserUniqueID = &id
	if err := f.transport.deliver(t, msg); err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if user := f.expectSync(t); user == nil || *user != id {
		t.Errorf("NetworkSync(%v), want %s", user, id)
	}
}

func TestDuplicateMessageHandledOnce(t *testing.T) {
	f := newFixture(t)
	msg := peer(TypeUpdate)

	for range 2 {
		if err := f.transport.deliver(t, msg); err != nil {
			t.Fatalf("handle() error = %v", err)
		}
	}
	f.expectSync(t)
	f.expectNoSync(t)
}

func TestCustomMessageReceived(t *testing.T) {
	f := newFixture(t)
	got := make(chan perms.CustomMessageReceive, 1)
	f.bus.Subscribe(perms.EventCustomMessageReceive, func(e perms.Event) {
		got <- e.(perms.CustomMessageReceive)
	})

	msg := peer(TypeCustom)
	msg.ChannelID = "shop"
	payload := `{"item":"sword"}`
	msg.Payload = &payload
	if err := f.transport.deliver(t, msg); err != nil {
		t.Fatalf("handle() error = %v", err)
	}

	select {
	case e := <-got:
		if e.ChannelID != "shop" || e.Payload != payload {
			t.Errorf("event = %+v", e)
		}
	default:
		t.Fatal("no custom-message-receive event")
	}
}

func TestLogBroadcast(t *testing.T) {
	f := newFixture(t)
	action := perms.Action{
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
		Source:      perms.ActionSource{UniqueID: uuid.New(), Name: "console"},
		Target:      perms.ActionTarget{Name: "admin", Type: perms.TargetGroup},
		Description: "permission set a.b true",
	}

	t.Run("local entries are sent", func(t *testing.T) {
		f.bus.Publish(perms.LogBroadcast{Entry: action, Origin: perms.LogLocal})

		deadline := time.Now().Add(5 * time.Second)
		for len(f.transport.sent(t)) == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		sent := f.transport.sent(t)
		if len(sent) != 1 || sent[0].Type != TypeLog {
			t.Fatalf("sent = %+v", sent)
		}
	})

	t.Run("peer entries become remote events", func(t *testing.T) {
		got := make(chan perms.LogBroadcast, 2)
		sub := f.bus.Subscribe(perms.EventLogBroadcast, func(e perms.Event) {
			got <- e.(perms.LogBroadcast)
		})
		defer sub.Close()

		data, err := wire.NewDefaultRegistry(nil).Marshal(action)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		msg := peer(TypeLog)
		msg.Action = data
		if err := f.transport.deliver(t, msg); err != nil {
			t.Fatalf("handle() error = %v", err)
		}

		e := <-got
		if e.Origin != perms.LogRemote || e.Entry.Description != action.Description || !e.Entry.Timestamp.Equal(action.Timestamp) {
			t.Errorf("event = %+v", e)
		}
		// Remote entries are not sent back out.
		time.Sleep(50 * time.Millisecond)
		if n := len(f.transport.sent(t)); n != 1 {
			t.Errorf("published %d messages, want 1", n)
		}
	})
}

func TestInvalidMessages(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	tests := map[string]envelope{
		"missing origin":         {ID: id, Type: TypeUpdate},
		"unknown type":           {ID: id, Origin: id, Type: "reload"},
		"userupdate without id":  {ID: id, Origin: id, Type: TypeUserUpdate},
		"custom without payload": {ID: id, Origin: id, Type: TypeCustom, ChannelID: "c"},
		"log without action":     {ID: id, Origin: id, Type: TypeLog},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			if err := f.transport.deliver(t, env); !errors.Is(err, errInvalidMessage) {
				t.Errorf("handle() error = %v, want errInvalidMessage", err)
			}
		})
	}
	if err := f.svc.handle([]byte("not json")); !errors.Is(err, errInvalidMessage) {
		t.Errorf("handle(garbage) error = %v, want errInvalidMessage", err)
	}
}

func TestStopClosesTransport(t *testing.T) {
	f := newFixture(t)
	f.svc.Stop()

	f.transport.mu.Lock()
	closed := f.transport.closed
	f.transport.mu.Unlock()
	if !closed {
		t.Error("transport not closed")
	}
	if err := f.transport.deliver(t, peer(TypeUpdate)); err != nil {
		t.Fatalf("handle() after Stop error = %v", err)
	}
	f.expectNoSync(t)
}
