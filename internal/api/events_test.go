package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/engine"
	"github.com/LuckPerms/rest-api/internal/perms"
)

type sseEvent struct {
	name string
	data string
}

// openStream connects to /event/{kind} and returns a reader over its frames.
func openStream(t *testing.T, ts *httptest.Server, kind string) (*http.Response, *bufio.Reader) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + "/event/" + kind)
	if err != nil {
		t.Fatalf("GET /event/%s error = %v", kind, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close() //nolint:errcheck // Test cleanup
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	return resp, bufio.NewReader(resp.Body)
}

// nextEvent reads one frame, skipping heartbeats unless wantPing is set.
func nextEvent(t *testing.T, r *bufio.Reader, wantPing bool) sseEvent {
	t.Helper()
	for {
		var ev sseEvent
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("reading stream: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			if line == "" {
				break
			}
			if v, ok := strings.CutPrefix(line, "event: "); ok {
				ev.name = v
			}
			if v, ok := strings.CutPrefix(line, "data: "); ok {
				ev.data = v
			}
		}
		if ev.name != pingEvent || wantPing {
			return ev
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEventStream(t *testing.T) {
	obs := newCountingObserver()
	srv, eng := testServer(t, func(d *Deps) { d.Observer = obs })
	srv.events.interval = 20 * time.Millisecond
	bus := eng.Events().(*engine.Bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.events.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	pre, preFrames := openStream(t, ts, "pre-sync")
	post, postFrames := openStream(t, ts, "post-sync")
	defer post.Body.Close() //nolint:errcheck // Test cleanup

	if n := srv.events.ClientCount(); n != 2 {
		t.Fatalf("ClientCount() = %d, want 2", n)
	}
	if n := bus.Subscribers(perms.EventPreSync); n != 1 {
		t.Fatalf("pre-sync subscribers = %d, want 1", n)
	}

	t.Run("delivers to the matching kind only", func(t *testing.T) {
		eng.Events().Publish(perms.PreSync{})

		ev := nextEvent(t, preFrames, false)
		if ev.name != "pre-sync" || ev.data != "{}" {
			t.Errorf("event = %+v, want pre-sync {}", ev)
		}
		if n := obs.deliveredTo("pre-sync"); n != 1 {
			t.Errorf("pre-sync deliveries = %d, want 1", n)
		}
		if n := obs.deliveredTo("post-sync"); n != 0 {
			t.Errorf("post-sync deliveries = %d, want 0", n)
		}
	})

	t.Run("heartbeat", func(t *testing.T) {
		ev := nextEvent(t, postFrames, true)
		if ev.name != pingEvent || ev.data == "" {
			t.Errorf("event = %+v, want a ping", ev)
		}
	})

	t.Run("last stream drops the subscription", func(t *testing.T) {
		pre.Body.Close() //nolint:errcheck // Test cleanup
		waitFor(t, "pre-sync stream to close", func() bool { return srv.events.ClientCount() == 1 })
		if n := bus.Subscribers(perms.EventPreSync); n != 0 {
			t.Errorf("pre-sync subscribers = %d, want 0", n)
		}
		if n := bus.Subscribers(perms.EventPostSync); n != 1 {
			t.Errorf("post-sync subscribers = %d, want 1", n)
		}
	})
}

func TestEventStream_LogBroadcast(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, frames := openStream(t, ts, "log-broadcast")
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	source := uuid.New()
	body := `{"source": {"uniqueId": "` + source.String() + `", "name": "console"}, "target": {"name": "vip", "type": "group"}, "description": "created"}`
	expectStatus(t, do(t, srv, http.MethodPost, "/action", body), http.StatusAccepted)

	ev := nextEvent(t, frames, false)
	if ev.name != "log-broadcast" {
		t.Fatalf("event = %q, want log-broadcast", ev.name)
	}
	var got struct {
		Entry struct {
			Description string `json:"description"`
		} `json:"entry"`
		Origin string `json:"origin"`
	}
	if err := json.Unmarshal([]byte(ev.data), &got); err != nil {
		t.Fatalf("data %q: %v", ev.data, err)
	}
	if got.Entry.Description != "created" || got.Origin == "" {
		t.Errorf("payload = %+v", got)
	}
}

func TestEventStream_Refused(t *testing.T) {
	srv, _ := testServer(t)

	t.Run("unknown kind", func(t *testing.T) {
		expectStatus(t, do(t, srv, http.MethodGet, "/event/nope", ""), http.StatusNotFound)
	})

	t.Run("after close", func(t *testing.T) {
		srv.events.Close()
		expectStatus(t, do(t, srv, http.MethodGet, "/event/pre-sync", ""), http.StatusServiceUnavailable)
	})
}
