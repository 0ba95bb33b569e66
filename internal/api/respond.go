package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/LuckPerms/rest-api/internal/async"
)

// reply is what an operation resolves to. A string body is written as plain
// text, nil writes no body, and anything else goes through the wire registry.
type reply struct {
	status int
	body   any
}

func ok(body any) reply      { return reply{status: http.StatusOK, body: body} }
func created(body any) reply { return reply{status: http.StatusCreated, body: body} }
func done() reply            { return reply{status: http.StatusOK, body: "ok"} }
func accepted() reply        { return reply{status: http.StatusAccepted, body: "ok"} }

// operation turns a request into the eventual reply. Parse failures are
// returned as failed futures so every error takes the same path.
type operation func(r *http.Request) *async.Future[reply]

func fail(err error) *async.Future[reply] {
	return async.Failed[reply](err)
}

// handle adapts an operation to net/http. The request goroutine waits on the
// future at most timeouts.await; abandoning it leaves the engine call running.
func (s *Server) handle(op operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.awaitTimeout)
		defer cancel()

		res, err := op(r).Await(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				s.abandon(w, r)
				return
			}
			s.writeError(w, r, err)
			return
		}
		s.writeReply(w, r, res)
	}
}

// abandon answers a request whose await ended before the engine did.
func (s *Server) abandon(w http.ResponseWriter, r *http.Request) {
	if r.Context().Err() != nil {
		s.logger.Debug("client went away while awaiting engine",
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
		)
		return
	}
	s.observer.IncrementRequestTimeouts()
	s.logger.Warn("request timed out awaiting engine",
		"method", r.Method,
		"path", r.URL.Path,
		"timeout", s.awaitTimeout,
		"request_id", requestIDFrom(r.Context()),
	)
	writeText(w, statusFor(KindTimeout), msgTimeout)
}

func (s *Server) writeReply(w http.ResponseWriter, r *http.Request, res reply) {
	switch body := res.body.(type) {
	case nil:
		w.WriteHeader(res.status)
	case string:
		writeText(w, res.status, body)
	default:
		data, err := s.registry.Marshal(body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(res.status)
		//nolint:errcheck // Best-effort write to response; connection may be closed
		w.Write(data)
	}
}
