package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"api error kept", notFound(msgUserNotFound), http.StatusNotFound},
		{"wrapped api error", fmt.Errorf("loading: %w", conflict(msgUserExists)), http.StatusConflict},
		{"malformed body", fmt.Errorf("%w: empty body", wire.ErrMalformed), http.StatusBadRequest},
		{"unknown enum", fmt.Errorf("%w: flag", perms.ErrUnknownEnum), http.StatusBadRequest},
		{"invalid node", perms.ErrInvalidNode, http.StatusBadRequest},
		{"invalid context", perms.ErrInvalidContext, http.StatusBadRequest},
		{"invalid name", perms.ErrInvalidName, http.StatusBadRequest},
		{"engine not found", perms.ErrNotFound, http.StatusNotFound},
		{"engine unsupported", perms.ErrUnsupported, http.StatusNotFound},
		{"engine already exists", perms.ErrAlreadyExists, http.StatusConflict},
		{"timeout", &Error{Kind: KindTimeout, Message: msgTimeout}, http.StatusServiceUnavailable},
		{"not implemented", &Error{Kind: KindNotImplemented, Message: msgNoMessaging}, http.StatusNotImplemented},
		{"anything else", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(classify(tt.err).Kind); got != tt.wantStatus {
				t.Errorf("status = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestWriteError_HidesServerErrors(t *testing.T) {
	srv, _ := testServer(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/user", nil)

	srv.writeError(w, r, errors.New("sqlite: database is locked"))

	expectStatus(t, w, http.StatusInternalServerError)
	if w.Body.String() != msgServerError {
		t.Errorf("body = %q, want %q", w.Body.String(), msgServerError)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestUnsupportedMessage(t *testing.T) {
	err := unsupported("Track", "search")
	if err.Message != "Track does not support search" || !errors.Is(err, perms.ErrUnsupported) {
		t.Errorf("unsupported() = %v", err)
	}
}
