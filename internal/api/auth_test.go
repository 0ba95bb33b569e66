package api

import (
	"net/http"
	"testing"
)

func withAuth(keys ...string) func(*Deps) {
	return func(d *Deps) {
		d.Config.Auth.Enabled = true
		d.Config.Auth.Keys = keys
	}
}

func TestAuthGate(t *testing.T) {
	obs := newCountingObserver()
	srv, _ := testServer(t, withAuth("abc"), func(d *Deps) { d.Observer = obs })

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid key", "/user", "Bearer abc", http.StatusOK, ""},
		{"unknown key", "/user", "Bearer xyz", http.StatusUnauthorized, msgInvalidAPIKey},
		{"missing header", "/user", "", http.StatusUnauthorized, msgNoAPIKey},
		{"not bearer", "/user", "Basic abc", http.StatusUnauthorized, msgInvalidHeader},
		{"empty bearer", "/user", "Bearer ", http.StatusUnauthorized, msgInvalidHeader},
		{"health is gated", "/health", "", http.StatusUnauthorized, msgNoAPIKey},
		{"root is open", "/", "", http.StatusFound, ""},
		{"root ignores bad key", "/", "Bearer xyz", http.StatusFound, ""},
		{"docs are open", "/docs/openapi.yaml", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var header []string
			if tt.header != "" {
				header = []string{"Authorization", tt.header}
			}
			w := do(t, srv, http.MethodGet, tt.path, "", header...)
			expectStatus(t, w, tt.wantStatus)
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}

	if obs.authRejections != 5 {
		t.Errorf("auth rejections = %d, want 5", obs.authRejections)
	}
}

func TestAuthGate_EmptyKeySetRejectsAll(t *testing.T) {
	srv, _ := testServer(t, withAuth())

	w := do(t, srv, http.MethodGet, "/user", "", "Authorization", "Bearer anything")
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestAuthGate_Disabled(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/user", "")
	expectStatus(t, w, http.StatusOK)
}

func TestKeyAllowed(t *testing.T) {
	keys := [][]byte{[]byte("abc"), []byte("def")}

	tests := []struct {
		token string
		want  bool
	}{
		{"abc", true},
		{"def", true},
		{"ab", false},
		{"abcd", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := keyAllowed(keys, []byte(tt.token)); got != tt.want {
			t.Errorf("keyAllowed(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}
