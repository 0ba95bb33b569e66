package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
)

type nodeJSON struct {
	Key     string         `json:"key"`
	Type    string         `json:"type"`
	Value   bool           `json:"value"`
	Context map[string]any `json:"context"`
	Expiry  *int64         `json:"expiry"`
}

type userJSON struct {
	UniqueID     string     `json:"uniqueId"`
	Username     string     `json:"username"`
	ParentGroups []string   `json:"parentGroups"`
	Nodes        []nodeJSON `json:"nodes"`
}

func createUser(t *testing.T, srv *Server, username string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	w := do(t, srv, http.MethodPost, "/user", fmt.Sprintf(`{"uniqueId": %q, "username": %q}`, id, username))
	expectStatus(t, w, http.StatusCreated)
	return id
}

func nodeKeys(nodes []nodeJSON) []string {
	keys := make([]string, 0, len(nodes))
	for _, n := range nodes {
		keys = append(keys, n.Key)
	}
	return keys
}

// ─── Create / Get ──────────────────────────────────────────────────

func TestCreateAndGetUser(t *testing.T) {
	srv, _ := testServer(t)
	id := uuid.New()

	w := do(t, srv, http.MethodPost, "/user", fmt.Sprintf(`{"uniqueId": %q, "username": "Steve"}`, id))
	expectStatus(t, w, http.StatusCreated)
	created := decode[userJSON](t, w)

	w = do(t, srv, http.MethodGet, "/user/"+id.String(), "")
	expectStatus(t, w, http.StatusOK)
	got := decode[userJSON](t, w)

	if got.UniqueID != id.String() || got.Username != "Steve" {
		t.Errorf("identity = %s/%s, want %s/Steve", got.UniqueID, got.Username, id)
	}
	if fmt.Sprint(nodeKeys(got.Nodes)) != fmt.Sprint(nodeKeys(created.Nodes)) {
		t.Errorf("nodes = %v, created with %v", nodeKeys(got.Nodes), nodeKeys(created.Nodes))
	}
	if len(got.ParentGroups) != 1 || got.ParentGroups[0] != "default" {
		t.Errorf("parentGroups = %v, want [default]", got.ParentGroups)
	}
}

func TestCreateUser_Conflict(t *testing.T) {
	srv, _ := testServer(t)
	id := createUser(t, srv, "Steve")

	w := do(t, srv, http.MethodPost, "/user", fmt.Sprintf(`{"uniqueId": %q, "username": "Steve"}`, id))
	expectStatus(t, w, http.StatusConflict)
	if w.Body.String() != msgUserExists {
		t.Errorf("body = %q, want %q", w.Body.String(), msgUserExists)
	}
}

func TestCreateUser_Malformed(t *testing.T) {
	srv, _ := testServer(t)

	bodies := map[string]string{
		"no id":      `{"username": "Steve"}`,
		"bad id":     `{"uniqueId": "not-a-uuid"}`,
		"not json":   `{`,
		"empty body": ``,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			expectStatus(t, do(t, srv, http.MethodPost, "/user", body), http.StatusBadRequest)
		})
	}
}

func TestGetUser_NotFound(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/user/"+uuid.NewString(), "")
	expectStatus(t, w, http.StatusNotFound)
	if w.Body.String() != msgUserNotFound {
		t.Errorf("body = %q, want %q", w.Body.String(), msgUserNotFound)
	}
}

func TestGetUser_InvalidID(t *testing.T) {
	srv, _ := testServer(t)

	expectStatus(t, do(t, srv, http.MethodGet, "/user/steve", ""), http.StatusBadRequest)
}

func TestListUsers(t *testing.T) {
	srv, _ := testServer(t)
	a := createUser(t, srv, "Steve")
	b := createUser(t, srv, "Alex")

	w := do(t, srv, http.MethodGet, "/user", "")
	expectStatus(t, w, http.StatusOK)
	ids := decode[[]string](t, w)

	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if len(ids) != 2 || !seen[a.String()] || !seen[b.String()] {
		t.Errorf("users = %v, want %s and %s", ids, a, b)
	}
}

// ─── Update / Delete ───────────────────────────────────────────────

func TestUpdateUser(t *testing.T) {
	srv, _ := testServer(t)
	id := createUser(t, srv, "Steve")

	w := do(t, srv, http.MethodPatch, "/user/"+id.String(), `{"username": "Herobrine"}`)
	expectStatus(t, w, http.StatusOK)

	w = do(t, srv, http.MethodGet, "/user/lookup?uniqueId="+id.String(), "")
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]string](t, w); got["username"] != "Herobrine" {
		t.Errorf("lookup = %v, want username Herobrine", got)
	}

	expectStatus(t, do(t, srv, http.MethodPatch, "/user/"+uuid.NewString(), `{"username": "x"}`), http.StatusNotFound)
}

func TestDeleteUser(t *testing.T) {
	srv, _ := testServer(t)
	id := createUser(t, srv, "Steve")

	expectStatus(t, do(t, srv, http.MethodDelete, "/user/"+uuid.NewString(), ""), http.StatusNotFound)

	w := do(t, srv, http.MethodDelete, "/user/"+id.String(), "")
	expectStatus(t, w, http.StatusOK)
	if w.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", w.Body.String())
	}

	expectStatus(t, do(t, srv, http.MethodGet, "/user/"+id.String(), ""), http.StatusNotFound)
}

// ─── Nodes ─────────────────────────────────────────────────────────

func TestUserNodes(t *testing.T) {
	srv, _ := testServer(t)
	id := createUser(t, srv, "Steve")
	path := "/user/" + id.String() + "/nodes"

	w := do(t, srv, http.MethodPost, path, `{"key": "essentials.fly"}`)
	expectStatus(t, w, http.StatusOK)
	if keys := nodeKeys(decode[[]nodeJSON](t, w)); len(keys) != 2 {
		t.Errorf("after add single: %v, want group.default and essentials.fly", keys)
	}

	w = do(t, srv, http.MethodPatch, path, `[{"key": "kit.vip", "value": false}, {"key": "essentials.home", "context": {"server": "survival"}}]`)
	expectStatus(t, w, http.StatusOK)
	if keys := nodeKeys(decode[[]nodeJSON](t, w)); len(keys) != 4 {
		t.Errorf("after add multiple: %v, want 4 nodes", keys)
	}

	t.Run("put replaces the full set", func(t *testing.T) {
		w := do(t, srv, http.MethodPut, path, `[{"key": "group.member"}, {"key": "a.b", "context": {"world": ["nether", "the_end"]}}]`)
		expectStatus(t, w, http.StatusOK)

		w = do(t, srv, http.MethodGet, path, "")
		expectStatus(t, w, http.StatusOK)
		nodes := decode[[]nodeJSON](t, w)
		if fmt.Sprint(nodeKeys(nodes)) != "[group.member a.b]" {
			t.Fatalf("nodes = %v, want [group.member a.b]", nodeKeys(nodes))
		}
		if nodes[0].Type != "inheritance" {
			t.Errorf("type = %q, want inheritance", nodes[0].Type)
		}
		if worlds, _ := nodes[1].Context["world"].([]any); len(worlds) != 2 {
			t.Errorf("context = %v, want two worlds", nodes[1].Context)
		}
	})

	t.Run("delete listed nodes only", func(t *testing.T) {
		w := do(t, srv, http.MethodDelete, path, `[{"key": "a.b", "context": {"world": ["nether", "the_end"]}}]`)
		expectStatus(t, w, http.StatusOK)

		w = do(t, srv, http.MethodGet, path, "")
		if keys := nodeKeys(decode[[]nodeJSON](t, w)); fmt.Sprint(keys) != "[group.member]" {
			t.Errorf("nodes = %v, want [group.member]", keys)
		}
	})

	t.Run("delete without body clears", func(t *testing.T) {
		expectStatus(t, do(t, srv, http.MethodDelete, path, ""), http.StatusOK)

		w := do(t, srv, http.MethodGet, path, "")
		if keys := nodeKeys(decode[[]nodeJSON](t, w)); fmt.Sprint(keys) != "[group.default]" {
			t.Errorf("nodes = %v, want only the default group re-added on save", keys)
		}
	})
}

func TestUserNodes_Errors(t *testing.T) {
	srv, _ := testServer(t)
	id := createUser(t, srv, "Steve")
	path := "/user/" + id.String() + "/nodes"

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"unknown user", http.MethodPost, "/user/" + uuid.NewString() + "/nodes", `{"key": "a"}`, http.StatusNotFound},
		{"missing key", http.MethodPost, path, `{"value": true}`, http.StatusBadRequest},
		{"not an array", http.MethodPut, path, `{"key": "a"}`, http.StatusBadRequest},
		{"unknown merge strategy", http.MethodPost, path + "?temporaryNodeMergeStrategy=sometimes", `{"key": "a"}`, http.StatusBadRequest},
		{"merge strategy alias", http.MethodPost, path + "?mergeStrategy=replace_existing_if_duration_longer", `{"key": "a", "expiry": 4102444800}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, do(t, srv, tt.method, tt.target, tt.body), tt.wantStatus)
		})
	}
}

// ─── Meta / Permission Check ───────────────────────────────────────

func TestUserMeta(t *testing.T) {
	srv, _ := testServer(t)
	id := createUser(t, srv, "Steve")
	base := "/user/" + id.String()

	do(t, srv, http.MethodPatch, base+"/nodes", `[{"key": "prefix.10.[VIP]"}, {"key": "meta.colour.blue"}]`)

	w := do(t, srv, http.MethodGet, base+"/meta", "")
	expectStatus(t, w, http.StatusOK)
	got := decode[struct {
		Meta         map[string]string `json:"meta"`
		Prefix       string            `json:"prefix"`
		PrimaryGroup string            `json:"primaryGroup"`
	}](t, w)
	if got.Prefix != "[VIP]" || got.Meta["colour"] != "blue" || got.PrimaryGroup != "default" {
		t.Errorf("meta = %+v", got)
	}
}

func TestUserPermissionCheck(t *testing.T) {
	srv, _ := testServer(t)
	id := createUser(t, srv, "Steve")
	base := "/user/" + id.String()

	do(t, srv, http.MethodPatch, base+"/nodes", `[{"key": "essentials.fly"}, {"key": "essentials.home", "value": false, "context": {"server": "hub"}}]`)

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantResult string
	}{
		{"granted", http.MethodGet, base + "/permission-check?permission=essentials.fly", "", http.StatusOK, "true"},
		{"undefined", http.MethodGet, base + "/permission-check?permission=essentials.warp", "", http.StatusOK, "undefined"},
		{"camel case alias", http.MethodGet, base + "/permissionCheck?permission=essentials.fly", "", http.StatusOK, "true"},
		{"missing permission", http.MethodGet, base + "/permission-check", "", http.StatusBadRequest, ""},
		{"holder options skip contextual node", http.MethodPost, base + "/permission-check", `{"permission": "essentials.home"}`, http.StatusOK, "undefined"},
		{"custom context", http.MethodPost, base + "/permission-check", `{"permission": "essentials.home", "queryOptions": {"contexts": {"server": "hub"}}}`, http.StatusOK, "false"},
		{"custom missing permission", http.MethodPost, base + "/permission-check", `{}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, tt.method, tt.target, tt.body)
			expectStatus(t, w, tt.wantStatus)
			if tt.wantResult == "" {
				return
			}
			if got := decode[map[string]any](t, w); got["result"] != tt.wantResult {
				t.Errorf("result = %v, want %s", got["result"], tt.wantResult)
			}
		})
	}
}

// ─── Search / Lookup ───────────────────────────────────────────────

func TestUserSearch(t *testing.T) {
	srv, _ := testServer(t)
	steve := createUser(t, srv, "Steve")
	createUser(t, srv, "Alex")
	do(t, srv, http.MethodPost, "/user/"+steve.String()+"/nodes", `{"key": "essentials.fly"}`)

	w := do(t, srv, http.MethodGet, "/user/search?key=essentials.fly", "")
	expectStatus(t, w, http.StatusOK)
	results := decode[[]struct {
		UniqueID string     `json:"uniqueId"`
		Results  []nodeJSON `json:"results"`
	}](t, w)
	if len(results) != 1 || results[0].UniqueID != steve.String() || len(results[0].Results) != 1 {
		t.Errorf("search = %+v, want Steve with one node", results)
	}

	w = do(t, srv, http.MethodGet, "/user/search?type=inheritance", "")
	expectStatus(t, w, http.StatusOK)
	if got := decode[[]any](t, w); len(got) != 2 {
		t.Errorf("inheritance search matched %d users, want 2", len(got))
	}

	errors := map[string]string{
		"no dimension":   "/user/search",
		"two dimensions": "/user/search?key=a&keyStartsWith=b",
		"unknown type":   "/user/search?type=permission",
	}
	for name, target := range errors {
		t.Run(name, func(t *testing.T) {
			expectStatus(t, do(t, srv, http.MethodGet, target, ""), http.StatusBadRequest)
		})
	}
}

func TestUserLookup(t *testing.T) {
	srv, _ := testServer(t)
	id := createUser(t, srv, "Steve")

	w := do(t, srv, http.MethodGet, "/user/lookup?username=Steve", "")
	expectStatus(t, w, http.StatusOK)
	if got := decode[map[string]string](t, w); got["uniqueId"] != id.String() {
		t.Errorf("lookup = %v, want uniqueId %s", got, id)
	}

	expectStatus(t, do(t, srv, http.MethodGet, "/user/lookup?username=Nobody", ""), http.StatusNotFound)
	expectStatus(t, do(t, srv, http.MethodGet, "/user/lookup?uniqueId="+uuid.NewString(), ""), http.StatusNotFound)
	expectStatus(t, do(t, srv, http.MethodGet, "/user/lookup?uniqueId=steve", ""), http.StatusBadRequest)
	expectStatus(t, do(t, srv, http.MethodGet, "/user/lookup", ""), http.StatusBadRequest)
}

// ─── Promote / Demote ──────────────────────────────────────────────

type trackResultJSON struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	GroupFrom string `json:"groupFrom"`
	GroupTo   string `json:"groupTo"`
}

func setupStaffTrack(t *testing.T, srv *Server) {
	t.Helper()
	for _, g := range []string{"member", "admin"} {
		expectStatus(t, do(t, srv, http.MethodPost, "/group", fmt.Sprintf(`{"name": %q}`, g)), http.StatusCreated)
	}
	expectStatus(t, do(t, srv, http.MethodPost, "/track", `{"name": "t"}`), http.StatusCreated)
	expectStatus(t, do(t, srv, http.MethodPatch, "/track/t", `{"groups": ["default", "member", "admin"]}`), http.StatusOK)
}

func TestPromoteUser(t *testing.T) {
	srv, _ := testServer(t)
	setupStaffTrack(t, srv)
	id := createUser(t, srv, "Steve")
	base := "/user/" + id.String()
	expectStatus(t, do(t, srv, http.MethodPut, base+"/nodes", `[{"key": "group.member"}]`), http.StatusOK)

	w := do(t, srv, http.MethodPost, base+"/promote", `{"track": "t"}`)
	expectStatus(t, w, http.StatusOK)
	res := decode[trackResultJSON](t, w)
	if !res.Success || res.GroupFrom != "member" || res.GroupTo != "admin" {
		t.Errorf("promote = %+v, want member -> admin", res)
	}

	w = do(t, srv, http.MethodGet, base+"/nodes", "")
	if keys := nodeKeys(decode[[]nodeJSON](t, w)); fmt.Sprint(keys) != "[group.admin]" {
		t.Errorf("nodes after promote = %v, want [group.admin]", keys)
	}

	w = do(t, srv, http.MethodPost, base+"/promote", `{"track": "t"}`)
	expectStatus(t, w, http.StatusOK)
	if res := decode[trackResultJSON](t, w); res.Success || res.Status != "end_of_track" {
		t.Errorf("promote at top = %+v, want end_of_track", res)
	}
}

func TestDemoteUser(t *testing.T) {
	srv, _ := testServer(t)
	setupStaffTrack(t, srv)
	id := createUser(t, srv, "Steve")
	base := "/user/" + id.String()
	expectStatus(t, do(t, srv, http.MethodPut, base+"/nodes", `[{"key": "group.admin"}]`), http.StatusOK)

	w := do(t, srv, http.MethodPost, base+"/demote", `{"track": "t"}`)
	expectStatus(t, w, http.StatusOK)
	if res := decode[trackResultJSON](t, w); !res.Success || res.GroupFrom != "admin" || res.GroupTo != "member" {
		t.Errorf("demote = %+v, want admin -> member", res)
	}
}

func TestPromoteUser_Errors(t *testing.T) {
	srv, _ := testServer(t)
	setupStaffTrack(t, srv)
	id := createUser(t, srv, "Steve")

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
	}{
		{"unknown track", "/user/" + id.String() + "/promote", `{"track": "nope"}`, http.StatusNotFound},
		{"unknown user", "/user/" + uuid.NewString() + "/promote", `{"track": "t"}`, http.StatusNotFound},
		{"missing track", "/user/" + id.String() + "/promote", `{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, do(t, srv, http.MethodPost, tt.target, tt.body), tt.wantStatus)
		})
	}
}
