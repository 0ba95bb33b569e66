package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// groupHandler serves /group. Groups are identified by lower-case name.
type groupHandler struct {
	nodeOps[*perms.Group]
	s *Server
}

func (h *groupHandler) groups() perms.GroupManager { return h.s.engine.Groups() }

func (h *groupHandler) cached(r *http.Request) *async.Future[*perms.Group] {
	return async.Then(h.s.cache.Group(chi.URLParam(r, "id")), requireGroup)
}

func (h *groupHandler) fresh(r *http.Request) *async.Future[*perms.Group] {
	return async.Then(h.groups().LoadGroup(chi.URLParam(r, "id")), requireGroup)
}

func (h *groupHandler) persist(g *perms.Group) *async.Future[struct{}] {
	return async.Then(h.groups().SaveGroup(g), func(struct{}) (struct{}, error) {
		h.s.pushUpdate()
		return struct{}{}, nil
	})
}

func requireGroup(g *perms.Group) (*perms.Group, error) {
	if g == nil {
		return nil, notFound(msgGroupNotFound)
	}
	return g, nil
}

func (h *groupHandler) create(r *http.Request) *async.Future[reply] {
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	name, err := wire.DecodeName(body)
	if err != nil {
		return fail(err)
	}
	if h.groups().IsLoaded(name) {
		return fail(conflict(msgGroupExists))
	}
	return async.Then(h.groups().CreateAndLoadGroup(name), func(g *perms.Group) (reply, error) {
		return created(g), nil
	})
}

// getAll lists group names, reloading them from storage first unless the
// group cache is on.
func (h *groupHandler) getAll(*http.Request) *async.Future[reply] {
	loaded := async.Completed(struct{}{})
	if !h.s.cfg.Cache.Groups {
		loaded = h.groups().LoadAllGroups()
	}
	return async.Then(loaded, func(struct{}) (reply, error) {
		groups := h.groups().LoadedGroups()
		names := make([]string, 0, len(groups))
		for _, g := range groups {
			names = append(names, g.Name())
		}
		sort.Strings(names)
		return ok(names), nil
	})
}

func (h *groupHandler) search(r *http.Request) *async.Future[reply] {
	matcher, err := searchMatcher(r)
	if err != nil {
		return fail(err)
	}
	return async.Then(h.groups().SearchAll(matcher), func(found map[string][]perms.Node) (reply, error) {
		results := make([]wire.GroupSearchResult, 0, len(found))
		for name, nodes := range found {
			results = append(results, wire.GroupSearchResult{Name: name, Results: nodes})
		}
		sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
		return ok(results), nil
	})
}

func (h *groupHandler) get(r *http.Request) *async.Future[reply] {
	return async.Then(h.cached(r), func(g *perms.Group) (reply, error) {
		return ok(g), nil
	})
}

func (h *groupHandler) update(*http.Request) *async.Future[reply] {
	return fail(unsupported("Group", "update"))
}

func (h *groupHandler) delete(r *http.Request) *async.Future[reply] {
	return async.Compose(h.fresh(r), func(g *perms.Group) *async.Future[reply] {
		return async.Then(h.groups().DeleteGroup(g), func(struct{}) (reply, error) {
			h.s.pushUpdate()
			return done(), nil
		})
	})
}

func (h *groupHandler) promote(*http.Request) *async.Future[reply] {
	return fail(unsupported("Group", "promote"))
}

func (h *groupHandler) demote(*http.Request) *async.Future[reply] {
	return fail(unsupported("Group", "demote"))
}
