package api

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// trackHandler serves /track. Tracks hold an ordered group list and no
// nodes, so the node operations answer 404.
type trackHandler struct {
	nodeless
	s *Server
}

func (h *trackHandler) tracks() perms.TrackManager { return h.s.engine.Tracks() }

func requireTrack(t *perms.Track) (*perms.Track, error) {
	if t == nil {
		return nil, notFound(msgTrackNotFound)
	}
	return t, nil
}

func (h *trackHandler) create(r *http.Request) *async.Future[reply] {
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	name, err := wire.DecodeName(body)
	if err != nil {
		return fail(err)
	}
	if h.tracks().IsLoaded(name) {
		return fail(conflict(msgTrackExists))
	}
	return async.Then(h.tracks().CreateAndLoadTrack(name), func(t *perms.Track) (reply, error) {
		return created(t), nil
	})
}

func (h *trackHandler) getAll(*http.Request) *async.Future[reply] {
	loaded := async.Completed(struct{}{})
	if !h.s.cfg.Cache.Tracks {
		loaded = h.tracks().LoadAllTracks()
	}
	return async.Then(loaded, func(struct{}) (reply, error) {
		tracks := h.tracks().LoadedTracks()
		names := make([]string, 0, len(tracks))
		for _, t := range tracks {
			names = append(names, t.Name())
		}
		sort.Strings(names)
		return ok(names), nil
	})
}

func (h *trackHandler) search(*http.Request) *async.Future[reply] {
	return fail(unsupported("Track", "search"))
}

func (h *trackHandler) get(r *http.Request) *async.Future[reply] {
	return async.Then(h.s.cache.Track(chi.URLParam(r, "id")), func(t *perms.Track) (reply, error) {
		if _, err := requireTrack(t); err != nil {
			return reply{}, err
		}
		return ok(t), nil
	})
}

// update replaces the track's group list. Every group must already exist.
func (h *trackHandler) update(r *http.Request) *async.Future[reply] {
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	groups, err := wire.DecodeTrackUpdate(body)
	if err != nil {
		return fail(err)
	}
	names := make([]string, 0, len(groups))
	for _, name := range groups {
		g := h.s.engine.Groups().GetGroup(name)
		if g == nil {
			return fail(notFound("Group %s does not exist", name))
		}
		names = append(names, g.Name())
	}

	loaded := async.Then(h.tracks().LoadTrack(chi.URLParam(r, "id")), requireTrack)
	return async.Compose(loaded, func(t *perms.Track) *async.Future[reply] {
		t.SetGroups(names)
		return async.Then(h.tracks().SaveTrack(t), func(struct{}) (reply, error) {
			h.s.pushUpdate()
			return done(), nil
		})
	})
}

func (h *trackHandler) delete(r *http.Request) *async.Future[reply] {
	loaded := async.Then(h.tracks().LoadTrack(chi.URLParam(r, "id")), requireTrack)
	return async.Compose(loaded, func(t *perms.Track) *async.Future[reply] {
		return async.Then(h.tracks().DeleteTrack(t), func(struct{}) (reply, error) {
			h.s.pushUpdate()
			return done(), nil
		})
	})
}

func (h *trackHandler) promote(*http.Request) *async.Future[reply] {
	return fail(unsupported("Track", "promote"))
}

func (h *trackHandler) demote(*http.Request) *async.Future[reply] {
	return fail(unsupported("Track", "demote"))
}
