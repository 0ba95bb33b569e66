package api

import (
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// userHandler serves /user. Users are identified by unique id.
type userHandler struct {
	nodeOps[*perms.User]
	s *Server
}

func (h *userHandler) users() perms.UserManager { return h.s.engine.Users() }

// cached resolves the {id} user through the entity cache.
func (h *userHandler) cached(r *http.Request) *async.Future[*perms.User] {
	id, err := pathUniqueID(r)
	if err != nil {
		return async.Failed[*perms.User](err)
	}
	return async.Then(h.s.cache.User(id), requireUser)
}

// fresh loads the {id} user from storage, bypassing the cache.
func (h *userHandler) fresh(r *http.Request) *async.Future[*perms.User] {
	id, err := pathUniqueID(r)
	if err != nil {
		return async.Failed[*perms.User](err)
	}
	return async.Then(h.users().LoadUser(id), requireUser)
}

func (h *userHandler) persist(u *perms.User) *async.Future[struct{}] {
	return async.Then(h.users().SaveUser(u), func(struct{}) (struct{}, error) {
		h.s.pushUserUpdate(u)
		return struct{}{}, nil
	})
}

func requireUser(u *perms.User) (*perms.User, error) {
	if u == nil {
		return nil, notFound(msgUserNotFound)
	}
	return u, nil
}

// create stores a new player. An id that already has data is a conflict.
func (h *userHandler) create(r *http.Request) *async.Future[reply] {
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	req, err := wire.DecodeCreateUser(body)
	if err != nil {
		return fail(err)
	}
	return async.Compose(h.users().SavePlayerData(req.UniqueID, req.Username), func(res perms.PlayerSaveResult) *async.Future[reply] {
		if !res.CleanInsert {
			return fail(conflict(msgUserExists))
		}
		return async.Then(h.users().LoadUser(req.UniqueID), func(u *perms.User) (reply, error) {
			if _, err := requireUser(u); err != nil {
				return reply{}, err
			}
			return created(u), nil
		})
	})
}

func (h *userHandler) getAll(*http.Request) *async.Future[reply] {
	return async.Then(h.users().UniqueUsers(), func(ids []uuid.UUID) (reply, error) {
		return ok(ids), nil
	})
}

func (h *userHandler) search(r *http.Request) *async.Future[reply] {
	matcher, err := searchMatcher(r)
	if err != nil {
		return fail(err)
	}
	return async.Then(h.users().SearchAll(matcher), func(found map[uuid.UUID][]perms.Node) (reply, error) {
		results := make([]wire.UserSearchResult, 0, len(found))
		for id, nodes := range found {
			results = append(results, wire.UserSearchResult{UniqueID: id, Results: nodes})
		}
		sort.Slice(results, func(i, j int) bool {
			return results[i].UniqueID.String() < results[j].UniqueID.String()
		})
		return ok(results), nil
	})
}

// lookup resolves a username to a unique id or the reverse.
func (h *userHandler) lookup(r *http.Request) *async.Future[reply] {
	q := r.URL.Query()
	if username := q.Get("username"); username != "" {
		return async.Then(h.users().LookupUniqueID(username), func(id uuid.UUID) (reply, error) {
			if id == uuid.Nil {
				return reply{}, notFound(msgUserNotFound)
			}
			return ok(wire.Lookup{UniqueID: &id}), nil
		})
	}
	if raw := q.Get("uniqueId"); raw != "" {
		id, err := parseUniqueID("uniqueId", raw)
		if err != nil {
			return fail(err)
		}
		return async.Then(h.users().LookupUsername(id), func(username string) (reply, error) {
			if username == "" {
				return reply{}, notFound(msgUserNotFound)
			}
			return ok(wire.Lookup{Username: &username}), nil
		})
	}
	return fail(invalidArgument("Must specify username or uniqueId"))
}

func (h *userHandler) get(r *http.Request) *async.Future[reply] {
	return async.Then(h.cached(r), func(u *perms.User) (reply, error) {
		return ok(u), nil
	})
}

// update changes the stored username.
func (h *userHandler) update(r *http.Request) *async.Future[reply] {
	id, err := pathUniqueID(r)
	if err != nil {
		return fail(err)
	}
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	username, err := wire.DecodeUpdateUser(body)
	if err != nil {
		return fail(err)
	}
	return async.Compose(h.fresh(r), func(*perms.User) *async.Future[reply] {
		return async.Then(h.users().SavePlayerData(id, username), func(perms.PlayerSaveResult) (reply, error) {
			return done(), nil
		})
	})
}

// delete clears the user's nodes, removes the player record and evicts the
// loaded instance.
func (h *userHandler) delete(r *http.Request) *async.Future[reply] {
	return async.Compose(h.fresh(r), func(u *perms.User) *async.Future[reply] {
		u.Data().Clear()
		saved := async.Compose(h.users().SaveUser(u), func(struct{}) *async.Future[bool] {
			return h.users().DeletePlayerData(u.UniqueID())
		})
		return async.Then(saved, func(bool) (reply, error) {
			h.s.cache.InvalidateUser(u.UniqueID())
			h.s.pushUserUpdate(u)
			return done(), nil
		})
	})
}

func (h *userHandler) promote(r *http.Request) *async.Future[reply] {
	return h.moveOnTrack(r, func(u *perms.User, t *perms.Track, ctx perms.ContextSet) (any, bool, error) {
		res, err := h.s.engine.Tracks().Promote(u, t, ctx)
		return res, res.Success(), err
	})
}

func (h *userHandler) demote(r *http.Request) *async.Future[reply] {
	return h.moveOnTrack(r, func(u *perms.User, t *perms.Track, ctx perms.ContextSet) (any, bool, error) {
		res, err := h.s.engine.Tracks().Demote(u, t, ctx)
		return res, res.Success(), err
	})
}

// trackMove runs a promotion or demotion and reports the result and whether
// the user's nodes changed.
type trackMove func(u *perms.User, t *perms.Track, ctx perms.ContextSet) (result any, changed bool, err error)

// moveOnTrack loads the user and the track, applies move and saves the user
// when it changed. A non-success status is a normal reply.
func (h *userHandler) moveOnTrack(r *http.Request, move trackMove) *async.Future[reply] {
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	req, err := wire.DecodeTrackMove(body)
	if err != nil {
		return fail(err)
	}
	return async.Compose(h.fresh(r), func(u *perms.User) *async.Future[reply] {
		return async.Compose(h.s.cache.Track(req.Track), func(t *perms.Track) *async.Future[reply] {
			if t == nil {
				return fail(notFound(msgTrackNotFound))
			}
			res, changed, err := move(u, t, req.Context)
			if err != nil {
				return fail(err)
			}
			if !changed {
				return async.Completed(ok(res))
			}
			return async.Then(h.persist(u), func(struct{}) (reply, error) {
				return ok(res), nil
			})
		})
	})
}
