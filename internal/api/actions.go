package api

import (
	"net/http"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// actionFilter picks the first non-empty filter parameter, in the order
// source, user, group, track, search.
func actionFilter(r *http.Request) (perms.ActionFilter, error) {
	q := r.URL.Query()
	if v := q.Get("source"); v != "" {
		id, err := parseUniqueID("source", v)
		if err != nil {
			return perms.ActionFilter{}, err
		}
		return perms.ActionsBySource(id), nil
	}
	if v := q.Get("user"); v != "" {
		id, err := parseUniqueID("user", v)
		if err != nil {
			return perms.ActionFilter{}, err
		}
		return perms.ActionsOnUser(id), nil
	}
	if v := q.Get("group"); v != "" {
		return perms.ActionsOnGroup(v), nil
	}
	if v := q.Get("track"); v != "" {
		return perms.ActionsOnTrack(v), nil
	}
	if v := q.Get("search"); v != "" {
		return perms.ActionsMatching(v), nil
	}
	return perms.AnyAction(), nil
}

// queryActions serves GET /action. Without paging every match is returned
// as a single page.
func (s *Server) queryActions(r *http.Request) *async.Future[reply] {
	filter, err := actionFilter(r)
	if err != nil {
		return fail(err)
	}
	size, number, paged, err := pageParams(r)
	if err != nil {
		return fail(err)
	}

	if paged {
		return async.Then(s.engine.Actions().QueryActionsPage(filter, size, number), func(p perms.ActionPage) (reply, error) {
			return ok(p), nil
		})
	}
	return async.Then(s.engine.Actions().QueryActions(filter), func(entries []perms.Action) (reply, error) {
		return ok(perms.ActionPage{Entries: entries, OverallSize: len(entries)}), nil
	})
}

func (s *Server) submitAction(r *http.Request) *async.Future[reply] {
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	action, err := wire.DecodeAction(body, s.now())
	if err != nil {
		return fail(err)
	}
	return async.Then(s.engine.Actions().Submit(action), func(struct{}) (reply, error) {
		return accepted(), nil
	})
}
