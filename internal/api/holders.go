package api

import (
	"bytes"
	"net/http"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
	"github.com/LuckPerms/rest-api/internal/wire"
)

// holderHandler is the operation set mounted under /user, /group and
// /track. Kinds that lack an operation answer it with 404.
type holderHandler interface {
	create(r *http.Request) *async.Future[reply]
	getAll(r *http.Request) *async.Future[reply]
	search(r *http.Request) *async.Future[reply]
	get(r *http.Request) *async.Future[reply]
	update(r *http.Request) *async.Future[reply]
	delete(r *http.Request) *async.Future[reply]

	nodesGet(r *http.Request) *async.Future[reply]
	nodesAddSingle(r *http.Request) *async.Future[reply]
	nodesAddMultiple(r *http.Request) *async.Future[reply]
	nodesSet(r *http.Request) *async.Future[reply]
	nodesDelete(r *http.Request) *async.Future[reply]
	metaGet(r *http.Request) *async.Future[reply]
	permissionCheck(r *http.Request) *async.Future[reply]
	permissionCheckCustom(r *http.Request) *async.Future[reply]

	promote(r *http.Request) *async.Future[reply]
	demote(r *http.Request) *async.Future[reply]
}

var (
	_ holderHandler = (*userHandler)(nil)
	_ holderHandler = (*groupHandler)(nil)
	_ holderHandler = (*trackHandler)(nil)
)

// nodeOps implements the node, meta and permission-check operations for
// any holder kind. Reads go through the cache; writes load a fresh copy,
// mutate it and save it.
type nodeOps[H perms.Holder] struct {
	// read and write fail with a not-found error when the holder is absent.
	read  func(r *http.Request) *async.Future[H]
	write func(r *http.Request) *async.Future[H]
	// save persists h and tells other instances about it.
	save func(h H) *async.Future[struct{}]
	calc func() perms.Calculator
}

func (o nodeOps[H]) mutate(r *http.Request, change func(h H), result func(h H) reply) *async.Future[reply] {
	return async.Compose(o.write(r), func(h H) *async.Future[reply] {
		change(h)
		return async.Then(o.save(h), func(struct{}) (reply, error) {
			return result(h), nil
		})
	})
}

func nodesReply[H perms.Holder](h H) reply { return ok(h.Nodes()) }

func (o nodeOps[H]) nodesGet(r *http.Request) *async.Future[reply] {
	return async.Then(o.read(r), func(h H) (reply, error) {
		return nodesReply(h), nil
	})
}

func (o nodeOps[H]) nodesAddSingle(r *http.Request) *async.Future[reply] {
	strategy, err := mergeStrategy(r)
	if err != nil {
		return fail(err)
	}
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	n, err := wire.DecodeNode(body)
	if err != nil {
		return fail(err)
	}
	return o.mutate(r, func(h H) { h.Data().Add(n, strategy) }, nodesReply[H])
}

func (o nodeOps[H]) nodesAddMultiple(r *http.Request) *async.Future[reply] {
	strategy, err := mergeStrategy(r)
	if err != nil {
		return fail(err)
	}
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	nodes, err := wire.DecodeNodes(body)
	if err != nil {
		return fail(err)
	}
	return o.mutate(r, func(h H) {
		for _, n := range nodes {
			h.Data().Add(n, strategy)
		}
	}, nodesReply[H])
}

func (o nodeOps[H]) nodesSet(r *http.Request) *async.Future[reply] {
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	nodes, err := wire.DecodeNodes(body)
	if err != nil {
		return fail(err)
	}
	return o.mutate(r, func(h H) { h.Data().Replace(nodes) }, nodesReply[H])
}

// nodesDelete clears every node, or only the listed ones when the request
// carries a body.
func (o nodeOps[H]) nodesDelete(r *http.Request) *async.Future[reply] {
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return o.mutate(r, func(h H) { h.Data().Clear() }, func(H) reply { return done() })
	}
	nodes, err := wire.DecodeNodes(body)
	if err != nil {
		return fail(err)
	}
	return o.mutate(r, func(h H) {
		for _, n := range nodes {
			h.Data().Remove(n)
		}
	}, func(H) reply { return done() })
}

func (o nodeOps[H]) metaGet(r *http.Request) *async.Future[reply] {
	return async.Then(o.read(r), func(h H) (reply, error) {
		return ok(o.calc().MetaData(h, h.QueryOptions())), nil
	})
}

func (o nodeOps[H]) permissionCheck(r *http.Request) *async.Future[reply] {
	permission := r.URL.Query().Get("permission")
	if permission == "" {
		return fail(invalidArgument(msgMissingPerm))
	}
	return async.Then(o.read(r), func(h H) (reply, error) {
		return ok(o.calc().CheckPermission(h, permission, h.QueryOptions())), nil
	})
}

// permissionCheckCustom uses the caller's query options, or the holder's
// own when the body carries none.
func (o nodeOps[H]) permissionCheckCustom(r *http.Request) *async.Future[reply] {
	body, err := readBody(r)
	if err != nil {
		return fail(err)
	}
	req, err := wire.DecodePermissionCheck(body)
	if err != nil {
		return fail(err)
	}
	return async.Then(o.read(r), func(h H) (reply, error) {
		opts := h.QueryOptions()
		if req.QueryOptions != nil {
			opts = *req.QueryOptions
		}
		return ok(o.calc().CheckPermission(h, req.Permission, opts)), nil
	})
}

// nodeless answers the node operations for kinds that hold no nodes.
type nodeless struct {
	kind string
}

func (n nodeless) nodesGet(*http.Request) *async.Future[reply] {
	return fail(unsupported(n.kind, "nodes"))
}

func (n nodeless) nodesAddSingle(*http.Request) *async.Future[reply] {
	return fail(unsupported(n.kind, "nodes"))
}

func (n nodeless) nodesAddMultiple(*http.Request) *async.Future[reply] {
	return fail(unsupported(n.kind, "nodes"))
}

func (n nodeless) nodesSet(*http.Request) *async.Future[reply] {
	return fail(unsupported(n.kind, "nodes"))
}

func (n nodeless) nodesDelete(*http.Request) *async.Future[reply] {
	return fail(unsupported(n.kind, "nodes"))
}

func (n nodeless) metaGet(*http.Request) *async.Future[reply] {
	return fail(unsupported(n.kind, "meta"))
}

func (n nodeless) permissionCheck(*http.Request) *async.Future[reply] {
	return fail(unsupported(n.kind, "permission checks"))
}

func (n nodeless) permissionCheckCustom(*http.Request) *async.Future[reply] {
	return fail(unsupported(n.kind, "permission checks"))
}
