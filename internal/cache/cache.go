// Package cache is the read-through entity cache in front of the engine's
// load operations.
//
// A hit returns the instance the engine already has loaded, wrapped in a
// completed future. A miss asks the engine to load it; concurrent misses for
// the same id share one load. The cache stores nothing itself: "loaded" is
// whatever the engine's registry holds, and eviction is the engine's unload.
package cache

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
)

// Entity kinds, as used in metrics labels.
const (
	KindUser  = "user"
	KindGroup = "group"
	KindTrack = "track"
)

// Config enables the cache per entity kind.
type Config struct {
	Users  bool
	Groups bool
	Tracks bool
}

// Observer is told about every lookup. It must not block.
type Observer interface {
	CacheHit(kind string)
	CacheMiss(kind string)
}

type noopObserver struct{}

func (noopObserver) CacheHit(string)  {}
func (noopObserver) CacheMiss(string) {}

// Cache resolves users, groups and tracks by id.
type Cache struct {
	engine   perms.Engine
	cfg      Config
	observer Observer

	users  singleflight.Group
	groups singleflight.Group
	tracks singleflight.Group
}

// New creates a cache over engine. observer may be nil.
func New(engine perms.Engine, cfg Config, observer Observer) *Cache {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Cache{engine: engine, cfg: cfg, observer: observer}
}

// User resolves to nil when the user has no stored data.
func (c *Cache) User(id uuid.UUID) *async.Future[*perms.User] {
	if c.cfg.Users {
		if u := c.engine.Users().GetUser(id); u != nil {
			c.observer.CacheHit(KindUser)
			return async.Completed(u)
		}
	}
	c.observer.CacheMiss(KindUser)
	return coalesce(&c.users, id.String(), func() *async.Future[*perms.User] {
		return c.engine.Users().LoadUser(id)
	})
}

// Group resolves to nil when the group does not exist.
func (c *Cache) Group(name string) *async.Future[*perms.Group] {
	if c.cfg.Groups {
		if g := c.engine.Groups().GetGroup(name); g != nil {
			c.observer.CacheHit(KindGroup)
			return async.Completed(g)
		}
	}
	c.observer.CacheMiss(KindGroup)
	return coalesce(&c.groups, name, func() *async.Future[*perms.Group] {
		return c.engine.Groups().LoadGroup(name)
	})
}

// Track resolves to nil when the track does not exist.
func (c *Cache) Track(name string) *async.Future[*perms.Track] {
	if c.cfg.Tracks {
		if t := c.engine.Tracks().GetTrack(name); t != nil {
			c.observer.CacheHit(KindTrack)
			return async.Completed(t)
		}
	}
	c.observer.CacheMiss(KindTrack)
	return coalesce(&c.tracks, name, func() *async.Future[*perms.Track] {
		return c.engine.Tracks().LoadTrack(name)
	})
}

// InvalidateUser drops a user from the engine registry so the next lookup
// reloads it. Groups and tracks leave the registry when they are deleted.
func (c *Cache) InvalidateUser(id uuid.UUID) {
	c.engine.Users().Unload(id)
}

// coalesce runs load once per key among concurrent callers.
func coalesce[T any](sf *singleflight.Group, key string, load func() *async.Future[T]) *async.Future[T] {
	return async.Go(func() (T, error) {
		v, err, _ := sf.Do(key, func() (any, error) {
			return load().Await(context.Background())
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	})
}
