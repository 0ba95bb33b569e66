package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
)

type groupManager struct {
	e *Engine
}

var _ perms.GroupManager = (*groupManager)(nil)

func (m *groupManager) CreateAndLoadGroup(name string) *async.Future[*perms.Group] {
	return run(m.e, "create group", func(ctx context.Context) (*perms.Group, error) {
		n, err := perms.NormalizeName(name)
		if err != nil {
			return nil, err
		}
		if err := m.e.repo.CreateGroup(ctx, n); err != nil {
			return nil, err
		}
		return m.load(ctx, n)
	})
}

func (m *groupManager) LoadGroup(name string) *async.Future[*perms.Group] {
	return run(m.e, "load group", func(ctx context.Context) (*perms.Group, error) {
		n, err := perms.NormalizeName(name)
		if err != nil {
			return nil, nil
		}
		return m.load(ctx, n)
	})
}

func (m *groupManager) load(ctx context.Context, name string) (*perms.Group, error) {
	nodes, found, err := m.e.repo.LoadGroup(ctx, name)
	if err != nil {
		return nil, err
	}

	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	if !found {
		delete(m.e.groups, name)
		return nil, nil
	}
	g, ok := m.e.groups[name]
	if !ok {
		g = perms.NewGroup(name)
		m.e.groups[name] = g
	}
	g.Data().Replace(nodes)
	return g, nil
}

func (m *groupManager) GetGroup(name string) *perms.Group {
	n, err := perms.NormalizeName(name)
	if err != nil {
		return nil
	}
	m.e.mu.RLock()
	defer m.e.mu.RUnlock()
	return m.e.groups[n]
}

func (m *groupManager) IsLoaded(name string) bool {
	return m.GetGroup(name) != nil
}

func (m *groupManager) LoadAllGroups() *async.Future[struct{}] {
	return run(m.e, "load all groups", func(ctx context.Context) (struct{}, error) {
		names, err := m.e.repo.GroupNames(ctx)
		if err != nil {
			return struct{}{}, err
		}
		keep := make(map[string]bool, len(names))
		for _, name := range names {
			keep[name] = true
			if _, err := m.load(ctx, name); err != nil {
				return struct{}{}, fmt.Errorf("loading group %s: %w", name, err)
			}
		}

		m.e.mu.Lock()
		for name := range m.e.groups {
			if !keep[name] {
				delete(m.e.groups, name)
			}
		}
		m.e.mu.Unlock()
		return struct{}{}, nil
	})
}

func (m *groupManager) LoadedGroups() []*perms.Group {
	m.e.mu.RLock()
	out := make([]*perms.Group, 0, len(m.e.groups))
	for _, g := range m.e.groups {
		out = append(out, g)
	}
	m.e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (m *groupManager) SaveGroup(g *perms.Group) *async.Future[struct{}] {
	return run(m.e, "save group", func(ctx context.Context) (struct{}, error) {
		lock := m.e.saveLock("group/" + g.Name())
		lock.Lock()
		defer lock.Unlock()
		return struct{}{}, m.e.repo.SaveGroup(ctx, g.Name(), m.e.liveNodes(g.Data()))
	})
}

// DeleteGroup removes the group. The default group cannot be deleted.
func (m *groupManager) DeleteGroup(g *perms.Group) *async.Future[struct{}] {
	return run(m.e, "delete group", func(ctx context.Context) (struct{}, error) {
		if g.Name() == perms.DefaultGroup {
			return struct{}{}, fmt.Errorf("%w: the default group cannot be deleted", perms.ErrUnsupported)
		}
		if err := m.e.repo.DeleteGroup(ctx, g.Name()); err != nil {
			return struct{}{}, err
		}
		m.e.mu.Lock()
		delete(m.e.groups, g.Name())
		m.e.mu.Unlock()
		return struct{}{}, nil
	})
}

func (m *groupManager) SearchAll(matcher perms.NodeMatcher) *async.Future[map[string][]perms.Node] {
	return run(m.e, "search groups", func(ctx context.Context) (map[string][]perms.Node, error) {
		stored, err := m.e.repo.HolderNodes(ctx, perms.HolderGroup)
		if err != nil {
			return nil, err
		}
		out := make(map[string][]perms.Node)
		for name, nodes := range stored {
			if matched := perms.MatchNodes(nodes, matcher); len(matched) > 0 {
				out[name] = matched
			}
		}
		return out, nil
	})
}
