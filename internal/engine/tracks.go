package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
)

type trackManager struct {
	e *Engine
}

var _ perms.TrackManager = (*trackManager)(nil)

func (m *trackManager) CreateAndLoadTrack(name string) *async.Future[*perms.Track] {
	return run(m.e, "create track", func(ctx context.Context) (*perms.Track, error) {
		n, err := perms.NormalizeName(name)
		if err != nil {
			return nil, err
		}
		if err := m.e.repo.CreateTrack(ctx, n); err != nil {
			return nil, err
		}
		return m.load(ctx, n)
	})
}

func (m *trackManager) LoadTrack(name string) *async.Future[*perms.Track] {
	return run(m.e, "load track", func(ctx context.Context) (*perms.Track, error) {
		n, err := perms.NormalizeName(name)
		if err != nil {
			return nil, nil
		}
		return m.load(ctx, n)
	})
}

func (m *trackManager) load(ctx context.Context, name string) (*perms.Track, error) {
	groups, found, err := m.e.repo.LoadTrack(ctx, name)
	if err != nil {
		return nil, err
	}

	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	if !found {
		delete(m.e.tracks, name)
		return nil, nil
	}
	t, ok := m.e.tracks[name]
	if !ok {
		t = perms.NewTrack(name)
		m.e.tracks[name] = t
	}
	t.SetGroups(groups)
	return t, nil
}

func (m *trackManager) GetTrack(name string) *perms.Track {
	n, err := perms.NormalizeName(name)
	if err != nil {
		return nil
	}
	m.e.mu.RLock()
	defer m.e.mu.RUnlock()
	return m.e.tracks[n]
}

func (m *trackManager) IsLoaded(name string) bool {
	return m.GetTrack(name) != nil
}

func (m *trackManager) LoadAllTracks() *async.Future[struct{}] {
	return run(m.e, "load all tracks", func(ctx context.Context) (struct{}, error) {
		names, err := m.e.repo.TrackNames(ctx)
		if err != nil {
			return struct{}{}, err
		}
		keep := make(map[string]bool, len(names))
		for _, name := range names {
			keep[name] = true
			if _, err := m.load(ctx, name); err != nil {
				return struct{}{}, fmt.Errorf("loading track %s: %w", name, err)
			}
		}

		m.e.mu.Lock()
		for name := range m.e.tracks {
			if !keep[name] {
				delete(m.e.tracks, name)
			}
		}
		m.e.mu.Unlock()
		return struct{}{}, nil
	})
}

func (m *trackManager) LoadedTracks() []*perms.Track {
	m.e.mu.RLock()
	out := make([]*perms.Track, 0, len(m.e.tracks))
	for _, t := range m.e.tracks {
		out = append(out, t)
	}
	m.e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (m *trackManager) SaveTrack(t *perms.Track) *async.Future[struct{}] {
	return run(m.e, "save track", func(ctx context.Context) (struct{}, error) {
		lock := m.e.saveLock("track/" + t.Name())
		lock.Lock()
		defer lock.Unlock()
		return struct{}{}, m.e.repo.SaveTrack(ctx, t.Name(), t.Groups())
	})
}

func (m *trackManager) DeleteTrack(t *perms.Track) *async.Future[struct{}] {
	return run(m.e, "delete track", func(ctx context.Context) (struct{}, error) {
		if err := m.e.repo.DeleteTrack(ctx, t.Name()); err != nil {
			return struct{}{}, err
		}
		m.e.mu.Lock()
		delete(m.e.tracks, t.Name())
		m.e.mu.Unlock()
		return struct{}{}, nil
	})
}

// trackNodes returns the user's live inheritance nodes in exactly ctx whose
// group is on t.
func (m *trackManager) trackNodes(u *perms.User, t *perms.Track, ctx perms.ContextSet) []perms.Node {
	now := m.e.now()
	var out []perms.Node
	for _, n := range u.Nodes() {
		g, ok := n.GroupName()
		if !ok || !n.Value || n.HasExpired(now) || !n.Context.Equal(ctx) {
			continue
		}
		if t.ContainsGroup(g) {
			out = append(out, n)
		}
	}
	return out
}

// Promote moves u one group up t within ctx.
func (m *trackManager) Promote(u *perms.User, t *perms.Track, ctx perms.ContextSet) (perms.PromotionResult, error) {
	groups := t.Groups()
	if len(groups) <= 1 {
		return perms.PromotionResult{Status: perms.PromotionMalformedTrack}, nil
	}

	current := m.trackNodes(u, t, ctx)
	switch len(current) {
	case 0:
		first := groups[0]
		if m.e.groupManager.GetGroup(first) == nil {
			return perms.PromotionResult{Status: perms.PromotionMalformedTrack, GroupTo: &first}, nil
		}
		u.Data().Add(perms.InheritanceNode(first).WithContext(ctx), perms.MergeNone)
		return perms.PromotionResult{Status: perms.PromotionAddedToFirstGroup, GroupTo: &first}, nil
	case 1:
	default:
		return perms.PromotionResult{Status: perms.PromotionAmbiguousCall}, nil
	}

	old := current[0]
	from, _ := old.GroupName()
	next, ok := neighbour(groups, from, 1)
	if !ok {
		return perms.PromotionResult{Status: perms.PromotionEndOfTrack, GroupFrom: &from}, nil
	}
	if m.e.groupManager.GetGroup(next) == nil {
		return perms.PromotionResult{Status: perms.PromotionMalformedTrack, GroupFrom: &from, GroupTo: &next}, nil
	}

	u.Data().Remove(old)
	u.Data().Add(perms.InheritanceNode(next).WithContext(ctx), perms.MergeNone)
	if ctx.IsEmpty() && u.StoredPrimaryGroup() == from {
		u.SetStoredPrimaryGroup(next)
	}
	return perms.PromotionResult{Status: perms.PromotionSuccess, GroupFrom: &from, GroupTo: &next}, nil
}

// Demote moves u one group down t within ctx, removing it from the track
// entirely when it is already in the first group.
func (m *trackManager) Demote(u *perms.User, t *perms.Track, ctx perms.ContextSet) (perms.DemotionResult, error) {
	groups := t.Groups()
	if len(groups) <= 1 {
		return perms.DemotionResult{Status: perms.DemotionMalformedTrack}, nil
	}

	current := m.trackNodes(u, t, ctx)
	switch len(current) {
	case 0:
		return perms.DemotionResult{Status: perms.DemotionNotOnTrack}, nil
	case 1:
	default:
		return perms.DemotionResult{Status: perms.DemotionAmbiguousCall}, nil
	}

	old := current[0]
	from, _ := old.GroupName()
	prev, ok := neighbour(groups, from, -1)
	if !ok {
		u.Data().Remove(old)
		if ctx.IsEmpty() && u.StoredPrimaryGroup() == from {
			u.SetStoredPrimaryGroup(perms.DefaultGroup)
		}
		giveDefaultIfNeeded(u)
		return perms.DemotionResult{Status: perms.DemotionRemovedFromFirstGroup, GroupFrom: &from}, nil
	}
	if m.e.groupManager.GetGroup(prev) == nil {
		return perms.DemotionResult{Status: perms.DemotionMalformedTrack, GroupFrom: &from, GroupTo: &prev}, nil
	}

	u.Data().Remove(old)
	u.Data().Add(perms.InheritanceNode(prev).WithContext(ctx), perms.MergeNone)
	if ctx.IsEmpty() && u.StoredPrimaryGroup() == from {
		u.SetStoredPrimaryGroup(prev)
	}
	return perms.DemotionResult{Status: perms.DemotionSuccess, GroupFrom: &from, GroupTo: &prev}, nil
}

// neighbour returns the group step positions away from group on the track.
func neighbour(groups []string, group string, step int) (string, bool) {
	for i, g := range groups {
		if g != group {
			continue
		}
		j := i + step
		if j < 0 || j >= len(groups) {
			return "", false
		}
		return groups[j], true
	}
	return "", false
}
