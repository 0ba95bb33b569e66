package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/async"
	"github.com/LuckPerms/rest-api/internal/perms"
)

type userManager struct {
	e *Engine
}

var _ perms.UserManager = (*userManager)(nil)

func (m *userManager) SavePlayerData(id uuid.UUID, username string) *async.Future[perms.PlayerSaveResult] {
	return run(m.e, "save player data", func(ctx context.Context) (perms.PlayerSaveResult, error) {
		res, err := m.e.repo.SavePlayerData(ctx, id, username)
		if err != nil {
			return res, err
		}
		if u := m.GetUser(id); u != nil {
			u.SetUsername(username)
		}
		return res, nil
	})
}

// LoadUser reads the user from storage into the registry, refreshing the
// instance already loaded if there is one.
func (m *userManager) LoadUser(id uuid.UUID) *async.Future[*perms.User] {
	return run(m.e, "load user", func(ctx context.Context) (*perms.User, error) {
		return m.load(ctx, id)
	})
}

func (m *userManager) load(ctx context.Context, id uuid.UUID) (*perms.User, error) {
	rec, found, err := m.e.repo.LoadPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	m.e.mu.Lock()
	defer m.e.mu.Unlock()

	u, ok := m.e.users[id.String()]
	if !ok {
		u = perms.NewUser(id, rec.Username)
		m.e.users[id.String()] = u
	}
	u.SetUsername(rec.Username)
	u.SetStoredPrimaryGroup(rec.PrimaryGroup)
	u.Data().Replace(rec.Nodes)
	giveDefaultIfNeeded(u)
	return u, nil
}

func (m *userManager) GetUser(id uuid.UUID) *perms.User {
	m.e.mu.RLock()
	defer m.e.mu.RUnlock()
	return m.e.users[id.String()]
}

func (m *userManager) IsLoaded(id uuid.UUID) bool {
	return m.GetUser(id) != nil
}

func (m *userManager) SaveUser(u *perms.User) *async.Future[struct{}] {
	return run(m.e, "save user", func(ctx context.Context) (struct{}, error) {
		lock := m.e.saveLock("user/" + u.Identifier())
		lock.Lock()
		defer lock.Unlock()

		giveDefaultIfNeeded(u)
		return struct{}{}, m.e.repo.SavePlayer(ctx, PlayerRecord{
			UniqueID:     u.UniqueID(),
			Username:     u.Username(),
			PrimaryGroup: u.StoredPrimaryGroup(),
			Nodes:        m.e.liveNodes(u.Data()),
		})
	})
}

func (m *userManager) DeletePlayerData(id uuid.UUID) *async.Future[bool] {
	return run(m.e, "delete player data", func(ctx context.Context) (bool, error) {
		deleted, err := m.e.repo.DeletePlayer(ctx, id)
		if err != nil {
			return false, err
		}
		m.Unload(id)
		return deleted, nil
	})
}

func (m *userManager) UniqueUsers() *async.Future[[]uuid.UUID] {
	return run(m.e, "list users", m.e.repo.UniqueUsers)
}

func (m *userManager) SearchAll(matcher perms.NodeMatcher) *async.Future[map[uuid.UUID][]perms.Node] {
	return run(m.e, "search users", func(ctx context.Context) (map[uuid.UUID][]perms.Node, error) {
		stored, err := m.e.repo.HolderNodes(ctx, perms.HolderUser)
		if err != nil {
			return nil, err
		}
		out := make(map[uuid.UUID][]perms.Node)
		for holderID, nodes := range stored {
			id, err := uuid.Parse(holderID)
			if err != nil {
				continue
			}
			if matched := perms.MatchNodes(nodes, matcher); len(matched) > 0 {
				out[id] = matched
			}
		}
		return out, nil
	})
}

func (m *userManager) LookupUniqueID(username string) *async.Future[uuid.UUID] {
	return run(m.e, "lookup unique id", func(ctx context.Context) (uuid.UUID, error) {
		return m.e.repo.LookupUniqueID(ctx, strings.TrimSpace(username))
	})
}

func (m *userManager) LookupUsername(id uuid.UUID) *async.Future[string] {
	return run(m.e, "lookup username", func(ctx context.Context) (string, error) {
		return m.e.repo.LookupUsername(ctx, id)
	})
}

func (m *userManager) Unload(id uuid.UUID) {
	m.e.mu.Lock()
	delete(m.e.users, id.String())
	m.e.mu.Unlock()
}

func (m *userManager) loaded() []*perms.User {
	m.e.mu.RLock()
	defer m.e.mu.RUnlock()
	out := make([]*perms.User, 0, len(m.e.users))
	for _, u := range m.e.users {
		out = append(out, u)
	}
	return out
}

// giveDefaultIfNeeded makes sure every user is a member of at least one group
// in the global context, and that the stored primary group is one of them.
func giveDefaultIfNeeded(u *perms.User) {
	var global []string
	for _, n := range u.Nodes() {
		if g, ok := n.GroupName(); ok && n.Value && n.Context.IsEmpty() && !n.HasExpiry() {
			global = append(global, g)
		}
	}
	if len(global) == 0 {
		u.Data().Add(perms.InheritanceNode(perms.DefaultGroup), perms.MergeNone)
		u.SetStoredPrimaryGroup(perms.DefaultGroup)
		return
	}
	primary := u.StoredPrimaryGroup()
	for _, g := range global {
		if g == primary {
			return
		}
	}
	u.SetStoredPrimaryGroup(global[0])
}
