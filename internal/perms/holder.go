package perms

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// HolderType distinguishes users from groups.
type HolderType string

// Holder types.
const (
	HolderUser  HolderType = "user"
	HolderGroup HolderType = "group"
)

// Holder is an entity that owns permission nodes.
type Holder interface {
	// Identifier is the user UUID string or the group name.
	Identifier() string
	Type() HolderType
	Data() *NodeMap
	Nodes() []Node
	QueryOptions() QueryOptions
}

// DefaultGroup is the group every new user inherits.
const DefaultGroup = "default"

var namePattern = regexp.MustCompile(`^[a-z0-9_\-]+$`)

// NormalizeName lower-cases a group or track name and validates it.
func NormalizeName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || !namePattern.MatchString(n) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return n, nil
}

// User is a player known to the engine.
type User struct {
	uniqueID uuid.UUID

	mu           sync.RWMutex
	username     string
	primaryGroup string

	data *NodeMap
}

// NewUser returns a user with the given nodes.
func NewUser(id uuid.UUID, username string, nodes ...Node) *User {
	return &User{
		uniqueID:     id,
		username:     username,
		primaryGroup: DefaultGroup,
		data:         NewNodeMap(nodes...),
	}
}

func (u *User) UniqueID() uuid.UUID        { return u.uniqueID }
func (u *User) Identifier() string         { return u.uniqueID.String() }
func (u *User) Type() HolderType           { return HolderUser }
func (u *User) Data() *NodeMap             { return u.data }
func (u *User) Nodes() []Node              { return u.data.Nodes() }
func (u *User) QueryOptions() QueryOptions { return DefaultQueryOptions() }

// Username returns the last known username, possibly empty.
func (u *User) Username() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.username
}

// SetUsername updates the cached username.
func (u *User) SetUsername(name string) {
	u.mu.Lock()
	u.username = name
	u.mu.Unlock()
}

// StoredPrimaryGroup returns the primary group recorded in storage.
func (u *User) StoredPrimaryGroup() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.primaryGroup
}

// SetStoredPrimaryGroup records the primary group.
func (u *User) SetStoredPrimaryGroup(group string) {
	u.mu.Lock()
	u.primaryGroup = group
	u.mu.Unlock()
}

// Group is a named holder other holders can inherit from.
type Group struct {
	name string
	data *NodeMap
}

// NewGroup returns a group with the given nodes.
func NewGroup(name string, nodes ...Node) *Group {
	return &Group{name: name, data: NewNodeMap(nodes...)}
}

func (g *Group) Name() string               { return g.name }
func (g *Group) Identifier() string         { return g.name }
func (g *Group) Type() HolderType           { return HolderGroup }
func (g *Group) Data() *NodeMap             { return g.data }
func (g *Group) Nodes() []Node              { return g.data.Nodes() }
func (g *Group) QueryOptions() QueryOptions { return DefaultQueryOptions() }

// Weight returns the highest weight node value, or 0.
func (g *Group) Weight() int {
	weight, found := 0, false
	for _, n := range g.Nodes() {
		if w, ok := n.Weight(); ok && n.Value && (!found || w > weight) {
			weight, found = w, true
		}
	}
	return weight
}

// DisplayName returns the display name node value, if any.
func (g *Group) DisplayName() (string, bool) {
	for _, n := range g.Nodes() {
		if d, ok := n.DisplayName(); ok && n.Value && n.Context.IsEmpty() {
			return d, true
		}
	}
	return "", false
}

// Track is an ordered list of group names.
type Track struct {
	name string

	mu     sync.RWMutex
	groups []string
}

// NewTrack returns a track with the given groups.
func NewTrack(name string, groups ...string) *Track {
	return &Track{name: name, groups: slices.Clone(groups)}
}

// Name returns the track name.
func (t *Track) Name() string { return t.name }

// Groups returns the ordered group names.
func (t *Track) Groups() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.groups)
}

// SetGroups replaces the whole group list.
func (t *Track) SetGroups(groups []string) {
	t.mu.Lock()
	t.groups = slices.Clone(groups)
	t.mu.Unlock()
}

// ContainsGroup reports whether group is on the track.
func (t *Track) ContainsGroup(group string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Contains(t.groups, group)
}
