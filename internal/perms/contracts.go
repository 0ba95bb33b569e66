package perms

import (
	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/async"
)

// PlayerSaveResult reports what SavePlayerData changed.
type PlayerSaveResult struct {
	// CleanInsert is set when the player had no stored data before.
	CleanInsert bool
	// UsernameUpdated is set when the stored username changed.
	UsernameUpdated bool
	// OtherUniqueIDs lists other players that previously used the username.
	OtherUniqueIDs []uuid.UUID
}

// UserManager loads, saves and searches users.
type UserManager interface {
	SavePlayerData(id uuid.UUID, username string) *async.Future[PlayerSaveResult]
	// LoadUser resolves to nil when the user has no stored data.
	LoadUser(id uuid.UUID) *async.Future[*User]
	GetUser(id uuid.UUID) *User
	IsLoaded(id uuid.UUID) bool
	SaveUser(u *User) *async.Future[struct{}]
	DeletePlayerData(id uuid.UUID) *async.Future[bool]
	UniqueUsers() *async.Future[[]uuid.UUID]
	SearchAll(m NodeMatcher) *async.Future[map[uuid.UUID][]Node]
	// LookupUniqueID resolves to uuid.Nil when the username is unknown.
	LookupUniqueID(username string) *async.Future[uuid.UUID]
	// LookupUsername resolves to "" when the id is unknown.
	LookupUsername(id uuid.UUID) *async.Future[string]
	Unload(id uuid.UUID)
}

// GroupManager loads, saves and searches groups.
type GroupManager interface {
	CreateAndLoadGroup(name string) *async.Future[*Group]
	// LoadGroup resolves to nil when the group does not exist.
	LoadGroup(name string) *async.Future[*Group]
	GetGroup(name string) *Group
	IsLoaded(name string) bool
	LoadAllGroups() *async.Future[struct{}]
	LoadedGroups() []*Group
	SaveGroup(g *Group) *async.Future[struct{}]
	DeleteGroup(g *Group) *async.Future[struct{}]
	SearchAll(m NodeMatcher) *async.Future[map[string][]Node]
}

// TrackManager loads, saves and walks tracks.
type TrackManager interface {
	CreateAndLoadTrack(name string) *async.Future[*Track]
	// LoadTrack resolves to nil when the track does not exist.
	LoadTrack(name string) *async.Future[*Track]
	GetTrack(name string) *Track
	IsLoaded(name string) bool
	LoadAllTracks() *async.Future[struct{}]
	LoadedTracks() []*Track
	SaveTrack(t *Track) *async.Future[struct{}]
	DeleteTrack(t *Track) *async.Future[struct{}]
	// Promote and Demote mutate the user's nodes but do not save them.
	Promote(u *User, t *Track, ctx ContextSet) (PromotionResult, error)
	Demote(u *User, t *Track, ctx ContextSet) (DemotionResult, error)
}

// ActionLogger is the append-only audit log.
type ActionLogger interface {
	Submit(a Action) *async.Future[struct{}]
	QueryActions(f ActionFilter) *async.Future[[]Action]
	QueryActionsPage(f ActionFilter, pageSize, pageNumber int) *async.Future[ActionPage]
}

// Subscription is a live event handler registration.
type Subscription interface {
	Close()
}

// EventBus delivers engine events to subscribers.
type EventBus interface {
	Subscribe(kind EventKind, handler func(Event)) Subscription
	Publish(e Event)
}

// MessagingService propagates changes to other instances sharing storage.
type MessagingService interface {
	PushUpdate() *async.Future[struct{}]
	PushUserUpdate(u *User) *async.Future[struct{}]
	SendCustomMessage(channelID, payload string) *async.Future[struct{}]
}

// Calculator computes permission and meta data for holders.
type Calculator interface {
	CheckPermission(h Holder, permission string, opts QueryOptions) PermissionCheck
	MetaData(h Holder, opts QueryOptions) MetaData
	// InheritedGroups returns the names of every group h inherits, in resolution order.
	InheritedGroups(h Holder, opts QueryOptions) []string
}

// Engine is the permission engine the gateway fronts.
type Engine interface {
	Users() UserManager
	Groups() GroupManager
	Tracks() TrackManager
	Actions() ActionLogger
	Events() EventBus
	Calculator() Calculator
	// Messaging returns nil when no messaging service is configured.
	Messaging() MessagingService
}
