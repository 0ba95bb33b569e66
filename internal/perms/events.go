package perms

import (
	"fmt"

	"github.com/google/uuid"
)

// EventKind names an engine lifecycle event.
type EventKind string

// Event kinds, as used in /event/{kind}.
const (
	EventPreSync              EventKind = "pre-sync"
	EventPostSync             EventKind = "post-sync"
	EventPreNetworkSync       EventKind = "pre-network-sync"
	EventPostNetworkSync      EventKind = "post-network-sync"
	EventLogBroadcast         EventKind = "log-broadcast"
	EventCustomMessageReceive EventKind = "custom-message-receive"
)

// EventKinds lists every kind in a stable order.
var EventKinds = []EventKind{
	EventPreSync,
	EventPostSync,
	EventPreNetworkSync,
	EventPostNetworkSync,
	EventLogBroadcast,
	EventCustomMessageReceive,
}

// ParseEventKind parses a path segment into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	for _, k := range EventKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: event kind %q", ErrUnknownEnum, s)
}

// Event is a transient engine notification.
type Event interface {
	Kind() EventKind
}

// SyncType says what a network sync covers.
type SyncType string

// Sync types.
const (
	SyncFull SyncType = "full"
	SyncUser SyncType = "user"
)

// LogOrigin says where a broadcast action came from.
type LogOrigin string

// Log origins.
const (
	LogLocal  LogOrigin = "local"
	LogRemote LogOrigin = "remote"
)

// PreSync fires before the engine reloads its data from storage.
type PreSync struct{}

// PostSync fires after the reload finished.
type PostSync struct{}

// PreNetworkSync fires when a peer requested a sync.
type PreNetworkSync struct {
	SyncID       uuid.UUID
	Type         SyncType
	SpecificUser *uuid.UUID
}

// PostNetworkSync fires when a peer-requested sync completed.
type PostNetworkSync struct {
	SyncID       uuid.UUID
	Type         SyncType
	DidSyncOccur bool
	SpecificUser *uuid.UUID
}

// LogBroadcast fires when an action is submitted locally or received from a peer.
type LogBroadcast struct {
	Entry  Action
	Origin LogOrigin
}

// CustomMessageReceive fires when a custom message arrives from a peer.
type CustomMessageReceive struct {
	ChannelID string
	Payload   string
}

func (PreSync) Kind() EventKind              { return EventPreSync }
func (PostSync) Kind() EventKind             { return EventPostSync }
func (PreNetworkSync) Kind() EventKind       { return EventPreNetworkSync }
func (PostNetworkSync) Kind() EventKind      { return EventPostNetworkSync }
func (LogBroadcast) Kind() EventKind         { return EventLogBroadcast }
func (CustomMessageReceive) Kind() EventKind { return EventCustomMessageReceive }
