package perms

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TargetType is the kind of entity an action acted upon.
type TargetType string

// Target types.
const (
	TargetUser  TargetType = "user"
	TargetGroup TargetType = "group"
	TargetTrack TargetType = "track"
)

// ParseTargetType parses a target type case-insensitively.
func ParseTargetType(s string) (TargetType, error) {
	switch t := TargetType(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetUser, TargetGroup, TargetTrack:
		return t, nil
	default:
		return "", fmt.Errorf("%w: target type %q", ErrUnknownEnum, s)
	}
}

// ActionSource identifies who performed an action.
type ActionSource struct {
	UniqueID uuid.UUID
	Name     string
}

// ActionTarget identifies what an action was performed on.
type ActionTarget struct {
	// UniqueID is set for user targets only.
	UniqueID *uuid.UUID
	Name     string
	Type     TargetType
}

// Action is an immutable audit-log record.
type Action struct {
	Timestamp   time.Time
	Source      ActionSource
	Target      ActionTarget
	Description string
}

type filterKind int

const (
	filterAny filterKind = iota
	filterSource
	filterUser
	filterGroup
	filterTrack
	filterSearch
)

// ActionFilter selects actions from the log.
type ActionFilter struct {
	kind     filterKind
	uniqueID uuid.UUID
	value    string
}

// AnyAction matches every action.
func AnyAction() ActionFilter { return ActionFilter{kind: filterAny} }

// ActionsBySource matches actions performed by id.
func ActionsBySource(id uuid.UUID) ActionFilter { return ActionFilter{kind: filterSource, uniqueID: id} }

// ActionsOnUser matches actions targeting the user id.
func ActionsOnUser(id uuid.UUID) ActionFilter { return ActionFilter{kind: filterUser, uniqueID: id} }

// ActionsOnGroup matches actions targeting the named group.
func ActionsOnGroup(name string) ActionFilter {
	return ActionFilter{kind: filterGroup, value: strings.ToLower(name)}
}

// ActionsOnTrack matches actions targeting the named track.
func ActionsOnTrack(name string) ActionFilter {
	return ActionFilter{kind: filterTrack, value: strings.ToLower(name)}
}

// ActionsMatching matches actions whose source, target or description
// contain query, case-insensitively.
func ActionsMatching(query string) ActionFilter {
	return ActionFilter{kind: filterSearch, value: strings.ToLower(query)}
}

// Matches reports whether a passes the filter.
func (f ActionFilter) Matches(a Action) bool {
	switch f.kind {
	case filterSource:
		return a.Source.UniqueID == f.uniqueID
	case filterUser:
		return a.Target.Type == TargetUser && a.Target.UniqueID != nil && *a.Target.UniqueID == f.uniqueID
	case filterGroup:
		return a.Target.Type == TargetGroup && strings.EqualFold(a.Target.Name, f.value)
	case filterTrack:
		return a.Target.Type == TargetTrack && strings.EqualFold(a.Target.Name, f.value)
	case filterSearch:
		return strings.Contains(strings.ToLower(a.Source.Name), f.value) ||
			strings.Contains(strings.ToLower(a.Target.Name), f.value) ||
			strings.Contains(strings.ToLower(a.Description), f.value)
	default:
		return true
	}
}

// ActionPage is one page of the action log.
type ActionPage struct {
	Entries     []Action
	OverallSize int
}
