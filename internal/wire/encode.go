package wire

import (
	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/perms"
)

// UserSearchResult is one user matched by a node search.
type UserSearchResult struct {
	UniqueID uuid.UUID
	Results  []perms.Node
}

// GroupSearchResult is one group matched by a node search.
type GroupSearchResult struct {
	Name    string
	Results []perms.Node
}

// Lookup answers a username or unique id lookup. Exactly one field is set.
type Lookup struct {
	UniqueID *uuid.UUID
	Username *string
}

// Health is the gateway health report.
type Health struct {
	Healthy bool
	Details map[string]string
}

type nodeModel struct {
	Key     string         `json:"key"`
	Type    perms.NodeType `json:"type"`
	Value   bool           `json:"value"`
	Context map[string]any `json:"context"`
	Expiry  *int64         `json:"expiry,omitempty"`
}

type metaModel struct {
	Meta         map[string]string `json:"meta"`
	Prefix       *string           `json:"prefix,omitempty"`
	Suffix       *string           `json:"suffix,omitempty"`
	PrimaryGroup *string           `json:"primaryGroup,omitempty"`
}

type userModel struct {
	UniqueID     uuid.UUID   `json:"uniqueId"`
	Username     string      `json:"username,omitempty"`
	ParentGroups []string    `json:"parentGroups"`
	Nodes        []nodeModel `json:"nodes"`
	Metadata     metaModel   `json:"metadata"`
}

type groupModel struct {
	Name        string      `json:"name"`
	DisplayName *string     `json:"displayName,omitempty"`
	Weight      *int        `json:"weight,omitempty"`
	Nodes       []nodeModel `json:"nodes"`
	Metadata    metaModel   `json:"metadata"`
}

type trackModel struct {
	Name   string   `json:"name"`
	Groups []string `json:"groups"`
}

type permissionCheckModel struct {
	Result perms.Tristate `json:"result"`
	Node   *nodeModel     `json:"node,omitempty"`
}

type trackResultModel struct {
	Success   bool    `json:"success"`
	Status    string  `json:"status"`
	GroupFrom *string `json:"groupFrom,omitempty"`
	GroupTo   *string `json:"groupTo,omitempty"`
}

type actionSourceModel struct {
	UniqueID uuid.UUID `json:"uniqueId"`
	Name     string    `json:"name"`
}

type actionTargetModel struct {
	UniqueID *uuid.UUID       `json:"uniqueId,omitempty"`
	Name     string           `json:"name"`
	Type     perms.TargetType `json:"type"`
}

type actionModel struct {
	Timestamp   int64             `json:"timestamp"`
	Source      actionSourceModel `json:"source"`
	Target      actionTargetModel `json:"target"`
	Description string            `json:"description"`
}

type actionPageModel struct {
	Entries     []actionModel `json:"entries"`
	OverallSize int           `json:"overallSize"`
}

type userSearchModel struct {
	UniqueID uuid.UUID   `json:"uniqueId"`
	Results  []nodeModel `json:"results"`
}

type groupSearchModel struct {
	Name    string      `json:"name"`
	Results []nodeModel `json:"results"`
}

type lookupModel struct {
	UniqueID *uuid.UUID `json:"uniqueId,omitempty"`
	Username *string    `json:"username,omitempty"`
}

type healthModel struct {
	Healthy bool              `json:"healthy"`
	Details map[string]string `json:"details"`
}

type networkSyncModel struct {
	SyncID       uuid.UUID      `json:"syncId"`
	Type         perms.SyncType `json:"type"`
	DidSyncOccur *bool          `json:"didSyncOccur,omitempty"`
	SpecificUser *uuid.UUID     `json:"specificUserUniqueId,omitempty"`
}

type logBroadcastModel struct {
	Entry  actionModel     `json:"entry"`
	Origin perms.LogOrigin `json:"origin"`
}

type customMessageModel struct {
	ChannelID string `json:"channelId"`
	Payload   string `json:"payload"`
}

// NewDefaultRegistry returns a registry holding an encoder for every type the
// gateway writes. Holder encoders use calc for derived fields.
func NewDefaultRegistry(calc perms.Calculator) *Registry {
	r := NewRegistry()

	Register(r, func(c perms.ContextSet) any { return encodeContext(c) })
	Register(r, func(n perms.Node) any { return encodeNode(n) })
	Register(r, func(ns []perms.Node) any { return encodeNodes(ns) })
	Register(r, func(md perms.MetaData) any { return encodeMeta(md) })
	Register(r, func(u *perms.User) any { return encodeUser(calc, u) })
	Register(r, func(g *perms.Group) any { return encodeGroup(calc, g) })
	Register(r, func(t *perms.Track) any { return trackModel{Name: t.Name(), Groups: nonNil(t.Groups())} })
	Register(r, func(pc perms.PermissionCheck) any { return encodePermissionCheck(pc) })
	Register(r, func(res perms.PromotionResult) any {
		return trackResultModel{Success: res.Success(), Status: string(res.Status), GroupFrom: res.GroupFrom, GroupTo: res.GroupTo}
	})
	Register(r, func(res perms.DemotionResult) any {
		return trackResultModel{Success: res.Success(), Status: string(res.Status), GroupFrom: res.GroupFrom, GroupTo: res.GroupTo}
	})
	Register(r, func(a perms.Action) any { return encodeAction(a) })
	Register(r, func(p perms.ActionPage) any {
		entries := make([]actionModel, 0, len(p.Entries))
		for _, a := range p.Entries {
			entries = append(entries, encodeAction(a))
		}
		return actionPageModel{Entries: entries, OverallSize: p.OverallSize}
	})
	Register(r, func(results []UserSearchResult) any {
		out := make([]userSearchModel, 0, len(results))
		for _, res := range results {
			out = append(out, userSearchModel{UniqueID: res.UniqueID, Results: encodeNodes(res.Results)})
		}
		return out
	})
	Register(r, func(results []GroupSearchResult) any {
		out := make([]groupSearchModel, 0, len(results))
		for _, res := range results {
			out = append(out, groupSearchModel{Name: res.Name, Results: encodeNodes(res.Results)})
		}
		return out
	})
	Register(r, func(names []string) any { return nonNil(names) })
	Register(r, func(ids []uuid.UUID) any { return nonNil(ids) })
	Register(r, func(l Lookup) any { return lookupModel(l) })
	Register(r, func(h Health) any {
		if h.Details == nil {
			h.Details = map[string]string{}
		}
		return healthModel(h)
	})

	Register(r, func(perms.PreSync) any { return struct{}{} })
	Register(r, func(perms.PostSync) any { return struct{}{} })
	Register(r, func(e perms.PreNetworkSync) any {
		return networkSyncModel{SyncID: e.SyncID, Type: e.Type, SpecificUser: e.SpecificUser}
	})
	Register(r, func(e perms.PostNetworkSync) any {
		occurred := e.DidSyncOccur
		return networkSyncModel{SyncID: e.SyncID, Type: e.Type, DidSyncOccur: &occurred, SpecificUser: e.SpecificUser}
	})
	Register(r, func(e perms.LogBroadcast) any {
		return logBroadcastModel{Entry: encodeAction(e.Entry), Origin: e.Origin}
	})
	Register(r, func(e perms.CustomMessageReceive) any {
		return customMessageModel{ChannelID: e.ChannelID, Payload: e.Payload}
	})
	return r
}

// encodeContext writes single-valued keys as strings and the rest as arrays.
func encodeContext(c perms.ContextSet) map[string]any {
	out := make(map[string]any, c.Size())
	for _, k := range c.Keys() {
		vs := c.Values(k)
		if len(vs) == 1 {
			out[k] = vs[0]
		} else {
			out[k] = vs
		}
	}
	return out
}

func encodeNode(n perms.Node) nodeModel {
	m := nodeModel{
		Key:     n.Key,
		Type:    n.Type(),
		Value:   n.Value,
		Context: encodeContext(n.Context),
	}
	if n.Expiry != nil {
		exp := n.Expiry.Unix()
		m.Expiry = &exp
	}
	return m
}

func encodeNodes(ns []perms.Node) []nodeModel {
	out := make([]nodeModel, 0, len(ns))
	for _, n := range ns {
		out = append(out, encodeNode(n))
	}
	return out
}

// encodeMeta keeps the first value of every meta key.
func encodeMeta(md perms.MetaData) metaModel {
	meta := make(map[string]string, len(md.Meta))
	for k, vs := range md.Meta {
		if len(vs) > 0 {
			meta[k] = vs[0]
		}
	}
	return metaModel{Meta: meta, Prefix: md.Prefix, Suffix: md.Suffix, PrimaryGroup: md.PrimaryGroup}
}

func nonContextual() perms.QueryOptions {
	return perms.QueryOptions{Mode: perms.ModeNonContextual, Flags: perms.DefaultFlags()}
}

func encodeUser(calc perms.Calculator, u *perms.User) userModel {
	return userModel{
		UniqueID:     u.UniqueID(),
		Username:     u.Username(),
		ParentGroups: nonNil(calc.InheritedGroups(u, nonContextual())),
		Nodes:        encodeNodes(u.Nodes()),
		Metadata:     encodeMeta(calc.MetaData(u, u.QueryOptions())),
	}
}

func encodeGroup(calc perms.Calculator, g *perms.Group) groupModel {
	m := groupModel{
		Name:     g.Name(),
		Nodes:    encodeNodes(g.Nodes()),
		Metadata: encodeMeta(calc.MetaData(g, g.QueryOptions())),
	}
	if d, ok := g.DisplayName(); ok {
		m.DisplayName = &d
	}
	for _, n := range g.Nodes() {
		if _, ok := n.Weight(); ok && n.Value {
			w := g.Weight()
			m.Weight = &w
			break
		}
	}
	return m
}

func encodePermissionCheck(pc perms.PermissionCheck) permissionCheckModel {
	m := permissionCheckModel{Result: pc.Result}
	if pc.Node != nil {
		n := encodeNode(*pc.Node)
		m.Node = &n
	}
	return m
}

func encodeAction(a perms.Action) actionModel {
	return actionModel{
		Timestamp: a.Timestamp.Unix(),
		Source:    actionSourceModel{UniqueID: a.Source.UniqueID, Name: a.Source.Name},
		Target: actionTargetModel{
			UniqueID: a.Target.UniqueID,
			Name:     a.Target.Name,
			Type:     a.Target.Type,
		},
		Description: a.Description,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
