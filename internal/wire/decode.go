package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/LuckPerms/rest-api/internal/perms"
)

// ErrMalformed marks a body that does not parse or lacks a required field.
var ErrMalformed = errors.New("malformed request")

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// unmarshal decodes data into v. Unknown fields are ignored.
func unmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return malformed(errors.New("empty body"))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return malformed(err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}

// DecodeContextSet accepts {"key": "value"} and {"key": ["v1", "v2"]} forms,
// mixed freely within one object.
func DecodeContextSet(data []byte) (perms.ContextSet, error) {
	if isNull(data) {
		return perms.ContextSet{}, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return perms.ContextSet{}, malformed(fmt.Errorf("context: %w", err))
	}

	b := perms.NewContextBuilder()
	for k, v := range raw {
		var single string
		if err := json.Unmarshal(v, &single); err == nil {
			b.Add(k, single)
			continue
		}
		var many []string
		if err := json.Unmarshal(v, &many); err != nil {
			return perms.ContextSet{}, malformed(fmt.Errorf("context %q: want a string or an array of strings", k))
		}
		for _, s := range many {
			b.Add(k, s)
		}
	}
	set, err := b.Build()
	if err != nil {
		return perms.ContextSet{}, malformed(err)
	}
	return set, nil
}

type nodeRequest struct {
	Key     *string         `json:"key"`
	Value   *bool           `json:"value"`
	Context json.RawMessage `json:"context"`
	Expiry  *int64          `json:"expiry"`
}

func (r *nodeRequest) toNode() (perms.Node, error) {
	if err := validation.ValidateStruct(r,
		validation.Field(&r.Key, validation.Required),
	); err != nil {
		return perms.Node{}, malformed(err)
	}
	n, err := perms.NewNode(*r.Key)
	if err != nil {
		return perms.Node{}, malformed(err)
	}
	if r.Value != nil {
		n.Value = *r.Value
	}
	ctx, err := DecodeContextSet(r.Context)
	if err != nil {
		return perms.Node{}, err
	}
	n = n.WithContext(ctx)
	if r.Expiry != nil {
		n = n.WithExpiry(time.Unix(*r.Expiry, 0))
	}
	return n, nil
}

// DecodeNode reads {key, value?, context?, expiry?}. Value defaults to true
// and a missing expiry makes the node permanent.
func DecodeNode(data []byte) (perms.Node, error) {
	var req nodeRequest
	if err := unmarshal(data, &req); err != nil {
		return perms.Node{}, err
	}
	return req.toNode()
}

// DecodeNodes reads a JSON array of nodes.
func DecodeNodes(data []byte) ([]perms.Node, error) {
	var reqs []nodeRequest
	if err := unmarshal(data, &reqs); err != nil {
		return nil, err
	}
	out := make([]perms.Node, 0, len(reqs))
	for i := range reqs {
		n, err := reqs[i].toNode()
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}

type queryOptionsRequest struct {
	Mode     *string         `json:"mode"`
	Flags    []string        `json:"flags"`
	Contexts json.RawMessage `json:"contexts"`
	Context  json.RawMessage `json:"context"`
}

// decodeQueryOptions returns nil when the object sets none of its fields,
// so the holder's own options apply.
func decodeQueryOptions(raw json.RawMessage) (*perms.QueryOptions, error) {
	if isNull(raw) {
		return nil, nil
	}
	var req queryOptionsRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, malformed(fmt.Errorf("queryOptions: %w", err))
	}
	ctxRaw := req.Contexts
	if isNull(ctxRaw) {
		ctxRaw = req.Context
	}
	if req.Mode == nil && req.Flags == nil && isNull(ctxRaw) {
		return nil, nil
	}

	opts := perms.DefaultQueryOptions()
	if req.Mode != nil {
		mode, err := perms.ParseQueryMode(*req.Mode)
		if err != nil {
			return nil, malformed(err)
		}
		opts.Mode = mode
	}
	if req.Flags != nil {
		flags := make([]perms.Flag, 0, len(req.Flags))
		for _, s := range req.Flags {
			f, err := perms.ParseFlag(s)
			if err != nil {
				return nil, malformed(err)
			}
			flags = append(flags, f)
		}
		opts.Flags = perms.NewFlagSet(flags...)
	}
	ctx, err := DecodeContextSet(ctxRaw)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return &opts, nil
}

// PermissionCheckRequest is the body of a custom permission check.
type PermissionCheckRequest struct {
	Permission string
	// QueryOptions is nil when the caller supplied none.
	QueryOptions *perms.QueryOptions
}

// DecodePermissionCheck reads {permission, queryOptions?}.
func DecodePermissionCheck(data []byte) (PermissionCheckRequest, error) {
	var req struct {
		Permission   string          `json:"permission"`
		QueryOptions json.RawMessage `json:"queryOptions"`
	}
	if err := unmarshal(data, &req); err != nil {
		return PermissionCheckRequest{}, err
	}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Permission, validation.Required),
	); err != nil {
		return PermissionCheckRequest{}, malformed(err)
	}
	opts, err := decodeQueryOptions(req.QueryOptions)
	if err != nil {
		return PermissionCheckRequest{}, err
	}
	return PermissionCheckRequest{Permission: req.Permission, QueryOptions: opts}, nil
}

// TrackMoveRequest is the body of a promote or demote call.
type TrackMoveRequest struct {
	Track   string
	Context perms.ContextSet
}

// DecodeTrackMove reads {track, context?}.
func DecodeTrackMove(data []byte) (TrackMoveRequest, error) {
	var req struct {
		Track   string          `json:"track"`
		Context json.RawMessage `json:"context"`
	}
	if err := unmarshal(data, &req); err != nil {
		return TrackMoveRequest{}, err
	}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Track, validation.Required),
	); err != nil {
		return TrackMoveRequest{}, malformed(err)
	}
	ctx, err := DecodeContextSet(req.Context)
	if err != nil {
		return TrackMoveRequest{}, err
	}
	return TrackMoveRequest{Track: req.Track, Context: ctx}, nil
}

// CreateUserRequest is the body of POST /user.
type CreateUserRequest struct {
	UniqueID uuid.UUID
	Username string
}

// DecodeCreateUser reads {uniqueId, username?}.
func DecodeCreateUser(data []byte) (CreateUserRequest, error) {
	var req struct {
		UniqueID *uuid.UUID `json:"uniqueId"`
		Username string     `json:"username"`
	}
	if err := unmarshal(data, &req); err != nil {
		return CreateUserRequest{}, err
	}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.UniqueID, validation.Required),
	); err != nil {
		return CreateUserRequest{}, malformed(err)
	}
	return CreateUserRequest{UniqueID: *req.UniqueID, Username: req.Username}, nil
}

// DecodeUpdateUser reads {username} and returns the new username.
func DecodeUpdateUser(data []byte) (string, error) {
	var req struct {
		Username string `json:"username"`
	}
	if err := unmarshal(data, &req); err != nil {
		return "", err
	}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Username, validation.Required),
	); err != nil {
		return "", malformed(err)
	}
	return req.Username, nil
}

// DecodeName reads {name}, the body of POST /group and POST /track.
func DecodeName(data []byte) (string, error) {
	var req struct {
		Name string `json:"name"`
	}
	if err := unmarshal(data, &req); err != nil {
		return "", err
	}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Name, validation.Required),
	); err != nil {
		return "", malformed(err)
	}
	return req.Name, nil
}

// DecodeTrackUpdate reads {groups}, the full replacement group list.
func DecodeTrackUpdate(data []byte) ([]string, error) {
	var req struct {
		Groups *[]string `json:"groups"`
	}
	if err := unmarshal(data, &req); err != nil {
		return nil, err
	}
	if req.Groups == nil {
		return nil, malformed(errors.New("groups: cannot be blank"))
	}
	return *req.Groups, nil
}

// CustomMessage is the body of POST /messaging/custom.
type CustomMessage struct {
	ChannelID string
	Payload   string
}

// DecodeCustomMessage reads {channelId, payload}.
func DecodeCustomMessage(data []byte) (CustomMessage, error) {
	var req struct {
		ChannelID string  `json:"channelId"`
		Payload   *string `json:"payload"`
	}
	if err := unmarshal(data, &req); err != nil {
		return CustomMessage{}, err
	}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.ChannelID, validation.Required),
		validation.Field(&req.Payload, validation.NotNil),
	); err != nil {
		return CustomMessage{}, malformed(err)
	}
	return CustomMessage{ChannelID: req.ChannelID, Payload: *req.Payload}, nil
}

type actionSourceRequest struct {
	UniqueID *uuid.UUID `json:"uniqueId"`
	Name     string     `json:"name"`
}

func (s actionSourceRequest) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.UniqueID, validation.Required),
		validation.Field(&s.Name, validation.Required),
	)
}

type actionTargetRequest struct {
	UniqueID *uuid.UUID `json:"uniqueId"`
	Name     string     `json:"name"`
	Type     string     `json:"type"`
}

func (t actionTargetRequest) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Name, validation.Required),
		validation.Field(&t.Type, validation.Required),
	)
}

// DecodeAction reads an action submitted to the log. A missing timestamp
// means now.
func DecodeAction(data []byte, now time.Time) (perms.Action, error) {
	var req struct {
		Timestamp   *int64               `json:"timestamp"`
		Source      *actionSourceRequest `json:"source"`
		Target      *actionTargetRequest `json:"target"`
		Description string               `json:"description"`
	}
	if err := unmarshal(data, &req); err != nil {
		return perms.Action{}, err
	}
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.Source, validation.Required),
		validation.Field(&req.Target, validation.Required),
		validation.Field(&req.Description, validation.Required),
	); err != nil {
		return perms.Action{}, malformed(err)
	}

	targetType, err := perms.ParseTargetType(req.Target.Type)
	if err != nil {
		return perms.Action{}, malformed(err)
	}
	ts := now
	if req.Timestamp != nil {
		ts = time.Unix(*req.Timestamp, 0)
	}
	return perms.Action{
		Timestamp: ts.UTC(),
		Source:    perms.ActionSource{UniqueID: *req.Source.UniqueID, Name: req.Source.Name},
		Target: perms.ActionTarget{
			UniqueID: req.Target.UniqueID,
			Name:     strings.TrimSpace(req.Target.Name),
			Type:     targetType,
		},
		Description: req.Description,
	}, nil
}
