package perms

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NodeType classifies a node by the shape of its key.
type NodeType string

// Node types.
const (
	NodeTypePermission      NodeType = "permission"
	NodeTypeRegexPermission NodeType = "regex_permission"
	NodeTypeInheritance     NodeType = "inheritance"
	NodeTypePrefix          NodeType = "prefix"
	NodeTypeSuffix          NodeType = "suffix"
	NodeTypeMeta            NodeType = "meta"
	NodeTypeWeight          NodeType = "weight"
	NodeTypeDisplayName     NodeType = "display_name"
)

// searchableTypes are the node types accepted by the type search.
var searchableTypes = map[string]NodeType{
	"regex_permission": NodeTypeRegexPermission,
	"inheritance":      NodeTypeInheritance,
	"prefix":           NodeTypePrefix,
	"suffix":           NodeTypeSuffix,
	"meta":             NodeTypeMeta,
	"weight":           NodeTypeWeight,
	"display_name":     NodeTypeDisplayName,
}

// ParseSearchableNodeType parses a node type name case-insensitively.
func ParseSearchableNodeType(s string) (NodeType, error) {
	t, ok := searchableTypes[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: node type %q", ErrUnknownEnum, s)
	}
	return t, nil
}

// Key prefixes that determine node type.
const (
	inheritancePrefix = "group."
	prefixPrefix      = "prefix."
	suffixPrefix      = "suffix."
	metaPrefix        = "meta."
	weightPrefix      = "weight."
	displayNamePrefix = "displayname."
	regexPrefix       = "r="
)

// Node is a single permission grant or denial. Nodes are values: changing
// one means building a new one.
type Node struct {
	Key     string
	Value   bool
	Context ContextSet
	// Expiry is nil for permanent nodes. Second precision.
	Expiry *time.Time
}

// NewNode returns a permanent, context-free node with value true.
func NewNode(key string) (Node, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Node{}, fmt.Errorf("%w: empty key", ErrInvalidNode)
	}
	return Node{Key: key, Value: true}, nil
}

// InheritanceNode returns the node granting membership of group.
func InheritanceNode(group string) Node {
	return Node{Key: inheritancePrefix + strings.ToLower(group), Value: true}
}

// WithContext returns a copy of n scoped to ctx.
func (n Node) WithContext(ctx ContextSet) Node {
	n.Context = ctx
	return n
}

// WithExpiry returns a copy of n that expires at t (truncated to seconds).
func (n Node) WithExpiry(t time.Time) Node {
	e := time.Unix(t.Unix(), 0).UTC()
	n.Expiry = &e
	return n
}

// Type classifies the node by its key.
func (n Node) Type() NodeType {
	k := strings.ToLower(n.Key)
	switch {
	case strings.HasPrefix(k, inheritancePrefix):
		return NodeTypeInheritance
	case strings.HasPrefix(k, prefixPrefix) && isChatMeta(n.Key[len(prefixPrefix):]):
		return NodeTypePrefix
	case strings.HasPrefix(k, suffixPrefix) && isChatMeta(n.Key[len(suffixPrefix):]):
		return NodeTypeSuffix
	case strings.HasPrefix(k, metaPrefix) && strings.Contains(n.Key[len(metaPrefix):], "."):
		return NodeTypeMeta
	case strings.HasPrefix(k, weightPrefix) && isInt(n.Key[len(weightPrefix):]):
		return NodeTypeWeight
	case strings.HasPrefix(k, displayNamePrefix):
		return NodeTypeDisplayName
	case strings.HasPrefix(k, regexPrefix):
		return NodeTypeRegexPermission
	default:
		return NodeTypePermission
	}
}

// HasExpiry reports whether the node is temporary.
func (n Node) HasExpiry() bool {
	return n.Expiry != nil
}

// HasExpired reports whether a temporary node has passed its expiry.
func (n Node) HasExpired(now time.Time) bool {
	return n.Expiry != nil && !now.Before(*n.Expiry)
}

// GroupName returns the group of an inheritance node.
func (n Node) GroupName() (string, bool) {
	if n.Type() != NodeTypeInheritance {
		return "", false
	}
	return strings.ToLower(n.Key[len(inheritancePrefix):]), true
}

// ChatMeta returns the priority and value of a prefix or suffix node.
func (n Node) ChatMeta() (priority int, value string, ok bool) {
	var rest string
	switch n.Type() {
	case NodeTypePrefix:
		rest = n.Key[len(prefixPrefix):]
	case NodeTypeSuffix:
		rest = n.Key[len(suffixPrefix):]
	default:
		return 0, "", false
	}
	p, v, _ := strings.Cut(rest, ".")
	priority, _ = strconv.Atoi(p)
	return priority, v, true
}

// MetaPair returns the key and value of a meta node.
func (n Node) MetaPair() (key, value string, ok bool) {
	if n.Type() != NodeTypeMeta {
		return "", "", false
	}
	key, value, _ = strings.Cut(n.Key[len(metaPrefix):], ".")
	return strings.ToLower(key), value, true
}

// Weight returns the value of a weight node.
func (n Node) Weight() (int, bool) {
	if n.Type() != NodeTypeWeight {
		return 0, false
	}
	w, err := strconv.Atoi(n.Key[len(weightPrefix):])
	return w, err == nil
}

// DisplayName returns the value of a display name node.
func (n Node) DisplayName() (string, bool) {
	if n.Type() != NodeTypeDisplayName {
		return "", false
	}
	return n.Key[len(displayNamePrefix):], true
}

// RegexPattern returns the expression of a regex permission node.
func (n Node) RegexPattern() (string, bool) {
	if n.Type() != NodeTypeRegexPermission {
		return "", false
	}
	return n.Key[len(regexPrefix):], true
}

// SameIdentity reports whether both nodes have the same key, context and
// expiry. Holders never contain two nodes with the same identity.
func (n Node) SameIdentity(o Node) bool {
	return n.SameKeyAndContext(o) && expiryEqual(n.Expiry, o.Expiry)
}

// SameKeyAndContext ignores value and expiry.
func (n Node) SameKeyAndContext(o Node) bool {
	return strings.EqualFold(n.Key, o.Key) && n.Context.Equal(o.Context)
}

// Equal reports whether both nodes are identical including value.
func (n Node) Equal(o Node) bool {
	return n.SameIdentity(o) && n.Value == o.Value
}

func (n Node) String() string {
	s := fmt.Sprintf("%s=%t", n.Key, n.Value)
	if !n.Context.IsEmpty() {
		s += " " + n.Context.String()
	}
	if n.Expiry != nil {
		s += " expiry=" + strconv.FormatInt(n.Expiry.Unix(), 10)
	}
	return s
}

func expiryEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Unix() == b.Unix()
}

func isChatMeta(rest string) bool {
	p, _, ok := strings.Cut(rest, ".")
	return ok && isInt(p)
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
