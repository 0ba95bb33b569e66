package perms

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// MergeStrategy decides what happens when a temporary node is added while a
// temporary node with the same key and context is already present.
type MergeStrategy string

// Merge strategies.
const (
	// MergeNone replaces a node with the same key, context and expiry.
	MergeNone MergeStrategy = "none"
	// MergeAddDuration extends the existing expiry by the new node's remaining duration.
	MergeAddDuration MergeStrategy = "add_new_duration_to_existing"
	// MergeReplaceIfLonger keeps whichever node expires last.
	MergeReplaceIfLonger MergeStrategy = "replace_existing_if_duration_longer"
)

// ParseMergeStrategy parses a strategy name case-insensitively.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch m := MergeStrategy(strings.ToLower(strings.TrimSpace(s))); m {
	case MergeNone, MergeAddDuration, MergeReplaceIfLonger:
		return m, nil
	default:
		return "", fmt.Errorf("%w: merge strategy %q", ErrUnknownEnum, s)
	}
}

// NodeMap is the thread-safe node collection owned by a holder.
// Insertion order is preserved.
type NodeMap struct {
	mu    sync.RWMutex
	nodes []Node
	now   func() time.Time
}

// NewNodeMap returns a map holding nodes, de-duplicated by identity.
func NewNodeMap(nodes ...Node) *NodeMap {
	m := &NodeMap{now: time.Now}
	for _, n := range nodes {
		m.addLocked(n, MergeNone)
	}
	return m
}

// Nodes returns a snapshot of the collection.
func (m *NodeMap) Nodes() []Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.nodes)
}

// Len returns the number of nodes.
func (m *NodeMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// Add inserts n according to strategy and returns the node that ended up in
// the map and whether anything changed.
func (m *NodeMap) Add(n Node, strategy MergeStrategy) (Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(n, strategy)
}

func (m *NodeMap) addLocked(n Node, strategy MergeStrategy) (Node, bool) {
	if n.HasExpiry() && strategy != MergeNone && strategy != "" {
		if i := m.indexOf(func(o Node) bool { return o.HasExpiry() && o.SameKeyAndContext(n) && o.Value == n.Value }); i >= 0 {
			existing := m.nodes[i]
			switch strategy {
			case MergeAddDuration:
				remaining := n.Expiry.Sub(m.now())
				if remaining < 0 {
					remaining = 0
				}
				merged := n.WithExpiry(existing.Expiry.Add(remaining))
				m.nodes[i] = merged
				return merged, true
			case MergeReplaceIfLonger:
				if n.Expiry.After(*existing.Expiry) {
					m.nodes[i] = n
					return n, true
				}
				return existing, false
			}
		}
	}

	if i := m.indexOf(n.SameIdentity); i >= 0 {
		if m.nodes[i].Value == n.Value {
			return m.nodes[i], false
		}
		m.nodes[i] = n
		return n, true
	}
	m.nodes = append(m.nodes, n)
	return n, true
}

// Remove deletes the node with the same identity as n.
func (m *NodeMap) Remove(n Node) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexOf(n.SameIdentity)
	if i < 0 {
		return false
	}
	m.nodes = slices.Delete(m.nodes, i, i+1)
	return true
}

// RemoveIf deletes every node matching pred and returns how many were removed.
func (m *NodeMap) RemoveIf(pred func(Node) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.nodes)
	m.nodes = slices.DeleteFunc(m.nodes, pred)
	return before - len(m.nodes)
}

// Clear removes every node.
func (m *NodeMap) Clear() {
	m.mu.Lock()
	m.nodes = nil
	m.mu.Unlock()
}

// Replace swaps the whole collection for nodes.
func (m *NodeMap) Replace(nodes []Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = nil
	for _, n := range nodes {
		m.addLocked(n, MergeNone)
	}
}

func (m *NodeMap) indexOf(pred func(Node) bool) int {
	return slices.IndexFunc(m.nodes, pred)
}
