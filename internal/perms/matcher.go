package perms

import "strings"

// NodeMatcher selects nodes during a search.
type NodeMatcher interface {
	Matches(n Node) bool
}

// MatcherFunc adapts a function to NodeMatcher.
type MatcherFunc func(Node) bool

// Matches calls f.
func (f MatcherFunc) Matches(n Node) bool { return f(n) }

// KeyEquals matches nodes with exactly key (case-insensitive).
func KeyEquals(key string) NodeMatcher {
	return MatcherFunc(func(n Node) bool { return strings.EqualFold(n.Key, key) })
}

// KeyStartsWith matches nodes whose key begins with prefix (case-insensitive).
func KeyStartsWith(prefix string) NodeMatcher {
	p := strings.ToLower(prefix)
	return MatcherFunc(func(n Node) bool { return strings.HasPrefix(strings.ToLower(n.Key), p) })
}

// MetaKey matches meta nodes with the given meta key.
func MetaKey(key string) NodeMatcher {
	k := strings.ToLower(key)
	return MatcherFunc(func(n Node) bool {
		mk, _, ok := n.MetaPair()
		return ok && mk == k
	})
}

// OfType matches nodes of type t.
func OfType(t NodeType) NodeMatcher {
	return MatcherFunc(func(n Node) bool { return n.Type() == t })
}

// MatchNodes returns the nodes of h accepted by m.
func MatchNodes(nodes []Node, m NodeMatcher) []Node {
	var out []Node
	for _, n := range nodes {
		if m.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}
