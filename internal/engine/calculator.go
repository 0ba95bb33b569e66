package engine

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/LuckPerms/rest-api/internal/perms"
)

// calculator resolves permissions and meta over the loaded registry.
// Nothing is cached between calls; every call sees the current nodes.
type calculator struct {
	engine *Engine

	regexMu sync.Mutex
	regexes map[string]*regexp.Regexp
}

var _ perms.Calculator = (*calculator)(nil)

// context keys with dedicated include flags
const (
	serverKey = "server"
	worldKey  = "world"
)

// applies reports whether n takes part in a query with opts.
func (c *calculator) applies(n perms.Node, opts perms.QueryOptions) bool {
	if n.HasExpired(c.engine.now()) {
		return false
	}
	if opts.Mode == perms.ModeNonContextual {
		return true
	}

	serverFlag, worldFlag := perms.FlagIncludeNodesWithoutServerContext, perms.FlagIncludeNodesWithoutWorldContext
	if n.Type() == perms.NodeTypeInheritance {
		serverFlag, worldFlag = perms.FlagApplyInheritanceWithoutServerContext, perms.FlagApplyInheritanceWithoutWorldContext
	}
	if !n.Context.ContainsKey(serverKey) && !opts.Flags.Has(serverFlag) {
		return false
	}
	if !n.Context.ContainsKey(worldKey) && !opts.Flags.Has(worldFlag) {
		return false
	}
	return n.Context.IsSatisfiedBy(opts.Context)
}

// resolutionOrder returns h followed by every group it inherits, depth first,
// parents ordered by descending weight. Cycles are cut.
func (c *calculator) resolutionOrder(h perms.Holder, opts perms.QueryOptions) []perms.Holder {
	order := []perms.Holder{h}
	if !opts.Flags.Has(perms.FlagResolveInheritance) {
		return order
	}

	visited := map[string]bool{}
	if h.Type() == perms.HolderGroup {
		visited[h.Identifier()] = true
	}

	var walk func(perms.Holder)
	walk = func(holder perms.Holder) {
		for _, g := range c.parents(holder, opts) {
			if visited[g.Name()] {
				continue
			}
			visited[g.Name()] = true
			order = append(order, g)
			walk(g)
		}
	}
	walk(h)
	return order
}

// parents returns the loaded groups h directly inherits, heaviest first.
func (c *calculator) parents(h perms.Holder, opts perms.QueryOptions) []*perms.Group {
	var out []*perms.Group
	seen := map[string]bool{}
	for _, n := range h.Nodes() {
		name, ok := n.GroupName()
		if !ok || !n.Value || seen[name] || !c.applies(n, opts) {
			continue
		}
		seen[name] = true
		if g := c.engine.groupManager.GetGroup(name); g != nil {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight() > out[j].Weight()
	})
	return out
}

// flatten collects applicable nodes by lower-cased key; closer holders win,
// and within one holder the node with the larger context wins.
func (c *calculator) flatten(h perms.Holder, opts perms.QueryOptions) (map[string]perms.Node, []perms.Node) {
	byKey := make(map[string]perms.Node)
	var ordered []perms.Node
	for _, holder := range c.resolutionOrder(h, opts) {
		local := make(map[string]perms.Node)
		for _, n := range holder.Nodes() {
			if !c.applies(n, opts) {
				continue
			}
			k := strings.ToLower(n.Key)
			if _, ok := byKey[k]; ok {
				continue
			}
			if prev, ok := local[k]; ok && prev.Context.Size() >= n.Context.Size() {
				continue
			}
			local[k] = n
		}
		for _, n := range holder.Nodes() {
			k := strings.ToLower(n.Key)
			if chosen, ok := local[k]; ok && chosen.Equal(n) {
				byKey[k] = n
				ordered = append(ordered, n)
				delete(local, k)
			}
		}
	}
	return byKey, ordered
}

// CheckPermission looks up permission: exact key, then wildcards from the
// most specific, then regex nodes.
func (c *calculator) CheckPermission(h perms.Holder, permission string, opts perms.QueryOptions) perms.PermissionCheck {
	byKey, ordered := c.flatten(h, opts)
	perm := strings.ToLower(strings.TrimSpace(permission))

	if n, ok := byKey[perm]; ok {
		return found(n)
	}

	parts := strings.Split(perm, ".")
	for i := len(parts) - 1; i > 0; i-- {
		if n, ok := byKey[strings.Join(parts[:i], ".")+".*"]; ok {
			return found(n)
		}
	}
	if n, ok := byKey["*"]; ok {
		return found(n)
	}

	for _, n := range ordered {
		pattern, ok := n.RegexPattern()
		if !ok {
			continue
		}
		if re := c.compile(pattern); re != nil && re.MatchString(perm) {
			return found(n)
		}
	}
	return perms.PermissionCheck{Result: perms.TristateUndefined}
}

func found(n perms.Node) perms.PermissionCheck {
	return perms.PermissionCheck{Result: perms.TristateOf(n.Value), Node: &n}
}

func (c *calculator) compile(pattern string) *regexp.Regexp {
	c.regexMu.Lock()
	defer c.regexMu.Unlock()
	if c.regexes == nil {
		c.regexes = make(map[string]*regexp.Regexp)
	}
	re, ok := c.regexes[pattern]
	if !ok {
		var err error
		re, err = regexp.Compile("^(?i)" + pattern + "$")
		if err != nil {
			c.engine.logger.Warn("invalid regex permission", "pattern", pattern, "error", err)
			re = nil
		}
		c.regexes[pattern] = re
	}
	return re
}

// MetaData derives prefix, suffix, meta and primary group.
func (c *calculator) MetaData(h perms.Holder, opts perms.QueryOptions) perms.MetaData {
	md := perms.MetaData{Meta: make(map[string][]string)}
	prefixPriority, suffixPriority := 0, 0

	for _, holder := range c.resolutionOrder(h, opts) {
		for _, n := range holder.Nodes() {
			if !n.Value || !c.applies(n, opts) {
				continue
			}
			switch n.Type() {
			case perms.NodeTypePrefix:
				p, v, _ := n.ChatMeta()
				if md.Prefix == nil || p > prefixPriority {
					md.Prefix, prefixPriority = &v, p
				}
			case perms.NodeTypeSuffix:
				p, v, _ := n.ChatMeta()
				if md.Suffix == nil || p > suffixPriority {
					md.Suffix, suffixPriority = &v, p
				}
			case perms.NodeTypeMeta:
				k, v, _ := n.MetaPair()
				md.Meta[k] = append(md.Meta[k], v)
			}
		}
	}

	if u, ok := h.(*perms.User); ok {
		primary := u.StoredPrimaryGroup()
		if parents := c.parents(u, opts); len(parents) > 0 {
			primary = parents[0].Name()
		}
		md.PrimaryGroup = &primary
	}
	return md
}

// InheritedGroups lists every group h inherits, in resolution order.
func (c *calculator) InheritedGroups(h perms.Holder, opts perms.QueryOptions) []string {
	order := c.resolutionOrder(h, opts)
	out := make([]string, 0, len(order)-1)
	for _, holder := range order[1:] {
		out = append(out, holder.Identifier())
	}
	return out
}
