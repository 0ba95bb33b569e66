package perms

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ContextSet is an immutable, unordered multimap of context keys to values.
// Keys and values are stored lower-cased and trimmed. The zero value is the
// empty set.
type ContextSet struct {
	entries map[string][]string
}

// ContextBuilder accumulates context pairs. A ContextSet is never edited in
// place; build a new one instead.
type ContextBuilder struct {
	entries map[string][]string
	err     error
}

// NewContextBuilder returns an empty builder.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{entries: make(map[string][]string)}
}

// Add records key=value. Empty keys or values make Build fail.
func (b *ContextBuilder) Add(key, value string) *ContextBuilder {
	k := strings.ToLower(strings.TrimSpace(key))
	v := strings.ToLower(strings.TrimSpace(value))
	if k == "" || v == "" {
		if b.err == nil {
			b.err = fmt.Errorf("%w: empty key or value for %q=%q", ErrInvalidContext, key, value)
		}
		return b
	}
	if !slices.Contains(b.entries[k], v) {
		b.entries[k] = append(b.entries[k], v)
	}
	return b
}

// AddAll adds every pair of other.
func (b *ContextBuilder) AddAll(other ContextSet) *ContextBuilder {
	for k, vs := range other.entries {
		for _, v := range vs {
			b.Add(k, v)
		}
	}
	return b
}

// Build returns the immutable set.
func (b *ContextBuilder) Build() (ContextSet, error) {
	if b.err != nil {
		return ContextSet{}, b.err
	}
	if len(b.entries) == 0 {
		return ContextSet{}, nil
	}
	entries := make(map[string][]string, len(b.entries))
	for k, vs := range b.entries {
		sorted := slices.Clone(vs)
		sort.Strings(sorted)
		entries[k] = sorted
	}
	return ContextSet{entries: entries}, nil
}

// ContextSetOf builds a set from alternating key, value arguments.
// It panics on malformed input and is meant for literals.
func ContextSetOf(pairs ...string) ContextSet {
	if len(pairs)%2 != 0 {
		panic("perms: ContextSetOf requires key/value pairs")
	}
	b := NewContextBuilder()
	for i := 0; i < len(pairs); i += 2 {
		b.Add(pairs[i], pairs[i+1])
	}
	set, err := b.Build()
	if err != nil {
		panic(err)
	}
	return set
}

// IsEmpty reports whether the set has no pairs.
func (c ContextSet) IsEmpty() bool {
	return len(c.entries) == 0
}

// Size returns the number of pairs.
func (c ContextSet) Size() int {
	n := 0
	for _, vs := range c.entries {
		n += len(vs)
	}
	return n
}

// Contains reports whether key=value is in the set.
func (c ContextSet) Contains(key, value string) bool {
	vs := c.entries[strings.ToLower(strings.TrimSpace(key))]
	return slices.Contains(vs, strings.ToLower(strings.TrimSpace(value)))
}

// ContainsKey reports whether the set has any value for key.
func (c ContextSet) ContainsKey(key string) bool {
	_, ok := c.entries[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// Values returns the sorted values for key.
func (c ContextSet) Values(key string) []string {
	return slices.Clone(c.entries[strings.ToLower(strings.TrimSpace(key))])
}

// Keys returns the sorted keys.
func (c ContextSet) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSatisfiedBy reports whether every key of c has at least one of its values
// present in other. The empty set is satisfied by anything.
func (c ContextSet) IsSatisfiedBy(other ContextSet) bool {
	for k, vs := range c.entries {
		matched := false
		for _, v := range vs {
			if other.Contains(k, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same pairs.
func (c ContextSet) Equal(other ContextSet) bool {
	if len(c.entries) != len(other.entries) {
		return false
	}
	for k, vs := range c.entries {
		if !slices.Equal(vs, other.entries[k]) {
			return false
		}
	}
	return true
}

// String renders the set in a stable order, for logs and storage keys.
func (c ContextSet) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range c.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(strings.Join(c.entries[k], "|"))
	}
	sb.WriteByte('}')
	return sb.String()
}
