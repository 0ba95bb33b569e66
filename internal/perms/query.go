package perms

import (
	"fmt"
	"sort"
	"strings"
)

// QueryMode selects whether context is considered when computing data.
type QueryMode string

// Query modes.
const (
	ModeContextual    QueryMode = "contextual"
	ModeNonContextual QueryMode = "non_contextual"
)

// ParseQueryMode parses a mode case-insensitively.
func ParseQueryMode(s string) (QueryMode, error) {
	switch m := QueryMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeContextual, ModeNonContextual:
		return m, nil
	default:
		return "", fmt.Errorf("%w: query mode %q", ErrUnknownEnum, s)
	}
}

// Flag tunes how nodes are selected during resolution.
type Flag string

// Resolution flags.
const (
	FlagResolveInheritance                   Flag = "resolve_inheritance"
	FlagIncludeNodesWithoutServerContext     Flag = "include_nodes_without_server_context"
	FlagIncludeNodesWithoutWorldContext      Flag = "include_nodes_without_world_context"
	FlagApplyInheritanceWithoutServerContext Flag = "apply_inheritance_nodes_without_server_context"
	FlagApplyInheritanceWithoutWorldContext  Flag = "apply_inheritance_nodes_without_world_context"
)

var allFlags = []Flag{
	FlagResolveInheritance,
	FlagIncludeNodesWithoutServerContext,
	FlagIncludeNodesWithoutWorldContext,
	FlagApplyInheritanceWithoutServerContext,
	FlagApplyInheritanceWithoutWorldContext,
}

// ParseFlag parses a flag case-insensitively.
func ParseFlag(s string) (Flag, error) {
	f := Flag(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allFlags {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: flag %q", ErrUnknownEnum, s)
}

// FlagSet is an immutable set of flags.
type FlagSet map[Flag]struct{}

// NewFlagSet builds a set from flags.
func NewFlagSet(flags ...Flag) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s[f] = struct{}{}
	}
	return s
}

// DefaultFlags enables every flag.
func DefaultFlags() FlagSet {
	return NewFlagSet(allFlags...)
}

// Has reports whether f is set.
func (s FlagSet) Has(f Flag) bool {
	_, ok := s[f]
	return ok
}

// Sorted returns the flags in stable order.
func (s FlagSet) Sorted() []Flag {
	out := make([]Flag, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// QueryOptions control how cached permission and meta data are computed.
type QueryOptions struct {
	Mode    QueryMode
	Flags   FlagSet
	Context ContextSet
}

// DefaultQueryOptions is contextual, with default flags and an empty context.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Mode:  ModeContextual,
		Flags: DefaultFlags(),
	}
}

// Tristate is the outcome of a permission check.
type Tristate string

// Tristate values.
const (
	TristateTrue      Tristate = "true"
	TristateFalse     Tristate = "false"
	TristateUndefined Tristate = "undefined"
)

// TristateOf converts a node value.
func TristateOf(v bool) Tristate {
	if v {
		return TristateTrue
	}
	return TristateFalse
}

// PermissionCheck is the result of checking one permission on a holder.
type PermissionCheck struct {
	Result Tristate
	// Node is the node that decided the result, nil when undefined.
	Node *Node
}

// MetaData is the meta derived for a holder.
type MetaData struct {
	// Meta holds every value per key in resolution order.
	Meta         map[string][]string
	Prefix       *string
	Suffix       *string
	PrimaryGroup *string
}
