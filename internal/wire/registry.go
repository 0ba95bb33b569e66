package wire

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Registry maps domain types to the functions that build their JSON shape.
// It is filled once at startup and read-only afterwards.
type Registry struct {
	encoders map[reflect.Type]func(any) any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{encoders: make(map[reflect.Type]func(any) any)}
}

// Register installs the encoder for T, replacing any earlier one.
func Register[T any](r *Registry, encode func(T) any) {
	r.encoders[reflect.TypeFor[T]()] = func(v any) any {
		return encode(v.(T))
	}
}

// Has reports whether t has an encoder.
func (r *Registry) Has(t reflect.Type) bool {
	_, ok := r.encoders[t]
	return ok
}

// Verify fails listing every type in want that has no encoder.
func (r *Registry) Verify(want ...reflect.Type) error {
	var missing []string
	for _, t := range want {
		if !r.Has(t) {
			missing = append(missing, t.String())
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("wire: no encoder for %s", strings.Join(missing, ", "))
	}
	return nil
}

// Encode converts v to its wire shape.
func (r *Registry) Encode(v any) (any, error) {
	enc, ok := r.encoders[reflect.TypeOf(v)]
	if !ok {
		return nil, fmt.Errorf("wire: no encoder for %T", v)
	}
	return enc(v), nil
}

// Marshal encodes v and renders it as JSON.
func (r *Registry) Marshal(v any) ([]byte, error) {
	shape, err := r.Encode(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(shape)
}
