// Package ottype holds the pluggable per-type operation algebra: create,
// apply, transform, and the optional compose/invert/normalize operations.
// Types are resolved through an explicit Registry rather than a package
// singleton, so callers own the lifetime of the set of registered types.
package ottype

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Side is the tie-break tag passed to Transform for operations touching the
// same position. It has no meaning on its own; each type defines what
// 'left' and 'right' mean for its own op shapes.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Type is a registered handler for one kind of document payload.
//
// Create, Apply and Transform are mandatory and must be pure: Apply must
// not mutate its snapshot argument in place, and Transform must not mutate
// either op argument. Compose, Invert and Normalize are optional; a type
// that does not support them returns ErrUnsupported.
type Type interface {
	// URI is the canonical, globally unique identifier for this type.
	URI() string

	// Create returns the initial payload for a newly created document.
	// data may be nil.
	Create(data any) (any, error)

	// DecodeOp converts a wire-decoded edit payload into the type's native
	// op shape. Callers that read an op from JSON without already knowing
	// its governing type (Op.UnmarshalJSON, the transport frame decoders,
	// a stored log entry) cannot unmarshal straight into that shape, so
	// they leave the payload as a json.RawMessage; DecodeOp is invoked once
	// the type is resolved, immediately before Apply or Transform.
	DecodeOp(raw json.RawMessage) (any, error)

	// Apply returns the payload that results from applying op to snapshot.
	// It must not mutate snapshot.
	Apply(snapshot any, op any) (any, error)

	// Transform returns op1 rewritten to reflect that op2 was already
	// applied to the same base version. side breaks ties between
	// operations that touch the same position.
	Transform(op1, op2 any, side Side) (any, error)

	// Compose merges two sequential ops into one equivalent op, if the
	// type supports it.
	Compose(op1, op2 any) (any, error)

	// Invert returns an op that undoes op when applied to the snapshot
	// that resulted from applying op, if the type supports it.
	Invert(op any) (any, error)

	// Normalize returns a canonicalized form of op, if the type supports
	// normalization; otherwise it may return op unchanged.
	Normalize(op any) (any, error)
}

// ErrUnsupported is returned by the optional Type operations when a type
// does not implement them.
var ErrUnsupported = fmt.Errorf("ottype: operation not supported by type")

// Registry resolves type identifiers to Type handlers. Both a type's short
// name and its URI resolve to the same handler; most registries register a
// type under both.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register adds t under every name in names (typically its short name and
// its URI). Register panics on a duplicate name, since that indicates a
// programming error in process wiring, not a runtime condition.
func (r *Registry) Register(t Type, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, exists := r.types[name]; exists {
			panic(fmt.Sprintf("ottype: type already registered under %q", name))
		}
		r.types[name] = t
	}
}

// Resolve looks up a type by short name or URI. ok is false if name is not
// registered.
func (r *Registry) Resolve(name string) (t Type, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok = r.types[name]
	return t, ok
}

// NewDefaultRegistry returns a Registry seeded with the two reference
// types: counter and simple-text.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	counter := NewCounterType()
	r.Register(counter, CounterName, counter.URI())
	text := NewTextType()
	r.Register(text, TextName, text.URI())
	return r
}
