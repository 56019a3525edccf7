package box

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Constructor picks the variant for a box about to be parsed. It may read
// ahead through the candidate to choose between specializations.
type Constructor func(ctx context.Context, p *Candidate) (Variant, error)

// Static returns a constructor that always yields v.
func Static(v Variant) Constructor {
	return func(context.Context, *Candidate) (Variant, error) { return v, nil }
}

type key struct {
	typ    Type
	parent Type
}

// Registry maps (type, parent type) pairs to constructors.
//
// Resolution order for a box of type T under a parent of type P:
//  1. a registration for exactly (T, P)
//  2. a wildcard registration for T
//  3. an opaque box
//
// Registrations happen during initialization. The first Lookup freezes the
// registry; registering afterwards panics.
type Registry struct {
	exact  map[key]Constructor
	any    map[Type]Constructor
	frozen atomic.Bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exact: make(map[key]Constructor),
		any:   make(map[Type]Constructor),
	}
}

// Default is the registry the tree uses unless told otherwise. Atom
// packages fill it from init().
var Default = NewRegistry()

func (r *Registry) mutable(what string) {
	if r.frozen.Load() {
		panic("box: " + what + " after the registry was first used")
	}
}

// Register binds t under parent. Use Root as the parent for top-level
// boxes. Registering the same pair twice panics.
func (r *Registry) Register(t, parent Type, c Constructor) {
	r.mutable("Register")
	k := key{t, parent}
	if _, dup := r.exact[k]; dup {
		panic(fmt.Sprintf("box: %s already registered under %q", t, parent.String()))
	}
	r.exact[k] = c
}

// RegisterAny binds t under any parent without an exact registration.
func (r *Registry) RegisterAny(t Type, c Constructor) {
	r.mutable("RegisterAny")
	if _, dup := r.any[t]; dup {
		panic(fmt.Sprintf("box: %s already registered under any parent", t))
	}
	r.any[t] = c
}

// Lookup resolves the constructor for t under parent. It never returns nil.
func (r *Registry) Lookup(t, parent Type) Constructor {
	r.frozen.Store(true)
	if c, ok := r.exact[key{t, parent}]; ok {
		return c
	}
	if c, ok := r.any[t]; ok {
		return c
	}
	return opaque
}

var opaque = Static(Opaque())

// Candidate is what a constructor sees of the box being parsed.
type Candidate struct {
	Header Header
	Parent Type

	tree   *Tree
	parent NodeID
}

// Peek reads up to n leading payload bytes. Fewer are returned when the
// payload is shorter.
func (p *Candidate) Peek(ctx context.Context, n int) ([]byte, error) {
	n = int(min(int64(n), p.Header.DataSize()))
	return p.tree.file.ReadAt(ctx, p.Header.DataOffset(), n)
}

// Handler returns the nearest handler type declared by a box parsed before
// this one in an enclosing container: the hdlr of the track for a sample
// description, or of the meta box for an item list.
func (p *Candidate) Handler() (Type, bool) {
	return p.tree.handler(p.parent)
}
