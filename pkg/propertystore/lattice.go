// Package propertystore implements a concurrent, fixed-point property
// store: an engine that schedules interdependent property computations
// over a universe of entities, tracks their dependee/depender relations,
// drives them to quiescence, fills in fallback values for properties no
// analysis answers, and resolves cyclic dependencies among still-
// refinable values.
//
// Everything that registers a computation or queries a value is a client
// of this engine — the engine itself has no notion of what a "method" or
// a "class" is; it only knows entities (opaque, comparable identities)
// and property kinds (small registered lattices).
package propertystore

import "fmt"

// Entity is an opaque identity token a property is attached to. Equality
// is Go's built-in comparable equality, standing in for reference
// identity — callers that need reference identity over a mutable struct
// should key on a pointer or an interned id, not a value copy.
type Entity = any

// Property is a single point in a PropertyKind's lattice. Concrete
// property types are defined by clients; the engine only needs to compare
// and combine them through the owning PropertyKind.
type Property interface {
	// Kind returns the PropertyKind this value belongs to. Two
	// Properties are only ever compared when they share a Kind.
	Kind() PropertyKind
}

// Equatable lets a concrete Property type define its own equality instead
// of relying on Go's "==" (which panics on non-comparable underlying
// types such as slices or maps embedded in the concrete struct).
type Equatable interface {
	Equal(Property) bool
}

// propertiesEqual compares two Property values of the same kind, using
// Equatable if the concrete type implements it.
func propertiesEqual(a, b Property) bool {
	if a == nil || b == nil {
		return a == b
	}
	if eq, ok := a.(Equatable); ok {
		return eq.Equal(b)
	}
	return a == b
}

// PropertyKind is a compile-time-registered descriptor of a property's
// domain and lattice. Exactly one computation function may be registered
// against a kind's id for the lifetime of a phase (Invariant 1).
type PropertyKind interface {
	// ID is a dense, small integer used for array indexing across the
	// store's per-kind structures. The universe of kinds is fixed once
	// the first phase is set up.
	ID() int

	// Name is a human-readable label used in logs, traces, and error
	// messages.
	Name() string

	// Fallback returns the default final value used when no computation
	// answers this kind for e.
	Fallback(s *Store, e Entity) Property

	// ResolveCycle returns the final value used to break a closed
	// strongly-connected component that e participates in for this
	// kind, given e's current (refinable) bound pair.
	ResolveCycle(s *Store, current EOptionP) Property

	// MoreOrEquallyPrecise reports whether newer is at least as refined
	// as older in this kind's lattice (newer >= older). It must be
	// reflexive, transitive, and well-founded: a chain of ever-more-
	// precise values must terminate.
	MoreOrEquallyPrecise(newer, older Property) bool

	// Meet combines two independently-derived estimates of the same
	// bound into their least upper refinement. The engine itself never
	// calls Meet; PartialResult updates are applied through their own
	// Update function.
	Meet(a, b Property) Property
}

// EOptionP (entity/optional-property) is either an EPK — an entity known
// to the store with no value yet for a kind — or an EPS carrying the
// current lower/upper bound pair. Construct one with NewEPK, NewEPS, or
// NewFinalEP; do not build the struct literal directly from outside the
// package.
type EOptionP struct {
	E        Entity
	K        PropertyKind
	hasValue bool
	lb, ub   Property
}

// NewEPK builds an EOptionP with no value yet.
func NewEPK(e Entity, k PropertyKind) EOptionP {
	return EOptionP{E: e, K: k}
}

// NewEPS builds an EOptionP carrying a refinable or final bound pair.
// lb and ub must belong to the same kind.
func NewEPS(e Entity, lb, ub Property) EOptionP {
	return EOptionP{E: e, K: lb.Kind(), hasValue: true, lb: lb, ub: ub}
}

// NewFinalEP builds an EOptionP whose lower and upper bound coincide.
func NewFinalEP(e Entity, p Property) EOptionP {
	return NewEPS(e, p, p)
}

// HasValue reports whether this is an EPS (true) or a bare EPK (false).
func (o EOptionP) HasValue() bool { return o.hasValue }

// LB returns the lower bound. Only meaningful when HasValue is true.
func (o EOptionP) LB() Property { return o.lb }

// UB returns the upper bound. Only meaningful when HasValue is true.
func (o EOptionP) UB() Property { return o.ub }

// IsFinal reports whether this EOptionP carries a value whose lower and
// upper bounds coincide.
func (o EOptionP) IsFinal() bool {
	return o.hasValue && propertiesEqual(o.lb, o.ub)
}

func (o EOptionP) String() string {
	if !o.hasValue {
		return fmt.Sprintf("EPK(%v, %s)", o.E, o.K.Name())
	}
	if o.IsFinal() {
		return fmt.Sprintf("FinalEP(%v, %s, %v)", o.E, o.K.Name(), o.lb)
	}
	return fmt.Sprintf("EPS(%v, %s, lb=%v, ub=%v)", o.E, o.K.Name(), o.lb, o.ub)
}

// refined reports whether next is a strictly more precise bound pair than
// prev under kind's order — used by the dispatcher to detect a stale
// seen-dependee snapshot (§4.5 step 1).
func refined(kind PropertyKind, prev, next EOptionP) bool {
	if !prev.hasValue {
		return next.hasValue
	}
	if !next.hasValue {
		return false
	}
	lbAdvanced := !propertiesEqual(prev.lb, next.lb) && kind.MoreOrEquallyPrecise(next.lb, prev.lb)
	ubAdvanced := !propertiesEqual(prev.ub, next.ub) && kind.MoreOrEquallyPrecise(prev.ub, next.ub)
	return lbAdvanced || ubAdvanced
}

// checkMonotone validates Invariant 2: lb' >= lb and ub' <= ub in the
// kind's refinement order. Returns false on violation; callers report it
// through violate, which panics in debug mode and records a worker
// failure in release mode.
func checkMonotone(kind PropertyKind, old, next EOptionP) bool {
	if !old.hasValue {
		return true
	}
	if !kind.MoreOrEquallyPrecise(next.lb, old.lb) {
		return false
	}
	if !kind.MoreOrEquallyPrecise(old.ub, next.ub) {
		return false
	}
	return true
}
