package propertystore

// dependencyGraph holds the two mirrored maps of §4.3: dependees[k][e] is
// the set of EOptionP the computation for (e,k) last observed, and
// dependers[k'][e'] maps each (dependerEntity, dependerKind) back to the
// continuation to resume and the hint that steers how it is resumed.
//
// This type is owned exclusively by the updates worker (§4.4, §5): there
// is no internal synchronization. Every call into it must happen from
// that single goroutine, which the dispatcher guarantees by construction
// — compute workers never touch the graph directly, only the table.
type dependencyGraph struct {
	dependees map[pairKey]map[pairKey]EOptionP
	dependers map[pairKey]map[pairKey]dependerEntry

	// triggered tracks, per (entity, kind), whether a lazy computation has
	// already been scheduled — by Get or by an explicit Force (§4.6).
	// Consulted and mutated only from the updates worker, same as the
	// maps above.
	triggered map[pairKey]bool

	// forced tracks pairs explicitly marked via Store.Force, distinct from
	// triggered: a pair can be triggered (its computation scheduled)
	// without being forced, and §4.6 obligates the phase controller to
	// finalize a forced pair before the phase ends even if that requires
	// its own round (runForcedRound) rather than relying on the ordinary
	// orphan criteria.
	forced map[pairKey]bool
}

// pairKey identifies an (entity, kind) pair for use as a map key. Kind is
// stored by id, not by the PropertyKind interface value, so two
// PropertyKind implementations that happen to compare unequal as
// interface values but share an id never split a single logical kind.
type pairKey struct {
	kindID int
	e      Entity
}

func keyOf(e Entity, k PropertyKind) pairKey { return pairKey{kindID: k.ID(), e: e} }
func keyOfEOptionP(o EOptionP) pairKey       { return pairKey{kindID: o.K.ID(), e: o.E} }

type dependerEntry struct {
	cont        Continuation
	hint        Hint
	forceNotify bool
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{
		dependees: make(map[pairKey]map[pairKey]EOptionP),
		dependers: make(map[pairKey]map[pairKey]dependerEntry),
		triggered: make(map[pairKey]bool),
		forced:    make(map[pairKey]bool),
	}
}

// MarkTriggered records that a lazy computation has been scheduled for
// key, returning false if one already had been (the caller should not
// schedule a duplicate).
func (g *dependencyGraph) MarkTriggered(key pairKey) bool {
	if g.triggered[key] {
		return false
	}
	g.triggered[key] = true
	return true
}

// MarkForced records key as forced, idempotently: a second Force on an
// already-forced pair is a no-op here (the caller's own enqueue still
// happens, matching the existing at-most-once trigger semantics).
func (g *dependencyGraph) MarkForced(key pairKey) {
	g.forced[key] = true
}

// ForcedKeys returns a snapshot of every pair ever marked forced, for the
// phase controller's forced round and its debug-mode completion check.
func (g *dependencyGraph) ForcedKeys() []pairKey {
	out := make([]pairKey, 0, len(g.forced))
	for key := range g.forced {
		out = append(out, key)
	}
	return out
}

// SetDependees replaces the full set of dependees for depender, and adds
// the reciprocal depender edge on each dependee (Invariant 5). Any
// previous dependee set for depender is first removed, including its
// reciprocal edges, so depender's old dependees no longer notify it.
func (g *dependencyGraph) SetDependees(depender pairKey, entry dependerEntry, seen []EOptionP) {
	g.clearDependeesOf(depender)

	set := make(map[pairKey]EOptionP, len(seen))
	for _, dep := range seen {
		dk := keyOfEOptionP(dep)
		set[dk] = dep
		byDependee, ok := g.dependers[dk]
		if !ok {
			byDependee = make(map[pairKey]dependerEntry)
			g.dependers[dk] = byDependee
		}
		byDependee[depender] = entry
	}
	if len(set) > 0 {
		g.dependees[depender] = set
	} else {
		delete(g.dependees, depender)
	}
}

// clearDependeesOf removes depender's dependee set and the matching
// reciprocal edges — called before a result replaces a depender's
// dependency set, and on finalization (a final depender carries no
// dependencies, Invariant 4).
func (g *dependencyGraph) clearDependeesOf(depender pairKey) {
	old, ok := g.dependees[depender]
	if !ok {
		return
	}
	for dk := range old {
		if byDependee, ok := g.dependers[dk]; ok {
			delete(byDependee, depender)
			if len(byDependee) == 0 {
				delete(g.dependers, dk)
			}
		}
	}
	delete(g.dependees, depender)
}

// Dependers returns a snapshot of the dependers registered on dependee,
// for the dispatcher to notify after an update.
func (g *dependencyGraph) Dependers(dependee pairKey) map[pairKey]dependerEntry {
	byDependee, ok := g.dependers[dependee]
	if !ok {
		return nil
	}
	out := make(map[pairKey]dependerEntry, len(byDependee))
	for k, v := range byDependee {
		out[k] = v
	}
	return out
}

// HasDependees reports whether depender currently has a registered
// dependee set.
func (g *dependencyGraph) HasDependees(depender pairKey) bool {
	_, ok := g.dependees[depender]
	return ok
}

// HasDependers reports whether anything currently depends on dependee.
func (g *dependencyGraph) HasDependers(dependee pairKey) bool {
	byDependee, ok := g.dependers[dependee]
	return ok && len(byDependee) > 0
}

// clearInternalEdges removes every dependee/depender edge strictly
// between members of the given set, used when resolving a closed SCC so
// that member notifications don't fire as each member is finalized in
// turn (§4.7).
func (g *dependencyGraph) clearInternalEdges(members map[pairKey]struct{}) {
	for depender := range members {
		dependees, ok := g.dependees[depender]
		if !ok {
			continue
		}
		for dk := range dependees {
			if _, isMember := members[dk]; !isMember {
				continue
			}
			delete(dependees, dk)
			if byDependee, ok := g.dependers[dk]; ok {
				delete(byDependee, depender)
				if len(byDependee) == 0 {
					delete(g.dependers, dk)
				}
			}
		}
		if len(dependees) == 0 {
			delete(g.dependees, depender)
		}
	}
}

// dependerKeys returns every depender key with at least one registered
// dependee, restricted to kinds for which include returns true. Used by
// the phase controller's SCC search (§4.7), which restricts the search
// to non-delayed kinds.
func (g *dependencyGraph) dependerKeys(include func(kindID int) bool) []pairKey {
	out := make([]pairKey, 0, len(g.dependees))
	for depender := range g.dependees {
		if include == nil || include(depender.kindID) {
			out = append(out, depender)
		}
	}
	return out
}
