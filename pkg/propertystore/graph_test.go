package propertystore

import "testing"

func TestGraphSetDependeesAndReciprocalEdges(t *testing.T) {
	k := intKind{id: 1}
	g := newDependencyGraph()

	depender := keyOf("e2", k)
	dependee := NewEPK("e1", k)
	entry := dependerEntry{hint: Cheap}

	g.SetDependees(depender, entry, []EOptionP{dependee})

	if !g.HasDependees(depender) {
		t.Fatalf("depender must have a dependee set")
	}
	dk := keyOfEOptionP(dependee)
	if !g.HasDependers(dk) {
		t.Fatalf("dependee must have a reciprocal depender edge")
	}
	got := g.Dependers(dk)
	if _, ok := got[depender]; !ok {
		t.Fatalf("expected depender to be registered on the dependee")
	}
}

func TestGraphSetDependeesReplacesPrevious(t *testing.T) {
	k := intKind{id: 1}
	g := newDependencyGraph()
	depender := keyOf("e2", k)

	g.SetDependees(depender, dependerEntry{hint: Cheap}, []EOptionP{NewEPK("e1", k)})
	g.SetDependees(depender, dependerEntry{hint: Cheap}, []EOptionP{NewEPK("e3", k)})

	if g.HasDependers(keyOf("e1", k)) {
		t.Fatalf("old dependee edge must be cleared when dependees are replaced")
	}
	if !g.HasDependers(keyOf("e3", k)) {
		t.Fatalf("new dependee edge must be present")
	}
}

func TestGraphClearDependeesOf(t *testing.T) {
	k := intKind{id: 1}
	g := newDependencyGraph()
	depender := keyOf("e2", k)
	g.SetDependees(depender, dependerEntry{hint: Cheap}, []EOptionP{NewEPK("e1", k)})

	g.clearDependeesOf(depender)

	if g.HasDependees(depender) {
		t.Fatalf("dependees must be cleared")
	}
	if g.HasDependers(keyOf("e1", k)) {
		t.Fatalf("reciprocal depender edge must be cleared too")
	}
}

func TestGraphMarkTriggeredOnce(t *testing.T) {
	k := intKind{id: 1}
	g := newDependencyGraph()
	key := keyOf("e1", k)

	if !g.MarkTriggered(key) {
		t.Fatalf("first MarkTriggered call must succeed")
	}
	if g.MarkTriggered(key) {
		t.Fatalf("second MarkTriggered call on the same pair must report already-triggered")
	}
}

func TestGraphMarkForcedIsIdempotentAndListed(t *testing.T) {
	k := intKind{id: 1}
	g := newDependencyGraph()
	key := keyOf("e1", k)

	g.MarkForced(key)
	g.MarkForced(key)

	keys := g.ForcedKeys()
	if len(keys) != 1 || keys[0] != key {
		t.Fatalf("expected exactly one forced key %v, got %v", key, keys)
	}
}

func TestGraphClearInternalEdges(t *testing.T) {
	k := intKind{id: 1}
	g := newDependencyGraph()
	a := keyOf("a", k)
	b := keyOf("b", k)

	g.SetDependees(a, dependerEntry{hint: Cheap}, []EOptionP{NewEPK("b", k)})
	g.SetDependees(b, dependerEntry{hint: Cheap}, []EOptionP{NewEPK("a", k)})

	members := map[pairKey]struct{}{a: {}, b: {}}
	g.clearInternalEdges(members)

	if g.HasDependees(a) || g.HasDependees(b) {
		t.Fatalf("internal edges between SCC members must be fully cleared")
	}
}

func TestGraphDependerKeysFiltersByInclude(t *testing.T) {
	k1 := intKind{id: 1}
	k2 := intKind{id: 2}
	g := newDependencyGraph()
	g.SetDependees(keyOf("e1", k1), dependerEntry{hint: Cheap}, []EOptionP{NewEPK("d1", k1)})
	g.SetDependees(keyOf("e2", k2), dependerEntry{hint: Cheap}, []EOptionP{NewEPK("d2", k2)})

	onlyK1 := g.dependerKeys(func(kindID int) bool { return kindID == k1.ID() })
	if len(onlyK1) != 1 || onlyK1[0].kindID != k1.ID() {
		t.Fatalf("expected only k1's depender key, got %v", onlyK1)
	}

	all := g.dependerKeys(nil)
	if len(all) != 2 {
		t.Fatalf("expected both depender keys with a nil filter, got %d", len(all))
	}
}
