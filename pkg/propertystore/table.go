package propertystore

import "sync"

// propertyTable is the per-kind concurrent map from entity identity to
// current EOptionP (§4.2). Writes happen only on the updates worker, so a
// simple RWMutex-guarded map per kind gives readers effectively wait-free
// access relative to the low write rate, with one shard per property kind
// so unrelated kinds never contend on the same lock.
type propertyTable struct {
	mu     sync.Mutex // guards shards (creation only)
	shards []*tableShard
}

type tableShard struct {
	mu     sync.RWMutex
	values map[Entity]EOptionP
}

func newPropertyTable() *propertyTable {
	return &propertyTable{}
}

// shard returns (creating if necessary) the shard for kind id.
func (t *propertyTable) shard(kindID int) *tableShard {
	t.mu.Lock()
	defer t.mu.Unlock()
	for kindID >= len(t.shards) {
		t.shards = append(t.shards, &tableShard{values: make(map[Entity]EOptionP)})
	}
	return t.shards[kindID]
}

// Get returns the current value for (e, k), if any.
func (t *propertyTable) Get(e Entity, k PropertyKind) (EOptionP, bool) {
	s := t.shard(k.ID())
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[e]
	return v, ok
}

// Set publishes a new value for (e, k). Must only be called from the
// updates worker.
func (t *propertyTable) Set(v EOptionP) {
	s := t.shard(v.K.ID())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[v.E] = v
}

// GetByPair looks up a value by its dependency-graph key, for callers
// (the SCC finder) that only have a kind id on hand rather than a
// PropertyKind value.
func (t *propertyTable) GetByPair(key pairKey) (EOptionP, bool) {
	s := t.shard(key.kindID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key.e]
	return v, ok
}

// Entities returns a snapshot slice of all entities currently tracked for
// kind k. The snapshot may be stale relative to concurrent growth. The
// engine itself does not call Entities; only the table tests do.
func (t *propertyTable) Entities(k PropertyKind) []Entity {
	s := t.shard(k.ID())
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, 0, len(s.values))
	for e := range s.values {
		out = append(out, e)
	}
	return out
}

// EntitiesMatching returns every (entity, value) pair for kind k
// satisfying predicate.
func (t *propertyTable) EntitiesMatching(k PropertyKind, predicate func(EOptionP) bool) []EOptionP {
	s := t.shard(k.ID())
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []EOptionP
	for _, v := range s.values {
		if predicate(v) {
			out = append(out, v)
		}
	}
	return out
}
