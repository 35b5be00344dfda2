package propertystore

import (
	"context"

	"github.com/R3E-Network/propertystore/pkg/propertystore/storeerrors"
)

// WaitOnPhaseCompletion blocks until the phase reaches true quiescence:
// the open-job counter hits zero and no round of fallback injection, SCC
// resolution, or orphan finalization produces further work (§4.7). It
// returns the first worker failure recorded during the phase, if any.
func (s *Store) WaitOnPhaseCompletion(ctx context.Context) error {
	for {
		if err := s.pool.ready.Wait(ctx); err != nil {
			return err
		}
		if err := s.pool.FirstError(); err != nil {
			return err
		}
		if s.pool.jobs.Load() != 0 {
			// The latch fired while a job was (or is again) in flight — an
			// Inc racing the Arm/Fire decision, or simply new work
			// submitted between Fire and this check. Either way the graph
			// is not ours to read yet; go back to waiting rather than
			// running a round against it.
			continue
		}
		if s.metrics != nil {
			s.metrics.QuiescenceCount.Inc()
		}

		injected := s.runFallbackRound()
		if !injected {
			injected = s.runSCCRound()
		}
		if !injected {
			injected = s.runOrphanRound()
		}
		if !injected {
			injected = s.runForcedRound()
		}

		if !injected {
			if s.cfg.Debug {
				s.assertForcedPairsFinal()
			}
			s.mu.Lock()
			s.phaseRunning = false
			s.mu.Unlock()
			return s.pool.FirstError()
		}
	}
}

// runFallbackRound injects PropertyKind.Fallback for every (entity,
// computed kind) pair with no value yet. Only runs while the pool is
// quiescent, so reading the table without a snapshot lock beyond its own
// per-shard RWMutex is safe: nothing is writing to an entity's kinds
// concurrently at this point.
func (s *Store) runFallbackRound() bool {
	entities := s.knownEntitiesSnapshot()
	kinds := s.computedKindsSnapshot()
	injected := false
	for _, e := range entities {
		for _, k := range kinds {
			if _, ok := s.table.Get(e, k); ok {
				continue
			}
			fb := k.Fallback(s, e)
			s.pool.enqueueUpdate(update{kind: updateDispatchResult, result: FinalResult{E: e, P: fb}}, true)
			injected = true
			if s.metrics != nil {
				s.metrics.FallbacksUsed.Inc()
			}
		}
	}
	return injected
}

// runSCCRound resolves any closed strongly-connected components still
// standing after the fallback round.
func (s *Store) runSCCRound() bool {
	groups := s.findClosedSCCs()
	if len(groups) == 0 {
		return false
	}
	sccs := s.snapshotSCCs(groups)
	if len(sccs) == 0 {
		return false
	}
	s.pool.enqueueUpdate(update{kind: updateDispatchResult, result: CSCCsResult{SCCs: sccs}}, true)
	return true
}

// runOrphanRound finalizes refinable values nobody depends on and that
// depend on nothing themselves: once the fallback and SCC rounds have
// run, such a value will never be refined further, so its current upper
// bound is promoted to final rather than leaving it stuck below Top.
func (s *Store) runOrphanRound() bool {
	injected := false
	for _, k := range s.computedKindsSnapshot() {
		orphans := s.table.EntitiesMatching(k, func(v EOptionP) bool {
			if v.IsFinal() {
				return false
			}
			key := keyOf(v.E, v.K)
			return !s.graph.HasDependees(key) && !s.graph.HasDependers(key)
		})
		for _, v := range orphans {
			s.pool.enqueueUpdate(update{kind: updateDispatchResult, result: FinalResult{E: v.E, P: v.UB()}}, true)
			injected = true
		}
	}
	return injected
}

// runForcedRound finalizes every pair Force marked forced that the
// fallback, SCC, and orphan rounds left intermediate (or without a value
// at all): §4.6 promises the phase controller will not let a forced pair
// end the phase unresolved, regardless of how many dependees or
// dependers it still carries.
func (s *Store) runForcedRound() bool {
	injected := false
	for _, key := range s.graph.ForcedKeys() {
		v, ok := s.table.GetByPair(key)
		if ok && v.IsFinal() {
			continue
		}
		k := s.kindByID(key.kindID)
		if k == nil {
			continue
		}
		var p Property
		if ok && v.HasValue() {
			p = v.UB()
		} else {
			p = k.Fallback(s, key.e)
			if s.metrics != nil {
				s.metrics.FallbacksUsed.Inc()
			}
		}
		s.pool.enqueueUpdate(update{kind: updateDispatchResult, result: FinalResult{E: key.e, P: p}}, true)
		injected = true
	}
	return injected
}

// assertForcedPairsFinal is the §7.4 debug-mode check that runs right
// before a phase is declared complete: every forced pair must carry a
// final value by then, since runForcedRound ran in the same iteration
// and would have injected work (looping the wait) otherwise.
func (s *Store) assertForcedPairsFinal() {
	for _, key := range s.graph.ForcedKeys() {
		v, ok := s.table.GetByPair(key)
		if !ok || !v.IsFinal() {
			kindName := "unknown"
			if k := s.kindByID(key.kindID); k != nil {
				kindName = k.Name()
			}
			panic(storeerrors.ForcedPairIntermediate(kindName, key.e))
		}
	}
}

// kindByID looks up a registered kind (computed or delayed) by the id
// stored in a pairKey.
func (s *Store) kindByID(id int) PropertyKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.computedKinds[id]; ok {
		return k
	}
	if k, ok := s.delayedKinds[id]; ok {
		return k
	}
	return nil
}
