package propertystore

import "github.com/R3E-Network/propertystore/pkg/propertystore/storeerrors"

// dispatch is the single funnel every Result variant passes through
// (§4.5). It runs exclusively on the updates worker, so it is free to
// mutate the table and the graph without locking either. forceEvaluation
// only affects IntermediateResult: it skips the seen-dependee staleness
// check and re-runs the continuation against the first seen dependee that
// has a value on file, for an external caller (HandleResult) that knows a
// re-evaluation is owed for reasons the store can't see in SeenDependees
// itself. If no seen dependee has a value yet, the result is installed as
// usual.
func (s *Store) dispatch(r Result, forceNotify, forceEvaluation bool) {
	switch v := r.(type) {
	case NoResult:
		return
	case FinalResult:
		s.finalize(v.E, v.P, forceNotify)
	case MultiResult:
		for _, fr := range v.Values {
			s.finalize(fr.E, fr.P, forceNotify)
		}
	case PartialResult:
		s.partial(v, forceNotify)
	case IncrementalResult:
		s.dispatch(v.Primary, forceNotify, forceEvaluation)
		s.scheduleFollowUps(v.FollowUps, v.Hint)
	case Results:
		for _, item := range v.Items {
			s.dispatch(item, forceNotify, forceEvaluation)
		}
	case IntermediateResult:
		s.intermediate(v, forceNotify, forceEvaluation)
	case IdempotentResult:
		s.idempotent(v)
	case ExternalResult:
		s.finalize(v.E, v.P, forceNotify)
	case CSCCsResult:
		s.resolveSCCs(v)
	}
}

// finalize installs a terminal value for (e, p.Kind()), clears its
// dependee set (Invariant 4: a final value depends on nothing), and
// notifies dependers if the value actually changed.
func (s *Store) finalize(e Entity, p Property, forceNotify bool) {
	k := p.Kind()
	key := keyOf(e, k)
	old, existed := s.table.Get(e, k)
	next := NewFinalEP(e, p)

	if existed {
		if old.IsFinal() {
			if !propertiesEqual(old.UB(), p) {
				s.violate(storeerrors.FinalMutation(k.Name(), e))
				return
			}
		} else if !checkMonotone(k, old, next) {
			s.violate(storeerrors.NonMonotoneRefinement(k.Name(), e, old.String(), next.String()))
			return
		}
	}

	s.table.Set(next)
	s.graph.clearDependeesOf(key)
	changed := !existed || !old.IsFinal() || !propertiesEqual(old.UB(), p)
	if changed || forceNotify {
		s.notifyDependers(key, next)
	}
	if changed {
		for _, fn := range s.finalizeHooks() {
			fn(e, p)
		}
	}
}

// partial applies a PartialResult's Update against the current value,
// installing the outcome as a new terminal value when it changes
// (PartialResult only ever tightens a running accumulation, so there is
// no meaningful non-final intermediate state for it to hold).
func (s *Store) partial(v PartialResult, forceNotify bool) {
	old, existed := s.table.Get(v.E, v.K)
	var current Property
	if existed {
		current = old.UB()
	}
	next, ok := v.Update(current)
	if !ok {
		if s.metrics != nil {
			s.metrics.UselessPartial.Inc()
		}
		return
	}
	if existed && !v.K.MoreOrEquallyPrecise(next, current) {
		s.violate(storeerrors.NonMonotoneRefinement(v.K.Name(), v.E, current, next))
		return
	}
	s.finalize(v.E, next, forceNotify)
}

// intermediate installs a refinable bound pair and the dependee set the
// computation consulted to produce it. Before installing, it checks
// whether any named dependee has already advanced past the snapshot the
// computation saw; if so, the computation is stale and is re-run against
// the freshest value instead (§4.5 step 1), and the stale result is
// discarded rather than installed. forceEvaluation short-circuits that
// check and re-runs the continuation against the first seen dependee
// that has a value on file, regardless of whether it looks refined;
// dependees with no value are skipped, and if none has one the result is
// installed as usual.
func (s *Store) intermediate(v IntermediateResult, forceNotify, forceEvaluation bool) {
	for _, seen := range v.SeenDependees {
		cur, ok := s.table.Get(seen.E, seen.K)
		if !ok {
			continue
		}
		if forceEvaluation || refined(seen.K, seen, cur) {
			s.resumeContinuation(v.Continuation, cur, v.Hint, forceNotify, true)
			return
		}
	}

	key := keyOf(v.E, v.K)
	old, existed := s.table.Get(v.E, v.K)
	next := NewEPS(v.E, v.LB, v.UB)
	if existed {
		if old.IsFinal() {
			s.violate(storeerrors.FinalMutation(v.K.Name(), v.E))
			return
		}
		if !checkMonotone(v.K, old, next) {
			s.violate(storeerrors.NonMonotoneRefinement(v.K.Name(), v.E, old.String(), next.String()))
			return
		}
	}

	s.table.Set(next)
	s.graph.SetDependees(key, dependerEntry{cont: v.Continuation, hint: v.Hint, forceNotify: forceNotify}, v.SeenDependees)

	changed := !existed || refined(v.K, old, next)
	if changed || forceNotify {
		s.notifyDependers(key, next)
	}
}

// idempotent installs P only if (e, P.Kind()) has no value yet; a value
// already on file means some other computation got there first, and the
// result is dropped. If the value on file is not final or differs from P,
// the drop is logged as a warning (release) or reported as a contract
// violation (debug) — see DESIGN.md Open Question 1.
func (s *Store) idempotent(v IdempotentResult) {
	k := v.P.Kind()
	old, existed := s.table.Get(v.E, k)
	if !existed {
		s.finalize(v.E, v.P, false)
		return
	}
	if s.metrics != nil {
		s.metrics.RedundantIdempotent.Inc()
	}
	if !old.IsFinal() || !propertiesEqual(old.UB(), v.P) {
		if s.cfg.Debug {
			s.violate(storeerrors.IdempotentMismatch(k.Name(), v.E))
			return
		}
		if s.log != nil {
			s.log.WithFields(map[string]any{"kind": k.Name(), "entity": v.E}).Warn("idempotent result disagrees with the value on file; dropped")
		}
	}
}

// resolveSCCs finalizes every member of every closed strongly-connected
// component the phase controller found (§4.7). Internal edges are
// stripped first so finalizing one member doesn't spuriously notify
// another member still awaiting its own resolution.
func (s *Store) resolveSCCs(v CSCCsResult) {
	members := make(map[pairKey]struct{})
	for _, scc := range v.SCCs {
		for _, eop := range scc {
			members[keyOfEOptionP(eop)] = struct{}{}
		}
	}
	s.graph.clearInternalEdges(members)

	for _, scc := range v.SCCs {
		for _, eop := range scc {
			resolved := eop.K.ResolveCycle(s, eop)
			s.finalize(eop.E, resolved, false)
		}
	}
	if s.metrics != nil {
		s.metrics.ResolvedSCCs.Add(float64(len(v.SCCs)))
	}
}

// applyExternalSet backs Store.Set: it enforces Open Question 3's
// unconditional-rejection rule and, on success, installs the value
// through the same finalize path as any other final result.
func (s *Store) applyExternalSet(v ExternalResult) error {
	k := v.P.Kind()
	if _, existed := s.table.Get(v.E, k); existed {
		return storeerrors.SetConflict(k.Name(), v.E)
	}
	s.finalize(v.E, v.P, false)
	return nil
}

// notifyDependers resumes every continuation registered against
// dependee with its freshly installed value.
func (s *Store) notifyDependers(dependee pairKey, current EOptionP) {
	for _, entry := range s.graph.Dependers(dependee) {
		s.resumeContinuation(entry.cont, current, entry.hint, entry.forceNotify, false)
	}
}

// resumeContinuation applies a dependee update to a suspended
// continuation, either inline (Cheap) or as a queued task (Expensive).
// immediate marks a continuation resumed because SeenDependees was
// already stale at install time, as opposed to a later notify.
func (s *Store) resumeContinuation(cont Continuation, updated EOptionP, hint Hint, forceNotify, immediate bool) {
	if hint == Cheap {
		s.dispatch(cont(s, updated), forceNotify, false)
		return
	}
	variant := taskOnUpdateContinuation
	switch {
	case immediate:
		variant = taskImmediateOnUpdate
	case updated.IsFinal():
		variant = taskOnFinalContinuation
	}
	_ = s.pool.submitTask(s.shutdownCtx(), task{
		variant:      variant,
		continuation: cont,
		updated:      updated,
		forceNotify:  forceNotify,
	})
}

// scheduleFollowUps submits an IncrementalResult's follow-up
// computations, inlining Cheap ones and queuing Expensive ones exactly
// like resumeContinuation does for continuations.
func (s *Store) scheduleFollowUps(followUps []FollowUp, hint Hint) {
	for _, f := range followUps {
		if hint == Cheap {
			s.dispatch(f.Compute(s, f.E), false, false)
			continue
		}
		_ = s.pool.submitTask(s.shutdownCtx(), task{
			variant: taskInitialComputation,
			e:       f.E,
			compute: f.Compute,
		})
	}
}

// triggerLazy runs the registered lazy computation for (e, k). forced
// marks the pair so the phase controller's forced round (§4.6) will not
// let it end the phase intermediate; it is recorded even if the pair was
// already triggered earlier (by Get, say), since Force's guarantee binds
// regardless of who triggered the computation.
func (s *Store) triggerLazy(e Entity, k PropertyKind, forced bool) {
	key := keyOf(e, k)
	if forced {
		s.graph.MarkForced(key)
	}
	if !s.graph.MarkTriggered(key) {
		return
	}
	comp, ok := s.lazyComputations[k.ID()]
	if !ok {
		s.violate(storeerrors.New(storeerrors.CodeWorkerFailure, "no lazy computation registered for kind "+k.Name()))
		return
	}
	_ = s.pool.submitTask(s.shutdownCtx(), task{
		variant: taskTriggeredLazyComputation,
		e:       e,
		k:       k,
		compute: comp,
	})
}

// violate records a fatal contract violation. In debug mode it panics;
// every caller of violate (dispatch and its helpers, triggerLazy) runs
// exclusively on the updates worker, so the panic is caught by
// handleUpdateItem's own recover and surfaced through the pool's
// first-error slot like any other worker failure. In release mode it
// logs the violation and records it directly in that same slot, which
// fires the quiescence latch so WaitOnPhaseCompletion returns it; the
// worker-failure metric counts only the first recorded failure.
func (s *Store) violate(err *storeerrors.ContractViolation) {
	if s.log != nil {
		s.log.WithFields(map[string]any{"code": err.Code, "details": err.Details}).Error(err.Message)
	}
	if s.cfg.Debug {
		panic(err)
	}
	s.pool.recordFailure(err)
}
