package propertystore

import (
	"testing"

	"github.com/R3E-Network/propertystore/internal/logger"
	"github.com/R3E-Network/propertystore/pkg/propertystore/storeconfig"
)

func newTestStore(debug bool) *Store {
	cfg := storeconfig.Default()
	cfg.Debug = debug
	return New(cfg, WithLogger(logger.Nop()))
}

func TestDispatchFinalResultInstallsAndNotifiesHook(t *testing.T) {
	k := intKind{id: 1}
	s := newTestStore(false)

	var hookCalls []int
	s.OnFinalize(func(e Entity, p Property) {
		hookCalls = append(hookCalls, p.(intProp).v)
	})

	s.dispatch(FinalResult{E: "e1", P: intProp{k: k, v: 42}}, false, false)

	got, ok := s.table.Get("e1", k)
	if !ok || !got.IsFinal() || got.UB().(intProp).v != 42 {
		t.Fatalf("expected final value 42 installed, got %v (ok=%v)", got, ok)
	}
	if len(hookCalls) != 1 || hookCalls[0] != 42 {
		t.Fatalf("expected OnFinalize hook to fire once with 42, got %v", hookCalls)
	}
}

func TestFinalizeRejectsMutationOfExistingFinal(t *testing.T) {
	k := intKind{id: 1}
	s := newTestStore(true)
	s.table.Set(NewFinalEP("e1", intProp{k: k, v: 1}))

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a panic on mutating an already-final value in debug mode")
		}
	}()
	s.finalize("e1", intProp{k: k, v: 2}, false)
}

func TestIntermediateRejectsNonMonotoneRefinement(t *testing.T) {
	k := intKind{id: 1}
	s := newTestStore(true)
	// A non-final refinable bound pair (lb=2, ub=10); an intermediate
	// update that raises ub to 20 regresses the upper bound, violating
	// monotonicity.
	s.table.Set(NewEPS("e1", intProp{k: k, v: 2}, intProp{k: k, v: 10}))

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected a panic on a non-monotone transition in debug mode")
		}
	}()
	s.intermediate(IntermediateResult{
		E: "e1", K: k,
		LB: intProp{k: k, v: 2}, UB: intProp{k: k, v: 20},
	}, false, false)
}

func TestDispatchIdempotentFirstInstallWins(t *testing.T) {
	k := intKind{id: 1}
	s := newTestStore(false)

	s.dispatch(IdempotentResult{E: "e1", P: intProp{k: k, v: 9}}, false, false)
	got, ok := s.table.Get("e1", k)
	if !ok || got.UB().(intProp).v != 9 {
		t.Fatalf("expected idempotent value installed, got %v", got)
	}

	// A second idempotent result for the same pair must be dropped, not
	// overwrite the first.
	s.dispatch(IdempotentResult{E: "e1", P: intProp{k: k, v: 100}}, false, false)
	got2, _ := s.table.Get("e1", k)
	if got2.UB().(intProp).v != 9 {
		t.Fatalf("expected first idempotent value to stick, got %v", got2)
	}
}

func TestDispatchIntermediateInstallsAndRegistersDependee(t *testing.T) {
	k := intKind{id: 1}
	s := newTestStore(false)

	resumed := false
	cont := func(s *Store, updated EOptionP) Result {
		resumed = true
		return NoResult{}
	}

	s.dispatch(IntermediateResult{
		E: "e2", K: k,
		LB: intProp{k: k, v: 0}, UB: intProp{k: k, v: 10},
		SeenDependees: []EOptionP{NewEPK("e1", k)},
		Continuation:  cont,
		Hint:          Cheap,
	}, false, false)

	got, ok := s.table.Get("e2", k)
	if !ok || got.IsFinal() {
		t.Fatalf("expected a non-final refinable value for e2, got %v", got)
	}

	// Finalizing e1 must resume e2's continuation inline (Cheap hint).
	s.dispatch(FinalResult{E: "e1", P: intProp{k: k, v: 3}}, false, false)
	if !resumed {
		t.Fatalf("expected e2's continuation to resume once e1 finalized")
	}
}

func TestDispatchIntermediateDiscardsStaleSnapshot(t *testing.T) {
	k := intKind{id: 1}
	s := newTestStore(false)

	// e1 is already final by the time the IntermediateResult for e2
	// is dispatched, but SeenDependees still names e1's pre-final EPK.
	s.table.Set(NewFinalEP("e1", intProp{k: k, v: 7}))

	rerunWith := -1
	cont := func(s *Store, updated EOptionP) Result {
		rerunWith = updated.UB().(intProp).v
		return FinalResult{E: "e2", P: intProp{k: k, v: updated.UB().(intProp).v + 1}}
	}

	s.dispatch(IntermediateResult{
		E: "e2", K: k,
		LB: intProp{k: k, v: 0}, UB: intProp{k: k, v: 100},
		SeenDependees: []EOptionP{NewEPK("e1", k)},
		Continuation:  cont,
		Hint:          Cheap,
	}, false, false)

	if rerunWith != 7 {
		t.Fatalf("expected the stale continuation to be re-run against the fresh value 7, got %d", rerunWith)
	}
	got, ok := s.table.Get("e2", k)
	if !ok || got.UB().(intProp).v != 8 {
		t.Fatalf("expected e2 finalized to 8 after stale re-run, got %v", got)
	}
}

func TestApplyExternalSetRejectsConflict(t *testing.T) {
	k := intKind{id: 1}
	s := newTestStore(false)
	s.table.Set(NewFinalEP("e1", intProp{k: k, v: 1}))

	err := s.applyExternalSet(ExternalResult{E: "e1", P: intProp{k: k, v: 2}})
	if err == nil {
		t.Fatalf("expected a conflict error when a value already exists")
	}
}

func TestApplyExternalSetInstallsWhenAbsent(t *testing.T) {
	k := intKind{id: 1}
	s := newTestStore(false)

	if err := s.applyExternalSet(ExternalResult{E: "e1", P: intProp{k: k, v: 5}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := s.table.Get("e1", k)
	if !ok || got.UB().(intProp).v != 5 {
		t.Fatalf("expected external value installed, got %v", got)
	}
}

func TestResolveSCCsFinalizesEveryMemberAndClearsInternalEdges(t *testing.T) {
	k := intKind{id: 1}
	s := newTestStore(false)

	s.table.Set(NewEPS("a", intProp{k: k, v: 0}, intProp{k: k, v: 3}))
	s.table.Set(NewEPS("b", intProp{k: k, v: 0}, intProp{k: k, v: 4}))
	s.graph.SetDependees(keyOf("a", k), dependerEntry{hint: Cheap}, []EOptionP{NewEPK("b", k)})
	s.graph.SetDependees(keyOf("b", k), dependerEntry{hint: Cheap}, []EOptionP{NewEPK("a", k)})

	aVal, _ := s.table.GetByPair(keyOf("a", k))
	bVal, _ := s.table.GetByPair(keyOf("b", k))

	s.resolveSCCs(CSCCsResult{SCCs: [][]EOptionP{{aVal, bVal}}})

	gotA, _ := s.table.Get("a", k)
	gotB, _ := s.table.Get("b", k)
	if !gotA.IsFinal() || !gotB.IsFinal() {
		t.Fatalf("expected both SCC members finalized, got a=%v b=%v", gotA, gotB)
	}
	if s.graph.HasDependees(keyOf("a", k)) || s.graph.HasDependees(keyOf("b", k)) {
		t.Fatalf("expected internal SCC edges cleared before finalization")
	}
}

func TestPartialResultInstallsFromAbsent(t *testing.T) {
	// PartialResult always finalizes its outcome (see finalize's
	// FinalMutation guard), so this only applies cleanly starting from
	// "no value yet" rather than refining an already-final entity.
	k := intKind{id: 1}
	s := newTestStore(false)

	s.dispatch(PartialResult{
		E: "e1", K: k,
		Update: func(current Property) (Property, bool) {
			if current == nil {
				return intProp{k: k, v: 1}, true
			}
			return intProp{k: k, v: current.(intProp).v + 1}, true
		},
	}, false, false)

	got, ok := s.table.Get("e1", k)
	if !ok || got.UB().(intProp).v != 1 {
		t.Fatalf("expected partial update to install 1 from no prior value, got %v", got)
	}
}
