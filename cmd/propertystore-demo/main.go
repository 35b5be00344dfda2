// Command propertystore-demo wires two toy analyses through a Store
// end to end: a five-entity linear dependency chain, and a two-entity
// cycle resolved by ResolveCycle. It exists to exercise the full
// client-facing API (New, Start, SetupPhase,
// ScheduleEager, WaitOnPhaseCompletion, Get, Stop) the way a real batch
// client would, and to double as a runnable smoke test.
//
// Run: go run ./cmd/propertystore-demo
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/propertystore/internal/logger"
	"github.com/R3E-Network/propertystore/pkg/propertystore"
	"github.com/R3E-Network/propertystore/pkg/propertystore/storeconfig"
)

// rank is a tiny lattice: an unknown rank refines upward from 0 towards
// a final, entity-specific ceiling. It plays both property kinds in
// this demo (chain and cycle) since both only need "a number that only
// ever increases".
type rank struct {
	kind  propertystore.PropertyKind
	value int
}

func (r rank) Kind() propertystore.PropertyKind { return r.kind }
func (r rank) String() string                   { return fmt.Sprintf("%d", r.value) }

func (r rank) Equal(other propertystore.Property) bool {
	o, ok := other.(rank)
	return ok && o.value == r.value
}

// chainKind models "depth in a dependency chain": entity N's rank is
// one more than entity N-1's, with entity 0 fixed at rank 0.
type chainKind struct{}

func (chainKind) ID() int   { return 1 }
func (chainKind) Name() string { return "chain.rank" }

func (chainKind) Fallback(s *propertystore.Store, e propertystore.Entity) propertystore.Property {
	return rank{kind: chainKind{}, value: 0}
}

func (chainKind) ResolveCycle(s *propertystore.Store, current propertystore.EOptionP) propertystore.Property {
	if current.HasValue() {
		return current.UB()
	}
	return rank{kind: chainKind{}, value: 0}
}

func (chainKind) MoreOrEquallyPrecise(newer, older propertystore.Property) bool {
	return newer.(rank).value >= older.(rank).value
}

func (chainKind) Meet(a, b propertystore.Property) propertystore.Property {
	if a.(rank).value >= b.(rank).value {
		return a
	}
	return b
}

// cycleKind models two entities whose ranks are each defined in terms
// of the other (e.g. mutual recursion). Left alone this never reaches
// a fixed point, so the phase controller's SCC round breaks the tie by
// calling ResolveCycle.
type cycleKind struct{}

func (cycleKind) ID() int      { return 2 }
func (cycleKind) Name() string { return "cycle.rank" }

func (cycleKind) Fallback(s *propertystore.Store, e propertystore.Entity) propertystore.Property {
	return rank{kind: cycleKind{}, value: 0}
}

// ResolveCycle breaks the tie by promoting whatever bound the entity
// had accumulated so far, mirroring how an analysis without a better
// answer treats "still refinable" as "good enough to finalize".
func (cycleKind) ResolveCycle(s *propertystore.Store, current propertystore.EOptionP) propertystore.Property {
	if current.HasValue() {
		return current.UB()
	}
	return rank{kind: cycleKind{}, value: 0}
}

func (cycleKind) MoreOrEquallyPrecise(newer, older propertystore.Property) bool {
	return newer.(rank).value >= older.(rank).value
}

func (cycleKind) Meet(a, b propertystore.Property) propertystore.Property {
	if a.(rank).value >= b.(rank).value {
		return a
	}
	return b
}

// chainEntity and cycleEntity keep the two toy analyses' entities out
// of each other's way despite both being plain ints.
type chainEntity int
type cycleEntity int

// computeChainRank is entity n's initial computation: it depends on
// n-1's rank and only ever tightens once that dependee updates.
func computeChainRank(n int) propertystore.Computation {
	return func(s *propertystore.Store, e propertystore.Entity) propertystore.Result {
		if n == 0 {
			return propertystore.FinalResult{E: e, P: rank{kind: chainKind{}, value: 0}}
		}
		prevKey := chainEntity(n - 1)
		prev, ok := s.Get(prevKey, chainKind{})
		if ok {
			return propertystore.FinalResult{E: e, P: rank{kind: chainKind{}, value: prev.(rank).value + 1}}
		}
		return propertystore.IntermediateResult{
			E:  e,
			K:  chainKind{},
			LB: rank{kind: chainKind{}, value: 0},
			UB: rank{kind: chainKind{}, value: n},
			SeenDependees: []propertystore.EOptionP{
				propertystore.NewEPK(prevKey, chainKind{}),
			},
			Continuation: chainContinuation(n),
			Hint:         propertystore.Cheap,
		}
	}
}

func chainContinuation(n int) propertystore.Continuation {
	return func(s *propertystore.Store, updated propertystore.EOptionP) propertystore.Result {
		if !updated.HasValue() {
			return propertystore.NoResult{}
		}
		return propertystore.FinalResult{
			E: chainEntity(n),
			P: rank{kind: chainKind{}, value: updated.UB().(rank).value + 1},
		}
	}
}

// computeCycleRank has entity 0 depend on entity 1 and vice versa, so
// neither side ever reaches a value on its own: every notification just
// re-suspends on the other entity's latest (still refinable) bound. The
// phase controller's SCC round is what actually terminates this pair,
// via ResolveCycle. Each re-suspension carries forward the exact
// EOptionP it was resumed with, rather than a fresh never-seen-it EPK —
// otherwise the dispatcher's stale-dependee check (§4.5 step 1) would
// see a perpetually "advanced" dependee and recurse forever.
func computeCycleRank(self, other cycleEntity, seed int) propertystore.Computation {
	var suspend func(e propertystore.Entity, seen propertystore.EOptionP) propertystore.Result
	suspend = func(e propertystore.Entity, seen propertystore.EOptionP) propertystore.Result {
		return propertystore.IntermediateResult{
			E:             e,
			K:             cycleKind{},
			LB:            rank{kind: cycleKind{}, value: 0},
			UB:            rank{kind: cycleKind{}, value: seed},
			SeenDependees: []propertystore.EOptionP{seen},
			Continuation: func(s *propertystore.Store, updated propertystore.EOptionP) propertystore.Result {
				return suspend(e, updated)
			},
			Hint: propertystore.Cheap,
		}
	}
	return func(s *propertystore.Store, e propertystore.Entity) propertystore.Result {
		return suspend(e, propertystore.NewEPK(other, cycleKind{}))
	}
}

func main() {
	log := logger.NewDefault("propertystore-demo")
	cfg := storeconfig.Default()
	store := propertystore.New(cfg, propertystore.WithLogger(log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := store.Start(ctx); err != nil {
		log.WithFields(map[string]any{"error": err.Error()}).Error("failed to start store")
		os.Exit(1)
	}

	const chainLen = 5
	if err := store.SetupPhase(
		[]propertystore.PropertyKind{chainKind{}, cycleKind{}},
		nil,
	); err != nil {
		log.WithFields(map[string]any{"error": err.Error()}).Error("failed to set up phase")
		os.Exit(1)
	}

	for n := 0; n < chainLen; n++ {
		if err := store.ScheduleEager(chainEntity(n), chainKind{}, computeChainRank(n)); err != nil {
			log.WithFields(map[string]any{"error": err.Error(), "n": n}).Error("failed to schedule chain entity")
			os.Exit(1)
		}
	}

	const cycleA, cycleB = cycleEntity(0), cycleEntity(1)
	if err := store.ScheduleEager(cycleA, cycleKind{}, computeCycleRank(cycleA, cycleB, 1)); err != nil {
		log.WithFields(map[string]any{"error": err.Error()}).Error("failed to schedule cycle entity A")
		os.Exit(1)
	}
	if err := store.ScheduleEager(cycleB, cycleKind{}, computeCycleRank(cycleB, cycleA, 1)); err != nil {
		log.WithFields(map[string]any{"error": err.Error()}).Error("failed to schedule cycle entity B")
		os.Exit(1)
	}

	waitCtx, waitCancel := context.WithTimeout(ctx, 30*time.Second)
	defer waitCancel()
	if err := store.WaitOnPhaseCompletion(waitCtx); err != nil {
		log.WithFields(map[string]any{"error": err.Error()}).Error("phase did not quiesce cleanly")
	}

	log.Info("chain results:")
	for n := 0; n < chainLen; n++ {
		p, ok := store.Get(chainEntity(n), chainKind{})
		if !ok {
			log.WithFields(map[string]any{"n": n}).Warn("no value for chain entity")
			continue
		}
		fmt.Printf("  chain[%d] = %s\n", n, p)
	}

	log.Info("cycle results:")
	for _, e := range []cycleEntity{cycleA, cycleB} {
		p, ok := store.Get(e, cycleKind{})
		if !ok {
			log.WithFields(map[string]any{"entity": int(e)}).Warn("no value for cycle entity")
			continue
		}
		fmt.Printf("  cycle[%d] = %s\n", e, p)
	}

	if err := store.Stop(context.Background()); err != nil {
		log.WithFields(map[string]any{"error": err.Error()}).Error("store stop reported an error")
		os.Exit(1)
	}
	log.Info("demo complete")
}
