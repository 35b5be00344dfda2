package propertystore

// Hint steers whether the dispatcher inlines a cheap follow-up
// continuation in the same dispatch pass or schedules it as a task on the
// compute-worker pool (§4.3, §4.5 "Cheap vs expensive continuation
// path"). It does not affect correctness, only throughput.
type Hint int

const (
	// Cheap follow-ups are accumulated on a local stack and processed
	// in the same dispatch loop, avoiding a task-queue round trip.
	Cheap Hint = iota
	// Expensive follow-ups are enqueued as ordinary tasks.
	Expensive
)

func (h Hint) String() string {
	if h == Cheap {
		return "Cheap"
	}
	return "Expensive"
}

// Computation is a property computation function: given an entity, it
// synchronously returns a Result. Any dependees named in an
// IntermediateResult it returns must be the complete set of values it
// actually consulted.
type Computation func(s *Store, e Entity) Result

// Continuation resumes a suspended computation with a dependee's updated
// value. It may itself return any Result variant, including another
// IntermediateResult.
type Continuation func(s *Store, updated EOptionP) Result

// FastTrack is an eager approximation of a lazy computation, tried by Get
// before falling back to triggering the real computation (§4.6).
type FastTrack func(s *Store, e Entity) (Property, bool)

// Result is the tagged union of property-computation outcomes (§4.5).
// Concrete variants are the exported *Result structs below; the
// interface exists only to let HandleResult accept any of them.
type Result interface {
	isResult()
}

// NoResult means the computation had nothing to contribute.
type NoResult struct{}

func (NoResult) isResult() {}

// FinalResult is a computed final value for one entity/kind.
type FinalResult struct {
	E Entity
	P Property
}

func (FinalResult) isResult() {}

// MultiResult is a batch of final values, typically produced by a
// computation that determines several entities' properties together.
type MultiResult struct {
	Values []FinalResult
}

func (MultiResult) isResult() {}

// PartialResult collaboratively updates a kind's value for an entity: the
// dispatcher reads the current value, applies Update, and — if Update
// returns ok — treats the result as a potential refinement.
type PartialResult struct {
	E      Entity
	K      PropertyKind
	Update func(current Property) (next Property, ok bool)
}

func (PartialResult) isResult() {}

// FollowUp schedules an additional computation as part of an
// IncrementalResult.
type FollowUp struct {
	E       Entity
	Compute Computation
}

// IncrementalResult carries a primary result plus additional
// (computation, entity) pairs to schedule afterward.
type IncrementalResult struct {
	Primary   Result
	FollowUps []FollowUp
	Hint      Hint
}

func (IncrementalResult) isResult() {}

// Results is a batch of independent results, dispatched in order.
type Results struct {
	Items []Result
}

func (Results) isResult() {}

// IntermediateResult is a refinable update naming the dependees the
// computation consulted to produce it (§4.5's core loop).
type IntermediateResult struct {
	E             Entity
	K             PropertyKind
	LB, UB        Property
	SeenDependees []EOptionP
	Continuation  Continuation
	Hint          Hint
}

func (IntermediateResult) isResult() {}

// IdempotentResult is an optional final value: if the entity/kind
// currently has no value, it is installed as a Result; otherwise it is
// dropped (or, in debug mode, compared against the existing value — see
// DESIGN.md Open Question 1).
type IdempotentResult struct {
	E Entity
	P Property
}

func (IdempotentResult) isResult() {}

// ExternalResult is a final value supplied from outside the computation
// graph (via Store.Set); the caller asserts it has no dependencies.
type ExternalResult struct {
	E Entity
	P Property
}

func (ExternalResult) isResult() {}

// CSCCsResult resolves a set of closed strongly-connected components,
// produced internally by the phase controller (§4.7) and dispatched
// through the same funnel as any client result.
type CSCCsResult struct {
	SCCs [][]EOptionP
}

func (CSCCsResult) isResult() {}
