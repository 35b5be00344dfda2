package propertystore

// taskVariant distinguishes the five kinds of compute-worker task named
// in §4.4.
type taskVariant int

const (
	taskInitialComputation taskVariant = iota
	taskOnUpdateContinuation
	taskOnFinalContinuation
	taskImmediateOnUpdate
	taskTriggeredLazyComputation
)

// task is submitted to the compute-worker task deque. Exactly one of
// compute or continuation is set, depending on variant.
type task struct {
	variant      taskVariant
	e            Entity
	k            PropertyKind
	compute      Computation
	continuation Continuation
	updated      EOptionP
	forceNotify  bool
}

// updateKind distinguishes the three kinds of item the updates worker
// drains from its deque (§4.4).
type updateKind int

const (
	updateDispatchResult updateKind = iota
	updateTriggerLazy
	updateExternalSet
)

// update is submitted to the updates-worker deque.
type update struct {
	kind            updateKind
	result          Result
	forceNotify     bool
	forceEvaluation bool

	// populated only for updateTriggerLazy
	e      Entity
	k      PropertyKind
	forced bool

	// populated only for updateExternalSet: Store.Set blocks on reply so
	// it can report a SetConflict synchronously instead of only through
	// the asynchronous worker-failure channel.
	reply chan error
}
