package propertystore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/propertystore/pkg/propertystore/storeerrors"
)

// pool runs the N compute workers plus the single updates worker of §4.4.
// It owns the two deques and the openJobs latch; the Store embeds one
// pool per phase.
type pool struct {
	store *Store

	taskQueue   *deque
	updateQueue *deque
	jobs        *jobCounter
	ready       *latch

	computeWorkers int
	suspend        atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	firstErrMu sync.Mutex
	firstErr   error
}

func newPool(store *Store, computeWorkers, taskCapacity, updateCapacity int) *pool {
	ready := newLatch()
	p := &pool{
		store:          store,
		taskQueue:      newDeque(taskCapacity),
		updateQueue:    newDeque(updateCapacity),
		ready:          ready,
		computeWorkers: computeWorkers,
	}
	p.jobs = newJobCounter(ready)
	if store.metrics != nil {
		p.jobs.gauge = func(n int64) { store.metrics.OpenJobs.Set(float64(n)) }
	}
	// A freshly built pool starts quiescent: the latch must be fired so
	// the first WaitOnPhaseCompletion call doesn't block on work that
	// was never submitted.
	ready.Fire()
	return p
}

func (p *pool) start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(p.computeWorkers + 1)
	for i := 0; i < p.computeWorkers; i++ {
		go p.computeLoop(i)
	}
	go p.updatesLoop()
}

func (p *pool) stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Suspend sets the cooperative-cancellation flag checked between tasks
// (§5). Workers already polling their deque still unblock via ctx
// cancellation at shutdown; Suspend is for a pause-without-teardown.
func (p *pool) Suspend(v bool) { p.suspend.Store(v) }

func (p *pool) recordFailure(err error) {
	p.firstErrMu.Lock()
	defer p.firstErrMu.Unlock()
	if p.firstErr == nil {
		p.firstErr = err
		if p.store.metrics != nil {
			p.store.metrics.WorkerFailures.Inc()
		}
		p.ready.Fire()
	}
}

func (p *pool) FirstError() error {
	p.firstErrMu.Lock()
	defer p.firstErrMu.Unlock()
	return p.firstErr
}

// submitExternalSet backs Store.Set: it pushes an updateExternalSet item
// and blocks for the updates worker's synchronous reply, so a
// SetConflict is reported to the caller instead of only surfacing
// through the asynchronous worker-failure channel.
func (p *pool) submitExternalSet(ctx context.Context, v ExternalResult) error {
	reply := make(chan error, 1)
	p.jobs.Inc()
	if err := p.updateQueue.PushBack(ctx, update{kind: updateExternalSet, result: v, reply: reply}); err != nil {
		p.jobs.Dec()
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pool) submitTask(ctx context.Context, t task) error {
	p.jobs.Inc()
	if err := p.taskQueue.PushBack(ctx, t); err != nil {
		p.jobs.Dec()
		return err
	}
	if p.store.metrics != nil {
		p.store.metrics.TasksScheduled.Inc()
	}
	return nil
}

func (p *pool) computeLoop(id int) {
	defer p.wg.Done()
	for {
		if p.suspend.Load() {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		item, err := p.taskQueue.PopFront(p.ctx)
		if err != nil {
			return
		}
		t := item.(task)
		p.runTask(t)
		p.jobs.Dec()
	}
}

func (p *pool) runTask(t task) {
	result, err := p.invoke(t)
	if err != nil {
		p.recordFailure(storeerrors.WorkerFailure(err))
		return
	}
	u := update{kind: updateDispatchResult, result: result, forceNotify: t.forceNotify}
	p.enqueueUpdate(u, resultIsFinalish(result))
}

func (p *pool) invoke(t task) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("propertystore: computation panicked: %v", r)
		}
	}()
	switch t.variant {
	case taskInitialComputation, taskTriggeredLazyComputation:
		return t.compute(p.store, t.e), nil
	case taskOnUpdateContinuation, taskOnFinalContinuation, taskImmediateOnUpdate:
		return t.continuation(p.store, t.updated), nil
	default:
		return NoResult{}, nil
	}
}

// enqueueUpdate pushes an update item onto the updates-worker deque,
// front for final-ish results (to propagate information early) and back
// for refinable ones (§4.4's prepend/append rule).
func (p *pool) enqueueUpdate(u update, prependFront bool) {
	p.jobs.Inc()
	var err error
	if prependFront {
		err = p.updateQueue.PushFront(p.ctx, u)
	} else {
		err = p.updateQueue.PushBack(p.ctx, u)
	}
	if err != nil {
		p.jobs.Dec()
	}
}

// resultIsFinalish reports whether r should jump the updates queue ahead
// of pending intermediate work. An IncrementalResult is classified by its
// primary result, and a Results batch counts as final-ish if any of its
// items does, since a batch containing any final result is still worth
// expediting.
func resultIsFinalish(r Result) bool {
	switch v := r.(type) {
	case FinalResult, MultiResult, ExternalResult, IdempotentResult, CSCCsResult, NoResult:
		return true
	case IntermediateResult, PartialResult:
		return false
	case IncrementalResult:
		return resultIsFinalish(v.Primary)
	case Results:
		for _, item := range v.Items {
			if resultIsFinalish(item) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (p *pool) updatesLoop() {
	defer p.wg.Done()
	for {
		item, err := p.updateQueue.PopFront(p.ctx)
		if err != nil {
			return
		}
		u := item.(update)
		p.handleUpdateItem(u)
		p.jobs.Dec()
	}
}

// handleUpdateItem runs one item on the updates worker. It recovers its
// own panics — a debug-mode Store.violate call is the only thing
// expected to panic here — and records a ContractViolation the same way
// invoke's recover does for the compute workers, instead of letting an
// unrecovered panic bring down the whole process.
func (p *pool) handleUpdateItem(u update) {
	defer func() {
		if r := recover(); r != nil {
			if cv, ok := r.(*storeerrors.ContractViolation); ok {
				p.recordFailure(cv)
			} else {
				p.recordFailure(storeerrors.WorkerFailure(fmt.Errorf("propertystore: updates worker panicked: %v", r)))
			}
		}
	}()
	switch u.kind {
	case updateDispatchResult:
		p.store.dispatch(u.result, u.forceNotify, u.forceEvaluation)
	case updateTriggerLazy:
		p.store.triggerLazy(u.e, u.k, u.forced)
	case updateExternalSet:
		u.reply <- p.store.applyExternalSet(u.result.(ExternalResult))
	}
}
