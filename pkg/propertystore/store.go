package propertystore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/R3E-Network/propertystore/internal/logger"
	"github.com/R3E-Network/propertystore/pkg/propertystore/storeconfig"
	"github.com/R3E-Network/propertystore/pkg/propertystore/storeerrors"
	"github.com/R3E-Network/propertystore/pkg/propertystore/storemetrics"
	"github.com/R3E-Network/propertystore/pkg/propertystore/storetracing"
)

// Store is the client-facing facade: it owns the property table, the
// dependency graph, the worker pool, and the registration/phase
// lifecycle that ties them together. One Store runs one analysis at a
// time; SetupPhase starts a fresh phase once the previous one has fully
// drained.
type Store struct {
	cfg     *storeconfig.Config
	log     *logger.Logger
	tracer  storetracing.Tracer
	metrics *storemetrics.Metrics

	table *propertyTable
	graph *dependencyGraph
	pool  *pool

	ctx    context.Context
	cancel context.CancelFunc

	mu               sync.Mutex
	lazyComputations map[int]Computation
	fastTracks       map[int]FastTrack
	computedKinds    map[int]PropertyKind
	delayedKinds     map[int]PropertyKind
	knownEntities    map[Entity]struct{}
	phaseRunning     bool
	phaseID          string
	onFinalize       []func(Entity, Property)

	fastTrackLimiter *rate.Limiter
	fastTrackCache   *lru.Cache[pairKey, Property]
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithTracer overrides the default no-op tracer. The Store keeps the
// tracer but does not invoke it: no state transition is traced.
func WithTracer(t storetracing.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// WithMetrics attaches a metrics set. Without it the Store records no
// metrics.
func WithMetrics(m *storemetrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New builds a Store from cfg (storeconfig.Default() if nil) and options.
func New(cfg *storeconfig.Config, opts ...Option) *Store {
	if cfg == nil {
		cfg = storeconfig.Default()
	}
	s := &Store{
		cfg:              cfg,
		log:              logger.NewDefault("propertystore"),
		tracer:           storetracing.Noop,
		table:            newPropertyTable(),
		graph:            newDependencyGraph(),
		lazyComputations: make(map[int]Computation),
		fastTracks:       make(map[int]FastTrack),
		computedKinds:    make(map[int]PropertyKind),
		delayedKinds:     make(map[int]PropertyKind),
		knownEntities:    make(map[Entity]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.FastTrackEnabled {
		cache, _ := lru.New[pairKey, Property](1024)
		s.fastTrackCache = cache
		if cfg.FastTrackRatePerSecond > 0 {
			s.fastTrackLimiter = rate.NewLimiter(rate.Limit(cfg.FastTrackRatePerSecond), cfg.FastTrackRatePerSecond)
		}
	}
	return s
}

// Name identifies this component for the lifecycle conventions shared
// with the rest of this codebase's long-running services.
func (s *Store) Name() string { return "propertystore" }

// Start arms the store's root context. SetupPhase must still be called
// before any work is scheduled.
func (s *Store) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	return nil
}

// Stop tears down the running phase's worker pool, if any, and cancels
// the root context. If a worker failure was already recorded, it is
// returned wrapped in a multierror rather than discarded. The teardown
// itself reports no error, so the result holds at most that one failure.
func (s *Store) Stop(ctx context.Context) error {
	s.mu.Lock()
	p := s.pool
	s.mu.Unlock()

	var result *multierror.Error
	if p != nil {
		if err := p.FirstError(); err != nil {
			result = multierror.Append(result, err)
		}
		p.stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	return result.ErrorOrNil()
}

// Ready reports whether a phase is currently set up and running.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseRunning
}

// PhaseID returns the UUID tagging the current (or most recently run)
// phase, for correlating tracer spans, metrics, and audit rows.
func (s *Store) PhaseID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseID
}

func (s *Store) shutdownCtx() context.Context {
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// RegisterLazy registers the computation triggered the first time Get
// observes no value for kind (§4.6). Exactly one registration is allowed
// per kind, and only before a phase is running (Invariant 1).
func (s *Store) RegisterLazy(k PropertyKind, compute Computation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phaseRunning {
		return storeerrors.MidPhaseRegistration(k.Name())
	}
	if _, exists := s.lazyComputations[k.ID()]; exists {
		return storeerrors.DuplicateLazyRegistration(k.Name())
	}
	s.lazyComputations[k.ID()] = compute
	return nil
}

// RegisterFastTrack registers an eager approximation Get tries before
// triggering k's real lazy computation (§4.6).
func (s *Store) RegisterFastTrack(k PropertyKind, ft FastTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fastTracks[k.ID()] = ft
}

// SetupPhase declares the universe of computed and delayed kinds for a
// new phase and starts the worker pool. It fails if a previous phase is
// still running (Invariant per §4.7: phases don't overlap).
func (s *Store) SetupPhase(computed, delayed []PropertyKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phaseRunning {
		return storeerrors.OverlappingPhase()
	}

	s.computedKinds = make(map[int]PropertyKind, len(computed))
	for _, k := range computed {
		s.computedKinds[k.ID()] = k
	}
	s.delayedKinds = make(map[int]PropertyKind, len(delayed))
	for _, k := range delayed {
		s.delayedKinds[k.ID()] = k
	}

	workers := s.cfg.ComputeWorkers
	if workers <= 0 {
		workers = storeconfig.DefaultComputeWorkers()
	}
	s.pool = newPool(s, workers, s.cfg.TaskQueueCapacity, s.cfg.UpdateQueueCapacity)
	s.pool.start(s.shutdownCtx())
	s.phaseRunning = true
	s.phaseID = uuid.NewString()
	return nil
}

// ScheduleEager submits e's initial computation for kind k (§4.4's
// taskInitialComputation). Typically called once per (entity, computed
// kind) pair right after SetupPhase.
func (s *Store) ScheduleEager(e Entity, k PropertyKind, compute Computation) error {
	s.noteEntity(e)
	return s.pool.submitTask(s.shutdownCtx(), task{variant: taskInitialComputation, e: e, k: k, compute: compute})
}

// Force explicitly triggers e's registered lazy computation for k and
// marks the pair as forced (§4.6): the phase controller will not let a
// forced pair end the phase still intermediate, finalizing it with its
// current upper bound or, failing that, its fallback once the ordinary
// fallback/SCC/orphan rounds have nothing left to do. A no-op trigger if
// the pair's computation was already triggered, whether by an earlier
// Force or by Get, but the forced marking always takes effect.
func (s *Store) Force(e Entity, k PropertyKind) error {
	s.noteEntity(e)
	s.pool.enqueueUpdate(update{kind: updateTriggerLazy, e: e, k: k, forced: true}, true)
	return nil
}

// Get returns the best value currently on file for (e, k): the
// authoritative table value if one exists, or a fast-track approximation
// if k has one registered and fast-tracking is enabled. A miss
// opportunistically triggers k's lazy computation (if registered) for a
// future call to see, but does not block waiting for it (§4.6).
func (s *Store) Get(e Entity, k PropertyKind) (Property, bool) {
	s.noteEntity(e)
	if v, ok := s.table.Get(e, k); ok && v.HasValue() {
		return v.UB(), true
	}

	if s.cfg.FastTrackEnabled {
		if p, ok := s.tryFastTrack(e, k); ok {
			return p, true
		}
	}

	if _, delayed := s.delayedKinds[k.ID()]; !delayed {
		if _, ok := s.lazyComputations[k.ID()]; ok {
			s.pool.enqueueUpdate(update{kind: updateTriggerLazy, e: e, k: k}, true)
			if s.metrics != nil {
				s.metrics.ScheduledLazy.Inc()
			}
		}
	}
	return nil, false
}

func (s *Store) tryFastTrack(e Entity, k PropertyKind) (Property, bool) {
	ft, ok := s.fastTracks[k.ID()]
	if !ok {
		return nil, false
	}
	key := keyOf(e, k)
	if s.fastTrackCache != nil {
		if p, ok := s.fastTrackCache.Get(key); ok {
			if s.metrics != nil {
				s.metrics.FastTrackHits.Inc()
			}
			return p, true
		}
	}
	if s.fastTrackLimiter != nil && !s.fastTrackLimiter.Allow() {
		return nil, false
	}
	p, ok := ft(s, e)
	if !ok {
		return nil, false
	}
	if s.fastTrackCache != nil {
		s.fastTrackCache.Add(key, p)
	}
	if s.metrics != nil {
		s.metrics.FastTrackHits.Inc()
	}
	return p, true
}

// Set installs an externally supplied final value with no dependencies
// (§4.6's ExternalResult). It fails if k has a registered lazy
// computation, or if (e, k) already carries a value — rejected
// unconditionally, in every build mode (DESIGN.md Open Question 3).
func (s *Store) Set(e Entity, p Property) error {
	k := p.Kind()
	s.mu.Lock()
	_, lazy := s.lazyComputations[k.ID()]
	s.mu.Unlock()
	if lazy {
		return storeerrors.LazyConflict(k.Name(), e)
	}
	s.noteEntity(e)
	return s.pool.submitExternalSet(s.shutdownCtx(), ExternalResult{E: e, P: p})
}

// HandleResult funnels a client-produced Result (for instance one
// computed outside the worker pool, via a scripted or HTTP-triggered
// computation) through the same dispatch path as a compute worker's
// output (§6). forceEvaluation makes an IntermediateResult skip the
// seen-dependee staleness check and re-run its continuation against the
// first seen dependee that has a value on file;
// forceDependerNotification makes dependers hear about
// the result even when the dispatcher would otherwise judge it
// unchanged, and also jumps the result ahead of the updates queue the
// same way a final-ish result does.
func (s *Store) HandleResult(r Result, forceEvaluation, forceDependerNotification bool) error {
	if s.pool == nil {
		return fmt.Errorf("propertystore: no phase is running")
	}
	prepend := forceDependerNotification || resultIsFinalish(r)
	s.pool.enqueueUpdate(update{
		kind:            updateDispatchResult,
		result:          r,
		forceNotify:     forceDependerNotification,
		forceEvaluation: forceEvaluation,
	}, prepend)
	return nil
}

// OnFinalize registers a callback invoked, from the updates worker, every
// time an (entity, kind) pair receives a final value — the hook
// storeaudit and similar observers use instead of polling the table.
func (s *Store) OnFinalize(fn func(Entity, Property)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinalize = append(s.onFinalize, fn)
}

func (s *Store) finalizeHooks() []func(Entity, Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onFinalize
}

// Snapshot returns every (entity, value) pair currently on file for k,
// including unfinalized EPS entries. Used by read-only introspection
// surfaces (storequery, storehttp) rather than by the engine itself.
func (s *Store) Snapshot(k PropertyKind) []EOptionP {
	return s.table.EntitiesMatching(k, func(EOptionP) bool { return true })
}

func (s *Store) noteEntity(e Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knownEntities[e] = struct{}{}
}

func (s *Store) knownEntitiesSnapshot() []Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entity, 0, len(s.knownEntities))
	for e := range s.knownEntities {
		out = append(out, e)
	}
	return out
}

func (s *Store) computedKindsSnapshot() []PropertyKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PropertyKind, 0, len(s.computedKinds))
	for _, k := range s.computedKinds {
		out = append(out, k)
	}
	return out
}
