// Package storecron drives repeated phases of a Store on a cron
// schedule, for long-running batch clients that want to re-run an
// analysis periodically over a growing entity universe — the store
// analogue of this codebase's automation scheduler.
package storecron

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/propertystore/internal/logger"
	"github.com/R3E-Network/propertystore/pkg/propertystore"
)

// PhaseFunc sets up one phase's work — SetupPhase plus whatever
// ScheduleEager/Force calls seed it — and returns once submission is
// done. Runner calls WaitOnPhaseCompletion itself.
type PhaseFunc func(ctx context.Context, store *propertystore.Store) error

// Runner schedules PhaseFunc on a cron spec against one Store.
type Runner struct {
	store *propertystore.Store
	log   *logger.Logger
	phase PhaseFunc
	spec  string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	lastErr error
}

// NewRunner builds a Runner. spec is a standard five-field cron
// expression.
func NewRunner(store *propertystore.Store, spec string, phase PhaseFunc, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("store-cron")
	}
	return &Runner{store: store, spec: spec, phase: phase, log: log}
}

func (r *Runner) Name() string { return "store-cron" }

// Start validates the cron spec and begins scheduling. Each firing is
// skipped if a prior firing's phase is still running (the entry is
// wrapped in cron's SkipIfStillRunning job wrapper, since the store only
// ever runs one phase at a time anyway).
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("storecron: runner already started")
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.spec, func() { r.runOnce(ctx) }); err != nil {
		return fmt.Errorf("storecron: invalid schedule %q: %w", r.spec, err)
	}
	c.Start()
	r.cron = c
	r.running = true
	return nil
}

// Stop waits for the cron scheduler's internal jobs to drain, bounded by
// ctx.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.running = false
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// LastError returns the error from the most recently completed phase, if
// any.
func (r *Runner) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Runner) runOnce(ctx context.Context) {
	err := r.runPhase(ctx)
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
	if err != nil {
		r.log.WithFields(map[string]any{"error": err.Error()}).Error("storecron: phase failed")
	}
}

func (r *Runner) runPhase(ctx context.Context) error {
	if err := r.phase(ctx, r.store); err != nil {
		return fmt.Errorf("storecron: phase setup: %w", err)
	}
	return r.store.WaitOnPhaseCompletion(ctx)
}
