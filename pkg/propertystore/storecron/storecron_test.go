package storecron_test

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/propertystore/pkg/propertystore"
	"github.com/R3E-Network/propertystore/pkg/propertystore/storecron"
)

type tickKind struct{}

func (tickKind) ID() int      { return 1 }
func (tickKind) Name() string { return "tick" }
func (tickKind) Fallback(s *propertystore.Store, e propertystore.Entity) propertystore.Property {
	return tickVal{0}
}
func (tickKind) ResolveCycle(s *propertystore.Store, current propertystore.EOptionP) propertystore.Property {
	return tickVal{0}
}
func (tickKind) MoreOrEquallyPrecise(newer, older propertystore.Property) bool {
	return newer.(tickVal).v >= older.(tickVal).v
}
func (tickKind) Meet(a, b propertystore.Property) propertystore.Property { return a }

type tickVal struct{ v int }

func (tickVal) Kind() propertystore.PropertyKind { return tickKind{} }
func (t tickVal) Equal(other propertystore.Property) bool {
	o, ok := other.(tickVal)
	return ok && o.v == t.v
}

func newTestStore(t *testing.T) *propertystore.Store {
	t.Helper()
	s := propertystore.New(nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func TestRunnerInvokesPhaseFuncOnSchedule(t *testing.T) {
	s := newTestStore(t)
	k := tickKind{}
	runs := make(chan struct{}, 8)

	phase := func(ctx context.Context, store *propertystore.Store) error {
		if err := store.SetupPhase([]propertystore.PropertyKind{k}, nil); err != nil {
			return err
		}
		if err := store.ScheduleEager("e1", k, func(s *propertystore.Store, e propertystore.Entity) propertystore.Result {
			return propertystore.FinalResult{E: e, P: tickVal{1}}
		}); err != nil {
			return err
		}
		runs <- struct{}{}
		return nil
	}

	r := storecron.NewRunner(s, "@every 30ms", phase, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		if err := r.Stop(context.Background()); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}()

	if !r.Ready() {
		t.Fatalf("expected Ready() true once started")
	}

	select {
	case <-runs:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the phase func to fire at least once")
	}
}

func TestRunnerRejectsInvalidSchedule(t *testing.T) {
	s := newTestStore(t)
	r := storecron.NewRunner(s, "not a cron spec", func(context.Context, *propertystore.Store) error { return nil }, nil)
	if err := r.Start(context.Background()); err == nil {
		t.Fatalf("expected Start to reject a malformed cron schedule")
	}
}

func TestRunnerRejectsDoubleStart(t *testing.T) {
	s := newTestStore(t)
	r := storecron.NewRunner(s, "@every 1h", func(context.Context, *propertystore.Store) error { return nil }, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(context.Background())

	if err := r.Start(context.Background()); err == nil {
		t.Fatalf("expected a second Start to fail while already running")
	}
}

func TestRunnerRecordsLastError(t *testing.T) {
	s := newTestStore(t)
	phase := func(ctx context.Context, store *propertystore.Store) error {
		return context.DeadlineExceeded
	}
	r := storecron.NewRunner(s, "@every 20ms", phase, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop(context.Background())

	deadline := time.After(2 * time.Second)
	for r.LastError() == nil {
		select {
		case <-deadline:
			t.Fatalf("expected LastError to be populated after a failing phase")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopIsIdempotentWithoutStart(t *testing.T) {
	s := newTestStore(t)
	r := storecron.NewRunner(s, "@every 1h", func(context.Context, *propertystore.Store) error { return nil }, nil)
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop on a never-started runner should be a no-op, got %v", err)
	}
}
