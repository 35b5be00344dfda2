package propertystore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestDequePushPopFIFO(t *testing.T) {
	d := newDeque(4)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := d.PushBack(ctx, i); err != nil {
			t.Fatalf("PushBack: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		got, err := d.PopFront(ctx)
		if err != nil {
			t.Fatalf("PopFront: %v", err)
		}
		if got.(int) != i {
			t.Fatalf("expected FIFO order, got %v at position %d", got, i)
		}
	}
}

func TestDequePushFrontJumpsQueue(t *testing.T) {
	d := newDeque(4)
	ctx := context.Background()

	if err := d.PushBack(ctx, "back"); err != nil {
		t.Fatalf("PushBack: %v", err)
	}
	if err := d.PushFront(ctx, "front"); err != nil {
		t.Fatalf("PushFront: %v", err)
	}

	first, _ := d.PopFront(ctx)
	second, _ := d.PopFront(ctx)
	if first.(string) != "front" || second.(string) != "back" {
		t.Fatalf("expected front then back, got %v then %v", first, second)
	}
}

func TestDequeBlocksWhenFullAndEmpty(t *testing.T) {
	d := newDeque(1)
	ctx := context.Background()
	if err := d.PushBack(ctx, 1); err != nil {
		t.Fatalf("PushBack: %v", err)
	}

	fullCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := d.PushBack(fullCtx, 2); err == nil {
		t.Fatalf("expected PushBack to block (and time out) on a full deque")
	}

	if _, err := d.PopFront(ctx); err != nil {
		t.Fatalf("PopFront: %v", err)
	}

	emptyCtx, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	if _, err := d.PopFront(emptyCtx); err == nil {
		t.Fatalf("expected PopFront to block (and time out) on an empty deque")
	}
}

func TestLatchFireWaitArm(t *testing.T) {
	l := newLatch()
	ctx := context.Background()

	blockedCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(blockedCtx); err == nil {
		t.Fatalf("an unfired latch must block Wait")
	}

	l.Fire()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait must return immediately once fired: %v", err)
	}

	l.Arm()
	rearmedCtx, cancel2 := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel2()
	if err := l.Wait(rearmedCtx); err == nil {
		t.Fatalf("Arm must reset the latch so Wait blocks again")
	}
}

// TestJobCounterReArmsOnIncAfterQuiescence exercises the critical
// quiescence-protocol invariant: once the counter has reached zero and
// fired the latch, a later Inc must re-arm it so a subsequent round of
// WaitOnPhaseCompletion blocks on the new work instead of returning
// instantly against the already-closed channel from the previous round.
func TestJobCounterReArmsOnIncAfterQuiescence(t *testing.T) {
	l := newLatch()
	c := newJobCounter(l)

	c.Inc()
	c.Dec()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("latch must be fired once the counter returns to zero: %v", err)
	}

	c.Inc()
	blockedCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(blockedCtx); err == nil {
		t.Fatalf("Inc after quiescence must re-arm the latch, not leave it fired")
	}

	c.Dec()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("latch must fire again once the counter returns to zero: %v", err)
	}
}

func TestJobCounterLoad(t *testing.T) {
	c := newJobCounter(newLatch())
	c.Inc()
	c.Inc()
	c.Dec()
	if got := c.Load(); got != 1 {
		t.Fatalf("expected load=1, got %d", got)
	}
}

// TestJobCounterConcurrentIncDecNeverFiresEarly hammers Inc/Dec from many
// goroutines at once, interleaved with a watcher that repeatedly waits
// for quiescence and then asserts the counter really is zero the instant
// it observes the latch fired. Before the counter and the Arm/Fire
// decision shared one mutex, a Dec driving the count to zero could be
// preempted between its atomic decrement and its Fire call, letting a
// racing Inc's Arm no-op and then the delayed Fire close the latch while
// a job was still genuinely in flight; this test is the regression cover
// for that window (run with -race to catch the data race directly).
func TestJobCounterConcurrentIncDecNeverFiresEarly(t *testing.T) {
	l := newLatch()
	c := newJobCounter(l)

	const goroutines = 50
	const rounds = 200

	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
			if err := l.Wait(ctx); err == nil {
				if n := c.Load(); n != 0 {
					cancel()
					t.Errorf("latch fired while %d jobs were still in flight", n)
					return
				}
			}
			cancel()
		}
	}()

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				c.Inc()
				c.Dec()
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-watcherDone

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("expected the latch fired once all goroutines finished: %v", err)
	}
	if got := c.Load(); got != 0 {
		t.Fatalf("expected counter at 0 after all goroutines finished, got %d", got)
	}
}
