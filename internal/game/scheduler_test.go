package game

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

// queueSubmit collects submitted callbacks so tests control exactly when the
// owner's loop would run them.
func queueSubmit() (func(func()), chan func()) {
	q := make(chan func(), 16)
	return func(fn func()) { q <- fn }, q
}

func drain(q chan func()) {
	for {
		select {
		case fn := <-q:
			fn()
		default:
			return
		}
	}
}

func awaitAndRun(t *testing.T, q chan func()) {
	t.Helper()
	select {
	case fn := <-q:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("no callback submitted")
	}
}

func TestSchedulerAfterFiresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	submit, q := queueSubmit()
	s := NewScheduler(clock, submit)

	fired := 0
	s.After("t", time.Second, func() { fired++ })
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	awaitAndRun(t, q)

	if fired != 1 {
		t.Fatalf("got %d fires, want 1", fired)
	}
}

func TestSchedulerCancelStopsTask(t *testing.T) {
	clock := clockwork.NewFakeClock()
	submit, q := queueSubmit()
	s := NewScheduler(clock, submit)

	fired := 0
	s.After("t", time.Second, func() { fired++ })
	clock.BlockUntil(1)
	s.Cancel("t")
	clock.Advance(2 * time.Second)

	time.Sleep(50 * time.Millisecond)
	drain(q)
	if fired != 0 {
		t.Fatalf("cancelled task fired %d times", fired)
	}
}

func TestSchedulerReplacesSameName(t *testing.T) {
	clock := clockwork.NewFakeClock()
	submit, q := queueSubmit()
	s := NewScheduler(clock, submit)

	var ran []string
	s.After("t", time.Second, func() { ran = append(ran, "old") })
	clock.BlockUntil(1)
	s.After("t", time.Second, func() { ran = append(ran, "new") })
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	awaitAndRun(t, q)

	time.Sleep(50 * time.Millisecond)
	drain(q)
	if len(ran) != 1 || ran[0] != "new" {
		t.Fatalf("got %v, want only the replacement to run", ran)
	}
}

// A callback already queued when CancelAll runs must be dropped, not applied
// to the next phase's state.
func TestSchedulerCancelAllDropsQueuedCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	submit, q := queueSubmit()
	s := NewScheduler(clock, submit)

	fired := 0
	s.After("t", time.Second, func() { fired++ })
	clock.BlockUntil(1)
	clock.Advance(time.Second)

	// Wait for the callback to land in the queue, then invalidate it before
	// the owner's loop gets to it.
	var fn func()
	select {
	case fn = <-q:
	case <-time.After(2 * time.Second):
		t.Fatal("no callback submitted")
	}
	s.CancelAll()
	fn()

	if fired != 0 {
		t.Fatalf("stale callback ran %d times", fired)
	}
}

func TestSchedulerEveryTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	submit, q := queueSubmit()
	s := NewScheduler(clock, submit)

	fired := 0
	s.Every("tick", time.Second, func() { fired++ })
	clock.BlockUntil(1)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		awaitAndRun(t, q)
	}
	if fired != 3 {
		t.Fatalf("got %d ticks, want 3", fired)
	}

	s.Cancel("tick")
	clock.Advance(time.Second)
	time.Sleep(50 * time.Millisecond)
	drain(q)
	if fired != 3 {
		t.Fatalf("ticker fired after cancel: %d", fired)
	}
}
