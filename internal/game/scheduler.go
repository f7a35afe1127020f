package game

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Task names used by the engine. Scheduling a name again replaces the
// previous task with that name.
const (
	taskCountdown  = "countdown"
	taskReveal     = "reveal"
	taskIntro      = "intro"
	taskThinkMusic = "think_music"
)

// Scheduler owns the cancellable delayed and periodic tasks of a session.
// Callbacks are handed to the submit hook, which must serialize them onto the
// owner's loop. Every task captures the scheduler generation at schedule time;
// CancelAll bumps the generation, so a task that fires after a phase change is
// dropped instead of mutating the new phase's state.
type Scheduler struct {
	clock  clockwork.Clock
	submit func(func())

	mu    sync.Mutex
	gen   uint64
	stops map[string]chan struct{}
}

// NewScheduler creates a scheduler. submit must run the given function on the
// goroutine that owns the game state.
func NewScheduler(clock clockwork.Clock, submit func(func())) *Scheduler {
	return &Scheduler{
		clock:  clock,
		submit: submit,
		stops:  make(map[string]chan struct{}),
	}
}

// After schedules fn to run once after d, replacing any task with the same name.
func (s *Scheduler) After(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	s.cancelLocked(name)
	stop := make(chan struct{})
	s.stops[name] = stop
	gen := s.gen
	s.mu.Unlock()

	timer := s.clock.NewTimer(d)
	go func() {
		defer stopAndDrainTimer(timer)
		select {
		case <-timer.Chan():
			s.fire(name, gen, stop, fn)
		case <-stop:
		}
	}()
}

// Every schedules fn to run on every tick of period d until cancelled.
func (s *Scheduler) Every(name string, d time.Duration, fn func()) {
	s.mu.Lock()
	s.cancelLocked(name)
	stop := make(chan struct{})
	s.stops[name] = stop
	gen := s.gen
	s.mu.Unlock()

	ticker := s.clock.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				s.fire(name, gen, stop, fn)
			case <-stop:
				return
			}
		}
	}()
}

// fire submits fn, re-checking inside the owner's loop that the task is still
// current. The double check covers a callback already queued behind a
// CancelAll.
func (s *Scheduler) fire(name string, gen uint64, stop chan struct{}, fn func()) {
	s.submit(func() {
		s.mu.Lock()
		current := s.gen == gen && s.stops[name] == stop
		s.mu.Unlock()
		if !current {
			log.Debug().Str("task", name).Msg("dropping stale scheduled task")
			return
		}
		fn()
	})
}

// Cancel stops the task with the given name, if any.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(name)
}

// CancelAll stops every task and invalidates callbacks already in flight.
// Called on every phase change and on teardown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	for name := range s.stops {
		s.cancelLocked(name)
	}
}

func (s *Scheduler) cancelLocked(name string) {
	if stop, ok := s.stops[name]; ok {
		close(stop)
		delete(s.stops, name)
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel, following the
// pattern recommended in the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
