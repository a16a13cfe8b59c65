// Package countdown implements the session time budget. Choices and lines
// may cost time; running out fails the session unless the story has already
// reached its safe phase.
package countdown

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/z-inbox/backend/internal/service/events"
)

// Publisher is the part of the event bus the timer needs.
type Publisher interface {
	Publish(events.Event)
}

// Status is a point-in-time view of the timer.
type Status struct {
	Total     time.Duration `json:"-"`
	Remaining time.Duration `json:"-"`
	TotalS    float64       `json:"totalSeconds"`
	RemainS   float64       `json:"remainingSeconds"`
	Running   bool          `json:"running"`
	Safe      bool          `json:"safePhase"`
	Finished  bool          `json:"finished"`
}

// Timer counts a session budget down to zero.
type Timer struct {
	mu        sync.Mutex
	total     time.Duration
	remaining time.Duration
	running   bool
	finished  bool
	safe      bool
	bus       Publisher
}

// New creates a stopped timer with the given budget.
func New(total time.Duration, bus Publisher) *Timer {
	return &Timer{total: total, remaining: total, bus: bus}
}

// SetTotal overrides the budget and refills the remaining time.
func (t *Timer) SetTotal(total time.Duration) {
	if total <= 0 {
		return
	}
	t.mu.Lock()
	t.total = total
	t.remaining = total
	t.mu.Unlock()
	log.Printf("[countdown] total time set to %s", total)
}

// Begin starts counting without driving the clock; see Run.
func (t *Timer) Begin() {
	t.mu.Lock()
	if !t.finished {
		t.running = true
	}
	t.mu.Unlock()
}

// Run starts the timer and advances it on every tick until ctx is done or
// the timer stops.
func (t *Timer) Run(ctx context.Context, tick time.Duration) {
	t.Begin()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if !t.Tick(elapsed) {
				return
			}
		}
	}
}

// Tick advances the clock and reports whether the timer is still running.
func (t *Timer) Tick(elapsed time.Duration) bool {
	return t.consume(elapsed)
}

// ReduceTime deducts a cost in seconds. It has no effect unless running.
func (t *Timer) ReduceTime(seconds float64) {
	if seconds <= 0 {
		return
	}
	cost := time.Duration(seconds * float64(time.Second))
	t.mu.Lock()
	running := t.running
	t.mu.Unlock()
	if !running {
		return
	}
	t.consume(cost)
	log.Printf("[countdown] reduced %s, remaining %s", cost, t.Snapshot().Remaining)
}

func (t *Timer) consume(d time.Duration) bool {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return false
	}

	t.remaining -= d
	if t.remaining > 0 {
		t.mu.Unlock()
		return true
	}

	t.remaining = 0
	t.running = false
	t.finished = true
	safe := t.safe
	t.mu.Unlock()

	if safe {
		log.Println("[countdown] time is up during safe phase, not failing")
		return false
	}
	log.Println("[countdown] time is up")
	t.bus.Publish(events.Event{Topic: events.TopicFail})
	return false
}

// EnterSafePhase sets the one-way safe flag. It reports true only for the
// call that made the transition.
func (t *Timer) EnterSafePhase() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.safe {
		return false
	}
	t.safe = true
	return true
}

// InSafePhase reports whether the safe flag is set.
func (t *Timer) InSafePhase() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.safe
}

// Stop freezes the clock.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
}

// StopOnResult freezes the clock once the session is won or lost.
func (t *Timer) StopOnResult(bus *events.Bus) (unsubscribe func()) {
	stopWin := bus.Subscribe(events.TopicWin, func(events.Event) { t.Stop() })
	stopFail := bus.Subscribe(events.TopicFail, func(events.Event) { t.Stop() })
	return func() {
		stopWin()
		stopFail()
	}
}

// Snapshot returns the current status.
func (t *Timer) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Status{
		Total:     t.total,
		Remaining: t.remaining,
		TotalS:    t.total.Seconds(),
		RemainS:   t.remaining.Seconds(),
		Running:   t.running,
		Safe:      t.safe,
		Finished:  t.finished,
	}
}
