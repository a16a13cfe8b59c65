// Package dialog interprets the dialogue script: it walks nodes, paces lines,
// routes them to conversations and waits on the player's choices.
package dialog

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/z-inbox/backend/internal/model/chat"
	"github.com/zhouzirui/z-inbox/backend/internal/model/script"
	"github.com/zhouzirui/z-inbox/backend/internal/service/events"
)

// lookaheadLimit bounds the search for the opening contact of a run.
const lookaheadLimit = 50

var errSuperseded = errors.New("dialog run superseded")

// Scripts is the read side of the script store.
type Scripts interface {
	Node(id int) script.Node
	HasNode(id int) bool
}

// Conversations is the part of the conversation router the sequencer drives.
type Conversations interface {
	HasContact(name string) bool
	Active() string
	History(name string) ([]chat.Message, error)
	InsertSeparator(name string) error
	PostMessage(name, text string, isSelf bool) error
	PostToActive(text string, isSelf bool) error
	QueueDialog(name string, nodeID int) error
	PresentOptions(name string, captions []string, onChosen func(int))
	ClearAllPendingOptions()
}

// Countdown is the session timer.
type Countdown interface {
	ReduceTime(seconds float64)
	EnterSafePhase() bool
}

// Config holds pacing and progression settings.
type Config struct {
	DefaultDelay  time.Duration
	SelfDelay     time.Duration
	OptionDelay   time.Duration
	SafePhaseNode int
}

// DefaultConfig matches the pacing of the shipped script.
func DefaultConfig() Config {
	return Config{
		DefaultDelay:  time.Second,
		SelfDelay:     500 * time.Millisecond,
		OptionDelay:   time.Second,
		SafePhaseNode: 12001,
	}
}

// Option customises a Sequencer.
type Option func(*Sequencer)

// WithSleep replaces the timed wait used between lines.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Sequencer) { s.sleep = sleep }
}

// WithAfterFunc replaces the scheduler used for chained dialogues.
func WithAfterFunc(after func(d time.Duration, f func()) (stop func() bool)) Option {
	return func(s *Sequencer) { s.afterFunc = after }
}

// Sequencer runs at most one dialogue at a time. Starting a dialogue cancels
// the one in progress; every side effect of a run is applied only while its
// token is still current, so two runs never interleave their output.
type Sequencer struct {
	scripts   Scripts
	router    Conversations
	bus       *events.Bus
	countdown Countdown
	cfg       Config
	sleep     func(ctx context.Context, d time.Duration) error
	afterFunc func(d time.Duration, f func()) (stop func() bool)

	mu             sync.Mutex
	token          uint64
	cancel         context.CancelFunc
	done           chan struct{}
	state          State
	node           int
	suspendedUntil time.Time
	followUps      map[uint64]func() bool
	nextFollowUp   uint64
	closed         bool
}

// NewSequencer wires the interpreter to its collaborators. A nil countdown
// keeps the safe-phase flag locally and ignores time costs.
func NewSequencer(scripts Scripts, router Conversations, bus *events.Bus, countdown Countdown, cfg Config, opts ...Option) *Sequencer {
	if countdown == nil {
		countdown = &localSafePhase{}
	}
	s := &Sequencer{
		scripts:   scripts,
		router:    router,
		bus:       bus,
		countdown: countdown,
		cfg:       cfg,
		sleep:     sleepContext,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		followUps: make(map[uint64]func() bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach subscribes the sequencer to dialog-start events.
func (s *Sequencer) Attach() (unsubscribe func()) {
	return s.bus.Subscribe(events.TopicDialogStart, func(ev events.Event) {
		s.Trigger(ev.NodeID, ev.Contact)
	})
}

// Trigger handles a dialog-start. Dialogue addressed to a contact that is not
// in view is queued on that contact instead of preempting the foreground.
// contact may be empty, in which case the first row's character decides.
func (s *Sequencer) Trigger(nodeID int, contact string) {
	rows := s.scripts.Node(nodeID)
	if contact == "" && len(rows) > 0 {
		contact = rows[0].Character
	}

	if contact != "" && s.router.HasContact(contact) && contact != s.router.Active() {
		if err := s.router.QueueDialog(contact, nodeID); err != nil {
			log.Printf("[dialog] queue dialog %d for %s: %v", nodeID, contact, err)
		}
		return
	}

	if !s.scripts.HasNode(nodeID) {
		log.Printf("[dialog] cannot start dialog %d: node not found", nodeID)
		return
	}
	s.start(nodeID)
}

func (s *Sequencer) start(nodeID int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.token++
	token := s.token
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.state = StateRunning
	s.node = nodeID
	s.suspendedUntil = time.Time{}
	s.router.ClearAllPendingOptions()
	s.mu.Unlock()

	log.Printf("[dialog] starting sequence at node %d", nodeID)
	go func() {
		defer close(done)
		defer cancel()
		s.run(ctx, token, nodeID)
	}()
}

// Status returns a snapshot of the current run.
func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{State: s.state, NodeID: s.node}
	if s.state == StateSuspended {
		until := s.suspendedUntil
		status.SuspendedUntil = &until
	}
	return status
}

// Close cancels the current run and any scheduled follow-up dialogues.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	for id, stop := range s.followUps {
		stop()
		delete(s.followUps, id)
	}
}

func (s *Sequencer) run(ctx context.Context, token uint64, start int) {
	st := newRunState(start)

	if rows := s.scripts.Node(start); len(rows) > 0 && nodeCharacter(rows) == "" {
		if name := s.lookahead(start); name != "" {
			st.active = name
			s.separate(token, st, name)
		}
	}

	for st.node > 0 {
		if ctx.Err() != nil {
			return
		}

		if !s.scripts.HasNode(st.node) {
			log.Printf("[dialog] node %d not found, sequence ended", st.node)
			break
		}
		rows := s.scripts.Node(st.node)

		s.checkSafePhase(token, st.node)

		if !isTerminalNode(rows) {
			if name := nodeCharacter(rows); s.router.HasContact(name) {
				st.active = name
				s.separate(token, st, name)
			}
		}

		if text := rows.Consequence(); text != "" {
			log.Printf("[dialog] consequence at node %d: %s", st.node, text)
			s.publish(token, events.Event{Topic: events.TopicConsequence, NodeID: st.node, Text: text})
		}

		var err error
		if rows.IsOptionSet() {
			err = s.runOptions(ctx, token, st, rows)
		} else {
			var stop bool
			stop, err = s.runLine(ctx, token, st, rows[0])
			if stop {
				return
			}
		}
		if err != nil {
			return
		}
	}

	s.guarded(token, func() { s.state = StateEnded })
	log.Printf("[dialog] sequence ended")
}

func (s *Sequencer) runOptions(ctx context.Context, token uint64, st *runState, rows script.Node) error {
	if !st.first {
		if err := s.pause(ctx, token, st.node, s.cfg.OptionDelay); err != nil {
			return err
		}
	}
	st.first = false

	captions := rows.Captions()
	choices := make(chan int, 1)
	presented := s.guarded(token, func() {
		s.state = StateAwaitingOption
		s.node = st.node
		s.touchActiveLocked(st)
		s.router.PresentOptions(st.active, captions, func(index int) {
			select {
			case choices <- index:
			default:
			}
		})
	})
	if !presented {
		return errSuperseded
	}
	log.Printf("[dialog] presenting %d options at node %d", len(captions), st.node)

	var index int
	select {
	case <-ctx.Done():
		return ctx.Err()
	case index = <-choices:
	}
	if index < 0 || index >= len(rows) {
		return errSuperseded
	}

	chosen := rows[index]
	log.Printf("[dialog] option %d selected at node %d, jumping to %d", index, st.node, chosen.JumpID)

	if chosen.CostTime > 0 && s.current(token) {
		s.countdown.ReduceTime(float64(chosen.CostTime))
	}
	applied := s.guarded(token, func() {
		s.state = StateRunning
		s.touchActiveLocked(st)
		s.postLocked(st.active, chosen.Content, true)
	})
	if !applied {
		return errSuperseded
	}
	st.node = chosen.JumpID
	return nil
}

// runLine handles a single-row node. It reports stop when the run ends here.
func (s *Sequencer) runLine(ctx context.Context, token uint64, st *runState, row script.Row) (stop bool, err error) {
	if row.IsTerminal() {
		s.endAt(token, st.node, row)
		return true, nil
	}

	if row.CostTime > 0 && s.current(token) {
		s.countdown.ReduceTime(float64(row.CostTime))
	}

	isSelf := row.IsSelf()
	switch {
	case st.first && !isSelf:
		st.first = false
	case !isSelf:
		wait := row.DelayDuration()
		if wait <= 0 {
			wait = s.cfg.DefaultDelay
		}
		if err := s.pause(ctx, token, st.node, wait); err != nil {
			return false, err
		}
	default:
		if err := s.pause(ctx, token, st.node, s.cfg.SelfDelay); err != nil {
			return false, err
		}
	}

	if !s.guarded(token, func() {
		s.state = StateRunning
		s.node = st.node
		s.touchActiveLocked(st)
		s.postLocked(st.active, row.Content, isSelf)
	}) {
		return false, errSuperseded
	}
	st.node = row.JumpID
	return false, nil
}

// endAt finishes the run at a terminal row, scheduling the chained dialogue
// it names, if any.
func (s *Sequencer) endAt(token uint64, nodeID int, row script.Row) {
	ok := s.guarded(token, func() {
		s.state = StateEnded
		s.node = nodeID
		if row.JumpID <= 0 {
			return
		}
		if row.Character == "" {
			log.Printf("[dialog] terminal node %d jumps to %d without a contact, ignoring", nodeID, row.JumpID)
			return
		}
		s.scheduleLocked(row.Character, row.JumpID, row.DelayDuration())
	})
	if !ok {
		return
	}

	log.Printf("[dialog] reached end at node %d", nodeID)
	s.bus.Publish(events.Event{Topic: events.TopicDialogEnd, NodeID: nodeID})
}

func (s *Sequencer) scheduleLocked(contact string, nodeID int, delay time.Duration) {
	s.nextFollowUp++
	id := s.nextFollowUp
	log.Printf("[dialog] scheduling dialog %d for %s in %s", nodeID, contact, delay)

	s.followUps[id] = s.afterFunc(delay, func() {
		s.mu.Lock()
		delete(s.followUps, id)
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		s.bus.Publish(events.Event{Topic: events.TopicDialogStart, NodeID: nodeID, Contact: contact})
	})
}

func (s *Sequencer) checkSafePhase(token uint64, nodeID int) {
	if s.cfg.SafePhaseNode <= 0 || nodeID < s.cfg.SafePhaseNode {
		return
	}

	var entered bool
	s.guarded(token, func() { entered = s.countdown.EnterSafePhase() })
	if !entered {
		return
	}
	log.Printf("[dialog] reached checkpoint %d, safe phase enabled", nodeID)
	s.publish(token, events.Event{Topic: events.TopicWin, NodeID: nodeID})
}

// separate inserts a resumption marker the first time a run touches a
// contact with earlier history.
func (s *Sequencer) separate(token uint64, st *runState, name string) {
	if st.separated[name] {
		return
	}
	st.separated[name] = true

	s.guarded(token, func() {
		history, err := s.router.History(name)
		if err != nil || len(history) == 0 || history[len(history)-1].IsSeparator() {
			return
		}
		if err := s.router.InsertSeparator(name); err != nil {
			log.Printf("[dialog] insert separator for %s: %v", name, err)
		}
	})
}

// lookahead follows the jump chain from start until a node names a known
// contact. Terminal nodes and cycles end the search empty-handed.
func (s *Sequencer) lookahead(start int) string {
	id := start
	for hop := 0; hop < lookaheadLimit && id > 0; hop++ {
		if !s.scripts.HasNode(id) {
			return ""
		}
		rows := s.scripts.Node(id)
		if name := nodeCharacter(rows); s.router.HasContact(name) && !isTerminalNode(rows) {
			return name
		}
		if isTerminalNode(rows) {
			return ""
		}
		id = rows[0].JumpID
	}
	return ""
}

// pause suspends the run for d unless it is cancelled first.
func (s *Sequencer) pause(ctx context.Context, token uint64, nodeID int, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	s.guarded(token, func() {
		s.state = StateSuspended
		s.node = nodeID
		s.suspendedUntil = time.Now().Add(d)
	})
	if err := s.sleep(ctx, d); err != nil {
		return err
	}
	if !s.guarded(token, func() {
		s.state = StateRunning
		s.node = nodeID
		s.suspendedUntil = time.Time{}
	}) {
		return errSuperseded
	}
	return nil
}

// postLocked delivers a line to its target, falling back to the contact in
// view when the run has not resolved one. Callers hold s.mu.
func (s *Sequencer) postLocked(target, text string, isSelf bool) {
	var err error
	if target != "" {
		err = s.router.PostMessage(target, text, isSelf)
	} else {
		err = s.router.PostToActive(text, isSelf)
	}
	if err != nil {
		log.Printf("[dialog] post to %q: %v", target, err)
	}
}

// touchActiveLocked marks the contact in view as touched by a run that has
// not resolved a contact, so no separator is inserted once one resolves.
// The run stays unbound: each post goes to whichever contact is in view.
func (s *Sequencer) touchActiveLocked(st *runState) {
	if st.active != "" {
		return
	}
	if name := s.router.Active(); name != "" {
		st.separated[name] = true
	}
}

// guarded runs fn under the sequencer lock if token still owns the
// sequencer. It reports whether fn ran.
func (s *Sequencer) guarded(token uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token || s.closed {
		return false
	}
	fn()
	return true
}

func (s *Sequencer) current(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token == s.token && !s.closed
}

// publish emits ev if token is still current. The bus is called without the
// lock held so subscribers may start a new dialogue.
func (s *Sequencer) publish(token uint64, ev events.Event) {
	if s.current(token) {
		s.bus.Publish(ev)
	}
}

func nodeCharacter(rows script.Node) string {
	for _, row := range rows {
		if row.Character != "" {
			return row.Character
		}
	}
	return ""
}

func isTerminalNode(rows script.Node) bool {
	return len(rows) == 1 && rows[0].IsTerminal()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// localSafePhase stands in for a countdown when none is configured.
type localSafePhase struct {
	mu   sync.Mutex
	safe bool
}

func (l *localSafePhase) ReduceTime(float64) {}

func (l *localSafePhase) EnterSafePhase() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.safe {
		return false
	}
	l.safe = true
	return true
}
