// Package conversation owns the per-contact chat histories, the conversation
// currently in view, and the option gate that blocks switching while the
// player has a choice to make.
package conversation

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-inbox/backend/internal/model/chat"
	"github.com/zhouzirui/z-inbox/backend/internal/service/events"
)

var (
	ErrContactNotFound  = errors.New("contact not found")
	ErrOptionPending    = errors.New("option selection pending")
	ErrNoPendingOptions = errors.New("no options pending")
	ErrOptionOutOfRange = errors.New("option index out of range")
)

// Presenter is the UI surface. Calls are fire-and-forget and are made while
// the router lock is held, so implementations must not call back into the
// router.
type Presenter interface {
	ShowHistory(contact string, history []chat.Message)
	ShowMessage(contact string, msg chat.Message)
	ShowOptions(contact string, captions []string)
	ClearOptions()
	Notify(contact string)
}

// Publisher is the part of the event bus the router needs.
type Publisher interface {
	Publish(events.Event)
}

type pendingOptions struct {
	contact  string
	captions []string
	onChosen func(int)
}

// Router routes messages to contacts and gates option selection.
type Router struct {
	mu        sync.Mutex
	contacts  map[string]*chat.Contact
	order     []string
	active    string
	presenter Presenter
	bus       Publisher
	now       func() time.Time

	gate    bool
	options pendingOptions
}

// NewRouter creates the session's contacts. A seed with an entry node starts
// unread with that node pending.
func NewRouter(seeds []chat.Seed, presenter Presenter, bus Publisher) *Router {
	r := &Router{
		contacts:  make(map[string]*chat.Contact, len(seeds)),
		presenter: presenter,
		bus:       bus,
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, seed := range seeds {
		if _, exists := r.contacts[seed.Name]; exists || seed.Name == "" {
			continue
		}
		contact := &chat.Contact{
			Name:    seed.Name,
			History: make([]chat.Message, 0, 16),
		}
		if seed.EntryNodeID > 0 {
			contact.PendingNodeID = seed.EntryNodeID
			contact.Unread = true
		}
		r.contacts[seed.Name] = contact
		r.order = append(r.order, seed.Name)
	}
	return r
}

// ActivateFirst brings the first configured contact into view.
func (r *Router) ActivateFirst() error {
	r.mu.Lock()
	if len(r.order) == 0 {
		r.mu.Unlock()
		return ErrContactNotFound
	}
	first := r.order[0]
	r.mu.Unlock()
	return r.SwitchActive(first)
}

// SwitchActive changes the conversation in view. It is refused while an
// option set is waiting for the player. A pending entry node attached to the
// contact is consumed and published as a dialog start.
func (r *Router) SwitchActive(name string) error {
	r.mu.Lock()
	if r.gate {
		r.mu.Unlock()
		log.Printf("[router] cannot switch to %s while waiting for option selection", name)
		return ErrOptionPending
	}

	contact, ok := r.contacts[name]
	if !ok {
		r.mu.Unlock()
		return ErrContactNotFound
	}

	r.active = name
	contact.Unread = false
	pending := contact.PendingNodeID
	contact.PendingNodeID = 0
	r.presenter.ShowHistory(name, copyHistory(contact.History))
	r.mu.Unlock()

	if pending > 0 {
		log.Printf("[router] triggering pending dialog %d for contact %s", pending, name)
		r.bus.Publish(events.Event{Topic: events.TopicDialogStart, NodeID: pending, Contact: name})
	}
	return nil
}

// PostMessage appends a line to a contact's history. Lines for the contact in
// view are rendered immediately; lines from the other party to a background
// contact mark it unread and raise a notification.
func (r *Router) PostMessage(name, text string, isSelf bool) error {
	if text == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	contact, ok := r.contacts[name]
	if !ok {
		return ErrContactNotFound
	}
	r.postLocked(contact, text, isSelf)
	return nil
}

// PostToActive posts to whichever contact is in view.
func (r *Router) PostToActive(text string, isSelf bool) error {
	if text == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	contact, ok := r.contacts[r.active]
	if !ok {
		log.Printf("[router] dropping message, no active contact: %q", text)
		return ErrContactNotFound
	}
	r.postLocked(contact, text, isSelf)
	return nil
}

func (r *Router) postLocked(contact *chat.Contact, text string, isSelf bool) {
	msg := chat.Message{
		ID:        uuid.NewString(),
		Kind:      chat.KindNormal,
		Content:   text,
		IsSelf:    isSelf,
		CreatedAt: r.now(),
	}
	if !isSelf {
		msg.Sender = contact.Name
	}
	contact.History = append(contact.History, msg)

	if contact.Name == r.active {
		r.presenter.ShowMessage(contact.Name, msg)
		return
	}
	if !isSelf {
		contact.Unread = true
		r.presenter.Notify(contact.Name)
	}
}

// InsertSeparator appends a resumption marker. Callers check that the last
// entry is not already a separator.
func (r *Router) InsertSeparator(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	contact, ok := r.contacts[name]
	if !ok {
		return ErrContactNotFound
	}

	msg := chat.Message{
		ID:        uuid.NewString(),
		Kind:      chat.KindSeparator,
		CreatedAt: r.now(),
	}
	contact.History = append(contact.History, msg)
	if name == r.active {
		r.presenter.ShowMessage(name, msg)
	}
	return nil
}

// QueueDialog attaches a dialogue to a background contact, to be started when
// the player opens it.
func (r *Router) QueueDialog(name string, nodeID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	contact, ok := r.contacts[name]
	if !ok {
		return ErrContactNotFound
	}
	contact.PendingNodeID = nodeID
	contact.Unread = true
	r.presenter.Notify(name)
	log.Printf("[router] queued dialog %d for contact %s", nodeID, name)
	return nil
}

// PresentOptions locks the gate and shows captions bound to a contact. The
// callback runs at most once, after the gate has been released.
func (r *Router) PresentOptions(name string, captions []string, onChosen func(int)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		name = r.active
	}
	r.gate = true
	r.options = pendingOptions{
		contact:  name,
		captions: append([]string(nil), captions...),
		onChosen: onChosen,
	}
	r.presenter.ShowOptions(name, r.options.captions)
}

// Select resolves the pending option set with the player's choice.
func (r *Router) Select(index int) error {
	r.mu.Lock()
	if !r.gate {
		r.mu.Unlock()
		return ErrNoPendingOptions
	}
	if index < 0 || index >= len(r.options.captions) {
		r.mu.Unlock()
		return ErrOptionOutOfRange
	}

	onChosen := r.options.onChosen
	r.gate = false
	r.options = pendingOptions{}
	r.presenter.ClearOptions()
	r.mu.Unlock()

	if onChosen != nil {
		onChosen(index)
	}
	return nil
}

// ClearAllPendingOptions releases the gate and drops any callback.
func (r *Router) ClearAllPendingOptions() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.gate && r.options.onChosen == nil {
		return
	}
	r.gate = false
	r.options = pendingOptions{}
	r.presenter.ClearOptions()
}

// PendingOptions returns the captions awaiting a choice.
func (r *Router) PendingOptions() (contact string, captions []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.gate {
		return "", nil, false
	}
	return r.options.contact, append([]string(nil), r.options.captions...), true
}

// OptionsLocked reports whether the gate is held.
func (r *Router) OptionsLocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gate
}

// HasContact reports whether name is a configured contact.
func (r *Router) HasContact(name string) bool {
	if name == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.contacts[name]
	return ok
}

// Active returns the contact in view, or "" before the first switch.
func (r *Router) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// History returns a copy of a contact's messages.
func (r *Router) History(name string) ([]chat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contact, ok := r.contacts[name]
	if !ok {
		return nil, ErrContactNotFound
	}
	return copyHistory(contact.History), nil
}

// Contacts lists contacts in configuration order.
func (r *Router) Contacts() []chat.ContactSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]chat.ContactSummary, 0, len(r.order))
	for _, name := range r.order {
		c := r.contacts[name]
		out = append(out, chat.ContactSummary{
			Name:          c.Name,
			PendingNodeID: c.PendingNodeID,
			Unread:        c.Unread,
			MessageCount:  len(c.History),
			Active:        name == r.active,
		})
	}
	return out
}

func copyHistory(history []chat.Message) []chat.Message {
	copied := make([]chat.Message, len(history))
	copy(copied, history)
	return copied
}
