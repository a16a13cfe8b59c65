// Package live fans presentation updates out to connected clients.
package live

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/z-inbox/backend/internal/model/chat"
	"github.com/zhouzirui/z-inbox/backend/internal/service/events"
)

// Frame types sent to clients. Bus events use their topic name.
const (
	FrameConnected      = "connected"
	FrameHistory        = "history"
	FrameMessage        = "message"
	FrameOptions        = "options"
	FrameOptionsCleared = "options_cleared"
	FrameNotify         = "notify"
	FrameError          = "error"
)

const defaultBuffer = 64

// Frame is one update pushed to a client.
type Frame struct {
	Type      string `json:"type"`
	Contact   string `json:"contact,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// EventData is the payload of a forwarded bus event.
type EventData struct {
	NodeID  int    `json:"nodeId,omitempty"`
	Contact string `json:"contact,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Hub implements the conversation presenter by broadcasting frames. Sends
// never block: a subscriber whose buffer is full misses the frame.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]chan Frame
	buffer int
	now    func() time.Time
}

// NewHub creates a hub whose subscribers buffer up to buffer frames.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[string]chan Frame),
		buffer: buffer,
		now:    time.Now,
	}
}

// Subscribe registers a client and returns its id and frame channel.
func (h *Hub) Subscribe() (string, <-chan Frame) {
	id := uuid.NewString()
	ch := make(chan Frame, h.buffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	log.Printf("[live] subscriber %s connected", id)
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(ch)
	log.Printf("[live] subscriber %s disconnected", id)
}

// Subscribers reports the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Forward relays result and progress events from the bus to clients.
func (h *Hub) Forward(bus *events.Bus) (unsubscribe func()) {
	topics := []events.Topic{
		events.TopicDialogEnd,
		events.TopicConsequence,
		events.TopicWin,
		events.TopicFail,
	}

	unsubs := make([]func(), 0, len(topics))
	for _, topic := range topics {
		unsubs = append(unsubs, bus.Subscribe(topic, func(ev events.Event) {
			h.broadcast(Frame{
				Type:    ev.Topic.String(),
				Contact: ev.Contact,
				Data:    EventData{NodeID: ev.NodeID, Contact: ev.Contact, Text: ev.Text},
			})
		}))
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (h *Hub) ShowHistory(contact string, history []chat.Message) {
	h.broadcast(Frame{Type: FrameHistory, Contact: contact, Data: history})
}

func (h *Hub) ShowMessage(contact string, msg chat.Message) {
	h.broadcast(Frame{Type: FrameMessage, Contact: contact, Data: msg})
}

func (h *Hub) ShowOptions(contact string, captions []string) {
	h.broadcast(Frame{Type: FrameOptions, Contact: contact, Data: captions})
}

func (h *Hub) ClearOptions() {
	h.broadcast(Frame{Type: FrameOptionsCleared})
}

func (h *Hub) Notify(contact string) {
	h.broadcast(Frame{Type: FrameNotify, Contact: contact})
}

func (h *Hub) broadcast(frame Frame) {
	frame.Timestamp = h.now().Unix()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- frame:
		default:
			log.Printf("[live] subscriber %s is behind, dropping %s frame", id, frame.Type)
		}
	}
}
