package live

import (
	"testing"
	"time"

	"github.com/zhouzirui/z-inbox/backend/internal/model/chat"
	"github.com/zhouzirui/z-inbox/backend/internal/service/events"
)

func receive(t *testing.T, frames <-chan Frame) Frame {
	t.Helper()
	select {
	case frame := <-frames:
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return Frame{}
	}
}

func TestHubBroadcastsPresenterCalls(t *testing.T) {
	hub := NewHub(8)
	_, first := hub.Subscribe()
	_, second := hub.Subscribe()

	hub.ShowMessage("Mira", chat.Message{Content: "hello"})

	for _, frames := range []<-chan Frame{first, second} {
		frame := receive(t, frames)
		if frame.Type != FrameMessage || frame.Contact != "Mira" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
		if msg, ok := frame.Data.(chat.Message); !ok || msg.Content != "hello" {
			t.Fatalf("unexpected payload: %+v", frame.Data)
		}
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(1)
	id, frames := hub.Subscribe()

	hub.Unsubscribe(id)
	hub.Unsubscribe(id)

	if _, ok := <-frames; ok {
		t.Fatal("expected closed channel")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("unexpected subscriber count: %d", hub.Subscribers())
	}
	hub.Notify("Mira")
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(1)
	_, frames := hub.Subscribe()

	hub.Notify("Mira")
	hub.Notify("Jonas")

	frame := receive(t, frames)
	if frame.Contact != "Mira" {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	select {
	case extra := <-frames:
		t.Fatalf("expected dropped frame, got %+v", extra)
	default:
	}
}

func TestHubForwardsBusEvents(t *testing.T) {
	bus := events.NewBus()
	hub := NewHub(4)
	_, frames := hub.Subscribe()

	unsubscribe := hub.Forward(bus)
	bus.Publish(events.Event{Topic: events.TopicConsequence, NodeID: 7, Text: "watched"})
	bus.Publish(events.Event{Topic: events.TopicDialogStart, NodeID: 8})

	frame := receive(t, frames)
	if frame.Type != "consequence-popup" {
		t.Fatalf("unexpected frame type: %s", frame.Type)
	}
	if data, ok := frame.Data.(EventData); !ok || data.Text != "watched" || data.NodeID != 7 {
		t.Fatalf("unexpected payload: %+v", frame.Data)
	}

	unsubscribe()
	bus.PublishTopic(events.TopicWin)
	select {
	case extra := <-frames:
		t.Fatalf("unexpected frame after unsubscribe: %+v", extra)
	default:
	}
}
