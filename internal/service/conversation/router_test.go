package conversation

import (
	"errors"
	"sync"
	"testing"

	"github.com/zhouzirui/z-inbox/backend/internal/model/chat"
	"github.com/zhouzirui/z-inbox/backend/internal/service/events"
)

type recordingPresenter struct {
	mu       sync.Mutex
	messages map[string][]chat.Message
	options  [][]string
	cleared  int
	notified []string
	rendered []string
}

func newRecordingPresenter() *recordingPresenter {
	return &recordingPresenter{messages: make(map[string][]chat.Message)}
}

func (p *recordingPresenter) ShowHistory(contact string, history []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rendered = append(p.rendered, contact)
}

func (p *recordingPresenter) ShowMessage(contact string, msg chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages[contact] = append(p.messages[contact], msg)
}

func (p *recordingPresenter) ShowOptions(contact string, captions []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.options = append(p.options, captions)
}

func (p *recordingPresenter) ClearOptions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared++
}

func (p *recordingPresenter) Notify(contact string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notified = append(p.notified, contact)
}

func setupRouter(seeds ...chat.Seed) (*Router, *recordingPresenter, *events.Bus) {
	if len(seeds) == 0 {
		seeds = []chat.Seed{{Name: "Mira"}, {Name: "Jonas"}}
	}
	presenter := newRecordingPresenter()
	bus := events.NewBus()
	return NewRouter(seeds, presenter, bus), presenter, bus
}

func TestPostMessageToBackgroundContactMarksUnread(t *testing.T) {
	router, presenter, _ := setupRouter()
	if err := router.SwitchActive("Mira"); err != nil {
		t.Fatalf("SwitchActive err: %v", err)
	}

	if err := router.PostMessage("Jonas", "psst", false); err != nil {
		t.Fatalf("PostMessage err: %v", err)
	}

	contacts := router.Contacts()
	if contacts[1].Name != "Jonas" || !contacts[1].Unread {
		t.Fatalf("expected Jonas unread, got %+v", contacts[1])
	}
	if len(presenter.notified) != 1 || presenter.notified[0] != "Jonas" {
		t.Fatalf("unexpected notifications: %v", presenter.notified)
	}
	if len(presenter.messages["Jonas"]) != 0 {
		t.Fatal("background message must not render")
	}

	if err := router.SwitchActive("Jonas"); err != nil {
		t.Fatalf("SwitchActive err: %v", err)
	}
	if router.Contacts()[1].Unread {
		t.Fatal("switching to contact should clear unread")
	}
}

func TestSelfMessageToBackgroundContactDoesNotNotify(t *testing.T) {
	router, presenter, _ := setupRouter()
	_ = router.SwitchActive("Mira")

	_ = router.PostMessage("Jonas", "sent from elsewhere", true)

	if router.Contacts()[1].Unread {
		t.Fatal("self message must not mark unread")
	}
	if len(presenter.notified) != 0 {
		t.Fatalf("unexpected notifications: %v", presenter.notified)
	}
}

func TestPostMessageToActiveRendersImmediately(t *testing.T) {
	router, presenter, _ := setupRouter()
	_ = router.SwitchActive("Mira")

	_ = router.PostMessage("Mira", "hello", false)
	_ = router.PostToActive("hi", true)

	got := presenter.messages["Mira"]
	if len(got) != 2 {
		t.Fatalf("unexpected rendered messages: %d", len(got))
	}
	if got[0].Sender != "Mira" || got[0].IsSelf {
		t.Fatalf("unexpected first message: %+v", got[0])
	}
	if !got[1].IsSelf || got[1].Sender != "" {
		t.Fatalf("unexpected second message: %+v", got[1])
	}
	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Fatal("messages need distinct ids")
	}
}

func TestPostMessageIgnoresEmptyAndUnknown(t *testing.T) {
	router, _, _ := setupRouter()

	if err := router.PostMessage("Mira", "", false); err != nil {
		t.Fatalf("empty text should be ignored, got %v", err)
	}
	if err := router.PostMessage("Nobody", "hi", false); !errors.Is(err, ErrContactNotFound) {
		t.Fatalf("expected ErrContactNotFound, got %v", err)
	}
	history, _ := router.History("Mira")
	if len(history) != 0 {
		t.Fatalf("unexpected history: %v", history)
	}
}

func TestPresentOptionsCallbackFiresOnce(t *testing.T) {
	router, presenter, _ := setupRouter()
	_ = router.SwitchActive("Mira")

	calls := 0
	var chosen int
	router.PresentOptions("Mira", []string{"A", "B"}, func(i int) {
		calls++
		chosen = i
	})

	if !router.OptionsLocked() {
		t.Fatal("gate should be locked while options are pending")
	}
	if err := router.Select(1); err != nil {
		t.Fatalf("Select err: %v", err)
	}
	if err := router.Select(0); !errors.Is(err, ErrNoPendingOptions) {
		t.Fatalf("expected ErrNoPendingOptions on second select, got %v", err)
	}

	if calls != 1 || chosen != 1 {
		t.Fatalf("unexpected callback: calls=%d chosen=%d", calls, chosen)
	}
	if router.OptionsLocked() {
		t.Fatal("gate should unlock after selection")
	}
	if presenter.cleared != 1 {
		t.Fatalf("expected options cleared once, got %d", presenter.cleared)
	}
}

func TestSelectOutOfRangeKeepsGate(t *testing.T) {
	router, _, _ := setupRouter()
	router.PresentOptions("Mira", []string{"A"}, func(int) { t.Fatal("callback must not fire") })

	if err := router.Select(3); !errors.Is(err, ErrOptionOutOfRange) {
		t.Fatalf("expected ErrOptionOutOfRange, got %v", err)
	}
	if !router.OptionsLocked() {
		t.Fatal("gate should stay locked after a bad index")
	}
}

func TestSwitchActiveRefusedWhileOptionsPending(t *testing.T) {
	router, _, _ := setupRouter()
	_ = router.SwitchActive("Mira")
	router.PresentOptions("Mira", []string{"A"}, func(int) {})

	if err := router.SwitchActive("Jonas"); !errors.Is(err, ErrOptionPending) {
		t.Fatalf("expected ErrOptionPending, got %v", err)
	}
	if router.Active() != "Mira" {
		t.Fatalf("active contact changed to %s", router.Active())
	}
}

func TestClearAllPendingOptionsDropsCallback(t *testing.T) {
	router, _, _ := setupRouter()
	router.PresentOptions("Mira", []string{"A"}, func(int) { t.Fatal("stale callback fired") })

	router.ClearAllPendingOptions()

	if router.OptionsLocked() {
		t.Fatal("gate should be unlocked")
	}
	if err := router.Select(0); !errors.Is(err, ErrNoPendingOptions) {
		t.Fatalf("expected ErrNoPendingOptions, got %v", err)
	}
	if err := router.SwitchActive("Jonas"); err != nil {
		t.Fatalf("switch should succeed after clearing, got %v", err)
	}
}

func TestQueueDialogStartsOnSwitch(t *testing.T) {
	router, presenter, bus := setupRouter()
	_ = router.SwitchActive("Mira")

	var started []events.Event
	bus.Subscribe(events.TopicDialogStart, func(ev events.Event) { started = append(started, ev) })

	if err := router.QueueDialog("Jonas", 950); err != nil {
		t.Fatalf("QueueDialog err: %v", err)
	}
	summary := router.Contacts()[1]
	if summary.PendingNodeID != 950 || !summary.Unread {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(presenter.notified) != 1 {
		t.Fatalf("expected a notification, got %v", presenter.notified)
	}

	_ = router.SwitchActive("Jonas")
	_ = router.SwitchActive("Mira")
	_ = router.SwitchActive("Jonas")

	if len(started) != 1 || started[0].NodeID != 950 || started[0].Contact != "Jonas" {
		t.Fatalf("unexpected dialog starts: %+v", started)
	}
}

func TestSeedWithEntryNodeStartsUnread(t *testing.T) {
	router, _, bus := setupRouter(chat.Seed{Name: "Mira", EntryNodeID: 100}, chat.Seed{Name: "Mira"}, chat.Seed{Name: "Ada"})

	contacts := router.Contacts()
	if len(contacts) != 2 {
		t.Fatalf("duplicate seeds should collapse, got %d", len(contacts))
	}
	if !contacts[0].Unread || contacts[0].PendingNodeID != 100 {
		t.Fatalf("unexpected seeded contact: %+v", contacts[0])
	}

	var started int
	bus.Subscribe(events.TopicDialogStart, func(ev events.Event) { started = ev.NodeID })
	if err := router.ActivateFirst(); err != nil {
		t.Fatalf("ActivateFirst err: %v", err)
	}
	if started != 100 {
		t.Fatalf("expected pending dialog 100 to start, got %d", started)
	}
}

func TestInsertSeparatorRendersForActive(t *testing.T) {
	router, presenter, _ := setupRouter()
	_ = router.SwitchActive("Mira")
	_ = router.PostMessage("Mira", "earlier", false)

	if err := router.InsertSeparator("Mira"); err != nil {
		t.Fatalf("InsertSeparator err: %v", err)
	}

	history, _ := router.History("Mira")
	if len(history) != 2 || !history[1].IsSeparator() {
		t.Fatalf("unexpected history: %+v", history)
	}
	if got := presenter.messages["Mira"]; len(got) != 2 || got[1].Kind != chat.KindSeparator {
		t.Fatalf("separator should render for active contact: %+v", got)
	}
}
