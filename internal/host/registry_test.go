package host

import (
	"errors"
	"sync"
	"testing"

	"github.com/hari-na/hari-jeopardy/internal/protocol"
)

// fakeLink is an in-memory transport.Link for registry and session tests.
type fakeLink struct {
	id     string
	inbox  chan protocol.Message
	outbox chan protocol.Message
	done   chan struct{}
	once   sync.Once
}

func newFakeLink(id string) *fakeLink {
	return &fakeLink{
		id:     id,
		inbox:  make(chan protocol.Message, 64),
		outbox: make(chan protocol.Message, 64),
		done:   make(chan struct{}),
	}
}

func (l *fakeLink) RemoteID() string { return l.id }

func (l *fakeLink) Send(msg protocol.Message) error {
	select {
	case <-l.done:
		return errors.New("link closed")
	case l.outbox <- msg:
		return nil
	}
}

func (l *fakeLink) Messages() <-chan protocol.Message { return l.inbox }

func (l *fakeLink) Done() <-chan struct{} { return l.done }

func (l *fakeLink) Close() error {
	l.once.Do(func() {
		close(l.done)
		close(l.inbox)
	})
	return nil
}

func TestRegistryBindAndResolve(t *testing.T) {
	r := NewRegistry()
	link := newFakeLink("conn-1")

	r.Register(link)
	r.BindPlayer("conn-1", "p1")

	if got := r.PlayerID("conn-1"); got != "p1" {
		t.Fatalf("got player %q, want p1", got)
	}
	if r.LinkForPlayer("p1") != link {
		t.Fatal("LinkForPlayer should resolve the bound link")
	}
	if r.PlayerID("conn-2") != "" {
		t.Fatal("unknown remote should resolve to empty player")
	}
	if got := r.Count(); got != 1 {
		t.Fatalf("got %d links, want 1", got)
	}
}

func TestRegistryControllerSlot(t *testing.T) {
	r := NewRegistry()

	if !r.ClaimController("conn-1") {
		t.Fatal("free slot should be claimable")
	}
	if !r.ClaimController("conn-1") {
		t.Fatal("re-claim by the holder should succeed")
	}
	if r.ClaimController("conn-2") {
		t.Fatal("occupied slot must reject a different connection")
	}
	if !r.IsController("conn-1") || r.IsController("conn-2") {
		t.Fatal("controller identity mismatch")
	}
	if !r.ControllerConnected() {
		t.Fatal("slot should read as occupied")
	}

	if _, wasController := r.Unregister("conn-1"); !wasController {
		t.Fatal("unregistering the controller should report it")
	}
	if r.ControllerConnected() {
		t.Fatal("slot should free on unregister")
	}
	if !r.ClaimController("conn-2") {
		t.Fatal("freed slot should be claimable again")
	}
}

func TestRegistryUnregisterReturnsBinding(t *testing.T) {
	r := NewRegistry()
	link := newFakeLink("conn-1")
	r.Register(link)
	r.BindPlayer("conn-1", "p1")

	playerID, wasController := r.Unregister("conn-1")
	if playerID != "p1" || wasController {
		t.Fatalf("got (%q, %v), want (p1, false)", playerID, wasController)
	}
	if r.Count() != 0 {
		t.Fatal("registry should be empty")
	}
}

func TestRegistryBroadcastSkipsClosedLinks(t *testing.T) {
	r := NewRegistry()
	open := newFakeLink("conn-1")
	closed := newFakeLink("conn-2")
	r.Register(open)
	r.Register(closed)
	closed.Close()

	r.Broadcast(protocol.NewReleaseBuzzer())

	select {
	case msg := <-open.outbox:
		if msg.Type != protocol.TypeReleaseBuzzer {
			t.Fatalf("got %s", msg.Type)
		}
	default:
		t.Fatal("open link should receive the broadcast")
	}
	select {
	case <-closed.outbox:
		t.Fatal("closed link should be skipped")
	default:
	}
}
