package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hari-na/hari-jeopardy/internal/cue"
	"github.com/hari-na/hari-jeopardy/internal/game"
	"github.com/hari-na/hari-jeopardy/internal/protocol"
	"github.com/hari-na/hari-jeopardy/internal/transport"
)

type fakeEndpoint struct {
	id     string
	accept chan transport.Link
}

func (ep *fakeEndpoint) ID() string { return ep.id }

func (ep *fakeEndpoint) Accept() <-chan transport.Link { return ep.accept }

func (ep *fakeEndpoint) Close() error { return nil }

func (ep *fakeEndpoint) Dial(context.Context, string) (transport.Link, error) {
	return nil, errors.New("host endpoints do not dial")
}

type fakeNetwork struct {
	ep *fakeEndpoint
}

func (n *fakeNetwork) Open(_ context.Context, identity string) (transport.Endpoint, error) {
	n.ep.id = identity
	return n.ep, nil
}

func sessionBoard() []game.Category {
	return []game.Category{{
		Title: "Test",
		Questions: []game.Question{
			{ID: "q1", Value: 200, Question: "q?", Answer: "a", Category: "Test"},
			{ID: "q2", Value: 400, Question: "q?", Answer: "a", Category: "Test"},
		},
	}}
}

func startSession(t *testing.T) (*Session, *fakeEndpoint, *clockwork.FakeClock) {
	t.Helper()
	ep := &fakeEndpoint{accept: make(chan transport.Link, 4)}
	clock := clockwork.NewFakeClock()
	session, err := NewSession(context.Background(), &fakeNetwork{ep: ep}, "ABCD", "static",
		sessionBoard(), clock, cue.NopPlayer{})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go session.Run(ctx)
	return session, ep, clock
}

// recv reads the link's outbox until an envelope of the wanted kind arrives.
func recv(t *testing.T, l *fakeLink, want protocol.MessageType) protocol.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-l.outbox:
			if msg.Type == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// recvState reads snapshots until pred accepts one.
func recvState(t *testing.T, l *fakeLink, pred func(*game.GameState) bool) *game.GameState {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-l.outbox:
			if msg.Type != protocol.TypeUpdateState {
				continue
			}
			state, err := protocol.DecodeState(msg)
			if err != nil {
				t.Fatalf("DecodeState: %v", err)
			}
			if pred(state) {
				return state
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching snapshot")
		}
	}
}

func join(t *testing.T, ep *fakeEndpoint, link *fakeLink, p game.Player) {
	t.Helper()
	ep.accept <- link
	msg, err := protocol.NewPlayerJoin(p)
	if err != nil {
		t.Fatalf("NewPlayerJoin: %v", err)
	}
	link.inbox <- msg
}

func TestSessionJoinBroadcastsRoster(t *testing.T) {
	_, ep, _ := startSession(t)
	link := newFakeLink("conn-1")
	join(t, ep, link, game.Player{ID: "p1", Name: "Alice"})

	state := recvState(t, link, func(s *game.GameState) bool {
		return s.FindPlayer("p1") != nil
	})
	if state.RoomCode != "ABCD" || state.Status != game.StatusLobby {
		t.Fatalf("got %s/%s", state.RoomCode, state.Status)
	}
}

func TestSessionRejoinGetsSnapshot(t *testing.T) {
	_, ep, _ := startSession(t)
	first := newFakeLink("conn-1")
	join(t, ep, first, game.Player{ID: "p1", Name: "Alice"})
	recvState(t, first, func(s *game.GameState) bool { return s.FindPlayer("p1") != nil })
	first.Close()

	// Same player id on a fresh connection: roster unchanged, but the new
	// link still gets the current snapshot.
	second := newFakeLink("conn-2")
	join(t, ep, second, game.Player{ID: "p1", Name: "Alice"})
	state := recvState(t, second, func(s *game.GameState) bool { return s.FindPlayer("p1") != nil })
	if len(state.Players) != 1 {
		t.Fatalf("got %d players, want 1", len(state.Players))
	}
}

func TestSessionControllerContention(t *testing.T) {
	_, ep, _ := startSession(t)

	first := newFakeLink("ctrl-1")
	join(t, ep, first, game.Player{ID: "c1", Name: protocol.ControllerName})
	recvState(t, first, func(s *game.GameState) bool { return s.IsHostControllerConnected })

	second := newFakeLink("ctrl-2")
	join(t, ep, second, game.Player{ID: "c2", Name: protocol.ControllerName})
	msg := recv(t, second, protocol.TypeRejected)
	if reason, _ := protocol.DecodeReason(msg); reason == "" {
		t.Fatal("rejection should carry a reason")
	}

	// The controller slot frees when its connection drops.
	first.Close()
	third := newFakeLink("ctrl-3")
	join(t, ep, third, game.Player{ID: "c3", Name: protocol.ControllerName})
	recvState(t, third, func(s *game.GameState) bool { return s.IsHostControllerConnected })
}

func TestSessionHostActionRequiresController(t *testing.T) {
	_, ep, _ := startSession(t)
	player := newFakeLink("conn-1")
	join(t, ep, player, game.Player{ID: "p1", Name: "Alice"})
	recvState(t, player, func(s *game.GameState) bool { return s.FindPlayer("p1") != nil })

	// A start request from a plain player connection is dropped.
	start, err := protocol.NewHostAction("p1", protocol.HostAction{Action: protocol.ActionStartGame})
	if err != nil {
		t.Fatal(err)
	}
	player.inbox <- start

	ctrl := newFakeLink("ctrl-1")
	join(t, ep, ctrl, game.Player{ID: "c1", Name: protocol.ControllerName})
	state := recvState(t, ctrl, func(s *game.GameState) bool { return s.IsHostControllerConnected })
	if state.Status != game.StatusLobby {
		t.Fatalf("player-issued start should be dropped, got %s", state.Status)
	}

	ctrl.inbox <- start
	recvState(t, player, func(s *game.GameState) bool { return s.Status == game.StatusIntro })
}

func TestSessionKickNotifiesAndRemoves(t *testing.T) {
	session, ep, clock := startSession(t)
	target := newFakeLink("conn-1")
	other := newFakeLink("conn-2")
	join(t, ep, target, game.Player{ID: "p1", Name: "Alice"})
	join(t, ep, other, game.Player{ID: "p2", Name: "Bob"})
	recvState(t, other, func(s *game.GameState) bool { return len(s.Players) == 2 })

	session.Do(protocol.HostAction{Action: protocol.ActionKickPlayer, PlayerID: "p1"})

	recv(t, target, protocol.TypeKicked)
	recvState(t, other, func(s *game.GameState) bool {
		return len(s.Players) == 1 && s.FindPlayer("p1") == nil
	})

	// The link stays up through the grace period so the KICKED envelope can
	// flush, then closes when the session clock reaches the deadline.
	select {
	case <-target.done:
		t.Fatal("kicked link closed before the grace period elapsed")
	default:
	}
	clock.Advance(kickCloseGrace)
	select {
	case <-target.done:
	case <-time.After(2 * time.Second):
		t.Fatal("kicked link never closed after the grace period")
	}
}

func TestSessionDisconnectKeepsPlayerOnRoster(t *testing.T) {
	session, ep, _ := startSession(t)
	leaver := newFakeLink("conn-1")
	stayer := newFakeLink("conn-2")
	join(t, ep, leaver, game.Player{ID: "p1", Name: "Alice"})
	join(t, ep, stayer, game.Player{ID: "p2", Name: "Bob"})
	recvState(t, stayer, func(s *game.GameState) bool { return len(s.Players) == 2 })

	leaver.Close()

	// Force a broadcast after the disconnect lands and check the roster.
	session.Do(protocol.HostAction{Action: protocol.ActionRenamePlayer, PlayerID: "p2", NewName: "Bobby"})
	state := recvState(t, stayer, func(s *game.GameState) bool {
		return s.FindPlayer("p2") != nil && s.FindPlayer("p2").Name == "Bobby"
	})
	if state.FindPlayer("p1") == nil {
		t.Fatal("disconnected player should stay on the roster")
	}
}

func TestSessionReleaseBuzzerBroadcast(t *testing.T) {
	session, ep, _ := startSession(t)
	player := newFakeLink("conn-1")
	join(t, ep, player, game.Player{ID: "p1", Name: "Alice"})
	recvState(t, player, func(s *game.GameState) bool { return s.FindPlayer("p1") != nil })

	// Walk the session into an open question through the public action path.
	session.Do(protocol.HostAction{Action: protocol.ActionStartGame})
	session.submit(func() { session.engine.BeginPlay() })
	session.Do(protocol.HostAction{Action: protocol.ActionSelectQuestion, QuestionID: "q1"})
	recvState(t, player, func(s *game.GameState) bool { return s.Status == game.StatusQuestionActive })

	session.Do(protocol.HostAction{Action: protocol.ActionReleaseBuzzer})
	recv(t, player, protocol.TypeReleaseBuzzer)
}
