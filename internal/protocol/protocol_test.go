package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/hari-na/hari-jeopardy/internal/game"
)

func TestHostActionRoundTrip(t *testing.T) {
	score := 500
	action := HostAction{
		Action:   ActionOverrideScore,
		PlayerID: "p1",
		NewScore: &score,
	}
	msg, err := NewHostAction("controller-1", action)
	if err != nil {
		t.Fatalf("NewHostAction: %v", err)
	}
	if msg.Type != TypeHostAction || msg.SenderID != "controller-1" {
		t.Fatalf("bad envelope: %+v", msg)
	}

	got, err := DecodeHostAction(msg)
	if err != nil {
		t.Fatalf("DecodeHostAction: %v", err)
	}
	if got.Action != ActionOverrideScore || got.PlayerID != "p1" {
		t.Fatalf("got %+v", got)
	}
	if got.NewScore == nil || *got.NewScore != 500 {
		t.Fatalf("got score %v, want 500", got.NewScore)
	}
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	msg := NewBuzz("p1")
	if _, err := DecodeHostAction(msg); err == nil {
		t.Fatal("decoding a host action from a BUZZ envelope should fail")
	}
	if _, err := DecodeState(msg); err == nil {
		t.Fatal("decoding state from a BUZZ envelope should fail")
	}
	if _, err := DecodeJoin(msg); err == nil {
		t.Fatal("decoding a join from a BUZZ envelope should fail")
	}
	if _, err := DecodeReason(msg); err == nil {
		t.Fatal("decoding a reason from a BUZZ envelope should fail")
	}
}

func TestUpdateStateCarriesFullSnapshot(t *testing.T) {
	state := game.NewGameState("ABCD", "static", nil)
	state.Players = append(state.Players, game.Player{ID: "p1", Name: "Alice", Score: 400})

	msg, err := NewUpdateState(state)
	if err != nil {
		t.Fatalf("NewUpdateState: %v", err)
	}
	if msg.SenderID != SenderHost {
		t.Fatalf("got sender %q, want %q", msg.SenderID, SenderHost)
	}

	got, err := DecodeState(msg)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if got.RoomCode != "ABCD" || len(got.Players) != 1 || got.Players[0].Score != 400 {
		t.Fatalf("got %+v", got)
	}
}

func TestJoinEnvelopeUsesWireNames(t *testing.T) {
	msg, err := NewPlayerJoin(game.Player{ID: "p1", Name: "Alice"})
	if err != nil {
		t.Fatalf("NewPlayerJoin: %v", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	wire := string(data)
	for _, want := range []string{`"type":"PLAYER_JOIN"`, `"senderId":"p1"`} {
		if !strings.Contains(wire, want) {
			t.Fatalf("wire form %s missing %s", wire, want)
		}
	}
}

func TestReasonRoundTrip(t *testing.T) {
	msg, err := NewKicked("removed by host")
	if err != nil {
		t.Fatalf("NewKicked: %v", err)
	}
	reason, err := DecodeReason(msg)
	if err != nil {
		t.Fatalf("DecodeReason: %v", err)
	}
	if reason != "removed by host" {
		t.Fatalf("got %q", reason)
	}
}
