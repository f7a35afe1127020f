// Package protocol defines the closed set of message envelopes exchanged
// between the host and its clients, with a concretely typed payload per kind.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/hari-na/hari-jeopardy/internal/game"
)

// MessageType tags an envelope with its kind.
type MessageType string

const (
	// TypeUpdateState carries a full GameState snapshot, host to all.
	TypeUpdateState MessageType = "UPDATE_STATE"
	// TypePlayerJoin announces a new player, client to host.
	TypePlayerJoin MessageType = "PLAYER_JOIN"
	// TypeBuzz is a buzz attempt, client to host, no payload.
	TypeBuzz MessageType = "BUZZ"
	// TypeBuzzLockedAttempt signals a buzz attempted while locked.
	TypeBuzzLockedAttempt MessageType = "BUZZ_LOCKED_ATTEMPT"
	// TypeHostAction carries a privileged sub-action, client to host.
	TypeHostAction MessageType = "HOST_ACTION"
	// TypeReleaseBuzzer tells clients the global lock cleared.
	TypeReleaseBuzzer MessageType = "RELEASE_BUZZER"
	// TypeRejected refuses a connection attempt, host to one client.
	TypeRejected MessageType = "REJECTED"
	// TypeKicked notifies a player of removal, host to one client.
	TypeKicked MessageType = "KICKED"
)

// SenderHost is the senderId of every host-originated envelope.
const SenderHost = "HOST"

// ControllerName is the reserved join name that claims the single controller
// slot instead of registering a scored player.
const ControllerName = "HOST_CONTROLLER"

// Message is the wire envelope. Payload is decoded per Type at the
// deserialization boundary via the Decode helpers.
type Message struct {
	Type     MessageType     `json:"type"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	SenderID string          `json:"senderId"`
}

// HostActionType enumerates the privileged sub-actions.
type HostActionType string

const (
	ActionStartGame      HostActionType = "START_GAME"
	ActionSelectQuestion HostActionType = "SELECT_QUESTION"
	ActionCorrect        HostActionType = "CORRECT"
	ActionIncorrect      HostActionType = "INCORRECT"
	ActionContinue       HostActionType = "CONTINUE"
	ActionSkip           HostActionType = "SKIP"
	ActionReleaseBuzzer  HostActionType = "RELEASE_BUZZER"
	ActionRenamePlayer   HostActionType = "RENAME_PLAYER"
	ActionOverrideScore  HostActionType = "OVERRIDE_SCORE"
	ActionKickPlayer     HostActionType = "KICK_PLAYER"
)

// HostAction is the payload of a HOST_ACTION envelope. Only the fields the
// action names are meaningful.
type HostAction struct {
	Action     HostActionType `json:"action"`
	QuestionID string         `json:"questionId,omitempty"`
	PlayerID   string         `json:"playerId,omitempty"`
	NewName    string         `json:"newName,omitempty"`
	NewScore   *int           `json:"newScore,omitempty"`
}

// Reason is the payload of REJECTED and KICKED envelopes.
type Reason struct {
	Reason string `json:"reason"`
}

func marshal(t MessageType, sender string, payload any) (Message, error) {
	msg := Message{Type: t, SenderID: sender}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// NewUpdateState builds the host's full-snapshot broadcast.
func NewUpdateState(state *game.GameState) (Message, error) {
	return marshal(TypeUpdateState, SenderHost, state)
}

// NewPlayerJoin builds a client's join announcement.
func NewPlayerJoin(p game.Player) (Message, error) {
	return marshal(TypePlayerJoin, p.ID, p)
}

// NewBuzz builds a buzz envelope.
func NewBuzz(playerID string) Message {
	return Message{Type: TypeBuzz, SenderID: playerID}
}

// NewBuzzLockedAttempt builds a locked-buzz envelope.
func NewBuzzLockedAttempt(playerID string) Message {
	return Message{Type: TypeBuzzLockedAttempt, SenderID: playerID}
}

// NewHostAction builds a HOST_ACTION envelope.
func NewHostAction(senderID string, action HostAction) (Message, error) {
	return marshal(TypeHostAction, senderID, action)
}

// NewReleaseBuzzer builds the host's buzzer-release notification.
func NewReleaseBuzzer() Message {
	return Message{Type: TypeReleaseBuzzer, SenderID: SenderHost}
}

// NewRejected builds a rejection reply.
func NewRejected(reason string) (Message, error) {
	return marshal(TypeRejected, SenderHost, Reason{Reason: reason})
}

// NewKicked builds a kick notification.
func NewKicked(reason string) (Message, error) {
	return marshal(TypeKicked, SenderHost, Reason{Reason: reason})
}

// DecodeState decodes an UPDATE_STATE payload.
func DecodeState(msg Message) (*game.GameState, error) {
	if msg.Type != TypeUpdateState {
		return nil, fmt.Errorf("decode state from %s envelope", msg.Type)
	}
	var st game.GameState
	if err := json.Unmarshal(msg.Payload, &st); err != nil {
		return nil, fmt.Errorf("unmarshal game state: %w", err)
	}
	return &st, nil
}

// DecodeJoin decodes a PLAYER_JOIN payload.
func DecodeJoin(msg Message) (game.Player, error) {
	if msg.Type != TypePlayerJoin {
		return game.Player{}, fmt.Errorf("decode join from %s envelope", msg.Type)
	}
	var p game.Player
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return game.Player{}, fmt.Errorf("unmarshal player join: %w", err)
	}
	return p, nil
}

// DecodeHostAction decodes a HOST_ACTION payload.
func DecodeHostAction(msg Message) (HostAction, error) {
	if msg.Type != TypeHostAction {
		return HostAction{}, fmt.Errorf("decode host action from %s envelope", msg.Type)
	}
	var a HostAction
	if err := json.Unmarshal(msg.Payload, &a); err != nil {
		return HostAction{}, fmt.Errorf("unmarshal host action: %w", err)
	}
	return a, nil
}

// DecodeReason decodes a REJECTED or KICKED payload.
func DecodeReason(msg Message) (string, error) {
	if msg.Type != TypeRejected && msg.Type != TypeKicked {
		return "", fmt.Errorf("decode reason from %s envelope", msg.Type)
	}
	var r Reason
	if err := json.Unmarshal(msg.Payload, &r); err != nil {
		return "", fmt.Errorf("unmarshal reason: %w", err)
	}
	return r.Reason, nil
}
