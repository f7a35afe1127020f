// Package host runs the authoritative side of a trivia session: it owns the
// single GameState, validates every inbound message against it, and
// broadcasts a full snapshot after each accepted mutation.
package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/hari-na/hari-jeopardy/internal/cue"
	"github.com/hari-na/hari-jeopardy/internal/game"
	"github.com/hari-na/hari-jeopardy/internal/protocol"
	"github.com/hari-na/hari-jeopardy/internal/transport"
)

// kickCloseGrace is how long a kicked player's link stays open so the KICKED
// notification can flush before the connection drops.
const kickCloseGrace = 500 * time.Millisecond

// Session is one hosted game. All state mutation is serialized through the
// Run loop: link read pumps and scheduler timers only enqueue closures onto
// the command channel, so the engine never sees concurrent access.
type Session struct {
	roomCode string
	endpoint transport.Endpoint
	registry *Registry
	engine   *game.Engine
	clock    clockwork.Clock

	commands chan func()
	done     chan struct{}
	stopOnce sync.Once

	snapMu   sync.RWMutex
	snapshot []byte
}

// NewSession opens the host endpoint under the deterministic room identity
// and prepares the engine. transport.ErrIdentityInUse surfaces to the caller;
// retrying (after the settle delay) is the caller's decision.
func NewSession(ctx context.Context, net transport.Network, roomCode, theme string, categories []game.Category, clock clockwork.Clock, cues cue.Player) (*Session, error) {
	endpoint, err := net.Open(ctx, transport.HostIdentity(roomCode))
	if err != nil {
		return nil, fmt.Errorf("open host endpoint: %w", err)
	}

	s := &Session{
		roomCode: roomCode,
		endpoint: endpoint,
		registry: NewRegistry(),
		clock:    clock,
		commands: make(chan func(), 256),
		done:     make(chan struct{}),
	}
	sched := game.NewScheduler(clock, s.submit)
	state := game.NewGameState(roomCode, theme, categories)
	s.engine = game.NewEngine(state, clock, cues, sched, s.broadcastState)
	s.cacheSnapshot(state)

	log.Info().Str("room", roomCode).Str("identity", endpoint.ID()).Msg("session created")
	return s, nil
}

// RoomCode returns the session's join code.
func (s *Session) RoomCode() string { return s.roomCode }

// Registry exposes the connection registry, for the read-only HTTP API.
func (s *Session) Registry() *Registry { return s.registry }

// Run drives the session until ctx is cancelled: accepting links, applying
// queued commands, and tearing down timers on exit.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		s.stopOnce.Do(func() { close(s.done) })
		s.engine.Teardown()
		s.endpoint.Close()
		log.Info().Str("room", s.roomCode).Msg("session stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case link, ok := <-s.endpoint.Accept():
			if !ok {
				return nil
			}
			go s.readLoop(link)
		case fn := <-s.commands:
			fn()
		}
	}
}

// submit enqueues fn onto the session loop. Used by link readers and by the
// scheduler; drops silently once the session is done.
func (s *Session) submit(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.done:
	}
}

// Do runs a host action from the local host process (the host device's own
// controls go through the same serialized path as remote controller actions).
func (s *Session) Do(action protocol.HostAction) {
	s.submit(func() { s.applyHostAction(action) })
}

func (s *Session) readLoop(link transport.Link) {
	for msg := range link.Messages() {
		m := msg
		s.submit(func() { s.handleMessage(link, m) })
	}
	s.submit(func() { s.handleDisconnect(link) })
}

// handleMessage validates one inbound envelope against the current state.
// Anything that fails a guard is dropped with no reply; only the controller
// slot contention gets an explicit REJECTED.
func (s *Session) handleMessage(link transport.Link, msg protocol.Message) {
	switch msg.Type {
	case protocol.TypePlayerJoin:
		s.handleJoin(link, msg)

	case protocol.TypeBuzz:
		playerID := s.registry.PlayerID(link.RemoteID())
		if playerID == "" {
			log.Debug().Str("remote", link.RemoteID()).Msg("buzz from unbound link dropped")
			return
		}
		s.engine.HandleBuzz(playerID)

	case protocol.TypeBuzzLockedAttempt:
		playerID := s.registry.PlayerID(link.RemoteID())
		if playerID == "" {
			log.Debug().Str("remote", link.RemoteID()).Msg("locked buzz from unbound link dropped")
			return
		}
		s.engine.HandleLockedBuzz(playerID)

	case protocol.TypeHostAction:
		if !s.registry.IsController(link.RemoteID()) {
			log.Debug().Str("remote", link.RemoteID()).Msg("host action from non-controller dropped")
			return
		}
		action, err := protocol.DecodeHostAction(msg)
		if err != nil {
			log.Warn().Err(err).Str("remote", link.RemoteID()).Msg("undecodable host action dropped")
			return
		}
		s.applyHostAction(action)

	default:
		log.Debug().Str("type", string(msg.Type)).Str("remote", link.RemoteID()).Msg("unexpected envelope dropped")
	}
}

func (s *Session) handleJoin(link transport.Link, msg protocol.Message) {
	p, err := protocol.DecodeJoin(msg)
	if err != nil {
		log.Warn().Err(err).Str("remote", link.RemoteID()).Msg("undecodable join dropped")
		return
	}

	if p.Name == protocol.ControllerName {
		if !s.registry.ClaimController(link.RemoteID()) {
			// The slot is taken by a different connection; this is the one
			// rejection that answers explicitly, so the client can tell
			// "not allowed" from "not yet synced".
			if rejected, err := protocol.NewRejected("controller slot already occupied"); err == nil {
				link.Send(rejected)
			}
			log.Info().Str("remote", link.RemoteID()).Msg("second controller rejected")
			return
		}
		s.registry.Register(link)
		s.engine.SetControllerConnected(true)
		s.sendSnapshot(link)
		log.Info().Str("remote", link.RemoteID()).Msg("controller connected")
		return
	}

	s.registry.Register(link)
	s.registry.BindPlayer(link.RemoteID(), p.ID)
	if changed := s.engine.HandleJoin(p); !changed {
		// Duplicate or rejected join: the roster broadcast did not fire, but
		// a reconnecting client still needs the current snapshot.
		s.sendSnapshot(link)
	}
}

func (s *Session) handleDisconnect(link transport.Link) {
	playerID, wasController := s.registry.Unregister(link.RemoteID())
	if wasController {
		s.engine.SetControllerConnected(false)
	}
	// Disconnection is not a kick: the player stays on the roster and keeps
	// its score; only KICK_PLAYER removes it.
	log.Info().Str("remote", link.RemoteID()).Str("player_id", playerID).Bool("was_controller", wasController).Msg("link disconnected")
}

func (s *Session) applyHostAction(a protocol.HostAction) {
	switch a.Action {
	case protocol.ActionStartGame:
		s.engine.StartGame()
	case protocol.ActionSelectQuestion:
		s.engine.SelectQuestion(a.QuestionID)
	case protocol.ActionCorrect:
		s.engine.MarkCorrect(a.PlayerID)
	case protocol.ActionIncorrect:
		s.engine.MarkIncorrect(a.PlayerID)
	case protocol.ActionContinue:
		s.engine.Continue()
	case protocol.ActionSkip:
		s.engine.Skip()
	case protocol.ActionReleaseBuzzer:
		if s.engine.ReleaseBuzzer() {
			s.registry.Broadcast(protocol.NewReleaseBuzzer())
		}
	case protocol.ActionRenamePlayer:
		s.engine.RenamePlayer(a.PlayerID, a.NewName)
	case protocol.ActionOverrideScore:
		if a.NewScore == nil {
			log.Debug().Str("player_id", a.PlayerID).Msg("score override without score dropped")
			return
		}
		s.engine.OverrideScore(a.PlayerID, *a.NewScore)
	case protocol.ActionKickPlayer:
		s.kickPlayer(a.PlayerID)
	default:
		log.Debug().Str("action", string(a.Action)).Msg("unknown host action dropped")
	}
}

// kickPlayer notifies the target before removal so its client can show a
// terminal state instead of silently losing sync.
func (s *Session) kickPlayer(playerID string) {
	link := s.registry.LinkForPlayer(playerID)
	if !s.engine.KickPlayer(playerID) {
		return
	}
	if link != nil {
		if kicked, err := protocol.NewKicked("removed by host"); err == nil {
			link.Send(kicked)
		}
		s.registry.Unregister(link.RemoteID())
		s.clock.AfterFunc(kickCloseGrace, func() { link.Close() })
	}
}

// broadcastState is the replication loop: every accepted mutation serializes
// the full state and fans it out to every connected link.
func (s *Session) broadcastState(state *game.GameState) {
	msg, err := protocol.NewUpdateState(state)
	if err != nil {
		log.Error().Err(err).Msg("failed to serialize state snapshot")
		return
	}
	s.snapMu.Lock()
	s.snapshot = msg.Payload
	s.snapMu.Unlock()
	s.registry.Broadcast(msg)
}

func (s *Session) cacheSnapshot(state *game.GameState) {
	msg, err := protocol.NewUpdateState(state)
	if err != nil {
		return
	}
	s.snapMu.Lock()
	s.snapshot = msg.Payload
	s.snapMu.Unlock()
}

// sendSnapshot sends the latest cached snapshot to one link.
func (s *Session) sendSnapshot(link transport.Link) {
	s.snapMu.RLock()
	payload := s.snapshot
	s.snapMu.RUnlock()
	msg := protocol.Message{Type: protocol.TypeUpdateState, Payload: payload, SenderID: protocol.SenderHost}
	if err := link.Send(msg); err != nil {
		log.Warn().Err(err).Str("remote", link.RemoteID()).Msg("snapshot send failed")
	}
}

// Snapshot returns the latest serialized GameState, for the read-only API.
func (s *Session) Snapshot() []byte {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshot
}
