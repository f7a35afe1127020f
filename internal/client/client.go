// Package client implements the player/controller side of a session: the
// bounded-retry connection discipline and the read-only replica that is
// replaced wholesale on every snapshot from the host.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/hari-na/hari-jeopardy/internal/game"
	"github.com/hari-na/hari-jeopardy/internal/protocol"
	"github.com/hari-na/hari-jeopardy/internal/transport"
)

// ErrorClass is the coarse classification of a terminal connection failure.
type ErrorClass string

const (
	ClassUnavailable ErrorClass = "unavailable"
	ClassNetwork     ErrorClass = "network"
	ClassTimeout     ErrorClass = "timeout"
	ClassUnknown     ErrorClass = "unknown"
)

// ErrRejected means the host explicitly refused the join (occupied controller
// slot). It is terminal immediately; retrying would be rejected again.
var ErrRejected = errors.New("join rejected by host")

// TerminalError is returned after the final failed connection attempt.
type TerminalError struct {
	Class    ErrorClass
	Attempts int
	Err      error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("connection failed (%s) after %d attempts: %v", e.Class, e.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// Config bounds the connection-attempt loop. PlayerID, when set, rejoins the
// roster under an existing identity (keeping its score) instead of minting a
// fresh one.
type Config struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryDelay     time.Duration
	PlayerID       string
}

// DefaultConfig returns the standard retry discipline: three attempts, ten
// seconds each, two seconds between them.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		AttemptTimeout: 10 * time.Second,
		RetryDelay:     2 * time.Second,
	}
}

// Handlers are the client's callbacks. OnState fires on every replica
// replacement; OnNotice fires for KICKED, REJECTED and RELEASE_BUZZER
// envelopes. Both may be nil.
type Handlers struct {
	OnState  func(*game.GameState)
	OnNotice func(protocol.Message)
}

// Client is a connected player or controller.
type Client struct {
	self     game.Player
	endpoint transport.Endpoint
	link     transport.Link
	clock    clockwork.Clock
	handlers Handlers

	mu    sync.RWMutex
	state *game.GameState

	done      chan struct{}
	closeOnce sync.Once
}

// Connect joins a room, retrying per cfg. Each attempt opens a fresh
// anonymous endpoint, dials the host's deterministic identity, sends
// PLAYER_JOIN, and waits for the handshake to complete (a snapshot naming us,
// or any snapshot for a controller). Exhausting the attempts yields a
// TerminalError; an explicit REJECTED short-circuits the loop.
func Connect(ctx context.Context, net transport.Network, clock clockwork.Clock, cfg Config, roomCode, name string, handlers Handlers) (*Client, error) {
	if cfg.MaxAttempts <= 0 {
		defaults := DefaultConfig()
		defaults.PlayerID = cfg.PlayerID
		cfg = defaults
	}
	id := cfg.PlayerID
	if id == "" {
		id = uuid.NewString()
	}
	self := game.Player{ID: id, Name: name}

	var lastErr error
	lastClass := ClassUnknown
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		log.Info().Str("room", roomCode).Int("attempt", attempt).Int("max_attempts", cfg.MaxAttempts).Msg("connecting to host")

		c, class, err := tryConnect(ctx, net, clock, cfg, roomCode, self, handlers)
		if err == nil {
			log.Info().Str("room", roomCode).Str("player_id", self.ID).Msg("connected")
			return c, nil
		}
		if errors.Is(err, ErrRejected) {
			return nil, err
		}
		lastErr, lastClass = err, class
		log.Warn().Err(err).Str("class", string(class)).Int("attempt", attempt).Msg("connection attempt failed")

		if attempt < cfg.MaxAttempts {
			select {
			case <-clock.After(cfg.RetryDelay):
			case <-ctx.Done():
				return nil, &TerminalError{Class: lastClass, Attempts: attempt, Err: ctx.Err()}
			}
		}
	}
	return nil, &TerminalError{Class: lastClass, Attempts: cfg.MaxAttempts, Err: lastErr}
}

func tryConnect(ctx context.Context, net transport.Network, clock clockwork.Clock, cfg Config, roomCode string, self game.Player, handlers Handlers) (*Client, ErrorClass, error) {
	endpoint, err := net.Open(ctx, "")
	if err != nil {
		return nil, ClassNetwork, fmt.Errorf("open endpoint: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, cfg.AttemptTimeout)
	defer cancel()

	link, err := endpoint.Dial(attemptCtx, transport.HostIdentity(roomCode))
	if err != nil {
		endpoint.Close()
		if attemptCtx.Err() != nil {
			return nil, ClassTimeout, fmt.Errorf("dial timed out: %w", err)
		}
		return nil, ClassUnavailable, fmt.Errorf("host unreachable: %w", err)
	}

	join, err := protocol.NewPlayerJoin(self)
	if err != nil {
		link.Close()
		endpoint.Close()
		return nil, ClassUnknown, err
	}
	if err := link.Send(join); err != nil {
		link.Close()
		endpoint.Close()
		return nil, ClassNetwork, fmt.Errorf("send join: %w", err)
	}

	// The handshake completes on the first snapshot that includes us (any
	// snapshot for a controller, which is never on the roster).
	for {
		select {
		case msg, ok := <-link.Messages():
			if !ok {
				link.Close()
				endpoint.Close()
				return nil, ClassNetwork, errors.New("link closed before join completed")
			}
			switch msg.Type {
			case protocol.TypeUpdateState:
				state, err := protocol.DecodeState(msg)
				if err != nil {
					log.Warn().Err(err).Msg("undecodable snapshot during handshake")
					continue
				}
				joined := self.Name == protocol.ControllerName || state.FindPlayer(self.ID) != nil
				if !joined {
					continue
				}
				if p := state.FindPlayer(self.ID); p != nil {
					self = *p
				}
				c := &Client{
					self:     self,
					endpoint: endpoint,
					link:     link,
					clock:    clock,
					handlers: handlers,
					state:    state,
					done:     make(chan struct{}),
				}
				go c.readLoop()
				return c, "", nil
			case protocol.TypeRejected:
				reason, _ := protocol.DecodeReason(msg)
				link.Close()
				endpoint.Close()
				return nil, ClassUnknown, fmt.Errorf("%w: %s", ErrRejected, reason)
			}

		case <-link.Done():
			endpoint.Close()
			return nil, ClassNetwork, errors.New("link dropped before join completed")

		case <-attemptCtx.Done():
			link.Close()
			endpoint.Close()
			if ctx.Err() != nil {
				return nil, ClassUnknown, ctx.Err()
			}
			return nil, ClassTimeout, errors.New("join handshake timed out")
		}
	}
}

func (c *Client) readLoop() {
	defer c.teardown()
	for msg := range c.link.Messages() {
		switch msg.Type {
		case protocol.TypeUpdateState:
			state, err := protocol.DecodeState(msg)
			if err != nil {
				log.Warn().Err(err).Msg("undecodable snapshot dropped")
				continue
			}
			c.mu.Lock()
			c.state = state
			if p := state.FindPlayer(c.self.ID); p != nil {
				c.self = *p
			}
			c.mu.Unlock()
			if c.handlers.OnState != nil {
				c.handlers.OnState(state)
			}
		case protocol.TypeKicked:
			if c.handlers.OnNotice != nil {
				c.handlers.OnNotice(msg)
			}
			return
		case protocol.TypeReleaseBuzzer, protocol.TypeRejected:
			if c.handlers.OnNotice != nil {
				c.handlers.OnNotice(msg)
			}
		}
	}
}

// Self returns this client's player as last seen in a snapshot.
func (c *Client) Self() game.Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// State returns the current replica. Callers must treat it as read-only; it
// is replaced, never mutated, on each snapshot.
func (c *Client) State() *game.GameState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Buzz sends a buzz, or a locked-attempt signal if the replica shows either
// the global lock or our personal lock still active.
func (c *Client) Buzz() error {
	c.mu.RLock()
	state, self := c.state, c.self
	c.mu.RUnlock()

	now := c.clock.Now().UnixMilli()
	var locked bool
	if state != nil {
		locked = state.BuzzerLockUntil != 0 && now < state.BuzzerLockUntil
		if !locked {
			if p := state.FindPlayer(self.ID); p != nil && p.BuzzerLockUntil != 0 && now < p.BuzzerLockUntil {
				locked = true
			}
		}
	}
	if locked {
		return c.link.Send(protocol.NewBuzzLockedAttempt(self.ID))
	}
	return c.link.Send(protocol.NewBuzz(self.ID))
}

// SendHostAction issues a privileged action; the host honors it only from
// the controller connection.
func (c *Client) SendHostAction(action protocol.HostAction) error {
	msg, err := protocol.NewHostAction(c.self.ID, action)
	if err != nil {
		return err
	}
	return c.link.Send(msg)
}

// Done is closed when the connection ends (kick, host gone, or Close).
func (c *Client) Done() <-chan struct{} { return c.done }

// Close tears down the link and endpoint.
func (c *Client) Close() error {
	c.teardown()
	return nil
}

func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.link.Close()
		c.endpoint.Close()
		close(c.done)
	})
}
