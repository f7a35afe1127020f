package host

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/hari-na/hari-jeopardy/internal/protocol"
	"github.com/hari-na/hari-jeopardy/internal/transport"
)

// Registry tracks the live links of a session keyed by connection identity,
// the link-to-player bindings established by PLAYER_JOIN, and the single
// controller slot.
type Registry struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	controllerID string
}

type entry struct {
	link     transport.Link
	playerID string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a link. Registering the same remote id again replaces the
// old entry.
func (r *Registry) Register(link transport.Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[link.RemoteID()] = &entry{link: link}
	log.Debug().Str("remote", link.RemoteID()).Int("connections", len(r.entries)).Msg("link registered")
}

// BindPlayer associates a registered link with a player id.
func (r *Registry) BindPlayer(remoteID, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[remoteID]; ok {
		e.playerID = playerID
	}
}

// PlayerID returns the player id bound to a link, or empty.
func (r *Registry) PlayerID(remoteID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[remoteID]; ok {
		return e.playerID
	}
	return ""
}

// Unregister removes a link, returning the player id it was bound to and
// whether it held the controller slot (which is then freed). The player
// itself stays on the roster; only an explicit kick removes it.
func (r *Registry) Unregister(remoteID string) (playerID string, wasController bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[remoteID]; ok {
		playerID = e.playerID
		delete(r.entries, remoteID)
	}
	if r.controllerID == remoteID && remoteID != "" {
		r.controllerID = ""
		wasController = true
	}
	log.Debug().Str("remote", remoteID).Int("connections", len(r.entries)).Msg("link unregistered")
	return playerID, wasController
}

// FindByRemoteID returns the link with the given remote id, or nil.
func (r *Registry) FindByRemoteID(remoteID string) transport.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[remoteID]; ok {
		return e.link
	}
	return nil
}

// LinkForPlayer returns the link bound to a player id, or nil.
func (r *Registry) LinkForPlayer(playerID string) transport.Link {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.playerID == playerID {
			return e.link
		}
	}
	return nil
}

// ClaimController reserves the controller slot for a remote id. It succeeds
// if the slot is free or already held by the same remote id.
func (r *Registry) ClaimController(remoteID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.controllerID != "" && r.controllerID != remoteID {
		return false
	}
	r.controllerID = remoteID
	return true
}

// IsController reports whether a remote id holds the controller slot.
func (r *Registry) IsController(remoteID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controllerID != "" && r.controllerID == remoteID
}

// ControllerConnected reports whether the controller slot is occupied.
func (r *Registry) ControllerConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controllerID != ""
}

// Count returns the number of live links.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Broadcast sends an envelope to every open link, silently skipping closed
// ones. Send errors are logged and do not stop the fan-out.
func (r *Registry) Broadcast(msg protocol.Message) {
	r.mu.RLock()
	links := make([]transport.Link, 0, len(r.entries))
	for _, e := range r.entries {
		links = append(links, e.link)
	}
	r.mu.RUnlock()

	for _, link := range links {
		select {
		case <-link.Done():
			continue
		default:
		}
		if err := link.Send(msg); err != nil {
			log.Warn().Err(err).Str("remote", link.RemoteID()).Msg("broadcast send failed")
		}
	}
}

// SendTo sends an envelope to one remote id, if registered and open.
func (r *Registry) SendTo(remoteID string, msg protocol.Message) {
	link := r.FindByRemoteID(remoteID)
	if link == nil {
		return
	}
	if err := link.Send(msg); err != nil {
		log.Warn().Err(err).Str("remote", remoteID).Msg("direct send failed")
	}
}
