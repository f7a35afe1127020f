// Package transport abstracts the peer links a trivia session runs over:
// become an addressable endpoint under an identifier, connect to a named
// endpoint, exchange protocol messages, detect close. Two implementations
// exist, one over websockets and one over NATS subjects.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/hari-na/hari-jeopardy/internal/protocol"
)

// ErrIdentityInUse is returned by Open when the requested identity collides
// with a live endpoint. The transport never retries; the reconnection manager
// owns retry policy.
var ErrIdentityInUse = errors.New("endpoint identity in use")

// SettleDelay is the pause required between destroying an endpoint and
// reopening the same identity, letting the prior registration release.
const SettleDelay = 500 * time.Millisecond

const hostIdentityPrefix = "trivia-host-"

// HostIdentity derives the host's deterministic endpoint identity from a
// room code, so clients can find the host knowing only the code.
func HostIdentity(roomCode string) string {
	return hostIdentityPrefix + roomCode
}

// Link is one reliable, ordered peer connection.
type Link interface {
	// RemoteID is the identity of the peer on the far side.
	RemoteID() string
	// Send writes one envelope. It fails once the link is closed.
	Send(msg protocol.Message) error
	// Messages yields inbound envelopes until the link closes.
	Messages() <-chan protocol.Message
	// Done is closed when the link is torn down, locally or remotely.
	Done() <-chan struct{}
	Close() error
}

// Endpoint is an addressable party on the transport.
type Endpoint interface {
	ID() string
	// Accept yields inbound links. Client-only endpoints never yield.
	Accept() <-chan Link
	// Dial connects to a named remote endpoint.
	Dial(ctx context.Context, remoteID string) (Link, error)
	Close() error
}

// Network opens endpoints. An empty identity requests a random one.
type Network interface {
	Open(ctx context.Context, identity string) (Endpoint, error)
}
