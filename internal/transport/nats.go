package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/hari-na/hari-jeopardy/internal/protocol"
)

// NATSConfig holds connection tuning for the NATS-backed transport.
type NATSConfig struct {
	URL              string
	MaxReconnects    int
	ReconnectWait    time.Duration
	ProbeTimeout     time.Duration
	HandshakeTimeout time.Duration
}

// DefaultNATSConfig returns the default NATS transport tuning.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:              nats.DefaultURL,
		MaxReconnects:    -1,
		ReconnectWait:    2 * time.Second,
		ProbeTimeout:     250 * time.Millisecond,
		HandshakeTimeout: 5 * time.Second,
	}
}

// Wire frames exchanged on NATS subjects. Endpoint subjects carry probe and
// hello frames; per-link inbox subjects carry data and close frames.
type natsFrame struct {
	Kind    string          `json:"kind"`
	From    string          `json:"from,omitempty"`
	Inbox   string          `json:"inbox,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	frameProbe = "probe"
	frameAlive = "alive"
	frameHello = "hello"
	frameData  = "data"
	frameClose = "close"
)

func endpointSubject(identity string) string { return "peer." + identity }

// NATSNetwork maps endpoint identities to NATS subjects: opening an identity
// subscribes to its subject, and links are formed by a hello request/reply
// that exchanges per-link inbox subjects. A probe request detects a live
// holder of an identity before claiming it.
type NATSNetwork struct {
	cfg NATSConfig
}

// NewNATSNetwork creates a NATS-backed Network.
func NewNATSNetwork(cfg NATSConfig) *NATSNetwork {
	return &NATSNetwork{cfg: cfg}
}

func (n *NATSNetwork) Open(_ context.Context, identity string) (Endpoint, error) {
	if identity == "" {
		identity = uuid.NewString()
	}

	opts := []nats.Option{
		nats.MaxReconnects(n.cfg.MaxReconnects),
		nats.ReconnectWait(n.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(n.cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	subject := endpointSubject(identity)
	probe, _ := json.Marshal(natsFrame{Kind: frameProbe})
	if resp, err := nc.Request(subject, probe, n.cfg.ProbeTimeout); err == nil && resp != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: %s answered probe", ErrIdentityInUse, identity)
	} else if err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, nats.ErrNoResponders) {
		nc.Close()
		return nil, fmt.Errorf("probe identity %s: %w", identity, err)
	}

	ep := &natsEndpoint{
		id:     identity,
		cfg:    n.cfg,
		nc:     nc,
		accept: make(chan Link, 16),
	}
	sub, err := nc.Subscribe(subject, ep.handleEndpointFrame)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe endpoint subject: %w", err)
	}
	ep.sub = sub

	log.Info().Str("endpoint", identity).Str("subject", subject).Msg("NATS endpoint open")
	return ep, nil
}

type natsEndpoint struct {
	id     string
	cfg    NATSConfig
	nc     *nats.Conn
	sub    *nats.Subscription
	accept chan Link
}

func (ep *natsEndpoint) ID() string { return ep.id }

func (ep *natsEndpoint) Accept() <-chan Link { return ep.accept }

func (ep *natsEndpoint) handleEndpointFrame(m *nats.Msg) {
	var f natsFrame
	if err := json.Unmarshal(m.Data, &f); err != nil {
		log.Warn().Err(err).Msg("dropping undecodable endpoint frame")
		return
	}
	switch f.Kind {
	case frameProbe:
		alive, _ := json.Marshal(natsFrame{Kind: frameAlive, From: ep.id})
		m.Respond(alive)
	case frameHello:
		if f.From == "" || f.Inbox == "" {
			return
		}
		link, err := newNATSLink(ep.nc, f.From, f.Inbox)
		if err != nil {
			log.Error().Err(err).Str("remote", f.From).Msg("failed to set up inbound link")
			return
		}
		reply, _ := json.Marshal(natsFrame{Kind: frameHello, From: ep.id, Inbox: link.localInbox})
		if err := m.Respond(reply); err != nil {
			log.Error().Err(err).Str("remote", f.From).Msg("failed to answer hello")
			link.Close()
			return
		}
		select {
		case ep.accept <- link:
			log.Info().Str("endpoint", ep.id).Str("remote", f.From).Msg("peer link accepted")
		default:
			log.Warn().Str("endpoint", ep.id).Msg("accept queue full, dropping peer link")
			link.Close()
		}
	}
}

func (ep *natsEndpoint) Dial(ctx context.Context, remoteID string) (Link, error) {
	link, err := newNATSLink(ep.nc, remoteID, "")
	if err != nil {
		return nil, err
	}

	hello, _ := json.Marshal(natsFrame{Kind: frameHello, From: ep.id, Inbox: link.localInbox})
	dialCtx, cancel := context.WithTimeout(ctx, ep.cfg.HandshakeTimeout)
	defer cancel()
	resp, err := ep.nc.RequestWithContext(dialCtx, endpointSubject(remoteID), hello)
	if err != nil {
		link.Close()
		return nil, fmt.Errorf("dial %s: %w", remoteID, err)
	}

	var f natsFrame
	if err := json.Unmarshal(resp.Data, &f); err != nil || f.Kind != frameHello || f.Inbox == "" {
		link.Close()
		return nil, fmt.Errorf("dial %s: bad hello reply", remoteID)
	}
	link.setRemoteInbox(f.Inbox)
	return link, nil
}

func (ep *natsEndpoint) Close() error {
	if ep.sub != nil {
		ep.sub.Unsubscribe()
	}
	ep.nc.Close()
	return nil
}

// natsLink is one peer link carried over a pair of inbox subjects. Inbound
// frames are pumped through readLoop, which owns the messages channel and
// closes it on teardown so consumers ranging over Messages always terminate.
type natsLink struct {
	nc         *nats.Conn
	remoteID   string
	localInbox string
	sub        *nats.Subscription

	mu          sync.Mutex
	remoteInbox string

	incoming chan []byte
	messages chan protocol.Message
	done     chan struct{}
	once     sync.Once
}

func newNATSLink(nc *nats.Conn, remoteID, remoteInbox string) (*natsLink, error) {
	l := &natsLink{
		nc:          nc,
		remoteID:    remoteID,
		localInbox:  "peerlink." + uuid.NewString(),
		remoteInbox: remoteInbox,
		incoming:    make(chan []byte, 256),
		messages:    make(chan protocol.Message, 256),
		done:        make(chan struct{}),
	}
	sub, err := nc.Subscribe(l.localInbox, l.handleLinkFrame)
	if err != nil {
		return nil, fmt.Errorf("subscribe link inbox: %w", err)
	}
	l.sub = sub
	go l.readLoop()
	return l, nil
}

func (l *natsLink) setRemoteInbox(inbox string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remoteInbox = inbox
}

// handleLinkFrame runs on the NATS delivery goroutine; it only hands the raw
// frame to readLoop so channel ownership stays in one place.
func (l *natsLink) handleLinkFrame(m *nats.Msg) {
	select {
	case l.incoming <- m.Data:
	case <-l.done:
	default:
		log.Warn().Str("remote", l.remoteID).Msg("inbound frame queue full, dropping frame")
	}
}

func (l *natsLink) readLoop() {
	defer close(l.messages)
	for {
		select {
		case data := <-l.incoming:
			var f natsFrame
			if err := json.Unmarshal(data, &f); err != nil {
				log.Warn().Err(err).Str("remote", l.remoteID).Msg("dropping undecodable link frame")
				continue
			}
			switch f.Kind {
			case frameData:
				var msg protocol.Message
				if err := json.Unmarshal(f.Payload, &msg); err != nil {
					log.Warn().Err(err).Str("remote", l.remoteID).Msg("dropping undecodable envelope")
					continue
				}
				select {
				case l.messages <- msg:
				case <-l.done:
					return
				}
			case frameClose:
				l.teardown(false)
				return
			}
		case <-l.done:
			return
		}
	}
}

func (l *natsLink) RemoteID() string { return l.remoteID }

func (l *natsLink) Messages() <-chan protocol.Message { return l.messages }

func (l *natsLink) Done() <-chan struct{} { return l.done }

func (l *natsLink) Send(msg protocol.Message) error {
	select {
	case <-l.done:
		return fmt.Errorf("send to %s: link closed", l.remoteID)
	default:
	}
	l.mu.Lock()
	inbox := l.remoteInbox
	l.mu.Unlock()
	if inbox == "" {
		return fmt.Errorf("send to %s: link not established", l.remoteID)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	frame, err := json.Marshal(natsFrame{Kind: frameData, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal link frame: %w", err)
	}
	if err := l.nc.Publish(inbox, frame); err != nil {
		return fmt.Errorf("publish to %s: %w", l.remoteID, err)
	}
	return nil
}

func (l *natsLink) Close() error {
	l.teardown(true)
	return nil
}

func (l *natsLink) teardown(notifyPeer bool) {
	l.once.Do(func() {
		if notifyPeer {
			l.mu.Lock()
			inbox := l.remoteInbox
			l.mu.Unlock()
			if inbox != "" && l.nc != nil {
				frame, _ := json.Marshal(natsFrame{Kind: frameClose})
				l.nc.Publish(inbox, frame)
			}
		}
		if l.sub != nil {
			l.sub.Unsubscribe()
		}
		close(l.done)
	})
}
