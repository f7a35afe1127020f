package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/hari-na/hari-jeopardy/internal/protocol"
)

// WebsocketConfig holds tuning for websocket peer links.
type WebsocketConfig struct {
	// ListenAddr is where a named (host) endpoint binds.
	ListenAddr string
	// BaseURL is where client endpoints dial, e.g. "ws://localhost:8080".
	BaseURL        string
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultWebsocketConfig returns the default websocket tuning.
func DefaultWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		ListenAddr:     ":8080",
		BaseURL:        "ws://localhost:8080",
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// WebsocketNetwork opens websocket endpoints. A named endpoint binds an HTTP
// server and accepts peer upgrades; an anonymous endpoint only dials.
type WebsocketNetwork struct {
	cfg WebsocketConfig
}

// NewWebsocketNetwork creates a websocket-backed Network.
func NewWebsocketNetwork(cfg WebsocketConfig) *WebsocketNetwork {
	return &WebsocketNetwork{cfg: cfg}
}

func (n *WebsocketNetwork) Open(_ context.Context, identity string) (Endpoint, error) {
	if identity == "" {
		// Anonymous endpoints never listen; they only dial out.
		return &wsEndpoint{
			id:     uuid.NewString(),
			cfg:    n.cfg,
			accept: make(chan Link),
		}, nil
	}

	listener, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("%w: %v", ErrIdentityInUse, err)
		}
		return nil, fmt.Errorf("bind endpoint %s: %w", identity, err)
	}

	ep := &wsEndpoint{
		id:       identity,
		cfg:      n.cfg,
		accept:   make(chan Link, 16),
		listener: listener,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/peer", ep.handlePeer)
	ep.server = &http.Server{Handler: mux}
	go func() {
		if err := ep.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("endpoint", identity).Msg("websocket endpoint server stopped")
		}
	}()

	log.Info().Str("endpoint", identity).Str("addr", listener.Addr().String()).Msg("websocket endpoint open")
	return ep, nil
}

type wsEndpoint struct {
	id       string
	cfg      WebsocketConfig
	accept   chan Link
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
}

func (ep *wsEndpoint) ID() string { return ep.id }

func (ep *wsEndpoint) Accept() <-chan Link { return ep.accept }

// Addr reports the bound address of a named endpoint, for tests and for
// logging the dialable URL.
func (ep *wsEndpoint) Addr() string {
	if ep.listener == nil {
		return ""
	}
	return ep.listener.Addr().String()
}

func (ep *wsEndpoint) handlePeer(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("endpoint") != ep.id {
		http.Error(w, "no such endpoint", http.StatusNotFound)
		return
	}
	from := r.URL.Query().Get("from")
	if from == "" {
		http.Error(w, "from identity is required", http.StatusBadRequest)
		return
	}

	conn, err := ep.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade peer connection")
		return
	}

	link := newWSLink(conn, from, ep.cfg)
	select {
	case ep.accept <- link:
		log.Info().Str("endpoint", ep.id).Str("remote", from).Msg("peer link accepted")
	default:
		log.Warn().Str("endpoint", ep.id).Str("remote", from).Msg("accept queue full, dropping peer link")
		link.Close()
	}
}

func (ep *wsEndpoint) Dial(ctx context.Context, remoteID string) (Link, error) {
	u := fmt.Sprintf("%s/peer?endpoint=%s&from=%s",
		ep.cfg.BaseURL, url.QueryEscape(remoteID), url.QueryEscape(ep.id))

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dial %s: %w", remoteID, err)
	}
	return newWSLink(conn, remoteID, ep.cfg), nil
}

func (ep *wsEndpoint) Close() error {
	if ep.server != nil {
		return ep.server.Close()
	}
	return nil
}

// wsLink is one websocket peer connection with the usual read/write pumps.
type wsLink struct {
	conn     *websocket.Conn
	remoteID string
	cfg      WebsocketConfig

	send     chan []byte
	messages chan protocol.Message
	done     chan struct{}
	once     sync.Once
}

func newWSLink(conn *websocket.Conn, remoteID string, cfg WebsocketConfig) *wsLink {
	l := &wsLink{
		conn:     conn,
		remoteID: remoteID,
		cfg:      cfg,
		send:     make(chan []byte, cfg.SendBuffer),
		messages: make(chan protocol.Message, cfg.SendBuffer),
		done:     make(chan struct{}),
	}
	go l.writePump()
	go l.readPump()
	return l
}

func (l *wsLink) RemoteID() string { return l.remoteID }

func (l *wsLink) Messages() <-chan protocol.Message { return l.messages }

func (l *wsLink) Done() <-chan struct{} { return l.done }

// Send enqueues without blocking. A peer that has stopped reading fills its
// buffer and is closed rather than allowed to stall the sender's loop.
func (l *wsLink) Send(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	select {
	case <-l.done:
		return fmt.Errorf("send to %s: link closed", l.remoteID)
	case l.send <- data:
		return nil
	default:
		log.Warn().Str("remote", l.remoteID).Msg("send buffer full, closing slow peer link")
		l.teardown()
		return fmt.Errorf("send to %s: send buffer full", l.remoteID)
	}
}

func (l *wsLink) Close() error {
	l.teardown()
	return nil
}

func (l *wsLink) teardown() {
	l.once.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

func (l *wsLink) writePump() {
	ticker := time.NewTicker(l.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		l.teardown()
	}()

	for {
		select {
		case <-l.done:
			l.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("remote", l.remoteID).Msg("failed to write to peer link")
				return
			}
		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (l *wsLink) readPump() {
	defer func() {
		l.teardown()
		close(l.messages)
	}()

	l.conn.SetReadLimit(l.cfg.MaxMessageSize)
	l.conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		return nil
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("remote", l.remoteID).Msg("unexpected peer link close")
			}
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("remote", l.remoteID).Msg("dropping undecodable envelope")
			continue
		}
		select {
		case l.messages <- msg:
		case <-l.done:
			return
		}
		l.conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
	}
}
