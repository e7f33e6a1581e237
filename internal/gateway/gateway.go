// Package gateway is the websocket transport (part of C5): it owns the
// per-connection read/write pumps and satisfies the Sender interfaces that
// internal/rpcbridge and internal/broadcaster depend on. Grounded on the
// hub/Client/WritePump/ReadPump shape used across the example pack's
// websocket services (register/unregister channels, per-client buffered
// Send channel, SetReadLimit, IsUnexpectedCloseError), adapted from a
// lobby-room hub to this service's per-session direct addressing (no rooms:
// every send targets one randomSessionId, resolved through
// internal/session).
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/apperrors"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/outbox"
	"github.com/wmakeouthill/LoL-Matchmaking-Fazenda-sub007/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// InboundFrame is the generic envelope every inbound websocket message is
// decoded into before dispatch, matching spec §4.4's type-discriminated
// message shape.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Dispatcher routes one decoded inbound frame for a given connection,
// implemented by internal/router. Kept as an interface here so gateway has
// no import-time dependency on router's full handler table.
type Dispatcher interface {
	Dispatch(ctx context.Context, randomSessionID string, frame InboundFrame)
}

// conn is the per-connection state. ServeHTTP hands it to
// session.Registry.SetHandle right after the upgrade, before identify_player
// has bound the session, so LiveSession.Handle does not end up holding it.
type conn struct {
	ws         *websocket.Conn
	send       chan []byte
	closed     chan struct{}
	once       sync.Once
	remoteAddr string
	userAgent  string
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

// Gateway upgrades incoming HTTP requests to websocket connections and
// bridges them to the session registry, outbox, and router. It keeps its
// own randomSessionId -> conn map rather than relying solely on
// session.Registry's Handle, because a connection exists (and must be
// addressable for the confirm_identity_critical handshake) before
// identify_player has bound it into the session registry.
type Gateway struct {
	sessions   *session.Registry
	outbox     *outbox.Outbox
	dispatcher Dispatcher
	log        *logrus.Logger
	upgrader   websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

// New constructs a Gateway. CheckOrigin is permissive, matching the client
// being a local Electron overlay rather than a browser page under a fixed
// origin.
func New(sessions *session.Registry, ob *outbox.Outbox, log *logrus.Logger) *Gateway {
	return &Gateway{
		sessions: sessions,
		outbox:   ob,
		log:      log,
		conns:    make(map[string]*conn),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetDispatcher wires the router in after construction, breaking the
// gateway/router construction cycle (the router itself depends on the
// gateway as its Sender). Must be called before ServeHTTP starts accepting
// connections.
func (g *Gateway) SetDispatcher(d Dispatcher) {
	g.dispatcher = d
}

// ServeHTTP upgrades the connection, registers an ephemeral randomSessionId,
// and starts its read/write pumps. Identification (binding to a
// summonerName) happens later via the router's identify_player handler, not
// here — a connection starts anonymous, per spec §4.1.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	randomSessionID := uuid.NewString()
	c := &conn{
		ws:         ws,
		send:       make(chan []byte, sendBuffer),
		closed:     make(chan struct{}),
		remoteAddr: r.RemoteAddr,
		userAgent:  r.Header.Get("User-Agent"),
	}
	g.attach(randomSessionID, c)
	g.sessions.SetHandle(randomSessionID, c)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go g.writePump(c)
	g.readPump(r.Context(), randomSessionID, c)
}

func (g *Gateway) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (g *Gateway) readPump(ctx context.Context, randomSessionID string, c *conn) {
	defer func() {
		c.close()
		g.detach(randomSessionID)
		_ = g.sessions.RemoveSession(context.Background(), randomSessionID)
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				g.log.WithError(err).WithField("session", randomSessionID).Warn("websocket read error")
			}
			return
		}

		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			g.log.WithError(err).WithField("session", randomSessionID).Warn("malformed inbound frame")
			continue
		}
		g.dispatcher.Dispatch(ctx, randomSessionID, frame)
	}
}

func (g *Gateway) attach(randomSessionID string, c *conn) {
	g.mu.Lock()
	g.conns[randomSessionID] = c
	g.mu.Unlock()
}

func (g *Gateway) detach(randomSessionID string) {
	g.mu.Lock()
	delete(g.conns, randomSessionID)
	g.mu.Unlock()
}

// ConnInfo returns the remote address and user-agent captured at upgrade
// time for randomSessionID, used by the router's identify_player handler to
// populate session.RegisterSession's bookkeeping fields.
func (g *Gateway) ConnInfo(randomSessionID string) (remoteAddr, userAgent string, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.conns[randomSessionID]
	if !ok {
		return "", "", false
	}
	return c.remoteAddr, c.userAgent, true
}

// DrainPending flushes customSessionID's outbox to the now-identified
// randomSessionID connection, in FIFO order, clearing the queue once every
// entry has been attempted. Called by the router right after a successful
// identify_player, per spec §4.2's reconnect-delivery contract.
func (g *Gateway) DrainPending(ctx context.Context, customSessionID, randomSessionID string) error {
	events, err := g.outbox.GetPendingEvents(ctx, customSessionID)
	if err != nil {
		return err
	}
	for _, ev := range events {
		frame, err := json.Marshal(struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}{Type: ev.Type, Data: ev.Payload})
		if err != nil {
			continue
		}
		if err := g.SendToSession(randomSessionID, frame); err != nil {
			g.log.WithError(err).WithField("session", randomSessionID).Warn("failed to deliver queued event")
		}
	}
	return g.outbox.ClearPendingEvents(ctx, customSessionID)
}

// SendToSession implements both rpcbridge.Sender and broadcaster.Sender: it
// resolves randomSessionID's live connection and enqueues frame on its
// write pump, non-blocking so one slow client cannot stall the caller.
func (g *Gateway) SendToSession(randomSessionID string, frame []byte) error {
	g.mu.RLock()
	c, ok := g.conns[randomSessionID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no live connection for session %s", apperrors.ErrTransportFailure, randomSessionID)
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.closed:
		return fmt.Errorf("%w: session %s closed", apperrors.ErrTransportFailure, randomSessionID)
	default:
		return fmt.Errorf("%w: send buffer full for session %s", apperrors.ErrTransportFailure, randomSessionID)
	}
}
