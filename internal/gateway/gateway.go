// Package gateway adapts websocket connections to the relay: it keeps the registries in step
// with the connection lifecycle and dispatches inbound frames.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"chat-relay/internal/payload"
	"chat-relay/internal/registry"
	"chat-relay/internal/relay"
	"chat-relay/internal/storage"
	"chat-relay/internal/zapadapter"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

// Inbound and outbound event names
const (
	EventSubscribe = "subscribe"
	EventMessage   = relay.EventMessage
	EventError     = "error"
)

var (
	ErrInvalidFrame = errors.New("frame must be a JSON object with an `event` string")
	ErrInvalidRoom  = errors.New("room id must be an integer")
	ErrUnknownEvent = errors.New("unknown event")
	ErrClosed       = errors.New("gateway is closed")
)

// Relay posts raw message payloads
type Relay interface {
	Post(ctx context.Context, raw []byte) (storage.Message, error)
}

// Gateway serves the websocket endpoint
type Gateway struct {
	logger   *zap.SugaredLogger
	cfg      Config
	conns    *registry.Connections
	rooms    *registry.Rooms
	relay    Relay
	upgrader websocket.Upgrader
	parsers  fastjson.ParserPool

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[string]*client
	closing bool
	wg      sync.WaitGroup
}

func New(logger *zap.SugaredLogger, cfg Config, conns *registry.Connections, rooms *registry.Rooms, r Relay) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())

	return &Gateway{
		logger: logger,
		cfg:    cfg.sanitize(),
		conns:  conns,
		rooms:  rooms,
		relay:  r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*client),
	}
}

// ServeHTTP upgrades the request and starts the connection pumps
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := zapadapter.With(r.Context(), g.logger)

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		logger.Debugf("Websocket upgrade failed: %v", err)
		return
	}

	id := xid.New().String()
	c := newClient(id, conn, g.logger, g.cfg.SendBuffer)

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrClosed.Error()))
		c.closeConn()
		return
	}
	g.clients[id] = c
	g.wg.Add(2)
	g.mu.Unlock()

	ctx := zapadapter.NewContextWithConnID(g.ctx, id)
	if rid, ok := zapadapter.IDFromContext(r.Context()); ok {
		ctx = zapadapter.NewContextWithID(ctx, rid)
	}

	g.Connect(ctx, id, c)

	go func() {
		defer g.wg.Done()
		c.writePump()
	}()
	go func() {
		defer g.wg.Done()
		g.readPump(ctx, c)
	}()
}

func (g *Gateway) readPump(ctx context.Context, c *client) {
	defer func() {
		g.Disconnect(ctx, c.id)
		c.close()

		g.mu.Lock()
		delete(g.clients, c.id)
		g.mu.Unlock()
	}()

	c.setupRead(g.cfg.MaxMessageSize)

	for {
		_, f, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		g.Dispatch(ctx, c.id, f)
	}
}

// Connect records a new live connection
func (g *Gateway) Connect(ctx context.Context, connID string, h registry.Handle) *registry.Connection {
	conn := g.conns.Register(connID, h)
	zapadapter.With(ctx, g.logger).Infof("Connection opened (%d connected)", g.conns.Len())
	return conn
}

// Subscribe adds a live connection to a room. Unknown connections and duplicate
// subscriptions are logged and returned without changing anything.
func (g *Gateway) Subscribe(ctx context.Context, connID string, roomID int64) error {
	logger := zapadapter.With(ctx, g.logger)

	if _, err := g.conns.Lookup(connID); err != nil {
		logger.Warnf("Subscribe to room %d from unknown connection %s", roomID, connID)
		return err
	}

	if err := g.rooms.AddMember(roomID, connID); err != nil {
		logger.Debugf("Subscribe to room %d: %v", roomID, err)
		return err
	}

	return nil
}

// Message posts raw through the relay and reports a failure to the sender only
func (g *Gateway) Message(ctx context.Context, connID string, raw []byte) (storage.Message, error) {
	m, err := g.relay.Post(ctx, raw)
	if err != nil {
		if !relay.IsValidation(err) {
			zapadapter.With(ctx, g.logger).Errorf("Posting message: %v", err)
		}
		g.reject(ctx, connID, err)
		return storage.Message{}, err
	}
	return m, nil
}

// Disconnect removes the connection from every room, then drops its record
func (g *Gateway) Disconnect(ctx context.Context, connID string) {
	g.rooms.RemoveMember(connID)
	g.conns.Remove(connID)
	zapadapter.With(ctx, g.logger).Infof("Connection closed (%d connected)", g.conns.Len())
}

// Dispatch routes one inbound frame from connID
func (g *Gateway) Dispatch(ctx context.Context, connID string, f []byte) {
	parser := g.parsers.Get()
	defer g.parsers.Put(parser)

	v, err := parser.ParseBytes(f)
	if err != nil || v.Type() != fastjson.TypeObject {
		g.reject(ctx, connID, ErrInvalidFrame)
		return
	}

	event, ok := payload.String(v.Get("event"))
	if !ok {
		g.reject(ctx, connID, ErrInvalidFrame)
		return
	}
	data := v.Get("data")

	switch event {
	case EventSubscribe:
		roomID, ok := payload.Int64(data)
		if !ok {
			g.reject(ctx, connID, ErrInvalidRoom)
			return
		}
		_ = g.Subscribe(ctx, connID, roomID)
	case EventMessage:
		var raw []byte
		if data != nil {
			raw = data.MarshalTo(nil)
		}
		_, _ = g.Message(ctx, connID, raw)
	default:
		zapadapter.With(ctx, g.logger).Debugf("Unknown event %q", event)
		g.reject(ctx, connID, ErrUnknownEvent)
	}
}

// reject pushes an error event to connID
func (g *Gateway) reject(ctx context.Context, connID string, cause error) {
	logger := zapadapter.With(ctx, g.logger)

	msg := cause.Error()
	if errors.Is(cause, relay.ErrPersistence) {
		msg = relay.ErrPersistence.Error()
	}

	data, err := json.Marshal(errorData{Error: msg})
	if err != nil {
		logger.Errorf("Encoding error event: %v", err)
		return
	}

	conn, err := g.conns.Lookup(connID)
	if err != nil {
		logger.Debugf("Dropping error event for %s: %v", connID, err)
		return
	}
	if err := conn.Handle.Push(EventError, data); err != nil {
		logger.Warnf("Pushing error event: %v", err)
	}
}

// Close rejects new connections, closes the live ones and waits for their pumps
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closing = true
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	g.logger.Infof("Closing %d websocket connections", len(clients))

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.closeConn()
	}

	g.wg.Wait()
	g.cancel()
}
