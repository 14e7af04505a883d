package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"chat-relay/internal/registry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frame is the envelope of every websocket text message in both directions
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type errorData struct {
	Error string `json:"error"`
}

func encodeFrame(event string, data []byte) ([]byte, error) {
	return json.Marshal(frame{Event: event, Data: data})
}

// client is the registry.Handle of one websocket connection. Frames pushed to it are
// written by writePump in order.
type client struct {
	id     string
	conn   *websocket.Conn
	logger *zap.SugaredLogger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newClient(id string, conn *websocket.Conn, logger *zap.SugaredLogger, buffer int) *client {
	return &client{
		id:     id,
		conn:   conn,
		logger: logger.With("connection_id", id),
		send:   make(chan []byte, buffer),
	}
}

// Push enqueues an event without blocking
func (c *client) Push(event string, data []byte) error {
	f, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return registry.ErrHandleClosed
	}

	select {
	case c.send <- f:
		return nil
	default:
		return registry.ErrQueueFull
	}
}

// close stops accepting pushes and lets writePump drain and send a close frame
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) setupRead(limit int64) {
	c.conn.SetReadLimit(limit)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debugf("Setting read deadline: %v", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Infof("Frame exceeded maximum size, closing connection")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Debugf("Client disconnected: %v", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Debugf("Connection closed: %v", err)
	default:
		c.logger.Warnf("Reading frame: %v", err)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case f, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Debugf("Setting write deadline: %v", err)
				return
			}
			if !ok {
				err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				if err != nil && !isExpectedCloseError(err) {
					c.logger.Debugf("Writing close frame: %v", err)
				}
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, f); err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Warnf("Writing frame: %v", err)
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugf("Writing ping: %v", err)
				return
			}
		}
	}
}

func (c *client) closeConn() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.logger.Debugf("Closing connection: %v", err)
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}
