package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"socialhub-backend/internal/domain"
	"socialhub-backend/pkg/constants"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
)

type enqueueResult int

const (
	enqueued enqueueResult = iota
	enqueueFull
	enqueueClosed
)

// Client is one authenticated socket
type Client struct {
	handler   *Handler
	conn      *websocket.Conn
	send      chan []byte
	principal domain.Principal

	mu     sync.Mutex
	closed bool
	rooms  map[int64]struct{}
}

func newClient(h *Handler, conn *websocket.Conn, principal domain.Principal, buffer int) *Client {
	return &Client{
		handler:   h,
		conn:      conn,
		send:      make(chan []byte, buffer),
		principal: principal,
		rooms:     make(map[int64]struct{}),
	}
}

// enqueue queues a frame without blocking
func (c *Client) enqueue(frame []byte) enqueueResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return enqueueClosed
	}
	select {
	case c.send <- frame:
		return enqueued
	default:
		return enqueueFull
	}
}

// close stops the write pump, which closes the socket
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) trackRoom(conversationID int64, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if joined {
		c.rooms[conversationID] = struct{}{}
	} else {
		delete(c.rooms, conversationID)
	}
}

func (c *Client) inRoom(conversationID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[conversationID]
	return ok
}

func (c *Client) joinedRooms() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// reply sends a frame to this client only
func (c *Client) reply(event string, data any) {
	frame, err := encodeFrame(event, data)
	if err != nil {
		logger.Error("Failed to encode websocket reply", zap.String("event", event), zap.Error(err))
		return
	}
	if c.enqueue(frame) == enqueueFull {
		metrics.ChatClientMessageDroppedTotal.WithLabelValues("buffer_full").Inc()
		c.close()
	}
}

func (c *Client) replyError(kind, message string) {
	c.reply(EventError, ErrorPayload{Error: kind, Message: message})
}

// readPump reads client events until the socket fails
func (c *Client) readPump() {
	defer func() {
		c.handler.hub.LeaveAll(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				metrics.ChatWebSocketErrorsTotal.WithLabelValues("read").Inc()
				logger.Warn("WebSocket read error",
					zap.String("principal", c.principal.String()),
					zap.Error(err))
			}
			return
		}
		metrics.ChatWebSocketMessagesTotal.WithLabelValues("in").Inc()

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.replyError("validation", "frames must be JSON objects with an event field")
			continue
		}
		c.handler.handleFrame(c, frame)
	}
}

// writePump drains the send buffer and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				metrics.ChatWebSocketErrorsTotal.WithLabelValues("write").Inc()
				return
			}
			metrics.ChatWebSocketMessagesTotal.WithLabelValues("out").Inc()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
