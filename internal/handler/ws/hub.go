// Package ws is the realtime edge: conversation rooms, socket pumps and the
// optional Redis relay that connects hubs on different instances.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"socialhub-backend/internal/domain"
	"socialhub-backend/pkg/constants"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
)

// ErrMailboxFull is returned when a room cannot take another event
var ErrMailboxFull = errors.New("room mailbox is full")

// Relay forwards events to hubs on other instances
type Relay interface {
	Publish(ctx context.Context, ev *Event) error
}

// HubConfig sizes the hub buffers
type HubConfig struct {
	ClientBuffer  int
	MailboxSize   int
	ReorderWindow time.Duration
}

// DefaultHubConfig returns the standard buffer sizes
func DefaultHubConfig() HubConfig {
	return HubConfig{
		ClientBuffer:  constants.ClientSendBuffer,
		MailboxSize:   constants.RoomMailboxSize,
		ReorderWindow: constants.ReorderWindow,
	}
}

// Hub owns the conversation rooms of this instance
type Hub struct {
	cfg HubConfig

	mu     sync.RWMutex
	rooms  map[int64]*room
	relay  Relay
	closed bool
}

// NewHub creates an empty hub
func NewHub(cfg HubConfig) *Hub {
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = constants.ClientSendBuffer
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = constants.RoomMailboxSize
	}
	if cfg.ReorderWindow <= 0 {
		cfg.ReorderWindow = constants.ReorderWindow
	}
	return &Hub{
		cfg:   cfg,
		rooms: make(map[int64]*room),
	}
}

// SetRelay enables cross-instance fan-out
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// Join subscribes c to a conversation room. seqHint is the conversation's
// latest message seq, used to seed ordering when the room is created.
func (h *Hub) Join(c *Client, conversationID, seqHint int64) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errors.New("hub is closed")
	}
	r, ok := h.rooms[conversationID]
	if !ok {
		r = newRoom(conversationID, seqHint, h.cfg.MailboxSize, h.cfg.ReorderWindow)
		h.rooms[conversationID] = r
		metrics.ChatRoomsActive.Inc()
		go r.run()
	}
	r.add(c)
	h.mu.Unlock()

	c.trackRoom(conversationID, true)
	return nil
}

// Leave unsubscribes c. Empty rooms are torn down.
func (h *Hub) Leave(c *Client, conversationID int64) {
	c.trackRoom(conversationID, false)

	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	if r.remove(c) {
		delete(h.rooms, conversationID)
		r.stop()
		metrics.ChatRoomsActive.Dec()
	}
}

// LeaveAll unsubscribes c from every room it joined
func (h *Hub) LeaveAll(c *Client) {
	for _, id := range c.joinedRooms() {
		h.Leave(c, id)
	}
}

// IsJoined reports whether p has a socket in the conversation room on this instance
func (h *Hub) IsJoined(conversationID int64, p domain.Principal) bool {
	h.mu.RLock()
	r, ok := h.rooms[conversationID]
	h.mu.RUnlock()
	return ok && r.has(p)
}

// RoomCount returns the number of live rooms
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Broadcast delivers ev to local subscribers and, when a relay is set, to other instances
func (h *Hub) Broadcast(ctx context.Context, ev *Event) error {
	localErr := h.Deliver(ev)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay == nil {
		return localErr
	}
	if err := relay.Publish(ctx, ev); err != nil {
		return errors.Join(localErr, fmt.Errorf("relaying %s: %w", ev.Name, err))
	}
	return localErr
}

// Deliver hands ev to the local room only. Rooms nobody joined are skipped.
func (h *Hub) Deliver(ev *Event) error {
	h.mu.RLock()
	r, ok := h.rooms[ev.ConversationID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	if !r.post(ev) {
		metrics.ChatClientMessageDroppedTotal.WithLabelValues("mailbox_full").Inc()
		return fmt.Errorf("conversation %d: %w", ev.ConversationID, ErrMailboxFull)
	}
	return nil
}

// Close stops every room and disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[int64]*room)
	h.closed = true
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.RLock()
		for c := range r.clients {
			c.close()
		}
		r.mu.RUnlock()
		r.stop()
		metrics.ChatRoomsActive.Dec()
	}
	logger.Info("Realtime hub closed", zap.Int("rooms", len(rooms)))
}

func (h *Hub) broadcastPayload(ctx context.Context, name string, conversationID, seq int64, data any) error {
	ev, err := NewEvent(name, conversationID, data)
	if err != nil {
		return err
	}
	ev.Seq = seq
	return h.Broadcast(ctx, ev)
}

// MessageCreated broadcasts new_message in seq order
func (h *Hub) MessageCreated(ctx context.Context, msg *domain.Message) error {
	return h.broadcastPayload(ctx, EventNewMessage, msg.ConversationID, msg.Seq, msg)
}

// MessageUpdated broadcasts message_updated
func (h *Hub) MessageUpdated(ctx context.Context, msg *domain.Message) error {
	return h.broadcastPayload(ctx, EventMessageUpdated, msg.ConversationID, 0, msg)
}

// MessageDeleted broadcasts message_deleted
func (h *Hub) MessageDeleted(ctx context.Context, msg *domain.Message) error {
	return h.broadcastPayload(ctx, EventMessageDeleted, msg.ConversationID, 0, MessageDeletedPayload{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	})
}

// ConversationRead broadcasts conversation_marked_read
func (h *Hub) ConversationRead(ctx context.Context, conversationID int64, reader domain.Principal, count int64) error {
	return h.broadcastPayload(ctx, EventConversationMarkedRead, conversationID, 0, MarkedReadPayload{
		ConversationID: conversationID,
		Reader:         reader,
		Count:          count,
	})
}

// MessageRead broadcasts message_read_receipt
func (h *Hub) MessageRead(ctx context.Context, msg *domain.Message, reader domain.Principal) error {
	return h.broadcastPayload(ctx, EventMessageReadReceipt, msg.ConversationID, 0, ReadReceiptPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Reader:         reader,
	})
}
