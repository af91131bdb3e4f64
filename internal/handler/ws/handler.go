package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"socialhub-backend/internal/domain"
	"socialhub-backend/internal/middleware"
	apperrors "socialhub-backend/pkg/errors"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
	"socialhub-backend/pkg/response"
)

// joinTimeout bounds the participant check behind a join event
const joinTimeout = 5 * time.Second

// Authorizer decides whether a principal may join a conversation room and
// returns the conversation's latest message seq
type Authorizer interface {
	AuthorizeJoin(ctx context.Context, principal domain.Principal, conversationID int64) (int64, error)
}

// HandlerConfig controls the upgrade
type HandlerConfig struct {
	// AllowedOrigins lists browser origins allowed to connect. "*" allows any.
	// Requests without an Origin header (native clients) are always accepted.
	AllowedOrigins []string
	MaxConnections int
}

// Handler upgrades authenticated requests and routes client events
type Handler struct {
	hub        *Hub
	authorizer Authorizer
	upgrader   websocket.Upgrader
	semaphore  chan struct{}
}

// NewHandler creates a websocket handler bound to hub
func NewHandler(hub *Hub, authorizer Authorizer, cfg HandlerConfig) *Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}

	h := &Handler{
		hub:        hub,
		authorizer: authorizer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
	if cfg.MaxConnections > 0 {
		h.semaphore = make(chan struct{}, cfg.MaxConnections)
	}
	return h
}

// ServeWS handles GET /ws. The auth middleware has already resolved the principal.
func (h *Handler) ServeWS(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}

	if h.semaphore != nil {
		select {
		case h.semaphore <- struct{}{}:
		default:
			metrics.ChatWebSocketConnectionTotal.WithLabelValues("rejected").Inc()
			response.Error(c, http.StatusServiceUnavailable, apperrors.ErrCodeUnavailable, "Too many realtime connections")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.release()
		metrics.ChatWebSocketConnectionTotal.WithLabelValues("failed").Inc()
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	metrics.ChatWebSocketConnectionTotal.WithLabelValues("accepted").Inc()
	metrics.ChatWebSocketConnections.Inc()

	client := newClient(h, conn, principal, h.hub.cfg.ClientBuffer)
	go client.writePump()
	go func() {
		defer func() {
			metrics.ChatWebSocketConnections.Dec()
			h.release()
		}()
		client.readPump()
	}()
}

func (h *Handler) release() {
	if h.semaphore != nil {
		<-h.semaphore
	}
}

func (h *Handler) handleFrame(c *Client, frame Frame) {
	var payload ClientPayload
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			c.replyError(string(apperrors.ErrCodeValidation), "data must be an object")
			return
		}
	}
	if payload.ConversationID <= 0 {
		c.replyError(string(apperrors.ErrCodeValidation), "conversation_id is required")
		return
	}

	switch frame.Event {
	case EventJoin:
		h.join(c, payload.ConversationID)
	case EventLeave:
		h.hub.Leave(c, payload.ConversationID)
		c.reply(EventLeft, RoomPayload{ConversationID: payload.ConversationID})
	case EventTyping:
		h.relayToRoom(c, EventUserTyping, payload.ConversationID, TypingPayload{
			ConversationID: payload.ConversationID,
			Principal:      c.principal,
		})
	case EventStopTyping:
		h.relayToRoom(c, EventUserStoppedTyping, payload.ConversationID, TypingPayload{
			ConversationID: payload.ConversationID,
			Principal:      c.principal,
		})
	case EventMessageRead:
		if payload.MessageID <= 0 {
			c.replyError(string(apperrors.ErrCodeValidation), "message_id is required")
			return
		}
		h.relayToRoom(c, EventMessageReadReceipt, payload.ConversationID, ReadReceiptPayload{
			ConversationID: payload.ConversationID,
			MessageID:      payload.MessageID,
			Reader:         c.principal,
		})
	default:
		c.replyError(string(apperrors.ErrCodeValidation), "unknown event "+frame.Event)
	}
}

func (h *Handler) join(c *Client, conversationID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	seq, err := h.authorizer.AuthorizeJoin(ctx, c.principal, conversationID)
	if err != nil {
		appErr := apperrors.GetAppError(err)
		if appErr.StatusCode >= http.StatusInternalServerError {
			logger.Error("Join authorization failed",
				zap.Int64("conversation_id", conversationID),
				zap.String("principal", c.principal.String()),
				zap.Error(err))
		}
		c.replyError(string(appErr.Code), appErr.Message)
		return
	}

	if err := h.hub.Join(c, conversationID, seq); err != nil {
		c.replyError(string(apperrors.ErrCodeUnavailable), err.Error())
		return
	}
	c.reply(EventJoined, RoomPayload{ConversationID: conversationID})
}

// relayToRoom rebroadcasts an ephemeral client event to the other sockets in the room
func (h *Handler) relayToRoom(c *Client, name string, conversationID int64, data any) {
	if !c.inRoom(conversationID) {
		c.replyError(string(apperrors.ErrCodeForbidden), "join the conversation first")
		return
	}
	ev, err := NewEvent(name, conversationID, data)
	if err != nil {
		c.replyError(string(apperrors.ErrCodeInternal), "could not encode event")
		return
	}
	ev.except = c
	if err := h.hub.Broadcast(context.Background(), ev); err != nil {
		logger.Warn("Failed to relay client event",
			zap.String("event", name),
			zap.Int64("conversation_id", conversationID),
			zap.Error(err))
	}
}
