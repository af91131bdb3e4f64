package conversation

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"socialhub-backend/internal/domain"
	"socialhub-backend/internal/middleware"
	"socialhub-backend/internal/service/conversation"
	"socialhub-backend/pkg/pagination"
	"socialhub-backend/pkg/response"
)

// Handler handles conversation HTTP requests
type Handler struct {
	conversationService *conversation.Service
}

// NewHandler creates a new conversation handler
func NewHandler(conversationService *conversation.Service) *Handler {
	return &Handler{
		conversationService: conversationService,
	}
}

// DeleteConversationResponse is the body of DELETE /conversations/:id
type DeleteConversationResponse struct {
	Message        string `json:"message"`
	ConversationID int64  `json:"conversation_id"`
}

// CreateConversation opens a direct conversation.
// 201 when created, 200 when it already existed, 409 for strict duplicates.
// POST /conversations
func (h *Handler) CreateConversation(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req domain.ConversationCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	conv, created, err := h.conversationService.Create(c.Request.Context(), principal, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, conv)
}

// GetWithUser returns the direct conversation with another principal, opening it on first use
// GET /conversations/with-user/:id?type=user|advertiser
func (h *Handler) GetWithUser(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	otherID, ok := paramID(c, "id")
	if !ok {
		return
	}

	conv, _, err := h.conversationService.WithUser(c.Request.Context(), principal, otherID, c.Query("type"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// GetConversation returns a conversation with its participants
// GET /conversations/:id
func (h *Handler) GetConversation(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	conversationID, ok := paramID(c, "id")
	if !ok {
		return
	}

	conv, err := h.conversationService.Get(c.Request.Context(), principal, conversationID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conv)
}

// DeleteConversation removes a conversation and its messages
// DELETE /conversations/:id
func (h *Handler) DeleteConversation(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	conversationID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.conversationService.Delete(c.Request.Context(), principal, conversationID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, DeleteConversationResponse{
		Message:        "Conversation deleted",
		ConversationID: conversationID,
	})
}

// ListRecent returns conversation summaries, most recently active first
// GET /messages/recent?page=&per_page=
func (h *Handler) ListRecent(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.Parse("", c.Query("page"), c.Query("per_page"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	summaries, err := h.conversationService.ListRecent(c.Request.Context(), principal, params)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, summaries)
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ValidationError(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}
