package chat

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"socialhub-backend/internal/domain"
	"socialhub-backend/internal/middleware"
	"socialhub-backend/internal/service/chat"
	"socialhub-backend/internal/service/media"
	apperrors "socialhub-backend/pkg/errors"
	"socialhub-backend/pkg/pagination"
	"socialhub-backend/pkg/response"
	"socialhub-backend/pkg/sanitize"
)

// Handler handles chat HTTP requests
type Handler struct {
	chatService *chat.Service
}

// NewHandler creates a new chat handler
func NewHandler(chatService *chat.Service) *Handler {
	return &Handler{
		chatService: chatService,
	}
}

// SendMessageRequest is the JSON or multipart body of a send.
// Media messages either attach a file or reference a blob from POST /messages/upload.
type SendMessageRequest struct {
	ConversationID int64                 `json:"conversation_id" form:"conversation_id"`
	RecipientID    int64                 `json:"recipient_id" form:"recipient_id"`
	RecipientType  string                `json:"recipient_type" form:"recipient_type"`
	SenderID       int64                 `json:"sender_id" form:"sender_id"`
	SenderType     string                `json:"sender_type" form:"sender_type"`
	MessageType    string                `json:"message_type" form:"message_type" binding:"required"`
	Content        string                `json:"content" form:"content"`
	MediaURL       string                `json:"media_url" form:"media_url"`
	ThumbnailURL   *string               `json:"thumbnail_url" form:"thumbnail_url"`
	Metadata       *domain.MediaMetadata `json:"metadata" form:"-"`
}

// UpdateMessageRequest edits text or flips read
type UpdateMessageRequest struct {
	Content *string `json:"content"`
	Read    *bool   `json:"read"`
}

// UnreadCountResponse is the body of GET /messages/unread/:principal_id
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

// MarkReadResponse is the body of POST /messages/conversation/:cid/mark-read
type MarkReadResponse struct {
	ConversationID int64 `json:"conversation_id"`
	Marked         int64 `json:"marked"`
}

// DeleteMessageResponse is the body of DELETE /messages/:id
type DeleteMessageResponse struct {
	Message   string `json:"message"`
	MessageID int64  `json:"message_id"`
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), binding.MIMEMultipartPOSTForm)
}

// SendMessage handles sending a new message
// POST /messages
func (h *Handler) SendMessage(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req SendMessageRequest
	var err error
	if isMultipart(c) {
		err = c.ShouldBindWith(&req, binding.FormMultipart)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	input := &chat.SendMessageInput{
		ConversationID: req.ConversationID,
		RecipientID:    req.RecipientID,
		RecipientType:  req.RecipientType,
		SenderID:       req.SenderID,
		SenderType:     req.SenderType,
		MessageType:    req.MessageType,
		Content:        req.Content,
	}
	if req.MediaURL != "" {
		input.Media = &domain.MediaUpload{
			URL:          req.MediaURL,
			ThumbnailURL: req.ThumbnailURL,
			Metadata:     req.Metadata,
		}
	}

	if isMultipart(c) {
		if fileHeader, err := c.FormFile("file"); err == nil {
			file, err := fileHeader.Open()
			if err != nil {
				response.ValidationError(c, "Unable to read uploaded file")
				return
			}
			defer file.Close()
			input.File = uploadInput(fileHeader, file)
		}
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), principal, input)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, msg)
}

// UploadMedia places a blob for a later send
// POST /messages/upload
func (h *Handler) UploadMedia(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	if !h.chatService.MediaEnabled() {
		response.FromError(c, apperrors.MediaDisabledError())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.ValidationError(c, "file is required")
		return
	}
	messageType := c.PostForm("message_type")
	if messageType == "" {
		response.ValidationError(c, "message_type is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.ValidationError(c, "Unable to read uploaded file")
		return
	}
	defer file.Close()

	upload, err := h.chatService.UploadMedia(c.Request.Context(), principal, messageType, *uploadInput(fileHeader, file))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, upload)
}

// GetMessage returns one message
// GET /messages/:id
func (h *Handler) GetMessage(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	messageID, ok := paramID(c, "id")
	if !ok {
		return
	}

	msg, err := h.chatService.GetMessage(c.Request.Context(), principal, messageID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, msg)
}

// UpdateMessage edits the text of a message or marks it read
// PUT /messages/:id
func (h *Handler) UpdateMessage(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	messageID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req UpdateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	msg, err := h.chatService.UpdateMessage(c.Request.Context(), principal, messageID, &chat.UpdateMessageInput{
		Content: req.Content,
		Read:    req.Read,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, msg)
}

// DeleteMessage removes a message
// DELETE /messages/:id
func (h *Handler) DeleteMessage(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	messageID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.chatService.DeleteMessage(c.Request.Context(), principal, messageID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, DeleteMessageResponse{
		Message:   "Message deleted",
		MessageID: messageID,
	})
}

// GetConversationMessages returns one page of a conversation and marks it read
// GET /messages/conversation/:cid?cursor=&page=&per_page=
func (h *Handler) GetConversationMessages(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	conversationID, ok := paramID(c, "cid")
	if !ok {
		return
	}

	params, err := pagination.Parse(c.Query("cursor"), c.Query("page"), c.Query("per_page"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	page, err := h.chatService.GetConversationMessages(c.Request.Context(), principal, conversationID, params)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, page)
}

// MarkConversationRead marks every received message in the conversation read
// POST /messages/conversation/:cid/mark-read
func (h *Handler) MarkConversationRead(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	conversationID, ok := paramID(c, "cid")
	if !ok {
		return
	}

	count, err := h.chatService.MarkConversationRead(c.Request.Context(), principal, conversationID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, MarkReadResponse{
		ConversationID: conversationID,
		Marked:         count,
	})
}

// UnreadCount returns the caller's unread total
// GET /messages/unread/:principal_id
func (h *Handler) UnreadCount(c *gin.Context) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	principalID, ok := paramID(c, "principal_id")
	if !ok {
		return
	}

	count, err := h.chatService.UnreadCount(c.Request.Context(), principal, principalID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, UnreadCountResponse{UnreadCount: count})
}

func uploadInput(fileHeader *multipart.FileHeader, file multipart.File) *media.UploadInput {
	return &media.UploadInput{
		Filename: sanitize.Filename(fileHeader.Filename),
		Size:     fileHeader.Size,
		Body:     file,
	}
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.ValidationError(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}
