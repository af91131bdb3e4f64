package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"socialhub-backend/internal/domain"
	"socialhub-backend/internal/service/errmap"
	"socialhub-backend/internal/service/media"
	"socialhub-backend/pkg/constants"
	apperrors "socialhub-backend/pkg/errors"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
	"socialhub-backend/pkg/pagination"
	"socialhub-backend/pkg/sanitize"
)

// SendMessageInput contains message sending data.
// SenderID and SenderType are optional; when present they must name the caller.
// Either ConversationID or RecipientID selects the conversation.
type SendMessageInput struct {
	ConversationID int64
	RecipientID    int64
	RecipientType  string
	SenderID       int64
	SenderType     string
	MessageType    string
	Content        string

	// Media is a blob placed earlier through UploadMedia
	Media *domain.MediaUpload
	// File is an inline multipart upload
	File *media.UploadInput
}

// UpdateMessageInput is the body of an edit. Exactly one field is set.
type UpdateMessageInput struct {
	Content *string
	Read    *bool
}

// SendMessage validates, persists and fans out a new message
func (s *Service) SendMessage(ctx context.Context, principal domain.Principal, input *SendMessageInput) (*domain.Message, error) {
	if err := checkSender(principal, input.SenderID, input.SenderType); err != nil {
		return nil, errmap.ToApp(err)
	}

	kind, err := domain.ParseMessageKind(input.MessageType)
	if err != nil {
		return nil, errmap.ToApp(err)
	}

	content := strings.TrimSpace(sanitize.MessageText(input.Content))
	if utf8.RuneCountInString(content) > constants.MaxMessageLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("Message content exceeds %d characters", constants.MaxMessageLength))
	}
	if kind == domain.MessageText && content == "" {
		return nil, apperrors.ValidationError("Content is required for text messages")
	}
	if kind.IsMedia() && s.media == nil {
		return nil, apperrors.MediaDisabledError()
	}
	if kind.IsMedia() && input.File == nil && (input.Media == nil || input.Media.URL == "") {
		return nil, apperrors.ValidationError(fmt.Sprintf("A file is required for %s messages", kind))
	}
	if kind == domain.MessageText && (input.File != nil || input.Media != nil) {
		return nil, apperrors.ValidationError("Text messages cannot carry media")
	}
	if kind.IsMedia() && input.File == nil {
		if err := media.CheckUploaded(kind, input.Media); err != nil {
			return nil, errmap.ToApp(err)
		}
	}

	conv, err := s.resolveConversation(ctx, principal, input)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       principal.ID,
		SenderKind:     principal.Kind,
		Kind:           kind,
	}
	if content != "" {
		msg.Content = &content
	}

	if kind.IsMedia() {
		upload := input.Media
		if input.File != nil {
			in := *input.File
			in.Kind = kind
			upload, err = s.media.Upload(ctx, in)
			if err != nil {
				return nil, errmap.ToApp(err)
			}
		}
		url := upload.URL
		msg.MediaURL = &url
		msg.ThumbnailURL = upload.ThumbnailURL
		msg.Metadata = upload.Metadata
	}

	start := time.Now()
	stored, err := s.store.AppendMessage(ctx, msg)
	if err != nil {
		if msg.MediaURL != nil && input.File != nil {
			logger.FromContext(ctx).Warn("Message rejected after media upload",
				zap.String("media_url", *msg.MediaURL),
				zap.Error(err))
		}
		return nil, errmap.ToApp(err)
	}
	metrics.ChatMessageDeliveryDuration.WithLabelValues("persist").Observe(time.Since(start).Seconds())
	metrics.ChatMessageCreatedTotal.WithLabelValues(string(stored.Kind)).Inc()

	// The message is durable from here on; hydration and fan-out are best-effort.
	if err := s.hydrate(context.WithoutCancel(ctx), stored); err != nil {
		logger.FromContext(ctx).Warn("Failed to hydrate sender", zap.Error(err))
	}

	s.broadcast(ctx, "new_message", func(b Broadcaster, ctx context.Context) error {
		return b.MessageCreated(ctx, stored)
	})
	s.notify(ctx, stored, conv.Others(principal))

	logger.FromContext(ctx).Debug("Message sent",
		zap.Int64("message_id", stored.ID),
		zap.Int64("conversation_id", stored.ConversationID),
		zap.Int64("seq", stored.Seq),
		zap.String("message_type", string(stored.Kind)))

	return stored, nil
}

// resolveConversation loads the target conversation and checks the caller belongs to it.
// Sends addressed by recipient open the direct conversation on first use.
func (s *Service) resolveConversation(ctx context.Context, principal domain.Principal, input *SendMessageInput) (*domain.Conversation, error) {
	if input.ConversationID > 0 {
		conv, err := s.store.GetConversation(ctx, input.ConversationID)
		if err != nil {
			return nil, errmap.ToApp(err)
		}
		if !conv.HasParticipant(principal) {
			return nil, errmap.ToApp(domain.ErrNotParticipant)
		}
		return conv, nil
	}

	if input.RecipientID <= 0 || s.conversations == nil {
		return nil, apperrors.ValidationError("conversation_id is required")
	}

	kind := domain.PrincipalUser
	if input.RecipientType != "" {
		var err error
		if kind, err = domain.ParsePrincipalKind(input.RecipientType); err != nil {
			return nil, errmap.ToApp(err)
		}
	}
	conv, _, err := s.conversations.GetOrCreate(ctx, principal, domain.Principal{Kind: kind, ID: input.RecipientID}, false)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// checkSender rejects bodies that name someone other than the caller
func checkSender(principal domain.Principal, senderID int64, senderType string) error {
	if senderID != 0 && senderID != principal.ID {
		return domain.ErrSenderMismatch
	}
	if senderType != "" {
		kind, err := domain.ParsePrincipalKind(senderType)
		if err != nil {
			return err
		}
		if kind != principal.Kind {
			return domain.ErrSenderMismatch
		}
	}
	return nil
}

// UploadMedia places a blob for a later send
func (s *Service) UploadMedia(ctx context.Context, principal domain.Principal, messageType string, in media.UploadInput) (*domain.MediaUpload, error) {
	if s.media == nil {
		return nil, apperrors.MediaDisabledError()
	}
	kind, err := domain.ParseMessageKind(messageType)
	if err != nil {
		return nil, errmap.ToApp(err)
	}
	if !kind.IsMedia() {
		return nil, apperrors.ValidationError("message_type must be image, video or audio")
	}
	in.Kind = kind

	upload, err := s.media.Upload(ctx, in)
	if err != nil {
		return nil, errmap.ToApp(err)
	}
	logger.FromContext(ctx).Debug("Media uploaded",
		zap.String("principal", principal.String()),
		zap.String("url", upload.URL))
	return upload, nil
}

// GetMessage returns one message to a participant of its conversation
func (s *Service) GetMessage(ctx context.Context, principal domain.Principal, messageID int64) (*domain.Message, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, errmap.ToApp(err)
	}
	if err := s.requireParticipant(ctx, msg.ConversationID, principal); err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, msg); err != nil {
		return nil, errmap.ToApp(err)
	}
	return msg, nil
}

// UpdateMessage edits the text of a message or flips its read flag
func (s *Service) UpdateMessage(ctx context.Context, principal domain.Principal, messageID int64, input *UpdateMessageInput) (*domain.Message, error) {
	switch {
	case input.Content != nil && input.Read != nil:
		return nil, apperrors.ValidationError("Send either content or read, not both")
	case input.Content != nil:
		return s.editMessage(ctx, principal, messageID, *input.Content)
	case input.Read != nil:
		if !*input.Read {
			return nil, apperrors.ValidationError("Messages cannot be marked unread")
		}
		return s.markMessageRead(ctx, principal, messageID)
	}
	return nil, apperrors.ValidationError("Nothing to update")
}

func (s *Service) editMessage(ctx context.Context, principal domain.Principal, messageID int64, text string) (*domain.Message, error) {
	text = strings.TrimSpace(sanitize.MessageText(text))
	if text == "" {
		return nil, apperrors.ValidationError("Content is required for text messages")
	}
	if utf8.RuneCountInString(text) > constants.MaxMessageLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("Message content exceeds %d characters", constants.MaxMessageLength))
	}

	msg, err := s.store.UpdateMessageText(ctx, messageID, principal, text)
	if err != nil {
		return nil, errmap.ToApp(err)
	}
	if err := s.hydrate(context.WithoutCancel(ctx), msg); err != nil {
		logger.FromContext(ctx).Warn("Failed to hydrate sender", zap.Error(err))
	}

	s.broadcast(ctx, "message_updated", func(b Broadcaster, ctx context.Context) error {
		return b.MessageUpdated(ctx, msg)
	})
	return msg, nil
}

func (s *Service) markMessageRead(ctx context.Context, principal domain.Principal, messageID int64) (*domain.Message, error) {
	msg, changed, err := s.store.MarkMessageRead(ctx, messageID, principal)
	if err != nil {
		return nil, errmap.ToApp(err)
	}
	if err := s.hydrate(context.WithoutCancel(ctx), msg); err != nil {
		logger.FromContext(ctx).Warn("Failed to hydrate sender", zap.Error(err))
	}
	if !changed {
		return msg, nil
	}

	metrics.ChatMessagesMarkedReadTotal.Inc()
	s.broadcast(ctx, "message_read_receipt", func(b Broadcaster, ctx context.Context) error {
		return b.MessageRead(ctx, msg, principal)
	})
	return msg, nil
}

// DeleteMessage hard-deletes a message sent by principal
func (s *Service) DeleteMessage(ctx context.Context, principal domain.Principal, messageID int64) error {
	msg, err := s.store.DeleteMessage(ctx, messageID, principal)
	if err != nil {
		return errmap.ToApp(err)
	}

	s.broadcast(ctx, "message_deleted", func(b Broadcaster, ctx context.Context) error {
		return b.MessageDeleted(ctx, msg)
	})
	return nil
}

// GetConversationMessages returns one page and marks it read for principal.
// The read receipt is broadcast before the page is returned.
func (s *Service) GetConversationMessages(ctx context.Context, principal domain.Principal, conversationID int64, params *pagination.Params) (*domain.MessagePage, error) {
	req := domain.PageRequest{Page: params.Page, PerPage: params.PerPage}
	if params.HasCursor {
		req.Cursor = params.Cursor
	}

	page, marked, err := s.store.FetchMessages(ctx, conversationID, principal, req)
	if err != nil {
		return nil, errmap.ToApp(err)
	}

	if marked > 0 {
		metrics.ChatMessagesMarkedReadTotal.Add(float64(marked))
		s.broadcast(ctx, "conversation_marked_read", func(b Broadcaster, ctx context.Context) error {
			return b.ConversationRead(ctx, conversationID, principal, marked)
		})
	}

	if err := s.hydrate(ctx, page.Messages...); err != nil {
		return nil, errmap.ToApp(err)
	}
	return page, nil
}

// MarkConversationRead flips every message from the other side to read.
// A second call reports zero and broadcasts nothing.
func (s *Service) MarkConversationRead(ctx context.Context, principal domain.Principal, conversationID int64) (int64, error) {
	count, err := s.store.MarkConversationRead(ctx, conversationID, principal)
	if err != nil {
		return 0, errmap.ToApp(err)
	}
	if count == 0 {
		return 0, nil
	}

	metrics.ChatMessagesMarkedReadTotal.Add(float64(count))
	s.broadcast(ctx, "conversation_marked_read", func(b Broadcaster, ctx context.Context) error {
		return b.ConversationRead(ctx, conversationID, principal, count)
	})
	return count, nil
}

// UnreadCount returns the caller's unread total. Principals may only read their own.
func (s *Service) UnreadCount(ctx context.Context, principal domain.Principal, principalID int64) (int64, error) {
	if principalID != principal.ID {
		return 0, apperrors.ForbiddenError("You can only read your own unread count")
	}
	count, err := s.store.UnreadCount(ctx, principal)
	if err != nil {
		return 0, errmap.ToApp(err)
	}
	return count, nil
}

func (s *Service) requireParticipant(ctx context.Context, conversationID int64, principal domain.Principal) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return errmap.ToApp(err)
	}
	if !conv.HasParticipant(principal) {
		return errmap.ToApp(domain.ErrNotParticipant)
	}
	return nil
}
