package domain

import "errors"

// Sentinel errors returned by the store, media pipeline and chat service.
// Handlers map them to HTTP responses through pkg/errors.
var (
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrNotParticipant        = errors.New("principal is not a participant of the conversation")
	ErrNotSender             = errors.New("only the sender may modify this message")
	ErrNotEditable           = errors.New("only text messages can be edited")
	ErrDuplicateConversation = errors.New("direct conversation already exists")
	ErrSelfConversation      = errors.New("cannot start a conversation with yourself")
	ErrInvalidPrincipalKind  = errors.New("invalid principal kind")
	ErrInvalidMessage        = errors.New("invalid message")
	ErrUnsupportedMedia      = errors.New("unsupported media")
	ErrMediaTooLarge         = errors.New("media exceeds size limit")
	ErrMediaDisabled         = errors.New("media uploads are disabled")
	ErrSenderMismatch        = errors.New("sender does not match the authenticated principal")
	ErrOwnMessage            = errors.New("cannot mark your own message as read")
	ErrProfileNotFound       = errors.New("profile not found")
)
