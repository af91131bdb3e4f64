// Package errmap translates domain errors into application errors.
package errmap

import (
	"context"
	"errors"

	"socialhub-backend/internal/domain"
	apperrors "socialhub-backend/pkg/errors"
)

// ToApp maps err to the AppError reported to clients. Errors that already
// carry an AppError pass through, unknown errors become internal.
func ToApp(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		return apperrors.NotFoundError("Conversation")
	case errors.Is(err, domain.ErrMessageNotFound):
		return apperrors.NotFoundError("Message")
	case errors.Is(err, domain.ErrProfileNotFound):
		return apperrors.NotFoundError("Participant")
	case errors.Is(err, domain.ErrNotParticipant):
		return apperrors.ForbiddenError("You are not a participant in this conversation")
	case errors.Is(err, domain.ErrNotSender):
		return apperrors.ForbiddenError("Only the sender can modify this message")
	case errors.Is(err, domain.ErrSenderMismatch):
		return apperrors.ForbiddenError("Sender does not match the authenticated principal")
	case errors.Is(err, domain.ErrOwnMessage):
		return apperrors.ForbiddenError("You cannot mark your own message as read")
	case errors.Is(err, domain.ErrDuplicateConversation):
		return apperrors.ConflictError("A conversation with this participant already exists")
	case errors.Is(err, domain.ErrMediaDisabled):
		return apperrors.MediaDisabledError()
	case errors.Is(err, domain.ErrNotEditable),
		errors.Is(err, domain.ErrSelfConversation),
		errors.Is(err, domain.ErrInvalidPrincipalKind),
		errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrUnsupportedMedia),
		errors.Is(err, domain.ErrMediaTooLarge):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.TimeoutError()
	}
	return apperrors.Internal(err)
}
