package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "socialhub-backend/pkg/errors"
	"socialhub-backend/pkg/logger"
)

// ErrorBody is the error payload every endpoint emits
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Success sends the bare DTO with the given status
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, errorCode apperrors.ErrorCode, errorMessage string) {
	c.AbortWithStatusJSON(statusCode, ErrorBody{
		Error:   string(errorCode),
		Message: errorMessage,
	})
}

// FromError maps err to its AppError and writes it. Internal errors are logged
// and their cause is hidden from the client.
func FromError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	Error(c, appErr.StatusCode, appErr.Code, appErr.Message)
}

// ValidationError sends a validation error response (400)
func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, apperrors.ErrCodeValidation, message)
}

// Unauthorized sends unauthenticated error (401)
func Unauthorized(c *gin.Context, message string) {
	appErr := apperrors.UnauthenticatedError(message)
	Error(c, appErr.StatusCode, appErr.Code, appErr.Message)
}

// InternalError sends internal server error (500)
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, apperrors.ErrCodeInternal, message)
}
