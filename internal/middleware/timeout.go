package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "socialhub-backend/pkg/errors"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/response"
)

// Timeout gives every request a deadline. Handlers observe it through
// c.Request.Context(); if the deadline passes before anything is written the
// client receives 504.
func Timeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		if ctx.Err() != context.DeadlineExceeded {
			return
		}

		logger.Warn("Request timed out",
			zap.Duration("timeout", timeout),
			zap.Duration("duration", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Bool("response_written", c.Writer.Written()))

		if !c.Writer.Written() {
			appErr := apperrors.TimeoutError()
			response.Error(c, http.StatusGatewayTimeout, appErr.Code, appErr.Message)
		}
	}
}

// RemainingTime returns how long the request has before its deadline
func RemainingTime(c *gin.Context) time.Duration {
	deadline, ok := c.Request.Context().Deadline()
	if !ok {
		return 0
	}
	if remaining := time.Until(deadline); remaining > 0 {
		return remaining
	}
	return 0
}
