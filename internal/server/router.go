// Package server assembles the gin engine of the chat service.
package server

import (
	"time"

	"github.com/gin-gonic/gin"

	chatHandler "socialhub-backend/internal/handler/http/chat"
	conversationHandler "socialhub-backend/internal/handler/http/conversation"
	wsHandler "socialhub-backend/internal/handler/ws"
	"socialhub-backend/internal/middleware"
	"socialhub-backend/pkg/constants"
	"socialhub-backend/pkg/jwt"
	"socialhub-backend/pkg/metrics"
)

// Deps are the handlers and middleware the router mounts.
// Revocation, RateLimiter, PoolGuard and Health are optional.
type Deps struct {
	JWT           *jwt.JWTManager
	Revocation    middleware.RevocationChecker
	Metrics       *metrics.Metrics
	Chat          *chatHandler.Handler
	Conversations *conversationHandler.Handler
	WS            *wsHandler.Handler
	RateLimiter   *middleware.RateLimiter
	PoolGuard     *middleware.DBPoolGuard
	Health        gin.HandlerFunc

	CORSOrigins    []string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
}

// NewRouter builds the engine with every route registered
func NewRouter(d Deps) *gin.Engine {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = constants.DefaultTimeout
	}
	if d.UploadTimeout <= 0 {
		d.UploadTimeout = constants.UploadTimeout
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(d.CORSOrigins))
	if d.Metrics != nil {
		router.Use(middleware.NewPrometheusMiddleware(d.Metrics).Handler())
		router.GET("/metrics", middleware.MetricsHandler(d.Metrics))
	}
	if d.Health != nil {
		router.GET("/health", d.Health)
	}

	// The upgrade carries no deadline; the socket outlives the request.
	router.GET("/ws",
		middleware.AuthMiddleware(d.JWT, d.Revocation, middleware.AuthOptions{AllowQueryToken: true}),
		d.WS.ServeWS)

	api := router.Group("")
	api.Use(middleware.AuthMiddleware(d.JWT, d.Revocation, middleware.AuthOptions{}))
	if d.RateLimiter != nil {
		api.Use(d.RateLimiter.Middleware())
	}
	if d.PoolGuard != nil {
		api.Use(d.PoolGuard.Middleware())
	}

	standard := middleware.Timeout(d.RequestTimeout)
	upload := middleware.Timeout(d.UploadTimeout)

	messages := api.Group("/messages")
	{
		messages.POST("", upload, d.Chat.SendMessage)
		messages.POST("/upload", upload, d.Chat.UploadMedia)
		messages.GET("/recent", standard, d.Conversations.ListRecent)
		messages.GET("/unread/:principal_id", standard, d.Chat.UnreadCount)
		messages.GET("/conversation/:cid", standard, d.Chat.GetConversationMessages)
		messages.POST("/conversation/:cid/mark-read", standard, d.Chat.MarkConversationRead)
		messages.GET("/:id", standard, d.Chat.GetMessage)
		messages.PUT("/:id", standard, d.Chat.UpdateMessage)
		messages.DELETE("/:id", standard, d.Chat.DeleteMessage)
	}

	conversations := api.Group("/conversations")
	conversations.Use(standard)
	{
		conversations.POST("", d.Conversations.CreateConversation)
		conversations.GET("/with-user/:id", d.Conversations.GetWithUser)
		conversations.GET("/:id", d.Conversations.GetConversation)
		conversations.DELETE("/:id", d.Conversations.DeleteConversation)
	}

	return router
}
