// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default per-request deadline
	DefaultTimeout = 30 * time.Second

	// UploadTimeout is the per-request deadline for multipart uploads
	UploadTimeout = 120 * time.Second

	// PushTimeout bounds a single push fan-out after the request has returned
	PushTimeout = 15 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// WebSocket constants
const (
	// WebSocketWriteWait is the time allowed to write a frame to the peer
	WebSocketWriteWait = 10 * time.Second

	// WebSocketPongWait is the time allowed to read the next pong from the peer
	WebSocketPongWait = 60 * time.Second

	// WebSocketPingInterval must be less than WebSocketPongWait
	WebSocketPingInterval = (WebSocketPongWait * 9) / 10

	// WebSocketMaxMessageSize caps inbound client frames
	WebSocketMaxMessageSize = 8 * 1024

	// ClientSendBuffer is the outbound frame buffer per socket
	ClientSendBuffer = 256

	// RoomMailboxSize is the inbound event buffer per conversation room
	RoomMailboxSize = 1024

	// ReorderWindow is how long a room waits for a missing seq before skipping it
	ReorderWindow = 2 * time.Second
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)

// Media constants
const (
	// MaxImageSize is the largest accepted image upload (10MB)
	MaxImageSize = 10 * 1024 * 1024

	// MaxAudioSize is the largest accepted audio upload (20MB)
	MaxAudioSize = 20 * 1024 * 1024

	// MaxVideoSize is the largest accepted video upload (100MB)
	MaxVideoSize = 100 * 1024 * 1024

	// ThumbnailMaxDimension bounds both thumbnail sides
	ThumbnailMaxDimension = 256
)

// Message constants
const (
	// MaxMessageLength is the maximum allowed message length
	MaxMessageLength = 10000
)

// Cache constants
const (
	// ProfileCacheTTL is how long a profile lookup stays cached in Redis
	ProfileCacheTTL = 5 * time.Minute
)
