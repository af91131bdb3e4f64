// Package push delivers device notifications through FCM or APNs.
package push

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"socialhub-backend/pkg/logger"
)

// Provider defines interface for sending push notifications
type Provider interface {
	Name() string
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
	Category string            `json:"category,omitempty"`
}

// SentNotification is one delivery recorded by MockProvider
type SentNotification struct {
	Notification Notification
	Tokens       []string
}

// MockProvider logs notifications instead of sending them
type MockProvider struct {
	mu       sync.Mutex
	sent     []SentNotification
	err      error
	attempts int
}

// NewMockProvider creates a provider that records every send
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Name implements Provider
func (m *MockProvider) Name() string { return string(ProviderTypeMock) }

// Send implements Provider interface for mock
func (m *MockProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if m.err != nil {
		return nil, m.err
	}

	m.sent = append(m.sent, SentNotification{
		Notification: *notification,
		Tokens:       append([]string(nil), tokens...),
	})

	logger.Debug("Mock push notification",
		zap.String("title", notification.Title),
		zap.Int("token_count", len(tokens)))

	return &SendResult{SuccessCount: len(tokens)}, nil
}

// Sent returns a copy of everything sent so far
func (m *MockProvider) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentNotification(nil), m.sent...)
}

// Attempts counts every Send call, failed ones included
func (m *MockProvider) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// FailWith makes subsequent sends return err. Pass nil to restore.
func (m *MockProvider) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// maskPushToken returns a safe masked version of a push token for logging
// Shows only first 8 and last 8 characters, with middle masked
func maskPushToken(token string) string {
	if len(token) <= 16 {
		return "********"
	}
	return token[:8] + "..." + token[len(token)-8:]
}
