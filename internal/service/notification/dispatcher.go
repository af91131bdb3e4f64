// Package notification fans new messages out to the push transport for
// participants who are not watching the conversation.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"socialhub-backend/internal/domain"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
	"socialhub-backend/pkg/push"
	"socialhub-backend/pkg/resilience"
)

// ProfileDirectory resolves principals to profiles
type ProfileDirectory interface {
	GetProfile(ctx context.Context, p domain.Principal) (*domain.Profile, error)
}

// Presence reports whether a principal is joined to a conversation room on this instance
type Presence interface {
	IsJoined(conversationID int64, p domain.Principal) bool
}

// Dispatcher sends push notifications for new messages
type Dispatcher struct {
	provider push.Provider
	profiles ProfileDirectory
	presence Presence
	retry    resilience.Policy
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithRetryPolicy overrides how failed sends are retried
func WithRetryPolicy(p resilience.Policy) Option {
	return func(d *Dispatcher) { d.retry = p }
}

// NewDispatcher creates a dispatcher. presence may be nil.
func NewDispatcher(provider push.Provider, profiles ProfileDirectory, presence Presence, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider: provider,
		profiles: profiles,
		presence: presence,
		retry:    resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NotifyMessage pushes a preview of msg to recipients. The sender, recipients
// without a push token and recipients currently in the room are skipped.
// The returned error is informational: callers log it and move on.
func (d *Dispatcher) NotifyMessage(ctx context.Context, msg *domain.Message, recipients []domain.Principal) error {
	sender := msg.SenderPrincipal()
	providerName := d.provider.Name()

	var (
		tokens []string
		errs   []error
	)
	for _, r := range recipients {
		if r.Equal(sender) {
			continue
		}
		if d.presence != nil && d.presence.IsJoined(msg.ConversationID, r) {
			metrics.ChatPushNotificationsTotal.WithLabelValues(providerName, "foreground").Inc()
			continue
		}

		profile, err := d.profiles.GetProfile(ctx, r)
		if errors.Is(err, domain.ErrProfileNotFound) {
			metrics.ChatPushNotificationsTotal.WithLabelValues(providerName, "no_token").Inc()
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("looking up %s: %w", r, err))
			continue
		}
		if profile.PushToken == "" {
			metrics.ChatPushNotificationsTotal.WithLabelValues(providerName, "no_token").Inc()
			continue
		}
		tokens = append(tokens, profile.PushToken)
	}

	if len(tokens) == 0 {
		return errors.Join(errs...)
	}

	n := &push.Notification{
		Title:    d.title(ctx, sender),
		Body:     msg.Preview(),
		Priority: "high",
		Sound:    "default",
		Category: "chat_message",
		Data: map[string]string{
			"type":            "new_message",
			"conversation_id": strconv.FormatInt(msg.ConversationID, 10),
			"message_id":      strconv.FormatInt(msg.ID, 10),
			"message_type":    string(msg.Kind),
			"sender_id":       strconv.FormatInt(msg.SenderID, 10),
			"sender_type":     string(msg.SenderKind),
		},
	}

	var result *push.SendResult
	err := resilience.Do(ctx, "push_send", d.retry, func(ctx context.Context) error {
		var sendErr error
		result, sendErr = d.provider.Send(ctx, n, tokens)
		return sendErr
	})
	if err != nil {
		metrics.ChatPushNotificationsTotal.WithLabelValues(providerName, "failed").Add(float64(len(tokens)))
		errs = append(errs, fmt.Errorf("sending push: %w", err))
		return errors.Join(errs...)
	}

	metrics.ChatPushNotificationsTotal.WithLabelValues(providerName, "sent").Add(float64(result.SuccessCount))
	if result.FailureCount > 0 {
		metrics.ChatPushNotificationsTotal.WithLabelValues(providerName, "failed").Add(float64(result.FailureCount))
		logger.Warn("Some push notifications were rejected",
			zap.Int64("message_id", msg.ID),
			zap.Int("failure_count", result.FailureCount),
			zap.Int("invalid_tokens", len(result.InvalidTokens)))
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) title(ctx context.Context, sender domain.Principal) string {
	profile, err := d.profiles.GetProfile(ctx, sender)
	if err != nil {
		return "New message"
	}
	if profile.Name != "" {
		return profile.Name
	}
	if profile.Username != "" {
		return profile.Username
	}
	return "New message"
}
