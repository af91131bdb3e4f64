package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"socialhub-backend/internal/domain"
	"socialhub-backend/internal/service/media"
	"socialhub-backend/pkg/constants"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
)

// Store is the persistence the message service needs
type Store interface {
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	GetMessage(ctx context.Context, messageID int64) (*domain.Message, error)
	FetchMessages(ctx context.Context, conversationID int64, requester domain.Principal, req domain.PageRequest) (*domain.MessagePage, int64, error)
	MarkConversationRead(ctx context.Context, conversationID int64, requester domain.Principal) (int64, error)
	MarkMessageRead(ctx context.Context, messageID int64, requester domain.Principal) (*domain.Message, bool, error)
	UpdateMessageText(ctx context.Context, messageID int64, requester domain.Principal, text string) (*domain.Message, error)
	DeleteMessage(ctx context.Context, messageID int64, requester domain.Principal) (*domain.Message, error)
	UnreadCount(ctx context.Context, principal domain.Principal) (int64, error)
}

// Broadcaster fans committed changes out to joined sockets
type Broadcaster interface {
	MessageCreated(ctx context.Context, msg *domain.Message) error
	MessageUpdated(ctx context.Context, msg *domain.Message) error
	MessageDeleted(ctx context.Context, msg *domain.Message) error
	ConversationRead(ctx context.Context, conversationID int64, reader domain.Principal, count int64) error
	MessageRead(ctx context.Context, msg *domain.Message, reader domain.Principal) error
}

// Notifier sends push notifications for a new message
type Notifier interface {
	NotifyMessage(ctx context.Context, msg *domain.Message, recipients []domain.Principal) error
}

// ProfileDirectory resolves sender snapshots
type ProfileDirectory interface {
	GetProfile(ctx context.Context, principal domain.Principal) (*domain.Profile, error)
}

// MediaUploader places uploaded blobs in object storage
type MediaUploader interface {
	Upload(ctx context.Context, in media.UploadInput) (*domain.MediaUpload, error)
}

// ConversationOpener opens the direct conversation between two principals
type ConversationOpener interface {
	GetOrCreate(ctx context.Context, principal, other domain.Principal, strict bool) (*domain.Conversation, bool, error)
}

// Service handles message business logic.
// Broadcast and push run after the commit and never fail the request.
type Service struct {
	store       Store
	broadcaster Broadcaster
	notifier    Notifier
	profiles    ProfileDirectory
	media       MediaUploader

	conversations ConversationOpener
	pushTimeout   time.Duration
	pending       sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithConversations lets sends address a recipient instead of a conversation id
func WithConversations(c ConversationOpener) Option {
	return func(s *Service) {
		s.conversations = c
	}
}

// WithPushTimeout bounds each detached push fan-out
func WithPushTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pushTimeout = d
		}
	}
}

// NewService creates a message service. uploader may be nil when media is disabled,
// broadcaster and notifier may be nil to skip those side effects.
func NewService(store Store, broadcaster Broadcaster, notifier Notifier, profiles ProfileDirectory, uploader MediaUploader, opts ...Option) *Service {
	s := &Service{
		store:       store,
		broadcaster: broadcaster,
		notifier:    notifier,
		profiles:    profiles,
		media:       uploader,
		pushTimeout: constants.PushTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MediaEnabled reports whether uploads are accepted
func (s *Service) MediaEnabled() bool {
	return s.media != nil
}

// Wait blocks until every detached push has finished
func (s *Service) Wait() {
	s.pending.Wait()
}

// broadcast runs fn on a context detached from the request
func (s *Service) broadcast(ctx context.Context, event string, fn func(b Broadcaster, ctx context.Context) error) {
	if s.broadcaster == nil {
		return
	}
	start := time.Now()
	if err := fn(s.broadcaster, context.WithoutCancel(ctx)); err != nil {
		metrics.RecordSideEffectFailure(metrics.ComponentBroadcast, err)
		logger.FromContext(ctx).Warn("Failed to broadcast event",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	metrics.ChatMessageDeliveryDuration.WithLabelValues("broadcast").Observe(time.Since(start).Seconds())
}

// notify pushes msg to recipients in the background
func (s *Service) notify(ctx context.Context, msg *domain.Message, recipients []domain.Principal) {
	if s.notifier == nil || len(recipients) == 0 {
		return
	}

	log := logger.FromContext(ctx)
	detached := context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		pushCtx, cancel := context.WithTimeout(detached, s.pushTimeout)
		defer cancel()

		start := time.Now()
		if err := s.notifier.NotifyMessage(pushCtx, msg, recipients); err != nil {
			metrics.RecordSideEffectFailure(metrics.ComponentPush, err)
			log.Warn("Failed to send push notification",
				zap.Int64("message_id", msg.ID),
				zap.Int64("conversation_id", msg.ConversationID),
				zap.Error(err))
			return
		}
		metrics.ChatMessageDeliveryDuration.WithLabelValues("push").Observe(time.Since(start).Seconds())
	}()
}

// hydrate attaches sender snapshots. A missing profile leaves the snapshot empty.
func (s *Service) hydrate(ctx context.Context, messages ...*domain.Message) error {
	if s.profiles == nil || len(messages) == 0 {
		return nil
	}

	seen := make(map[domain.Principal]struct{})
	principals := make([]domain.Principal, 0, len(messages))
	for _, msg := range messages {
		p := msg.SenderPrincipal()
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			principals = append(principals, p)
		}
	}

	var mu sync.Mutex
	senders := make(map[domain.Principal]*domain.ProfileSnapshot, len(principals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, p := range principals {
		p := p
		g.Go(func() error {
			profile, err := s.profiles.GetProfile(gctx, p)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.FromContext(ctx).Debug("Sender profile unavailable",
					zap.String("principal", p.String()),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			senders[p] = profile.Snapshot()
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, msg := range messages {
		msg.Sender = senders[msg.SenderPrincipal()]
	}
	return nil
}
