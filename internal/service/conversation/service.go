package conversation

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"socialhub-backend/internal/domain"
	"socialhub-backend/internal/service/errmap"
	apperrors "socialhub-backend/pkg/errors"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/pagination"
)

// Store is the persistence the conversation service needs
type Store interface {
	GetOrCreateDirectConversation(ctx context.Context, a, b domain.Principal) (*domain.Conversation, bool, error)
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID int64, requester domain.Principal) error
	ListRecentConversations(ctx context.Context, principal domain.Principal, offset, limit int) ([]*domain.ConversationSummary, error)
}

// ProfileDirectory resolves participant snapshots
type ProfileDirectory interface {
	GetProfile(ctx context.Context, principal domain.Principal) (*domain.Profile, error)
}

// Service handles conversation business logic
type Service struct {
	store    Store
	profiles ProfileDirectory
}

// NewService creates a new conversation service. Without a profile directory
// counterparts are not checked for existence and summaries are not hydrated.
func NewService(store Store, profiles ProfileDirectory) *Service {
	return &Service{
		store:    store,
		profiles: profiles,
	}
}

// Create opens the direct conversation named by input. With Strict set an
// existing pair is reported as a conflict instead of returned.
func (s *Service) Create(ctx context.Context, principal domain.Principal, input *domain.ConversationCreate) (*domain.Conversation, bool, error) {
	other, err := counterpart(input.ParticipantID, input.ParticipantType)
	if err != nil {
		return nil, false, errmap.ToApp(err)
	}
	return s.GetOrCreate(ctx, principal, other, input.Strict)
}

// WithUser returns the direct conversation between principal and the given
// counterpart, creating it on first use
func (s *Service) WithUser(ctx context.Context, principal domain.Principal, otherID int64, otherType string) (*domain.Conversation, bool, error) {
	other, err := counterpart(otherID, otherType)
	if err != nil {
		return nil, false, errmap.ToApp(err)
	}
	return s.GetOrCreate(ctx, principal, other, false)
}

// GetOrCreate is idempotent over the unordered pair {principal, other}
func (s *Service) GetOrCreate(ctx context.Context, principal, other domain.Principal, strict bool) (*domain.Conversation, bool, error) {
	if principal.Equal(other) {
		return nil, false, errmap.ToApp(domain.ErrSelfConversation)
	}
	if s.profiles != nil {
		if _, err := s.profiles.GetProfile(ctx, other); err != nil {
			return nil, false, errmap.ToApp(err)
		}
	}

	conv, created, err := s.store.GetOrCreateDirectConversation(ctx, principal, other)
	if err != nil {
		return nil, false, errmap.ToApp(err)
	}
	if strict && !created {
		return nil, false, errmap.ToApp(domain.ErrDuplicateConversation)
	}

	if created {
		logger.FromContext(ctx).Info("Conversation created",
			zap.Int64("conversation_id", conv.ID),
			zap.String("principal", principal.String()),
			zap.String("participant", other.String()))
	}
	return conv, created, nil
}

// Get returns a conversation to one of its participants
func (s *Service) Get(ctx context.Context, principal domain.Principal, conversationID int64) (*domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, errmap.ToApp(err)
	}
	if !conv.HasParticipant(principal) {
		return nil, errmap.ToApp(domain.ErrNotParticipant)
	}
	return conv, nil
}

// Delete removes the conversation with every participant and message
func (s *Service) Delete(ctx context.Context, principal domain.Principal, conversationID int64) error {
	if err := s.store.DeleteConversation(ctx, conversationID, principal); err != nil {
		return errmap.ToApp(err)
	}
	logger.FromContext(ctx).Info("Conversation deleted",
		zap.Int64("conversation_id", conversationID),
		zap.String("principal", principal.String()))
	return nil
}

// ListRecent returns the principal's conversations, most recently active first
func (s *Service) ListRecent(ctx context.Context, principal domain.Principal, params *pagination.Params) ([]*domain.ConversationSummary, error) {
	summaries, err := s.store.ListRecentConversations(ctx, principal, params.Offset, params.PerPage)
	if err != nil {
		return nil, errmap.ToApp(err)
	}
	if err := s.hydrate(ctx, summaries); err != nil {
		return nil, errmap.ToApp(err)
	}
	return summaries, nil
}

// AuthorizeJoin checks principal may subscribe to the conversation room and
// returns the newest seq so the room knows where ordering starts
func (s *Service) AuthorizeJoin(ctx context.Context, principal domain.Principal, conversationID int64) (int64, error) {
	conv, err := s.Get(ctx, principal, conversationID)
	if err != nil {
		return 0, err
	}
	return conv.MessageSeq, nil
}

func counterpart(id int64, rawType string) (domain.Principal, error) {
	if id <= 0 {
		return domain.Principal{}, apperrors.ValidationError("participant_id must be positive")
	}
	kind := domain.PrincipalUser
	if rawType != "" {
		var err error
		if kind, err = domain.ParsePrincipalKind(rawType); err != nil {
			return domain.Principal{}, err
		}
	}
	return domain.Principal{Kind: kind, ID: id}, nil
}

// hydrate fills the counterpart and last-sender snapshots of each summary
func (s *Service) hydrate(ctx context.Context, summaries []*domain.ConversationSummary) error {
	if s.profiles == nil || len(summaries) == 0 {
		return nil
	}

	var principals []domain.Principal
	seen := make(map[domain.Principal]struct{})
	add := func(p domain.Principal) {
		if _, ok := seen[p]; !ok && p.ID > 0 {
			seen[p] = struct{}{}
			principals = append(principals, p)
		}
	}
	for _, summary := range summaries {
		add(summary.Other)
		if summary.LastMessage != nil {
			add(summary.LastMessage.SenderPrincipal())
		}
	}

	var mu sync.Mutex
	snapshots := make(map[domain.Principal]*domain.ProfileSnapshot, len(principals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, p := range principals {
		p := p
		g.Go(func() error {
			profile, err := s.profiles.GetProfile(gctx, p)
			switch {
			case err == nil:
				mu.Lock()
				snapshots[p] = profile.Snapshot()
				mu.Unlock()
			case errors.Is(err, domain.ErrProfileNotFound):
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				logger.FromContext(ctx).Warn("Failed to load participant profile",
					zap.String("principal", p.String()),
					zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, summary := range summaries {
		summary.OtherParticipant = snapshots[summary.Other]
		if summary.LastMessage != nil {
			summary.LastMessage.Sender = snapshots[summary.LastMessage.SenderPrincipal()]
		}
	}
	return nil
}
