package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"socialhub-backend/internal/domain"
	"socialhub-backend/pkg/logger"
)

// ProfileSource is the authoritative profile lookup
type ProfileSource interface {
	GetProfile(ctx context.Context, principal domain.Principal) (*domain.Profile, error)
}

// ProfileCache is a read-through Redis cache in front of a ProfileSource.
// Redis failures fall back to the source.
type ProfileCache struct {
	client *redis.Client
	source ProfileSource
	ttl    time.Duration
}

// NewProfileCache creates a new profile cache
func NewProfileCache(client *redis.Client, source ProfileSource, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, source: source, ttl: ttl}
}

type cachedProfile struct {
	Name      string `json:"name"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
	PushToken string `json:"push_token,omitempty"`
}

func profileKey(principal domain.Principal) string {
	// Key format: profile:{kind}:{id}
	return fmt.Sprintf("profile:%s:%d", principal.Kind, principal.ID)
}

// GetProfile returns the cached profile or loads and caches it
func (c *ProfileCache) GetProfile(ctx context.Context, principal domain.Principal) (*domain.Profile, error) {
	key := profileKey(principal)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedProfile
		if err := json.Unmarshal(data, &cached); err == nil {
			return &domain.Profile{
				Principal: principal,
				Name:      cached.Name,
				Username:  cached.Username,
				AvatarURL: cached.AvatarURL,
				PushToken: cached.PushToken,
			}, nil
		}
		logger.Warn("Discarding corrupt profile cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		logger.Warn("Profile cache unavailable, reading through",
			zap.String("key", key),
			zap.Error(err))
	}

	profile, err := c.source.GetProfile(ctx, principal)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedProfile{
		Name:      profile.Name,
		Username:  profile.Username,
		AvatarURL: profile.AvatarURL,
		PushToken: profile.PushToken,
	})
	if err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			logger.Warn("Failed to cache profile", zap.String("key", key), zap.Error(err))
		}
	}

	return profile, nil
}

// Invalidate drops a cached profile, e.g. after the push token changes
func (c *ProfileCache) Invalidate(ctx context.Context, principal domain.Principal) error {
	if err := c.client.Del(ctx, profileKey(principal)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate profile: %w", err)
	}
	return nil
}
