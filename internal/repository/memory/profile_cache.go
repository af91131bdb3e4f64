package memory

import (
	"context"
	"time"

	"socialhub-backend/internal/domain"
	"socialhub-backend/pkg/cache"
)

// ProfileSource is the authoritative profile lookup
type ProfileSource interface {
	GetProfile(ctx context.Context, principal domain.Principal) (*domain.Profile, error)
}

// ProfileCache keeps recently used profiles in process memory. It fronts the
// profile tables when Redis is disabled.
type ProfileCache struct {
	source  ProfileSource
	entries *cache.MemoryCache[domain.Profile]
	stop    func()
}

// NewProfileCache caches up to maxSize profiles for ttl each
func NewProfileCache(source ProfileSource, ttl time.Duration, maxSize int) *ProfileCache {
	entries := cache.NewMemoryCache[domain.Profile](ttl, maxSize)
	return &ProfileCache{
		source:  source,
		entries: entries,
		stop:    entries.StartCleanup(ttl),
	}
}

// GetProfile returns a cached copy or loads the profile from the source
func (c *ProfileCache) GetProfile(ctx context.Context, principal domain.Principal) (*domain.Profile, error) {
	key := principal.String()
	if p, ok := c.entries.Get(key); ok {
		return &p, nil
	}

	profile, err := c.source.GetProfile(ctx, principal)
	if err != nil {
		return nil, err
	}
	c.entries.Set(key, *profile, 0)
	return profile, nil
}

// Invalidate drops a cached profile
func (c *ProfileCache) Invalidate(principal domain.Principal) {
	c.entries.Delete(principal.String())
}

// Close stops the expiry sweeper
func (c *ProfileCache) Close() {
	c.stop()
}
