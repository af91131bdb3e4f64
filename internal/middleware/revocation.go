package middleware

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"socialhub-backend/pkg/jwt"
)

// RedisRevocationChecker implements RevocationChecker using Redis
type RedisRevocationChecker struct {
	client *redis.Client
}

// NewRedisRevocationChecker creates a new RedisRevocationChecker
func NewRedisRevocationChecker(client *redis.Client) *RedisRevocationChecker {
	return &RedisRevocationChecker{client: client}
}

// IsTokenRevoked checks if the token's jti is in the Redis blacklist
func (c *RedisRevocationChecker) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	claims, err := jwt.ParseUnverified(tokenString)
	if err != nil {
		return false, err
	}
	if claims.ID == "" {
		return false, nil
	}

	exists, err := c.client.Exists(ctx, "blacklist:"+claims.ID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist in redis: %w", err)
	}

	return exists > 0, nil
}
