package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialhub-backend/internal/domain"
	"socialhub-backend/pkg/jwt"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/response"
)

// PrincipalKey is the gin context key holding the authenticated domain.Principal
const PrincipalKey = "principal"

// RevocationChecker defines interface for checking if a token is revoked (blacklisted)
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
}

// AuthOptions tunes token extraction
type AuthOptions struct {
	// AllowQueryToken accepts ?access_token= when no Authorization header is
	// sent. Browsers cannot set headers on websocket upgrades.
	AllowQueryToken bool
}

// AuthMiddleware validates the bearer token and stores the principal in the
// gin context. revocationChecker may be nil.
func AuthMiddleware(jwtManager *jwt.JWTManager, revocationChecker RevocationChecker, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c, opts)
		if !ok {
			response.Unauthorized(c, "Authorization header required")
			return
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			return
		}

		kind, err := domain.ParsePrincipalKind(claims.PrincipalType)
		if err != nil {
			response.Unauthorized(c, "Invalid token principal")
			return
		}

		if revocationChecker != nil {
			revoked, err := revocationChecker.IsTokenRevoked(c.Request.Context(), tokenString)
			if err != nil {
				// Fail-open: the signature is already verified
				logger.Warn("Token revocation check failed", zap.Error(err))
			} else if revoked {
				response.Unauthorized(c, "Token revoked")
				return
			}
		}

		c.Set(PrincipalKey, domain.Principal{Kind: kind, ID: claims.PrincipalID})
		c.Next()
	}
}

func bearerToken(c *gin.Context, opts AuthOptions) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if opts.AllowQueryToken {
		if token := c.Query("access_token"); token != "" {
			return token, true
		}
	}
	return "", false
}

// GetPrincipal returns the principal stored by AuthMiddleware
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}
