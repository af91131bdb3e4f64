package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	apperrors "socialhub-backend/pkg/errors"
	"socialhub-backend/pkg/logger"
	"socialhub-backend/pkg/metrics"
	"socialhub-backend/pkg/response"
)

// PoolStatter exposes connection pool statistics
type PoolStatter interface {
	Stats() *pgxpool.Stat
}

// DBPoolGuard sheds requests with 503 while the connection pool is saturated
type DBPoolGuard struct {
	pool      PoolStatter
	metrics   *metrics.Metrics
	threshold float64
}

// NewDBPoolGuard rejects requests once acquired/max reaches threshold (0..1]
func NewDBPoolGuard(pool PoolStatter, m *metrics.Metrics, threshold float64) *DBPoolGuard {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.95
	}
	return &DBPoolGuard{pool: pool, metrics: m, threshold: threshold}
}

// Middleware returns a Gin middleware for database connection pool protection
func (g *DBPoolGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := g.pool.Stats()
		acquired := stats.AcquiredConns()
		idle := stats.IdleConns()
		if g.metrics != nil {
			g.metrics.SetDBConnections(int(acquired), int(idle))
		}

		if maxConns := stats.MaxConns(); maxConns > 0 && float64(acquired)/float64(maxConns) >= g.threshold {
			logger.Warn("Database connection pool saturated",
				zap.Int32("max_conns", maxConns),
				zap.Int32("acquired_conns", acquired))
			shed := apperrors.ServiceUnavailableError("Service temporarily unavailable")
			response.Error(c, shed.StatusCode, shed.Code, shed.Message)
			return
		}

		c.Next()
	}
}
