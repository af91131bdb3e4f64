// Package resilience retries transient failures of outbound calls.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"socialhub-backend/pkg/logger"
)

var retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "resilience_retries_total",
	Help: "Retries of outbound operations by outcome",
}, []string{"operation", "outcome"})

// Policy bounds how often and how fast an operation is retried
type Policy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy makes three attempts, 200ms then 400ms apart
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, the attempts run
// out or ctx is done. The last error is returned unwrapped.
func Do(ctx context.Context, operation string, p Policy, fn func(ctx context.Context) error) error {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	interval := p.InitialInterval

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			if attempt > 1 {
				retriesTotal.WithLabelValues(operation, "recovered").Inc()
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= p.Attempts || ctx.Err() != nil {
			break
		}

		logger.Debug("Retrying operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", interval),
			zap.Error(err))

		select {
		case <-ctx.Done():
			retriesTotal.WithLabelValues(operation, "cancelled").Inc()
			return err
		case <-time.After(interval):
		}

		interval *= 2
		if p.MaxInterval > 0 && interval > p.MaxInterval {
			interval = p.MaxInterval
		}
	}

	retriesTotal.WithLabelValues(operation, "exhausted").Inc()
	return err
}
