package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"socialhub-backend/pkg/logger"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerHalfOpen
	CircuitBreakerOpen
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxFailures  int
	Timeout      time.Duration
	ResetTimeout time.Duration
}

func defaultBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:  5,
		Timeout:      60 * time.Second,
		ResetTimeout: 30 * time.Second,
	}
}

// MinioConfig holds MinIO connection settings
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // base URL objects are served from, without the bucket
}

// MinioClient wraps MinIO client with a circuit breaker
type MinioClient struct {
	client    *minio.Client
	bucket    string
	publicURL string
	config    *CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	lastFailure time.Time
}

// NewMinioClient creates a new MinIO client with resilience features
func NewMinioClient(cfg MinioConfig) (*MinioClient, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinioClient{
		client:    minioClient,
		bucket:    cfg.Bucket,
		publicURL: publicURL,
		config:    defaultBreakerConfig(),
		state:     CircuitBreakerClosed,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (c *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Put uploads an object and returns its public URL
func (c *MinioClient) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	err := c.call(func() error {
		_, err := c.client.PutObject(uploadCtx, c.bucket, key, body, size, minio.PutObjectOptions{
			ContentType: contentType,
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	return c.publicURL + "/" + key, nil
}

// Delete removes an object
func (c *MinioClient) Delete(ctx context.Context, key string) error {
	deleteCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	err := c.call(func() error {
		return c.client.RemoveObject(deleteCtx, c.bucket, key, minio.RemoveObjectOptions{})
	})
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// call runs op through the breaker. After ResetTimeout an open breaker lets
// one trial call through in the half-open state.
func (c *MinioClient) call(op func() error) error {
	c.mu.Lock()
	if c.state == CircuitBreakerOpen {
		if time.Since(c.lastFailure) < c.config.ResetTimeout {
			c.mu.Unlock()
			return ErrCircuitOpen
		}
		c.state = CircuitBreakerHalfOpen
	}
	c.mu.Unlock()

	err := op()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.failures = 0
		c.state = CircuitBreakerClosed
		c.lastFailure = time.Time{}
		return nil
	}

	c.failures++
	c.lastFailure = time.Now()
	logger.Warn("MinIO operation failed",
		zap.Int("failures", c.failures),
		zap.Error(err))

	if c.state == CircuitBreakerHalfOpen || c.failures >= c.config.MaxFailures {
		c.state = CircuitBreakerOpen
		logger.Error("MinIO circuit breaker opened", zap.Int("failures", c.failures))
	}
	return err
}
