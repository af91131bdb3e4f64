package storage

import (
	"context"
	"fmt"
)

// Backend names accepted by MEDIA_BACKEND
const (
	BackendMinio  = "minio"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// Config selects and configures the object store backend
type Config struct {
	Backend   string
	Minio     MinioConfig
	S3        S3Config
	PublicURL string // used by the memory backend
}

// NewObjectStore builds the configured backend. MinIO buckets are created on start.
func NewObjectStore(ctx context.Context, cfg Config) (ObjectStore, error) {
	switch cfg.Backend {
	case BackendMinio, "":
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return client, nil
	case BackendS3:
		return NewS3Store(cfg.S3)
	case BackendMemory:
		return NewMemoryStore(cfg.PublicURL), nil
	default:
		return nil, fmt.Errorf("unsupported media backend: %s", cfg.Backend)
	}
}
