package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ObjectStore places blobs and returns the URL clients fetch them from
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps objects in process memory. Used for local runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	publicURL string
	objects   map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore creates an empty in-memory object store
func NewMemoryStore(publicURL string) *MemoryStore {
	return &MemoryStore{
		publicURL: strings.TrimRight(publicURL, "/"),
		objects:   make(map[string]memoryObject),
	}
}

// Put stores the whole body under key
func (s *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("reading object body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("object size mismatch: declared %d, read %d", size, len(data))
	}

	s.mu.Lock()
	s.objects[key] = memoryObject{data: data, contentType: contentType}
	s.mu.Unlock()

	return s.publicURL + "/" + key, nil
}

// Delete removes key
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Get returns the bytes and content type stored under key
func (s *MemoryStore) Get(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(obj.data), obj.contentType, true
}

// GetByURL resolves a URL returned by Put back to its bytes
func (s *MemoryStore) GetByURL(url string) ([]byte, string, bool) {
	key, ok := strings.CutPrefix(url, s.publicURL+"/")
	if !ok {
		return nil, "", false
	}
	return s.Get(key)
}
