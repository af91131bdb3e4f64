package env

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// Lookup returns the value of key, or fallback when it is unset or empty
func Lookup(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// Secret resolves key for Docker secrets. When <key>_FILE names a file its
// trimmed contents win; otherwise the variable itself, then fallback.
func Secret(key, fallback string) (string, error) {
	path := os.Getenv(key + "_FILE")
	if path == "" {
		return Lookup(key, fallback), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("reading %s_FILE: %w", key, err)
	}
	return string(bytes.TrimSpace(content)), nil
}
