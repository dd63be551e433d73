package blobstore

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// BlobStore is the key-addressed byte storage the ingest gateway writes to.
// Put overwrites any existing object under the same key.
type BlobStore interface {
	Put(ctx context.Context, key string, payload []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// ValidateKey rejects keys that could escape a backend root or are not
// slash-separated relative paths.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("blob key must be a relative slash path")
	}
	if clean := path.Clean(key); clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}
