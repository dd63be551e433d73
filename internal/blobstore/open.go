package blobstore

import (
	"context"
	"fmt"
	"strings"
)

const (
	BackendS3     = "s3"
	BackendLocal  = "local"
	BackendMemory = "memory"
)

// Config selects and configures one backend.
type Config struct {
	Backend string
	Root    string
	S3      S3Config
	Retry   RetryOptions
}

// Open constructs the configured backend and layers retries and
// instrumentation on top of it.
func Open(ctx context.Context, cfg Config, observer Observer) (BlobStore, error) {
	var base BlobStore
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendS3:
		st, err := NewS3Store(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		base = st
	case BackendLocal:
		st, err := NewLocalStore(cfg.Root)
		if err != nil {
			return nil, err
		}
		base = st
	case BackendMemory:
		base = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	return NewInstrumentedStore(NewRetryingStore(base, cfg.Retry), observer), nil
}
