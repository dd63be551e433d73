package blobstore

import (
	"context"
	"time"
)

// Observer captures telemetry for blob store operations.
type Observer interface {
	RecordPut(duration time.Duration, sizeBytes int, err error)
	RecordGet(duration time.Duration, err error)
}

// InstrumentedStore reports every call on the wrapped store to an Observer.
type InstrumentedStore struct {
	delegate BlobStore
	observer Observer
}

// NewInstrumentedStore wraps delegate; a nil observer records nothing.
func NewInstrumentedStore(delegate BlobStore, observer Observer) *InstrumentedStore {
	if observer == nil {
		observer = nopObserver{}
	}
	return &InstrumentedStore{delegate: delegate, observer: observer}
}

func (s *InstrumentedStore) Put(ctx context.Context, key string, payload []byte) error {
	start := time.Now()
	err := s.delegate.Put(ctx, key, payload)
	s.observer.RecordPut(time.Since(start), len(payload), err)
	return err
}

func (s *InstrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.delegate.Get(ctx, key)
	s.observer.RecordGet(time.Since(start), err)
	return data, err
}

type nopObserver struct{}

func (nopObserver) RecordPut(time.Duration, int, error) {}

func (nopObserver) RecordGet(time.Duration, error) {}

var (
	_ BlobStore = (*InstrumentedStore)(nil)
	_ BlobStore = (*LocalStore)(nil)
	_ BlobStore = (*S3Store)(nil)
	_ BlobStore = (*MemoryStore)(nil)
)
