package blobstore

import (
	"context"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

const (
	defaultAttemptTimeout  = 30 * time.Second
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxElapsed      = 10 * time.Second
)

// RetryingStore bounds each attempt with a timeout and retries transient
// failures with exponential backoff. Permanent failures (auth, access,
// missing object, bad key) return immediately.
type RetryingStore struct {
	delegate       BlobStore
	attemptTimeout time.Duration
	buildBackoff   func() backoff.BackOff
}

// RetryOptions configures a RetryingStore.
type RetryOptions struct {
	AttemptTimeout time.Duration
	MaxRetries     int
	// Backoff overrides the default exponential policy; MaxRetries still applies.
	Backoff func() backoff.BackOff
}

// NewRetryingStore wraps delegate.
func NewRetryingStore(delegate BlobStore, opts RetryOptions) *RetryingStore {
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	factory := opts.Backoff
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = defaultInitialInterval
			b.MaxElapsedTime = defaultMaxElapsed
			return b
		}
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingStore{
		delegate:       delegate,
		attemptTimeout: timeout,
		buildBackoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(factory(), uint64(maxRetries))
		},
	}
}

func (r *RetryingStore) Put(ctx context.Context, key string, payload []byte) error {
	return r.retry(ctx, func(attemptCtx context.Context) error {
		return r.delegate.Put(attemptCtx, key, payload)
	})
}

func (r *RetryingStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.retry(ctx, func(attemptCtx context.Context) error {
		got, err := r.delegate.Get(attemptCtx, key)
		if err != nil {
			return err
		}
		data = got
		return nil
	})
	return data, err
}

func (r *RetryingStore) retry(ctx context.Context, fn func(context.Context) error) error {
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		defer cancel()
		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithContext(r.buildBackoff(), ctx))
}

var _ BlobStore = (*RetryingStore)(nil)
