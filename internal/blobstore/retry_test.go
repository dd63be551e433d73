package blobstore

import (
	"context"
	"fmt"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	failures int32
	failWith error
	calls    atomic.Int32
	inner    *MemoryStore
	block    bool
}

func (f *flakyStore) Put(ctx context.Context, key string, payload []byte) error {
	n := f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if n <= f.failures {
		return WrapError("put", key, f.failWith)
	}
	return f.inner.Put(ctx, key, payload)
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, WrapError("get", key, f.failWith)
	}
	return f.inner.Get(ctx, key)
}

func zeroBackoff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestRetryingStoreRecoversFromTransientErrors(t *testing.T) {
	inner := &flakyStore{failures: 2, failWith: &smithy.GenericAPIError{Code: "SlowDown"}, inner: NewMemoryStore()}
	st := NewRetryingStore(inner, RetryOptions{MaxRetries: 3, Backoff: zeroBackoff})

	require.NoError(t, st.Put(context.Background(), "product.xlsx", []byte("x")))
	assert.Equal(t, int32(3), inner.calls.Load())

	inner.calls.Store(0)
	got, err := st.Get(context.Background(), "product.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "x", string(got))
}

func TestRetryingStoreGivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyStore{failures: 10, failWith: fmt.Errorf("write: %w", syscall.ECONNRESET), inner: NewMemoryStore()}
	st := NewRetryingStore(inner, RetryOptions{MaxRetries: 2, Backoff: zeroBackoff})

	err := st.Put(context.Background(), "product.xlsx", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestRetryingStoreDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &flakyStore{failures: 10, failWith: &smithy.GenericAPIError{Code: "AccessDenied"}, inner: NewMemoryStore()}
	st := NewRetryingStore(inner, RetryOptions{MaxRetries: 5, Backoff: zeroBackoff})

	err := st.Put(context.Background(), "product.xlsx", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetryingStoreAttemptTimeout(t *testing.T) {
	inner := &flakyStore{block: true, inner: NewMemoryStore()}
	st := NewRetryingStore(inner, RetryOptions{AttemptTimeout: 20 * time.Millisecond, MaxRetries: 1, Backoff: zeroBackoff})

	start := time.Now()
	err := st.Put(context.Background(), "order_detail.xlsx", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "storage error: operation timed out", Reason(WrapError("put", "order_detail.xlsx", err)))
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Less(t, time.Since(start), 5*time.Second)
}
