package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentLock_AcquireAndRelease(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	lock := NewDocumentLock(client, "doc-1", nil, WithWatchdog(false))
	require.NoError(t, lock.Lock(ctx))
	assert.True(t, mr.Exists("labx:lock:document:doc-1"))

	require.NoError(t, lock.Unlock(ctx))
	assert.False(t, mr.Exists("labx:lock:document:doc-1"))
}

func TestDocumentLock_Contention(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	first := NewDocumentLock(client, "doc-1", nil, WithWatchdog(false))
	second := NewDocumentLock(client, "doc-1", nil,
		WithWatchdog(false), WithRetryCount(2), WithRetryDelay(time.Millisecond))

	require.NoError(t, first.Lock(ctx))

	ok, err := second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, ErrLockNotAcquired, second.Lock(ctx))

	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, second.Lock(ctx))
}

func TestDocumentLock_UnlockByNonHolder(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	holder := NewDocumentLock(client, "doc-1", nil, WithWatchdog(false))
	other := NewDocumentLock(client, "doc-1", nil, WithWatchdog(false))

	require.NoError(t, holder.Lock(ctx))
	assert.Equal(t, ErrLockNotHeld, other.Unlock(ctx))

	// The holder's token still releases.
	assert.NoError(t, holder.Unlock(ctx))
}

func TestDocumentLock_ExtendOnlyWhileHeld(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	lock := NewDocumentLock(client, "doc-1", nil,
		WithWatchdog(false), WithLockTTL(time.Second))
	require.NoError(t, lock.Lock(ctx))

	ok, err := lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, mr.TTL("labx:lock:document:doc-1"), time.Second)

	mr.FastForward(2 * time.Minute)

	ok, err = lock.Extend(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocumentLock_ExpiryFreesDocument(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	crashed := NewDocumentLock(client, "doc-1", nil,
		WithWatchdog(false), WithLockTTL(time.Second))
	require.NoError(t, crashed.Lock(ctx))

	mr.FastForward(2 * time.Second)

	next := NewDocumentLock(client, "doc-1", nil, WithWatchdog(false))
	ok, err := next.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDocumentLock_WatchdogStopsOnUnlock(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	lock := NewDocumentLock(client, "doc-1", nil)
	require.NoError(t, lock.Lock(ctx))

	// Unlock joins the watchdog goroutine; a hang here fails the test by
	// timeout.
	require.NoError(t, lock.Unlock(ctx))
}
