package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *IdempotencyStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyStore(client, time.Minute)
}

func TestIdempotencyCheckAndInsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "req-1", "checkout"))
	require.ErrorIs(t, store.CheckAndInsert(ctx, "req-1", "checkout"), ErrIdempotencyConflict)

	// Same key for a different module is a distinct claim.
	require.NoError(t, store.CheckAndInsert(ctx, "req-1", "returns"))
}

func TestIdempotencyDeleteReleasesKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "req-2", "checkout"))
	require.NoError(t, store.Delete(ctx, "req-2", "checkout"))
	require.NoError(t, store.CheckAndInsert(ctx, "req-2", "checkout"))
}

func TestIdempotencyValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.Error(t, store.CheckAndInsert(ctx, "", "checkout"))
	require.Error(t, store.CheckAndInsert(ctx, "key", ""))
}
