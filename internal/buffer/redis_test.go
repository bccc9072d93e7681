package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisFactory(t *testing.T, opts ...Option) (*RedisFactory, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisFactoryFromClient(client, opts...), srv
}

func TestRedisBufferPutSnapshotClear(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestRedisFactory(t)
	buf := f.ForTurn("conv-1:c1")

	replaced, err := buf.Put(ctx, "savedOrderRequestId", 7)
	require.NoError(t, err)
	assert.False(t, replaced)

	replaced, err = buf.Put(ctx, "savedOrderRequestId", 9)
	require.NoError(t, err)
	assert.True(t, replaced)

	_, err = buf.Put(ctx, "annotationId", 3)
	require.NoError(t, err)

	snap, err := buf.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"savedOrderRequestId": float64(9),
		"annotationId":        float64(3),
	}, snap)

	require.NoError(t, buf.Clear(ctx))
	snap, err = buf.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestRedisBufferAppendAccumulates(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestRedisFactory(t)
	buf := f.ForTurn("conv-1:c1")

	require.NoError(t, buf.Append(ctx, "documentAnnotations", []any{
		map[string]any{"annotationId": float64(1), "documentRef": "doc-1"},
	}))
	require.NoError(t, buf.Append(ctx, "documentAnnotations", []any{
		map[string]any{"annotationId": float64(2), "documentRef": "doc-2"},
	}))

	snap, err := buf.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"annotationId": float64(1), "documentRef": "doc-1"},
		map[string]any{"annotationId": float64(2), "documentRef": "doc-2"},
	}, snap["documentAnnotations"])
}

func TestRedisBufferStagesStructuredValues(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestRedisFactory(t)
	buf := f.ForTurn("conv-1:c1")

	_, err := buf.Put(ctx, "orderReport", map[string]any{"title": "Order summary", "lineCount": float64(2)})
	require.NoError(t, err)

	snap, err := buf.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Order summary", "lineCount": float64(2)}, snap["orderReport"])
}

func TestRedisBufferExpiresAbandonedTurn(t *testing.T) {
	ctx := context.Background()
	f, srv := newTestRedisFactory(t, WithPrefix("tg:turn:"), WithTTL(time.Minute))
	buf := f.ForTurn("conv-1:c1")

	_, err := buf.Put(ctx, "savedOrderRequestId", 7)
	require.NoError(t, err)

	ttl := srv.TTL("tg:turn:conv-1:c1")
	assert.Equal(t, time.Minute, ttl)

	// A crash mid-turn never clears the buffer; expiry does.
	srv.FastForward(2 * time.Minute)
	snap, err := buf.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestRedisFactoryIsolatesTurns(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestRedisFactory(t)

	a := f.ForTurn("conv-1:c1")
	b := f.ForTurn("conv-2:c9")
	_, err := a.Put(ctx, "k", "v")
	require.NoError(t, err)

	snap, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap)
}
