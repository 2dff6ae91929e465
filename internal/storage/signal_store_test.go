package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/token-analytics/internal/errors"
	"github.com/token-analytics/internal/types"
)

func TestRedisSignalStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisSignalStore(NewRedisDBFromClient(client), 2*time.Hour)
	ctx := context.Background()

	_, err := store.LatestSignal(ctx, tokenA)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	sig := &types.AISignal{
		TokenAddress: tokenA,
		Timestamp:    1_700_000_000_000,
		Signal:       types.Signal{Recommendation: types.RecommendationStrongBuy, Confidence: 0.7, Score: 70},
	}
	require.NoError(t, store.StoreSignal(ctx, sig))

	assert.True(t, mr.Exists("ai_signal:0x6982508145454ce325ddbe47a25d4ec3d2311933:1700000000000"))
	ttl := mr.TTL("ai_signal:0x6982508145454ce325ddbe47a25d4ec3d2311933:1700000000000")
	assert.Equal(t, 2*time.Hour, ttl)

	got, err := store.LatestSignal(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, types.RecommendationStrongBuy, got.Signal.Recommendation)

	require.NoError(t, store.StoreSentiment(ctx, tokenA, 0.5))
	s, err := store.Sentiment(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, 0.5, s)

	mr.FastForward(2*time.Hour + time.Second)
	_, err = store.LatestSignal(ctx, tokenA)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = store.Sentiment(ctx, tokenA)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMemorySignalStore(t *testing.T) {
	store := NewMemorySignalStore()
	ctx := context.Background()

	_, err := store.Sentiment(ctx, tokenB)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, store.StoreSignal(ctx, &types.AISignal{TokenAddress: tokenB, Timestamp: 1}))
	require.NoError(t, store.StoreSignal(ctx, &types.AISignal{TokenAddress: tokenB, Timestamp: 2}))

	got, err := store.LatestSignal(ctx, tokenB)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Timestamp)
}
