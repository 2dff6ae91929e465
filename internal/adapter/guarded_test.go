package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/token-analytics/internal/cache"
	"github.com/token-analytics/internal/circuitbreaker"
	"github.com/token-analytics/internal/types"
)

const tokenAddr = "0x6982508145454ce325ddbe47a25d4ec3d2311933"

// stubSource is a MarketDataSource driven by test functions
type stubSource struct {
	calls   atomic.Int64
	price   func(ctx context.Context) (float64, error)
	trades  func(ctx context.Context) ([]types.Trade, error)
	holders func(ctx context.Context) ([]types.Holder, error)
}

func (s *stubSource) GetPrice(ctx context.Context, token string) (float64, error) {
	s.calls.Add(1)
	return s.price(ctx)
}

func (s *stubSource) GetSupply(ctx context.Context, token string, decimals int) (float64, error) {
	s.calls.Add(1)
	return 0, errors.New("supply unavailable")
}

func (s *stubSource) GetRecentTrades(ctx context.Context, token string, window time.Duration) ([]types.Trade, error) {
	s.calls.Add(1)
	return s.trades(ctx)
}

func (s *stubSource) GetHolders(ctx context.Context, token string) ([]types.Holder, error) {
	s.calls.Add(1)
	return s.holders(ctx)
}

var errRPC = errors.New("rpc down")

func TestGuardedSource_DefaultsWhenNothingCached(t *testing.T) {
	primary := &stubSource{
		price:   func(context.Context) (float64, error) { return 0, errRPC },
		holders: func(context.Context) ([]types.Holder, error) { return nil, errRPC },
	}
	g := NewGuardedSource(primary, NewFallbackSource(), nil, DefaultGuardedConfig())
	ctx := context.Background()

	price, err := g.GetPrice(ctx, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, DefaultPrice, price)

	supply, err := g.GetSupply(ctx, tokenAddr, 18)
	require.NoError(t, err)
	assert.Equal(t, DefaultSupply, supply)

	holders, err := g.GetHolders(ctx, tokenAddr)
	require.NoError(t, err)
	assert.Len(t, holders, MaxHolders)
}

func TestGuardedSource_StaleValueAfterExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }

	fail := atomic.Bool{}
	primary := &stubSource{
		price: func(context.Context) (float64, error) {
			if fail.Load() {
				return 0, errRPC
			}
			return 0.5, nil
		},
	}
	g := NewGuardedSource(primary, NewFallbackSource(), nil, DefaultGuardedConfig(), cache.WithClock(clock))
	ctx := context.Background()

	price, _ := g.GetPrice(ctx, tokenAddr)
	assert.Equal(t, 0.5, price)

	// Served from cache without an upstream call
	price, _ = g.GetPrice(ctx, tokenAddr)
	assert.Equal(t, 0.5, price)
	assert.Equal(t, int64(1), primary.calls.Load())

	mu.Lock()
	now = now.Add(61 * time.Second)
	mu.Unlock()
	fail.Store(true)

	price, _ = g.GetPrice(ctx, tokenAddr)
	assert.Equal(t, 0.5, price)
	assert.Equal(t, int64(2), primary.calls.Load())
}

func TestGuardedSource_Timeout(t *testing.T) {
	primary := &stubSource{
		trades: func(ctx context.Context) ([]types.Trade, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	cfg := DefaultGuardedConfig()
	cfg.Timeout = 20 * time.Millisecond
	g := NewGuardedSource(primary, NewFallbackSource(), nil, cfg)

	start := time.Now()
	trades, err := g.GetRecentTrades(context.Background(), tokenAddr, time.Hour)
	require.NoError(t, err)
	assert.Len(t, trades, MaxTrades)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuardedSource_BreakerStopsUpstreamCalls(t *testing.T) {
	primary := &stubSource{
		price: func(context.Context) (float64, error) { return 0, errRPC },
	}
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "test", MaxFailures: 1, Timeout: time.Minute})
	g := NewGuardedSource(primary, NewFallbackSource(), breaker, DefaultGuardedConfig())
	ctx := context.Background()

	_, _ = g.GetPrice(ctx, tokenAddr)
	price, _ := g.GetPrice(ctx, "0x95ad61b0a150d79219dcf64e1e6cc01f0b64c4ce")

	assert.Equal(t, DefaultPrice, price)
	assert.Equal(t, int64(1), primary.calls.Load())
	require.NotNil(t, g.BreakerStats())
	assert.Equal(t, circuitbreaker.StateOpen, g.BreakerStats().State)
}

func TestGuardedSource_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	primary := &stubSource{
		holders: func(context.Context) ([]types.Holder, error) {
			<-release
			return []types.Holder{{Address: "0xa", Balance: 10}}, nil
		},
	}
	g := NewGuardedSource(primary, NewFallbackSource(), nil, DefaultGuardedConfig())

	var wg sync.WaitGroup
	results := make([][]types.Holder, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = g.GetHolders(context.Background(), tokenAddr)
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), primary.calls.Load())
	for _, r := range results {
		require.Len(t, r, 1)
		assert.Equal(t, "0xa", r[0].Address)
	}
}

func TestGuardedSource_CacheStats(t *testing.T) {
	g := NewGuardedSource(NewFallbackSource(), NewFallbackSource(), nil, DefaultGuardedConfig())
	_, _ = g.GetPrice(context.Background(), tokenAddr)

	stats := g.CacheStats()
	require.Len(t, stats, 4)
	assert.Equal(t, "prices", stats[0].Name)
	assert.Equal(t, int64(1), stats[0].Loads)
	assert.Nil(t, g.BreakerStats())
}
