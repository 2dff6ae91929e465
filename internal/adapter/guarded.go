package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/token-analytics/internal/cache"
	"github.com/token-analytics/internal/circuitbreaker"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/observability"
	"github.com/token-analytics/internal/types"
)

// GuardedConfig controls caching and timeouts of a GuardedSource
type GuardedConfig struct {
	PriceTTL   time.Duration
	SupplyTTL  time.Duration
	TradesTTL  time.Duration
	HoldersTTL time.Duration
	Timeout    time.Duration // Upper bound for one upstream read
}

// DefaultGuardedConfig returns 60s trade and price caching, 300s holder and
// supply caching and a 5s upstream timeout.
func DefaultGuardedConfig() GuardedConfig {
	return GuardedConfig{
		PriceTTL:   60 * time.Second,
		SupplyTTL:  300 * time.Second,
		TradesTTL:  60 * time.Second,
		HoldersTTL: 300 * time.Second,
		Timeout:    5 * time.Second,
	}
}

// GuardedSource wraps a fallible MarketDataSource with caching, a timeout and a
// circuit breaker. A failed read returns the last cached value if there is one,
// otherwise the fallback's value. Its methods never return an error.
type GuardedSource struct {
	primary  MarketDataSource
	fallback MarketDataSource
	breaker  *circuitbreaker.CircuitBreaker
	cfg      GuardedConfig

	prices   *cache.Cache[float64]
	supplies *cache.Cache[float64]
	trades   *cache.Cache[[]types.Trade]
	holders  *cache.Cache[[]types.Holder]
}

// NewGuardedSource creates a GuardedSource. breaker may be nil.
func NewGuardedSource(primary, fallback MarketDataSource, breaker *circuitbreaker.CircuitBreaker, cfg GuardedConfig, opts ...cache.Option) *GuardedSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGuardedConfig().Timeout
	}

	named := func(name string) []cache.Option {
		return append(append([]cache.Option{}, opts...), cache.WithName(name))
	}

	return &GuardedSource{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		cfg:      cfg,
		prices:   cache.New[float64](named("prices")...),
		supplies: cache.New[float64](named("supplies")...),
		trades:   cache.New[[]types.Trade](named("trades")...),
		holders:  cache.New[[]types.Holder](named("holders")...),
	}
}

// guardedRead loads key through c, degrading to the stale value and then to fallback
func guardedRead[V any](ctx context.Context, g *GuardedSource, c *cache.Cache[V], op, key string, ttl time.Duration,
	load func(ctx context.Context) (V, error), fallback func(ctx context.Context) (V, error)) V {

	v, err := c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) (V, error) {
		ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		var out V
		run := func(ctx context.Context) error {
			var err error
			out, err = load(ctx)
			return err
		}
		var err error
		if g.breaker == nil {
			err = run(ctx)
		} else {
			err = g.breaker.Execute(ctx, run)
		}
		return out, err
	})
	if err == nil {
		return v
	}

	logger := logging.FromContext(ctx).WithError(err).WithFields(map[string]interface{}{
		"operation": op,
		"key":       key,
	})

	if stale, ok := c.Stale(key); ok {
		observability.RecordFallback(op, "stale")
		logger.Warn("Market data read failed, using last known value")
		return stale
	}

	observability.RecordFallback(op, "default")
	logger.Warn("Market data read failed, using default value")

	fv, ferr := fallback(ctx)
	if ferr != nil {
		logger.WithError(ferr).Error("Fallback market data read failed")
		var zero V
		return zero
	}
	return fv
}

func (g *GuardedSource) GetPrice(ctx context.Context, token string) (float64, error) {
	token = strings.ToLower(token)
	return guardedRead(ctx, g, g.prices, "price", token, g.cfg.PriceTTL,
		func(ctx context.Context) (float64, error) { return g.primary.GetPrice(ctx, token) },
		func(ctx context.Context) (float64, error) { return g.fallback.GetPrice(ctx, token) },
	), nil
}

func (g *GuardedSource) GetSupply(ctx context.Context, token string, decimals int) (float64, error) {
	token = strings.ToLower(token)
	return guardedRead(ctx, g, g.supplies, "supply", token, g.cfg.SupplyTTL,
		func(ctx context.Context) (float64, error) { return g.primary.GetSupply(ctx, token, decimals) },
		func(ctx context.Context) (float64, error) { return g.fallback.GetSupply(ctx, token, decimals) },
	), nil
}

func (g *GuardedSource) GetRecentTrades(ctx context.Context, token string, window time.Duration) ([]types.Trade, error) {
	token = strings.ToLower(token)
	return guardedRead(ctx, g, g.trades, "trades", token+":"+window.String(), g.cfg.TradesTTL,
		func(ctx context.Context) ([]types.Trade, error) { return g.primary.GetRecentTrades(ctx, token, window) },
		func(ctx context.Context) ([]types.Trade, error) { return g.fallback.GetRecentTrades(ctx, token, window) },
	), nil
}

func (g *GuardedSource) GetHolders(ctx context.Context, token string) ([]types.Holder, error) {
	token = strings.ToLower(token)
	return guardedRead(ctx, g, g.holders, "holders", token, g.cfg.HoldersTTL,
		func(ctx context.Context) ([]types.Holder, error) { return g.primary.GetHolders(ctx, token) },
		func(ctx context.Context) ([]types.Holder, error) { return g.fallback.GetHolders(ctx, token) },
	), nil
}

// CacheStats returns the counters of the per-operation caches
func (g *GuardedSource) CacheStats() []cache.Stats {
	return []cache.Stats{
		g.prices.Stats(),
		g.supplies.Stats(),
		g.trades.Stats(),
		g.holders.Stats(),
	}
}

// BreakerStats returns the circuit breaker counters, or nil without a breaker
func (g *GuardedSource) BreakerStats() *circuitbreaker.Stats {
	if g.breaker == nil {
		return nil
	}
	stats := g.breaker.GetStats()
	return &stats
}

// UpstreamHealth returns the RPC endpoint health when the primary source
// tracks one
func (g *GuardedSource) UpstreamHealth() *ProviderHealth {
	if h, ok := g.primary.(interface{ Health() *ProviderHealth }); ok {
		return h.Health()
	}
	return nil
}
