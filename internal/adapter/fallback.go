package adapter

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/token-analytics/internal/types"
)

// FallbackSource produces synthetic market data that is reproducible for a given
// token and clock. It never fails.
type FallbackSource struct {
	now func() time.Time
}

// NewFallbackSource creates a fallback source on the wall clock
func NewFallbackSource() *FallbackSource {
	return NewFallbackSourceWithClock(time.Now)
}

// NewFallbackSourceWithClock creates a fallback source with an injected clock
func NewFallbackSourceWithClock(now func() time.Time) *FallbackSource {
	return &FallbackSource{now: now}
}

// rng returns a generator seeded from the token address and the data kind
func (f *FallbackSource) rng(token, kind string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.ToLower(token)))
	_, _ = h.Write([]byte(kind))
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) // #nosec G404 - synthetic data, not security sensitive
}

func (f *FallbackSource) GetPrice(ctx context.Context, token string) (float64, error) {
	return DefaultPrice, nil
}

func (f *FallbackSource) GetSupply(ctx context.Context, token string, decimals int) (float64, error) {
	return DefaultSupply, nil
}

// GetRecentTrades returns MaxTrades trades spread evenly across window, oldest first
func (f *FallbackSource) GetRecentTrades(ctx context.Context, token string, window time.Duration) ([]types.Trade, error) {
	if window <= 0 {
		window = DefaultTradeWindow
	}

	r := f.rng(token, "trades")
	nowMs := f.now().UnixMilli()
	step := window.Milliseconds() / (MaxTrades + 1)

	trades := make([]types.Trade, MaxTrades)
	for i := range trades {
		tradeType := types.TradeBuy
		if r.IntN(2) == 1 {
			tradeType = types.TradeSell
		}
		trades[i] = types.Trade{
			ID:           fmt.Sprintf("fallback:%s:%d", strings.ToLower(token), i),
			TokenAddress: token,
			Type:         tradeType,
			Price:        DefaultPrice * (0.9 + 0.2*r.Float64()),
			Volume:       r.Float64() * 1000,
			Timestamp:    nowMs - step*int64(MaxTrades-i),
			HoldingTime:  r.Int64N(time.Hour.Milliseconds()),
		}
	}
	return trades, nil
}

// GetHolders returns MaxHolders synthetic holders ranked by balance
func (f *FallbackSource) GetHolders(ctx context.Context, token string) ([]types.Holder, error) {
	r := f.rng(token, "holders")

	holders := make([]types.Holder, MaxHolders)
	for i := range holders {
		holders[i] = types.Holder{
			Address: fmt.Sprintf("0x%040x", i),
			Balance: r.Float64() * 1_000_000,
		}
	}

	sort.SliceStable(holders, func(i, j int) bool { return holders[i].Balance > holders[j].Balance })
	return holders, nil
}
