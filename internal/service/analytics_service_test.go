package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/token-analytics/internal/adapter"
	apperrors "github.com/token-analytics/internal/errors"
	"github.com/token-analytics/internal/models"
	"github.com/token-analytics/internal/signal"
	"github.com/token-analytics/internal/storage"
	"github.com/token-analytics/internal/types"
)

const (
	pepe = "0x6982508145454ce325ddbe47a25d4ec3d2311933"
	shib = "0x95ad61b0a150d79219dcf64e1e6cc01f0b64c4ce"
	dai  = "0x6b175474e89094c44da98b954eedeac495271d0f"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// failingSource fails every read for the tokens in fail
type failingSource struct {
	*adapter.FallbackSource
	fail map[string]bool
}

func (f *failingSource) GetPrice(ctx context.Context, token string) (float64, error) {
	if f.fail[strings.ToLower(token)] {
		return 0, errors.New("rpc unavailable")
	}
	return f.FallbackSource.GetPrice(ctx, token)
}

type stubLister struct {
	calls  atomic.Int64
	tokens []models.TrackedToken
	err    error
}

func (s *stubLister) ListActive(ctx context.Context) ([]models.TrackedToken, error) {
	s.calls.Add(1)
	return s.tokens, s.err
}

type stubArchive struct {
	mu       sync.Mutex
	archived int
	prices   []float64
}

func (a *stubArchive) Archive(ctx context.Context, analyses []*types.Analysis) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived += len(analyses)
	return nil
}

func (a *stubArchive) PriceSeries(ctx context.Context, token string, limit int) ([]float64, error) {
	return a.prices, nil
}

func newTestService(t *testing.T, mutate func(*Config)) *AnalyticsService {
	t.Helper()

	cfg := Config{
		Source:   adapter.NewFallbackSourceWithClock(fixedClock),
		Store:    storage.NewMemoryAnalysisStoreWithClock(time.Hour, fixedClock),
		Signals:  storage.NewMemorySignalStore(),
		Strategy: signal.Basic{},
		Clock:    fixedClock,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	svc, err := NewAnalyticsService(cfg)
	require.NoError(t, err)
	return svc
}

func TestNewAnalyticsService_Validation(t *testing.T) {
	_, err := NewAnalyticsService(Config{})
	assert.Error(t, err)

	_, err = NewAnalyticsService(Config{Source: adapter.NewFallbackSource()})
	assert.Error(t, err)
}

func TestAnalyzeToken(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	a, err := svc.AnalyzeToken(ctx, "0x6982508145454Ce325dDbE47a25d4ec3d2311933")
	require.NoError(t, err)

	assert.Equal(t, pepe, a.TokenAddress)
	assert.Equal(t, "PEPE", a.Symbol)
	assert.Equal(t, testNow.UnixMilli(), a.Timestamp)
	assert.Equal(t, adapter.DefaultPrice, a.Price)
	assert.InDelta(t, adapter.DefaultPrice*adapter.DefaultSupply, a.Metrics.MarketCap, 1e-6)
	assert.Len(t, a.AnalysisID, 36)
	assert.Equal(t, signal.StrategyBasic, a.Signals.Strategy)

	latest, err := svc.Latest(ctx, pepe)
	require.NoError(t, err)
	assert.Equal(t, a.AnalysisID, latest.AnalysisID)
}

func TestAnalyzeToken_InvalidAddress(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.AnalyzeToken(context.Background(), "0xnothex")
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.GetHTTPStatusCode(err))
}

func TestAnalyzeToken_UnknownTokenDefaults(t *testing.T) {
	svc := newTestService(t, nil)

	a, err := svc.AnalyzeToken(context.Background(), "0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Empty(t, a.Symbol)
}

// hangingSource blocks every read until the context ends
type hangingSource struct{}

func (hangingSource) GetPrice(ctx context.Context, token string) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (hangingSource) GetSupply(ctx context.Context, token string, decimals int) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (hangingSource) GetRecentTrades(ctx context.Context, token string, window time.Duration) ([]types.Trade, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingSource) GetHolders(ctx context.Context, token string) ([]types.Holder, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAnalyzeToken_ReadsRunConcurrently(t *testing.T) {
	guardCfg := adapter.DefaultGuardedConfig()
	guardCfg.Timeout = 100 * time.Millisecond
	guarded := adapter.NewGuardedSource(hangingSource{}, adapter.NewFallbackSourceWithClock(fixedClock), nil, guardCfg)
	svc := newTestService(t, func(cfg *Config) { cfg.Source = guarded })

	start := time.Now()
	a, err := svc.AnalyzeToken(context.Background(), pepe)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, pepe, a.TokenAddress)
	// four reads time out together, not one after another
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestAnalyzeToken_TokenDeadline(t *testing.T) {
	svc := newTestService(t, func(cfg *Config) {
		cfg.Source = hangingSource{}
		cfg.TokenTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	_, err := svc.AnalyzeToken(context.Background(), pepe)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, "PROVIDER_TIMEOUT", apperrors.Categorize(err).Code)
	assert.Less(t, elapsed, time.Second)

	_, err = svc.Latest(context.Background(), pepe)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRunPass_TokenDeadlineIsPerToken(t *testing.T) {
	svc := newTestService(t, func(cfg *Config) {
		cfg.Source = hangingSource{}
		cfg.TokenTimeout = 50 * time.Millisecond
		cfg.Workers = 3
	})

	start := time.Now()
	res, err := svc.RunPass(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	require.NotNil(t, res)
	assert.Empty(t, res.Analyses)
	assert.Len(t, res.Failed, 3)
	for _, reason := range res.Failed {
		assert.Contains(t, reason, "PROVIDER_TIMEOUT")
	}
	assert.Less(t, elapsed, time.Second)
}

func TestRunPass_IsolatesFailures(t *testing.T) {
	archive := &stubArchive{}
	svc := newTestService(t, func(cfg *Config) {
		cfg.Source = &failingSource{
			FallbackSource: adapter.NewFallbackSourceWithClock(fixedClock),
			fail:           map[string]bool{shib: true},
		}
		cfg.Archive = archive
		cfg.Workers = 2
	})
	ctx := context.Background()

	res, err := svc.RunPass(ctx)
	require.Error(t, err)
	assert.Equal(t, "1 of 3 tokens failed", err.Error())
	assert.Len(t, res.Analyses, 2)
	assert.Contains(t, res.Failed, shib)
	assert.Equal(t, 2, archive.archived)

	_, err = svc.Latest(ctx, shib)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.Latest(ctx, dai)
	assert.NoError(t, err)

	stats := svc.Status(ctx).Recompute
	assert.Equal(t, int64(1), stats.Passes)
	assert.Equal(t, int64(1), stats.TokenErrors)
	assert.Equal(t, 1, stats.LastFailures)
}

func TestAnalyzeAll_IsIdempotentPerTick(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.AnalyzeAll(ctx))
	first, err := svc.Latest(ctx, dai)
	require.NoError(t, err)

	require.NoError(t, svc.AnalyzeAll(ctx))
	second, err := svc.Latest(ctx, dai)
	require.NoError(t, err)

	assert.Equal(t, first.Metrics, second.Metrics)
	assert.Equal(t, first.Signals, second.Signals)
	assert.NotEqual(t, first.AnalysisID, second.AnalysisID)
}

func TestActiveTokens(t *testing.T) {
	t.Run("registry tokens are cached", func(t *testing.T) {
		lister := &stubLister{tokens: []models.TrackedToken{
			{Address: "0x6982508145454Ce325dDbE47a25d4ec3d2311933", Symbol: "PEPE", Decimals: 18, IsActive: true},
		}}
		svc := newTestService(t, func(cfg *Config) { cfg.Tokens = lister })

		for i := 0; i < 3; i++ {
			tokens, err := svc.ActiveTokens(context.Background())
			require.NoError(t, err)
			require.Len(t, tokens, 1)
			assert.Equal(t, pepe, tokens[0].Address)
		}
		assert.Equal(t, int64(1), lister.calls.Load())
	})

	t.Run("registry failure falls back to defaults", func(t *testing.T) {
		lister := &stubLister{err: errors.New("connection refused")}
		svc := newTestService(t, func(cfg *Config) { cfg.Tokens = lister })

		tokens, err := svc.ActiveTokens(context.Background())
		require.NoError(t, err)
		assert.Len(t, tokens, 3)
	})

	t.Run("inactive defaults are skipped", func(t *testing.T) {
		svc := newTestService(t, func(cfg *Config) {
			cfg.DefaultTokens = []models.TrackedToken{
				{Address: pepe, Symbol: "PEPE", IsActive: true},
				{Address: shib, Symbol: "SHIB", IsActive: false},
			}
		})

		tokens, err := svc.ActiveTokens(context.Background())
		require.NoError(t, err)
		assert.Len(t, tokens, 1)
	})
}

func TestQueries(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	require.NoError(t, svc.AnalyzeAll(ctx))

	t.Run("history", func(t *testing.T) {
		history, err := svc.History(ctx, pepe, 0)
		require.NoError(t, err)
		assert.Len(t, history, 1)

		_, err = svc.History(ctx, pepe, MaxHistoryLimit+1)
		assert.Equal(t, 400, apperrors.GetHTTPStatusCode(err))
	})

	t.Run("signals", func(t *testing.T) {
		signals, err := svc.Signals(ctx)
		require.NoError(t, err)
		assert.Len(t, signals, 3)
	})

	t.Run("signal detail", func(t *testing.T) {
		detail, err := svc.Signal(ctx, pepe)
		require.NoError(t, err)
		assert.Equal(t, "PEPE", detail.Symbol)
		assert.Nil(t, detail.AISignal)

		_, err = svc.Signal(ctx, "0x0000000000000000000000000000000000000002")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("market overview", func(t *testing.T) {
		overview, err := svc.MarketOverview(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, overview.TotalTokens)
		assert.Equal(t, 3, overview.AnalyzedTokens)
		assert.Equal(t, 3, overview.BullishTokens+overview.BearishTokens+overview.NeutralTokens)
	})

	t.Run("top performers", func(t *testing.T) {
		top, err := svc.TopPerformers(ctx, "volatility", 2)
		require.NoError(t, err)
		require.Len(t, top, 2)
		assert.GreaterOrEqual(t, top[0].Volatility, top[1].Volatility)

		_, err = svc.TopPerformers(ctx, "moonPotential", 10)
		assert.Equal(t, 400, apperrors.GetHTTPStatusCode(err))
	})

	t.Run("risk", func(t *testing.T) {
		report, err := svc.Risk(ctx, pepe)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, report.Score, 0)
		assert.LessOrEqual(t, report.Score, 100)
		assert.NotEmpty(t, report.Level)
		assert.Equal(t, 1, report.PriceSamples)
		assert.Nil(t, report.PriceRisk)

		_, err = svc.Risk(ctx, "0x0000000000000000000000000000000000000002")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestRisk_UsesArchivedPrices(t *testing.T) {
	archive := &stubArchive{prices: []float64{1, 1.1, 1.05, 1.2, 1.15}}
	svc := newTestService(t, func(cfg *Config) { cfg.Archive = archive })
	ctx := context.Background()

	_, err := svc.AnalyzeToken(ctx, pepe)
	require.NoError(t, err)

	report, err := svc.Risk(ctx, pepe)
	require.NoError(t, err)
	assert.Equal(t, 5, report.PriceSamples)
	require.NotNil(t, report.PriceRisk)
	assert.Greater(t, report.PriceRisk.Volatility, 0.0)
}

func TestSignal_IncludesAISignal(t *testing.T) {
	signals := storage.NewMemorySignalStore()
	svc := newTestService(t, func(cfg *Config) { cfg.Signals = signals })
	ctx := context.Background()

	_, err := svc.AnalyzeToken(ctx, pepe)
	require.NoError(t, err)
	require.NoError(t, signals.StoreSignal(ctx, &types.AISignal{TokenAddress: pepe, Sentiment: 0.5}))

	detail, err := svc.Signal(ctx, pepe)
	require.NoError(t, err)
	require.NotNil(t, detail.AISignal)
	assert.Equal(t, 0.5, detail.AISignal.Sentiment)
}

func TestStatus_IncludesSourceStats(t *testing.T) {
	guarded := adapter.NewGuardedSource(adapter.NewFallbackSource(), adapter.NewFallbackSource(), nil, adapter.DefaultGuardedConfig())
	svc := newTestService(t, func(cfg *Config) { cfg.Source = guarded })

	st := svc.Status(context.Background())
	assert.Equal(t, 3, st.ActiveTokens)
	assert.Equal(t, signal.StrategyBasic, st.Strategy)
	assert.Len(t, st.Caches, 5)
	assert.Nil(t, st.Breaker)
	assert.Nil(t, st.Upstream)
}
