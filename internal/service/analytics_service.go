package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/token-analytics/internal/adapter"
	"github.com/token-analytics/internal/analytics"
	"github.com/token-analytics/internal/broadcast"
	"github.com/token-analytics/internal/cache"
	"github.com/token-analytics/internal/circuitbreaker"
	apperrors "github.com/token-analytics/internal/errors"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/models"
	"github.com/token-analytics/internal/observability"
	"github.com/token-analytics/internal/signal"
	"github.com/token-analytics/internal/storage"
	"github.com/token-analytics/internal/types"
)

const (
	DefaultWorkers      = 4
	DefaultTokensTTL    = 300 * time.Second
	DefaultTokenTimeout = 15 * time.Second
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
	DefaultTopLimit     = 10
	MaxTopLimit         = 100

	priceSeriesLimit = 500
	activeTokensKey  = "active"
)

// TokenLister lists the tokens registered for analysis
type TokenLister interface {
	ListActive(ctx context.Context) ([]models.TrackedToken, error)
}

// Archiver keeps analyses beyond the history TTL
type Archiver interface {
	Archive(ctx context.Context, analyses []*types.Analysis) error
	PriceSeries(ctx context.Context, token string, limit int) ([]float64, error)
}

// sourceStats is implemented by market data sources that cache and guard upstream reads
type sourceStats interface {
	CacheStats() []cache.Stats
	BreakerStats() *circuitbreaker.Stats
	UpstreamHealth() *adapter.ProviderHealth
}

// Config holds the collaborators of an AnalyticsService
type Config struct {
	Source        adapter.MarketDataSource
	Store         storage.AnalysisStore
	Signals       storage.SignalStore // optional
	Strategy      signal.Strategy
	Tokens        TokenLister // optional, DefaultTokens are used without it
	DefaultTokens []models.TrackedToken
	Archive       Archiver // optional
	Workers       int
	TokensTTL     time.Duration
	TradeWindow   time.Duration
	TokenTimeout  time.Duration // Budget for analyzing one token, at most one tick
	Clock         func() time.Time
}

// AnalyticsService runs the recompute pass and answers queries over stored analyses
type AnalyticsService struct {
	source        adapter.MarketDataSource
	store         storage.AnalysisStore
	signals       storage.SignalStore
	strategy      signal.Strategy
	tokens        TokenLister
	defaultTokens []types.Token
	archive       Archiver
	workers       int
	tokensTTL     time.Duration
	tradeWindow   time.Duration
	tokenTimeout  time.Duration
	now           func() time.Time

	tokenCache *cache.Cache[[]types.Token]
	monitor    *RecomputeMonitor
}

// NewAnalyticsService creates a service
func NewAnalyticsService(cfg Config) (*AnalyticsService, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("market data source cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("analysis store cannot be nil")
	}
	if cfg.Strategy == nil {
		cfg.Strategy = signal.Basic{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.TokensTTL <= 0 {
		cfg.TokensTTL = DefaultTokensTTL
	}
	if cfg.TradeWindow <= 0 {
		cfg.TradeWindow = adapter.DefaultTradeWindow
	}
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = DefaultTokenTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if len(cfg.DefaultTokens) == 0 {
		cfg.DefaultTokens = models.DefaultTokens()
	}

	defaults := make([]types.Token, 0, len(cfg.DefaultTokens))
	for _, t := range cfg.DefaultTokens {
		if t.IsActive {
			defaults = append(defaults, t.ToToken())
		}
	}

	return &AnalyticsService{
		source:        cfg.Source,
		store:         cfg.Store,
		signals:       cfg.Signals,
		strategy:      cfg.Strategy,
		tokens:        cfg.Tokens,
		defaultTokens: defaults,
		archive:       cfg.Archive,
		workers:       cfg.Workers,
		tokensTTL:     cfg.TokensTTL,
		tradeWindow:   cfg.TradeWindow,
		tokenTimeout:  cfg.TokenTimeout,
		now:           cfg.Clock,
		tokenCache:    cache.New[[]types.Token](cache.WithName("tokens"), cache.WithClock(cfg.Clock)),
		monitor:       NewRecomputeMonitor(),
	}, nil
}

// NormalizeAddress validates a token address and returns it lowercased
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", apperrors.NewInvalidAddressError(address)
	}
	return strings.ToLower(address), nil
}

// ActiveTokens returns the tracked tokens. The registry is consulted at most once
// per TokensTTL; when it fails or is empty the configured defaults are used.
func (s *AnalyticsService) ActiveTokens(ctx context.Context) ([]types.Token, error) {
	return s.tokenCache.GetOrLoad(ctx, activeTokensKey, s.tokensTTL, func(ctx context.Context) ([]types.Token, error) {
		if s.tokens == nil {
			return s.defaultTokens, nil
		}

		tracked, err := s.tokens.ListActive(ctx)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to list tracked tokens, using defaults")
			return s.defaultTokens, nil
		}
		if len(tracked) == 0 {
			return s.defaultTokens, nil
		}

		tokens := make([]types.Token, len(tracked))
		for i := range tracked {
			tokens[i] = tracked[i].ToToken()
		}
		return tokens, nil
	})
}

// lookupToken returns the tracked token for address, or a bare 18-decimals token
func (s *AnalyticsService) lookupToken(ctx context.Context, address string) types.Token {
	tokens, _ := s.ActiveTokens(ctx)
	for _, t := range tokens {
		if strings.EqualFold(t.Address, address) {
			return t
		}
	}
	return types.Token{Address: address, Decimals: 18}
}

// AnalyzeToken fetches market data for one token, computes metrics and a signal and stores the result
func (s *AnalyticsService) AnalyzeToken(ctx context.Context, address string) (*types.Analysis, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	start := s.now()
	token := s.lookupToken(ctx, address)

	ctx, cancel := context.WithTimeout(ctx, s.tokenTimeout)
	defer cancel()

	var (
		trades  []types.Trade
		holders []types.Holder
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		token.Price, err = s.source.GetPrice(gctx, address)
		return err
	})
	g.Go(func() (err error) {
		token.Supply, err = s.source.GetSupply(gctx, address, token.Decimals)
		return err
	})
	g.Go(func() (err error) {
		trades, err = s.source.GetRecentTrades(gctx, address, s.tradeWindow)
		return err
	})
	g.Go(func() (err error) {
		holders, err = s.source.GetHolders(gctx, address)
		return err
	})
	err = g.Wait()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, apperrors.NewProviderTimeoutError("market data")
	}
	if err != nil {
		return nil, apperrors.NewProviderError("market data", err)
	}

	nowMs := s.now().UnixMilli()
	metrics := analytics.CalculateAt(nowMs, token, trades, holders)
	sig := s.strategy.Generate(metrics)

	analysis := &types.Analysis{
		AnalysisID:   uuid.New().String(),
		TokenAddress: address,
		Symbol:       token.Symbol,
		Timestamp:    nowMs,
		Price:        token.Price,
		Metrics:      metrics,
		Signals:      sig,
	}

	if err := s.store.Store(ctx, address, analysis); err != nil {
		return nil, apperrors.NewCacheError("store analysis", err)
	}

	observability.RecordAnalysis(string(sig.Recommendation), s.now().Sub(start).Seconds())
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"token":          token.Symbol,
		"address":        address,
		"recommendation": sig.Recommendation,
		"confidence":     sig.Confidence,
	}).Debug("Token analyzed")

	return analysis, nil
}

// PassResult is the outcome of one recompute pass
type PassResult struct {
	Analyses []*types.Analysis `json:"analyses"`
	Failed   map[string]string `json:"failed,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// RunPass analyzes every active token with a bounded number of workers.
// A failing token does not affect the others.
func (s *AnalyticsService) RunPass(ctx context.Context) (*PassResult, error) {
	start := s.now()

	tokens, err := s.ActiveTokens(ctx)
	if err != nil {
		observability.RecordRecomputePass(err)
		return nil, err
	}

	analyses := make([]*types.Analysis, len(tokens))
	errs := make([]error, len(tokens))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, token := range tokens {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			analyses[i], errs[i] = s.AnalyzeToken(ctx, token.Address)
			return nil
		})
	}
	_ = g.Wait()

	result := &PassResult{Analyses: make([]*types.Analysis, 0, len(tokens))}
	for i, token := range tokens {
		if errs[i] != nil {
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[token.Address] = errs[i].Error()
			logging.FromContext(ctx).WithError(errs[i]).WithField("token", token.Address).Warn("Token analysis failed")
			continue
		}
		result.Analyses = append(result.Analyses, analyses[i])
	}

	if s.archive != nil && len(result.Analyses) > 0 {
		if err := s.archive.Archive(ctx, result.Analyses); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to archive analyses")
		}
	}

	result.Duration = s.now().Sub(start)
	s.monitor.RecordPass(start, result.Duration, len(tokens), len(result.Failed))

	var passErr error
	if len(result.Failed) > 0 {
		passErr = fmt.Errorf("%d of %d tokens failed", len(result.Failed), len(tokens))
	}
	observability.RecordRecomputePass(passErr)
	return result, passErr
}

// AnalyzeAll runs one recompute pass
func (s *AnalyticsService) AnalyzeAll(ctx context.Context) error {
	_, err := s.RunPass(ctx)
	return err
}

// Latest returns the latest analysis for address
func (s *AnalyticsService) Latest(ctx context.Context, address string) (*types.Analysis, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.Latest(ctx, address)
}

// History returns up to limit recent analyses, oldest first
func (s *AnalyticsService) History(ctx context.Context, address string, limit int) ([]*types.Analysis, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return nil, apperrors.NewInvalidParameterError("limit", fmt.Sprintf("must be at most %d", MaxHistoryLimit))
	}
	return s.store.History(ctx, address, limit)
}

// latestAll returns the latest analysis of every active token that has one
func (s *AnalyticsService) latestAll(ctx context.Context) ([]types.Token, []*types.Analysis, error) {
	tokens, err := s.ActiveTokens(ctx)
	if err != nil {
		return nil, nil, err
	}

	out := make([]*types.Analysis, 0, len(tokens))
	for _, token := range tokens {
		a, err := s.store.Latest(ctx, token.Address)
		if err != nil {
			if apperrors.IsNotFound(err) {
				continue
			}
			return nil, nil, err
		}
		if a.Symbol == "" {
			cp := *a
			cp.Symbol = token.Symbol
			a = &cp
		}
		out = append(out, a)
	}
	return tokens, out, nil
}

// Signals returns the latest signal of every analyzed active token
func (s *AnalyticsService) Signals(ctx context.Context) ([]broadcast.TradingSignal, error) {
	_, latest, err := s.latestAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]broadcast.TradingSignal, len(latest))
	for i, a := range latest {
		out[i] = broadcast.NewTradingSignal(a)
	}
	return out, nil
}

// SignalMetrics is the metric subset returned with a signal
type SignalMetrics struct {
	MarketCap          float64 `json:"marketCap"`
	Volatility         float64 `json:"volatility"`
	ConcentrationRatio float64 `json:"concentrationRatio"`
	PaperhandRatio     float64 `json:"paperhandRatio"`
	Volume24h          float64 `json:"volume24h"`
}

// SignalDetail is the latest signal of one token with its supporting metrics
type SignalDetail struct {
	TokenAddress   string               `json:"tokenAddress"`
	Symbol         string               `json:"symbol,omitempty"`
	Recommendation types.Recommendation `json:"recommendation"`
	Confidence     float64              `json:"confidence"`
	Reasoning      []string             `json:"reasoning"`
	Strategy       string               `json:"strategy,omitempty"`
	Timestamp      int64                `json:"timestamp"`
	Metrics        SignalMetrics        `json:"metrics"`
	AISignal       *types.AISignal      `json:"aiSignal,omitempty"`
}

// Signal returns the latest signal for address together with the latest AI signal if any
func (s *AnalyticsService) Signal(ctx context.Context, address string) (*SignalDetail, error) {
	a, err := s.Latest(ctx, address)
	if err != nil {
		return nil, err
	}

	detail := &SignalDetail{
		TokenAddress:   a.TokenAddress,
		Symbol:         a.Symbol,
		Recommendation: a.Signals.Recommendation,
		Confidence:     a.Signals.Confidence,
		Reasoning:      a.Signals.Reasoning,
		Strategy:       a.Signals.Strategy,
		Timestamp:      a.Timestamp,
		Metrics: SignalMetrics{
			MarketCap:          a.Metrics.MarketCap,
			Volatility:         a.Metrics.Volatility,
			ConcentrationRatio: a.Metrics.ConcentrationRatio,
			PaperhandRatio:     a.Metrics.PaperhandRatio,
			Volume24h:          a.Metrics.Volume24h,
		},
	}

	if s.signals != nil {
		ai, err := s.signals.LatestSignal(ctx, a.TokenAddress)
		switch {
		case err == nil:
			detail.AISignal = ai
		case !apperrors.IsNotFound(err):
			logging.FromContext(ctx).WithError(err).Warn("Failed to read AI signal")
		}
	}
	return detail, nil
}

// MarketOverview aggregates the latest analyses of all active tokens
func (s *AnalyticsService) MarketOverview(ctx context.Context) (analytics.MarketOverview, error) {
	tokens, latest, err := s.latestAll(ctx)
	if err != nil {
		return analytics.MarketOverview{}, err
	}
	return analytics.SummarizeMarket(len(tokens), latest), nil
}

// Performer is one entry of the top performers ranking
type Performer struct {
	TokenAddress   string               `json:"tokenAddress"`
	Symbol         string               `json:"symbol"`
	Price          float64              `json:"price"`
	MarketCap      float64              `json:"marketCap"`
	Volume24h      float64              `json:"volume24h"`
	Volatility     float64              `json:"volatility"`
	HourlyTrades   int                  `json:"hourlyTrades"`
	Recommendation types.Recommendation `json:"recommendation"`
	Confidence     float64              `json:"confidence"`
}

var performerMetrics = map[string]func(*types.Analysis) float64{
	"volume24h":    func(a *types.Analysis) float64 { return a.Metrics.Volume24h },
	"marketCap":    func(a *types.Analysis) float64 { return a.Metrics.MarketCap },
	"volatility":   func(a *types.Analysis) float64 { return a.Metrics.Volatility },
	"hourlyTrades": func(a *types.Analysis) float64 { return float64(a.Metrics.HourlyTrades) },
	"confidence":   func(a *types.Analysis) float64 { return a.Signals.Confidence },
}

// PerformerMetrics lists the metrics TopPerformers can rank by
func PerformerMetrics() []string {
	names := make([]string, 0, len(performerMetrics))
	for name := range performerMetrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TopPerformers ranks analyzed tokens by metric, highest first
func (s *AnalyticsService) TopPerformers(ctx context.Context, metric string, limit int) ([]Performer, error) {
	if metric == "" {
		metric = "volume24h"
	}
	value, ok := performerMetrics[metric]
	if !ok {
		return nil, apperrors.NewInvalidParameterError("metric",
			fmt.Sprintf("must be one of %s", strings.Join(PerformerMetrics(), ", ")))
	}
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	if limit > MaxTopLimit {
		return nil, apperrors.NewInvalidParameterError("limit", fmt.Sprintf("must be at most %d", MaxTopLimit))
	}

	_, latest, err := s.latestAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(latest, func(i, j int) bool { return value(latest[i]) > value(latest[j]) })
	if len(latest) > limit {
		latest = latest[:limit]
	}

	out := make([]Performer, len(latest))
	for i, a := range latest {
		out[i] = Performer{
			TokenAddress:   a.TokenAddress,
			Symbol:         a.Symbol,
			Price:          a.Price,
			MarketCap:      a.Metrics.MarketCap,
			Volume24h:      a.Metrics.Volume24h,
			Volatility:     a.Metrics.Volatility,
			HourlyTrades:   a.Metrics.HourlyTrades,
			Recommendation: a.Signals.Recommendation,
			Confidence:     a.Signals.Confidence,
		}
	}
	return out, nil
}

// RiskReport combines the metric-based risk score with price-series statistics
type RiskReport struct {
	TokenAddress string `json:"tokenAddress"`
	Symbol       string `json:"symbol,omitempty"`
	analytics.RiskAssessment
	PriceRisk    *analytics.RiskMetrics `json:"priceRisk,omitempty"`
	PriceSamples int                    `json:"priceSamples"`
	Timestamp    int64                  `json:"timestamp"`
}

// Risk assesses the latest analysis of address. Price statistics come from the
// archive when it holds a longer series than the in-memory history.
func (s *AnalyticsService) Risk(ctx context.Context, address string) (*RiskReport, error) {
	a, err := s.Latest(ctx, address)
	if err != nil {
		return nil, err
	}

	report := &RiskReport{
		TokenAddress:   a.TokenAddress,
		Symbol:         a.Symbol,
		RiskAssessment: analytics.AssessRisk(a.Metrics),
		Timestamp:      s.now().UnixMilli(),
	}

	prices := s.priceSeries(ctx, a.TokenAddress)
	report.PriceSamples = len(prices)
	if len(prices) >= 2 {
		rm := analytics.ComputeRiskMetrics(prices)
		report.PriceRisk = &rm
	}
	return report, nil
}

func (s *AnalyticsService) priceSeries(ctx context.Context, address string) []float64 {
	var prices []float64
	if history, err := s.store.History(ctx, address, MaxHistoryLimit); err == nil {
		prices = make([]float64, len(history))
		for i, h := range history {
			prices[i] = h.Price
		}
	}

	if s.archive != nil {
		archived, err := s.archive.PriceSeries(ctx, address, priceSeriesLimit)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to read archived prices")
		} else if len(archived) > len(prices) {
			prices = archived
		}
	}
	return prices
}

// Status describes the service for the status endpoint
type Status struct {
	ActiveTokens int                     `json:"activeTokens"`
	Strategy     string                  `json:"strategy"`
	Workers      int                     `json:"workers"`
	Recompute    RecomputeStats          `json:"recompute"`
	Caches       []cache.Stats           `json:"caches"`
	Breaker      *circuitbreaker.Stats   `json:"circuitBreaker,omitempty"`
	Upstream     *adapter.ProviderHealth `json:"upstream,omitempty"`
	Archive      bool                    `json:"archive"`
}

// Status returns the current service state
func (s *AnalyticsService) Status(ctx context.Context) Status {
	tokens, _ := s.ActiveTokens(ctx)

	st := Status{
		ActiveTokens: len(tokens),
		Strategy:     s.strategy.Name(),
		Workers:      s.workers,
		Recompute:    s.monitor.GetStats(),
		Caches:       []cache.Stats{s.tokenCache.Stats()},
		Archive:      s.archive != nil,
	}
	if ss, ok := s.source.(sourceStats); ok {
		st.Caches = append(st.Caches, ss.CacheStats()...)
		st.Breaker = ss.BreakerStats()
		st.Upstream = ss.UpstreamHealth()
	}
	return st
}
