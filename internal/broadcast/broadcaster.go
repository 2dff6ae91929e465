package broadcast

import (
	"context"
	"time"

	"github.com/token-analytics/internal/analytics"
	apperrors "github.com/token-analytics/internal/errors"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/types"
)

// DefaultInterval is the time between two broadcasts
const DefaultInterval = 10 * time.Second

// AnalysisSource provides the tracked tokens and their latest analyses
type AnalysisSource interface {
	ActiveTokens(ctx context.Context) ([]types.Token, error)
	Latest(ctx context.Context, token string) (*types.Analysis, error)
}

// clientCounter is implemented by publishers that know their audience
type clientCounter interface {
	ClientCount() int
}

// Broadcaster periodically publishes channel snapshots built from stored analyses
type Broadcaster struct {
	source    AnalysisSource
	publisher Publisher
	interval  time.Duration
}

// NewBroadcaster creates a broadcaster. A non-positive interval uses DefaultInterval.
func NewBroadcaster(source AnalysisSource, publisher Publisher, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Broadcaster{source: source, publisher: publisher, interval: interval}
}

// Collect builds the payload of every channel from the latest analyses.
// Tokens without an analysis are left out.
func (b *Broadcaster) Collect(ctx context.Context) (map[string]interface{}, error) {
	tokens, err := b.source.ActiveTokens(ctx)
	if err != nil {
		return nil, err
	}

	latest := make([]*types.Analysis, 0, len(tokens))
	for _, token := range tokens {
		a, err := b.source.Latest(ctx, token.Address)
		if err != nil {
			if !apperrors.IsNotFound(err) {
				logging.FromContext(ctx).WithError(err).WithField("token", token.Address).Warn("Failed to read latest analysis")
			}
			continue
		}
		if a.Symbol == "" {
			cp := *a
			cp.Symbol = token.Symbol
			a = &cp
		}
		latest = append(latest, a)
	}

	signals := make([]TradingSignal, 0, len(latest))
	priceAlerts := make([]PriceAlert, 0)
	riskAlerts := make([]RiskAlert, 0)
	for _, a := range latest {
		signals = append(signals, NewTradingSignal(a))
		if a.Signals.Confidence > PriceAlertConfidence {
			priceAlerts = append(priceAlerts, NewPriceAlert(a))
		}
		if a.Metrics.Volatility > RiskAlertVolatility {
			riskAlerts = append(riskAlerts, NewRiskAlert(a, ""))
		}
	}

	return map[string]interface{}{
		ChannelMarketOverview: analytics.SummarizeMarket(len(tokens), latest),
		ChannelTradingSignals: signals,
		ChannelPriceAlerts:    priceAlerts,
		ChannelRiskAlerts:     riskAlerts,
	}, nil
}

// Broadcast collects and publishes one snapshot of every channel
func (b *Broadcaster) Broadcast(ctx context.Context) error {
	if cc, ok := b.publisher.(clientCounter); ok && cc.ClientCount() == 0 {
		return nil
	}

	payloads, err := b.Collect(ctx)
	if err != nil {
		return err
	}

	for _, channel := range Channels() {
		if err := b.publisher.Publish(channel, payloads[channel]); err != nil {
			return err
		}
	}
	return nil
}

// Run broadcasts on every interval until ctx is cancelled
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	logging.WithField("interval", b.interval.String()).Info("Starting broadcaster")

	for {
		select {
		case <-ctx.Done():
			logging.Info("Broadcaster stopped")
			return
		case <-ticker.C:
			if err := b.Broadcast(ctx); err != nil {
				logging.WithError(err).Warn("Broadcast failed")
			}
		}
	}
}
