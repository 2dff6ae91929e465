package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/token-analytics/internal/broadcast"
	apperrors "github.com/token-analytics/internal/errors"
	"github.com/token-analytics/internal/logging"
	"github.com/token-analytics/internal/models"
	"github.com/token-analytics/internal/signal"
	"github.com/token-analytics/internal/storage"
	"github.com/token-analytics/internal/types"
)

// Default job ids
const (
	MarketMonitorID        = "market-monitor"
	VolatilityAlertID      = "volatility-alert"
	ConcentrationMonitorID = "concentration-monitor"
	AISignalGeneratorID    = "ai-signal-generator"
	SentimentAnalyzerID    = "sentiment-analyzer"
)

// Alert thresholds and the neutral sentiment used until a real feed exists
const (
	VolatilityAlertThreshold    = 0.8
	ConcentrationAlertThreshold = 0.9
	NeutralSentiment            = 0.5
)

// Dependencies are the collaborators of the default jobs
type Dependencies struct {
	Analyses  broadcast.AnalysisSource
	Signals   storage.SignalStore
	Publisher broadcast.Publisher // optional
	Clock     func() time.Time
}

// DefaultJobs returns the built-in automation jobs
func DefaultJobs() []models.AutomationJob {
	return []models.AutomationJob{
		{ID: MarketMonitorID, Name: "Market Monitor", Type: models.JobContinuous, Interval: 1, IsActive: true,
			Description: "Flags high-confidence signals from the latest analyses"},
		{ID: VolatilityAlertID, Name: "Volatility Alert", Type: models.JobConditional, Interval: 2, IsActive: true,
			Description: fmt.Sprintf("Alerts when volatility exceeds %.1f", VolatilityAlertThreshold)},
		{ID: ConcentrationMonitorID, Name: "Concentration Monitor", Type: models.JobConditional, Interval: 3, IsActive: true,
			Description: fmt.Sprintf("Alerts when holder concentration exceeds %.1f", ConcentrationAlertThreshold)},
		{ID: AISignalGeneratorID, Name: "AI Signal Generator", Type: models.JobContinuous, Interval: 1, IsActive: true,
			Description: "Stores weighted-strategy signals for every analyzed token"},
		{ID: SentimentAnalyzerID, Name: "Sentiment Analyzer", Type: models.JobPeriodic, Interval: 10, IsActive: true,
			Description: "Records a neutral sentiment score per token"},
	}
}

// RegisterDefaults registers every default job on s
func RegisterDefaults(s *Scheduler, deps Dependencies) error {
	if deps.Analyses == nil {
		return fmt.Errorf("default jobs need an analysis source")
	}
	if deps.Signals == nil {
		return fmt.Errorf("default jobs need a signal store")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	d := &defaultJobs{deps: deps, weighted: signal.Weighted{}}
	bodies := map[string]Body{
		MarketMonitorID:        d.marketMonitor,
		VolatilityAlertID:      d.volatilityAlert,
		ConcentrationMonitorID: d.concentrationMonitor,
		AISignalGeneratorID:    d.generateAISignals,
		SentimentAnalyzerID:    d.analyzeSentiment,
	}

	for _, job := range DefaultJobs() {
		if _, err := s.Register(job, bodies[job.ID]); err != nil {
			return err
		}
	}
	return nil
}

type defaultJobs struct {
	deps     Dependencies
	weighted signal.Strategy
}

// eachLatest calls fn with the latest analysis of every active token that has one
func (d *defaultJobs) eachLatest(ctx context.Context, fn func(types.Token, *types.Analysis) error) error {
	tokens, err := d.deps.Analyses.ActiveTokens(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, token := range tokens {
		a, err := d.deps.Analyses.Latest(ctx, token.Address)
		if err != nil {
			if !apperrors.IsNotFound(err) {
				errs = append(errs, err)
			}
			continue
		}
		if err := fn(token, a); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", token.Address, err))
		}
	}
	return errors.Join(errs...)
}

func (d *defaultJobs) publish(ctx context.Context, channel string, payload interface{}) {
	if d.deps.Publisher == nil {
		return
	}
	if err := d.deps.Publisher.Publish(channel, payload); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("channel", channel).Warn("Failed to publish alert")
	}
}

func withSymbol(token types.Token, a *types.Analysis) *types.Analysis {
	if a.Symbol != "" {
		return a
	}
	cp := *a
	cp.Symbol = token.Symbol
	return &cp
}

func (d *defaultJobs) marketMonitor(ctx context.Context) error {
	var alerts []broadcast.PriceAlert
	err := d.eachLatest(ctx, func(token types.Token, a *types.Analysis) error {
		if a.Signals.Confidence <= broadcast.PriceAlertConfidence {
			return nil
		}
		alerts = append(alerts, broadcast.NewPriceAlert(withSymbol(token, a)))
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"token":      token.Symbol,
			"signal":     a.Signals.Recommendation,
			"confidence": a.Signals.Confidence,
		}).Info("High confidence signal")
		return nil
	})

	if len(alerts) > 0 {
		d.publish(ctx, broadcast.ChannelPriceAlerts, alerts)
	}
	return err
}

// riskMonitor publishes a risk alert for every token whose metric exceeds threshold
func (d *defaultJobs) riskMonitor(ctx context.Context, reason string, threshold float64, metric func(types.Metrics) float64) error {
	var alerts []broadcast.RiskAlert
	err := d.eachLatest(ctx, func(token types.Token, a *types.Analysis) error {
		value := metric(a.Metrics)
		if value <= threshold {
			return nil
		}
		alerts = append(alerts, broadcast.NewRiskAlert(withSymbol(token, a), reason))
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"token":  token.Symbol,
			"reason": reason,
			"value":  value,
		}).Warn("Risk alert")
		return nil
	})

	if len(alerts) > 0 {
		d.publish(ctx, broadcast.ChannelRiskAlerts, alerts)
	}
	return err
}

func (d *defaultJobs) volatilityAlert(ctx context.Context) error {
	return d.riskMonitor(ctx, "High volatility", VolatilityAlertThreshold,
		func(m types.Metrics) float64 { return m.Volatility })
}

func (d *defaultJobs) concentrationMonitor(ctx context.Context) error {
	return d.riskMonitor(ctx, "High concentration", ConcentrationAlertThreshold,
		func(m types.Metrics) float64 { return m.ConcentrationRatio })
}

func (d *defaultJobs) generateAISignals(ctx context.Context) error {
	return d.eachLatest(ctx, func(token types.Token, a *types.Analysis) error {
		sentiment, err := d.deps.Signals.Sentiment(ctx, token.Address)
		if err != nil {
			if !apperrors.IsNotFound(err) {
				return err
			}
			sentiment = NeutralSentiment
		}

		return d.deps.Signals.StoreSignal(ctx, &types.AISignal{
			TokenAddress: token.Address,
			Timestamp:    d.deps.Clock().UnixMilli(),
			Signal:       d.weighted.Generate(a.Metrics),
			Sentiment:    sentiment,
		})
	})
}

func (d *defaultJobs) analyzeSentiment(ctx context.Context) error {
	tokens, err := d.deps.Analyses.ActiveTokens(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, token := range tokens {
		if err := d.deps.Signals.StoreSentiment(ctx, token.Address, NeutralSentiment); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
