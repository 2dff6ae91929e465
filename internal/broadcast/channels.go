// Package broadcast pushes market snapshots and alerts to subscribed websocket clients.
package broadcast

import (
	"fmt"

	"github.com/token-analytics/internal/types"
)

// Channel names clients can subscribe to
const (
	ChannelMarketOverview = "market-overview"
	ChannelTradingSignals = "trading-signals"
	ChannelPriceAlerts    = "price-alerts"
	ChannelRiskAlerts     = "risk-alerts"
)

// Alert thresholds
const (
	PriceAlertConfidence = 0.8
	RiskAlertVolatility  = 0.7
)

// Channels lists every known channel
func Channels() []string {
	return []string{ChannelMarketOverview, ChannelTradingSignals, ChannelPriceAlerts, ChannelRiskAlerts}
}

// IsChannel reports whether name is a known channel
func IsChannel(name string) bool {
	switch name {
	case ChannelMarketOverview, ChannelTradingSignals, ChannelPriceAlerts, ChannelRiskAlerts:
		return true
	}
	return false
}

// ErrUnknownChannel is returned when publishing to a channel that does not exist
type ErrUnknownChannel struct {
	Channel string
}

func (e *ErrUnknownChannel) Error() string {
	return fmt.Sprintf("unknown channel: %s", e.Channel)
}

// Publisher delivers a payload to every subscriber of a channel
type Publisher interface {
	Publish(channel string, payload interface{}) error
}

// TradingSignal is one entry of the trading-signals channel
type TradingSignal struct {
	TokenAddress   string               `json:"tokenAddress"`
	Symbol         string               `json:"symbol"`
	Recommendation types.Recommendation `json:"recommendation"`
	Confidence     float64              `json:"confidence"`
	Timestamp      int64                `json:"timestamp"`
}

// PriceAlert is published for signals with high confidence
type PriceAlert struct {
	TokenAddress string               `json:"tokenAddress"`
	Symbol       string               `json:"symbol"`
	Signal       types.Recommendation `json:"signal"`
	Confidence   float64              `json:"confidence"`
	Reasoning    []string             `json:"reasoning"`
	Timestamp    int64                `json:"timestamp"`
}

// RiskAlert is published for tokens with elevated risk
type RiskAlert struct {
	TokenAddress       string          `json:"tokenAddress"`
	Symbol             string          `json:"symbol"`
	RiskLevel          types.RiskLevel `json:"riskLevel"`
	Reason             string          `json:"reason,omitempty"`
	Volatility         float64         `json:"volatility"`
	ConcentrationRatio float64         `json:"concentrationRatio"`
	Timestamp          int64           `json:"timestamp"`
}

// NewTradingSignal builds the trading-signals entry for an analysis
func NewTradingSignal(a *types.Analysis) TradingSignal {
	return TradingSignal{
		TokenAddress:   a.TokenAddress,
		Symbol:         a.Symbol,
		Recommendation: a.Signals.Recommendation,
		Confidence:     a.Signals.Confidence,
		Timestamp:      a.Timestamp,
	}
}

// NewPriceAlert builds a price alert for an analysis
func NewPriceAlert(a *types.Analysis) PriceAlert {
	return PriceAlert{
		TokenAddress: a.TokenAddress,
		Symbol:       a.Symbol,
		Signal:       a.Signals.Recommendation,
		Confidence:   a.Signals.Confidence,
		Reasoning:    a.Signals.Reasoning,
		Timestamp:    a.Timestamp,
	}
}

// NewRiskAlert builds a HIGH risk alert for an analysis
func NewRiskAlert(a *types.Analysis, reason string) RiskAlert {
	return RiskAlert{
		TokenAddress:       a.TokenAddress,
		Symbol:             a.Symbol,
		RiskLevel:          types.RiskHigh,
		Reason:             reason,
		Volatility:         a.Metrics.Volatility,
		ConcentrationRatio: a.Metrics.ConcentrationRatio,
		Timestamp:          a.Timestamp,
	}
}
