// Package types provides common type definitions for the token analytics system.
package types

import "time"

// TradeType represents the side of a trade
type TradeType string

const (
	// TradeBuy represents tokens flowing out of the mint/pool to a buyer
	TradeBuy TradeType = "buy"
	// TradeSell represents tokens leaving a holder
	TradeSell TradeType = "sell"
)

// Recommendation represents the action suggested by a signal
type Recommendation string

const (
	RecommendationStrongBuy  Recommendation = "STRONG_BUY"
	RecommendationBuy        Recommendation = "BUY"
	RecommendationHold       Recommendation = "HOLD"
	RecommendationSell       Recommendation = "SELL"
	RecommendationStrongSell Recommendation = "STRONG_SELL"
)

// IsBullish reports whether the recommendation leans towards buying
func (r Recommendation) IsBullish() bool {
	return r == RecommendationBuy || r == RecommendationStrongBuy
}

// IsBearish reports whether the recommendation leans towards selling
func (r Recommendation) IsBearish() bool {
	return r == RecommendationSell || r == RecommendationStrongSell
}

// RiskLevel represents the coarse risk bucket of a token
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// Token represents a tracked ERC20 token with its latest market values
type Token struct {
	Address  string  `json:"address"`
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Decimals int     `json:"decimals"`
	Supply   float64 `json:"supply"`
	Price    float64 `json:"price"`
}

// Trade represents a single observed token movement.
// Timestamp and HoldingTime are in milliseconds.
type Trade struct {
	ID           string    `json:"id"`
	TokenAddress string    `json:"tokenAddress"`
	Type         TradeType `json:"type"`
	Price        float64   `json:"price"`
	Volume       float64   `json:"volume"`
	Timestamp    int64     `json:"timestamp"`
	HoldingTime  int64     `json:"holdingTime"`
}

// Holder represents a token holder balance
type Holder struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

// TechnicalIndicators holds price-derived indicators
type TechnicalIndicators struct {
	SMA  float64 `json:"sma"`
	RSI  float64 `json:"rsi"`
	MACD float64 `json:"macd"`
}

// Metrics is an immutable snapshot computed from a token's trades and holders
type Metrics struct {
	MarketCap           float64             `json:"marketCap"`
	HourlyTrades        int                 `json:"hourlyTrades"`
	ConcentrationRatio  float64             `json:"concentrationRatio"`
	PaperhandRatio      float64             `json:"paperhandRatio"`
	Volatility          float64             `json:"volatility"`
	Volume24h           float64             `json:"volume24h"`
	TechnicalIndicators TechnicalIndicators `json:"technicalIndicators"`
}

// Signal is the outcome of running a strategy over one Metrics snapshot
type Signal struct {
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
	Reasoning      []string       `json:"reasoning"`
	Score          float64        `json:"score,omitempty"`
	Strategy       string         `json:"strategy,omitempty"`
}

// Analysis is one stored result of the recompute pass for a token
type Analysis struct {
	AnalysisID   string  `json:"analysisId"`
	TokenAddress string  `json:"tokenAddress"`
	Symbol       string  `json:"symbol,omitempty"`
	Timestamp    int64   `json:"timestamp"` // Unix milliseconds
	Price        float64 `json:"price"`
	Metrics      Metrics `json:"metrics"`
	Signals      Signal  `json:"signals"`
}

// Time returns the analysis timestamp as time.Time
func (a *Analysis) Time() time.Time {
	return time.UnixMilli(a.Timestamp)
}

// AISignal is a weighted-strategy signal kept separately from the analysis history
type AISignal struct {
	TokenAddress string  `json:"tokenAddress"`
	Timestamp    int64   `json:"timestamp"`
	Signal       Signal  `json:"signal"`
	Sentiment    float64 `json:"sentiment"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
