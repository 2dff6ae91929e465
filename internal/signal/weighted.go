package signal

import (
	"math"

	"github.com/token-analytics/internal/types"
)

// Weighted sums signed factor weights into a score in [-100, 100]
type Weighted struct{}

func (Weighted) Name() string { return StrategyWeighted }

func (Weighted) Generate(m types.Metrics) types.Signal {
	var score float64
	factors := []string{}

	// technical
	switch rsi := m.TechnicalIndicators.RSI; {
	case rsi < 30:
		score += 40
		factors = append(factors, "RSI oversold")
	case rsi > 70:
		score -= 40
		factors = append(factors, "RSI overbought")
	}

	// volume
	if m.Volume24h > m.MarketCap*0.15 {
		score += 20
		factors = append(factors, "High volume")
	}

	// volatility
	switch {
	case m.Volatility < 0.3:
		score += 15
		factors = append(factors, "Low volatility")
	case m.Volatility > 0.7:
		score -= 15
		factors = append(factors, "High volatility")
	}

	// distribution
	switch {
	case m.ConcentrationRatio < 0.5:
		score += 15
		factors = append(factors, "Good distribution")
	case m.ConcentrationRatio > 0.8:
		score -= 15
		factors = append(factors, "High concentration")
	}

	// holder conviction
	switch {
	case m.PaperhandRatio < 0.3:
		score += 10
		factors = append(factors, "Strong holders")
	case m.PaperhandRatio > 0.7:
		score -= 10
		factors = append(factors, "High paperhands")
	}

	return types.Signal{
		Recommendation: recommendationForScore(score),
		Confidence:     clamp01(math.Abs(score) / 100),
		Reasoning:      factors,
		Score:          score,
		Strategy:       StrategyWeighted,
	}
}

func recommendationForScore(score float64) types.Recommendation {
	switch {
	case score > 30:
		return types.RecommendationStrongBuy
	case score > 10:
		return types.RecommendationBuy
	case score < -30:
		return types.RecommendationStrongSell
	case score < -10:
		return types.RecommendationSell
	default:
		return types.RecommendationHold
	}
}
