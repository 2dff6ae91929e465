package signal

import "github.com/token-analytics/internal/types"

// Basic votes buy/sell/hold from threshold rules and picks the strict winner
type Basic struct{}

func (Basic) Name() string { return StrategyBasic }

func (Basic) Generate(m types.Metrics) types.Signal {
	var buy, sell, hold int
	reasoning := []string{}

	switch rsi := m.TechnicalIndicators.RSI; {
	case rsi < 30:
		buy += 2
		reasoning = append(reasoning, "RSI oversold")
	case rsi > 70:
		sell += 2
		reasoning = append(reasoning, "RSI overbought")
	}

	if m.Volume24h > m.MarketCap*0.1 {
		buy++
		reasoning = append(reasoning, "High volume activity")
	}

	if m.ConcentrationRatio > 0.8 {
		sell++
		reasoning = append(reasoning, "High concentration risk")
	}

	if m.PaperhandRatio > 0.7 {
		sell++
		reasoning = append(reasoning, "High paperhand ratio")
	}

	if m.Volatility > 0.5 {
		hold++
		reasoning = append(reasoning, "High volatility - wait for stability")
	}

	s := types.Signal{Reasoning: reasoning, Strategy: StrategyBasic}
	switch {
	case buy > sell && buy > hold:
		s.Recommendation = types.RecommendationBuy
		s.Confidence = clamp01(float64(buy) / 5)
	case sell > buy && sell > hold:
		s.Recommendation = types.RecommendationSell
		s.Confidence = clamp01(float64(sell) / 5)
	default:
		s.Recommendation = types.RecommendationHold
		s.Confidence = clamp01(float64(hold) / 5)
	}
	return s
}
