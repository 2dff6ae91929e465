package analytics

import "github.com/token-analytics/internal/types"

// MarketOverview aggregates the latest analyses of all tracked tokens
type MarketOverview struct {
	TotalTokens       int     `json:"totalTokens"`
	AnalyzedTokens    int     `json:"analyzedTokens"`
	TotalMarketCap    float64 `json:"totalMarketCap"`
	AverageVolatility float64 `json:"averageVolatility"`
	BullishTokens     int     `json:"bullishTokens"`
	BearishTokens     int     `json:"bearishTokens"`
	NeutralTokens     int     `json:"neutralTokens"`
}

// SummarizeMarket builds the overview for totalTokens tracked tokens from the
// analyses that exist. Nil entries are skipped.
func SummarizeMarket(totalTokens int, analyses []*types.Analysis) MarketOverview {
	overview := MarketOverview{TotalTokens: totalTokens}

	var volatility float64
	for _, a := range analyses {
		if a == nil {
			continue
		}
		overview.AnalyzedTokens++
		overview.TotalMarketCap += a.Metrics.MarketCap
		volatility += a.Metrics.Volatility

		switch rec := a.Signals.Recommendation; {
		case rec.IsBullish():
			overview.BullishTokens++
		case rec.IsBearish():
			overview.BearishTokens++
		default:
			overview.NeutralTokens++
		}
	}

	if overview.AnalyzedTokens > 0 {
		overview.AverageVolatility = volatility / float64(overview.AnalyzedTokens)
	}
	return overview
}
