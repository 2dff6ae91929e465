package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/token-analytics/internal/types"
)

func analysisWith(rec types.Recommendation, marketCap, volatility float64) *types.Analysis {
	return &types.Analysis{
		Metrics: types.Metrics{MarketCap: marketCap, Volatility: volatility},
		Signals: types.Signal{Recommendation: rec},
	}
}

func TestSummarizeMarket(t *testing.T) {
	overview := SummarizeMarket(5, []*types.Analysis{
		analysisWith(types.RecommendationStrongBuy, 100, 0.2),
		analysisWith(types.RecommendationBuy, 200, 0.4),
		analysisWith(types.RecommendationSell, 300, 0.6),
		nil,
		analysisWith(types.RecommendationHold, 400, 0.8),
	})

	assert.Equal(t, 5, overview.TotalTokens)
	assert.Equal(t, 4, overview.AnalyzedTokens)
	assert.Equal(t, 1000.0, overview.TotalMarketCap)
	assert.InDelta(t, 0.5, overview.AverageVolatility, 1e-12)
	assert.Equal(t, 2, overview.BullishTokens)
	assert.Equal(t, 1, overview.BearishTokens)
	assert.Equal(t, 1, overview.NeutralTokens)
}

func TestSummarizeMarket_Empty(t *testing.T) {
	overview := SummarizeMarket(3, nil)
	assert.Equal(t, MarketOverview{TotalTokens: 3}, overview)
}
