package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRecommendationDirection(t *testing.T) {
	properties := gopter.NewProperties(nil)

	all := []interface{}{
		RecommendationStrongBuy,
		RecommendationBuy,
		RecommendationHold,
		RecommendationSell,
		RecommendationStrongSell,
	}

	properties.Property("a recommendation is never both bullish and bearish", prop.ForAll(
		func(r Recommendation) bool {
			return !(r.IsBullish() && r.IsBearish())
		},
		gen.OneConstOf(all...),
	))

	properties.Property("hold is neutral", prop.ForAll(
		func(r Recommendation) bool {
			if r == RecommendationHold {
				return !r.IsBullish() && !r.IsBearish()
			}
			return r.IsBullish() || r.IsBearish()
		},
		gen.OneConstOf(all...),
	))

	properties.TestingRun(t)
}
