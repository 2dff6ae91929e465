package analytics

import (
	"math"
	"sync"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/volatility"

	"github.com/token-analytics/internal/types"
)

const bollingerPeriod = 20

// RiskAssessment is a 0-100 risk score derived from one Metrics snapshot
type RiskAssessment struct {
	Score           int             `json:"riskScore"`
	Level           types.RiskLevel `json:"riskLevel"`
	Factors         []string        `json:"riskFactors"`
	Recommendations []string        `json:"recommendations"`
}

type riskTier struct {
	above  float64
	points int
	factor string
}

var (
	volatilityTiers = []riskTier{
		{0.8, 30, "Extreme volatility"},
		{0.5, 20, "High volatility"},
		{0.3, 10, "Moderate volatility"},
	}
	concentrationTiers = []riskTier{
		{0.9, 25, "Extreme concentration"},
		{0.7, 15, "High concentration"},
		{0.5, 10, "Moderate concentration"},
	}
	paperhandTiers = []riskTier{
		{0.8, 20, "Very high paperhand ratio"},
		{0.6, 15, "High paperhand ratio"},
		{0.4, 10, "Moderate paperhand ratio"},
	}
)

// first matching tier wins
func scoreTier(value float64, tiers []riskTier) (int, string) {
	for _, t := range tiers {
		if value > t.above {
			return t.points, t.factor
		}
	}
	return 0, ""
}

// AssessRisk scores metrics on volatility, holder concentration,
// paperhand selling, liquidity and RSI extremes.
func AssessRisk(m types.Metrics) RiskAssessment {
	a := RiskAssessment{
		Factors:         []string{},
		Recommendations: []string{},
	}

	add := func(points int, factor string) {
		if points == 0 {
			return
		}
		a.Score += points
		a.Factors = append(a.Factors, factor)
	}

	add(scoreTier(m.Volatility, volatilityTiers))
	add(scoreTier(m.ConcentrationRatio, concentrationTiers))
	add(scoreTier(m.PaperhandRatio, paperhandTiers))

	switch {
	case m.Volume24h < m.MarketCap*0.01:
		add(15, "Very low volume")
	case m.Volume24h < m.MarketCap*0.05:
		add(10, "Low volume")
	}

	if rsi := m.TechnicalIndicators.RSI; rsi > 80 || rsi < 20 {
		add(10, "Extreme RSI levels")
	}

	if a.Score > 100 {
		a.Score = 100
	}
	a.Level = riskLevel(a.Score)
	a.Recommendations = recommendationsFor(a.Level)

	return a
}

func riskLevel(score int) types.RiskLevel {
	switch {
	case score >= 70:
		return types.RiskExtreme
	case score >= 50:
		return types.RiskHigh
	case score >= 30:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

func recommendationsFor(level types.RiskLevel) []string {
	switch level {
	case types.RiskExtreme:
		return []string{"Avoid new positions", "Exit or hedge existing exposure"}
	case types.RiskHigh:
		return []string{"Reduce position size", "Use tight stop losses"}
	case types.RiskMedium:
		return []string{"Monitor closely", "Use moderate position sizing"}
	default:
		return []string{"Standard position sizing"}
	}
}

// BollingerBands are the (20, 2) bands at the last price
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// RiskMetrics summarizes a price series
type RiskMetrics struct {
	Volatility     float64        `json:"volatility"`
	SharpeRatio    float64        `json:"sharpeRatio"`
	MaxDrawdown    float64        `json:"maxDrawdown"`
	BollingerBands BollingerBands `json:"bollingerBands"`
}

// ComputeRiskMetrics derives return statistics from prices in time order
func ComputeRiskMetrics(prices []float64) RiskMetrics {
	returns := simpleReturns(prices)
	vol := sampleStdDev(returns)

	rm := RiskMetrics{
		Volatility:     vol,
		MaxDrawdown:    maxDrawdown(returns),
		BollingerBands: Bollinger(prices),
	}
	if vol != 0 {
		rm.SharpeRatio = finite(Mean(returns) / vol)
	}
	return rm
}

func simpleReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns = append(returns, finite((prices[i]-prices[i-1])/prices[i-1]))
	}
	return returns
}

func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return finite(math.Sqrt(sq / float64(len(values)-1)))
}

// maxDrawdown walks cumulative returns and reports the deepest fall
// from a running peak as a non-positive number.
func maxDrawdown(returns []float64) float64 {
	var peak, cumulative, worst float64
	for _, r := range returns {
		cumulative += r
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > worst {
			worst = dd
		}
	}
	return -worst
}

// Bollinger returns the (20, 2) bands for the last 20 prices.
// With fewer prices all three bands equal the last price.
func Bollinger(prices []float64) BollingerBands {
	if len(prices) == 0 {
		return BollingerBands{}
	}
	if len(prices) < bollingerPeriod {
		last := prices[len(prices)-1]
		return BollingerBands{Upper: last, Middle: last, Lower: last}
	}

	window := prices[len(prices)-bollingerPeriod:]
	bb := volatility.NewBollingerBands[float64]()
	upperCh, middleCh, lowerCh := bb.Compute(helper.SliceToChan(window))

	// the three outputs share an upstream and must be drained together
	var (
		wg                   sync.WaitGroup
		upper, middle, lower []float64
	)
	wg.Add(3)
	go func() { defer wg.Done(); upper = helper.ChanToSlice(upperCh) }()
	go func() { defer wg.Done(); middle = helper.ChanToSlice(middleCh) }()
	go func() { defer wg.Done(); lower = helper.ChanToSlice(lowerCh) }()
	wg.Wait()

	if len(upper) == 0 || len(middle) == 0 || len(lower) == 0 {
		last := window[len(window)-1]
		return BollingerBands{Upper: last, Middle: last, Lower: last}
	}
	bands := BollingerBands{
		Upper:  upper[len(upper)-1],
		Middle: finite(middle[len(middle)-1]),
		Lower:  lower[len(lower)-1],
	}
	// rounding in the moving variance can go slightly negative on flat series
	if math.IsNaN(bands.Upper) || math.IsNaN(bands.Lower) {
		bands.Upper, bands.Lower = bands.Middle, bands.Middle
	}
	return bands
}
