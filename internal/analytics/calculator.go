// Package analytics turns raw trade and holder data into metrics and risk
// assessments. Every function here is total: degenerate inputs produce
// defined defaults instead of errors, and no ratio is ever NaN or infinite.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/token-analytics/internal/types"
)

const (
	hourMillis = int64(time.Hour / time.Millisecond)
	dayMillis  = 24 * hourMillis

	topHolderCount = 10
)

// Calculator computes Metrics snapshots
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a calculator using the wall clock
func NewCalculator() *Calculator {
	return &Calculator{now: time.Now}
}

// NewCalculatorWithClock creates a calculator with an injected clock
func NewCalculatorWithClock(now func() time.Time) *Calculator {
	return &Calculator{now: now}
}

// Calculate computes metrics for token at the calculator's current time
func (c *Calculator) Calculate(token types.Token, trades []types.Trade, holders []types.Holder) types.Metrics {
	return CalculateAt(c.now().UnixMilli(), token, trades, holders)
}

// CalculateAt computes metrics relative to nowMillis.
// Trades may be in any order; indicators use them sorted by timestamp.
func CalculateAt(nowMillis int64, token types.Token, trades []types.Trade, holders []types.Holder) types.Metrics {
	var m types.Metrics

	m.MarketCap = finite(token.Price * token.Supply)

	for _, t := range trades {
		if nowMillis-t.Timestamp < hourMillis {
			m.HourlyTrades++
		}
	}

	m.ConcentrationRatio = concentrationRatio(holders, token.Supply)
	m.PaperhandRatio = paperhandRatio(trades)

	prices := pricesByTime(trades)
	m.Volatility = coefficientOfVariation(prices)

	for _, t := range trades {
		if nowMillis-t.Timestamp < dayMillis {
			m.Volume24h += t.Volume
		}
	}
	m.Volume24h = finite(m.Volume24h)

	m.TechnicalIndicators = types.TechnicalIndicators{
		SMA:  SMA(prices, smaPeriod),
		RSI:  RSI(prices, rsiPeriod),
		MACD: MACD(prices),
	}

	return m
}

// concentrationRatio is the share of supply held by the top holders.
// holders are expected ranked by balance descending.
func concentrationRatio(holders []types.Holder, supply float64) float64 {
	if supply == 0 {
		return 0
	}

	n := len(holders)
	if n > topHolderCount {
		n = topHolderCount
	}

	var top float64
	for _, h := range holders[:n] {
		top += h.Balance
	}
	return finite(top / supply)
}

func paperhandRatio(trades []types.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}

	var paperhands int
	for _, t := range trades {
		if t.Type == types.TradeSell && t.HoldingTime < hourMillis {
			paperhands++
		}
	}
	return float64(paperhands) / float64(len(trades))
}

// coefficientOfVariation returns population stddev / mean
func coefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := Mean(values)
	if mean == 0 {
		return 0
	}

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)))
	return finite(std / mean)
}

func pricesByTime(trades []types.Trade) []float64 {
	sorted := make([]types.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	prices := make([]float64, len(sorted))
	for i, t := range sorted {
		prices[i] = t.Price
	}
	return prices
}

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// finite maps NaN and ±Inf to 0
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
