package analytics

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

const (
	smaPeriod      = 20
	rsiPeriod      = 14
	macdFastPeriod = 12
	macdSlowPeriod = 26

	neutralRSI = 50.0
)

// SMA returns the simple moving average of the last period prices,
// or of all prices when fewer are available.
func SMA(prices []float64, period int) float64 {
	if len(prices) == 0 || period <= 0 {
		return 0
	}
	if len(prices) < period {
		period = len(prices)
	}

	window := prices[len(prices)-period:]
	sma := trend.NewSmaWithPeriod[float64](period)
	out := helper.ChanToSlice(sma.Compute(helper.SliceToChan(window)))
	if len(out) == 0 {
		return 0
	}
	return finite(out[len(out)-1])
}

// RSI returns the relative strength index over the last period price changes.
// It is neutral (50) until period+1 prices exist and 100 when there were no losses.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return neutralRSI
	}

	var gains, losses float64
	n := len(prices)
	for i := 1; i <= period; i++ {
		change := prices[n-i] - prices[n-i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return finite(100 - 100/(1+rs))
}

// EMA returns the exponential moving average seeded with the first price
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}

	k := 2 / float64(period+1)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = p*k + ema*(1-k)
	}
	return ema
}

// MACD returns EMA(12) - EMA(26)
func MACD(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	return finite(EMA(prices, macdFastPeriod) - EMA(prices, macdSlowPeriod))
}
