package indicators

import (
	"fmt"
	"math"
)

// Indicator math runs on float64: these are statistical values, not money.
// Monetary amounts never pass through this package.

// SMA returns the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if len(values) < period || period <= 0 {
		return 0, fmt.Errorf("sma: need %d values, have %d", period, len(values))
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}

// EMASeries returns the exponential moving average at every index from
// period-1 onward, seeded with the SMA of the first period values.
func EMASeries(values []float64, period int) ([]float64, error) {
	if len(values) < period || period <= 0 {
		return nil, fmt.Errorf("ema: need %d values, have %d", period, len(values))
	}
	out := make([]float64, len(values))
	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	out[period-1] = seed / float64(period)

	k := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1.0-k)
	}
	return out, nil
}

// RSISeries returns Wilder-smoothed RSI values aligned to the input; indexes
// below period are zero.
func RSISeries(closes []float64, period int) ([]float64, error) {
	if len(closes) < period+1 || period <= 0 {
		return nil, fmt.Errorf("rsi: need %d closes, have %d", period+1, len(closes))
	}

	gains := 0.0
	losses := 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	out := make([]float64, len(closes))
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out, nil
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACDSeries returns the MACD line and its signal line. Indexes before the
// slow+signal warmup carry zero.
func MACDSeries(closes []float64, fast, slow, signal int) (macd, signalLine []float64, err error) {
	if fast >= slow {
		return nil, nil, fmt.Errorf("macd: fast period %d must be below slow %d", fast, slow)
	}
	need := slow + signal
	if len(closes) < need {
		return nil, nil, fmt.Errorf("macd: need %d closes, have %d", need, len(closes))
	}

	fastEMA, err := EMASeries(closes, fast)
	if err != nil {
		return nil, nil, err
	}
	slowEMA, err := EMASeries(closes, slow)
	if err != nil {
		return nil, nil, err
	}

	macd = make([]float64, len(closes))
	for i := slow - 1; i < len(closes); i++ {
		macd[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine, err = EMASeries(macd[slow-1:], signal)
	if err != nil {
		return nil, nil, err
	}
	// Realign the signal line to the close index space.
	aligned := make([]float64, len(closes))
	copy(aligned[slow-1:], signalLine)
	return macd, aligned, nil
}

// Bollinger returns the middle, upper and lower band for the last candle.
func Bollinger(closes []float64, period int, mult float64) (middle, upper, lower float64, err error) {
	if len(closes) < period || period <= 0 {
		return 0, 0, 0, fmt.Errorf("bollinger: need %d closes, have %d", period, len(closes))
	}
	window := closes[len(closes)-period:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)

	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(variance / float64(period))

	return mean, mean + mult*sd, mean - mult*sd, nil
}

// StochasticK returns the %K value for the last candle over the lookback
// period.
func StochasticK(highs, lows, closes []float64, period int) (float64, error) {
	if len(closes) < period || len(highs) < period || len(lows) < period || period <= 0 {
		return 0, fmt.Errorf("stochastic: need %d candles, have %d", period, len(closes))
	}
	hh := highs[len(highs)-period]
	ll := lows[len(lows)-period]
	for _, h := range highs[len(highs)-period:] {
		if h > hh {
			hh = h
		}
	}
	for _, l := range lows[len(lows)-period:] {
		if l < ll {
			ll = l
		}
	}
	if hh == ll {
		return 50, nil
	}
	last := closes[len(closes)-1]
	return (last - ll) / (hh - ll) * 100, nil
}
