package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

func almost(t *testing.T, got, want, eps float64, label string) {
	t.Helper()
	if math.Abs(got-want) > eps {
		t.Errorf("%s = %f, want %f (±%f)", label, got, want, eps)
	}
}

func TestSMA(t *testing.T) {
	got, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatal(err)
	}
	almost(t, got, 4, 1e-9, "SMA")

	if _, err := SMA([]float64{1, 2}, 3); err == nil {
		t.Error("short input must fail")
	}
	if _, err := SMA([]float64{1, 2}, 0); err == nil {
		t.Error("zero period must fail")
	}
}

func TestEMASeriesSeedAndSmoothing(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	series, err := EMASeries(values, 3)
	if err != nil {
		t.Fatal(err)
	}
	// Seeded with SMA(1,2,3) = 2, then k = 0.5:
	// ema[3] = 4*0.5 + 2*0.5 = 3; ema[4] = 5*0.5 + 3*0.5 = 4
	almost(t, series[2], 2, 1e-9, "seed")
	almost(t, series[3], 3, 1e-9, "ema[3]")
	almost(t, series[4], 4, 1e-9, "ema[4]")
}

func TestEMAConvergesToConstant(t *testing.T) {
	values := make([]float64, 200)
	for i := range values {
		values[i] = 42
	}
	series, err := EMASeries(values, 12)
	if err != nil {
		t.Fatal(err)
	}
	almost(t, series[len(series)-1], 42, 1e-9, "constant EMA")
}

func TestRSIExtremes(t *testing.T) {
	up := make([]float64, 30)
	for i := range up {
		up[i] = float64(i + 1)
	}
	series, err := RSISeries(up, 14)
	if err != nil {
		t.Fatal(err)
	}
	almost(t, series[len(series)-1], 100, 1e-9, "RSI of monotone rise")

	down := make([]float64, 30)
	for i := range down {
		down[i] = float64(100 - i)
	}
	series, err = RSISeries(down, 14)
	if err != nil {
		t.Fatal(err)
	}
	almost(t, series[len(series)-1], 0, 1e-9, "RSI of monotone fall")
}

func TestRSIMidrange(t *testing.T) {
	// Alternating equal up and down moves settle near 50.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i%2)
	}
	series, err := RSISeries(closes, 14)
	if err != nil {
		t.Fatal(err)
	}
	last := series[len(series)-1]
	if last < 40 || last > 60 {
		t.Errorf("RSI of alternating series = %f, want near 50", last)
	}
}

func TestMACDFlatSeriesIsZero(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	macd, signal, err := MACDSeries(closes, 12, 26, 9)
	if err != nil {
		t.Fatal(err)
	}
	almost(t, macd[len(macd)-1], 0, 1e-9, "MACD of flat series")
	almost(t, signal[len(signal)-1], 0, 1e-9, "signal of flat series")
}

func TestMACDRejectsBadPeriods(t *testing.T) {
	closes := make([]float64, 60)
	if _, _, err := MACDSeries(closes, 26, 12, 9); err == nil {
		t.Error("fast >= slow must fail")
	}
	if _, _, err := MACDSeries(closes[:20], 12, 26, 9); err == nil {
		t.Error("short history must fail")
	}
}

func TestBollinger(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	middle, upper, lower, err := Bollinger(closes, 8, 2)
	if err != nil {
		t.Fatal(err)
	}
	// mean 5, population sd 2
	almost(t, middle, 5, 1e-9, "middle")
	almost(t, upper, 9, 1e-9, "upper")
	almost(t, lower, 1, 1e-9, "lower")
}

func TestStochasticK(t *testing.T) {
	highs := []float64{10, 12, 11, 13, 14}
	lows := []float64{8, 9, 9, 10, 11}
	closes := []float64{9, 11, 10, 12, 12.5}
	k, err := StochasticK(highs, lows, closes, 5)
	if err != nil {
		t.Fatal(err)
	}
	// range 8..14, close 12.5 -> (12.5-8)/6*100 = 75
	almost(t, k, 75, 1e-9, "%K")
}

func TestStochasticKFlatRange(t *testing.T) {
	flat := []float64{5, 5, 5}
	k, err := StochasticK(flat, flat, flat, 3)
	if err != nil {
		t.Fatal(err)
	}
	almost(t, k, 50, 1e-9, "%K of flat range")
}

func candlesFromCloses(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		out[i] = market.Candle{
			Timestamp: base + int64(i)*time.Hour.Milliseconds(),
			Open:      price,
			High:      price.Add(decimal.NewFromInt(1)),
			Low:       price.Sub(decimal.NewFromInt(1)),
			Close:     price,
			Volume:    decimal.NewFromInt(100),
		}
	}
	return out
}

func TestEvaluateUnknownIndicator(t *testing.T) {
	candles := candlesFromCloses(make([]float64, MinCandles))
	if _, err := Evaluate("ichimoku", candles, nil); err == nil {
		t.Error("unknown indicator must fail")
	}
}

func TestEvaluateShortHistory(t *testing.T) {
	candles := candlesFromCloses(make([]float64, MinCandles-1))
	if _, err := Evaluate("rsi", candles, nil); err == nil {
		t.Error("short history must fail")
	}
}

func TestEvaluateRSICrossUp(t *testing.T) {
	// A long decline keeps RSI oversold, then a sharp rally crosses back up.
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 200 - float64(i)*2
	}
	closes[len(closes)-1] = closes[len(closes)-2] + 40

	trig, err := Evaluate("rsi", candlesFromCloses(closes), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !trig.Triggered {
		t.Errorf("oversold cross-up did not trigger, value=%f", trig.Value)
	}
	if trig.Name != "rsi" {
		t.Errorf("trigger name = %q, want rsi", trig.Name)
	}
}

func TestEvaluateVolumeSpike(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 60))
	for i := range candles {
		candles[i].Close = decimal.NewFromInt(100)
		candles[i].Volume = decimal.NewFromInt(100)
	}
	candles[len(candles)-1].Volume = decimal.NewFromInt(500)

	trig, err := Evaluate("volume", candles, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !trig.Triggered {
		t.Errorf("5x volume spike did not trigger, ratio=%f", trig.Value)
	}
	almost(t, trig.Value, 5, 1e-9, "volume ratio")
}

func TestEvaluateParamsOverrideDefaults(t *testing.T) {
	candles := candlesFromCloses(make([]float64, 60))
	for i := range candles {
		candles[i].Volume = decimal.NewFromInt(100)
	}
	candles[len(candles)-1].Volume = decimal.NewFromInt(250)

	low, err := Evaluate("volume", candles, Params{"multiplier": 2})
	if err != nil {
		t.Fatal(err)
	}
	high, err := Evaluate("volume", candles, Params{"multiplier": 3})
	if err != nil {
		t.Fatal(err)
	}
	if !low.Triggered || high.Triggered {
		t.Errorf("multiplier override ignored: low=%v high=%v", low.Triggered, high.Triggered)
	}
}

func TestNamesCoversAllTriggers(t *testing.T) {
	names := Names()
	if len(names) != len(triggerFuncs) {
		t.Fatalf("Names() has %d entries, want %d", len(names), len(triggerFuncs))
	}
	for _, n := range names {
		if _, ok := triggerFuncs[n]; !ok {
			t.Errorf("Names() lists unknown trigger %q", n)
		}
	}
}
