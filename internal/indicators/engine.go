package indicators

import (
	"fmt"
	"math"

	"momentum-arb-bot/internal/market"
)

// MinCandles is the shortest candle history any trigger evaluates against.
const MinCandles = 50

// Trigger is one indicator's boolean conclusion plus the value it was
// derived from, recorded on the position as an entry signal.
type Trigger struct {
	Name      string  `json:"name"`
	Triggered bool    `json:"triggered"`
	Value     float64 `json:"value"`
}

// Params carries an indicator's numeric configuration. Missing keys fall
// back to defaults.
type Params map[string]float64

func (p Params) get(key string, fallback float64) float64 {
	if v, ok := p[key]; ok && v > 0 {
		return v
	}
	return fallback
}

type triggerFunc func(series candleSeries, p Params) (Trigger, error)

var triggerFuncs = map[string]triggerFunc{
	"rsi":        rsiTrigger,
	"volume":     volumeTrigger,
	"macd":       macdTrigger,
	"ema":        emaTrigger,
	"bollinger":  bollingerTrigger,
	"stochastic": stochasticTrigger,
}

// Names lists the supported indicator names.
func Names() []string {
	names := make([]string, 0, len(triggerFuncs))
	for n := range triggerFuncs {
		names = append(names, n)
	}
	return names
}

// Evaluate computes one named trigger over a candle sequence. Unknown names
// and short histories are errors; the caller decides whether an error
// aborts anything (it never aborts a strategy cycle).
func Evaluate(name string, candles []market.Candle, p Params) (Trigger, error) {
	fn, ok := triggerFuncs[name]
	if !ok {
		return Trigger{Name: name}, fmt.Errorf("unknown indicator %q", name)
	}
	if len(candles) < MinCandles {
		return Trigger{Name: name}, fmt.Errorf("%s: need %d candles, have %d", name, MinCandles, len(candles))
	}
	if p == nil {
		p = Params{}
	}

	t, err := fn(newCandleSeries(candles), p)
	if err != nil {
		return Trigger{Name: name}, err
	}
	if math.IsNaN(t.Value) || math.IsInf(t.Value, 0) {
		return Trigger{Name: name}, fmt.Errorf("%s: non-finite value", name)
	}
	t.Name = name
	return t, nil
}

type candleSeries struct {
	opens, highs, lows, closes, volumes []float64
}

func newCandleSeries(candles []market.Candle) candleSeries {
	s := candleSeries{
		opens:   make([]float64, len(candles)),
		highs:   make([]float64, len(candles)),
		lows:    make([]float64, len(candles)),
		closes:  make([]float64, len(candles)),
		volumes: make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.opens[i] = c.Open.InexactFloat64()
		s.highs[i] = c.High.InexactFloat64()
		s.lows[i] = c.Low.InexactFloat64()
		s.closes[i] = c.Close.InexactFloat64()
		s.volumes[i] = c.Volume.InexactFloat64()
	}
	return s
}

// rsiTrigger fires when RSI crosses up out of the oversold zone.
func rsiTrigger(s candleSeries, p Params) (Trigger, error) {
	period := int(p.get("period", 14))
	oversold := p.get("oversold", 30)

	series, err := RSISeries(s.closes, period)
	if err != nil {
		return Trigger{}, err
	}
	curr := series[len(series)-1]
	prev := series[len(series)-2]
	return Trigger{Triggered: prev <= oversold && curr > oversold, Value: curr}, nil
}

// volumeTrigger fires when the last bar's volume is a multiple of the
// rolling average of the bars before it.
func volumeTrigger(s candleSeries, p Params) (Trigger, error) {
	lookback := int(p.get("lookback", 20))
	multiplier := p.get("multiplier", 2.0)

	if len(s.volumes) < lookback+1 {
		return Trigger{}, fmt.Errorf("volume: need %d bars, have %d", lookback+1, len(s.volumes))
	}
	prior := s.volumes[len(s.volumes)-1-lookback : len(s.volumes)-1]
	avg, err := SMA(prior, lookback)
	if err != nil {
		return Trigger{}, err
	}
	if avg == 0 {
		return Trigger{}, fmt.Errorf("volume: zero average volume")
	}
	ratio := s.volumes[len(s.volumes)-1] / avg
	return Trigger{Triggered: ratio >= multiplier, Value: ratio}, nil
}

// macdTrigger fires on a bullish crossover of the MACD line over its signal.
func macdTrigger(s candleSeries, p Params) (Trigger, error) {
	fast := int(p.get("fast", 12))
	slow := int(p.get("slow", 26))
	signal := int(p.get("signal", 9))

	macd, signalLine, err := MACDSeries(s.closes, fast, slow, signal)
	if err != nil {
		return Trigger{}, err
	}
	n := len(macd)
	crossed := macd[n-2] <= signalLine[n-2] && macd[n-1] > signalLine[n-1]
	return Trigger{Triggered: crossed, Value: macd[n-1] - signalLine[n-1]}, nil
}

// emaTrigger fires when the fast EMA crosses above the slow EMA.
func emaTrigger(s candleSeries, p Params) (Trigger, error) {
	fast := int(p.get("fast", 9))
	slow := int(p.get("slow", 21))
	if fast >= slow {
		return Trigger{}, fmt.Errorf("ema: fast period %d must be below slow %d", fast, slow)
	}

	fastSeries, err := EMASeries(s.closes, fast)
	if err != nil {
		return Trigger{}, err
	}
	slowSeries, err := EMASeries(s.closes, slow)
	if err != nil {
		return Trigger{}, err
	}
	n := len(s.closes)
	crossed := fastSeries[n-2] <= slowSeries[n-2] && fastSeries[n-1] > slowSeries[n-1]
	return Trigger{Triggered: crossed, Value: fastSeries[n-1] - slowSeries[n-1]}, nil
}

// bollingerTrigger fires when the close sits within tolerance of the lower
// band.
func bollingerTrigger(s candleSeries, p Params) (Trigger, error) {
	period := int(p.get("period", 20))
	mult := p.get("mult", 2.0)
	tolerance := p.get("tolerance", 0.005)

	_, _, lower, err := Bollinger(s.closes, period, mult)
	if err != nil {
		return Trigger{}, err
	}
	last := s.closes[len(s.closes)-1]
	if lower <= 0 {
		return Trigger{}, fmt.Errorf("bollinger: non-positive lower band")
	}
	distance := (last - lower) / lower
	return Trigger{Triggered: distance <= tolerance, Value: last - lower}, nil
}

// stochasticTrigger fires when %K sits in the oversold zone.
func stochasticTrigger(s candleSeries, p Params) (Trigger, error) {
	period := int(p.get("period", 14))
	oversold := p.get("oversold", 20)

	k, err := StochasticK(s.highs, s.lows, s.closes, period)
	if err != nil {
		return Trigger{}, err
	}
	return Trigger{Triggered: k < oversold, Value: k}, nil
}
