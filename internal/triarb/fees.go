package triarb

import "github.com/shopspring/decimal"

// defaultTakerFee is used for venues without a table entry
var defaultTakerFee = decimal.NewFromFloat(0.002)

// takerFees holds per-venue taker rates applied to every leg of a path.
// Rates are the venues' published base tiers; promotional tiers are ignored.
var takerFees = map[string]decimal.Decimal{
	"binance":   decimal.NewFromFloat(0.001),
	"binanceus": decimal.NewFromFloat(0.001),
	"mexc":      decimal.NewFromFloat(0.001),
	"bybit":     decimal.NewFromFloat(0.001),
	"okx":       decimal.NewFromFloat(0.001),
	"kucoin":    decimal.NewFromFloat(0.001),
	"bitget":    decimal.NewFromFloat(0.001),
	"gateio":    decimal.NewFromFloat(0.002),
	"htx":       decimal.NewFromFloat(0.002),
	"xt":        decimal.NewFromFloat(0.002),
	"kraken":    decimal.NewFromFloat(0.0026),
	"coinbase":  decimal.NewFromFloat(0.006),
	"gemini":    decimal.NewFromFloat(0.0035),
	"bitfinex":  decimal.NewFromFloat(0.002),
	"bitmart":   decimal.NewFromFloat(0.0025),
	"cryptocom": decimal.NewFromFloat(0.0025),
	"ascendex":  decimal.NewFromFloat(0.002),
	"valr":      decimal.NewFromFloat(0.001),
	"luno":      decimal.NewFromFloat(0.001),
	"chainex":   decimal.NewFromFloat(0.001),
}

// TakerFee returns the per-leg taker rate for a venue
func TakerFee(exchange string) decimal.Decimal {
	if fee, ok := takerFees[exchange]; ok {
		return fee
	}
	return defaultTakerFee
}
