package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is the canonical OHLCV bar every adapter normalises to.
type Candle struct {
	Timestamp int64           `json:"timestamp"` // open time, milliseconds
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Level is one price level of an order book side.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook holds both sides, best first.
type OrderBook struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// BestBid returns the top bid, or an error on an empty side.
func (ob *OrderBook) BestBid() (Level, error) {
	if len(ob.Bids) == 0 {
		return Level{}, fmt.Errorf("order book has no bids")
	}
	return ob.Bids[0], nil
}

// BestAsk returns the top ask, or an error on an empty side.
func (ob *OrderBook) BestAsk() (Level, error) {
	if len(ob.Asks) == 0 {
		return Level{}, fmt.Errorf("order book has no asks")
	}
	return ob.Asks[0], nil
}

// Fill is the normalised result of a market order on any venue.
type Fill struct {
	OrderID          string          `json:"order_id"`
	ExecutedPrice    decimal.Decimal `json:"executed_price"`
	ExecutedQuantity decimal.Decimal `json:"executed_quantity"`
	ExecutedValue    decimal.Decimal `json:"executed_value"` // quote notional
	Fee              decimal.Decimal `json:"fee"`
	FeeCurrency      string          `json:"fee_currency,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// Credentials flow as parameters into every authenticated adapter call.
// They are never stored on adapter instances and never logged.
type Credentials struct {
	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
	Passphrase string `json:"passphrase,omitempty"` // OKX-family
	Memo       string `json:"memo,omitempty"`       // BitMart
}

// HasKeys reports whether the pair of mandatory fields is present.
func (c Credentials) HasKeys() bool {
	return c.APIKey != "" && c.APISecret != ""
}
