package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

// bitmart implements the BitMart spot API. Pairs are underscored. Signing:
// HMAC-SHA256 hex over "<ts>#<memo>#<body>"; BitMart keys carry a user
// memo alongside the key and secret.
type bitmart struct {
	client    *restClient
	symbols   symbolMapper
	intervals intervalMap
}

// BitMart order details omit fees; the taker rate is applied to the
// executed value.
var bitmartTakerFee = decimal.NewFromFloat(0.0025)

func newBitMart(baseURL string) Adapter {
	return &bitmart{
		client:  newRESTClient("bitmart", baseURL, 200*time.Millisecond),
		symbols: symbolMapper{sep: "_"},
		intervals: intervalMap{
			hour: "60",
			values: map[string]string{
				"1m": "1", "5m": "5", "15m": "15", "30m": "30",
				"1h": "60", "2h": "120", "4h": "240",
				"1d": "1440", "1w": "10080",
			},
		},
	}
}

func (a *bitmart) Name() string { return "bitmart" }

func (a *bitmart) decode(body []byte, out interface{}) error {
	var env struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("bitmart: parsing envelope: %w", err)
	}
	if env.Code != 1000 {
		return &market.VenueError{Venue: "bitmart", HTTPStatus: 200, VenueCode: strconv.Itoa(env.Code), Message: env.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (a *bitmart) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("step", a.intervals.toVenue(interval))
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/spot/quotation/v3/klines", query: q})
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	if err := a.decode(body, &rows); err != nil {
		return nil, err
	}

	// Wire order is [ts(sec), open, high, low, close, base volume, quote volume].
	candles := make([]market.Candle, 0, len(rows))
	for _, k := range rows {
		if len(k) < 6 {
			continue
		}
		c, err := tupleCandle(k[0], k[1], k[2], k[3], k[4], k[5])
		if err != nil {
			return nil, fmt.Errorf("bitmart: parsing kline: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *bitmart) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/spot/quotation/v3/ticker", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var data struct {
		Last string `json:"last"`
	}
	if err := a.decode(body, &data); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(data.Last)
}

func (a *bitmart) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("limit", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/spot/quotation/v3/books", query: q})
	if err != nil {
		return nil, err
	}

	var data struct {
		Bids [][]interface{} `json:"bids"`
		Asks [][]interface{} `json:"asks"`
	}
	if err := a.decode(body, &data); err != nil {
		return nil, err
	}
	return pairsBook(data.Bids, data.Asks)
}

func (a *bitmart) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("currency", currency)

	body, err := a.signedGet(ctx, creds, "/account/v1/wallet", q)
	if err != nil {
		return decimal.Zero, err
	}

	var data struct {
		Wallet []struct {
			Currency  string `json:"currency"`
			Available string `json:"available"`
		} `json:"wallet"`
	}
	if err := a.decode(body, &data); err != nil {
		return decimal.Zero, err
	}
	for _, w := range data.Wallet {
		if w.Currency == currency {
			return decimal.NewFromString(w.Available)
		}
	}
	return decimal.Zero, nil
}

func (a *bitmart) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// Market buys are sized by notional (quote), sells by size (base).
	return a.submitOrder(ctx, creds, pair, "buy", map[string]string{"notional": quoteAmount.String()})
}

func (a *bitmart) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "sell", map[string]string{"size": baseQuantity.String()})
}

func (a *bitmart) submitOrder(ctx context.Context, creds market.Credentials, pair, side string, sizing map[string]string) (*market.Fill, error) {
	params := map[string]string{
		"symbol": a.symbols.toVenue(pair),
		"side":   side,
		"type":   "market",
	}
	for k, v := range sizing {
		params[k] = v
	}
	payload, _ := json.Marshal(params)

	body, err := a.signedPost(ctx, creds, "/spot/v2/submit_order", payload)
	if err != nil {
		return nil, err
	}

	var created struct {
		OrderID string `json:"order_id"`
	}
	if err := a.decode(body, &created); err != nil {
		return nil, err
	}

	queryPayload, _ := json.Marshal(map[string]string{"orderId": created.OrderID})
	detailBody, err := a.signedPost(ctx, creds, "/spot/v4/query/order", queryPayload)
	if err != nil {
		return nil, err
	}

	var detail struct {
		FilledSize     string `json:"filledSize"`
		FilledNotional string `json:"filledNotional"`
		PriceAvg       string `json:"priceAvg"`
	}
	if err := a.decode(detailBody, &detail); err != nil {
		return nil, err
	}

	qty, _ := decimal.NewFromString(detail.FilledSize)
	value, _ := decimal.NewFromString(detail.FilledNotional)
	price, _ := decimal.NewFromString(detail.PriceAvg)

	return &market.Fill{
		OrderID:          created.OrderID,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              value.Mul(bitmartTakerFee),
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *bitmart) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signedGet(ctx, creds, "/account/v1/wallet", url.Values{})
	return err
}

// Keyed GETs only need the key header; signed POSTs add the timestamped
// memo signature.
func (a *bitmart) signedGet(ctx context.Context, creds market.Credentials, path string, q url.Values) ([]byte, error) {
	headers := map[string]string{"X-BM-KEY": creds.APIKey}
	return a.client.do(ctx, restRequest{method: "GET", path: path, query: q, headers: headers})
}

func (a *bitmart) signedPost(ctx context.Context, creds market.Credentials, path string, body []byte) ([]byte, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signSHA256Hex(creds.APISecret, ts+"#"+creds.Memo+"#"+string(body))

	headers := map[string]string{
		"X-BM-KEY":       creds.APIKey,
		"X-BM-TIMESTAMP": ts,
		"X-BM-SIGN":      sign,
		"Content-Type":   "application/json",
	}
	return a.client.do(ctx, restRequest{method: "POST", path: path, headers: headers, body: body, timeout: orderTimeout})
}
