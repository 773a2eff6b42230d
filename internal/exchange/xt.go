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

// xt implements the XT.com spot v4 API. Symbols are lowercase underscored.
// Signing: HMAC-SHA256 hex over the canonical validate headers joined with
// the path and body.
type xt struct {
	client    *restClient
	symbols   symbolMapper
	intervals intervalMap
}

func newXT(baseURL string) Adapter {
	return &xt{
		client:  newRESTClient("xt", baseURL, 200*time.Millisecond),
		symbols: symbolMapper{sep: "_", lowercase: true},
		intervals: intervalMap{
			hour: "1h",
			values: map[string]string{
				"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
				"1h": "1h", "4h": "4h", "1d": "1d", "1w": "1w",
			},
		},
	}
}

func (a *xt) Name() string { return "xt" }

func (a *xt) decode(body []byte, out interface{}) error {
	var env struct {
		RC     int             `json:"rc"`
		MC     string          `json:"mc"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("xt: parsing envelope: %w", err)
	}
	if env.RC != 0 {
		return &market.VenueError{Venue: "xt", HTTPStatus: 200, VenueCode: env.MC, Message: env.MC}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

func (a *xt) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("interval", a.intervals.toVenue(interval))
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v4/public/kline", query: q})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		T int64  `json:"t"`
		O string `json:"o"`
		H string `json:"h"`
		L string `json:"l"`
		C string `json:"c"`
		Q string `json:"q"` // base volume
	}
	if err := a.decode(body, &rows); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := tupleCandle(r.T, r.O, r.H, r.L, r.C, r.Q)
		if err != nil {
			return nil, fmt.Errorf("xt: parsing kline: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *xt) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v4/public/ticker/price", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Price string `json:"p"`
	}
	if err := a.decode(body, &rows); err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("xt: no ticker for %s", pair)
	}
	return decimal.NewFromString(rows[0].Price)
}

func (a *xt) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("limit", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v4/public/depth", query: q})
	if err != nil {
		return nil, err
	}

	var result struct {
		Bids [][]interface{} `json:"bids"`
		Asks [][]interface{} `json:"asks"`
	}
	if err := a.decode(body, &result); err != nil {
		return nil, err
	}
	return pairsBook(result.Bids, result.Asks)
}

func (a *xt) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("currency", currency)

	body, err := a.signed(ctx, creds, "GET", "/v4/balance", q, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		AvailableAmount string `json:"availableAmount"`
	}
	if err := a.decode(body, &result); err != nil {
		return decimal.Zero, err
	}
	if result.AvailableAmount == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(result.AvailableAmount)
}

func (a *xt) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// Market buys are sized in quote via quoteQty.
	return a.submitOrder(ctx, creds, pair, "BUY", map[string]string{"quoteQty": quoteAmount.String()})
}

func (a *xt) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "SELL", map[string]string{"quantity": baseQuantity.String()})
}

func (a *xt) submitOrder(ctx context.Context, creds market.Credentials, pair, side string, sizing map[string]string) (*market.Fill, error) {
	params := map[string]string{
		"symbol":      a.symbols.toVenue(pair),
		"side":        side,
		"type":        "MARKET",
		"timeInForce": "IOC",
		"bizType":     "SPOT",
	}
	for k, v := range sizing {
		params[k] = v
	}
	payload, _ := json.Marshal(params)

	body, err := a.signed(ctx, creds, "POST", "/v4/order", nil, payload)
	if err != nil {
		return nil, err
	}

	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := a.decode(body, &created); err != nil {
		return nil, err
	}

	detailBody, err := a.signed(ctx, creds, "GET", "/v4/order/"+created.OrderID, nil, nil)
	if err != nil {
		return nil, err
	}

	var detail struct {
		AvgPrice       string `json:"avgPrice"`
		ExecutedQty    string `json:"executedQty"`
		ExecutedAmount string `json:"executedAmount"` // quote
		Fee            string `json:"fee"`
		FeeCurrency    string `json:"feeCurrency"`
	}
	if err := a.decode(detailBody, &detail); err != nil {
		return nil, err
	}

	price, _ := decimal.NewFromString(detail.AvgPrice)
	qty, _ := decimal.NewFromString(detail.ExecutedQty)
	value, _ := decimal.NewFromString(detail.ExecutedAmount)
	fee, _ := decimal.NewFromString(detail.Fee)

	return &market.Fill{
		OrderID:          created.OrderID,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              fee,
		FeeCurrency:      detail.FeeCurrency,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *xt) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "GET", "/v4/balances", nil, nil)
	return err
}

func (a *xt) signed(ctx context.Context, creds market.Credentials, method, path string, q url.Values, body []byte) ([]byte, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	validate := "xt-validate-algorithms=HmacSHA256&xt-validate-appkey=" + creds.APIKey +
		"&xt-validate-recvwindow=5000&xt-validate-timestamp=" + ts

	payload := validate + "#" + path
	if q != nil && len(q) > 0 {
		payload += "#" + q.Encode()
	}
	if body != nil {
		payload += "#" + string(body)
	}

	headers := map[string]string{
		"xt-validate-algorithms": "HmacSHA256",
		"xt-validate-appkey":     creds.APIKey,
		"xt-validate-recvwindow": "5000",
		"xt-validate-timestamp":  ts,
		"xt-validate-signature":  signSHA256Hex(creds.APISecret, payload),
	}
	if body != nil {
		headers["Content-Type"] = "application/json"
	}
	timeout := marketDataTimeout
	if method == "POST" {
		timeout = orderTimeout
	}
	return a.client.do(ctx, restRequest{method: method, path: path, query: q, headers: headers, body: body, timeout: timeout})
}
