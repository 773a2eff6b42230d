package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

// kucoin implements the KuCoin v1/v2 spot API.
// Signing: base64 HMAC-SHA256 over ts+method+path+body; the passphrase header
// is itself signed (API key version 2).
type kucoin struct {
	client    *restClient
	symbols   symbolMapper
	intervals intervalMap
}

func newKuCoin(baseURL string) Adapter {
	return &kucoin{
		client:  newRESTClient("kucoin", baseURL, 200*time.Millisecond),
		symbols: symbolMapper{sep: "-"},
		intervals: intervalMap{
			hour: "1hour",
			values: map[string]string{
				"1m": "1min", "3m": "3min", "5m": "5min", "15m": "15min", "30m": "30min",
				"1h": "1hour", "2h": "2hour", "4h": "4hour", "6h": "6hour", "12h": "12hour",
				"1d": "1day", "1w": "1week",
			},
		},
	}
}

func (a *kucoin) Name() string { return "kucoin" }

func (a *kucoin) decode(body []byte, out interface{}) error {
	var env struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("kucoin: parsing envelope: %w", err)
	}
	if env.Code != "200000" {
		return &market.VenueError{Venue: "kucoin", HTTPStatus: 200, VenueCode: env.Code, Message: env.Msg}
	}
	return json.Unmarshal(env.Data, out)
}

func (a *kucoin) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("type", a.intervals.toVenue(interval))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v1/market/candles", query: q})
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	if err := a.decode(body, &rows); err != nil {
		return nil, err
	}

	// KuCoin order is [time, open, close, high, low, volume, turnover],
	// newest first, timestamps in seconds.
	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		k := rows[i]
		if len(k) < 6 {
			continue
		}
		c, err := tupleCandle(k[0], k[1], k[3], k[4], k[2], k[5])
		if err != nil {
			return nil, fmt.Errorf("kucoin: parsing candle: %w", err)
		}
		candles = append(candles, c)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (a *kucoin) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v1/market/orderbook/level1", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var data struct {
		Price string `json:"price"`
	}
	if err := a.decode(body, &data); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(data.Price)
}

func (a *kucoin) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v1/market/orderbook/level2_20", query: q})
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

func (a *kucoin) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	path := "/api/v1/accounts?currency=" + url.QueryEscape(currency) + "&type=trade"
	body, err := a.signed(ctx, creds, "GET", path, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
	}
	if err := a.decode(body, &rows); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, r := range rows {
		if r.Currency == currency {
			avail, err := decimal.NewFromString(r.Available)
			if err != nil {
				continue
			}
			total = total.Add(avail)
		}
	}
	return total, nil
}

func (a *kucoin) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "buy", map[string]string{"funds": quoteAmount.String()})
}

func (a *kucoin) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "sell", map[string]string{"size": baseQuantity.String()})
}

func (a *kucoin) submitOrder(ctx context.Context, creds market.Credentials, pair, side string, sizing map[string]string) (*market.Fill, error) {
	payload := map[string]string{
		"clientOid": uuid.NewString(),
		"side":      side,
		"symbol":    a.symbols.toVenue(pair),
		"type":      "market",
	}
	for k, v := range sizing {
		payload[k] = v
	}
	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := a.signed(ctx, creds, "POST", "/api/v1/orders", bodyJSON)
	if err != nil {
		return nil, err
	}

	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := a.decode(body, &created); err != nil {
		return nil, err
	}

	detailBody, err := a.signed(ctx, creds, "GET", "/api/v1/orders/"+created.OrderID, nil)
	if err != nil {
		return nil, err
	}

	var detail struct {
		DealFunds string `json:"dealFunds"`
		DealSize  string `json:"dealSize"`
		Fee       string `json:"fee"`
		FeeCurrency string `json:"feeCurrency"`
	}
	if err := a.decode(detailBody, &detail); err != nil {
		return nil, err
	}

	value, _ := decimal.NewFromString(detail.DealFunds)
	qty, _ := decimal.NewFromString(detail.DealSize)
	fee, _ := decimal.NewFromString(detail.Fee)

	price := decimal.Zero
	if qty.IsPositive() {
		price = value.DivRound(qty, 12)
	}

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

func (a *kucoin) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "GET", "/api/v1/accounts", nil)
	return err
}

func (a *kucoin) signed(ctx context.Context, creds market.Credentials, method, path string, body []byte) ([]byte, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signSHA256B64(creds.APISecret, ts+method+path+string(body))
	passphrase := signSHA256B64(creds.APISecret, creds.Passphrase)

	headers := map[string]string{
		"KC-API-KEY":         creds.APIKey,
		"KC-API-SIGN":        sign,
		"KC-API-TIMESTAMP":   ts,
		"KC-API-PASSPHRASE":  passphrase,
		"KC-API-KEY-VERSION": "2",
	}
	if body != nil {
		headers["Content-Type"] = "application/json"
	}
	timeout := marketDataTimeout
	if method == "POST" {
		timeout = orderTimeout
	}
	return a.client.do(ctx, restRequest{method: method, path: path, headers: headers, body: body, timeout: timeout})
}
