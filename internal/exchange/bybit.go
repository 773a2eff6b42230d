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

// bybit implements the Bybit v5 spot API.
// Signing: HMAC-SHA256 hex over ts + apiKey + recvWindow + payload.
type bybit struct {
	client    *restClient
	intervals intervalMap
}

const bybitRecvWindow = "5000"

func newBybit(baseURL string) Adapter {
	return &bybit{
		client: newRESTClient("bybit", baseURL, 100*time.Millisecond),
		intervals: intervalMap{
			hour: "60",
			values: map[string]string{
				"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
				"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
				"1d": "D", "1w": "W",
			},
		},
	}
}

func (a *bybit) Name() string { return "bybit" }

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (a *bybit) decode(body []byte, out interface{}) error {
	var env bybitEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("bybit: parsing envelope: %w", err)
	}
	if env.RetCode != 0 {
		return &market.VenueError{
			Venue:      "bybit",
			HTTPStatus: 200,
			VenueCode:  strconv.Itoa(env.RetCode),
			Message:    env.RetMsg,
		}
	}
	return json.Unmarshal(env.Result, out)
}

func (a *bybit) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", pair)
	q.Set("interval", a.intervals.toVenue(interval))
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v5/market/kline", query: q})
	if err != nil {
		return nil, err
	}

	var result struct {
		List [][]interface{} `json:"list"`
	}
	if err := a.decode(body, &result); err != nil {
		return nil, err
	}

	// Bybit returns newest first; normalise to oldest first.
	candles := make([]market.Candle, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		k := result.List[i]
		if len(k) < 6 {
			continue
		}
		c, err := tupleCandle(k[0], k[1], k[2], k[3], k[4], k[5])
		if err != nil {
			return nil, fmt.Errorf("bybit: parsing kline: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *bybit) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", pair)

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v5/market/tickers", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := a.decode(body, &result); err != nil {
		return decimal.Zero, err
	}
	if len(result.List) == 0 {
		return decimal.Zero, fmt.Errorf("bybit: no ticker for %s", pair)
	}
	return decimal.NewFromString(result.List[0].LastPrice)
}

func (a *bybit) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("symbol", pair)
	q.Set("limit", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v5/market/orderbook", query: q})
	if err != nil {
		return nil, err
	}

	var result struct {
		B [][]interface{} `json:"b"`
		A [][]interface{} `json:"a"`
	}
	if err := a.decode(body, &result); err != nil {
		return nil, err
	}
	return pairsBook(result.B, result.A)
}

func (a *bybit) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")
	q.Set("coin", currency)

	body, err := a.signedGet(ctx, creds, "/v5/account/wallet-balance", q)
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		List []struct {
			Coin []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
			} `json:"coin"`
		} `json:"list"`
	}
	if err := a.decode(body, &result); err != nil {
		return decimal.Zero, err
	}
	for _, acct := range result.List {
		for _, c := range acct.Coin {
			if c.Coin == currency {
				if c.AvailableToWithdraw != "" {
					return decimal.NewFromString(c.AvailableToWithdraw)
				}
				return decimal.NewFromString(c.WalletBalance)
			}
		}
	}
	return decimal.Zero, nil
}

func (a *bybit) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "Buy", quoteAmount)
}

func (a *bybit) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "Sell", baseQuantity)
}

func (a *bybit) submitOrder(ctx context.Context, creds market.Credentials, pair, side string, qty decimal.Decimal) (*market.Fill, error) {
	payload := map[string]string{
		"category":  "spot",
		"symbol":    pair,
		"side":      side,
		"orderType": "Market",
		// Market buys are sized in quote, sells in base (Bybit spot default).
		"qty": qty.String(),
	}
	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := a.signedPost(ctx, creds, "/v5/order/create", bodyJSON)
	if err != nil {
		return nil, err
	}

	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := a.decode(body, &created); err != nil {
		return nil, err
	}

	// The create response carries no fill data; read it back from history.
	q := url.Values{}
	q.Set("category", "spot")
	q.Set("orderId", created.OrderID)

	histBody, err := a.signedGet(ctx, creds, "/v5/order/history", q)
	if err != nil {
		return nil, err
	}

	var hist struct {
		List []struct {
			AvgPrice     string `json:"avgPrice"`
			CumExecQty   string `json:"cumExecQty"`
			CumExecValue string `json:"cumExecValue"`
			CumExecFee   string `json:"cumExecFee"`
		} `json:"list"`
	}
	if err := a.decode(histBody, &hist); err != nil {
		return nil, err
	}
	if len(hist.List) == 0 {
		return nil, fmt.Errorf("bybit: order %s not found in history", created.OrderID)
	}

	o := hist.List[0]
	price, _ := decimal.NewFromString(o.AvgPrice)
	execQty, _ := decimal.NewFromString(o.CumExecQty)
	value, _ := decimal.NewFromString(o.CumExecValue)
	fee, _ := decimal.NewFromString(o.CumExecFee)

	return &market.Fill{
		OrderID:          created.OrderID,
		ExecutedPrice:    price,
		ExecutedQuantity: execQty,
		ExecutedValue:    value,
		Fee:              fee,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *bybit) TestConnection(ctx context.Context, creds market.Credentials) error {
	q := url.Values{}
	q.Set("accountType", "UNIFIED")
	_, err := a.signedGet(ctx, creds, "/v5/account/wallet-balance", q)
	return err
}

func (a *bybit) signedGet(ctx context.Context, creds market.Credentials, path string, q url.Values) ([]byte, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signSHA256Hex(creds.APISecret, ts+creds.APIKey+bybitRecvWindow+q.Encode())
	return a.client.do(ctx, restRequest{
		method:  "GET",
		path:    path,
		query:   q,
		headers: a.authHeaders(creds, ts, sign),
	})
}

func (a *bybit) signedPost(ctx context.Context, creds market.Credentials, path string, body []byte) ([]byte, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signSHA256Hex(creds.APISecret, ts+creds.APIKey+bybitRecvWindow+string(body))
	headers := a.authHeaders(creds, ts, sign)
	headers["Content-Type"] = "application/json"
	return a.client.do(ctx, restRequest{
		method:  "POST",
		path:    path,
		headers: headers,
		body:    body,
		timeout: orderTimeout,
	})
}

func (a *bybit) authHeaders(creds market.Credentials, ts, sign string) map[string]string {
	return map[string]string{
		"X-BAPI-API-KEY":     creds.APIKey,
		"X-BAPI-TIMESTAMP":   ts,
		"X-BAPI-RECV-WINDOW": bybitRecvWindow,
		"X-BAPI-SIGN":        sign,
	}
}
