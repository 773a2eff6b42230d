package exchange

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

// gate implements the Gate.io v4 spot API. Pairs are underscored.
// Signing: HMAC-SHA512 hex over METHOD\npath\nquery\nSHA512(body)\nts.
type gate struct {
	client    *restClient
	symbols   symbolMapper
	intervals intervalMap
}

func newGate(baseURL string) Adapter {
	return &gate{
		client:  newRESTClient("gateio", baseURL, 200*time.Millisecond),
		symbols: symbolMapper{sep: "_"},
		intervals: intervalMap{
			hour: "1h",
			values: map[string]string{
				"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
				"1h": "1h", "2h": "2h", "4h": "4h", "6h": "6h", "12h": "12h",
				"1d": "1d", "1w": "7d",
			},
		},
	}
}

func (a *gate) Name() string { return "gateio" }

func (a *gate) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("currency_pair", a.symbols.toVenue(pair))
	q.Set("interval", a.intervals.toVenue(interval))
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v4/spot/candlesticks", query: q})
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("gateio: parsing candlesticks: %w", err)
	}

	// Gate order is [ts, quote volume, close, high, low, open, base volume].
	candles := make([]market.Candle, 0, len(rows))
	for _, k := range rows {
		if len(k) < 7 {
			continue
		}
		c, err := tupleCandle(k[0], k[5], k[3], k[4], k[2], k[6])
		if err != nil {
			return nil, fmt.Errorf("gateio: parsing candlestick: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *gate) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("currency_pair", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v4/spot/tickers", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Last string `json:"last"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("gateio: parsing ticker: %w", err)
	}
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("gateio: no ticker for %s", pair)
	}
	return decimal.NewFromString(rows[0].Last)
}

func (a *gate) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("currency_pair", a.symbols.toVenue(pair))
	q.Set("limit", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v4/spot/order_book", query: q})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Bids [][]interface{} `json:"bids"`
		Asks [][]interface{} `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("gateio: parsing order book: %w", err)
	}
	return pairsBook(resp.Bids, resp.Asks)
}

func (a *gate) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("currency", currency)

	body, err := a.signed(ctx, creds, "GET", "/api/v4/spot/accounts", q, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("gateio: parsing accounts: %w", err)
	}
	for _, r := range rows {
		if r.Currency == currency {
			return decimal.NewFromString(r.Available)
		}
	}
	return decimal.Zero, nil
}

func (a *gate) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// Market buys are sized in quote on Gate.
	return a.submitOrder(ctx, creds, pair, "buy", quoteAmount)
}

func (a *gate) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "sell", baseQuantity)
}

func (a *gate) submitOrder(ctx context.Context, creds market.Credentials, pair, side string, amount decimal.Decimal) (*market.Fill, error) {
	payload, _ := json.Marshal(map[string]string{
		"currency_pair": a.symbols.toVenue(pair),
		"type":          "market",
		"account":       "spot",
		"side":          side,
		"time_in_force": "ioc",
		"amount":        amount.String(),
	})

	body, err := a.signed(ctx, creds, "POST", "/api/v4/spot/orders", nil, payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID           string `json:"id"`
		FilledAmount string `json:"filled_amount"` // base
		FilledTotal  string `json:"filled_total"`  // quote
		AvgDealPrice string `json:"avg_deal_price"`
		Fee          string `json:"fee"`
		FeeCurrency  string `json:"fee_currency"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("gateio: parsing order response: %w", err)
	}

	qty, _ := decimal.NewFromString(resp.FilledAmount)
	value, _ := decimal.NewFromString(resp.FilledTotal)
	price, _ := decimal.NewFromString(resp.AvgDealPrice)
	fee, _ := decimal.NewFromString(resp.Fee)

	return &market.Fill{
		OrderID:          resp.ID,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              fee,
		FeeCurrency:      resp.FeeCurrency,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *gate) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "GET", "/api/v4/spot/accounts", url.Values{}, nil)
	return err
}

func (a *gate) signed(ctx context.Context, creds market.Credentials, method, path string, q url.Values, body []byte) ([]byte, error) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	bodyHash := sha512.Sum512(body)
	query := ""
	if q != nil {
		query = q.Encode()
	}
	payload := method + "\n" + path + "\n" + query + "\n" + hex.EncodeToString(bodyHash[:]) + "\n" + ts
	sign := signSHA512Hex(creds.APISecret, payload)

	headers := map[string]string{
		"KEY":       creds.APIKey,
		"Timestamp": ts,
		"SIGN":      sign,
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
