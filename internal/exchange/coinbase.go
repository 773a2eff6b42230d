package exchange

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

// coinbase implements the Coinbase Exchange API. Products are hyphenated.
// Signing: base64 HMAC-SHA256 over ts+method+path+body with the
// base64-decoded secret, plus a passphrase header.
type coinbase struct {
	client  *restClient
	symbols symbolMapper
}

var coinbaseGranularity = map[string]int{
	"1m": 60, "5m": 300, "15m": 900,
	"1h": 3600, "6h": 21600, "1d": 86400,
}

func newCoinbase(baseURL string) Adapter {
	return &coinbase{
		client:  newRESTClient("coinbase", baseURL, 100*time.Millisecond),
		symbols: symbolMapper{sep: "-"},
	}
}

func (a *coinbase) Name() string { return "coinbase" }

func (a *coinbase) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	granularity, ok := coinbaseGranularity[interval]
	if !ok {
		granularity = 3600
	}
	q := url.Values{}
	q.Set("granularity", strconv.Itoa(granularity))

	body, err := a.client.do(ctx, restRequest{
		method: "GET",
		path:   "/products/" + a.symbols.toVenue(pair) + "/candles",
		query:  q,
	})
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("coinbase: parsing candles: %w", err)
	}

	// Coinbase order is [time, low, high, open, close, volume], newest first.
	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		k := rows[i]
		if len(k) < 6 {
			continue
		}
		c, err := tupleCandle(k[0], k[3], k[2], k[1], k[4], k[5])
		if err != nil {
			return nil, fmt.Errorf("coinbase: parsing candle: %w", err)
		}
		candles = append(candles, c)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (a *coinbase) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	body, err := a.client.do(ctx, restRequest{
		method: "GET",
		path:   "/products/" + a.symbols.toVenue(pair) + "/ticker",
	})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("coinbase: parsing ticker: %w", err)
	}
	return decimal.NewFromString(resp.Price)
}

func (a *coinbase) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("level", "2")

	body, err := a.client.do(ctx, restRequest{
		method: "GET",
		path:   "/products/" + a.symbols.toVenue(pair) + "/book",
		query:  q,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Bids [][]interface{} `json:"bids"`
		Asks [][]interface{} `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("coinbase: parsing book: %w", err)
	}
	return pairsBook(resp.Bids, resp.Asks)
}

func (a *coinbase) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	body, err := a.signed(ctx, creds, "GET", "/accounts", nil)
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("coinbase: parsing accounts: %w", err)
	}
	for _, r := range rows {
		if r.Currency == currency {
			return decimal.NewFromString(r.Available)
		}
	}
	return decimal.Zero, nil
}

func (a *coinbase) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	payload := map[string]string{
		"type":       "market",
		"side":       "buy",
		"product_id": a.symbols.toVenue(pair),
		"funds":      quoteAmount.String(),
	}
	return a.submitOrder(ctx, creds, payload)
}

func (a *coinbase) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	payload := map[string]string{
		"type":       "market",
		"side":       "sell",
		"product_id": a.symbols.toVenue(pair),
		"size":       baseQuantity.String(),
	}
	return a.submitOrder(ctx, creds, payload)
}

func (a *coinbase) submitOrder(ctx context.Context, creds market.Credentials, payload map[string]string) (*market.Fill, error) {
	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := a.signed(ctx, creds, "POST", "/orders", bodyJSON)
	if err != nil {
		return nil, err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("coinbase: parsing order response: %w", err)
	}

	detailBody, err := a.signed(ctx, creds, "GET", "/orders/"+created.ID, nil)
	if err != nil {
		return nil, err
	}

	var detail struct {
		ExecutedValue string `json:"executed_value"`
		FilledSize    string `json:"filled_size"`
		FillFees      string `json:"fill_fees"`
	}
	if err := json.Unmarshal(detailBody, &detail); err != nil {
		return nil, fmt.Errorf("coinbase: parsing order detail: %w", err)
	}

	value, _ := decimal.NewFromString(detail.ExecutedValue)
	qty, _ := decimal.NewFromString(detail.FilledSize)
	fee, _ := decimal.NewFromString(detail.FillFees)

	price := decimal.Zero
	if qty.IsPositive() {
		price = value.DivRound(qty, 12)
	}

	return &market.Fill{
		OrderID:          created.ID,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              fee,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *coinbase) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "GET", "/accounts", nil)
	return err
}

func (a *coinbase) signed(ctx context.Context, creds market.Credentials, method, path string, body []byte) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(creds.APISecret)
	if err != nil {
		return nil, fmt.Errorf("coinbase: decoding secret: %w", err)
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sign := hmacB64SHA256(secret, ts+method+path+string(body))

	headers := map[string]string{
		"CB-ACCESS-KEY":        creds.APIKey,
		"CB-ACCESS-SIGN":       sign,
		"CB-ACCESS-TIMESTAMP":  ts,
		"CB-ACCESS-PASSPHRASE": creds.Passphrase,
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
