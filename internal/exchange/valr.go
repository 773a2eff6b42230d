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

// valr implements the VALR API. Pairs are already canonical (BTCZAR).
// Signing: HMAC-SHA512 hex over ts+VERB+path+body. VALR throttles hard under
// parallel fetching, so the pacing interval is deliberately wide and the
// arbitrage scanner adds its own inter-request delay on top.
type valr struct {
	client *restClient
}

// VALR bucket periods in seconds per canonical interval.
var valrPeriods = map[string]int{
	"1m": 60, "5m": 300, "15m": 900, "30m": 1800,
	"1h": 3600, "4h": 14400, "1d": 86400, "1w": 604800,
}

func newVALR(baseURL string) Adapter {
	return &valr{client: newRESTClient("valr", baseURL, 500*time.Millisecond)}
}

func (a *valr) Name() string { return "valr" }

func (a *valr) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	period, ok := valrPeriods[interval]
	if !ok {
		period = 3600
	}
	q := url.Values{}
	q.Set("periodSeconds", strconv.Itoa(period))
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{
		method: "GET",
		path:   "/v1/public/" + pair + "/buckets",
		query:  q,
	})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		StartTime  string `json:"startTime"`
		Open       string `json:"open"`
		High       string `json:"high"`
		Low        string `json:"low"`
		Close      string `json:"close"`
		BaseVolume string `json:"baseVolume"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("valr: parsing buckets: %w", err)
	}

	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- { // newest first on the wire
		r := rows[i]
		ts, err := time.Parse(time.RFC3339, r.StartTime)
		if err != nil {
			return nil, fmt.Errorf("valr: parsing bucket time: %w", err)
		}
		c, err := tupleCandle(ts.UnixMilli(), r.Open, r.High, r.Low, r.Close, r.BaseVolume)
		if err != nil {
			return nil, fmt.Errorf("valr: parsing bucket: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *valr) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	body, err := a.client.do(ctx, restRequest{
		method: "GET",
		path:   "/v1/public/" + pair + "/marketsummary",
	})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		LastTradedPrice string `json:"lastTradedPrice"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("valr: parsing market summary: %w", err)
	}
	return decimal.NewFromString(resp.LastTradedPrice)
}

func (a *valr) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	body, err := a.client.do(ctx, restRequest{
		method: "GET",
		path:   "/v1/public/" + pair + "/orderbook",
	})
	if err != nil {
		return nil, err
	}

	// VALR uses capitalised sides with {price, quantity} objects.
	var resp struct {
		Asks []struct {
			Price    string `json:"price"`
			Quantity string `json:"quantity"`
		} `json:"Asks"`
		Bids []struct {
			Price    string `json:"price"`
			Quantity string `json:"quantity"`
		} `json:"Bids"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("valr: parsing order book: %w", err)
	}

	book := &market.OrderBook{}
	for _, l := range resp.Bids {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(l.Quantity)
		if err != nil {
			return nil, err
		}
		book.Bids = append(book.Bids, market.Level{Price: price, Size: size})
	}
	for _, l := range resp.Asks {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(l.Quantity)
		if err != nil {
			return nil, err
		}
		book.Asks = append(book.Asks, market.Level{Price: price, Size: size})
	}
	return book, nil
}

func (a *valr) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	body, err := a.signed(ctx, creds, "GET", "/v1/account/balances", nil)
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("valr: parsing balances: %w", err)
	}
	for _, r := range rows {
		if r.Currency == currency {
			return decimal.NewFromString(r.Available)
		}
	}
	return decimal.Zero, nil
}

func (a *valr) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	payload := map[string]string{
		"pair":        pair,
		"side":        "BUY",
		"quoteAmount": quoteAmount.String(),
	}
	return a.submitOrder(ctx, creds, pair, payload)
}

func (a *valr) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	payload := map[string]string{
		"pair":       pair,
		"side":       "SELL",
		"baseAmount": baseQuantity.String(),
	}
	return a.submitOrder(ctx, creds, pair, payload)
}

func (a *valr) submitOrder(ctx context.Context, creds market.Credentials, pair string, payload map[string]string) (*market.Fill, error) {
	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := a.signed(ctx, creds, "POST", "/v1/orders/market", bodyJSON)
	if err != nil {
		return nil, err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("valr: parsing order response: %w", err)
	}

	summaryBody, err := a.signed(ctx, creds, "GET", "/v1/orders/history/summary/orderid/"+created.ID, nil)
	if err != nil {
		return nil, err
	}

	var summary struct {
		AveragePrice     string `json:"averagePrice"`
		OriginalQuantity string `json:"originalQuantity"`
		Total            string `json:"total"`
		TotalFee         string `json:"totalFee"`
		FeeCurrency      string `json:"feeCurrency"`
	}
	if err := json.Unmarshal(summaryBody, &summary); err != nil {
		return nil, fmt.Errorf("valr: parsing order summary: %w", err)
	}

	price, _ := decimal.NewFromString(summary.AveragePrice)
	qty, _ := decimal.NewFromString(summary.OriginalQuantity)
	value, _ := decimal.NewFromString(summary.Total)
	fee, _ := decimal.NewFromString(summary.TotalFee)
	if value.IsZero() {
		value = price.Mul(qty)
	}

	return &market.Fill{
		OrderID:          created.ID,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              fee,
		FeeCurrency:      summary.FeeCurrency,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *valr) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "GET", "/v1/account/balances", nil)
	return err
}

func (a *valr) signed(ctx context.Context, creds market.Credentials, method, path string, body []byte) ([]byte, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signSHA512Hex(creds.APISecret, ts+method+path+string(body))

	headers := map[string]string{
		"X-VALR-API-KEY":   creds.APIKey,
		"X-VALR-SIGNATURE": sign,
		"X-VALR-TIMESTAMP": ts,
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
