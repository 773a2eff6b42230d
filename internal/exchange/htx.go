package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

// htx implements the HTX (Huobi) spot API. Symbols are lowercase joined.
// Signing: base64 HMAC-SHA256 over "METHOD\nhost\npath\nsorted-query".
type htx struct {
	client    *restClient
	host      string
	symbols   symbolMapper
	intervals intervalMap
}

func newHTX(baseURL string) Adapter {
	host := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	return &htx{
		client:  newRESTClient("htx", baseURL, 200*time.Millisecond),
		host:    host,
		symbols: symbolMapper{lowercase: true},
		intervals: intervalMap{
			hour: "60min",
			values: map[string]string{
				"1m": "1min", "5m": "5min", "15m": "15min", "30m": "30min",
				"1h": "60min", "4h": "4hour", "1d": "1day", "1w": "1week",
			},
		},
	}
}

func (a *htx) Name() string { return "htx" }

func (a *htx) checkStatus(body []byte) error {
	var env struct {
		Status string `json:"status"`
		ErrCode string `json:"err-code"`
		ErrMsg  string `json:"err-msg"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("htx: parsing envelope: %w", err)
	}
	if env.Status != "" && env.Status != "ok" {
		return &market.VenueError{Venue: "htx", HTTPStatus: 200, VenueCode: env.ErrCode, Message: env.ErrMsg}
	}
	return nil
}

func (a *htx) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("period", a.intervals.toVenue(interval))
	q.Set("size", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/market/history/kline", query: q})
	if err != nil {
		return nil, err
	}
	if err := a.checkStatus(body); err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			ID     int64   `json:"id"` // bucket open time, seconds
			Open   float64 `json:"open"`
			Close  float64 `json:"close"`
			Low    float64 `json:"low"`
			High   float64 `json:"high"`
			Amount float64 `json:"amount"` // base volume
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("htx: parsing klines: %w", err)
	}

	candles := make([]market.Candle, 0, len(resp.Data))
	for i := len(resp.Data) - 1; i >= 0; i-- { // newest first on the wire
		r := resp.Data[i]
		c, err := tupleCandle(r.ID, r.Open, r.High, r.Low, r.Close, r.Amount)
		if err != nil {
			return nil, fmt.Errorf("htx: parsing kline: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *htx) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/market/detail/merged", query: q})
	if err != nil {
		return decimal.Zero, err
	}
	if err := a.checkStatus(body); err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Tick struct {
			Close float64 `json:"close"`
		} `json:"tick"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("htx: parsing ticker: %w", err)
	}
	return decimal.NewFromFloat(resp.Tick.Close), nil
}

func (a *htx) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("type", "step0")
	q.Set("depth", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/market/depth", query: q})
	if err != nil {
		return nil, err
	}
	if err := a.checkStatus(body); err != nil {
		return nil, err
	}

	var resp struct {
		Tick struct {
			Bids [][]interface{} `json:"bids"`
			Asks [][]interface{} `json:"asks"`
		} `json:"tick"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("htx: parsing depth: %w", err)
	}
	return pairsBook(resp.Tick.Bids, resp.Tick.Asks)
}

func (a *htx) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	accountID, err := a.spotAccountID(ctx, creds)
	if err != nil {
		return decimal.Zero, err
	}

	body, err := a.signed(ctx, creds, "GET", "/v1/account/accounts/"+accountID+"/balance", url.Values{})
	if err != nil {
		return decimal.Zero, err
	}
	if err := a.checkStatus(body); err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Data struct {
			List []struct {
				Currency string `json:"currency"`
				Type     string `json:"type"`
				Balance  string `json:"balance"`
			} `json:"list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("htx: parsing balance: %w", err)
	}
	lower := strings.ToLower(currency)
	for _, b := range resp.Data.List {
		if b.Currency == lower && b.Type == "trade" {
			return decimal.NewFromString(b.Balance)
		}
	}
	return decimal.Zero, nil
}

func (a *htx) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// buy-market sizes the order in quote currency.
	return a.submitOrder(ctx, creds, pair, "buy-market", quoteAmount)
}

func (a *htx) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "sell-market", baseQuantity)
}

func (a *htx) submitOrder(ctx context.Context, creds market.Credentials, pair, orderType string, amount decimal.Decimal) (*market.Fill, error) {
	accountID, err := a.spotAccountID(ctx, creds)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]string{
		"account-id": accountID,
		"symbol":     a.symbols.toVenue(pair),
		"type":       orderType,
		"amount":     amount.String(),
	})

	body, err := a.signedPost(ctx, creds, "/v1/order/orders/place", payload)
	if err != nil {
		return nil, err
	}
	if err := a.checkStatus(body); err != nil {
		return nil, err
	}

	var created struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("htx: parsing order response: %w", err)
	}

	detailBody, err := a.signed(ctx, creds, "GET", "/v1/order/orders/"+created.Data, url.Values{})
	if err != nil {
		return nil, err
	}
	if err := a.checkStatus(detailBody); err != nil {
		return nil, err
	}

	var detail struct {
		Data struct {
			FieldAmount     string `json:"field-amount"`      // filled base
			FieldCashAmount string `json:"field-cash-amount"` // filled quote
			FieldFees       string `json:"field-fees"`
		} `json:"data"`
	}
	if err := json.Unmarshal(detailBody, &detail); err != nil {
		return nil, fmt.Errorf("htx: parsing order detail: %w", err)
	}

	qty, _ := decimal.NewFromString(detail.Data.FieldAmount)
	value, _ := decimal.NewFromString(detail.Data.FieldCashAmount)
	fee, _ := decimal.NewFromString(detail.Data.FieldFees)

	price := decimal.Zero
	if qty.IsPositive() {
		price = value.DivRound(qty, 12)
	}

	return &market.Fill{
		OrderID:          created.Data,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              fee,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *htx) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.spotAccountID(ctx, creds)
	return err
}

func (a *htx) spotAccountID(ctx context.Context, creds market.Credentials) (string, error) {
	body, err := a.signed(ctx, creds, "GET", "/v1/account/accounts", url.Values{})
	if err != nil {
		return "", err
	}
	if err := a.checkStatus(body); err != nil {
		return "", err
	}

	var resp struct {
		Data []struct {
			ID   int64  `json:"id"`
			Type string `json:"type"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("htx: parsing accounts: %w", err)
	}
	for _, acct := range resp.Data {
		if acct.Type == "spot" {
			return strconv.FormatInt(acct.ID, 10), nil
		}
	}
	return "", fmt.Errorf("htx: no spot account")
}

func (a *htx) signed(ctx context.Context, creds market.Credentials, method, path string, q url.Values) ([]byte, error) {
	q = a.authParams(creds, q)
	q.Set("Signature", signSHA256B64(creds.APISecret, method+"\n"+a.host+"\n"+path+"\n"+q.Encode()))
	return a.client.do(ctx, restRequest{method: method, path: path, query: q})
}

func (a *htx) signedPost(ctx context.Context, creds market.Credentials, path string, body []byte) ([]byte, error) {
	q := a.authParams(creds, url.Values{})
	q.Set("Signature", signSHA256B64(creds.APISecret, "POST\n"+a.host+"\n"+path+"\n"+q.Encode()))
	return a.client.do(ctx, restRequest{
		method:  "POST",
		path:    path,
		query:   q,
		headers: map[string]string{"Content-Type": "application/json"},
		body:    body,
		timeout: orderTimeout,
	})
}

func (a *htx) authParams(creds market.Credentials, q url.Values) url.Values {
	q.Set("AccessKeyId", creds.APIKey)
	q.Set("SignatureMethod", "HmacSHA256")
	q.Set("SignatureVersion", "2")
	q.Set("Timestamp", time.Now().UTC().Format("2006-01-02T15:04:05"))
	return q
}
