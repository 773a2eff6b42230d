package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

// cryptocom implements the Crypto.com Exchange v2 API. Pairs are
// underscored. Private calls are JSON-RPC style: the whole request object
// is POSTed and signed with HMAC-SHA256 hex over
// method + id + apiKey + sortedParams + nonce.
type cryptocom struct {
	client    *restClient
	symbols   symbolMapper
	intervals intervalMap
}

func newCryptoCom(baseURL string) Adapter {
	return &cryptocom{
		client:  newRESTClient("cryptocom", baseURL, 150*time.Millisecond),
		symbols: symbolMapper{sep: "_"},
		intervals: intervalMap{
			hour: "1h",
			values: map[string]string{
				"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
				"1h": "1h", "4h": "4h", "6h": "6h", "12h": "12h",
				"1d": "1D", "1w": "7D",
			},
		},
	}
}

func (a *cryptocom) Name() string { return "cryptocom" }

func (a *cryptocom) decodePublic(body []byte, out interface{}) error {
	var env struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("cryptocom: parsing envelope: %w", err)
	}
	if env.Code != 0 {
		return &market.VenueError{Venue: "cryptocom", HTTPStatus: 200, VenueCode: strconv.Itoa(env.Code), Message: env.Message}
	}
	return json.Unmarshal(env.Result, out)
}

func (a *cryptocom) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("instrument_name", a.symbols.toVenue(pair))
	q.Set("timeframe", a.intervals.toVenue(interval))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v2/public/get-candlestick", query: q})
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []struct {
			T int64   `json:"t"`
			O float64 `json:"o"`
			H float64 `json:"h"`
			L float64 `json:"l"`
			C float64 `json:"c"`
			V float64 `json:"v"`
		} `json:"data"`
	}
	if err := a.decodePublic(body, &result); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(result.Data))
	for _, r := range result.Data {
		c, err := tupleCandle(r.T, r.O, r.H, r.L, r.C, r.V)
		if err != nil {
			return nil, fmt.Errorf("cryptocom: parsing candlestick: %w", err)
		}
		candles = append(candles, c)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (a *cryptocom) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("instrument_name", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v2/public/get-ticker", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Data []struct {
			LastTrade float64 `json:"a"`
		} `json:"data"`
	}
	if err := a.decodePublic(body, &result); err != nil {
		return decimal.Zero, err
	}
	if len(result.Data) == 0 {
		return decimal.Zero, fmt.Errorf("cryptocom: no ticker for %s", pair)
	}
	return decimal.NewFromFloat(result.Data[0].LastTrade), nil
}

func (a *cryptocom) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("instrument_name", a.symbols.toVenue(pair))
	q.Set("depth", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v2/public/get-book", query: q})
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []struct {
			Bids [][]interface{} `json:"bids"`
			Asks [][]interface{} `json:"asks"`
		} `json:"data"`
	}
	if err := a.decodePublic(body, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return &market.OrderBook{}, nil
	}
	// Levels are [price, size, order count]; the trailing count is ignored.
	return pairsBook(result.Data[0].Bids, result.Data[0].Asks)
}

func (a *cryptocom) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	result, err := a.private(ctx, creds, "private/get-account-summary", map[string]interface{}{"currency": currency})
	if err != nil {
		return decimal.Zero, err
	}

	var summary struct {
		Accounts []struct {
			Currency  string  `json:"currency"`
			Available float64 `json:"available"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(result, &summary); err != nil {
		return decimal.Zero, fmt.Errorf("cryptocom: parsing account summary: %w", err)
	}
	for _, acct := range summary.Accounts {
		if acct.Currency == currency {
			return decimal.NewFromFloat(acct.Available), nil
		}
	}
	return decimal.Zero, nil
}

func (a *cryptocom) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// Market buys are sized by notional, sells by quantity.
	params := map[string]interface{}{
		"instrument_name": a.symbols.toVenue(pair),
		"side":            "BUY",
		"type":            "MARKET",
		"notional":        quoteAmount.String(),
	}
	return a.submitOrder(ctx, creds, params)
}

func (a *cryptocom) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	params := map[string]interface{}{
		"instrument_name": a.symbols.toVenue(pair),
		"side":            "SELL",
		"type":            "MARKET",
		"quantity":        baseQuantity.String(),
	}
	return a.submitOrder(ctx, creds, params)
}

func (a *cryptocom) submitOrder(ctx context.Context, creds market.Credentials, params map[string]interface{}) (*market.Fill, error) {
	result, err := a.private(ctx, creds, "private/create-order", params)
	if err != nil {
		return nil, err
	}

	var created struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return nil, fmt.Errorf("cryptocom: parsing order response: %w", err)
	}

	detailResult, err := a.private(ctx, creds, "private/get-order-detail", map[string]interface{}{"order_id": created.OrderID})
	if err != nil {
		return nil, err
	}

	var detail struct {
		TradeList []struct {
			Fee         float64 `json:"fee"`
			FeeCurrency string  `json:"fee_currency"`
		} `json:"trade_list"`
		OrderInfo struct {
			AvgPrice           float64 `json:"avg_price"`
			CumulativeQuantity float64 `json:"cumulative_quantity"`
			CumulativeValue    float64 `json:"cumulative_value"`
		} `json:"order_info"`
	}
	if err := json.Unmarshal(detailResult, &detail); err != nil {
		return nil, fmt.Errorf("cryptocom: parsing order detail: %w", err)
	}

	fee := decimal.Zero
	feeCurrency := ""
	for _, t := range detail.TradeList {
		fee = fee.Add(decimal.NewFromFloat(t.Fee).Abs())
		feeCurrency = t.FeeCurrency
	}

	return &market.Fill{
		OrderID:          created.OrderID,
		ExecutedPrice:    decimal.NewFromFloat(detail.OrderInfo.AvgPrice),
		ExecutedQuantity: decimal.NewFromFloat(detail.OrderInfo.CumulativeQuantity),
		ExecutedValue:    decimal.NewFromFloat(detail.OrderInfo.CumulativeValue),
		Fee:              fee,
		FeeCurrency:      feeCurrency,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *cryptocom) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.private(ctx, creds, "private/get-account-summary", map[string]interface{}{})
	return err
}

func (a *cryptocom) private(ctx context.Context, creds market.Credentials, method string, params map[string]interface{}) (json.RawMessage, error) {
	id := time.Now().UnixNano()
	nonce := time.Now().UnixMilli()

	payload := method + strconv.FormatInt(id, 10) + creds.APIKey + paramString(params) + strconv.FormatInt(nonce, 10)
	req := map[string]interface{}{
		"id":      id,
		"method":  method,
		"api_key": creds.APIKey,
		"params":  params,
		"nonce":   nonce,
		"sig":     signSHA256Hex(creds.APISecret, payload),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	respBody, err := a.client.do(ctx, restRequest{
		method:  "POST",
		path:    "/v2/" + method,
		headers: map[string]string{"Content-Type": "application/json"},
		body:    body,
		timeout: orderTimeout,
	})
	if err != nil {
		return nil, err
	}

	var env struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("cryptocom: parsing envelope: %w", err)
	}
	if env.Code != 0 {
		return nil, &market.VenueError{Venue: "cryptocom", HTTPStatus: 200, VenueCode: strconv.Itoa(env.Code), Message: env.Message}
	}
	return env.Result, nil
}

// paramString flattens params as concatenated key+value pairs in key order,
// the venue's canonical form for signing.
func paramString(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	s := ""
	for _, k := range keys {
		s += k + fmt.Sprintf("%v", params[k])
	}
	return s
}
