package exchange

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

// ascendex implements the AscendEX (BitMax) pro v1 API. Symbols use a slash.
// Signing: base64 HMAC-SHA256 over "<ts>+<api-path>", where api-path is the
// short route name ("info", "balance", "order"), not the full URL path.
// Account-scoped routes are prefixed with the account group returned by
// /api/pro/v1/info.
type ascendex struct {
	client    *restClient
	symbols   symbolMapper
	intervals intervalMap

	mu     sync.Mutex
	groups map[string]string // api key digest -> account group
}

func newAscendEX(baseURL string) Adapter {
	return &ascendex{
		client:  newRESTClient("ascendex", baseURL, 200*time.Millisecond),
		symbols: symbolMapper{sep: "/"},
		intervals: intervalMap{
			hour: "60",
			values: map[string]string{
				"1m": "1", "5m": "5", "15m": "15", "30m": "30",
				"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
				"1d": "1d", "1w": "1w",
			},
		},
		groups: make(map[string]string),
	}
}

func (a *ascendex) Name() string { return "ascendex" }

func (a *ascendex) decode(body []byte, out interface{}) error {
	var env struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("ascendex: parsing envelope: %w", err)
	}
	if env.Code != 0 {
		return &market.VenueError{Venue: "ascendex", HTTPStatus: 200, VenueCode: strconv.Itoa(env.Code), Message: env.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (a *ascendex) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("interval", a.intervals.toVenue(interval))
	q.Set("n", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/pro/v1/barhist", query: q})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Data struct {
			TS    int64  `json:"ts"`
			Open  string `json:"o"`
			High  string `json:"h"`
			Low   string `json:"l"`
			Close string `json:"c"`
			Vol   string `json:"v"`
		} `json:"data"`
	}
	if err := a.decode(body, &rows); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := tupleCandle(r.Data.TS, r.Data.Open, r.Data.High, r.Data.Low, r.Data.Close, r.Data.Vol)
		if err != nil {
			return nil, fmt.Errorf("ascendex: parsing bar: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *ascendex) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/pro/v1/ticker", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var data struct {
		Close string `json:"close"`
	}
	if err := a.decode(body, &data); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(data.Close)
}

func (a *ascendex) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/pro/v1/depth", query: q})
	if err != nil {
		return nil, err
	}

	var data struct {
		Data struct {
			Bids [][]interface{} `json:"bids"`
			Asks [][]interface{} `json:"asks"`
		} `json:"data"`
	}
	if err := a.decode(body, &data); err != nil {
		return nil, err
	}
	return pairsBook(data.Data.Bids, data.Data.Asks)
}

func (a *ascendex) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	group, err := a.accountGroup(ctx, creds)
	if err != nil {
		return decimal.Zero, err
	}

	q := url.Values{}
	q.Set("asset", currency)
	body, err := a.signed(ctx, creds, "GET", "/"+group+"/api/pro/v1/cash/balance", "balance", q, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := a.decode(body, &rows); err != nil {
		return decimal.Zero, err
	}
	for _, r := range rows {
		if r.Asset == currency {
			return decimal.NewFromString(r.AvailableBalance)
		}
	}
	return decimal.Zero, nil
}

func (a *ascendex) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// Market orders are sized in base; convert the quote budget at the
	// best ask.
	book, err := a.FetchOrderBook(ctx, pair)
	if err != nil {
		return nil, err
	}
	ask, askErr := book.BestAsk()
	if askErr != nil {
		return nil, fmt.Errorf("ascendex: empty ask side for %s", pair)
	}
	qty := quoteAmount.DivRound(ask.Price, 8)
	return a.submitOrder(ctx, creds, pair, "buy", qty)
}

func (a *ascendex) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "sell", baseQuantity)
}

func (a *ascendex) submitOrder(ctx context.Context, creds market.Credentials, pair, side string, qty decimal.Decimal) (*market.Fill, error) {
	group, err := a.accountGroup(ctx, creds)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]string{
		"symbol":    a.symbols.toVenue(pair),
		"time":      strconv.FormatInt(time.Now().UnixMilli(), 10),
		"orderType": "market",
		"side":      side,
		"orderQty":  qty.String(),
	})

	body, err := a.signed(ctx, creds, "POST", "/"+group+"/api/pro/v1/cash/order", "order", nil, payload)
	if err != nil {
		return nil, err
	}

	var created struct {
		Info struct {
			OrderID string `json:"orderId"`
		} `json:"info"`
	}
	if err := a.decode(body, &created); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("orderId", created.Info.OrderID)
	statusBody, err := a.signed(ctx, creds, "GET", "/"+group+"/api/pro/v1/cash/order/status", "order/status", q, nil)
	if err != nil {
		return nil, err
	}

	var status struct {
		AvgPx        string `json:"avgPx"`
		CumFilledQty string `json:"cumFilledQty"`
		CumFee       string `json:"cumFee"`
		FeeAsset     string `json:"feeAsset"`
	}
	if err := a.decode(statusBody, &status); err != nil {
		return nil, err
	}

	price, _ := decimal.NewFromString(status.AvgPx)
	filled, _ := decimal.NewFromString(status.CumFilledQty)
	fee, _ := decimal.NewFromString(status.CumFee)

	return &market.Fill{
		OrderID:          created.Info.OrderID,
		ExecutedPrice:    price,
		ExecutedQuantity: filled,
		ExecutedValue:    filled.Mul(price),
		Fee:              fee,
		FeeCurrency:      status.FeeAsset,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *ascendex) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.accountGroup(ctx, creds)
	return err
}

// accountGroup resolves and caches the numeric account group for a key.
// accountGroup looks up the account group for a key, caching it under a
// digest so no key material outlives the request.
func (a *ascendex) accountGroup(ctx context.Context, creds market.Credentials) (string, error) {
	digest := sha256.Sum256([]byte(creds.APIKey))
	cacheKey := hex.EncodeToString(digest[:])

	a.mu.Lock()
	if g, ok := a.groups[cacheKey]; ok {
		a.mu.Unlock()
		return g, nil
	}
	a.mu.Unlock()

	body, err := a.signed(ctx, creds, "GET", "/api/pro/v1/info", "info", nil, nil)
	if err != nil {
		return "", err
	}

	var info struct {
		AccountGroup int `json:"accountGroup"`
	}
	if err := a.decode(body, &info); err != nil {
		return "", err
	}

	group := strconv.Itoa(info.AccountGroup)
	a.mu.Lock()
	a.groups[cacheKey] = group
	a.mu.Unlock()
	return group, nil
}

func (a *ascendex) signed(ctx context.Context, creds market.Credentials, method, path, apiPath string, q url.Values, body []byte) ([]byte, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signSHA256B64(creds.APISecret, ts+"+"+apiPath)

	headers := map[string]string{
		"x-auth-key":       creds.APIKey,
		"x-auth-timestamp": ts,
		"x-auth-signature": sign,
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
