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

// okx implements the OKX v5 API.
// Signing: base64 HMAC-SHA256 over ts+method+path+body, plus a passphrase
// header. The signed path includes the query string.
type okx struct {
	client    *restClient
	symbols   symbolMapper
	intervals intervalMap
}

func newOKX(baseURL string) Adapter {
	return &okx{
		client:  newRESTClient("okx", baseURL, 100*time.Millisecond),
		symbols: symbolMapper{sep: "-"},
		intervals: intervalMap{
			hour: "1H",
			values: map[string]string{
				"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
				"1h": "1H", "2h": "2H", "4h": "4H", "6h": "6H", "12h": "12H",
				"1d": "1D", "1w": "1W",
			},
		},
	}
}

func (a *okx) Name() string { return "okx" }

func (a *okx) decode(body []byte, out interface{}) error {
	var env struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("okx: parsing envelope: %w", err)
	}
	if env.Code != "0" {
		return &market.VenueError{Venue: "okx", HTTPStatus: 200, VenueCode: env.Code, Message: env.Msg}
	}
	return json.Unmarshal(env.Data, out)
}

func (a *okx) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("instId", a.symbols.toVenue(pair))
	q.Set("bar", a.intervals.toVenue(interval))
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v5/market/candles", query: q})
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	if err := a.decode(body, &rows); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- { // newest first on the wire
		k := rows[i]
		if len(k) < 6 {
			continue
		}
		c, err := tupleCandle(k[0], k[1], k[2], k[3], k[4], k[5])
		if err != nil {
			return nil, fmt.Errorf("okx: parsing candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *okx) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("instId", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v5/market/ticker", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Last string `json:"last"`
	}
	if err := a.decode(body, &rows); err != nil {
		return decimal.Zero, err
	}
	if len(rows) == 0 {
		return decimal.Zero, fmt.Errorf("okx: no ticker for %s", pair)
	}
	return decimal.NewFromString(rows[0].Last)
}

func (a *okx) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("instId", a.symbols.toVenue(pair))
	q.Set("sz", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v5/market/books", query: q})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Bids [][]interface{} `json:"bids"`
		Asks [][]interface{} `json:"asks"`
	}
	if err := a.decode(body, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("okx: empty book for %s", pair)
	}
	return pairsBook(rows[0].Bids, rows[0].Asks)
}

func (a *okx) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	path := "/api/v5/account/balance?ccy=" + url.QueryEscape(currency)
	body, err := a.signed(ctx, creds, "GET", path, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		Details []struct {
			Ccy     string `json:"ccy"`
			AvailBal string `json:"availBal"`
		} `json:"details"`
	}
	if err := a.decode(body, &rows); err != nil {
		return decimal.Zero, err
	}
	for _, r := range rows {
		for _, d := range r.Details {
			if d.Ccy == currency {
				return decimal.NewFromString(d.AvailBal)
			}
		}
	}
	return decimal.Zero, nil
}

func (a *okx) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// tgtCcy=quote_ccy sizes the market buy in quote currency.
	return a.submitOrder(ctx, creds, pair, "buy", quoteAmount, "quote_ccy")
}

func (a *okx) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "sell", baseQuantity, "base_ccy")
}

func (a *okx) submitOrder(ctx context.Context, creds market.Credentials, pair, side string, size decimal.Decimal, tgtCcy string) (*market.Fill, error) {
	instID := a.symbols.toVenue(pair)
	payload := map[string]string{
		"instId":  instID,
		"tdMode":  "cash",
		"side":    side,
		"ordType": "market",
		"sz":      size.String(),
		"tgtCcy":  tgtCcy,
	}
	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := a.signed(ctx, creds, "POST", "/api/v5/trade/order", bodyJSON)
	if err != nil {
		return nil, err
	}

	var created []struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := a.decode(body, &created); err != nil {
		return nil, err
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("okx: empty order response")
	}
	if created[0].SCode != "0" && created[0].SCode != "" {
		return nil, &market.VenueError{Venue: "okx", HTTPStatus: 200, VenueCode: created[0].SCode, Message: created[0].SMsg}
	}
	ordID := created[0].OrdID

	detailPath := "/api/v5/trade/order?instId=" + url.QueryEscape(instID) + "&ordId=" + url.QueryEscape(ordID)
	detailBody, err := a.signed(ctx, creds, "GET", detailPath, nil)
	if err != nil {
		return nil, err
	}

	var detail []struct {
		AccFillSz string `json:"accFillSz"`
		AvgPx     string `json:"avgPx"`
		Fee       string `json:"fee"`
		FeeCcy    string `json:"feeCcy"`
	}
	if err := a.decode(detailBody, &detail); err != nil {
		return nil, err
	}
	if len(detail) == 0 {
		return nil, fmt.Errorf("okx: order %s not found", ordID)
	}

	qty, _ := decimal.NewFromString(detail[0].AccFillSz)
	price, _ := decimal.NewFromString(detail[0].AvgPx)
	fee, _ := decimal.NewFromString(detail[0].Fee)

	return &market.Fill{
		OrderID:          ordID,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    price.Mul(qty),
		Fee:              fee.Abs(), // OKX reports fees negative
		FeeCurrency:      detail[0].FeeCcy,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *okx) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "GET", "/api/v5/account/balance", nil)
	return err
}

// signed issues an authenticated request. path must already carry the query
// string because OKX signs it.
func (a *okx) signed(ctx context.Context, creds market.Credentials, method, path string, body []byte) ([]byte, error) {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	sign := signSHA256B64(creds.APISecret, ts+method+path+string(body))

	headers := map[string]string{
		"OK-ACCESS-KEY":        creds.APIKey,
		"OK-ACCESS-SIGN":       sign,
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": creds.Passphrase,
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
