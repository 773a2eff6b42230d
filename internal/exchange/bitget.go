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

// bitget implements the Bitget spot v1 API. Spot symbols carry the _SPBL
// suffix. Signing follows the OKX family: base64 HMAC-SHA256 over
// ts+method+path+body plus a passphrase header.
type bitget struct {
	client    *restClient
	symbols   symbolMapper
	intervals intervalMap
}

func newBitget(baseURL string) Adapter {
	return &bitget{
		client:  newRESTClient("bitget", baseURL, 100*time.Millisecond),
		symbols: symbolMapper{suffix: "_SPBL"},
		intervals: intervalMap{
			hour: "1h",
			values: map[string]string{
				"1m": "1min", "5m": "5min", "15m": "15min", "30m": "30min",
				"1h": "1h", "4h": "4h", "6h": "6h", "12h": "12h",
				"1d": "1day", "1w": "1week",
			},
		},
	}
}

func (a *bitget) Name() string { return "bitget" }

func (a *bitget) decode(body []byte, out interface{}) error {
	var env struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("bitget: parsing envelope: %w", err)
	}
	if env.Code != "00000" {
		return &market.VenueError{Venue: "bitget", HTTPStatus: 200, VenueCode: env.Code, Message: env.Msg}
	}
	return json.Unmarshal(env.Data, out)
}

func (a *bitget) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("period", a.intervals.toVenue(interval))
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/spot/v1/market/candles", query: q})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		TS      string `json:"ts"`
		Open    string `json:"open"`
		High    string `json:"high"`
		Low     string `json:"low"`
		Close   string `json:"close"`
		BaseVol string `json:"baseVol"`
	}
	if err := a.decode(body, &rows); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := tupleCandle(r.TS, r.Open, r.High, r.Low, r.Close, r.BaseVol)
		if err != nil {
			return nil, fmt.Errorf("bitget: parsing candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *bitget) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/spot/v1/market/ticker", query: q})
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

func (a *bitget) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("symbol", a.symbols.toVenue(pair))
	q.Set("type", "step0")
	q.Set("limit", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/spot/v1/market/depth", query: q})
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

func (a *bitget) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	body, err := a.signed(ctx, creds, "GET", "/api/spot/v1/account/assets", nil)
	if err != nil {
		return decimal.Zero, err
	}

	var rows []struct {
		CoinName  string `json:"coinName"`
		Available string `json:"available"`
	}
	if err := a.decode(body, &rows); err != nil {
		return decimal.Zero, err
	}
	for _, r := range rows {
		if r.CoinName == currency {
			return decimal.NewFromString(r.Available)
		}
	}
	return decimal.Zero, nil
}

func (a *bitget) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// Market buys are sized in quote currency on Bitget spot.
	return a.submitOrder(ctx, creds, pair, "buy", quoteAmount)
}

func (a *bitget) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "sell", baseQuantity)
}

func (a *bitget) submitOrder(ctx context.Context, creds market.Credentials, pair, side string, qty decimal.Decimal) (*market.Fill, error) {
	symbol := a.symbols.toVenue(pair)
	payload := map[string]string{
		"symbol":    symbol,
		"side":      side,
		"orderType": "market",
		"force":     "normal",
		"quantity":  qty.String(),
	}
	bodyJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	body, err := a.signed(ctx, creds, "POST", "/api/spot/v1/trade/orders", bodyJSON)
	if err != nil {
		return nil, err
	}

	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := a.decode(body, &created); err != nil {
		return nil, err
	}

	infoPayload, _ := json.Marshal(map[string]string{"symbol": symbol, "orderId": created.OrderID})
	infoBody, err := a.signed(ctx, creds, "POST", "/api/spot/v1/trade/orderInfo", infoPayload)
	if err != nil {
		return nil, err
	}

	var info []struct {
		FillPrice    string `json:"fillPrice"`
		FillQuantity string `json:"fillQuantity"`
		FillTotalAmount string `json:"fillTotalAmount"`
		Fee          string `json:"fee"`
	}
	if err := a.decode(infoBody, &info); err != nil {
		return nil, err
	}
	if len(info) == 0 {
		return nil, fmt.Errorf("bitget: order %s not found", created.OrderID)
	}

	price, _ := decimal.NewFromString(info[0].FillPrice)
	fillQty, _ := decimal.NewFromString(info[0].FillQuantity)
	value, _ := decimal.NewFromString(info[0].FillTotalAmount)
	fee, _ := decimal.NewFromString(info[0].Fee)

	return &market.Fill{
		OrderID:          created.OrderID,
		ExecutedPrice:    price,
		ExecutedQuantity: fillQty,
		ExecutedValue:    value,
		Fee:              fee.Abs(),
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *bitget) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "GET", "/api/spot/v1/account/assets", nil)
	return err
}

func (a *bitget) signed(ctx context.Context, creds market.Credentials, method, path string, body []byte) ([]byte, error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signSHA256B64(creds.APISecret, ts+method+path+string(body))

	headers := map[string]string{
		"ACCESS-KEY":        creds.APIKey,
		"ACCESS-SIGN":       sign,
		"ACCESS-TIMESTAMP":  ts,
		"ACCESS-PASSPHRASE": creds.Passphrase,
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
