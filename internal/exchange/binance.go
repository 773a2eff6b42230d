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

// binanceLike implements the Binance spot API v3, shared by Binance,
// Binance.US and MEXC (API-compatible for the endpoints this engine uses).
// Signing: HMAC-SHA256 hex over the query string.
type binanceLike struct {
	name      string
	client    *restClient
	keyHeader string
	intervals intervalMap
}

func newBinanceLike(name, baseURL string, minInterval time.Duration) *binanceLike {
	return &binanceLike{
		name:      name,
		client:    newRESTClient(name, baseURL, minInterval),
		keyHeader: "X-MBX-APIKEY",
		intervals: intervalMap{
			hour: "1h",
			values: map[string]string{
				"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
				"1h": "1h", "2h": "2h", "4h": "4h", "6h": "6h", "12h": "12h",
				"1d": "1d", "1w": "1w",
			},
		},
	}
}

func newBinance(baseURL string) Adapter   { return newBinanceLike("binance", baseURL, 100*time.Millisecond) }
func newBinanceUS(baseURL string) Adapter { return newBinanceLike("binanceus", baseURL, 100*time.Millisecond) }

func newMEXC(baseURL string) Adapter {
	a := newBinanceLike("mexc", baseURL, 200*time.Millisecond)
	a.keyHeader = "X-MEXC-APIKEY"
	// MEXC spells the hour intervals differently.
	a.intervals = intervalMap{
		hour: "60m",
		values: map[string]string{
			"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
			"1h": "60m", "4h": "4h", "12h": "12h", "1d": "1d", "1w": "1W",
		},
	}
	return a
}

func (a *binanceLike) Name() string { return a.name }

func (a *binanceLike) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("interval", a.intervals.toVenue(interval))
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v3/klines", query: q})
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%s: parsing klines: %w", a.name, err)
	}

	candles := make([]market.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			continue
		}
		c, err := tupleCandle(k[0], k[1], k[2], k[3], k[4], k[5])
		if err != nil {
			return nil, fmt.Errorf("%s: parsing kline: %w", a.name, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *binanceLike) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbol", pair)

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v3/ticker/price", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%s: parsing ticker: %w", a.name, err)
	}
	return decimal.NewFromString(resp.Price)
}

func (a *binanceLike) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("limit", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/v3/depth", query: q})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Bids [][]interface{} `json:"bids"`
		Asks [][]interface{} `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: parsing depth: %w", a.name, err)
	}
	return pairsBook(resp.Bids, resp.Asks)
}

func (a *binanceLike) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	body, err := a.signedGet(ctx, creds, "/api/v3/account", url.Values{})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("%s: parsing account: %w", a.name, err)
	}
	for _, b := range resp.Balances {
		if b.Asset == currency {
			return decimal.NewFromString(b.Free)
		}
	}
	return decimal.Zero, nil
}

func (a *binanceLike) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("side", "BUY")
	q.Set("type", "MARKET")
	q.Set("quoteOrderQty", quoteAmount.String())
	return a.submitOrder(ctx, creds, q)
}

func (a *binanceLike) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	q := url.Values{}
	q.Set("symbol", pair)
	q.Set("side", "SELL")
	q.Set("type", "MARKET")
	q.Set("quantity", baseQuantity.String())
	return a.submitOrder(ctx, creds, q)
}

func (a *binanceLike) submitOrder(ctx context.Context, creds market.Credentials, q url.Values) (*market.Fill, error) {
	q.Set("newOrderRespType", "FULL")
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("signature", signSHA256Hex(creds.APISecret, q.Encode()))

	body, err := a.client.do(ctx, restRequest{
		method:  "POST",
		path:    "/api/v3/order",
		query:   q,
		headers: map[string]string{a.keyHeader: creds.APIKey},
		timeout: orderTimeout,
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID             int64  `json:"orderId"`
		ExecutedQty         string `json:"executedQty"`
		CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
		Fills               []struct {
			Price           string `json:"price"`
			Qty             string `json:"qty"`
			Commission      string `json:"commission"`
			CommissionAsset string `json:"commissionAsset"`
		} `json:"fills"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: parsing order response: %w", a.name, err)
	}

	qty, err := decimal.NewFromString(resp.ExecutedQty)
	if err != nil {
		return nil, fmt.Errorf("%s: executedQty: %w", a.name, err)
	}
	value, err := decimal.NewFromString(resp.CummulativeQuoteQty)
	if err != nil {
		return nil, fmt.Errorf("%s: cummulativeQuoteQty: %w", a.name, err)
	}

	fee := decimal.Zero
	feeCurrency := ""
	for _, f := range resp.Fills {
		c, err := decimal.NewFromString(f.Commission)
		if err != nil {
			continue
		}
		fee = fee.Add(c)
		feeCurrency = f.CommissionAsset
	}

	price := decimal.Zero
	if qty.IsPositive() {
		price = value.DivRound(qty, 12)
	}

	return &market.Fill{
		OrderID:          strconv.FormatInt(resp.OrderID, 10),
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              fee,
		FeeCurrency:      feeCurrency,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *binanceLike) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signedGet(ctx, creds, "/api/v3/account", url.Values{})
	return err
}

func (a *binanceLike) signedGet(ctx context.Context, creds market.Credentials, path string, q url.Values) ([]byte, error) {
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	q.Set("signature", signSHA256Hex(creds.APISecret, q.Encode()))
	return a.client.do(ctx, restRequest{
		method:  "GET",
		path:    path,
		query:   q,
		headers: map[string]string{a.keyHeader: creds.APIKey},
	})
}

// tupleCandle builds a canonical candle from the positional array shape
// (ts, open, high, low, close, volume) most venues return.
func tupleCandle(ts, open, high, low, clos, volume interface{}) (market.Candle, error) {
	t, err := market.ParseTimestampMs(ts)
	if err != nil {
		return market.Candle{}, err
	}
	fields := [5]decimal.Decimal{}
	for i, v := range []interface{}{open, high, low, clos, volume} {
		d, err := market.ParseDecimal(v)
		if err != nil {
			return market.Candle{}, err
		}
		fields[i] = d
	}
	return market.Candle{
		Timestamp: t,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
	}, nil
}

// pairsBook builds an order book from positional [price, size] arrays.
func pairsBook(bids, asks [][]interface{}) (*market.OrderBook, error) {
	parse := func(levels [][]interface{}) ([]market.Level, error) {
		out := make([]market.Level, 0, len(levels))
		for _, l := range levels {
			if len(l) < 2 {
				continue
			}
			price, err := market.ParseDecimal(l[0])
			if err != nil {
				return nil, err
			}
			size, err := market.ParseDecimal(l[1])
			if err != nil {
				return nil, err
			}
			out = append(out, market.Level{Price: price, Size: size})
		}
		return out, nil
	}

	b, err := parse(bids)
	if err != nil {
		return nil, err
	}
	a, err := parse(asks)
	if err != nil {
		return nil, err
	}
	return &market.OrderBook{Bids: b, Asks: a}, nil
}
