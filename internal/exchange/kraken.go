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

// kraken implements the Kraken REST API. BTC is XBT on the wire.
// Signing: HMAC-SHA512 base64 of path + SHA256(nonce+postdata) with the
// base64-decoded secret. Kraken's call budget is tight, hence the wide pacing.
type kraken struct {
	client  *restClient
	symbols symbolMapper
}

var krakenMinutes = map[string]string{
	"1m": "1", "5m": "5", "15m": "15", "30m": "30",
	"1h": "60", "4h": "240", "1d": "1440", "1w": "10080",
}

func newKraken(baseURL string) Adapter {
	return &kraken{
		client:  newRESTClient("kraken", baseURL, 1000*time.Millisecond),
		symbols: symbolMapper{renames: map[string]string{"BTC": "XBT", "DOGE": "XDG"}},
	}
}

func (a *kraken) Name() string { return "kraken" }

func (a *kraken) decode(body []byte, out interface{}) error {
	var env struct {
		Error  []string        `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("kraken: parsing envelope: %w", err)
	}
	if len(env.Error) > 0 {
		return &market.VenueError{Venue: "kraken", HTTPStatus: 200, VenueCode: env.Error[0], Message: strings.Join(env.Error, "; ")}
	}
	return json.Unmarshal(env.Result, out)
}

func (a *kraken) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	minutes, ok := krakenMinutes[interval]
	if !ok {
		minutes = "60"
	}
	q := url.Values{}
	q.Set("pair", a.symbols.toVenue(pair))
	q.Set("interval", minutes)

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/0/public/OHLC", query: q})
	if err != nil {
		return nil, err
	}

	// The result map is keyed by Kraken's internal pair spelling plus a
	// "last" cursor; take the single array-valued entry.
	var result map[string]json.RawMessage
	if err := a.decode(body, &result); err != nil {
		return nil, err
	}

	var rows [][]interface{}
	for key, raw := range result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("kraken: parsing ohlc rows: %w", err)
		}
		break
	}

	candles := make([]market.Candle, 0, len(rows))
	for _, k := range rows {
		if len(k) < 7 {
			continue
		}
		// [time(sec), open, high, low, close, vwap, volume, count]
		c, err := tupleCandle(k[0], k[1], k[2], k[3], k[4], k[6])
		if err != nil {
			return nil, fmt.Errorf("kraken: parsing ohlc: %w", err)
		}
		candles = append(candles, c)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (a *kraken) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("pair", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/0/public/Ticker", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var result map[string]struct {
		C []string `json:"c"` // last trade [price, lot volume]
	}
	if err := a.decode(body, &result); err != nil {
		return decimal.Zero, err
	}
	for _, t := range result {
		if len(t.C) > 0 {
			return decimal.NewFromString(t.C[0])
		}
	}
	return decimal.Zero, fmt.Errorf("kraken: no ticker for %s", pair)
}

func (a *kraken) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("pair", a.symbols.toVenue(pair))
	q.Set("count", "20")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/0/public/Depth", query: q})
	if err != nil {
		return nil, err
	}

	var result map[string]struct {
		Bids [][]interface{} `json:"bids"`
		Asks [][]interface{} `json:"asks"`
	}
	if err := a.decode(body, &result); err != nil {
		return nil, err
	}
	for _, b := range result {
		return pairsBook(b.Bids, b.Asks)
	}
	return nil, fmt.Errorf("kraken: empty depth for %s", pair)
}

func (a *kraken) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	body, err := a.signed(ctx, creds, "/0/private/Balance", url.Values{})
	if err != nil {
		return decimal.Zero, err
	}

	var result map[string]string
	if err := a.decode(body, &result); err != nil {
		return decimal.Zero, err
	}

	venueCcy := currency
	if alias, ok := a.symbols.renames[currency]; ok {
		venueCcy = alias
	}
	for asset, amount := range result {
		// Kraken prefixes fiat with Z and crypto with X (ZUSD, XXBT).
		if asset == venueCcy || strings.TrimLeft(asset, "XZ") == venueCcy {
			return decimal.NewFromString(amount)
		}
	}
	return decimal.Zero, nil
}

func (a *kraken) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	form := url.Values{}
	form.Set("pair", a.symbols.toVenue(pair))
	form.Set("type", "buy")
	form.Set("ordertype", "market")
	form.Set("volume", quoteAmount.String())
	form.Set("oflags", "viqc") // volume in quote currency
	return a.submitOrder(ctx, creds, form)
}

func (a *kraken) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	form := url.Values{}
	form.Set("pair", a.symbols.toVenue(pair))
	form.Set("type", "sell")
	form.Set("ordertype", "market")
	form.Set("volume", baseQuantity.String())
	return a.submitOrder(ctx, creds, form)
}

func (a *kraken) submitOrder(ctx context.Context, creds market.Credentials, form url.Values) (*market.Fill, error) {
	body, err := a.signed(ctx, creds, "/0/private/AddOrder", form)
	if err != nil {
		return nil, err
	}

	var created struct {
		TxID []string `json:"txid"`
	}
	if err := a.decode(body, &created); err != nil {
		return nil, err
	}
	if len(created.TxID) == 0 {
		return nil, fmt.Errorf("kraken: order accepted without txid")
	}
	txid := created.TxID[0]

	queryForm := url.Values{}
	queryForm.Set("txid", txid)
	detailBody, err := a.signed(ctx, creds, "/0/private/QueryOrders", queryForm)
	if err != nil {
		return nil, err
	}

	var detail map[string]struct {
		Price   string `json:"price"`
		VolExec string `json:"vol_exec"`
		Cost    string `json:"cost"`
		Fee     string `json:"fee"`
	}
	if err := a.decode(detailBody, &detail); err != nil {
		return nil, err
	}
	o, ok := detail[txid]
	if !ok {
		return nil, fmt.Errorf("kraken: order %s not found", txid)
	}

	price, _ := decimal.NewFromString(o.Price)
	qty, _ := decimal.NewFromString(o.VolExec)
	value, _ := decimal.NewFromString(o.Cost)
	fee, _ := decimal.NewFromString(o.Fee)

	return &market.Fill{
		OrderID:          txid,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              fee,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *kraken) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "/0/private/Balance", url.Values{})
	return err
}

func (a *kraken) signed(ctx context.Context, creds market.Credentials, path string, form url.Values) ([]byte, error) {
	nonce := strconv.FormatInt(time.Now().UnixNano(), 10)
	form.Set("nonce", nonce)
	postdata := form.Encode()

	sign, err := signKraken(creds.APISecret, path, nonce, postdata)
	if err != nil {
		return nil, fmt.Errorf("kraken: signing: %w", err)
	}

	return a.client.do(ctx, restRequest{
		method: "POST",
		path:   path,
		headers: map[string]string{
			"API-Key":      creds.APIKey,
			"API-Sign":     sign,
			"Content-Type": "application/x-www-form-urlencoded",
		},
		body:    []byte(postdata),
		timeout: orderTimeout,
	})
}
