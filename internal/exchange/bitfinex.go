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

// bitfinex implements the Bitfinex v2 API. Trading symbols carry a "t"
// prefix and Tether trades as UST on the venue. Private endpoints sign
// "/api" + path + nonce + body with HMAC-SHA384 hex.
type bitfinex struct {
	client    *restClient
	intervals intervalMap
}

func newBitfinex(baseURL string) Adapter {
	return &bitfinex{
		client: newRESTClient("bitfinex", baseURL, 250*time.Millisecond),
		intervals: intervalMap{
			hour: "1h",
			values: map[string]string{
				"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
				"1h": "1h", "3h": "3h", "6h": "6h", "12h": "12h",
				"1d": "1D", "1w": "7D",
			},
		},
	}
}

func (a *bitfinex) Name() string { return "bitfinex" }

func (a *bitfinex) toVenue(pair string) string {
	base, quote, ok := SplitPair(pair)
	if !ok {
		return "t" + pair
	}
	if quote == "USDT" {
		quote = "UST"
	}
	if base == "USDT" {
		base = "UST"
	}
	return "t" + base + quote
}

func (a *bitfinex) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	path := fmt.Sprintf("/v2/candles/trade:%s:%s/hist", a.intervals.toVenue(interval), a.toVenue(pair))
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: path, query: q})
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("bitfinex: parsing candles: %w", err)
	}

	// Wire order is [mts, open, close, high, low, volume], newest first.
	candles := make([]market.Candle, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		k := rows[i]
		if len(k) < 6 {
			continue
		}
		c, err := tupleCandle(k[0], k[1], k[3], k[4], k[2], k[5])
		if err != nil {
			return nil, fmt.Errorf("bitfinex: parsing candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *bitfinex) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v2/ticker/" + a.toVenue(pair)})
	if err != nil {
		return decimal.Zero, err
	}

	var row []interface{}
	if err := json.Unmarshal(body, &row); err != nil {
		return decimal.Zero, fmt.Errorf("bitfinex: parsing ticker: %w", err)
	}
	if len(row) < 7 {
		return decimal.Zero, fmt.Errorf("bitfinex: short ticker for %s", pair)
	}
	return market.ParseDecimal(row[6]) // LAST_PRICE
}

func (a *bitfinex) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("len", "25")

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/v2/book/" + a.toVenue(pair) + "/P0", query: q})
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("bitfinex: parsing book: %w", err)
	}

	// Each row is [price, count, amount]; positive amounts are bids,
	// negative are asks.
	book := &market.OrderBook{}
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		price, err := market.ParseDecimal(r[0])
		if err != nil {
			return nil, fmt.Errorf("bitfinex: parsing book price: %w", err)
		}
		amount, err := market.ParseDecimal(r[2])
		if err != nil {
			return nil, fmt.Errorf("bitfinex: parsing book amount: %w", err)
		}
		if amount.IsPositive() {
			book.Bids = append(book.Bids, market.Level{Price: price, Size: amount})
		} else {
			book.Asks = append(book.Asks, market.Level{Price: price, Size: amount.Abs()})
		}
	}
	return book, nil
}

func (a *bitfinex) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	body, err := a.signed(ctx, creds, "/v2/auth/r/wallets", nil)
	if err != nil {
		return decimal.Zero, err
	}

	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return decimal.Zero, fmt.Errorf("bitfinex: parsing wallets: %w", err)
	}

	want := currency
	if want == "USDT" {
		want = "UST"
	}
	// Wallet rows are [type, currency, balance, unsettled, available, ...].
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		walletType, _ := r[0].(string)
		ccy, _ := r[1].(string)
		if walletType != "exchange" || !strings.EqualFold(ccy, want) {
			continue
		}
		if r[4] != nil {
			return market.ParseDecimal(r[4])
		}
		return market.ParseDecimal(r[2])
	}
	return decimal.Zero, nil
}

func (a *bitfinex) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// Orders are sized in base; convert the quote budget at the best ask.
	book, err := a.FetchOrderBook(ctx, pair)
	if err != nil {
		return nil, err
	}
	ask, askErr := book.BestAsk()
	if askErr != nil {
		return nil, fmt.Errorf("bitfinex: empty ask side for %s", pair)
	}
	qty := quoteAmount.DivRound(ask.Price, 8)
	return a.submitOrder(ctx, creds, pair, qty)
}

func (a *bitfinex) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, baseQuantity.Neg())
}

// submitOrder places an exchange market order. Positive amounts buy,
// negative amounts sell.
func (a *bitfinex) submitOrder(ctx context.Context, creds market.Credentials, pair string, amount decimal.Decimal) (*market.Fill, error) {
	params := map[string]interface{}{
		"type":   "EXCHANGE MARKET",
		"symbol": a.toVenue(pair),
		"amount": amount.String(),
	}

	body, err := a.signed(ctx, creds, "/v2/auth/w/order/submit", params)
	if err != nil {
		return nil, err
	}

	// Response shape: [mts, type, msg_id, null, [[order array]], code, status, text].
	var notify []interface{}
	if err := json.Unmarshal(body, &notify); err != nil {
		return nil, fmt.Errorf("bitfinex: parsing order response: %w", err)
	}
	if len(notify) < 7 {
		return nil, fmt.Errorf("bitfinex: short order response")
	}
	if status, _ := notify[6].(string); status == "ERROR" {
		text, _ := notify[7].(string)
		return nil, &market.VenueError{Venue: "bitfinex", HTTPStatus: 200, Message: text}
	}

	orders, _ := notify[4].([]interface{})
	if len(orders) == 0 {
		return nil, fmt.Errorf("bitfinex: order response carries no order")
	}
	order, _ := orders[0].([]interface{})
	if len(order) < 18 {
		return nil, fmt.Errorf("bitfinex: short order array")
	}

	orderID, err := market.ParseDecimal(order[0])
	if err != nil {
		return nil, fmt.Errorf("bitfinex: parsing order id: %w", err)
	}
	// AMOUNT_ORIG at 7, PRICE_AVG at 17.
	origAmount, _ := market.ParseDecimal(order[7])
	avgPrice, _ := market.ParseDecimal(order[17])

	qty := origAmount.Abs()
	price := avgPrice
	value := qty.Mul(price)

	return &market.Fill{
		OrderID:          orderID.String(),
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              value.Mul(decimal.NewFromFloat(0.002)),
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *bitfinex) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "/v2/auth/r/wallets", nil)
	return err
}

func (a *bitfinex) signed(ctx context.Context, creds market.Credentials, path string, params map[string]interface{}) ([]byte, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := signSHA384Hex(creds.APISecret, "/api"+path+nonce+string(body))

	headers := map[string]string{
		"bfx-nonce":     nonce,
		"bfx-apikey":    creds.APIKey,
		"bfx-signature": sign,
		"Content-Type":  "application/json",
	}
	return a.client.do(ctx, restRequest{method: "POST", path: path, headers: headers, body: body, timeout: orderTimeout})
}
