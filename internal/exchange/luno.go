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

// luno implements the Luno API. BTC is XBT on the wire.
// Authentication: HTTP Basic with apiKey:apiSecret. Candles are an
// authenticated endpoint on Luno, unlike most venues.
type luno struct {
	client  *restClient
	symbols symbolMapper
}

var lunoDurations = map[string]int{
	"1m": 60, "5m": 300, "15m": 900, "30m": 1800,
	"1h": 3600, "4h": 14400, "1d": 86400, "1w": 604800,
}

func newLuno(baseURL string) Adapter {
	return &luno{
		client:  newRESTClient("luno", baseURL, 500*time.Millisecond),
		symbols: symbolMapper{renames: map[string]string{"BTC": "XBT"}},
	}
}

func (a *luno) Name() string { return "luno" }

func (a *luno) basicAuth(creds market.Credentials) map[string]string {
	token := base64.StdEncoding.EncodeToString([]byte(creds.APIKey + ":" + creds.APISecret))
	return map[string]string{"Authorization": "Basic " + token}
}

func (a *luno) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	return nil, fmt.Errorf("luno: candles require credentials; use FetchCandlesAuth")
}

// FetchCandlesAuth is the credentialed candle fetch the momentum engine uses
// when Luno is both the trading and the data venue.
func (a *luno) FetchCandlesAuth(ctx context.Context, creds market.Credentials, pair, interval string, limit int) ([]market.Candle, error) {
	duration, ok := lunoDurations[interval]
	if !ok {
		duration = 3600
	}
	since := time.Now().Add(-time.Duration(limit+1) * time.Duration(duration) * time.Second)

	q := url.Values{}
	q.Set("pair", a.symbols.toVenue(pair))
	q.Set("duration", strconv.Itoa(duration))
	q.Set("since", strconv.FormatInt(since.UnixMilli(), 10))

	body, err := a.client.do(ctx, restRequest{
		method:  "GET",
		path:    "/api/exchange/1/candles",
		query:   q,
		headers: a.basicAuth(creds),
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Candles []struct {
			Timestamp int64  `json:"timestamp"`
			Open      string `json:"open"`
			High      string `json:"high"`
			Low       string `json:"low"`
			Close     string `json:"close"`
			Volume    string `json:"volume"`
		} `json:"candles"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("luno: parsing candles: %w", err)
	}

	candles := make([]market.Candle, 0, len(resp.Candles))
	for _, r := range resp.Candles {
		c, err := tupleCandle(r.Timestamp, r.Open, r.High, r.Low, r.Close, r.Volume)
		if err != nil {
			return nil, fmt.Errorf("luno: parsing candle: %w", err)
		}
		candles = append(candles, c)
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (a *luno) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("pair", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/1/ticker", query: q})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		LastTrade string `json:"last_trade"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("luno: parsing ticker: %w", err)
	}
	return decimal.NewFromString(resp.LastTrade)
}

func (a *luno) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	q := url.Values{}
	q.Set("pair", a.symbols.toVenue(pair))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/api/1/orderbook_top", query: q})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Bids []struct {
			Price  string `json:"price"`
			Volume string `json:"volume"`
		} `json:"bids"`
		Asks []struct {
			Price  string `json:"price"`
			Volume string `json:"volume"`
		} `json:"asks"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("luno: parsing order book: %w", err)
	}

	book := &market.OrderBook{}
	for _, l := range resp.Bids {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(l.Volume)
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
		size, err := decimal.NewFromString(l.Volume)
		if err != nil {
			return nil, err
		}
		book.Asks = append(book.Asks, market.Level{Price: price, Size: size})
	}
	return book, nil
}

func (a *luno) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	venueCcy := currency
	if alias, ok := a.symbols.renames[currency]; ok {
		venueCcy = alias
	}

	q := url.Values{}
	q.Set("assets", venueCcy)

	body, err := a.client.do(ctx, restRequest{
		method:  "GET",
		path:    "/api/1/balance",
		query:   q,
		headers: a.basicAuth(creds),
	})
	if err != nil {
		return decimal.Zero, err
	}

	var resp struct {
		Balance []struct {
			Asset    string `json:"asset"`
			Balance  string `json:"balance"`
			Reserved string `json:"reserved"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("luno: parsing balance: %w", err)
	}
	for _, b := range resp.Balance {
		if b.Asset == venueCcy {
			total, err := decimal.NewFromString(b.Balance)
			if err != nil {
				return decimal.Zero, err
			}
			reserved, err := decimal.NewFromString(b.Reserved)
			if err != nil {
				return decimal.Zero, err
			}
			return total.Sub(reserved), nil
		}
	}
	return decimal.Zero, nil
}

func (a *luno) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	form := url.Values{}
	form.Set("pair", a.symbols.toVenue(pair))
	form.Set("type", "BUY")
	form.Set("counter_volume", quoteAmount.String())
	return a.submitOrder(ctx, creds, form)
}

func (a *luno) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	form := url.Values{}
	form.Set("pair", a.symbols.toVenue(pair))
	form.Set("type", "SELL")
	form.Set("base_volume", baseQuantity.String())
	return a.submitOrder(ctx, creds, form)
}

func (a *luno) submitOrder(ctx context.Context, creds market.Credentials, form url.Values) (*market.Fill, error) {
	headers := a.basicAuth(creds)
	headers["Content-Type"] = "application/x-www-form-urlencoded"

	body, err := a.client.do(ctx, restRequest{
		method:  "POST",
		path:    "/api/1/marketorder",
		headers: headers,
		body:    []byte(form.Encode()),
		timeout: orderTimeout,
	})
	if err != nil {
		return nil, err
	}

	var created struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("luno: parsing order response: %w", err)
	}

	detailBody, err := a.client.do(ctx, restRequest{
		method:  "GET",
		path:    "/api/1/orders/" + created.OrderID,
		headers: a.basicAuth(creds),
	})
	if err != nil {
		return nil, err
	}

	var detail struct {
		Base       string `json:"base"`    // filled base quantity
		Counter    string `json:"counter"` // filled quote value
		FeeBase    string `json:"fee_base"`
		FeeCounter string `json:"fee_counter"`
	}
	if err := json.Unmarshal(detailBody, &detail); err != nil {
		return nil, fmt.Errorf("luno: parsing order detail: %w", err)
	}

	qty, _ := decimal.NewFromString(detail.Base)
	value, _ := decimal.NewFromString(detail.Counter)
	feeBase, _ := decimal.NewFromString(detail.FeeBase)
	feeCounter, _ := decimal.NewFromString(detail.FeeCounter)

	price := decimal.Zero
	if qty.IsPositive() {
		price = value.DivRound(qty, 12)
	}

	// Report the fee in quote terms; base-denominated fees are converted.
	fee := feeCounter
	if feeBase.IsPositive() {
		fee = fee.Add(feeBase.Mul(price))
	}

	return &market.Fill{
		OrderID:          created.OrderID,
		ExecutedPrice:    price,
		ExecutedQuantity: qty,
		ExecutedValue:    value,
		Fee:              fee,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *luno) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.client.do(ctx, restRequest{
		method:  "GET",
		path:    "/api/1/balance",
		headers: a.basicAuth(creds),
	})
	return err
}
