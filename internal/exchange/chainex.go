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

// chainex implements the ChainEX API. Markets are written coin/exchange
// ("BTC/USDT"). Signing follows the Binance pattern: HMAC-SHA256 hex over
// the query string, with the key and timestamp travelling as parameters.
// ChainEX throttles aggressively, hence the slow pacing.
type chainex struct {
	client    *restClient
	symbols   symbolMapper
	intervals intervalMap
}

func newChainEX(baseURL string) Adapter {
	return &chainex{
		client:  newRESTClient("chainex", baseURL, 1000*time.Millisecond),
		symbols: symbolMapper{sep: "/"},
		intervals: intervalMap{
			hour: "1h",
			values: map[string]string{
				"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
				"1h": "1h", "4h": "4h", "1d": "1d", "1w": "1w",
			},
		},
	}
}

func (a *chainex) Name() string { return "chainex" }

func (a *chainex) decode(body []byte, out interface{}) error {
	var env struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("chainex: parsing envelope: %w", err)
	}
	if env.Status != "" && env.Status != "success" {
		return &market.VenueError{Venue: "chainex", HTTPStatus: 200, VenueCode: env.Status, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

func (a *chainex) FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error) {
	path := "/market/chartdata/" + a.symbols.toVenue(pair) + "/" + a.intervals.toVenue(interval)
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	body, err := a.client.do(ctx, restRequest{method: "GET", path: path, query: q})
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Time   int64  `json:"time"`
		Open   string `json:"open"`
		High   string `json:"high"`
		Low    string `json:"low"`
		Close  string `json:"close"`
		Volume string `json:"volume"`
	}
	if err := a.decode(body, &rows); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := tupleCandle(r.Time, r.Open, r.High, r.Low, r.Close, r.Volume)
		if err != nil {
			return nil, fmt.Errorf("chainex: parsing candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func (a *chainex) FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/market/summary/" + a.symbols.toVenue(pair)})
	if err != nil {
		return decimal.Zero, err
	}

	var data struct {
		LastPrice string `json:"last_price"`
	}
	if err := a.decode(body, &data); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(data.LastPrice)
}

func (a *chainex) FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error) {
	body, err := a.client.do(ctx, restRequest{method: "GET", path: "/market/orders/" + a.symbols.toVenue(pair)})
	if err != nil {
		return nil, err
	}

	var data struct {
		Bids []struct {
			Price  string `json:"price"`
			Amount string `json:"amount"`
		} `json:"bids"`
		Asks []struct {
			Price  string `json:"price"`
			Amount string `json:"amount"`
		} `json:"asks"`
	}
	if err := a.decode(body, &data); err != nil {
		return nil, err
	}

	book := &market.OrderBook{}
	for _, b := range data.Bids {
		price, err := decimal.NewFromString(b.Price)
		if err != nil {
			return nil, fmt.Errorf("chainex: parsing bid price: %w", err)
		}
		size, err := decimal.NewFromString(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("chainex: parsing bid amount: %w", err)
		}
		book.Bids = append(book.Bids, market.Level{Price: price, Size: size})
	}
	for _, s := range data.Asks {
		price, err := decimal.NewFromString(s.Price)
		if err != nil {
			return nil, fmt.Errorf("chainex: parsing ask price: %w", err)
		}
		size, err := decimal.NewFromString(s.Amount)
		if err != nil {
			return nil, fmt.Errorf("chainex: parsing ask amount: %w", err)
		}
		book.Asks = append(book.Asks, market.Level{Price: price, Size: size})
	}
	return book, nil
}

func (a *chainex) FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error) {
	body, err := a.signed(ctx, creds, "GET", "/wallet/balances/"+currency, url.Values{})
	if err != nil {
		return decimal.Zero, err
	}

	var data struct {
		Balance string `json:"balance_available"`
	}
	if err := a.decode(body, &data); err != nil {
		return decimal.Zero, err
	}
	if data.Balance == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(data.Balance)
}

func (a *chainex) MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	// Orders are sized in base; convert the quote budget at the best ask.
	book, err := a.FetchOrderBook(ctx, pair)
	if err != nil {
		return nil, err
	}
	ask, askErr := book.BestAsk()
	if askErr != nil {
		return nil, fmt.Errorf("chainex: empty ask side for %s", pair)
	}
	qty := quoteAmount.DivRound(ask.Price, 8)
	return a.submitOrder(ctx, creds, pair, "BUY", qty)
}

func (a *chainex) MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	return a.submitOrder(ctx, creds, pair, "SELL", baseQuantity)
}

func (a *chainex) submitOrder(ctx context.Context, creds market.Credentials, pair, side string, qty decimal.Decimal) (*market.Fill, error) {
	q := url.Values{}
	q.Set("market", a.symbols.toVenue(pair))
	q.Set("type", side)
	q.Set("order_type", "MARKET")
	q.Set("amount", qty.String())

	body, err := a.signed(ctx, creds, "POST", "/trading/order", q)
	if err != nil {
		return nil, err
	}

	var data struct {
		OrderID      string `json:"order_id"`
		AmountFilled string `json:"amount_filled"`
		AveragePrice string `json:"average_price"`
		TotalFilled  string `json:"total_filled"` // quote
		Fee          string `json:"fee"`
	}
	if err := a.decode(body, &data); err != nil {
		return nil, err
	}

	filled, _ := decimal.NewFromString(data.AmountFilled)
	price, _ := decimal.NewFromString(data.AveragePrice)
	value, _ := decimal.NewFromString(data.TotalFilled)
	fee, _ := decimal.NewFromString(data.Fee)

	if value.IsZero() && filled.IsPositive() {
		value = filled.Mul(price)
	}

	return &market.Fill{
		OrderID:          data.OrderID,
		ExecutedPrice:    price,
		ExecutedQuantity: filled,
		ExecutedValue:    value,
		Fee:              fee,
		Timestamp:        time.Now().UTC(),
	}, nil
}

func (a *chainex) TestConnection(ctx context.Context, creds market.Credentials) error {
	_, err := a.signed(ctx, creds, "GET", "/wallet/balances", url.Values{})
	return err
}

func (a *chainex) signed(ctx context.Context, creds market.Credentials, method, path string, q url.Values) ([]byte, error) {
	q.Set("key", creds.APIKey)
	q.Set("time", strconv.FormatInt(time.Now().Unix(), 10))
	q.Set("hash", signSHA256Hex(creds.APISecret, path+"?"+q.Encode()))

	timeout := marketDataTimeout
	if method == "POST" {
		timeout = orderTimeout
	}
	return a.client.do(ctx, restRequest{method: method, path: path, query: q, timeout: timeout})
}
