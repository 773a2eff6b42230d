package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

// Adapter is the uniform capability set every venue implementation exposes.
// Candle and order-book endpoints are public on most venues; balances and
// order submission always require signing, so credentials flow in as
// parameters on those calls and are discarded after use.
type Adapter interface {
	// Name returns the canonical lowercase exchange name ("binance", "valr", ...).
	Name() string

	// FetchCandles returns up to limit candles for the canonical pair at the
	// canonical interval, oldest first.
	FetchCandles(ctx context.Context, pair, interval string, limit int) ([]market.Candle, error)

	// FetchCurrentPrice returns the last traded price for the pair.
	FetchCurrentPrice(ctx context.Context, pair string) (decimal.Decimal, error)

	// FetchOrderBook returns top levels for the pair, best first.
	FetchOrderBook(ctx context.Context, pair string) (*market.OrderBook, error)

	// FetchBalance returns the available balance of a single currency.
	FetchBalance(ctx context.Context, creds market.Credentials, currency string) (decimal.Decimal, error)

	// MarketBuy spends quoteAmount of the quote currency buying the base.
	MarketBuy(ctx context.Context, creds market.Credentials, pair string, quoteAmount decimal.Decimal) (*market.Fill, error)

	// MarketSell sells baseQuantity of the base currency.
	MarketSell(ctx context.Context, creds market.Credentials, pair string, baseQuantity decimal.Decimal) (*market.Fill, error)

	// TestConnection verifies the credentials with a cheap authenticated call.
	TestConnection(ctx context.Context, creds market.Credentials) error
}

// AuthCandleFetcher is implemented by venues whose candle endpoint itself
// requires credentials (Luno). Callers probe for it with a type assertion
// and fall back to FetchCandles otherwise.
type AuthCandleFetcher interface {
	FetchCandlesAuth(ctx context.Context, creds market.Credentials, pair, interval string, limit int) ([]market.Candle, error)
}
