package orders

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/credentials"
	"momentum-arb-bot/internal/exchange"
	"momentum-arb-bot/internal/market"
)

// Executor submits market orders on behalf of a user. Credentials are
// resolved per call and passed straight through to the adapter; they are
// never retained on the struct.
type Executor struct {
	registry *exchange.Registry
	creds    *credentials.Service
}

// NewExecutor creates an order executor
func NewExecutor(registry *exchange.Registry, creds *credentials.Service) *Executor {
	return &Executor{registry: registry, creds: creds}
}

func (e *Executor) resolve(ctx context.Context, userID, exchangeName string) (exchange.Adapter, market.Credentials, error) {
	adapter, err := e.registry.Get(exchangeName)
	if err != nil {
		return nil, market.Credentials{}, err
	}
	creds, err := e.creds.Get(ctx, userID, exchangeName)
	if err != nil {
		return nil, market.Credentials{}, fmt.Errorf("resolving credentials for %s on %s: %w", userID, exchangeName, err)
	}
	return adapter, creds, nil
}

// MarketBuy spends quoteAmount of the pair's quote currency at market
func (e *Executor) MarketBuy(ctx context.Context, userID, exchangeName, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	if !quoteAmount.IsPositive() {
		return nil, fmt.Errorf("buy amount must be positive, got %s", quoteAmount)
	}
	adapter, creds, err := e.resolve(ctx, userID, exchangeName)
	if err != nil {
		return nil, err
	}

	fill, err := adapter.MarketBuy(ctx, creds, pair, quoteAmount)
	if err != nil {
		return nil, fmt.Errorf("market buy %s on %s: %w", pair, exchangeName, err)
	}
	e.logFill("buy", userID, exchangeName, pair, fill)
	return fill, nil
}

// MarketSell sells baseQuantity of the pair's base currency at market
func (e *Executor) MarketSell(ctx context.Context, userID, exchangeName, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	if !baseQuantity.IsPositive() {
		return nil, fmt.Errorf("sell quantity must be positive, got %s", baseQuantity)
	}
	adapter, creds, err := e.resolve(ctx, userID, exchangeName)
	if err != nil {
		return nil, err
	}

	fill, err := adapter.MarketSell(ctx, creds, pair, baseQuantity)
	if err != nil {
		return nil, fmt.Errorf("market sell %s on %s: %w", pair, exchangeName, err)
	}
	e.logFill("sell", userID, exchangeName, pair, fill)
	return fill, nil
}

// MarketBuyWith is MarketBuy with caller-supplied credentials, for request
// paths where the keys arrive in the request body instead of the store
func (e *Executor) MarketBuyWith(ctx context.Context, userID string, creds market.Credentials, exchangeName, pair string, quoteAmount decimal.Decimal) (*market.Fill, error) {
	if !quoteAmount.IsPositive() {
		return nil, fmt.Errorf("buy amount must be positive, got %s", quoteAmount)
	}
	adapter, err := e.registry.Get(exchangeName)
	if err != nil {
		return nil, err
	}

	fill, err := adapter.MarketBuy(ctx, creds, pair, quoteAmount)
	if err != nil {
		return nil, fmt.Errorf("market buy %s on %s: %w", pair, exchangeName, err)
	}
	e.logFill("buy", userID, exchangeName, pair, fill)
	return fill, nil
}

// MarketSellWith is MarketSell with caller-supplied credentials
func (e *Executor) MarketSellWith(ctx context.Context, userID string, creds market.Credentials, exchangeName, pair string, baseQuantity decimal.Decimal) (*market.Fill, error) {
	if !baseQuantity.IsPositive() {
		return nil, fmt.Errorf("sell quantity must be positive, got %s", baseQuantity)
	}
	adapter, err := e.registry.Get(exchangeName)
	if err != nil {
		return nil, err
	}

	fill, err := adapter.MarketSell(ctx, creds, pair, baseQuantity)
	if err != nil {
		return nil, fmt.Errorf("market sell %s on %s: %w", pair, exchangeName, err)
	}
	e.logFill("sell", userID, exchangeName, pair, fill)
	return fill, nil
}

// BalanceWith is Balance with caller-supplied credentials
func (e *Executor) BalanceWith(ctx context.Context, creds market.Credentials, exchangeName, currency string) (decimal.Decimal, error) {
	adapter, err := e.registry.Get(exchangeName)
	if err != nil {
		return decimal.Zero, err
	}
	return adapter.FetchBalance(ctx, creds, currency)
}

// Balance fetches the user's available balance for one currency
func (e *Executor) Balance(ctx context.Context, userID, exchangeName, currency string) (decimal.Decimal, error) {
	adapter, creds, err := e.resolve(ctx, userID, exchangeName)
	if err != nil {
		return decimal.Zero, err
	}
	return adapter.FetchBalance(ctx, creds, currency)
}

// TestConnection verifies stored credentials against the venue and records
// the outcome
func (e *Executor) TestConnection(ctx context.Context, userID, exchangeName string) error {
	adapter, creds, err := e.resolve(ctx, userID, exchangeName)
	if err != nil {
		return err
	}

	testErr := adapter.TestConnection(ctx, creds)
	if markErr := e.creds.MarkConnected(ctx, userID, exchangeName, testErr == nil); markErr != nil {
		log.Warn().Err(markErr).
			Str("userId", userID).
			Str("exchange", exchangeName).
			Msg("failed to record connection state")
	}
	return testErr
}

func (e *Executor) logFill(side, userID, exchangeName, pair string, fill *market.Fill) {
	logFillEvent(log.Logger, side, userID, exchangeName, pair, fill)
}

func logFillEvent(logger zerolog.Logger, side, userID, exchangeName, pair string, fill *market.Fill) {
	logger.Info().
		Str("side", side).
		Str("userId", userID).
		Str("exchange", exchangeName).
		Str("pair", pair).
		Str("orderId", fill.OrderID).
		Str("price", fill.ExecutedPrice.String()).
		Str("quantity", fill.ExecutedQuantity.String()).
		Str("value", fill.ExecutedValue.String()).
		Str("fee", fill.Fee.String()).
		Msg("order filled")
}
