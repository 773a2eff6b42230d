package triarb

import (
	"fmt"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// StepQuote is the simulated outcome of one leg at the book's top of book
type StepQuote struct {
	Pair        string          `json:"pair"`
	Side        string          `json:"side"`
	Price       decimal.Decimal `json:"price"`
	Input       decimal.Decimal `json:"input"`
	Output      decimal.Decimal `json:"output"`
	Fee         decimal.Decimal `json:"fee"`
	FeeCurrency string          `json:"feeCurrency"`
}

// Opportunity is the fee-adjusted result of pushing a start amount through
// one triangular path
type Opportunity struct {
	PathID        string          `json:"pathId"`
	Exchange      string          `json:"exchange"`
	Sequence      string          `json:"sequence"`
	StartAmount   decimal.Decimal `json:"startAmount"`
	EndAmount     decimal.Decimal `json:"endAmount"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitPercent decimal.Decimal `json:"profitPercent"`
	TotalFees     decimal.Decimal `json:"totalFees"`
	Steps         []StepQuote     `json:"steps"`
}

// ComputeProfit simulates a path at top-of-book prices. Buys pay the fee on
// the input amount before converting at the best ask; sells convert at the
// best bid and pay the fee on the proceeds. The side of each step is taken
// from the path, never inferred from the pair.
func ComputeProfit(path Path, exchange string, books map[string]*market.OrderBook, start, feeRate decimal.Decimal) (*Opportunity, error) {
	if !start.IsPositive() {
		return nil, fmt.Errorf("start amount must be positive")
	}
	keep := one.Sub(feeRate)

	amount := start
	steps := make([]StepQuote, 0, 3)
	for _, step := range path.Steps {
		book, ok := books[step.Pair]
		if ok && book == nil {
			ok = false
		}
		if !ok {
			return nil, fmt.Errorf("no order book for %s", step.Pair)
		}

		_, quote, splitOK := splitAgainstKnownQuotes(step.Pair)
		if !splitOK {
			return nil, fmt.Errorf("cannot split pair %s", step.Pair)
		}

		var q StepQuote
		q.Pair = step.Pair
		q.Side = step.Side
		q.Input = amount

		switch step.Side {
		case SideBuy:
			ask, err := book.BestAsk()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", step.Pair, err)
			}
			if !ask.Price.IsPositive() {
				return nil, fmt.Errorf("%s: non-positive ask", step.Pair)
			}
			q.Price = ask.Price
			q.Fee = amount.Mul(feeRate)
			q.FeeCurrency = quote
			q.Output = amount.Mul(keep).Div(ask.Price)
		case SideSell:
			bid, err := book.BestBid()
			if err != nil {
				return nil, fmt.Errorf("%s: %w", step.Pair, err)
			}
			q.Price = bid.Price
			gross := amount.Mul(bid.Price)
			q.Fee = gross.Mul(feeRate)
			q.FeeCurrency = quote
			q.Output = gross.Mul(keep)
		default:
			return nil, fmt.Errorf("path %s step %s has unknown side %q", path.ID, step.Pair, step.Side)
		}

		amount = q.Output
		steps = append(steps, q)
	}

	profit := amount.Sub(start)
	// Indicative fee total in the start currency: the fraction of notional
	// the three legs retain.
	feeFraction := one.Sub(keep.Pow(decimal.NewFromInt(3)))
	return &Opportunity{
		PathID:        path.ID,
		Exchange:      exchange,
		Sequence:      path.Sequence,
		StartAmount:   start,
		EndAmount:     amount,
		Profit:        profit,
		ProfitPercent: profit.Div(start).Mul(hundred),
		TotalFees:     start.Mul(feeFraction),
		Steps:         steps,
	}, nil
}

// knownQuotes are matched longest first so USDTZAR splits as USDT/ZAR, not
// USD/TZAR
var knownQuotes = []string{"USDT", "USDC", "TUSD", "BUSD", "ZAR", "BTC", "ETH", "BNB", "EUR", "GBP", "USD"}

func splitAgainstKnownQuotes(pair string) (base, quote string, ok bool) {
	for _, q := range knownQuotes {
		if len(pair) > len(q) && pair[len(pair)-len(q):] == q {
			return pair[:len(pair)-len(q)], q, true
		}
	}
	return "", "", false
}
