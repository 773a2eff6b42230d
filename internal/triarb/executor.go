package triarb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/events"
	"momentum-arb-bot/internal/market"
	"momentum-arb-bot/internal/orders"
)

// Per-leg order deadline. A leg that cannot fill inside this window leaves
// the execution partial; there is no rollback of completed legs.
const legTimeout = 30 * time.Second

// DefaultMaxSlippagePercent caps the gap between quoted and executed price
var DefaultMaxSlippagePercent = decimal.NewFromFloat(0.5)

// ExecuteRequest is one arbitrage execution attempt. Credentials travel in
// the request and stay request-scoped; when absent the stored keys for
// UserID are used instead.
type ExecuteRequest struct {
	UserID            string
	Exchange          string
	PathID            string
	Amount            decimal.Decimal
	ScanProfitPercent decimal.Decimal // profit the caller saw when deciding
	Limits            Limits
	MaxSlippage       decimal.Decimal // percent, zero means default
	DryRun            bool
	Confirmed         bool
	Credentials       market.Credentials
}

// LegResult records one executed (or simulated) leg
type LegResult struct {
	Index           int             `json:"index"`
	Pair            string          `json:"pair"`
	Side            string          `json:"side"`
	ExpectedPrice   decimal.Decimal `json:"expectedPrice"`
	ExecutedPrice   decimal.Decimal `json:"executedPrice"`
	Input           decimal.Decimal `json:"input"`
	Output          decimal.Decimal `json:"output"`
	Fee             decimal.Decimal `json:"fee"`
	SlippagePercent decimal.Decimal `json:"slippagePercent"`
	OrderID         string          `json:"orderId,omitempty"`
}

// ExecutionResult is the outcome of one attempt, partial or complete
type ExecutionResult struct {
	ID            string           `json:"id"`
	PathID        string           `json:"pathId"`
	Sequence      string           `json:"sequence"`
	DryRun        bool             `json:"dryRun"`
	Status        string           `json:"status"`
	StartAmount   decimal.Decimal  `json:"startAmount"`
	FinalAmount   decimal.Decimal  `json:"finalAmount"`
	Profit        decimal.Decimal  `json:"profit"`
	ProfitPercent decimal.Decimal  `json:"profitPercent"`
	Legs          []LegResult      `json:"legs"`
	Preflight     *PreflightReport `json:"preflight,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Executor runs validated triangular executions leg by leg
type Executor struct {
	scanner *Scanner
	orders  *orders.Executor
	repo    *database.Repository
	bus     *events.EventBus
	limiter *ExecutionLimiter
}

// NewExecutor creates an arbitrage executor
func NewExecutor(scanner *Scanner, orderExec *orders.Executor, repo *database.Repository,
	bus *events.EventBus, limiter *ExecutionLimiter) *Executor {
	return &Executor{scanner: scanner, orders: orderExec, repo: repo, bus: bus, limiter: limiter}
}

// Execute validates and runs one path. Legs run strictly in sequence; a
// failed or over-slipped leg stops the run with the completed legs recorded
// as-is. Funds stranded mid-path stay where they landed for the operator to
// unwind.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*ExecutionResult, error) {
	path, err := PathByID(req.PathID)
	if err != nil {
		return nil, err
	}

	startCurrency, err := stepInputCurrency(path.Steps[0])
	if err != nil {
		return nil, err
	}
	balance, err := e.balance(ctx, req, startCurrency)
	if err != nil {
		return nil, fmt.Errorf("fetching %s balance: %w", startCurrency, err)
	}

	quote, err := e.scanner.QuotePath(ctx, req.Exchange, path, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("re-pricing path %s: %w", req.PathID, err)
	}

	report, err := Preflight(balance, quote, req.ScanProfitPercent, req.Amount, req.Limits, !req.DryRun, req.Confirmed)
	if err != nil {
		return nil, err
	}
	if report.ProfitWarning != "" {
		log.Warn().
			Str("exchange", req.Exchange).
			Str("path", req.PathID).
			Msg(report.ProfitWarning)
	}

	result := &ExecutionResult{
		PathID:      req.PathID,
		Sequence:    path.Sequence,
		DryRun:      req.DryRun,
		StartAmount: req.Amount,
		Preflight:   report,
	}

	if req.DryRun {
		e.simulate(result, quote)
	} else {
		if err := e.limiter.Acquire(req.Exchange); err != nil {
			return nil, err
		}
		defer e.limiter.Release(req.Exchange)
		e.runLegs(ctx, req, path, quote, result)
	}

	if err := e.persist(ctx, req, result); err != nil {
		log.Error().Err(err).
			Str("exchange", req.Exchange).
			Str("path", req.PathID).
			Msg("persisting execution failed")
	}
	e.bus.PublishArbExecuted(req.UserID, req.Exchange, path.Sequence,
		result.ProfitPercent.String(), req.DryRun)
	return result, nil
}

// simulate fills the result straight from the quote
func (e *Executor) simulate(result *ExecutionResult, quote *Opportunity) {
	for i, q := range quote.Steps {
		result.Legs = append(result.Legs, LegResult{
			Index:         i,
			Pair:          q.Pair,
			Side:          q.Side,
			ExpectedPrice: q.Price,
			ExecutedPrice: q.Price,
			Input:         q.Input,
			Output:        q.Output,
			Fee:           q.Fee,
		})
	}
	result.Status = database.ArbStatusCompleted
	result.FinalAmount = quote.EndAmount
	result.Profit = quote.Profit
	result.ProfitPercent = quote.ProfitPercent
}

// runLegs executes the three legs against the venue
func (e *Executor) runLegs(ctx context.Context, req ExecuteRequest, path Path, quote *Opportunity, result *ExecutionResult) {
	maxSlippage := req.MaxSlippage
	if !maxSlippage.IsPositive() {
		maxSlippage = DefaultMaxSlippagePercent
	}

	amount := req.Amount
	for i, step := range path.Steps {
		leg, err := e.runLeg(ctx, req, i, step, quote.Steps[i].Price, amount, maxSlippage)
		if leg != nil {
			result.Legs = append(result.Legs, *leg)
		}
		if err != nil {
			// Any filled leg makes the attempt partial, including a fill
			// that slipped past the limit.
			if len(result.Legs) > 0 {
				result.Status = database.ArbStatusPartial
			} else {
				result.Status = database.ArbStatusFailed
			}
			result.Error = err.Error()
			log.Error().Err(err).
				Str("exchange", req.Exchange).
				Str("path", req.PathID).
				Int("leg", i).
				Msg("execution stopped mid-path")
			return
		}
		amount = leg.Output
	}

	result.Status = database.ArbStatusCompleted
	result.FinalAmount = amount
	result.Profit = amount.Sub(req.Amount)
	if req.Amount.IsPositive() {
		result.ProfitPercent = result.Profit.Div(req.Amount).Mul(hundred)
	}
}

// runLeg submits one market order and applies the slippage check. A non-nil
// LegResult alongside an error means the order filled but slipped past the
// limit.
func (e *Executor) runLeg(ctx context.Context, req ExecuteRequest, index int, step Step,
	expectedPrice, input, maxSlippage decimal.Decimal) (*LegResult, error) {

	legCtx, cancel := context.WithTimeout(ctx, legTimeout)
	defer cancel()

	var fill *fillSummary
	var err error
	switch step.Side {
	case SideBuy:
		fill, err = e.buy(legCtx, req, step.Pair, input)
	case SideSell:
		fill, err = e.sell(legCtx, req, step.Pair, input)
	default:
		return nil, fmt.Errorf("step %s has unknown side %q", step.Pair, step.Side)
	}
	if err != nil {
		return nil, fmt.Errorf("leg %d %s %s: %w", index, step.Side, step.Pair, err)
	}

	leg := &LegResult{
		Index:         index,
		Pair:          step.Pair,
		Side:          step.Side,
		ExpectedPrice: expectedPrice,
		ExecutedPrice: fill.price,
		Input:         input,
		Output:        fill.output,
		Fee:           fill.fee,
		OrderID:       fill.orderID,
	}
	if expectedPrice.IsPositive() && fill.price.IsPositive() {
		leg.SlippagePercent = fill.price.Sub(expectedPrice).Abs().Div(expectedPrice).Mul(hundred)
	}
	if leg.SlippagePercent.GreaterThan(maxSlippage) {
		return leg, fmt.Errorf("leg %d %s slipped %s%%, limit %s%%",
			index, step.Pair, leg.SlippagePercent.StringFixed(4), maxSlippage)
	}
	return leg, nil
}

type fillSummary struct {
	orderID string
	price   decimal.Decimal
	output  decimal.Decimal
	fee     decimal.Decimal
}

func (e *Executor) balance(ctx context.Context, req ExecuteRequest, currency string) (decimal.Decimal, error) {
	if req.Credentials.HasKeys() {
		return e.orders.BalanceWith(ctx, req.Credentials, req.Exchange, currency)
	}
	return e.orders.Balance(ctx, req.UserID, req.Exchange, currency)
}

func (e *Executor) buy(ctx context.Context, req ExecuteRequest, pair string, quoteAmount decimal.Decimal) (*fillSummary, error) {
	var fill *market.Fill
	var err error
	if req.Credentials.HasKeys() {
		fill, err = e.orders.MarketBuyWith(ctx, req.UserID, req.Credentials, req.Exchange, pair, quoteAmount)
	} else {
		fill, err = e.orders.MarketBuy(ctx, req.UserID, req.Exchange, pair, quoteAmount)
	}
	if err != nil {
		return nil, err
	}
	output := fill.ExecutedQuantity
	// Venues that charge the fee in the purchased asset hand over less base
	// than the fill quantity reports.
	if base, _, ok := splitAgainstKnownQuotes(pair); ok && fill.FeeCurrency == base {
		output = output.Sub(fill.Fee)
	}
	return &fillSummary{orderID: fill.OrderID, price: fill.ExecutedPrice, output: output, fee: fill.Fee}, nil
}

func (e *Executor) sell(ctx context.Context, req ExecuteRequest, pair string, baseQuantity decimal.Decimal) (*fillSummary, error) {
	var fill *market.Fill
	var err error
	if req.Credentials.HasKeys() {
		fill, err = e.orders.MarketSellWith(ctx, req.UserID, req.Credentials, req.Exchange, pair, baseQuantity)
	} else {
		fill, err = e.orders.MarketSell(ctx, req.UserID, req.Exchange, pair, baseQuantity)
	}
	if err != nil {
		return nil, err
	}
	output := fill.ExecutedValue
	if output.IsZero() {
		output = fill.ExecutedQuantity.Mul(fill.ExecutedPrice)
	}
	if _, quoteCur, ok := splitAgainstKnownQuotes(pair); !ok || fill.FeeCurrency == "" || fill.FeeCurrency == quoteCur {
		output = output.Sub(fill.Fee)
	}
	return &fillSummary{orderID: fill.OrderID, price: fill.ExecutedPrice, output: output, fee: fill.Fee}, nil
}

func (e *Executor) persist(ctx context.Context, req ExecuteRequest, result *ExecutionResult) error {
	legs, err := json.Marshal(result.Legs)
	if err != nil {
		return err
	}

	record := &database.ArbExecution{
		UserID:       req.UserID,
		Exchange:     req.Exchange,
		PathSequence: result.Sequence,
		StartAmount:  result.StartAmount,
		DryRun:       req.DryRun,
		Status:       result.Status,
		Legs:         legs,
	}
	if result.Status == database.ArbStatusCompleted {
		record.FinalAmount = &result.FinalAmount
		record.Profit = &result.Profit
		record.ProfitPercent = &result.ProfitPercent
	}
	if result.Error != "" {
		record.Error = &result.Error
	}
	if err := e.repo.CreateArbExecution(ctx, record); err != nil {
		return err
	}
	result.ID = record.ID
	return nil
}

// stepInputCurrency returns the currency a step consumes
func stepInputCurrency(step Step) (string, error) {
	base, quoteCur, ok := splitAgainstKnownQuotes(step.Pair)
	if !ok {
		return "", fmt.Errorf("cannot split pair %s", step.Pair)
	}
	if step.Side == SideBuy {
		return quoteCur, nil
	}
	return base, nil
}
