package triarb

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Validation failure codes, checked in order
const (
	CodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	CodeProfitBelowThreshold = "PROFIT_BELOW_THRESHOLD"
	CodeAmountAboveMax       = "AMOUNT_ABOVE_MAX"
	CodeAmountAbovePortfolio = "AMOUNT_ABOVE_PORTFOLIO_LIMIT"
	CodeAmountBelowMin       = "AMOUNT_BELOW_MIN"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
)

// feeEstimateRate is the flat per-leg rate used for the balance headroom
// estimate, deliberately above most venues' real taker fee
var feeEstimateRate = decimal.NewFromFloat(0.002)

var (
	legCount  = decimal.NewFromInt(3)
	minAmount = decimal.NewFromInt(10)
)

// ValidationError is a pre-flight rejection with a machine-readable code
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Limits bound what a single execution may spend
type Limits struct {
	MaxTradeAmount     decimal.Decimal // hard cap per execution, zero disables
	PortfolioPercent   decimal.Decimal // max share of quote balance, zero disables
	MinProfitThreshold decimal.Decimal // percent required at re-priced books
}

// EstimatedFees is the balance headroom reserved for the three legs
func EstimatedFees(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(feeEstimateRate).Mul(legCount)
}

// PreflightReport is the outcome of the pre-execution checks
type PreflightReport struct {
	Balance       decimal.Decimal `json:"balance"`
	EstimatedFees decimal.Decimal `json:"estimatedFees"`
	Quote         *Opportunity    `json:"quote"`
	ProfitWarning string          `json:"profitWarning,omitempty"`
}

// Preflight validates an execution request against a fresh balance and a
// fresh quote. Checks run in a fixed order and the first failure wins.
// scanProfitPercent is the profit the caller saw when it decided to execute;
// a fresh quote below it only warns, a fresh quote below the threshold
// rejects.
func Preflight(balance decimal.Decimal, quote *Opportunity, scanProfitPercent decimal.Decimal,
	amount decimal.Decimal, limits Limits, live, confirmed bool) (*PreflightReport, error) {

	report := &PreflightReport{
		Balance:       balance,
		EstimatedFees: EstimatedFees(amount),
		Quote:         quote,
	}

	required := amount.Add(report.EstimatedFees)
	if balance.LessThan(required) {
		return report, &ValidationError{
			Code: CodeInsufficientBalance,
			Message: fmt.Sprintf("available %s is below required %s (amount %s plus estimated fees %s)",
				balance, required, amount, report.EstimatedFees),
		}
	}

	if quote.ProfitPercent.LessThan(limits.MinProfitThreshold) {
		return report, &ValidationError{
			Code: CodeProfitBelowThreshold,
			Message: fmt.Sprintf("re-priced profit %s%% is below threshold %s%%",
				quote.ProfitPercent.StringFixed(4), limits.MinProfitThreshold),
		}
	}
	if quote.ProfitPercent.LessThan(scanProfitPercent) {
		report.ProfitWarning = fmt.Sprintf("profit decreased from %s%% to %s%% since scan",
			scanProfitPercent.StringFixed(4), quote.ProfitPercent.StringFixed(4))
	}

	if limits.MaxTradeAmount.IsPositive() && amount.GreaterThan(limits.MaxTradeAmount) {
		return report, &ValidationError{
			Code:    CodeAmountAboveMax,
			Message: fmt.Sprintf("amount %s exceeds maximum trade amount %s", amount, limits.MaxTradeAmount),
		}
	}
	if limits.PortfolioPercent.IsPositive() {
		portfolioCap := balance.Mul(limits.PortfolioPercent).Div(hundred)
		if amount.GreaterThan(portfolioCap) {
			return report, &ValidationError{
				Code: CodeAmountAbovePortfolio,
				Message: fmt.Sprintf("amount %s exceeds %s%% of balance (%s)",
					amount, limits.PortfolioPercent, portfolioCap),
			}
		}
	}
	if amount.LessThan(minAmount) {
		return report, &ValidationError{
			Code:    CodeAmountBelowMin,
			Message: fmt.Sprintf("amount %s is below the minimum of %s", amount, minAmount),
		}
	}

	if live && !confirmed {
		return report, &ValidationError{
			Code:    CodeConfirmationRequired,
			Message: "live execution requires explicit confirmation",
		}
	}
	return report, nil
}
