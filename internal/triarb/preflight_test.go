package triarb

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func quoteAt(profitPercent string) *Opportunity {
	return &Opportunity{ProfitPercent: dec(profitPercent)}
}

func code(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	return ve.Code
}

func TestPreflightInsufficientBalance(t *testing.T) {
	_, err := Preflight(dec("50"), quoteAt("0.5"), dec("0.5"), dec("100"), Limits{}, false, false)
	if got := code(t, err); got != CodeInsufficientBalance {
		t.Errorf("code = %s, want %s", got, CodeInsufficientBalance)
	}
}

func TestPreflightBalanceIncludesFeeHeadroom(t *testing.T) {
	// amount 100 needs 100 + 100*0.002*3 = 100.6
	if _, err := Preflight(dec("100.59"), quoteAt("0.5"), dec("0.5"), dec("100"), Limits{}, false, false); err == nil {
		t.Error("balance below amount plus fee headroom must fail")
	}
	if _, err := Preflight(dec("100.6"), quoteAt("0.5"), dec("0.5"), dec("100"), Limits{}, false, false); err != nil {
		t.Errorf("balance exactly covering fee headroom failed: %v", err)
	}
}

func TestPreflightAmountBelowMin(t *testing.T) {
	_, err := Preflight(dec("10000"), quoteAt("0.5"), dec("0.5"), dec("5"), Limits{}, false, false)
	if got := code(t, err); got != CodeAmountBelowMin {
		t.Errorf("code = %s, want %s", got, CodeAmountBelowMin)
	}
}

func TestPreflightConfirmationRequired(t *testing.T) {
	_, err := Preflight(dec("10000"), quoteAt("0.5"), dec("0.5"), dec("100"), Limits{}, true, false)
	if got := code(t, err); got != CodeConfirmationRequired {
		t.Errorf("code = %s, want %s", got, CodeConfirmationRequired)
	}
	if _, err := Preflight(dec("10000"), quoteAt("0.5"), dec("0.5"), dec("100"), Limits{}, true, true); err != nil {
		t.Errorf("confirmed live execution failed: %v", err)
	}
	if _, err := Preflight(dec("10000"), quoteAt("0.5"), dec("0.5"), dec("100"), Limits{}, false, false); err != nil {
		t.Errorf("dry run should never need confirmation: %v", err)
	}
}

func TestPreflightProfitBelowThreshold(t *testing.T) {
	limits := Limits{MinProfitThreshold: dec("0.3")}
	_, err := Preflight(dec("10000"), quoteAt("0.1"), dec("0.5"), dec("100"), limits, false, false)
	if got := code(t, err); got != CodeProfitBelowThreshold {
		t.Errorf("code = %s, want %s", got, CodeProfitBelowThreshold)
	}
}

func TestPreflightProfitDecreaseOnlyWarns(t *testing.T) {
	limits := Limits{MinProfitThreshold: dec("0.3")}
	report, err := Preflight(dec("10000"), quoteAt("0.4"), dec("0.8"), dec("100"), limits, false, false)
	if err != nil {
		t.Fatalf("profit above threshold must pass: %v", err)
	}
	if report.ProfitWarning == "" {
		t.Error("profit decrease since scan should set a warning")
	}
}

func TestPreflightAmountAboveMax(t *testing.T) {
	limits := Limits{MaxTradeAmount: dec("500")}
	_, err := Preflight(dec("10000"), quoteAt("0.5"), dec("0.5"), dec("600"), limits, false, false)
	if got := code(t, err); got != CodeAmountAboveMax {
		t.Errorf("code = %s, want %s", got, CodeAmountAboveMax)
	}
}

func TestPreflightPortfolioLimit(t *testing.T) {
	// 10% of 10000 is 1000; 1500 breaches it
	limits := Limits{PortfolioPercent: dec("10")}
	_, err := Preflight(dec("10000"), quoteAt("0.5"), dec("0.5"), dec("1500"), limits, false, false)
	if got := code(t, err); got != CodeAmountAbovePortfolio {
		t.Errorf("code = %s, want %s", got, CodeAmountAbovePortfolio)
	}
	if _, err := Preflight(dec("10000"), quoteAt("0.5"), dec("0.5"), dec("1000"), limits, false, false); err != nil {
		t.Errorf("amount at the portfolio cap failed: %v", err)
	}
}

// TestPreflightCheckOrder pins the first-failure-wins ordering: a request
// that breaches several checks must report the earliest one.
func TestPreflightCheckOrder(t *testing.T) {
	limits := Limits{MaxTradeAmount: dec("50"), MinProfitThreshold: dec("1")}

	// Insufficient balance trumps everything.
	_, err := Preflight(dec("1"), quoteAt("0"), dec("0"), dec("100"), limits, true, false)
	if got := code(t, err); got != CodeInsufficientBalance {
		t.Errorf("code = %s, want %s", got, CodeInsufficientBalance)
	}

	// With balance fixed, the stale profit is next.
	_, err = Preflight(dec("10000"), quoteAt("0"), dec("0"), dec("100"), limits, true, false)
	if got := code(t, err); got != CodeProfitBelowThreshold {
		t.Errorf("code = %s, want %s", got, CodeProfitBelowThreshold)
	}

	// With profit fixed, the amount cap is next.
	_, err = Preflight(dec("10000"), quoteAt("2"), dec("2"), dec("100"), limits, true, false)
	if got := code(t, err); got != CodeAmountAboveMax {
		t.Errorf("code = %s, want %s", got, CodeAmountAboveMax)
	}

	// With the cap lifted, confirmation is the last gate.
	limits.MaxTradeAmount = decimal.Zero
	_, err = Preflight(dec("10000"), quoteAt("2"), dec("2"), dec("100"), limits, true, false)
	if got := code(t, err); got != CodeConfirmationRequired {
		t.Errorf("code = %s, want %s", got, CodeConfirmationRequired)
	}
}

func TestEstimatedFees(t *testing.T) {
	if got := EstimatedFees(dec("1000")); !got.Equal(dec("6")) {
		t.Errorf("EstimatedFees(1000) = %s, want 6", got)
	}
}
