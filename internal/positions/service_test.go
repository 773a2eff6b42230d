package positions

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/database"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputePnLNetOfFees(t *testing.T) {
	// entry: 10 @ 100 with 1 fee; exit: 10 @ 102 with 1.02 fee
	pnl, pnlPercent := ComputePnL(dec("10"), dec("102"), dec("1.02"), dec("1000"), dec("1"))

	if !pnl.Equal(dec("17.98")) {
		t.Errorf("pnl = %s, want 17.98", pnl)
	}
	if !pnlPercent.Equal(dec("1.798")) {
		t.Errorf("pnl percent = %s, want 1.798", pnlPercent)
	}
}

func TestComputePnLLoss(t *testing.T) {
	pnl, _ := ComputePnL(dec("10"), dec("95"), dec("0.95"), dec("1000"), dec("1"))
	if !pnl.IsNegative() {
		t.Errorf("pnl = %s, want negative", pnl)
	}
}

func TestComputePnLZeroEntryValue(t *testing.T) {
	pnl, pnlPercent := ComputePnL(dec("10"), dec("102"), decimal.Zero, decimal.Zero, decimal.Zero)
	if !pnl.Equal(dec("1020")) {
		t.Errorf("pnl = %s, want 1020", pnl)
	}
	if !pnlPercent.IsZero() {
		t.Errorf("pnl percent with zero entry value = %s, want 0", pnlPercent)
	}
}

func TestPair(t *testing.T) {
	if got := Pair("BTC"); got != "BTCUSDT" {
		t.Errorf("Pair(BTC) = %s, want BTCUSDT", got)
	}
}

func TestCloseEligibility(t *testing.T) {
	cases := []struct {
		status string
		want   error
	}{
		{database.PositionOpen, nil},
		{database.PositionClosing, ErrAlreadyClosing},
		{database.PositionClosed, ErrAlreadyClosed},
	}
	for _, tc := range cases {
		err := closeEligibility(tc.status)
		if tc.want == nil {
			if err != nil {
				t.Errorf("closeEligibility(%s) = %v, want nil", tc.status, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Errorf("closeEligibility(%s) = %v, want %v", tc.status, err, tc.want)
		}
	}

	if err := closeEligibility("LIMBO"); err == nil {
		t.Error("closeEligibility(LIMBO) = nil, want error")
	}
}

// Wrapped sentinels must still match so the API layer can map a lost close
// race to its conflict response.
func TestCloseSentinelsSurviveWrapping(t *testing.T) {
	wrapped := fmt.Errorf("position abc: %w", ErrAlreadyClosing)
	if !errors.Is(wrapped, ErrAlreadyClosing) {
		t.Error("wrapped ErrAlreadyClosing not matched by errors.Is")
	}
	if errors.Is(wrapped, ErrAlreadyClosed) {
		t.Error("ErrAlreadyClosing matched ErrAlreadyClosed")
	}
}
