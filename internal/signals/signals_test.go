package signals

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// TestCombineAllCounts exercises every (enabled, triggered) pair up to six
// enabled indicators against the policy definitions.
func TestCombineAllCounts(t *testing.T) {
	expect := func(logic string, enabled, triggered int) bool {
		if enabled == 0 {
			return false
		}
		switch logic {
		case LogicAny1:
			return triggered >= 1
		case LogicTwoOf3:
			if enabled >= 3 {
				return triggered >= 2
			}
			return triggered == enabled
		case Logic3Of4:
			if enabled >= 4 {
				return triggered >= 3
			}
			return triggered == enabled
		case LogicAll:
			return triggered == enabled
		}
		return false
	}

	for _, logic := range []string{LogicAny1, LogicTwoOf3, Logic3Of4, LogicAll} {
		for enabled := 0; enabled <= 6; enabled++ {
			for triggered := 0; triggered <= enabled; triggered++ {
				got := combine(logic, enabled, triggered)
				want := expect(logic, enabled, triggered)
				if got != want {
					t.Errorf("combine(%s, enabled=%d, triggered=%d) = %v, want %v",
						logic, enabled, triggered, got, want)
				}
			}
		}
	}
}

func TestCombineTwoOfThreeBoundary(t *testing.T) {
	if !combine(LogicTwoOf3, 3, 2) {
		t.Error("2_of_3 with 2 of 3 triggered should enter")
	}
	if combine(LogicTwoOf3, 3, 1) {
		t.Error("2_of_3 with 1 of 3 triggered should not enter")
	}
	// Fewer enabled than the policy's denominator degrades to all-must-fire.
	if combine(LogicTwoOf3, 2, 1) {
		t.Error("2_of_3 with 1 of 2 triggered should not enter")
	}
	if !combine(LogicTwoOf3, 2, 2) {
		t.Error("2_of_3 with 2 of 2 triggered should enter")
	}
}

func TestCombineUnknownLogic(t *testing.T) {
	if combine("5_of_9", 3, 3) {
		t.Error("unknown logic must never enter")
	}
}

func TestValidLogic(t *testing.T) {
	for _, logic := range []string{LogicAny1, LogicTwoOf3, Logic3Of4, LogicAll} {
		if !ValidLogic(logic) {
			t.Errorf("ValidLogic(%s) = false", logic)
		}
	}
	if ValidLogic("some_of_none") {
		t.Error("ValidLogic accepted an unknown policy")
	}
}

func autoRules() ExitRules {
	return ExitRules{
		TakeProfitPercent: dec("3"),
		StopLossPercent:   dec("5"),
		MaxHoldHours:      dec("24"),
		TakeProfitMode:    TakeProfitAuto,
	}
}

func TestEvaluateExitTakeProfitWins(t *testing.T) {
	entry := time.Now().Add(-30 * time.Minute)
	d := EvaluateExit(dec("100"), dec("105"), entry, time.Now(), autoRules())
	if !d.ShouldClose || d.Reason != ExitTakeProfit {
		t.Fatalf("want take_profit close, got close=%v reason=%q", d.ShouldClose, d.Reason)
	}
	if !d.PnLPercent.Equal(dec("5")) {
		t.Errorf("pnl percent = %s, want 5", d.PnLPercent)
	}
}

func TestEvaluateExitStopLoss(t *testing.T) {
	entry := time.Now().Add(-30 * time.Minute)
	d := EvaluateExit(dec("100"), dec("94"), entry, time.Now(), autoRules())
	if !d.ShouldClose || d.Reason != ExitStopLoss {
		t.Fatalf("want stop_loss close, got close=%v reason=%q", d.ShouldClose, d.Reason)
	}
}

func TestEvaluateExitMaxHold(t *testing.T) {
	entry := time.Now().Add(-25 * time.Hour)
	d := EvaluateExit(dec("100"), dec("101"), entry, time.Now(), autoRules())
	if !d.ShouldClose || d.Reason != ExitMaxHoldTime {
		t.Fatalf("want max_hold_time close, got close=%v reason=%q", d.ShouldClose, d.Reason)
	}
}

func TestEvaluateExitManualModeIgnoresTakeProfit(t *testing.T) {
	rules := autoRules()
	rules.TakeProfitMode = TakeProfitManual
	entry := time.Now().Add(-30 * time.Minute)
	d := EvaluateExit(dec("100"), dec("105"), entry, time.Now(), rules)
	if d.ShouldClose {
		t.Fatalf("manual take-profit mode must not auto-close, got reason=%q", d.Reason)
	}
}

func TestEvaluateExitHoldsInsideBands(t *testing.T) {
	entry := time.Now().Add(-1 * time.Hour)
	d := EvaluateExit(dec("100"), dec("101"), entry, time.Now(), autoRules())
	if d.ShouldClose {
		t.Fatalf("position inside all bands must stay open, got reason=%q", d.Reason)
	}
}

func TestEvaluateExitZeroEntryPrice(t *testing.T) {
	d := EvaluateExit(decimal.Zero, dec("100"), time.Now(), time.Now(), autoRules())
	if d.ShouldClose {
		t.Error("zero entry price must never close")
	}
}
