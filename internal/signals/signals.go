package signals

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/indicators"
	"momentum-arb-bot/internal/market"
)

// Entry logic policies.
const (
	LogicAny1   = "any_1"
	LogicTwoOf3 = "2_of_3"
	Logic3Of4   = "3_of_4"
	LogicAll    = "all"
)

// ValidLogic reports whether s names a known entry-logic policy.
func ValidLogic(s string) bool {
	switch s {
	case LogicAny1, LogicTwoOf3, Logic3Of4, LogicAll:
		return true
	}
	return false
}

// IndicatorConfig is one indicator's slot in a strategy's entry set.
type IndicatorConfig struct {
	Enabled bool              `json:"enabled"`
	Params  indicators.Params `json:"params,omitempty"`
}

// EntryResult is the outcome of evaluating a strategy's entry set against
// one asset's candles.
type EntryResult struct {
	ShouldEnter    bool
	EnabledCount   int
	TriggeredCount int
	Triggered      []indicators.Trigger
}

// EvaluateEntry runs every enabled indicator and combines the triggers per
// the strategy's entry logic. An indicator that fails to compute counts as
// not triggered; the failure is logged and evaluation continues.
func EvaluateEntry(log zerolog.Logger, candles []market.Candle, configs map[string]IndicatorConfig, logic string) EntryResult {
	result := EntryResult{}
	for name, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		result.EnabledCount++

		trigger, err := indicators.Evaluate(name, candles, cfg.Params)
		if err != nil {
			log.Warn().Err(err).Str("indicator", name).Msg("indicator evaluation failed")
			continue
		}
		if trigger.Triggered {
			result.TriggeredCount++
			result.Triggered = append(result.Triggered, trigger)
		}
	}
	result.ShouldEnter = combine(logic, result.EnabledCount, result.TriggeredCount)
	return result
}

func combine(logic string, enabled, triggered int) bool {
	if enabled == 0 {
		return false
	}
	switch logic {
	case LogicAny1:
		return triggered >= 1
	case LogicTwoOf3:
		switch {
		case enabled >= 3:
			return triggered >= 2
		default:
			return triggered == enabled
		}
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

// Exit reasons recorded on closed positions.
const (
	ExitTakeProfit     = "take_profit"
	ExitStopLoss       = "stop_loss"
	ExitMaxHoldTime    = "max_hold_time"
	ExitManualClose    = "manual_close"
	ExitManualRecovery = "manual_recovery"
)

// Take-profit modes.
const (
	TakeProfitAuto   = "auto"
	TakeProfitManual = "manual"
)

// ExitRules is the price- and time-based exit policy of a strategy.
// TODO: indicator-driven exits (trailing RSI, MACD reversal) once the
// position monitor carries candle context.
type ExitRules struct {
	TakeProfitPercent decimal.Decimal `json:"takeProfitPercent"`
	StopLossPercent   decimal.Decimal `json:"stopLossPercent"`
	MaxHoldHours      decimal.Decimal `json:"maxHoldHours"`
	TakeProfitMode    string          `json:"takeProfitMode"`
}

// ExitDecision says whether and why a position should close now.
type ExitDecision struct {
	ShouldClose bool
	Reason      string
	PnLPercent  decimal.Decimal
	HoursOpen   decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// EvaluateExit checks a live position against the exit rules. Conditions
// fire in priority order: take-profit, stop-loss, max-hold.
func EvaluateExit(entryPrice, currentPrice decimal.Decimal, entryTime, now time.Time, rules ExitRules) ExitDecision {
	d := ExitDecision{}
	if !entryPrice.IsPositive() {
		return d
	}

	d.PnLPercent = currentPrice.Sub(entryPrice).Div(entryPrice).Mul(hundred)
	d.HoursOpen = decimal.NewFromFloat(now.Sub(entryTime).Hours())

	switch {
	case rules.TakeProfitMode == TakeProfitAuto &&
		rules.TakeProfitPercent.IsPositive() &&
		d.PnLPercent.GreaterThanOrEqual(rules.TakeProfitPercent):
		d.ShouldClose = true
		d.Reason = ExitTakeProfit
	case rules.StopLossPercent.IsPositive() &&
		d.PnLPercent.LessThanOrEqual(rules.StopLossPercent.Neg()):
		d.ShouldClose = true
		d.Reason = ExitStopLoss
	case rules.MaxHoldHours.IsPositive() &&
		d.HoursOpen.GreaterThanOrEqual(rules.MaxHoldHours):
		d.ShouldClose = true
		d.Reason = ExitMaxHoldTime
	}
	return d
}
