package strategy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/signals"
)

// validStrategy builds an inactive payload that passes validation; tests
// break one field at a time. Inactive payloads never reach the repository.
func validStrategy() *database.Strategy {
	return &database.Strategy{
		UserID:   "user-1",
		Exchange: "binance",
		Name:     "BTC momentum",
		Assets:   []string{"BTC"},
		EntryIndicators: map[string]signals.IndicatorConfig{
			"rsi": {Enabled: true},
		},
		EntryLogic:       signals.LogicAny1,
		Timeframe:        "1h",
		MaxTradeAmount:   decimal.NewFromInt(100),
		MaxOpenPositions: 1,
		ExitRules: signals.ExitRules{
			TakeProfitPercent: decimal.NewFromInt(3),
			StopLossPercent:   decimal.NewFromInt(5),
			MaxHoldHours:      decimal.NewFromInt(24),
			TakeProfitMode:    signals.TakeProfitAuto,
		},
	}
}

func expectValidationError(t *testing.T, strat *database.Strategy, fragment string) {
	t.Helper()
	s := NewService(nil)
	err := s.validate(context.Background(), strat)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), fragment) {
		t.Errorf("error %q does not mention %q", err, fragment)
	}
}

func TestValidateAcceptsGoodPayload(t *testing.T) {
	s := NewService(nil)
	if err := s.validate(context.Background(), validStrategy()); err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	strat := validStrategy()
	strat.UserID = ""
	expectValidationError(t, strat, "userId")

	strat = validStrategy()
	strat.Name = ""
	expectValidationError(t, strat, "strategyName")
}

func TestValidateUnknownExchange(t *testing.T) {
	strat := validStrategy()
	strat.Exchange = "mtgox"
	expectValidationError(t, strat, "unsupported exchange")
}

func TestValidateAssets(t *testing.T) {
	strat := validStrategy()
	strat.Assets = nil
	expectValidationError(t, strat, "at least one asset")

	strat = validStrategy()
	strat.Assets = []string{"btc"}
	expectValidationError(t, strat, "invalid asset code")

	strat = validStrategy()
	strat.Assets = []string{"B"}
	expectValidationError(t, strat, "invalid asset code")

	strat = validStrategy()
	strat.Assets = []string{"BTC-USD"}
	expectValidationError(t, strat, "invalid asset code")
}

func TestValidateMaxOpenPositions(t *testing.T) {
	strat := validStrategy()
	strat.MaxOpenPositions = 2
	expectValidationError(t, strat, "Max open positions must be 1")

	strat = validStrategy()
	strat.MaxOpenPositions = 0
	expectValidationError(t, strat, "Max open positions must be 1")
}

func TestValidateMaxTradeAmount(t *testing.T) {
	strat := validStrategy()
	strat.MaxTradeAmount = decimal.Zero
	expectValidationError(t, strat, "maxTradeAmount")
}

func TestValidateEntryLogic(t *testing.T) {
	strat := validStrategy()
	strat.EntryLogic = "5_of_9"
	expectValidationError(t, strat, "unknown entry logic")
}

func TestValidateIndicators(t *testing.T) {
	strat := validStrategy()
	strat.EntryIndicators = map[string]signals.IndicatorConfig{
		"ichimoku": {Enabled: true},
	}
	expectValidationError(t, strat, "unknown indicator")

	strat = validStrategy()
	strat.EntryIndicators = map[string]signals.IndicatorConfig{
		"rsi": {Enabled: false},
	}
	expectValidationError(t, strat, "at least one entry indicator")
}

func TestValidateTimeframe(t *testing.T) {
	strat := validStrategy()
	strat.Timeframe = "7h"
	expectValidationError(t, strat, "unknown timeframe")

	strat = validStrategy()
	strat.Timeframe = ""
	s := NewService(nil)
	if err := s.validate(context.Background(), strat); err != nil {
		t.Fatalf("empty timeframe should default: %v", err)
	}
	if strat.Timeframe != "1h" {
		t.Errorf("timeframe defaulted to %q, want 1h", strat.Timeframe)
	}
}

func TestValidateExitRules(t *testing.T) {
	strat := validStrategy()
	strat.ExitRules.TakeProfitMode = "sometimes"
	expectValidationError(t, strat, "take profit mode")

	strat = validStrategy()
	strat.ExitRules.TakeProfitMode = ""
	s := NewService(nil)
	if err := s.validate(context.Background(), strat); err != nil {
		t.Fatalf("empty mode should default: %v", err)
	}
	if strat.ExitRules.TakeProfitMode != signals.TakeProfitAuto {
		t.Errorf("mode defaulted to %q, want auto", strat.ExitRules.TakeProfitMode)
	}

	strat = validStrategy()
	strat.ExitRules.StopLossPercent = decimal.NewFromInt(-5)
	expectValidationError(t, strat, "must not be negative")
}
