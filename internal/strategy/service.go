package strategy

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/exchange"
	"momentum-arb-bot/internal/indicators"
	"momentum-arb-bot/internal/signals"
)

// ErrValidation marks a rejected strategy payload; handlers map it to a 400
var ErrValidation = errors.New("invalid strategy")

var assetPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

var validTimeframes = func() map[string]bool {
	m := make(map[string]bool, len(exchange.CanonicalIntervals))
	for _, iv := range exchange.CanonicalIntervals {
		m[iv] = true
	}
	return m
}()

var knownIndicators = func() map[string]bool {
	m := make(map[string]bool)
	for _, n := range indicators.Names() {
		m[n] = true
	}
	return m
}()

// Service validates and persists momentum strategies
type Service struct {
	repo *database.Repository
}

// NewService creates a strategy service
func NewService(repo *database.Repository) *Service {
	return &Service{repo: repo}
}

// Create validates and stores a new strategy
func (s *Service) Create(ctx context.Context, strat *database.Strategy) error {
	if err := s.validate(ctx, strat); err != nil {
		return err
	}
	return s.repo.CreateStrategy(ctx, strat)
}

// Update validates and stores changes to an existing strategy
func (s *Service) Update(ctx context.Context, strat *database.Strategy) error {
	if err := s.validate(ctx, strat); err != nil {
		return err
	}
	return s.repo.UpdateStrategy(ctx, strat)
}

// Activate turns a strategy on after re-checking the asset disjointness
// invariant against the currently active set
func (s *Service) Activate(ctx context.Context, id string) error {
	strat, err := s.repo.GetStrategyByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkAssetDisjointness(ctx, strat); err != nil {
		return err
	}
	return s.repo.SetStrategyActive(ctx, id, true)
}

// Deactivate turns a strategy off
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.repo.SetStrategyActive(ctx, id, false)
}

// Get retrieves one strategy
func (s *Service) Get(ctx context.Context, id string) (*database.Strategy, error) {
	return s.repo.GetStrategyByID(ctx, id)
}

// List retrieves a user's strategies, optionally filtered by exchange
func (s *Service) List(ctx context.Context, userID, exchangeName string) ([]*database.Strategy, error) {
	return s.repo.ListStrategiesByUser(ctx, userID, exchangeName)
}

// Delete removes a strategy
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteStrategy(ctx, id)
}

func (s *Service) validate(ctx context.Context, strat *database.Strategy) error {
	if strat.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if strat.Name == "" {
		return fmt.Errorf("%w: strategyName is required", ErrValidation)
	}
	if !exchange.Known(strat.Exchange) {
		return fmt.Errorf("%w: unsupported exchange %q", ErrValidation, strat.Exchange)
	}

	if len(strat.Assets) == 0 {
		return fmt.Errorf("%w: at least one asset is required", ErrValidation)
	}
	for _, asset := range strat.Assets {
		if !assetPattern.MatchString(asset) {
			return fmt.Errorf("%w: invalid asset code %q", ErrValidation, asset)
		}
	}

	if strat.MaxOpenPositions != 1 {
		return fmt.Errorf("%w: Max open positions must be 1", ErrValidation)
	}
	if !strat.MaxTradeAmount.IsPositive() {
		return fmt.Errorf("%w: maxTradeAmount must be positive", ErrValidation)
	}

	if !signals.ValidLogic(strat.EntryLogic) {
		return fmt.Errorf("%w: unknown entry logic %q", ErrValidation, strat.EntryLogic)
	}
	enabled := 0
	for name, cfg := range strat.EntryIndicators {
		if !knownIndicators[name] {
			return fmt.Errorf("%w: unknown indicator %q", ErrValidation, name)
		}
		if cfg.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("%w: at least one entry indicator must be enabled", ErrValidation)
	}

	if strat.Timeframe == "" {
		strat.Timeframe = "1h"
	}
	if !validTimeframes[strat.Timeframe] {
		return fmt.Errorf("%w: unknown timeframe %q", ErrValidation, strat.Timeframe)
	}

	mode := strat.ExitRules.TakeProfitMode
	if mode == "" {
		strat.ExitRules.TakeProfitMode = signals.TakeProfitAuto
	} else if mode != signals.TakeProfitAuto && mode != signals.TakeProfitManual {
		return fmt.Errorf("%w: unknown take profit mode %q", ErrValidation, mode)
	}
	if strat.ExitRules.TakeProfitPercent.IsNegative() ||
		strat.ExitRules.StopLossPercent.IsNegative() ||
		strat.ExitRules.MaxHoldHours.IsNegative() {
		return fmt.Errorf("%w: exit thresholds must not be negative", ErrValidation)
	}

	if strat.IsActive {
		return s.checkAssetDisjointness(ctx, strat)
	}
	return nil
}

// checkAssetDisjointness enforces one active strategy per asset per
// exchange for each user
func (s *Service) checkAssetDisjointness(ctx context.Context, strat *database.Strategy) error {
	active, err := s.repo.ListActiveStrategiesByUserExchange(ctx, strat.UserID, strat.Exchange)
	if err != nil {
		return err
	}

	mine := make(map[string]bool, len(strat.Assets))
	for _, a := range strat.Assets {
		mine[a] = true
	}
	for _, other := range active {
		if other.ID == strat.ID {
			continue
		}
		for _, a := range other.Assets {
			if mine[a] {
				return fmt.Errorf("%w: asset %s is already covered by active strategy %q", ErrValidation, a, other.Name)
			}
		}
	}
	return nil
}
