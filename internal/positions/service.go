package positions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/events"
	"momentum-arb-bot/internal/exchange"
	"momentum-arb-bot/internal/indicators"
	"momentum-arb-bot/internal/market"
	"momentum-arb-bot/internal/orders"
	"momentum-arb-bot/internal/signals"
)

// QuoteCurrency is the quote side of every momentum pair
const QuoteCurrency = "USDT"

// Close-protocol sentinels. Callers match with errors.Is; wrapped errors
// carry the position id.
var (
	ErrAlreadyClosing = errors.New("position is already closing")
	ErrAlreadyClosed  = errors.New("position is already closed")
)

var hundred = decimal.NewFromInt(100)

// closeEligibility maps a position's status onto the error a close attempt
// should surface. Only OPEN positions are eligible.
func closeEligibility(status string) error {
	switch status {
	case database.PositionOpen:
		return nil
	case database.PositionClosing:
		return ErrAlreadyClosing
	case database.PositionClosed:
		return ErrAlreadyClosed
	default:
		return fmt.Errorf("unexpected position status %q", status)
	}
}

// Service owns the position lifecycle: opening on signal, the three-step
// close protocol, manual closes and crash recovery.
type Service struct {
	repo     *database.Repository
	registry *exchange.Registry
	executor *orders.Executor
	bus      *events.EventBus
}

// NewService creates a position service
func NewService(repo *database.Repository, registry *exchange.Registry, executor *orders.Executor, bus *events.EventBus) *Service {
	return &Service{repo: repo, registry: registry, executor: executor, bus: bus}
}

// Pair builds the traded pair for an asset
func Pair(asset string) string {
	return asset + QuoteCurrency
}

// ComputePnL returns net profit and its percentage of the entry value:
// (exit_qty * exit_price - exit_fee) - (entry_value + entry_fee).
func ComputePnL(exitQty, exitPrice, exitFee, entryValue, entryFee decimal.Decimal) (pnl, pnlPercent decimal.Decimal) {
	proceeds := exitQty.Mul(exitPrice).Sub(exitFee)
	cost := entryValue.Add(entryFee)
	pnl = proceeds.Sub(cost)
	if entryValue.IsPositive() {
		pnlPercent = pnl.Div(entryValue).Mul(hundred)
	}
	return pnl, pnlPercent
}

// Open submits a market buy for the strategy's trade amount and persists
// the resulting position
func (s *Service) Open(ctx context.Context, strat *database.Strategy, asset string, triggered []indicators.Trigger) (*database.Position, error) {
	pair := Pair(asset)
	fill, err := s.executor.MarketBuy(ctx, strat.UserID, strat.Exchange, pair, strat.MaxTradeAmount)
	if err != nil {
		return nil, err
	}

	value := fill.ExecutedValue
	if value.IsZero() {
		value = fill.ExecutedQuantity.Mul(fill.ExecutedPrice)
	}

	pos := &database.Position{
		UserID:        strat.UserID,
		StrategyID:    strat.ID,
		Exchange:      strat.Exchange,
		Asset:         asset,
		Pair:          pair,
		Status:        database.PositionOpen,
		EntryPrice:    fill.ExecutedPrice,
		EntryQuantity: fill.ExecutedQuantity,
		EntryValue:    value,
		EntryFee:      fill.Fee,
		EntryTime:     fill.Timestamp,
		EntrySignals:  triggered,
		EntryOrderID:  fill.OrderID,
	}
	if err := s.repo.CreatePosition(ctx, pos); err != nil {
		return nil, fmt.Errorf("persisting position after fill %s: %w", fill.OrderID, err)
	}

	s.bus.PublishPositionOpened(pos.UserID, pos.Exchange, pos.Pair,
		pos.EntryPrice.String(), pos.EntryQuantity.String())
	return pos, nil
}

// Monitor checks every OPEN position for a user on an exchange against its
// strategy's exit rules and closes those that fire. One position's failure
// never aborts the rest.
func (s *Service) Monitor(ctx context.Context, userID, exchangeName string) {
	open, err := s.repo.ListOpenPositions(ctx, userID, exchangeName)
	if err != nil {
		log.Error().Err(err).
			Str("userId", userID).
			Str("exchange", exchangeName).
			Msg("loading open positions failed")
		return
	}
	if len(open) == 0 {
		return
	}

	adapter, err := s.registry.Get(exchangeName)
	if err != nil {
		log.Error().Err(err).Str("exchange", exchangeName).Msg("no adapter for exchange")
		return
	}

	rulesCache := make(map[string]signals.ExitRules)
	for _, pos := range open {
		rules, ok := rulesCache[pos.StrategyID]
		if !ok {
			strat, err := s.repo.GetStrategyByID(ctx, pos.StrategyID)
			if err != nil {
				log.Warn().Err(err).
					Str("positionId", pos.ID).
					Str("strategyId", pos.StrategyID).
					Msg("loading strategy for exit check failed")
				continue
			}
			rules = strat.ExitRules
			rulesCache[pos.StrategyID] = rules
		}

		price, err := adapter.FetchCurrentPrice(ctx, pos.Pair)
		if err != nil {
			log.Warn().Err(err).
				Str("positionId", pos.ID).
				Str("pair", pos.Pair).
				Msg("price fetch for exit check failed")
			continue
		}

		decision := signals.EvaluateExit(pos.EntryPrice, price, pos.EntryTime, time.Now().UTC(), rules)
		if !decision.ShouldClose {
			continue
		}
		if err := s.Close(ctx, pos, decision.Reason); err != nil {
			// Losing the claim race means another closer is handling it.
			if errors.Is(err, ErrAlreadyClosing) {
				log.Debug().Str("positionId", pos.ID).Msg("position already claimed for close")
				continue
			}
			log.Error().Err(err).
				Str("positionId", pos.ID).
				Str("reason", decision.Reason).
				Msg("position close failed")
		}
	}
}

// Close runs the three-step close protocol. The conditional OPEN -> CLOSING
// transition guarantees at most one closer; the loser gets ErrAlreadyClosing.
func (s *Service) Close(ctx context.Context, pos *database.Position, reason string) error {
	claimed, err := s.repo.MarkClosing(ctx, pos.ID)
	if err != nil {
		return fmt.Errorf("marking position closing: %w", err)
	}
	if !claimed {
		return fmt.Errorf("position %s: %w", pos.ID, ErrAlreadyClosing)
	}

	fill, err := s.executor.MarketSell(ctx, pos.UserID, pos.Exchange, pos.Pair, pos.EntryQuantity)
	if err != nil {
		// A venue rejection means no trade happened and the position can
		// safely return to OPEN. Anything else (timeout, transport) leaves
		// the outcome unknown: stay CLOSING for operator recovery.
		var venueErr *market.VenueError
		if errors.As(err, &venueErr) {
			if reopenErr := s.repo.ReopenPosition(ctx, pos.ID); reopenErr != nil {
				log.Error().Err(reopenErr).Str("positionId", pos.ID).Msg("reopening rejected position failed")
			}
			return fmt.Errorf("sell rejected by venue: %w", err)
		}
		return fmt.Errorf("sell outcome unknown, position %s left in %s: %w", pos.ID, database.PositionClosing, err)
	}

	exitPrice := fill.ExecutedPrice
	exitQty := fill.ExecutedQuantity
	if exitQty.IsZero() {
		exitQty = pos.EntryQuantity
	}
	pnl, pnlPercent := ComputePnL(exitQty, exitPrice, fill.Fee, pos.EntryValue, pos.EntryFee)

	exit := database.PositionExit{
		Price:      exitPrice,
		Quantity:   exitQty,
		Fee:        fill.Fee,
		Time:       fill.Timestamp,
		Reason:     reason,
		OrderID:    fill.OrderID,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	}
	if err := s.repo.FinalizeClose(ctx, pos.ID, exit); err != nil {
		return fmt.Errorf("finalising close: %w", err)
	}

	s.bus.PublishPositionClosed(pos.UserID, pos.Exchange, pos.Pair, reason,
		pnl.String(), pnlPercent.String())
	log.Info().
		Str("positionId", pos.ID).
		Str("pair", pos.Pair).
		Str("reason", reason).
		Str("pnl", pnl.String()).
		Str("pnlPercent", pnlPercent.String()).
		Msg("position closed")
	return nil
}

// ManualClose closes one position at market on user request
func (s *Service) ManualClose(ctx context.Context, positionID string) error {
	pos, err := s.repo.GetPositionByID(ctx, positionID)
	if err != nil {
		return err
	}
	if err := closeEligibility(pos.Status); err != nil {
		return fmt.Errorf("position %s: %w", positionID, err)
	}
	return s.Close(ctx, pos, signals.ExitManualClose)
}

// Recover force-finalises a CLOSING position orphaned by a crash between
// the sell and the finalise step. The caller supplies the actual exit fill.
func (s *Service) Recover(ctx context.Context, positionID string, exitPrice, exitQuantity, exitFee decimal.Decimal) error {
	pos, err := s.repo.GetPositionByID(ctx, positionID)
	if err != nil {
		return err
	}
	if pos.Status != database.PositionClosing {
		return fmt.Errorf("position %s is %s, recovery requires %s", positionID, pos.Status, database.PositionClosing)
	}
	if !exitPrice.IsPositive() || !exitQuantity.IsPositive() {
		return fmt.Errorf("recovery requires positive exit price and quantity")
	}

	pnl, pnlPercent := ComputePnL(exitQuantity, exitPrice, exitFee, pos.EntryValue, pos.EntryFee)
	exit := database.PositionExit{
		Price:      exitPrice,
		Quantity:   exitQuantity,
		Fee:        exitFee,
		Time:       time.Now().UTC(),
		Reason:     signals.ExitManualRecovery,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	}
	if err := s.repo.FinalizeClose(ctx, positionID, exit); err != nil {
		return err
	}

	s.bus.PublishPositionClosed(pos.UserID, pos.Exchange, pos.Pair,
		signals.ExitManualRecovery, pnl.String(), pnlPercent.String())
	return nil
}

// ActiveCount returns the number of cap-holding positions (OPEN or CLOSING)
// a strategy has. A stranded CLOSING position keeps its slot occupied so the
// worker never doubles exposure on an asset whose exit is unresolved.
func (s *Service) ActiveCount(ctx context.Context, strategyID string) (int, error) {
	return s.repo.CountActivePositionsByStrategy(ctx, strategyID)
}
