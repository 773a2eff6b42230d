package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ============================================================================
// STRATEGIES
// ============================================================================

// CreateStrategy inserts a new strategy
func (r *Repository) CreateStrategy(ctx context.Context, s *Strategy) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	assets, indicatorsJSON, exitRules, err := marshalStrategyFields(s)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO momentum_strategies
			(id, user_id, exchange, name, assets, entry_indicators, entry_logic,
			 exit_rules, timeframe, max_trade_amount, max_open_positions, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		s.ID, s.UserID, s.Exchange, s.Name, assets, indicatorsJSON, s.EntryLogic,
		exitRules, s.Timeframe, s.MaxTradeAmount, s.MaxOpenPositions, s.IsActive,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// UpdateStrategy updates the mutable fields of a strategy
func (r *Repository) UpdateStrategy(ctx context.Context, s *Strategy) error {
	assets, indicatorsJSON, exitRules, err := marshalStrategyFields(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE momentum_strategies
		SET name = $2, assets = $3, entry_indicators = $4, entry_logic = $5,
		    exit_rules = $6, timeframe = $7, max_trade_amount = $8,
		    max_open_positions = $9, is_active = $10, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		s.ID, s.Name, assets, indicatorsJSON, s.EntryLogic,
		exitRules, s.Timeframe, s.MaxTradeAmount, s.MaxOpenPositions, s.IsActive,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStrategyActive toggles a strategy's active flag
func (r *Repository) SetStrategyActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE momentum_strategies SET is_active = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		id, active,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStrategy removes a strategy and (via cascade) its positions
func (r *Repository) DeleteStrategy(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM momentum_strategies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const strategyColumns = `
	id, user_id, exchange, name, assets, entry_indicators, entry_logic,
	exit_rules, timeframe, max_trade_amount, max_open_positions, is_active,
	created_at, updated_at
`

// GetStrategyByID retrieves a strategy by ID
func (r *Repository) GetStrategyByID(ctx context.Context, id string) (*Strategy, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+strategyColumns+` FROM momentum_strategies WHERE id = $1`, id)
	s, err := scanStrategy(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ListStrategiesByUser retrieves a user's strategies, optionally filtered by
// exchange
func (r *Repository) ListStrategiesByUser(ctx context.Context, userID, exchange string) ([]*Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM momentum_strategies WHERE user_id = $1`
	args := []interface{}{userID}
	if exchange != "" {
		query += ` AND exchange = $2`
		args = append(args, exchange)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrategies(rows)
}

// ListActiveStrategies retrieves every active strategy in deterministic
// scheduler order
func (r *Repository) ListActiveStrategies(ctx context.Context) ([]*Strategy, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+strategyColumns+` FROM momentum_strategies
		 WHERE is_active = true
		 ORDER BY user_id, exchange, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrategies(rows)
}

// ListActiveStrategiesByUserExchange retrieves a user's active strategies on
// one exchange, used for the asset-disjointness check
func (r *Repository) ListActiveStrategiesByUserExchange(ctx context.Context, userID, exchange string) ([]*Strategy, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+strategyColumns+` FROM momentum_strategies
		 WHERE user_id = $1 AND exchange = $2 AND is_active = true`,
		userID, exchange)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrategies(rows)
}

func marshalStrategyFields(s *Strategy) (assets, indicatorsJSON, exitRules []byte, err error) {
	assets, err = json.Marshal(s.Assets)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling assets: %w", err)
	}
	indicatorsJSON, err = json.Marshal(s.EntryIndicators)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling entry indicators: %w", err)
	}
	exitRules, err = json.Marshal(s.ExitRules)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling exit rules: %w", err)
	}
	return assets, indicatorsJSON, exitRules, nil
}

func scanStrategy(row pgx.Row) (*Strategy, error) {
	s := &Strategy{}
	var assets, indicatorsJSON, exitRules []byte
	err := row.Scan(
		&s.ID, &s.UserID, &s.Exchange, &s.Name, &assets, &indicatorsJSON, &s.EntryLogic,
		&exitRules, &s.Timeframe, &s.MaxTradeAmount, &s.MaxOpenPositions, &s.IsActive,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(assets, &s.Assets); err != nil {
		return nil, fmt.Errorf("unmarshaling assets: %w", err)
	}
	if err := json.Unmarshal(indicatorsJSON, &s.EntryIndicators); err != nil {
		return nil, fmt.Errorf("unmarshaling entry indicators: %w", err)
	}
	if err := json.Unmarshal(exitRules, &s.ExitRules); err != nil {
		return nil, fmt.Errorf("unmarshaling exit rules: %w", err)
	}
	return s, nil
}

func scanStrategies(rows pgx.Rows) ([]*Strategy, error) {
	var out []*Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
