package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ============================================================================
// POSITIONS
// ============================================================================

// CreatePosition inserts a freshly opened position
func (r *Repository) CreatePosition(ctx context.Context, p *Position) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = PositionOpen
	}
	signalsJSON, err := json.Marshal(p.EntrySignals)
	if err != nil {
		return fmt.Errorf("marshaling entry signals: %w", err)
	}

	query := `
		INSERT INTO momentum_positions
			(id, user_id, strategy_id, exchange, asset, pair, status,
			 entry_price, entry_quantity, entry_value, entry_fee, entry_time,
			 entry_signals, entry_order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		p.ID, p.UserID, p.StrategyID, p.Exchange, p.Asset, p.Pair, p.Status,
		p.EntryPrice, p.EntryQuantity, p.EntryValue, p.EntryFee, p.EntryTime,
		signalsJSON, p.EntryOrderID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// MarkClosing claims a position for closing. The conditional transition
// OPEN -> CLOSING is the linearisation point of the close protocol: exactly
// one caller observes claimed=true.
func (r *Repository) MarkClosing(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE momentum_positions
		 SET status = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1 AND status = $3`,
		id, PositionClosing, PositionOpen,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReopenPosition reverts CLOSING back to OPEN after a failed sell, so later
// cycles retry the close
func (r *Repository) ReopenPosition(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE momentum_positions
		 SET status = $2, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1 AND status = $3`,
		id, PositionOpen, PositionClosing,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FinalizeClose transitions CLOSING -> CLOSED and writes the exit fields
func (r *Repository) FinalizeClose(ctx context.Context, id string, exit PositionExit) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE momentum_positions
		 SET status = $2, exit_price = $3, exit_quantity = $4, exit_fee = $5,
		     exit_time = $6, exit_reason = $7, exit_order_id = $8,
		     exit_pnl = $9, exit_pnl_percent = $10, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1 AND status = $11`,
		id, PositionClosed, exit.Price, exit.Quantity, exit.Fee,
		exit.Time, exit.Reason, exit.OrderID,
		exit.PnL, exit.PnLPercent, PositionClosing,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("position %s is not in %s state: %w", id, PositionClosing, ErrNotFound)
	}
	return nil
}

const positionColumns = `
	id, user_id, strategy_id, exchange, asset, pair, status,
	entry_price, entry_quantity, entry_value, entry_fee, entry_time,
	entry_signals, entry_order_id,
	exit_price, exit_quantity, exit_fee, exit_time, exit_reason,
	exit_order_id, exit_pnl, exit_pnl_percent,
	created_at, updated_at
`

// GetPositionByID retrieves a position by ID
func (r *Repository) GetPositionByID(ctx context.Context, id string) (*Position, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM momentum_positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// ListOpenPositions retrieves OPEN positions for a user on an exchange
func (r *Repository) ListOpenPositions(ctx context.Context, userID, exchange string) ([]*Position, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+positionColumns+` FROM momentum_positions
		 WHERE user_id = $1 AND exchange = $2 AND status = $3
		 ORDER BY entry_time`,
		userID, exchange, PositionOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// ListPositionsByStatus retrieves a user's positions in a given state across
// exchanges; used by the recovery surface to find orphaned CLOSING rows
func (r *Repository) ListPositionsByStatus(ctx context.Context, userID, status string) ([]*Position, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+positionColumns+` FROM momentum_positions
		 WHERE user_id = $1 AND status = $2
		 ORDER BY entry_time`,
		userID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// ListPositionHistory retrieves a user's positions newest first, optionally
// filtered by exchange, capped at limit
func (r *Repository) ListPositionHistory(ctx context.Context, userID, exchange string, limit int) ([]*Position, error) {
	query := `SELECT ` + positionColumns + ` FROM momentum_positions WHERE user_id = $1`
	args := []interface{}{userID}
	if exchange != "" {
		query += ` AND exchange = $2`
		args = append(args, exchange)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += fmt.Sprintf(` ORDER BY entry_time DESC LIMIT %d`, limit)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// activePositionStatuses are the states that hold a cap slot. A CLOSING
// position still carries exposure until its exit fill is confirmed, so it
// counts the same as OPEN.
var activePositionStatuses = []string{PositionOpen, PositionClosing}

// CountActivePositionsByStrategy counts the positions a strategy holds in a
// cap-consuming state (OPEN or CLOSING)
func (r *Repository) CountActivePositionsByStrategy(ctx context.Context, strategyID string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM momentum_positions WHERE strategy_id = $1 AND status = ANY($2)`,
		strategyID, activePositionStatuses,
	).Scan(&n)
	return n, err
}

func scanPosition(row pgx.Row) (*Position, error) {
	p := &Position{}
	var signalsJSON []byte
	err := row.Scan(
		&p.ID, &p.UserID, &p.StrategyID, &p.Exchange, &p.Asset, &p.Pair, &p.Status,
		&p.EntryPrice, &p.EntryQuantity, &p.EntryValue, &p.EntryFee, &p.EntryTime,
		&signalsJSON, &p.EntryOrderID,
		&p.ExitPrice, &p.ExitQuantity, &p.ExitFee, &p.ExitTime, &p.ExitReason,
		&p.ExitOrderID, &p.ExitPnL, &p.ExitPnLPercent,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(signalsJSON) > 0 {
		if err := json.Unmarshal(signalsJSON, &p.EntrySignals); err != nil {
			return nil, fmt.Errorf("unmarshaling entry signals: %w", err)
		}
	}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]*Position, error) {
	var out []*Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
