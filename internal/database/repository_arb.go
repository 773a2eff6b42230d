package database

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// ============================================================================
// TRIANGULAR ARBITRAGE EXECUTIONS
// ============================================================================

// CreateArbExecution persists the outcome of one arbitrage attempt
func (r *Repository) CreateArbExecution(ctx context.Context, e *ArbExecution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `
		INSERT INTO triarb_executions
			(id, user_id, exchange, path_sequence, start_amount, final_amount,
			 profit, profit_percent, dry_run, status, legs, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		e.ID, e.UserID, e.Exchange, e.PathSequence, e.StartAmount, e.FinalAmount,
		e.Profit, e.ProfitPercent, e.DryRun, e.Status, e.Legs, e.Error,
	).Scan(&e.CreatedAt)
}

// ListArbExecutions retrieves a user's arbitrage history newest first,
// optionally filtered by exchange
func (r *Repository) ListArbExecutions(ctx context.Context, userID, exchange string, limit int) ([]*ArbExecution, error) {
	query := `
		SELECT id, user_id, exchange, path_sequence, start_amount, final_amount,
		       profit, profit_percent, dry_run, status, legs, error, created_at
		FROM triarb_executions
		WHERE user_id = $1
	`
	args := []interface{}{userID}
	if exchange != "" {
		query += ` AND exchange = $2`
		args = append(args, exchange)
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ArbExecution
	for rows.Next() {
		e := &ArbExecution{}
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Exchange, &e.PathSequence, &e.StartAmount, &e.FinalAmount,
			&e.Profit, &e.ProfitPercent, &e.DryRun, &e.Status, &e.Legs, &e.Error, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
