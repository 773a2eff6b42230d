package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// ASSET DECLARATIONS + BALANCES
// ============================================================================

// UpsertAssetDeclaration stores or replaces a user's funded-asset list for
// an exchange
func (r *Repository) UpsertAssetDeclaration(ctx context.Context, d *AssetDeclaration) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	assets, err := json.Marshal(d.Assets)
	if err != nil {
		return fmt.Errorf("marshaling assets: %w", err)
	}

	query := `
		INSERT INTO currency_swap_asset_declarations (id, user_id, exchange, assets)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, exchange) DO UPDATE
		SET assets = EXCLUDED.assets, updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(ctx, query, d.ID, d.UserID, d.Exchange, assets).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

// GetAssetDeclaration retrieves a user's declared assets on an exchange
func (r *Repository) GetAssetDeclaration(ctx context.Context, userID, exchange string) (*AssetDeclaration, error) {
	d := &AssetDeclaration{}
	var assets []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, user_id, exchange, assets, created_at, updated_at
		 FROM currency_swap_asset_declarations
		 WHERE user_id = $1 AND exchange = $2`,
		userID, exchange,
	).Scan(&d.ID, &d.UserID, &d.Exchange, &assets, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(assets, &d.Assets); err != nil {
		return nil, fmt.Errorf("unmarshaling assets: %w", err)
	}
	return d, nil
}

// UpsertBalance writes a synced balance row. InitialBalance is only set on
// first insert so profit accounting keeps its baseline.
func (r *Repository) UpsertBalance(ctx context.Context, b *Balance) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.SyncSource == "" {
		b.SyncSource = SyncSourceManual
	}
	now := time.Now().UTC()
	b.LastSyncedAt = &now

	query := `
		INSERT INTO currency_swap_balances
			(id, user_id, exchange, asset, available_balance, locked_balance,
			 initial_balance, last_synced_at, sync_source)
		VALUES ($1, $2, $3, $4, $5, $6, $5, $7, $8)
		ON CONFLICT (user_id, exchange, asset) DO UPDATE
		SET available_balance = EXCLUDED.available_balance,
		    locked_balance = EXCLUDED.locked_balance,
		    last_synced_at = EXCLUDED.last_synced_at,
		    sync_source = EXCLUDED.sync_source,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING id, total_balance, initial_balance, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		b.ID, b.UserID, b.Exchange, b.Asset, b.Available, b.Locked,
		b.LastSyncedAt, b.SyncSource,
	).Scan(&b.ID, &b.Total, &b.InitialBalance, &b.CreatedAt, &b.UpdatedAt)
}

const balanceColumns = `
	id, user_id, exchange, asset, available_balance, locked_balance,
	total_balance, initial_balance, last_synced_at, sync_source,
	created_at, updated_at
`

// GetBalance retrieves one asset balance
func (r *Repository) GetBalance(ctx context.Context, userID, exchange, asset string) (*Balance, error) {
	b := &Balance{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM currency_swap_balances
		 WHERE user_id = $1 AND exchange = $2 AND asset = $3`,
		userID, exchange, asset,
	).Scan(
		&b.ID, &b.UserID, &b.Exchange, &b.Asset, &b.Available, &b.Locked,
		&b.Total, &b.InitialBalance, &b.LastSyncedAt, &b.SyncSource,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// ListBalances retrieves a user's tracked balances, optionally filtered by
// exchange
func (r *Repository) ListBalances(ctx context.Context, userID, exchange string) ([]*Balance, error) {
	query := `SELECT ` + balanceColumns + ` FROM currency_swap_balances WHERE user_id = $1`
	args := []interface{}{userID}
	if exchange != "" {
		query += ` AND exchange = $2`
		args = append(args, exchange)
	}
	query += ` ORDER BY exchange, asset`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Balance
	for rows.Next() {
		b := &Balance{}
		if err := rows.Scan(
			&b.ID, &b.UserID, &b.Exchange, &b.Asset, &b.Available, &b.Locked,
			&b.Total, &b.InitialBalance, &b.LastSyncedAt, &b.SyncSource,
			&b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LockFunds atomically moves amount from available to locked. The balance
// condition lives in the WHERE clause so concurrent locks cannot overdraw.
func (r *Repository) LockFunds(ctx context.Context, userID, exchange, asset string, amount decimal.Decimal) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE currency_swap_balances
		 SET available_balance = available_balance - $4,
		     locked_balance = locked_balance + $4,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = $1 AND exchange = $2 AND asset = $3
		   AND available_balance >= $4`,
		userID, exchange, asset, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("locking %s %s on %s: %w", amount, asset, exchange, ErrInsufficientFunds)
	}
	return nil
}

// UnlockFunds atomically moves amount from locked back to available
func (r *Repository) UnlockFunds(ctx context.Context, userID, exchange, asset string, amount decimal.Decimal) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE currency_swap_balances
		 SET available_balance = available_balance + $4,
		     locked_balance = locked_balance - $4,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = $1 AND exchange = $2 AND asset = $3
		   AND locked_balance >= $4`,
		userID, exchange, asset, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("unlocking %s %s on %s: %w", amount, asset, exchange, ErrInsufficientFunds)
	}
	return nil
}
