package database

import (
	"context"

	"github.com/google/uuid"
)

// ============================================================================
// CREDENTIALS
// ============================================================================

// UpsertCredential stores or replaces a user's encrypted API credentials for
// an exchange
func (r *Repository) UpsertCredential(ctx context.Context, c *Credential) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO momentum_credentials
			(id, user_id, exchange, api_key_enc, api_secret_enc, passphrase_enc, memo_enc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, exchange) DO UPDATE
		SET api_key_enc = EXCLUDED.api_key_enc,
		    api_secret_enc = EXCLUDED.api_secret_enc,
		    passphrase_enc = EXCLUDED.passphrase_enc,
		    memo_enc = EXCLUDED.memo_enc,
		    is_connected = false,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		c.ID, c.UserID, c.Exchange, c.APIKeyEnc, c.APISecretEnc, c.PassphraseEnc, c.MemoEnc,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// GetCredential retrieves encrypted credentials for a user on an exchange
func (r *Repository) GetCredential(ctx context.Context, userID, exchange string) (*Credential, error) {
	c := &Credential{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, user_id, exchange, api_key_enc, api_secret_enc,
		        passphrase_enc, memo_enc, is_connected, last_connected_at,
		        created_at, updated_at
		 FROM momentum_credentials
		 WHERE user_id = $1 AND exchange = $2`,
		userID, exchange,
	).Scan(
		&c.ID, &c.UserID, &c.Exchange, &c.APIKeyEnc, &c.APISecretEnc,
		&c.PassphraseEnc, &c.MemoEnc, &c.IsConnected, &c.LastConnectedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListCredentialSummaries retrieves presence-only credential rows for a
// user: which exchanges are configured and connected, never key material
func (r *Repository) ListCredentialSummaries(ctx context.Context, userID string) ([]*Credential, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, user_id, exchange, is_connected, last_connected_at, created_at, updated_at
		 FROM momentum_credentials
		 WHERE user_id = $1
		 ORDER BY exchange`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		c := &Credential{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Exchange, &c.IsConnected,
			&c.LastConnectedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetCredentialConnected records the outcome of a connection test
func (r *Repository) SetCredentialConnected(ctx context.Context, userID, exchange string, connected bool) error {
	query := `
		UPDATE momentum_credentials
		SET is_connected = $3,
		    last_connected_at = CASE WHEN $3 THEN CURRENT_TIMESTAMP ELSE last_connected_at END,
		    updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND exchange = $2
	`
	tag, err := r.db.Pool.Exec(ctx, query, userID, exchange, connected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCredential removes a user's credentials for an exchange
func (r *Repository) DeleteCredential(ctx context.Context, userID, exchange string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM momentum_credentials WHERE user_id = $1 AND exchange = $2`,
		userID, exchange)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
