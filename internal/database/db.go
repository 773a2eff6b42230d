package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration. URL wins over the discrete fields
// when set.
type Config struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := cfg.URL
	if dsn == "" {
		dsn = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().Str("database", poolConfig.ConnConfig.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS momentum_strategies (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			exchange VARCHAR(32) NOT NULL,
			name VARCHAR(100) NOT NULL,
			assets JSONB NOT NULL,
			entry_indicators JSONB NOT NULL,
			entry_logic VARCHAR(16) NOT NULL,
			exit_rules JSONB NOT NULL,
			timeframe VARCHAR(8) NOT NULL DEFAULT '1h',
			max_trade_amount DECIMAL(20, 8) NOT NULL,
			max_open_positions INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_momentum_strategies_user_exchange
			ON momentum_strategies(user_id, exchange)`,
		`CREATE INDEX IF NOT EXISTS idx_momentum_strategies_active
			ON momentum_strategies(is_active)`,

		`CREATE TABLE IF NOT EXISTS momentum_positions (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			strategy_id UUID NOT NULL REFERENCES momentum_strategies(id) ON DELETE CASCADE,
			exchange VARCHAR(32) NOT NULL,
			asset VARCHAR(16) NOT NULL,
			pair VARCHAR(24) NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'OPEN' CHECK (status IN ('OPEN', 'CLOSING', 'CLOSED')),
			entry_price DECIMAL(20, 8) NOT NULL,
			entry_quantity DECIMAL(20, 8) NOT NULL,
			entry_value DECIMAL(20, 8) NOT NULL,
			entry_fee DECIMAL(20, 8) NOT NULL DEFAULT 0,
			entry_time TIMESTAMPTZ NOT NULL,
			entry_signals JSONB,
			entry_order_id VARCHAR(64) NOT NULL DEFAULT '',
			exit_price DECIMAL(20, 8),
			exit_quantity DECIMAL(20, 8),
			exit_fee DECIMAL(20, 8),
			exit_time TIMESTAMPTZ,
			exit_reason VARCHAR(20),
			exit_order_id VARCHAR(64),
			exit_pnl DECIMAL(20, 8),
			exit_pnl_percent DECIMAL(10, 4),
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_momentum_positions_user_exchange
			ON momentum_positions(user_id, exchange)`,
		`CREATE INDEX IF NOT EXISTS idx_momentum_positions_status
			ON momentum_positions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_momentum_positions_entry_time
			ON momentum_positions(entry_time)`,

		`CREATE TABLE IF NOT EXISTS momentum_credentials (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			exchange VARCHAR(32) NOT NULL,
			api_key_enc BYTEA NOT NULL,
			api_secret_enc BYTEA NOT NULL,
			passphrase_enc BYTEA,
			memo_enc BYTEA,
			is_connected BOOLEAN NOT NULL DEFAULT false,
			last_connected_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, exchange)
		)`,

		`CREATE TABLE IF NOT EXISTS currency_swap_asset_declarations (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			exchange VARCHAR(32) NOT NULL,
			assets JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, exchange)
		)`,

		`CREATE TABLE IF NOT EXISTS currency_swap_balances (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			exchange VARCHAR(32) NOT NULL,
			asset VARCHAR(16) NOT NULL,
			available_balance DECIMAL(20, 8) NOT NULL DEFAULT 0,
			locked_balance DECIMAL(20, 8) NOT NULL DEFAULT 0,
			total_balance DECIMAL(20, 8) GENERATED ALWAYS AS (available_balance + locked_balance) STORED,
			initial_balance DECIMAL(20, 8) NOT NULL DEFAULT 0,
			last_synced_at TIMESTAMPTZ,
			sync_source VARCHAR(16) NOT NULL DEFAULT 'manual',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, exchange, asset)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_currency_swap_balances_user_exchange
			ON currency_swap_balances(user_id, exchange)`,

		`CREATE TABLE IF NOT EXISTS triarb_executions (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			exchange VARCHAR(32) NOT NULL,
			path_sequence VARCHAR(64) NOT NULL,
			start_amount DECIMAL(20, 8) NOT NULL,
			final_amount DECIMAL(20, 8),
			profit DECIMAL(20, 8),
			profit_percent DECIMAL(10, 4),
			dry_run BOOLEAN NOT NULL DEFAULT true,
			status VARCHAR(20) NOT NULL,
			legs JSONB,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triarb_executions_user_exchange
			ON triarb_executions(user_id, exchange)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Info().Int("count", len(migrations)).Msg("database migrations complete")
	return nil
}
