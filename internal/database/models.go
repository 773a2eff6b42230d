package database

import (
	"time"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/indicators"
	"momentum-arb-bot/internal/signals"
)

// Position lifecycle states
const (
	PositionOpen    = "OPEN"
	PositionClosing = "CLOSING"
	PositionClosed  = "CLOSED"
)

// Arbitrage execution outcomes
const (
	ArbStatusCompleted = "COMPLETED"
	ArbStatusPartial   = "PARTIAL"
	ArbStatusFailed    = "FAILED"
)

// Balance sync sources
const (
	SyncSourceAPI        = "api"
	SyncSourceManual     = "manual"
	SyncSourceCalculated = "calculated"
)

// Strategy is a user-authored momentum rule set
type Strategy struct {
	ID               string                             `json:"id"`
	UserID           string                             `json:"userId"`
	Exchange         string                             `json:"exchange"`
	Name             string                             `json:"strategyName"`
	Assets           []string                           `json:"assets"`
	EntryIndicators  map[string]signals.IndicatorConfig `json:"entryIndicators"`
	EntryLogic       string                             `json:"entryLogic"`
	ExitRules        signals.ExitRules                  `json:"exitRules"`
	Timeframe        string                             `json:"timeframe"`
	MaxTradeAmount   decimal.Decimal                    `json:"maxTradeAmount"`
	MaxOpenPositions int                                `json:"maxOpenPositions"`
	IsActive         bool                               `json:"isActive"`
	CreatedAt        time.Time                          `json:"createdAt"`
	UpdatedAt        time.Time                          `json:"updatedAt"`
}

// Position is one momentum trade through its lifecycle. Exit fields are nil
// until the position closes.
type Position struct {
	ID            string               `json:"id"`
	UserID        string               `json:"userId"`
	StrategyID    string               `json:"strategyId"`
	Exchange      string               `json:"exchange"`
	Asset         string               `json:"asset"`
	Pair          string               `json:"pair"`
	Status        string               `json:"status"`
	EntryPrice    decimal.Decimal      `json:"entryPrice"`
	EntryQuantity decimal.Decimal      `json:"entryQuantity"`
	EntryValue    decimal.Decimal      `json:"entryValue"`
	EntryFee      decimal.Decimal      `json:"entryFee"`
	EntryTime     time.Time            `json:"entryTime"`
	EntrySignals  []indicators.Trigger `json:"entrySignals,omitempty"`
	EntryOrderID  string               `json:"entryOrderId,omitempty"`

	ExitPrice      *decimal.Decimal `json:"exitPrice,omitempty"`
	ExitQuantity   *decimal.Decimal `json:"exitQuantity,omitempty"`
	ExitFee        *decimal.Decimal `json:"exitFee,omitempty"`
	ExitTime       *time.Time       `json:"exitTime,omitempty"`
	ExitReason     *string          `json:"exitReason,omitempty"`
	ExitOrderID    *string          `json:"exitOrderId,omitempty"`
	ExitPnL        *decimal.Decimal `json:"exitPnl,omitempty"`
	ExitPnLPercent *decimal.Decimal `json:"exitPnlPercent,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PositionExit carries the fields written when a position finalises
type PositionExit struct {
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Fee        decimal.Decimal
	Time       time.Time
	Reason     string
	OrderID    string
	PnL        decimal.Decimal
	PnLPercent decimal.Decimal
}

// Credential is an encrypted API key pair for one user on one exchange.
// Secret material only ever exists here in ciphertext.
type Credential struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Exchange        string     `json:"exchange"`
	APIKeyEnc       []byte     `json:"-"`
	APISecretEnc    []byte     `json:"-"`
	PassphraseEnc   []byte     `json:"-"`
	MemoEnc         []byte     `json:"-"`
	IsConnected     bool       `json:"isConnected"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// AssetDeclaration lists the assets a user has funded on an exchange
type AssetDeclaration struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Exchange  string    `json:"exchange"`
	Assets    []string  `json:"assets"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Balance tracks one asset's funds for a user on an exchange
type Balance struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Exchange       string          `json:"exchange"`
	Asset          string          `json:"asset"`
	Available      decimal.Decimal `json:"available"`
	Locked         decimal.Decimal `json:"locked"`
	Total          decimal.Decimal `json:"total"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	LastSyncedAt   *time.Time      `json:"lastSyncedAt,omitempty"`
	SyncSource     string          `json:"syncSource"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ArbExecution is the persisted record of one triangular arbitrage attempt
type ArbExecution struct {
	ID            string           `json:"id"`
	UserID        string           `json:"userId"`
	Exchange      string           `json:"exchange"`
	PathSequence  string           `json:"pathSequence"`
	StartAmount   decimal.Decimal  `json:"startAmount"`
	FinalAmount   *decimal.Decimal `json:"finalAmount,omitempty"`
	Profit        *decimal.Decimal `json:"profit,omitempty"`
	ProfitPercent *decimal.Decimal `json:"profitPercent,omitempty"`
	DryRun        bool             `json:"dryRun"`
	Status        string           `json:"status"`
	Legs          []byte           `json:"-"`
	Error         *string          `json:"error,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
}
