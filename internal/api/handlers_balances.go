package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/database"
)

// ============================================================================
// CURRENCY SWAP BALANCE HANDLERS
// ============================================================================

type declarationRequest struct {
	UserID   string   `json:"userId"`
	Exchange string   `json:"exchange"`
	Assets   []string `json:"assets"`
}

func (s *Server) handleUpsertDeclaration(c *gin.Context) {
	var req declarationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid declaration payload: "+err.Error())
		return
	}
	if req.UserID == "" || req.Exchange == "" || len(req.Assets) == 0 {
		errorResponse(c, http.StatusBadRequest, "userId, exchange and assets are required")
		return
	}

	decl := &database.AssetDeclaration{
		UserID:   req.UserID,
		Exchange: req.Exchange,
		Assets:   req.Assets,
	}
	if err := s.repo.UpsertAssetDeclaration(c.Request.Context(), decl); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to save declaration")
		return
	}
	successResponse(c, decl)
}

func (s *Server) handleGetDeclaration(c *gin.Context) {
	userID, exchangeName := c.Query("userId"), c.Query("exchange")
	if userID == "" || exchangeName == "" {
		errorResponse(c, http.StatusBadRequest, "userId and exchange are required")
		return
	}

	decl, err := s.repo.GetAssetDeclaration(c.Request.Context(), userID, exchangeName)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "no declaration for this exchange")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load declaration")
		return
	}
	successResponse(c, decl)
}

func (s *Server) handleListSwapBalances(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		errorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}

	balances, err := s.repo.ListBalances(c.Request.Context(), userID, c.Query("exchange"))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list balances")
		return
	}
	successResponse(c, balances)
}

// handleSyncSwapBalances refreshes tracked balances from the venue using the
// user's stored credentials, one declared asset at a time
func (s *Server) handleSyncSwapBalances(c *gin.Context) {
	var req struct {
		UserID   string `json:"userId"`
		Exchange string `json:"exchange"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Exchange == "" {
		errorResponse(c, http.StatusBadRequest, "userId and exchange are required")
		return
	}
	ctx := c.Request.Context()

	decl, err := s.repo.GetAssetDeclaration(ctx, req.UserID, req.Exchange)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "declare assets before syncing")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load declaration")
		return
	}

	synced := make([]*database.Balance, 0, len(decl.Assets))
	for _, asset := range decl.Assets {
		available, err := s.orders.Balance(ctx, req.UserID, req.Exchange, asset)
		if err != nil {
			log.Warn().Err(err).
				Str("exchange", req.Exchange).
				Str("asset", asset).
				Msg("balance sync skipped asset")
			continue
		}
		now := time.Now().UTC()
		bal := &database.Balance{
			UserID:       req.UserID,
			Exchange:     req.Exchange,
			Asset:        asset,
			Available:    available,
			Locked:       decimal.Zero,
			SyncSource:   database.SyncSourceAPI,
			LastSyncedAt: &now,
		}
		if err := s.repo.UpsertBalance(ctx, bal); err != nil {
			errorResponse(c, http.StatusInternalServerError, "failed to save balance for "+asset)
			return
		}
		synced = append(synced, bal)
	}
	successResponse(c, gin.H{"synced": len(synced), "balances": synced})
}

type fundsRequest struct {
	UserID   string          `json:"userId"`
	Exchange string          `json:"exchange"`
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
}

func (s *Server) handleLockFunds(c *gin.Context) {
	s.moveFunds(c, s.repo.LockFunds, "locked")
}

func (s *Server) handleUnlockFunds(c *gin.Context) {
	s.moveFunds(c, s.repo.UnlockFunds, "unlocked")
}

func (s *Server) moveFunds(c *gin.Context, move func(ctx context.Context, userID, exchange, asset string, amount decimal.Decimal) error, action string) {
	var req fundsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid funds payload: "+err.Error())
		return
	}
	if req.UserID == "" || req.Exchange == "" || req.Asset == "" || !req.Amount.IsPositive() {
		errorResponse(c, http.StatusBadRequest, "userId, exchange, asset and a positive amount are required")
		return
	}

	if err := move(c.Request.Context(), req.UserID, req.Exchange, req.Asset, req.Amount); err != nil {
		if errors.Is(err, database.ErrInsufficientFunds) {
			errorResponseCode(c, http.StatusConflict, "INSUFFICIENT_FUNDS", err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to move funds")
		return
	}

	bal, err := s.repo.GetBalance(c.Request.Context(), req.UserID, req.Exchange, req.Asset)
	if err != nil {
		successResponse(c, gin.H{"asset": req.Asset, action: req.Amount})
		return
	}
	successResponse(c, bal)
}
