package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/positions"
	"momentum-arb-bot/internal/signals"
)

// ============================================================================
// POSITION HANDLERS
// ============================================================================

// handleCreatePosition records a position for a fill that already happened
// on the venue. The worker normally does this itself; the endpoint exists
// for external signal runners.
func (s *Server) handleCreatePosition(c *gin.Context) {
	var pos database.Position
	if err := c.ShouldBindJSON(&pos); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid position payload: "+err.Error())
		return
	}
	if pos.UserID == "" || pos.Exchange == "" || pos.Pair == "" {
		errorResponse(c, http.StatusBadRequest, "userId, exchange and pair are required")
		return
	}
	if !pos.EntryPrice.IsPositive() || !pos.EntryQuantity.IsPositive() {
		errorResponse(c, http.StatusBadRequest, "entryPrice and entryQuantity must be positive")
		return
	}

	pos.Status = database.PositionOpen
	if pos.EntryTime.IsZero() {
		pos.EntryTime = time.Now().UTC()
	}
	if pos.EntryValue.IsZero() {
		pos.EntryValue = pos.EntryQuantity.Mul(pos.EntryPrice)
	}
	if err := s.repo.CreatePosition(c.Request.Context(), &pos); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to create position")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": pos})
}

// handleListPositions returns a user's positions split into open and closed
func (s *Server) handleListPositions(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		errorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}
	exchangeName := c.Query("exchange")
	ctx := c.Request.Context()

	open, err := s.repo.ListOpenPositions(ctx, userID, exchangeName)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list open positions")
		return
	}
	closed, err := s.repo.ListPositionHistory(ctx, userID, exchangeName, 0)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list closed positions")
		return
	}
	successResponse(c, gin.H{"open": open, "closed": closed})
}

// handleManualClose submits a real market sell for an OPEN position
func (s *Server) handleManualClose(c *gin.Context) {
	id := c.Param("id")
	pos, ok := s.loadOwnedPosition(c, id)
	if !ok {
		return
	}

	if err := s.positions.ManualClose(c.Request.Context(), pos.ID); err != nil {
		switch {
		case errors.Is(err, positions.ErrAlreadyClosing):
			errorResponseCode(c, http.StatusConflict, "ALREADY_CLOSING", "position is already closing")
		case errors.Is(err, positions.ErrAlreadyClosed):
			errorResponseCode(c, http.StatusConflict, "ALREADY_CLOSED", "position is already closed")
		default:
			errorResponse(c, http.StatusConflict, err.Error())
		}
		return
	}
	successResponse(c, gin.H{"id": id, "status": database.PositionClosed})
}

// handleMarkClosing claims the position for closing. Exactly one caller
// wins; everyone else gets "already closing".
func (s *Server) handleMarkClosing(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.loadOwnedPosition(c, id); !ok {
		return
	}

	claimed, err := s.repo.MarkClosing(c.Request.Context(), id)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to mark position closing")
		return
	}
	if !claimed {
		errorResponseCode(c, http.StatusConflict, "ALREADY_CLOSING", "position is already closing or closed")
		return
	}
	successResponse(c, gin.H{"id": id, "status": database.PositionClosing})
}

type exitRequest struct {
	UserID       string          `json:"userId"`
	ExitPrice    decimal.Decimal `json:"exitPrice"`
	ExitQuantity decimal.Decimal `json:"exitQuantity"`
	ExitFee      decimal.Decimal `json:"exitFee"`
	ExitReason   string          `json:"exitReason"`
	ExitOrderID  string          `json:"exitOrderId"`
}

// handleFinalizeClose records the exit fill for a CLOSING position
func (s *Server) handleFinalizeClose(c *gin.Context) {
	var req exitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid exit payload: "+err.Error())
		return
	}
	if !req.ExitPrice.IsPositive() || !req.ExitQuantity.IsPositive() {
		errorResponse(c, http.StatusBadRequest, "exitPrice and exitQuantity must be positive")
		return
	}

	id := c.Param("id")
	pos, ok := s.loadOwnedPosition(c, id)
	if !ok {
		return
	}

	reason := req.ExitReason
	if reason == "" {
		reason = signals.ExitManualClose
	}
	pnl, pnlPercent := positions.ComputePnL(req.ExitQuantity, req.ExitPrice, req.ExitFee, pos.EntryValue, pos.EntryFee)
	exit := database.PositionExit{
		Price:      req.ExitPrice,
		Quantity:   req.ExitQuantity,
		Fee:        req.ExitFee,
		Time:       time.Now().UTC(),
		Reason:     reason,
		OrderID:    req.ExitOrderID,
		PnL:        pnl,
		PnLPercent: pnlPercent,
	}
	if err := s.repo.FinalizeClose(c.Request.Context(), id, exit); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponseCode(c, http.StatusConflict, "NOT_CLOSING", "position is not in the closing state")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to finalise close")
		return
	}
	successResponse(c, gin.H{"id": id, "status": database.PositionClosed, "pnl": pnl, "pnlPercent": pnlPercent})
}

// handleForceClose is the operator recovery path for positions stranded in
// CLOSING by a crash between sell and finalise
func (s *Server) handleForceClose(c *gin.Context) {
	var req exitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid exit payload: "+err.Error())
		return
	}

	id := c.Param("id")
	if _, ok := s.loadOwnedPosition(c, id); !ok {
		return
	}

	if err := s.positions.Recover(c.Request.Context(), id, req.ExitPrice, req.ExitQuantity, req.ExitFee); err != nil {
		errorResponse(c, http.StatusConflict, err.Error())
		return
	}
	successResponse(c, gin.H{"id": id, "status": database.PositionClosed})
}

// loadOwnedPosition fetches the position and enforces ownership when the
// caller identifies itself
func (s *Server) loadOwnedPosition(c *gin.Context, id string) (*database.Position, bool) {
	pos, err := s.repo.GetPositionByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "position not found")
			return nil, false
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load position")
		return nil, false
	}

	if userID := c.Query("userId"); userID != "" && pos.UserID != userID {
		errorResponse(c, http.StatusForbidden, "position belongs to another user")
		return nil, false
	}
	return pos, true
}
