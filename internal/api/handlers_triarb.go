package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
	"momentum-arb-bot/internal/triarb"
)

// ============================================================================
// TRIANGULAR ARBITRAGE HANDLERS
// ============================================================================

type arbScanRequest struct {
	Exchange        string             `json:"exchange"`
	Paths           string             `json:"paths"` // path set name, empty for the venue default
	Amount          decimal.Decimal    `json:"amount"`
	ProfitThreshold decimal.Decimal    `json:"profitThreshold"`
	Credentials     market.Credentials `json:"credentials"`
}

func (s *Server) handleArbScan(c *gin.Context) {
	var req arbScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid scan payload: "+err.Error())
		return
	}
	if req.Exchange == "" {
		errorResponse(c, http.StatusBadRequest, "exchange is required")
		return
	}
	if !req.Amount.IsPositive() {
		req.Amount = decimal.NewFromInt(1000)
	}

	result, err := s.arbScanner.Scan(c.Request.Context(), triarb.ScanRequest{
		Exchange:        req.Exchange,
		PathSet:         req.Paths,
		StartAmount:     req.Amount,
		ProfitThreshold: req.ProfitThreshold,
	})
	if err != nil {
		s.venueError(c, err)
		return
	}
	successResponse(c, gin.H{
		"opportunities": result.Opportunities,
		"debug": gin.H{
			"scannedPaths": result.ScannedPaths,
			"feeRate":      result.FeeRate,
			"startAmount":  result.StartAmount,
			"scannedAt":    result.ScannedAt,
		},
	})
}

type arbExecuteRequest struct {
	UserID             string             `json:"userId"`
	Exchange           string             `json:"exchange"`
	PathID             string             `json:"pathId"`
	Amount             decimal.Decimal    `json:"amount"`
	ScanProfitPercent  decimal.Decimal    `json:"scanProfitPercent"`
	MinProfitThreshold decimal.Decimal    `json:"minProfitThreshold"`
	MaxTradeAmount     decimal.Decimal    `json:"maxTradeAmount"`
	PortfolioPercent   decimal.Decimal    `json:"portfolioPercent"`
	MaxSlippage        decimal.Decimal    `json:"maxSlippage"`
	DryRun             bool               `json:"dryRun"`
	Confirmed          bool               `json:"confirmed"`
	Credentials        market.Credentials `json:"credentials"`
}

func (s *Server) handleArbExecute(c *gin.Context) {
	var req arbExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid execute payload: "+err.Error())
		return
	}
	if req.Exchange == "" || req.PathID == "" {
		errorResponse(c, http.StatusBadRequest, "exchange and pathId are required")
		return
	}
	if !req.Amount.IsPositive() {
		errorResponse(c, http.StatusBadRequest, "amount must be positive")
		return
	}

	result, err := s.arbExecutor.Execute(c.Request.Context(), triarb.ExecuteRequest{
		UserID:            req.UserID,
		Exchange:          req.Exchange,
		PathID:            req.PathID,
		Amount:            req.Amount,
		ScanProfitPercent: req.ScanProfitPercent,
		Limits: triarb.Limits{
			MaxTradeAmount:     req.MaxTradeAmount,
			PortfolioPercent:   req.PortfolioPercent,
			MinProfitThreshold: req.MinProfitThreshold,
		},
		MaxSlippage: req.MaxSlippage,
		DryRun:      req.DryRun,
		Confirmed:   req.Confirmed,
		Credentials: req.Credentials,
	})
	if err != nil {
		s.arbError(c, err)
		return
	}
	successResponse(c, result)
}

func (s *Server) handleArbExecutions(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		errorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	executions, err := s.repo.ListArbExecutions(c.Request.Context(), userID, c.Query("exchange"), limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list executions")
		return
	}
	successResponse(c, executions)
}

func (s *Server) handleArbPaths(c *gin.Context) {
	exchangeName := c.Query("exchange")
	if exchangeName == "" {
		errorResponse(c, http.StatusBadRequest, "exchange is required")
		return
	}
	successResponse(c, triarb.PathsForExchange(exchangeName))
}

// arbError maps execution failures: validation codes to 400/409, limiter
// states to 429, everything else through the venue mapping
func (s *Server) arbError(c *gin.Context, err error) {
	var validationErr *triarb.ValidationError
	if errors.As(err, &validationErr) {
		status := http.StatusBadRequest
		if validationErr.Code == triarb.CodeConfirmationRequired {
			status = http.StatusConflict
		}
		errorResponseCode(c, status, validationErr.Code, validationErr.Message)
		return
	}

	var busyErr *triarb.ErrExchangeBusy
	var cooldownErr *triarb.ErrCooldown
	if errors.As(err, &busyErr) || errors.As(err, &cooldownErr) {
		errorResponseCode(c, http.StatusTooManyRequests, "EXCHANGE_COOLDOWN", err.Error())
		return
	}
	s.venueError(c, err)
}
