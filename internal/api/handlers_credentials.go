package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/exchange"
	"momentum-arb-bot/internal/market"
)

// ============================================================================
// CREDENTIAL HANDLERS
// ============================================================================
// Responses never contain key material, only presence and connection state.

type storeCredentialsRequest struct {
	UserID     string `json:"userId"`
	Exchange   string `json:"exchange"`
	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
	Passphrase string `json:"passphrase"`
	Memo       string `json:"memo"`
}

func (s *Server) handleStoreCredentials(c *gin.Context) {
	var req storeCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid credentials payload")
		return
	}
	creds := market.Credentials{
		APIKey:     req.APIKey,
		APISecret:  req.APISecret,
		Passphrase: req.Passphrase,
		Memo:       req.Memo,
	}
	if req.UserID == "" || req.Exchange == "" || !creds.HasKeys() {
		errorResponse(c, http.StatusBadRequest, "userId, exchange, apiKey and apiSecret are required")
		return
	}
	if !exchange.Known(req.Exchange) {
		errorResponse(c, http.StatusBadRequest, "unsupported exchange: "+req.Exchange)
		return
	}

	if err := s.creds.Store(c.Request.Context(), req.UserID, req.Exchange, creds); err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to store credentials")
		return
	}
	successResponse(c, gin.H{"exchange": req.Exchange, "stored": true})
}

func (s *Server) handleListCredentials(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		errorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}

	summaries, err := s.creds.List(c.Request.Context(), userID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list credentials")
		return
	}
	successResponse(c, summaries)
}

func (s *Server) handleTestCredentials(c *gin.Context) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		errorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}

	exchangeName := c.Param("exchange")
	if err := s.orders.TestConnection(c.Request.Context(), req.UserID, exchangeName); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "no credentials stored for "+exchangeName)
			return
		}
		successResponse(c, gin.H{"exchange": exchangeName, "connected": false, "message": err.Error()})
		return
	}
	successResponse(c, gin.H{"exchange": exchangeName, "connected": true})
}

func (s *Server) handleDeleteCredentials(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		errorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}

	exchangeName := c.Param("exchange")
	if err := s.creds.Delete(c.Request.Context(), userID, exchangeName); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "no credentials stored for "+exchangeName)
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to delete credentials")
		return
	}
	successResponse(c, gin.H{"exchange": exchangeName, "deleted": true})
}
