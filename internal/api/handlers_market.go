package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

// ============================================================================
// MARKET DATA AND ORDER HANDLERS
// ============================================================================
// Credentials arrive in the request body, are handed to the adapter for the
// one call, and are never stored or logged.

type candlesRequest struct {
	Exchange    string             `json:"exchange"`
	Pair        string             `json:"pair"`
	Interval    string             `json:"interval"`
	Limit       int                `json:"limit"`
	Credentials market.Credentials `json:"credentials"`
}

func (s *Server) handleCandles(c *gin.Context) {
	var req candlesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid candles payload: "+err.Error())
		return
	}
	if req.Exchange == "" || req.Pair == "" {
		errorResponse(c, http.StatusBadRequest, "exchange and pair are required")
		return
	}
	if req.Interval == "" {
		req.Interval = "1h"
	}
	if req.Limit <= 0 || req.Limit > 1000 {
		req.Limit = 100
	}

	adapter, err := s.registry.Get(req.Exchange)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	candles, err := adapter.FetchCandles(c.Request.Context(), req.Pair, req.Interval, req.Limit)
	if err != nil {
		s.venueError(c, err)
		return
	}
	successResponse(c, candles)
}

func (s *Server) handleCurrentPrice(c *gin.Context) {
	var req struct {
		Exchange string `json:"exchange"`
		Pair     string `json:"pair"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid price payload: "+err.Error())
		return
	}
	if req.Exchange == "" || req.Pair == "" {
		errorResponse(c, http.StatusBadRequest, "exchange and pair are required")
		return
	}

	adapter, err := s.registry.Get(req.Exchange)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	price, err := adapter.FetchCurrentPrice(c.Request.Context(), req.Pair)
	if err != nil {
		s.venueError(c, err)
		return
	}
	successResponse(c, gin.H{"exchange": req.Exchange, "pair": req.Pair, "price": price})
}

type balanceRequest struct {
	Exchange   string `json:"exchange"`
	Asset      string `json:"asset"`
	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
	Passphrase string `json:"passphrase"`
	Memo       string `json:"memo"`
}

func (s *Server) handleBalance(c *gin.Context) {
	var req balanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid balance payload: "+err.Error())
		return
	}
	creds := market.Credentials{
		APIKey:     req.APIKey,
		APISecret:  req.APISecret,
		Passphrase: req.Passphrase,
		Memo:       req.Memo,
	}
	if req.Exchange == "" || !creds.HasKeys() {
		errorResponse(c, http.StatusBadRequest, "exchange, apiKey and apiSecret are required")
		return
	}
	if req.Asset == "" {
		req.Asset = "USDT"
	}

	adapter, err := s.registry.Get(req.Exchange)
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	available, err := adapter.FetchBalance(c.Request.Context(), creds, req.Asset)
	if err != nil {
		s.venueError(c, err)
		return
	}
	successResponse(c, gin.H{
		"balances": gin.H{req.Asset: available},
		"details":  gin.H{"exchange": req.Exchange, "asset": req.Asset, "available": available},
	})
}

type orderRequest struct {
	UserID      string             `json:"userId"`
	Exchange    string             `json:"exchange"`
	Pair        string             `json:"pair"`
	AmountUSDT  decimal.Decimal    `json:"amountUSDT"` // buy: quote to spend
	Quantity    decimal.Decimal    `json:"quantity"`   // sell: base to sell
	Credentials market.Credentials `json:"credentials"`
}

func (s *Server) handleOrderBuy(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid order payload: "+err.Error())
		return
	}
	if req.Exchange == "" || req.Pair == "" || !req.Credentials.HasKeys() {
		errorResponse(c, http.StatusBadRequest, "exchange, pair and credentials are required")
		return
	}

	fill, err := s.orders.MarketBuyWith(c.Request.Context(), req.UserID, req.Credentials, req.Exchange, req.Pair, req.AmountUSDT)
	if err != nil {
		s.venueError(c, err)
		return
	}
	successResponse(c, fill)
}

func (s *Server) handleOrderSell(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid order payload: "+err.Error())
		return
	}
	if req.Exchange == "" || req.Pair == "" || !req.Credentials.HasKeys() {
		errorResponse(c, http.StatusBadRequest, "exchange, pair and credentials are required")
		return
	}

	fill, err := s.orders.MarketSellWith(c.Request.Context(), req.UserID, req.Credentials, req.Exchange, req.Pair, req.Quantity)
	if err != nil {
		s.venueError(c, err)
		return
	}
	successResponse(c, fill)
}

// venueError maps adapter failures onto HTTP statuses. Venue rejections keep
// their code; transport problems become a 502.
func (s *Server) venueError(c *gin.Context, err error) {
	var venueErr *market.VenueError
	if errors.As(err, &venueErr) {
		status := http.StatusBadGateway
		if venueErr.IsRateLimited() {
			status = http.StatusTooManyRequests
		} else if venueErr.HTTPStatus >= 400 && venueErr.HTTPStatus < 500 {
			status = http.StatusBadRequest
		}
		errorResponseCode(c, status, venueErr.VenueCode, venueErr.Message)
		return
	}
	errorResponse(c, http.StatusBadGateway, err.Error())
}
