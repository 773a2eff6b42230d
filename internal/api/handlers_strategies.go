package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/strategy"
)

// ============================================================================
// STRATEGY HANDLERS
// ============================================================================

func (s *Server) handleCreateStrategy(c *gin.Context) {
	var strat database.Strategy
	if err := c.ShouldBindJSON(&strat); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid strategy payload: "+err.Error())
		return
	}

	if err := s.strategies.Create(c.Request.Context(), &strat); err != nil {
		s.strategyError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": strat})
}

func (s *Server) handleListStrategies(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		errorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}

	strategies, err := s.strategies.List(c.Request.Context(), userID, c.Query("exchange"))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list strategies")
		return
	}
	successResponse(c, strategies)
}

func (s *Server) handleListActiveStrategies(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		errorResponse(c, http.StatusBadRequest, "userId is required")
		return
	}

	strategies, err := s.strategies.List(c.Request.Context(), userID, c.Query("exchange"))
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list strategies")
		return
	}

	active := strategies[:0]
	for _, strat := range strategies {
		if strat.IsActive {
			active = append(active, strat)
		}
	}
	successResponse(c, active)
}

func (s *Server) handleGetStrategy(c *gin.Context) {
	strat, err := s.strategies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "strategy not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load strategy")
		return
	}
	successResponse(c, strat)
}

func (s *Server) handleUpdateStrategy(c *gin.Context) {
	var strat database.Strategy
	if err := c.ShouldBindJSON(&strat); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid strategy payload: "+err.Error())
		return
	}
	strat.ID = c.Param("id")

	if err := s.strategies.Update(c.Request.Context(), &strat); err != nil {
		s.strategyError(c, err)
		return
	}
	successResponse(c, strat)
}

func (s *Server) handleDeleteStrategy(c *gin.Context) {
	if err := s.strategies.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "strategy not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to delete strategy")
		return
	}
	successResponse(c, gin.H{"deleted": true})
}

func (s *Server) handleToggleStrategy(c *gin.Context) {
	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid toggle payload")
		return
	}

	id := c.Param("id")
	var err error
	if req.Active {
		err = s.strategies.Activate(c.Request.Context(), id)
	} else {
		err = s.strategies.Deactivate(c.Request.Context(), id)
	}
	if err != nil {
		s.strategyError(c, err)
		return
	}
	successResponse(c, gin.H{"id": id, "active": req.Active})
}

func (s *Server) handleCanOpenPosition(c *gin.Context) {
	ctx := c.Request.Context()
	strat, err := s.strategies.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "strategy not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "failed to load strategy")
		return
	}

	// OPEN and CLOSING both hold a slot; a pending exit blocks re-entry.
	held, err := s.positions.ActiveCount(ctx, strat.ID)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to count positions")
		return
	}
	successResponse(c, gin.H{
		"canOpen":          strat.IsActive && held < strat.MaxOpenPositions,
		"openPositions":    held,
		"maxOpenPositions": strat.MaxOpenPositions,
	})
}

func (s *Server) strategyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, strategy.ErrValidation):
		errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrNotFound):
		errorResponse(c, http.StatusNotFound, "strategy not found")
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}
