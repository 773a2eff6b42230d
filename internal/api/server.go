package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"momentum-arb-bot/internal/credentials"
	"momentum-arb-bot/internal/database"
	"momentum-arb-bot/internal/events"
	"momentum-arb-bot/internal/exchange"
	"momentum-arb-bot/internal/orders"
	"momentum-arb-bot/internal/positions"
	"momentum-arb-bot/internal/strategy"
	"momentum-arb-bot/internal/triarb"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	ProductionMode bool
}

// Server is the HTTP API surface
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	repo        *database.Repository
	registry    *exchange.Registry
	strategies  *strategy.Service
	positions   *positions.Service
	creds       *credentials.Service
	orders      *orders.Executor
	arbScanner  *triarb.Scanner
	arbExecutor *triarb.Executor
	bus         *events.EventBus
}

// NewServer wires the API server
func NewServer(
	config ServerConfig,
	repo *database.Repository,
	registry *exchange.Registry,
	strategies *strategy.Service,
	posService *positions.Service,
	creds *credentials.Service,
	orderExec *orders.Executor,
	arbScanner *triarb.Scanner,
	arbExecutor *triarb.Executor,
	bus *events.EventBus,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	corsConfig := cors.DefaultConfig()
	if config.AllowedOrigins == "" || config.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(config.AllowedOrigins, ",")
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		config:      config,
		repo:        repo,
		registry:    registry,
		strategies:  strategies,
		positions:   posService,
		creds:       creds,
		orders:      orderExec,
		arbScanner:  arbScanner,
		arbExecutor: arbExecutor,
		bus:         bus,
	}
	server.setupRoutes()
	return server
}

// requestLogger logs one line per request. Bodies are never logged: market
// and order endpoints carry API keys in theirs.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("request")
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/exchanges", s.handleListExchanges)

		api.POST("/strategies", s.handleCreateStrategy)
		api.GET("/strategies", s.handleListStrategies)
		api.GET("/strategies/active", s.handleListActiveStrategies)
		api.GET("/strategies/:id", s.handleGetStrategy)
		api.PUT("/strategies/:id", s.handleUpdateStrategy)
		api.DELETE("/strategies/:id", s.handleDeleteStrategy)
		api.POST("/strategies/:id/toggle", s.handleToggleStrategy)
		api.GET("/strategies/:id/can-open-position", s.handleCanOpenPosition)

		api.POST("/positions", s.handleCreatePosition)
		api.GET("/positions", s.handleListPositions)
		api.POST("/positions/:id/close", s.handleManualClose)
		api.PUT("/positions/:id/mark-closing", s.handleMarkClosing)
		api.PUT("/positions/:id/close", s.handleFinalizeClose)
		api.PUT("/positions/:id/force-close", s.handleForceClose)

		api.POST("/market/candles", s.handleCandles)
		api.POST("/market/current-price", s.handleCurrentPrice)
		api.POST("/balance", s.handleBalance)
		api.POST("/order/buy", s.handleOrderBuy)
		api.POST("/order/sell", s.handleOrderSell)

		api.POST("/triarb/scan", s.handleArbScan)
		api.POST("/triarb/execute", s.handleArbExecute)
		api.GET("/triarb/executions", s.handleArbExecutions)
		api.GET("/triarb/paths", s.handleArbPaths)

		api.POST("/credentials", s.handleStoreCredentials)
		api.GET("/credentials", s.handleListCredentials)
		api.POST("/credentials/:exchange/test", s.handleTestCredentials)
		api.DELETE("/credentials/:exchange", s.handleDeleteCredentials)

		api.POST("/swap/declarations", s.handleUpsertDeclaration)
		api.GET("/swap/declarations", s.handleGetDeclaration)
		api.GET("/swap/balances", s.handleListSwapBalances)
		api.POST("/swap/balances/sync", s.handleSyncSwapBalances)
		api.POST("/swap/balances/lock", s.handleLockFunds)
		api.POST("/swap/balances/unlock", s.handleUnlockFunds)
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown runs
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("http server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	log.Info().Msg("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.repo.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "healthy"})
}

func (s *Server) handleListExchanges(c *gin.Context) {
	successResponse(c, gin.H{"exchanges": exchange.Supported()})
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{"error": true, "message": message})
}

func errorResponseCode(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, gin.H{"error": true, "code": code, "message": message})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
