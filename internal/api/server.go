// Package api exposes the signal pipeline over HTTP and WebSocket.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-crypto-dashboard/internal/database"
	"ai-crypto-dashboard/internal/engine"
	"ai-crypto-dashboard/internal/events"
	"ai-crypto-dashboard/internal/logging"
	"ai-crypto-dashboard/internal/market"
	"ai-crypto-dashboard/internal/ratelimit"
	"ai-crypto-dashboard/internal/signal"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowOrigins   []string
}

// EngineAPI defines the methods the analysis engine must expose to the API
type EngineAPI interface {
	TrackedCoins() []string
	IsTracked(symbol string) bool
	AnalyzeCoin(ctx context.Context, symbol string) (*engine.CoinAnalysis, error)
	Signals(ctx context.Context) []signal.Summary
	MarketOverview(ctx context.Context) (*engine.Overview, error)
	GetMorningBrief(ctx context.Context) (*engine.MorningBrief, error)
	OrderBook(ctx context.Context, symbol string, limit int) (*market.OrderBook, error)
	History(ctx context.Context, symbol string) ([]market.Kline, error)
	SignalHistory(ctx context.Context, symbol string, limit int) ([]database.SignalRecord, error)
	RateLimits() map[string]ratelimit.ProviderStatus
	HealthCheck(ctx context.Context) engine.Health
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	eventBus   *events.EventBus
	engine     EngineAPI
	config     ServerConfig
	logger     zerolog.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, eng EngineAPI, eventBus *events.EventBus) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	logger := logging.Component("api")

	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger))

	corsConfig := cors.DefaultConfig()
	if len(config.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:   router,
		eventBus: eventBus,
		engine:   eng,
		config:   config,
		logger:   logger,
	}

	server.setupRoutes()
	InitWebSocket(eventBus)

	return server
}

// requestIDMiddleware stamps each request with an id for log correlation.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// accessLogMiddleware logs one structured line per request.
func accessLogMiddleware(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/coins", s.handleCoins)
		api.GET("/coin/:symbol", s.handleCoinAnalysis)
		api.GET("/coin/:symbol/orderbook", s.handleOrderBook)
		api.GET("/coin/:symbol/history", s.handleHistory)
		api.GET("/coin/:symbol/signals", s.handleSignalHistory)
		api.GET("/market-overview", s.handleMarketOverview)
		api.GET("/signals", s.handleSignals)
		api.GET("/morning-brief", s.handleMorningBrief)
		api.GET("/rate-limits", s.handleRateLimits)
	}

	s.router.GET("/ws/signals", s.handleWebSocket)
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
