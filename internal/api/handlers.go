package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ai-crypto-dashboard/internal/engine"
	"ai-crypto-dashboard/internal/market"
	"ai-crypto-dashboard/internal/ratelimit"
)

func (s *Server) handleRoot(c *gin.Context) {
	successResponse(c, gin.H{
		"service": "ai-crypto-dashboard",
		"version": "1.0.0",
		"time":    time.Now().UTC(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	health := s.engine.HealthCheck(c.Request.Context())

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (s *Server) handleCoins(c *gin.Context) {
	successResponse(c, gin.H{"coins": s.engine.TrackedCoins()})
}

func (s *Server) handleCoinAnalysis(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))

	analysis, err := s.engine.AnalyzeCoin(c.Request.Context(), symbol)
	if err != nil {
		s.mapError(c, err)
		return
	}
	successResponse(c, analysis)
}

func (s *Server) handleOrderBook(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))
	limit := queryInt(c, "limit", 20)

	book, err := s.engine.OrderBook(c.Request.Context(), symbol, limit)
	if err != nil {
		s.mapError(c, err)
		return
	}
	successResponse(c, book)
}

func (s *Server) handleHistory(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))

	klines, err := s.engine.History(c.Request.Context(), symbol)
	if err != nil {
		s.mapError(c, err)
		return
	}
	successResponse(c, gin.H{"symbol": symbol, "klines": klines})
}

func (s *Server) handleSignalHistory(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))
	limit := queryInt(c, "limit", 50)

	records, err := s.engine.SignalHistory(c.Request.Context(), symbol, limit)
	if err != nil {
		s.mapError(c, err)
		return
	}
	successResponse(c, gin.H{"symbol": symbol, "signals": records})
}

func (s *Server) handleMarketOverview(c *gin.Context) {
	overview, err := s.engine.MarketOverview(c.Request.Context())
	if err != nil {
		s.mapError(c, err)
		return
	}
	successResponse(c, overview)
}

func (s *Server) handleSignals(c *gin.Context) {
	signals := s.engine.Signals(c.Request.Context())
	successResponse(c, gin.H{"signals": signals, "count": len(signals)})
}

func (s *Server) handleMorningBrief(c *gin.Context) {
	brief, err := s.engine.GetMorningBrief(c.Request.Context())
	if err != nil {
		s.mapError(c, err)
		return
	}
	successResponse(c, brief)
}

func (s *Server) handleRateLimits(c *gin.Context) {
	successResponse(c, s.engine.RateLimits())
}

// mapError translates pipeline errors into HTTP status codes.
func (s *Server) mapError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, market.ErrUnknownSymbol):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrDataUnavailable):
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		errorResponse(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, engine.ErrHistoryDisabled):
		errorResponse(c, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().
			Str("request_id", c.GetString("request_id")).
			Err(err).
			Msg("request failed")
		errorResponse(c, http.StatusInternalServerError, "internal server error")
	}
}

func normalizeSymbol(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
