package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"perpscope/internal/aggregator"
	"perpscope/internal/exchange"
)

type PerpHandler struct {
	Aggregator *aggregator.Service
	Resolver   aggregator.MarketData
	Logger     *zap.Logger

	// Snapshot serves the cron-warmed aggregation when it is younger than
	// MaxAge; otherwise the request aggregates live.
	Snapshot *aggregator.SnapshotCache
	MaxAge   time.Duration
}

func (h *PerpHandler) Register(r *gin.Engine) {
	group := r.Group("/api")
	group.GET("/perps", h.listPerps)
	group.GET("/market-data", h.marketData)
	group.GET("/funding-history", h.fundingHistory)
}

// @Summary Aggregated perpetual contracts across all venues
// @Tags perps
// @Success 200 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/perps [get]
func (h *PerpHandler) listPerps(c *gin.Context) {
	if h.Snapshot != nil && h.MaxAge > 0 {
		if records, takenAt, ok := h.Snapshot.Get(); ok && time.Since(takenAt) <= h.MaxAge {
			Ok(c, records)
			return
		}
	}

	records, err := h.Aggregator.Aggregate(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("aggregation failed", zap.Error(err))
		}
		Error(c, http.StatusBadGateway, "failed to aggregate exchange data")
		return
	}
	Ok(c, records)
}

type marketDataItem struct {
	MarketCap *float64 `json:"marketCap"`
	FDV       *float64 `json:"fdv"`
}

// @Summary Market cap and FDV for a comma-separated symbol list
// @Tags perps
// @Param symbols query string true "comma-separated contract symbols"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/market-data [get]
func (h *PerpHandler) marketData(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("symbols"))
	if raw == "" {
		Error(c, http.StatusBadRequest, "symbols parameter is required")
		return
	}
	var symbols []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			symbols = append(symbols, part)
		}
	}
	if len(symbols) == 0 {
		Error(c, http.StatusBadRequest, "symbols parameter is required")
		return
	}

	entries := h.Resolver.Resolve(c.Request.Context(), symbols)
	data := make(map[string]marketDataItem, len(entries))
	for sym, entry := range entries {
		data[sym] = marketDataItem{MarketCap: entry.MarketCap, FDV: entry.FDV}
	}
	Ok(c, data)
}

type fundingHistoryResponse struct {
	Success      bool                   `json:"success"`
	Data         []exchange.FundingPoint `json:"data"`
	Constituents []exchange.Constituent  `json:"constituents"`
	Timestamp    int64                  `json:"timestamp"`
}

// @Summary Funding-rate history for one contract on one venue
// @Tags perps
// @Param symbol query string true "contract symbol"
// @Param exchange query string true "venue name (binance|bybit)"
// @Success 200 {object} fundingHistoryResponse
// @Failure 400 {object} apiResponse
// @Failure 502 {object} apiResponse
// @Router /api/funding-history [get]
func (h *PerpHandler) fundingHistory(c *gin.Context) {
	symbol := strings.TrimSpace(c.Query("symbol"))
	venueRaw := strings.TrimSpace(c.Query("exchange"))
	if symbol == "" || venueRaw == "" {
		Error(c, http.StatusBadRequest, "symbol and exchange parameters are required")
		return
	}
	venue, err := exchange.ParseName(venueRaw)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error())
		return
	}

	points, constituents, err := h.Aggregator.FundingHistory(c.Request.Context(), symbol, venue)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("funding history fetch failed",
				zap.String("symbol", symbol),
				zap.String("exchange", venueRaw),
				zap.Error(err))
		}
		Error(c, http.StatusBadGateway, "failed to fetch funding history")
		return
	}
	if points == nil {
		points = []exchange.FundingPoint{}
	}
	if constituents == nil {
		constituents = []exchange.Constituent{}
	}
	c.JSON(http.StatusOK, fundingHistoryResponse{
		Success:      true,
		Data:         points,
		Constituents: constituents,
		Timestamp:    time.Now().UnixMilli(),
	})
}
