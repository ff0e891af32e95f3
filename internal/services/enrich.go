package services

import (
	"fmt"
	"log"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/database"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
	"gorm.io/gorm"
)

// minTradesForStats is the closed-trade floor below which performance
// statistics are not yet meaningful and are omitted entirely
const minTradesForStats = 5

// StrategyStats is a rolling performance snapshot for a strategy
type StrategyStats struct {
	WinRate     float64 `json:"win_rate"` // percentage
	TotalTrades int64   `json:"total_trades"`
}

// AlertContext is everything the channel formatters need for one signal:
// the signal itself, its strategy, and the optional enrichment
type AlertContext struct {
	Signal   *models.Signal
	Strategy *models.Strategy
	Stats    *StrategyStats
	Insight  string
}

// EnrichService attaches optional context to a signal before notification:
// the strategy performance snapshot and a short AI-generated insight. Both
// are best-effort and never block or fail dispatch.
type EnrichService struct {
	db      *gorm.DB
	insight *InsightService
}

// NewEnrichService creates a new enrichment service
func NewEnrichService(insight *InsightService) *EnrichService {
	return &EnrichService{
		db:      database.GetDB(),
		insight: insight,
	}
}

// Enrich builds the alert context for a signal
func (s *EnrichService) Enrich(signal *models.Signal, strategy *models.Strategy) *AlertContext {
	ctx := &AlertContext{
		Signal:   signal,
		Strategy: strategy,
	}

	stats, err := s.StrategyStats(signal.StrategyID)
	if err != nil {
		log.Printf("Failed to load stats for strategy %d: %v", signal.StrategyID, err)
	} else {
		ctx.Stats = stats
	}

	if s.insight != nil {
		ctx.Insight = s.insight.Generate(signal, strategy, ctx.Stats)
	}

	return ctx
}

// StrategyStats returns the win-rate snapshot for a strategy, or nil when it
// has fewer than minTradesForStats closed trades
func (s *EnrichService) StrategyStats(strategyID uint) (*StrategyStats, error) {
	var total int64
	if err := s.db.Model(&models.Trade{}).Where("strategy_id = ?", strategyID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count trades: %w", err)
	}
	if total < minTradesForStats {
		return nil, nil
	}

	var wins int64
	if err := s.db.Model(&models.Trade{}).
		Where("strategy_id = ? AND profitable = ?", strategyID, true).
		Count(&wins).Error; err != nil {
		return nil, fmt.Errorf("failed to count winning trades: %w", err)
	}

	return &StrategyStats{
		WinRate:     float64(wins) / float64(total) * 100,
		TotalTrades: total,
	}, nil
}
