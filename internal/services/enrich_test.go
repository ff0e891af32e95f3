package services

import (
	"testing"
	"time"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedTrades(t *testing.T, db *gorm.DB, strategyID uint, wins, losses int) {
	t.Helper()
	for i := 0; i < wins+losses; i++ {
		trade := &models.Trade{
			StrategyID: strategyID,
			Symbol:     "BTCUSDT",
			Direction:  "LONG",
			EntryPrice: 50000,
			ExitPrice:  51000,
			Profitable: i < wins,
			ClosedAt:   time.Now(),
		}
		require.NoError(t, db.Create(trade).Error)
	}
}

func TestStrategyStats(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db, models.PlanPro)
	svc := NewEnrichService(nil)

	t.Run("omitted below the closed-trade floor", func(t *testing.T) {
		strategy := seedStrategy(t, db, account.ID, "Young Strategy")
		seedTrades(t, db, strategy.ID, 3, 1)

		stats, err := svc.StrategyStats(strategy.ID)
		require.NoError(t, err)
		assert.Nil(t, stats)
	})

	t.Run("win rate over all closed trades", func(t *testing.T) {
		strategy := seedStrategy(t, db, account.ID, "Proven Strategy")
		seedTrades(t, db, strategy.ID, 7, 3)

		stats, err := svc.StrategyStats(strategy.ID)
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, 70.0, stats.WinRate)
		assert.Equal(t, int64(10), stats.TotalTrades)
	})

	t.Run("all losing trades yield a zero win rate", func(t *testing.T) {
		strategy := seedStrategy(t, db, account.ID, "Losing Strategy")
		seedTrades(t, db, strategy.ID, 0, 5)

		stats, err := svc.StrategyStats(strategy.ID)
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Zero(t, stats.WinRate)
	})
}

func TestEnrichIsBestEffort(t *testing.T) {
	db := setupTestDB(t)
	account := seedAccount(t, db, models.PlanPro)
	strategy := seedStrategy(t, db, account.ID, "Momentum")
	seedTrades(t, db, strategy.ID, 4, 2)

	signal := &models.Signal{
		StrategyID: strategy.ID,
		Direction:  "BUY",
		Symbol:     "BTCUSDT",
		Price:      50000,
	}

	// nil insight service: context still builds, insight stays empty
	svc := NewEnrichService(nil)
	ctx := svc.Enrich(signal, strategy)
	require.NotNil(t, ctx)
	assert.Same(t, signal, ctx.Signal)
	assert.Same(t, strategy, ctx.Strategy)
	require.NotNil(t, ctx.Stats)
	assert.InDelta(t, 66.7, ctx.Stats.WinRate, 0.1)
	assert.Empty(t, ctx.Insight)

	// disabled insight service behaves the same
	insight := NewInsightService()
	ctx = NewEnrichService(insight).Enrich(signal, strategy)
	assert.Empty(t, ctx.Insight)
}
