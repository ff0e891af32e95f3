package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/config"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/database"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/handlers"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/routes"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// setupTestAPI wires a fresh in-memory database, the full service graph and
// the real route table for one test
func setupTestAPI(t *testing.T) (*gorm.DB, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	require.NoError(t, database.InitDatabase(dsn))

	handler := handlers.NewSignalHandler()
	handler.SetConfig(&config.Config{
		Plans: config.PlansConfig{Free: 1, Pro: 30, Elite: 120},
	})
	handlers.SetGlobalHandler(handler)

	router := gin.New()
	routes.SetupRoutes(router)
	return database.GetDB(), router
}

func seedAccountWithStrategy(t *testing.T, db *gorm.DB, plan string) (*models.Account, *models.Strategy) {
	t.Helper()
	account := &models.Account{
		Name:     "Test Account",
		Email:    uuid.NewString() + "@example.com",
		Plan:     plan,
		IsActive: true,
	}
	require.NoError(t, db.Create(account).Error)

	strategy := &models.Strategy{
		AccountID:    account.ID,
		Name:         "Breakout Hunter",
		WebhookToken: services.NewWebhookToken(),
		IsActive:     true,
	}
	require.NoError(t, db.Create(strategy).Error)
	return account, strategy
}

func postJSON(router *gin.Engine, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	return w, parsed
}

func getJSON(router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	return w, parsed
}

func webhookBody(strategy *models.Strategy) map[string]interface{} {
	return map[string]interface{}{
		"token":      strategy.WebhookToken,
		"strategyId": strategy.ID,
		"signal":     "buy",
		"symbol":     "btcusdt",
		"price":      50000.0,
		"time":       "2026-08-30T12:00:00Z",
	}
}

func TestWebhookSignalEndpoint(t *testing.T) {
	db, router := setupTestAPI(t)
	_, strategy := seedAccountWithStrategy(t, db, models.PlanPro)

	t.Run("accepts and normalizes a valid alert", func(t *testing.T) {
		w, resp := postJSON(router, "/api/v1/webhook/signal", webhookBody(strategy), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, resp["success"])
		assert.Equal(t, "signal received", resp["message"])
		require.NotNil(t, resp["signal_id"])

		var signal models.Signal
		require.NoError(t, db.First(&signal, uint(resp["signal_id"].(float64))).Error)
		assert.Equal(t, "BUY", signal.Direction)
		assert.Equal(t, "BTCUSDT", signal.Symbol)
		assert.Equal(t, 50000.0, signal.Price)
		assert.Equal(t, strategy.ID, signal.StrategyID)
	})

	t.Run("repeated alert is acknowledged as a duplicate", func(t *testing.T) {
		w, resp := postJSON(router, "/api/v1/webhook/signal", webhookBody(strategy), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "duplicate signal ignored", resp["message"])
		assert.NotZero(t, resp["duplicate_of"])

		var count int64
		db.Model(&models.Signal{}).Where("strategy_id = ?", strategy.ID).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("lists every missing field", func(t *testing.T) {
		w, resp := postJSON(router, "/api/v1/webhook/signal", map[string]interface{}{
			"signal": "buy",
		}, nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "missing required fields", resp["error"])
		assert.ElementsMatch(t, []interface{}{"token", "strategyId", "symbol", "price", "time"}, resp["missing"])
	})

	t.Run("rejects a wrong token", func(t *testing.T) {
		body := webhookBody(strategy)
		body["token"] = "wrong-token"
		w, _ := postJSON(router, "/api/v1/webhook/signal", body, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown strategy is a 404", func(t *testing.T) {
		body := webhookBody(strategy)
		body["strategyId"] = 9999
		w, _ := postJSON(router, "/api/v1/webhook/signal", body, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("deleted strategy is a 410", func(t *testing.T) {
		_, deleted := seedAccountWithStrategy(t, db, models.PlanPro)
		require.NoError(t, db.Delete(deleted).Error)

		w, _ := postJSON(router, "/api/v1/webhook/signal", webhookBody(deleted), nil)
		assert.Equal(t, http.StatusGone, w.Code)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/signal", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAPISignalEndpoint(t *testing.T) {
	db, router := setupTestAPI(t)
	account, strategy := seedAccountWithStrategy(t, db, models.PlanPro)

	key := &models.ApiKey{
		AccountID:  account.ID,
		StrategyID: &strategy.ID,
		Key:        services.NewAPIKeyValue(),
		Name:       "ingest key",
		IsActive:   true,
		Mapping:    datatypes.JSON(`{"symbol": "data.ticker"}`),
		Defaults:   datatypes.JSON(`{"interval": "1h"}`),
	}
	require.NoError(t, db.Create(key).Error)

	t.Run("maps custom paths and echoes the normalized signal", func(t *testing.T) {
		w, resp := postJSON(router, "/api/v1/signals", map[string]interface{}{
			"data":   map[string]string{"ticker": "AAPL"},
			"signal": "buy",
			"price":  10,
		}, map[string]string{"X-API-Key": key.Key})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, resp["success"])

		processed := resp["processed"].(map[string]interface{})
		assert.Equal(t, "BUY", processed["direction"])
		assert.Equal(t, "AAPL", processed["symbol"])
		assert.Equal(t, 10.0, processed["price"])
		assert.Equal(t, "1h", processed["interval"])
	})

	t.Run("unresolved fields return the mapping in effect", func(t *testing.T) {
		w, resp := postJSON(router, "/api/v1/signals", map[string]interface{}{
			"ticker": "AAPL",
		}, map[string]string{"X-API-Key": key.Key})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "unresolved_fields", resp["code"])
		assert.ElementsMatch(t, []interface{}{"direction", "symbol", "price"}, resp["missing"])

		mapping := resp["mapping"].(map[string]interface{})
		assert.Equal(t, "data.ticker", mapping["symbol"])
		assert.Equal(t, "signal", mapping["direction"])
	})

	t.Run("missing key is a 401", func(t *testing.T) {
		w, _ := postJSON(router, "/api/v1/signals", map[string]interface{}{}, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown key is a 401", func(t *testing.T) {
		w, _ := postJSON(router, "/api/v1/signals", map[string]interface{}{},
			map[string]string{"X-API-Key": "sk_nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("disabled key is a 403", func(t *testing.T) {
		disabled := &models.ApiKey{
			AccountID: account.ID,
			Key:       services.NewAPIKeyValue(),
			IsActive:  true,
		}
		require.NoError(t, db.Create(disabled).Error)
		require.NoError(t, db.Model(disabled).Update("is_active", false).Error)

		w, _ := postJSON(router, "/api/v1/signals", map[string]interface{}{},
			map[string]string{"X-API-Key": disabled.Key})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestAPIKeyCredentialSources(t *testing.T) {
	db, router := setupTestAPI(t)
	account, strategy := seedAccountWithStrategy(t, db, models.PlanElite)

	key := &models.ApiKey{
		AccountID:  account.ID,
		StrategyID: &strategy.ID,
		Key:        services.NewAPIKeyValue(),
		IsActive:   true,
	}
	require.NoError(t, db.Create(key).Error)

	body := func(id string) map[string]interface{} {
		return map[string]interface{}{
			"signal": "close", "symbol": "ETHUSDT", "price": 3000, "alertId": id,
		}
	}

	t.Run("bearer authorization header", func(t *testing.T) {
		w, _ := postJSON(router, "/api/v1/signals", body("bearer-1"),
			map[string]string{"Authorization": "Bearer " + key.Key})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("query parameter", func(t *testing.T) {
		w, _ := postJSON(router, "/api/v1/signals?api_key="+key.Key, body("query-1"), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("dedicated header wins over a bad bearer token", func(t *testing.T) {
		w, _ := postJSON(router, "/api/v1/signals", body("header-1"), map[string]string{
			"X-API-Key":     key.Key,
			"Authorization": "Bearer sk_invalid",
		})
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimitResponse(t *testing.T) {
	db, router := setupTestAPI(t)
	_, strategy := seedAccountWithStrategy(t, db, models.PlanFree)

	// CLOSE signals so duplicate suppression never kicks in before the limit
	send := func() (*httptest.ResponseRecorder, map[string]interface{}) {
		body := webhookBody(strategy)
		body["signal"] = "close"
		return postJSON(router, "/api/v1/webhook/signal", body, nil)
	}

	w, _ := send()
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := send()
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", resp["code"])
	assert.Equal(t, 60.0, resp["retry_after"])

	var count int64
	db.Model(&models.Signal{}).Where("strategy_id = ?", strategy.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestReadEndpoints(t *testing.T) {
	db, router := setupTestAPI(t)
	_, strategy := seedAccountWithStrategy(t, db, models.PlanPro)

	signal := &models.Signal{
		StrategyID: strategy.ID,
		Direction:  "BUY",
		Symbol:     "BTCUSDT",
		Price:      50000,
	}
	require.NoError(t, db.Create(signal).Error)
	require.NoError(t, db.Create(&models.DeliveryLog{
		SignalID:    signal.ID,
		ChannelType: models.IntegrationSlack,
		Status:      models.DeliveryStatusSuccess,
	}).Error)

	t.Run("signal by id", func(t *testing.T) {
		w, resp := getJSON(router, fmt.Sprintf("/api/v1/signals/%d", signal.ID))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "BTCUSDT", resp["symbol"])
	})

	t.Run("unknown signal is a 404", func(t *testing.T) {
		w, _ := getJSON(router, "/api/v1/signals/99999")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id is a 400", func(t *testing.T) {
		w, _ := getJSON(router, "/api/v1/signals/abc")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delivery log for a signal", func(t *testing.T) {
		w, resp := getJSON(router, fmt.Sprintf("/api/v1/signals/%d/deliveries", signal.ID))
		require.Equal(t, http.StatusOK, w.Code)
		deliveries := resp["deliveries"].([]interface{})
		require.Len(t, deliveries, 1)
		entry := deliveries[0].(map[string]interface{})
		assert.Equal(t, models.IntegrationSlack, entry["channel_type"])
		assert.Equal(t, models.DeliveryStatusSuccess, entry["status"])
	})

	t.Run("strategy signals with pagination", func(t *testing.T) {
		w, resp := getJSON(router, fmt.Sprintf("/api/v1/strategies/%d/signals?page=1&limit=10", strategy.ID))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1.0, resp["total"])
		assert.Len(t, resp["signals"].([]interface{}), 1)
	})
}

func TestHealthAndRoot(t *testing.T) {
	_, router := setupTestAPI(t)

	w, resp := getJSON(router, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])

	w, resp = getJSON(router, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, resp["endpoints"])
}
