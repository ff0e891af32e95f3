package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/config"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/services"
	"github.com/gin-gonic/gin"
)

// Global handler instance
var globalHandler *SignalHandler

// WebhookRequest is the fixed-shape body of the webhook ingestion flow
type WebhookRequest struct {
	Token      string   `json:"token"`
	StrategyID uint     `json:"strategyId"`
	Signal     string   `json:"signal"`
	Symbol     string   `json:"symbol"`
	Price      *float64 `json:"price"`
	Time       string   `json:"time"`
	Interval   string   `json:"interval,omitempty"`
	AlertID    string   `json:"alertId,omitempty"`
}

// SignalHandler handles signal ingestion and read endpoints
type SignalHandler struct {
	authService     *services.AuthService
	signalService   *services.SignalService
	dispatchService *services.DispatchService
	insightService  *services.InsightService
}

// NewSignalHandler creates a new signal handler with its service graph
func NewSignalHandler() *SignalHandler {
	insightService := services.NewInsightService()
	enrichService := services.NewEnrichService(insightService)
	dispatchService := services.NewDispatchService(enrichService)
	signalService := services.NewSignalService(dispatchService)

	return &SignalHandler{
		authService:     services.NewAuthService(),
		signalService:   signalService,
		dispatchService: dispatchService,
		insightService:  insightService,
	}
}

// SetGlobalHandler sets the global handler instance
func SetGlobalHandler(handler *SignalHandler) {
	globalHandler = handler
}

// GetGlobalHandler returns the global handler instance
func GetGlobalHandler() *SignalHandler {
	return globalHandler
}

// SetConfig sets the configuration for all services
func (h *SignalHandler) SetConfig(cfg *config.Config) {
	h.signalService.SetConfig(cfg)
	h.dispatchService.SetConfig(cfg)
	h.insightService.SetConfig(cfg)
}

// HandleWebhookSignal handles the webhook ingestion flow: strategy-scoped
// token auth and a fixed payload shape
func (h *SignalHandler) HandleWebhookSignal(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	var missing []string
	if req.Token == "" {
		missing = append(missing, "token")
	}
	if req.StrategyID == 0 {
		missing = append(missing, "strategyId")
	}
	if req.Signal == "" {
		missing = append(missing, "signal")
	}
	if req.Symbol == "" {
		missing = append(missing, "symbol")
	}
	if req.Price == nil {
		missing = append(missing, "price")
	}
	if req.Time == "" {
		missing = append(missing, "time")
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields", "missing": missing})
		return
	}

	cred, err := h.authService.ResolveWebhook(req.StrategyID, req.Token)
	if err != nil {
		writeError(c, err)
		return
	}

	fields := &services.SignalFields{
		Direction:  req.Signal,
		Symbol:     req.Symbol,
		Price:      *req.Price,
		HasPrice:   true,
		Interval:   req.Interval,
		ExternalID: req.AlertID,
		Time:       time.Now(),
	}
	if t, ok := services.ParseSignalTime(req.Time); ok {
		fields.Time = t
	}

	result, err := h.signalService.Ingest(cred, fields, body)
	if err != nil {
		writeError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      "duplicate signal ignored",
			"duplicate_of": result.DuplicateOf,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "signal received",
		"signal_id": result.Signal.ID,
	})
}

// HandleAPISignal handles the programmatic ingestion flow: account-scoped
// API key auth and per-key field mapping over an arbitrary body
func (h *SignalHandler) HandleAPISignal(c *gin.Context) {
	key := extractAPIKey(c)
	cred, err := h.authService.ResolveAPIKey(key)
	if err != nil {
		writeError(c, err)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	mapper := services.NewFieldMapper(cred.Mapping, cred.Defaults)
	fields, err := mapper.Resolve(body)
	if err != nil {
		writeError(c, err)
		return
	}

	result, err := h.signalService.Ingest(cred, fields, body)
	if err != nil {
		writeError(c, err)
		return
	}

	if result.Duplicate {
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      "duplicate signal ignored",
			"duplicate_of": result.DuplicateOf,
		})
		return
	}

	signal := result.Signal
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"signal_id": signal.ID,
		"processed": gin.H{
			"direction":   signal.Direction,
			"symbol":      signal.Symbol,
			"price":       signal.Price,
			"time":        signal.SignalTime.Format(time.RFC3339),
			"interval":    signal.Interval,
			"external_id": fields.ExternalID,
		},
	})
}

// extractAPIKey checks the dedicated header, the bearer authorization header
// and the query parameter, in that order
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	return c.Query("api_key")
}

// writeError translates a service error to its HTTP response. Unknown errors
// become a generic 500 without leaking internals.
func writeError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)

	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		payload := gin.H{"error": svcErr.Message, "code": svcErr.Code}
		for k, v := range svcErr.Detail {
			payload[k] = v
		}
		c.JSON(status, payload)
		return
	}

	if status == http.StatusInternalServerError {
		log.Printf("Unexpected error during ingestion: %v", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
