package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetSignal retrieves a specific signal by ID
func (h *SignalHandler) GetSignal(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal ID"})
		return
	}

	signal, err := h.signalService.GetSignal(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}

	c.JSON(http.StatusOK, signal)
}

// GetSignalDeliveries retrieves the delivery log for a signal
func (h *SignalHandler) GetSignalDeliveries(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal ID"})
		return
	}

	logs, err := h.signalService.GetSignalDeliveries(uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve delivery log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signal_id":  uint(id),
		"deliveries": logs,
	})
}

// GetStrategySignals retrieves signals for a strategy with pagination
func (h *SignalHandler) GetStrategySignals(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy ID"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	signals, total, err := h.signalService.GetStrategySignals(uint(id), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve signals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"signals": signals,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}
