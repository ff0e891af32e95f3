package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// sendWebhook delivers to an arbitrary URL with a configurable method,
// custom headers, and either a default JSON body or a caller-supplied
// template with {{field}} placeholders
func (s *DispatchService) sendWebhook(ctx context.Context, alert *AlertContext, cfg *ChannelConfig) (int, string, error) {
	if cfg.WebhookURL == "" {
		return 0, "", fmt.Errorf("%w: webhook_url not set", ErrChannelConfig)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}

	req := s.client.R().SetContext(ctx)
	for k, v := range cfg.Headers {
		req.SetHeader(k, v)
	}

	if cfg.BodyTemplate != "" {
		req.SetBody(RenderTemplate(cfg.BodyTemplate, alert))
		if req.Header.Get("Content-Type") == "" {
			req.SetHeader("Content-Type", "text/plain")
		}
	} else {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(map[string]interface{}{
			"direction":     alert.Signal.Direction,
			"action":        strings.ToLower(alert.Signal.Direction),
			"symbol":        alert.Signal.Symbol,
			"price":         alert.Signal.Price,
			"time":          alert.Signal.SignalTime.Format(time.RFC3339),
			"interval":      alert.Signal.Interval,
			"strategy_id":   alert.Signal.StrategyID,
			"strategy_name": alert.Strategy.Name,
		})
	}

	resp, err := req.Execute(method, cfg.WebhookURL)
	return checkResponse(resp, err, "webhook")
}

// RenderTemplate substitutes {{field}} placeholders in a caller-supplied
// body template from the signal
func RenderTemplate(template string, alert *AlertContext) string {
	signal := alert.Signal
	replacer := strings.NewReplacer(
		"{{direction}}", signal.Direction,
		"{{action}}", strings.ToLower(signal.Direction),
		"{{symbol}}", signal.Symbol,
		"{{price}}", strconv.FormatFloat(signal.Price, 'f', -1, 64),
		"{{time}}", signal.SignalTime.Format(time.RFC3339),
		"{{interval}}", signal.Interval,
		"{{strategy_id}}", strconv.FormatUint(uint64(signal.StrategyID), 10),
		"{{strategy_name}}", alert.Strategy.Name,
	)
	return replacer.Replace(template)
}
