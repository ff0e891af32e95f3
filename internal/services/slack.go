package services

import (
	"context"
	"fmt"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
)

// sendSlack delivers a colored attachment to a Slack incoming webhook
func (s *DispatchService) sendSlack(ctx context.Context, alert *AlertContext, cfg *ChannelConfig) (int, string, error) {
	if cfg.WebhookURL == "" {
		return 0, "", fmt.Errorf("%w: slack webhook_url not set", ErrChannelConfig)
	}

	signal := alert.Signal
	fields := []map[string]interface{}{
		{"title": "Strategy", "value": alert.Strategy.Name, "short": true},
		{"title": "Price", "value": fmt.Sprintf("%g", signal.Price), "short": true},
		{"title": "Time", "value": signal.SignalTime.Format("2006-01-02 15:04:05 MST"), "short": false},
	}
	if alert.Stats != nil {
		fields = append(fields, map[string]interface{}{
			"title": "Win Rate",
			"value": fmt.Sprintf("%.1f%% over %d trades", alert.Stats.WinRate, alert.Stats.TotalTrades),
			"short": true,
		})
	}

	attachment := map[string]interface{}{
		"color":  slackColor(signal.Direction),
		"title":  fmt.Sprintf("%s %s %s", directionEmoji(signal.Direction), signal.Direction, signal.Symbol),
		"fields": fields,
		"ts":     signal.SignalTime.Unix(),
	}
	if alert.Insight != "" {
		attachment["text"] = "💡 " + alert.Insight
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"attachments": []map[string]interface{}{attachment},
		}).
		Post(cfg.WebhookURL)

	return checkResponse(resp, err, "slack webhook")
}

func slackColor(direction string) string {
	switch direction {
	case models.DirectionBuy, models.DirectionLong:
		return "good"
	case models.DirectionSell, models.DirectionShort:
		return "danger"
	default:
		return "#95A5A6"
	}
}
