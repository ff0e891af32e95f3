package services

import (
	"context"
	"fmt"
	"regexp"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
)

// Embed colors by direction
const (
	colorBuy     = 0x2ECC71
	colorSell    = 0xE74C3C
	colorNeutral = 0x95A5A6
)

// discordWebhookPattern matches the webhook URL shape Discord issues.
// Anything else is rejected before a request is attempted.
var discordWebhookPattern = regexp.MustCompile(`^https://(discord\.com|discordapp\.com)/api/webhooks/\d+/[A-Za-z0-9_-]+$`)

// sendDiscord delivers a rich embed to a Discord webhook
func (s *DispatchService) sendDiscord(ctx context.Context, alert *AlertContext, cfg *ChannelConfig) (int, string, error) {
	if !discordWebhookPattern.MatchString(cfg.WebhookURL) {
		return 0, "", fmt.Errorf("%w: %q is not a Discord webhook URL", ErrChannelConfig, cfg.WebhookURL)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"embeds": []map[string]interface{}{discordEmbed(alert)},
		}).
		Post(cfg.WebhookURL)

	return checkResponse(resp, err, "discord webhook")
}

func discordEmbed(alert *AlertContext) map[string]interface{} {
	signal := alert.Signal

	fields := []map[string]interface{}{
		{"name": "Strategy", "value": alert.Strategy.Name, "inline": true},
		{"name": "Price", "value": fmt.Sprintf("%g", signal.Price), "inline": true},
		{"name": "Time", "value": signal.SignalTime.Format("2006-01-02 15:04:05 MST"), "inline": true},
	}
	if signal.Interval != "" {
		fields = append(fields, map[string]interface{}{
			"name": "Interval", "value": signal.Interval, "inline": true,
		})
	}
	if alert.Stats != nil {
		fields = append(fields, map[string]interface{}{
			"name":   "Win Rate",
			"value":  fmt.Sprintf("%.1f%% over %d trades", alert.Stats.WinRate, alert.Stats.TotalTrades),
			"inline": true,
		})
	}

	embed := map[string]interface{}{
		"title":     fmt.Sprintf("%s %s %s", directionEmoji(signal.Direction), signal.Direction, signal.Symbol),
		"color":     directionColor(signal.Direction),
		"fields":    fields,
		"timestamp": signal.SignalTime.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if alert.Insight != "" {
		embed["description"] = "💡 " + alert.Insight
	}
	return embed
}

func directionColor(direction string) int {
	switch direction {
	case models.DirectionBuy, models.DirectionLong:
		return colorBuy
	case models.DirectionSell, models.DirectionShort:
		return colorSell
	default:
		return colorNeutral
	}
}

func directionEmoji(direction string) string {
	switch direction {
	case models.DirectionBuy, models.DirectionLong:
		return "🟢"
	case models.DirectionSell, models.DirectionShort:
		return "🔴"
	default:
		return "⚪"
	}
}
