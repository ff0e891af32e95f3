package services

import (
	"context"
	"fmt"
	"strings"
)

// sendTelegram delivers a Markdown text message via the bot sendMessage API
func (s *DispatchService) sendTelegram(ctx context.Context, alert *AlertContext, cfg *ChannelConfig) (int, string, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return 0, "", fmt.Errorf("%w: telegram bot_token or chat_id not set", ErrChannelConfig)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.telegramBaseURL, cfg.BotToken)
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]interface{}{
			"chat_id":    cfg.ChatID,
			"text":       telegramMessage(alert),
			"parse_mode": "Markdown",
		}).
		Post(url)

	return checkResponse(resp, err, "telegram API")
}

func telegramMessage(alert *AlertContext) string {
	signal := alert.Signal

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s *%s %s*\n\n", directionEmoji(signal.Direction), signal.Direction, signal.Symbol))
	sb.WriteString(fmt.Sprintf("📊 Strategy: %s\n", alert.Strategy.Name))
	sb.WriteString(fmt.Sprintf("💰 Price: %g\n", signal.Price))
	if signal.Interval != "" {
		sb.WriteString(fmt.Sprintf("🕐 Interval: %s\n", signal.Interval))
	}
	if alert.Stats != nil {
		sb.WriteString(fmt.Sprintf("📈 Win rate: %.1f%% (%d trades)\n", alert.Stats.WinRate, alert.Stats.TotalTrades))
	}
	if alert.Insight != "" {
		sb.WriteString(fmt.Sprintf("💡 _%s_\n", alert.Insight))
	}
	sb.WriteString(fmt.Sprintf("⏰ %s", signal.SignalTime.Format("2006-01-02 15:04:05 MST")))
	return sb.String()
}
