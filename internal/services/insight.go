package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/config"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
	"github.com/go-resty/resty/v2"
)

const insightMaxWords = 15

// InsightService generates a short natural-language comment on a signal via
// an OpenAI-compatible chat-completions endpoint. Every failure path returns
// an empty string; the insight is decoration, never a dependency.
type InsightService struct {
	client *resty.Client
	cfg    config.EnrichmentConfig
}

// NewInsightService creates a new insight service
func NewInsightService() *InsightService {
	return &InsightService{
		client: resty.New().SetTimeout(8 * time.Second),
	}
}

// SetConfig sets the enrichment configuration
func (s *InsightService) SetConfig(cfg *config.Config) {
	s.cfg = cfg.Enrichment
	if s.cfg.TimeoutSeconds > 0 {
		s.client.SetTimeout(time.Duration(s.cfg.TimeoutSeconds) * time.Second)
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate returns a short insight for the signal, or "" when enrichment is
// disabled, unconfigured, or the call fails in any way
func (s *InsightService) Generate(signal *models.Signal, strategy *models.Strategy, stats *StrategyStats) string {
	if !s.cfg.Enabled || s.cfg.APIKey == "" {
		return ""
	}

	prompt := fmt.Sprintf("Trading signal: %s %s at %g from strategy %q.",
		signal.Direction, signal.Symbol, signal.Price, strategy.Name)
	if stats != nil {
		prompt += fmt.Sprintf(" Strategy win rate %.1f%% over %d closed trades.", stats.WinRate, stats.TotalTrades)
	}
	prompt += fmt.Sprintf(" Give one factual comment of at most %d words for the trader. No advice, no preamble.", insightMaxWords)

	model := s.cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	var parsed chatResponse
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetAuthToken(s.cfg.APIKey).
		SetBody(map[string]interface{}{
			"model": model,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
			"temperature": 0.5,
			"max_tokens":  60,
		}).
		SetResult(&parsed).
		Post(s.chatURL())
	if err != nil {
		log.Printf("Insight call failed: %v", err)
		return ""
	}
	if resp.StatusCode()/100 != 2 || len(parsed.Choices) == 0 {
		log.Printf("Insight call returned status %d", resp.StatusCode())
		return ""
	}

	return clampWords(strings.TrimSpace(parsed.Choices[0].Message.Content), insightMaxWords)
}

// chatURL normalizes the configured base URL so a value with or without the
// /chat/completions suffix works
func (s *InsightService) chatURL() string {
	url := strings.TrimRight(s.cfg.BaseURL, "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func clampWords(text string, max int) string {
	words := strings.Fields(text)
	if len(words) <= max {
		return text
	}
	return strings.Join(words[:max], " ")
}
