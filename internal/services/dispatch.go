package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/config"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/database"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const maxResponseBodyLen = 1000

// ChannelConfig is the type-specific configuration blob stored on an
// integration. Only the fields relevant to the channel type are set.
type ChannelConfig struct {
	// discord / slack / generic webhook
	WebhookURL string `json:"webhook_url,omitempty"`
	// telegram
	BotToken string `json:"bot_token,omitempty"`
	ChatID   string `json:"chat_id,omitempty"`
	// generic webhook
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"body_template,omitempty"`
	// email
	EmailBackend  string `json:"email_backend,omitempty"` // sendgrid, mailgun, smtp
	EmailFrom     string `json:"email_from,omitempty"`
	EmailTo       string `json:"email_to,omitempty"`
	APIKey        string `json:"api_key,omitempty"`
	MailgunDomain string `json:"mailgun_domain,omitempty"`
	SMTPHost      string `json:"smtp_host,omitempty"`
	SMTPPort      int    `json:"smtp_port,omitempty"`
	SMTPUser      string `json:"smtp_user,omitempty"`
	SMTPPassword  string `json:"smtp_password,omitempty"`
}

// ChannelResult is the per-channel entry of a dispatch summary
type ChannelResult struct {
	Channel string `json:"channel"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
}

// DispatchSummary reports the outcome of one dispatch invocation
type DispatchSummary struct {
	Success bool            `json:"success"`
	Results []ChannelResult `json:"results"`
	Sent    int             `json:"sent"`
	Total   int             `json:"total"`
}

// DispatchService fans an accepted signal out to every enabled notification
// channel bound to its strategy or account. Deliveries run concurrently with
// a modest bound; each one is independently timed out and logged, and a
// failing channel never blocks its siblings.
type DispatchService struct {
	db            *gorm.DB
	client        *resty.Client
	enrich        *EnrichService
	timeout       time.Duration
	maxConcurrent int
	// overridable endpoints for tests
	telegramBaseURL string
	sendgridURL     string
	mailgunBaseURL  string
}

// NewDispatchService creates a new dispatch service
func NewDispatchService(enrich *EnrichService) *DispatchService {
	return &DispatchService{
		db:              database.GetDB(),
		client:          resty.New().SetTimeout(10 * time.Second),
		enrich:          enrich,
		timeout:         10 * time.Second,
		maxConcurrent:   8,
		telegramBaseURL: "https://api.telegram.org",
		sendgridURL:     "https://api.sendgrid.com/v3/mail/send",
		mailgunBaseURL:  "https://api.mailgun.net/v3",
	}
}

// SetConfig sets the dispatch configuration
func (s *DispatchService) SetConfig(cfg *config.Config) {
	if cfg.Dispatch.TimeoutSeconds > 0 {
		s.timeout = time.Duration(cfg.Dispatch.TimeoutSeconds) * time.Second
		s.client.SetTimeout(s.timeout)
	}
	if cfg.Dispatch.MaxConcurrent > 0 {
		s.maxConcurrent = cfg.Dispatch.MaxConcurrent
	}
}

// DispatchSignal delivers the stored signal to all enabled channels scoped to
// its strategy plus all enabled account-wide channels. With zero channels it
// returns immediately and writes no delivery log entries.
func (s *DispatchService) DispatchSignal(signalID, strategyID uint) (*DispatchSummary, error) {
	var signal models.Signal
	if err := s.db.First(&signal, signalID).Error; err != nil {
		return nil, fmt.Errorf("failed to load signal %d: %w", signalID, err)
	}
	var strategy models.Strategy
	if err := s.db.First(&strategy, strategyID).Error; err != nil {
		return nil, fmt.Errorf("failed to load strategy %d: %w", strategyID, err)
	}

	integrations, err := s.loadChannels(signal.AccountID, strategyID)
	if err != nil {
		return nil, err
	}

	summary := &DispatchSummary{Success: true, Results: []ChannelResult{}}
	if len(integrations) == 0 {
		s.markProcessed(&signal)
		return summary, nil
	}

	alert := s.enrich.Enrich(&signal, &strategy)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.maxConcurrent)
	for i := range integrations {
		integration := integrations[i]
		g.Go(func() error {
			result := s.deliverToChannel(alert, &integration)
			mu.Lock()
			summary.Results = append(summary.Results, result)
			if result.Success {
				summary.Sent++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	summary.Total = len(integrations)
	summary.Success = summary.Sent == summary.Total
	s.markProcessed(&signal)

	return summary, nil
}

// loadChannels returns the union of enabled strategy-scoped and enabled
// account-wide integrations. Paused integrations are excluded; error-status
// integrations are still attempted.
func (s *DispatchService) loadChannels(accountID, strategyID uint) ([]models.Integration, error) {
	var integrations []models.Integration
	err := s.db.Where("account_id = ? AND enabled = ? AND status <> ? AND (strategy_id IS NULL OR strategy_id = ?)",
		accountID, true, models.IntegrationStatusPaused, strategyID).
		Find(&integrations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load integrations: %w", err)
	}
	return integrations, nil
}

// deliverToChannel runs the pending -> success/error state machine for one
// channel. All failures terminate here; nothing propagates to siblings or to
// the ingesting caller.
func (s *DispatchService) deliverToChannel(alert *AlertContext, integration *models.Integration) ChannelResult {
	result := ChannelResult{Channel: integration.Name, Type: integration.Type}

	entry := &models.DeliveryLog{
		SignalID:      alert.Signal.ID,
		IntegrationID: integration.ID,
		ChannelType:   integration.Type,
		Status:        models.DeliveryStatusPending,
		Message:       fmt.Sprintf("%s %s @ %g", alert.Signal.Direction, alert.Signal.Symbol, alert.Signal.Price),
	}
	if err := s.db.Create(entry).Error; err != nil {
		log.Printf("Failed to create delivery log for integration %d: %v", integration.ID, err)
	}

	statusCode, body, err := s.deliver(alert, integration)

	if err != nil {
		s.completeDelivery(entry, integration, statusCode, body, err)
		return result
	}
	s.completeDelivery(entry, integration, statusCode, body, nil)
	result.Success = true
	return result
}

// deliver parses the channel config and executes the type-specific send
// under the per-delivery timeout
func (s *DispatchService) deliver(alert *AlertContext, integration *models.Integration) (int, string, error) {
	var cfg ChannelConfig
	if len(integration.Config) > 0 {
		if err := json.Unmarshal(integration.Config, &cfg); err != nil {
			return 0, "", fmt.Errorf("%w: %v", ErrChannelConfig, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	switch integration.Type {
	case models.IntegrationDiscord:
		return s.sendDiscord(ctx, alert, &cfg)
	case models.IntegrationSlack:
		return s.sendSlack(ctx, alert, &cfg)
	case models.IntegrationTelegram:
		return s.sendTelegram(ctx, alert, &cfg)
	case models.IntegrationEmail:
		return s.sendEmail(ctx, alert, &cfg)
	case models.IntegrationWebhook:
		return s.sendWebhook(ctx, alert, &cfg)
	default:
		return 0, "", fmt.Errorf("%w: unsupported channel type %q", ErrChannelConfig, integration.Type)
	}
}

// completeDelivery moves the log entry to its terminal status and updates the
// integration's operational fields. A failing channel is surfaced as degraded
// but never auto-disabled.
func (s *DispatchService) completeDelivery(entry *models.DeliveryLog, integration *models.Integration, statusCode int, body string, deliveryErr error) {
	now := time.Now()
	logUpdates := map[string]interface{}{
		"response_status": statusCode,
		"response_body":   truncateBody(body),
	}
	integrationUpdates := map[string]interface{}{
		"last_delivery_at": now,
	}

	if deliveryErr != nil {
		logUpdates["status"] = models.DeliveryStatusError
		logUpdates["error_message"] = truncateBody(deliveryErr.Error())
		integrationUpdates["status"] = models.IntegrationStatusError
		integrationUpdates["error_message"] = truncateBody(deliveryErr.Error())
		integrationUpdates["consecutive_errors"] = gorm.Expr("consecutive_errors + 1")
	} else {
		logUpdates["status"] = models.DeliveryStatusSuccess
		integrationUpdates["status"] = models.IntegrationStatusActive
		integrationUpdates["error_message"] = ""
		integrationUpdates["consecutive_errors"] = 0
	}

	if entry.ID != 0 {
		if err := s.db.Model(entry).Updates(logUpdates).Error; err != nil {
			log.Printf("Failed to update delivery log %d: %v", entry.ID, err)
		}
	}
	if err := s.db.Model(&models.Integration{}).Where("id = ?", integration.ID).Updates(integrationUpdates).Error; err != nil {
		log.Printf("Failed to update integration %d: %v", integration.ID, err)
	}
}

func (s *DispatchService) markProcessed(signal *models.Signal) {
	now := time.Now()
	if err := s.db.Model(signal).Update("processed_at", now).Error; err != nil {
		log.Printf("Failed to mark signal %d processed: %v", signal.ID, err)
	}
}

// checkResponse folds a non-2xx response into a delivery error carrying the
// status and truncated body
func checkResponse(resp *resty.Response, err error, what string) (int, string, error) {
	if err != nil {
		return 0, "", fmt.Errorf("%s request failed: %w", what, err)
	}
	code := resp.StatusCode()
	body := resp.String()
	if code < 200 || code >= 300 {
		return code, body, fmt.Errorf("%s returned status %d: %s", what, code, truncateBody(body))
	}
	return code, body, nil
}

func truncateBody(body string) string {
	if len(body) > maxResponseBodyLen {
		return body[:maxResponseBodyLen]
	}
	return body
}
