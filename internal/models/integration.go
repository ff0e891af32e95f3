package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Integration types
const (
	IntegrationDiscord  = "discord"
	IntegrationSlack    = "slack"
	IntegrationTelegram = "telegram"
	IntegrationEmail    = "email"
	IntegrationWebhook  = "webhook"
)

// Integration operational status. Paused integrations receive no deliveries.
// A failing integration is surfaced as degraded through Status and
// ConsecutiveErrors; it is never auto-disabled.
const (
	IntegrationStatusActive = "active"
	IntegrationStatusPaused = "paused"
	IntegrationStatusError  = "error"
)

// Delivery log status
const (
	DeliveryStatusPending = "pending"
	DeliveryStatusSuccess = "success"
	DeliveryStatusError   = "error"
)

// Integration represents a configured notification target. StrategyID nil
// means the integration is account-wide and receives signals from every
// strategy of the account.
type Integration struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	AccountID         uint           `json:"account_id" gorm:"not null;index"`
	StrategyID        *uint          `json:"strategy_id,omitempty" gorm:"index"`
	Type              string         `json:"type"` // discord, slack, telegram, email, webhook
	Name              string         `json:"name"`
	Enabled           bool           `json:"enabled" gorm:"default:true"`
	Status            string         `json:"status" gorm:"default:'active'"` // active, paused, error
	Config            datatypes.JSON `json:"config"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	ConsecutiveErrors int            `json:"consecutive_errors" gorm:"default:0"`
	LastDeliveryAt    *time.Time     `json:"last_delivery_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	// Relations
	Account Account `json:"account,omitempty" gorm:"foreignKey:AccountID"`
}

// DeliveryLog records one dispatch attempt for one (signal, integration)
// pair. Created as pending when the attempt starts and always updated to a
// terminal status before the dispatch invocation returns.
type DeliveryLog struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	SignalID       uint      `json:"signal_id" gorm:"not null;index"`
	IntegrationID  uint      `json:"integration_id" gorm:"not null;index"`
	ChannelType    string    `json:"channel_type"`
	Status         string    `json:"status" gorm:"default:'pending'"` // pending, success, error
	Message        string    `json:"message,omitempty"`
	ResponseStatus int       `json:"response_status,omitempty"`
	ResponseBody   string    `json:"response_body,omitempty" gorm:"type:text"` // truncated to 1000 chars
	ErrorMessage   string    `json:"error_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
