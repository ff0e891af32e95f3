package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Plan tiers. The tier decides the default per-minute signal limit when an
// API key does not carry its own.
const (
	PlanFree  = "free"
	PlanPro   = "pro"
	PlanElite = "elite"
)

// Account represents an account that owns strategies, API keys and
// notification integrations
type Account struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name"`
	Email     string         `json:"email" gorm:"uniqueIndex"`
	Plan      string         `json:"plan" gorm:"default:'free'"` // free, pro, elite
	IsActive  bool           `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	// Relations
	Strategies   []Strategy    `json:"strategies,omitempty" gorm:"foreignKey:AccountID"`
	ApiKeys      []ApiKey      `json:"api_keys,omitempty" gorm:"foreignKey:AccountID"`
	Integrations []Integration `json:"integrations,omitempty" gorm:"foreignKey:AccountID"`
}

// Strategy is the grouping signals are filed under and the auth boundary for
// the webhook flow (each strategy carries its own opaque secret token)
type Strategy struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	AccountID    uint           `json:"account_id" gorm:"not null;index"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	WebhookToken string         `json:"-" gorm:"uniqueIndex;not null"`
	IsActive     bool           `json:"is_active" gorm:"default:true"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	// Relations
	Account Account `json:"account,omitempty" gorm:"foreignKey:AccountID"`
}

// ApiKey represents an account-scoped programmatic credential. It carries the
// per-key payload mapping, default values and rate limit used by the API-key
// ingestion flow. A key may optionally be bound to a single strategy; unbound
// keys resolve to the account's oldest active strategy at ingest time.
type ApiKey struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	AccountID  uint           `json:"account_id" gorm:"not null;index"`
	StrategyID *uint          `json:"strategy_id,omitempty"`
	Key        string         `json:"-" gorm:"uniqueIndex;not null"`
	Name       string         `json:"name"`
	IsActive   bool           `json:"is_active" gorm:"default:true"`
	Mapping    datatypes.JSON `json:"mapping,omitempty"`  // canonical field -> dot path
	Defaults   datatypes.JSON `json:"defaults,omitempty"` // canonical field -> fallback value
	RateLimit  int            `json:"rate_limit" gorm:"default:0"` // signals/minute, 0 = plan default
	UsageCount int64          `json:"usage_count" gorm:"default:0"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	// Relations
	Account  Account   `json:"account,omitempty" gorm:"foreignKey:AccountID"`
	Strategy *Strategy `json:"strategy,omitempty" gorm:"foreignKey:StrategyID"`
}
